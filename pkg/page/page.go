// Package page implements the fixed-size slotted page: fixed-part row slots
// growing from the low end of the page, and 64-byte variable-length
// granules growing from the high end, meeting in the middle.
package page

import (
	"encoding/binary"
	"fmt"

	"github.com/ridgedb/ridge/pkg/errkind"
)

// Size is the fixed page size spec §4.1 mandates: 64 KiB.
const Size = 64 * 1024

// GranuleSize is the size of one variable-length chain link: 62 bytes of
// payload plus a 2-byte next-granule offset.
const GranuleSize = 64

// GranulePayload is the usable payload bytes per granule.
const GranulePayload = GranuleSize - 2

// nullGranule is the sentinel "no next granule" offset. Size is exactly
// 2^16, so every real granule offset is at most Size-GranuleSize (65472),
// leaving 0xFFFF free to mean "null".
const nullGranule = 0xFFFF

// Page is one 64 KiB slotted page for a single table's fixed row size.
// It is not internally synchronized: callers (the table layer) only ever
// touch a page while holding the datastore's write lock, per spec §5.
type Page struct {
	index   uint64
	rowSize uint32

	data     []byte // raw Size-byte arena
	presence []byte // one bit per possible fixed slot

	capSlots   uint32 // bitmap capacity, Size/rowSize
	freeCursor uint32 // next never-yet-used slot index

	granuleFreeHead  uint16 // head of the granule free-list, nullGranule if empty
	granuleHighWater uint32 // next granule's offset is this minus GranuleSize
}

// New allocates an empty page for rows of the given fixed size.
func New(index uint64, rowSize uint32) *Page {
	if rowSize == 0 {
		rowSize = 1
	}
	capSlots := uint32(Size) / rowSize
	return &Page{
		index:            index,
		rowSize:          rowSize,
		data:             make([]byte, Size),
		presence:         make([]byte, (capSlots+7)/8),
		capSlots:         capSlots,
		granuleFreeHead:  nullGranule,
		granuleHighWater: Size,
	}
}

// Index returns this page's position in its table's page list.
func (p *Page) Index() uint64 { return p.index }

func (p *Page) bitSet(slot uint32) bool {
	return p.presence[slot/8]&(1<<(slot%8)) != 0
}

func (p *Page) setBit(slot uint32) {
	p.presence[slot/8] |= 1 << (slot % 8)
}

func (p *Page) clearBit(slot uint32) {
	p.presence[slot/8] &^= 1 << (slot % 8)
}

// AllocateFixedRow reserves a new fixed-part slot and marks it present. It
// returns errkind.ErrPageFull when the page has no room left, in which case
// the table layer allocates a fresh page.
func (p *Page) AllocateFixedRow(size uint32) (uint32, error) {
	if size != p.rowSize {
		return 0, fmt.Errorf("page: row size %d does not match page row size %d", size, p.rowSize)
	}

	candidate := p.freeCursor * p.rowSize
	if p.freeCursor < p.capSlots && uint64(candidate)+uint64(p.rowSize) <= uint64(p.granuleHighWater) {
		slot := p.freeCursor
		p.setBit(slot)
		p.freeCursor++
		return slot * p.rowSize, nil
	}

	// Fallback: bit-search for a slot freed earlier than the bump cursor.
	for slot := uint32(0); slot < p.freeCursor; slot++ {
		if !p.bitSet(slot) {
			p.setBit(slot)
			return slot * p.rowSize, nil
		}
	}
	return 0, errkind.ErrPageFull
}

// FreeFixedRow clears the presence bit for the slot at offset. It does not
// touch granule chains; callers must free those first.
func (p *Page) FreeFixedRow(offset uint32) {
	p.clearBit(offset / p.rowSize)
}

// IsPresent reports whether the slot at offset currently holds a live row.
func (p *Page) IsPresent(offset uint32) bool {
	return p.bitSet(offset / p.rowSize)
}

// AllocateGranule pops from the free-list if non-empty, otherwise bumps the
// granule high-water mark downward. Returns errkind.ErrPageFull if doing so
// would overlap the fixed-slot region.
func (p *Page) AllocateGranule() (uint16, error) {
	if p.granuleFreeHead != nullGranule {
		off := p.granuleFreeHead
		p.granuleFreeHead = p.readNext(off)
		return off, nil
	}

	used := p.freeCursor * p.rowSize
	if p.granuleHighWater < GranuleSize || p.granuleHighWater-GranuleSize < used {
		return 0, errkind.ErrPageFull
	}
	p.granuleHighWater -= GranuleSize
	off := uint16(p.granuleHighWater)
	return off, nil
}

// FreeGranule pushes the granule at offset onto the free-list.
func (p *Page) FreeGranule(offset uint16) {
	p.writeNext(offset, p.granuleFreeHead)
	p.granuleFreeHead = offset
}

func (p *Page) readNext(off uint16) uint16 {
	return binary.LittleEndian.Uint16(p.data[int(off)+GranulePayload : int(off)+GranuleSize])
}

func (p *Page) writeNext(off uint16, next uint16) {
	binary.LittleEndian.PutUint16(p.data[int(off)+GranulePayload:int(off)+GranuleSize], next)
}

// WriteGranulePayload writes up to GranulePayload bytes into the granule at
// offset, zero-padding the remainder, and terminates its chain (next =
// null). Callers that are building a chain call SetNext afterwards.
func (p *Page) WriteGranulePayload(offset uint16, payload []byte) {
	if len(payload) > GranulePayload {
		panic("page: granule payload exceeds GranulePayload")
	}
	dst := p.data[offset : int(offset)+GranulePayload]
	n := copy(dst, payload)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	p.writeNext(offset, nullGranule)
}

// SetNext links the granule at offset to the next granule in its chain.
func (p *Page) SetNext(offset uint16, next uint16) {
	p.writeNext(offset, next)
}

// IterGranuleChain walks the next-pointer chain starting at start, returning
// each granule's 62-byte payload slice in order. It guards against cyclic or
// out-of-range chains, which are fatal decode errors per spec §4.1.
func (p *Page) IterGranuleChain(start uint16) ([][]byte, error) {
	var out [][]byte
	maxHops := Size/GranuleSize + 1
	cur := start
	for i := 0; i < maxHops; i++ {
		if int(cur)+GranuleSize > len(p.data) {
			return nil, fmt.Errorf("page: granule chain offset %d out of range: %w", cur, errkind.ErrDecodeError)
		}
		out = append(out, p.data[cur:int(cur)+GranulePayload])
		next := p.readNext(cur)
		if next == nullGranule {
			return out, nil
		}
		cur = next
	}
	return nil, fmt.Errorf("page: granule chain exceeded %d hops, likely cyclic: %w", maxHops, errkind.ErrDecodeError)
}

// GranuleChainOffsets walks the next-pointer chain starting at start,
// returning each granule's own offset in order (for freeing the whole
// chain). It applies the same cycle/out-of-range guard as
// IterGranuleChain.
func (p *Page) GranuleChainOffsets(start uint16) ([]uint16, error) {
	var out []uint16
	maxHops := Size/GranuleSize + 1
	cur := start
	for i := 0; i < maxHops; i++ {
		if int(cur)+GranuleSize > len(p.data) {
			return nil, fmt.Errorf("page: granule chain offset %d out of range: %w", cur, errkind.ErrDecodeError)
		}
		out = append(out, cur)
		next := p.readNext(cur)
		if next == nullGranule {
			return out, nil
		}
		cur = next
	}
	return nil, fmt.Errorf("page: granule chain exceeded %d hops, likely cyclic: %w", maxHops, errkind.ErrDecodeError)
}

// ReadFixed returns a bounds-checked view of size bytes starting at offset.
func (p *Page) ReadFixed(offset, size uint32) ([]byte, error) {
	if uint64(offset)+uint64(size) > uint64(len(p.data)) {
		return nil, fmt.Errorf("page: read [%d:%d] out of range: %w", offset, offset+size, errkind.ErrDecodeError)
	}
	return p.data[offset : offset+size], nil
}

// WriteFixed copies bytes into the fixed part starting at offset.
func (p *Page) WriteFixed(offset uint32, bytes []byte) error {
	if uint64(offset)+uint64(len(bytes)) > uint64(len(p.data)) {
		return fmt.Errorf("page: write [%d:%d] out of range: %w", offset, int(offset)+len(bytes), errkind.ErrDecodeError)
	}
	copy(p.data[offset:], bytes)
	return nil
}

// RowSize reports the fixed row size this page was created for.
func (p *Page) RowSize() uint32 { return p.rowSize }

// FreeSlots returns the number of fixed-part slots not currently holding a
// live row: the never-yet-used tail plus any reclaimed slots below it.
func (p *Page) FreeSlots() uint32 {
	free := p.capSlots - p.freeCursor
	for slot := uint32(0); slot < p.freeCursor; slot++ {
		if !p.bitSet(slot) {
			free++
		}
	}
	return free
}

// MaxSlot returns the highest slot index ever allocated plus one, for scan
// iteration bounds.
func (p *Page) MaxSlot() uint32 { return p.freeCursor }
