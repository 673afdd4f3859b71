package table

import "github.com/ridgedb/ridge/pkg/varint"

// VarLenRef slot layout (8 bytes, per spec §3/§4.3):
//
//	[0:2]  first granule offset within the row's own page
//	[2:6]  length in bytes, high bit set when the chain holds a 32-byte
//	       blob-store hash rather than the value's real bytes
//	[6:8]  padding
const (
	varLenRefGranuleOff = 0
	varLenRefLenOff     = 2
	blobMarkerBit       = uint32(1) << 31
)

func putVarLenRef(fixed []byte, slotOffset uint32, firstGranule uint16, length uint32, isBlob bool) {
	slot := fixed[slotOffset : slotOffset+8]
	varint.PutUint16(slot[varLenRefGranuleOff:], firstGranule)
	l := length
	if isBlob {
		l |= blobMarkerBit
	}
	varint.PutUint32(slot[varLenRefLenOff:], l)
}

func getVarLenRef(fixed []byte, slotOffset uint32) (firstGranule uint16, length uint32, isBlob bool) {
	slot := fixed[slotOffset : slotOffset+8]
	firstGranule = varint.Uint16(slot[varLenRefGranuleOff:])
	raw := varint.Uint32(slot[varLenRefLenOff:])
	isBlob = raw&blobMarkerBit != 0
	length = raw &^ blobMarkerBit
	return
}
