package page

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgedb/ridge/pkg/errkind"
)

func TestAllocateFixedRowBumpsAndReuses(t *testing.T) {
	p := New(0, 16)

	off1, err := p.AllocateFixedRow(16)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), off1)
	assert.True(t, p.IsPresent(off1))

	off2, err := p.AllocateFixedRow(16)
	require.NoError(t, err)
	assert.Equal(t, uint32(16), off2)

	p.FreeFixedRow(off1)
	assert.False(t, p.IsPresent(off1))

	off3, err := p.AllocateFixedRow(16)
	require.NoError(t, err)
	assert.Equal(t, uint32(32), off3, "fresh bump allocation takes priority over the fallback scan")

	for i := 0; i < int(p.capSlots)-3; i++ {
		_, err := p.AllocateFixedRow(16)
		require.NoError(t, err)
	}

	reused, err := p.AllocateFixedRow(16)
	require.NoError(t, err)
	assert.Equal(t, off1, reused, "once the bump cursor is exhausted, the fallback scan reclaims freed slots")
}

func TestAllocateFixedRowWrongSize(t *testing.T) {
	p := New(0, 16)
	_, err := p.AllocateFixedRow(8)
	assert.Error(t, err)
}

func TestFixedRowReadWriteRoundTrip(t *testing.T) {
	p := New(0, 16)
	off, err := p.AllocateFixedRow(16)
	require.NoError(t, err)

	want := []byte("0123456789abcdef")
	require.NoError(t, p.WriteFixed(off, want))

	got, err := p.ReadFixed(off, 16)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReadFixedOutOfRange(t *testing.T) {
	p := New(0, 16)
	_, err := p.ReadFixed(Size-4, 16)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errkind.ErrDecodeError))
}

func TestGranuleAllocateAndChain(t *testing.T) {
	p := New(0, 32)

	g1, err := p.AllocateGranule()
	require.NoError(t, err)
	g2, err := p.AllocateGranule()
	require.NoError(t, err)
	assert.NotEqual(t, g1, g2)

	p.WriteGranulePayload(g1, []byte("first-chunk"))
	p.SetNext(g1, g2)
	p.WriteGranulePayload(g2, []byte("second-chunk"))

	chain, err := p.IterGranuleChain(g1)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "first-chunk", string(trimZero(chain[0])))
	assert.Equal(t, "second-chunk", string(trimZero(chain[1])))
}

func TestGranuleFreeListReuse(t *testing.T) {
	p := New(0, 32)

	g1, err := p.AllocateGranule()
	require.NoError(t, err)
	g2, err := p.AllocateGranule()
	require.NoError(t, err)

	p.FreeGranule(g1)
	p.FreeGranule(g2)

	reused1, err := p.AllocateGranule()
	require.NoError(t, err)
	assert.Equal(t, g2, reused1, "free-list is LIFO")

	reused2, err := p.AllocateGranule()
	require.NoError(t, err)
	assert.Equal(t, g1, reused2)
}

func TestGranuleChainCycleIsFatal(t *testing.T) {
	p := New(0, 32)
	g1, err := p.AllocateGranule()
	require.NoError(t, err)
	g2, err := p.AllocateGranule()
	require.NoError(t, err)

	p.WriteGranulePayload(g1, []byte("a"))
	p.SetNext(g1, g2)
	p.WriteGranulePayload(g2, []byte("b"))
	p.SetNext(g2, g1) // cycle

	_, err = p.IterGranuleChain(g1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errkind.ErrDecodeError))
}

func TestFixedAndGranuleRegionsMeetInTheMiddleIsPageFull(t *testing.T) {
	p := New(0, GranuleSize) // rowSize == GranuleSize to make the boundary arithmetic exact

	var fixedCount int
	for {
		_, err := p.AllocateFixedRow(GranuleSize)
		if err != nil {
			require.True(t, errors.Is(err, errkind.ErrPageFull))
			break
		}
		fixedCount++
	}
	assert.Greater(t, fixedCount, 0)

	_, err := p.AllocateGranule()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errkind.ErrPageFull))
}

func trimZero(b []byte) []byte {
	i := len(b)
	for i > 0 && b[i-1] == 0 {
		i--
	}
	return b[:i]
}
