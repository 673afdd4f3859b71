package blob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgedb/ridge/pkg/errkind"
)

func TestPutGetRoundTrip(t *testing.T) {
	s := New()
	data := []byte("a value larger than the inline threshold, hypothetically")
	h, refcount := s.Put(data)
	assert.EqualValues(t, 1, refcount)

	got, err := s.Get(h)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.EqualValues(t, 1, s.Refcount(h))
}

func TestPutSameBytesSharesEntryAndIncrementsRefcount(t *testing.T) {
	s := New()
	data := []byte("shared payload")
	h1, rc1 := s.Put(data)
	h2, rc2 := s.Put(append([]byte(nil), data...))

	assert.Equal(t, h1, h2)
	assert.EqualValues(t, 1, rc1)
	assert.EqualValues(t, 2, rc2)
	assert.EqualValues(t, 2, s.Refcount(h1))
}

func TestDecToZeroMakesReclaimable(t *testing.T) {
	s := New()
	h, _ := s.Put([]byte("payload"))

	require.NoError(t, s.Dec(h))
	assert.EqualValues(t, 0, s.Refcount(h))

	n := s.Reclaim()
	assert.Equal(t, 1, n)

	_, err := s.Get(h)
	assert.ErrorIs(t, err, errkind.ErrBlobNotFound)
}

func TestGetUnknownHash(t *testing.T) {
	s := New()
	var h Hash
	_, err := s.Get(h)
	assert.ErrorIs(t, err, errkind.ErrBlobNotFound)
}

func TestIncDecUnknownHash(t *testing.T) {
	s := New()
	var h Hash
	assert.ErrorIs(t, s.Inc(h), errkind.ErrBlobNotFound)
	assert.ErrorIs(t, s.Dec(h), errkind.ErrBlobNotFound)
}

func TestRollbackReversesPendingIncrements(t *testing.T) {
	s := New()
	h, _ := s.Put([]byte("payload"))
	require.NoError(t, s.Inc(h))
	assert.EqualValues(t, 2, s.Refcount(h))

	// Simulate a transaction that incremented this blob's refcount and then
	// rolled back: the increment must be undone.
	require.NoError(t, s.Dec(h))
	assert.EqualValues(t, 1, s.Refcount(h))
}
