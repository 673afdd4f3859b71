package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectInsertSeekDelete(t *testing.T) {
	d := NewDirect(4)
	d.Insert(2, 42)

	got, ok := d.SeekPoint(2)
	assert.True(t, ok)
	assert.EqualValues(t, 42, got)

	assert.False(t, d.Contains(0))

	d.Delete(2)
	_, ok = d.SeekPoint(2)
	assert.False(t, ok)
}

func TestDirectGrowsBeyondInitialCapacity(t *testing.T) {
	d := NewDirect(2)
	d.Insert(10, 7)

	got, ok := d.SeekPoint(10)
	assert.True(t, ok)
	assert.EqualValues(t, 7, got)
}

func TestDirectZeroValuePointerIsDistinguishableFromAbsent(t *testing.T) {
	d := NewDirect(1)
	d.Insert(0, 0)

	got, ok := d.SeekPoint(0)
	assert.True(t, ok)
	assert.EqualValues(t, 0, got)

	assert.False(t, d.Contains(5))
}
