package reporter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/torosent/crankprom/internal/sample"
)

func TestBufferDrainSwapsContents(t *testing.T) {
	b := NewBuffer()
	assert.Empty(t, b.Drain())

	b.Append(sample.New(1))
	b.Append(sample.New(2))
	assert.Equal(t, 2, b.Len())

	first := b.Drain()
	b.Append(sample.New(3))

	if assert.Len(t, first, 2) {
		assert.Equal(t, int64(1), first[0].Timestamp)
		assert.Equal(t, int64(2), first[1].Timestamp)
	}
	second := b.Drain()
	if assert.Len(t, second, 1) {
		assert.Equal(t, int64(3), second[0].Timestamp)
	}
	assert.Equal(t, 0, b.Len())
}
