package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileIDIsPureFunctionOfInputs(t *testing.T) {
	a := FileID("/docs/readme.txt", 1700000000, 1024)
	b := FileID("/docs/readme.txt", 1700000000, 1024)
	assert.Equal(t, a, b)
	assert.Len(t, a, 40)
}

func TestFileIDChangesWithAnyInput(t *testing.T) {
	base := FileID("/docs/readme.txt", 1700000000, 1024)
	assert.NotEqual(t, base, FileID("/docs/other.txt", 1700000000, 1024))
	assert.NotEqual(t, base, FileID("/docs/readme.txt", 1700000001, 1024))
	assert.NotEqual(t, base, FileID("/docs/readme.txt", 1700000000, 2048))
}

func TestChunkIDDeterministicAndDistinct(t *testing.T) {
	fileID := FileID("/docs/readme.txt", 1700000000, 1024)
	c0a := ChunkID(fileID, 0)
	c0b := ChunkID(fileID, 0)
	c1 := ChunkID(fileID, 1)

	assert.Equal(t, c0a, c0b)
	assert.NotEqual(t, c0a, c1)
}

func TestContentSHA256Stable(t *testing.T) {
	h1 := ContentSHA256("Taipei is the capital city of Taiwan.")
	h2 := ContentSHA256("Taipei is the capital city of Taiwan.")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, ContentSHA256("something else"))
}
