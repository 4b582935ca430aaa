package flatfat

import (
	"encoding/binary"
	"testing"

	"github.com/dargueta/chainfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawDirEntry__Size(t *testing.T) {
	// The serialized directory must keep its on-disk footprint: 64 entries
	// of 32 bytes in a single block.
	require.EqualValues(t, direntSize, binary.Size(rawDirEntry{}))
	require.LessOrEqual(t, MaxFiles*direntSize, BlockSize)
}

func TestFATCodec__RoundTrip(t *testing.T) {
	table := newAllocationTable()

	// 5 -> 9 -> end, plus a lone end-of-chain block at 0.
	table.setNext(0, fatEndOfChain)
	table.setNext(5, fatEntry(9))
	table.setNext(9, fatEndOfChain)

	buffer := make([]byte, FATBlocks*BlockSize)
	require.NoError(t, serializeFAT(&table, buffer))

	decoded, err := deserializeFAT(buffer)
	require.NoError(t, err)
	assert.Equal(t, table.slots, decoded.slots)

	// Spot-check the wire format: little-endian int32 per slot.
	assert.EqualValues(t, 9, int32(binary.LittleEndian.Uint32(buffer[5*4:])))
}

func TestFATCodec__RejectsGarbage(t *testing.T) {
	buffer := make([]byte, FATBlocks*BlockSize)
	binary.LittleEndian.PutUint32(buffer[0:], uint32(0x7FFFFFFF))

	_, err := deserializeFAT(buffer)
	assert.ErrorIs(t, err, chainfs.ErrFileSystemCorrupted)
}

func TestDirectoryCodec__RoundTrip(t *testing.T) {
	dir := newDirectory()

	index, err := dir.createEntry("kernel.bin")
	require.NoError(t, err)
	dir.entries[index].size = 12345
	dir.entries[index].firstBlock = fatEntry(17)

	_, err = dir.createEntry("empty")
	require.NoError(t, err)

	buffer := make([]byte, BlockSize)
	require.NoError(t, serializeDirectory(&dir, buffer))

	decoded, err := deserializeDirectory(buffer)
	require.NoError(t, err)
	assert.Equal(t, dir.entries, decoded.entries)
}

func TestDirectoryCodec__RejectsImpossibleEntries(t *testing.T) {
	dir := newDirectory()
	index, err := dir.createEntry("liar")
	require.NoError(t, err)

	// A file with bytes but no chain can't be read back.
	dir.entries[index].size = 100
	dir.entries[index].firstBlock = fatEndOfChain

	buffer := make([]byte, BlockSize)
	require.NoError(t, serializeDirectory(&dir, buffer))

	_, err = deserializeDirectory(buffer)
	assert.ErrorIs(t, err, chainfs.ErrFileSystemCorrupted)
}

func TestSerializeFAT__WrongBufferSize(t *testing.T) {
	table := newAllocationTable()
	err := serializeFAT(&table, make([]byte, BlockSize))
	assert.ErrorIs(t, err, chainfs.ErrInvalidArgument)
}
