package flatfat

import (
	"github.com/dargueta/chainfs"
	c "github.com/dargueta/chainfs/file_systems/common"
)

// On-disk geometry. These values are part of the format and must not change:
// images written with one set of constants are unreadable with another.
const (
	// BlockSize is the size of one block, in bytes. It matches the block size
	// of the device layer.
	BlockSize = chainfs.BlockSize

	// DataBlocks is the number of blocks in the data region.
	DataBlocks = 4096

	// FATBlocks is the number of blocks the allocation table occupies on
	// disk: DataBlocks entries of four bytes each.
	FATBlocks = (DataBlocks * 4) / BlockSize

	// DirectoryBlockIndex is the physical block holding the directory. It
	// sits immediately after the allocation table.
	DirectoryBlockIndex = FATBlocks

	// MetaBlocks is the total size of the metadata region, in blocks. Data
	// block k lives at physical block k + MetaBlocks.
	MetaBlocks = FATBlocks + 1

	// MinTotalBlocks is the smallest device this file system fits on.
	// Devices may be larger; surplus blocks are never touched.
	MinTotalBlocks = MetaBlocks + DataBlocks

	// MaxFiles is the number of directory entries.
	MaxFiles = 64

	// MaxFilenameLength is the size of the on-disk name field, including the
	// NUL terminator. The longest usable name is one byte shorter.
	MaxFilenameLength = 16

	// MaxOpenFiles is the number of slots in the descriptor table.
	MaxOpenFiles = 32

	// MaxFileSize is the largest a single file can grow: every data block on
	// the volume chained into one file.
	MaxFileSize = DataBlocks * BlockSize

	// direntSize is the size of one serialized directory entry. 64 entries
	// of 32 bytes fit comfortably in the directory block.
	direntSize = 32
)

// physicalForData maps a data-region block index to its absolute position on
// the device.
func physicalForData(block c.LogicalBlock) c.PhysicalBlock {
	return c.PhysicalBlock(uint(block) + MetaBlocks)
}
