package chainfs

import (
	c "github.com/dargueta/chainfs/file_systems/common"
)

// BlockSize is the size of a single device block, in bytes. It is a fixed
// part of the on-disk contract shared between block devices and the file
// system layers sitting on top of them.
const BlockSize = 4096

// BlockDevice is the interface the file system layers consume for disk
// access. A device is an addressable array of BlockSize-byte blocks covering
// both the metadata and data regions of an image.
//
// Implementations live under blockdev/. The interface is deliberately small
// so tests can substitute an in-memory device for a real image file.
type BlockDevice interface {
	// TotalBlocks returns the number of addressable blocks on the device.
	TotalBlocks() uint

	// ReadBlock fills `buffer` with the contents of the given block.
	// `buffer` must be exactly BlockSize bytes.
	ReadBlock(index c.PhysicalBlock, buffer []byte) error

	// WriteBlock writes `buffer` to the given block. `buffer` must be
	// exactly BlockSize bytes.
	WriteBlock(index c.PhysicalBlock, buffer []byte) error

	// Close releases the device. Reads and writes after Close fail.
	Close() error
}

// FSStat describes a mounted volume, in the manner of [syscall.Statfs_t].
type FSStat struct {
	// BlockSize is the size of a logical block on the file system, in bytes.
	BlockSize int64
	// TotalBlocks is the total number of data blocks on the volume.
	TotalBlocks uint64
	// BlocksFree is the number of unallocated data blocks.
	BlocksFree uint64
	// Files is the number of used directory entries on the volume.
	Files uint64
	// FilesFree is the number of remaining directory entries available.
	FilesFree uint64
	// MaxNameLength is the longest possible name for a directory entry, in
	// bytes, not counting the terminator.
	MaxNameLength int64
}
