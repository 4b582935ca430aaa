// Package file implements a block device backed by a disk image file on the
// host file system.
package file

import (
	"fmt"
	"os"

	"github.com/dargueta/chainfs"
	"github.com/dargueta/chainfs/disks"
	c "github.com/dargueta/chainfs/file_systems/common"
)

type Device struct {
	file        *os.File
	totalBlocks uint
}

// chainfs.BlockDevice interface guard
var _ chainfs.BlockDevice = (*Device)(nil)

// Create makes a new image file of `totalBlocks` blocks, filled with null
// bytes. The file must not exist at the time you call Create.
func Create(path string, totalBlocks uint) (*Device, error) {
	if totalBlocks == 0 {
		return nil, chainfs.ErrInvalidArgument.WithMessage(
			"an image must have at least one block")
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return nil, chainfs.ErrIOFailed.Wrap(err)
	}

	size := int64(totalBlocks) * chainfs.BlockSize
	if err = f.Truncate(size); err != nil {
		f.Close()
		return nil, chainfs.ErrIOFailed.WithMessage(
			fmt.Sprintf("could not expand image %q to %d bytes", path, size),
		).Wrap(err)
	}

	return &Device{file: f, totalBlocks: totalBlocks}, nil
}

// Open opens an existing image file. The file size must be a nonzero multiple
// of the block size.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o666)
	if err != nil {
		return nil, chainfs.ErrIOFailed.Wrap(err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, chainfs.ErrIOFailed.Wrap(err)
	}

	size := info.Size()
	if size == 0 || size%chainfs.BlockSize != 0 {
		f.Close()
		return nil, chainfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"image size must be a nonzero multiple of %d bytes, got %d",
				chainfs.BlockSize,
				size,
			),
		)
	}

	return &Device{
		file:        f,
		totalBlocks: uint(size / chainfs.BlockSize),
	}, nil
}

// TotalBlocks returns the number of addressable blocks in the image.
func (dev *Device) TotalBlocks() uint {
	return dev.totalBlocks
}

func (dev *Device) checkAccess(index c.PhysicalBlock, buffer []byte) error {
	if uint(index) >= dev.totalBlocks {
		return chainfs.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"invalid block number: %d not in range [0, %d)",
				index,
				dev.totalBlocks,
			),
		)
	}
	if len(buffer) != chainfs.BlockSize {
		return chainfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"buffer must be exactly %d bytes, got %d",
				chainfs.BlockSize,
				len(buffer),
			),
		)
	}
	return nil
}

// ReadBlock fills `buffer` with the contents of the given block.
func (dev *Device) ReadBlock(index c.PhysicalBlock, buffer []byte) error {
	if err := dev.checkAccess(index, buffer); err != nil {
		return err
	}

	_, err := dev.file.ReadAt(buffer, int64(index)*chainfs.BlockSize)
	if err != nil {
		return chainfs.ErrIOFailed.WithMessage(
			fmt.Sprintf("failed to read block %d", index)).Wrap(err)
	}
	return nil
}

// WriteBlock writes `buffer` to the given block.
func (dev *Device) WriteBlock(index c.PhysicalBlock, buffer []byte) error {
	if err := dev.checkAccess(index, buffer); err != nil {
		return err
	}

	_, err := dev.file.WriteAt(buffer, int64(index)*chainfs.BlockSize)
	if err != nil {
		return chainfs.ErrIOFailed.WithMessage(
			fmt.Sprintf("failed to write block %d", index)).Wrap(err)
	}
	return nil
}

// Close closes the underlying image file.
func (dev *Device) Close() error {
	return dev.file.Close()
}

// CreateFromProfile makes a new image file sized according to a predefined
// disk profile from the disks package.
func CreateFromProfile(path string, profile disks.Profile) (*Device, error) {
	return Create(path, profile.TotalBlocks)
}
