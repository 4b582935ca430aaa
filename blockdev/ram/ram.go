// Package ram implements a block device held entirely in memory. It's
// primarily intended for tests, but also works for scratch volumes that are
// deliberately discarded on process exit.
package ram

import (
	"fmt"
	"io"

	"github.com/dargueta/chainfs"
	c "github.com/dargueta/chainfs/file_systems/common"
	"github.com/xaionaro-go/bytesextra"
)

type Device struct {
	storage     []byte
	stream      io.ReadWriteSeeker
	totalBlocks uint
	closed      bool
}

// chainfs.BlockDevice interface guard
var _ chainfs.BlockDevice = (*Device)(nil)

// New returns a zero-filled in-memory device of `totalBlocks` blocks.
func New(totalBlocks uint) *Device {
	storage := make([]byte, totalBlocks*chainfs.BlockSize)
	return &Device{
		storage:     storage,
		stream:      bytesextra.NewReadWriteSeeker(storage),
		totalBlocks: totalBlocks,
	}
}

// FromBytes wraps an existing byte slice. The slice length must be a nonzero
// multiple of the block size. Writes to the device modify `storage` in place.
func FromBytes(storage []byte) (*Device, error) {
	if len(storage) == 0 || len(storage)%chainfs.BlockSize != 0 {
		return nil, chainfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"storage must be a nonzero multiple of %d bytes, got %d",
				chainfs.BlockSize,
				len(storage),
			),
		)
	}

	return &Device{
		storage:     storage,
		stream:      bytesextra.NewReadWriteSeeker(storage),
		totalBlocks: uint(len(storage) / chainfs.BlockSize),
	}, nil
}

// Bytes returns the underlying storage. Tests use this to inspect the raw
// image after a sequence of operations.
func (dev *Device) Bytes() []byte {
	return dev.storage
}

// TotalBlocks returns the number of addressable blocks on the device.
func (dev *Device) TotalBlocks() uint {
	return dev.totalBlocks
}

func (dev *Device) seekToBlock(index c.PhysicalBlock, buffer []byte) error {
	if dev.closed {
		return chainfs.ErrIOFailed.WithMessage("device is closed")
	}
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

	_, err := dev.stream.Seek(int64(index)*chainfs.BlockSize, io.SeekStart)
	if err != nil {
		return chainfs.ErrIOFailed.Wrap(err)
	}
	return nil
}

// ReadBlock fills `buffer` with the contents of the given block.
func (dev *Device) ReadBlock(index c.PhysicalBlock, buffer []byte) error {
	if err := dev.seekToBlock(index, buffer); err != nil {
		return err
	}

	if _, err := io.ReadFull(dev.stream, buffer); err != nil {
		return chainfs.ErrIOFailed.WithMessage(
			fmt.Sprintf("failed to read block %d", index)).Wrap(err)
	}
	return nil
}

// WriteBlock writes `buffer` to the given block.
func (dev *Device) WriteBlock(index c.PhysicalBlock, buffer []byte) error {
	if err := dev.seekToBlock(index, buffer); err != nil {
		return err
	}

	if _, err := dev.stream.Write(buffer); err != nil {
		return chainfs.ErrIOFailed.WithMessage(
			fmt.Sprintf("failed to write block %d", index)).Wrap(err)
	}
	return nil
}

// Close marks the device as closed. The storage itself is left intact so it
// can still be inspected through Bytes.
func (dev *Device) Close() error {
	dev.closed = true
	return nil
}
