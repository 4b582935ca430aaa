package flatfat

import (
	"fmt"

	"github.com/dargueta/chainfs"
)

// fileDesc is one open-file slot: a reference to a directory entry plus the
// seek offset. Offsets always satisfy 0 <= offset <= size of the referenced
// entry.
type fileDesc struct {
	used     bool
	dirIndex int
	offset   int64
}

type fdTable struct {
	descriptors [MaxOpenFiles]fileDesc
}

// open claims the lowest-indexed unused descriptor for the given directory
// entry and returns its index.
func (table *fdTable) open(dirIndex int) (int, error) {
	for i := range table.descriptors {
		if table.descriptors[i].used {
			continue
		}

		table.descriptors[i] = fileDesc{used: true, dirIndex: dirIndex}
		return i, nil
	}
	return -1, chainfs.ErrTooManyOpenFiles.WithMessage(
		fmt.Sprintf("all %d descriptors are in use", MaxOpenFiles))
}

// get validates a descriptor index and returns a pointer into the table.
func (table *fdTable) get(fd int) (*fileDesc, error) {
	if fd < 0 || fd >= MaxOpenFiles {
		return nil, chainfs.ErrInvalidFileDescriptor.WithMessage(
			fmt.Sprintf("%d not in range [0, %d)", fd, MaxOpenFiles))
	}
	if !table.descriptors[fd].used {
		return nil, chainfs.ErrInvalidFileDescriptor.WithMessage(
			fmt.Sprintf("descriptor %d is not open", fd))
	}
	return &table.descriptors[fd], nil
}

func (table *fdTable) close(fd int) error {
	desc, err := table.get(fd)
	if err != nil {
		return err
	}
	*desc = fileDesc{}
	return nil
}

func (table *fdTable) closeAll() {
	for i := range table.descriptors {
		table.descriptors[i] = fileDesc{}
	}
}

// anyReference reports whether any open descriptor points at the given
// directory entry.
func (table *fdTable) anyReference(dirIndex int) bool {
	for i := range table.descriptors {
		if table.descriptors[i].used && table.descriptors[i].dirIndex == dirIndex {
			return true
		}
	}
	return false
}

// clampOffsets pulls back the offset of every descriptor referencing the
// given directory entry so none points past `size`. Truncate uses this to
// keep all open handles on a shrunk file valid, not just the caller's.
func (table *fdTable) clampOffsets(dirIndex int, size int64) {
	for i := range table.descriptors {
		desc := &table.descriptors[i]
		if desc.used && desc.dirIndex == dirIndex && desc.offset > size {
			desc.offset = size
		}
	}
}
