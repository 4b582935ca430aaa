package flatfat

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dargueta/chainfs"
)

// dirEntry is the in-memory form of one directory slot. When `used` is
// false the remaining fields are meaningless.
type dirEntry struct {
	used bool
	// name is the on-disk name field: up to MaxFilenameLength-1 bytes of
	// name followed by a NUL terminator. Bytes past the terminator are
	// ignored on read and zeroed on write.
	name       [MaxFilenameLength]byte
	size       int32
	firstBlock fatEntry
}

// Name returns the entry's filename, up to the NUL terminator.
func (entry *dirEntry) Name() string {
	raw := entry.name[:]
	if end := bytes.IndexByte(raw, 0); end >= 0 {
		raw = raw[:end]
	}
	return string(raw)
}

func (entry *dirEntry) setName(name string) {
	clear(entry.name[:])
	copy(entry.name[:], name)
}

// validateFilename rejects names the directory can't store: empty names,
// names that don't fit the on-disk field, and names containing NUL (the
// terminator) or '/' (reserved, to keep names portable to path-based tools).
// Comparison elsewhere is byte-wise and case-sensitive.
func validateFilename(name string) error {
	if len(name) == 0 {
		return chainfs.ErrInvalidArgument.WithMessage("filename is empty")
	}
	if len(name) > MaxFilenameLength-1 {
		return chainfs.ErrNameTooLong.WithMessage(
			fmt.Sprintf(
				"filename can be at most %d bytes: %q",
				MaxFilenameLength-1,
				name,
			),
		)
	}
	if strings.IndexByte(name, 0) >= 0 || strings.IndexByte(name, '/') >= 0 {
		return chainfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("filename contains a reserved character: %q", name))
	}
	return nil
}

// directory is the fixed-capacity table mapping filenames to files.
// Filenames among used entries are unique.
type directory struct {
	entries [MaxFiles]dirEntry
}

func newDirectory() directory {
	return directory{}
}

// findByName returns the index of the used entry with the given name. The
// scan stops at the first match; names are unique so there is never a second.
func (dir *directory) findByName(name string) (int, bool) {
	for i := range dir.entries {
		if dir.entries[i].used && dir.entries[i].Name() == name {
			return i, true
		}
	}
	return -1, false
}

// createEntry claims the lowest-indexed free slot for a new empty file.
func (dir *directory) createEntry(name string) (int, error) {
	if err := validateFilename(name); err != nil {
		return -1, err
	}
	if _, exists := dir.findByName(name); exists {
		return -1, chainfs.ErrExists.WithMessage(name)
	}

	for i := range dir.entries {
		if dir.entries[i].used {
			continue
		}

		entry := &dir.entries[i]
		entry.used = true
		entry.setName(name)
		entry.size = 0
		entry.firstBlock = fatEndOfChain
		return i, nil
	}

	return -1, chainfs.ErrNoSpaceOnDevice.WithMessage(
		fmt.Sprintf("directory is full (%d files)", MaxFiles))
}

// deleteEntry clears a slot. Freeing the file's chain is the caller's job.
func (dir *directory) deleteEntry(index int) {
	dir.entries[index] = dirEntry{}
}

func (dir *directory) usedCount() uint {
	var count uint
	for i := range dir.entries {
		if dir.entries[i].used {
			count++
		}
	}
	return count
}
