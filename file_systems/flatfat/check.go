package flatfat

import (
	"fmt"

	"github.com/dargueta/chainfs"
	c "github.com/dargueta/chainfs/file_systems/common"
	"github.com/hashicorp/go-multierror"
)

// Check verifies the structural invariants of the mounted volume and returns
// every violation found, aggregated into one error:
//
//   - every allocation table slot holds a sentinel or a valid block index;
//   - the chains of all files partition the non-free slots exactly, with no
//     sharing, cycles, or orphans;
//   - each chain is exactly long enough for its file's size;
//   - every open descriptor points at a used entry with its offset inside
//     the file.
//
// A healthy volume returns nil.
func (fsys *FileSystem) Check() error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if !fsys.isMounted {
		return chainfs.ErrNotMounted
	}

	var result *multierror.Error

	for i, entry := range fsys.fat.slots {
		if !entry.isValid() {
			result = multierror.Append(result, fmt.Errorf(
				"allocation table slot %d holds invalid value %d", i, entry))
		}
	}

	// ownerOf[b] is the directory index of the file whose chain block b was
	// reached from, or -1.
	ownerOf := make([]int, DataBlocks)
	for i := range ownerOf {
		ownerOf[i] = -1
	}

	for dirIndex := range fsys.directory.entries {
		entry := &fsys.directory.entries[dirIndex]
		if !entry.used {
			continue
		}

		expectedBlocks := (int64(entry.size) + BlockSize - 1) / BlockSize
		if entry.size == 0 && !entry.firstBlock.isEndOfChain() {
			result = multierror.Append(result, fmt.Errorf(
				"%q is empty but has a block chain", entry.Name()))
			continue
		}

		var chainBlocks int64
		current := entry.firstBlock
		for current.isLink() {
			block := c.LogicalBlock(current)
			if owner := ownerOf[block]; owner >= 0 {
				result = multierror.Append(result, fmt.Errorf(
					"block %d reached from both %q and %q",
					block,
					fsys.directory.entries[owner].Name(),
					entry.Name(),
				))
				break
			}
			ownerOf[block] = dirIndex

			chainBlocks++
			if chainBlocks > DataBlocks {
				result = multierror.Append(result, fmt.Errorf(
					"chain of %q does not terminate", entry.Name()))
				break
			}
			current = fsys.fat.next(block)
		}

		if chainBlocks != expectedBlocks {
			result = multierror.Append(result, fmt.Errorf(
				"%q is %d bytes and needs %d blocks, chain has %d",
				entry.Name(),
				entry.size,
				expectedBlocks,
				chainBlocks,
			))
		}
	}

	// Any block that is neither free nor part of some file's chain leaks.
	for i, entry := range fsys.fat.slots {
		if !entry.isFree() && ownerOf[i] < 0 {
			result = multierror.Append(result, fmt.Errorf(
				"block %d is allocated but belongs to no file", i))
		}
	}

	for fd, desc := range fsys.fds.descriptors {
		if !desc.used {
			continue
		}

		entry := &fsys.directory.entries[desc.dirIndex]
		if !entry.used {
			result = multierror.Append(result, fmt.Errorf(
				"descriptor %d references deleted directory entry %d",
				fd,
				desc.dirIndex,
			))
			continue
		}
		if desc.offset < 0 || desc.offset > int64(entry.size) {
			result = multierror.Append(result, fmt.Errorf(
				"descriptor %d offset %d outside [0, %d] of %q",
				fd,
				desc.offset,
				entry.size,
				entry.Name(),
			))
		}
	}

	return result.ErrorOrNil()
}
