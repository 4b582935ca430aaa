package flatfat

import (
	"fmt"

	"github.com/dargueta/chainfs"
	c "github.com/dargueta/chainfs/file_systems/common"
)

func (fsys *FileSystem) readDataBlock(block c.LogicalBlock, buffer []byte) error {
	return fsys.device.ReadBlock(physicalForData(block), buffer)
}

func (fsys *FileSystem) writeDataBlock(block c.LogicalBlock, buffer []byte) error {
	return fsys.device.WriteBlock(physicalForData(block), buffer)
}

// Create makes a new empty file. No data blocks are allocated until the
// first write.
func (fsys *FileSystem) Create(name string) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if !fsys.isMounted {
		return chainfs.ErrNotMounted
	}

	_, err := fsys.directory.createEntry(name)
	return err
}

// Delete removes a file and releases its blocks. A file with any open
// descriptor cannot be deleted.
func (fsys *FileSystem) Delete(name string) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if !fsys.isMounted {
		return chainfs.ErrNotMounted
	}

	dirIndex, found := fsys.directory.findByName(name)
	if !found {
		return chainfs.ErrNotFound.WithMessage(name)
	}
	if fsys.fds.anyReference(dirIndex) {
		return chainfs.ErrBusy.WithMessage(
			fmt.Sprintf("%q has open descriptors", name))
	}

	fsys.fat.freeChain(fsys.directory.entries[dirIndex].firstBlock)
	fsys.directory.deleteEntry(dirIndex)
	return nil
}

// Open returns a descriptor for the named file, with the offset at the
// beginning. A file can be open through several descriptors at once; each
// has an independent offset.
func (fsys *FileSystem) Open(name string) (int, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if !fsys.isMounted {
		return -1, chainfs.ErrNotMounted
	}

	dirIndex, found := fsys.directory.findByName(name)
	if !found {
		return -1, chainfs.ErrNotFound.WithMessage(name)
	}
	return fsys.fds.open(dirIndex)
}

// Close releases a descriptor. Nothing is flushed; metadata only persists at
// unmount.
func (fsys *FileSystem) Close(fd int) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if !fsys.isMounted {
		return chainfs.ErrNotMounted
	}
	return fsys.fds.close(fd)
}

// Read copies up to len(buffer) bytes from the descriptor's current offset
// into `buffer` and advances the offset. It returns the number of bytes
// copied, which is 0 at end of file.
func (fsys *FileSystem) Read(fd int, buffer []byte) (int, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if !fsys.isMounted {
		return 0, chainfs.ErrNotMounted
	}
	desc, err := fsys.fds.get(fd)
	if err != nil {
		return 0, err
	}
	entry := &fsys.directory.entries[desc.dirIndex]

	toRead := len(buffer)
	if remaining := int64(entry.size) - desc.offset; int64(toRead) > remaining {
		toRead = int(remaining)
	}
	if toRead <= 0 {
		return 0, nil
	}

	// Skip whole blocks to reach the one containing the offset.
	offsetInBlock := int(desc.offset)
	current := entry.firstBlock
	for offsetInBlock >= BlockSize && current.isLink() {
		offsetInBlock -= BlockSize
		current = fsys.fat.next(c.LogicalBlock(current))
	}

	scratch := make([]byte, BlockSize)
	total := 0
	for total < toRead && current.isLink() {
		if err := fsys.readDataBlock(c.LogicalBlock(current), scratch); err != nil {
			desc.offset += int64(total)
			return total, err
		}

		chunk := BlockSize - offsetInBlock
		if chunk > toRead-total {
			chunk = toRead - total
		}
		copy(buffer[total:], scratch[offsetInBlock:offsetInBlock+chunk])
		total += chunk
		offsetInBlock = 0
		current = fsys.fat.next(c.LogicalBlock(current))
	}

	desc.offset += int64(total)
	return total, nil
}

// Write copies bytes from `buffer` to the file at the descriptor's current
// offset, allocating and linking data blocks as the file grows, and advances
// the offset. A short count (with a nil error) means the volume ran out of
// free blocks or the file hit its maximum size; the successful prefix
// stands.
func (fsys *FileSystem) Write(fd int, buffer []byte) (int, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if !fsys.isMounted {
		return 0, chainfs.ErrNotMounted
	}
	desc, err := fsys.fds.get(fd)
	if err != nil {
		return 0, err
	}
	entry := &fsys.directory.entries[desc.dirIndex]

	// Clamp to the file size cap. The cap applies to where the write ends,
	// so overwriting within a full-size file is still allowed.
	toWrite := len(buffer)
	if limit := int64(MaxFileSize) - desc.offset; int64(toWrite) > limit {
		toWrite = int(limit)
	}
	if toWrite <= 0 {
		return 0, nil
	}

	// An empty file has no chain yet; give it its first block.
	allocatedFirst := false
	if entry.firstBlock.isEndOfChain() {
		head, err := fsys.fat.allocBlock()
		if err != nil {
			return 0, nil
		}
		entry.firstBlock = fatEntry(head)
		allocatedFirst = true
	}

	// Skip to the block containing the offset, extending the chain when the
	// offset sits past its current end. This only happens when the offset
	// equals the size and the size is a multiple of the block size; there
	// are no holes to leap over.
	offsetInBlock := int(desc.offset)
	current := c.LogicalBlock(entry.firstBlock)
	outOfSpace := false
	for offsetInBlock >= BlockSize {
		next := fsys.fat.next(current)
		if next.isEndOfChain() {
			grown, err := fsys.fat.allocBlock()
			if err != nil {
				outOfSpace = true
				break
			}
			fsys.fat.setNext(current, fatEntry(grown))
			next = fatEntry(grown)
		}
		offsetInBlock -= BlockSize
		current = c.LogicalBlock(next)
	}

	scratch := make([]byte, BlockSize)
	total := 0
	for !outOfSpace && total < toWrite {
		// Read-modify-write so bytes outside the window survive.
		if err := fsys.readDataBlock(current, scratch); err != nil {
			return fsys.finishWrite(desc, entry, total, allocatedFirst, err)
		}

		chunk := BlockSize - offsetInBlock
		if chunk > toWrite-total {
			chunk = toWrite - total
		}
		copy(scratch[offsetInBlock:], buffer[total:total+chunk])

		if err := fsys.writeDataBlock(current, scratch); err != nil {
			return fsys.finishWrite(desc, entry, total, allocatedFirst, err)
		}
		total += chunk
		offsetInBlock = 0

		if total < toWrite {
			next := fsys.fat.next(current)
			if next.isEndOfChain() {
				grown, err := fsys.fat.allocBlock()
				if err != nil {
					break
				}
				fsys.fat.setNext(current, fatEntry(grown))
				next = fatEntry(grown)
			}
			current = c.LogicalBlock(next)
		}
	}

	return fsys.finishWrite(desc, entry, total, allocatedFirst, nil)
}

// finishWrite commits the successful prefix of a write: the offset advances
// by what was written and the size grows if the offset passed it. A write
// that put no bytes into a previously empty file gives back the head block
// it allocated, so an empty file never owns a chain.
func (fsys *FileSystem) finishWrite(
	desc *fileDesc,
	entry *dirEntry,
	total int,
	allocatedFirst bool,
	deviceErr error,
) (int, error) {
	if total == 0 && allocatedFirst {
		fsys.fat.freeChain(entry.firstBlock)
		entry.firstBlock = fatEndOfChain
	}

	desc.offset += int64(total)
	if desc.offset > int64(entry.size) {
		entry.size = int32(desc.offset)
	}

	return total, deviceErr
}

// Seek sets the descriptor's offset. Seeking to the end of the file is
// allowed; seeking past it is not, so seeking never creates holes.
func (fsys *FileSystem) Seek(fd int, offset int64) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if !fsys.isMounted {
		return chainfs.ErrNotMounted
	}
	desc, err := fsys.fds.get(fd)
	if err != nil {
		return err
	}
	entry := &fsys.directory.entries[desc.dirIndex]

	if offset < 0 || offset > int64(entry.size) {
		return chainfs.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("offset %d not in [0, %d]", offset, entry.size))
	}
	desc.offset = offset
	return nil
}

// Truncate shrinks the file to `length` bytes, releasing the blocks past the
// new end. Growing a file through Truncate is not supported. The offsets of
// every descriptor open on the file are clamped to the new size.
func (fsys *FileSystem) Truncate(fd int, length int64) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if !fsys.isMounted {
		return chainfs.ErrNotMounted
	}
	desc, err := fsys.fds.get(fd)
	if err != nil {
		return err
	}
	entry := &fsys.directory.entries[desc.dirIndex]

	if length < 0 || length > int64(entry.size) {
		return chainfs.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("length %d not in [0, %d]", length, entry.size))
	}

	keepBlocks := (length + BlockSize - 1) / BlockSize
	if keepBlocks == 0 {
		fsys.fat.freeChain(entry.firstBlock)
		entry.firstBlock = fatEndOfChain
	} else {
		// Walk to the last kept block, cut the chain there, and release the
		// remainder.
		last := c.LogicalBlock(entry.firstBlock)
		for i := int64(1); i < keepBlocks; i++ {
			last = c.LogicalBlock(fsys.fat.next(last))
		}
		tail := fsys.fat.next(last)
		fsys.fat.setNext(last, fatEndOfChain)
		fsys.fat.freeChain(tail)
	}

	entry.size = int32(length)
	fsys.fds.clampOffsets(desc.dirIndex, length)
	return nil
}

// FileSize returns the current size of the descriptor's file, in bytes.
func (fsys *FileSystem) FileSize(fd int) (int64, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if !fsys.isMounted {
		return -1, chainfs.ErrNotMounted
	}
	desc, err := fsys.fds.get(fd)
	if err != nil {
		return -1, err
	}
	return int64(fsys.directory.entries[desc.dirIndex].size), nil
}

// offsetOf reports the current offset of a descriptor. The File adapter uses
// it to implement io.Seeker.
func (fsys *FileSystem) offsetOf(fd int) (int64, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if !fsys.isMounted {
		return -1, chainfs.ErrNotMounted
	}
	desc, err := fsys.fds.get(fd)
	if err != nil {
		return -1, err
	}
	return desc.offset, nil
}
