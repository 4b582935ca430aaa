package flatfat

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dargueta/chainfs"
	"github.com/noxer/bytewriter"
)

// Metadata is stored little-endian regardless of the host, so images are
// portable: blocks 0..FATBlocks-1 hold the allocation table (one int32 per
// data block), block FATBlocks holds the directory (one rawDirEntry per
// slot, zero-padded to the end of the block).

// rawDirEntry is the exact on-disk form of a directory slot.
type rawDirEntry struct {
	Flags      uint8
	Reserved   [7]byte
	Name       [MaxFilenameLength]byte
	Size       int32
	FirstBlock int32
}

const rawDirEntryUsed = 0x01

// serializeFAT writes the allocation table into `buffer`, which must be
// exactly FATBlocks blocks long.
func serializeFAT(table *allocationTable, buffer []byte) error {
	if len(buffer) != FATBlocks*BlockSize {
		return chainfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"allocation table buffer must be %d bytes, got %d",
				FATBlocks*BlockSize,
				len(buffer),
			),
		)
	}

	writer := bytewriter.New(buffer)
	return binary.Write(writer, binary.LittleEndian, table.slots)
}

// deserializeFAT parses an allocation table, rejecting slots that are
// neither a sentinel nor a data block index.
func deserializeFAT(buffer []byte) (allocationTable, error) {
	table := allocationTable{slots: make([]fatEntry, DataBlocks)}

	reader := bytes.NewReader(buffer)
	if err := binary.Read(reader, binary.LittleEndian, table.slots); err != nil {
		return allocationTable{}, chainfs.ErrIOFailed.Wrap(err)
	}

	for i, entry := range table.slots {
		if !entry.isValid() {
			return allocationTable{}, chainfs.ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf("allocation table slot %d holds %d", i, entry))
		}
	}
	return table, nil
}

// serializeDirectory writes the directory into `buffer`, which must be
// exactly one block long.
func serializeDirectory(dir *directory, buffer []byte) error {
	if len(buffer) != BlockSize {
		return chainfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"directory buffer must be %d bytes, got %d", BlockSize, len(buffer)),
		)
	}

	// Zero the block first so unused slots and the tail are deterministic.
	clear(buffer)

	writer := bytewriter.New(buffer)
	for i := range dir.entries {
		entry := &dir.entries[i]

		raw := rawDirEntry{
			Size:       entry.size,
			FirstBlock: int32(entry.firstBlock),
		}
		if entry.used {
			raw.Flags = rawDirEntryUsed
			raw.Name = entry.name
		}

		if err := binary.Write(writer, binary.LittleEndian, &raw); err != nil {
			return err
		}
	}
	return nil
}

// deserializeDirectory parses the directory block, validating that every
// used entry describes a plausible file.
func deserializeDirectory(buffer []byte) (directory, error) {
	var dir directory

	reader := bytes.NewReader(buffer)
	for i := range dir.entries {
		var raw rawDirEntry
		if err := binary.Read(reader, binary.LittleEndian, &raw); err != nil {
			return directory{}, chainfs.ErrIOFailed.Wrap(err)
		}

		if raw.Flags&rawDirEntryUsed == 0 {
			continue
		}

		entry := &dir.entries[i]
		entry.used = true
		entry.name = raw.Name
		entry.size = raw.Size
		entry.firstBlock = fatEntry(raw.FirstBlock)

		if entry.size < 0 || int64(entry.size) > MaxFileSize {
			return directory{}, chainfs.ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf(
					"directory entry %d has impossible size %d", i, entry.size))
		}
		if entry.size == 0 && !entry.firstBlock.isEndOfChain() {
			return directory{}, chainfs.ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf(
					"empty file in directory entry %d has a block chain", i))
		}
		if entry.size > 0 && !entry.firstBlock.isLink() {
			return directory{}, chainfs.ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf(
					"directory entry %d has size %d but no block chain",
					i,
					entry.size,
				),
			)
		}
	}
	return dir, nil
}
