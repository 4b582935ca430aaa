package flatfat

import (
	"fmt"

	"github.com/dargueta/chainfs"
	c "github.com/dargueta/chainfs/file_systems/common"
)

// fatEntry is one slot in the allocation table. A slot holds either a
// sentinel or the index of the next block in its chain. The zero value is a
// valid block index, so fresh tables must be filled with fatFree explicitly.
type fatEntry int32

const (
	// fatEndOfChain marks the last block of a chain. A directory entry whose
	// file is empty stores this directly in its firstBlock field.
	fatEndOfChain = fatEntry(-1)

	// fatFree marks an unallocated block.
	fatFree = fatEntry(-2)
)

func (e fatEntry) isFree() bool {
	return e == fatFree
}

func (e fatEntry) isEndOfChain() bool {
	return e == fatEndOfChain
}

// isLink reports whether the entry is the index of a data block.
func (e fatEntry) isLink() bool {
	return e >= 0 && e < DataBlocks
}

func (e fatEntry) isValid() bool {
	return e.isFree() || e.isEndOfChain() || e.isLink()
}

// allocationTable tracks the state of every block in the data region and the
// chain structure linking a file's blocks together.
type allocationTable struct {
	slots []fatEntry
}

func newAllocationTable() allocationTable {
	slots := make([]fatEntry, DataBlocks)
	for i := range slots {
		slots[i] = fatFree
	}
	return allocationTable{slots: slots}
}

func (table *allocationTable) next(block c.LogicalBlock) fatEntry {
	return table.slots[block]
}

func (table *allocationTable) setNext(block c.LogicalBlock, entry fatEntry) {
	table.slots[block] = entry
}

// allocBlock finds the lowest-indexed free block, marks it as the end of a
// chain, and returns it. The caller links it to a predecessor with setNext if
// the block isn't the head of a new chain. Marking inside the allocation
// keeps the table consistent at every point in between: a slot is never
// handed out while still reading as free.
func (table *allocationTable) allocBlock() (c.LogicalBlock, error) {
	for i, entry := range table.slots {
		if entry.isFree() {
			table.slots[i] = fatEndOfChain
			return c.LogicalBlock(i), nil
		}
	}
	return c.InvalidLogicalBlock, chainfs.ErrNoSpaceOnDevice.WithMessage(
		fmt.Sprintf("all %d data blocks are allocated", DataBlocks))
}

// freeBlock releases a single block. The caller must ensure no other slot
// still points at it.
func (table *allocationTable) freeBlock(block c.LogicalBlock) {
	table.slots[block] = fatFree
}

// freeChain releases every block in the chain starting at `head`. Passing
// fatEndOfChain (an empty chain) is a no-op.
func (table *allocationTable) freeChain(head fatEntry) {
	for head.isLink() {
		next := table.next(c.LogicalBlock(head))
		table.freeBlock(c.LogicalBlock(head))
		head = next
	}
}

// chainLength counts the blocks in the chain starting at `head`. The walk
// gives up once the count exceeds DataBlocks (after DataBlocks+1 steps) so a
// corrupted, cyclic chain can't hang the caller.
func (table *allocationTable) chainLength(head fatEntry) uint {
	var length uint
	for head.isLink() && length <= DataBlocks {
		length++
		head = table.next(c.LogicalBlock(head))
	}
	return length
}

// countFree returns the number of unallocated blocks.
func (table *allocationTable) countFree() uint {
	var count uint
	for _, entry := range table.slots {
		if entry.isFree() {
			count++
		}
	}
	return count
}
