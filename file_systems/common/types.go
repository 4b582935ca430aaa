// Package common contains definitions of fundamental types and functions used
// across multiple file system implementations.
package common

import "math"

// LogicalBlock is an index into the data region of a volume, counted from the
// first data block. PhysicalBlock is an absolute index into the underlying
// device, counted from the beginning of the image.
type LogicalBlock uint
type PhysicalBlock uint

const InvalidLogicalBlock = LogicalBlock(math.MaxUint)
const InvalidPhysicalBlock = PhysicalBlock(math.MaxUint)
