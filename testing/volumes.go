// Package testing provides helpers shared by the test suites of the file
// system packages.
package testing

import (
	"testing"

	"github.com/dargueta/chainfs/blockdev/ram"
	"github.com/dargueta/chainfs/file_systems/flatfat"
	"github.com/stretchr/testify/require"
)

// NewFormattedDevice returns an in-memory device of `totalBlocks` blocks
// carrying a freshly formatted, empty volume. It is guaranteed to either
// return a usable device or fail the test and abort.
func NewFormattedDevice(t *testing.T, totalBlocks uint) *ram.Device {
	dev := ram.New(totalBlocks)
	require.NoError(t, flatfat.Format(dev), "formatting the device failed")
	return dev
}

// NewMountedVolume formats an in-memory device of the minimum geometry and
// mounts it. Callers are responsible for unmounting.
func NewMountedVolume(t *testing.T) (*flatfat.FileSystem, *ram.Device) {
	dev := NewFormattedDevice(t, flatfat.MinTotalBlocks)

	fsys, err := flatfat.Mount(dev)
	require.NoError(t, err, "mounting the formatted device failed")
	return fsys, dev
}

// RequireConsistent fails the test if the volume's structural invariants
// don't hold.
func RequireConsistent(t *testing.T, fsys *flatfat.FileSystem) {
	require.NoError(t, fsys.Check(), "volume failed its consistency check")
}
