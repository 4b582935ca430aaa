package flatfat_test

import (
	"path/filepath"
	"testing"

	"github.com/dargueta/chainfs"
	blockfile "github.com/dargueta/chainfs/blockdev/file"
	"github.com/dargueta/chainfs/blockdev/ram"
	"github.com/dargueta/chainfs/file_systems/flatfat"
	testhelp "github.com/dargueta/chainfs/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat__DeviceTooSmall(t *testing.T) {
	dev := ram.New(flatfat.MinTotalBlocks - 1)
	err := flatfat.Format(dev)
	assert.ErrorIs(t, err, chainfs.ErrDeviceTooSmall)
}

func TestMount__FreshVolumeIsEmpty(t *testing.T) {
	fsys, _ := testhelp.NewMountedVolume(t)

	stat, err := fsys.FSStat()
	require.NoError(t, err)
	assert.EqualValues(t, flatfat.DataBlocks, stat.TotalBlocks)
	assert.EqualValues(t, flatfat.DataBlocks, stat.BlocksFree)
	assert.EqualValues(t, 0, stat.Files)
	assert.EqualValues(t, flatfat.MaxFiles, stat.FilesFree)
	assert.EqualValues(t, flatfat.MaxFilenameLength-1, stat.MaxNameLength)

	names, err := fsys.List()
	require.NoError(t, err)
	assert.Empty(t, names)

	testhelp.RequireConsistent(t, fsys)
	require.NoError(t, fsys.Unmount())
}

func TestMount__UnformattedGarbageRejected(t *testing.T) {
	dev := ram.New(flatfat.MinTotalBlocks)
	for i := range dev.Bytes() {
		dev.Bytes()[i] = 0xAB
	}

	_, err := flatfat.Mount(dev)
	assert.ErrorIs(t, err, chainfs.ErrFileSystemCorrupted)
}

func TestMount__DeviceTooSmall(t *testing.T) {
	dev := ram.New(16)
	_, err := flatfat.Mount(dev)
	assert.ErrorIs(t, err, chainfs.ErrDeviceTooSmall)
}

func TestUnmount__OperationsFailAfter(t *testing.T) {
	fsys, _ := testhelp.NewMountedVolume(t)
	require.NoError(t, fsys.Create("doomed"))
	require.NoError(t, fsys.Unmount())

	assert.ErrorIs(t, fsys.Create("more"), chainfs.ErrNotMounted)
	_, err := fsys.Open("doomed")
	assert.ErrorIs(t, err, chainfs.ErrNotMounted)
	assert.ErrorIs(t, fsys.Unmount(), chainfs.ErrNotMounted)
}

func TestUnmount__ClosesDescriptors(t *testing.T) {
	fsys, _ := testhelp.NewMountedVolume(t)
	require.NoError(t, fsys.Create("held"))

	fd, err := fsys.Open("held")
	require.NoError(t, err)
	require.NoError(t, fsys.Unmount())

	_, err = fsys.Read(fd, make([]byte, 1))
	assert.ErrorIs(t, err, chainfs.ErrNotMounted)
}

// Unmounting and remounting preserves the set of files, their sizes, and
// their contents exactly. The descriptor table does not survive.
func TestRemount__PreservesEverything(t *testing.T) {
	fsys, dev := testhelp.NewMountedVolume(t)

	payload := []byte("persistent data, straddling nothing")
	require.NoError(t, fsys.Create("keep.dat"))
	fd, err := fsys.Open("keep.dat")
	require.NoError(t, err)
	n, err := fsys.Write(fd, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	require.NoError(t, fsys.Create("empty.dat"))
	require.NoError(t, fsys.Unmount())

	// The image bytes are all that carries over.
	reopened, err := ram.FromBytes(dev.Bytes())
	require.NoError(t, err)
	fsys, err = flatfat.Mount(reopened)
	require.NoError(t, err)

	names, err := fsys.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"keep.dat", "empty.dat"}, names)

	fd, err = fsys.Open("keep.dat")
	require.NoError(t, err)

	size, err := fsys.FileSize(fd)
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), size)

	readBack := make([]byte, len(payload))
	n, err = fsys.Read(fd, readBack)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, readBack)

	testhelp.RequireConsistent(t, fsys)
	require.NoError(t, fsys.Unmount())
}

func TestMount__SurplusBlocksIgnored(t *testing.T) {
	dev := testhelp.NewFormattedDevice(t, flatfat.MinTotalBlocks+500)

	fsys, err := flatfat.Mount(dev)
	require.NoError(t, err)

	stat, err := fsys.FSStat()
	require.NoError(t, err)
	assert.EqualValues(t, flatfat.DataBlocks, stat.TotalBlocks,
		"data region size is fixed regardless of device size")
	require.NoError(t, fsys.Unmount())
}

func TestMount__DeviceAlreadyMounted(t *testing.T) {
	dev := testhelp.NewFormattedDevice(t, flatfat.MinTotalBlocks)

	fsys, err := flatfat.Mount(dev)
	require.NoError(t, err)

	_, err = flatfat.Mount(dev)
	assert.ErrorIs(t, err, chainfs.ErrAlreadyInProgress)

	require.NoError(t, fsys.Unmount())
}

// The full lifecycle against a real image file: create the disk, format it,
// write a file, unmount, then reopen the image from the path and read the
// data back.
func TestLifecycle__FileBackedImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "volume.img")

	dev, err := blockfile.Create(path, flatfat.MinTotalBlocks)
	require.NoError(t, err)
	require.NoError(t, flatfat.Format(dev))

	fsys, err := flatfat.Mount(dev)
	require.NoError(t, err)
	require.NoError(t, fsys.Create("boot.cfg"))

	fd, err := fsys.Open("boot.cfg")
	require.NoError(t, err)
	payload := []byte("timeout=5\ndefault=flatfat\n")
	n, err := fsys.Write(fd, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	// Unmount flushes the metadata and closes the image file.
	require.NoError(t, fsys.Unmount())

	dev, err = blockfile.Open(path)
	require.NoError(t, err)
	fsys, err = flatfat.Mount(dev)
	require.NoError(t, err)

	fd, err = fsys.Open("boot.cfg")
	require.NoError(t, err)
	readBack := make([]byte, len(payload))
	n, err = fsys.Read(fd, readBack)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	assert.Equal(t, payload, readBack)

	testhelp.RequireConsistent(t, fsys)
	require.NoError(t, fsys.Unmount())
}

func TestFormat__MountedDeviceRefused(t *testing.T) {
	fsys, dev := testhelp.NewMountedVolume(t)

	assert.ErrorIs(t, flatfat.Format(dev), chainfs.ErrBusy)
	require.NoError(t, fsys.Unmount())
}
