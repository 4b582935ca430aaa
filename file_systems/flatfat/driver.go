// Package flatfat implements a minimal FAT-style file system with a flat
// namespace over a fixed-size block device. The first MetaBlocks blocks of
// the device hold the allocation table and directory; everything after is
// file data, chained one block at a time through the allocation table.
//
// Metadata lives in memory between Mount and Unmount and is written back
// only on Unmount. File data is written through immediately.
package flatfat

import (
	"fmt"
	"sync"

	"github.com/dargueta/chainfs"
	c "github.com/dargueta/chainfs/file_systems/common"
	"github.com/dargueta/chainfs/file_systems/common/blockcache"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// FileSystem is a mounted volume. All methods are safe for concurrent use;
// a single mutex serializes every operation, which matches the semantics of
// the format (there is no finer-grained consistency to exploit).
//
// A FileSystem is created by Mount and consumed by Unmount. Methods called
// after Unmount fail with [chainfs.ErrNotMounted].
type FileSystem struct {
	mu        sync.Mutex
	device    chainfs.BlockDevice
	metadata  *blockcache.BlockCache
	fat       allocationTable
	directory directory
	fds       fdTable
	isMounted bool
}

// newMetadataCache builds the write-back cache sitting over the metadata
// region of `dev`.
func newMetadataCache(dev chainfs.BlockDevice) *blockcache.BlockCache {
	fetchCb := func(index c.LogicalBlock, buffer []byte) error {
		return dev.ReadBlock(c.PhysicalBlock(index), buffer)
	}
	flushCb := func(index c.LogicalBlock, buffer []byte) error {
		return dev.WriteBlock(c.PhysicalBlock(index), buffer)
	}
	return blockcache.New(BlockSize, MetaBlocks, fetchCb, flushCb)
}

func checkDeviceSize(dev chainfs.BlockDevice) error {
	if dev.TotalBlocks() < MinTotalBlocks {
		return chainfs.ErrDeviceTooSmall.WithMessage(
			fmt.Sprintf(
				"need at least %d blocks, device has %d",
				MinTotalBlocks,
				dev.TotalBlocks(),
			),
		)
	}
	return nil
}

// Format writes a fresh, empty file system to `dev`: every data block free,
// every directory slot unused. The device is left open and unmounted.
func Format(dev chainfs.BlockDevice) error {
	mountRegistry.Lock()
	mounted := mountRegistry.devices[dev]
	mountRegistry.Unlock()
	if mounted {
		return chainfs.ErrBusy.WithMessage(
			"device must be unmounted before it can be formatted")
	}

	if err := checkDeviceSize(dev); err != nil {
		return err
	}

	fat := newAllocationTable()
	dir := newDirectory()

	cache := newMetadataCache(dev)
	if err := writeMetadata(cache, &fat, &dir); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"totalBlocks": dev.TotalBlocks(),
		"dataBlocks":  DataBlocks,
	}).Debug("formatted volume")
	return nil
}

// mountRegistry tracks which devices currently back a mounted FileSystem.
// A device is an exclusive resource: mounting it twice would give two caches
// of the same metadata that silently diverge.
var mountRegistry = struct {
	sync.Mutex
	devices map[chainfs.BlockDevice]bool
}{devices: map[chainfs.BlockDevice]bool{}}

func registerMount(dev chainfs.BlockDevice) error {
	mountRegistry.Lock()
	defer mountRegistry.Unlock()

	if mountRegistry.devices[dev] {
		return chainfs.ErrAlreadyInProgress.WithMessage(
			"device is already mounted")
	}
	mountRegistry.devices[dev] = true
	return nil
}

func unregisterMount(dev chainfs.BlockDevice) {
	mountRegistry.Lock()
	defer mountRegistry.Unlock()
	delete(mountRegistry.devices, dev)
}

// Mount loads the metadata region of `dev` into memory and returns a handle
// for file operations. The descriptor table starts empty. Mounting a device
// that is already mounted fails. Mount does not verify full chain
// consistency; use [FileSystem.Check] for that.
func Mount(dev chainfs.BlockDevice) (*FileSystem, error) {
	if err := registerMount(dev); err != nil {
		return nil, err
	}

	fsys := &FileSystem{
		device:   dev,
		metadata: newMetadataCache(dev),
	}
	if err := fsys.mount(); err != nil {
		unregisterMount(dev)
		return nil, err
	}
	return fsys, nil
}

func (fsys *FileSystem) mount() error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if err := checkDeviceSize(fsys.device); err != nil {
		return err
	}

	fatBytes, err := fsys.metadata.GetSlice(0, FATBlocks)
	if err != nil {
		return chainfs.ErrIOFailed.Wrap(err)
	}
	fat, err := deserializeFAT(fatBytes)
	if err != nil {
		return err
	}

	dirBytes, err := fsys.metadata.GetSlice(DirectoryBlockIndex, 1)
	if err != nil {
		return chainfs.ErrIOFailed.Wrap(err)
	}
	dir, err := deserializeDirectory(dirBytes)
	if err != nil {
		return err
	}

	fsys.fat = fat
	fsys.directory = dir
	fsys.fds.closeAll()
	fsys.isMounted = true

	logrus.WithFields(logrus.Fields{
		"files":      dir.usedCount(),
		"freeBlocks": fat.countFree(),
	}).Debug("mounted volume")
	return nil
}

// writeMetadata serializes the allocation table and directory into the cache
// and flushes every dirty block to the device.
func writeMetadata(
	cache *blockcache.BlockCache,
	fat *allocationTable,
	dir *directory,
) error {
	fatBytes, err := cache.GetSlice(0, FATBlocks)
	if err != nil {
		return chainfs.ErrIOFailed.Wrap(err)
	}
	if err = serializeFAT(fat, fatBytes); err != nil {
		return err
	}
	if err = cache.MarkBlockRangeDirty(0, FATBlocks); err != nil {
		return chainfs.ErrIOFailed.Wrap(err)
	}

	dirBytes, err := cache.GetSlice(DirectoryBlockIndex, 1)
	if err != nil {
		return chainfs.ErrIOFailed.Wrap(err)
	}
	if err = serializeDirectory(dir, dirBytes); err != nil {
		return err
	}
	if err = cache.MarkBlockRangeDirty(DirectoryBlockIndex, 1); err != nil {
		return chainfs.ErrIOFailed.Wrap(err)
	}

	if err = cache.Flush(); err != nil {
		return chainfs.ErrIOFailed.Wrap(err)
	}
	return nil
}

// Unmount closes every open descriptor, writes the metadata back to the
// device, and closes the device. The FileSystem is unusable afterwards even
// if an error is returned; errors from the metadata flush and the device
// close are aggregated.
func (fsys *FileSystem) Unmount() error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if !fsys.isMounted {
		return chainfs.ErrNotMounted
	}

	fsys.fds.closeAll()
	fsys.isMounted = false
	unregisterMount(fsys.device)

	var result *multierror.Error
	if err := writeMetadata(fsys.metadata, &fsys.fat, &fsys.directory); err != nil {
		result = multierror.Append(result, err)
	}
	if err := fsys.device.Close(); err != nil {
		result = multierror.Append(result, chainfs.ErrIOFailed.Wrap(err))
	}

	logrus.Debug("unmounted volume")
	return result.ErrorOrNil()
}

// FSStat reports usage statistics for the mounted volume.
func (fsys *FileSystem) FSStat() (chainfs.FSStat, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if !fsys.isMounted {
		return chainfs.FSStat{}, chainfs.ErrNotMounted
	}

	files := fsys.directory.usedCount()
	return chainfs.FSStat{
		BlockSize:     BlockSize,
		TotalBlocks:   DataBlocks,
		BlocksFree:    uint64(fsys.fat.countFree()),
		Files:         uint64(files),
		FilesFree:     uint64(MaxFiles - files),
		MaxNameLength: MaxFilenameLength - 1,
	}, nil
}

// List returns the names of all files, in directory order.
func (fsys *FileSystem) List() ([]string, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if !fsys.isMounted {
		return nil, chainfs.ErrNotMounted
	}

	var names []string
	for i := range fsys.directory.entries {
		if fsys.directory.entries[i].used {
			names = append(names, fsys.directory.entries[i].Name())
		}
	}
	return names, nil
}
