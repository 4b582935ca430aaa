package flatfat

import (
	"fmt"
	"io"

	"github.com/dargueta/chainfs"
)

// File wraps a descriptor in the standard library's I/O interfaces so a
// flatfat file can be handed to anything expecting an [io.ReadWriteSeeker].
type File struct {
	fsys   *FileSystem
	fd     int
	name   string
	closed bool
}

var _ io.ReadWriteSeeker = (*File)(nil)
var _ io.Closer = (*File)(nil)

// OpenFile opens the named file and returns it wrapped in a [File]. The
// underlying descriptor is released by Close.
func (fsys *FileSystem) OpenFile(name string) (*File, error) {
	fd, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	return &File{fsys: fsys, fd: fd, name: name}, nil
}

// Name returns the name the file was opened with.
func (file *File) Name() string {
	return file.name
}

// Read implements [io.Reader]. At end of file it returns 0, io.EOF.
func (file *File) Read(p []byte) (int, error) {
	if file.closed {
		return 0, chainfs.ErrInvalidFileDescriptor.WithMessage("file is closed")
	}

	n, err := file.fsys.Read(file.fd, p)
	if err != nil {
		return n, err
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write implements [io.Writer]. Unlike the descriptor-level Write, a short
// count is reported as an error, as the interface requires.
func (file *File) Write(p []byte) (int, error) {
	if file.closed {
		return 0, chainfs.ErrInvalidFileDescriptor.WithMessage("file is closed")
	}

	n, err := file.fsys.Write(file.fd, p)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, chainfs.ErrNoSpaceOnDevice.WithMessage(
			fmt.Sprintf("short write: %d of %d bytes", n, len(p)))
	}
	return n, nil
}

// Seek implements [io.Seeker]. The file system doesn't support holes, so
// the resulting offset must land within [0, size].
func (file *File) Seek(offset int64, whence int) (int64, error) {
	if file.closed {
		return 0, chainfs.ErrInvalidFileDescriptor.WithMessage("file is closed")
	}

	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		current, err := file.fsys.offsetOf(file.fd)
		if err != nil {
			return 0, err
		}
		base = current
	case io.SeekEnd:
		size, err := file.fsys.FileSize(file.fd)
		if err != nil {
			return 0, err
		}
		base = size
	default:
		return 0, chainfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("unknown whence value %d", whence))
	}

	target := base + offset
	if err := file.fsys.Seek(file.fd, target); err != nil {
		return 0, err
	}
	return target, nil
}

// Close releases the underlying descriptor. Closing twice is an error.
func (file *File) Close() error {
	if file.closed {
		return chainfs.ErrInvalidFileDescriptor.WithMessage("file is closed")
	}
	file.closed = true
	return file.fsys.Close(file.fd)
}
