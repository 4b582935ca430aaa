package flatfat_test

import (
	"io"
	"testing"

	"github.com/dargueta/chainfs"
	testhelp "github.com/dargueta/chainfs/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile__ReadWriteSeek(t *testing.T) {
	fsys, _ := testhelp.NewMountedVolume(t)
	defer fsys.Unmount()

	require.NoError(t, fsys.Create("notes.txt"))

	file, err := fsys.OpenFile("notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", file.Name())

	n, err := file.Write([]byte("line one\nline two\n"))
	require.NoError(t, err)
	require.Equal(t, 18, n)

	pos, err := file.Seek(0, io.SeekStart)
	require.NoError(t, err)
	require.EqualValues(t, 0, pos)

	contents, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(contents))

	// Relative and end-anchored seeks.
	pos, err = file.Seek(-9, io.SeekEnd)
	require.NoError(t, err)
	assert.EqualValues(t, 9, pos)

	tail := make([]byte, 9)
	_, err = io.ReadFull(file, tail)
	require.NoError(t, err)
	assert.Equal(t, "line two\n", string(tail))

	pos, err = file.Seek(-4, io.SeekCurrent)
	require.NoError(t, err)
	assert.EqualValues(t, 14, pos)

	require.NoError(t, file.Close())
}

func TestFile__ReadAtEOF(t *testing.T) {
	fsys, _ := testhelp.NewMountedVolume(t)
	defer fsys.Unmount()

	require.NoError(t, fsys.Create("tiny"))
	file, err := fsys.OpenFile("tiny")
	require.NoError(t, err)
	defer file.Close()

	_, err = file.Write([]byte("x"))
	require.NoError(t, err)

	_, err = file.Read(make([]byte, 4))
	assert.ErrorIs(t, err, io.EOF)
}

func TestFile__SeekOutOfBounds(t *testing.T) {
	fsys, _ := testhelp.NewMountedVolume(t)
	defer fsys.Unmount()

	require.NoError(t, fsys.Create("fixed"))
	file, err := fsys.OpenFile("fixed")
	require.NoError(t, err)
	defer file.Close()

	_, err = file.Write([]byte("abc"))
	require.NoError(t, err)

	// No holes: seeking past the end is refused even with SeekEnd.
	_, err = file.Seek(1, io.SeekEnd)
	assert.ErrorIs(t, err, chainfs.ErrArgumentOutOfRange)

	_, err = file.Seek(-4, io.SeekEnd)
	assert.ErrorIs(t, err, chainfs.ErrArgumentOutOfRange)
}

func TestFile__UseAfterClose(t *testing.T) {
	fsys, _ := testhelp.NewMountedVolume(t)
	defer fsys.Unmount()

	require.NoError(t, fsys.Create("gone"))
	file, err := fsys.OpenFile("gone")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	_, err = file.Read(make([]byte, 1))
	assert.ErrorIs(t, err, chainfs.ErrInvalidFileDescriptor)
	_, err = file.Write([]byte("y"))
	assert.ErrorIs(t, err, chainfs.ErrInvalidFileDescriptor)
	assert.ErrorIs(t, file.Close(), chainfs.ErrInvalidFileDescriptor)
}

func TestFile__CopyBetweenFiles(t *testing.T) {
	fsys, _ := testhelp.NewMountedVolume(t)
	defer fsys.Unmount()

	require.NoError(t, fsys.Create("src"))
	require.NoError(t, fsys.Create("dst"))

	src, err := fsys.OpenFile("src")
	require.NoError(t, err)
	payload := alternatingPattern(10000)
	_, err = src.Write(payload)
	require.NoError(t, err)
	_, err = src.Seek(0, io.SeekStart)
	require.NoError(t, err)

	dst, err := fsys.OpenFile("dst")
	require.NoError(t, err)

	copied, err := io.Copy(dst, src)
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), copied)

	_, err = dst.Seek(0, io.SeekStart)
	require.NoError(t, err)
	readBack, err := io.ReadAll(dst)
	require.NoError(t, err)
	assert.Equal(t, payload, readBack)

	require.NoError(t, src.Close())
	require.NoError(t, dst.Close())
	testhelp.RequireConsistent(t, fsys)
}
