package storage

import (
	"io"
	"os"
	"path/filepath"
)

// File is an *os.File addressed purely by offset. Every failure comes back
// as an *IOError naming the file.
type File struct {
	f    *os.File
	path string
}

// OpenFile opens path for reading and writing, creating it (and its
// directory) if missing. created reports whether the file was empty.
func OpenFile(path string) (file *File, created bool, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, false, WrapIO("mkdir", path, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, false, WrapIO("open", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, false, WrapIO("stat", path, err)
	}
	return &File{f: f, path: path}, info.Size() == 0, nil
}

// Path returns the file name.
func (f *File) Path() string { return f.path }

// ReadAt fills buf from off. A short read is an error.
func (f *File) ReadAt(buf []byte, off int64) error {
	n, err := f.f.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return WrapIO("read", f.path, err)
}

// WriteAt writes all of buf at off.
func (f *File) WriteAt(buf []byte, off int64) error {
	_, err := f.f.WriteAt(buf, off)
	return WrapIO("write", f.path, err)
}

// Size returns the current length of the file.
func (f *File) Size() (int64, error) {
	info, err := f.f.Stat()
	if err != nil {
		return 0, WrapIO("stat", f.path, err)
	}
	return info.Size(), nil
}

// Sync flushes the file to stable storage.
func (f *File) Sync() error {
	return WrapIO("sync", f.path, f.f.Sync())
}

// Close closes the underlying file.
func (f *File) Close() error {
	return WrapIO("close", f.path, f.f.Close())
}

// Truncate sets the file length, zero-filling when it grows.
func (f *File) Truncate(size int64) error {
	return WrapIO("truncate", f.path, f.f.Truncate(size))
}
