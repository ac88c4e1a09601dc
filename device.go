package fatnav

import (
	"github.com/spf13/afero"
)

// BlockDevice is the image a FAT volume lives on. All access is
// positioned; implementations need not support concurrent use.
//
// Generated mock using mockgen:
//
//	mockgen -source=device.go -destination=device_mock.go -package fatnav
type BlockDevice interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	// Size returns the size of the image in bytes.
	Size() int64
	Close() error
}

// FileDisk is a BlockDevice backed by an open afero.File, which may
// live on the OS filesystem or in memory.
type FileDisk struct {
	file afero.File
	size int64
}

// ensure FileDisk implements BlockDevice
var _ BlockDevice = (*FileDisk)(nil)

// NewFileDisk wraps file. The size of the device is the size of the
// file at the time of the call.
func NewFileDisk(file afero.File) (*FileDisk, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, Fatal(err)
	}
	if info.IsDir() {
		return nil, Fatalf("%s: is a directory", file.Name())
	}
	return &FileDisk{file: file, size: info.Size()}, nil
}

func (d *FileDisk) ReadAt(p []byte, off int64) (int, error) {
	return d.file.ReadAt(p, off)
}

func (d *FileDisk) WriteAt(p []byte, off int64) (int, error) {
	return d.file.WriteAt(p, off)
}

func (d *FileDisk) Size() int64 {
	return d.size
}

// Sync flushes the underlying file.
func (d *FileDisk) Sync() error {
	err := d.file.Sync()
	if err != nil {
		return Fatal(err)
	}
	return nil
}

// Close syncs the device; the file itself is owned by the caller.
func (d *FileDisk) Close() error {
	return d.Sync()
}
