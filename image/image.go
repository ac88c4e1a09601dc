package image

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rstms/fatnav"
	"github.com/rstms/fatnav/fat"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const MB = 1024 * 1024

type FileRecord struct {
	Name      string
	ShortName string
	Dir       bool
	Hidden    bool
	System    bool
	ReadOnly  bool
	Cluster   uint32
	Size      uint32
	ModTime   time.Time
}

type Image struct {
	Filename string
	afs      afero.Fs
	file     afero.File
	disk     *fatnav.FileDisk
	fs       *fat.FileSystem
}

// OpenImage opens an existing FAT32 image for reading and writing.
func OpenImage(afs afero.Fs, filename string) (*Image, error) {
	i := Image{Filename: filename, afs: afs}
	var err error
	i.file, err = afs.OpenFile(filename, os.O_RDWR, 0600)
	if err != nil {
		return nil, Fatal(err)
	}
	i.disk, err = fatnav.NewFileDisk(i.file)
	if err != nil {
		i.Close()
		return nil, Fatal(err)
	}
	i.fs, err = fat.New(i.disk)
	if err != nil {
		i.Close()
		return nil, Fatal(err)
	}
	log.Debugf("opened image %s", filename)
	return &i, nil
}

// CreateImage creates filename with size bytes and formats it as one
// FAT32 volume.
func CreateImage(afs afero.Fs, filename string, config *fat.SuperFloppyConfig, size int64) (*Image, error) {
	i := Image{Filename: filename, afs: afs}
	var err error
	err = i.createImageFile(size)
	if err != nil {
		return nil, Fatal(err)
	}
	i.disk, err = fatnav.NewFileDisk(i.file)
	if err != nil {
		i.Close()
		return nil, Fatal(err)
	}
	err = fat.FormatSuperFloppy(i.disk, config)
	if err != nil {
		i.Close()
		return nil, Fatal(err)
	}
	i.fs, err = fat.New(i.disk)
	if err != nil {
		i.Close()
		return nil, Fatal(err)
	}
	log.Debugf("created image %s of %d bytes", filename, size)
	return &i, nil
}

func (i *Image) closeFile() error {
	if i.file != nil {
		err := i.file.Close()
		if err != nil {
			return Fatal(err)
		}
		i.file = nil
	}
	return nil
}

func (i *Image) closeDisk() error {
	if i.disk != nil {
		err := i.disk.Close()
		if err != nil {
			return Fatal(err)
		}
		i.disk = nil
	}
	return nil
}

func (i *Image) Close() error {
	diskErr := i.closeDisk()
	fileErr := i.closeFile()
	i.fs = nil
	if diskErr != nil {
		return diskErr
	}
	return fileErr
}

// FileSystem returns the open volume.
func (i *Image) FileSystem() *fat.FileSystem {
	return i.fs
}

// Name returns the base name of the image file.
func (i *Image) Name() string {
	return filepath.Base(i.Filename)
}

func (i *Image) Info() (map[string]any, error) {
	info, err := i.fs.Info()
	if err != nil {
		return nil, Fatal(err)
	}
	info["image"] = i.Filename
	return info, nil
}

func (i *Image) VolumeLabel() (string, error) {
	return i.fs.VolumeLabel()
}

func (i *Image) OEMName() (string, error) {
	return i.fs.OEMName()
}

func (i *Image) ScanFiles() ([]FileRecord, error) {

	ret := []FileRecord{}

	imgRoot, err := i.fs.RootDir()
	if err != nil {
		return ret, Fatal(err)
	}

	records, err := walk("/", imgRoot)
	if err != nil {
		return ret, Fatal(err)
	}

	return records, nil
}

func splitPath(name string) []string {
	name = strings.Trim(filepath.ToSlash(name), "/")
	if name == "" {
		return nil
	}
	return strings.Split(name, "/")
}

// searchDir returns the directory at path name, or nil if some
// component is missing or not a directory.
func (i *Image) searchDir(name string) (fatnav.Directory, error) {
	dir, err := i.fs.RootDir()
	if err != nil {
		return nil, Fatal(err)
	}
	for _, sub := range splitPath(name) {
		entry, err := dir.Entry(sub)
		switch {
		case errors.Is(err, fatnav.ErrNotFound):
			log.Debugf("searchDir %s: %s not found", name, sub)
			return nil, nil
		case err != nil:
			return nil, Fatal(err)
		case !entry.IsDir():
			log.Debugf("searchDir %s: %s is not a directory", name, sub)
			return nil, nil
		}
		dir, err = entry.Dir()
		if err != nil {
			return nil, Fatal(err)
		}
	}
	return dir, nil
}

func (i *Image) getDir(name string) (fatnav.Directory, error) {
	dir, err := i.searchDir(name)
	if err != nil {
		return nil, Fatal(err)
	}
	if dir == nil {
		return nil, Fatalf("%w: directory %s", fatnav.ErrNotFound, name)
	}
	return dir, nil
}

func (i *Image) IsDir(name string) (bool, error) {
	dir, err := i.searchDir(name)
	if err != nil {
		return false, Fatal(err)
	}
	return dir != nil, nil
}

// ReadDir returns the entries of the directory name, "." and ".."
// first.
func (i *Image) ReadDir(name string) ([]fat.Entry, error) {
	dir, err := i.getDir(name)
	if err != nil {
		return nil, Fatal(err)
	}
	entries, err := i.fs.ListEntries(dir.Cluster())
	if err != nil {
		return nil, Fatal(err)
	}
	return entries, nil
}

// Mkdir creates the directory pathname; its parent must exist.
func (i *Image) Mkdir(pathname string) error {
	parts := splitPath(pathname)
	if len(parts) == 0 {
		return Fatalf("%w: /", fatnav.ErrAlreadyExists)
	}
	parent, err := i.getDir(strings.Join(parts[:len(parts)-1], "/"))
	if err != nil {
		return Fatal(err)
	}
	_, err = parent.AddDirectory(parts[len(parts)-1])
	if err != nil {
		return Fatal(err)
	}
	return nil
}

func (i *Image) lookup(filename string) (*fat.Directory, string, error) {
	parts := splitPath(filename)
	if len(parts) == 0 {
		return nil, "", Fatalf("%w: /", fatnav.ErrNotFound)
	}
	dir, err := i.getDir(strings.Join(parts[:len(parts)-1], "/"))
	if err != nil {
		return nil, "", Fatal(err)
	}
	return dir.(*fat.Directory), parts[len(parts)-1], nil
}

func (i *Image) SetAttr(filename string, attr fatnav.DirectoryAttr, state bool) error {
	dir, name, err := i.lookup(filename)
	if err != nil {
		return Fatal(err)
	}
	err = dir.SetAttr(name, attr, state)
	if err != nil {
		return Fatal(err)
	}
	return nil
}

func (i *Image) GetAttr(filename string) (fatnav.DirectoryAttr, error) {
	dir, name, err := i.lookup(filename)
	if err != nil {
		return 0, Fatal(err)
	}
	entry, err := dir.Entry(name)
	if err != nil {
		return 0, Fatal(err)
	}
	return entry.Attr(), nil
}

// create, truncate, and reopen the output file
func (i *Image) createImageFile(size int64) error {
	if size%int64(1024) != 0 {
		size = (size/int64(1024) + 1) * int64(1024)
	}
	var err error
	i.file, err = i.afs.OpenFile(i.Filename, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0600)
	if err != nil {
		return Fatal(err)
	}
	err = i.file.Truncate(size)
	if err != nil {
		i.closeFile()
		return Fatal(err)
	}
	return nil
}

func walk(dirPath string, dir fatnav.Directory) ([]FileRecord, error) {
	records := []FileRecord{}
	entries, err := dir.Entries()
	if err != nil {
		return []FileRecord{}, Fatal(err)
	}
	for _, entry := range entries {
		switch {
		case entry.Name() == ".":
		case entry.Name() == "..":
		case entry.IsVolumeId():
		default:
			attr := entry.Attr()
			record := FileRecord{
				Name:      path.Join(dirPath, entry.Name()),
				ShortName: entry.ShortName(),
				Dir:       attr&fatnav.AttrDirectory == fatnav.AttrDirectory,
				Hidden:    attr&fatnav.AttrHidden == fatnav.AttrHidden,
				System:    attr&fatnav.AttrSystem == fatnav.AttrSystem,
				ReadOnly:  attr&fatnav.AttrReadOnly == fatnav.AttrReadOnly,
				Cluster:   entry.Cluster(),
				Size:      entry.Size(),
			}
			if e, ok := entry.(*fat.DirectoryEntry); ok {
				record.ModTime = e.ModTime()
			}
			records = append(records, record)
			if entry.IsDir() {
				subdir, err := entry.Dir()
				if err != nil {
					return []FileRecord{}, Fatal(err)
				}
				subRecords, err := walk(path.Join(dirPath, entry.Name()), subdir)
				if err != nil {
					return []FileRecord{}, Fatal(err)
				}
				records = append(records, subRecords...)
			}
		}
	}
	return records, nil
}

// Import recreates the directory tree below root in src on the image.
// Files are skipped, the image holds directories only.
func (i *Image) Import(src afero.Fs, root string) error {
	err := afero.Walk(src, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return Fatal(err)
		}
		if p == root {
			return nil
		}
		dst, err := filepath.Rel(root, p)
		if err != nil {
			return Fatal(err)
		}
		if !info.IsDir() {
			log.Warnf("import: skipping file %s", dst)
			return nil
		}
		log.Debugf("import: mkdir %s", dst)
		err = i.Mkdir(dst)
		if err != nil {
			return Fatal(err)
		}
		return nil
	})
	if err != nil {
		return Fatal(err)
	}
	return nil
}
