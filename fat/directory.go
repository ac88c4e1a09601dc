package fat

import (
	"time"

	"github.com/rstms/fatnav"
)

// Directory implements fatnav.Directory and is used to interface with
// a directory on a FAT32 volume.
type Directory struct {
	fs      *FileSystem
	cluster uint32
}

// ensure Directory implements fatnav.Directory
var _ fatnav.Directory = (*Directory)(nil)

// DirectoryEntry implements fatnav.DirectoryEntry and represents a
// single 8.3 entry within a directory.
type DirectoryEntry struct {
	dir   *Directory
	entry Entry
}

// ensure DirectoryEntry implements fatnav.DirectoryEntry
var _ fatnav.DirectoryEntry = (*DirectoryEntry)(nil)

func (d *Directory) Cluster() uint32 {
	return d.cluster
}

func (d *Directory) Entries() ([]fatnav.DirectoryEntry, error) {
	entries, err := d.fs.ListEntries(d.cluster)
	if err != nil {
		return nil, Fatal(err)
	}
	result := make([]fatnav.DirectoryEntry, 0, len(entries))
	for _, e := range entries {
		result = append(result, &DirectoryEntry{dir: d, entry: e})
	}
	return result, nil
}

func (d *Directory) Entry(name string) (fatnav.DirectoryEntry, error) {
	e, err := d.fs.Lookup(d.cluster, name)
	if err != nil {
		return nil, Fatal(err)
	}
	return &DirectoryEntry{dir: d, entry: e}, nil
}

func (d *Directory) AddDirectory(name string) (fatnav.DirectoryEntry, error) {
	_, err := d.fs.CreateSubdirectory(d.cluster, name)
	if err != nil {
		return nil, Fatal(err)
	}
	return d.Entry(name)
}

// SetAttr sets or clears attr on the entry named name.
func (d *Directory) SetAttr(name string, attr fatnav.DirectoryAttr, state bool) error {
	err := d.fs.SetAttr(d.cluster, name, attr, state)
	if err != nil {
		return Fatal(err)
	}
	return nil
}

func (d *DirectoryEntry) Dir() (fatnav.Directory, error) {
	if !d.IsDir() {
		return nil, Fatalf("%w: %s", fatnav.ErrNotADirectory, d.Name())
	}
	dir, err := d.dir.fs.Dir(d.entry.Cluster)
	if err != nil {
		return nil, Fatal(err)
	}
	return dir, nil
}

// Entry returns the decoded on-disk entry.
func (d *DirectoryEntry) Entry() Entry {
	return d.entry
}

func (d *DirectoryEntry) IsDir() bool {
	return d.entry.IsDir()
}

func (d *DirectoryEntry) IsVolumeId() bool {
	return d.entry.IsVolumeLabel()
}

func (d *DirectoryEntry) Name() string {
	return d.entry.String()
}

// ShortName returns the space padded 11 character form of the name.
func (d *DirectoryEntry) ShortName() string {
	return decodeOEM(d.entry.Name[:])
}

func (d *DirectoryEntry) Attr() fatnav.DirectoryAttr {
	return d.entry.Attr
}

func (d *DirectoryEntry) Cluster() uint32 {
	return d.entry.Cluster
}

func (d *DirectoryEntry) Size() uint32 {
	return d.entry.Size
}

func (d *DirectoryEntry) ModTime() time.Time {
	return d.entry.ModTime()
}

func (d *DirectoryEntry) IsReadOnly() bool {
	return d.entry.Attr&fatnav.AttrReadOnly == fatnav.AttrReadOnly
}

func (d *DirectoryEntry) IsSystem() bool {
	return d.entry.Attr&fatnav.AttrSystem == fatnav.AttrSystem
}

func (d *DirectoryEntry) IsHidden() bool {
	return d.entry.Attr&fatnav.AttrHidden == fatnav.AttrHidden
}
