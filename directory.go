package fatnav

import "strings"

type DirectoryAttr uint8

const (
	AttrReadOnly  DirectoryAttr = 0x01
	AttrHidden    DirectoryAttr = 0x02
	AttrSystem    DirectoryAttr = 0x04
	AttrVolumeId  DirectoryAttr = 0x08
	AttrDirectory DirectoryAttr = 0x10
	AttrArchive   DirectoryAttr = 0x20
	AttrLongName                = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeId
)

// String renders the attribute bits in the "drhsva" order used by
// directory listings, with '-' for unset bits.
func (a DirectoryAttr) String() string {
	var b strings.Builder
	flags := []struct {
		attr DirectoryAttr
		char byte
	}{
		{AttrDirectory, 'd'},
		{AttrReadOnly, 'r'},
		{AttrHidden, 'h'},
		{AttrSystem, 's'},
		{AttrVolumeId, 'v'},
		{AttrArchive, 'a'},
	}
	for _, f := range flags {
		if a&f.attr == f.attr {
			b.WriteByte(f.char)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Directory is a directory on a FAT volume. Its content is the whole
// cluster chain starting at Cluster.
type Directory interface {
	Cluster() uint32
	// Entry returns the entry named name, which may be "." or "..".
	Entry(name string) (DirectoryEntry, error)
	Entries() ([]DirectoryEntry, error)
	AddDirectory(name string) (DirectoryEntry, error)
}

// DirectoryEntry represents a single entry within a directory,
// which can be either another Directory or a file.
type DirectoryEntry interface {
	Name() string
	ShortName() string
	IsDir() bool
	Dir() (Directory, error)
	IsVolumeId() bool
	Attr() DirectoryAttr
	Cluster() uint32
	Size() uint32
}
