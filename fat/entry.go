package fat

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/elliotwutingfeng/asciiset"
	"github.com/rstms/fatnav"
	"golang.org/x/text/encoding/charmap"
)

// DirEntrySize is the size of an on-disk directory entry.
const DirEntrySize = 32

// Directory entry field offsets.
const (
	deName         = 0
	deAttr         = 11
	deNTRes        = 12
	deCrtTimeTenth = 13
	deCrtTime      = 14
	deCrtDate      = 16
	deLstAccDate   = 18
	deFstClusHI    = 20
	deWrtTime      = 22
	deWrtDate      = 24
	deFstClusLO    = 26
	deFileSize     = 28
)

const (
	slotEndMarker     = 0x00
	slotDeletedMarker = 0xE5
	// a leading 0xE5 of a live name is stored as 0x05
	slotEscapedE5 = 0x05
)

var shortNameCharacters, _ = asciiset.MakeASCIISet("!#$%&'()-0123456789@ABCDEFGHIJKLMNOPQRSTUVWXYZ^_`{}~")

var (
	dotName    = [11]byte{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	dotDotName = [11]byte{'.', '.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
)

// SlotState is the state of a directory slot, decided from its first
// byte alone.
type SlotState int

const (
	SlotEnd SlotState = iota
	SlotDeleted
	SlotOccupied
)

func (s SlotState) String() string {
	switch s {
	case SlotEnd:
		return "end"
	case SlotDeleted:
		return "deleted"
	case SlotOccupied:
		return "occupied"
	}
	return "unknown"
}

func slotState(b []byte) SlotState {
	switch b[deName] {
	case slotEndMarker:
		return SlotEnd
	case slotDeletedMarker:
		return SlotDeleted
	}
	return SlotOccupied
}

// Entry is a decoded 8.3 directory entry. Name holds the 11 name
// bytes as they are meant, so a name starting with 0xE5 has 0xE5
// here and 0x05 on disk.
type Entry struct {
	Name        [11]byte
	Attr        fatnav.DirectoryAttr
	NTRes       uint8
	CreateTenth uint8
	CreateTime  uint16
	CreateDate  uint16
	AccessDate  uint16
	WriteTime   uint16
	WriteDate   uint16
	Cluster     uint32
	Size        uint32
}

// DecodeEntry decodes the 32 byte slot b. Fields other than the slot
// state are only interpreted for occupied slots.
func DecodeEntry(b []byte) (SlotState, Entry, error) {
	var e Entry
	if len(b) < DirEntrySize {
		return SlotEnd, e, Fatalf("%w: directory entry of %d bytes", fatnav.ErrCorruptImage, len(b))
	}
	state := slotState(b)
	if state != SlotOccupied {
		return state, e, nil
	}
	copy(e.Name[:], b[deName:deName+11])
	if e.Name[0] == slotEscapedE5 {
		e.Name[0] = slotDeletedMarker
	}
	e.Attr = fatnav.DirectoryAttr(b[deAttr])
	e.NTRes = b[deNTRes]
	e.CreateTenth = b[deCrtTimeTenth]
	e.CreateTime = binary.LittleEndian.Uint16(b[deCrtTime:])
	e.CreateDate = binary.LittleEndian.Uint16(b[deCrtDate:])
	e.AccessDate = binary.LittleEndian.Uint16(b[deLstAccDate:])
	e.WriteTime = binary.LittleEndian.Uint16(b[deWrtTime:])
	e.WriteDate = binary.LittleEndian.Uint16(b[deWrtDate:])
	e.Cluster = uint32(binary.LittleEndian.Uint16(b[deFstClusHI:]))<<16 | uint32(binary.LittleEndian.Uint16(b[deFstClusLO:]))
	e.Size = binary.LittleEndian.Uint32(b[deFileSize:])
	if e.Cluster&^clusterMask != 0 && !e.IsLongName() {
		return state, e, Fatalf("%w: entry %q has cluster 0x%08x", fatnav.ErrCorruptImage, e.String(), e.Cluster)
	}
	return state, e, nil
}

// Encode returns the 32 byte on-disk form of e with the name
// uppercased. It fails with ErrInvalidName if the name is not a valid
// 8.3 name.
func (e Entry) Encode() ([]byte, error) {
	name := e.Name
	for i, c := range name {
		if c >= 'a' && c <= 'z' {
			name[i] = c - 'a' + 'A'
		}
	}
	if err := validateShortName(name, e.IsVolumeLabel()); err != nil {
		return nil, err
	}
	if e.Cluster&^clusterMask != 0 {
		return nil, Fatalf("%w: cluster 0x%08x for %q", fatnav.ErrOutOfRange, e.Cluster, ShortNameString(name))
	}
	if name[0] == slotDeletedMarker {
		name[0] = slotEscapedE5
	}

	b := make([]byte, DirEntrySize)
	copy(b[deName:], name[:])
	b[deAttr] = byte(e.Attr)
	b[deNTRes] = e.NTRes
	b[deCrtTimeTenth] = e.CreateTenth
	binary.LittleEndian.PutUint16(b[deCrtTime:], e.CreateTime)
	binary.LittleEndian.PutUint16(b[deCrtDate:], e.CreateDate)
	binary.LittleEndian.PutUint16(b[deLstAccDate:], e.AccessDate)
	binary.LittleEndian.PutUint16(b[deFstClusHI:], uint16(e.Cluster>>16))
	binary.LittleEndian.PutUint16(b[deWrtTime:], e.WriteTime)
	binary.LittleEndian.PutUint16(b[deWrtDate:], e.WriteDate)
	binary.LittleEndian.PutUint16(b[deFstClusLO:], uint16(e.Cluster))
	binary.LittleEndian.PutUint32(b[deFileSize:], e.Size)
	return b, nil
}

func validShortNameByte(c byte) bool {
	return c >= 0x80 || shortNameCharacters.Contains(c)
}

// validateShortName checks an uppercased 11 byte name: a non-empty
// base and an optional extension, each left aligned and space padded.
// Volume labels may contain spaces anywhere.
func validateShortName(name [11]byte, label bool) error {
	if name == dotName || name == dotDotName {
		return nil
	}
	if name[0] == ' ' || name[0] == slotEndMarker {
		return Fatalf("%w: empty name", fatnav.ErrInvalidName)
	}
	for _, part := range [][]byte{name[:8], name[8:]} {
		padded := false
		for _, c := range part {
			switch {
			case c == ' ':
				padded = true
			case label && c >= 0x20:
			case padded:
				return Fatalf("%w: %q has embedded space", fatnav.ErrInvalidName, string(name[:]))
			case !validShortNameByte(c):
				return Fatalf("%w: %q has character 0x%02x", fatnav.ErrInvalidName, string(name[:]), c)
			}
		}
	}
	return nil
}

// FormatShortName converts a user supplied name to its 11 byte space
// padded 8.3 form.
func FormatShortName(raw string) ([11]byte, error) {
	switch raw {
	case ".":
		return dotName, nil
	case "..":
		return dotDotName, nil
	}
	var name [11]byte
	for i := range name {
		name[i] = ' '
	}
	base, ext, hasDot := strings.Cut(upperASCII(raw), ".")
	if len(base) < 1 || len(base) > 8 {
		return name, Fatalf("%w: %q: name must be 1 to 8 characters", fatnav.ErrInvalidName, raw)
	}
	if hasDot && (len(ext) < 1 || len(ext) > 3) {
		return name, Fatalf("%w: %q: extension must be 1 to 3 characters", fatnav.ErrInvalidName, raw)
	}
	for _, s := range []string{base, ext} {
		for i := 0; i < len(s); i++ {
			if !shortNameCharacters.Contains(s[i]) {
				return name, Fatalf("%w: %q: invalid character %q", fatnav.ErrInvalidName, raw, s[i])
			}
		}
	}
	copy(name[:8], base)
	copy(name[8:], ext)
	return name, nil
}

// upperASCII uppercases a to z only; other bytes, including those of
// multi-byte characters, are left for the character check to reject.
func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

// ShortNameString renders an 11 byte name as BASE or BASE.EXT.
// Bytes above 0x7f are decoded with code page 437.
func ShortNameString(name [11]byte) string {
	if name == dotName {
		return "."
	}
	if name == dotDotName {
		return ".."
	}
	base := strings.TrimRight(decodeOEM(name[:8]), " ")
	ext := strings.TrimRight(decodeOEM(name[8:]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

func decodeOEM(b []byte) string {
	s, err := charmap.CodePage437.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

// NewDirectoryEntry returns a directory entry for name pointing at
// cluster with all timestamps set to t.
func NewDirectoryEntry(name [11]byte, cluster uint32, t time.Time) Entry {
	e := Entry{
		Name:    name,
		Attr:    fatnav.AttrDirectory,
		Cluster: cluster,
	}
	e.SetTimes(t)
	return e
}

// SetTimes sets the creation, write and access stamps of e.
func (e *Entry) SetTimes(t time.Time) {
	date, clock, tenth := dosDateTime(t)
	e.CreateDate, e.CreateTime, e.CreateTenth = date, clock, tenth
	e.WriteDate, e.WriteTime = date, clock
	e.AccessDate = date
}

// ModTime returns the last write time of e, or the zero time if it
// was never set.
func (e Entry) ModTime() time.Time {
	return dosTime(e.WriteDate, e.WriteTime, 0)
}

// CreateTimestamp returns the creation time of e.
func (e Entry) CreateTimestamp() time.Time {
	return dosTime(e.CreateDate, e.CreateTime, e.CreateTenth)
}

func (e Entry) String() string {
	return ShortNameString(e.Name)
}

func (e Entry) IsDir() bool {
	return e.Attr&fatnav.AttrDirectory == fatnav.AttrDirectory && !e.IsLongName()
}

// IsVolumeLabel reports whether e is the volume label entry.
func (e Entry) IsVolumeLabel() bool {
	return e.Attr&fatnav.AttrVolumeId == fatnav.AttrVolumeId && !e.IsLongName()
}

// IsLongName reports whether e is a long file name fragment.
func (e Entry) IsLongName() bool {
	return e.Attr&fatnav.AttrLongName == fatnav.AttrLongName
}

// IsDot reports whether e is one of the "." and ".." entries.
func (e Entry) IsDot() bool {
	return e.Name == dotName || e.Name == dotDotName
}
