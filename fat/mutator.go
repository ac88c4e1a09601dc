package fat

import (
	"time"

	"github.com/rstms/fatnav"
	log "github.com/sirupsen/logrus"
)

// MaxDirectorySlots is the most slots a directory chain may hold.
const MaxDirectorySlots = 65536

// slotRef is a slot together with the cluster it was read from.
type slotRef struct {
	cluster uint32
	index   int
	buf     []byte
	end     bool
}

// Mutator changes directory tables. It is not safe for concurrent use.
type Mutator struct {
	store *ClusterStore
	now   func() time.Time
}

func NewMutator(store *ClusterStore, now func() time.Time) *Mutator {
	if now == nil {
		now = time.Now
	}
	return &Mutator{store: store, now: now}
}

// CreateSubdirectory adds a directory named name to the directory at
// parent and returns the first cluster of the new directory.
func (m *Mutator) CreateSubdirectory(parent uint32, name string) (uint32, error) {
	shortName, err := FormatShortName(name)
	if err != nil {
		return 0, err
	}
	if shortName == dotName || shortName == dotDotName {
		return 0, Fatalf("%w: %s", fatnav.ErrAlreadyExists, name)
	}

	target, tail, slots, err := m.findSlot(parent, shortName, name)
	if err != nil {
		return 0, err
	}
	if target == nil {
		if slots >= MaxDirectorySlots {
			return 0, Fatalf("%w: directory at cluster %d has %d slots", fatnav.ErrNoSpace, parent, slots)
		}
		target, err = m.extend(tail)
		if err != nil {
			return 0, err
		}
	}

	sub, err := m.store.AllocateCluster()
	if err != nil {
		return 0, err
	}
	now := m.now()
	if err := m.initDirectory(sub, parent, now); err != nil {
		return 0, err
	}

	b, err := NewDirectoryEntry(shortName, sub, now).Encode()
	if err != nil {
		return 0, err
	}
	if target.end {
		if err := m.terminate(target); err != nil {
			return 0, err
		}
	}
	copy(target.buf[target.index*DirEntrySize:], b)
	if err := m.store.WriteCluster(target.cluster, target.buf); err != nil {
		return 0, err
	}
	log.Debugf("created directory %s at cluster %d in %d", ShortNameString(shortName), sub, parent)
	return sub, nil
}

// findSlot walks the chain of dir once. It returns the first deleted
// or end-of-table slot, the last cluster of the chain and the number
// of slots seen. A live entry named shortName is ErrAlreadyExists.
func (m *Mutator) findSlot(dir uint32, shortName [11]byte, name string) (*slotRef, uint32, int, error) {
	var (
		target *slotRef
		tail   uint32
		slots  int
	)
	err := m.store.Walk(dir, func(c uint32) (bool, error) {
		b, err := m.store.ReadCluster(c)
		if err != nil {
			return false, err
		}
		tail = c
		for i := 0; i < len(b)/DirEntrySize; i++ {
			slots++
			state, e, err := DecodeEntry(b[i*DirEntrySize : (i+1)*DirEntrySize])
			if err != nil {
				return false, err
			}
			switch state {
			case SlotEnd:
				if target == nil {
					target = &slotRef{cluster: c, index: i, buf: b, end: true}
				}
				return false, nil
			case SlotDeleted:
				if target == nil {
					target = &slotRef{cluster: c, index: i, buf: b}
				}
			case SlotOccupied:
				if e.Name == shortName && !e.IsVolumeLabel() && !e.IsLongName() {
					return false, Fatalf("%w: %s", fatnav.ErrAlreadyExists, name)
				}
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, 0, 0, err
	}
	return target, tail, slots, nil
}

// extend appends a zeroed cluster to the chain ending at tail and
// returns its first slot.
func (m *Mutator) extend(tail uint32) (*slotRef, error) {
	c, err := m.store.AllocateCluster()
	if err != nil {
		return nil, err
	}
	if err := m.store.ZeroCluster(c); err != nil {
		return nil, err
	}
	if err := m.store.LinkChain(tail, c); err != nil {
		return nil, err
	}
	log.Debugf("extended directory chain %d -> %d", tail, c)
	return &slotRef{cluster: c, buf: make([]byte, m.store.Layout().ClusterSize()), end: true}, nil
}

// terminate marks the slot after the end-of-table slot r as the new
// end of the table, unless it already is one or the chain ends.
func (m *Mutator) terminate(r *slotRef) error {
	next := r.index + 1
	if next*DirEntrySize < len(r.buf) {
		if slotState(r.buf[next*DirEntrySize:]) != SlotEnd {
			clear(r.buf[next*DirEntrySize : (next+1)*DirEntrySize])
		}
		return nil
	}
	c, ok, err := m.store.NextCluster(r.cluster)
	if err != nil || !ok {
		return err
	}
	b, err := m.store.ReadCluster(c)
	if err != nil {
		return err
	}
	if slotState(b) == SlotEnd {
		return nil
	}
	clear(b[:DirEntrySize])
	return m.store.WriteCluster(c, b)
}

// initDirectory writes the first cluster of a new directory: "." and
// ".." followed by an empty table. A parent that is the root directory
// is recorded as cluster 0.
func (m *Mutator) initDirectory(c, parent uint32, t time.Time) error {
	if parent == m.store.Layout().RootCluster {
		parent = 0
	}
	b := make([]byte, m.store.Layout().ClusterSize())
	for i, e := range []Entry{NewDirectoryEntry(dotName, c, t), NewDirectoryEntry(dotDotName, parent, t)} {
		eb, err := e.Encode()
		if err != nil {
			return err
		}
		copy(b[i*DirEntrySize:], eb)
	}
	return m.store.WriteCluster(c, b)
}

// SetAttr sets or clears attr on the entry named name in dir. Only the
// read-only, hidden, system and archive bits can be changed.
func (m *Mutator) SetAttr(dir uint32, name string, attr fatnav.DirectoryAttr, set bool) error {
	if attr&^(fatnav.AttrReadOnly|fatnav.AttrHidden|fatnav.AttrSystem|fatnav.AttrArchive) != 0 {
		return Fatalf("unsettable attribute: %s", attr)
	}
	shortName, err := FormatShortName(name)
	if err != nil {
		return Fatalf("%w: %s is not an 8.3 name", fatnav.ErrNotFound, name)
	}
	var (
		target *slotRef
		entry  Entry
	)
	err = m.store.Walk(dir, func(c uint32) (bool, error) {
		b, err := m.store.ReadCluster(c)
		if err != nil {
			return false, err
		}
		for i := 0; i < len(b)/DirEntrySize; i++ {
			state, e, err := DecodeEntry(b[i*DirEntrySize : (i+1)*DirEntrySize])
			if err != nil {
				return false, err
			}
			if state == SlotEnd {
				return false, nil
			}
			if state == SlotOccupied && e.Name == shortName && !e.IsVolumeLabel() && !e.IsLongName() {
				target, entry = &slotRef{cluster: c, index: i, buf: b}, e
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if target == nil || entry.IsDot() {
		return Fatalf("%w: %s", fatnav.ErrNotFound, name)
	}
	if set {
		entry.Attr |= attr
	} else {
		entry.Attr &^= attr
	}
	b, err := entry.Encode()
	if err != nil {
		return err
	}
	copy(target.buf[target.index*DirEntrySize:], b)
	return m.store.WriteCluster(target.cluster, target.buf)
}
