package fat

import (
	"errors"
	"iter"

	"github.com/rstms/fatnav"
	log "github.com/sirupsen/logrus"
)

// slot is a decoded directory slot and where it lives.
type slot struct {
	cluster uint32
	index   int
	state   SlotState
	entry   Entry
}

// Navigator reads directory tables. A directory is addressed by the
// first cluster of its chain.
type Navigator struct {
	store *ClusterStore
}

func NewNavigator(store *ClusterStore) *Navigator {
	return &Navigator{store: store}
}

// scan calls fn for every slot of the directory at dir, following the
// whole chain, up to and including the first end-of-table slot.
func (n *Navigator) scan(dir uint32, fn func(s slot) bool) error {
	return n.store.Walk(dir, func(c uint32) (bool, error) {
		b, err := n.store.ReadCluster(c)
		if err != nil {
			return false, err
		}
		for i := 0; i < len(b)/DirEntrySize; i++ {
			state, e, err := DecodeEntry(b[i*DirEntrySize : (i+1)*DirEntrySize])
			if err != nil {
				return false, err
			}
			if !fn(slot{cluster: c, index: i, state: state, entry: e}) || state == SlotEnd {
				return false, nil
			}
		}
		return true, nil
	})
}

// Parent returns the first cluster of the parent of dir. The parent of
// the root directory is the root directory.
func (n *Navigator) Parent(dir uint32) (uint32, error) {
	root := n.store.Layout().RootCluster
	if dir == root {
		return root, nil
	}
	var (
		parent uint32
		found  bool
	)
	b, err := n.store.ReadCluster(dir)
	if err != nil {
		return 0, err
	}
	for i := 0; i < len(b)/DirEntrySize && !found; i++ {
		state, e, err := DecodeEntry(b[i*DirEntrySize : (i+1)*DirEntrySize])
		if err != nil {
			return 0, err
		}
		if state == SlotEnd {
			break
		}
		if state == SlotOccupied && e.Name == dotDotName {
			parent, found = e.Cluster, true
		}
	}
	switch {
	case !found:
		return 0, Fatalf("%w: directory at cluster %d has no .. entry", fatnav.ErrCorruptImage, dir)
	case parent == 0:
		return root, nil
	case !n.store.Layout().IsValidCluster(parent):
		return 0, Fatalf("%w: directory at cluster %d has parent %d", fatnav.ErrCorruptImage, dir, parent)
	}
	return parent, nil
}

func dotEntry(name [11]byte, cluster uint32) Entry {
	return Entry{Name: name, Attr: fatnav.AttrDirectory, Cluster: cluster}
}

// Entries lists the directory at dir lazily: "." and ".." first, then
// every live entry of the chain in on-disk order. Deleted slots, long
// name fragments and the stored dot entries are skipped. An error ends
// the sequence. A directory whose own ".." entry is missing or damaged
// still lists, with ".." naming the root directory.
func (n *Navigator) Entries(dir uint32) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		parent, err := n.Parent(dir)
		if errors.Is(err, fatnav.ErrCorruptImage) {
			log.Warnf("listing cluster %d: %v", dir, err)
			parent, err = n.store.Layout().RootCluster, nil
		}
		if err != nil {
			yield(Entry{}, err)
			return
		}
		if !yield(dotEntry(dotName, dir), nil) || !yield(dotEntry(dotDotName, parent), nil) {
			return
		}
		err = n.children(dir, func(e Entry) bool {
			return yield(e, nil)
		})
		if err != nil {
			yield(Entry{}, err)
		}
	}
}

// children calls fn for every live entry of dir other than the stored
// dot entries.
func (n *Navigator) children(dir uint32, fn func(e Entry) bool) error {
	return n.scan(dir, func(s slot) bool {
		if s.state != SlotOccupied || s.entry.IsDot() || s.entry.IsLongName() {
			return true
		}
		return fn(s.entry)
	})
}

// List returns all of Entries.
func (n *Navigator) List(dir uint32) ([]Entry, error) {
	var entries []Entry
	for e, err := range n.Entries(dir) {
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Lookup returns the entry of dir named name. The volume label never
// matches. "." and ".." are answered without reading the rest of the
// table.
func (n *Navigator) Lookup(dir uint32, name string) (Entry, error) {
	shortName, err := FormatShortName(name)
	if err != nil {
		return Entry{}, Fatalf("%w: %s is not an 8.3 name", fatnav.ErrNotFound, name)
	}
	switch shortName {
	case dotName:
		if err := n.store.checkCluster(dir); err != nil {
			return Entry{}, err
		}
		return dotEntry(dotName, dir), nil
	case dotDotName:
		parent, err := n.Parent(dir)
		if err != nil {
			return Entry{}, err
		}
		return dotEntry(dotDotName, parent), nil
	}
	var (
		found Entry
		ok    bool
	)
	err = n.children(dir, func(e Entry) bool {
		if e.Name == shortName && !e.IsVolumeLabel() {
			found, ok = e, true
		}
		return !ok
	})
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, Fatalf("%w: %s", fatnav.ErrNotFound, name)
	}
	return found, nil
}

// ResolveChild returns the first cluster of the subdirectory name of
// dir.
func (n *Navigator) ResolveChild(dir uint32, name string) (uint32, error) {
	e, err := n.Lookup(dir, name)
	if err != nil {
		return 0, err
	}
	if !e.IsDir() {
		return 0, Fatalf("%w: %s", fatnav.ErrNotADirectory, name)
	}
	if !n.store.Layout().IsValidCluster(e.Cluster) {
		return 0, Fatalf("%w: directory %s has cluster %d", fatnav.ErrCorruptImage, name, e.Cluster)
	}
	log.Debugf("resolved %s in %d: cluster %d", name, dir, e.Cluster)
	return e.Cluster, nil
}
