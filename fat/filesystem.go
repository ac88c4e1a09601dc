package fat

import (
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/rstms/fatnav"
	log "github.com/sirupsen/logrus"
)

// FileSystem is the implementation of fatnav.FileSystem for a FAT32
// volume image.
type FileSystem struct {
	device fatnav.BlockDevice
	layout *Layout
	store  *ClusterStore
	nav    *Navigator
	mut    *Mutator

	// serialises mutations
	mu sync.Mutex
}

// ensure FileSystem implements fatnav.FileSystem
var _ fatnav.FileSystem = (*FileSystem)(nil)

// New returns a new FileSystem for accessing a previously created
// FAT32 volume.
func New(device fatnav.BlockDevice) (*FileSystem, error) {
	layout, err := DecodeLayout(device)
	if err != nil {
		return nil, Fatal(err)
	}
	store := NewClusterStore(device, layout)
	result := &FileSystem{
		device: device,
		layout: layout,
		store:  store,
		nav:    NewNavigator(store),
		mut:    NewMutator(store, time.Now),
	}
	log.Debugf("opened FAT32 volume %q, root cluster %d", layout.VolumeLabel, layout.RootCluster)
	return result, nil
}

// SetClock replaces the time source used to stamp new entries.
func (f *FileSystem) SetClock(now func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mut.now = now
}

func (f *FileSystem) Layout() *Layout {
	return f.layout
}

func (f *FileSystem) Store() *ClusterStore {
	return f.store
}

func (f *FileSystem) RootDir() (fatnav.Directory, error) {
	return &Directory{fs: f, cluster: f.layout.RootCluster}, nil
}

func (f *FileSystem) Dir(cluster uint32) (fatnav.Directory, error) {
	if !f.layout.IsValidCluster(cluster) {
		return nil, Fatalf("%w: directory cluster %d", fatnav.ErrOutOfRange, cluster)
	}
	return &Directory{fs: f, cluster: cluster}, nil
}

// Entries lists the directory at dir; see Navigator.Entries.
func (f *FileSystem) Entries(dir uint32) iter.Seq2[Entry, error] {
	return f.nav.Entries(dir)
}

func (f *FileSystem) ListEntries(dir uint32) ([]Entry, error) {
	entries, err := f.nav.List(dir)
	if err != nil {
		return nil, Fatal(err)
	}
	return entries, nil
}

func (f *FileSystem) Lookup(dir uint32, name string) (Entry, error) {
	return f.nav.Lookup(dir, name)
}

func (f *FileSystem) ResolveChild(dir uint32, name string) (uint32, error) {
	return f.nav.ResolveChild(dir, name)
}

func (f *FileSystem) Parent(dir uint32) (uint32, error) {
	return f.nav.Parent(dir)
}

func (f *FileSystem) CreateSubdirectory(parent uint32, name string) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mut.CreateSubdirectory(parent, name)
}

func (f *FileSystem) SetAttr(dir uint32, name string, attr fatnav.DirectoryAttr, set bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mut.SetAttr(dir, name, attr, set)
}

func (f *FileSystem) FreeClusters() (uint32, error) {
	return f.store.FreeClusters()
}

func (f *FileSystem) Info() (map[string]any, error) {
	info := f.layout.Info()
	free, err := f.FreeClusters()
	if err != nil {
		return nil, Fatal(err)
	}
	info["free_clusters"] = free
	label, err := f.VolumeLabel()
	if err != nil {
		return nil, Fatal(err)
	}
	info["volume_label"] = label
	return info, nil
}

func (f *FileSystem) OEMName() (string, error) {
	return f.layout.OEMName, nil
}

// VolumeLabel returns the label entry of the root directory, or the
// boot sector label if there is none.
func (f *FileSystem) VolumeLabel() (string, error) {
	var label string
	err := f.nav.scan(f.layout.RootCluster, func(s slot) bool {
		if s.state == SlotOccupied && s.entry.IsVolumeLabel() {
			label = strings.TrimRight(decodeOEM(s.entry.Name[:]), " ")
			return false
		}
		return true
	})
	if err != nil {
		return "", Fatal(err)
	}
	if label == "" {
		label = f.layout.VolumeLabel
	}
	return label, nil
}

func (f *FileSystem) Close() error {
	return f.device.Close()
}
