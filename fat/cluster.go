package fat

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/rstms/fatnav"
	log "github.com/sirupsen/logrus"
)

// FAT32 entry values. Only the low 28 bits of an entry are significant.
const (
	ClusterFree   uint32 = 0x00000000
	ClusterBad    uint32 = 0x0FFFFFF7
	ClusterEOCMin uint32 = 0x0FFFFFF8
	ClusterEOC    uint32 = 0x0FFFFFFF

	clusterMask  uint32 = 0x0FFFFFFF
	fatEntrySize        = 4
)

// IsEndOfChain reports whether the FAT entry value v terminates a chain.
func IsEndOfChain(v uint32) bool {
	return v&clusterMask >= ClusterEOCMin
}

// ClusterStore reads and writes clusters of a volume and maintains the
// first FAT. It keeps no state between calls; every operation goes to
// the device.
type ClusterStore struct {
	device fatnav.BlockDevice
	layout *Layout
}

func NewClusterStore(device fatnav.BlockDevice, layout *Layout) *ClusterStore {
	return &ClusterStore{device: device, layout: layout}
}

func (s *ClusterStore) Layout() *Layout {
	return s.layout
}

func (s *ClusterStore) checkCluster(c uint32) error {
	if !s.layout.IsValidCluster(c) {
		return Fatalf("%w: cluster %d not in [2, %d)", fatnav.ErrOutOfRange, c, s.layout.MaxCluster())
	}
	return nil
}

func (s *ClusterStore) readAt(b []byte, off int64, what string) error {
	n, err := s.device.ReadAt(b, off)
	if n == len(b) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return Fatalf("%w: short read of %s at offset %d: %d of %d bytes", fatnav.ErrCorruptImage, what, off, n, len(b))
	}
	return Fatalf("%w: reading %s at offset %d: %w", fatnav.ErrIO, what, off, err)
}

func (s *ClusterStore) writeAt(b []byte, off int64, what string) error {
	n, err := s.device.WriteAt(b, off)
	if err != nil {
		return Fatalf("%w: writing %s at offset %d: %w", fatnav.ErrIO, what, off, err)
	}
	if n != len(b) {
		return Fatalf("%w: short write of %s at offset %d: %d of %d bytes", fatnav.ErrIO, what, off, n, len(b))
	}
	return nil
}

// ReadCluster returns the content of cluster c.
func (s *ClusterStore) ReadCluster(c uint32) ([]byte, error) {
	if err := s.checkCluster(c); err != nil {
		return nil, err
	}
	b := make([]byte, s.layout.ClusterSize())
	if err := s.readAt(b, s.layout.ClusterOffset(c), "cluster"); err != nil {
		return nil, err
	}
	return b, nil
}

// WriteCluster replaces the content of cluster c with b, which must be
// exactly one cluster long.
func (s *ClusterStore) WriteCluster(c uint32, b []byte) error {
	if err := s.checkCluster(c); err != nil {
		return err
	}
	if len(b) != s.layout.ClusterSize() {
		return Fatalf("%w: cluster %d write of %d bytes, cluster size is %d", fatnav.ErrIO, c, len(b), s.layout.ClusterSize())
	}
	return s.writeAt(b, s.layout.ClusterOffset(c), "cluster")
}

// ZeroCluster fills cluster c with zeros, which makes its first
// directory slot an end-of-table marker.
func (s *ClusterStore) ZeroCluster(c uint32) error {
	return s.WriteCluster(c, make([]byte, s.layout.ClusterSize()))
}

func (s *ClusterStore) rawEntry(c uint32) (uint32, error) {
	b := make([]byte, fatEntrySize)
	if err := s.readAt(b, s.layout.FATEntryOffset(c), "FAT entry"); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Entry returns the 28 bit FAT entry of cluster c.
func (s *ClusterStore) Entry(c uint32) (uint32, error) {
	if err := s.checkCluster(c); err != nil {
		return 0, err
	}
	v, err := s.rawEntry(c)
	if err != nil {
		return 0, err
	}
	return v & clusterMask, nil
}

// setEntry stores v in the FAT entry of c, leaving the reserved top
// four bits of the entry as they were.
func (s *ClusterStore) setEntry(c, v uint32) error {
	if err := s.checkCluster(c); err != nil {
		return err
	}
	old, err := s.rawEntry(c)
	if err != nil {
		return err
	}
	b := make([]byte, fatEntrySize)
	binary.LittleEndian.PutUint32(b, old&^clusterMask|v&clusterMask)
	return s.writeAt(b, s.layout.FATEntryOffset(c), "FAT entry")
}

// NextCluster returns the cluster following c in its chain. ok is
// false when c is the last cluster of the chain.
func (s *ClusterStore) NextCluster(c uint32) (next uint32, ok bool, err error) {
	v, err := s.Entry(c)
	if err != nil {
		return 0, false, err
	}
	switch {
	case v >= ClusterEOCMin:
		return 0, false, nil
	case v == ClusterBad:
		return 0, false, Fatalf("%w: cluster %d is marked bad", fatnav.ErrCorruptChain, c)
	case v == ClusterFree:
		return 0, false, Fatalf("%w: cluster %d is in a chain but marked free", fatnav.ErrCorruptChain, c)
	case !s.layout.IsValidCluster(v):
		return 0, false, Fatalf("%w: cluster %d links to invalid cluster %d", fatnav.ErrCorruptChain, c, v)
	}
	return v, true, nil
}

// Walk calls fn for each cluster of the chain starting at start, in
// order, until fn returns false or the chain ends. A chain longer than
// the volume has clusters is a cycle and fails with ErrCorruptChain.
func (s *ClusterStore) Walk(start uint32, fn func(c uint32) (bool, error)) error {
	if err := s.checkCluster(start); err != nil {
		return err
	}
	limit := s.layout.TotalClusters()
	c := start
	for steps := uint32(0); ; steps++ {
		if steps >= limit {
			return Fatalf("%w: chain from cluster %d exceeds %d clusters", fatnav.ErrCorruptChain, start, limit)
		}
		more, err := fn(c)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
		next, ok, err := s.NextCluster(c)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		c = next
	}
}

// Chain returns the clusters of the chain starting at start.
func (s *ClusterStore) Chain(start uint32) ([]uint32, error) {
	var chain []uint32
	err := s.Walk(start, func(c uint32) (bool, error) {
		chain = append(chain, c)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// scanFAT calls fn with every data cluster number and its FAT entry, a
// sector of the FAT at a time, until fn returns false.
func (s *ClusterStore) scanFAT(fn func(c, v uint32) bool) error {
	bps := int(s.layout.BytesPerSector)
	perSector := uint32(bps / fatEntrySize)
	limit := s.layout.MaxCluster()
	buf := make([]byte, bps)
	for first := uint32(0); first < limit; first += perSector {
		if err := s.readAt(buf, s.layout.FATEntryOffset(first), "FAT sector"); err != nil {
			return err
		}
		for i := uint32(0); i < perSector; i++ {
			c := first + i
			if c >= limit {
				return nil
			}
			if c < 2 {
				continue
			}
			if !fn(c, binary.LittleEndian.Uint32(buf[i*fatEntrySize:])&clusterMask) {
				return nil
			}
		}
	}
	return nil
}

// AllocateCluster claims the lowest free cluster and marks it as the
// end of a new chain. The scan is linear in the number of clusters.
func (s *ClusterStore) AllocateCluster() (uint32, error) {
	var found uint32
	err := s.scanFAT(func(c, v uint32) bool {
		if v == ClusterFree {
			found = c
			return false
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if found == 0 {
		return 0, Fatalf("%w: no free cluster among %d", fatnav.ErrVolumeFull, s.layout.TotalClusters())
	}
	if err := s.setEntry(found, ClusterEOC); err != nil {
		return 0, err
	}
	if err := s.updateFSInfo(found); err != nil {
		return 0, err
	}
	log.Debugf("allocated cluster %d", found)
	return found, nil
}

// updateFSInfo records the allocation of cluster in the FSInfo sector:
// one less free cluster, and the search hint just past it. A volume
// without a recognizable FSInfo sector is left alone; a free count that
// cannot be right is marked unknown. The backup copy is not updated.
func (s *ClusterStore) updateFSInfo(cluster uint32) error {
	sector := s.layout.FSInfoSector
	if sector == 0 || sector >= s.layout.ReservedSectorCount {
		return nil
	}
	b := make([]byte, s.layout.BytesPerSector)
	off := int64(sector) * int64(s.layout.BytesPerSector)
	if err := s.readAt(b, off, "FSInfo sector"); err != nil {
		return err
	}
	if binary.LittleEndian.Uint32(b[0:]) != fsInfoLeadSig ||
		binary.LittleEndian.Uint32(b[fsInfoStrucSigOffset:]) != fsInfoStrucSig {
		return nil
	}
	free := binary.LittleEndian.Uint32(b[fsInfoFreeCount:])
	switch {
	case free == fsInfoUnknown:
	case free == 0 || free > s.layout.TotalClusters():
		free = fsInfoUnknown
	default:
		free--
	}
	binary.LittleEndian.PutUint32(b[fsInfoFreeCount:], free)
	binary.LittleEndian.PutUint32(b[fsInfoNextFree:], cluster+1)
	return s.writeAt(b, off, "FSInfo sector")
}

// LinkChain appends next to the chain whose last cluster is tail.
func (s *ClusterStore) LinkChain(tail, next uint32) error {
	if err := s.checkCluster(next); err != nil {
		return err
	}
	if tail == next {
		return Fatalf("%w: cannot link cluster %d to itself", fatnav.ErrCorruptChain, tail)
	}
	v, err := s.Entry(tail)
	if err != nil {
		return err
	}
	if !IsEndOfChain(v) {
		return Fatalf("%w: cluster %d is not the end of its chain, links to %d", fatnav.ErrCorruptChain, tail, v)
	}
	if err := s.setEntry(tail, next); err != nil {
		return err
	}
	log.Debugf("linked cluster %d -> %d", tail, next)
	return nil
}

// FreeClusters counts the free clusters of the volume.
func (s *ClusterStore) FreeClusters() (uint32, error) {
	var free uint32
	err := s.scanFAT(func(c, v uint32) bool {
		if v == ClusterFree {
			free++
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	return free, nil
}
