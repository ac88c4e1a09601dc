package fat

import (
	"encoding/binary"
	"strings"

	"github.com/rstms/fatnav"
	log "github.com/sirupsen/logrus"
)

// Boot sector field offsets for a FAT32 BIOS parameter block.
const (
	bsOEMName        = 3
	bpbBytsPerSec    = 11
	bpbSecPerClus    = 13
	bpbRsvdSecCnt    = 14
	bpbNumFATs       = 16
	bpbRootEntCnt    = 17
	bpbTotSec16      = 19
	bpbMedia         = 21
	bpbFATSz16       = 22
	bpbSecPerTrk     = 24
	bpbNumHeads      = 26
	bpbHiddSec       = 28
	bpbTotSec32      = 32
	bpbFATSz32       = 36
	bpbExtFlags      = 40
	bpbFSVer         = 42
	bpbRootClus      = 44
	bpbFSInfo        = 48
	bpbBkBootSec     = 50
	bsDrvNum32       = 64
	bsBootSig32      = 66
	bsVolID32        = 67
	bsVolLab32       = 71
	bsFilSysType32   = 82
	bsSignature      = 510
	bootSectorSize   = 512
	bootSignature    = 0xAA55
	extBootSignature = 0x29
)

// Layout is the geometry of a FAT32 volume as declared by its boot
// sector. It is immutable once parsed.
type Layout struct {
	BytesPerSector      uint16
	SectorsPerCluster   uint8
	ReservedSectorCount uint16
	FATCount            uint8
	SectorsPerFAT       uint32
	RootCluster         uint32
	FSInfoSector        uint16
	TotalSectors        uint32
	ImageSize           int64

	OEMName     string
	VolumeLabel string
	VolumeID    uint32

	totalClusters uint32
}

func isValidSectorSize(n uint16) bool {
	switch n {
	case 512, 1024, 2048, 4096:
		return true
	}
	return false
}

// ParseLayout interprets bootSector, the first sector of an image of
// imageSize bytes.
func ParseLayout(bootSector []byte, imageSize int64) (*Layout, error) {
	if len(bootSector) < bootSectorSize {
		return nil, Fatalf("%w: need %d bytes, have %d", fatnav.ErrInvalidBootSector, bootSectorSize, len(bootSector))
	}
	b := bootSector
	l := &Layout{
		BytesPerSector:      binary.LittleEndian.Uint16(b[bpbBytsPerSec:]),
		SectorsPerCluster:   b[bpbSecPerClus],
		ReservedSectorCount: binary.LittleEndian.Uint16(b[bpbRsvdSecCnt:]),
		FATCount:            b[bpbNumFATs],
		SectorsPerFAT:       binary.LittleEndian.Uint32(b[bpbFATSz32:]),
		RootCluster:         binary.LittleEndian.Uint32(b[bpbRootClus:]),
		FSInfoSector:        binary.LittleEndian.Uint16(b[bpbFSInfo:]),
		ImageSize:           imageSize,
		OEMName:             strings.TrimRight(string(b[bsOEMName:bsOEMName+8]), " \x00"),
	}
	if b[bsBootSig32] == extBootSignature {
		l.VolumeID = binary.LittleEndian.Uint32(b[bsVolID32:])
		l.VolumeLabel = strings.TrimRight(string(b[bsVolLab32:bsVolLab32+11]), " \x00")
	}

	if !isValidSectorSize(l.BytesPerSector) {
		return nil, Fatalf("%w: bytes per sector %d", fatnav.ErrInvalidBootSector, l.BytesPerSector)
	}
	spc := l.SectorsPerCluster
	if spc == 0 || spc&(spc-1) != 0 {
		return nil, Fatalf("%w: sectors per cluster %d", fatnav.ErrInvalidBootSector, spc)
	}
	if l.ReservedSectorCount == 0 {
		return nil, Fatalf("%w: reserved sector count is 0", fatnav.ErrInvalidBootSector)
	}
	if l.FATCount == 0 {
		return nil, Fatalf("%w: FAT count is 0", fatnav.ErrInvalidBootSector)
	}
	if l.SectorsPerFAT == 0 {
		return nil, Fatalf("%w: sectors per FAT is 0, not a FAT32 volume", fatnav.ErrInvalidBootSector)
	}

	// The volume ends at the declared sector count or the end of the
	// image, whichever comes first.
	total := uint64(binary.LittleEndian.Uint16(b[bpbTotSec16:]))
	if total == 0 {
		total = uint64(binary.LittleEndian.Uint32(b[bpbTotSec32:]))
	}
	imageSectors := uint64(0)
	if imageSize > 0 {
		imageSectors = uint64(imageSize) / uint64(l.BytesPerSector)
	}
	if total == 0 || total > imageSectors {
		total = imageSectors
	}
	l.TotalSectors = uint32(min(total, uint64(^uint32(0))))

	dataStart := l.DataStartSector()
	if dataStart >= total {
		return nil, Fatalf("%w: data region starts at sector %d, volume has %d sectors", fatnav.ErrInvalidBootSector, dataStart, total)
	}
	dataClusters := (total - dataStart) / uint64(spc)
	fatEntries := uint64(l.SectorsPerFAT) * uint64(l.BytesPerSector) / 4
	maxCluster := min(dataClusters+2, fatEntries, uint64(ClusterBad))
	if maxCluster <= 2 {
		return nil, Fatalf("%w: volume has no data clusters", fatnav.ErrInvalidBootSector)
	}
	l.totalClusters = uint32(maxCluster - 2)

	if l.RootCluster < 2 || l.RootCluster >= l.MaxCluster() {
		return nil, Fatalf("%w: root cluster %d", fatnav.ErrInvalidBootSector, l.RootCluster)
	}

	log.Debugf("layout: bps=%d spc=%d reserved=%d fats=%d spf=%d root=%d clusters=%d",
		l.BytesPerSector, l.SectorsPerCluster, l.ReservedSectorCount, l.FATCount,
		l.SectorsPerFAT, l.RootCluster, l.totalClusters)
	return l, nil
}

// DecodeLayout reads the boot sector of device.
func DecodeLayout(device fatnav.BlockDevice) (*Layout, error) {
	b := make([]byte, bootSectorSize)
	n, err := device.ReadAt(b, 0)
	if n < len(b) {
		if err == nil {
			err = Fatalf("short read")
		}
		return nil, Fatalf("%w: reading boot sector: %v", fatnav.ErrInvalidBootSector, err)
	}
	layout, err := ParseLayout(b, device.Size())
	if err != nil {
		return nil, Fatal(err)
	}
	return layout, nil
}

// ClusterSize returns the size of a cluster in bytes.
func (l *Layout) ClusterSize() int {
	return int(l.BytesPerSector) * int(l.SectorsPerCluster)
}

// EntriesPerCluster returns the number of directory slots in a cluster.
func (l *Layout) EntriesPerCluster() int {
	return l.ClusterSize() / DirEntrySize
}

// DataStartSector returns the first sector of cluster 2.
func (l *Layout) DataStartSector() uint64 {
	return uint64(l.ReservedSectorCount) + uint64(l.FATCount)*uint64(l.SectorsPerFAT)
}

// ClusterOffset returns the byte offset of cluster c. It does not
// validate c.
func (l *Layout) ClusterOffset(c uint32) int64 {
	sector := l.DataStartSector() + uint64(c-2)*uint64(l.SectorsPerCluster)
	return int64(sector * uint64(l.BytesPerSector))
}

// FATOffset returns the byte offset of the first FAT.
func (l *Layout) FATOffset() int64 {
	return int64(l.ReservedSectorCount) * int64(l.BytesPerSector)
}

// FATEntryOffset returns the byte offset of the entry for cluster c in
// the first FAT.
func (l *Layout) FATEntryOffset(c uint32) int64 {
	return l.FATOffset() + int64(c)*4
}

// TotalClusters returns the number of usable data clusters.
func (l *Layout) TotalClusters() uint32 {
	return l.totalClusters
}

// MaxCluster returns the exclusive upper bound of valid cluster numbers.
func (l *Layout) MaxCluster() uint32 {
	return l.totalClusters + 2
}

// IsValidCluster reports whether c addresses a data cluster.
func (l *Layout) IsValidCluster(c uint32) bool {
	return c >= 2 && c < l.MaxCluster()
}

// Info returns the boot sector fields for display.
func (l *Layout) Info() map[string]any {
	return map[string]any{
		"bytes_per_sector":    l.BytesPerSector,
		"sectors_per_cluster": l.SectorsPerCluster,
		"reserved_sectors":    l.ReservedSectorCount,
		"fat_count":           l.FATCount,
		"sectors_per_fat":     l.SectorsPerFAT,
		"root_cluster":        l.RootCluster,
		"total_sectors":       l.TotalSectors,
		"total_clusters":      l.totalClusters,
		"data_start_sector":   l.DataStartSector(),
		"image_size":          l.ImageSize,
		"oem_name":            l.OEMName,
		"volume_label":        l.VolumeLabel,
		"volume_id":           l.VolumeID,
		"cluster_size":        l.ClusterSize(),
		"entries_per_cluster": l.EntriesPerCluster(),
	}
}
