package fat

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/rstms/fatnav"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultSectorsPerCluster = 8
	DefaultReservedSectors   = 32
	DefaultFATCount          = 2
	DefaultOEMName           = "FATNAV"
	DefaultVolumeLabel       = "NO NAME"

	formatBytesPerSector = 512
	mediaFixed           = 0xF8
	fsInfoSector         = 1
	backupBootSector     = 6
	fsInfoLeadSig        = 0x41615252
	fsInfoStrucSig       = 0x61417272
	fsInfoTrailSig       = 0xAA550000
	fsInfoStrucSigOffset = 484
	fsInfoFreeCount      = 488
	fsInfoNextFree       = 492
	fsInfoTrailSigOffset = 508
	fsInfoUnknown        = 0xFFFFFFFF
)

// SuperFloppyConfig is the configuration for formatting a whole device
// as one FAT32 volume, without a partition table.
type SuperFloppyConfig struct {
	// Label is the volume label, up to 11 characters.
	Label string
	// OEMName is written to the boot sector, up to 8 characters.
	OEMName string

	SectorsPerCluster uint8
	ReservedSectors   uint16
	FATCount          uint8

	// VolumeID is the volume serial number; 0 derives one from the
	// current time.
	VolumeID uint32
}

func (c *SuperFloppyConfig) withDefaults() SuperFloppyConfig {
	cfg := SuperFloppyConfig{}
	if c != nil {
		cfg = *c
	}
	if cfg.SectorsPerCluster == 0 {
		cfg.SectorsPerCluster = DefaultSectorsPerCluster
	}
	if cfg.ReservedSectors == 0 {
		cfg.ReservedSectors = DefaultReservedSectors
	}
	if cfg.FATCount == 0 {
		cfg.FATCount = DefaultFATCount
	}
	if cfg.OEMName == "" {
		cfg.OEMName = DefaultOEMName
	}
	if cfg.VolumeID == 0 {
		cfg.VolumeID = uint32(time.Now().Unix())
	}
	cfg.Label = strings.ToUpper(cfg.Label)
	return cfg
}

func padRight(s string, n int) []byte {
	b := []byte(strings.Repeat(" ", n))
	copy(b, s)
	return b
}

// fatSectors returns the FAT size in sectors for a volume of total
// sectors, iterating until the FAT covers every data cluster it leaves
// room for.
func fatSectors(total uint32, cfg *SuperFloppyConfig) (uint32, error) {
	var size uint32 = 1
	for range 8 {
		overhead := uint64(cfg.ReservedSectors) + uint64(cfg.FATCount)*uint64(size)
		if overhead >= uint64(total) {
			return 0, Fatalf("%w: device of %d sectors too small", fatnav.ErrInvalidBootSector, total)
		}
		clusters := (uint64(total) - overhead) / uint64(cfg.SectorsPerCluster)
		need := uint32(((clusters+2)*fatEntrySize + formatBytesPerSector - 1) / formatBytesPerSector)
		if need == size {
			break
		}
		size = need
	}
	return size, nil
}

// FormatSuperFloppy writes an empty FAT32 volume spanning device.
func FormatSuperFloppy(device fatnav.BlockDevice, config *SuperFloppyConfig) error {
	cfg := config.withDefaults()
	spc := cfg.SectorsPerCluster
	if spc&(spc-1) != 0 {
		return Fatalf("%w: sectors per cluster %d", fatnav.ErrInvalidBootSector, spc)
	}
	if cfg.ReservedSectors <= backupBootSector+1 {
		return Fatalf("%w: need more than %d reserved sectors", fatnav.ErrInvalidBootSector, backupBootSector+1)
	}
	if len(cfg.Label) > 11 {
		return Fatalf("%w: volume label %q longer than 11 characters", fatnav.ErrInvalidName, cfg.Label)
	}
	if len(cfg.OEMName) > 8 {
		return Fatalf("%w: OEM name %q longer than 8 characters", fatnav.ErrInvalidName, cfg.OEMName)
	}

	total64 := device.Size() / formatBytesPerSector
	if total64 > int64(^uint32(0)) {
		total64 = int64(^uint32(0))
	}
	total := uint32(total64)
	spf, err := fatSectors(total, &cfg)
	if err != nil {
		return err
	}

	label := cfg.Label
	if label == "" {
		label = DefaultVolumeLabel
	}
	bs := make([]byte, formatBytesPerSector)
	bs[0], bs[1], bs[2] = 0xEB, 0x58, 0x90
	copy(bs[bsOEMName:bsOEMName+8], padRight(cfg.OEMName, 8))
	binary.LittleEndian.PutUint16(bs[bpbBytsPerSec:], formatBytesPerSector)
	bs[bpbSecPerClus] = spc
	binary.LittleEndian.PutUint16(bs[bpbRsvdSecCnt:], cfg.ReservedSectors)
	bs[bpbNumFATs] = cfg.FATCount
	bs[bpbMedia] = mediaFixed
	binary.LittleEndian.PutUint16(bs[bpbSecPerTrk:], 32)
	binary.LittleEndian.PutUint16(bs[bpbNumHeads:], 64)
	binary.LittleEndian.PutUint32(bs[bpbTotSec32:], total)
	binary.LittleEndian.PutUint32(bs[bpbFATSz32:], spf)
	binary.LittleEndian.PutUint32(bs[bpbRootClus:], 2)
	binary.LittleEndian.PutUint16(bs[bpbFSInfo:], fsInfoSector)
	binary.LittleEndian.PutUint16(bs[bpbBkBootSec:], backupBootSector)
	bs[bsDrvNum32] = 0x80
	bs[bsBootSig32] = extBootSignature
	binary.LittleEndian.PutUint32(bs[bsVolID32:], cfg.VolumeID)
	copy(bs[bsVolLab32:bsVolLab32+11], padRight(label, 11))
	copy(bs[bsFilSysType32:bsFilSysType32+8], "FAT32   ")
	binary.LittleEndian.PutUint16(bs[bsSignature:], bootSignature)

	layout, err := ParseLayout(bs, device.Size())
	if err != nil {
		return err
	}

	fsInfo := make([]byte, formatBytesPerSector)
	binary.LittleEndian.PutUint32(fsInfo[0:], fsInfoLeadSig)
	binary.LittleEndian.PutUint32(fsInfo[fsInfoStrucSigOffset:], fsInfoStrucSig)
	binary.LittleEndian.PutUint32(fsInfo[fsInfoFreeCount:], layout.TotalClusters()-1)
	binary.LittleEndian.PutUint32(fsInfo[fsInfoNextFree:], 3)
	binary.LittleEndian.PutUint32(fsInfo[fsInfoTrailSigOffset:], fsInfoTrailSig)

	store := NewClusterStore(device, layout)
	for _, sector := range []struct {
		lba  int64
		data []byte
	}{
		{0, bs},
		{fsInfoSector, fsInfo},
		{backupBootSector, bs},
		{backupBootSector + 1, fsInfo},
	} {
		if err := store.writeAt(sector.data, sector.lba*formatBytesPerSector, "boot sector"); err != nil {
			return err
		}
	}

	fat := make([]byte, int(spf)*formatBytesPerSector)
	binary.LittleEndian.PutUint32(fat[0:], 0x0FFFFF00|mediaFixed)
	binary.LittleEndian.PutUint32(fat[4:], ClusterEOC)
	binary.LittleEndian.PutUint32(fat[8:], ClusterEOC)
	for i := range int64(cfg.FATCount) {
		off := layout.FATOffset() + i*int64(len(fat))
		if err := store.writeAt(fat, off, "FAT"); err != nil {
			return err
		}
	}

	root := make([]byte, layout.ClusterSize())
	if cfg.Label != "" {
		var name [11]byte
		copy(name[:], padRight(cfg.Label, 11))
		e := Entry{Name: name, Attr: fatnav.AttrVolumeId | fatnav.AttrArchive}
		e.SetTimes(time.Now())
		b, err := e.Encode()
		if err != nil {
			return err
		}
		copy(root, b)
	}
	if err := store.WriteCluster(layout.RootCluster, root); err != nil {
		return err
	}
	log.Debugf("formatted %d sectors: spc=%d spf=%d clusters=%d label=%q",
		total, spc, spf, layout.TotalClusters(), cfg.Label)
	return nil
}
