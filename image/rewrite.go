package image

import (
	"github.com/rstms/fatnav"
	"github.com/rstms/fatnav/fat"
	"github.com/spf13/afero"
)

// RewriteImage creates dstFile as a fresh volume holding the directory
// tree of srcFile, keeping the label, OEM name and attributes. Fields
// left empty in config are taken from the source.
func RewriteImage(afs afero.Fs, dstFile, srcFile string, config *fat.SuperFloppyConfig, size int64) error {
	src, err := OpenImage(afs, srcFile)
	if err != nil {
		return Fatal(err)
	}
	defer src.Close()

	cfg := fat.SuperFloppyConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.Label == "" {
		cfg.Label, err = src.VolumeLabel()
		if err != nil {
			return Fatal(err)
		}
		if cfg.Label == fat.DefaultVolumeLabel {
			cfg.Label = ""
		}
	}
	if cfg.OEMName == "" {
		cfg.OEMName, err = src.OEMName()
		if err != nil {
			return Fatal(err)
		}
	}
	if size == 0 {
		size = src.disk.Size()
	}

	records, err := src.ScanFiles()
	if err != nil {
		return Fatal(err)
	}

	// stage the tree in memory and let Import replay it
	tree := afero.NewMemMapFs()
	for _, record := range records {
		if record.Dir {
			err := tree.MkdirAll(record.Name, 0700)
			if err != nil {
				return Fatal(err)
			}
		}
	}

	dst, err := CreateImage(afs, dstFile, &cfg, size)
	if err != nil {
		return Fatal(err)
	}
	defer dst.Close()
	err = dst.Import(tree, "/")
	if err != nil {
		return Fatal(err)
	}
	for _, record := range records {
		if !record.Dir {
			continue
		}
		for _, flag := range []struct {
			set  bool
			attr fatnav.DirectoryAttr
		}{
			{record.System, fatnav.AttrSystem},
			{record.Hidden, fatnav.AttrHidden},
			{record.ReadOnly, fatnav.AttrReadOnly},
		} {
			if !flag.set {
				continue
			}
			err := dst.SetAttr(record.Name, flag.attr, true)
			if err != nil {
				return Fatal(err)
			}
		}
	}
	return nil
}
