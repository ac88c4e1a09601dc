package fatnav

// A FileSystem provides access to the directory tree of a FAT32
// volume, addressed by cluster number.
type FileSystem interface {
	// RootDir returns the single root directory.
	RootDir() (Directory, error)
	// Dir returns the directory whose content starts at cluster.
	Dir(cluster uint32) (Directory, error)
	Info() (map[string]any, error)
	OEMName() (string, error)
	VolumeLabel() (string, error)
}
