package fat

import (
	"testing"
	"time"

	"github.com/rstms/fatnav"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const MB = 1024 * 1024

var testTime = time.Date(2024, time.March, 9, 14, 30, 12, 0, time.UTC)

func newTestDisk(t *testing.T, size int64) *fatnav.FileDisk {
	t.Helper()
	afs := afero.NewMemMapFs()
	file, err := afs.Create("test.img")
	require.Nil(t, err)
	require.Nil(t, file.Truncate(size))
	disk, err := fatnav.NewFileDisk(file)
	require.Nil(t, err)
	return disk
}

func newTestFileSystem(t *testing.T, size int64, config *SuperFloppyConfig) *FileSystem {
	t.Helper()
	disk := newTestDisk(t, size)
	require.Nil(t, FormatSuperFloppy(disk, config))
	fs, err := New(disk)
	require.Nil(t, err)
	fs.SetClock(func() time.Time { return testTime })
	return fs
}

// smallConfig formats one sector clusters, 16 directory slots each.
func smallConfig() *SuperFloppyConfig {
	return &SuperFloppyConfig{SectorsPerCluster: 1, VolumeID: 0x1234abcd}
}

func newSmallFileSystem(t *testing.T) *FileSystem {
	return newTestFileSystem(t, 1*MB, smallConfig())
}

func shortName(t *testing.T, name string) [11]byte {
	t.Helper()
	b, err := FormatShortName(name)
	require.Nil(t, err)
	return b
}

func entryNames(entries []Entry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.String())
	}
	return names
}

func listNames(t *testing.T, fs *FileSystem, dir uint32) []string {
	t.Helper()
	entries, err := fs.ListEntries(dir)
	require.Nil(t, err)
	return entryNames(entries)
}

// writeSlot stores raw slot bytes at index of cluster.
func writeSlot(t *testing.T, fs *FileSystem, cluster uint32, index int, slot []byte) {
	t.Helper()
	b, err := fs.store.ReadCluster(cluster)
	require.Nil(t, err)
	copy(b[index*DirEntrySize:(index+1)*DirEntrySize], slot)
	require.Nil(t, fs.store.WriteCluster(cluster, b))
}

func writeEntry(t *testing.T, fs *FileSystem, cluster uint32, index int, e Entry) {
	t.Helper()
	b, err := e.Encode()
	require.Nil(t, err)
	writeSlot(t, fs, cluster, index, b)
}

func readSlot(t *testing.T, fs *FileSystem, cluster uint32, index int) (SlotState, Entry) {
	t.Helper()
	b, err := fs.store.ReadCluster(cluster)
	require.Nil(t, err)
	state, e, err := DecodeEntry(b[index*DirEntrySize : (index+1)*DirEntrySize])
	require.Nil(t, err)
	return state, e
}

func freeClusters(t *testing.T, fs *FileSystem) uint32 {
	t.Helper()
	free, err := fs.FreeClusters()
	require.Nil(t, err)
	return free
}
