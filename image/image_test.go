package image

import (
	"testing"

	"github.com/rstms/fatnav"
	"github.com/rstms/fatnav/fat"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func newTestImage(t *testing.T, afs afero.Fs, filename string) *Image {
	t.Helper()
	config := &fat.SuperFloppyConfig{Label: "TEST", SectorsPerCluster: 1}
	i, err := CreateImage(afs, filename, config, 4*MB)
	require.Nil(t, err)
	return i
}

func recordNames(records []FileRecord) []string {
	names := []string{}
	for _, record := range records {
		names = append(names, record.Name)
	}
	return names
}

func TestImageCreate(t *testing.T) {
	afs := afero.NewMemMapFs()
	i := newTestImage(t, afs, "create.img")
	defer i.Close()
	require.Equal(t, "create.img", i.Name())

	info, err := i.Info()
	require.Nil(t, err)
	require.Equal(t, "create.img", info["image"])
	require.Equal(t, int64(4*MB), info["image_size"])

	label, err := i.VolumeLabel()
	require.Nil(t, err)
	require.Equal(t, "TEST", label)
	oem, err := i.OEMName()
	require.Nil(t, err)
	require.Equal(t, fat.DefaultOEMName, oem)

	stat, err := afs.Stat("create.img")
	require.Nil(t, err)
	require.Equal(t, int64(4*MB), stat.Size())
}

func TestImageCreateRoundsSize(t *testing.T) {
	afs := afero.NewMemMapFs()
	i, err := CreateImage(afs, "odd.img", nil, 4*MB+100)
	require.Nil(t, err)
	require.Nil(t, i.Close())
	stat, err := afs.Stat("odd.img")
	require.Nil(t, err)
	require.Equal(t, int64(4*MB+1024), stat.Size())
}

func TestImageOpenMissing(t *testing.T) {
	_, err := OpenImage(afero.NewMemMapFs(), "missing.img")
	require.NotNil(t, err)

	afs := afero.NewMemMapFs()
	require.Nil(t, afero.WriteFile(afs, "blank.img", make([]byte, 1*MB), 0600))
	_, err = OpenImage(afs, "blank.img")
	require.ErrorIs(t, err, fatnav.ErrInvalidBootSector)
}

func TestImageIsDir(t *testing.T) {
	afs := afero.NewMemMapFs()
	i := newTestImage(t, afs, "isdir.img")
	defer i.Close()
	require.Nil(t, i.Mkdir("EFI"))
	require.Nil(t, i.Mkdir("EFI/BOOT"))

	for _, tt := range []struct {
		path string
		want bool
	}{
		{"/", true},
		{"", true},
		{"/foo", false},
		{"foo/bar/baz", false},
		{"TEST", false},
		{"EFI", true},
		{"efi", true},
		{"/EFI/", true},
		{"EFI/foo", false},
		{"EFI/BOOT", true},
		{"EFI/BOOT/GROOT", false},
		{"not an 8.3 name", false},
	} {
		ret, err := i.IsDir(tt.path)
		require.Nil(t, err)
		require.Equal(t, tt.want, ret, tt.path)
	}
}

func TestImageMkdir(t *testing.T) {
	afs := afero.NewMemMapFs()
	i := newTestImage(t, afs, "mkdir.img")

	ret, err := i.IsDir("/foo")
	require.Nil(t, err)
	require.False(t, ret)

	err = i.Mkdir("/foo")
	require.Nil(t, err)

	ret, err = i.IsDir("/foo")
	require.Nil(t, err)
	require.True(t, ret)

	require.ErrorIs(t, i.Mkdir("/foo"), fatnav.ErrAlreadyExists)
	require.ErrorIs(t, i.Mkdir("/"), fatnav.ErrAlreadyExists)
	require.ErrorIs(t, i.Mkdir("/missing/bar"), fatnav.ErrNotFound)
	require.ErrorIs(t, i.Mkdir("/toolongname"), fatnav.ErrInvalidName)

	require.Nil(t, i.Close())

	j, err := OpenImage(afs, "mkdir.img")
	require.Nil(t, err)
	defer j.Close()

	err = j.Mkdir("/foo/bar")
	require.Nil(t, err)

	ret, err = j.IsDir("foo/bar")
	require.Nil(t, err)
	require.True(t, ret)

	entries, err := j.ReadDir("FOO")
	require.Nil(t, err)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.String())
	}
	require.Equal(t, []string{".", "..", "BAR"}, names)

	_, err = j.ReadDir("/foo/missing")
	require.ErrorIs(t, err, fatnav.ErrNotFound)
}

func TestImageListFiles(t *testing.T) {
	afs := afero.NewMemMapFs()
	i := newTestImage(t, afs, "list.img")
	defer i.Close()
	for _, dir := range []string{"EFI", "EFI/BOOT", "DOCS", "EFI/BOOT/GRUB"} {
		require.Nil(t, i.Mkdir(dir))
	}
	records, err := i.ScanFiles()
	require.Nil(t, err)
	require.Equal(t, []string{"/EFI", "/EFI/BOOT", "/EFI/BOOT/GRUB", "/DOCS"}, recordNames(records))
	for _, record := range records {
		require.True(t, record.Dir)
		require.False(t, record.Hidden)
		require.NotZero(t, record.Cluster)
		require.False(t, record.ModTime.IsZero())
	}
	require.Equal(t, "EFI        ", records[0].ShortName)
}

func TestImageImport(t *testing.T) {
	src := afero.NewMemMapFs()
	require.Nil(t, src.MkdirAll("files/efi/boot", 0700))
	require.Nil(t, src.MkdirAll("files/docs", 0700))
	require.Nil(t, afero.WriteFile(src, "files/docs/readme.txt", []byte("howdy howdy howdy"), 0600))

	afs := afero.NewMemMapFs()
	i := newTestImage(t, afs, "import.img")
	err := i.Import(src, "files")
	require.Nil(t, err)

	records, err := i.ScanFiles()
	require.Nil(t, err)
	require.Equal(t, []string{"/DOCS", "/EFI", "/EFI/BOOT"}, recordNames(records))

	err = i.SetAttr("docs", fatnav.AttrHidden, true)
	require.Nil(t, err)
	require.Nil(t, i.Close())

	i, err = OpenImage(afs, "import.img")
	require.Nil(t, err)
	attr, err := i.GetAttr("DOCS")
	require.Nil(t, err)
	require.Equal(t, fatnav.AttrDirectory|fatnav.AttrHidden, attr)

	err = i.SetAttr("docs", fatnav.AttrHidden, false)
	require.Nil(t, err)
	attr, err = i.GetAttr("/DOCS")
	require.Nil(t, err)
	require.Equal(t, fatnav.AttrDirectory, attr)

	_, err = i.GetAttr("/")
	require.ErrorIs(t, err, fatnav.ErrNotFound)
	require.ErrorIs(t, i.SetAttr("/nope/docs", fatnav.AttrHidden, true), fatnav.ErrNotFound)
	require.Nil(t, i.Close())
}

func TestImageRewrite(t *testing.T) {
	afs := afero.NewMemMapFs()
	src := newTestImage(t, afs, "src.img")
	for _, dir := range []string{"EFI", "EFI/BOOT", "SYSLINUX"} {
		require.Nil(t, src.Mkdir(dir))
	}
	require.Nil(t, src.SetAttr("SYSLINUX", fatnav.AttrHidden, true))
	require.Nil(t, src.SetAttr("SYSLINUX", fatnav.AttrSystem, true))
	srcRecords, err := src.ScanFiles()
	require.Nil(t, err)
	require.Nil(t, src.Close())

	err = RewriteImage(afs, "dst.img", "src.img", nil, 0)
	require.Nil(t, err)

	dst, err := OpenImage(afs, "dst.img")
	require.Nil(t, err)
	defer dst.Close()
	label, err := dst.VolumeLabel()
	require.Nil(t, err)
	require.Equal(t, "TEST", label)

	records, err := dst.ScanFiles()
	require.Nil(t, err)
	require.Equal(t, recordNames(srcRecords), recordNames(records))
	for n, record := range records {
		require.Equal(t, srcRecords[n].Hidden, record.Hidden, record.Name)
		require.Equal(t, srcRecords[n].System, record.System, record.Name)
	}
	stat, err := afs.Stat("dst.img")
	require.Nil(t, err)
	require.Equal(t, int64(4*MB), stat.Size())

	// the default format uses 8 sectors per cluster
	require.Equal(t, uint8(fat.DefaultSectorsPerCluster), dst.FileSystem().Layout().SectorsPerCluster)
}

func TestImageRewriteMissingSource(t *testing.T) {
	err := RewriteImage(afero.NewMemMapFs(), "dst.img", "src.img", nil, 0)
	require.NotNil(t, err)
}
