package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func setupFs(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	saved := appFs
	appFs = afero.NewMemMapFs()
	t.Cleanup(func() { appFs = saved })
}

func TestCommands(t *testing.T) {
	setupFs(t)

	_, err := run(t, "", "format", "--size", "4MiB", "--label", "cli", "--sectors-per-cluster", "1", "-q", "cli.img")
	require.Nil(t, err)
	stat, err := appFs.Stat("cli.img")
	require.Nil(t, err)
	require.Equal(t, int64(4*1024*1024), stat.Size())

	_, err = run(t, "", "mkdir", "-q", "cli.img", "/EFI", "/EFI/BOOT")
	require.Nil(t, err)

	out, err := run(t, "", "ls", "-i", "cli.img", "/efi")
	require.Nil(t, err)
	require.Equal(t, ".\n..\nBOOT\n", out)

	out, err = run(t, "", "ls", "-l", "cli.img")
	require.Nil(t, err)
	require.Contains(t, out, "d----- ")
	require.Contains(t, out, " EFI\n")

	out, err = run(t, "", "tree", "cli.img")
	require.Nil(t, err)
	require.Equal(t, "/EFI/\n/EFI/BOOT/\n", out)

	out, err = run(t, "", "info", "cli.img")
	require.Nil(t, err)
	require.Contains(t, out, "volume_label:        CLI\n")
	require.Contains(t, out, "sectors_per_cluster: 1\n")
	require.Contains(t, out, "size:                4MiB\n")

	out, err = run(t, "cd EFI\nmkdir GRUB\nls\nexit\n", "shell", "cli.img")
	require.Nil(t, err)
	require.Contains(t, out, "[cli.img/EFI]/> Directory created: GRUB\n")
	require.Contains(t, out, ".\n..\nBOOT\nGRUB\n")

	out, err = run(t, "", "tree", "cli.img")
	require.Nil(t, err)
	require.Equal(t, "/EFI/\n/EFI/BOOT/\n/EFI/GRUB/\n", out)
}

func TestCommandErrors(t *testing.T) {
	setupFs(t)

	_, err := run(t, "", "info")
	require.NotNil(t, err)
	_, err = run(t, "", "info", "missing.img")
	require.NotNil(t, err)
	_, err = run(t, "", "format", "--size", "lots", "bad.img")
	require.NotNil(t, err)
	_, err = run(t, "", "info", "-q", "-v", "missing.img")
	require.NotNil(t, err)

	_, err = run(t, "", "format", "-q", "err.img")
	require.Nil(t, err)
	_, err = run(t, "", "mkdir", "err.img")
	require.NotNil(t, err)
	_, err = run(t, "", "mkdir", "err.img", "/missing/dir")
	require.NotNil(t, err)
}

func TestImageFromEnvironment(t *testing.T) {
	setupFs(t)
	t.Setenv("FATNAV_IMAGE", "env.img")
	t.Setenv("FATNAV_FORMAT_SIZE", "2MiB")

	_, err := run(t, "", "format", "-q")
	require.Nil(t, err)
	stat, err := appFs.Stat("env.img")
	require.Nil(t, err)
	require.Equal(t, int64(2*1024*1024), stat.Size())

	_, err = run(t, "", "mkdir", "-q", "/DOCS")
	require.Nil(t, err)
	out, err := run(t, "", "tree")
	require.Nil(t, err)
	require.Equal(t, "/DOCS/\n", out)
}
