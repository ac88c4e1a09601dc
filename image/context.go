package image

import (
	"slices"
	"strings"

	"github.com/rstms/fatnav/fat"
)

// Context is a position in the directory tree of an image: the first
// cluster of the current directory and the names leading to it from
// the root.
type Context struct {
	Cluster uint32
	Path    []string
}

// RootContext returns the context of the root directory.
func (i *Image) RootContext() Context {
	return Context{Cluster: i.fs.Layout().RootCluster}
}

func (c Context) String() string {
	return "/" + strings.Join(c.Path, "/")
}

// Chdir returns the context of the subdirectory name of ctx. On error
// ctx is returned unchanged.
func (i *Image) Chdir(ctx Context, name string) (Context, error) {
	cluster, err := i.fs.ResolveChild(ctx.Cluster, name)
	if err != nil {
		return ctx, Fatal(err)
	}
	next := Context{Cluster: cluster, Path: slices.Clone(ctx.Path)}
	switch name {
	case ".":
	case "..":
		if len(next.Path) > 0 {
			next.Path = next.Path[:len(next.Path)-1]
		}
	default:
		shortName, err := fat.FormatShortName(name)
		if err != nil {
			return ctx, Fatal(err)
		}
		next.Path = append(next.Path, fat.ShortNameString(shortName))
	}
	return next, nil
}

// List returns the entries of the directory of ctx, "." and ".."
// first.
func (i *Image) List(ctx Context) ([]fat.Entry, error) {
	entries, err := i.fs.ListEntries(ctx.Cluster)
	if err != nil {
		return nil, Fatal(err)
	}
	return entries, nil
}

// MkdirAt creates the subdirectory name in the directory of ctx.
func (i *Image) MkdirAt(ctx Context, name string) (uint32, error) {
	cluster, err := i.fs.CreateSubdirectory(ctx.Cluster, name)
	if err != nil {
		return 0, Fatal(err)
	}
	return cluster, nil
}
