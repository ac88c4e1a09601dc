package fat

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/rstms/fatnav"
	"github.com/stretchr/testify/require"
)

func TestCreateSubdirectory(t *testing.T) {
	fs := newSmallFileSystem(t)
	root := fs.Layout().RootCluster
	free := freeClusters(t, fs)

	c, err := fs.CreateSubdirectory(root, "testdir")
	require.Nil(t, err)
	require.True(t, fs.Layout().IsValidCluster(c))
	require.Equal(t, free-1, freeClusters(t, fs))
	require.Equal(t, []string{".", "..", "TESTDIR"}, listNames(t, fs, root))

	e, err := fs.Lookup(root, "TESTDIR")
	require.Nil(t, err)
	require.True(t, e.IsDir())
	require.Equal(t, c, e.Cluster)
	require.Equal(t, uint32(0), e.Size)
	require.Equal(t, testTime, e.ModTime())

	resolved, err := fs.ResolveChild(root, "TESTDIR")
	require.Nil(t, err)
	require.Equal(t, c, resolved)

	for _, name := range []string{"TESTDIR", "testdir", "TestDir"} {
		_, err = fs.CreateSubdirectory(root, name)
		require.ErrorIs(t, err, fatnav.ErrAlreadyExists)
	}
	require.Equal(t, free-1, freeClusters(t, fs))
	require.Len(t, listNames(t, fs, root), 3)
}

func TestCreateSubdirectoryLayout(t *testing.T) {
	fs := newSmallFileSystem(t)
	root := fs.Layout().RootCluster
	sub, err := fs.CreateSubdirectory(root, "SUB")
	require.Nil(t, err)
	nested, err := fs.CreateSubdirectory(sub, "NESTED")
	require.Nil(t, err)

	state, e := readSlot(t, fs, sub, 0)
	require.Equal(t, SlotOccupied, state)
	require.Equal(t, dotName, e.Name)
	require.Equal(t, sub, e.Cluster)
	require.True(t, e.IsDir())

	state, e = readSlot(t, fs, sub, 1)
	require.Equal(t, SlotOccupied, state)
	require.Equal(t, dotDotName, e.Name)
	require.Equal(t, uint32(0), e.Cluster)

	state, _ = readSlot(t, fs, sub, 2)
	require.Equal(t, SlotEnd, state)

	_, e = readSlot(t, fs, nested, 1)
	require.Equal(t, sub, e.Cluster)

	chain, err := fs.Store().Chain(nested)
	require.Nil(t, err)
	require.Equal(t, []uint32{nested}, chain)
}

func TestCreateSubdirectoryNames(t *testing.T) {
	fs := newSmallFileSystem(t)
	root := fs.Layout().RootCluster
	for _, name := range []string{".", ".."} {
		_, err := fs.CreateSubdirectory(root, name)
		require.ErrorIs(t, err, fatnav.ErrAlreadyExists)
	}
	for _, name := range []string{"", "bad name", "toolongname", "a.b.c", "x?", "ſys", "ı"} {
		_, err := fs.CreateSubdirectory(root, name)
		require.ErrorIs(t, err, fatnav.ErrInvalidName)
	}
	require.Equal(t, []string{".", ".."}, listNames(t, fs, root))
}

func TestCreateSubdirectoryExtendsChain(t *testing.T) {
	fs := newSmallFileSystem(t)
	root := fs.Layout().RootCluster
	perCluster := fs.Layout().EntriesPerCluster()
	for i := range perCluster {
		_, err := fs.CreateSubdirectory(root, fmt.Sprintf("D%d", i))
		require.Nil(t, err)
	}
	chain, err := fs.Store().Chain(root)
	require.Nil(t, err)
	require.Len(t, chain, 1)

	free := freeClusters(t, fs)
	_, err = fs.CreateSubdirectory(root, "OVERFLOW")
	require.Nil(t, err)
	require.Equal(t, free-2, freeClusters(t, fs))

	chain, err = fs.Store().Chain(root)
	require.Nil(t, err)
	require.Len(t, chain, 2)
	state, e := readSlot(t, fs, chain[1], 0)
	require.Equal(t, SlotOccupied, state)
	require.Equal(t, "OVERFLOW", e.String())
	state, _ = readSlot(t, fs, chain[1], 1)
	require.Equal(t, SlotEnd, state)
}

func TestCreateSubdirectoryReusesDeletedSlot(t *testing.T) {
	fs := newSmallFileSystem(t)
	root := fs.Layout().RootCluster
	for _, name := range []string{"A", "B"} {
		_, err := fs.CreateSubdirectory(root, name)
		require.Nil(t, err)
	}
	b, err := fs.Store().ReadCluster(root)
	require.Nil(t, err)
	b[0] = 0xE5
	require.Nil(t, fs.Store().WriteCluster(root, b))
	require.Equal(t, []string{".", "..", "B"}, listNames(t, fs, root))

	_, err = fs.CreateSubdirectory(root, "C")
	require.Nil(t, err)
	_, e := readSlot(t, fs, root, 0)
	require.Equal(t, "C", e.String())
	require.Equal(t, []string{".", "..", "C", "B"}, listNames(t, fs, root))

	// a deleted entry does not block its name
	_, err = fs.CreateSubdirectory(root, "A")
	require.Nil(t, err)
	_, e = readSlot(t, fs, root, 2)
	require.Equal(t, "A", e.String())
}

func TestCreateSubdirectoryTerminatesTable(t *testing.T) {
	fs := newSmallFileSystem(t)
	root := fs.Layout().RootCluster
	writeEntry(t, fs, root, 1, NewDirectoryEntry(shortName(t, "STALE"), 20, testTime))
	require.Equal(t, []string{".", ".."}, listNames(t, fs, root))

	_, err := fs.CreateSubdirectory(root, "NEW")
	require.Nil(t, err)
	state, _ := readSlot(t, fs, root, 1)
	require.Equal(t, SlotEnd, state)
	require.Equal(t, []string{".", "..", "NEW"}, listNames(t, fs, root))
}

func TestCreateSubdirectoryTerminatesNextCluster(t *testing.T) {
	fs := newSmallFileSystem(t)
	root := fs.Layout().RootCluster
	store := fs.Store()
	last := fs.Layout().EntriesPerCluster() - 1
	for i := range last {
		_, err := fs.CreateSubdirectory(root, fmt.Sprintf("D%d", i))
		require.Nil(t, err)
	}
	// the chain already has a second cluster holding stale data
	next, err := store.AllocateCluster()
	require.Nil(t, err)
	require.Nil(t, store.ZeroCluster(next))
	require.Nil(t, store.LinkChain(root, next))
	writeEntry(t, fs, next, 0, NewDirectoryEntry(shortName(t, "STALE"), 20, testTime))
	require.Len(t, listNames(t, fs, root), last+2)

	_, err = fs.CreateSubdirectory(root, "NEWDIR")
	require.Nil(t, err)
	_, e := readSlot(t, fs, root, last)
	require.Equal(t, "NEWDIR", e.String())
	state, _ := readSlot(t, fs, next, 0)
	require.Equal(t, SlotEnd, state)

	names := listNames(t, fs, root)
	require.Len(t, names, last+3)
	require.NotContains(t, names, "STALE")
}

func TestCreateSubdirectoryNoSpace(t *testing.T) {
	fs := newTestFileSystem(t, 4*MB, smallConfig())
	root := fs.Layout().RootCluster
	store := fs.Store()
	perCluster := fs.Layout().EntriesPerCluster()
	clusters := uint32(MaxDirectorySlots / perCluster)
	require.Less(t, root+clusters, fs.Layout().MaxCluster())

	filler, err := Entry{Name: shortName(t, "FILLER"), Attr: fatnav.AttrArchive}.Encode()
	require.Nil(t, err)
	full := make([]byte, fs.Layout().ClusterSize())
	for i := range perCluster {
		copy(full[i*DirEntrySize:], filler)
	}
	for c := root; c < root+clusters; c++ {
		require.Nil(t, store.WriteCluster(c, full))
		next := c + 1
		if c == root+clusters-1 {
			next = ClusterEOC
		}
		require.Nil(t, store.setEntry(c, next))
	}

	free := freeClusters(t, fs)
	_, err = fs.CreateSubdirectory(root, "NEWDIR")
	require.ErrorIs(t, err, fatnav.ErrNoSpace)
	require.True(t, fatnav.IsUserError(err))
	require.Equal(t, free, freeClusters(t, fs))

	// the duplicate check still applies to a full table
	_, err = fs.CreateSubdirectory(root, "FILLER")
	require.ErrorIs(t, err, fatnav.ErrAlreadyExists)
}

func TestCreateSubdirectoryVolumeFull(t *testing.T) {
	fs := newSmallFileSystem(t)
	root := fs.Layout().RootCluster
	store := fs.Store()
	for c := root + 1; c < fs.Layout().MaxCluster(); c++ {
		require.Nil(t, store.setEntry(c, ClusterEOC))
	}
	_, err := fs.CreateSubdirectory(root, "NEWDIR")
	require.ErrorIs(t, err, fatnav.ErrVolumeFull)
	require.Equal(t, []string{".", ".."}, listNames(t, fs, root))
}

func TestCreateSubdirectoryConcurrent(t *testing.T) {
	fs := newSmallFileSystem(t)
	root := fs.Layout().RootCluster
	const workers = 8
	var wg sync.WaitGroup
	clusters := make([]uint32, workers)
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clusters[i], errs[i] = fs.CreateSubdirectory(root, fmt.Sprintf("W%d", i))
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.Nil(t, err)
	}
	seen := map[uint32]bool{}
	for _, c := range clusters {
		require.False(t, seen[c])
		seen[c] = true
	}
	names := listNames(t, fs, root)[2:]
	sort.Strings(names)
	want := []string{}
	for i := range workers {
		want = append(want, fmt.Sprintf("W%d", i))
	}
	require.Equal(t, want, names)
}

func TestSetAttr(t *testing.T) {
	fs := newSmallFileSystem(t)
	root := fs.Layout().RootCluster
	_, err := fs.CreateSubdirectory(root, "DIR")
	require.Nil(t, err)

	require.Nil(t, fs.SetAttr(root, "dir", fatnav.AttrHidden|fatnav.AttrSystem, true))
	e, err := fs.Lookup(root, "DIR")
	require.Nil(t, err)
	require.Equal(t, fatnav.AttrDirectory|fatnav.AttrHidden|fatnav.AttrSystem, e.Attr)
	require.True(t, e.IsDir())

	require.Nil(t, fs.SetAttr(root, "DIR", fatnav.AttrSystem, false))
	e, err = fs.Lookup(root, "DIR")
	require.Nil(t, err)
	require.Equal(t, fatnav.AttrDirectory|fatnav.AttrHidden, e.Attr)

	require.NotNil(t, fs.SetAttr(root, "DIR", fatnav.AttrDirectory, false))
	require.NotNil(t, fs.SetAttr(root, "DIR", fatnav.AttrVolumeId, true))
	require.ErrorIs(t, fs.SetAttr(root, "MISSING", fatnav.AttrHidden, true), fatnav.ErrNotFound)
	require.ErrorIs(t, fs.SetAttr(root, ".", fatnav.AttrHidden, true), fatnav.ErrNotFound)
}
