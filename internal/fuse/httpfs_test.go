package fuse

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"syscall"
	"testing"

	bazilfuse "bazil.org/fuse"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/higlass/httpfs-go/internal/engine"
)

type stubFetcher struct {
	objects map[string][]byte
}

func (s *stubFetcher) Size(ctx context.Context, url string) (int64, error) {
	data, ok := s.objects[url]
	if !ok {
		return 0, fmt.Errorf("no such object: %s", url)
	}
	return int64(len(data)), nil
}

func (s *stubFetcher) Range(ctx context.Context, url string, start, end int64) ([]byte, error) {
	data, ok := s.objects[url]
	if !ok {
		return nil, fmt.Errorf("no such object: %s", url)
	}
	if start >= int64(len(data)) {
		return nil, nil
	}
	if end >= int64(len(data)) {
		end = int64(len(data)) - 1
	}
	return data[start : end+1], nil
}

func newTestFS(t *testing.T, objects map[string][]byte) *HTTPFS {
	t.Helper()
	eng, err := engine.New(engine.Config{
		Schema:  "https",
		Fetcher: &stubFetcher{objects: objects},
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	return New(eng, zerolog.Nop())
}

func TestRootIsDirectory(t *testing.T) {
	httpfs := newTestFS(t, nil)

	root, err := httpfs.Root()
	require.NoError(t, err)

	var attr bazilfuse.Attr
	require.NoError(t, root.Attr(context.Background(), &attr))
	assert.True(t, attr.Mode.IsDir())
	assert.Equal(t, os.FileMode(0o555), attr.Mode.Perm())
	assert.Equal(t, uint32(2), attr.Nlink)
}

func TestLookupDirectory(t *testing.T) {
	httpfs := newTestFS(t, nil)

	root, err := httpfs.Root()
	require.NoError(t, err)

	node, err := root.(*Dir).Lookup(context.Background(), "example.com")
	require.NoError(t, err)
	require.IsType(t, &Dir{}, node)
	assert.Equal(t, "/example.com", node.(*Dir).path)
}

func TestLookupFile(t *testing.T) {
	httpfs := newTestFS(t, map[string][]byte{
		"https://example.com/data.bin": []byte("hello, world"),
	})

	root, err := httpfs.Root()
	require.NoError(t, err)

	dir, err := root.(*Dir).Lookup(context.Background(), "example.com")
	require.NoError(t, err)

	node, err := dir.(*Dir).Lookup(context.Background(), "data.bin..")
	require.NoError(t, err)
	require.IsType(t, &File{}, node)

	var attr bazilfuse.Attr
	require.NoError(t, node.Attr(context.Background(), &attr))
	assert.False(t, attr.Mode.IsDir())
	assert.Equal(t, uint64(12), attr.Size)
}

func TestLookupMissingFile(t *testing.T) {
	httpfs := newTestFS(t, nil)

	root, err := httpfs.Root()
	require.NoError(t, err)

	_, err = root.(*Dir).Lookup(context.Background(), "nothing-here..")
	assert.Equal(t, syscall.ENOENT, err)
}

func TestReadDirAllIsEmpty(t *testing.T) {
	httpfs := newTestFS(t, nil)

	root, err := httpfs.Root()
	require.NoError(t, err)

	entries, err := root.(*Dir).ReadDirAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileRead(t *testing.T) {
	httpfs := newTestFS(t, map[string][]byte{
		"https://example.com/data.bin": []byte("hello, world"),
	})

	root, err := httpfs.Root()
	require.NoError(t, err)
	dir, err := root.(*Dir).Lookup(context.Background(), "example.com")
	require.NoError(t, err)
	node, err := dir.(*Dir).Lookup(context.Background(), "data.bin..")
	require.NoError(t, err)
	file := node.(*File)

	handle, err := file.Open(context.Background(), &bazilfuse.OpenRequest{}, &bazilfuse.OpenResponse{})
	require.NoError(t, err)

	var resp bazilfuse.ReadResponse
	err = handle.(*File).Read(context.Background(), &bazilfuse.ReadRequest{Offset: 7, Size: 5}, &resp)
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), resp.Data)
}

func TestMutatingOperationsSucceedAsNoOps(t *testing.T) {
	httpfs := newTestFS(t, map[string][]byte{
		"https://example.com/data.bin": []byte("hello, world"),
	})

	root, err := httpfs.Root()
	require.NoError(t, err)
	rootDir := root.(*Dir)

	node, err := rootDir.Mkdir(context.Background(), &bazilfuse.MkdirRequest{Name: "newdir"})
	require.NoError(t, err)
	assert.IsType(t, &Dir{}, node)

	created, handle, err := rootDir.Create(context.Background(),
		&bazilfuse.CreateRequest{Name: "newfile.."}, &bazilfuse.CreateResponse{})
	require.NoError(t, err)
	assert.IsType(t, &File{}, created)
	assert.NotNil(t, handle)

	require.NoError(t, rootDir.Remove(context.Background(), &bazilfuse.RemoveRequest{Name: "newdir"}))

	dir, err := rootDir.Lookup(context.Background(), "example.com")
	require.NoError(t, err)
	leaf, err := dir.(*Dir).Lookup(context.Background(), "data.bin..")
	require.NoError(t, err)
	file := leaf.(*File)

	var writeResp bazilfuse.WriteResponse
	require.NoError(t, file.Write(context.Background(),
		&bazilfuse.WriteRequest{Data: []byte("ignored")}, &writeResp))
	assert.Equal(t, 7, writeResp.Size)

	var setattrResp bazilfuse.SetattrResponse
	require.NoError(t, file.Setattr(context.Background(), &bazilfuse.SetattrRequest{}, &setattrResp))
	assert.Equal(t, uint64(12), setattrResp.Attr.Size)

	require.NoError(t, file.Flush(context.Background(), &bazilfuse.FlushRequest{}))
	require.NoError(t, file.Fsync(context.Background(), &bazilfuse.FsyncRequest{}))
	require.NoError(t, file.Release(context.Background(), &bazilfuse.ReleaseRequest{}))

	// The object content is untouched by any of the above.
	var readResp bazilfuse.ReadResponse
	require.NoError(t, file.Read(context.Background(),
		&bazilfuse.ReadRequest{Offset: 0, Size: 12}, &readResp))
	assert.Equal(t, []byte("hello, world"), readResp.Data)
}

// A kernel-level read-only mount would make the VFS reject write-opens with
// EROFS before any request reaches the no-op mutation handlers, so the mount
// options must never carry the read-only flag.
func TestMountOptionsOmitKernelReadOnly(t *testing.T) {
	readOnly := reflect.ValueOf(bazilfuse.ReadOnly()).Pointer()

	for _, allowOther := range []bool{false, true} {
		for _, opt := range mountOptions(MountOptions{AllowOther: allowOther}) {
			assert.NotEqual(t, readOnly, reflect.ValueOf(opt).Pointer())
		}
	}

	assert.Len(t, mountOptions(MountOptions{}), 2)
	assert.Len(t, mountOptions(MountOptions{AllowOther: true}), 3)
}

func TestSidecarLookup(t *testing.T) {
	httpfs := newTestFS(t, nil)

	root, err := httpfs.Root()
	require.NoError(t, err)

	node, err := root.(*Dir).Lookup(context.Background(), "db.sqlite-journal")
	require.NoError(t, err)
	require.IsType(t, &File{}, node)

	var attr bazilfuse.Attr
	require.NoError(t, node.Attr(context.Background(), &attr))
	assert.Equal(t, uint64(0), attr.Size)
}
