// Package fuse adapts the cache-and-fetch engine to the kernel filesystem
// interface via bazil.org/fuse. The filesystem is read-only: mutating
// operations are accepted and succeed as no-ops so that callers probing for
// writability do not fail, but nothing is ever written to the remote side.
package fuse

import (
	"context"
	"errors"
	"os"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/rs/zerolog"

	"github.com/higlass/httpfs-go/internal/engine"
)

// HTTPFS implements the fuse.FS interface over one engine instance.
type HTTPFS struct {
	engine *engine.Engine
	logger zerolog.Logger
}

var _ fs.FS = (*HTTPFS)(nil)

// New creates the filesystem adapter.
func New(eng *engine.Engine, logger zerolog.Logger) *HTTPFS {
	return &HTTPFS{engine: eng, logger: logger}
}

// Root returns the root directory.
func (h *HTTPFS) Root() (fs.Node, error) {
	return &Dir{fs: h, path: "/"}, nil
}

// applyAttr copies engine attributes into a FUSE attribute response.
func applyAttr(attr *engine.Attr, a *fuse.Attr) {
	a.Mode = attr.Mode
	a.Nlink = attr.Nlink
	a.Size = uint64(attr.Size)
	a.Mtime = attr.Mtime
	a.Ctime = attr.Ctime
	a.Atime = attr.Atime
	a.Uid = uint32(os.Getuid())
	a.Gid = uint32(os.Getgid())
}

// Dir represents a directory node. Every path without the leaf marker is a
// directory; directories are synthesized without remote traffic.
type Dir struct {
	fs   *HTTPFS
	path string
}

var _ fs.Node = (*Dir)(nil)
var _ fs.NodeStringLookuper = (*Dir)(nil)
var _ fs.HandleReadDirAller = (*Dir)(nil)
var _ fs.NodeMkdirer = (*Dir)(nil)
var _ fs.NodeCreater = (*Dir)(nil)
var _ fs.NodeRemover = (*Dir)(nil)

// Attr returns directory attributes.
func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	attr, err := d.fs.engine.GetAttr(ctx, d.path)
	if err != nil {
		return syscall.ENOENT
	}
	applyAttr(attr, a)
	return nil
}

// Lookup resolves a child node. Children carrying the leaf marker resolve
// against the remote backend; everything else is a directory.
func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	childPath := d.path
	if childPath != "/" {
		childPath += "/"
	}
	childPath += name

	attr, err := d.fs.engine.GetAttr(ctx, childPath)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return nil, syscall.ENOENT
		}
		return nil, syscall.EIO
	}

	if attr.IsDir() {
		return &Dir{fs: d.fs, path: childPath}, nil
	}
	return &File{fs: d.fs, path: childPath}, nil
}

// ReadDirAll returns an empty listing: remote backends cannot be enumerated,
// entries exist only through lookup.
func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	return nil, nil
}

// Mkdir accepts directory creation as a no-op.
func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	childPath := d.path
	if childPath != "/" {
		childPath += "/"
	}
	childPath += req.Name
	return &Dir{fs: d.fs, path: childPath}, nil
}

// Create accepts file creation as a no-op and hands back a file node.
func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	childPath := d.path
	if childPath != "/" {
		childPath += "/"
	}
	childPath += req.Name

	file := &File{fs: d.fs, path: childPath}
	return file, file, nil
}

// Remove accepts unlink as a no-op.
func (d *Dir) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	return nil
}

// File represents a leaf node backed by a remote object.
type File struct {
	fs   *HTTPFS
	path string
}

var _ fs.Node = (*File)(nil)
var _ fs.NodeOpener = (*File)(nil)
var _ fs.HandleReader = (*File)(nil)
var _ fs.HandleWriter = (*File)(nil)
var _ fs.NodeSetattrer = (*File)(nil)
var _ fs.NodeFsyncer = (*File)(nil)
var _ fs.HandleFlusher = (*File)(nil)
var _ fs.HandleReleaser = (*File)(nil)

// Attr returns file attributes.
func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	attr, err := f.fs.engine.GetAttr(ctx, f.path)
	if err != nil {
		return syscall.ENOENT
	}
	applyAttr(attr, a)
	return nil
}

// Open opens the file. Reads are stateless, so the node doubles as the
// handle.
func (f *File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	return f, nil
}

// Read serves a byte range through the read assembler.
func (f *File) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	data, err := f.fs.engine.Read(ctx, f.path, req.Size, req.Offset)
	if err != nil {
		f.fs.logger.Error().Str("path", f.path).Err(err).Msg("read failed")
		return syscall.EIO
	}
	resp.Data = data
	return nil
}

// Write accepts the data and reports success without storing anything.
func (f *File) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	resp.Size = len(req.Data)
	return nil
}

// Setattr accepts attribute changes as a no-op, reporting current values.
func (f *File) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	attr, err := f.fs.engine.GetAttr(ctx, f.path)
	if err != nil {
		return syscall.ENOENT
	}
	applyAttr(attr, &resp.Attr)
	return nil
}

// Flush is a no-op; there is nothing buffered to flush.
func (f *File) Flush(ctx context.Context, req *fuse.FlushRequest) error {
	return nil
}

// Fsync is a no-op.
func (f *File) Fsync(ctx context.Context, req *fuse.FsyncRequest) error {
	return nil
}

// Release releases the handle.
func (f *File) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	return nil
}

// MountOptions configures the kernel mount.
type MountOptions struct {
	// AllowOther permits access by users other than the mounting one.
	AllowOther bool
}

// mountOptions builds the kernel mount options. The mount is deliberately
// not flagged read-only: an MS_RDONLY mount would make the kernel reject
// write-opens with EROFS before they reach the no-op handlers, breaking
// callers that probe writability. Read-only behavior comes from the handlers
// discarding every mutation.
func mountOptions(options MountOptions) []fuse.MountOption {
	mountOpts := []fuse.MountOption{
		fuse.FSName("httpfs"),
		fuse.Subtype("httpfs-go"),
	}
	if options.AllowOther {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}
	return mountOpts
}

// Mount mounts the filesystem at the given mountpoint and serves kernel
// requests until the connection closes. The engine is closed on return.
func Mount(mountpoint string, eng *engine.Engine, logger zerolog.Logger, options MountOptions) error {
	c, err := fuse.Mount(mountpoint, mountOptions(options)...)
	if err != nil {
		return err
	}
	defer c.Close()
	defer eng.Close()

	logger.Info().
		Str("mountpoint", mountpoint).
		Str("schema", eng.Schema()).
		Int64("block_size", eng.BlockSize()).
		Msg("mounted filesystem")

	return fs.Serve(c, New(eng, logger))
}

// Unmount detaches the filesystem at the given mountpoint.
func Unmount(mountpoint string) error {
	return fuse.Unmount(mountpoint)
}
