package engine

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Attr describes a resolved path: directory or regular file plus size and
// timestamps. Attrs are immutable once cached; a refresh replaces the entry.
type Attr struct {
	Mode  os.FileMode
	Nlink uint32
	Size  int64
	Mtime time.Time
	Ctime time.Time
	Atime time.Time
}

// IsDir reports whether the attribute describes a directory.
func (a *Attr) IsDir() bool {
	return a.Mode.IsDir()
}

func directoryAttr() *Attr {
	now := time.Now()
	return &Attr{
		Mode:  os.ModeDir | 0o555,
		Nlink: 2,
		Mtime: now,
		Ctime: now,
		Atime: now,
	}
}

func fileAttr(size int64) *Attr {
	now := time.Now()
	return &Attr{
		Mode:  0o644,
		Nlink: 1,
		Size:  size,
		Mtime: now,
		Ctime: now,
		Atime: now,
	}
}

// GetAttr resolves the attributes of a path, memoized in the attribute
// cache. Directory and sidecar attributes are synthesized locally; leaf
// files require a remote size query. Lookup failures map to ErrNotFound and
// are never cached, so a later retry can succeed once the remote resource
// becomes reachable.
func (e *Engine) GetAttr(ctx context.Context, path string) (*Attr, error) {
	if attr, ok := e.attrs.Get(path); ok {
		return attr, nil
	}

	url, kind := Resolve(path, e.schema)

	var attr *Attr
	switch kind {
	case KindDirectory:
		attr = directoryAttr()
	case KindSidecar:
		attr = fileAttr(0)
	case KindFile:
		size, err := e.fetcher.Size(ctx, url)
		if err != nil {
			e.logger.Debug().Str("url", url).Err(err).Msg("size lookup failed")
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		attr = fileAttr(size)
	}

	e.attrs.Set(path, attr)
	return attr, nil
}
