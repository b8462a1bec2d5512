package engine

import "strings"

// LeafMarker is the two-character suffix the filesystem adapter appends to a
// path to mark it as a leaf file rather than a directory.
const LeafMarker = ".."

// sidecarSuffixes mark embedded-database sidecar files (SQLite journals and
// write-ahead logs). Such paths are always presented as empty files so that
// database clients probing for them do not fail the whole open.
var sidecarSuffixes = []string{"-journal", "-wal"}

// PathKind classifies a resolved path.
type PathKind int

const (
	// KindDirectory is any path without the leaf marker.
	KindDirectory PathKind = iota
	// KindFile is a leaf path backed by a remote object.
	KindFile
	// KindSidecar is a journal/WAL sidecar path: a zero-size file whose
	// attributes are synthesized without a remote size lookup.
	KindSidecar
)

// Resolve maps a filesystem path to a backend URL and a path kind for the
// given schema. It is a pure string transform with no error conditions:
// malformed paths degrade to directories.
func Resolve(path, schema string) (url string, kind PathKind) {
	if path == "" || path == "/" {
		return "", KindDirectory
	}

	rest, isLeaf := strings.CutSuffix(path, LeafMarker)
	if isSidecar(rest) {
		return schema + ":/" + rest, KindSidecar
	}
	if !isLeaf {
		return "", KindDirectory
	}
	return schema + ":/" + rest, KindFile
}

func isSidecar(path string) bool {
	for _, suffix := range sidecarSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}
