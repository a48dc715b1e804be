package paths

import (
	"net/url"
	"strings"
	"sync"
)

// FileScheme is the URI scheme backends see.
const FileScheme = "file://"

// Transformer converts caller-visible workspace paths ("/proj/a.txt") to
// backend-visible file URIs and back. Each backend may declare its own
// projects root; backends without one use the default root.
type Transformer struct {
	defaultRoot string

	mu    sync.RWMutex
	roots map[string]string
}

// NewTransformer creates a Transformer with the given default projects root.
func NewTransformer(defaultRoot string) *Transformer {
	return &Transformer{
		defaultRoot: cleanRoot(defaultRoot),
		roots:       make(map[string]string),
	}
}

// SetRoot records a backend-specific projects root. An empty root clears it.
func (t *Transformer) SetRoot(backendID, root string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if root == "" {
		delete(t.roots, backendID)
		return
	}
	t.roots[backendID] = cleanRoot(root)
}

// Root returns the projects root used for backendID.
func (t *Transformer) Root(backendID string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if r, ok := t.roots[backendID]; ok {
		return r
	}
	return t.defaultRoot
}

// ToFsURI maps a workspace path to the backend's file URI.
func (t *Transformer) ToFsURI(backendID, wsPath string) string {
	return FileURI(t.ToFsPath(backendID, wsPath))
}

// ToFsPath maps a workspace path to an absolute filesystem path.
func (t *Transformer) ToFsPath(backendID, wsPath string) string {
	if !strings.HasPrefix(wsPath, "/") {
		wsPath = "/" + wsPath
	}
	return t.Root(backendID) + wsPath
}

// ToWsPath maps a backend file URI back to a workspace path. URIs outside
// the backend's projects root are returned unchanged.
func (t *Transformer) ToWsPath(backendID, fsURI string) string {
	if !IsFileURI(fsURI) {
		return fsURI
	}
	fsPath := FsPathFromURI(fsURI)
	root := t.Root(backendID)
	if !strings.HasPrefix(fsPath, root) {
		return fsURI
	}
	rest := fsPath[len(root):]
	switch {
	case rest == "":
		return "/"
	case strings.HasPrefix(rest, "/"):
		return rest
	default:
		// prefix matched mid-segment, e.g. /projects2 against /projects
		return fsURI
	}
}

// WsPathFromAny accepts either a workspace path or a file URI under the
// backend's root and returns the workspace path.
func (t *Transformer) WsPathFromAny(backendID, pathOrURI string) string {
	if IsFileURI(pathOrURI) {
		return t.ToWsPath(backendID, pathOrURI)
	}
	return pathOrURI
}

// IsFileURI reports whether s carries the file scheme.
func IsFileURI(s string) bool {
	return strings.HasPrefix(s, FileScheme)
}

// FileURI percent-encodes an absolute filesystem path as a file URI.
func FileURI(fsPath string) string {
	if fsPath == "" {
		fsPath = "/"
	}
	return (&url.URL{Scheme: "file", Path: fsPath}).String()
}

// FsPathFromURI decodes the path of a file URI. Paths that are not valid
// percent-encodings are returned as sent.
func FsPathFromURI(uri string) string {
	p := strings.TrimPrefix(uri, FileScheme)
	if unescaped, err := url.PathUnescape(p); err == nil {
		return unescaped
	}
	return p
}

func cleanRoot(root string) string {
	root = strings.TrimRight(root, "/")
	if root != "" && !strings.HasPrefix(root, "/") {
		root = "/" + root
	}
	return root
}
