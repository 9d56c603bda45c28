// Package memvfs is an in-memory vfs.Mount used by tests and as the mount
// `hotpocket run` wires in. It is not a production vfs daemon; it exists so
// the consensus core, state-sync, and log-sync machinery are
// independently testable.
package memvfs

import (
	"context"
	"sort"
	"sync"

	"github.com/hotpocket/hpcore/hash"
	"github.com/hotpocket/hpcore/vfs"
)

type node struct {
	isFile   bool
	blocks   [][]byte // file contents, chunked to vfs.BlockSize
	children map[string]*node
}

func newDir() *node { return &node{children: map[string]*node{}} }

func (n *node) hash() hash.H32 {
	if n.isFile {
		return fileHash(n.blocks)
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	var parts [][]byte
	for _, name := range names {
		child := n.children[name]
		h := child.hash()
		parts = append(parts, []byte(name), h[:])
	}
	return hash.SumAll(parts...)
}

func fileHash(blocks [][]byte) hash.H32 {
	var parts [][]byte
	for _, b := range blocks {
		h := hash.Sum(b)
		parts = append(parts, h[:])
	}
	return hash.SumAll(parts...)
}

func blockHashes(blocks [][]byte) []hash.H32 {
	out := make([]hash.H32, len(blocks))
	for i, b := range blocks {
		out[i] = hash.Sum(b)
	}
	return out
}

// Mount is a single in-memory vfs mount with one RW session and a simple
// append-only operation log.
type Mount struct {
	mu sync.Mutex

	root      *node
	rwHeld    bool
	logs      [][]byte // index i holds the log bytes appended at seq i+1
	lastSeqNo uint64
	indexHash map[uint64]hash.H32
}

// New returns an empty mount seeded with the canonical contract layout:
// an empty /state directory and an empty /patch.cfg file, the two paths
// the execution fence hashes after every run.
func New() *Mount {
	root := newDir()
	root.children["state"] = newDir()
	root.children["patch.cfg"] = &node{isFile: true}
	return &Mount{
		root:      root,
		indexHash: map[uint64]hash.H32{0: hash.Zero},
	}
}

func (m *Mount) AcquireRW(ctx context.Context) (vfs.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rwHeld = true
	return vfs.Session{Name: "rw"}, nil
}

func (m *Mount) ReleaseRW(ctx context.Context, s vfs.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rwHeld = false
	return nil
}

func (m *Mount) StartRO(ctx context.Context, name string, withHashMap bool) (vfs.Session, error) {
	return vfs.Session{Name: name}, nil
}

func (m *Mount) StopRO(ctx context.Context, s vfs.Session) error { return nil }

func (m *Mount) walk(vpath string) (*node, bool) {
	if vpath == "" || vpath == "/" {
		return m.root, true
	}
	cur := m.root
	for _, part := range splitPath(vpath) {
		child, ok := cur.children[part]
		if !ok {
			return nil, false
		}
		cur = child
	}
	return cur, true
}

func splitPath(vpath string) []string {
	var parts []string
	cur := ""
	for _, r := range vpath {
		if r == '/' {
			if cur != "" {
				parts = append(parts, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		parts = append(parts, cur)
	}
	return parts
}

func (m *Mount) GetHash(ctx context.Context, s vfs.Session, vpath string) (hash.H32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.walk(vpath)
	if !ok {
		return hash.Zero, errNotFound
	}
	return n.hash(), nil
}

func (m *Mount) GetFileBlockHashes(ctx context.Context, s vfs.Session, vpath string) ([]hash.H32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.walk(vpath)
	if !ok || !n.isFile {
		return nil, errNotFound
	}
	return blockHashes(n.blocks), nil
}

func (m *Mount) GetDirChildrenHashes(ctx context.Context, s vfs.Session, vpath string) ([]vfs.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.walk(vpath)
	if !ok || n.isFile {
		return nil, errNotFound
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]vfs.DirEntry, 0, len(names))
	for _, name := range names {
		child := n.children[name]
		out = append(out, vfs.DirEntry{Name: name, IsFile: child.isFile, Hash: child.hash()})
	}
	return out, nil
}

func (m *Mount) PhysicalPath(ctx context.Context, s vfs.Session, vpath string) (string, error) {
	return "/memvfs" + vpath, nil
}

func (m *Mount) ReadBlock(ctx context.Context, s vfs.Session, vpath string, blockIndex int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.walk(vpath)
	if !ok || !n.isFile || blockIndex >= len(n.blocks) {
		return nil, errNotFound
	}
	return append([]byte(nil), n.blocks[blockIndex]...), nil
}

func (m *Mount) WriteBlock(ctx context.Context, s vfs.Session, vpath string, blockIndex int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.mkfile(vpath)
	if !ok {
		return errNotFound
	}
	for len(n.blocks) <= blockIndex {
		n.blocks = append(n.blocks, nil)
	}
	n.blocks[blockIndex] = append([]byte(nil), data...)
	return nil
}

func (m *Mount) mkfile(vpath string) (*node, bool) {
	parts := splitPath(vpath)
	if len(parts) == 0 {
		return nil, false
	}
	cur := m.root
	for _, part := range parts[:len(parts)-1] {
		child, ok := cur.children[part]
		if !ok {
			child = newDir()
			cur.children[part] = child
		}
		cur = child
	}
	name := parts[len(parts)-1]
	child, ok := cur.children[name]
	if !ok {
		child = &node{isFile: true}
		cur.children[name] = child
	}
	return child, true
}

func (m *Mount) EnsureDir(ctx context.Context, s vfs.Session, vpath string, entries []vfs.DirEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	parts := splitPath(vpath)
	cur := m.root
	for _, part := range parts {
		child, ok := cur.children[part]
		if !ok {
			child = newDir()
			cur.children[part] = child
		}
		cur = child
	}
	for _, e := range entries {
		if _, exists := cur.children[e.Name]; !exists {
			if e.IsFile {
				cur.children[e.Name] = &node{isFile: true}
			} else {
				cur.children[e.Name] = newDir()
			}
		}
	}
	return nil
}

func (m *Mount) UpdateIndex(ctx context.Context, seqNo uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexHash[seqNo] = m.root.hash()
	return nil
}

func (m *Mount) TruncateLog(ctx context.Context, seqNo uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seqNo < uint64(len(m.logs)) {
		m.logs = m.logs[:seqNo]
	}
	m.lastSeqNo = seqNo
	return nil
}

func (m *Mount) ReadLogs(ctx context.Context, min, max uint64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []byte
	for i := min; i <= max && int(i) < len(m.logs)+1; i++ {
		if i == 0 || int(i-1) >= len(m.logs) {
			continue
		}
		out = append(out, m.logs[i-1]...)
	}
	return out, nil
}

func (m *Mount) AppendLogs(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, data)
	m.lastSeqNo = uint64(len(m.logs))
	return nil
}

func (m *Mount) GetLastSeqNo(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSeqNo, nil
}

func (m *Mount) GetHashBySeqNo(ctx context.Context, seqNo uint64) (hash.H32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.indexHash[seqNo]
	if !ok {
		return hash.Zero, errNotFound
	}
	return h, nil
}

var errNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "memvfs: path not found" }

var _ vfs.Mount = (*Mount)(nil)
