// Package vfs implements the in-memory virtual file store that backs the
// mill's upload/download and filesystem commands: a mapping from
// normalized absolute path to file bytes and their MD5 digest.
package vfs

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"sync"
)

// File is a single virtual file: its path, size, raw contents, and the
// lowercase hex MD5 of those contents.
type File struct {
	Path     string
	Size     uint64
	Contents []byte
	MD5      string
}

// Store is the backing-store contract the session's filesystem and
// upload/download handlers are built against.
type Store interface {
	Exists(path string) bool
	Read(path string) (File, bool)
	Write(path string, contents []byte) File
	// WriteWithDigest stores contents under path tagged with an
	// explicitly supplied MD5, for callers that need the recorded
	// digest to cover bytes other than the ones actually persisted
	// (e.g. the raw upload before base64 encoding).
	WriteWithDigest(path string, contents []byte, md5Hex string) File
	Delete(path string) bool
	Move(src, dst string) bool
	ListDirectory(path string) []File
}

// memStore is a sync.RWMutex-guarded map. One active session per the
// session-exclusivity invariant is all the protocol requires, but the
// store outlives any one session — startup loading and each session's
// handlers touch it — so it is guarded like any other shared map.
type memStore struct {
	mu    sync.RWMutex
	files map[string]File
}

// New returns an empty store.
func New() Store {
	return &memStore{files: make(map[string]File)}
}

func (s *memStore) Exists(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.files[path]
	return ok
}

func (s *memStore) Read(path string) (File, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[path]
	return f, ok
}

func (s *memStore) Write(path string, contents []byte) File {
	sum := md5.Sum(contents)
	f := File{
		Path:     path,
		Size:     uint64(len(contents)),
		Contents: contents,
		MD5:      hex.EncodeToString(sum[:]),
	}
	s.mu.Lock()
	s.files[path] = f
	s.mu.Unlock()
	return f
}

func (s *memStore) WriteWithDigest(path string, contents []byte, md5Hex string) File {
	f := File{
		Path:     path,
		Size:     uint64(len(contents)),
		Contents: contents,
		MD5:      md5Hex,
	}
	s.mu.Lock()
	s.files[path] = f
	s.mu.Unlock()
	return f
}

func (s *memStore) Delete(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[path]; !ok {
		return false
	}
	delete(s.files, path)
	return true
}

func (s *memStore) Move(src, dst string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[src]
	if !ok {
		return false
	}
	delete(s.files, src)
	f.Path = dst
	s.files[dst] = f
	return true
}

// ListDirectory returns every file whose normalized parent directory
// equals path, one level deep — matching `ls`, not `ls -R`.
func (s *memStore) ListDirectory(path string) []File {
	dir := strings.TrimSuffix(path, "/")
	if dir == "" {
		dir = "/"
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []File
	for p, f := range s.files {
		if parentOf(p) == dir {
			out = append(out, f)
		}
	}
	return out
}

func parentOf(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i <= 0 {
		return "/"
	}
	return path[:i]
}
