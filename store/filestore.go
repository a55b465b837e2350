package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore is a Store backed by a single JSON file. Writes go through a
// temp file and rename so a power cut never leaves a half-written store.
type FileStore struct {
	mu   sync.Mutex
	path string
	data map[string]map[string]string
}

// OpenFile loads the store at path, creating an empty one if the file does
// not exist yet.
func OpenFile(path string) (*FileStore, error) {
	fs := &FileStore{
		path: path,
		data: make(map[string]map[string]string),
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fs, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &fs.data); err != nil {
		return nil, fmt.Errorf("store: corrupt file %s: %w", path, err)
	}
	return fs, nil
}

func (f *FileStore) ReadStr(ns, key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[ns][key]
	return v, ok
}

func (f *FileStore) WriteStr(ns, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[ns] == nil {
		f.data[ns] = make(map[string]string)
	}
	f.data[ns][key] = value
	return f.flushLocked()
}

func (f *FileStore) ReadUint(ns, key string) (uint64, bool) {
	s, ok := f.ReadStr(ns, key)
	if !ok {
		return 0, false
	}
	var v uint64
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, false
	}
	return v, true
}

func (f *FileStore) WriteUint(ns, key string, value uint64) error {
	return f.WriteStr(ns, key, fmt.Sprintf("%d", value))
}

func (f *FileStore) EraseNamespace(ns string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, ns)
	return f.flushLocked()
}

func (f *FileStore) flushLocked() error {
	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

func NewMem() *MemStore {
	return &MemStore{data: make(map[string]map[string]string)}
}

func (m *MemStore) ReadStr(ns, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[ns][key]
	return v, ok
}

func (m *MemStore) WriteStr(ns, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[ns] == nil {
		m.data[ns] = make(map[string]string)
	}
	m.data[ns][key] = value
	return nil
}

func (m *MemStore) ReadUint(ns, key string) (uint64, bool) {
	s, ok := m.ReadStr(ns, key)
	if !ok {
		return 0, false
	}
	var v uint64
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, false
	}
	return v, true
}

func (m *MemStore) WriteUint(ns, key string, value uint64) error {
	return m.WriteStr(ns, key, fmt.Sprintf("%d", value))
}

func (m *MemStore) EraseNamespace(ns string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, ns)
	return nil
}
