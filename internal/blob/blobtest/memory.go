// Package blobtest provides an in-memory blob.Store that records every call,
// for tests of code that talks to the blob store.
package blobtest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/psync-dev/psync/internal/blob"
)

// Call names as recorded by MemoryStore.
const (
	CallExists = "exists"
	CallPut    = "put"
	CallGet    = "get"
	CallList   = "list"
)

type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	calls   []string

	// Fail, when set, is returned by the named call instead of doing any work.
	Fail map[string]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: map[string][]byte{},
		Fail:    map[string]error{},
	}
}

func (m *MemoryStore) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	return m.Fail[call]
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	if err := m.record(CallExists); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, body io.Reader, size int64) error {
	if err := m.record(CallPut); err != nil {
		return err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("put %s: read %d bytes, declared %d", key, len(data), size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	if err := m.record(CallGet); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, &blob.Error{Op: "get", Bucket: "memory", Key: key, Err: blob.ErrObjectNotFound}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryStore) ListTopLevelGroups(_ context.Context) ([]string, error) {
	if err := m.record(CallList); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var groups []string
	for key := range m.objects {
		group, _, found := strings.Cut(key, "/")
		if !found || seen[group] {
			continue
		}
		seen[group] = true
		groups = append(groups, group)
	}
	sort.Strings(groups)
	return groups, nil
}

// SetObject stores data under key without recording a call.
func (m *MemoryStore) SetObject(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
}

// Object returns the data stored under key.
func (m *MemoryStore) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

// Calls returns the recorded call names in order.
func (m *MemoryStore) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how many times call was made; an empty name counts all calls.
func (m *MemoryStore) CallCount(call string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if call == "" {
		return len(m.calls)
	}
	n := 0
	for _, c := range m.calls {
		if c == call {
			n++
		}
	}
	return n
}

var _ blob.Store = (*MemoryStore)(nil)
