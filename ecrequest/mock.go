package ecrequest

import (
	"sync"

	"github.com/TheCacophonyProject/powerflow/smc"
)

// Mock is an in-memory transport for tests.
// It counts every call per key so tests can assert which keys were touched.
type Mock struct {
	mu        sync.Mutex
	values    map[string]smc.Value
	open      bool
	FailOpen  bool
	Opens     int
	InfoCalls map[string]int
	ReadCalls map[string]int
}

func NewMock() *Mock {
	return &Mock{
		values:    map[string]smc.Value{},
		InfoCalls: map[string]int{},
		ReadCalls: map[string]int{},
	}
}

// SetFloat stores v under key encoded as typ.
func (m *Mock) SetFloat(key, typ string, v float64) {
	raw, ok := smc.Encode(typ, v)
	if !ok {
		panic("mock: unknown type " + typ)
	}
	m.SetRaw(key, typ, raw)
}

// SetText stores s under key as a ch8* value.
func (m *Mock) SetText(key, s string) {
	m.SetRaw(key, smc.TypeCh8, smc.EncodeText(s, len(s)+1))
}

func (m *Mock) SetRaw(key, typ string, raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = smc.NewValue(key, typ, len(raw), raw)
}

func (m *Mock) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}

// Calls returns the total number of info and byte reads made for key.
func (m *Mock) Calls(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.InfoCalls[key] + m.ReadCalls[key]
}

func (m *Mock) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InfoCalls = map[string]int{}
	m.ReadCalls = map[string]int{}
}

func (m *Mock) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Opens++
	if m.FailOpen {
		return ErrUnsupported
	}
	m.open = true
	return nil
}

func (m *Mock) ReadKeyInfo(key string) (KeyInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return KeyInfo{}, ErrNotOpen
	}
	m.InfoCalls[key]++
	v, ok := m.values[key]
	if !ok {
		return KeyInfo{}, ErrKeyNotFound
	}
	return KeyInfo{Size: v.Size, Type: v.Type}, nil
}

func (m *Mock) ReadKeyBytes(key string, size int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return nil, ErrNotOpen
	}
	m.ReadCalls[key]++
	v, ok := m.values[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	raw := v.Raw()
	if len(raw) < size {
		return nil, &ShortReadError{Key: key, Want: size, Got: len(raw)}
	}
	out := make([]byte, size)
	copy(out, raw)
	return out, nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	return nil
}
