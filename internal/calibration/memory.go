package calibration

import "sync"

// MemoryStore keeps records for the life of the process. It counts writes so
// callers can check that learning happens once.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*State
	Writes  map[string]int
	// FailWrites makes every save return an error.
	FailWrites error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[string]*State{},
		Writes:  map[string]int{},
	}
}

func (m *MemoryStore) record(model string) *State {
	r, ok := m.records[model]
	if !ok {
		r = &State{ResolvedKeys: map[string]string{}}
		m.records[model] = r
	}
	return r
}

func (m *MemoryStore) write(op string) error {
	m.Writes[op]++
	return m.FailWrites
}

// WriteCount returns how many times op was called.
func (m *MemoryStore) WriteCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Writes[op]
}

func (m *MemoryStore) LoadPolarity(model string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record(model).Polarity, nil
}

func (m *MemoryStore) SavePolarity(model string, sign int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write("SavePolarity"); err != nil {
		return err
	}
	m.record(model).Polarity = sign
	return nil
}

func (m *MemoryStore) LoadDiscoveredKeys(model string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.record(model).DiscoveredKeys...), nil
}

func (m *MemoryStore) SaveDiscoveredKeys(model string, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write("SaveDiscoveredKeys"); err != nil {
		return err
	}
	m.record(model).DiscoveredKeys = append([]string(nil), keys...)
	return nil
}

func (m *MemoryStore) LoadWarmupDone(model string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record(model).WarmupDone, nil
}

func (m *MemoryStore) MarkWarmupDone(model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write("MarkWarmupDone"); err != nil {
		return err
	}
	m.record(model).WarmupDone = true
	return nil
}

func (m *MemoryStore) LoadCachedTemperature(model string) (*CachedTemperature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.record(model).Temperature
	if t == nil {
		return nil, nil
	}
	c := *t
	return &c, nil
}

func (m *MemoryStore) SaveCachedTemperature(model string, t CachedTemperature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write("SaveCachedTemperature"); err != nil {
		return err
	}
	m.record(model).Temperature = &t
	return nil
}

func (m *MemoryStore) LoadResolvedKeys(model string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for k, v := range m.record(model).ResolvedKeys {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) SaveResolvedKey(model, capability, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write("SaveResolvedKey"); err != nil {
		return err
	}
	m.record(model).ResolvedKeys[capability] = key
	return nil
}

func (m *MemoryStore) ClearResolvedKeys(model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write("ClearResolvedKeys"); err != nil {
		return err
	}
	m.record(model).ResolvedKeys = map[string]string{}
	return nil
}

func (m *MemoryStore) LoadPlatform(model string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record(model).Platform, nil
}

func (m *MemoryStore) SavePlatform(model, platform string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write("SavePlatform"); err != nil {
		return err
	}
	m.record(model).Platform = platform
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
