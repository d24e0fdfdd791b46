package calibration

import (
	"sync"
	"time"

	"github.com/TheCacophonyProject/powerflow/internal/logging"
)

var log = logging.NewLogger("info")

func SetLogger(l *logging.Logger) {
	log = l
}

const defaultTemperatureWriteInterval = time.Minute

// Listener is told when something new is learned about the model.
type Listener func(kind string, details map[string]interface{})

// Manager is the engine's view of one model's calibration. It keeps the state
// in memory and writes through to the store. Store failures are logged and
// otherwise ignored, the in-memory state stays authoritative for this run.
type Manager struct {
	mu    sync.Mutex
	model string
	store Store
	state State

	TemperatureWriteInterval time.Duration
	lastTemperatureWrite     time.Time

	listener Listener
}

// NewManager loads the record for model from store.
func NewManager(store Store, model string) *Manager {
	m := &Manager{
		model:                    NormaliseModel(model),
		store:                    store,
		state:                    State{ResolvedKeys: map[string]string{}},
		TemperatureWriteInterval: defaultTemperatureWriteInterval,
	}
	m.load()
	return m
}

func (m *Manager) load() {
	var err error
	if m.state.Polarity, err = m.store.LoadPolarity(m.model); err != nil {
		log.Warnf("failed to load polarity for '%s': %v", m.model, err)
	}
	if p := m.state.Polarity; p != PolarityNormal && p != PolarityInverted {
		if p != PolarityUnknown {
			log.Warnf("ignoring stored polarity %d for '%s'", p, m.model)
		}
		m.state.Polarity = PolarityUnknown
	}
	if m.state.DiscoveredKeys, err = m.store.LoadDiscoveredKeys(m.model); err != nil {
		log.Warnf("failed to load discovered keys for '%s': %v", m.model, err)
	}
	if m.state.WarmupDone, err = m.store.LoadWarmupDone(m.model); err != nil {
		log.Warnf("failed to load warm-up flag for '%s': %v", m.model, err)
	}
	if m.state.Temperature, err = m.store.LoadCachedTemperature(m.model); err != nil {
		log.Warnf("failed to load cached temperature for '%s': %v", m.model, err)
	}
	if m.state.Platform, err = m.store.LoadPlatform(m.model); err != nil {
		log.Warnf("failed to load platform for '%s': %v", m.model, err)
	}
	keys, err := m.store.LoadResolvedKeys(m.model)
	if err != nil {
		log.Warnf("failed to load resolved keys for '%s': %v", m.model, err)
	}
	for k, v := range keys {
		m.state.ResolvedKeys[k] = v
	}
	log.Debugf("Loaded calibration for '%s': polarity %d, %d resolved keys, %d temperature keys, warm-up done %t",
		m.model, m.state.Polarity, len(m.state.ResolvedKeys), len(m.state.DiscoveredKeys), m.state.WarmupDone)
}

func (m *Manager) SetListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = l
}

func (m *Manager) notify(kind string, details map[string]interface{}) {
	if m.listener != nil {
		details["model"] = m.model
		m.listener(kind, details)
	}
}

func (m *Manager) Model() string {
	return m.model
}

// State returns a copy of the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state
	s.ResolvedKeys = map[string]string{}
	for k, v := range m.state.ResolvedKeys {
		s.ResolvedKeys[k] = v
	}
	s.DiscoveredKeys = append([]string(nil), m.state.DiscoveredKeys...)
	if m.state.Temperature != nil {
		t := *m.state.Temperature
		s.Temperature = &t
	}
	return s
}

func (m *Manager) Polarity() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Polarity
}

// LearnPolarity records the sign once. Later calls are ignored and return
// false.
func (m *Manager) LearnPolarity(sign int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Polarity != PolarityUnknown || (sign != PolarityNormal && sign != PolarityInverted) {
		return false
	}
	m.state.Polarity = sign
	if err := m.store.SavePolarity(m.model, sign); err != nil {
		log.Warnf("failed to save polarity: %v", err)
	}
	log.Infof("Learned battery rate polarity %d for '%s'", sign, m.model)
	m.notify("powerflowPolarityLearned", map[string]interface{}{"polarity": sign})
	return true
}

func (m *Manager) ResolvedKey(capability string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ResolvedKeys[capability]
}

func (m *Manager) SetResolvedKey(capability, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.ResolvedKeys[capability] == key {
		return
	}
	m.state.ResolvedKeys[capability] = key
	if err := m.store.SaveResolvedKey(m.model, capability, key); err != nil {
		log.Warnf("failed to save resolved key for %s: %v", capability, err)
	}
}

func (m *Manager) DiscoveredKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.state.DiscoveredKeys...)
}

func (m *Manager) SetDiscoveredKeys(keys []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if equalKeys(m.state.DiscoveredKeys, keys) {
		return
	}
	m.state.DiscoveredKeys = append([]string(nil), keys...)
	if err := m.store.SaveDiscoveredKeys(m.model, keys); err != nil {
		log.Warnf("failed to save discovered keys: %v", err)
	}
	if len(keys) > 0 {
		m.notify("powerflowTemperatureKeys", map[string]interface{}{"keys": keys})
	}
}

func (m *Manager) WarmupDone() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.WarmupDone
}

// NeedsWarmup is true until warm-up has run and found temperature keys.
func (m *Manager) NeedsWarmup() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.state.WarmupDone || len(m.state.DiscoveredKeys) == 0
}

func (m *Manager) MarkWarmupDone() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.WarmupDone = true
	if err := m.store.MarkWarmupDone(m.model); err != nil {
		log.Warnf("failed to save warm-up flag: %v", err)
	}
	m.notify("powerflowWarmupDone", map[string]interface{}{"temperatureKeys": len(m.state.DiscoveredKeys)})
}

// CachedTemperature returns the last EC temperature if it is younger than ttl.
func (m *Manager) CachedTemperature(now time.Time, ttl time.Duration) (CachedTemperature, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.state.Temperature
	if t == nil || now.Sub(t.Time) > ttl || now.Before(t.Time) {
		return CachedTemperature{}, false
	}
	return *t, true
}

// SaveTemperature updates the cached reading. Store writes are rate limited.
func (m *Manager) SaveTemperature(t CachedTemperature) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Temperature = &t
	if !m.lastTemperatureWrite.IsZero() && t.Time.Sub(m.lastTemperatureWrite) < m.TemperatureWriteInterval {
		return
	}
	m.lastTemperatureWrite = t.Time
	if err := m.store.SaveCachedTemperature(m.model, t); err != nil {
		log.Warnf("failed to save cached temperature: %v", err)
	}
}

// CheckPlatform compares the controller's platform name with the one the keys
// were resolved on. A change drops every remembered key and returns true.
func (m *Manager) CheckPlatform(name string) bool {
	if name == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Platform == name {
		return false
	}
	previous := m.state.Platform
	m.state.Platform = name
	if err := m.store.SavePlatform(m.model, name); err != nil {
		log.Warnf("failed to save platform: %v", err)
	}
	if previous == "" {
		return false
	}
	log.Infof("Platform changed from '%s' to '%s', dropping remembered keys", previous, name)
	m.state.ResolvedKeys = map[string]string{}
	m.state.DiscoveredKeys = nil
	if err := m.store.ClearResolvedKeys(m.model); err != nil {
		log.Warnf("failed to clear resolved keys: %v", err)
	}
	if err := m.store.SaveDiscoveredKeys(m.model, nil); err != nil {
		log.Warnf("failed to clear discovered keys: %v", err)
	}
	return true
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
