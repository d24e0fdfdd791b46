package calibration

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormaliseModel(t *testing.T) {
	assert.Equal(t, "macbookpro18-3", NormaliseModel("MacBookPro18,3"))
	assert.Equal(t, "thinkpad-x1-carbon", NormaliseModel("  ThinkPad X1 Carbon  "))
	assert.Equal(t, GlobalModel, NormaliseModel(""))
	assert.Equal(t, GlobalModel, NormaliseModel(" ,, "))
}

func TestBoltStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.db")
	s, err := OpenBoltStore(path)
	require.NoError(t, err)

	model := "mac14-2"
	p, err := s.LoadPolarity(model)
	require.NoError(t, err)
	assert.Equal(t, PolarityUnknown, p)

	require.NoError(t, s.SavePolarity(model, PolarityInverted))
	require.NoError(t, s.SaveDiscoveredKeys(model, []string{"Tp09", "Tp0T"}))
	require.NoError(t, s.MarkWarmupDone(model))
	require.NoError(t, s.SaveResolvedKey(model, CapPackagePower, "PHPC"))
	require.NoError(t, s.SaveResolvedKey(model, CapBatteryVoltage, "B0AV"))
	require.NoError(t, s.SavePlatform(model, "j413"))
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveCachedTemperature(model, CachedTemperature{Value: 48.5, Source: "Tp09", Time: now}))
	require.NoError(t, s.Close())

	s, err = OpenBoltStore(path)
	require.NoError(t, err)
	defer s.Close()

	p, err = s.LoadPolarity(model)
	require.NoError(t, err)
	assert.Equal(t, PolarityInverted, p)

	keys, err := s.LoadDiscoveredKeys(model)
	require.NoError(t, err)
	assert.Equal(t, []string{"Tp09", "Tp0T"}, keys)

	done, err := s.LoadWarmupDone(model)
	require.NoError(t, err)
	assert.True(t, done)

	resolved, err := s.LoadResolvedKeys(model)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{CapPackagePower: "PHPC", CapBatteryVoltage: "B0AV"}, resolved)

	temp, err := s.LoadCachedTemperature(model)
	require.NoError(t, err)
	require.NotNil(t, temp)
	assert.Equal(t, 48.5, temp.Value)
	assert.True(t, now.Equal(temp.Time))

	require.NoError(t, s.ClearResolvedKeys(model))
	resolved, err = s.LoadResolvedKeys(model)
	require.NoError(t, err)
	assert.Empty(t, resolved)

	// Other models are untouched.
	p, err = s.LoadPolarity(GlobalModel)
	require.NoError(t, err)
	assert.Equal(t, PolarityUnknown, p)
}

func TestPolarityLearnedOnce(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, "MacBookAir10,1")

	assert.True(t, m.LearnPolarity(PolarityInverted))
	assert.False(t, m.LearnPolarity(PolarityNormal))
	assert.Equal(t, PolarityInverted, m.Polarity())
	assert.Equal(t, 1, store.WriteCount("SavePolarity"))

	// A new manager for the same model sees the learned sign.
	m2 := NewManager(store, "MacBookAir10,1")
	assert.Equal(t, PolarityInverted, m2.Polarity())
}

func TestStoreWriteFailureKeepsMemoryState(t *testing.T) {
	store := NewMemoryStore()
	store.FailWrites = errors.New("disk full")
	m := NewManager(store, "")
	assert.Equal(t, GlobalModel, m.Model())

	assert.True(t, m.LearnPolarity(PolarityNormal))
	assert.Equal(t, PolarityNormal, m.Polarity())
	m.SetResolvedKey(CapPackagePower, "PCTR")
	assert.Equal(t, "PCTR", m.ResolvedKey(CapPackagePower))
}

func TestWarmupNeeded(t *testing.T) {
	m := NewManager(NewMemoryStore(), "m")
	assert.True(t, m.NeedsWarmup())
	m.MarkWarmupDone()
	assert.True(t, m.NeedsWarmup(), "no temperature keys discovered yet")
	m.SetDiscoveredKeys([]string{"TC0P"})
	assert.False(t, m.NeedsWarmup())
}

func TestPlatformChangeDropsKeys(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, "m")

	assert.False(t, m.CheckPlatform("j314"))
	m.SetResolvedKey(CapPackagePower, "PHPC")
	m.SetDiscoveredKeys([]string{"Tp09"})

	assert.False(t, m.CheckPlatform("j314"))
	assert.Equal(t, "PHPC", m.ResolvedKey(CapPackagePower))

	assert.True(t, m.CheckPlatform("j414"))
	assert.Empty(t, m.ResolvedKey(CapPackagePower))
	assert.Empty(t, m.DiscoveredKeys())

	resolved, _ := store.LoadResolvedKeys("m")
	assert.Empty(t, resolved)
}

func TestCachedTemperature(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, "m")
	now := time.Now()

	_, ok := m.CachedTemperature(now, time.Minute)
	assert.False(t, ok)

	m.SaveTemperature(CachedTemperature{Value: 50, Source: "Tp09", Time: now})
	m.SaveTemperature(CachedTemperature{Value: 51, Source: "Tp09", Time: now.Add(2 * time.Second)})
	assert.Equal(t, 1, store.WriteCount("SaveCachedTemperature"))

	c, ok := m.CachedTemperature(now.Add(30*time.Second), time.Minute)
	assert.True(t, ok)
	assert.Equal(t, 51.0, c.Value)

	_, ok = m.CachedTemperature(now.Add(2*time.Minute), time.Minute)
	assert.False(t, ok)
}

func TestListenerNotified(t *testing.T) {
	m := NewManager(NewMemoryStore(), "m")
	var kinds []string
	m.SetListener(func(kind string, details map[string]interface{}) {
		kinds = append(kinds, kind)
		assert.Equal(t, "m", details["model"])
	})
	m.LearnPolarity(PolarityNormal)
	m.MarkWarmupDone()
	assert.Equal(t, []string{"powerflowPolarityLearned", "powerflowWarmupDone"}, kinds)
}

func TestCorruptStoredPolarityIgnored(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.SavePolarity("m", 5))

	m := NewManager(store, "m")
	assert.Equal(t, PolarityUnknown, m.Polarity())
	assert.True(t, m.LearnPolarity(PolarityInverted))
	assert.Equal(t, PolarityInverted, m.Polarity())
}
