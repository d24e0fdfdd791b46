package calibration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/boltdb/bolt"
)

const (
	keyPolarity       = "polarity"
	keyDiscovered     = "discovered-keys"
	keyWarmupDone     = "warmup-done"
	keyTemperature    = "temperature"
	keyPlatform       = "platform"
	resolvedKeyPrefix = "resolved/"
)

// BoltStore keeps one bucket per model id in a bolt database.
type BoltStore struct {
	db *bolt.DB
}

func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create calibration directory: %w", err)
	}
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open calibration store '%s': %w", path, err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) get(model, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(model))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) put(model, key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(model))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
}

func (s *BoltStore) LoadPolarity(model string) (int, error) {
	v, err := s.get(model, keyPolarity)
	if err != nil || v == nil {
		return PolarityUnknown, err
	}
	sign, err := strconv.Atoi(string(v))
	if err != nil {
		return PolarityUnknown, fmt.Errorf("invalid polarity record '%s': %w", v, err)
	}
	return sign, nil
}

func (s *BoltStore) SavePolarity(model string, sign int) error {
	return s.put(model, keyPolarity, []byte(strconv.Itoa(sign)))
}

func (s *BoltStore) LoadDiscoveredKeys(model string) ([]string, error) {
	v, err := s.get(model, keyDiscovered)
	if err != nil || v == nil {
		return nil, err
	}
	var keys []string
	if err := json.Unmarshal(v, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *BoltStore) SaveDiscoveredKeys(model string, keys []string) error {
	v, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	return s.put(model, keyDiscovered, v)
}

func (s *BoltStore) LoadWarmupDone(model string) (bool, error) {
	v, err := s.get(model, keyWarmupDone)
	return v != nil && string(v) == "true", err
}

func (s *BoltStore) MarkWarmupDone(model string) error {
	return s.put(model, keyWarmupDone, []byte("true"))
}

func (s *BoltStore) LoadCachedTemperature(model string) (*CachedTemperature, error) {
	v, err := s.get(model, keyTemperature)
	if err != nil || v == nil {
		return nil, err
	}
	t := &CachedTemperature{}
	if err := json.Unmarshal(v, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *BoltStore) SaveCachedTemperature(model string, t CachedTemperature) error {
	v, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.put(model, keyTemperature, v)
}

func (s *BoltStore) LoadResolvedKeys(model string) (map[string]string, error) {
	out := map[string]string{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(model))
		if b == nil {
			return nil
		}
		prefix := []byte(resolvedKeyPrefix)
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			out[string(k[len(prefix):])] = string(v)
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) SaveResolvedKey(model, capability, key string) error {
	return s.put(model, resolvedKeyPrefix+capability, []byte(key))
}

func (s *BoltStore) ClearResolvedKeys(model string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(model))
		if b == nil {
			return nil
		}
		prefix := []byte(resolvedKeyPrefix)
		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) LoadPlatform(model string) (string, error) {
	v, err := s.get(model, keyPlatform)
	return string(v), err
}

func (s *BoltStore) SavePlatform(model, platform string) error {
	return s.put(model, keyPlatform, []byte(platform))
}
