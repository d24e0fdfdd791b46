// Package smcreader reads typed values from the embedded controller by key,
// and discovers which alias keys exist on this hardware.
package smcreader

import (
	"errors"
	"sync"
	"time"

	"github.com/TheCacophonyProject/powerflow/ecrequest"
	"github.com/TheCacophonyProject/powerflow/internal/logging"
	"github.com/TheCacophonyProject/powerflow/internal/power"
	"github.com/TheCacophonyProject/powerflow/smc"
)

var log = logging.NewLogger("info")

func SetLogger(l *logging.Logger) {
	log = l
}

const DefaultMissingTTL = 5 * time.Minute

// Reader resolves key metadata once and caches it. Every failure is a miss.
type Reader struct {
	mu         sync.Mutex
	transport  ecrequest.Transport
	open       bool
	openFailed bool
	info       map[string]ecrequest.KeyInfo
	missing    map[string]time.Time
	missingTTL time.Duration
	now        func() time.Time
}

// NewReader wraps transport, which may be nil when no controller is
// configured. Keys the controller reports as absent are not asked about again
// for missingTTL.
func NewReader(transport ecrequest.Transport, missingTTL time.Duration) *Reader {
	return &Reader{
		transport:  transport,
		info:       map[string]ecrequest.KeyInfo{},
		missing:    map[string]time.Time{},
		missingTTL: missingTTL,
		now:        time.Now,
	}
}

// StartTick lets a connection that failed to open be tried again. Within a
// tick a failed open means no controller data at all.
func (r *Reader) StartTick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openFailed = false
}

func (r *Reader) ensureOpen() bool {
	if r.transport == nil || r.openFailed {
		return false
	}
	if r.open {
		return true
	}
	if err := r.transport.Open(); err != nil {
		log.Debugf("failed to open controller: %v", err)
		r.openFailed = true
		return false
	}
	r.open = true
	return true
}

// Read returns the value for key.
func (r *Reader) Read(key string) (smc.Value, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ensureOpen() {
		return smc.Value{}, false
	}
	now := r.now()
	if t, ok := r.missing[key]; ok {
		if now.Sub(t) < r.missingTTL {
			return smc.Value{}, false
		}
		delete(r.missing, key)
	}
	info, ok := r.info[key]
	if !ok {
		var err error
		info, err = r.transport.ReadKeyInfo(key)
		if err != nil {
			r.fail(key, err, now)
			return smc.Value{}, false
		}
		if info.Size <= 0 || info.Size > smc.MaxValueSize {
			log.Debugf("key '%s' reported unusable size %d", key, info.Size)
			r.missing[key] = now
			return smc.Value{}, false
		}
		r.info[key] = info
	}
	raw, err := r.transport.ReadKeyBytes(key, info.Size)
	if err != nil {
		r.fail(key, err, now)
		return smc.Value{}, false
	}
	if len(raw) < info.Size {
		log.Debugf("short read for '%s': %d of %d bytes", key, len(raw), info.Size)
		return smc.Value{}, false
	}
	return smc.NewValue(key, info.Type, info.Size, raw), true
}

func (r *Reader) fail(key string, err error, now time.Time) {
	switch {
	case errors.Is(err, ecrequest.ErrKeyNotFound):
		r.missing[key] = now
		delete(r.info, key)
	case errors.Is(err, ecrequest.ErrNotOpen):
		r.open = false
	}
	log.Debugf("failed to read '%s': %v", key, err)
}

// Float reads key as a number.
func (r *Reader) Float(key string) power.Float {
	v, ok := r.Read(key)
	if !ok {
		return power.None
	}
	f, ok := v.Float()
	if !ok {
		log.Debugf("key '%s' has undecodable type '%s'", key, v.Type)
		return power.None
	}
	return power.Some(f)
}

// Text reads key as a string.
func (r *Reader) Text(key string) (string, bool) {
	v, ok := r.Read(key)
	if !ok {
		return "", false
	}
	return v.Text()
}

// Close releases the transport. The next read reopens it.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.transport == nil || !r.open {
		return nil
	}
	r.open = false
	return r.transport.Close()
}
