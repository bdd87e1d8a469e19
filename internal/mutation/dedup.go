package mutation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// dedupWindow remembers payload fingerprints for a fixed window.
type dedupWindow struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	seen   map[string]time.Time
}

func newDedupWindow(window time.Duration, now func() time.Time) *dedupWindow {
	return &dedupWindow{window: window, now: now, seen: make(map[string]time.Time)}
}

// claim records fingerprint and reports false when it was already claimed
// within the window.
func (d *dedupWindow) claim(fingerprint string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for fp, at := range d.seen {
		if now.Sub(at) >= d.window {
			delete(d.seen, fp)
		}
	}
	if _, exists := d.seen[fingerprint]; exists {
		return false
	}
	d.seen[fingerprint] = now
	return true
}

func (d *dedupWindow) release(fingerprint string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, fingerprint)
}

// fingerprint hashes the kind, owner and JSON payload. Struct payloads
// marshal with a fixed field order, which makes the hash canonical.
func fingerprint(kind, owner string, payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(err.Error())
	}
	sum := sha256.Sum256(append([]byte(kind+"|"+owner+"|"), data...))
	return hex.EncodeToString(sum[:])
}
