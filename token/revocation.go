package token

import (
	"sync"
	"time"
)

// Denylist remembers revoked access tokens by jti until they would have
// expired anyway. Entries past their expiry are dropped on every Revoke.
type Denylist struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewDenylist() *Denylist {
	return &Denylist{entries: make(map[string]time.Time)}
}

// Revoke denies jti until exp.
func (d *Denylist) Revoke(jti string, exp time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pruneLocked(NowTimeFunc())
	d.entries[jti] = exp
}

// Denied reports whether jti was revoked and has not yet expired.
func (d *Denylist) Denied(jti string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	exp, ok := d.entries[jti]
	return ok && NowTimeFunc().Before(exp)
}

// Len is the number of live entries.
func (d *Denylist) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pruneLocked(NowTimeFunc())
	return len(d.entries)
}

func (d *Denylist) pruneLocked(now time.Time) {
	for jti, exp := range d.entries {
		if !now.Before(exp) {
			delete(d.entries, jti)
		}
	}
}
