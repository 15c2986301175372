// Package keypool distributes generation-provider credentials across
// requests and rotates away from keys that hit rate limits or auth errors.
package keypool

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
)

// Rotation reasons that mark the current key as failed. Any other reason
// (e.g. "manual" round-robin distribution) leaves the failed set untouched.
const (
	ReasonRateLimit = "rate_limit"
	ReasonError     = "error"
	ReasonExpired   = "expired"
	ReasonManual    = "manual"
)

// Stats is a snapshot of pool state.
type Stats struct {
	TotalKeys    int            `json:"total_keys"`
	CurrentIndex int            `json:"current_key_index"` // 1-based, matches slot numbering
	FailedKeys   int            `json:"failed_keys_count"`
	ActiveKeys   int            `json:"active_keys"`
	KeyUsage     map[string]int `json:"key_usage"` // by slot label, e.g. "key_2"
}

// Pool holds an ordered list of API keys with a rotation cursor.
type Pool struct {
	mu      sync.Mutex
	keys    []string
	current int
	failed  map[int]bool
	usage   map[int]int
}

// FromEnv loads keys from numbered environment variables
// (prefix_1, prefix_2, ...) plus the unnumbered base variable, which is
// inserted first when present and not already listed.
func FromEnv(prefix string) (*Pool, error) {
	var keys []string
	for i := 1; ; i++ {
		v := os.Getenv(fmt.Sprintf("%s_%d", prefix, i))
		if v == "" {
			break
		}
		keys = append(keys, strings.TrimSpace(v))
	}
	if base := strings.TrimSpace(os.Getenv(prefix)); base != "" && !slices.Contains(keys, base) {
		keys = append([]string{base}, keys...)
	}
	return New(keys)
}

// New builds a pool from an ordered key list. An empty list is a fatal
// configuration error.
func New(keys []string) (*Pool, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("no API keys configured")
	}
	return &Pool{
		keys:   keys,
		failed: make(map[int]bool),
		usage:  make(map[int]int),
	}, nil
}

// Size returns the number of keys in the pool.
func (p *Pool) Size() int {
	return len(p.keys)
}

// Current returns the key under the cursor and counts the use.
func (p *Pool) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.usage[p.current]++
	return p.keys[p.current]
}

// KeyAt returns the key for slot i mod pool size. Used for round-robin
// distribution across a batch; it does not move the cursor or touch the
// failed set.
func (p *Pool) KeyAt(i int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := i % len(p.keys)
	p.usage[idx]++
	return p.keys[idx]
}

// Rotate advances the cursor to the next non-failed key and returns it.
// When the reason indicates a key failure, the current key is added to
// the failed set first. If every key has failed, the failed set is
// cleared and the cursor restarts at slot 0: retrying a previously
// failed key beats refusing to serve.
func (p *Pool) Rotate(reason string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if reason == ReasonRateLimit || reason == ReasonError || reason == ReasonExpired {
		p.failed[p.current] = true
	}

	for attempts := 0; attempts < len(p.keys); attempts++ {
		p.current = (p.current + 1) % len(p.keys)
		if !p.failed[p.current] {
			return p.keys[p.current]
		}
	}

	// Full cycle with every key failed.
	p.failed = make(map[int]bool)
	p.current = 0
	return p.keys[0]
}

// MarkWorking removes the current key from the failed set after a
// successful call.
func (p *Pool) MarkWorking() {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failed, p.current)
}

// Stats returns a snapshot of the pool state.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	usage := make(map[string]int, len(p.usage))
	for idx, n := range p.usage {
		usage[fmt.Sprintf("key_%d", idx+1)] = n
	}
	return Stats{
		TotalKeys:    len(p.keys),
		CurrentIndex: p.current + 1,
		FailedKeys:   len(p.failed),
		ActiveKeys:   len(p.keys) - len(p.failed),
		KeyUsage:     usage,
	}
}
