package security

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var alertCounterScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

const (
	OutcomeSuccess     = "success"
	OutcomeFail        = "fail"
	OutcomeDenied      = "denied"
	OutcomeRateLimited = "rate_limited"
)

// AlertResult contains alert evaluation output.
type AlertResult struct {
	Triggered bool
	Count     int64
	Threshold int64
	Window    time.Duration
}

// Counter increments a key inside a time window and returns the new count.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// AuditAlerter counts failed or denied desk events per client IP and reports
// when a burst crosses its threshold. It only observes; callers decide what
// to do with a triggered result, and the desk just logs it.
type AuditAlerter struct {
	counter        Counter
	prefix         string
	loginThreshold int64
}

// NewAuditAlerter builds an alerter. A zero loginThreshold disables the
// login and registration rules.
func NewAuditAlerter(counter Counter, prefix string, loginThreshold int) *AuditAlerter {
	if counter == nil {
		return nil
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "murojaat:desk:alerts"
	}
	return &AuditAlerter{
		counter:        counter,
		prefix:         prefix,
		loginThreshold: int64(loginThreshold),
	}
}

// Observe records a security event for a client key (see util.ClientKey) and
// returns whether the threshold is reached.
func (a *AuditAlerter) Observe(ctx context.Context, event, outcome, client string) (AlertResult, error) {
	result := AlertResult{}
	if a == nil || a.counter == nil {
		return result, nil
	}
	threshold, window, ok := a.rule(event, outcome)
	if !ok {
		return result, nil
	}
	windowMs := window.Milliseconds()
	slot := time.Now().UTC().UnixMilli() / windowMs
	key := fmt.Sprintf("%s:%s:%s:%s:%d", a.prefix, sanitizeSegment(event), sanitizeSegment(outcome), sanitizeSegment(client), slot)
	count, err := a.counter.Incr(ctx, key, window)
	if err != nil {
		return result, err
	}
	result.Count = count
	result.Threshold = threshold
	result.Window = window
	result.Triggered = count >= threshold
	return result, nil
}

func (a *AuditAlerter) rule(event, outcome string) (threshold int64, window time.Duration, ok bool) {
	event = strings.TrimSpace(event)
	switch strings.TrimSpace(outcome) {
	case OutcomeRateLimited:
		return 20, time.Minute, true
	case OutcomeFail:
		switch event {
		case "desk.login", "desk.register":
			if a.loginThreshold <= 0 {
				return 0, 0, false
			}
			return a.loginThreshold, 5 * time.Minute, true
		}
	case OutcomeDenied:
		// repeated hits on invisible tickets look like id probing
		if strings.HasPrefix(event, "desk.ticket.") {
			return 25, 5 * time.Minute, true
		}
	}
	return 0, 0, false
}

func sanitizeSegment(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}
	replacer := strings.NewReplacer(":", "_", "|", "_", " ", "_")
	return replacer.Replace(in)
}

// RedisCounter shares counters between desk instances.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(addr, password string) *RedisCounter {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}
	return &RedisCounter{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return alertCounterScript.Run(ctx, c.client, []string{key}, window.Milliseconds()).Int64()
}

func (c *RedisCounter) Close() error {
	return c.client.Close()
}

// MemoryCounter keeps counters in-process.
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	e, ok := c.entries[key]
	if !ok || now.After(e.expiresAt) {
		e = memoryEntry{expiresAt: now.Add(window)}
	}
	e.count++
	c.entries[key] = e
	if len(c.entries) > 4096 {
		c.sweep(now)
	}
	return e.count, nil
}

func (c *MemoryCounter) sweep(now time.Time) {
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}
