package balance

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTTL bounds how long a cached balance or rate is served before the
// next reader triggers a refetch.
const DefaultTTL = 30 * time.Second

type entry struct {
	value decimal.Decimal
	at    time.Time
}

// Cache is the session-scoped balance and USD-rate store, keyed by token
// address. It is shared read-only across pages; writes are last-write-wins
// per token, since staleness is tolerated and refreshed on a polling
// interval elsewhere.
type Cache struct {
	mu       sync.RWMutex
	ttl      time.Duration
	balances map[string]entry
	usdRates map[string]entry
	now      func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:      ttl,
		balances: make(map[string]entry),
		usdRates: make(map[string]entry),
		now:      time.Now,
	}
}

// Balance returns the cached balance for a token if it is still fresh.
func (c *Cache) Balance(token string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lookup(c.balances, token)
}

func (c *Cache) PutBalance(token string, v decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[key(token)] = entry{value: v, at: c.now()}
}

func (c *Cache) DropBalance(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.balances, key(token))
}

// USDRate returns the cached USD rate for a token if it is still fresh.
func (c *Cache) USDRate(token string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lookup(c.usdRates, token)
}

func (c *Cache) PutUSDRate(token string, v decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usdRates[key(token)] = entry{value: v, at: c.now()}
}

func (c *Cache) lookup(m map[string]entry, token string) (decimal.Decimal, bool) {
	e, ok := m[key(token)]
	if !ok || c.now().Sub(e.at) > c.ttl {
		return decimal.Zero, false
	}
	return e.value, true
}

func key(token string) string {
	return strings.ToLower(token)
}
