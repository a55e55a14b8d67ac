package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ResponseCache memoizes completions keyed by the full request. It is only
// useful when replaying identical prompts, e.g. resuming an interactive
// session after a crash, and is off unless configured.
type ResponseCache struct {
	lru *expirable.LRU[string, string]
}

// NewResponseCache holds up to size entries for ttl each.
func NewResponseCache(size int, ttl time.Duration) *ResponseCache {
	if size <= 0 {
		size = 128
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResponseCache{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

func (c *ResponseCache) Get(req Request) (string, bool) {
	return c.lru.Get(cacheKey(req))
}

func (c *ResponseCache) Set(req Request, text string) {
	c.lru.Add(cacheKey(req), text)
}

// Len returns the number of live entries.
func (c *ResponseCache) Len() int {
	return c.lru.Len()
}

func cacheKey(req Request) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	_ = enc.Encode(struct {
		Model       string
		Temperature float64
		MaxTokens   int
		JSON        bool
		Messages    []Message
	}{req.Model, req.Temperature, req.MaxTokens, req.JSON != nil, req.Messages})
	return hex.EncodeToString(h.Sum(nil))
}
