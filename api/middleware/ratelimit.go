package middleware

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiter implements token bucket rate limiting per client IP, per
// account, and per account for ledger mutations.
type RateLimiter struct {
	config *RateLimitConfig

	// Buckets by key ("ip:..." or "account:...")
	buckets   map[string]*Bucket
	bucketsMu sync.RWMutex

	// Mutation buckets (stricter)
	mutationBuckets   map[string]*Bucket
	mutationBucketsMu sync.RWMutex

	dailyCounters   map[string]*DailyCounter
	dailyCountersMu sync.RWMutex

	// OnReject is called with the limit type of every rejected request
	OnReject func(limitType string)

	now           func() time.Time
	cleanupTicker *time.Ticker
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	IPRequestsPerSecond int
	IPBurst             int
	BlockDuration       time.Duration // how long a bucket stays blocked after running dry

	AccountRequestsPerSecond int
	AccountBurst             int

	MutationsPerSecond int
	MutationBurst      int
	MutationsPerDay    int

	CleanupInterval time.Duration
	BucketTTL       time.Duration
}

// DefaultRateLimitConfig returns default configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		IPRequestsPerSecond: 100,
		IPBurst:             200,
		BlockDuration:       time.Minute,

		AccountRequestsPerSecond: 50,
		AccountBurst:             100,

		MutationsPerSecond: 5,
		MutationBurst:      10,
		MutationsPerDay:    5000,

		CleanupInterval: 5 * time.Minute,
		BucketTTL:       time.Hour,
	}
}

// Bucket is a token bucket
type Bucket struct {
	tokens       float64
	maxTokens    float64
	refillRate   float64 // tokens per second
	lastUpdate   time.Time
	blocked      bool
	blockedUntil time.Time
	mu           sync.Mutex
}

// DailyCounter tracks per-day request counts
type DailyCounter struct {
	count int
	limit int
	date  string
	mu    sync.Mutex
}

// RateLimitInfo describes the outcome of a limit check
type RateLimitInfo struct {
	Allowed    bool   `json:"allowed"`
	Remaining  int    `json:"remaining"`
	Limit      int    `json:"limit"`
	RetryAfter int    `json:"retry_after,omitempty"`
	LimitType  string `json:"limit_type"`
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	interval := config.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	rl := &RateLimiter{
		config:          config,
		buckets:         make(map[string]*Bucket),
		mutationBuckets: make(map[string]*Bucket),
		dailyCounters:   make(map[string]*DailyCounter),
		now:             time.Now,
		cleanupTicker:   time.NewTicker(interval),
		stopCh:          make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop stops the cleanup loop
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
		rl.cleanupTicker.Stop()
	})
}

func (rl *RateLimiter) cleanupLoop() {
	for {
		select {
		case <-rl.cleanupTicker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup drops idle buckets and stale daily counters
func (rl *RateLimiter) cleanup() {
	now := rl.now()
	threshold := now.Add(-rl.config.BucketTTL)
	today := now.Format("2006-01-02")

	pruneBuckets(&rl.bucketsMu, rl.buckets, threshold)
	pruneBuckets(&rl.mutationBucketsMu, rl.mutationBuckets, threshold)

	rl.dailyCountersMu.Lock()
	for key, counter := range rl.dailyCounters {
		if counter.date != today {
			delete(rl.dailyCounters, key)
		}
	}
	rl.dailyCountersMu.Unlock()
}

func pruneBuckets(mu *sync.RWMutex, buckets map[string]*Bucket, threshold time.Time) {
	mu.Lock()
	defer mu.Unlock()
	for key, bucket := range buckets {
		bucket.mu.Lock()
		if bucket.lastUpdate.Before(threshold) {
			delete(buckets, key)
		}
		bucket.mu.Unlock()
	}
}

// getBucket gets or creates a bucket in m
func (rl *RateLimiter) getBucket(mu *sync.RWMutex, m map[string]*Bucket, key string, maxTokens, refillRate float64) *Bucket {
	mu.RLock()
	bucket, ok := m[key]
	mu.RUnlock()
	if ok {
		return bucket
	}

	mu.Lock()
	defer mu.Unlock()

	// Double-check after acquiring write lock
	if bucket, ok := m[key]; ok {
		return bucket
	}

	bucket = &Bucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastUpdate: rl.now(),
	}
	m[key] = bucket
	return bucket
}

func (rl *RateLimiter) getDailyCounter(key string, limit int) *DailyCounter {
	today := rl.now().Format("2006-01-02")
	counterKey := key + ":" + today

	rl.dailyCountersMu.RLock()
	counter, ok := rl.dailyCounters[counterKey]
	rl.dailyCountersMu.RUnlock()
	if ok {
		return counter
	}

	rl.dailyCountersMu.Lock()
	defer rl.dailyCountersMu.Unlock()

	if counter, ok := rl.dailyCounters[counterKey]; ok {
		return counter
	}

	counter = &DailyCounter{limit: limit, date: today}
	rl.dailyCounters[counterKey] = counter
	return counter
}

// AllowIP checks the per-IP limit
func (rl *RateLimiter) AllowIP(ip string) (bool, *RateLimitInfo) {
	bucket := rl.getBucket(&rl.bucketsMu, rl.buckets, "ip:"+ip,
		float64(rl.config.IPBurst), float64(rl.config.IPRequestsPerSecond))
	return rl.tryConsume(bucket, 1)
}

// AllowAccount checks the per-account limit
func (rl *RateLimiter) AllowAccount(account string) (bool, *RateLimitInfo) {
	bucket := rl.getBucket(&rl.bucketsMu, rl.buckets, "account:"+account,
		float64(rl.config.AccountBurst), float64(rl.config.AccountRequestsPerSecond))
	return rl.tryConsume(bucket, 1)
}

// AllowMutation checks the per-account mutation rate and daily cap
func (rl *RateLimiter) AllowMutation(account string) (bool, *RateLimitInfo) {
	bucket := rl.getBucket(&rl.mutationBucketsMu, rl.mutationBuckets, "mutation:"+account,
		float64(rl.config.MutationBurst), float64(rl.config.MutationsPerSecond))
	allowed, info := rl.tryConsume(bucket, 1)
	if !allowed {
		return false, info
	}
	if rl.config.MutationsPerDay <= 0 {
		return true, info
	}

	counter := rl.getDailyCounter("mutation:"+account, rl.config.MutationsPerDay)
	counter.mu.Lock()
	defer counter.mu.Unlock()

	if counter.count >= counter.limit {
		return false, &RateLimitInfo{
			Allowed:    false,
			Remaining:  0,
			Limit:      counter.limit,
			RetryAfter: rl.secondsUntilMidnight(),
			LimitType:  "daily",
		}
	}

	counter.count++
	return true, &RateLimitInfo{
		Allowed:   true,
		Remaining: counter.limit - counter.count,
		Limit:     counter.limit,
		LimitType: "daily",
	}
}

// tryConsume takes tokens from bucket, blocking it for BlockDuration when dry
func (rl *RateLimiter) tryConsume(bucket *Bucket, tokens float64) (bool, *RateLimitInfo) {
	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	now := rl.now()

	if bucket.blocked && now.Before(bucket.blockedUntil) {
		return false, &RateLimitInfo{
			Allowed:    false,
			Remaining:  0,
			Limit:      int(bucket.maxTokens),
			RetryAfter: int(bucket.blockedUntil.Sub(now).Seconds()) + 1,
			LimitType:  "blocked",
		}
	}
	bucket.blocked = false

	// Refill
	elapsed := now.Sub(bucket.lastUpdate).Seconds()
	bucket.tokens += elapsed * bucket.refillRate
	if bucket.tokens > bucket.maxTokens {
		bucket.tokens = bucket.maxTokens
	}
	bucket.lastUpdate = now

	if bucket.tokens >= tokens {
		bucket.tokens -= tokens
		return true, &RateLimitInfo{
			Allowed:   true,
			Remaining: int(bucket.tokens),
			Limit:     int(bucket.maxTokens),
			LimitType: "rate",
		}
	}

	retryAfter := 1
	if bucket.refillRate > 0 {
		retryAfter = int((tokens-bucket.tokens)/bucket.refillRate) + 1
	}
	if rl.config.BlockDuration > 0 {
		bucket.blocked = true
		bucket.blockedUntil = now.Add(rl.config.BlockDuration)
		retryAfter = int(rl.config.BlockDuration.Seconds())
	}
	return false, &RateLimitInfo{
		Allowed:    false,
		Remaining:  0,
		Limit:      int(bucket.maxTokens),
		RetryAfter: retryAfter,
		LimitType:  "rate",
	}
}

func (rl *RateLimiter) secondsUntilMidnight() int {
	now := rl.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	return int(midnight.Sub(now).Seconds())
}

func (rl *RateLimiter) reject(w http.ResponseWriter, info *RateLimitInfo, code, message string) {
	if rl.OnReject != nil {
		rl.OnReject(info.LimitType)
	}
	w.Header().Set("Content-Type", "application/json")
	setLimitHeaders(w, info)
	if info.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", info.RetryAfter))
	}
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":       message,
		"code":        code,
		"retry_after": info.RetryAfter,
		"limit_type":  info.LimitType,
	})
}

func setLimitHeaders(w http.ResponseWriter, info *RateLimitInfo) {
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
}

// ============ HTTP Middleware ============

// RateLimitMiddleware applies the per-IP limit, then the per-account limit
// when the request names an account.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, info := rl.AllowIP(ClientIP(r))
			if !allowed {
				rl.reject(w, info, "RateLimited", "too many requests, please slow down")
				return
			}
			setLimitHeaders(w, info)

			if account := AccountFromContext(r.Context()); account != "" {
				allowed, info := rl.AllowAccount(account)
				if !allowed {
					rl.reject(w, info, "RateLimited", "account rate limit exceeded")
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// MutationRateLimitMiddleware guards ledger mutations. It requires an account.
func MutationRateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account := AccountFromContext(r.Context())
			if account == "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "missing " + AccountHeader + " header",
					"code":  "Unauthorized",
				})
				return
			}

			allowed, info := rl.AllowMutation(account)
			if !allowed {
				rl.reject(w, info, "RateLimited", fmt.Sprintf("mutation %s limit exceeded", info.LimitType))
				return
			}
			w.Header().Set("X-RateLimit-Mutation-Remaining", fmt.Sprintf("%d", info.Remaining))

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the client IP from the request
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ============ Statistics ============

// Stats describes limiter state
type Stats struct {
	TotalBuckets    int `json:"total_buckets"`
	MutationBuckets int `json:"mutation_buckets"`
	DailyCounters   int `json:"daily_counters"`
	BlockedBuckets  int `json:"blocked_buckets"`
}

// GetStats returns current limiter statistics
func (rl *RateLimiter) GetStats() *Stats {
	now := rl.now()

	rl.bucketsMu.RLock()
	total := len(rl.buckets)
	blocked := 0
	for _, b := range rl.buckets {
		b.mu.Lock()
		if b.blocked && now.Before(b.blockedUntil) {
			blocked++
		}
		b.mu.Unlock()
	}
	rl.bucketsMu.RUnlock()

	rl.mutationBucketsMu.RLock()
	mutations := len(rl.mutationBuckets)
	rl.mutationBucketsMu.RUnlock()

	rl.dailyCountersMu.RLock()
	daily := len(rl.dailyCounters)
	rl.dailyCountersMu.RUnlock()

	return &Stats{
		TotalBuckets:    total,
		MutationBuckets: mutations,
		DailyCounters:   daily,
		BlockedBuckets:  blocked,
	}
}
