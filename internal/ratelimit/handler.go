package ratelimit

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// IsRateLimitStatus reports whether an HTTP status code signals throttling
func IsRateLimitStatus(code int) bool {
	return code == http.StatusTooManyRequests || // 429
		code == http.StatusForbidden || // 403, some CDNs throttle this way
		code == 509 // Bandwidth Limit Exceeded
}

// RateLimitEvent represents a rate limit occurrence
type RateLimitEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Provider    string    `json:"provider"`
	StatusCode  int       `json:"statusCode"`
	Occurrences int       `json:"occurrences"` // consecutive throttled responses
	Message     string    `json:"message"`
}

// Handler tracks per-provider rate limit state. It never retries: a throttled
// tile is simply absent for this run and the next scheduled run tries again.
type Handler struct {
	mu          sync.RWMutex
	rateLimited map[string]*RateLimitEvent
	onRateLimit func(event RateLimitEvent)
	onRecovered func(provider string)
	log         zerolog.Logger
	now         func() time.Time
}

// NewHandler creates a new rate limit handler
func NewHandler(log zerolog.Logger) *Handler {
	return &Handler{
		rateLimited: make(map[string]*RateLimitEvent),
		log:         log,
		now:         time.Now,
	}
}

// SetOnRateLimit sets the callback for rate limit events
func (h *Handler) SetOnRateLimit(callback func(event RateLimitEvent)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRateLimit = callback
}

// SetOnRecovered sets the callback fired when a provider answers normally again
func (h *Handler) SetOnRecovered(callback func(provider string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRecovered = callback
}

// CheckStatus records the outcome of one provider response and reports whether it was throttled
func (h *Handler) CheckStatus(provider string, statusCode int) bool {
	if !IsRateLimitStatus(statusCode) {
		h.checkRecovery(provider)
		return false
	}

	h.recordRateLimit(provider, statusCode)
	return true
}

func (h *Handler) recordRateLimit(provider string, statusCode int) {
	h.mu.Lock()

	occurrences := 1
	if existing, exists := h.rateLimited[provider]; exists {
		occurrences = existing.Occurrences + 1
	}

	event := RateLimitEvent{
		Timestamp:   h.now(),
		Provider:    provider,
		StatusCode:  statusCode,
		Occurrences: occurrences,
		Message:     buildMessage(provider, statusCode, occurrences),
	}
	h.rateLimited[provider] = &event
	callback := h.onRateLimit
	h.mu.Unlock()

	h.log.Warn().
		Str("provider", provider).
		Int("status", statusCode).
		Int("occurrences", occurrences).
		Msg("provider rate limited")

	if callback != nil {
		callback(event)
	}
}

func (h *Handler) checkRecovery(provider string) {
	h.mu.Lock()
	_, exists := h.rateLimited[provider]
	delete(h.rateLimited, provider)
	callback := h.onRecovered
	h.mu.Unlock()

	if !exists {
		return
	}

	h.log.Info().Str("provider", provider).Msg("provider rate limit cleared")
	if callback != nil {
		callback(provider)
	}
}

// GetCurrentState returns a copy of the current rate limit state for a provider, or nil
func (h *Handler) GetCurrentState(provider string) *RateLimitEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if event, exists := h.rateLimited[provider]; exists {
		eventCopy := *event
		return &eventCopy
	}
	return nil
}

func buildMessage(provider string, statusCode int, occurrences int) string {
	if occurrences == 1 {
		return fmt.Sprintf("%s rate limit detected (HTTP %d). The current snapshot is skipped; "+
			"the next scheduled run will try again.", provider, statusCode)
	}
	return fmt.Sprintf("%s still rate limited (HTTP %d, %d consecutive responses). "+
		"Consider a longer update interval.", provider, statusCode, occurrences)
}
