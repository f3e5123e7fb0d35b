// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

// Package diag provides the firmware's structured logging sink (a
// log/slog handler writing to the UART console) and an alert state flag
// for a status LED; no LED driver in this firmware reads it.
package diag

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// RateLimitedHandler bridges log/slog to a console writer, but drops
// repeats of the same message within window once a key has already
// logged burst times, so a wedged peripheral spewing the same error
// every poll cycle cannot starve the console of useful output.
type RateLimitedHandler struct {
	console slog.Handler

	mu     sync.Mutex
	seen   map[string]*bucket
	window time.Duration
	burst  int
	now    func() time.Time
}

type bucket struct {
	count   int
	openedAt time.Time
}

// NewRateLimitedHandler returns a handler writing text-formatted records
// to w, allowing burst occurrences of any distinct message within window
// before suppressing further repeats until window elapses.
func NewRateLimitedHandler(w io.Writer, opts *slog.HandlerOptions, window time.Duration, burst int) *RateLimitedHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &RateLimitedHandler{
		console: slog.NewTextHandler(w, opts),
		seen:    make(map[string]*bucket),
		window:  window,
		burst:   burst,
		now:     time.Now,
	}
}

func (h *RateLimitedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.console.Enabled(ctx, level)
}

func (h *RateLimitedHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.suppressed(r.Message) {
		return nil
	}
	return h.console.Handle(ctx, r)
}

func (h *RateLimitedHandler) suppressed(msg string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	b, ok := h.seen[msg]
	if !ok || now.Sub(b.openedAt) > h.window {
		h.seen[msg] = &bucket{count: 1, openedAt: now}
		return false
	}
	b.count++
	return b.count > h.burst
}

func (h *RateLimitedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RateLimitedHandler{
		console: h.console.WithAttrs(attrs),
		seen:    h.seen,
		window:  h.window,
		burst:   h.burst,
		now:     h.now,
	}
}

func (h *RateLimitedHandler) WithGroup(name string) slog.Handler {
	return &RateLimitedHandler{
		console: h.console.WithGroup(name),
		seen:    h.seen,
		window:  h.window,
		burst:   h.burst,
		now:     h.now,
	}
}

// New returns a ready-to-use *slog.Logger writing to w through a
// RateLimitedHandler, the firmware's standard console logging setup.
func New(w io.Writer, level slog.Level) *slog.Logger {
	h := NewRateLimitedHandler(w, &slog.HandlerOptions{Level: level}, 5*time.Second, 3)
	return slog.New(h)
}

// Alert is the single foreground-visible "something needs attention"
// flag. It does not drive the status LED's PWM or blink timing itself
// (out of scope), only records whether the condition is active so the
// board's main loop can read it once per iteration.
type Alert struct {
	mu     sync.Mutex
	active bool
	reason string
}

// Set marks the alert condition active, recording reason for Reason.
func (a *Alert) Set(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = true
	a.reason = reason
}

// Clear marks the alert condition resolved.
func (a *Alert) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = false
	a.reason = ""
}

// Active reports whether an alert is currently set, and why.
func (a *Alert) Active() (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active, a.reason
}
