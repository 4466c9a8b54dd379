// Package schedule serializes and throttles every call to the
// reasoning service. Foreground chat, background heartbeat cycles, and
// classification sub-tasks all funnel through one Scheduler so pacing
// and mutual exclusion are enforced in a single place.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reverie-agent/reverie/internal/llm"
)

// Purpose tags a call with its intent. Purpose selects model and
// temperature policy; scheduling policy is purpose-independent except
// that "inference" calls are single-flight.
type Purpose string

const (
	// PurposeInference is a latency-sensitive, user-facing call.
	PurposeInference Purpose = "inference"
	// PurposeClassification is a background intake sub-task.
	PurposeClassification Purpose = "classification"
	// PurposeAnalytical is a consolidation sift call.
	PurposeAnalytical Purpose = "analytical"
	// PurposeHeartbeat is the autonomous background cycle.
	PurposeHeartbeat Purpose = "heartbeat"
)

// Clock abstracts time so tests can substitute a deterministic source.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealClock returns the wall-clock implementation.
func RealClock() Clock { return realClock{} }

// Config tunes scheduler pacing. Zero values get defaults from
// [DefaultConfig].
type Config struct {
	// MinSpacing is the minimum gap between any two calls.
	MinSpacing time.Duration
	// DedupWindow is how long a payload fingerprint suppresses an
	// identical follow-up call.
	DedupWindow time.Duration
	// CallTimeout is the hard per-call deadline.
	CallTimeout time.Duration
	// LockTimeout bounds how long a caller waits on the inference lock
	// before force-releasing it.
	LockTimeout time.Duration

	// Model is the primary model for inference and heartbeat purposes.
	Model string
	// UtilityModel handles classification and analytical purposes.
	UtilityModel string
}

// DefaultConfig returns the standard pacing parameters.
func DefaultConfig() Config {
	return Config{
		MinSpacing:  2 * time.Second,
		DedupWindow: 1500 * time.Millisecond,
		CallTimeout: 55 * time.Second,
		LockTimeout: 60 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MinSpacing <= 0 {
		c.MinSpacing = d.MinSpacing
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = d.DedupWindow
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = d.LockTimeout
	}
	if c.UtilityModel == "" {
		c.UtilityModel = c.Model
	}
}

// Request is one scheduled call.
type Request struct {
	Purpose   Purpose
	System    string
	Messages  []llm.Message
	MaxTokens int
}

// dedupCapacity bounds the fingerprint cache; oldest entries are
// evicted past this.
const dedupCapacity = 8

// fingerprintTail is how many trailing bytes of the serialized payload
// form the dedup fingerprint. The tail is what distinguishes
// consecutive turns of the same conversation.
const fingerprintTail = 400

// lockPollInterval is how often a waiter re-checks the inference lock.
const lockPollInterval = 100 * time.Millisecond

type dedupEntry struct {
	fingerprint string
	at          time.Time
}

// Scheduler owns all pacing state: the inference lock, the last-call
// timestamp, and the dedup cache. Clock and client are injected so
// tests can run against a manual clock and a fake service.
type Scheduler struct {
	client llm.Client
	cfg    Config
	clock  Clock
	logger *slog.Logger

	mu            sync.Mutex
	lastCall      time.Time
	dedup         []dedupEntry
	inflight      bool
	inflightSince time.Time
	inflightGen   uint64
}

// New creates a scheduler around the given reasoning service client.
func New(client llm.Client, cfg Config, clock Clock, logger *slog.Logger) *Scheduler {
	cfg.applyDefaults()
	if clock == nil {
		clock = realClock{}
	}
	return &Scheduler{
		client: client,
		cfg:    cfg,
		clock:  clock,
		logger: logger.With("component", "scheduler"),
	}
}

// InferenceBusy reports whether an inference call is currently in
// flight. The heartbeat cycle uses this to skip its tick rather than
// queue behind foreground work.
func (s *Scheduler) InferenceBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight
}

// Schedule issues one call under the scheduler's policies and returns
// the reply text. On timeout or transport failure the return value
// degrades by purpose: inference yields a user-visible apology carrying
// a truncated error reference, every other purpose yields "". Callers
// must treat "" as "proceed without this data", never as a hard
// failure.
func (s *Scheduler) Schedule(ctx context.Context, req Request) string {
	if req.Purpose == PurposeInference {
		gen := s.acquireInferenceLock()
		defer s.releaseInferenceLock(gen)
	}

	if s.suppressDuplicate(req) {
		s.logger.Debug("duplicate call suppressed", "purpose", req.Purpose)
		return ""
	}

	s.waitSpacing()

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	started := s.clock.Now()
	reply, err := s.client.Generate(callCtx, llm.Request{
		Model:       s.modelFor(req.Purpose),
		System:      req.System,
		Messages:    req.Messages,
		Temperature: s.temperatureFor(req.Purpose),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		s.logger.Warn("scheduled call failed",
			"purpose", req.Purpose,
			"elapsed", s.clock.Now().Sub(started),
			"error", err,
		)
		if req.Purpose == PurposeInference {
			return apology(err)
		}
		return ""
	}

	if reply.InputTokens > 0 || reply.OutputTokens > 0 {
		s.logger.Debug("call complete",
			"purpose", req.Purpose,
			"input_tokens", reply.InputTokens,
			"output_tokens", reply.OutputTokens,
		)
	}
	return reply.Content
}

// acquireInferenceLock takes the single-flight inference lock, waiting
// for any current holder. A holder that has been in flight longer than
// LockTimeout is presumed crashed: the lock is force-cleared with a
// diagnostic so a wedged call can never deadlock the agent permanently.
// The returned generation identifies this acquisition for release.
func (s *Scheduler) acquireInferenceLock() uint64 {
	s.mu.Lock()
	for s.inflight {
		held := s.clock.Now().Sub(s.inflightSince)
		if held >= s.cfg.LockTimeout {
			s.logger.Error("inference lock force-released",
				"held", held,
				"timeout", s.cfg.LockTimeout,
			)
			s.inflight = false
			break
		}
		s.mu.Unlock()
		s.clock.Sleep(lockPollInterval)
		s.mu.Lock()
	}
	s.inflight = true
	s.inflightSince = s.clock.Now()
	s.inflightGen++
	gen := s.inflightGen
	s.mu.Unlock()
	return gen
}

// releaseInferenceLock is a no-op when gen is stale: the lock was
// force-released while this holder was wedged and now belongs to a
// later acquisition, which must not lose it.
func (s *Scheduler) releaseInferenceLock(gen uint64) {
	s.mu.Lock()
	if s.inflightGen == gen {
		s.inflight = false
	}
	s.mu.Unlock()
}

// suppressDuplicate reports whether an identical payload was issued
// within the dedup window, recording this payload's fingerprint either
// way.
func (s *Scheduler) suppressDuplicate(req Request) bool {
	fp := fingerprint(req)
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.dedup {
		if e.fingerprint == fp && now.Sub(e.at) < s.cfg.DedupWindow {
			return true
		}
	}

	s.dedup = append(s.dedup, dedupEntry{fingerprint: fp, at: now})
	if len(s.dedup) > dedupCapacity {
		s.dedup = s.dedup[len(s.dedup)-dedupCapacity:]
	}
	return false
}

// waitSpacing reserves this call's place on the shared pacing timeline
// under the lock, then sleeps until the reserved instant. The slot is
// claimed before sleeping so concurrent callers cannot observe the
// same previous-call timestamp and arrive at the service together:
// each reservation pushes lastCall forward by a full MinSpacing.
func (s *Scheduler) waitSpacing() {
	s.mu.Lock()
	now := s.clock.Now()
	slot := now
	if !s.lastCall.IsZero() {
		if next := s.lastCall.Add(s.cfg.MinSpacing); next.After(slot) {
			slot = next
		}
	}
	s.lastCall = slot
	s.mu.Unlock()

	if wait := slot.Sub(now); wait > 0 {
		s.clock.Sleep(wait)
	}
}

func (s *Scheduler) modelFor(p Purpose) string {
	switch p {
	case PurposeClassification, PurposeAnalytical:
		return s.cfg.UtilityModel
	default:
		return s.cfg.Model
	}
}

func (s *Scheduler) temperatureFor(p Purpose) *float64 {
	var t float64
	switch p {
	case PurposeClassification, PurposeAnalytical:
		t = 0.2
	case PurposeHeartbeat:
		t = 0.6
	default:
		return nil // provider default for user-facing inference
	}
	return &t
}

// fingerprint keys the dedup cache on the tail of the serialized
// payload.
func fingerprint(req Request) string {
	var payload string
	for _, m := range req.Messages {
		payload += m.Role + ":" + m.Content + "\n"
	}
	if len(payload) > fingerprintTail {
		payload = payload[len(payload)-fingerprintTail:]
	}
	return string(req.Purpose) + "|" + payload
}

// apology builds the degraded user-visible reply for a failed
// inference call. The error reference is truncated so transport noise
// never floods the chat.
func apology(err error) string {
	ref := err.Error()
	if len(ref) > 80 {
		ref = ref[:80] + "..."
	}
	return fmt.Sprintf("I'm sorry, I wasn't able to think that through just now (ref: %s). Please try again.", ref)
}
