// Package proactive decides, on a fixed tick, whether the companion may
// send an unsolicited message, and executes at most one such nudge per
// tick. A layered set of stateful guardrails (idle threshold, cooldown,
// daily cap, quiet hours, randomization) gates every attempt.
package proactive

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/deskmate-app/deskmate/internal/event"
	"github.com/deskmate-app/deskmate/internal/logging"
)

// dayKeyLayout formats the calendar-day key the daily counter applies to.
const dayKeyLayout = "2006-01-02"

// Sender issues one correlated request to the background agent.
type Sender interface {
	Send(ctx context.Context, typ string, payload any) (json.RawMessage, error)
}

// Snapshotter supplies the freshest display snapshot for nudge context.
type Snapshotter interface {
	Enabled() bool
	CaptureNow(ctx context.Context) string
}

// Config holds the scheduler tunables.
type Config struct {
	Enabled        bool
	TickInterval   time.Duration
	MinIdle        time.Duration
	Cooldown       time.Duration
	MaxPerDay      int
	RandomChance   float64
	QuietStartHour int
	QuietEndHour   int
}

// ConfigPatch updates a subset of tunables; nil fields are left unchanged.
type ConfigPatch struct {
	MinIdleMinutes  *int
	CooldownMinutes *int
	MaxPerDay       *int
	RandomChance    *float64
	QuietStartHour  *int
	QuietEndHour    *int
}

// Status is a point-in-time view of the scheduler state.
type Status struct {
	Enabled         bool
	SentToday       int
	MaxPerDay       int
	MinIdleMinutes  int
	CooldownMinutes int
	RandomChance    float64
	Quiet           event.QuietHours
	LastProactiveAt time.Time
}

// Scheduler evaluates the guardrails once per tick and sends at most one
// nudge per permitted tick. All counters are volatile: they reset when the
// application restarts. It is safe for concurrent use.
type Scheduler struct {
	sender   Sender
	snapshot Snapshotter
	bus      *event.Bus
	logger   *logging.Logger
	session  string

	clock func() time.Time
	rand  func() float64

	mu           sync.Mutex
	enabled      bool
	tickInterval time.Duration
	minIdle      time.Duration
	cooldown     time.Duration
	maxPerDay    int
	chance       float64
	quietStart   int
	quietEnd     int

	lastActivity time.Time
	lastNudge    time.Time // zero until the first successful nudge
	sentToday    int
	dayKey       string
	inFlight     bool
	stopCh       chan struct{}
}

// NewScheduler creates a Scheduler. The sender, snapshotter and bus must
// be non-nil.
func NewScheduler(sender Sender, snapshot Snapshotter, bus *event.Bus, session string, cfg Config, opts ...Option) *Scheduler {
	if sender == nil {
		panic("proactive: Sender must not be nil")
	}
	if snapshot == nil {
		panic("proactive: Snapshotter must not be nil")
	}
	if bus == nil {
		panic("proactive: event.Bus must not be nil")
	}

	o := &options{
		clock:  time.Now,
		random: rand.Float64,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}

	tick := cfg.TickInterval
	if tick <= 0 {
		tick = time.Minute
	}

	s := &Scheduler{
		sender:       sender,
		snapshot:     snapshot,
		bus:          bus,
		logger:       o.logger.WithComponent("proactive"),
		session:      session,
		clock:        o.clock,
		rand:         o.random,
		enabled:      cfg.Enabled,
		tickInterval: tick,
		minIdle:      cfg.MinIdle,
		cooldown:     cfg.Cooldown,
		maxPerDay:    cfg.MaxPerDay,
		chance:       cfg.RandomChance,
		quietStart:   cfg.QuietStartHour,
		quietEnd:     cfg.QuietEndHour,
	}
	s.lastActivity = s.clock()
	s.dayKey = s.clock().Format(dayKeyLayout)
	return s
}

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	clock  func() time.Time
	random func() float64
	logger *logging.Logger
}

// WithClock injects a time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithRand injects the uniform [0,1) draw used by the probability
// guardrail.
func WithRand(random func() float64) Option {
	return func(o *options) { o.random = random }
}

// WithLogger sets the logger for the scheduler.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Start begins the recurring tick. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	interval := s.tickInterval
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				s.Tick(context.Background())
			}
		}
	}()
}

// Stop halts the recurring tick. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
}

// MarkActivity resets the idle clock. Every user-initiated interaction
// (message send, voice transcription) must route through here; it is the
// only way idle time shrinks other than by the clock moving on.
func (s *Scheduler) MarkActivity() {
	s.mu.Lock()
	s.lastActivity = s.clock()
	s.mu.Unlock()
}

// SetEnabled turns the scheduler on or off and re-broadcasts status.
func (s *Scheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
	s.publishStatus()
	s.logger.Info("proactive enabled state changed", "enabled", enabled)
}

// Apply updates the tunables named in the patch and re-broadcasts status
// so observers stay consistent without polling. It returns the resulting
// status.
func (s *Scheduler) Apply(patch ConfigPatch) Status {
	s.mu.Lock()
	if patch.MinIdleMinutes != nil && *patch.MinIdleMinutes >= 0 {
		s.minIdle = time.Duration(*patch.MinIdleMinutes) * time.Minute
	}
	if patch.CooldownMinutes != nil && *patch.CooldownMinutes >= 0 {
		s.cooldown = time.Duration(*patch.CooldownMinutes) * time.Minute
	}
	if patch.MaxPerDay != nil && *patch.MaxPerDay >= 1 {
		s.maxPerDay = *patch.MaxPerDay
	}
	if patch.RandomChance != nil && *patch.RandomChance >= 0 && *patch.RandomChance <= 1 {
		s.chance = *patch.RandomChance
	}
	if patch.QuietStartHour != nil && validHour(*patch.QuietStartHour) {
		s.quietStart = *patch.QuietStartHour
	}
	if patch.QuietEndHour != nil && validHour(*patch.QuietEndHour) {
		s.quietEnd = *patch.QuietEndHour
	}
	st := s.statusLocked()
	s.mu.Unlock()

	s.publishStatus()
	return st
}

// Status returns the current scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Scheduler) statusLocked() Status {
	return Status{
		Enabled:         s.enabled,
		SentToday:       s.sentToday,
		MaxPerDay:       s.maxPerDay,
		MinIdleMinutes:  int(s.minIdle / time.Minute),
		CooldownMinutes: int(s.cooldown / time.Minute),
		RandomChance:    s.chance,
		Quiet:           event.QuietHours{Start: s.quietStart, End: s.quietEnd},
		LastProactiveAt: s.lastNudge,
	}
}

// Tick runs one guardrail evaluation and, when permitted, exactly one
// nudge attempt. It is normally driven by the internal ticker but may be
// called directly.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock()

	permitted, reason, idle := s.evaluate(now)
	if !permitted {
		s.logger.Debug("nudge denied", "reason", reason)
		return
	}

	// The in-flight marker is set; it must be cleared on every path out.
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	s.nudge(ctx, now, idle)
}

// evaluate applies the guardrails in their fixed order, short-circuiting
// at the first failing check. A failing check has no side effects; the
// only mutations are the day rollover (step 2) and, on success, setting
// the in-flight marker. The returned idle duration feeds the nudge
// context.
func (s *Scheduler) evaluate(now time.Time) (bool, string, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 1. Off or already sending.
	if !s.enabled {
		return false, "disabled", 0
	}
	if s.inFlight {
		return false, "send in flight", 0
	}

	// 2. Calendar-day rollover: key and counter reset together.
	if key := now.Format(dayKeyLayout); key != s.dayKey {
		s.dayKey = key
		s.sentToday = 0
	}

	// 3. Daily cap.
	if s.sentToday >= s.maxPerDay {
		return false, "daily cap reached", 0
	}

	// 4. Quiet hours.
	if inQuietHours(now.Hour(), s.quietStart, s.quietEnd) {
		return false, "quiet hours", 0
	}

	// 5. Idle threshold.
	idle := now.Sub(s.lastActivity)
	if idle < s.minIdle {
		return false, "user not idle long enough", 0
	}

	// 6. Cooldown since the last successful nudge.
	if !s.lastNudge.IsZero() && now.Sub(s.lastNudge) < s.cooldown {
		return false, "cooldown", 0
	}

	// 7. Randomization.
	if s.rand() >= s.chance {
		return false, "random draw", 0
	}

	// 8. Permitted.
	s.inFlight = true
	return true, "", idle
}

// nudge performs one permitted attempt: gather context, ask the agent for
// a message, and record the outcome. Only a materialized, non-empty
// response counts as sent; any failure is logged and consumes nothing.
func (s *Scheduler) nudge(ctx context.Context, now time.Time, idle time.Duration) {
	var media []string
	if s.snapshot.Enabled() {
		if path := s.snapshot.CaptureNow(ctx); path != "" {
			media = append(media, path)
		}
	}

	payload := map[string]any{
		"session":      s.session,
		"idle_minutes": int(idle / time.Minute),
		"local_time":   now.Format("Monday 15:04"),
		"media":        media,
	}

	raw, err := s.sender.Send(ctx, "proactive", payload)
	if err != nil {
		s.logger.Warn("proactive request failed", "error", err)
		return
	}

	var resp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		s.logger.Warn("proactive response malformed", "error", err)
		return
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		// The agent declined to nudge; no slot is consumed.
		s.logger.Debug("agent declined to nudge")
		return
	}

	s.mu.Lock()
	s.lastNudge = s.clock()
	s.sentToday++
	sent := s.sentToday
	s.mu.Unlock()

	s.logger.Info("nudge sent", "sent_today", sent)
	s.publishStatus()
	s.bus.Publish(event.NewProactiveMessageEvent(text))
}

func (s *Scheduler) publishStatus() {
	s.mu.Lock()
	st := s.statusLocked()
	s.mu.Unlock()

	s.bus.Publish(event.NewProactiveStatusEvent(
		st.Enabled, st.SentToday, st.MaxPerDay, st.MinIdleMinutes,
		st.CooldownMinutes, st.RandomChance, st.Quiet, st.LastProactiveAt))
}

// inQuietHours tests hour-of-day membership in a window that may wrap
// around midnight: with start >= end the window spans midnight (e.g.,
// start 22, end 8 covers 22:00-07:59).
func inQuietHours(hour, start, end int) bool {
	if start >= end {
		return hour >= start || hour < end
	}
	return hour >= start && hour < end
}

func validHour(h int) bool {
	return h >= 0 && h <= 23
}
