package proactive

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/deskmate-app/deskmate/internal/event"
)

// fakeSender records proactive requests and replies with a canned result.
type fakeSender struct {
	mu       sync.Mutex
	calls    int
	payloads []map[string]any
	text     string
	err      error
}

func (f *fakeSender) Send(ctx context.Context, typ string, payload any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if m, ok := payload.(map[string]any); ok {
		f.payloads = append(f.payloads, m)
	}
	if f.err != nil {
		return nil, f.err
	}
	raw, _ := json.Marshal(map[string]string{"text": f.text})
	return raw, nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSnapshot is a Snapshotter with a fixed outcome.
type fakeSnapshot struct {
	enabled bool
	path    string
	calls   int
}

func (f *fakeSnapshot) Enabled() bool { return f.enabled }

func (f *fakeSnapshot) CaptureNow(ctx context.Context) string {
	f.calls++
	return f.path
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// noonTuesday is a reference instant comfortably outside default quiet
// hours.
var noonTuesday = time.Date(2025, 6, 10, 12, 0, 0, 0, time.Local)

func permissiveConfig() Config {
	return Config{
		Enabled:        true,
		TickInterval:   time.Minute,
		MinIdle:        20 * time.Minute,
		Cooldown:       45 * time.Minute,
		MaxPerDay:      6,
		RandomChance:   1.0,
		QuietStartHour: 22,
		QuietEndHour:   8,
	}
}

func newTestScheduler(t *testing.T, sender Sender, snap Snapshotter, cfg Config, clock *testClock) *Scheduler {
	t.Helper()
	s := NewScheduler(sender, snap, event.NewBus(), "overlay:test", cfg,
		WithClock(clock.Now), WithRand(func() float64 { return 0 }))
	t.Cleanup(s.Stop)
	return s
}

// makeIdle moves the clock forward far enough to pass the idle guardrail.
func makeIdle(s *Scheduler, clock *testClock, d time.Duration) {
	s.MarkActivity()
	clock.Advance(d)
}

func TestQuietHoursWraparound(t *testing.T) {
	tests := []struct {
		hour  int
		quiet bool
	}{
		{23, true},
		{0, true},
		{7, true},
		{8, false},
		{12, false},
		{21, false},
		{22, true},
	}
	for _, tt := range tests {
		if got := inQuietHours(tt.hour, 22, 8); got != tt.quiet {
			t.Errorf("inQuietHours(%d, 22, 8) = %v, want %v", tt.hour, got, tt.quiet)
		}
	}

	// Non-wrapping window.
	if !inQuietHours(10, 9, 17) {
		t.Error("hour 10 should be inside 9-17")
	}
	if inQuietHours(17, 9, 17) {
		t.Error("the end hour is exclusive")
	}
	if inQuietHours(8, 9, 17) {
		t.Error("hour 8 should be outside 9-17")
	}
}

func TestIdleBelowMinimumDeniesRegardlessOfChance(t *testing.T) {
	clock := &testClock{now: noonTuesday}
	sender := &fakeSender{text: "hi"}
	cfg := permissiveConfig()
	cfg.RandomChance = 1.0
	s := newTestScheduler(t, sender, &fakeSnapshot{}, cfg, clock)

	// Idle for only 5 of the required 20 minutes.
	makeIdle(s, clock, 5*time.Minute)

	for i := 0; i < 10; i++ {
		s.Tick(context.Background())
	}
	if got := sender.callCount(); got != 0 {
		t.Errorf("expected no nudges while not idle, got %d", got)
	}
}

func TestSuccessfulNudgeUpdatesCounters(t *testing.T) {
	clock := &testClock{now: noonTuesday}
	sender := &fakeSender{text: "take a stretch break?"}
	s := newTestScheduler(t, sender, &fakeSnapshot{}, permissiveConfig(), clock)

	makeIdle(s, clock, 30*time.Minute)
	s.Tick(context.Background())

	st := s.Status()
	if st.SentToday != 1 {
		t.Errorf("sentToday = %d, want 1", st.SentToday)
	}
	if st.LastProactiveAt.IsZero() {
		t.Error("lastProactiveAt not set after successful nudge")
	}
}

func TestFailedBridgeCallConsumesNothing(t *testing.T) {
	clock := &testClock{now: noonTuesday}
	sender := &fakeSender{err: errors.New("timeout")}
	s := newTestScheduler(t, sender, &fakeSnapshot{}, permissiveConfig(), clock)

	makeIdle(s, clock, 30*time.Minute)
	s.Tick(context.Background())

	st := s.Status()
	if st.SentToday != 0 {
		t.Errorf("failed attempt consumed a slot: sentToday = %d", st.SentToday)
	}
	if !st.LastProactiveAt.IsZero() {
		t.Error("failed attempt set lastProactiveAt")
	}

	// The in-flight marker must be clear: a later tick can try again.
	sender.mu.Lock()
	sender.err = nil
	sender.text = "hello again"
	sender.mu.Unlock()
	s.Tick(context.Background())
	if got := s.Status().SentToday; got != 1 {
		t.Errorf("retry after failure did not send: sentToday = %d", got)
	}
}

func TestEmptyResponseConsumesNothing(t *testing.T) {
	clock := &testClock{now: noonTuesday}
	sender := &fakeSender{text: "   "}
	s := newTestScheduler(t, sender, &fakeSnapshot{}, permissiveConfig(), clock)

	makeIdle(s, clock, 30*time.Minute)
	s.Tick(context.Background())

	if got := s.Status().SentToday; got != 0 {
		t.Errorf("declined nudge consumed a slot: sentToday = %d", got)
	}
}

func TestDailyCapAndRollover(t *testing.T) {
	clock := &testClock{now: noonTuesday}
	sender := &fakeSender{text: "nudge"}
	cfg := permissiveConfig()
	cfg.MaxPerDay = 2
	cfg.Cooldown = 0
	s := newTestScheduler(t, sender, &fakeSnapshot{}, cfg, clock)

	for i := 0; i < 4; i++ {
		makeIdle(s, clock, 30*time.Minute)
		s.Tick(context.Background())
	}
	if got := s.Status().SentToday; got != 2 {
		t.Fatalf("daily cap not enforced: sentToday = %d", got)
	}
	if got := sender.callCount(); got != 2 {
		t.Fatalf("bridge called %d times past the cap", got)
	}

	// Crossing midnight resets the key and the counter together.
	clock.Set(noonTuesday.Add(24 * time.Hour))
	makeIdle(s, clock, 30*time.Minute)
	s.Tick(context.Background())

	st := s.Status()
	if st.SentToday != 1 {
		t.Errorf("after rollover sentToday = %d, want 1", st.SentToday)
	}
	if got := sender.callCount(); got != 3 {
		t.Errorf("nudge at yesterday's cap was not permitted today: %d calls", got)
	}
}

func TestCooldownBlocksBackToBackNudges(t *testing.T) {
	clock := &testClock{now: noonTuesday}
	sender := &fakeSender{text: "nudge"}
	s := newTestScheduler(t, sender, &fakeSnapshot{}, permissiveConfig(), clock)

	makeIdle(s, clock, 30*time.Minute)
	s.Tick(context.Background())
	if got := sender.callCount(); got != 1 {
		t.Fatalf("setup nudge failed: %d calls", got)
	}

	// Idle again but within the 45-minute cooldown.
	makeIdle(s, clock, 30*time.Minute)
	s.Tick(context.Background())
	if got := sender.callCount(); got != 1 {
		t.Errorf("cooldown not enforced: %d calls", got)
	}

	// Past the cooldown the next nudge goes through.
	clock.Advance(46 * time.Minute)
	s.Tick(context.Background())
	if got := sender.callCount(); got != 2 {
		t.Errorf("nudge after cooldown expiry blocked: %d calls", got)
	}
}

func TestZeroChanceNeverSends(t *testing.T) {
	clock := &testClock{now: noonTuesday}
	sender := &fakeSender{text: "nudge"}
	cfg := permissiveConfig()
	cfg.RandomChance = 0
	s := NewScheduler(sender, &fakeSnapshot{}, event.NewBus(), "overlay:test", cfg,
		WithClock(clock.Now), WithRand(func() float64 { return 0 }))
	t.Cleanup(s.Stop)

	// Even a draw of exactly 0 must fail a strictly-below-zero test.
	makeIdle(s, clock, 30*time.Minute)
	s.Tick(context.Background())
	if got := sender.callCount(); got != 0 {
		t.Errorf("chance 0 sent a nudge: %d calls", got)
	}
}

func TestDisabledSchedulerDeniesEverything(t *testing.T) {
	clock := &testClock{now: noonTuesday}
	sender := &fakeSender{text: "nudge"}
	cfg := permissiveConfig()
	cfg.Enabled = false
	s := newTestScheduler(t, sender, &fakeSnapshot{}, cfg, clock)

	makeIdle(s, clock, 30*time.Minute)
	s.Tick(context.Background())
	if got := sender.callCount(); got != 0 {
		t.Errorf("disabled scheduler sent a nudge: %d calls", got)
	}

	s.SetEnabled(true)
	s.Tick(context.Background())
	if got := sender.callCount(); got != 1 {
		t.Errorf("re-enabled scheduler did not send: %d calls", got)
	}
}

func TestSnapshotAttachedWhenCaptureEnabled(t *testing.T) {
	clock := &testClock{now: noonTuesday}
	sender := &fakeSender{text: "nudge"}
	snap := &fakeSnapshot{enabled: true, path: "/tmp/snapshots/latest.png"}
	s := newTestScheduler(t, sender, snap, permissiveConfig(), clock)

	makeIdle(s, clock, 30*time.Minute)
	s.Tick(context.Background())

	if snap.calls != 1 {
		t.Fatalf("expected 1 snapshot request, got %d", snap.calls)
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.payloads) != 1 {
		t.Fatalf("expected 1 proactive payload, got %d", len(sender.payloads))
	}
	media, _ := sender.payloads[0]["media"].([]string)
	if len(media) != 1 || media[0] != snap.path {
		t.Errorf("snapshot path not attached as media: %v", sender.payloads[0]["media"])
	}
	if sender.payloads[0]["idle_minutes"].(int) < 20 {
		t.Errorf("idle context missing: %v", sender.payloads[0]["idle_minutes"])
	}
}

func TestSnapshotSkippedWhenCaptureDisabled(t *testing.T) {
	clock := &testClock{now: noonTuesday}
	sender := &fakeSender{text: "nudge"}
	snap := &fakeSnapshot{enabled: false, path: "/tmp/snapshots/latest.png"}
	s := newTestScheduler(t, sender, snap, permissiveConfig(), clock)

	makeIdle(s, clock, 30*time.Minute)
	s.Tick(context.Background())

	if snap.calls != 0 {
		t.Errorf("snapshot requested while capture disabled: %d calls", snap.calls)
	}
}

func TestApplyPatchRebroadcastsStatus(t *testing.T) {
	clock := &testClock{now: noonTuesday}
	bus := event.NewBus()

	var mu sync.Mutex
	var statuses []event.ProactiveStatusEvent
	bus.Subscribe(event.TypeProactiveStatus, func(e event.Event) {
		mu.Lock()
		statuses = append(statuses, e.(event.ProactiveStatusEvent))
		mu.Unlock()
	})

	s := NewScheduler(&fakeSender{}, &fakeSnapshot{}, bus, "overlay:test", permissiveConfig(),
		WithClock(clock.Now))
	t.Cleanup(s.Stop)

	idle := 30
	cooldown := 10
	chance := 0.25
	st := s.Apply(ConfigPatch{
		MinIdleMinutes:  &idle,
		CooldownMinutes: &cooldown,
		RandomChance:    &chance,
	})

	if st.MinIdleMinutes != 30 || st.CooldownMinutes != 10 || st.RandomChance != 0.25 {
		t.Errorf("patch not applied: %+v", st)
	}

	mu.Lock()
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status broadcast, got %d", len(statuses))
	}
	if statuses[0].MinIdleMinutes != 30 {
		t.Errorf("broadcast carries stale tunables: %+v", statuses[0])
	}
	mu.Unlock()

	// Out-of-range values are ignored, valid ones in the same patch apply.
	badHour := 99
	goodCap := 3
	st = s.Apply(ConfigPatch{QuietStartHour: &badHour, MaxPerDay: &goodCap})
	if st.Quiet.Start != 22 {
		t.Errorf("invalid quiet hour applied: %d", st.Quiet.Start)
	}
	if st.MaxPerDay != 3 {
		t.Errorf("valid cap ignored: %d", st.MaxPerDay)
	}
}

func TestGuardrailOrderShortCircuits(t *testing.T) {
	clock := &testClock{now: noonTuesday}
	sender := &fakeSender{text: "nudge"}
	cfg := permissiveConfig()
	cfg.MaxPerDay = 1
	cfg.Cooldown = 0
	s := newTestScheduler(t, sender, &fakeSnapshot{}, cfg, clock)

	// Exhaust the cap.
	makeIdle(s, clock, 30*time.Minute)
	s.Tick(context.Background())
	if got := sender.callCount(); got != 1 {
		t.Fatalf("setup nudge failed: %d calls", got)
	}

	// With the cap hit, a tick during quiet hours must deny on the cap
	// (step 3) without reaching later checks, and either way produce no
	// side effects.
	clock.Set(time.Date(2025, 6, 10, 23, 0, 0, 0, time.Local))
	before := s.Status()
	s.Tick(context.Background())
	after := s.Status()
	if before != after {
		t.Errorf("denied tick mutated state: %+v vs %+v", before, after)
	}
}
