// Package internal contains integration tests that verify the companion
// components work together correctly: the event bus routing between the
// capture service, the proactive scheduler, and the shell.
package internal

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deskmate-app/deskmate/internal/capture"
	"github.com/deskmate-app/deskmate/internal/event"
	"github.com/deskmate-app/deskmate/internal/proactive"
	"github.com/deskmate-app/deskmate/internal/shell"
)

// memorySource serves a fixed PNG-ish payload from memory.
type memorySource struct{}

func (memorySource) Name() string           { return "display-1" }
func (memorySource) Frame() ([]byte, error) { return []byte("png bytes"), nil }

type memoryProvider struct{}

func (memoryProvider) Sources(ctx context.Context, width, height int) ([]capture.Source, error) {
	return []capture.Source{memorySource{}}, nil
}

// recordingSender records every request and answers from a fixed script.
type recordingSender struct {
	mu       sync.Mutex
	requests []recordedRequest
	replies  map[string]string
}

type recordedRequest struct {
	typ     string
	payload map[string]any
}

func (r *recordingSender) Send(ctx context.Context, typ string, payload any) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, _ := json.Marshal(payload)
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	r.requests = append(r.requests, recordedRequest{typ: typ, payload: m})

	if reply, ok := r.replies[typ]; ok {
		return json.RawMessage(reply), nil
	}
	return json.RawMessage(`{}`), nil
}

func (r *recordingSender) recorded() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedRequest, len(r.requests))
	copy(out, r.requests)
	return out
}

// TestCaptureSchedulerShellComposition wires a real capture service into a
// real scheduler and drives both through the shell, checking that a nudge
// carries the snapshot the capture service actually wrote.
func TestCaptureSchedulerShellComposition(t *testing.T) {
	bus := event.NewBus()
	dir := t.TempDir()

	var mu sync.Mutex
	var nudges []string
	bus.Subscribe(event.TypeProactiveMessage, func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		nudges = append(nudges, e.(event.ProactiveMessageEvent).Text)
	})

	capSvc := capture.NewService(memoryProvider{}, bus, dir)
	capSvc.SetEnabled(true)
	defer capSvc.SetEnabled(false)

	sender := &recordingSender{replies: map[string]string{
		"message":   `{"text":"hi yourself"}`,
		"proactive": `{"text":"still at it?"}`,
	}}

	now := time.Date(2025, 3, 4, 14, 0, 0, 0, time.Local)
	clock := func() time.Time { return now }

	sched := proactive.NewScheduler(sender, capSvc, bus, "overlay:integration", proactive.Config{
		Enabled:        true,
		TickInterval:   time.Minute,
		MinIdle:        0,
		Cooldown:       time.Minute,
		MaxPerDay:      10,
		RandomChance:   1.0,
		QuietStartHour: 22,
		QuietEndHour:   8,
	}, proactive.WithClock(clock), proactive.WithRand(func() float64 { return 0.0 }))

	sh := shell.New(sender, capSvc, sched, nil, nil, shell.WithSession("overlay:integration"))

	reply, err := sh.SendMessage(context.Background(), "hi")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if reply != "hi yourself" {
		t.Errorf("unexpected reply: %q", reply)
	}

	sched.Tick(context.Background())

	reqs := sender.recorded()
	if len(reqs) != 2 {
		t.Fatalf("expected message + proactive requests, got %d", len(reqs))
	}

	msg := reqs[0]
	if msg.typ != "message" {
		t.Errorf("unexpected first request type: %q", msg.typ)
	}
	media, _ := msg.payload["media"].([]any)
	if len(media) != 1 {
		t.Fatalf("message did not attach a snapshot: %v", msg.payload["media"])
	}
	path, _ := media[0].(string)
	if !strings.HasPrefix(path, dir) {
		t.Errorf("snapshot written outside the capture dir: %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("snapshot file missing: %v", err)
	}

	nudgeReq := reqs[1]
	if nudgeReq.typ != "proactive" {
		t.Errorf("unexpected second request type: %q", nudgeReq.typ)
	}
	if nudgeReq.payload["session"] != "overlay:integration" {
		t.Errorf("nudge session mismatch: %v", nudgeReq.payload["session"])
	}
	nudgeMedia, _ := nudgeReq.payload["media"].([]any)
	if len(nudgeMedia) != 1 {
		t.Errorf("nudge did not attach the snapshot: %v", nudgeReq.payload["media"])
	}

	mu.Lock()
	defer mu.Unlock()
	if len(nudges) != 1 || nudges[0] != "still at it?" {
		t.Errorf("proactive message event not published: %v", nudges)
	}
}

// TestStatusEventsReachSubscribers verifies that capture and scheduler
// status changes fan out over the shared bus.
func TestStatusEventsReachSubscribers(t *testing.T) {
	bus := event.NewBus()

	var mu sync.Mutex
	seen := map[string]int{}
	bus.SubscribeAll(func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen[e.EventType()]++
	})

	capSvc := capture.NewService(memoryProvider{}, bus, t.TempDir())
	capSvc.SetEnabled(true)
	capSvc.CaptureNow(context.Background())
	capSvc.SetEnabled(false)

	sender := &recordingSender{}
	sched := proactive.NewScheduler(sender, capSvc, bus, "overlay:test", proactive.Config{
		TickInterval: time.Minute,
		MaxPerDay:    1,
		RandomChance: 1.0,
	})
	sched.SetEnabled(true)
	sched.SetEnabled(false)

	mu.Lock()
	defer mu.Unlock()
	if seen[event.TypeCaptureStatus] == 0 {
		t.Error("no capture status events published")
	}
	if seen[event.TypeProactiveStatus] == 0 {
		t.Error("no proactive status events published")
	}
}
