package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/deskmate-app/deskmate/internal/event"
	"github.com/deskmate-app/deskmate/internal/logging"
)

// Interval bounds in seconds. Requested intervals are clamped, not
// rejected.
const (
	MinIntervalSeconds = 2
	MaxIntervalSeconds = 60
)

// snapshotName is the single, overwritten snapshot filename. Only the
// latest frame is ever retained.
const snapshotName = "latest.png"

// Status is a point-in-time view of the service state.
type Status struct {
	Enabled         bool
	IntervalSeconds int
	HasCapture      bool
	LatestPath      string
	LastCaptureAt   time.Time
	LastError       string
}

// captureResult is the shared outcome of one physical capture operation.
// Concurrent CaptureNow calls during the operation all wait on done and
// read the same path.
type captureResult struct {
	done chan struct{}
	path string
}

// Service produces a deduplicated, rate-limited snapshot of the display.
// At most one capture operation executes at a time; overlapping requests
// coalesce onto the in-flight one. It is safe for concurrent use.
type Service struct {
	provider Provider
	bus      *event.Bus
	logger   *logging.Logger
	dir      string
	clock    func() time.Time

	mu            sync.Mutex
	enabled       bool
	interval      time.Duration
	latestPath    string
	lastCaptureAt time.Time
	lastErr       string
	current       *captureResult
	stopCh        chan struct{}
}

// NewService creates a capture service writing snapshots into dir.
// The provider and bus must be non-nil.
func NewService(provider Provider, bus *event.Bus, dir string, opts ...ServiceOption) *Service {
	if provider == nil {
		panic("capture: Provider must not be nil")
	}
	if bus == nil {
		panic("capture: event.Bus must not be nil")
	}

	cfg := &serviceConfig{
		interval: 10 * time.Second,
		clock:    time.Now,
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Service{
		provider: provider,
		bus:      bus,
		logger:   cfg.logger.WithComponent("capture"),
		dir:      dir,
		clock:    cfg.clock,
		interval: clampInterval(cfg.interval),
	}
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceConfig)

type serviceConfig struct {
	interval time.Duration
	clock    func() time.Time
	logger   *logging.Logger
}

// WithInterval sets the initial capture cadence. Clamped to [2s, 60s].
func WithInterval(d time.Duration) ServiceOption {
	return func(c *serviceConfig) { c.interval = d }
}

// WithClock injects a time source for tests.
func WithClock(clock func() time.Time) ServiceOption {
	return func(c *serviceConfig) { c.clock = clock }
}

// WithServiceLogger sets the logger for the service.
func WithServiceLogger(logger *logging.Logger) ServiceOption {
	return func(c *serviceConfig) { c.logger = logger }
}

// Enabled reports whether periodic capture is on.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Status returns the current service state.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Service) statusLocked() Status {
	return Status{
		Enabled:         s.enabled,
		IntervalSeconds: int(s.interval / time.Second),
		HasCapture:      s.latestPath != "",
		LatestPath:      s.latestPath,
		LastCaptureAt:   s.lastCaptureAt,
		LastError:       s.lastErr,
	}
}

// SetEnabled turns periodic capture on or off. Enabling starts the
// recurring timer and triggers one capture immediately; it is idempotent.
// Disabling stops the timer and clears the error state but preserves the
// last-known-good snapshot path.
func (s *Service) SetEnabled(enabled bool) {
	s.mu.Lock()
	if s.enabled == enabled {
		s.mu.Unlock()
		return
	}
	s.enabled = enabled

	if enabled {
		s.startLoopLocked(true)
	} else {
		s.stopLoopLocked()
		s.lastErr = ""
	}
	s.mu.Unlock()

	s.publishStatus()
	s.logger.Info("capture enabled state changed", "enabled", enabled)
}

// SetIntervalSeconds changes the capture cadence, clamping to [2, 60].
// If the timer is running it is stopped and restarted at the new cadence
// in one step, so the boundary neither misses nor doubles a tick.
// It returns the interval actually applied.
func (s *Service) SetIntervalSeconds(seconds int) int {
	interval := clampInterval(time.Duration(seconds) * time.Second)

	s.mu.Lock()
	changed := interval != s.interval
	s.interval = interval
	if changed && s.stopCh != nil {
		s.stopLoopLocked()
		s.startLoopLocked(false)
	}
	s.mu.Unlock()

	s.publishStatus()
	return int(interval / time.Second)
}

// Stop halts the recurring timer. Unlike SetEnabled(false) it leaves the
// recorded state untouched; used at application shutdown.
func (s *Service) Stop() {
	s.mu.Lock()
	s.stopLoopLocked()
	s.enabled = false
	s.mu.Unlock()
}

// CaptureNow acquires one fresh snapshot and returns its absolute path,
// or "" when capture is disabled or the attempt failed. Failures never
// propagate: they are recorded, reported as a status event, and absorbed,
// so a failed capture cannot break the caller's request flow.
//
// Concurrent calls while a capture is in flight coalesce: all callers
// observe the outcome of the single physical operation.
func (s *Service) CaptureNow(ctx context.Context) string {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return ""
	}
	if cur := s.current; cur != nil {
		s.mu.Unlock()
		<-cur.done
		return cur.path
	}
	cur := &captureResult{done: make(chan struct{})}
	s.current = cur
	s.mu.Unlock()

	path, capErr := s.capture(ctx)

	s.mu.Lock()
	s.current = nil
	if capErr != nil {
		s.lastErr = capErr.Error()
	} else {
		s.latestPath = path
		s.lastCaptureAt = s.clock()
		s.lastErr = ""
	}
	s.mu.Unlock()

	if capErr != nil {
		s.logger.Warn("capture failed", "error", capErr, "hint", remediationHint())
	} else {
		s.logger.Debug("capture written", "path", path)
	}
	s.publishStatus()

	cur.path = path
	close(cur.done)
	return path
}

// capture performs one physical capture: acquire a frame from the first
// source, require it to be non-empty, and overwrite the snapshot file.
func (s *Service) capture(ctx context.Context) (string, error) {
	sources, err := s.provider.Sources(ctx, 0, 0)
	if err != nil {
		return "", fmt.Errorf("capture provider failed: %w", err)
	}
	if len(sources) == 0 {
		return "", fmt.Errorf("no display source available")
	}

	src := sources[0]
	frame, err := src.Frame()
	if err != nil {
		return "", fmt.Errorf("source %q failed: %w", src.Name(), err)
	}
	if len(frame) == 0 {
		return "", fmt.Errorf("source %q produced an empty frame", src.Name())
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	// Write-then-rename so readers of the stable path never see a
	// half-written file.
	final := filepath.Join(s.dir, snapshotName)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, frame, 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("failed to replace snapshot: %w", err)
	}

	abs, err := filepath.Abs(final)
	if err != nil {
		return final, nil
	}
	return abs, nil
}

// startLoopLocked begins the recurring capture goroutine. Callers must
// hold s.mu. When immediate is true one capture fires right away.
func (s *Service) startLoopLocked(immediate bool) {
	if s.stopCh != nil {
		return
	}
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	interval := s.interval

	go s.loop(stopCh, interval, immediate)
}

// stopLoopLocked stops the recurring capture goroutine if it is running.
// Callers must hold s.mu.
func (s *Service) stopLoopLocked() {
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
}

func (s *Service) loop(stopCh chan struct{}, interval time.Duration, immediate bool) {
	if immediate {
		s.CaptureNow(context.Background())
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.CaptureNow(context.Background())
		}
	}
}

func (s *Service) publishStatus() {
	s.mu.Lock()
	st := s.statusLocked()
	s.mu.Unlock()

	s.bus.Publish(event.NewCaptureStatusEvent(
		st.Enabled, st.IntervalSeconds, st.LatestPath, st.LastCaptureAt, st.LastError))
}

func clampInterval(d time.Duration) time.Duration {
	if d < MinIntervalSeconds*time.Second {
		return MinIntervalSeconds * time.Second
	}
	if d > MaxIntervalSeconds*time.Second {
		return MaxIntervalSeconds * time.Second
	}
	return d
}
