// Package shell is the consumer-facing command surface of the companion
// core. It wires the process bridge, capture service, proactive scheduler
// and speech collaborators behind the small set of commands a presentation
// layer needs, and routes every user-initiated interaction through the
// activity signal.
package shell

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/deskmate-app/deskmate/internal/capture"
	"github.com/deskmate-app/deskmate/internal/logging"
	"github.com/deskmate-app/deskmate/internal/proactive"
)

// Sender issues one correlated request to the background agent.
type Sender interface {
	Send(ctx context.Context, typ string, payload any) (json.RawMessage, error)
}

// Capturer is the slice of the capture service the shell drives.
type Capturer interface {
	Enabled() bool
	CaptureNow(ctx context.Context) string
	Status() capture.Status
	SetEnabled(enabled bool)
	SetIntervalSeconds(seconds int) int
}

// Nudger is the slice of the proactive scheduler the shell drives.
type Nudger interface {
	Status() proactive.Status
	SetEnabled(enabled bool)
	Apply(patch proactive.ConfigPatch) proactive.Status
	MarkActivity()
}

// Synthesizer converts text to an audio clip.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, string, error)
}

// Shell exposes the consumer-facing commands. It holds no state of its
// own beyond the session identity; all behavior lives in the wired
// components.
type Shell struct {
	sender    Sender
	capturer  Capturer
	nudger    Nudger
	synth     Synthesizer
	logger    *logging.Logger
	sessionID string
}

// Option configures a Shell.
type Option func(*Shell)

// WithSession overrides the generated session identity. Used when another
// component (the proactive scheduler) must share the same session.
func WithSession(session string) Option {
	return func(s *Shell) {
		if session != "" {
			s.sessionID = session
		}
	}
}

// New creates a Shell. sender, capturer and nudger must be non-nil;
// synth may be nil when no speech endpoint is configured.
func New(sender Sender, capturer Capturer, nudger Nudger, synth Synthesizer, logger *logging.Logger, opts ...Option) *Shell {
	if sender == nil {
		panic("shell: Sender must not be nil")
	}
	if capturer == nil {
		panic("shell: Capturer must not be nil")
	}
	if nudger == nil {
		panic("shell: Nudger must not be nil")
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	s := &Shell{
		sender:    sender,
		capturer:  capturer,
		nudger:    nudger,
		synth:     synth,
		logger:    logger.WithComponent("shell"),
		sessionID: "overlay:" + uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Session returns the session identity attached to every agent request.
func (s *Shell) Session() string {
	return s.sessionID
}

// SendMessage forwards one user message to the agent and returns the
// reply text. The user speaking is an activity signal, so the idle clock
// resets before the request goes out. When capture is enabled the latest
// snapshot is attached as context.
func (s *Shell) SendMessage(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	s.nudger.MarkActivity()

	var media []string
	if s.capturer.Enabled() {
		if path := s.capturer.CaptureNow(ctx); path != "" {
			media = append(media, path)
		}
	}

	raw, err := s.sender.Send(ctx, "message", map[string]any{
		"text":    text,
		"session": s.sessionID,
		"media":   media,
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("malformed message response: %w", err)
	}
	return resp.Text, nil
}

// Ping issues one health request to verify round-trip liveness.
func (s *Shell) Ping(ctx context.Context) error {
	raw, err := s.sender.Send(ctx, "health", map[string]any{})
	if err != nil {
		return err
	}
	var resp struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("malformed health response: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("agent reported unhealthy")
	}
	return nil
}

// Transcribe sends recorded audio to the agent for speech-to-text and
// returns the recognized text. A successful transcription counts as user
// activity.
func (s *Shell) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("no audio to transcribe")
	}

	raw, err := s.sender.Send(ctx, "transcribe", map[string]any{
		"audio_base64": base64.StdEncoding.EncodeToString(audio),
		"mime_type":    mimeType,
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("malformed transcription response: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("transcription failed: %s", resp.Error)
	}

	text := strings.TrimSpace(resp.Text)
	if text != "" {
		s.nudger.MarkActivity()
	}
	return text, nil
}

// Synthesize converts text into an audio clip via the configured speech
// endpoint.
func (s *Shell) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	if s.synth == nil {
		return nil, "", fmt.Errorf("speech synthesis not configured")
	}
	return s.synth.Synthesize(ctx, text)
}

// CaptureStatus returns the capture service state.
func (s *Shell) CaptureStatus() capture.Status {
	return s.capturer.Status()
}

// SetCaptureEnabled turns periodic capture on or off.
func (s *Shell) SetCaptureEnabled(enabled bool) {
	s.capturer.SetEnabled(enabled)
}

// SetCaptureInterval changes the capture cadence and returns the clamped
// value actually applied.
func (s *Shell) SetCaptureInterval(seconds int) int {
	return s.capturer.SetIntervalSeconds(seconds)
}

// ProactiveStatus returns the scheduler state.
func (s *Shell) ProactiveStatus() proactive.Status {
	return s.nudger.Status()
}

// SetProactiveEnabled turns the scheduler on or off.
func (s *Shell) SetProactiveEnabled(enabled bool) {
	s.nudger.SetEnabled(enabled)
}

// ApplyProactiveConfig applies a partial tunable update and returns the
// updated status.
func (s *Shell) ApplyProactiveConfig(patch proactive.ConfigPatch) proactive.Status {
	return s.nudger.Apply(patch)
}

// MarkActivity resets the idle clock on behalf of the presentation layer.
func (s *Shell) MarkActivity() {
	s.nudger.MarkActivity()
}
