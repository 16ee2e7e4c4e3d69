// Package speech holds the single-shot speech collaborators: text-to-speech
// against a remote HTTP API, and speech-to-text delegated to the background
// agent. Both are plain request/response calls with no state machine.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/deskmate-app/deskmate/internal/logging"
)

// maxAudioBytes bounds a synthesized clip; anything larger is a server
// misbehavior, not a usable reply.
const maxAudioBytes = 32 * 1024 * 1024

// Synthesizer converts text into an audio clip via a remote API.
type Synthesizer struct {
	endpoint string
	voice    string
	apiKey   string
	client   *http.Client
	logger   *logging.Logger
}

// NewSynthesizer creates a Synthesizer for the given endpoint. The API key
// is read from the named environment variable; an empty name or unset
// variable leaves the request unauthenticated.
func NewSynthesizer(endpoint, voice, apiKeyEnv string, logger *logging.Logger) *Synthesizer {
	if logger == nil {
		logger = logging.NopLogger()
	}
	apiKey := ""
	if apiKeyEnv != "" {
		apiKey = os.Getenv(apiKeyEnv)
	}
	return &Synthesizer{
		endpoint: endpoint,
		voice:    voice,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 60 * time.Second},
		logger:   logger.WithComponent("speech"),
	}
}

// Synthesize performs one speech synthesis call and returns the audio
// payload with its content type.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	if s.endpoint == "" {
		return nil, "", fmt.Errorf("no speech endpoint configured")
	}
	if text == "" {
		return nil, "", fmt.Errorf("nothing to synthesize")
	}

	body, err := json.Marshal(map[string]string{
		"input": text,
		"voice": s.voice,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("failed to build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, "", fmt.Errorf("synthesis API returned %s: %s", resp.Status, detail)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read synthesized audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, "", fmt.Errorf("synthesis API returned no audio")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	s.logger.Debug("speech synthesized", "bytes", len(audio), "content_type", contentType)
	return audio, contentType, nil
}
