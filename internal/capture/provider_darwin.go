//go:build darwin

package capture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

func defaultProvider() Provider {
	return &screencaptureProvider{}
}

// screencaptureProvider shells out to the macOS screencapture tool for the
// primary display. It requires the Screen Recording permission; without it
// the tool produces an empty or desktop-only image.
type screencaptureProvider struct{}

func (p *screencaptureProvider) Sources(ctx context.Context, width, height int) ([]Source, error) {
	// screencapture always renders the display at native resolution;
	// the requested dimensions are advisory here.
	return []Source{&screencaptureSource{}}, nil
}

type screencaptureSource struct{}

func (s *screencaptureSource) Name() string { return "primary-display" }

func (s *screencaptureSource) Frame() ([]byte, error) {
	tmp, err := os.MkdirTemp("", "deskmate-capture-")
	if err != nil {
		return nil, fmt.Errorf("failed to create capture scratch dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	out := filepath.Join(tmp, "frame.png")
	// -x: no sound, -m: main display only, -t png: encode as PNG.
	cmd := exec.Command("screencapture", "-x", "-m", "-t", "png", out)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("screencapture failed: %w: %s", err, output)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("failed to read captured frame: %w", err)
	}
	return data, nil
}

// remediationHint names the likely fix for a capture failure on this
// platform, surfaced alongside the diagnostic.
func remediationHint() string {
	return "grant Screen Recording permission in System Settings > Privacy & Security"
}
