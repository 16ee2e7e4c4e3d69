// Package capture provides the periodic display snapshot service and the
// capture providers it draws frames from.
package capture

import "context"

// Source is one capturable display surface offered by a Provider.
type Source interface {
	// Name identifies the source for diagnostics.
	Name() string

	// Frame returns one encoded PNG frame of the source. An empty frame
	// is an error condition the caller must treat as a failed capture.
	Frame() ([]byte, error)
}

// Provider enumerates capturable sources sized to the requested pixel
// dimensions. The service selects the first source returned.
type Provider interface {
	Sources(ctx context.Context, width, height int) ([]Source, error)
}

// DefaultProvider returns the platform capture provider: the native
// screenshot tool where one exists, a synthetic frame generator elsewhere.
func DefaultProvider() Provider {
	return defaultProvider()
}
