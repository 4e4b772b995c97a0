// Package api provides the client for the remote Duet service.
package api

import (
	"context"

	"github.com/duetlog/duet/backend/internal/logging"
)

// Prober answers "are we online" by probing the remote service.
type Prober struct {
	client Client
}

// NewProber creates a Prober over the given client.
func NewProber(client Client) *Prober {
	return &Prober{client: client}
}

// IsOnline reports whether the remote service is reachable. A probe failure
// means offline; it never returns an error.
func (p *Prober) IsOnline(ctx context.Context) bool {
	if err := p.client.Ping(ctx); err != nil {
		logging.Debug("connectivity probe failed", logging.Fields{"error": err.Error()})
		return false
	}
	return true
}
