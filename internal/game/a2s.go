// Package game builds A2S query clients from the application configuration.
package game

import (
	"github.com/woozymasta/herald/internal/a2s"
	"github.com/woozymasta/herald/internal/config"
)

// NewClient returns an A2S client configured by options.
// obs may be nil.
func NewClient(options config.A2S, obs a2s.Observer) *a2s.Client {
	client := a2s.New(options.Timeout)
	client.Observer = obs
	if options.BufferSize > 0 {
		client.BufferSize = options.BufferSize
	}

	return client
}
