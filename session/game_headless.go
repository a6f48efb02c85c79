//go:build headless

package session

import (
	"context"
	"errors"
)

// RunWindowed is unavailable in headless builds.
func (s *Session) RunWindowed(ctx context.Context) error {
	return errors.New("built without display support; run with -headless")
}
