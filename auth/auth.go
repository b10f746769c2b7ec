// Package auth issues the anonymous identities peers use as their player ids.
package auth

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Anonymous hands out one stable id per process, created on first sign in.
type Anonymous struct {
	mu sync.Mutex
	id string
}

func NewAnonymous() *Anonymous {
	return &Anonymous{}
}

// Restore resumes an identity persisted by the device from an earlier run.
func Restore(id string) *Anonymous {
	return &Anonymous{id: id}
}

func (a *Anonymous) SignInAnonymously(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.id == "" {
		a.id = uuid.NewString()
	}
	return a.id, nil
}
