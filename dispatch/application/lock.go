package application

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryCycleLock es el lock por defecto de un solo proceso
type MemoryCycleLock struct {
	mu    sync.Mutex
	token string
}

func NewMemoryCycleLock() *MemoryCycleLock {
	return &MemoryCycleLock{}
}

func (l *MemoryCycleLock) TryAcquire(_ context.Context) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token != "" {
		return "", false, nil
	}
	l.token = uuid.New().String()
	return l.token, true, nil
}

func (l *MemoryCycleLock) Release(_ context.Context, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token == token {
		l.token = ""
	}
	return nil
}
