package domain

import "context"

// CycleLock garantiza un único ciclo de despacho en vuelo.
// TryAcquire no espera: ok=false significa que otro ciclo tiene el lock.
type CycleLock interface {
	TryAcquire(ctx context.Context) (token string, ok bool, err error)
	Release(ctx context.Context, token string) error
}
