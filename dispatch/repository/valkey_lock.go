package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/AzielCF/az-prospector/infrastructure/valkey"
	"github.com/google/uuid"
	valkeylib "github.com/valkey-io/valkey-go"
)

// Solo borra el lock si el token coincide
const releaseLockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// ValkeyCycleLock coordina el ciclo de despacho entre varias instancias.
// El TTL acota cuánto puede durar un lock huérfano si el proceso muere.
type ValkeyCycleLock struct {
	client *valkey.Client
	key    string
	ttl    time.Duration
	owner  string
}

// NewValkeyCycleLock: owner (server id) prefija el token para saber quién tiene el lock
func NewValkeyCycleLock(client *valkey.Client, ttl time.Duration, owner string) *ValkeyCycleLock {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &ValkeyCycleLock{
		client: client,
		key:    client.Key("dispatch", "cycle", "lock"),
		ttl:    ttl,
		owner:  owner,
	}
}

func (l *ValkeyCycleLock) inner() valkeylib.Client {
	return l.client.Inner()
}

// TryAcquire: SET key token NX EX ttl, un solo intento
func (l *ValkeyCycleLock) TryAcquire(ctx context.Context) (string, bool, error) {
	token := uuid.New().String()
	if l.owner != "" {
		token = l.owner + ":" + token
	}
	cmd := l.inner().B().Set().
		Key(l.key).
		Value(token).
		Nx().
		Ex(l.ttl).
		Build()

	err := l.inner().Do(ctx, cmd).Error()
	if err == nil {
		return token, true, nil
	}
	if valkeylib.IsValkeyNil(err) {
		return "", false, nil
	}
	return "", false, fmt.Errorf("acquire dispatch lock: %w", err)
}

func (l *ValkeyCycleLock) Release(ctx context.Context, token string) error {
	cmd := l.inner().B().Eval().
		Script(releaseLockScript).
		Numkeys(1).
		Key(l.key).
		Arg(token).
		Build()

	if err := l.inner().Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("release dispatch lock: %w", err)
	}
	return nil
}
