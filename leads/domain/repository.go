package domain

import (
	"context"
	"time"
)

// LeadFilter define los criterios para listar leads desde el panel de operador
type LeadFilter struct {
	Status        *LeadStatus
	TargetProduct *Product
	Category      string
	Neighborhood  string
	HasPhone      *bool
	Limit         int
	Offset        int
}

// LeadRepository es la única fuente de verdad y punto de sincronización entre ciclos,
// reaper y webhook de entrada. Todas las mutaciones son updates condicionales.
type LeadRepository interface {
	// Ingreso (productor externo)
	InsertIfAbsent(ctx context.Context, lead *Lead) (bool, error)
	GetByID(ctx context.Context, id int64) (*Lead, error)

	// Despacho
	FetchEligible(ctx context.Context, limit int, product *Product, attemptCooldown time.Duration) ([]*Lead, error)
	MarkAttempted(ctx context.Context, id int64) error
	MarkSent(ctx context.Context, ids []int64) (int64, error)
	MarkFailed(ctx context.Context, ids []int64) (int64, error)

	// Embudo
	MarkHot(ctx context.Context, phone PhoneNumber) (int64, error)
	MarkCold(ctx context.Context, olderThan time.Duration) (int64, error)
	MarkConverted(ctx context.Context, id int64) (int64, error)

	// Operador
	List(ctx context.Context, filter LeadFilter) ([]*Lead, error)
	Stats(ctx context.Context) (*LeadStats, error)
	ResetStatus(ctx context.Context, from, to LeadStatus) (int64, error)
	ClearAll(ctx context.Context) (int64, error)

	InitSchema(ctx context.Context) error
}
