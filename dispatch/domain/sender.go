package domain

import (
	"context"
	"fmt"
	"time"

	leadsDomain "github.com/AzielCF/az-prospector/leads/domain"
)

// OutcomeKind clasifica el resultado de un envío
type OutcomeKind int

const (
	Delivered OutcomeKind = iota
	NonRetryable
	RateLimited
	TransientFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case Delivered:
		return "delivered"
	case NonRetryable:
		return "non_retryable"
	case RateLimited:
		return "rate_limited"
	case TransientFailure:
		return "transient_failure"
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// Outcome es el resultado final de Send, después de los reintentos internos del Sender
type Outcome struct {
	Kind       OutcomeKind
	Ref        string        // id del mensaje en el proveedor (Delivered)
	Reason     string        // detalle del error (NonRetryable / TransientFailure)
	RetryAfter time.Duration // espera sugerida por el proveedor (RateLimited)
	Attempts   int
}

func DeliveredOutcome(ref string) Outcome {
	return Outcome{Kind: Delivered, Ref: ref}
}

func NonRetryableOutcome(reason string) Outcome {
	return Outcome{Kind: NonRetryable, Reason: reason}
}

func RateLimitedOutcome(wait time.Duration, reason string) Outcome {
	return Outcome{Kind: RateLimited, RetryAfter: wait, Reason: reason}
}

func TransientOutcome(reason string) Outcome {
	return Outcome{Kind: TransientFailure, Reason: reason}
}

// Processed indica si el lead queda cerrado para el flujo automático (Sent)
func (o Outcome) Processed() bool {
	return o.Kind == Delivered || o.Kind == NonRetryable
}

// Err convierte el resultado en el error de la taxonomía; nil si fue entregado
func (o Outcome) Err() error {
	switch o.Kind {
	case Delivered:
		return nil
	case NonRetryable:
		return fmt.Errorf("%w: %s", ErrNonRetryable, o.Reason)
	case RateLimited:
		return fmt.Errorf("%w: retry after %s", ErrRateLimited, o.RetryAfter)
	default:
		return fmt.Errorf("%w: %s", ErrTransientFailure, o.Reason)
	}
}

// Message es lo que el orquestador entrega al Sender
type Message struct {
	LeadID       int64
	BusinessName string
	Pitch        leadsDomain.Pitch
}

// Sender es la capacidad de mensajería. Cada implementación aplica su propia política
// de reintentos dentro de Send. Validate devuelve error (ErrNumberCheckUnavailable)
// cuando la verificación no pudo hacerse; false solo significa "no existe".
type Sender interface {
	Name() string
	Validate(ctx context.Context, phone leadsDomain.PhoneNumber) (bool, error)
	Send(ctx context.Context, phone leadsDomain.PhoneNumber, msg Message) Outcome
}

// SessionStatus describe el estado de la sesión del proveedor
type SessionStatus struct {
	Backend   string `json:"backend"`
	Connected bool   `json:"connected"`
	Account   string `json:"account,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// SessionChecker es opcional: los backends que pueden reportar su sesión lo implementan
type SessionChecker interface {
	CheckSession(ctx context.Context) SessionStatus
}
