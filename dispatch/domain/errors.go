package domain

import "errors"

var (
	// ErrNonRetryable el proveedor reporta un fallo permanente (número inexistente, política)
	ErrNonRetryable = errors.New("non-retryable send failure")

	// ErrRateLimited el proveedor pidió bajar el ritmo
	ErrRateLimited = errors.New("rate limited by messaging backend")

	// ErrTransientFailure timeout, 5xx o conexión caída
	ErrTransientFailure = errors.New("transient send failure")

	// ErrNumberCheckUnavailable la verificación del número falló (red, timeout, HTTP no 2xx)
	ErrNumberCheckUnavailable = errors.New("number check unavailable")

	// ErrWebhookDeliveryFailed la notificación secundaria no se entregó; no afecta el estado del lead
	ErrWebhookDeliveryFailed = errors.New("webhook delivery failed")

	// ErrCycleInProgress otro ciclo de despacho tiene el lock
	ErrCycleInProgress = errors.New("dispatch cycle already in progress")
)
