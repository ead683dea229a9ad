package domain

import "errors"

var (
	// ErrLeadNotFound se retorna cuando no existe el lead solicitado
	ErrLeadNotFound = errors.New("lead not found")

	// ErrStoreUnavailable envuelve cualquier fallo del almacenamiento; el llamador reintenta en el próximo ciclo
	ErrStoreUnavailable = errors.New("lead store unavailable")

	// ErrInvalidPhone se retorna cuando el teléfono no tiene forma canónica válida
	ErrInvalidPhone = errors.New("invalid phone number")

	// ErrInvalidTransition se retorna cuando el cambio de estado no está permitido
	ErrInvalidTransition = errors.New("invalid status transition")
)
