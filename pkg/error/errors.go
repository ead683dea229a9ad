package error

import "net/http"

// GenericError is implemented by every error that knows how to render itself over HTTP.
type GenericError interface {
	Error() string
	ErrCode() string
	StatusCode() int
}

type ValidationError string

func (err ValidationError) Error() string {
	return string(err)
}

func (err ValidationError) ErrCode() string {
	return "VALIDATION_ERROR"
}

func (err ValidationError) StatusCode() int {
	return http.StatusBadRequest
}

type NotFoundError string

func (err NotFoundError) Error() string {
	return string(err)
}

func (err NotFoundError) ErrCode() string {
	return "NOT_FOUND_ERROR"
}

func (err NotFoundError) StatusCode() int {
	return http.StatusNotFound
}

type ConflictError string

func (err ConflictError) Error() string {
	return string(err)
}

func (err ConflictError) ErrCode() string {
	return "CONFLICT_ERROR"
}

func (err ConflictError) StatusCode() int {
	return http.StatusConflict
}

// UnavailableError marks a dependency (database, messaging backend) that is temporarily down.
type UnavailableError string

func (err UnavailableError) Error() string {
	return string(err)
}

func (err UnavailableError) ErrCode() string {
	return "SERVICE_UNAVAILABLE"
}

func (err UnavailableError) StatusCode() int {
	return http.StatusServiceUnavailable
}
