// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrDuplicate       = errors.New("duplicate entry")
	ErrValidation      = errors.New("datos inválidos")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrTooManyRequests = errors.New("too many requests")
)

// Messages returned to clients. Details of internal failures stay in the logs.
const (
	MsgUnauthorized = "No autenticado"
	MsgForbidden    = "No tiene permisos para realizar esta acción"
	MsgNotFound     = "Recurso no encontrado"
	MsgDuplicate    = "El registro ya existe"
	MsgTooMany      = "Demasiados intentos, intente más tarde"
	MsgInternal     = "Error interno del servidor"
	MsgBadPath      = "Ruta inválida"
)

// RespondError maps domain errors to HTTP responses.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Error(w, http.StatusNotFound, MsgNotFound)
	case errors.Is(err, ErrDuplicate):
		Error(w, http.StatusConflict, MsgDuplicate)
	case errors.Is(err, ErrValidation):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		Error(w, http.StatusForbidden, MsgForbidden)
	case errors.Is(err, ErrUnauthorized):
		Error(w, http.StatusUnauthorized, MsgUnauthorized)
	case errors.Is(err, ErrTooManyRequests):
		Error(w, http.StatusTooManyRequests, MsgTooMany)
	default:
		Error(w, http.StatusInternalServerError, MsgInternal)
	}
}

// StatusOf returns the status code RespondError would use for err.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
