package types

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared by the engine packages. Wrap them with %w and test with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrConfiguration = errors.New("configuration error")
	ErrInvalidParam  = errors.New("invalid parameter")
	ErrRouteNotFound = errors.New("route not found")
	ErrUnauthorized  = errors.New("unauthorized")
)

type CustomError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("%d: %s [type: %s]", e.Code, e.Message, e.Type)
}

// ToCustomError maps an error onto the HTTP facing error shape
func ToCustomError(err error) *CustomError {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return &CustomError{Code: http.StatusNotFound, Message: err.Error(), Type: "notFound"}
	case errors.Is(err, ErrInvalidParam):
		return &CustomError{Code: http.StatusBadRequest, Message: err.Error(), Type: "invalidParam"}
	case errors.Is(err, ErrUnauthorized):
		return &CustomError{Code: http.StatusUnauthorized, Message: err.Error(), Type: "unauthorized"}
	case errors.Is(err, ErrConfiguration):
		return &CustomError{Code: http.StatusInternalServerError, Message: err.Error(), Type: "configuration"}
	}
	return &CustomError{Code: http.StatusInternalServerError, Message: err.Error(), Type: "unknown"}
}

// Configf builds a configuration error
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// InvalidParamf builds an invalid parameter error
func InvalidParamf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParam, fmt.Sprintf(format, args...))
}
