package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth agrupa falhas de credencial (ausente ou inválida).
	ErrAuth              = errors.New("auth error")
	ErrMissingCredential = fmt.Errorf("%w: api key required", ErrAuth)
	ErrInvalidCredential = fmt.Errorf("%w: invalid api key", ErrAuth)

	ErrBlocked          = errors.New("client blocked")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrValidation       = errors.New("validation error")

	// ErrTickInProgress é retornado quando um tick de detecção já está rodando.
	ErrTickInProgress = errors.New("detection tick already running")
)

// StoreError embrulha falhas de Redis/SQLite. errors.Is(err, ErrStoreUnavailable) é true.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStoreUnavailable, e.Err} }

// WrapStore devolve nil para err nil.
func WrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
