package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrAuthFailed     = errors.New("authentication failed")
	ErrTransport      = errors.New("transport failure")
	ErrNotConnected   = errors.New("adapter not connected")
	ErrRiskRejected   = errors.New("risk gate rejected")
	ErrUnknownAdapter = errors.New("no adapter registered for platform/firm")
	ErrInvalidState   = errors.New("invalid state transition")
	ErrAlreadyRunning = errors.New("copier already running")
	ErrAccountInUse   = errors.New("account referenced by a copier")
	ErrValidation     = errors.New("validation failed")
	ErrRateLimited    = errors.New("rate limited")
	ErrLockHeld       = errors.New("lock already held")
)
