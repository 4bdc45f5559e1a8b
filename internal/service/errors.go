package service

import "errors"

var (
	ErrRecordNotFound        = errors.New("record not found in scope")
	ErrRecordGone            = errors.New("record has been deleted")
	ErrConflictNotFound      = errors.New("conflict not found")
	ErrConflictResolved      = errors.New("conflict already resolved")
	ErrMergedPayloadRequired = errors.New("merged resolution requires a payload")
	ErrInvalidCredentials    = errors.New("invalid store or access code")
	ErrTerminalRevoked       = errors.New("terminal has been revoked")
)
