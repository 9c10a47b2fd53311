package domain

import "errors"

var (
	ErrUnknownRole    = errors.New("unknown role")
	ErrUnknownChannel = errors.New("unknown mfa channel")
	ErrInvalidEmail   = errors.New("invalid email address")
)
