package store

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("crew session not found")
	ErrBranchNotFound     = errors.New("branch not found")
	ErrInvalidActivity    = errors.New("invalid activity type")
	ErrInvalidRange       = errors.New("invalid date range")
)
