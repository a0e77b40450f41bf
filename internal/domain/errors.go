package domain

import "errors"

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrEmptyTitle         = errors.New("title is empty")
	ErrSharingUnavailable = errors.New("sharing is not enabled for this session")
	ErrOwnerRequired      = errors.New("owner id required")
	ErrStreamFailed       = errors.New("model stream failed")
	ErrEmptyTitleResult   = errors.New("title generator returned empty result")
)
