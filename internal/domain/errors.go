package domain

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrRunNotFound  = errors.New("run not found")
	ErrNotFound     = errors.New("not found")
)
