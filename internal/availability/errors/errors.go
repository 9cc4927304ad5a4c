package errors

import "errors"

var (
	ErrNotFound = errors.New("availability rule not found")
)
