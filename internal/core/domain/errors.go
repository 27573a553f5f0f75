package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Adapters wrap failures with one of these so inbound layers can
// react to the kind without knowing the backend.
var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrRuleNotFound     = errors.New("rule not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrConflict         = errors.New("conflict")
	ErrTemporary        = errors.New("temporary failure")
)

var errorKinds = []error{
	ErrDocumentNotFound,
	ErrRuleNotFound,
	ErrInvalidInput,
	ErrUnauthorized,
	ErrConflict,
	ErrTemporary,
}

// WrapError produces "<operation>: <kind>: <err>" and keeps both kind and err
// reachable through errors.Is.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// KindOf returns the first known kind carried by err, or nil.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range errorKinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
