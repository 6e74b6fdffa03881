package kv

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by backends when no record is stored
	ErrNotFound = errors.New("record not found")
	// ErrInvalidRecord marks a record that fails its schema
	ErrInvalidRecord = errors.New("invalid record")
	// ErrInvalidKey marks a type or key that cannot be stored
	ErrInvalidKey = errors.New("invalid key")
)

// Error is a storage error with the record it concerns
type Error struct {
	Op      string // get, set or list
	Type    string // record type
	Key     string // record key, empty for list
	Err     error
	Details string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("kv %s %s", e.Op, e.Type)
	if e.Key != "" {
		msg += "/" + e.Key
	}
	msg += fmt.Sprintf(": %v", e.Err)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, typ, key string, err error) *Error {
	return &Error{Op: op, Type: typ, Key: key, Err: err}
}

func invalid(op, typ, key string, cause error) *Error {
	return &Error{Op: op, Type: typ, Key: key, Err: ErrInvalidRecord, Details: cause.Error()}
}
