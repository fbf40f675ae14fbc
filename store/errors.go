package store

import "errors"

var (
	// ErrNotConfigured is returned when the connection string is empty or malformed.
	ErrNotConfigured = errors.New("store: storage not configured")

	// ErrUnavailable is returned when the client could not be created or the table is unreachable.
	ErrUnavailable = errors.New("store: storage unavailable")

	// ErrInvalidConnectionString is returned for malformed connection strings.
	ErrInvalidConnectionString = errors.New("store: invalid connection string")

	// ErrAlreadyExists is returned when a record with the same keys already exists.
	ErrAlreadyExists = errors.New("store: record already exists")

	// ErrNotFound is returned when a merge targets a record that does not exist.
	ErrNotFound = errors.New("store: record not found")
)
