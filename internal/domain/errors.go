package domain

import "errors"

// Error taxonomy shared by all adapters. Adapters wrap these with context;
// callers match with errors.Is.
var (
	// ErrHTTP is a transport failure or non-success response from Hilltop.
	ErrHTTP = errors.New("hilltop http error")
	// ErrParse is malformed XML, malformed numeric text, or a malformed dataset file.
	ErrParse = errors.New("parse error")
	// ErrConflict is an existing target with overwrite disabled.
	ErrConflict = errors.New("target already exists")
	// ErrNotFound is a referenced table, layer, map, or file that does not exist.
	ErrNotFound = errors.New("not found")
)
