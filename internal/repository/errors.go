// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow the handlers to tell a client
// problem from a store failure without inspecting SQL errors.
package repository

import "errors"

// ErrZipNotFound is returned when a ZIP code maps to no county.  Handlers
// translate it into an HTTP 404 response.
var ErrZipNotFound = errors.New("zip not found")

// ErrNoData is returned when the ZIP resolves but no rankings row matches
// the requested measure.  Handlers translate it into an HTTP 404 response.
var ErrNoData = errors.New("no data for zip and measure")

// ErrMissingColumn is returned when an ingested table lacks a column the
// query depends on.  It indicates a malformed store, so it maps to a 500.
var ErrMissingColumn = errors.New("required column missing")
