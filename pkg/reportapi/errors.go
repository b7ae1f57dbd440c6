package reportapi

import "errors"

var (
	// ErrNotFound reports a drilldown or lookup against an entity that does not exist.
	ErrNotFound = errors.New("reportapi: not found")
	// ErrUnknownReport reports a request for a report id no backend serves.
	ErrUnknownReport = errors.New("reportapi: unknown report")
)
