package sentinel

import "errors"

// Store-level facts. Stores (memory, postgres, redis, sqlite) return these,
// optionally wrapped with context, and services translate them into domain
// errors before they reach a transport.
//
//   - ErrNotFound: no record with the requested id
//   - ErrConflict: a write raced another write or violated a uniqueness rule
//   - ErrUnavailable: the backing service did not answer
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
