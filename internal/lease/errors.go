package lease

import "errors"

// ErrUnknownKind is returned when a caller supplies a kind string outside
// the fixed enum {stream, recorder, ai, playback}. This is the one way
// acquire/renew/release can fail on malformed input (spec.md §4.1
// "Failure semantics").
var ErrUnknownKind = errors.New("lease: unknown kind")
