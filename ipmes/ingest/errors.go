package ingest

import "errors"

// ErrMalformedRecord is returned for any CSV record that cannot be decoded
// into a Record: wrong field count or an unparseable numeric field. Callers
// log and skip; the stream continues per the spec's InputDecodeError design.
var ErrMalformedRecord = errors.New("ingest: malformed input record")
