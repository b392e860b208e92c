package chunker

import "errors"

// ErrMissingChunk indicates a chunk set that cannot reconstruct the original
// byte sequence because one or more indexes are absent.
var ErrMissingChunk = errors.New("missing chunk")
