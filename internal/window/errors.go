package window

import "errors"

// ErrDimensionMismatch means an obstruction snapshot arrived with a
// different cell count than the window's grid. The streams are out of
// sync and nothing downstream can be trusted, so callers treat it as
// fatal.
var ErrDimensionMismatch = errors.New("obstruction grid dimension mismatch")
