package security

import "errors"

// ErrReleased is returned by KeyBuffer.Use after Release.
var ErrReleased = errors.New("key buffer already released")
