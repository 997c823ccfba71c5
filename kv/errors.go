package kv

import (
	"errors"

	tikverr "github.com/tikv/client-go/v2/error"
)

var ErrAlreadyCommitted = errors.New("already committed")

// IsConflict reports whether a commit failed because a parallel transaction
// wrote the same keys first. Such commits can be retried from scratch.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	return tikverr.IsErrWriteConflict(err)
}
