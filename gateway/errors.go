package gateway

import (
	"errors"
	"fmt"

	"github.com/sekolahku/docgate/api"
	"github.com/sekolahku/docgate/kv"
)

// Codes follow the names the hosted document database uses, so callers that
// branch on them keep working.
const (
	CodeInvalidArgument = "invalid-argument"
	CodeNotFound        = "not-found"
	CodeAborted         = "aborted"
	CodeInternal        = "internal"
)

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func invalidArgument(format string, args ...interface{}) error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...interface{}) error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// ErrorCode classifies err. Anything not raised by the gateway itself is
// reported as internal, except exhausted write conflicts.
func ErrorCode(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	if kv.IsConflict(err) {
		return CodeAborted
	}
	return CodeInternal
}

func failed(err error) api.Result {
	return api.Result{Success: false, Error: err.Error(), Code: ErrorCode(err)}
}
