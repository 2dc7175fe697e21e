package archerrors

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

var (
	ErrListNotFound    = pkgerrors.New("list not found")
	ErrMessageNotFound = pkgerrors.New("message not found")
)

// IgnorableError marks a per-message failure: the message is skipped,
// logged and recorded, but the run continues. Anything else aborts the
// run.
type IgnorableError struct {
	msg string
}

func (e *IgnorableError) Error() string {
	return e.msg
}

func Ignorablef(format string, args ...interface{}) error {
	return &IgnorableError{msg: fmt.Sprintf(format, args...)}
}

func IsIgnorable(err error) bool {
	var ie *IgnorableError
	return errors.As(err, &ie)
}
