package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &Error{Op: "authenticate", Err: cause, FatalOp: true}

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "authenticate: boom", err.Error())
}

func TestFatal_TrueForFatalError(t *testing.T) {
	err := &Error{Op: "ping", Err: errors.New("down"), FatalOp: true}
	assert.True(t, Fatal(err))
}

func TestFatal_FalseForNonFatalError(t *testing.T) {
	err := &Error{Op: "use", Err: errors.New("bad db"), FatalOp: false}
	assert.False(t, Fatal(err))
}

func TestFatal_FalseForPlainError(t *testing.T) {
	assert.False(t, Fatal(errors.New("ordinary")))
}
