// ABOUTME: Typed errors surfaced to the scripting layer
// ABOUTME: Each error carries a numeric code scripts can rely on
package session

import (
	"errors"
	"fmt"
)

// Code identifies the class of a failed session operation
type Code int

const (
	CodeNotOnline       Code = 1
	CodeNotLoaded       Code = 2
	CodeInvalidArgument Code = 3
)

func (c Code) String() string {
	switch c {
	case CodeNotOnline:
		return "not online"
	case CodeNotLoaded:
		return "not loaded"
	case CodeInvalidArgument:
		return "invalid argument"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Error is a session failure with a code and a human readable message.
// Two errors match under errors.Is when their codes are equal.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// Is matches on the code alone
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is
var (
	ErrNotOnline       = &Error{Code: CodeNotOnline, Msg: "client is not online"}
	ErrNotLoaded       = &Error{Code: CodeNotLoaded, Msg: "asset is not loaded"}
	ErrInvalidArgument = &Error{Code: CodeInvalidArgument, Msg: "invalid argument"}
)

// NotOnline reports an operation on an offline or out of range peer
func NotOnline(peer int) error {
	return &Error{Code: CodeNotOnline, Msg: fmt.Sprintf("client %d is not online", peer)}
}

// NotLoaded reports a path the content store cannot resolve
func NotLoaded(kind, path string) error {
	return &Error{Code: CodeNotLoaded, Msg: fmt.Sprintf("%s %s is not loaded", kind, path)}
}

// InvalidArgument reports an argument outside its allowed range
func InvalidArgument(format string, args ...any) error {
	return &Error{Code: CodeInvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code of a session error, or 0 for anything else
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}
