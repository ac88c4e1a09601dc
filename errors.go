package fatnav

import (
	"errors"
	"fmt"

	"github.com/rstms/go-common"
)

// Failure classes reported by the FAT engine. Use errors.Is to test
// for them; every error returned by this module wraps one of these or
// an error from the underlying image file.
var (
	ErrInvalidBootSector = errors.New("invalid boot sector")
	ErrIO                = errors.New("i/o failure")
	ErrOutOfRange        = errors.New("cluster out of range")
	ErrCorruptChain      = errors.New("corrupt cluster chain")
	ErrCorruptImage      = errors.New("corrupt image")

	ErrInvalidName   = errors.New("invalid name")
	ErrNotFound      = errors.New("not found")
	ErrNotADirectory = errors.New("not a directory")
	ErrAlreadyExists = errors.New("already exists")
	ErrNoSpace       = errors.New("no space in directory")
	ErrVolumeFull    = errors.New("volume full")
)

var userErrors = []error{
	ErrInvalidName,
	ErrNotFound,
	ErrNotADirectory,
	ErrAlreadyExists,
	ErrNoSpace,
	ErrVolumeFull,
}

// IsUserError reports whether err is an expected condition caused by
// the request (bad name, missing directory, full volume) rather than
// by a failing or damaged image.
func IsUserError(err error) bool {
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type fatalError struct {
	text string
	err  error
}

func (e *fatalError) Error() string {
	return e.text
}

func (e *fatalError) Unwrap() error {
	return e.err
}

// WithLocation returns an error reading as located, the go-common
// decoration of err, that still matches err with errors.Is and
// errors.As. Package proxies call common.Fatal themselves so the
// recorded location is their caller's.
func WithLocation(located, err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{text: located.Error(), err: err}
}

// Message returns the text of err without the source locations added
// by Fatal and Fatalf.
func Message(err error) string {
	for {
		fe, ok := err.(*fatalError)
		if !ok {
			return err.Error()
		}
		err = fe.err
	}
}

// Fatal decorates err with the location of its caller. It returns nil
// if err is nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return WithLocation(common.Fatal(err), err)
}

// Fatalf formats a new error; a %w verb in format keeps the wrapped
// error matchable.
func Fatalf(format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	return WithLocation(common.Fatal(err), err)
}
