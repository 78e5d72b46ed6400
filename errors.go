package addonkit

import (
	"errors"
	"fmt"
	"io/fs"
)

// Sentinel errors surfaced by Scan, Extract and the format helpers.
var (
	ErrPasswordRequired  = errors.New("password required")
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	ErrCorruptArchive    = errors.New("corrupt archive")
	ErrUnsafePath        = errors.New("unsafe path")
	ErrMissingVolume     = fmt.Errorf("missing volume: %w", fs.ErrNotExist)
)

// PasswordRequiredError reports an archive that cannot be read without a
// (correct) password. Entry names the encrypted entry that failed, if known.
type PasswordRequiredError struct {
	Archive     string
	Entry       string
	BadPassword bool
	Err         error
}

func (e *PasswordRequiredError) Error() string {
	msg := "password required"
	if e.BadPassword {
		msg = "wrong password"
	}
	if e.Entry != "" {
		return fmt.Sprintf("%s: %s for %s", e.Archive, msg, e.Entry)
	}
	return fmt.Sprintf("%s: %s", e.Archive, msg)
}

func (e *PasswordRequiredError) Unwrap() error        { return e.Err }
func (e *PasswordRequiredError) Is(target error) bool { return target == ErrPasswordRequired }

// NestedPasswordRequiredError reports a password failure on an archive found
// inside another one. Parent is the logical path of the containing archive and
// Nested the internal path of the encrypted archive, which together form the
// key for ScanContext.SetNestedPassword.
type NestedPasswordRequiredError struct {
	Parent      string
	Nested      string
	BadPassword bool
	Err         error
}

func (e *NestedPasswordRequiredError) Error() string {
	if e.BadPassword {
		return fmt.Sprintf("nested archive %s in %s: wrong password", e.Nested, e.Parent)
	}
	return fmt.Sprintf("nested archive %s in %s: password required", e.Nested, e.Parent)
}

func (e *NestedPasswordRequiredError) Unwrap() error        { return e.Err }
func (e *NestedPasswordRequiredError) Is(target error) bool { return target == ErrPasswordRequired }

// asNestedPasswordError rewraps a password failure of a nested archive so it
// carries the parent context. Other errors are returned as is.
func asNestedPasswordError(err error, parent, nested string) error {
	var pre *PasswordRequiredError
	if errors.As(err, &pre) {
		var npe *NestedPasswordRequiredError
		if errors.As(err, &npe) {
			return err
		}
		return &NestedPasswordRequiredError{Parent: parent, Nested: nested, BadPassword: pre.BadPassword, Err: err}
	}
	return err
}

func corrupt(archive string, err error) error {
	return fmt.Errorf("%s: %w: %w", archive, ErrCorruptArchive, err)
}
