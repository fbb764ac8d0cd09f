// Package scrypterr defines the error taxonomy surfaced at the public
// boundary of the scrypt file-encryption core. Every error that escapes
// params, sysprobe, headers, streamcrypt, or session is a *scrypterr.Error
// so that callers can dispatch on Kind instead of matching message text.
package scrypterr

import (
	"errors"
	"fmt"
	"io"
)

// Kind identifies one of the fixed set of failure categories the core can
// report. Kind values are never conflated: EPASS and EINVAL in particular
// distinguish "wrong passphrase" from "corrupted or truncated data".
type Kind int

const (
	// ELIMIT means the available-memory query failed.
	ELIMIT Kind = iota
	// ECLOCK means the scrypt benchmark could not be run.
	ECLOCK
	// EKEY means scrypt key derivation failed internally.
	EKEY
	// ESALT means a random salt could not be read.
	ESALT
	// ENOMEM means an allocation (typically scrypt's scratch buffer) failed.
	ENOMEM
	// EINVAL means the header was not recognized, or the final tag did not
	// match (corruption or truncation).
	EINVAL
	// EVERSION means the header names an unknown format version.
	EVERSION
	// ETOOBIG means decrypting would exceed the memory budget.
	ETOOBIG
	// ETOOSLOW means decrypting would exceed the time budget.
	ETOOSLOW
	// EPASS means the header HMAC did not match: wrong passphrase.
	EPASS
	// EPARAM means explicitly supplied scrypt parameters are infeasible.
	EPARAM
	// ERDFILE means a read from the input stream failed.
	ERDFILE
	// EWRFILE means a write to the output stream failed.
	EWRFILE
)

var names = map[Kind]string{
	ELIMIT:   "ELIMIT",
	ECLOCK:   "ECLOCK",
	EKEY:     "EKEY",
	ESALT:    "ESALT",
	ENOMEM:   "ENOMEM",
	EINVAL:   "EINVAL",
	EVERSION: "EVERSION",
	ETOOBIG:  "ETOOBIG",
	ETOOSLOW: "ETOOSLOW",
	EPASS:    "EPASS",
	EPARAM:   "EPARAM",
	ERDFILE:  "ERDFILE",
	EWRFILE:  "EWRFILE",
}

// Message is the human-readable, scrypt-tool-style diagnostic for a kind,
// independent of any wrapped cause.
var Message = map[Kind]string{
	ELIMIT:   "Error determining amount of available memory",
	ECLOCK:   "Error reading clocks",
	EKEY:     "Error computing derived key",
	ESALT:    "Error reading salt",
	ENOMEM:   "Error allocating memory",
	EINVAL:   "Input is not valid scrypt-encrypted block",
	EVERSION: "Unrecognized scrypt format version",
	ETOOBIG:  "Decrypting file would require too much memory",
	ETOOSLOW: "Decrypting file would take too much CPU time",
	EPASS:    "Passphrase is incorrect",
	EPARAM:   "Error in the manually specified parameters",
	ERDFILE:  "Error reading file",
	EWRFILE:  "Error writing file",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return "EUNKNOWN"
}

// Error is the concrete error type returned at the public boundary. It
// wraps an optional underlying cause (a syscall error, an io error, ...)
// so that Unwrap lets callers inspect it, while Kind lets callers dispatch
// without string matching.
type Error struct {
	Kind  Kind
	Cause error
}

// New builds a *Error for kind with no further detail.
func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Wrap builds a *Error for kind around a lower-level cause.
func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

func (e *Error) Error() string {
	msg := Message[e.Kind]
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether err carries the given kind, unwrapping scrypterr
// errors as needed.
func Is(err error, kind Kind) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Kind == kind
}

// TagReader wraps r so that any error it returns other than io.EOF is
// reported as a *Error of the given kind, letting a streaming copy
// distinguish a failed read on the input from a failed write on the
// output without the copy itself knowing which side failed.
func TagReader(r io.Reader, kind Kind) io.Reader {
	return &taggedReader{r: r, kind: kind}
}

type taggedReader struct {
	r    io.Reader
	kind Kind
}

func (t *taggedReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		return n, Wrap(t.kind, err)
	}
	return n, err
}

// TagWriter wraps w so that any error it returns is reported as a *Error
// of the given kind.
func TagWriter(w io.Writer, kind Kind) io.Writer {
	return &taggedWriter{w: w, kind: kind}
}

type taggedWriter struct {
	w    io.Writer
	kind Kind
}

func (t *taggedWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		return n, Wrap(t.kind, err)
	}
	return n, err
}
