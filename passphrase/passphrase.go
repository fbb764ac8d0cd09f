// Package passphrase implements the passphrase-acquisition methods the
// CLI exposes via -P/--passphrase: reading from a terminal with optional
// confirmation, reading once from stdin, reading an environment variable,
// or reading the first line of a file.
package passphrase

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Method identifies one of the five acquisition strategies named in the
// specification's passphrase-methods table.
type Method int

const (
	// DevTTYStdin reads from the terminal if one is attached, else falls
	// back to stdin; confirms by re-prompting when encrypting.
	DevTTYStdin Method = iota
	// DevStdinOnce reads from stdin once, no confirmation.
	DevStdinOnce
	// DevTTYOnce reads from the terminal once, no confirmation.
	DevTTYOnce
	// Env reads from the named environment variable.
	Env
	// File reads the first line of the named file, stripping one
	// trailing newline.
	File
)

// Source is a fully parsed --passphrase value: a method plus whatever
// argument that method needs (the env var name, the file path). dev:*
// methods carry no argument.
type Source struct {
	Method Method
	Arg    string
}

// DefaultSource is used when neither -P nor --passphrase is given.
var DefaultSource = Source{Method: DevTTYStdin}

// ParseMethodArg parses a "method:arg" string into a Source. This always
// reads the method and argument from the string passed in, never from any
// package-level state, resolving the ambiguity the original tool's
// implementation left open between its --passphrase branches.
func ParseMethodArg(s string) (Source, error) {
	i := strings.IndexByte(s, ':')
	if i < 0 {
		return Source{}, fmt.Errorf("invalid --passphrase argument: %q (expected method:arg)", s)
	}
	method, arg := s[:i], s[i+1:]

	switch method {
	case "dev":
		switch arg {
		case "tty-stdin":
			return Source{Method: DevTTYStdin}, nil
		case "stdin-once":
			return Source{Method: DevStdinOnce}, nil
		case "tty-once":
			return Source{Method: DevTTYOnce}, nil
		}
	case "env":
		return Source{Method: Env, Arg: arg}, nil
	case "file":
		return Source{Method: File, Arg: arg}, nil
	}

	return Source{}, fmt.Errorf("invalid --passphrase argument: %q", s)
}

// UsesStdin reports whether acquiring src would consume standard input,
// so the CLI can reject the stdin/stdin conflict of spec.md's scenario S8
// before doing any I/O.
func (src Source) UsesStdin() bool {
	switch src.Method {
	case DevStdinOnce:
		return true
	case DevTTYStdin:
		return !isTerminal(os.Stdin.Fd())
	default:
		return false
	}
}

// Acquire reads the passphrase described by src. confirm requests a
// second, matching read for DevTTYStdin when encrypting; it is ignored by
// every other method. The returned slice should be zeroed by the caller
// once no longer needed.
func Acquire(src Source, confirm bool) ([]byte, error) {
	switch src.Method {
	case DevTTYStdin:
		if isTerminal(os.Stdin.Fd()) {
			return readTTY(confirm)
		}
		return readStdinOnce()
	case DevStdinOnce:
		return readStdinOnce()
	case DevTTYOnce:
		return readTTY(false)
	case Env:
		v, ok := os.LookupEnv(src.Arg)
		if !ok {
			return nil, fmt.Errorf("failed to read from ${%s}", src.Arg)
		}
		return []byte(v), nil
	case File:
		return readFileLine(src.Arg)
	default:
		return nil, fmt.Errorf("passphrase: unknown method")
	}
}

func isTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

func readTTY(confirm bool) ([]byte, error) {
	fd := int(os.Stdin.Fd())

	fmt.Fprint(os.Stderr, "Please enter passphrase: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("error reading passphrase: %w", err)
	}

	if !confirm {
		return first, nil
	}

	fmt.Fprint(os.Stderr, "Please confirm passphrase: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("error reading passphrase confirmation: %w", err)
	}
	defer zero(second)

	if string(first) != string(second) {
		zero(first)
		return nil, fmt.Errorf("passphrases did not match")
	}
	return first, nil
}

func readStdinOnce() ([]byte, error) {
	return readLine(os.Stdin)
}

func readFileLine(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open passphrase file: %w", err)
	}
	defer f.Close()
	return readLine(f)
}

func readLine(r io.Reader) ([]byte, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("error reading passphrase: %w", err)
		}
		return []byte{}, nil
	}
	return append([]byte(nil), scanner.Bytes()...), nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
