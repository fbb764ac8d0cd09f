package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"

	"github.com/vilshansen/scryptenc-go/humansize"
	"github.com/vilshansen/scryptenc-go/params"
	"github.com/vilshansen/scryptenc-go/passphrase"
)

// version is the static, compiled-in release string --version prints,
// mirroring the original tool's compiled-in PACKAGE_VERSION.
const version = "1.0.0"

// CLI is the root Kong command. Exactly one of Enc/Dec/Info/Version is
// selected per invocation.
type CLI struct {
	Enc     EncCmd           `cmd:"" help:"Encrypt infile, writing a self-describing scrypt container."`
	Dec     DecCmd           `cmd:"" help:"Decrypt a scrypt container back to plaintext."`
	Info    InfoCmd          `cmd:"" help:"Print the scrypt parameters recorded in a container's header."`
	Version kong.VersionFlag `help:"Print the version and exit." short:"V"`
}

// commonFlags holds the flags and positionals shared by enc and dec, per
// the flag table in the specification's external-interfaces section.
type commonFlags struct {
	Force      bool    `short:"f" help:"Bypass Tuner feasibility checks."`
	MaxMem     string  `short:"M" placeholder:"SIZE" help:"Explicit memory cap, e.g. 500M."`
	MaxMemFrac float64 `short:"m" placeholder:"FRAC" help:"Memory cap as a fraction of physical RAM, in [0,0.5]."`
	MaxTime    float64 `short:"t" placeholder:"SECS" help:"Time cap for tuning, in seconds."`
	Verbose    bool    `short:"v" help:"Print the chosen N/r/p diagnostics."`
	StdinOnce  bool    `short:"P" help:"Read the passphrase from standard input, once, with no confirmation."`
	Passphrase string  `placeholder:"METHOD:ARG" help:"Passphrase source: dev:tty-stdin, dev:stdin-once, dev:tty-once, env:NAME, or file:PATH."`

	Infile  string `arg:"" help:"Input file, or - for standard input."`
	Outfile string `arg:"" optional:"" help:"Output file; defaults to standard output."`
}

// passphraseSource resolves which passphrase method this invocation uses,
// enforcing the "at most one of -P / --passphrase" rule and the
// stdin/stdin conflict check, both before any I/O is attempted.
func (c commonFlags) passphraseSource() (passphrase.Source, error) {
	if c.StdinOnce && c.Passphrase != "" {
		return passphrase.Source{}, fmt.Errorf("you can only enter one --passphrase or -P argument")
	}

	var src passphrase.Source
	switch {
	case c.StdinOnce:
		src = passphrase.Source{Method: passphrase.DevStdinOnce}
	case c.Passphrase != "":
		parsed, err := passphrase.ParseMethodArg(c.Passphrase)
		if err != nil {
			return passphrase.Source{}, err
		}
		src = parsed
	default:
		src = passphrase.DefaultSource
	}

	if c.Infile == "-" && src.UsesStdin() {
		return passphrase.Source{}, fmt.Errorf("cannot read both passphrase and input file from standard input")
	}
	return src, nil
}

// validateCommon checks the flags enc and dec share, independent of which
// subcommand is running. Errors are phrased the way the original tool's
// own argument parser phrases them, e.g. "Invalid option: -m 1.5".
func (c commonFlags) validateCommon() error {
	if c.MaxMemFrac < 0 || c.MaxMemFrac > 1 {
		return fmt.Errorf("Invalid option: -m %v", c.MaxMemFrac)
	}
	if c.MaxTime < 0 {
		return fmt.Errorf("Invalid option: -t %v", c.MaxTime)
	}
	return nil
}

func (c commonFlags) budget() (params.Budget, error) {
	var maxMem uint64
	if c.MaxMem != "" {
		v, err := humansize.ParseBytes(c.MaxMem)
		if err != nil {
			return params.Budget{}, fmt.Errorf("could not parse the parameter to -M: %w", err)
		}
		maxMem = v
	}
	return params.Budget{MaxMem: maxMem, MaxMemFrac: c.MaxMemFrac, MaxTime: c.MaxTime}, nil
}

func (c commonFlags) openInput() (io.ReadCloser, error) {
	if c.Infile == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(c.Infile)
	if err != nil {
		return nil, fmt.Errorf("cannot open input file: %w", err)
	}
	return f, nil
}

func (c commonFlags) openOutput() (io.WriteCloser, error) {
	if c.Outfile == "" {
		return nopWriteCloser{os.Stdout}, nil
	}
	f, err := os.Create(c.Outfile)
	if err != nil {
		return nil, fmt.Errorf("cannot open output file: %w", err)
	}
	return f, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// EncCmd implements "scryptenc enc".
type EncCmd struct {
	commonFlags

	LogN int     `short:"l" help:"Explicit log2(N) in [10,40]; omit to let the Tuner choose."`
	R    *uint32 `short:"r" help:"Explicit scrypt r in [1,128]."`
	P    *uint32 `short:"p" help:"Explicit scrypt p in [1,128]."`
}

// Validate rejects out-of-range explicit parameters before Run ever sees
// them, the way the original tool's own bounded-integer argument parser
// rejects "-l 2048" outright rather than letting the Tuner find out later.
// R and P are pointers so that an explicitly supplied "-r 0"/"-p 0" (out
// of the required [1,128] range) is distinguishable from the flag being
// omitted entirely; PARSENUM in the original tool's argument parser
// enforces the range on every occurrence of -r/-p, not just non-zero
// ones.
func (c *EncCmd) Validate() error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	if c.LogN != 0 && (c.LogN < 10 || c.LogN > 40) {
		return fmt.Errorf("Invalid option: -l %d", c.LogN)
	}
	if c.R != nil && (*c.R < 1 || *c.R > 128) {
		return fmt.Errorf("Invalid option: -r %d", *c.R)
	}
	if c.P != nil && (*c.P < 1 || *c.P > 128) {
		return fmt.Errorf("Invalid option: -p %d", *c.P)
	}
	return nil
}

// DecCmd implements "scryptenc dec".
type DecCmd struct {
	commonFlags
}

// Validate rejects out-of-range budget flags before Run ever sees them.
func (c *DecCmd) Validate() error {
	return c.validateCommon()
}

// InfoCmd implements "scryptenc info".
type InfoCmd struct {
	Infile string `arg:"" help:"Input file, or - for standard input."`
}
