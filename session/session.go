// Package session implements the orchestrator that sequences passphrase
// acquisition, subkey derivation, header emission/parsing, and the stream
// codec into the encrypt and decrypt operations described in the
// specification's state machine.
package session

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"

	"github.com/vilshansen/scryptenc-go/headers"
	"github.com/vilshansen/scryptenc-go/params"
	"github.com/vilshansen/scryptenc-go/scrypterr"
	"github.com/vilshansen/scryptenc-go/streamcrypt"
	"github.com/vilshansen/scryptenc-go/sysprobe"
)

// Diagnostics receives the N/r/p diagnostics of verbose mode. A nil
// Diagnostics disables them.
type Diagnostics interface {
	Params(n uint64, r, p uint32)
}

// deriveSubkeys runs scrypt(passphrase, salt, N, r, p, dkLen=64) and
// splits the result into the 32-byte encryption key and the 32-byte HMAC
// key. The returned slices are the two halves of a single 64-byte backing
// array; zeroing both slices wipes the whole derived block.
func deriveSubkeys(passphrase []byte, salt [32]byte, p params.Params) (encKey, hmacKey []byte, err error) {
	block, err := scrypt.Key(passphrase, salt[:], int(p.N()), int(p.R), int(p.P), streamcrypt.KeySize+streamcrypt.MacKeySize)
	if err != nil {
		return nil, nil, scrypterr.Wrap(scrypterr.EKEY, err)
	}
	return block[:streamcrypt.KeySize], block[streamcrypt.KeySize:], nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Encrypt runs the single-phase encrypt pipeline: Tuner -> scrypt ->
// header write -> stream encrypt -> final tag, in that order. explicit
// and budget together select the scrypt parameters per the Tuner's
// rules; force bypasses its feasibility checks.
func Encrypt(w io.Writer, r io.Reader, passphrase []byte, explicit params.Explicit, budget params.Budget, force bool, probe sysprobe.Probe, diag Diagnostics) error {
	p, err := params.Resolve(explicit, budget, probe, force)
	if err != nil {
		return err
	}

	var salt [32]byte
	if _, err := io.ReadFull(rand.Reader, salt[:]); err != nil {
		return scrypterr.Wrap(scrypterr.ESALT, err)
	}

	encKey, hmacKey, err := deriveSubkeys(passphrase, salt, p)
	if err != nil {
		return err
	}
	defer zero(encKey)
	defer zero(hmacKey)

	if diag != nil {
		diag.Params(p.N(), p.R, p.P)
	}

	h, err := headers.Write(w, p.LogN, p.R, p.P, salt, hmacKey)
	if err != nil {
		return err
	}

	codec, err := streamcrypt.New(encKey, hmacKey, h.Bytes())
	if err != nil {
		return err
	}

	_, err = codec.Encrypt(w, r)
	return err
}

// cookieState models the single-use contract of Cookie: any operation on
// a Consumed cookie is a programming error, not a user-visible failure.
type cookieState int

const (
	awaitingCopy cookieState = iota
	consumed
)

// Cookie is the opaque session state a successful Prep hands to Copy. It
// owns the derived subkeys, the cipher state positioned at the start of
// the body, and a running MAC that has already absorbed the header.
// Cookie is single-use: Copy or Free consumes it exactly once.
type Cookie struct {
	state   cookieState
	params  params.Params
	encKey  []byte
	hmacKey []byte
	codec   *streamcrypt.Codec
}

// Params returns the scrypt parameters this cookie's ciphertext claims.
func (c *Cookie) Params() params.Params {
	return c.params
}

func (c *Cookie) requireAwaitingCopy() {
	if c.state != awaitingCopy {
		panic("session: cookie already consumed")
	}
}

// Free zeroes the cookie's secrets and marks it Consumed. It is safe to
// call on an already-Consumed cookie (e.g. from a deferred cleanup after
// Copy has already run).
func (c *Cookie) Free() {
	if c.state == consumed {
		return
	}
	zero(c.encKey)
	zero(c.hmacKey)
	c.state = consumed
}

// Prep reads the 96-byte header from r, validates magic/version/checksum,
// runs the Tuner's decrypt-side validation against budget, derives
// subkeys via scrypt, and verifies the header HMAC. On any failure no
// cookie is returned, and r may have been consumed up to 96 bytes. On
// success the returned cookie owns cipher state and a running MAC that
// has already absorbed the header; no output has been produced and no
// output file need exist yet.
func Prep(r io.Reader, passphrase []byte, budget params.Budget, force bool, probe sysprobe.Probe, diag Diagnostics) (*Cookie, error) {
	h, err := headers.Read(r)
	if err != nil {
		return nil, err
	}

	p := params.Params{LogN: h.LogN, R: h.R, P: h.P}
	if err := params.ValidateForDecrypt(p, budget, probe, force); err != nil {
		return nil, err
	}

	encKey, hmacKey, err := deriveSubkeys(passphrase, h.Salt, p)
	if err != nil {
		return nil, err
	}

	if err := h.VerifyTag(hmacKey); err != nil {
		zero(encKey)
		zero(hmacKey)
		return nil, err
	}

	if diag != nil {
		diag.Params(p.N(), p.R, p.P)
	}

	codec, err := streamcrypt.New(encKey, hmacKey, h.Bytes())
	if err != nil {
		zero(encKey)
		zero(hmacKey)
		return nil, err
	}

	return &Cookie{
		state:   awaitingCopy,
		params:  p,
		encKey:  encKey,
		hmacKey: hmacKey,
		codec:   codec,
	}, nil
}

// Copy streams the ciphertext body through the decrypt codec, verifies
// the final tag, and frees the cookie. c must be AwaitingCopy; calling
// Copy twice on the same cookie is a programming error.
func Copy(c *Cookie, w io.Writer, r io.Reader) error {
	c.requireAwaitingCopy()
	defer c.Free()

	_, err := c.codec.Decrypt(w, r)
	return err
}

// Info reads a 96-byte header from r and returns its parameters without
// deriving any key or verifying the header HMAC; it does verify the
// header checksum, so a corrupted or foreign file is still rejected.
func Info(r io.Reader) (params.Params, error) {
	h, err := headers.Read(r)
	if err != nil {
		return params.Params{}, err
	}
	return params.Params{LogN: h.LogN, R: h.R, P: h.P}, nil
}

// FormatParams renders a Params triple the way -v/info diagnostics print
// it: "N = <n> r = <r> p = <p> (logN = <logN>)".
func FormatParams(p params.Params) string {
	return fmt.Sprintf("N = %d r = %d p = %d (logN = %d)", p.N(), p.R, p.P, p.LogN)
}
