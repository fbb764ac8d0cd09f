// Package headers implements the fixed 96-byte container header: its wire
// layout, the header checksum that lets a reader recognize the format
// before any key material exists, and the header HMAC that is verified
// once subkeys have been derived.
package headers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"github.com/vilshansen/scryptenc-go/scrypterr"
)

// Magic is the fixed 6-byte marker every header begins with.
const Magic = "scrypt"

// Version is the only header version this package writes or accepts.
const Version = 0

// Size is the total on-wire size of a header, magic through header_hmac.
const Size = 96

const (
	offMagic    = 0
	offVersion  = 6
	offLogN     = 7
	offR        = 8
	offP        = 12
	offSalt     = 16
	offChecksum = 48
	offHMAC     = 64

	// checksummedLen is the span [0, 48) that header_checksum covers.
	checksummedLen = 48
	// taggedLen is the span [0, 64) that header_hmac covers.
	taggedLen = 64

	saltSize     = 32
	checksumSize = 16
	hmacSize     = 32
)

// Header is the parsed form of the 96-byte container header.
type Header struct {
	LogN int
	R    uint32
	P    uint32
	Salt [saltSize]byte

	// rawHMAC is the header_hmac field as read from the wire. It cannot be
	// checked until subkeys have been derived, so Read returns it
	// unverified; VerifyTag checks it separately.
	rawHMAC [hmacSize]byte

	// bytes is the full 96-byte encoding, kept so VerifyTag and the stream
	// codec's running MAC can both seed themselves from exactly the bytes
	// that were written or read, without re-deriving them.
	bytes [Size]byte
}

// Bytes returns the full 96-byte wire encoding of the header.
func (h *Header) Bytes() []byte {
	return h.bytes[:]
}

// Write assembles and emits a 96-byte header for (logN, r, p, salt),
// computing header_checksum over bytes [0,48) and header_hmac over bytes
// [0,64) keyed by hmacKey, and returns the header for later reuse (e.g. to
// seed the running MAC of the stream codec).
func Write(w io.Writer, logN int, r, p uint32, salt [saltSize]byte, hmacKey []byte) (*Header, error) {
	h := &Header{LogN: logN, R: r, P: p, Salt: salt}

	buf := h.bytes[:0:Size]
	buf = append(buf, Magic...)
	buf = append(buf, Version)
	buf = append(buf, byte(logN))
	buf = binary.BigEndian.AppendUint32(buf, r)
	buf = binary.BigEndian.AppendUint32(buf, p)
	buf = append(buf, salt[:]...)

	sum := sha256.Sum256(buf[:checksummedLen])
	buf = append(buf, sum[:checksumSize]...)

	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(buf[:taggedLen])
	tag := mac.Sum(nil)
	copy(h.rawHMAC[:], tag)
	buf = append(buf, tag[:hmacSize]...)

	if _, err := w.Write(buf); err != nil {
		return nil, scrypterr.Wrap(scrypterr.EWRFILE, err)
	}
	return h, nil
}

// Read consumes exactly 96 bytes and validates magic, version, and
// header_checksum. The header_hmac field is returned unverified: it
// cannot be checked until the caller has derived subkeys from the
// passphrase and calls VerifyTag.
func Read(r io.Reader) (*Header, error) {
	h := &Header{}
	if _, err := io.ReadFull(r, h.bytes[:]); err != nil {
		return nil, scrypterr.Wrap(scrypterr.ERDFILE, err)
	}

	if string(h.bytes[offMagic:offVersion]) != Magic {
		return nil, scrypterr.New(scrypterr.EINVAL)
	}
	if h.bytes[offVersion] != Version {
		return nil, scrypterr.New(scrypterr.EVERSION)
	}

	sum := sha256.Sum256(h.bytes[:checksummedLen])
	if !hmac.Equal(sum[:checksumSize], h.bytes[offChecksum:offHMAC]) {
		return nil, scrypterr.New(scrypterr.EINVAL)
	}

	h.LogN = int(h.bytes[offLogN])
	h.R = binary.BigEndian.Uint32(h.bytes[offR:offP])
	h.P = binary.BigEndian.Uint32(h.bytes[offP:offSalt])
	copy(h.Salt[:], h.bytes[offSalt:offChecksum])
	copy(h.rawHMAC[:], h.bytes[offHMAC:Size])

	return h, nil
}

// VerifyTag recomputes HMAC-SHA256 over bytes [0,64) keyed by hmacKey and
// compares it to the stored header_hmac in constant time. A mismatch is
// EPASS: the header parsed cleanly, so this signals a wrong passphrase,
// never corruption.
func (h *Header) VerifyTag(hmacKey []byte) error {
	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(h.bytes[:taggedLen])
	computed := mac.Sum(nil)

	if !hmac.Equal(computed, h.rawHMAC[:]) {
		return scrypterr.New(scrypterr.EPASS)
	}
	return nil
}
