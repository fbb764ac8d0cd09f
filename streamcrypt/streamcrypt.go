// Package streamcrypt implements the body codec: AES-256-CTR keystream
// XORed against plaintext, with a running HMAC-SHA256 that absorbs every
// ciphertext byte in stream order, seeded with the header bytes before the
// first ciphertext byte arrives.
package streamcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"hash"
	"io"

	"github.com/vilshansen/scryptenc-go/scrypterr"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// MacKeySize is the HMAC-SHA256 key length in bytes.
const MacKeySize = 32

// TagSize is the trailing final-tag length in bytes.
const TagSize = 32

// ChunkSize is the read size of Decrypt's streaming loop; Encrypt uses
// io.Copy's own buffer. It is purely an implementation detail:
// correctness only requires that the MAC
// sees ciphertext bytes in order exactly once and the keystream advances
// without gap or overlap, which chunking at any size preserves.
const ChunkSize = 64 * 1024

// zeroNonce is the all-zero 128-bit CTR counter. Reusing a fixed nonce is
// safe here only because enc_key is scrypt-derived from a fresh salt every
// time a file is encrypted, so the same (key, nonce) pair is never reused
// across files.
var zeroNonce = make([]byte, aes.BlockSize)

// Codec bundles the AES-CTR stream and the running HMAC that together
// implement one direction (encrypt or decrypt) of the body codec. It is
// constructed already seeded with the header bytes.
type Codec struct {
	stream cipher.Stream
	mac    hash.Hash
}

// New builds a Codec for encKey/hmacKey, with the running MAC already
// seeded with headerBytes (the full 96-byte header).
func New(encKey, hmacKey, headerBytes []byte) (*Codec, error) {
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, scrypterr.Wrap(scrypterr.EKEY, err)
	}
	stream := cipher.NewCTR(block, zeroNonce)

	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(headerBytes)

	return &Codec{stream: stream, mac: mac}, nil
}

// Encrypt streams plaintext from r, writing ciphertext to w and feeding
// every ciphertext byte to the running MAC, then appends the 32-byte
// final tag: HMAC-SHA256 over header||ciphertext. It returns the number
// of plaintext bytes consumed. Errors are reported as ERDFILE/EWRFILE
// depending on which side failed.
func (c *Codec) Encrypt(w io.Writer, r io.Reader) (int64, error) {
	taggedIn := scrypterr.TagReader(r, scrypterr.ERDFILE)
	taggedOut := scrypterr.TagWriter(w, scrypterr.EWRFILE)
	sw := &cipher.StreamWriter{S: c.stream, W: io.MultiWriter(taggedOut, c.mac)}

	n, err := io.Copy(sw, taggedIn)
	if err != nil {
		return n, err
	}

	tag := c.mac.Sum(nil)
	if _, err := taggedOut.Write(tag); err != nil {
		return n, err
	}
	return n, nil
}

// Decrypt streams ciphertext from r up to EOF, feeding every byte but the
// trailing 32 to the running MAC and writing the recovered plaintext to
// w, then compares those trailing 32 bytes to the MAC's own finalization
// in constant time. r's length need not be known in advance: Decrypt
// holds back the most recent TagSize bytes it has read (a sliding
// window) until it knows whether more ciphertext follows, so it works
// identically over a regular file or an unbounded pipe such as stdin.
// Fewer than TagSize total bytes, or a tag mismatch, is reported as
// EINVAL.
func (c *Codec) Decrypt(w io.Writer, r io.Reader) (int64, error) {
	taggedIn := scrypterr.TagReader(r, scrypterr.ERDFILE)
	taggedOut := scrypterr.TagWriter(w, scrypterr.EWRFILE)

	var (
		pending []byte // the most recent <=TagSize bytes read, not yet processed
		total   int64
		scratch = make([]byte, ChunkSize)
		sawEOF  bool
	)

	for !sawEOF {
		n, err := taggedIn.Read(scratch)
		if err != nil && err != io.EOF {
			return total, err
		}
		if err == io.EOF {
			sawEOF = true
		}
		if n == 0 {
			continue
		}

		pending = append(pending, scratch[:n]...)
		if len(pending) > TagSize {
			ready := pending[:len(pending)-TagSize]
			written, werr := c.decryptChunk(taggedOut, ready)
			total += int64(written)
			if werr != nil {
				return total, werr
			}
			pending = append([]byte(nil), pending[len(pending)-TagSize:]...)
		}
	}

	if len(pending) != TagSize {
		return total, scrypterr.New(scrypterr.EINVAL)
	}

	computed := c.mac.Sum(nil)
	if !hmac.Equal(computed, pending) {
		return total, scrypterr.New(scrypterr.EINVAL)
	}
	return total, nil
}

// decryptChunk feeds ciphertext to the running MAC, decrypts it into a
// freshly allocated buffer, and writes the plaintext to w.
func (c *Codec) decryptChunk(w io.Writer, ciphertext []byte) (int, error) {
	c.mac.Write(ciphertext)

	plaintext := make([]byte, len(ciphertext))
	c.stream.XORKeyStream(plaintext, ciphertext)

	return w.Write(plaintext)
}
