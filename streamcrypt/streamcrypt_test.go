package streamcrypt

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vilshansen/scryptenc-go/scrypterr"
)

func testKeys() (encKey, hmacKey, header []byte) {
	encKey = bytes.Repeat([]byte{0x11}, KeySize)
	hmacKey = bytes.Repeat([]byte{0x22}, MacKeySize)
	header = bytes.Repeat([]byte{0x33}, 96)
	return
}

func TestEncryptThenDecryptRoundTrips(t *testing.T) {
	require := require.New(t)

	plaintext := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 5000)

	encKey, hmacKey, header := testKeys()
	enc, err := New(encKey, hmacKey, header)
	require.NoError(err)

	var ciphertext bytes.Buffer
	n, err := enc.Encrypt(&ciphertext, bytes.NewReader(plaintext))
	require.NoError(err)
	require.EqualValues(len(plaintext), n)
	require.Equal(len(plaintext)+TagSize, ciphertext.Len())

	dec, err := New(encKey, hmacKey, header)
	require.NoError(err)

	var recovered bytes.Buffer
	n, err = dec.Decrypt(&recovered, bytes.NewReader(ciphertext.Bytes()))
	require.NoError(err)
	require.EqualValues(len(plaintext), n)
	require.True(bytes.Equal(plaintext, recovered.Bytes()))
}

func TestDecryptRoundTripsEmptyPlaintext(t *testing.T) {
	require := require.New(t)

	encKey, hmacKey, header := testKeys()
	enc, err := New(encKey, hmacKey, header)
	require.NoError(err)

	var ciphertext bytes.Buffer
	_, err = enc.Encrypt(&ciphertext, bytes.NewReader(nil))
	require.NoError(err)
	require.Equal(TagSize, ciphertext.Len())

	dec, err := New(encKey, hmacKey, header)
	require.NoError(err)

	var recovered bytes.Buffer
	n, err := dec.Decrypt(&recovered, bytes.NewReader(ciphertext.Bytes()))
	require.NoError(err)
	require.EqualValues(0, n)
	require.Equal(0, recovered.Len())
}

func TestDecryptDetectsFlippedCiphertextBit(t *testing.T) {
	require := require.New(t)

	encKey, hmacKey, header := testKeys()
	enc, err := New(encKey, hmacKey, header)
	require.NoError(err)

	var ciphertext bytes.Buffer
	_, err = enc.Encrypt(&ciphertext, bytes.NewReader([]byte("attack at dawn")))
	require.NoError(err)

	corrupted := ciphertext.Bytes()
	corrupted[0] ^= 0x01

	dec, err := New(encKey, hmacKey, header)
	require.NoError(err)

	var recovered bytes.Buffer
	_, err = dec.Decrypt(&recovered, bytes.NewReader(corrupted))
	require.True(scrypterr.Is(err, scrypterr.EINVAL))
}

func TestDecryptDetectsFlippedTagBit(t *testing.T) {
	require := require.New(t)

	encKey, hmacKey, header := testKeys()
	enc, err := New(encKey, hmacKey, header)
	require.NoError(err)

	var ciphertext bytes.Buffer
	_, err = enc.Encrypt(&ciphertext, bytes.NewReader([]byte("attack at dawn")))
	require.NoError(err)

	corrupted := ciphertext.Bytes()
	corrupted[len(corrupted)-1] ^= 0x01

	dec, err := New(encKey, hmacKey, header)
	require.NoError(err)

	var recovered bytes.Buffer
	_, err = dec.Decrypt(&recovered, bytes.NewReader(corrupted))
	require.True(scrypterr.Is(err, scrypterr.EINVAL))
}

func TestDecryptRejectsTruncatedInput(t *testing.T) {
	require := require.New(t)

	encKey, hmacKey, header := testKeys()
	dec, err := New(encKey, hmacKey, header)
	require.NoError(err)

	var recovered bytes.Buffer
	_, err = dec.Decrypt(&recovered, bytes.NewReader(make([]byte, TagSize-1)))
	require.True(scrypterr.Is(err, scrypterr.EINVAL))
}

func TestDecryptWorksOverAnUnboundedReaderInSmallPieces(t *testing.T) {
	require := require.New(t)

	plaintext := bytes.Repeat([]byte("streamed over a pipe, one tiny read at a time"), 300)

	encKey, hmacKey, header := testKeys()
	enc, err := New(encKey, hmacKey, header)
	require.NoError(err)

	var ciphertext bytes.Buffer
	_, err = enc.Encrypt(&ciphertext, bytes.NewReader(plaintext))
	require.NoError(err)

	dec, err := New(encKey, hmacKey, header)
	require.NoError(err)

	var recovered bytes.Buffer
	_, err = dec.Decrypt(&recovered, &oneByteReader{data: ciphertext.Bytes()})
	require.NoError(err)
	require.True(bytes.Equal(plaintext, recovered.Bytes()))
}

// oneByteReader returns at most one byte per Read, simulating the worst
// case of an unbounded pipe such as stdin feeding Decrypt's sliding
// window a byte at a time.
type oneByteReader struct{ data []byte }

func (r *oneByteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func TestDifferentHmacKeysProduceDifferentTags(t *testing.T) {
	require := require.New(t)

	encKey, _, header := testKeys()
	hmacKeyA := bytes.Repeat([]byte{0xAA}, MacKeySize)
	hmacKeyB := bytes.Repeat([]byte{0xBB}, MacKeySize)

	encA, err := New(encKey, hmacKeyA, header)
	require.NoError(err)
	var outA bytes.Buffer
	_, err = encA.Encrypt(&outA, bytes.NewReader([]byte("same plaintext")))
	require.NoError(err)

	encB, err := New(encKey, hmacKeyB, header)
	require.NoError(err)
	var outB bytes.Buffer
	_, err = encB.Encrypt(&outB, bytes.NewReader([]byte("same plaintext")))
	require.NoError(err)

	require.False(bytes.Equal(outA.Bytes()[len(outA.Bytes())-TagSize:], outB.Bytes()[len(outB.Bytes())-TagSize:]))
}
