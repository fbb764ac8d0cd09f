package session

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vilshansen/scryptenc-go/params"
	"github.com/vilshansen/scryptenc-go/scrypterr"
)

// fakeProbe pins down the Tuner's host facts so tests run fast and
// deterministically regardless of the machine running them.
type fakeProbe struct {
	mem        uint64
	throughput float64
}

func (f fakeProbe) AvailableMemory() (uint64, error) { return f.mem, nil }
func (f fakeProbe) PhysicalMemory() (uint64, error)  { return f.mem, nil }
func (f fakeProbe) Throughput() (float64, error)     { return f.throughput, nil }

func fastProbe() fakeProbe {
	return fakeProbe{mem: 64 << 20, throughput: 1e12}
}

// fastExplicit is cheap enough to run instantly in a test while still
// exercising the real scrypt.Key call.
var fastExplicit = params.Explicit{Set: true, LogN: 10, R: 1, P: 1}

type recordingDiag struct {
	n      uint64
	r, p   uint32
	called bool
}

func (d *recordingDiag) Params(n uint64, r, p uint32) {
	d.called, d.n, d.r, d.p = true, n, r, p
}

func TestEncryptThenPrepCopyRoundTrips(t *testing.T) {
	require := require.New(t)

	plaintext := []byte("the magic words are squeamish ossifrage")

	var container bytes.Buffer
	diag := &recordingDiag{}
	err := Encrypt(&container, bytes.NewReader(plaintext), []byte("correct horse battery staple"),
		fastExplicit, params.Budget{}, true, fastProbe(), diag)
	require.NoError(err)
	require.True(diag.called)
	require.EqualValues(1024, diag.n)
	require.Equal(uint32(1), diag.r)
	require.Equal(uint32(1), diag.p)

	cookie, err := Prep(&container, []byte("correct horse battery staple"), params.Budget{}, true, fastProbe(), nil)
	require.NoError(err)
	require.Equal(10, cookie.Params().LogN)

	var recovered bytes.Buffer
	err = Copy(cookie, &recovered, &container)
	require.NoError(err)
	require.Equal(plaintext, recovered.Bytes())
}

func TestPrepRejectsWrongPassphrase(t *testing.T) {
	require := require.New(t)

	var container bytes.Buffer
	err := Encrypt(&container, bytes.NewReader([]byte("hello")), []byte("right passphrase"),
		fastExplicit, params.Budget{}, true, fastProbe(), nil)
	require.NoError(err)

	_, err = Prep(&container, []byte("wrong passphrase"), params.Budget{}, true, fastProbe(), nil)
	require.True(scrypterr.Is(err, scrypterr.EPASS))
}

func TestPrepRejectsCorruptedHeader(t *testing.T) {
	require := require.New(t)

	var container bytes.Buffer
	err := Encrypt(&container, bytes.NewReader([]byte("hello")), []byte("a passphrase"),
		fastExplicit, params.Budget{}, true, fastProbe(), nil)
	require.NoError(err)

	corrupted := container.Bytes()
	corrupted[0] = 'X'

	_, err = Prep(bytes.NewReader(corrupted), []byte("a passphrase"), params.Budget{}, true, fastProbe(), nil)
	require.True(scrypterr.Is(err, scrypterr.EINVAL))
}

func TestPrepHonorsDecryptBudget(t *testing.T) {
	require := require.New(t)

	// Working set (128*8*4096 = 4 MiB) is well above memLimit's 1 MiB
	// floor, so a tiny decrypt-side probe genuinely trips ETOOBIG instead
	// of being masked by the floor clamp.
	costlyExplicit := params.Explicit{Set: true, LogN: 12, R: 8, P: 1}

	var container bytes.Buffer
	err := Encrypt(&container, bytes.NewReader([]byte("hello")), []byte("a passphrase"),
		costlyExplicit, params.Budget{}, true, fastProbe(), nil)
	require.NoError(err)

	tinyMemProbe := fakeProbe{mem: 2 << 20, throughput: 1e12}
	_, err = Prep(bytes.NewReader(container.Bytes()), []byte("a passphrase"), params.Budget{MaxMemFrac: 0.5}, false, tinyMemProbe, nil)
	require.True(scrypterr.Is(err, scrypterr.ETOOBIG))
}

func TestCookieCannotBeCopiedTwice(t *testing.T) {
	require := require.New(t)

	var container bytes.Buffer
	err := Encrypt(&container, bytes.NewReader([]byte("hello")), []byte("a passphrase"),
		fastExplicit, params.Budget{}, true, fastProbe(), nil)
	require.NoError(err)

	cookie, err := Prep(&container, []byte("a passphrase"), params.Budget{}, true, fastProbe(), nil)
	require.NoError(err)

	var out bytes.Buffer
	require.NoError(Copy(cookie, &out, &container))

	require.Panics(func() {
		_ = Copy(cookie, &out, bytes.NewReader(nil))
	})
}

func TestFreeIsIdempotent(t *testing.T) {
	require := require.New(t)

	var container bytes.Buffer
	err := Encrypt(&container, bytes.NewReader([]byte("hello")), []byte("a passphrase"),
		fastExplicit, params.Budget{}, true, fastProbe(), nil)
	require.NoError(err)

	cookie, err := Prep(&container, []byte("a passphrase"), params.Budget{}, true, fastProbe(), nil)
	require.NoError(err)

	cookie.Free()
	require.NotPanics(func() { cookie.Free() })
}

func TestInfoReportsParamsWithoutVerifyingPassphrase(t *testing.T) {
	require := require.New(t)

	var container bytes.Buffer
	err := Encrypt(&container, bytes.NewReader([]byte("hello")), []byte("a passphrase"),
		fastExplicit, params.Budget{}, true, fastProbe(), nil)
	require.NoError(err)

	p, err := Info(&container)
	require.NoError(err)
	require.Equal(10, p.LogN)
	require.EqualValues(1, p.R)
	require.EqualValues(1, p.P)
}

func TestFormatParams(t *testing.T) {
	require := require.New(t)

	got := FormatParams(params.Params{LogN: 14, R: 8, P: 1})
	require.Equal("N = 16384 r = 8 p = 1 (logN = 14)", got)
}

func TestEncryptProducesFreshSaltEachTime(t *testing.T) {
	require := require.New(t)

	var a, b bytes.Buffer
	require.NoError(Encrypt(&a, bytes.NewReader([]byte("hello")), []byte("same passphrase"), fastExplicit, params.Budget{}, true, fastProbe(), nil))
	require.NoError(Encrypt(&b, bytes.NewReader([]byte("hello")), []byte("same passphrase"), fastExplicit, params.Budget{}, true, fastProbe(), nil))

	require.False(bytes.Equal(a.Bytes(), b.Bytes()), "fresh salt must make two encryptions of the same plaintext differ")
}
