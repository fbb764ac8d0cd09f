// Package params implements the Tuner: deriving scrypt cost parameters
// (logN, r, p) from a time/memory budget, or validating caller-supplied
// parameters against that same budget.
package params

import (
	"github.com/vilshansen/scryptenc-go/scrypterr"
	"github.com/vilshansen/scryptenc-go/sysprobe"
)

// Mode distinguishes the two validation paths: on encrypt, infeasible
// explicit parameters are a caller mistake; on decrypt, they describe how
// expensive *this file* claims to be, and the caller had no say in them.
type Mode int

const (
	ModeEncrypt Mode = iota
	ModeDecrypt
)

// defaultR and defaultP are used by Select when the caller has not
// supplied explicit parameters.
const (
	defaultR = 8
	defaultP = 1

	minLogN = 10
	maxLogN = 40
)

// Budget is the advisory resource envelope a Tuner operation is evaluated
// against. A zero value for MaxMem or MaxTime means "no explicit cap";
// MaxMemFrac of 0 or anything above 0.5 snaps to 0.5.
type Budget struct {
	MaxMem     uint64  // bytes, 0 = no explicit cap
	MaxMemFrac float64 // fraction of physical memory, clamped into (0, 0.5]
	MaxTime    float64 // seconds, >= 0
}

// Explicit holds caller-supplied scrypt parameters. A zero value (Set
// false) means "not supplied" and Resolve derives parameters with Select
// instead; when Set is true, Resolve checks the caller's triple with
// ValidateExplicit and then uses it as-is.
type Explicit struct {
	Set  bool
	LogN int
	R    uint32
	P    uint32
}

// Params is the concrete (logN, r, p) triple chosen for one encryption, or
// parsed from a header for one decryption.
type Params struct {
	LogN int
	R    uint32
	P    uint32
}

// N returns 2^LogN.
func (p Params) N() uint64 {
	return uint64(1) << uint(p.LogN)
}

// WorkingSet returns the scrypt scratch-buffer size in bytes for this
// triple: 128 * r * N.
func (p Params) WorkingSet() uint64 {
	return 128 * uint64(p.R) * p.N()
}

// OpCount returns the approximate scrypt operation count for this triple:
// 4 * r * p * N.
func (p Params) OpCount() uint64 {
	return 4 * uint64(p.R) * uint64(p.P) * p.N()
}

// memLimit computes memlimit = min(nonzero of: MaxMem, MaxMemFrac*total,
// available), falling back to available alone when all three budget
// fields are absent, then clamps the result to a small floor.
func memLimit(b Budget, probe sysprobe.Probe) (uint64, error) {
	available, err := probe.AvailableMemory()
	if err != nil {
		return 0, scrypterr.Wrap(scrypterr.ELIMIT, err)
	}
	physical, err := probe.PhysicalMemory()
	if err != nil {
		return 0, scrypterr.Wrap(scrypterr.ELIMIT, err)
	}

	frac := b.MaxMemFrac
	if frac <= 0 || frac > 0.5 {
		frac = 0.5
	}

	// memlimit = min(nonzero of: MaxMem, MaxMemFrac * physical, available).
	// MaxMemFrac scales physical RAM, not whatever happens to be free right
	// now; available is a separate, independent cap applied last.
	limit := available
	if b.MaxMem != 0 && b.MaxMem < limit {
		limit = b.MaxMem
	}
	fracBytes := uint64(frac * float64(physical))
	if fracBytes != 0 && fracBytes < limit {
		limit = fracBytes
	}

	const floor = 1 << 20 // 1 MiB
	if limit < floor {
		limit = floor
	}
	return limit, nil
}

// opsLimit computes opslimit = MaxTime * throughput. A MaxTime of 0 means
// "no time cap", which callers represent by skipping the ops check
// entirely (see Select/ValidateExplicit/ValidateForDecrypt below).
func opsLimit(maxTime float64, probe sysprobe.Probe) (uint64, error) {
	throughput, err := probe.Throughput()
	if err != nil {
		return 0, scrypterr.Wrap(scrypterr.ECLOCK, err)
	}
	return uint64(maxTime * throughput), nil
}

// Select derives (logN, r, p) from budget b, using defaultR/defaultP, and
// choosing the largest logN whose working set and operation count both
// fit the budget. logN is clamped into [minLogN, maxLogN].
func Select(b Budget, probe sysprobe.Probe) (Params, error) {
	memlimit, err := memLimit(b, probe)
	if err != nil {
		return Params{}, err
	}

	var opslimit uint64
	haveTimeCap := b.MaxTime > 0
	if haveTimeCap {
		opslimit, err = opsLimit(b.MaxTime, probe)
		if err != nil {
			return Params{}, err
		}
	}

	logN := minLogN
	for candidate := minLogN; candidate <= maxLogN; candidate++ {
		p := Params{LogN: candidate, R: defaultR, P: defaultP}
		if p.WorkingSet() > memlimit {
			break
		}
		if haveTimeCap && p.OpCount() > opslimit {
			break
		}
		logN = candidate
	}

	return Params{LogN: logN, R: defaultR, P: defaultP}, nil
}

// ValidateExplicit checks an explicit (logN, r, p) triple against budget b
// for encryption. Unless force is set, it fails with EPARAM when either
// the working set or the operation count exceeds the budget.
func ValidateExplicit(p Params, b Budget, probe sysprobe.Probe, force bool) error {
	if force {
		return nil
	}

	memlimit, err := memLimit(b, probe)
	if err != nil {
		return err
	}
	if p.WorkingSet() > memlimit {
		return scrypterr.New(scrypterr.EPARAM)
	}

	if b.MaxTime > 0 {
		opslimit, err := opsLimit(b.MaxTime, probe)
		if err != nil {
			return err
		}
		if p.OpCount() > opslimit {
			return scrypterr.New(scrypterr.EPARAM)
		}
	}

	return nil
}

// ValidateForDecrypt checks parameters parsed from a ciphertext's header
// against budget b. Unless force is set, it rejects with ETOOBIG when the
// working set exceeds the memory budget, or ETOOSLOW when the operation
// count exceeds the time budget. These checks run before any scrypt work
// begins.
func ValidateForDecrypt(p Params, b Budget, probe sysprobe.Probe, force bool) error {
	if force {
		return nil
	}

	memlimit, err := memLimit(b, probe)
	if err != nil {
		return err
	}
	if p.WorkingSet() > memlimit {
		return scrypterr.New(scrypterr.ETOOBIG)
	}

	if b.MaxTime > 0 {
		opslimit, err := opsLimit(b.MaxTime, probe)
		if err != nil {
			return err
		}
		if p.OpCount() > opslimit {
			return scrypterr.New(scrypterr.ETOOSLOW)
		}
	}

	return nil
}

// Resolve is the single entry point cmd/scryptenc uses for the encrypt
// path: it either validates the caller's explicit triple or derives one
// from the budget.
func Resolve(explicit Explicit, b Budget, probe sysprobe.Probe, force bool) (Params, error) {
	if !explicit.Set {
		return Select(b, probe)
	}

	p := Params{LogN: explicit.LogN, R: explicit.R, P: explicit.P}
	if err := ValidateExplicit(p, b, probe, force); err != nil {
		return Params{}, err
	}
	return p, nil
}
