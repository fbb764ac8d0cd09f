// Package sysprobe answers the two questions the Tuner needs about the
// host it is running on: how much memory is available right now, and how
// fast scrypt runs here. Both answers are cheap to get wrong by a small
// factor, so both are allowed to be approximate; the Tuner only needs them
// to pick a sane order of magnitude.
package sysprobe

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/scrypt"
	"golang.org/x/sys/unix"

	"github.com/vilshansen/scryptenc-go/scrypterr"
)

// Probe is the interface the Tuner consumes. Production code uses Host;
// tests inject a fake so that parameter-selection logic can be exercised
// without depending on the memory or CPU speed of the machine running the
// test suite.
type Probe interface {
	AvailableMemory() (uint64, error)
	PhysicalMemory() (uint64, error)
	Throughput() (float64, error)
}

// Host is the real, OS-backed Probe.
type Host struct{}

var _ Probe = Host{}

// minMemoryFloor is the smallest available-memory figure sysprobe will
// ever report, so that a memory budget derived from it stays well-defined
// even on a host that misreports near-zero free memory.
const minMemoryFloor = 1 << 20 // 1 MiB

// AvailableMemory reports how many bytes of physical memory are currently
// free for use, preferring the OS's notion of "available" (which accounts
// for reclaimable caches) over raw "free".
func (Host) AvailableMemory() (uint64, error) {
	if runtime.GOOS == "linux" {
		if avail, ok := linuxMemAvailable(); ok {
			return clampFloor(avail), nil
		}
	}

	total, err := totalMemorySysinfo()
	if err != nil {
		return 0, scrypterr.Wrap(scrypterr.ELIMIT, err)
	}

	// No OS-reported "available" figure: assume half of total is free,
	// which is the same conservative fraction the Tuner itself falls back
	// to for maxmemfrac when the caller leaves it unset.
	return clampFloor(total / 2), nil
}

func clampFloor(b uint64) uint64 {
	if b < minMemoryFloor {
		return minMemoryFloor
	}
	return b
}

// PhysicalMemory reports the host's total installed RAM, independent of
// how much of it is currently free. The Tuner's maxmemfrac term is a
// fraction of this figure, not of AvailableMemory: the two can diverge
// sharply on a host where other processes already hold most of RAM.
func (Host) PhysicalMemory() (uint64, error) {
	if runtime.GOOS == "linux" {
		if total, ok := linuxMemTotal(); ok {
			return clampFloor(total), nil
		}
	}

	total, err := totalMemorySysinfo()
	if err != nil {
		return 0, scrypterr.Wrap(scrypterr.ELIMIT, err)
	}
	return clampFloor(total), nil
}

// linuxMemTotal scans /proc/meminfo for MemTotal, the same line
// grailbio's OOM trigger reads to decide how much memory the host has.
func linuxMemTotal() (uint64, bool) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scan := bufio.NewScanner(f)
	for scan.Scan() {
		fields := strings.Fields(scan.Text())
		if len(fields) < 2 || fields[0] != "MemTotal:" {
			continue
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return kb << 10, true
	}
	if scan.Err() != nil {
		return 0, false
	}
	return 0, false
}

// linuxMemAvailable scans /proc/meminfo the way grailbio's OOM trigger
// scans it for MemTotal, but reads MemAvailable (falling back to MemFree)
// instead of trying to exhaust it.
func linuxMemAvailable() (uint64, bool) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, false
	}
	defer f.Close()

	var memAvailable, memFree uint64
	var haveAvailable, haveFree bool

	scan := bufio.NewScanner(f)
	for scan.Scan() {
		fields := strings.Fields(scan.Text())
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "MemAvailable:":
			if kb, err := strconv.ParseUint(fields[1], 10, 64); err == nil {
				memAvailable, haveAvailable = kb<<10, true
			}
		case "MemFree:":
			if kb, err := strconv.ParseUint(fields[1], 10, 64); err == nil {
				memFree, haveFree = kb<<10, true
			}
		}
	}
	if scan.Err() != nil {
		return 0, false
	}

	if haveAvailable {
		return memAvailable, true
	}
	if haveFree {
		return memFree, true
	}
	return 0, false
}

func totalMemorySysinfo() (uint64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, err
	}
	return uint64(info.Totalram) * uint64(info.Unit), nil
}

// throughputCache is the process-wide, lazily-initialized, idempotent
// scrypt benchmark result described in the design notes: safe to read
// after write without locking because every caller computes the same
// answer on a given host, so a duplicated measurement under contention is
// harmless.
var (
	throughputOnce sync.Once
	throughputOps  float64
	throughputErr  error
)

// benchN, benchR, benchP are the small, fixed cost used to estimate scrypt
// throughput; chosen to run in low-single-digit milliseconds on any
// machine this tool is likely to run on.
const (
	benchN = 1024
	benchR = 8
	benchP = 1

	// noiseFloor is the minimum elapsed duration we trust; below it a
	// second, larger-cost run is used instead.
	noiseFloor = 5 * time.Millisecond
)

// Throughput estimates scrypt operations per second on this host by
// timing a minimal invocation and extrapolating. The result is cached for
// the lifetime of the process.
func (Host) Throughput() (float64, error) {
	throughputOnce.Do(func() {
		throughputOps, throughputErr = measureThroughput()
	})
	return throughputOps, throughputErr
}

func measureThroughput() (float64, error) {
	ops, elapsed, err := benchmarkOnce(benchN, benchR, benchP)
	if err != nil {
		return 0, scrypterr.Wrap(scrypterr.ECLOCK, err)
	}
	if elapsed < noiseFloor {
		// Retry at a cost large enough to clear the timer's noise floor.
		ops, elapsed, err = benchmarkOnce(benchN<<4, benchR, benchP)
		if err != nil {
			return 0, scrypterr.Wrap(scrypterr.ECLOCK, err)
		}
	}
	if elapsed <= 0 {
		return 0, scrypterr.New(scrypterr.ECLOCK)
	}
	return float64(ops) / elapsed.Seconds(), nil
}

func benchmarkOnce(n, r, p int) (ops uint64, elapsed time.Duration, err error) {
	salt := make([]byte, 16)
	start := time.Now()
	if _, err := scrypt.Key([]byte("benchmark"), salt, n, r, p, 32); err != nil {
		return 0, 0, err
	}
	elapsed = time.Since(start)
	ops = uint64(4 * r * p * n)
	return ops, elapsed, nil
}
