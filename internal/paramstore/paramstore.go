// Package paramstore loads or lazily synthesizes the opaque proving-library
// parameter object (SRS/universal-setup bytes) keyed by a circuit size k.
// Actual parameter generation belongs to the proving library (out of scope,
// per spec §1); this package treats the bytes as opaque and only manages
// their lifecycle: load from a file, or deterministically synthesize, and
// downsize in memory.
package paramstore

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
)

// Params is an opaque, proving-library-format parameter object. Its byte
// layout is defined entirely by the proving library (§6); this package
// never interprets the contents beyond their length, which stands in for
// the library's real "size grows with k" behavior.
type Params struct {
	K     int
	Bytes []byte
}

// Clone returns an independent copy so downsizing never mutates a cached
// original.
func (p *Params) Clone() *Params {
	cp := make([]byte, len(p.Bytes))
	copy(cp, p.Bytes)
	return &Params{K: p.K, Bytes: cp}
}

// Downsize returns params sized for a smaller k, in place. The real
// proving library does this by truncating/re-deriving the polynomial
// commitment basis; here the operation is deterministic and in-memory as
// required by §4.2, implemented by truncating to a k-proportional prefix of
// the opaque byte buffer so distinct k values are distinguishable in dumps.
func (p *Params) Downsize(k int) {
	if k > p.K {
		panic(fmt.Sprintf("paramstore: cannot downsize params of k=%d up to k=%d", p.K, k))
	}
	if k == p.K {
		return
	}
	want := paramSize(k)
	if want < len(p.Bytes) {
		p.Bytes = p.Bytes[:want]
	}
	p.K = k
}

// paramSize returns the deterministic synthetic byte length used for a
// given k. Real proving-library parameter objects grow roughly linearly in
// 2^k; this in-memory stand-in grows as 2^(k mod 24), so it is monotonic
// only for k below 24 (k=24 maps back to the k=0 size of 64 bytes).
func paramSize(k int) int {
	return 64 * (1 << uint(k%24))
}

// fileNames are the two on-disk layouts named in spec §6.
func currentFileName(k int) string { return fmt.Sprintf("kzg_bn254_%d.srs", k) }
func legacyFileName(k int) string  { return fmt.Sprintf("%d.bin", k) }

// Get loads parameters for k from pathOrEmpty (a directory, a direct file
// path, or "" for deterministic synthesis). The returned sourceTag is a
// printable string used only as part of KeyCache cache keys.
func Get(pathOrEmpty string, k int) (params *Params, sourceTag string, err error) {
	if pathOrEmpty == "" {
		return synth(k), fmt.Sprintf("%d", k), nil
	}

	info, statErr := os.Stat(pathOrEmpty)
	var path string
	switch {
	case statErr == nil && info.IsDir():
		path = filepath.Join(pathOrEmpty, currentFileName(k))
		if _, err := os.Stat(path); err != nil {
			legacy := filepath.Join(pathOrEmpty, legacyFileName(k))
			if _, err := os.Stat(legacy); err == nil {
				path = legacy
			}
		}
	default:
		path = pathOrEmpty
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("paramstore: open %s: %w", path, err)
	}
	return &Params{K: k, Bytes: b}, path, nil
}

// synth deterministically synthesizes parameters from a fixed RNG seed
// keyed by k, matching §4.2's "otherwise synthesize ... from a fixed RNG
// seed keyed by k."
func synth(k int) *Params {
	src := rand.NewPCG(0xdeadbeef, uint64(k))
	rng := rand.New(src)
	buf := make([]byte, paramSize(k))
	for i := range buf {
		buf[i] = byte(rng.Uint32())
	}
	return &Params{K: k, Bytes: buf}
}
