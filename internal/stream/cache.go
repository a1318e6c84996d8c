package stream

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/andybalholm/brotli"
	"github.com/jmylchreest/smartcut/internal/core"
	"github.com/jmylchreest/smartcut/internal/nal"
)

// cacheEnvelope is the brotli-compressed, gob-encoded payload persisted
// by SaveCache (supplemented feature, SPEC_FULL.md "internal/stream").
type cacheEnvelope struct {
	FingerprintHex string
	Codec          nal.Codec
	Units          []nal.NalUnit
	AccessUnits    []AccessUnit
	Gops           []Gop
	SPSIndices     []int
	PPSIndices     []int
	VPSIndices     []int
}

// cacheKeyFor fingerprints an input file by size, mtime, and a hash of
// its first and last 4 KiB, so a second cut job against the same source
// can detect staleness cheaply without re-reading the whole file.
func cacheKeyFor(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	const window = 4096
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d", filepath.Base(path), info.Size(), info.ModTime().UnixNano())

	head := make([]byte, window)
	n, _ := io.ReadFull(f, head)
	h.Write(head[:n])

	if info.Size() > window {
		tailOff := info.Size() - window
		if tailOff < int64(n) {
			tailOff = int64(n)
		}
		tail := make([]byte, window)
		m, _ := f.ReadAt(tail, tailOff)
		h.Write(tail[:m])
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// CachePath returns the cache file path for sourcePath under cacheDir.
func CachePath(cacheDir, sourcePath string) string {
	return filepath.Join(cacheDir, filepath.Base(sourcePath)+".scidx")
}

// SaveCache writes a brotli-compressed snapshot of the index's raw
// NAL/AU/GOP arrays, keyed by a fingerprint of sourcePath.
func (idx *Index) SaveCache(cachePath, sourcePath string) error {
	key, err := cacheKeyFor(sourcePath)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrIo, err)
	}

	units, err := idx.nals.ToSlice()
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrIo, err)
	}
	aus, err := idx.aus.ToSlice()
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrIo, err)
	}
	gops, err := idx.gops.ToSlice()
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrIo, err)
	}

	env := cacheEnvelope{
		FingerprintHex: key,
		Codec:          idx.Codec,
		Units:          units,
		AccessUnits:    aus,
		Gops:           gops,
		SPSIndices:     idx.spsIndices,
		PPSIndices:     idx.ppsIndices,
		VPSIndices:     idx.vpsIndices,
	}

	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		return fmt.Errorf("%w: %w", core.ErrIo, err)
	}
	f, err := os.Create(cachePath)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrIo, err)
	}
	defer f.Close()

	bw := brotli.NewWriter(f)
	defer bw.Close()
	if err := gob.NewEncoder(bw).Encode(env); err != nil {
		return fmt.Errorf("%w: %w", core.ErrIo, err)
	}
	return nil
}

// LoadCache reads a previously saved index snapshot for sourcePath,
// returning (nil, nil) on a cache miss or fingerprint mismatch (staleness)
// rather than an error, so callers always fall back to a full parse.
func LoadCache(cachePath, sourcePath string, opts Options) (*Index, error) {
	key, err := cacheKeyFor(sourcePath)
	if err != nil {
		return nil, nil
	}

	f, err := os.Open(cachePath)
	if err != nil {
		return nil, nil
	}
	defer f.Close()

	var env cacheEnvelope
	if err := gob.NewDecoder(brotli.NewReader(f)).Decode(&env); err != nil {
		return nil, nil
	}
	if env.FingerprintHex != key {
		return nil, nil
	}

	idx, err := rebuildFromCache(env, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrIo, err)
	}
	return idx, nil
}
