package stream

import (
	"fmt"
	"sort"

	"github.com/jmylchreest/smartcut/internal/core"
	"github.com/jmylchreest/smartcut/internal/nal"
	"github.com/jmylchreest/smartcut/pkg/diskslice"
)

// Index holds a parsed stream's NAL/AU/GOP arrays plus the lookup tables
// used by the cut planner and output assembler. Storage is backed by
// pkg/diskslice so indexing a multi-hour/multi-GB program does not
// require holding the whole NAL array resident in memory.
type Index struct {
	Codec nal.Codec

	nals  *diskslice.DiskSlice[nal.NalUnit]
	aus   *diskslice.DiskSlice[AccessUnit]
	gops  *diskslice.DiskSlice[Gop]

	spsIndices []int
	ppsIndices []int
	vpsIndices []int

	// keyframePositions is the ascending array of keyframe AU indices;
	// lookups against it are binary searches.
	keyframePositions []int
	idrPositions      []int

	frameCount int
}

// Options configures the disk-spill thresholds used for the NAL/AU/GOP
// arrays; a zero value uses diskslice.DefaultOptions per array kind.
type Options struct {
	MemoryThreshold int64
	TempDir         string
}

// Build constructs a StreamIndex from a scanned+classified NAL array and
// the codec detected for the stream.
func Build(units []nal.NalUnit, codec nal.Codec, opts Options) (*Index, error) {
	if len(units) == 0 {
		return nil, core.ErrNoStream
	}

	result := NewBuilder(units).Build()
	if len(result.AccessUnits) == 0 {
		return nil, core.ErrNoStream
	}

	dsOpts := func(name string, itemSize int) diskslice.Options {
		o := diskslice.DefaultOptions()
		o.Name = name
		o.EstimatedItemSize = itemSize
		if opts.MemoryThreshold > 0 {
			o.MemoryThreshold = opts.MemoryThreshold
		}
		if opts.TempDir != "" {
			o.TempDir = opts.TempDir
		}
		return o
	}

	nals, err := diskslice.New[nal.NalUnit](dsOpts("smartcut-nals", 96))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrIo, err)
	}
	if err := nals.AppendSlice(units); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrIo, err)
	}

	aus, err := diskslice.New[AccessUnit](dsOpts("smartcut-aus", 128))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrIo, err)
	}
	if err := aus.AppendSlice(result.AccessUnits); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrIo, err)
	}

	gops, err := diskslice.New[Gop](dsOpts("smartcut-gops", 64))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrIo, err)
	}
	if err := gops.AppendSlice(result.Gops); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrIo, err)
	}

	idx := &Index{
		Codec:      codec,
		nals:       nals,
		aus:        aus,
		gops:       gops,
		spsIndices: result.SPSIndices,
		ppsIndices: result.PPSIndices,
		vpsIndices: result.VPSIndices,
		frameCount: len(result.AccessUnits),
	}
	for i, au := range result.AccessUnits {
		if au.IsKeyframe {
			idx.keyframePositions = append(idx.keyframePositions, i)
		}
		if au.IsIDR {
			idx.idrPositions = append(idx.idrPositions, i)
		}
	}
	return idx, nil
}

// Close releases the underlying disk-backed storage.
func (idx *Index) Close() error {
	var firstErr error
	for _, c := range []interface{ Close() error }{idx.nals, idx.aus, idx.gops} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// FrameCount returns the total number of access units.
func (idx *Index) FrameCount() int { return idx.frameCount }

// NalAt returns the NalUnit at the given index into the discovery-order
// NAL array (not the AU index).
func (idx *Index) NalAt(i int) (*nal.NalUnit, error) { return idx.nals.Get(i) }

// NalCount returns the number of NAL units in the stream.
func (idx *Index) NalCount() int { return idx.nals.Len() }

// AccessUnitAt returns the AccessUnit at frame index f.
func (idx *Index) AccessUnitAt(f int) (*AccessUnit, error) {
	if f < 0 || f >= idx.frameCount {
		return nil, fmt.Errorf("frame %d out of range [0,%d)", f, idx.frameCount)
	}
	return idx.aus.Get(f)
}

// GopFor returns the Gop containing frame f.
func (idx *Index) GopFor(f int) (*Gop, error) {
	au, err := idx.AccessUnitAt(f)
	if err != nil {
		return nil, err
	}
	return idx.gops.Get(au.GopIndex)
}

// SPSIndices, PPSIndices, VPSIndices return the parameter-set NAL indices
// in discovery order.
func (idx *Index) SPSIndices() []int { return idx.spsIndices }
func (idx *Index) PPSIndices() []int { return idx.ppsIndices }
func (idx *Index) VPSIndices() []int { return idx.vpsIndices }

// KeyframeAtOrBefore returns the index of the last keyframe AU at or
// before f, or -1 if none exists.
func (idx *Index) KeyframeAtOrBefore(f int) int {
	return searchAtOrBefore(idx.keyframePositions, f)
}

// KeyframeAtOrAfter returns the index of the first keyframe AU at or
// after f, or -1 if none exists.
func (idx *Index) KeyframeAtOrAfter(f int) int {
	return searchAtOrAfter(idx.keyframePositions, f)
}

// IdrAtOrBefore returns the strict-IDR AU at or before f, distinct from
// any-keyframe since CRA/BLA are not always safe stream-copy entry
// points.
func (idx *Index) IdrAtOrBefore(f int) int {
	return searchAtOrBefore(idx.idrPositions, f)
}

// IdrAtOrAfter returns the strict-IDR AU at or after f.
func (idx *Index) IdrAtOrAfter(f int) int {
	return searchAtOrAfter(idx.idrPositions, f)
}

// searchAtOrBefore returns the largest element of the ascending, sorted
// positions slice that is <= f, or -1.
func searchAtOrBefore(positions []int, f int) int {
	i := sort.Search(len(positions), func(i int) bool { return positions[i] > f })
	if i == 0 {
		return -1
	}
	return positions[i-1]
}

// searchAtOrAfter returns the smallest element of positions that is >= f,
// or -1.
func searchAtOrAfter(positions []int, f int) int {
	i := sort.Search(len(positions), func(i int) bool { return positions[i] >= f })
	if i == len(positions) {
		return -1
	}
	return positions[i]
}

// rebuildFromCache reconstructs an Index from a cacheEnvelope's raw
// arrays, skipping the NAL scan/classify/AU-build work entirely.
func rebuildFromCache(env cacheEnvelope, opts Options) (*Index, error) {
	dsOpts := func(name string, itemSize int) diskslice.Options {
		o := diskslice.DefaultOptions()
		o.Name = name
		o.EstimatedItemSize = itemSize
		if opts.MemoryThreshold > 0 {
			o.MemoryThreshold = opts.MemoryThreshold
		}
		if opts.TempDir != "" {
			o.TempDir = opts.TempDir
		}
		return o
	}

	nals, err := diskslice.New[nal.NalUnit](dsOpts("smartcut-nals", 96))
	if err != nil {
		return nil, err
	}
	if err := nals.AppendSlice(env.Units); err != nil {
		return nil, err
	}
	aus, err := diskslice.New[AccessUnit](dsOpts("smartcut-aus", 128))
	if err != nil {
		return nil, err
	}
	if err := aus.AppendSlice(env.AccessUnits); err != nil {
		return nil, err
	}
	gops, err := diskslice.New[Gop](dsOpts("smartcut-gops", 64))
	if err != nil {
		return nil, err
	}
	if err := gops.AppendSlice(env.Gops); err != nil {
		return nil, err
	}

	idx := &Index{
		Codec:      env.Codec,
		nals:       nals,
		aus:        aus,
		gops:       gops,
		spsIndices: env.SPSIndices,
		ppsIndices: env.PPSIndices,
		vpsIndices: env.VPSIndices,
		frameCount: len(env.AccessUnits),
	}
	for i, au := range env.AccessUnits {
		if au.IsKeyframe {
			idx.keyframePositions = append(idx.keyframePositions, i)
		}
		if au.IsIDR {
			idx.idrPositions = append(idx.idrPositions, i)
		}
	}
	return idx, nil
}
