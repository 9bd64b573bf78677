package pathgen

import (
	"math"
	"math/rand"

	"github.com/benbjohnson/pathgen/compile"
	"github.com/benbjohnson/pathgen/vm"
	fuzz "github.com/google/gofuzz"
)

// Generator synthesizes argument lists for a function's parameters.
type Generator interface {
	Generate(params []compile.Param) []vm.Value
}

// Default bucket generator settings.
const (
	DefaultModerateRange = 16
	DefaultReuseChance   = 1.0 / 3
)

// Bucket identifies one of the representative sub-ranges of an integer kind.
type Bucket int

const (
	BucketExtremeNegative Bucket = iota
	BucketModerateNegative
	BucketZero
	BucketModeratePositive
	BucketExtremePositive
	numBuckets
)

// String returns the name of the bucket.
func (b Bucket) String() string {
	switch b {
	case BucketExtremeNegative:
		return "extreme-negative"
	case BucketModerateNegative:
		return "moderate-negative"
	case BucketZero:
		return "zero"
	case BucketModeratePositive:
		return "moderate-positive"
	case BucketExtremePositive:
		return "extreme-positive"
	default:
		return "unknown"
	}
}

var _ Generator = (*BucketGenerator)(nil)

// BucketGenerator draws each integer from a randomly chosen bucket: the
// bottom or top half of the kind's range, a small band on either side of
// zero, or zero itself. A parameter may instead repeat the value of an
// earlier parameter so that equality branches are reachable.
type BucketGenerator struct {
	rand *rand.Rand

	// Half-width of the moderate buckets.
	ModerateRange int64

	// Probability that a parameter reuses an earlier parameter's value.
	ReuseChance float64
}

// NewBucketGenerator returns a new instance of BucketGenerator.
func NewBucketGenerator(rand *rand.Rand) *BucketGenerator {
	return &BucketGenerator{
		rand:          rand,
		ModerateRange: DefaultModerateRange,
		ReuseChance:   DefaultReuseChance,
	}
}

// Generate returns one value per parameter.
func (g *BucketGenerator) Generate(params []compile.Param) []vm.Value {
	args := make([]vm.Value, len(params))
	for i, p := range params {
		if v, ok := g.reuse(args[:i], p.Kind); ok {
			args[i] = v
			continue
		}

		switch {
		case p.Kind == vm.KindBool:
			args[i] = vm.Bool(g.rand.Intn(2) == 1)
		case p.Kind.IsInteger():
			args[i] = g.draw(p.Kind)
		default:
			assert(false, "unsupported parameter kind: %s", p.Kind)
		}
	}
	return args
}

// reuse returns a converted copy of a random earlier value of the same class.
func (g *BucketGenerator) reuse(prev []vm.Value, kind vm.Kind) (vm.Value, bool) {
	if len(prev) == 0 || g.rand.Float64() >= g.ReuseChance {
		return nil, false
	}

	var candidates []vm.Value
	for _, v := range prev {
		switch v := v.(type) {
		case vm.Bool:
			if kind == vm.KindBool {
				candidates = append(candidates, v)
			}
		case vm.Int:
			if kind.IsInteger() {
				candidates = append(candidates, v.Convert(kind))
			}
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	return candidates[g.rand.Intn(len(candidates))], true
}

// draw picks a non-empty bucket for kind and returns a value from it.
func (g *BucketGenerator) draw(kind vm.Kind) vm.Int {
	buckets := make([]Bucket, 0, numBuckets)
	for b := Bucket(0); b < numBuckets; b++ {
		if kind.IsSigned() || b >= BucketZero {
			buckets = append(buckets, b)
		}
	}
	b := buckets[g.rand.Intn(len(buckets))]

	if !kind.IsSigned() {
		lo, hi := g.unsignedRange(b, kind)
		return vm.NewUint(lo+g.uniform(hi-lo), kind)
	}
	lo, hi := g.signedRange(b, kind)
	return vm.NewInt(lo+int64(g.uniform(uint64(hi-lo))), kind)
}

// signedRange returns the inclusive bounds of b clamped to a signed kind.
func (g *BucketGenerator) signedRange(b Bucket, kind vm.Kind) (lo, hi int64) {
	min, max := kind.MinInt64(), int64(kind.MaxUint64())
	switch b {
	case BucketExtremeNegative:
		return min, min / 2
	case BucketModerateNegative:
		return clamp(-g.moderateRange(), min, max), -1
	case BucketModeratePositive:
		return 1, clamp(g.moderateRange(), min, max)
	case BucketExtremePositive:
		return max / 2, max
	default:
		return 0, 0
	}
}

// unsignedRange returns the inclusive bounds of a non-negative bucket.
func (g *BucketGenerator) unsignedRange(b Bucket, kind vm.Kind) (lo, hi uint64) {
	max := kind.MaxUint64()
	switch b {
	case BucketModeratePositive:
		if hi = uint64(g.moderateRange()); hi > max {
			hi = max
		}
		return 1, hi
	case BucketExtremePositive:
		return max / 2, max
	default:
		return 0, 0
	}
}

// moderateRange returns ModerateRange, at least 1.
func (g *BucketGenerator) moderateRange() int64 {
	if g.ModerateRange < 1 {
		return 1
	}
	return g.ModerateRange
}

// uniform returns a value in [0, n].
func (g *BucketGenerator) uniform(n uint64) uint64 {
	if n < math.MaxInt64 {
		return uint64(g.rand.Int63n(int64(n) + 1))
	}
	for {
		if v := g.rand.Uint64(); v <= n {
			return v
		}
	}
}

func clamp(v, min, max int64) int64 {
	if v < min {
		return min
	} else if v > max {
		return max
	}
	return v
}

var _ Generator = (*RandomGenerator)(nil)

// RandomGenerator fills every parameter with a fully random value.
type RandomGenerator struct {
	fuzzer *fuzz.Fuzzer
}

// NewRandomGenerator returns a new instance of RandomGenerator.
func NewRandomGenerator(seed int64) *RandomGenerator {
	return &RandomGenerator{fuzzer: fuzz.NewWithSeed(seed).NilChance(0)}
}

// Generate returns one value per parameter.
func (g *RandomGenerator) Generate(params []compile.Param) []vm.Value {
	args := make([]vm.Value, len(params))
	for i, p := range params {
		switch {
		case p.Kind == vm.KindBool:
			var b bool
			g.fuzzer.Fuzz(&b)
			args[i] = vm.Bool(b)
		case p.Kind.IsInteger():
			var u uint64
			g.fuzzer.Fuzz(&u)
			args[i] = vm.NewUint(u, p.Kind)
		default:
			assert(false, "unsupported parameter kind: %s", p.Kind)
		}
	}
	return args
}

var _ Generator = (*MultiGenerator)(nil)

// MultiGenerator represents a Generator that chooses a generator round-robin.
type MultiGenerator struct {
	generators []Generator
	index      int
}

// NewMultiGenerator returns a new instance of MultiGenerator.
func NewMultiGenerator(generators ...Generator) *MultiGenerator {
	return &MultiGenerator{generators: generators}
}

// Generate returns arguments from the next generator.
func (g *MultiGenerator) Generate(params []compile.Param) []vm.Value {
	gen := g.generators[g.index]
	if g.index++; g.index >= len(g.generators) {
		g.index = 0
	}
	return gen.Generate(params)
}
