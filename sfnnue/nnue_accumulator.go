// NNUE Accumulator for incremental updates.
// Ported from Stockfish src/nnue/nnue_accumulator.h and .cpp

package sfnnue

// Accumulator holds the result of affine transformation of input features.
// Ported from nnue_accumulator.h:47-52
type Accumulator struct {
	// Accumulated values for each color [COLOR_NB][HalfDimensions]
	Accumulation [2][]int16

	// PSQT accumulated values for each color [COLOR_NB][PSQTBuckets]
	PSQTAccumulation [2][]int32

	// Whether each color's accumulator is computed
	Computed [2]bool

	// King squares when accumulator was computed (for detecting king moves)
	KingSq [2]int

	// Whether each perspective needs full refresh (king moved)
	NeedsRefresh [2]bool
}

// SQ_NONE represents no square (for king tracking)
const SQ_NONE = 64

// NewAccumulator creates a new accumulator with the given half dimensions
func NewAccumulator(halfDims int) *Accumulator {
	return &Accumulator{
		Accumulation: [2][]int16{
			make([]int16, halfDims),
			make([]int16, halfDims),
		},
		PSQTAccumulation: [2][]int32{
			make([]int32, PSQTBuckets),
			make([]int32, PSQTBuckets),
		},
		Computed:     [2]bool{false, false},
		KingSq:       [2]int{SQ_NONE, SQ_NONE},
		NeedsRefresh: [2]bool{true, true},
	}
}

// Reset marks the accumulator as not computed
func (a *Accumulator) Reset() {
	a.Computed[0] = false
	a.Computed[1] = false
	a.KingSq[0] = SQ_NONE
	a.KingSq[1] = SQ_NONE
	a.NeedsRefresh[0] = true
	a.NeedsRefresh[1] = true
}

// Copy copies values from another accumulator
func (a *Accumulator) Copy(other *Accumulator) {
	copy(a.Accumulation[0], other.Accumulation[0])
	copy(a.Accumulation[1], other.Accumulation[1])
	copy(a.PSQTAccumulation[0], other.PSQTAccumulation[0])
	copy(a.PSQTAccumulation[1], other.PSQTAccumulation[1])
	a.Computed[0] = other.Computed[0]
	a.Computed[1] = other.Computed[1]
	a.KingSq[0] = other.KingSq[0]
	a.KingSq[1] = other.KingSq[1]
	a.NeedsRefresh[0] = other.NeedsRefresh[0]
	a.NeedsRefresh[1] = other.NeedsRefresh[1]
}

// AccumulatorStack manages accumulators during search.
// Ported from nnue_accumulator.h:152-202
type AccumulatorStack struct {
	// Stack of accumulators for big network
	BigAccumulators []Accumulator

	// Stack of accumulators for small network
	SmallAccumulators []Accumulator

	// Current stack size
	Size int
}

// MaxStackSize is the maximum ply depth
const MaxStackSize = 256

// NewAccumulatorStack creates a new accumulator stack
func NewAccumulatorStack() *AccumulatorStack {
	stack := &AccumulatorStack{
		BigAccumulators:   make([]Accumulator, MaxStackSize),
		SmallAccumulators: make([]Accumulator, MaxStackSize),
		Size:              1,
	}

	// Initialize all accumulators
	for i := range stack.BigAccumulators {
		stack.BigAccumulators[i] = *NewAccumulator(TransformedFeatureDimensionsBig)
	}
	for i := range stack.SmallAccumulators {
		stack.SmallAccumulators[i] = *NewAccumulator(TransformedFeatureDimensionsSmall)
	}

	return stack
}

// Reset resets the stack to initial state
func (s *AccumulatorStack) Reset() {
	s.Size = 1
	s.BigAccumulators[0].Reset()
	s.SmallAccumulators[0].Reset()
}

// Push saves current state and prepares for a new position
func (s *AccumulatorStack) Push() {
	if s.Size < MaxStackSize {
		// Copy current accumulator to next level
		s.BigAccumulators[s.Size].Copy(&s.BigAccumulators[s.Size-1])
		s.SmallAccumulators[s.Size].Copy(&s.SmallAccumulators[s.Size-1])
		s.Size++
	}
}

// Pop restores previous state
func (s *AccumulatorStack) Pop() {
	if s.Size > 1 {
		s.Size--
	}
}

// CurrentBig returns the current big network accumulator
func (s *AccumulatorStack) CurrentBig() *Accumulator {
	return &s.BigAccumulators[s.Size-1]
}

// CurrentSmall returns the current small network accumulator
func (s *AccumulatorStack) CurrentSmall() *Accumulator {
	return &s.SmallAccumulators[s.Size-1]
}

// PreviousBig returns the previous big network accumulator (for incremental updates)
func (s *AccumulatorStack) PreviousBig() *Accumulator {
	if s.Size > 1 {
		return &s.BigAccumulators[s.Size-2]
	}
	return nil
}

// PreviousSmall returns the previous small network accumulator (for incremental updates)
func (s *AccumulatorStack) PreviousSmall() *Accumulator {
	if s.Size > 1 {
		return &s.SmallAccumulators[s.Size-2]
	}
	return nil
}

// CanIncrementallyUpdate checks if we can do an incremental update for the given perspective
func (s *AccumulatorStack) CanIncrementallyUpdate(perspective int) bool {
	if s.Size <= 1 {
		return false
	}
	prev := s.PreviousBig()
	if prev == nil {
		return false
	}
	// Can incrementally update if previous was computed and no king move for this perspective
	return prev.Computed[perspective] && !s.CurrentBig().NeedsRefresh[perspective]
}

// Duplication is the number of cache entries held per (king_square,
// perspective) bucket. The spec requires correctness at Duplication == 1;
// a higher value is an optional optimization whose best/worst selection
// policy is implemented below regardless of the compiled-in width.
const Duplication = 1

// NumPieceTypes is the number of (non-empty) piece types tracked per
// color in a cache snapshot: pawn, knight, bishop, rook, queen, king.
const NumPieceTypes = 6

// BitboardSnapshot is the per-(color, piece_type) bitboard state a cache
// entry was last refreshed against.
type BitboardSnapshot struct {
	ByColorType [2][NumPieceTypes]uint64
}

// RefreshCost returns the Finny-table refresh cost between two snapshots:
// the sum, over every (color, piece_type) pair, of the popcount of the
// symmetric difference of the two bitboards.
func RefreshCost(a, b BitboardSnapshot) int {
	cost := 0
	for c := 0; c < 2; c++ {
		for t := 0; t < NumPieceTypes; t++ {
			cost += popcount64(a.ByColorType[c][t] ^ b.ByColorType[c][t])
		}
	}
	return cost
}

// CachePosition exposes the per-(color, piece_type) bitboards the refresh
// cache needs to compute refresh cost and drive a refresh-from-cache
// update; it is the board package's Position seen through a narrow lens.
type CachePosition interface {
	PieceTypeBB(color, pieceType int) uint64
	PieceOn(sq int) int
}

// AccumulatorCache provides per-king-square, per-perspective Finny tables.
// Ported from nnue_accumulator.h:61-106, generalized to the Duplication>1
// best/worst selection policy described in the refresh cache contract.
type AccumulatorCache struct {
	// Entries indexed by [king_square][perspective][duplicate]
	Entries [64][2][Duplication]AccumulatorCacheEntry
}

// AccumulatorCacheEntry stores cached accumulator state for a king position.
type AccumulatorCacheEntry struct {
	Accumulation     []int16
	PSQTAccumulation []int32
	Snapshot         BitboardSnapshot
	Pieces           [64]int // piece on each square, for delta reconstruction
}

func (e *AccumulatorCacheEntry) clear(biases []int16) {
	copy(e.Accumulation, biases)
	for i := range e.PSQTAccumulation {
		e.PSQTAccumulation[i] = 0
	}
	for i := range e.Pieces {
		e.Pieces[i] = 0
	}
	e.Snapshot = BitboardSnapshot{}
}

// NewAccumulatorCache creates a new cache for the given dimensions.
func NewAccumulatorCache(halfDims int, biases []int16) *AccumulatorCache {
	cache := &AccumulatorCache{}
	for sq := 0; sq < 64; sq++ {
		for p := 0; p < 2; p++ {
			for d := 0; d < Duplication; d++ {
				entry := &cache.Entries[sq][p][d]
				entry.Accumulation = make([]int16, halfDims)
				entry.PSQTAccumulation = make([]int32, PSQTBuckets)
				entry.clear(biases)
			}
		}
	}
	return cache
}

// Clear resets the cache with the given biases, e.g. on net reload.
func (c *AccumulatorCache) Clear(biases []int16) {
	for sq := 0; sq < 64; sq++ {
		for p := 0; p < 2; p++ {
			for d := 0; d < Duplication; d++ {
				c.Entries[sq][p][d].clear(biases)
			}
		}
	}
}

// Get returns the best (cheapest to refresh from) and worst (most
// expensive) cache entries for the given king square and perspective,
// judged against the bitboard snapshot of pos. Tie-breaks: strict "<"
// selects best (first matching entry wins), non-strict ">=" selects worst
// (last matching entry wins) — matching the refresh cache contract.
func (c *AccumulatorCache) Get(kingSq, perspective int, snapshot BitboardSnapshot) (best, worst *AccumulatorCacheEntry) {
	bucket := &c.Entries[kingSq][perspective]
	bestCost, worstCost := -1, -1
	for i := range bucket {
		entry := &bucket[i]
		cost := RefreshCost(entry.Snapshot, snapshot)
		if best == nil || cost < bestCost {
			best = entry
			bestCost = cost
		}
		if worst == nil || cost >= worstCost {
			worst = entry
			worstCost = cost
		}
	}
	return best, worst
}

// SaveToCache saves the current accumulator state to the cache entry.
func (c *AccumulatorCache) SaveToCache(
	entry *AccumulatorCacheEntry,
	acc *Accumulator,
	snapshot BitboardSnapshot,
	pieces [64]int,
	perspective int,
) {
	copy(entry.Accumulation, acc.Accumulation[perspective])
	copy(entry.PSQTAccumulation, acc.PSQTAccumulation[perspective])
	entry.Snapshot = snapshot
	copy(entry.Pieces[:], pieces[:])
}

func popcount64(x uint64) int {
	count := 0
	for x != 0 {
		x &= x - 1
		count++
	}
	return count
}

// trailingZeros64 returns the number of trailing zeros in a 64-bit integer
func trailingZeros64(x uint64) int {
	if x == 0 {
		return 64
	}
	n := 0
	if x&0xFFFFFFFF == 0 {
		n += 32
		x >>= 32
	}
	if x&0xFFFF == 0 {
		n += 16
		x >>= 16
	}
	if x&0xFF == 0 {
		n += 8
		x >>= 8
	}
	if x&0xF == 0 {
		n += 4
		x >>= 4
	}
	if x&0x3 == 0 {
		n += 2
		x >>= 2
	}
	if x&0x1 == 0 {
		n += 1
	}
	return n
}
