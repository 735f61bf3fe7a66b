package engine

import "sync/atomic"

// SharedHistory is the cross-thread butterfly history table for Lazy SMP:
// every search worker folds its own quiet-move successes into the same
// table so threads converging on different parts of the tree still teach
// each other which quiet moves tend to be good. Indexed by [from][to],
// same shape as MoveOrderer's per-worker history, but updated atomically
// since multiple workers write it concurrently.
type SharedHistory struct {
	scores [64][64]atomic.Int32
}

// NewSharedHistory creates an empty shared history table.
func NewSharedHistory() *SharedHistory {
	return &SharedHistory{}
}

// Get returns the current shared history score for a from/to pair.
func (h *SharedHistory) Get(from, to int) int {
	return int(h.scores[from][to].Load())
}

// Update adds bonus to the from/to pair's shared score and halves the entry
// once it exceeds 400000; there is no lower clamp.
func (h *SharedHistory) Update(from, to, bonus int) {
	v := h.scores[from][to].Add(int32(bonus))
	if v > 400000 {
		h.scores[from][to].Store(v / 2)
	}
}

// Clear resets the table at the start of a new game.
func (h *SharedHistory) Clear() {
	for i := range h.scores {
		for j := range h.scores[i] {
			h.scores[i][j].Store(0)
		}
	}
}
