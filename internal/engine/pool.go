package engine

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harrierchess/engine/internal/board"
	"github.com/harrierchess/engine/sfnnue"
)

// Pool runs a Lazy SMP search: every worker iterates its own independent
// deepening loop over the same position, sharing only the transposition
// table and the shared butterfly history. Only the pool's first ("main")
// worker's result is reported; helper workers exist purely to pre-warm the
// shared TT and history tables with independently ordered search trees,
// the way Stockfish's Lazy SMP threads do.
type Pool struct {
	tt            *TranspositionTable
	sharedHistory *SharedHistory
	nnueNet       *sfnnue.Networks
	stopFlag      atomic.Bool
	workers       []*Worker
}

// NewPool creates a pool of numThreads workers sharing one transposition
// table and one butterfly history table.
func NewPool(numThreads, ttSizeMB int) *Pool {
	if numThreads < 1 {
		numThreads = 1
	}
	tt := NewTranspositionTable(ttSizeMB)
	sharedHistory := NewSharedHistory()

	p := &Pool{
		tt:            tt,
		sharedHistory: sharedHistory,
	}
	for i := 0; i < numThreads; i++ {
		p.workers = append(p.workers, NewWorker(i, tt, sharedHistory, &p.stopFlag))
	}
	return p
}

// SetNNUE enables NNUE evaluation on every worker in the pool.
func (p *Pool) SetNNUE(nets *sfnnue.Networks) {
	p.nnueNet = nets
	for _, w := range p.workers {
		w.initNNUE(nets)
	}
}

// Stop signals every worker in the pool to stop searching.
func (p *Pool) Stop() {
	p.stopFlag.Store(true)
}

// Clear resets the pool's shared and per-worker state for a new game.
func (p *Pool) Clear() {
	p.tt.Clear()
	p.sharedHistory.Clear()
	for _, w := range p.workers {
		w.Reset()
	}
}

// Nodes returns the total node count across every worker in the pool.
func (p *Pool) Nodes() uint64 {
	var total uint64
	for _, w := range p.workers {
		total += w.Nodes()
	}
	return total
}

// SetRootHistory forwards game-history hashes (for repetition detection) to
// every worker in the pool.
func (p *Pool) SetRootHistory(hashes []uint64) {
	for _, w := range p.workers {
		w.SetRootHistory(hashes)
	}
}

// Search runs a Lazy SMP search to the given limits and returns the main
// worker's best move and score, reporting progress through onInfo (which
// may be nil) after each completed depth.
func (p *Pool) Search(pos *board.Position, limits SearchLimits, onInfo func(SearchInfo)) (board.Move, int) {
	p.stopFlag.Store(false)
	p.tt.NewSearch()
	for _, w := range p.workers {
		w.InitSearch(pos)
	}

	maxDepth := MaxPly
	if limits.Depth > 0 {
		maxDepth = limits.Depth
	}
	startTime := time.Now()
	var deadline time.Time
	if limits.MoveTime > 0 {
		deadline = startTime.Add(limits.MoveTime)
	}

	g, ctx := errgroup.WithContext(context.Background())

	// Helper threads search in the background purely to diversify the
	// shared TT and history tables; their own best moves are discarded.
	for _, worker := range p.workers[1:] {
		w := worker
		g.Go(func() error {
			for depth := 1; depth <= maxDepth; depth++ {
				if ctx.Err() != nil || p.stopFlag.Load() {
					return nil
				}
				if !deadline.IsZero() && time.Now().After(deadline) {
					return nil
				}
				w.SearchDepth(depth, -Infinity, Infinity)
			}
			return nil
		})
	}

	main := p.workers[0]
	var bestMove board.Move
	var bestScore int

	for depth := 1; depth <= maxDepth; depth++ {
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}

		move, score := main.SearchDepth(depth, -Infinity, Infinity)
		if main.stopped() {
			break
		}
		if move != board.NoMove {
			bestMove, bestScore = move, score
		}

		if onInfo != nil {
			onInfo(SearchInfo{
				Depth:    depth,
				Score:    bestScore,
				Nodes:    p.Nodes(),
				Time:     time.Since(startTime),
				PV:       main.GetPV(),
				HashFull: p.tt.HashFull(),
			})
		}

		if score > MateScore-100 || score < -MateScore+100 {
			break
		}
	}

	p.Stop()
	g.Wait()
	return bestMove, bestScore
}
