package engine

import (
	"math"
	"time"

	"github.com/harrierchess/engine/internal/board"
)

// Named time-management tuning constants, taken directly from Stockfish's
// timeman.cpp. Units match the original: most are fixed-point with an
// explicit divisor applied at each use site.
const (
	tmMtgBase     = 5051
	tmOtaCoeff    = 3128
	tmOtaConstant = 4354

	tmOptBase  = 321160
	tmOptCoeff = 321123
	tmOptMax   = 508017

	tmMaxConstantConstant = 339770
	tmMaxConstantCoeff    = 303950
	tmMaxConstantMin      = 294761

	tmOptScaleConstant    = 121431
	tmOptScalePowBase     = 294693
	tmOptScalePowExponent = 461073
	tmOptScaleMaxCoeff    = 213035

	tmMaxScaleMaximum = 667704
	tmMaxScaleDivisor = 119847

	tmMaximumTimeClampCoeff = 825178
)

// UCILimits contains UCI time control parameters.
type UCILimits struct {
	Time      [2]time.Duration // wtime, btime (remaining time for each color)
	Inc       [2]time.Duration // winc, binc (increment per move)
	MovesToGo int              // moves until next time control (0 = sudden death)
	MoveTime  time.Duration    // fixed time per move (overrides other time controls)
	Depth     int              // maximum search depth
	Nodes     uint64           // maximum nodes to search
	Infinite  bool             // search until stopped
	Ponder    bool             // ponder mode

	MoveOverhead time.Duration // UCI "Move Overhead" option
	NodesTime    int64         // UCI "nodestime" option: nodes per millisecond (0 = off)
}

// TimeManager handles time allocation for searches.
type TimeManager struct {
	optimumTime time.Duration // Target time for this move
	maximumTime time.Duration // Maximum time allowed
	startTime   time.Time     // When search started

	useNodesTime    bool
	availableNodes  int64 // remaining "nodes as time" budget; -1 until initialized
	originalTimeAdjust float64 // persistent across a game; < 0 means "not yet computed"
}

// NewTimeManager creates a new time manager.
func NewTimeManager() *TimeManager {
	return &TimeManager{availableNodes: -1, originalTimeAdjust: -1}
}

// Clear resets the nodes-as-time budget and the time-adjust factor at the
// start of a new game.
func (tm *TimeManager) Clear() {
	tm.availableNodes = -1
	tm.originalTimeAdjust = -1
}

// AdvanceNodesTime consumes nodes from the nodes-as-time budget; called as
// the search reports its node count in useNodesTime mode.
func (tm *TimeManager) AdvanceNodesTime(nodes int64) {
	if !tm.useNodesTime {
		return
	}
	tm.availableNodes -= nodes
	if tm.availableNodes < 0 {
		tm.availableNodes = 0
	}
}

// Init initializes the time manager for a new search, following Stockfish's
// timeman.cpp formulas exactly (x basetime (+inc), and x moves in y seconds
// (+inc)).
func (tm *TimeManager) Init(limits UCILimits, us board.Color, ply int) {
	tm.startTime = time.Now()
	tm.useNodesTime = limits.NodesTime != 0

	// Fixed move time mode
	if limits.MoveTime > 0 {
		tm.optimumTime = limits.MoveTime
		tm.maximumTime = limits.MoveTime
		return
	}

	// Infinite mode, or no time control at all: search until stopped
	if limits.Infinite || limits.Time[us] == 0 {
		tm.optimumTime = time.Hour
		tm.maximumTime = time.Hour
		return
	}

	moveOverheadMs := float64(limits.MoveOverhead / time.Millisecond)

	timeUsMs := float64(limits.Time[us] / time.Millisecond)
	incUsMs := float64(limits.Inc[us] / time.Millisecond)
	npmsec := float64(limits.NodesTime)

	if tm.useNodesTime {
		if tm.availableNodes == -1 {
			tm.availableNodes = int64(npmsec * timeUsMs)
		}
		timeUsMs = float64(tm.availableNodes)
		incUsMs *= npmsec
		moveOverheadMs *= npmsec
	}

	scaleFactor := 1.0
	if tm.useNodesTime {
		scaleFactor = npmsec
	}
	scaledTime := timeUsMs / scaleFactor
	scaledInc := incUsMs / scaleFactor

	// Maximum move horizon of 50 moves
	centiMTG := float64(tmMtgBase)
	if limits.MovesToGo > 0 {
		mtg := limits.MovesToGo
		if mtg > 50 {
			mtg = 50
		}
		centiMTG = float64(mtg * 100)
	}

	// If less than one second, gradually reduce mtg
	if scaledTime < 1000 && scaledInc > 0 && centiMTG/scaledInc > tmMtgBase/1000.0 {
		centiMTG = scaledTime * tmMtgBase / 1000.0
	}

	timeLeft := timeUsMs + (incUsMs*(centiMTG-100)-moveOverheadMs*(centiMTG+200))/100
	if timeLeft < 1 {
		timeLeft = 1
	}

	var optScale, maxScale float64

	if limits.MovesToGo == 0 {
		// x basetime (+ z increment)
		if tm.originalTimeAdjust < 0 {
			tm.originalTimeAdjust = tmOtaCoeff/10000.0*math.Log10(timeLeft) - tmOtaConstant/10000.0
		}

		logTimeInSec := math.Log10(scaledTime / 1000.0)
		optConstant := math.Min(
			tmOptBase/100000000.0+tmOptCoeff/1000000000.0*logTimeInSec,
			tmOptMax/100000000.0,
		)
		maxConstant := math.Max(
			tmMaxConstantConstant/100000.0+tmMaxConstantCoeff*logTimeInSec/100000.0,
			tmMaxConstantMin/100000.0,
		)

		optScale = math.Min(
			tmOptScaleConstant/10000000.0+math.Pow(float64(ply)+tmOptScalePowBase/100000.0, tmOptScalePowExponent/1000000.0)*optConstant,
			tmOptScaleMaxCoeff/1000000.0*timeUsMs/timeLeft,
		) * tm.originalTimeAdjust

		maxScale = math.Min(tmMaxScaleMaximum/100000.0, maxConstant+float64(ply)/(tmMaxScaleDivisor/10000.0))
	} else {
		// x moves in y seconds (+ z increment)
		optScale = math.Min(
			(0.88+float64(ply)/116.4)/(centiMTG/100.0),
			0.88*timeUsMs/timeLeft,
		)
		maxScale = 1.3 + 0.11*(centiMTG/100.0)
	}

	optimumMs := optScale * timeLeft
	maximumMs := math.Min(tmMaximumTimeClampCoeff/1000000.0*timeUsMs-moveOverheadMs, maxScale*optimumMs) - 10

	if limits.Ponder {
		optimumMs += optimumMs / 4
	}

	if optimumMs < 1 {
		optimumMs = 1
	}
	if maximumMs < optimumMs {
		maximumMs = optimumMs
	}

	tm.optimumTime = time.Duration(optimumMs) * time.Millisecond
	tm.maximumTime = time.Duration(maximumMs) * time.Millisecond
}

// Elapsed returns the time elapsed since search started.
func (tm *TimeManager) Elapsed() time.Duration {
	return time.Since(tm.startTime)
}

// OptimumTime returns the target time for this move.
func (tm *TimeManager) OptimumTime() time.Duration {
	return tm.optimumTime
}

// MaximumTime returns the maximum time allowed.
func (tm *TimeManager) MaximumTime() time.Duration {
	return tm.maximumTime
}

// ShouldStop returns true if we should stop searching.
func (tm *TimeManager) ShouldStop() bool {
	return tm.Elapsed() >= tm.maximumTime
}

// PastOptimum returns true if we've exceeded the optimum time.
func (tm *TimeManager) PastOptimum() bool {
	return tm.Elapsed() >= tm.optimumTime
}

// AdjustForStability adjusts time allocation based on best move stability.
// If the best move hasn't changed for several depths, we can stop earlier.
// stability: number of consecutive depths with same best move
func (tm *TimeManager) AdjustForStability(stability int) {
	if stability >= 6 {
		tm.optimumTime = tm.optimumTime * 40 / 100
	} else if stability >= 4 {
		tm.optimumTime = tm.optimumTime * 60 / 100
	} else if stability >= 2 {
		tm.optimumTime = tm.optimumTime * 80 / 100
	}
}

// AdjustForInstability increases time when best move keeps changing.
// changes: number of best move changes in recent depths
func (tm *TimeManager) AdjustForInstability(changes int) {
	if changes >= 4 {
		tm.optimumTime = tm.optimumTime * 200 / 100
		if tm.optimumTime > tm.maximumTime {
			tm.optimumTime = tm.maximumTime
		}
	} else if changes >= 2 {
		tm.optimumTime = tm.optimumTime * 150 / 100
		if tm.optimumTime > tm.maximumTime {
			tm.optimumTime = tm.maximumTime
		}
	}
}
