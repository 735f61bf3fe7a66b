package engine

import "github.com/harrierchess/engine/internal/board"

// pickerStage enumerates the move picker's state machine states. The three
// entry schedules (main/quiescence, evasion, probcut) share one enum so a
// single switch drives next().
type pickerStage int

const (
	stageMainTT pickerStage = iota
	stageCaptureInit
	stageGoodCapture
	stageQuietInit
	stageGoodQuiet
	stageBadCapture
	stageBadQuiet

	stageEvasionTT
	stageEvasionInit
	stageEvasion

	stageProbCutTT
	stageProbCutInit
	stageProbCut

	stageDone
)

// MovePicker lazily enumerates pseudo-legal moves in ordered stages: the TT
// move first, then good captures, then good quiets, then the deferred bad
// captures and bad quiets. Each move is returned at most once.
type MovePicker struct {
	w   *Worker
	pos *board.Position

	ttMove   board.Move
	depth    int
	ply      int
	prevMove board.Move
	inCheck  bool

	threshold  int // SEE threshold, ProbCut mode only
	skipQuiets bool

	stage pickerStage

	captures      *board.MoveList
	captureScores []int
	capIdx        int

	badCaptures      []board.Move
	badCaptureScores []int

	quiets      *board.MoveList
	quietScores []int
	quietIdx    int

	badQuiets      []board.Move
	badQuietScores []int
	badQuietIdx    int

	// Threat bitboards for the quiet-scoring threat/escape/en-prise terms,
	// computed once per node in stageQuietInit.
	threatenedByPawn  board.Bitboard
	threatenedByMinor board.Bitboard
	threatenedByRook  board.Bitboard
	threatenedPieces  board.Bitboard

	evasions      *board.MoveList
	evasionScores []int
	evasionIdx    int
}

// NewMovePicker constructs a picker for the main search. Every depth uses
// the same stage graph; depth only sets the quiet-move sort threshold.
// Quiescence search generates its captures directly and does not use this
// picker.
func NewMovePicker(w *Worker, ttMove board.Move, depth, ply int, prevMove board.Move) *MovePicker {
	mp := &MovePicker{
		w:        w,
		pos:      w.pos,
		ttMove:   ttMove,
		depth:    depth,
		ply:      ply,
		prevMove: prevMove,
		inCheck:  w.pos.InCheck(),
	}
	if mp.inCheck {
		mp.stage = stageEvasionTT
	} else {
		mp.stage = stageMainTT
	}
	if !mp.ttMoveIsPseudoLegal() {
		mp.stage++
	}
	return mp
}

// NewProbCutPicker constructs a picker restricted to captures with
// SEE >= threshold, for ProbCut.
func NewProbCutPicker(w *Worker, ttMove board.Move, threshold int) *MovePicker {
	mp := &MovePicker{
		w:         w,
		pos:       w.pos,
		ttMove:    ttMove,
		threshold: threshold,
		stage:     stageProbCutTT,
	}
	if !mp.ttMoveIsPseudoLegal() || !mp.ttMove.IsCapture(mp.pos) || !seeGE(mp.pos, mp.ttMove, threshold) {
		mp.stage++
	}
	return mp
}

// ttMoveIsPseudoLegal reports whether the picker's TT move is present in the
// position's legal move list (the board package only generates legal moves,
// so this doubles as the spec's "legal" check for ttMove's pseudo-legality).
func (mp *MovePicker) ttMoveIsPseudoLegal() bool {
	if mp.ttMove == board.NoMove {
		return false
	}
	moves := mp.pos.GenerateLegalMoves()
	return moves.Contains(mp.ttMove)
}

// SkipQuiets disables the quiet stages for the remainder of this picker's
// lifetime (used by late-move pruning once enough quiets have been tried).
func (mp *MovePicker) SkipQuiets() {
	mp.skipQuiets = true
}

// quietThreshold is the partial-sort cutoff for "interesting" quiets,
// spec.md 4.G's `-3560 * depth`.
func quietThreshold(depth int) int {
	return -3560 * depth
}

// scoreCapture implements spec.md 4.G's capture scoring formula:
// 7*PieceValue(victim) + captureHistory[moved_piece][to][victim_type].
func (mp *MovePicker) scoreCapture(m board.Move) int {
	pos := mp.pos
	attacker := pos.PieceAt(m.From())
	var victimType board.PieceType
	if m.IsEnPassant() {
		victimType = board.Pawn
	} else {
		victimType = pos.PieceAt(m.To()).Type()
	}
	score := 7*pieceValues[victimType] + mp.w.orderer.GetCaptureHistoryScore(attacker, m.To(), victimType)
	return score
}

// computeThreats builds the attack bitboards spec.md 4.G's quiet scoring
// uses for its threat/escape and en-prise terms, once per node.
func (mp *MovePicker) computeThreats() {
	pos := mp.pos
	us := pos.SideToMove
	them := us.Other()

	mp.threatenedByPawn = attacksBy(pos, them, board.Pawn)
	mp.threatenedByMinor = attacksBy(pos, them, board.Knight) | attacksBy(pos, them, board.Bishop) | mp.threatenedByPawn
	mp.threatenedByRook = attacksBy(pos, them, board.Rook) | mp.threatenedByMinor

	mp.threatenedPieces = (pos.Pieces[us][board.Queen] & mp.threatenedByRook) |
		(pos.Pieces[us][board.Rook] & mp.threatenedByMinor) |
		((pos.Pieces[us][board.Knight] | pos.Pieces[us][board.Bishop]) & mp.threatenedByPawn)
}

// scoreQuiet implements spec.md 4.G's quiet scoring formula: butterfly,
// pawn-structure history, continuation history, check/threat/en-prise
// bonuses and the low-ply bonus near the root.
//
// The continuation-history terms (continuation[0..5]) are approximated by
// the countermove-history table already maintained in ordering.go: building
// the full six-ply continuation stack the original engine threads through
// every node is out of scope here, and one ply of countermove history
// already captures most of that signal.
func (mp *MovePicker) scoreQuiet(m board.Move) int {
	pos := mp.pos
	orderer := mp.w.orderer
	from, to := m.From(), m.To()
	pc := pos.PieceAt(from)
	pt := pc.Type()

	score := 2 * orderer.history[from][to]
	score += 2 * int(orderer.pawnHistory[pawnStructureIndexOf(pos)][pc][to])

	if mp.prevMove != board.NoMove {
		prevPiece := pos.PieceAt(mp.prevMove.To())
		score += orderer.GetCountermoveHistoryScore(mp.prevMove, prevPiece, pc, to) / 3
	}

	if checkSquares(pos, pt)&board.SquareBB(to) != 0 {
		score += 16384
	}

	fromBit := board.SquareBB(from)
	toBit := board.SquareBB(to)

	if mp.threatenedPieces&fromBit != 0 {
		switch {
		case pt == board.Queen && mp.threatenedByRook&toBit == 0:
			score += 51700
		case pt == board.Rook && mp.threatenedByMinor&toBit == 0:
			score += 25600
		case mp.threatenedByPawn&toBit == 0:
			score += 14450
		}
	}

	if pt == board.Queen && mp.threatenedByRook&toBit != 0 {
		score -= 49000
	} else if pt == board.Rook && mp.threatenedByMinor&toBit != 0 {
		score -= 24335
	}

	if mp.ply < LowPlySize {
		score += 8 * int(orderer.lowPlyHistory[mp.ply][int(from)*64+int(to)]) / (1 + 2*mp.ply)
	}

	return score
}

// scoreEvasion implements spec.md 4.G's evasion scoring: captures always
// outrank quiets, quiets fall back to butterfly/pawn history.
func (mp *MovePicker) scoreEvasion(m board.Move) int {
	pos := mp.pos
	if m.IsCapture(pos) {
		var victimType board.PieceType
		if m.IsEnPassant() {
			victimType = board.Pawn
		} else {
			victimType = pos.PieceAt(m.To()).Type()
		}
		return pieceValues[victimType] + (1 << 28)
	}
	from, to := m.From(), m.To()
	pc := pos.PieceAt(from)
	orderer := mp.w.orderer
	score := orderer.history[from][to]
	score += int(orderer.pawnHistory[pawnStructureIndexOf(pos)][pc][to])
	return score
}

// partialSort moves every move satisfying keep to a prefix sorted
// descending by score, leaving the rest in unspecified order in the tail.
// This is spec.md 4.G's partial_insertion_sort.
func partialSort(moves *board.MoveList, scores []int, keep func(score int) bool) {
	n := moves.Len()
	sortedEnd := 0
	for p := 1; p < n; p++ {
		if !keep(scores[p]) {
			continue
		}
		sortedEnd++
		if sortedEnd == p {
			continue
		}
		mv, sc := moves.Get(p), scores[p]
		moves.Set(p, moves.Get(sortedEnd))
		scores[p] = scores[sortedEnd]

		q := sortedEnd
		for q > 0 && scores[q-1] < sc {
			moves.Set(q, moves.Get(q-1))
			scores[q] = scores[q-1]
			q--
		}
		moves.Set(q, mv)
		scores[q] = sc
	}
}

// Next returns the next move in ordered stages, or board.NoMove when
// exhausted.
func (mp *MovePicker) Next() board.Move {
	for {
		switch mp.stage {
		case stageMainTT, stageEvasionTT, stageProbCutTT:
			mp.stage++
			return mp.ttMove

		case stageCaptureInit, stageProbCutInit:
			mp.captures = mp.pos.GenerateCaptures()
			mp.captureScores = make([]int, mp.captures.Len())
			for i := 0; i < mp.captures.Len(); i++ {
				mp.captureScores[i] = mp.scoreCapture(mp.captures.Get(i))
			}
			partialSort(mp.captures, mp.captureScores, func(int) bool { return true })
			mp.capIdx = 0
			mp.stage++

		case stageGoodCapture:
			for mp.capIdx < mp.captures.Len() {
				m := mp.captures.Get(mp.capIdx)
				score := mp.captureScores[mp.capIdx]
				mp.capIdx++
				if m == mp.ttMove {
					continue
				}
				if seeGE(mp.pos, m, -score/18) {
					return m
				}
				mp.badCaptures = append(mp.badCaptures, m)
				mp.badCaptureScores = append(mp.badCaptureScores, score)
			}
			mp.stage++

		case stageQuietInit:
			if mp.skipQuiets {
				mp.stage = stageBadCapture
				continue
			}
			mp.quiets = mp.pos.GenerateLegalMoves()
			// Filter down to quiets only (captures and promotions, including
			// push promotions, already enumerated above).
			filtered := board.NewMoveList()
			for i := 0; i < mp.quiets.Len(); i++ {
				m := mp.quiets.Get(i)
				if !m.IsCapture(mp.pos) && !m.IsPromotion() {
					filtered.Add(m)
				}
			}
			mp.quiets = filtered
			mp.computeThreats()
			mp.quietScores = make([]int, mp.quiets.Len())
			for i := 0; i < mp.quiets.Len(); i++ {
				mp.quietScores[i] = mp.scoreQuiet(mp.quiets.Get(i))
			}
			threshold := quietThreshold(mp.depth)
			partialSort(mp.quiets, mp.quietScores, func(score int) bool { return score >= threshold })
			mp.quietIdx = 0
			mp.stage++

		case stageGoodQuiet:
			if mp.skipQuiets {
				mp.stage = stageBadCapture
				continue
			}
			threshold := quietThreshold(mp.depth)
			for mp.quietIdx < mp.quiets.Len() {
				m := mp.quiets.Get(mp.quietIdx)
				score := mp.quietScores[mp.quietIdx]
				mp.quietIdx++
				if m == mp.ttMove {
					continue
				}
				if score > -7998 || score <= threshold {
					return m
				}
				// Remaining quiets from here on are bad.
				mp.badQuiets = append(mp.badQuiets, m)
				mp.badQuietScores = append(mp.badQuietScores, score)
				for ; mp.quietIdx < mp.quiets.Len(); mp.quietIdx++ {
					mp.badQuiets = append(mp.badQuiets, mp.quiets.Get(mp.quietIdx))
					mp.badQuietScores = append(mp.badQuietScores, mp.quietScores[mp.quietIdx])
				}
				break
			}
			mp.stage++

		case stageBadCapture:
			if len(mp.badCaptures) > 0 {
				m := mp.badCaptures[0]
				mp.badCaptures = mp.badCaptures[1:]
				return m
			}
			mp.stage++

		case stageBadQuiet:
			if mp.skipQuiets {
				return board.NoMove
			}
			if len(mp.badQuiets) > 0 {
				m := mp.badQuiets[0]
				mp.badQuiets = mp.badQuiets[1:]
				return m
			}
			return board.NoMove

		case stageEvasionInit:
			mp.evasions = mp.pos.GenerateLegalMoves()
			mp.evasionScores = make([]int, mp.evasions.Len())
			for i := 0; i < mp.evasions.Len(); i++ {
				mp.evasionScores[i] = mp.scoreEvasion(mp.evasions.Get(i))
			}
			partialSort(mp.evasions, mp.evasionScores, func(int) bool { return true })
			mp.evasionIdx = 0
			mp.stage++

		case stageEvasion:
			for mp.evasionIdx < mp.evasions.Len() {
				m := mp.evasions.Get(mp.evasionIdx)
				mp.evasionIdx++
				if m == mp.ttMove {
					continue
				}
				return m
			}
			return board.NoMove

		case stageProbCut:
			for mp.capIdx < mp.captures.Len() {
				m := mp.captures.Get(mp.capIdx)
				mp.capIdx++
				if m == mp.ttMove {
					continue
				}
				if seeGE(mp.pos, m, mp.threshold) {
					return m
				}
			}
			return board.NoMove

		default:
			return board.NoMove
		}
	}
}
