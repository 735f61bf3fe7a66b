package engine

import (
	"sync/atomic"
	"testing"

	"github.com/harrierchess/engine/internal/board"
)

func newTestWorker(pos *board.Position) *Worker {
	var stop atomic.Bool
	w := NewWorker(0, NewTranspositionTable(1), NewSharedHistory(), &stop)
	w.InitSearch(pos)
	return w
}

func TestMovePickerEnumeratesEveryLegalMoveOnce(t *testing.T) {
	pos := board.NewPosition()
	w := newTestWorker(pos)

	legal := w.pos.GenerateLegalMoves()
	want := make(map[board.Move]bool)
	for i := 0; i < legal.Len(); i++ {
		want[legal.Get(i)] = true
	}

	picker := NewMovePicker(w, board.NoMove, 6, 0, board.NoMove)
	seen := make(map[board.Move]bool)
	for {
		m := picker.Next()
		if m == board.NoMove {
			break
		}
		if seen[m] {
			t.Fatalf("move %s emitted twice", m.String())
		}
		seen[m] = true
	}

	if len(seen) != len(want) {
		t.Fatalf("picker emitted %d moves, position has %d legal moves", len(seen), len(want))
	}
	for m := range want {
		if !seen[m] {
			t.Errorf("picker never emitted legal move %s", m.String())
		}
	}
}

func TestMovePickerEmitsTTMoveFirst(t *testing.T) {
	pos := board.NewPosition()
	w := newTestWorker(pos)

	legal := w.pos.GenerateLegalMoves()
	tt := legal.Get(legal.Len() - 1)

	picker := NewMovePicker(w, tt, 6, 0, board.NoMove)
	first := picker.Next()
	if first != tt {
		t.Fatalf("expected TT move %s first, got %s", tt.String(), first.String())
	}

	for {
		m := picker.Next()
		if m == board.NoMove {
			break
		}
		if m == tt {
			t.Fatalf("TT move %s emitted a second time", tt.String())
		}
	}
}

func TestMovePickerEvasionStageEnumeratesEveryLegalMoveOnce(t *testing.T) {
	pos, err := board.ParseFEN("4k3/8/8/8/8/8/4r3/4K3 w - - 0 1")
	if err != nil {
		t.Fatalf("ParseFEN: %v", err)
	}
	w := newTestWorker(pos)
	if !w.pos.InCheck() {
		t.Fatal("test position expected to be in check")
	}

	legal := w.pos.GenerateLegalMoves()
	want := make(map[board.Move]bool)
	for i := 0; i < legal.Len(); i++ {
		want[legal.Get(i)] = true
	}

	picker := NewMovePicker(w, board.NoMove, 6, 0, board.NoMove)
	seen := make(map[board.Move]bool)
	for {
		m := picker.Next()
		if m == board.NoMove {
			break
		}
		if seen[m] {
			t.Fatalf("move %s emitted twice", m.String())
		}
		seen[m] = true
	}

	if len(seen) != len(want) {
		t.Fatalf("evasion picker emitted %d moves, position has %d legal moves", len(seen), len(want))
	}
	for m := range want {
		if !seen[m] {
			t.Errorf("evasion picker never emitted legal move %s", m.String())
		}
	}
}

func TestProbCutPickerOnlyEmitsSEEPassingCaptures(t *testing.T) {
	pos, err := board.ParseFEN("4k3/8/8/4p3/3P4/8/8/4K3 w - - 0 1")
	if err != nil {
		t.Fatalf("ParseFEN: %v", err)
	}
	w := newTestWorker(pos)

	picker := NewProbCutPicker(w, board.NoMove, 0)
	emitted := 0
	for {
		m := picker.Next()
		if m == board.NoMove {
			break
		}
		emitted++
		if !m.IsCapture(w.pos) {
			t.Fatalf("probcut picker emitted non-capture %s", m.String())
		}
		if SEE(w.pos, m) < 0 {
			t.Fatalf("probcut picker emitted SEE-losing capture %s", m.String())
		}
	}
	if emitted == 0 {
		t.Fatal("expected probcut picker to emit the free dxe5 capture")
	}
}

func TestMovePickerSkipQuietsStopsQuietStages(t *testing.T) {
	pos := board.NewPosition()
	w := newTestWorker(pos)

	picker := NewMovePicker(w, board.NoMove, 6, 0, board.NoMove)
	picker.SkipQuiets()

	for {
		m := picker.Next()
		if m == board.NoMove {
			break
		}
		if !m.IsCapture(w.pos) && !m.IsPromotion() {
			t.Fatalf("skipQuiets still emitted quiet move %s", m.String())
		}
	}
}
