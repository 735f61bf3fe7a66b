package engine

import (
	"testing"
	"time"

	"github.com/harrierchess/engine/internal/board"
)

func TestPoolSearchReturnsLegalMove(t *testing.T) {
	pool := NewPool(2, 16)
	pos := board.NewPosition()

	move, _ := pool.Search(pos, SearchLimits{Depth: 4, MoveTime: 2 * time.Second}, nil)
	if move == board.NoMove {
		t.Fatal("pool search returned NoMove for starting position")
	}

	legal := pos.GenerateLegalMoves()
	if !legal.Contains(move) {
		t.Fatalf("pool search returned illegal move %s", move.String())
	}
}

func TestPoolNodesAggregatesWorkers(t *testing.T) {
	pool := NewPool(3, 16)
	pos := board.NewPosition()

	pool.Search(pos, SearchLimits{Depth: 3, MoveTime: 2 * time.Second}, nil)

	if pool.Nodes() == 0 {
		t.Error("expected pool to report non-zero aggregated node count")
	}
}
