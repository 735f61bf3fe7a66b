package engine

import "github.com/harrierchess/engine/internal/board"

// This file composes the board package's existing bitboard primitives into
// the external-interface contract functions named by spec.md section 6:
// see_ge, attacks_by<PieceType>, check_squares, pawn_structure_index.
// ordering.go's MVV-LVA/SEE-based scoring already derives values from these
// same primitives; this file just gives the named contract its own call
// sites so movepicker.go (and future callers) don't have to inline bitboard
// math at every use.

// seeGE reports whether the static exchange evaluation of m is at least
// threshold, the spec's `see_ge(move, threshold)`.
func seeGE(pos *board.Position, m board.Move, threshold int) bool {
	return SEE(pos, m) >= threshold
}

// attacksBy returns every square attacked by any piece of type pt belonging
// to color c, the spec's `attacks_by<PieceType>(color)`.
func attacksBy(pos *board.Position, c board.Color, pt board.PieceType) board.Bitboard {
	occupied := pos.AllOccupied
	switch pt {
	case board.Pawn:
		return computePawnAttacksBB(pos, c)
	case board.Knight:
		return computeKnightAttacksBB(pos, c)
	case board.Bishop:
		return computeBishopAttacksBB(pos, c, occupied)
	case board.Rook:
		return computeRookAttacksBB(pos, c, occupied)
	case board.Queen:
		return computeQueenAttacksBB(pos, c, occupied)
	case board.King:
		bb := pos.Pieces[c][board.King]
		if bb == 0 {
			return 0
		}
		return board.KingAttacks(bb.PopLSB())
	default:
		return 0
	}
}

// computePawnAttacksBB returns every square attacked by color c's pawns.
func computePawnAttacksBB(pos *board.Position, c board.Color) board.Bitboard {
	pawns := pos.Pieces[c][board.Pawn]
	if c == board.White {
		return pawns.NorthEast() | pawns.NorthWest()
	}
	return pawns.SouthEast() | pawns.SouthWest()
}

// computeKnightAttacksBB returns every square attacked by color c's knights.
func computeKnightAttacksBB(pos *board.Position, c board.Color) board.Bitboard {
	knights := pos.Pieces[c][board.Knight]
	var attacks board.Bitboard
	for knights != 0 {
		sq := knights.PopLSB()
		attacks |= board.KnightAttacks(sq)
	}
	return attacks
}

// computeBishopAttacksBB returns every square attacked by color c's bishops.
func computeBishopAttacksBB(pos *board.Position, c board.Color, occupied board.Bitboard) board.Bitboard {
	bishops := pos.Pieces[c][board.Bishop]
	var attacks board.Bitboard
	for bishops != 0 {
		sq := bishops.PopLSB()
		attacks |= board.BishopAttacks(sq, occupied)
	}
	return attacks
}

// computeRookAttacksBB returns every square attacked by color c's rooks.
func computeRookAttacksBB(pos *board.Position, c board.Color, occupied board.Bitboard) board.Bitboard {
	rooks := pos.Pieces[c][board.Rook]
	var attacks board.Bitboard
	for rooks != 0 {
		sq := rooks.PopLSB()
		attacks |= board.RookAttacks(sq, occupied)
	}
	return attacks
}

// computeQueenAttacksBB returns every square attacked by color c's queens.
func computeQueenAttacksBB(pos *board.Position, c board.Color, occupied board.Bitboard) board.Bitboard {
	queens := pos.Pieces[c][board.Queen]
	var attacks board.Bitboard
	for queens != 0 {
		sq := queens.PopLSB()
		attacks |= board.QueenAttacks(sq, occupied)
	}
	return attacks
}

// checkSquares returns every square from which a piece of type pt would
// give check to the side to move's opponent, the spec's
// `check_squares(piecetype)`.
func checkSquares(pos *board.Position, pt board.PieceType) board.Bitboard {
	them := pos.SideToMove.Other()
	enemyKing := pos.KingSquare[them]
	occupied := pos.AllOccupied

	switch pt {
	case board.Pawn:
		return board.PawnAttacks(enemyKing, them)
	case board.Knight:
		return board.KnightAttacks(enemyKing)
	case board.Bishop:
		return board.BishopAttacks(enemyKing, occupied)
	case board.Rook:
		return board.RookAttacks(enemyKing, occupied)
	case board.Queen:
		return board.BishopAttacks(enemyKing, occupied) | board.RookAttacks(enemyKing, occupied)
	default:
		return 0
	}
}

// pawnStructureIndexOf is the spec's `pawn_structure_index()`: the bucket
// ordering.go's pawnHistory table hashes a position's pawn structure into.
func pawnStructureIndexOf(pos *board.Position) int {
	return pawnStructureIndex(pos.PawnKey)
}
