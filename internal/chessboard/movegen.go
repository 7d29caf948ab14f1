package chessboard

import "unicode"

// Move is a single legal move: a from/to square pair plus an optional
// promotion piece (0 when the move doesn't promote).
type Move struct {
	From      Position
	To        Position
	Promotion rune
}

var bishopDirs = [][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
var rookDirs = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
var queenDirs = append(append([][2]int{}, bishopDirs...), rookDirs...)
var knightOffsets = [][2]int{{2, 1}, {2, -1}, {-2, 1}, {-2, -1}, {1, 2}, {1, -2}, {-1, 2}, {-1, -2}}

func inBounds(file, rank int) bool {
	return file >= 0 && file < 8 && rank >= 0 && rank < 8
}

// LegalMoves enumerates every legal move for the side to move. It backs the
// vote tracker's random-move fallback (when a turn's vote window closes with
// no tally) and is the exhaustive counterpart to Board.ValidateMove, which
// only checks a single candidate.
func LegalMoves(board *Board) []Move {
	var moves []Move
	isWhite := board.WhiteToMove

	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			piece := board.Squares[rank][file]
			if piece == 0 || IsWhitePiece(piece) != isWhite {
				continue
			}

			from := Position{File: file, Rank: rank}
			switch unicode.ToUpper(piece) {
			case Pawn:
				moves = append(moves, pawnMoves(board, from, isWhite)...)
			case Knight:
				moves = append(moves, knightMoves(board, from, isWhite)...)
			case Bishop:
				moves = append(moves, slidingMoves(board, from, isWhite, bishopDirs)...)
			case Rook:
				moves = append(moves, slidingMoves(board, from, isWhite, rookDirs)...)
			case Queen:
				moves = append(moves, slidingMoves(board, from, isWhite, queenDirs)...)
			case King:
				moves = append(moves, kingMoves(board, from, isWhite)...)
			}
		}
	}

	return moves
}

func legal(board *Board, from, to Position) bool {
	return board.ValidateMove(from, to) == nil
}

func pawnMoves(board *Board, from Position, isWhite bool) []Move {
	var moves []Move
	dir, startRank, promoRank := 1, 1, 7
	if !isWhite {
		dir, startRank, promoRank = -1, 6, 0
	}

	to := Position{File: from.File, Rank: from.Rank + dir}
	if inBounds(to.File, to.Rank) && board.GetPiece(to) == 0 {
		if to.Rank == promoRank {
			for _, p := range []rune{Queen, Rook, Bishop, Knight} {
				if legal(board, from, to) {
					moves = append(moves, Move{From: from, To: to, Promotion: p})
				}
			}
		} else if legal(board, from, to) {
			moves = append(moves, Move{From: from, To: to})
		}
	}

	if from.Rank == startRank {
		two := Position{File: from.File, Rank: from.Rank + 2*dir}
		mid := Position{File: from.File, Rank: from.Rank + dir}
		if inBounds(two.File, two.Rank) && board.GetPiece(mid) == 0 && board.GetPiece(two) == 0 {
			if legal(board, from, two) {
				moves = append(moves, Move{From: from, To: two})
			}
		}
	}

	for _, df := range []int{-1, 1} {
		capTo := Position{File: from.File + df, Rank: from.Rank + dir}
		if !inBounds(capTo.File, capTo.Rank) {
			continue
		}
		dest := board.GetPiece(capTo)
		isCapture := dest != 0 && IsWhitePiece(dest) != isWhite
		isEP := capTo.String() == board.EnPassantSquare

		if !isCapture && !isEP {
			continue
		}
		if capTo.Rank == promoRank {
			for _, p := range []rune{Queen, Rook, Bishop, Knight} {
				if legal(board, from, capTo) {
					moves = append(moves, Move{From: from, To: capTo, Promotion: p})
				}
			}
		} else if legal(board, from, capTo) {
			moves = append(moves, Move{From: from, To: capTo})
		}
	}

	return moves
}

func knightMoves(board *Board, from Position, isWhite bool) []Move {
	var moves []Move
	for _, off := range knightOffsets {
		to := Position{File: from.File + off[0], Rank: from.Rank + off[1]}
		if !inBounds(to.File, to.Rank) {
			continue
		}
		if dest := board.GetPiece(to); dest != 0 && IsWhitePiece(dest) == isWhite {
			continue
		}
		if legal(board, from, to) {
			moves = append(moves, Move{From: from, To: to})
		}
	}
	return moves
}

func slidingMoves(board *Board, from Position, isWhite bool, dirs [][2]int) []Move {
	var moves []Move
	for _, d := range dirs {
		for dist := 1; dist < 8; dist++ {
			to := Position{File: from.File + d[0]*dist, Rank: from.Rank + d[1]*dist}
			if !inBounds(to.File, to.Rank) {
				break
			}
			dest := board.GetPiece(to)
			if dest != 0 && IsWhitePiece(dest) == isWhite {
				break
			}
			if legal(board, from, to) {
				moves = append(moves, Move{From: from, To: to})
			}
			if dest != 0 {
				break
			}
		}
	}
	return moves
}

func kingMoves(board *Board, from Position, isWhite bool) []Move {
	var moves []Move
	for dr := -1; dr <= 1; dr++ {
		for df := -1; df <= 1; df++ {
			if dr == 0 && df == 0 {
				continue
			}
			to := Position{File: from.File + df, Rank: from.Rank + dr}
			if !inBounds(to.File, to.Rank) {
				continue
			}
			if dest := board.GetPiece(to); dest != 0 && IsWhitePiece(dest) == isWhite {
				continue
			}
			if legal(board, from, to) {
				moves = append(moves, Move{From: from, To: to})
			}
		}
	}

	for _, toFile := range []int{2, 6} {
		to := Position{File: toFile, Rank: from.Rank}
		if legal(board, from, to) {
			moves = append(moves, Move{From: from, To: to})
		}
	}

	return moves
}
