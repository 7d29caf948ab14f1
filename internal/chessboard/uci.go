package chessboard

import (
	"fmt"
	"strings"
	"unicode"
)

// UCI renders a move in UCI notation (e.g. "e2e4", "e7e8q").
func (m Move) UCI() string {
	if m.Promotion != 0 {
		return fmt.Sprintf("%s%s%c", m.From, m.To, unicode.ToLower(m.Promotion))
	}
	return fmt.Sprintf("%s%s", m.From, m.To)
}

// ParseUCI parses a UCI move string into a Move, without checking legality.
func ParseUCI(s string) (Move, error) {
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("invalid UCI move: %s", s)
	}

	from, err := ParsePosition(s[0:2])
	if err != nil {
		return Move{}, fmt.Errorf("invalid UCI move %s: %w", s, err)
	}
	to, err := ParsePosition(s[2:4])
	if err != nil {
		return Move{}, fmt.Errorf("invalid UCI move %s: %w", s, err)
	}

	var promotion rune
	if len(s) == 5 {
		promotion = unicode.ToUpper(rune(s[4]))
		switch promotion {
		case Queen, Rook, Bishop, Knight:
		default:
			return Move{}, fmt.Errorf("invalid promotion piece in %s", s)
		}
	}

	return Move{From: from, To: to, Promotion: promotion}, nil
}

// LegalUCIMove parses s as UCI and returns it only if it is a legal move in
// the given position. This backs GameManager.ConvertMove (spec.md §4.2).
func LegalUCIMove(board *Board, s string) (Move, bool) {
	move, err := ParseUCI(s)
	if err != nil {
		return Move{}, false
	}
	if board.ValidateMove(move.From, move.To) != nil {
		return Move{}, false
	}
	return move, true
}

// ReplayMoves replays a slice of UCI moves from the position given by
// initialFEN, matching the engine's "authoritative replay, not incremental
// application" design (spec.md §9: move list is authoritative, board is
// derived from scratch every update). It returns false if the move list
// cannot be replayed to a legal board, signaling the caller to keep the
// previous board (spec.md §7: a warning, board left intact).
func ReplayMoves(initialFEN string, moves []string) (*Board, bool) {
	board, err := ParseFEN(initialFEN)
	if err != nil {
		board = NewBoard()
	}

	for _, uci := range moves {
		uci = strings.TrimSpace(uci)
		if uci == "" {
			continue
		}
		if board.IsCheckmate() || board.IsStalemate() {
			return nil, false
		}
		move, err := ParseUCI(uci)
		if err != nil {
			return nil, false
		}
		if board.ValidateMove(move.From, move.To) != nil {
			return nil, false
		}
		board = board.MakeMove(move.From, move.To, move.Promotion)
	}

	return board, true
}
