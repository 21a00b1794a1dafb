/*
Package chess adapts a rules engine to the game coordinator. The coordinator only needs
move application in UCI notation, the side to move, a position fingerprint and terminal
detection; the shipped implementation wraps github.com/notnil/chess.
*/
package chess

import (
	"errors"
	"strings"

	"github.com/notnil/chess"
)

// Color is the side to move, "w" or "b".
type Color string

const (
	White Color = "w"
	Black Color = "b"
)

// ErrIllegalMove is returned for moves the engine rejects.
var ErrIllegalMove = errors.New("illegal move")

// Outcome describes how a game ended. Winner is empty for draws.
type Outcome struct {
	Over   bool
	Winner Color
	Method string
}

// Engine is the rules capability the coordinator consumes.
type Engine interface {
	// Move applies a move given as source and target squares plus an optional promotion piece.
	Move(from, to, promotion string) error

	// Turn returns the side to move.
	Turn() Color

	// FEN returns the current position.
	FEN() string

	// Outcome reports whether the game is over.
	Outcome() Outcome
}

// Factory creates a fresh engine at the starting position.
type Factory func() Engine

// notnilEngine wraps *chess.Game.
type notnilEngine struct {
	game *chess.Game
}

// New returns an Engine at the standard starting position.
func New() Engine {
	return &notnilEngine{game: chess.NewGame(chess.UseNotation(chess.UCINotation{}))}
}

// FromFEN returns an Engine starting at the given position.
func FromFEN(fen string) (Engine, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, err
	}
	return &notnilEngine{game: chess.NewGame(opt, chess.UseNotation(chess.UCINotation{}))}, nil
}

func (e *notnilEngine) Move(from, to, promotion string) error {
	uci := strings.ToLower(strings.TrimSpace(from) + strings.TrimSpace(to) + strings.TrimSpace(promotion))
	if len(uci) < 4 || len(uci) > 5 {
		return ErrIllegalMove
	}
	if e.game.Outcome() != chess.NoOutcome {
		return ErrIllegalMove
	}
	if err := e.game.MoveStr(uci); err != nil {
		return ErrIllegalMove
	}
	return nil
}

func (e *notnilEngine) Turn() Color {
	if e.game.Position().Turn() == chess.White {
		return White
	}
	return Black
}

func (e *notnilEngine) FEN() string {
	return e.game.FEN()
}

func (e *notnilEngine) Outcome() Outcome {
	switch e.game.Outcome() {
	case chess.WhiteWon:
		return Outcome{Over: true, Winner: White, Method: methodName(e.game.Method())}
	case chess.BlackWon:
		return Outcome{Over: true, Winner: Black, Method: methodName(e.game.Method())}
	case chess.Draw:
		return Outcome{Over: true, Method: methodName(e.game.Method())}
	}
	return Outcome{}
}

func methodName(m chess.Method) string {
	switch m {
	case chess.Checkmate:
		return "checkmate"
	case chess.Stalemate:
		return "stalemate"
	case chess.InsufficientMaterial:
		return "insufficient_material"
	case chess.ThreefoldRepetition, chess.FivefoldRepetition:
		return "repetition"
	case chess.FiftyMoveRule, chess.SeventyFiveMoveRule:
		return "move_rule"
	}
	return "draw"
}
