package rps

import "fmt"

// Move is the wire encoding of a player's throw.
// 0 is the "not revealed yet" sentinel and is never a valid reveal.
type Move uint8

const (
	MoveNone     Move = 0
	MoveRock     Move = 1
	MovePaper    Move = 2
	MoveScissors Move = 3
)

func (m Move) Valid() bool {
	return m == MoveRock || m == MovePaper || m == MoveScissors
}

func (m Move) String() string {
	switch m {
	case MoveNone:
		return "none"
	case MoveRock:
		return "rock"
	case MovePaper:
		return "paper"
	case MoveScissors:
		return "scissors"
	default:
		return fmt.Sprintf("move(%d)", uint8(m))
	}
}

// Outcome is the result of comparing two revealed moves.
type Outcome uint8

const (
	OutcomeTie Outcome = 0
	OutcomeA   Outcome = 1
	OutcomeB   Outcome = 2
)

// Compare applies the fixed relation: rock beats scissors, paper beats rock,
// scissors beats paper. Both moves must be valid; callers enforce that at
// reveal time.
func Compare(a, b Move) Outcome {
	if a == b {
		return OutcomeTie
	}
	switch {
	case a == MoveRock && b == MoveScissors,
		a == MovePaper && b == MoveRock,
		a == MoveScissors && b == MovePaper:
		return OutcomeA
	default:
		return OutcomeB
	}
}
