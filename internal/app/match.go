package app

import (
	"encoding/hex"
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"

	"onchainrps/internal/codec"
	"onchainrps/internal/rps"
	"onchainrps/internal/state"
)

// matchCreate escrows the creator's stake and opens a match awaiting an
// opponent. The deadline is fixed here and never extended by later phases.
func matchCreate(st *state.State, msg codec.MatchCreateTx, nowUnix int64) (*abci.ExecTxResult, error) {
	if msg.Creator == "" {
		return nil, fmt.Errorf("missing creator")
	}
	if msg.Stake == 0 || msg.Stake < st.Params.MinStake || msg.Stake > st.Params.MaxStake {
		return nil, fmt.Errorf("%w: %d outside [%d, %d]", errInvalidStake, msg.Stake, st.Params.MinStake, st.Params.MaxStake)
	}
	deadline, err := addInt64AndU64Checked(nowUnix, st.Params.TimeoutSecs, "match deadline")
	if err != nil {
		return nil, err
	}
	if err := st.Debit(msg.Creator, msg.Stake); err != nil {
		return nil, err
	}

	id := st.NextMatchID
	st.NextMatchID++
	st.Matches[id] = &state.Match{
		ID:        id,
		Creator:   msg.Creator,
		Stake:     msg.Stake,
		MoveA:     rps.MoveNone,
		MoveB:     rps.MoveNone,
		Phase:     state.PhaseAwaitingOpponent,
		Deadline:  deadline,
		CreatedAt: nowUnix,
	}

	return okEvent("MatchCreated", map[string]string{
		"matchId": fmt.Sprintf("%d", id),
		"creator": msg.Creator,
		"stake":   fmt.Sprintf("%d", msg.Stake),
	}), nil
}

func matchJoin(st *state.State, msg codec.MatchJoinTx, nowUnix int64) (*abci.ExecTxResult, error) {
	m, ok := st.Matches[msg.MatchID]
	if !ok {
		return nil, errMatchNotFound
	}
	if m.Phase != state.PhaseAwaitingOpponent {
		if m.HasJoiner() {
			return nil, errAlreadyJoined
		}
		return nil, errWrongPhase
	}
	if msg.Player == m.Creator {
		return nil, errSelfJoin
	}
	if msg.Amount != m.Stake {
		return nil, fmt.Errorf("%w: deposit=%d stake=%d", errStakeMismatch, msg.Amount, m.Stake)
	}
	if nowUnix >= m.Deadline {
		return nil, errExpired
	}
	if err := st.Debit(msg.Player, m.Stake); err != nil {
		return nil, err
	}

	joiner := msg.Player
	m.Joiner = &joiner
	m.Phase = state.PhaseAwaitingCommitments

	return okEvent("PlayerJoined", map[string]string{
		"matchId": fmt.Sprintf("%d", m.ID),
		"joiner":  msg.Player,
	}), nil
}

func matchCommit(st *state.State, msg codec.MatchCommitTx, nowUnix int64) (*abci.ExecTxResult, error) {
	m, ok := st.Matches[msg.MatchID]
	if !ok {
		return nil, errMatchNotFound
	}
	isCreator, err := participantSide(m, msg.Player)
	if err != nil {
		return nil, err
	}
	if m.Phase != state.PhaseAwaitingCommitments {
		return nil, errWrongPhase
	}
	if nowUnix >= m.Deadline {
		return nil, errExpired
	}
	if len(msg.Commitment) != rps.CommitmentSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", errBadCommitment, len(msg.Commitment), rps.CommitmentSize)
	}

	if isCreator {
		if m.CommitmentA != nil {
			return nil, errAlreadyCommitted
		}
		m.CommitmentA = append([]byte(nil), msg.Commitment...)
	} else {
		if m.CommitmentB != nil {
			return nil, errAlreadyCommitted
		}
		m.CommitmentB = append([]byte(nil), msg.Commitment...)
	}

	// Commit order is irrelevant; the phase advances once both slots hold.
	if m.CommitmentA != nil && m.CommitmentB != nil {
		m.Phase = state.PhaseAwaitingReveals
	}

	return okEvent("MoveCommitted", map[string]string{
		"matchId":    fmt.Sprintf("%d", m.ID),
		"player":     msg.Player,
		"commitment": hex.EncodeToString(msg.Commitment),
	}), nil
}

// matchReveal verifies the caller's commitment and records the move. The
// second reveal settles the match in the same tx: payouts and the phase
// change land together or not at all (the caller stages state per tx).
func matchReveal(st *state.State, msg codec.MatchRevealTx, nowUnix int64) (*abci.ExecTxResult, error) {
	m, ok := st.Matches[msg.MatchID]
	if !ok {
		return nil, errMatchNotFound
	}
	isCreator, err := participantSide(m, msg.Player)
	if err != nil {
		return nil, err
	}
	if m.Phase != state.PhaseAwaitingReveals {
		return nil, errWrongPhase
	}
	if nowUnix >= m.Deadline {
		return nil, errExpired
	}
	move := rps.Move(msg.Move)
	if !move.Valid() {
		return nil, fmt.Errorf("%w: %d", errInvalidMove, msg.Move)
	}

	var stored []byte
	if isCreator {
		if m.RevealedA {
			return nil, errAlreadyRevealed
		}
		stored = m.CommitmentA
	} else {
		if m.RevealedB {
			return nil, errAlreadyRevealed
		}
		stored = m.CommitmentB
	}

	okCommit, err := rps.VerifyCommitment(stored, move, msg.Nonce, msg.Player)
	if err != nil {
		return nil, err
	}
	if !okCommit {
		return nil, errCommitmentMismatch
	}

	if isCreator {
		m.MoveA = move
		m.RevealedA = true
	} else {
		m.MoveB = move
		m.RevealedB = true
	}

	res := okEvent("MoveRevealed", map[string]string{
		"matchId": fmt.Sprintf("%d", m.ID),
		"player":  msg.Player,
		"move":    move.String(),
		"nonce":   hex.EncodeToString(msg.Nonce),
	})

	if m.RevealedA && m.RevealedB {
		finish, err := settle(st, m)
		if err != nil {
			return nil, err
		}
		res.Events = append(res.Events, finish)
	}
	return res, nil
}

// settle runs once, the instant both reveal flags hold. A tie refunds each
// side its own stake in two separate transfers; otherwise the winner takes
// the whole pot in one.
func settle(st *state.State, m *state.Match) (abci.Event, error) {
	winner := ""
	var amount uint64

	switch rps.Compare(m.MoveA, m.MoveB) {
	case rps.OutcomeTie:
		if err := st.Credit(m.Creator, m.Stake); err != nil {
			return abci.Event{}, err
		}
		if err := st.Credit(*m.Joiner, m.Stake); err != nil {
			return abci.Event{}, err
		}
	case rps.OutcomeA:
		pot, err := mulU64Checked(m.Stake, 2, "pot")
		if err != nil {
			return abci.Event{}, err
		}
		if err := st.Credit(m.Creator, pot); err != nil {
			return abci.Event{}, err
		}
		winner, amount = m.Creator, pot
	case rps.OutcomeB:
		pot, err := mulU64Checked(m.Stake, 2, "pot")
		if err != nil {
			return abci.Event{}, err
		}
		if err := st.Credit(*m.Joiner, pot); err != nil {
			return abci.Event{}, err
		}
		winner, amount = *m.Joiner, pot
	}

	m.Phase = state.PhaseSettled

	return event("GameFinished", map[string]string{
		"matchId": fmt.Sprintf("%d", m.ID),
		"winner":  winner,
		"amount":  fmt.Sprintf("%d", amount),
	}), nil
}

// matchTimeout force-settles any unsettled match at or past its deadline,
// refunding whatever stake is escrowed. The only recovery path for a stalled
// match; callable by anyone.
func matchTimeout(st *state.State, msg codec.MatchTimeoutTx, nowUnix int64) (*abci.ExecTxResult, error) {
	m, ok := st.Matches[msg.MatchID]
	if !ok {
		return nil, errMatchNotFound
	}
	if m.Phase == state.PhaseSettled {
		return nil, errAlreadySettled
	}
	if nowUnix < m.Deadline {
		return nil, fmt.Errorf("%w: now=%d deadline=%d", errNotYetExpired, nowUnix, m.Deadline)
	}

	if m.Creator != "" {
		if err := st.Credit(m.Creator, m.Stake); err != nil {
			return nil, err
		}
	}
	if m.HasJoiner() {
		if err := st.Credit(*m.Joiner, m.Stake); err != nil {
			return nil, err
		}
	}
	m.Phase = state.PhaseSettled

	return okEvent("GameTimeout", map[string]string{
		"matchId": fmt.Sprintf("%d", m.ID),
	}), nil
}

// participantSide reports whether the player is the creator (true) or the
// joiner (false); anyone else is rejected.
func participantSide(m *state.Match, player string) (bool, error) {
	if player == "" {
		return false, errNotAParticipant
	}
	if player == m.Creator {
		return true, nil
	}
	if m.HasJoiner() && player == *m.Joiner {
		return false, nil
	}
	return false, errNotAParticipant
}
