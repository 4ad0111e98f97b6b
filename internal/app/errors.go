package app

import "errors"

// Engine error taxonomy. Every rejected tx surfaces one of these (possibly
// wrapped) in the tx result log and leaves state untouched.
var (
	// Validation errors: caller must correct input and resubmit.
	errInvalidStake  = errors.New("invalid stake")
	errSelfJoin      = errors.New("creator cannot join own match")
	errStakeMismatch = errors.New("deposit does not match stake")
	errInvalidMove   = errors.New("invalid move")
	errBadCommitment = errors.New("malformed commitment")

	// State errors: the caller's view of the match is stale.
	errMatchNotFound      = errors.New("match not found")
	errAlreadyJoined      = errors.New("match already joined")
	errWrongPhase         = errors.New("wrong phase")
	errAlreadyCommitted   = errors.New("already committed")
	errAlreadyRevealed    = errors.New("already revealed")
	errCommitmentMismatch = errors.New("commitment mismatch")
	errAlreadySettled     = errors.New("match already settled")

	// Temporal errors.
	errExpired       = errors.New("match deadline passed")
	errNotYetExpired = errors.New("match deadline not reached")

	// Authorization errors.
	errNotAParticipant = errors.New("not a participant")
	errNotAdmin        = errors.New("not the admin")
)
