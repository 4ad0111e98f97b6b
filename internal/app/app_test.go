package app

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	abci "github.com/cometbft/cometbft/abci/types"

	"onchainrps/internal/rps"
	"onchainrps/internal/state"
)

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func txBytes(t *testing.T, typ string, value any) []byte {
	t.Helper()
	return mustMarshal(t, map[string]any{
		"type":  typ,
		"value": value,
	})
}

// Deterministic per-identity keys so tests can sign without fixtures.
func testEd25519Key(id string) (ed25519.PublicKey, ed25519.PrivateKey) {
	seed := sha256.Sum256([]byte("rps-test-key|" + id))
	priv := ed25519.NewKeyFromSeed(seed[:])
	return priv.Public().(ed25519.PublicKey), priv
}

// Nonces only need to strictly increase per signer; a global counter does.
var testNonce atomic.Uint64

func txBytesSigned(t *testing.T, typ string, value any, signer string) []byte {
	t.Helper()
	valueBytes := mustMarshal(t, value)
	nonce := strconv.FormatUint(testNonce.Add(1), 10)
	_, priv := testEd25519Key(signer)
	sig := ed25519.Sign(priv, txAuthSignBytes(typ, valueBytes, nonce, signer))
	return mustMarshal(t, map[string]any{
		"type":   typ,
		"value":  json.RawMessage(valueBytes),
		"nonce":  nonce,
		"signer": signer,
		"sig":    sig,
	})
}

func findEvent(events []abci.Event, typ string) *abci.Event {
	for i := range events {
		if events[i].Type == typ {
			return &events[i]
		}
	}
	return nil
}

func countEvents(events []abci.Event, typ string) int {
	n := 0
	for i := range events {
		if events[i].Type == typ {
			n++
		}
	}
	return n
}

func attr(ev *abci.Event, key string) string {
	if ev == nil {
		return ""
	}
	for _, a := range ev.Attributes {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

func parseU64(t *testing.T, s string) uint64 {
	t.Helper()
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		t.Fatalf("parse uint64 %q: %v", s, err)
	}
	return n
}

func testGenesisParams() state.Params {
	return state.Params{
		Admin:       "ops",
		MinStake:    1,
		MaxStake:    1_000_000,
		TimeoutSecs: 100,
	}
}

func newTestApp(t *testing.T) *RPSApp {
	t.Helper()
	a, err := New(t.TempDir(), testGenesisParams())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func mustOk(t *testing.T, res *abci.ExecTxResult) *abci.ExecTxResult {
	t.Helper()
	if res.Code != 0 {
		t.Fatalf("expected ok, got code=%d log=%q", res.Code, res.Log)
	}
	return res
}

func mustFail(t *testing.T, res *abci.ExecTxResult, wantLog string) *abci.ExecTxResult {
	t.Helper()
	if res.Code == 0 {
		t.Fatalf("expected failure containing %q, got ok", wantLog)
	}
	if wantLog != "" && !strings.Contains(res.Log, wantLog) {
		t.Fatalf("expected log containing %q, got %q", wantLog, res.Log)
	}
	return res
}

func mintTestTokens(t *testing.T, a *RPSApp, height int64, to string, amount uint64) {
	t.Helper()
	mustOk(t, a.deliverTx(txBytes(t, "bank/mint", map[string]any{"to": to, "amount": amount}), height, 0))
}

func registerTestAccount(t *testing.T, a *RPSApp, height int64, id string) {
	t.Helper()
	pub, _ := testEd25519Key(id)
	mustOk(t, a.deliverTx(txBytesSigned(t, "auth/register_account", map[string]any{
		"account": id,
		"pubKey":  []byte(pub),
	}, id), height, 0))
}

func testNonceBytes(tag byte) []byte {
	nonce := make([]byte, rps.NonceSize)
	for i := range nonce {
		nonce[i] = tag
	}
	return nonce
}

func testCommitment(t *testing.T, move rps.Move, nonce []byte, identity string) []byte {
	t.Helper()
	c, err := rps.Commitment(move, nonce, identity)
	if err != nil {
		t.Fatalf("Commitment: %v", err)
	}
	return c
}

// setupOpenMatch funds and registers alice, then creates a stake-50 match at
// now=0 (deadline 100 with the test genesis timeout).
func setupOpenMatch(t *testing.T, a *RPSApp) uint64 {
	t.Helper()
	const height = int64(1)

	mintTestTokens(t, a, height, "alice", 1000)
	registerTestAccount(t, a, height, "alice")

	res := mustOk(t, a.deliverTx(txBytesSigned(t, "rps/create_match", map[string]any{
		"creator": "alice",
		"stake":   uint64(50),
	}, "alice"), height, 0))
	return parseU64(t, attr(findEvent(res.Events, "MatchCreated"), "matchId"))
}

// setupJoinedMatch additionally funds/registers bob and joins him.
func setupJoinedMatch(t *testing.T, a *RPSApp) uint64 {
	t.Helper()
	const height = int64(1)

	matchID := setupOpenMatch(t, a)
	mintTestTokens(t, a, height, "bob", 1000)
	registerTestAccount(t, a, height, "bob")
	mustOk(t, a.deliverTx(txBytesSigned(t, "rps/join_match", map[string]any{
		"player":  "bob",
		"matchId": matchID,
		"amount":  uint64(50),
	}, "bob"), height, 0))
	return matchID
}

// setupCommittedMatch takes the joined match through both commitments.
func setupCommittedMatch(t *testing.T, a *RPSApp, moveA, moveB rps.Move) (matchID uint64, nonceA, nonceB []byte) {
	t.Helper()
	const height = int64(1)

	matchID = setupJoinedMatch(t, a)
	nonceA = testNonceBytes(0xaa)
	nonceB = testNonceBytes(0xbb)

	mustOk(t, a.deliverTx(txBytesSigned(t, "rps/commit_move", map[string]any{
		"player":     "alice",
		"matchId":    matchID,
		"commitment": testCommitment(t, moveA, nonceA, "alice"),
	}, "alice"), height, 0))
	mustOk(t, a.deliverTx(txBytesSigned(t, "rps/commit_move", map[string]any{
		"player":     "bob",
		"matchId":    matchID,
		"commitment": testCommitment(t, moveB, nonceB, "bob"),
	}, "bob"), height, 0))
	return matchID, nonceA, nonceB
}

func revealTx(t *testing.T, player string, matchID uint64, move rps.Move, nonce []byte) []byte {
	t.Helper()
	return txBytesSigned(t, "rps/reveal_move", map[string]any{
		"player":  player,
		"matchId": matchID,
		"move":    uint8(move),
		"nonce":   nonce,
	}, player)
}

// ---- Create / join ----

func TestCreateMatch_EscrowsStakeAndOpensMatch(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)

	matchID := setupOpenMatch(t, a)

	if got := a.st.Balance("alice"); got != 950 {
		t.Fatalf("expected alice balance 950 after escrow, got %d", got)
	}
	m := a.st.Matches[matchID]
	if m == nil {
		t.Fatalf("missing match %d", matchID)
	}
	if m.Phase != state.PhaseAwaitingOpponent {
		t.Fatalf("expected awaitingOpponent, got %q", m.Phase)
	}
	if m.Stake != 50 || m.Creator != "alice" || m.HasJoiner() {
		t.Fatalf("unexpected match: %+v", m)
	}
	if m.Deadline != 100 {
		t.Fatalf("expected deadline 100 (now=0 + timeout 100), got %d", m.Deadline)
	}

	// Ids are sequential and never reused.
	res := mustOk(t, a.deliverTx(txBytesSigned(t, "rps/create_match", map[string]any{
		"creator": "alice",
		"stake":   uint64(10),
	}, "alice"), height, 0))
	if got := parseU64(t, attr(findEvent(res.Events, "MatchCreated"), "matchId")); got != matchID+1 {
		t.Fatalf("expected next id %d, got %d", matchID+1, got)
	}
}

func TestCreateMatch_RejectsStakeOutsideBounds(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	mintTestTokens(t, a, height, "alice", 10_000_000)
	registerTestAccount(t, a, height, "alice")

	for _, stake := range []uint64{0, 1_000_001} {
		res := a.deliverTx(txBytesSigned(t, "rps/create_match", map[string]any{
			"creator": "alice",
			"stake":   stake,
		}, "alice"), height, 0)
		mustFail(t, res, errInvalidStake.Error())
	}
	if len(a.st.Matches) != 0 {
		t.Fatalf("no match should exist after rejected creates")
	}
}

func TestCreateMatch_RejectsUnfundedCreator(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	registerTestAccount(t, a, height, "alice")

	res := a.deliverTx(txBytesSigned(t, "rps/create_match", map[string]any{
		"creator": "alice",
		"stake":   uint64(50),
	}, "alice"), height, 0)
	mustFail(t, res, "insufficient funds")
}

func TestJoinMatch_SetsJoinerAndAdvancesPhase(t *testing.T) {
	a := newTestApp(t)
	matchID := setupJoinedMatch(t, a)

	m := a.st.Matches[matchID]
	if m.Phase != state.PhaseAwaitingCommitments {
		t.Fatalf("expected awaitingCommitments, got %q", m.Phase)
	}
	if !m.HasJoiner() || *m.Joiner != "bob" {
		t.Fatalf("expected joiner bob, got %+v", m.Joiner)
	}
	if got := a.st.Balance("bob"); got != 950 {
		t.Fatalf("expected bob balance 950 after escrow, got %d", got)
	}
	// Escrowed total is 2*stake: both sides down one stake.
	if got := a.st.Balance("alice"); got != 950 {
		t.Fatalf("expected alice balance 950, got %d", got)
	}
	// Deadline is not extended by joining.
	if m.Deadline != 100 {
		t.Fatalf("deadline changed on join: %d", m.Deadline)
	}
}

func TestJoinMatch_Rejections(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	matchID := setupOpenMatch(t, a)

	mintTestTokens(t, a, height, "bob", 1000)
	registerTestAccount(t, a, height, "bob")

	// Unknown id.
	mustFail(t, a.deliverTx(txBytesSigned(t, "rps/join_match", map[string]any{
		"player": "bob", "matchId": uint64(999), "amount": uint64(50),
	}, "bob"), height, 0), errMatchNotFound.Error())

	// Self join.
	mustFail(t, a.deliverTx(txBytesSigned(t, "rps/join_match", map[string]any{
		"player": "alice", "matchId": matchID, "amount": uint64(50),
	}, "alice"), height, 0), errSelfJoin.Error())

	// Deposit mismatch.
	mustFail(t, a.deliverTx(txBytesSigned(t, "rps/join_match", map[string]any{
		"player": "bob", "matchId": matchID, "amount": uint64(49),
	}, "bob"), height, 0), errStakeMismatch.Error())

	// Past deadline.
	mustFail(t, a.deliverTx(txBytesSigned(t, "rps/join_match", map[string]any{
		"player": "bob", "matchId": matchID, "amount": uint64(50),
	}, "bob"), height, 100), errExpired.Error())

	// Successful join, then a third player is rejected.
	mustOk(t, a.deliverTx(txBytesSigned(t, "rps/join_match", map[string]any{
		"player": "bob", "matchId": matchID, "amount": uint64(50),
	}, "bob"), height, 0))

	mintTestTokens(t, a, height, "carol", 1000)
	registerTestAccount(t, a, height, "carol")
	mustFail(t, a.deliverTx(txBytesSigned(t, "rps/join_match", map[string]any{
		"player": "carol", "matchId": matchID, "amount": uint64(50),
	}, "carol"), height, 0), errAlreadyJoined.Error())
}

// ---- Commit ----

func TestCommitMove_BothSidesAdvanceToReveals(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	matchID := setupJoinedMatch(t, a)

	commitA := testCommitment(t, rps.MoveRock, testNonceBytes(1), "alice")
	res := mustOk(t, a.deliverTx(txBytesSigned(t, "rps/commit_move", map[string]any{
		"player": "alice", "matchId": matchID, "commitment": commitA,
	}, "alice"), height, 0))
	if findEvent(res.Events, "MoveCommitted") == nil {
		t.Fatalf("expected MoveCommitted event")
	}

	m := a.st.Matches[matchID]
	if m.Phase != state.PhaseAwaitingCommitments {
		t.Fatalf("phase must not advance on first commit, got %q", m.Phase)
	}

	commitB := testCommitment(t, rps.MovePaper, testNonceBytes(2), "bob")
	mustOk(t, a.deliverTx(txBytesSigned(t, "rps/commit_move", map[string]any{
		"player": "bob", "matchId": matchID, "commitment": commitB,
	}, "bob"), height, 0))

	if m = a.st.Matches[matchID]; m.Phase != state.PhaseAwaitingReveals {
		t.Fatalf("expected awaitingReveals after both commits, got %q", m.Phase)
	}
}

func TestCommitMove_Rejections(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	matchID := setupJoinedMatch(t, a)

	commitA := testCommitment(t, rps.MoveRock, testNonceBytes(1), "alice")

	// Outsider.
	mintTestTokens(t, a, height, "carol", 1000)
	registerTestAccount(t, a, height, "carol")
	mustFail(t, a.deliverTx(txBytesSigned(t, "rps/commit_move", map[string]any{
		"player": "carol", "matchId": matchID, "commitment": commitA,
	}, "carol"), height, 0), errNotAParticipant.Error())

	// Malformed commitment.
	mustFail(t, a.deliverTx(txBytesSigned(t, "rps/commit_move", map[string]any{
		"player": "alice", "matchId": matchID, "commitment": []byte("short"),
	}, "alice"), height, 0), errBadCommitment.Error())

	// Past deadline.
	mustFail(t, a.deliverTx(txBytesSigned(t, "rps/commit_move", map[string]any{
		"player": "alice", "matchId": matchID, "commitment": commitA,
	}, "alice"), height, 100), errExpired.Error())

	// First commit lands, a second from the same side does not.
	mustOk(t, a.deliverTx(txBytesSigned(t, "rps/commit_move", map[string]any{
		"player": "alice", "matchId": matchID, "commitment": commitA,
	}, "alice"), height, 0))
	mustFail(t, a.deliverTx(txBytesSigned(t, "rps/commit_move", map[string]any{
		"player": "alice", "matchId": matchID, "commitment": commitA,
	}, "alice"), height, 0), errAlreadyCommitted.Error())
}

func TestCommitMove_WrongPhaseBeforeJoin(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	matchID := setupOpenMatch(t, a)

	commitA := testCommitment(t, rps.MoveRock, testNonceBytes(1), "alice")
	mustFail(t, a.deliverTx(txBytesSigned(t, "rps/commit_move", map[string]any{
		"player": "alice", "matchId": matchID, "commitment": commitA,
	}, "alice"), height, 0), errWrongPhase.Error())
}
