package state

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"onchainrps/internal/rps"
)

// Phase is a match's position in its fixed four-state lifecycle. Transitions
// are strictly forward; Settled is terminal.
type Phase string

const (
	PhaseAwaitingOpponent    Phase = "awaitingOpponent"
	PhaseAwaitingCommitments Phase = "awaitingCommitments"
	PhaseAwaitingReveals     Phase = "awaitingReveals"
	PhaseSettled             Phase = "settled"
)

// Match is one commit-reveal game. Side A is the creator, side B the joiner.
// Nil/zero fields mean "not yet set": Joiner is nil until someone joins,
// commitment slots are nil until committed, moves are MoveNone until revealed.
type Match struct {
	ID      uint64  `json:"id"`
	Creator string  `json:"creator"`
	Joiner  *string `json:"joiner,omitempty"`

	Stake uint64 `json:"stake"`

	CommitmentA []byte `json:"commitmentA,omitempty"` // 32-byte binding hash (base64 in JSON)
	CommitmentB []byte `json:"commitmentB,omitempty"`

	MoveA rps.Move `json:"moveA"`
	MoveB rps.Move `json:"moveB"`

	RevealedA bool `json:"revealedA"`
	RevealedB bool `json:"revealedB"`

	Phase Phase `json:"phase"`

	// Deadline is the unix second at/after which the match may be force
	// settled via rps/timeout_match. Fixed at creation, never extended.
	Deadline  int64 `json:"deadline"`
	CreatedAt int64 `json:"createdAt"`
}

// HasJoiner reports whether a second player has joined.
func (m *Match) HasJoiner() bool {
	return m.Joiner != nil && *m.Joiner != ""
}

// Params is the process-wide match configuration. Admin is fixed when state
// is first initialized; bounds and timeout change only through admin txs and
// never retroactively affect existing matches.
type Params struct {
	Admin       string `json:"admin"`
	MinStake    uint64 `json:"minStake"`
	MaxStake    uint64 `json:"maxStake"`
	TimeoutSecs uint64 `json:"timeoutSecs"`
}

// MaxTimeoutSecs bounds the configurable per-match timeout (24 hours).
const MaxTimeoutSecs uint64 = 24 * 60 * 60

type State struct {
	Height int64 `json:"height"`

	NextMatchID uint64            `json:"nextMatchId"`
	Accounts    map[string]uint64 `json:"accounts"`
	AccountKeys map[string][]byte `json:"accountKeys,omitempty"` // addr -> ed25519 pubkey (32 bytes)
	NonceMax    map[string]uint64 `json:"nonceMax,omitempty"`    // signer -> last accepted tx.nonce (u64), for replay protection
	Matches     map[uint64]*Match `json:"matches"`

	Params Params `json:"params"`
}

func NewState() *State {
	return &State{
		Height:      0,
		NextMatchID: 1,
		Accounts:    map[string]uint64{},
		AccountKeys: map[string][]byte{},
		NonceMax:    map[string]uint64{},
		Matches:     map[uint64]*Match{},
	}
}

func normalizeState(st *State) {
	if st.Accounts == nil {
		st.Accounts = map[string]uint64{}
	}
	if st.AccountKeys == nil {
		st.AccountKeys = map[string][]byte{}
	}
	if st.NonceMax == nil {
		st.NonceMax = map[string]uint64{}
	}
	if st.Matches == nil {
		st.Matches = map[uint64]*Match{}
	}
	if st.NextMatchID == 0 {
		st.NextMatchID = 1
	}
}

func Load(home string) (*State, error) {
	path := filepath.Join(home, "state.json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	normalizeState(&st)
	return &st, nil
}

func (s *State) Save(home string) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("mkdir home: %w", err)
	}
	path := filepath.Join(home, "state.json")
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Clone returns a deep copy of state suitable for staged tx execution.
func (s *State) Clone() (*State, error) {
	if s == nil {
		return nil, fmt.Errorf("state is nil")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state clone: %w", err)
	}
	var out State
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode state clone: %w", err)
	}
	normalizeState(&out)
	return &out, nil
}

func (s *State) AppHash() []byte {
	// Deterministic JSON hash: marshal with stable key ordering by serializing
	// a normalized view.
	//
	// Note: encoding/json does NOT guarantee map key order, so we manually
	// normalize maps into slices.
	type accountKV struct {
		Addr    string `json:"addr"`
		Balance uint64 `json:"balance"`
	}
	type accountKeyKV struct {
		Addr   string `json:"addr"`
		PubKey []byte `json:"pubKey"`
	}
	type nonceKV struct {
		Signer string `json:"signer"`
		Nonce  uint64 `json:"nonce"`
	}
	type matchKV struct {
		ID    uint64 `json:"id"`
		Match *Match `json:"match"`
	}

	accounts := make([]accountKV, 0, len(s.Accounts))
	for k, v := range s.Accounts {
		accounts = append(accounts, accountKV{Addr: k, Balance: v})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Addr < accounts[j].Addr })

	accountKeys := make([]accountKeyKV, 0, len(s.AccountKeys))
	for k, v := range s.AccountKeys {
		accountKeys = append(accountKeys, accountKeyKV{Addr: k, PubKey: v})
	}
	sort.Slice(accountKeys, func(i, j int) bool { return accountKeys[i].Addr < accountKeys[j].Addr })

	nonces := make([]nonceKV, 0, len(s.NonceMax))
	for k, v := range s.NonceMax {
		nonces = append(nonces, nonceKV{Signer: k, Nonce: v})
	}
	sort.Slice(nonces, func(i, j int) bool { return nonces[i].Signer < nonces[j].Signer })

	matches := make([]matchKV, 0, len(s.Matches))
	for id, m := range s.Matches {
		matches = append(matches, matchKV{ID: id, Match: m})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })

	normalized := struct {
		Height      int64          `json:"height"`
		NextMatchID uint64         `json:"nextMatchId"`
		Accounts    []accountKV    `json:"accounts"`
		AccountKeys []accountKeyKV `json:"accountKeys,omitempty"`
		NonceMax    []nonceKV      `json:"nonceMax,omitempty"`
		Matches     []matchKV      `json:"matches"`
		Params      Params         `json:"params"`
	}{
		Height:      s.Height,
		NextMatchID: s.NextMatchID,
		Accounts:    accounts,
		AccountKeys: accountKeys,
		NonceMax:    nonces,
		Matches:     matches,
		Params:      s.Params,
	}

	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return sum[:]
}

// ---- Bank ----

func (s *State) Balance(addr string) uint64 {
	return s.Accounts[addr]
}

func (s *State) Credit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal > ^uint64(0)-amount {
		return fmt.Errorf("balance overflow: have=%d add=%d", bal, amount)
	}
	s.Accounts[addr] = bal + amount
	return nil
}

func (s *State) Debit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal < amount {
		return fmt.Errorf("insufficient funds: have=%d need=%d", bal, amount)
	}
	s.Accounts[addr] = bal - amount
	return nil
}
