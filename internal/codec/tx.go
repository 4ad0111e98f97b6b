package codec

import (
	"encoding/json"
	"fmt"
)

// TxEnvelope is the transaction container.
//
// CometBFT transactions are opaque bytes; we use JSON-encoded envelopes
// routed by Type.
type TxEnvelope struct {
	// Basic routing.
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`

	// Tx auth (required for account-authenticated ops):
	// - Nonce: included in the signed message for replay protection (must increase per signer).
	// - Signer: the identity the tx acts as.
	// - Sig: Ed25519 signature over (type, nonce, signer, sha256(value)).
	Nonce  string `json:"nonce,omitempty"`
	Signer string `json:"signer,omitempty"`
	Sig    []byte `json:"sig,omitempty"`
}

func DecodeTxEnvelope(txBytes []byte) (TxEnvelope, error) {
	var env TxEnvelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return TxEnvelope{}, fmt.Errorf("invalid tx json: %w", err)
	}
	if env.Type == "" {
		return TxEnvelope{}, fmt.Errorf("missing tx.type")
	}
	return env, nil
}

// ---- Bank ----

type BankMintTx struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type BankSendTx struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// ---- Auth ----

// Account pubkey registration for tx authentication.
type AuthRegisterAccountTx struct {
	Account string `json:"account"`
	PubKey  []byte `json:"pubKey"` // base64 (32 bytes)
}

// ---- Match lifecycle ----

type MatchCreateTx struct {
	Creator string `json:"creator"`
	Stake   uint64 `json:"stake"` // escrowed from creator on success
}

type MatchJoinTx struct {
	Player  string `json:"player"`
	MatchID uint64 `json:"matchId"`
	Amount  uint64 `json:"amount"` // must equal the match stake
}

type MatchCommitTx struct {
	Player     string `json:"player"`
	MatchID    uint64 `json:"matchId"`
	Commitment []byte `json:"commitment"` // base64 (32 bytes): sha256(move||nonce||identity)
}

type MatchRevealTx struct {
	Player  string `json:"player"`
	MatchID uint64 `json:"matchId"`
	Move    uint8  `json:"move"`  // 1=rock 2=paper 3=scissors
	Nonce   []byte `json:"nonce"` // base64 (32 bytes)
}

type MatchTimeoutTx struct {
	MatchID uint64 `json:"matchId"`
}

// ---- Admin ----

type AdminSetMinStakeTx struct {
	Caller string `json:"caller"`
	Value  uint64 `json:"value"`
}

type AdminSetMaxStakeTx struct {
	Caller string `json:"caller"`
	Value  uint64 `json:"value"`
}

type AdminSetTimeoutTx struct {
	Caller  string `json:"caller"`
	Seconds uint64 `json:"seconds"`
}
