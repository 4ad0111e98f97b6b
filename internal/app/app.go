package app

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	abci "github.com/cometbft/cometbft/abci/types"

	"onchainrps/internal/codec"
	"onchainrps/internal/state"
)

const (
	AppVersion uint64 = 1
)

type RPSApp struct {
	*abci.BaseApplication

	home string

	mu       sync.Mutex
	st       *state.State
	lastHash []byte
}

// New loads (or initializes) state under <home>/app. The genesis params fix
// the admin identity and the initial stake/timeout bounds; they apply only
// when the state has never been initialized.
func New(home string, genesis state.Params) (*RPSApp, error) {
	appHome := filepath.Join(home, "app")
	st, err := state.Load(appHome)
	if err != nil {
		return nil, err
	}
	if st.Params.Admin == "" {
		st.Params = genesis
	}
	a := &RPSApp{
		BaseApplication: abci.NewBaseApplication(),
		home:            home,
		st:              st,
		lastHash:        st.AppHash(),
	}
	return a, nil
}

func (a *RPSApp) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "rpschain",
		Version:          "v1",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.st.Height,
		LastBlockAppHash: a.lastHash,
	}, nil
}

func (a *RPSApp) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	_, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return &abci.CheckTxResponse{Code: 1, Log: err.Error()}, nil
	}
	// Structural validation only; signatures/auth run at delivery.
	return &abci.CheckTxResponse{Code: 0}, nil
}

func (a *RPSApp) InitChain(_ context.Context, _ *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	// Params are seeded from node config in New; nothing genesis-specific here.
	return &abci.InitChainResponse{}, nil
}

func (a *RPSApp) FinalizeBlock(_ context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.st.Height = req.Height
	nowUnix := req.Time.Unix()

	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for _, txBytes := range req.Txs {
		res := a.deliverTx(txBytes, req.Height, nowUnix)
		txResults = append(txResults, res)
	}

	a.lastHash = a.st.AppHash()

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.lastHash,
	}, nil
}

func (a *RPSApp) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	// Persist after each block for devnet durability.
	appHome := filepath.Join(a.home, "app")
	if err := a.st.Save(appHome); err != nil {
		// CometBFT expects Commit to not crash; return error so node halts loudly.
		return nil, err
	}
	return &abci.CommitResponse{}, nil
}

func (a *RPSApp) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Paths:
	// - /account/<addr>
	// - /params
	// - /match/<id>
	// - /matches
	// - /matches/open
	// - /matches/of/<identity>
	path := strings.TrimSpace(req.Path)
	switch {
	case path == "/params":
		b, _ := json.Marshal(a.st.Params)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case path == "/matches":
		ids := a.matchIDs(func(*state.Match) bool { return true })
		return idsResponse(ids, a.st.Height), nil
	case path == "/matches/open":
		ids := a.matchIDs(func(m *state.Match) bool {
			return m.Phase == state.PhaseAwaitingOpponent && !m.HasJoiner()
		})
		return idsResponse(ids, a.st.Height), nil
	case strings.HasPrefix(path, "/matches/of/"):
		identity := strings.TrimPrefix(path, "/matches/of/")
		if identity == "" {
			return &abci.QueryResponse{Code: 1, Log: "missing identity", Height: a.st.Height}, nil
		}
		ids := a.matchIDs(func(m *state.Match) bool {
			return m.Creator == identity || (m.HasJoiner() && *m.Joiner == identity)
		})
		return idsResponse(ids, a.st.Height), nil
	case strings.HasPrefix(path, "/account/"):
		addr := strings.TrimPrefix(path, "/account/")
		bal := a.st.Balance(addr)
		b, _ := json.Marshal(map[string]any{"addr": addr, "balance": bal})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case strings.HasPrefix(path, "/match/"):
		raw := strings.TrimPrefix(path, "/match/")
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return &abci.QueryResponse{Code: 1, Log: "invalid match id", Height: a.st.Height}, nil
		}
		m, ok := a.st.Matches[id]
		if !ok {
			return &abci.QueryResponse{Code: 1, Log: errMatchNotFound.Error(), Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(m)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	default:
		return &abci.QueryResponse{Code: 1, Log: "unknown query path", Height: a.st.Height}, nil
	}
}

func (a *RPSApp) matchIDs(keep func(*state.Match) bool) []uint64 {
	ids := make([]uint64, 0, len(a.st.Matches))
	for id, m := range a.st.Matches {
		if keep(m) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func idsResponse(ids []uint64, height int64) *abci.QueryResponse {
	b, _ := json.Marshal(map[string]any{"ids": ids, "count": len(ids)})
	return &abci.QueryResponse{Code: 0, Value: b, Height: height}
}

// deliverTx routes and applies one transaction. Handlers run against a staged
// deep copy of state that is swapped in only on success, so a rejected tx
// leaves no trace (including the settlement-transfer-failure case).
func (a *RPSApp) deliverTx(txBytes []byte, height int64, nowUnix int64) *abci.ExecTxResult {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}

	staged, err := a.st.Clone()
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}
	staged.Height = height

	res := routeTx(staged, env, nowUnix)
	if res.Code == 0 {
		a.st = staged
	}
	return res
}

func routeTx(st *state.State, env codec.TxEnvelope, nowUnix int64) *abci.ExecTxResult {
	switch env.Type {
	case "bank/mint":
		var msg codec.BankMintTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad bank/mint value"}
		}
		if msg.To == "" || msg.Amount == 0 {
			return &abci.ExecTxResult{Code: 1, Log: "missing to/amount"}
		}
		if err := st.Credit(msg.To, msg.Amount); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return okEvent("BankMinted", map[string]string{
			"to":     msg.To,
			"amount": fmt.Sprintf("%d", msg.Amount),
		})

	case "bank/send":
		var msg codec.BankSendTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad bank/send value"}
		}
		if msg.From == "" || msg.To == "" || msg.Amount == 0 {
			return &abci.ExecTxResult{Code: 1, Log: "missing from/to/amount"}
		}
		if err := requireAccountAuth(st, env, msg.From); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := consumeNonce(st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := st.Debit(msg.From, msg.Amount); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := st.Credit(msg.To, msg.Amount); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return okEvent("BankSent", map[string]string{
			"from":   msg.From,
			"to":     msg.To,
			"amount": fmt.Sprintf("%d", msg.Amount),
		})

	case "auth/register_account":
		var msg codec.AuthRegisterAccountTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad auth/register_account value"}
		}
		if err := requireRegisterAccountAuth(env, msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := consumeNonce(st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		st.AccountKeys[msg.Account] = append([]byte(nil), msg.PubKey...)
		return okEvent("AccountRegistered", map[string]string{
			"account": msg.Account,
		})

	case "rps/create_match":
		var msg codec.MatchCreateTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad rps/create_match value"}
		}
		if err := requireAccountAuth(st, env, msg.Creator); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := consumeNonce(st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return resultOrError(matchCreate(st, msg, nowUnix))

	case "rps/join_match":
		var msg codec.MatchJoinTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad rps/join_match value"}
		}
		if err := requireAccountAuth(st, env, msg.Player); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := consumeNonce(st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return resultOrError(matchJoin(st, msg, nowUnix))

	case "rps/commit_move":
		var msg codec.MatchCommitTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad rps/commit_move value"}
		}
		if err := requireAccountAuth(st, env, msg.Player); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := consumeNonce(st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return resultOrError(matchCommit(st, msg, nowUnix))

	case "rps/reveal_move":
		var msg codec.MatchRevealTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad rps/reveal_move value"}
		}
		if err := requireAccountAuth(st, env, msg.Player); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := consumeNonce(st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return resultOrError(matchReveal(st, msg, nowUnix))

	case "rps/timeout_match":
		// Callable by anyone, unsigned: forcing a stalled match costs nothing
		// and only moves funds back to the participants.
		var msg codec.MatchTimeoutTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad rps/timeout_match value"}
		}
		return resultOrError(matchTimeout(st, msg, nowUnix))

	case "admin/set_min_stake":
		var msg codec.AdminSetMinStakeTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad admin/set_min_stake value"}
		}
		if err := requireAccountAuth(st, env, msg.Caller); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := consumeNonce(st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return resultOrError(adminSetMinStake(st, msg))

	case "admin/set_max_stake":
		var msg codec.AdminSetMaxStakeTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad admin/set_max_stake value"}
		}
		if err := requireAccountAuth(st, env, msg.Caller); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := consumeNonce(st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return resultOrError(adminSetMaxStake(st, msg))

	case "admin/set_timeout":
		var msg codec.AdminSetTimeoutTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad admin/set_timeout value"}
		}
		if err := requireAccountAuth(st, env, msg.Caller); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := consumeNonce(st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return resultOrError(adminSetTimeout(st, msg))

	default:
		return &abci.ExecTxResult{Code: 1, Log: "unknown tx type: " + env.Type}
	}
}

func resultOrError(res *abci.ExecTxResult, err error) *abci.ExecTxResult {
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}
	return res
}

func okEvent(typ string, attrs map[string]string) *abci.ExecTxResult {
	ev := abci.Event{Type: typ}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: k, Value: attrs[k], Index: true})
	}
	return &abci.ExecTxResult{
		Code:   0,
		Events: []abci.Event{ev},
	}
}

func event(typ string, attrs map[string]string) abci.Event {
	ev := abci.Event{Type: typ}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: k, Value: attrs[k], Index: true})
	}
	return ev
}
