package app

import (
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"

	"onchainrps/internal/codec"
	"onchainrps/internal/state"
)

// Admin setters adjust the bounds for *future* matches only: existing matches
// keep the stake and deadline fixed at their creation.

func requireAdmin(st *state.State, caller string) error {
	if caller == "" || caller != st.Params.Admin {
		return errNotAdmin
	}
	return nil
}

func configUpdated(setting string, old, new uint64) *abci.ExecTxResult {
	return okEvent("ConfigUpdated", map[string]string{
		"setting": setting,
		"old":     fmt.Sprintf("%d", old),
		"new":     fmt.Sprintf("%d", new),
	})
}

func adminSetMinStake(st *state.State, msg codec.AdminSetMinStakeTx) (*abci.ExecTxResult, error) {
	if err := requireAdmin(st, msg.Caller); err != nil {
		return nil, err
	}
	if msg.Value == 0 || msg.Value >= st.Params.MaxStake {
		return nil, fmt.Errorf("%w: minStake %d must be in (0, %d)", errInvalidStake, msg.Value, st.Params.MaxStake)
	}
	old := st.Params.MinStake
	st.Params.MinStake = msg.Value
	return configUpdated("minStake", old, msg.Value), nil
}

func adminSetMaxStake(st *state.State, msg codec.AdminSetMaxStakeTx) (*abci.ExecTxResult, error) {
	if err := requireAdmin(st, msg.Caller); err != nil {
		return nil, err
	}
	if msg.Value <= st.Params.MinStake {
		return nil, fmt.Errorf("%w: maxStake %d must exceed minStake %d", errInvalidStake, msg.Value, st.Params.MinStake)
	}
	old := st.Params.MaxStake
	st.Params.MaxStake = msg.Value
	return configUpdated("maxStake", old, msg.Value), nil
}

func adminSetTimeout(st *state.State, msg codec.AdminSetTimeoutTx) (*abci.ExecTxResult, error) {
	if err := requireAdmin(st, msg.Caller); err != nil {
		return nil, err
	}
	if msg.Seconds == 0 || msg.Seconds > state.MaxTimeoutSecs {
		return nil, fmt.Errorf("timeout must be in (0, %d] seconds, got %d", state.MaxTimeoutSecs, msg.Seconds)
	}
	old := st.Params.TimeoutSecs
	st.Params.TimeoutSecs = msg.Seconds
	return configUpdated("timeoutSecs", old, msg.Seconds), nil
}
