package simpledao

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/kaifufi/simpledao-client-go/internal/fakewallet"
)

const otherChain = 1

var (
	bg = context.Background()

	alice = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000B0B")

	testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type testEnv struct {
	manager  *Manager
	provider *fakewallet.Provider
	ledger   *fakewallet.Ledger
}

// newTestEnv creates a manager in front of a wallet on chainID holding
// alice (10 GOV) and bob (no GOV)
func newTestEnv(t *testing.T, chainID uint64) *testEnv {
	t.Helper()

	ledger := fakewallet.NewLedger()
	ledger.Now = func() time.Time { return testNow }
	ledger.SetBalance(alice, tokens(10))

	provider := fakewallet.NewProvider(ledger, chainID, alice, bob)

	addrs := ledger.Addresses()
	m, err := NewManager(ManagerConfig{
		Provider:            provider,
		Contracts:           &addrs,
		Now:                 func() time.Time { return testNow },
		ReceiptPollInterval: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)

	return &testEnv{manager: m, provider: provider, ledger: ledger}
}

// connected returns an environment with alice connected on the target network
func connected(t *testing.T) *testEnv {
	t.Helper()

	env := newTestEnv(t, uint64(ChainIDSepolia))
	require.NoError(t, env.manager.Connect(bg))
	return env
}

// collect subscribes to state snapshots for the duration of fn
func collect(m *Manager, fn func()) []State {
	ch := make(chan State, 64)
	sub := m.SubscribeState(ch)
	fn()
	sub.Unsubscribe()
	close(ch)

	var states []State
	for st := range ch {
		states = append(states, st)
	}
	return states
}

// assertBindingInvariant checks that derived state tracks the session
func assertBindingInvariant(t *testing.T, st State) {
	t.Helper()

	require.Equal(t, st.Account == (common.Address{}), st.Signer == nil, "signer present iff account present")
	require.Equal(t, st.Connected() && st.OnTargetNetwork, st.HasBindings(), "bindings present iff connected on target")
	if st.HasBindings() {
		require.NotNil(t, st.Bindings.Token)
		require.NotNil(t, st.Bindings.DAO)
		require.Equal(t, st.Account, st.Bindings.Token.Signer().Address())
		require.Equal(t, st.Account, st.Bindings.DAO.Signer().Address())
	}
	if st.VotingPower {
		require.True(t, st.HasBindings(), "voting power without bindings")
	}
}
