package simpledao

import (
	"errors"
	"math/big"
	"math/rand"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaifufi/simpledao-client-go/wallet"
)

func TestNewManagerDefaults(t *testing.T) {
	m, err := NewManager(ManagerConfig{})
	require.NoError(t, err)

	assert.Equal(t, TargetNetwork, m.Target())
	assert.Equal(t, DefaultContractAddresses[ChainIDSepolia], m.contracts)
	assert.Equal(t, State{}, m.State())
}

func TestNewManagerUnknownTarget(t *testing.T) {
	_, err := NewManager(ManagerConfig{Target: &Network{ChainID: 5, Name: "Goerli"}})
	require.Error(t, err)
}

func TestTargetNetwork(t *testing.T) {
	assert.Equal(t, "0xaa36a7", TargetNetwork.HexID())
	assert.Equal(t, "Sepolia Test Network", TargetNetwork.Name)
	assert.True(t, TargetNetwork.Matches(big.NewInt(11155111)))
	assert.False(t, TargetNetwork.Matches(big.NewInt(1)))
	assert.False(t, TargetNetwork.Matches(nil))
}

func TestConnectOnTargetNetwork(t *testing.T) {
	env := connected(t)

	st := env.manager.State()
	assertBindingInvariant(t, st)
	assert.True(t, st.Connected())
	assert.True(t, st.OnTargetNetwork)
	assert.True(t, st.HasBindings())
	assert.Equal(t, alice, st.Account)
	assert.Equal(t, uint64(ChainIDSepolia), st.ChainID.Uint64())
	assert.True(t, st.VotingPower)
	assert.Equal(t, tokens(10), st.TokenBalance)
	assert.Equal(t, "10.0", st.FormattedBalance())
	assert.NoError(t, st.Err)
	assert.False(t, st.Loading)
}

func TestConnectWrongNetwork(t *testing.T) {
	env := newTestEnv(t, otherChain)

	err := env.manager.Connect(bg)
	require.ErrorIs(t, err, ErrWrongNetwork)

	var wrongNet *WrongNetworkError
	require.ErrorAs(t, err, &wrongNet)
	assert.Equal(t, uint64(otherChain), wrongNet.Current)
	assert.Equal(t, "Connected, but on wrong network. Switch to Sepolia Test Network.", err.Error())

	st := env.manager.State()
	assertBindingInvariant(t, st)
	assert.True(t, st.Connected(), "session is established on the wrong network")
	assert.False(t, st.OnTargetNetwork)
	assert.False(t, st.HasBindings())
	assert.False(t, st.VotingPower)
	assert.Equal(t, err, st.Err)
	assert.Zero(t, env.ledger.CallCount("balanceOf"))
}

func TestConnectWithoutProvider(t *testing.T) {
	m, err := NewManager(ManagerConfig{})
	require.NoError(t, err)

	err = m.Connect(bg)
	require.ErrorIs(t, err, ErrProviderUnavailable)
	assert.False(t, m.State().Connected())
	assert.Equal(t, ErrProviderUnavailable, m.State().Err)

	require.ErrorIs(t, m.SwitchNetwork(bg), ErrProviderUnavailable)
	require.ErrorIs(t, m.Start(), ErrProviderUnavailable)
}

func TestConnectRejected(t *testing.T) {
	env := newTestEnv(t, uint64(ChainIDSepolia))
	env.provider.RequestErr = &wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "User rejected the request."}

	err := env.manager.Connect(bg)
	require.ErrorIs(t, err, ErrUserRejected)

	st := env.manager.State()
	assertBindingInvariant(t, st)
	assert.False(t, st.Connected())
	assert.False(t, st.Loading)
	assert.Equal(t, err, st.Err)
}

func TestConnectNoAccounts(t *testing.T) {
	env := newTestEnv(t, uint64(ChainIDSepolia))
	env.provider.SetAccounts()

	err := env.manager.Connect(bg)
	require.ErrorIs(t, err, ErrUserRejected)
	require.ErrorIs(t, err, wallet.ErrNoAccounts)
	assert.False(t, env.manager.State().Connected())
}

func TestConnectReplacesSession(t *testing.T) {
	env := connected(t)
	first := env.manager.State()

	require.NoError(t, env.manager.Connect(bg))
	second := env.manager.State()

	assert.NotSame(t, first.Signer, second.Signer)
	assert.NotSame(t, first.Bindings, second.Bindings)
	assertBindingInvariant(t, second)
}

func TestDisconnectYieldsInitialState(t *testing.T) {
	env := connected(t)
	require.True(t, env.manager.State().VotingPower)

	env.manager.Disconnect()
	assert.Equal(t, State{}, env.manager.State())

	env.manager.Disconnect()
	assert.Equal(t, State{}, env.manager.State())
}

func TestDisconnectFromWrongNetwork(t *testing.T) {
	env := newTestEnv(t, otherChain)
	require.ErrorIs(t, env.manager.Connect(bg), ErrWrongNetwork)

	env.manager.Disconnect()
	assert.Equal(t, State{}, env.manager.State())
}

func TestRefreshVotingPowerFailClosed(t *testing.T) {
	env := connected(t)
	require.True(t, env.manager.State().VotingPower)

	env.ledger.Fail("balanceOf", errors.New("node unavailable"))

	err := env.manager.RefreshVotingPower(bg)
	require.ErrorIs(t, err, ErrQueryFailed)

	st := env.manager.State()
	assert.False(t, st.VotingPower)
	assert.Nil(t, st.TokenBalance)
	assert.True(t, st.HasBindings())
}

func TestRefreshVotingPowerZeroBalance(t *testing.T) {
	env := connected(t)

	env.ledger.SetBalance(alice, big.NewInt(0))
	require.NoError(t, env.manager.RefreshVotingPower(bg))
	assert.False(t, env.manager.State().VotingPower)

	env.ledger.SetBalance(alice, big.NewInt(1))
	require.NoError(t, env.manager.RefreshVotingPower(bg))
	assert.True(t, env.manager.State().VotingPower)
	assert.Equal(t, "0.000000000000000001", env.manager.State().FormattedBalance())
}

func TestRefreshVotingPowerWithoutBindings(t *testing.T) {
	env := newTestEnv(t, otherChain)
	require.ErrorIs(t, env.manager.Connect(bg), ErrWrongNetwork)

	require.ErrorIs(t, env.manager.RefreshVotingPower(bg), ErrNotConnected)
	assert.False(t, env.manager.State().VotingPower)
}

func TestAccountsChangedEmptyDisconnects(t *testing.T) {
	env := connected(t)

	env.manager.HandleAccountsChanged(bg, nil)
	assert.Equal(t, State{}, env.manager.State())
}

func TestAccountsChangedAdoptsFirstAccount(t *testing.T) {
	env := connected(t)
	before := env.manager.State()

	env.manager.HandleAccountsChanged(bg, []common.Address{bob, alice})

	st := env.manager.State()
	assertBindingInvariant(t, st)
	assert.Equal(t, bob, st.Account)
	assert.NotSame(t, before.Bindings, st.Bindings)
	assert.False(t, st.VotingPower, "bob holds no tokens")
	assert.Equal(t, 2, env.ledger.CallCount("balanceOf"))
}

func TestAccountsChangedOnWrongNetwork(t *testing.T) {
	env := newTestEnv(t, otherChain)
	require.ErrorIs(t, env.manager.Connect(bg), ErrWrongNetwork)

	env.manager.HandleAccountsChanged(bg, []common.Address{bob})

	st := env.manager.State()
	assertBindingInvariant(t, st)
	assert.Equal(t, bob, st.Account)
	assert.False(t, st.HasBindings())
	assert.ErrorIs(t, st.Err, ErrWrongNetwork)
}

func TestAccountsChangedWithoutSession(t *testing.T) {
	env := newTestEnv(t, uint64(ChainIDSepolia))

	env.manager.HandleAccountsChanged(bg, []common.Address{alice})
	assert.Equal(t, State{}, env.manager.State())
}

func TestChainChangedAwayClearsAtomically(t *testing.T) {
	env := connected(t)
	require.True(t, env.manager.State().VotingPower)

	env.provider.SetChain(otherChain)
	states := collect(env.manager, func() {
		env.manager.HandleChainChanged(bg, big.NewInt(otherChain))
	})

	require.Len(t, states, 1, "bindings and voting power clear in one transition")
	st := states[0]
	assertBindingInvariant(t, st)
	assert.False(t, st.OnTargetNetwork)
	assert.Nil(t, st.Bindings)
	assert.False(t, st.VotingPower)
	assert.Nil(t, st.TokenBalance)
	assert.Equal(t, alice, st.Account)

	var wrongNet *WrongNetworkError
	require.ErrorAs(t, st.Err, &wrongNet)
	assert.Equal(t, "Switched to wrong network. Please switch to Sepolia Test Network.", st.ErrorMessage())
}

func TestChainChangedBackToTarget(t *testing.T) {
	env := newTestEnv(t, otherChain)
	require.ErrorIs(t, env.manager.Connect(bg), ErrWrongNetwork)

	env.provider.SetChain(uint64(ChainIDSepolia))
	env.manager.HandleChainChanged(bg, TargetNetwork.BigID())

	st := env.manager.State()
	assertBindingInvariant(t, st)
	assert.True(t, st.OnTargetNetwork)
	assert.True(t, st.HasBindings())
	assert.True(t, st.VotingPower)
	assert.NoError(t, st.Err)
}

func TestChainChangedUsesNotifiedIDWhenReadFails(t *testing.T) {
	env := connected(t)
	env.provider.ChainIDErr = errors.New("provider busy")

	env.manager.HandleChainChanged(bg, big.NewInt(otherChain))

	st := env.manager.State()
	assert.Equal(t, uint64(otherChain), st.ChainID.Uint64())
	assert.False(t, st.HasBindings())
}

func TestChainChangedWithoutSession(t *testing.T) {
	env := newTestEnv(t, otherChain)

	env.manager.HandleChainChanged(bg, TargetNetwork.BigID())
	assert.Equal(t, State{}, env.manager.State())
}

func TestBindingInvariantUnderNotificationSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(20240501))

	for run := 0; run < 20; run++ {
		env := newTestEnv(t, uint64(ChainIDSepolia))
		m := env.manager

		for step := 0; step < 50; step++ {
			switch rng.Intn(7) {
			case 0:
				_ = m.Connect(bg)
			case 1:
				m.Disconnect()
			case 2:
				m.HandleAccountsChanged(bg, nil)
			case 3:
				m.HandleAccountsChanged(bg, []common.Address{alice})
			case 4:
				m.HandleAccountsChanged(bg, []common.Address{bob, alice})
			case 5:
				env.provider.SetChain(otherChain)
				m.HandleChainChanged(bg, big.NewInt(otherChain))
			case 6:
				env.provider.SetChain(uint64(ChainIDSepolia))
				m.HandleChainChanged(bg, TargetNetwork.BigID())
			}

			st := m.State()
			assertBindingInvariant(t, st)
			assert.False(t, st.Loading)
			if st.HasBindings() {
				want := st.Account == alice
				assert.Equal(t, want, st.VotingPower, "voting power tracks the current account")
			}
		}
	}
}

func TestStartConsumesNotifications(t *testing.T) {
	env := connected(t)
	require.NoError(t, env.manager.Start())
	require.NoError(t, env.manager.Start())

	env.provider.SetChain(otherChain)
	require.Eventually(t, func() bool {
		st := env.manager.State()
		return !st.OnTargetNetwork && !st.HasBindings()
	}, time.Second, 5*time.Millisecond)

	env.provider.SetChain(uint64(ChainIDSepolia))
	require.Eventually(t, func() bool {
		st := env.manager.State()
		return st.HasBindings() && st.VotingPower
	}, time.Second, 5*time.Millisecond)

	env.provider.SetAccounts()
	require.Eventually(t, func() bool {
		return !env.manager.State().Connected()
	}, time.Second, 5*time.Millisecond)

	env.manager.Close()
	env.manager.Close()
}

func TestSwitchNetwork(t *testing.T) {
	env := newTestEnv(t, otherChain)
	env.provider.AddChain(uint64(ChainIDSepolia))
	require.ErrorIs(t, env.manager.Connect(bg), ErrWrongNetwork)
	require.NoError(t, env.manager.Start())

	require.NoError(t, env.manager.SwitchNetwork(bg))

	switches := env.provider.Switches()
	require.Len(t, switches, 1)
	assert.Equal(t, TargetNetwork.BigID(), switches[0])

	require.Eventually(t, func() bool {
		st := env.manager.State()
		return st.HasBindings() && st.VotingPower
	}, time.Second, 5*time.Millisecond)
	assertBindingInvariant(t, env.manager.State())
}

func TestSwitchNetworkErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    error
		message string
	}{
		{
			name:    "unrecognized chain",
			kind:    ErrUnrecognizedNetwork,
			message: "Sepolia Test Network (Chain ID: 0xaa36a7) not added to wallet.",
		},
		{
			name:    "user rejected",
			err:     &wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "User rejected the request."},
			kind:    ErrSwitchRejected,
			message: "Network switch rejected by user.",
		},
		{
			name:    "other failure",
			err:     errors.New("internal error"),
			kind:    ErrSwitchFailed,
			message: "Failed to switch network. Please do it manually.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, otherChain)
			require.ErrorIs(t, env.manager.Connect(bg), ErrWrongNetwork)
			env.provider.SwitchErr = tt.err

			err := env.manager.SwitchNetwork(bg)
			require.ErrorIs(t, err, tt.kind)
			assert.Equal(t, tt.message, err.Error())

			st := env.manager.State()
			assert.Equal(t, err, st.Err)
			assert.False(t, st.Loading)
			assert.True(t, st.Connected())
			assert.False(t, st.HasBindings())
		})
	}
}
