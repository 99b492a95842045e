package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	simpledao "github.com/kaifufi/simpledao-client-go"
	"github.com/kaifufi/simpledao-client-go/wallet"
)

var (
	envFile     string
	rpcURL      string
	bridgeURL   string
	keystoreDir string
	accountHex  string
	logDir      string
	logLevel    string
	assumeYes   bool

	manager       *simpledao.Manager
	closeProvider func()
)

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := &cobra.Command{
		Use:           "simpledao",
		Short:         "Vote on SimpleDAO governance proposals from the terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(envFile, cmd.Flags().Changed("env-file"))
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg)

			if err := setLogLevels(cfg.LogLevel); err != nil {
				return err
			}
			if cfg.LogDir != "" {
				if err := initLogRotator(cfg.LogDir, 3); err != nil {
					return err
				}
			}

			return connect(cmd.Context(), cfg)
		},
	}
	defer shutdown()

	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file with SIMPLEDAO_* variables")
	root.PersistentFlags().StringVar(&rpcURL, "rpc", "", "Sepolia JSON-RPC endpoint for the keystore wallet")
	root.PersistentFlags().StringVar(&bridgeURL, "bridge", "", "browser wallet bridge URL (e.g. "+wallet.DefaultBridgeEndpoint+")")
	root.PersistentFlags().StringVar(&keystoreDir, "keystore", "", "keystore directory (default ~/.simpledao/keystore)")
	root.PersistentFlags().StringVar(&accountHex, "account", "", "keystore account address (default first account)")
	root.PersistentFlags().StringVar(&logDir, "log-dir", "", "directory for rotated log files")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "trace|debug|info|warn|error|critical|off")
	root.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "send transactions without confirmation")

	root.AddCommand(statusCmd(), switchNetworkCmd(), proposalsCmd(), proposeCmd(), voteCmd(), watchCmd())
	return root.ExecuteContext(ctx)
}

// shutdown releases the session and log files. It runs even when connecting
// or the command itself failed.
func shutdown() {
	if manager != nil {
		manager.Close()
		manager = nil
	}
	if closeProvider != nil {
		closeProvider()
		closeProvider = nil
	}
	closeLogRotator()
}

func applyFlags(cmd *cobra.Command, cfg *Config) {
	flags := cmd.Flags()
	if flags.Changed("rpc") {
		cfg.RPCURL = rpcURL
	}
	if flags.Changed("bridge") {
		cfg.BridgeURL = bridgeURL
	}
	if flags.Changed("keystore") {
		cfg.KeystoreDir = keystoreDir
	}
	if flags.Changed("account") {
		cfg.Account = accountHex
	}
	if flags.Changed("log-dir") {
		cfg.LogDir = logDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
}

// connect builds the wallet provider and opens a session. Being on the wrong
// network is reported but not fatal, so status and switch-network still work.
func connect(ctx context.Context, cfg *Config) error {
	provider, closeFn, err := newProvider(ctx, cfg)
	if err != nil {
		return err
	}
	closeProvider = closeFn

	manager, err = simpledao.NewManager(simpledao.ManagerConfig{Provider: provider})
	if err != nil {
		return err
	}
	if err := manager.Start(); err != nil {
		return err
	}

	err = manager.Connect(ctx)
	if errors.Is(err, simpledao.ErrWrongNetwork) {
		log.Warnf("%v", err)
		return nil
	}
	return err
}

func newProvider(ctx context.Context, cfg *Config) (wallet.Provider, func(), error) {
	if cfg.BridgeURL != "" {
		bridge := wallet.NewBridgeProvider(wallet.BridgeConfig{Endpoint: cfg.BridgeURL})
		if err := bridge.Connect(ctx); err != nil {
			return nil, nil, err
		}
		return bridge, func() { _ = bridge.Disconnect() }, nil
	}

	var account common.Address
	if cfg.Account != "" {
		if !common.IsHexAddress(cfg.Account) {
			return nil, nil, fmt.Errorf("invalid account address %q", cfg.Account)
		}
		account = common.HexToAddress(cfg.Account)
	}

	target := simpledao.TargetNetwork
	ks := keystore.NewKeyStore(cfg.KeystoreDir, keystore.StandardScryptN, keystore.StandardScryptP)

	provider, err := wallet.NewKeystoreProvider(ctx, wallet.KeystoreConfig{
		KeyStore:     ks,
		Account:      account,
		Endpoints:    map[uint64]string{uint64(target.ChainID): cfg.RPCURL},
		InitialChain: uint64(target.ChainID),
		Passphrase:   promptPassphrase,
		Confirm:      confirmTransaction,
	})
	if err != nil {
		return nil, nil, err
	}
	return provider, provider.Close, nil
}

// requireBindings fails with the session's error when contract operations
// are not possible
func requireBindings() (simpledao.State, error) {
	st := manager.State()
	if st.HasBindings() {
		return st, nil
	}
	if st.Err != nil {
		return st, st.Err
	}
	return st, simpledao.ErrNotConnected
}
