// Package commands defines the simpledao CLI.
//
// Commands
//
//   - status          Show the wallet session, network and voting power
//   - switch-network  Ask the wallet to switch to the DAO's network
//   - proposals       List active proposals or closed proposal results
//   - propose         Create a proposal
//   - vote            Vote yes or no on an active proposal
//   - watch           Print session changes as the wallet reports them
//
// # Wallets
//
// With --bridge (or SIMPLEDAO_BRIDGE_URL) the CLI talks to a browser wallet
// through a WebSocket bridge page. Otherwise it uses a local keystore
// account and signs against the node at --rpc, prompting for the
// passphrase and for confirmation before each transaction.
package commands
