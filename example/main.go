// Example usage of the SimpleDAO client with a browser wallet bridge
package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	simpledao "github.com/kaifufi/simpledao-client-go"
	"github.com/kaifufi/simpledao-client-go/wallet"
)

func main() {
	ctx := context.Background()

	// Connect to the bridge page running next to the browser wallet
	bridge := wallet.NewBridgeProvider(wallet.BridgeConfig{
		Endpoint: wallet.DefaultBridgeEndpoint,
	})
	if err := bridge.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect to wallet bridge: %v", err)
	}
	defer bridge.Disconnect()

	manager, err := simpledao.NewManager(simpledao.ManagerConfig{Provider: bridge})
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}
	if err := manager.Start(); err != nil {
		log.Fatalf("Failed to start manager: %v", err)
	}
	defer manager.Close()

	// Example: Connect the wallet, switching network if needed
	fmt.Println("Connecting wallet...")
	err = manager.Connect(ctx)
	if errors.Is(err, simpledao.ErrWrongNetwork) {
		fmt.Println(err)
		if err := manager.SwitchNetwork(ctx); err != nil {
			log.Fatalf("Failed to switch network: %v", err)
		}
		// The wallet's chain-changed notification rebuilds the bindings
	} else if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}

	st := manager.State()
	fmt.Printf("Account: %s, GOV balance: %s, voting power: %v\n",
		st.Account.Hex(), st.FormattedBalance(), st.VotingPower)

	// Example: List active proposals
	fmt.Println("\nFetching active proposals...")
	active, err := manager.ActiveProposals(ctx)
	if err != nil {
		log.Printf("Failed to get active proposals: %v", err)
	}
	for _, p := range active {
		fmt.Printf("#%v %s (for %v / against %v, voted: %v)\n",
			p.ID, p.Description, p.VotesFor, p.VotesAgainst, p.CallerHasVoted)
	}

	// Example: Vote yes on the newest proposal
	if len(active) > 0 && st.VotingPower && !active[0].CallerHasVoted {
		result, err := manager.Vote(ctx, active[0], true)
		if err != nil {
			log.Printf("Failed to vote: %v", err)
		} else {
			fmt.Printf("Voted in transaction %s\n", result.TxHash.Hex())
		}
	}

	// Example: Show results
	fmt.Println("\nFetching results...")
	results, err := manager.ProposalResults(ctx)
	if err != nil {
		log.Printf("Failed to get results: %v", err)
	}
	for _, p := range results {
		fmt.Printf("#%v %s: %s\n", p.ID, p.Description, p.Result)
	}
}
