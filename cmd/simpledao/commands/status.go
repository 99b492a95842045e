package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	simpledao "github.com/kaifufi/simpledao-client-go"
)

// status: print the session.
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the connected account, network and voting power",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printState(manager.State(), manager.Target())
			return nil
		},
	}
}

func printState(st simpledao.State, target simpledao.Network) {
	if !st.Connected() {
		fmt.Println("Wallet:        not connected")
		if st.Err != nil {
			fmt.Printf("Error:         %s\n", st.ErrorMessage())
		}
		return
	}

	fmt.Printf("Account:       %s\n", st.Account.Hex())
	fmt.Printf("Network:       %v", st.ChainID)
	if st.OnTargetNetwork {
		fmt.Printf(" (%s)\n", target.Name)
	} else {
		fmt.Printf(" (wrong network, expected %s)\n", target.Name)
	}

	if st.HasBindings() {
		fmt.Printf("GOV balance:   %s\n", st.FormattedBalance())
		fmt.Printf("Voting power:  %v\n", st.VotingPower)
	}
	if st.Err != nil {
		fmt.Printf("Error:         %s\n", st.ErrorMessage())
	}
}
