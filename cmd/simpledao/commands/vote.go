package commands

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/spf13/cobra"
)

// vote <id> <yes|no>: vote on an active proposal.
func voteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vote <id> <yes|no>",
		Short: "Vote on an active proposal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := new(big.Int).SetString(args[0], 10)
			if !ok || id.Sign() < 0 {
				return fmt.Errorf("invalid proposal id %q", args[0])
			}

			var support bool
			switch strings.ToLower(args[1]) {
			case "yes", "y", "for":
				support = true
			case "no", "n", "against":
				support = false
			default:
				return fmt.Errorf("vote must be yes or no, got %q", args[1])
			}

			if _, err := requireBindings(); err != nil {
				return err
			}

			proposal, err := manager.Proposal(cmd.Context(), id)
			if err != nil {
				return err
			}

			result, err := manager.Vote(cmd.Context(), proposal, support)
			if err != nil {
				return err
			}
			fmt.Printf("Successfully voted on proposal #%v! Transaction: %s\n", id, result.TxHash.Hex())

			updated, err := manager.Proposal(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Printf("Votes for: %v | Votes against: %v\n", updated.VotesFor, updated.VotesAgainst)
			return nil
		},
	}
}
