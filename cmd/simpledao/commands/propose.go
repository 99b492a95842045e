package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// propose <description>: create a proposal.
func proposeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "propose <description>",
		Short: "Create a new proposal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := requireBindings(); err != nil {
				return err
			}

			result, err := manager.CreateProposal(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Printf("Proposal created successfully! Transaction: %s (block %v)\n", result.TxHash.Hex(), result.BlockNumber)
			return nil
		},
	}
}
