package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// proposals active|results: list proposals.
func proposalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proposals",
		Short: "List DAO proposals",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "active",
		Short: "List proposals open for voting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := requireBindings(); err != nil {
				return err
			}
			proposals, err := manager.ActiveProposals(cmd.Context())
			if err != nil {
				return err
			}
			if len(proposals) == 0 {
				fmt.Println("No active proposals.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFOR\tAGAINST\tENDS\tVOTED\tDESCRIPTION")
			for _, p := range proposals {
				fmt.Fprintf(w, "%v\t%v\t%v\t%s\t%s\t%s\n",
					p.ID, p.VotesFor, p.VotesAgainst,
					p.Deadline.Format(time.DateTime), yesNo(p.CallerHasVoted), p.Description)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "results",
		Short: "List closed proposals and their outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := requireBindings(); err != nil {
				return err
			}
			proposals, err := manager.ProposalResults(cmd.Context())
			if err != nil {
				return err
			}
			if len(proposals) == 0 {
				fmt.Println("No closed proposals yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFOR\tAGAINST\tENDED\tRESULT\tDESCRIPTION")
			for _, p := range proposals {
				fmt.Fprintf(w, "%v\t%v\t%v\t%s\t%s\t%s\n",
					p.ID, p.VotesFor, p.VotesAgainst,
					p.Deadline.Format(time.DateTime), p.Result, p.Description)
			}
			return w.Flush()
		},
	})

	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
