package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	simpledao "github.com/kaifufi/simpledao-client-go"
)

// watch: print every session change until interrupted.
func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print session changes reported by the wallet until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			states := make(chan simpledao.State, 16)
			sub := manager.SubscribeState(states)
			defer sub.Unsubscribe()

			printState(manager.State(), manager.Target())

			for {
				select {
				case st := <-states:
					if st.Loading {
						continue
					}
					fmt.Printf("\n[%s]\n", time.Now().Format(time.TimeOnly))
					printState(st, manager.Target())
				case err := <-sub.Err():
					return err
				case <-cmd.Context().Done():
					return nil
				}
			}
		},
	}
}
