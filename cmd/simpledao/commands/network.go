package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	simpledao "github.com/kaifufi/simpledao-client-go"
)

const switchWait = 30 * time.Second

// switch-network: ask the wallet to move to the target network and wait for
// the session to follow.
func switchNetworkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch-network",
		Short: "Switch the wallet to " + simpledao.TargetNetwork.Name,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if manager.State().OnTargetNetwork {
				fmt.Printf("Already on %s\n", manager.Target().Name)
				return nil
			}

			states := make(chan simpledao.State, 8)
			sub := manager.SubscribeState(states)
			defer sub.Unsubscribe()

			if err := manager.SwitchNetwork(cmd.Context()); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), switchWait)
			defer cancel()

			for {
				select {
				case st := <-states:
					if st.OnTargetNetwork && st.HasBindings() {
						fmt.Printf("Switched to %s\n", manager.Target().Name)
						return nil
					}
				case <-ctx.Done():
					return fmt.Errorf("wallet did not report the network change: %w", ctx.Err())
				}
			}
		},
	}
}
