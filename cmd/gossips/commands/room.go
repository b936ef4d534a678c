package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"gossips/internal/domain"
)

// room <a> <b>: print the shared room id.
func roomCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "room <peer-a> <peer-b>",
		Short: "Print the room id two peers share",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			room, err := domain.DeriveRoomID(domain.PeerID(args[0]), domain.PeerID(args[1]))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), room)
			return nil
		},
	}
}
