package commands

import (
	"os"

	"github.com/spf13/cobra"

	"gossips/internal/app"
	"gossips/internal/logger"
)

var (
	home       string
	configPath string
	peerID     string
	logLevel   string

	cfg *app.Config
)

func Execute() error {
	root := &cobra.Command{
		Use:          "gossips",
		Short:        "Two-peer chat with an opt-in secure mode",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := app.Load(configPath)
			if err != nil {
				return err
			}
			if home != "" {
				if loaded.Cache.Dir == loaded.Home {
					loaded.Cache.Dir = home
				}
				loaded.Home = home
			}
			if peerID != "" {
				loaded.PeerID = peerID
			}
			if logLevel != "" {
				loaded.LogLevel = logLevel
			}
			if err := logger.Init(loaded.Environment, loaded.LogLevel, os.Stderr); err != nil {
				return err
			}
			if err := os.MkdirAll(loaded.Home, 0o700); err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "data dir (default ~/.gossips)")
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yaml or ~/.gossips/config.yaml)")
	root.PersistentFlags().StringVar(&peerID, "peer", "", "your peer id (overrides peer_id)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(roomCmd(), chatCmd(), demoCmd())
	return root.Execute()
}
