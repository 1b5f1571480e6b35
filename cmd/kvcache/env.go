package main

import (
	"fmt"

	"github.com/shopmonkeyus/go-kvcache/config"
	"github.com/spf13/cobra"
)

func envCommand(root *rootCommand) *cobra.Command {
	var write string
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Print the effective settings as an env file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines := root.cfg.EnvLines()
			if write != "" {
				if err := config.WriteEnvFile(write, lines); err != nil {
					return err
				}
				root.logger.Info("wrote %d settings to %s", len(lines), write)
				return nil
			}
			for _, el := range lines {
				fmt.Fprintln(cmd.OutOrStdout(), config.EncodeEnv(el.Key, el.Val))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&write, "write", "", "write the settings to this file instead of printing them")
	return cmd
}
