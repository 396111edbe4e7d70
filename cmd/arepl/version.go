package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/arepl"
	"github.com/aretw0/arepl/pkg/config"
	"github.com/aretw0/arepl/pkg/interpreter"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of arepl",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "arepl version %s\n", strings.TrimSpace(arepl.Version))

		if python, _ := cmd.Flags().GetBool("python"); !python {
			return nil
		}
		configPath, _ := cmd.Flags().GetString("config")
		settings, err := config.Load(configPath)
		if err != nil {
			return err
		}
		path, err := config.ResolveInterpreter(settings)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		version, err := interpreter.CheckVersion(ctx, path)
		if err != nil {
			return err
		}
		compat := ""
		switch {
		case version == "":
			version = "unknown"
		case !interpreter.Compatible(version):
			compat = " (unsupported)"
		}
		fmt.Fprintf(out, "python %s%s at %s\n", version, compat, path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("python", false, "Also report the configured Python interpreter")
}
