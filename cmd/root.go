// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opral/lix-sub005/cmd/flags"
	"github.com/opral/lix-sub005/internal/backend"
	"github.com/opral/lix-sub005/pkg/engine"
)

// Version is the lix CLI version.
var Version = "development"

func init() {
	viper.SetEnvPrefix("LIX")
	viper.AutomaticEnv()

	flags.EngineFlags(rootCmd)

	rootCmd.PersistentFlags().String("format", "table", "Output format for query results: table or json")
	viper.BindPFlag("FORMAT", rootCmd.PersistentFlags().Lookup("format"))
}

var rootCmd = &cobra.Command{
	Use:          "lix",
	Short:        "lix is a change-tracked, versioned state engine over SQLite and Postgres",
	SilenceUsage: true,
	Version:      Version,
}

// NewEngine opens the backend named by --path/--dialect, boots an Engine
// against it, and runs its init sequence. Callers are responsible for
// closing the returned engine.
func NewEngine(ctx context.Context) (*engine.Engine, error) {
	var b backend.Backend
	var err error

	path := flags.DatabasePath()
	switch flags.Dialect() {
	case "postgres":
		b, err = backend.OpenPostgres(ctx, path)
	default:
		if path == "" {
			path = ":memory:"
		}
		b, err = backend.OpenSQLite(ctx, path)
	}
	if err != nil {
		return nil, err
	}

	e, err := engine.New(b, engine.NewLogger())
	if err != nil {
		return nil, err
	}
	if flags.Deterministic() {
		e.EnableDeterministicMode(1)
	}
	if err := e.Init(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Execute executes the root command.
func Execute() error {
	rootCmd.AddCommand(sqlCmd())

	return rootCmd.Execute()
}
