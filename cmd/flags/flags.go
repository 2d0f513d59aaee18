// SPDX-License-Identifier: Apache-2.0

package flags

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func DatabasePath() string {
	return viper.GetString("PATH")
}

func Dialect() string {
	return viper.GetString("DIALECT")
}

func Format() string {
	return viper.GetString("FORMAT")
}

func Deterministic() bool {
	return viper.GetBool("DETERMINISTIC")
}

// EngineFlags registers the flags shared by every subcommand that opens
// an engine handle (spec §6 "CLI boundary").
func EngineFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("path", "", "Path to the .lix database file (empty opens an in-memory SQLite database)")
	cmd.PersistentFlags().String("dialect", "sqlite", "Backend dialect: sqlite or postgres")
	cmd.PersistentFlags().Bool("deterministic", false, "Enable deterministic uuid_v7()/timestamp() counters")

	viper.BindPFlag("PATH", cmd.PersistentFlags().Lookup("path"))
	viper.BindPFlag("DIALECT", cmd.PersistentFlags().Lookup("dialect"))
	viper.BindPFlag("DETERMINISTIC", cmd.PersistentFlags().Lookup("deterministic"))
}
