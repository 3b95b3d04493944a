// Package config binds the spacer CLI's viper-backed configuration: a
// YAML file (".spacer.yaml", home-directory default), environment
// variables, and command-line flags, in that increasing order of
// precedence.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Keys mirror the CLI flags of `spacer plan`, kept as named constants so
// cmd/plan and this package never drift apart on a typo'd string.
const (
	KeyWorkspace    = "workspace"
	KeyLoc          = "loc"
	KeyAlign        = "align"
	KeyRel          = "rel"
	KeyVerbose      = "verbose"
	KeyUnikernels   = "unikernels"
	KeyCustomLoader = "custom_loader"
	KeyCopyObjs     = "copy_objs"
	KeyASLR         = "aslr"
)

// Init points viper at cfgFile (if set) or the default
// "$HOME/.spacer.yaml", enables environment variable overrides, and
// silently continues if no config file is found: a config file is a
// convenience, not a requirement.
func Init(cfgFile string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".spacer")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// BindFlags binds every flag in fs to its matching viper key so
// CLI > env > file precedence holds without each command re-deriving it.
func BindFlags(fs *pflag.FlagSet, keys ...string) error {
	for _, key := range keys {
		if err := viper.BindPFlag(key, fs.Lookup(key)); err != nil {
			return fmt.Errorf("config: binding flag %q: %w", key, err)
		}
	}
	return nil
}
