package main

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "WALLETCTL"

// cli carries the resolved settings shared by every subcommand.
type cli struct {
	v      *viper.Viper
	client *apiClient
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "walletctl",
		Short:         "Wallet ledger CLI tool",
		Long:          `A command line interface for the wallet ledger API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd, configFile)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default $HOME/.walletctl.yaml)")
	flags.String("url", "http://localhost:8080", "Base URL of the wallet ledger API")
	flags.Duration("timeout", 10*time.Second, "Request timeout")
	flags.String("token", "", "Bearer token sent with every request")

	rootCmd.AddCommand(
		c.walletCmd(),
		c.transferCmd(),
		c.reconcileCmd(),
		c.tokenCmd(),
		c.migrateCmd(),
	)

	return rootCmd
}

// load merges flags, WALLETCTL_* environment variables and the config file,
// in that order of precedence.
func (c *cli) load(cmd *cobra.Command, configFile string) error {
	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	if err := c.v.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
		return err
	}
	if err := c.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if configFile != "" {
		c.v.SetConfigFile(configFile)
	} else {
		c.v.AddConfigPath("$HOME")
		c.v.SetConfigName(".walletctl")
		c.v.SetConfigType("yaml")
	}
	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return err
		}
	}

	c.client = newAPIClient(c.v.GetString("url"), c.v.GetString("token"), c.v.GetDuration("timeout"))
	return nil
}
