package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "OPCORE"

type rootOptions struct {
	v          *viper.Viper
	configFile string
}

func newRootCommand() *cobra.Command {
	return newRootCommandWith(&rootOptions{v: viper.New()})
}

func newRootCommandWith(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "opctl",
		Short: "Exercise the opcore operation driver",
		Long: `opctl runs synthetic native operations through opcore realms and the host loop.

Flags can also be set with OPCORE_* environment variables (OPCORE_POOL_SIZE=4)
or a YAML config file passed with --config.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file")
	cmd.PersistentFlags().Bool("debug", false, "debug logging")

	cmd.AddCommand(newRunCommand(opts))
	return cmd
}

// load binds flags, environment and the config file, in increasing order of
// precedence: file, env, explicit flags.
func (o *rootOptions) load(cmd *cobra.Command) error {
	o.v.SetEnvPrefix(envPrefix)
	o.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	o.v.AutomaticEnv()

	if err := o.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if o.configFile != "" {
		o.v.SetConfigFile(o.configFile)
		o.v.SetConfigType("yaml")
		if err := o.v.ReadInConfig(); err != nil {
			return err
		}
	}
	return nil
}

func (o *rootOptions) logger(quiet bool) (*zap.Logger, error) {
	switch {
	case quiet:
		return zap.NewNop(), nil
	case o.v.GetBool("debug"):
		return zap.NewDevelopment()
	default:
		return zap.NewProduction()
	}
}
