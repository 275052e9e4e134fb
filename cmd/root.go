package cmd

import (
	"context"
	"fmt"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdcore "github.com/projecteru2/scopelock/cmd/core"
	cmdlock "github.com/projecteru2/scopelock/cmd/lock"
	cmdothers "github.com/projecteru2/scopelock/cmd/others"
	"github.com/projecteru2/scopelock/config"
)

var (
	cfgFile string
	conf    *config.Config
)

var rootCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "scopelock",
		Short:         "scopelock - scoped FIFO locks for processes and goroutines",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmdcore.CommandContext(cmd))
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file path")
	flags.String("root-dir", "", "root data directory (holder registry)")
	flags.String("run-dir", "", "runtime directory (lock files)")
	flags.Duration("poll-interval", 0, "interval between lock probes in wait")

	// viper key → flag name
	for key, name := range map[string]string{
		"root_dir":      "root-dir",
		"run_dir":       "run-dir",
		"poll_interval": "poll-interval",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(name))
	}

	viper.SetEnvPrefix("SCOPELOCK")
	viper.AutomaticEnv()

	base := cmdcore.BaseHandler{ConfProvider: func() *config.Config { return conf }}

	for _, c := range cmdlock.Commands(cmdlock.Handler{BaseHandler: base}) {
		cmd.AddCommand(c)
	}
	for _, c := range cmdothers.Commands(cmdothers.Handler{BaseHandler: base}) {
		cmd.AddCommand(c)
	}

	return cmd
}()

func initConfig(ctx context.Context) error {
	conf = config.DefaultConfig()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	_ = viper.ReadInConfig() // optional; missing file is OK

	if err := viper.Unmarshal(conf); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	conf.Normalize()

	return log.SetupLog(ctx, &conf.Log, "")
}

// Execute is the main entry point called from main.go.
func Execute() error {
	ctx, cancel := newCommandContext()
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}
