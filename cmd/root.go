package cmd

import (
	"errors"
	"io/fs"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jobshell/jsh/core/config"
	"github.com/jobshell/jsh/core/shell"
)

var (
	cfgPath  string
	verbose  bool
	noPrompt bool
)

func loadConfig() (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)

	// The shell works fine without a config file.
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}

	return configuration, err
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "jsh",
	Short: "A tiny interactive shell with job control",
	Long: `jsh reads command lines, runs external programs as child processes
and manages them across foreground, background and stopped states.

Built-ins: quit, jobs, bg <target>, fg <target>.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		configuration, err := loadConfig()
		if err != nil {
			return err
		}
		if verbose {
			configuration.Verbose = true
		}
		if noPrompt {
			configuration.Prompt = ""
		}

		logger, err := newLogger(configuration.Verbose)
		if err != nil {
			return err
		}
		defer logger.Sync()

		sh, err := shell.New(configuration, logger.Sugar())
		if err != nil {
			return err
		}
		defer sh.Close()

		return sh.Run()
	},
}

// newLogger builds the diagnostic logger. User-visible shell output never
// goes through it; only -v diagnostics do.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "config path")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print additional diagnostic information")
	rootCmd.Flags().BoolVarP(&noPrompt, "no-prompt", "p", false, "do not emit a command prompt")
}
