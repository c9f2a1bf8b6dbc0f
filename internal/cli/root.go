// Package cli provides the command-line interface for sippr-launcher.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/olcbioinformatics/sippr-launcher/internal/config"
	"github.com/olcbioinformatics/sippr-launcher/internal/constants"
	"github.com/olcbioinformatics/sippr-launcher/internal/core"
	"github.com/olcbioinformatics/sippr-launcher/internal/logging"
	"github.com/olcbioinformatics/sippr-launcher/internal/version"
)

var (
	// Global flags
	cfgFile string
	verbose bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command for CLI mode.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sippr-launcher",
		Short: "GeneSippr Launcher - run GeneSippr on MiSeq run folders",
		Long: constants.AppName + ` ` + version.Version + ` - Built: ` + version.BuildTime + `
Validates a MiSeq run folder, starts the GeneSippr pipeline container,
follows its log and writes the GeneSippr Analysis Report (PDF).

Without a subcommand the graphical launcher opens when a display is
available.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultCLILogger()
			if verbose || os.Getenv(constants.EnvDebug) != "" {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate a shell completion script",
		Long: `Generate a shell completion script for sippr-launcher.

  bash:        source <(sippr-launcher completion bash)
  zsh:         sippr-launcher completion zsh > "${fpath[1]}/_sippr-launcher"
  fish:        sippr-launcher completion fish > ~/.config/fish/completions/sippr-launcher.fish
  powershell:  sippr-launcher completion powershell | Out-String | Invoke-Expression`,
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			default:
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
		},
	}
	rootCmd.AddCommand(completionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI with args.
func Execute(args []string) error {
	rootContext, cancelFunc = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelFunc()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(rootContext)
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newGUICmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the global CLI context with signal handling.
// This context will be cancelled when the user presses Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

// loadConfig reads --config (or the default file) and applies the logging
// section to the CLI logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	log := GetLogger()
	log.EnableFile(logging.FileOptions{Path: cfg.Logging.File})
	if !verbose && os.Getenv(constants.EnvDebug) == "" {
		logging.SetGlobalLevel(logging.ParseLevel(cfg.Logging.Level))
	}
	return cfg, nil
}

// newEngine loads the configuration, validates it and builds an engine.
func newEngine(ctx context.Context, opts ...core.Option) (*core.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return core.NewEngine(ctx, cfg, GetLogger(), opts...)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", constants.AppName, version.Version, version.BuildTime)
		},
	}
}
