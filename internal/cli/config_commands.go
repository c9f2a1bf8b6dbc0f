package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/olcbioinformatics/sippr-launcher/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage sippr-launcher configuration",
		Long: `Configuration management commands for sippr-launcher.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// configPath returns --config or the default location.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force, defaults bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for sippr-launcher.

The configuration is saved to ~/.config/sippr-launcher/launcher.conf
unless --config is given. Press Enter to keep the value in brackets.

Use --defaults to write the defaults without prompting and --force to
overwrite an existing file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path, err := configPath()
			if err != nil {
				return err
			}

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			cfg := config.NewConfig()
			if !defaults {
				promptConfig(bufio.NewReader(cmd.InOrStdin()), out, cfg)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}
			fmt.Fprintf(out, "Configuration saved to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "Write the default configuration without prompting")
	return cmd
}

// promptConfig asks for the settings that differ between lab machines.
func promptConfig(r *bufio.Reader, w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "GeneSippr Launcher Configuration Setup")
	fmt.Fprintln(w, "======================================")
	fmt.Fprintln(w)

	cfg.Paths.MiseqRoot = promptString(r, w, "MiSeq run folders", cfg.Paths.MiseqRoot)
	cfg.Paths.WorkDir = promptString(r, w, "Work directory", cfg.Paths.WorkDir)
	cfg.Paths.OutputDir = promptString(r, w, "Output directory", cfg.Paths.OutputDir)
	cfg.Paths.ReferenceDB = promptString(r, w, "Reference database", cfg.Paths.ReferenceDB)
	cfg.Paths.SequenceDir = promptString(r, w, "Sequence directory", cfg.Paths.SequenceDir)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Pipeline Settings (press Enter for defaults)")
	fmt.Fprintln(w, "--------------------------------------------")
	cfg.Pipeline.Image = promptString(r, w, "Docker image", cfg.Pipeline.Image)
	cfg.Pipeline.ExtraMounts = promptString(r, w, "Extra mounts (host:container,...)", cfg.Pipeline.ExtraMounts)
	cfg.Pipeline.MinFreeGB = promptInt(r, w, "Minimum free space (GB)", cfg.Pipeline.MinFreeGB)

	fmt.Fprintln(w)
	cfg.Report.Logo = promptString(r, w, "Report logo (PNG/JPEG, optional)", cfg.Report.Logo)
	cfg.Notifications.Enabled = promptBool(r, w, "Desktop notifications", cfg.Notifications.Enabled)
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the configuration that commands will use: the file given with
--config, or the default file, or built-in defaults when neither exists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			printConfig(cmd.OutOrStdout(), cfg)
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "\nWarning: %v\n", err)
			}
			return nil
		},
	}
}

func printConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Current Configuration")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Paths:")
	fmt.Fprintf(w, "  MiSeq Root:     %s\n", cfg.Paths.MiseqRoot)
	fmt.Fprintf(w, "  Work Dir:       %s\n", cfg.Paths.WorkDir)
	fmt.Fprintf(w, "  Output Dir:     %s\n", cfg.Paths.OutputDir)
	fmt.Fprintf(w, "  Pipeline Log:   %s\n", cfg.LogPath())
	fmt.Fprintf(w, "  Reference DB:   %s\n", cfg.Paths.ReferenceDB)
	fmt.Fprintf(w, "  Sequence Dir:   %s\n", cfg.Paths.SequenceDir)
	if cfg.Paths.SampleSheet != "" {
		fmt.Fprintf(w, "  Sample Sheet:   %s\n", cfg.Paths.SampleSheet)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Pipeline:")
	fmt.Fprintf(w, "  Image:          %s\n", cfg.Pipeline.Image)
	fmt.Fprintf(w, "  Conda Env:      %s\n", cfg.Pipeline.CondaEnv)
	fmt.Fprintf(w, "  Entry Script:   %s\n", cfg.Pipeline.EntryScript)
	if mounts, err := cfg.Mounts(); err == nil {
		for _, m := range mounts {
			fmt.Fprintf(w, "  Mount:          %s -> %s\n", m.Host, m.Container)
		}
	}
	fmt.Fprintf(w, "  Poll Interval:  %s\n", cfg.PollInterval())
	fmt.Fprintf(w, "  Grace Polls:    %d\n", cfg.Pipeline.CompletionGracePolls)
	fmt.Fprintf(w, "  Min Free:       %d GB\n", cfg.Pipeline.MinFreeGB)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Report:")
	fmt.Fprintf(w, "  Suffix:         %s\n", cfg.Report.Suffix)
	fmt.Fprintf(w, "  Logo:           %s\n", valueOr(cfg.Report.Logo, "<none>"))
	fmt.Fprintf(w, "  YAML Export:    %v\n", cfg.Report.ExportYAML)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Delivery:")
	fmt.Fprintf(w, "  Notifications:  %v\n", cfg.Notifications.Enabled)
	fmt.Fprintf(w, "  Archive:        %s", valueOr(cfg.Archive.Provider, config.ArchiveNone))
	switch cfg.Archive.Provider {
	case config.ArchiveS3:
		fmt.Fprintf(w, " (s3://%s/%s)", cfg.Archive.Bucket, cfg.Archive.Prefix)
	case config.ArchiveAzure:
		// The connection string carries the account key
		fmt.Fprintf(w, " (container %s, connection string <set (%d chars)>)",
			cfg.Archive.AzureContainer, len(cfg.Archive.AzureConnectionString))
	}
	fmt.Fprintln(w)
	if cfg.Mail.Enabled {
		fmt.Fprintf(w, "  Mail:           %s -> %v\n", cfg.Mail.From, cfg.MailRecipients())
	} else {
		fmt.Fprintln(w, "  Mail:           disabled")
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Launcher Log:     %s (%s)\n", cfg.LogFilePath(), cfg.Logging.Level)
	if path, err := cfg.HistoryPath(); err == nil {
		fmt.Fprintf(w, "History DB:       %s\n", path)
	}
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, path)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(out, "(file does not exist; run 'sippr-launcher config init')")
			}
			return nil
		},
	}
}
