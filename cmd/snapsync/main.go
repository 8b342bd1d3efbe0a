package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"snapsync/internal/app"
	"snapsync/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file from the default location.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a SnapApp. The caller must defer app.Close().
func newApp(verbose bool) (*app.SnapApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewSnapApp(cfg, app.Options{Verbose: verbose})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// signalContext is cancelled on interrupt or termination, so a run stopped
// by the operator still removes its staging state.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var rootCmd = &cobra.Command{
	Use:          "snapsync",
	Short:        "Snapshot a project directory and sync it to remote storage",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig("", defaults.BaseDir)
		cfg.Snapshot.TempDir = defaults.TempDir
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		fmt.Printf("Temp Dir: %s\n", defaults.TempDir)
		fmt.Printf("Place your OAuth client secret at %s\n", cfg.Credentials.ClientSecretPath)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("# Configuration from %s\n\n", defaults.ConfigPath)
		m := &config.Manager{}
		return m.Write(os.Stdout, cfg)
	},
}

// snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot [PATH]",
	Short: "Archive a project and upload it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		exitOnSuccess, _ := cmd.Flags().GetBool("exit-on-success")
		hostPID, _ := cmd.Flags().GetInt("host-pid")
		name, _ := cmd.Flags().GetString("name")

		target := "."
		if len(args) > 0 {
			target = args[0]
		}

		a, err := newApp(verbose)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		res, err := a.Snapshot(ctx, target, name, exitOnSuccess)
		if err != nil {
			return err
		}
		if res.Err != nil {
			return fmt.Errorf("snapshot failed while %s: %w", res.FailedIn, res.Err)
		}

		fmt.Printf("%s %s (%s, ID: %s)\n",
			res.Sync.Action,
			res.Job.LogicalName,
			humanize.IBytes(uint64(res.Archive.Size)),
			res.Sync.Object.ID,
		)
		if res.Sync.Duplicates > 0 {
			fmt.Printf("warning: %d other remote file(s) share this name and were left unchanged\n", res.Sync.Duplicates)
		}

		if res.ExitRequested() && hostPID > 0 {
			if err := terminateHost(hostPID); err != nil {
				return err
			}
		}
		return nil
	},
}

// terminateHost asks the process that launched the snapshot to exit.
func terminateHost(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding host process %d: %w", pid, err)
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("terminating host process %d: %w", pid, err)
	}
	return nil
}

// auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Obtain or validate the remote credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")

		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		cred, err := a.Authenticate(ctx, name)
		if err != nil {
			return err
		}

		if cred.Expiry.IsZero() {
			fmt.Printf("Credential ready (%s)\n", cred.Provider)
		} else {
			fmt.Printf("Credential ready (%s), expires %s\n", cred.Provider, humanize.Time(cred.Expiry))
		}
		return nil
	},
}

var authKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Create the identity that encrypts stored tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		recipient, err := app.GenerateIdentity(cfg)
		if err != nil {
			return err
		}

		fmt.Printf("Identity written to %s\n", cfg.Credentials.IdentityPath)
		fmt.Printf("Public key: %s\n", recipient)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View snapshot run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.GetHistory(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No snapshot runs recorded.")
			return nil
		}

		for _, rec := range runs {
			fmt.Println(app.FormatRun(rec))
		}
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify ARCHIVE DEST",
	Short: "Extract an archive to check that it restores",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := app.Verify(args[0], args[1])
		if err != nil {
			return fmt.Errorf("verify failed: %w", err)
		}

		fmt.Printf("Extracted %d entries to %s\n", n, args[1])
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// auth subcommands
	authCmd.AddCommand(authKeygenCmd)
	authCmd.Flags().String("name", "", "Project name scoping the stored token")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.Flags().BoolP("verbose", "v", false, "Show per-stage progress")
	snapshotCmd.Flags().Bool("exit-on-success", false, "Terminate the host process after a successful upload")
	snapshotCmd.Flags().Int("host-pid", 0, "PID of the host process to terminate with --exit-on-success")
	snapshotCmd.Flags().String("name", "", "Project name (default: config name, then directory name)")
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
	rootCmd.AddCommand(verifyCmd)
}
