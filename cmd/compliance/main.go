package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"compliance/internal/app"
	"compliance/internal/config"
	"compliance/internal/tui"
)

var (
	// Global flags
	verbose bool
	cfgPath string

	cfg    *config.AppConfig
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "compliance",
	Short: "Compliance validation against yearly reference regulations",
	Long: `compliance manages compliance pointers and their supporting documents and
checks them against a reference index built from the regulations of a year
and language.

Run without arguments to start the interactive terminal UI.`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runInteractive,
}

func persistentPreRun(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	// The terminal UI owns the screen.
	if cmd == rootCmd && !verbose {
		logger = zap.NewNop()
		return nil
	}
	logger, err = app.NewLogger(cfg.Log, verbose)
	if err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	return nil
}

func init() {
	// Assigned here to avoid an initialization cycle: the hook refers to rootCmd.
	rootCmd.PersistentPreRunE = persistentPreRun

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to YAML config file (default ./config.yaml or ~/.config/compliance/config.yaml)")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(pointerCmd)
	rootCmd.AddCommand(documentCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openApp(ctx context.Context) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

func runInteractive(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	m := tui.New(ctx, tui.NewBackend(a))
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return err
	}
	return nil
}
