package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"compliance/internal/compliance"
	"compliance/internal/config"
	"compliance/internal/server"
)

var (
	checkJSON   bool
	configForce bool
)

// checkCmd runs a compliance check
var checkCmd = &cobra.Command{
	Use:   "check [pointer-id]",
	Short: "Check a pointer's documents against the reference index",
	Long: `Transcribes the pointer's supporting documents, retrieves the closest
reference passages for its year and language and asks the language model for
a verdict. The verdict is stored and becomes the pointer's compliance status.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

var resultsCmd = &cobra.Command{
	Use:   "results [pointer-id]",
	Short: "List the stored compliance results of a pointer",
	Args:  cobra.ExactArgs(1),
	RunE:  listResults,
}

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE:  initConfig,
}

func init() {
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Print the full report as JSON")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	checker, err := a.Checker()
	if err != nil {
		return err
	}
	report, err := checker.Check(ctx, args[0])
	if err != nil {
		return err
	}
	if checkJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(cmd.OutOrStdout(), report)
	return nil
}

func printReport(w io.Writer, r *compliance.Report) {
	fmt.Fprintf(w, "Compliance Status: %s\n", r.Status)
	if r.Reasons != "" {
		fmt.Fprintf(w, "\nReasons for Compliance Status:\n%s\n", r.Reasons)
	}
	if r.Extraction != nil {
		for _, f := range r.Extraction.Failures {
			if f.Page == 0 {
				fmt.Fprintf(w, "\nwarning: %s: %s", f.Document, f.Err)
				continue
			}
			fmt.Fprintf(w, "\nwarning: %s page %d: %s", f.Document, f.Page, f.Err)
		}
		if len(r.Extraction.Failures) > 0 {
			fmt.Fprintln(w)
		}
	}
	fmt.Fprintf(w, "\nAnalysis completed in %.2f seconds (%d of %d reference chunks used)\n",
		r.Elapsed.Seconds(), len(r.Chunks), r.Retrieved)
}

func listResults(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Store.GetPointer(ctx, args[0]); err != nil {
		return err
	}
	results, err := a.Store.ListResults(ctx, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No compliance results.")
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(out, "%s  %s  %s\n", r.CheckedAt.Format("2006-01-02 15:04:05"), r.ID, r.Status)
		if r.Details != "" {
			fmt.Fprintf(out, "%s\n", r.Details)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	checker := func() (server.Checker, error) {
		c, err := a.Checker()
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return server.New(a.Store, a.Pointers, checker, logger.Named("server")).Run(ctx, cfg.Server.Addr)
}

func initConfig(cmd *cobra.Command, args []string) error {
	path := "config.yaml"
	if len(args) == 1 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil && !configForce {
		return errors.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Save(path, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
	return nil
}
