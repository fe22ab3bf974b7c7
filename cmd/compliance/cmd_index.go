package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"compliance/internal/domain"
	"compliance/internal/retrieval"
)

var (
	indexYear     int
	indexLanguage string
	searchTopK    int
)

// indexCmd groups reference index maintenance
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build and inspect reference indexes",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build [paths...]",
	Short: "Build the reference index for a year and language",
	Long: `Loads the reference regulations (PDF pages and .txt files, directories and
glob patterns are expanded), chunks and embeds them and replaces the index for
the given year and language.

Example:
  compliance index build --year 2024 --language English regulations/2024/en`,
	Args: cobra.MinimumNArgs(1),
	RunE: buildIndex,
}

var indexListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the built reference indexes",
	RunE:  listIndexes,
}

// searchCmd queries a reference index
var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search a reference index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  searchIndex,
}

func init() {
	for _, c := range []*cobra.Command{indexBuildCmd, searchCmd} {
		c.Flags().IntVar(&indexYear, "year", 0, "Compliance year (required)")
		c.Flags().StringVar(&indexLanguage, "language", string(domain.LanguageEnglish), "Reference language")
		_ = c.MarkFlagRequired("year")
	}
	searchCmd.Flags().IntVarP(&searchTopK, "top", "k", 0, "Number of results (default from config)")

	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexListCmd)
}

func indexKey() domain.IndexKey {
	return domain.IndexKey{Year: indexYear, Language: domain.Language(indexLanguage)}
}

func buildIndex(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	builder, err := a.Builder()
	if err != nil {
		return err
	}
	key := indexKey()
	logger.Info("building reference index", zap.Stringer("index", key), zap.Strings("paths", args))
	report, err := builder.Build(ctx, key, args)
	if err != nil {
		return errors.Wrapf(err, "build index %s", key)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Index %s built: %d documents, %d chunks, dimension %d\n",
		report.Key, report.Documents, report.Chunks, report.Dimension)
	for _, s := range report.Skipped {
		fmt.Fprintf(out, "skipped %s\n", s)
	}
	if report.Summary != "" {
		fmt.Fprintf(out, "\nSummary:\n%s\n", report.Summary)
	}
	return nil
}

func listIndexes(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	catalog, err := a.Indexes()
	if err != nil {
		return err
	}
	keys, err := catalog.Keys()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No reference indexes built yet.")
		return nil
	}
	t := newTable("Year", "Language", "Embedder", "Documents", "Chunks", "Built")
	for _, k := range keys {
		idx, err := catalog.Open(ctx, k)
		if err != nil {
			t.Row(strconv.Itoa(k.Year), string(k.Language), "error: "+err.Error(), "", "", "")
			continue
		}
		m := idx.Manifest
		t.Row(strconv.Itoa(k.Year), string(k.Language), m.Embedder,
			strconv.Itoa(m.Documents), strconv.Itoa(m.Chunks), m.BuiltAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(cmd.OutOrStdout(), t)
	return nil
}

func searchIndex(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	catalog, err := a.Indexes()
	if err != nil {
		return err
	}
	idx, err := catalog.Open(ctx, indexKey())
	if err != nil {
		return err
	}
	retriever := a.Retriever
	if searchTopK > 0 {
		opts := retriever.Options()
		opts.TopK = searchTopK
		retriever = retrieval.NewRetriever(opts, logger.Named("retrieval"))
	}
	results, err := retriever.Retrieve(ctx, idx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(out, "%d. score=%.4f  %s\n%s\n\n", i+1, r.Score, r.Chunk.Source, strings.TrimSpace(r.Chunk.Text))
	}
	return nil
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers(headers...)
}
