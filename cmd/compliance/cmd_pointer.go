package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"compliance/internal/domain"
	"compliance/internal/pointer"
	"compliance/internal/store"
)

var (
	pointerName         string
	pointerObjective    string
	pointerRequirements string
	pointerPoints       string
	pointerLanguage     string
	pointerYear         int
	pointerFiles        []string

	listYear     int
	listLanguage string
	downloadOut  string
)

// pointerCmd groups pointer management
var pointerCmd = &cobra.Command{
	Use:   "pointer",
	Short: "Create, inspect, edit and delete compliance pointers",
}

var pointerCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a pointer with at least one supporting document",
	Long: `Creates a compliance pointer. Multi-line fields accept one item per line;
leading "1." style numbering is removed.

Example:
  compliance pointer create --name "Data Retention" --year 2024 --language English \
    --requirements "Retain records for five years" --file policy.pdf`,
	Args: cobra.NoArgs,
	RunE: createPointer,
}

var pointerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pointers",
	Args:  cobra.NoArgs,
	RunE:  listPointers,
}

var pointerShowCmd = &cobra.Command{
	Use:   "show [pointer-id]",
	Short: "Show a pointer with its documents",
	Args:  cobra.ExactArgs(1),
	RunE:  showPointer,
}

var pointerUpdateCmd = &cobra.Command{
	Use:   "update [pointer-id]",
	Short: "Update a pointer; its compliance status is reset to Not Checked",
	Args:  cobra.ExactArgs(1),
	RunE:  updatePointer,
}

var pointerDeleteCmd = &cobra.Command{
	Use:   "delete [pointer-id]",
	Short: "Delete a pointer with its documents and results",
	Args:  cobra.ExactArgs(1),
	RunE:  deletePointer,
}

// documentCmd groups supporting document management
var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Manage supporting documents",
}

var documentAddCmd = &cobra.Command{
	Use:   "add [pointer-id] [files...]",
	Short: "Attach documents to a pointer",
	Args:  cobra.MinimumNArgs(2),
	RunE:  addDocuments,
}

var documentListCmd = &cobra.Command{
	Use:   "list [pointer-id]",
	Short: "List the documents of a pointer",
	Args:  cobra.ExactArgs(1),
	RunE:  listDocuments,
}

var documentDeleteCmd = &cobra.Command{
	Use:   "delete [document-id]",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE:  deleteDocument,
}

var documentDownloadCmd = &cobra.Command{
	Use:   "download [document-id]",
	Short: "Write a document to disk",
	Args:  cobra.ExactArgs(1),
	RunE:  downloadDocument,
}

func init() {
	for _, c := range []*cobra.Command{pointerCreateCmd, pointerUpdateCmd} {
		c.Flags().StringVar(&pointerName, "name", "", "Pointer name")
		c.Flags().StringVar(&pointerObjective, "objective", "", "Objective")
		c.Flags().StringVar(&pointerRequirements, "requirements", "", "Compliance requirements, one per line")
		c.Flags().StringVar(&pointerPoints, "points", "", "Supporting document points, one per line")
		c.Flags().StringVar(&pointerLanguage, "language", string(domain.LanguageEnglish), "Reference language")
		c.Flags().IntVar(&pointerYear, "year", 0, "Compliance year")
		c.Flags().StringSliceVarP(&pointerFiles, "file", "f", nil, "Supporting document to upload (repeatable)")
	}
	_ = pointerCreateCmd.MarkFlagRequired("name")
	_ = pointerCreateCmd.MarkFlagRequired("year")

	pointerListCmd.Flags().IntVar(&listYear, "year", 0, "Only pointers of this year")
	pointerListCmd.Flags().StringVar(&listLanguage, "language", "", "Only pointers of this language")
	documentDownloadCmd.Flags().StringVarP(&downloadOut, "out", "o", "", "Output path (default: the document name)")

	pointerCmd.AddCommand(pointerCreateCmd, pointerListCmd, pointerShowCmd, pointerUpdateCmd, pointerDeleteCmd)
	documentCmd.AddCommand(documentAddCmd, documentListCmd, documentDeleteCmd, documentDownloadCmd)
}

func createPointer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	uploads, err := readFiles(pointerFiles)
	if err != nil {
		return err
	}
	p, err := a.Pointers.Save(ctx, &pointer.Draft{
		Name:                     pointerName,
		Objective:                unescape(pointerObjective),
		ComplianceRequirements:   unescape(pointerRequirements),
		SupportingDocumentPoints: unescape(pointerPoints),
		Language:                 pointerLanguage,
		Year:                     pointerYear,
	}, uploads)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pointer %q saved with id %s\n", p.Name, p.ID)
	return nil
}

func updatePointer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	existing, err := a.Store.GetPointer(ctx, args[0])
	if err != nil {
		return err
	}
	draft := pointer.DraftFrom(existing)
	flags := cmd.Flags()
	if flags.Changed("name") {
		draft.Name = pointerName
	}
	if flags.Changed("objective") {
		draft.Objective = unescape(pointerObjective)
	}
	if flags.Changed("requirements") {
		draft.ComplianceRequirements = unescape(pointerRequirements)
	}
	if flags.Changed("points") {
		draft.SupportingDocumentPoints = unescape(pointerPoints)
	}
	if flags.Changed("language") {
		draft.Language = pointerLanguage
	}
	if flags.Changed("year") {
		draft.Year = pointerYear
	}
	uploads, err := readFiles(pointerFiles)
	if err != nil {
		return err
	}
	p, err := a.Pointers.Save(ctx, draft, uploads)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pointer %q updated, status %s\n", p.Name, p.ComplianceStatus)
	return nil
}

func listPointers(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	find := &store.FindPointer{}
	if listYear != 0 {
		find.Year = &listYear
	}
	if listLanguage != "" {
		lang := domain.Language(listLanguage)
		find.Language = &lang
	}
	list, err := a.Store.ListPointers(ctx, find)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No pointers found.")
		return nil
	}
	t := newTable("ID", "Name", "Year", "Language", "Status", "Documents")
	for _, p := range list {
		docs, err := a.Store.ListDocuments(ctx, p.ID)
		if err != nil {
			return err
		}
		t.Row(p.ID, p.Name, strconv.Itoa(p.Year), string(p.Language), string(p.ComplianceStatus), strconv.Itoa(len(docs)))
	}
	fmt.Fprintln(cmd.OutOrStdout(), t)
	return nil
}

func showPointer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.Store.GetPointer(ctx, args[0])
	if err != nil {
		return err
	}
	docs, err := a.Store.ListDocuments(ctx, p.ID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", p.Name, p.ID)
	fmt.Fprintf(out, "Year: %d  Language: %s  Status: %s\n", p.Year, p.Language, p.ComplianceStatus)
	printLines(out, "Objective", p.Objective)
	printLines(out, "Compliance Requirements", p.ComplianceRequirements)
	printLines(out, "Supporting Document Points", p.SupportingDocumentPoints)
	if len(docs) > 0 {
		fmt.Fprintln(out, "Documents:")
		for _, d := range docs {
			fmt.Fprintf(out, "  %s  %s  %d bytes\n", d.ID, d.Name, len(d.Data))
		}
	}
	return nil
}

func deletePointer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Pointers.Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pointer %s deleted\n", args[0])
	return nil
}

func addDocuments(cmd *cobra.Command, args []string) error {
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
	uploads, err := readFiles(args[1:])
	if err != nil {
		return err
	}
	ids, err := a.Pointers.AddDocuments(ctx, args[0], uploads)
	if err != nil {
		return err
	}
	for i, id := range ids {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", id, uploads[i].Name)
	}
	return nil
}

func listDocuments(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.Store.ListDocuments(ctx, args[0])
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No documents.")
		return nil
	}
	t := newTable("ID", "Name", "Bytes", "Uploaded")
	for _, d := range docs {
		t.Row(d.ID, d.Name, strconv.Itoa(len(d.Data)), d.UploadedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(cmd.OutOrStdout(), t)
	return nil
}

func deleteDocument(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Store.DeleteDocument(ctx, args[0])
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(store.ErrNotFound, "document %s", args[0])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Document %s deleted\n", args[0])
	return nil
}

func downloadDocument(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.Store.GetDocument(ctx, args[0])
	if err != nil {
		return err
	}
	path := downloadOut
	if path == "" {
		path = filepath.Base(doc.Name)
	}
	if err := os.WriteFile(path, doc.Data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", path, len(doc.Data))
	return nil
}

func readFiles(paths []string) ([]pointer.Upload, error) {
	uploads := make([]pointer.Upload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", p)
		}
		uploads = append(uploads, pointer.Upload{Name: filepath.Base(p), Data: data})
	}
	return uploads, nil
}

// unescape turns literal "\n" sequences typed on the command line into newlines.
func unescape(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}

func printLines(w io.Writer, title, text string) {
	lines := pointer.FormatLines(text)
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for i, line := range lines {
		fmt.Fprintf(w, "  %d. %s\n", i+1, line)
	}
}
