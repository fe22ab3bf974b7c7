package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance/internal/compliance"
	"compliance/internal/config"
	"compliance/internal/domain"
	"compliance/internal/extract"
)

func writeConfig(t *testing.T) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`embedder:
  type: tfidf
chunker:
  type: sentence
  sentences_per_chunk: 1
vector_store:
  type: flat
  index_dir: %s
store:
  path: %s
compliance:
  years: [2024]
  languages: [English, Arabic]
log:
  level: error
`, filepath.Join(dir, "indexes"), filepath.Join(dir, "compliance.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return dir, path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandWorkflow(t *testing.T) {
	dir, cfgFile := writeConfig(t)

	regulation := filepath.Join(dir, "regulation.txt")
	require.NoError(t, os.WriteFile(regulation, []byte("Records shall be retained for five years. Access logs are reviewed monthly."), 0o644))
	out, err := execute(t, "--config", cfgFile, "index", "build", "--year", "2024", "--language", "English", regulation)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Index 2024/English built: 1 documents, 2 chunks")

	out, err = execute(t, "--config", cfgFile, "index", "list")
	require.NoError(t, err, out)
	assert.Contains(t, out, "tfidf")

	out, err = execute(t, "--config", cfgFile, "search", "--year", "2024", "--language", "English", "retained", "records")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1. score=")
	assert.Contains(t, out, "retained for five years")

	policy := filepath.Join(dir, "policy.pdf")
	require.NoError(t, os.WriteFile(policy, []byte("%PDF-1.4"), 0o644))
	out, err = execute(t, "--config", cfgFile, "pointer", "create",
		"--name", "Data Retention", "--year", "2024", "--language", "English",
		"--requirements", `1. Retain records\n2. Review logs`, "--file", policy)
	require.NoError(t, err, out)
	assert.Contains(t, out, `Pointer "Data Retention" saved`)

	out, err = execute(t, "--config", cfgFile, "pointer", "list", "--year", "2024")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Data Retention")
	assert.Contains(t, out, "Not Checked")

	out, err = execute(t, "--config", cfgFile, "config", "init", filepath.Join(dir, "new.yaml"))
	require.NoError(t, err, out)
	cfg, err := config.Load(filepath.Join(dir, "new.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "flat", cfg.VectorStore.Type)

	_, err = execute(t, "--config", cfgFile, "config", "init", filepath.Join(dir, "new.yaml"))
	assert.Error(t, err)
}

func TestPointerShowUnknown(t *testing.T) {
	_, cfgFile := writeConfig(t)
	_, err := execute(t, "--config", cfgFile, "pointer", "show", "missing")
	assert.Error(t, err)
}

func TestUnescape(t *testing.T) {
	assert.Equal(t, "a\nb", unescape(`a\nb`))
	assert.Equal(t, "plain", unescape("plain"))
}

func TestReadFiles(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "scan.png")
	require.NoError(t, os.WriteFile(p, []byte("png"), 0o644))

	uploads, err := readFiles([]string{p})
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, "scan.png", uploads[0].Name)
	assert.Equal(t, []byte("png"), uploads[0].Data)

	_, err = readFiles([]string{filepath.Join(dir, "missing.pdf")})
	assert.Error(t, err)
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, &compliance.Report{
		Status:     domain.StatusNotCompliant,
		Reasons:    "- Missing retention policy",
		Retrieved:  5,
		Chunks:     make([]domain.SearchResult, 3),
		Extraction: &extract.Extraction{Failures: []extract.Failure{{Document: "deck.pptx", Err: "unsupported document format"}}},
		Elapsed:    1500 * time.Millisecond,
	})
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Compliance Status: Not Compliant\n"))
	assert.Contains(t, out, "- Missing retention policy")
	assert.Contains(t, out, "warning: deck.pptx: unsupported document format")
	assert.Contains(t, out, "Analysis completed in 1.50 seconds (3 of 5 reference chunks used)")
}
