package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/saffron/internal/engine"
	"github.com/Veraticus/saffron/internal/review"
)

type harness struct {
	t      *testing.T
	dir    string
	db     string
	config string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		t:      t,
		dir:    dir,
		db:     filepath.Join(dir, "saffron.db"),
		config: filepath.Join(dir, "config.yaml"),
	}
	require.NoError(t, os.WriteFile(h.config, []byte("llm:\n  enabled: false\n"), 0o600))
	return h
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	base := []string{"--config", h.config, "--db", h.db, "--env-file", "", "--log-level", "error"}
	cmd.SetArgs(append(base, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) file(name, body string) string {
	h.t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(h.t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := newHarness(t).run("version")
	require.NoError(t, err)
	assert.Contains(t, out, "saffron dev")
}

func TestPatternsKeyCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd(&out, &bytes.Buffer{})
	cmd.SetArgs([]string{"patterns", "key", "SQ *BLUE BOTTLE #12"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "SQ *BLUE BOTTLE #12")
}

func TestMigrateStatus(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("migrate", "--status")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema version")
	assert.Contains(t, out, "0 (0 need review)")
}

func TestCategoriesAddAndList(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("categories", "add", "Food", "Coffee")
	require.NoError(t, err)
	assert.Contains(t, out, "Added Food / Coffee")

	out, err = h.run("categories", "add", "Food", "Coffee")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	out, err = h.run("categories", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Coffee")
}

func TestCategorizeReviewApplyRoundTrip(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("categories", "add", "Food", "Coffee")
	require.NoError(t, err)

	march := h.file("march.csv", "date,merchant,amount\n2024-03-01,BLUE BOTTLE #12,-4.50\n2024-03-02,BLUE BOTTLE #40,-5.25\n")
	reviewPath := filepath.Join(h.dir, "review.yaml")
	metricsPath := filepath.Join(h.dir, "saffron.prom")

	_, err = h.run("categorize", march, "--account", "checking", "--review-out", reviewPath, "--metrics-file", metricsPath, "-q")
	require.NoError(t, err)

	doc, err := review.ReadFile(reviewPath)
	require.NoError(t, err)
	require.Len(t, doc.Transactions, 2)

	metricsText, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metricsText), `saffron_outcomes_total{method="review"} 2`)

	for i := range doc.Transactions {
		doc.Transactions[i].Decision = review.DecisionAccept
		doc.Transactions[i].Category = "Food"
		doc.Transactions[i].Subcategory = "Coffee"
	}
	require.NoError(t, review.WriteFile(reviewPath, doc))

	out, err := h.run("review", "apply", reviewPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Review applied")

	out, err = h.run("patterns", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Food / Coffee")

	april := h.file("april.csv", "date,merchant,amount\n2024-04-01,BLUE BOTTLE #77,-4.75\n")
	secondReview := filepath.Join(h.dir, "review-april.yaml")
	_, err = h.run("categorize", april, "--review-out", secondReview, "-q")
	require.NoError(t, err)

	doc, err = review.ReadFile(secondReview)
	require.NoError(t, err)
	assert.Empty(t, doc.Transactions)

	out, err = h.run("migrate", "--status")
	require.NoError(t, err)
	assert.Contains(t, out, "Transactions:")
}

func TestCategorizeDryRunSavesNothing(t *testing.T) {
	h := newHarness(t)
	path := h.file("march.csv", "date,merchant,amount\n2024-03-01,Shell,-30.00\n")

	_, err := h.run("categorize", path, "--dry-run", "-q")
	require.NoError(t, err)

	out, err := h.run("migrate", "--status")
	require.NoError(t, err)
	assert.Contains(t, out, "0 (0 need review)")
}

func TestCategorizeErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("categorize")
	require.Error(t, err)

	_, err = h.run("categorize", filepath.Join(h.dir, "missing.csv"))
	require.Error(t, err)

	_, err = h.run("categorize", h.file("bad.txt", "x"))
	require.Error(t, err)
}

func TestReviewProposalsEmpty(t *testing.T) {
	out, err := newHarness(t).run("review", "proposals")
	require.NoError(t, err)
	assert.Contains(t, out, "No pending proposals")
}

func TestReviewExportBacklog(t *testing.T) {
	h := newHarness(t)
	path := h.file("may.csv", "date,merchant,amount\n2024-05-01,Corner Bistro,-18.00\n2024-05-02,Shell,-41.00\n")

	_, err := h.run("categorize", path, "-q")
	require.NoError(t, err)

	backlog := filepath.Join(h.dir, "backlog.yaml")
	out, err := h.run("review", "export", backlog)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 2 transactions")

	doc, err := review.ReadFile(backlog)
	require.NoError(t, err)
	require.Len(t, doc.Transactions, 2)
	assert.Equal(t, review.ReasonBacklog, doc.Transactions[0].Reason)
}

func TestCategorizeUnsupportedProviderRunsReviewOnly(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.config, []byte("llm:\n  enabled: true\n  provider: bard\n  api_key: k\n"), 0o600))
	path := h.file("t.csv", "date,merchant,amount\n2024-03-01,Corner Bistro,-18.00\n")
	reviewPath := filepath.Join(h.dir, "review.yaml")

	_, err := h.run("categorize", path, "--review-out", reviewPath, "-q")
	require.NoError(t, err)

	doc, err := review.ReadFile(reviewPath)
	require.NoError(t, err)
	require.Len(t, doc.Transactions, 1)
	assert.Equal(t, engine.ReasonExternalUnavailable, doc.Transactions[0].Reason)

	_, err = h.run("patterns", "list")
	require.NoError(t, err)
}
