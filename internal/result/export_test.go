package result

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"errata-harvester/internal/store"
)

func fixedExporter(dir string, pdf bool, at time.Time) *Exporter {
	e := NewExporter(dir, pdf, nil)
	e.now = func() time.Time { return at }
	return e
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(b, []byte(utf8BOM)), "report should start with a BOM")
	recs, err := csv.NewReader(bytes.NewReader(b[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	return recs
}

func TestExport_OrdersByIssueDateDesc(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2025, 7, 1, 9, 30, 5, 0, time.Local)
	coll := store.Collection{
		"RHSA-2024:0001": {ID: "RHSA-2024:0001", IssueDate: "2024-03-01", Summary: "요약 하나"},
		"RHSA-2024:0002": {ID: "RHSA-2024:0002", IssueDate: "2024-01-10", Summary: "s2"},
		"RHSA-2024:0003": {ID: "RHSA-2024:0003", IssueDate: "2024-06-20", Summary: "s3"},
	}

	path, err := fixedExporter(dir, false, at).Export(coll)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "redhat_errata_report_20250701_093005.csv"), path)

	recs := readCSV(t, path)
	require.Len(t, recs, 4)
	assert.Equal(t, header, recs[0])
	assert.Equal(t, "2024-06-20", recs[1][3])
	assert.Equal(t, "2024-03-01", recs[2][3])
	assert.Equal(t, "2024-01-10", recs[3][3])
	assert.Equal(t, "요약 하나", recs[2][5])
}

func TestExport_AffectedProductsColumn(t *testing.T) {
	coll := store.Collection{
		"A": {ID: "A", IssueDate: "2024-01-01", AffectedProducts: "Red Hat Enterprise Linux 9"},
		"B": {ID: "B", IssueDate: "2024-01-02"},
	}
	path, err := fixedExporter(t.TempDir(), false, time.Now()).Export(coll)
	require.NoError(t, err)

	recs := readCSV(t, path)
	assert.Equal(t, "Affected Products", recs[0][6])
	assert.Equal(t, "", recs[1][6])
	assert.Equal(t, "Red Hat Enterprise Linux 9", recs[2][6])
}

func TestExport_EmptyIsNoop(t *testing.T) {
	dir := t.TempDir()
	path, err := fixedExporter(dir, true, time.Now()).Export(store.Collection{})
	require.NoError(t, err)
	assert.Empty(t, path)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExport_SuccessiveRunsDoNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	coll := store.Collection{"A": {ID: "A", IssueDate: "2024-01-01"}}
	at := time.Date(2025, 7, 1, 9, 0, 0, 0, time.Local)

	p1, err := fixedExporter(dir, false, at).Export(coll)
	require.NoError(t, err)
	p2, err := fixedExporter(dir, false, at.Add(time.Second)).Export(coll)
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestExport_PDFCompanion(t *testing.T) {
	dir := t.TempDir()
	coll := store.Collection{"A": {ID: "A", IssueDate: "2024-01-01", OriginalSynopsis: "Moderate: openssl update"}}
	_, err := fixedExporter(dir, true, time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local)).Export(coll)
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(dir, "redhat_errata_report_20250102_030405.pdf"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "%PDF-"))
}
