package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(id, date string) Advisory {
	return Advisory{
		ID:               id,
		CVEIDs:           "CVE-2024-0001",
		Severity:         "Important",
		IssueDate:        date,
		OriginalSynopsis: "Important: kernel security update",
		Summary:          "커널 보안 업데이트입니다.",
	}
}

func TestLoad_MissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "absent.json"), nil)
	coll := s.Load()
	assert.NotNil(t, coll)
	assert.Empty(t, coll)
}

func TestSaveLoad_RoundTripKeepsNonASCII(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cve_data.json")
	s := NewFileStore(path, nil)

	coll := Collection{
		"RHSA-2024:0001": sample("RHSA-2024:0001", "2024-01-10"),
		"RHSA-2024:0002": sample("RHSA-2024:0002", "2024-03-01"),
	}
	require.NoError(t, s.Save(coll))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "커널 보안 업데이트입니다.")
	assert.True(t, strings.HasPrefix(string(raw), "{"), "persisted shape should be the keyed mapping")
	assert.Contains(t, string(raw), "\n    \"RHSA-2024:0001\"")

	assert.Equal(t, coll, s.Load())
}

func TestLoad_LegacyListShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cve_data.json")
	legacy := `[
    {"errata_id": "RHSA-2024:0001", "cve_id": "CVE-2024-0001", "severity": "Moderate",
     "issue_date": "2024-01-10", "original_synopsis": "a", "summary": "b"},
    {"errata_id": "RHBA-2024:0002", "cve_id": "No CVE information", "severity": "None",
     "issue_date": "2024-02-10", "original_synopsis": "c", "summary": "d"},
    {"cve_id": "CVE-2024-9999", "summary": "no id, dropped"}
]`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	coll := NewFileStore(path, nil).Load()
	require.Len(t, coll, 2)
	assert.Equal(t, "Moderate", coll["RHSA-2024:0001"].Severity)
	assert.Equal(t, "c", coll["RHBA-2024:0002"].OriginalSynopsis)
}

func TestLoad_MappingFillsMissingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cve_data.json")
	body := `{"RHSA-2024:0007": {"severity": "Low", "issue_date": "2024-05-05", "original_synopsis": "x", "summary": "y"}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	coll := NewFileStore(path, nil).Load()
	require.Contains(t, coll, "RHSA-2024:0007")
	assert.Equal(t, "RHSA-2024:0007", coll["RHSA-2024:0007"].ID)
}

func TestLoad_MalformedRecovers(t *testing.T) {
	for name, body := range map[string]string{
		"garbage": "{not json",
		"scalar":  `"just a string"`,
		"number":  `42`,
		"empty":   ``,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cve_data.json")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			coll := NewFileStore(path, nil).Load()
			assert.NotNil(t, coll)
			assert.Empty(t, coll)
		})
	}
}

func TestSave_ErrorPropagates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "cve_data.json")
	err := NewFileStore(path, nil).Save(Collection{"a": sample("a", "2024-01-01")})
	assert.Error(t, err)
}

func TestCollection_SortedNewestFirst(t *testing.T) {
	coll := Collection{
		"A": sample("A", "2024-03-01"),
		"B": sample("B", "2024-01-10"),
		"C": sample("C", "2024-06-20"),
	}
	var dates []string
	for _, a := range coll.Sorted() {
		dates = append(dates, a.IssueDate)
	}
	assert.Equal(t, []string{"2024-06-20", "2024-03-01", "2024-01-10"}, dates)
	assert.Equal(t, []string{"A", "B", "C"}, coll.IDs())
}
