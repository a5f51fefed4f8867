package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHarvest_Counters(t *testing.T) {
	m := New()
	m.AdvisoriesAdded.Add(3)
	m.Summaries.WithLabelValues("passthrough").Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.AdvisoriesAdded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Summaries.WithLabelValues("passthrough")))
}

func TestHarvest_WriteTextfile(t *testing.T) {
	m := New()
	m.StoredTotal.Set(42)
	path := filepath.Join(t.TempDir(), "errata.prom")
	require.NoError(t, m.WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "errata_advisories_stored 42")
}
