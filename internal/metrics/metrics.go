package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Harvest struct {
	Registry *prometheus.Registry

	ListingRows     prometheus.Counter
	RowsKnown       prometheus.Counter
	RowsFailed      prometheus.Counter
	AdvisoriesAdded prometheus.Counter
	DetailLookups   *prometheus.CounterVec
	Summaries       *prometheus.CounterVec
	StoredTotal     prometheus.Gauge
	LastSuccess     prometheus.Gauge
}

func New() *Harvest {
	m := &Harvest{Registry: prometheus.NewRegistry()}

	m.ListingRows = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "errata_listing_rows_total",
		Help: "Rows parsed from the errata listing",
	})
	m.RowsKnown = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "errata_rows_known_total",
		Help: "Listing rows skipped because the advisory is already stored",
	})
	m.RowsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "errata_rows_failed_total",
		Help: "New listing rows dropped after a processing error",
	})
	m.AdvisoriesAdded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "errata_advisories_added_total",
		Help: "Advisories added to the store",
	})
	m.DetailLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "errata_detail_lookups_total",
		Help: "Detail page lookups by outcome",
	}, []string{"outcome"})
	m.Summaries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "errata_summaries_total",
		Help: "Summaries by outcome",
	}, []string{"outcome"})
	m.StoredTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "errata_advisories_stored",
		Help: "Advisories in the store after the run",
	})
	m.LastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "errata_last_success_timestamp_seconds",
		Help: "Unix time of the last completed run",
	})

	m.Registry.MustRegister(
		m.ListingRows, m.RowsKnown, m.RowsFailed, m.AdvisoriesAdded,
		m.DetailLookups, m.Summaries, m.StoredTotal, m.LastSuccess,
	)
	return m
}

// node-exporter textfile collector 格式
func (m *Harvest) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
