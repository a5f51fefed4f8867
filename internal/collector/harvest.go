package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/go-json-experiment/json"
	"go.uber.org/zap"

	"errata-harvester/internal/matcher"
	"errata-harvester/internal/metrics"
	"errata-harvester/internal/store"
	"errata-harvester/internal/summarizer"
	"errata-harvester/internal/task"
	"errata-harvester/pkg/mq"
)

const (
	DefaultPace = 500 * time.Millisecond
	// NewAdvisoryTopic is the subject new advisories are announced on.
	NewAdvisoryTopic = "errata.advisory.new"
)

type Store interface {
	Load() store.Collection
	Save(store.Collection) error
}

type DetailSource interface {
	Fetch(ctx context.Context, detailURL string) string
}

type Summarizer interface {
	Summarize(ctx context.Context, text string) string
}

type Reporter interface {
	Export(store.Collection) (string, error)
}

// 只在保存成功后写入
type Mirror interface {
	Count(ctx context.Context) (int, error)
	Insert(ctx context.Context, advisories []store.Advisory) (int64, error)
}

// Harvester runs one incremental harvest: load, fetch listing, enrich the
// rows not seen before, save, export. Rows are processed one at a time.
type Harvester struct {
	Store      Store
	Listing    ListingFetcher
	Details    DetailSource
	Summarizer Summarizer
	Reporter   Reporter

	Mirror    Mirror       // optional
	Publisher mq.Publisher // optional
	Topic     string
	Metrics   *metrics.Harvest
	Pace      time.Duration
	Logger    *zap.Logger
}

func (h *Harvester) defaults() {
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}
	if h.Metrics == nil {
		h.Metrics = metrics.New()
	}
	if h.Publisher == nil {
		h.Publisher = mq.Noop{}
	}
	if h.Topic == "" {
		h.Topic = NewAdvisoryTopic
	}
}

// Run executes the pipeline. The returned error is non-nil when the run
// aborted (listing unavailable, save failed, context cancelled) or the report
// could not be written; per-row problems are logged and counted.
func (h *Harvester) Run(ctx context.Context, scope Scope) (*task.Run, error) {
	h.defaults()
	scope = scope.withDefaults()
	run := task.NewRun(scope.Year)
	log := h.Logger.With(zap.Int("year", scope.Year))

	coll := h.Store.Load()
	known := matcher.NewIndex(coll.IDs())
	log.Info("harvest started", zap.Int("stored", known.Len()))

	rows, err := h.Listing.FetchListing(ctx, scope)
	if err != nil {
		run.Abort(err)
		return run, fmt.Errorf("harvest aborted: %w", err)
	}
	h.advance(run, task.StateListingFetched)
	run.Seen = len(rows)
	h.Metrics.ListingRows.Add(float64(len(rows)))
	log.Info("listing fetched", zap.Int("rows", len(rows)))

	h.advance(run, task.StateDiffing)
	var added []store.Advisory
	for _, row := range rows {
		if known.Known(row.ID) {
			run.Known++
			h.Metrics.RowsKnown.Inc()
			continue
		}
		if run.State == task.StateDiffing {
			h.advance(run, task.StateProcessing)
		}
		log.Info("new advisory", zap.Int("n", len(added)+run.Failed+1), zap.String("errata_id", row.ID))

		rec, err := h.process(ctx, row)
		if ctx.Err() != nil {
			// enrichment of this row was cut short
			log.Warn("harvest interrupted, dropping in-flight advisory", zap.String("errata_id", row.ID))
			break
		}
		if err != nil {
			run.Failed++
			h.Metrics.RowsFailed.Inc()
			log.Error("dropping advisory", zap.String("errata_id", row.ID), zap.String("url", row.DetailURL), zap.Error(err))
			continue
		}
		coll[rec.ID] = rec
		known.Mark(rec.ID)
		added = append(added, rec)
		h.Metrics.AdvisoriesAdded.Inc()
		h.publish(rec)

		if err := sleep(ctx, h.Pace); err != nil {
			break
		}
	}
	run.Added = len(added)
	h.advance(run, task.StateMerged)

	if len(added) > 0 {
		log.Info("saving new advisories", zap.Int("added", len(added)))
		if err := h.Store.Save(coll); err != nil {
			run.Abort(err)
			return run, fmt.Errorf("save store: %w", err)
		}
		h.advance(run, task.StatePersisted)
	} else {
		log.Info("no new advisories")
	}
	h.Metrics.StoredTotal.Set(float64(len(coll)))

	// rows finished before an interrupt are kept, the report is not written
	if err := ctx.Err(); err != nil {
		run.Abort(err)
		return run, fmt.Errorf("harvest interrupted: %w", err)
	}
	h.mirror(ctx, coll)

	path, err := h.Reporter.Export(coll)
	if err != nil {
		run.Abort(err)
		return run, fmt.Errorf("export report: %w", err)
	}
	run.ReportPath = path
	h.advance(run, task.StateExported)
	h.advance(run, task.StateDone)
	h.Metrics.LastSuccess.SetToCurrentTime()
	log.Info("harvest finished", zap.Stringer("run", run))
	return run, nil
}

// process enriches a row. A panic inside is turned into an error so the row
// is dropped without stopping the run.
func (h *Harvester) process(ctx context.Context, row Row) (rec store.Advisory, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing row: %v", r)
		}
	}()
	if row.DetailURL == "" {
		return rec, fmt.Errorf("row has no detail link")
	}

	cves := h.Details.Fetch(ctx, row.DetailURL)
	h.Metrics.DetailLookups.WithLabelValues(detailOutcome(cves)).Inc()

	summary := h.Summarizer.Summarize(ctx, row.Synopsis)
	h.Metrics.Summaries.WithLabelValues(summarizer.Classify(summary)).Inc()

	rec = store.Advisory{
		ID:               row.ID,
		CVEIDs:           cves,
		Severity:         row.Severity,
		IssueDate:        row.IssueDate,
		OriginalSynopsis: row.Synopsis,
		Summary:          summary,
		AffectedProducts: row.AffectedProducts,
	}
	return rec, nil
}

func detailOutcome(cves string) string {
	switch cves {
	case DetailFetchFailed:
		return "failed"
	case NoCVEFound:
		return "none"
	}
	return "found"
}

func (h *Harvester) publish(rec store.Advisory) {
	payload, err := json.Marshal(rec)
	if err != nil {
		h.Logger.Warn("cannot encode advisory event", zap.String("errata_id", rec.ID), zap.Error(err))
		return
	}
	if err := h.Publisher.Publish(h.Topic, payload); err != nil {
		h.Logger.Warn("cannot publish advisory event", zap.String("errata_id", rec.ID), zap.Error(err))
	}
}

// mirror copies whatever the mirror is missing. Inserts ignore known ids, so
// a fresh or lagging mirror is backfilled from the whole collection.
func (h *Harvester) mirror(ctx context.Context, coll store.Collection) {
	if h.Mirror == nil {
		return
	}
	have, err := h.Mirror.Count(ctx)
	if err != nil {
		h.Logger.Warn("mirror count failed", zap.Error(err))
		return
	}
	if have >= len(coll) {
		return
	}
	n, err := h.Mirror.Insert(ctx, coll.Sorted())
	if err != nil {
		h.Logger.Warn("mirror insert failed", zap.Error(err))
		return
	}
	h.Logger.Info("mirrored advisories", zap.Int64("rows", n))
}

// 流程顺序固定，非法迁移属于编码错误
func (h *Harvester) advance(run *task.Run, s task.State) {
	if err := run.Advance(s); err != nil {
		panic(err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
