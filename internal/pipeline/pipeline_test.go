package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/checkpoint"
	"github.com/sells-group/leadgen-cli/internal/enrich"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/store"
)

type fakeScraper struct {
	leads []model.Lead
	err   error
	calls int
}

func (f *fakeScraper) Scrape(_ context.Context, _ model.RunParams) ([]model.Lead, error) {
	f.calls++
	return f.leads, f.err
}

type fakeEnricher struct {
	err   error
	calls int
}

func (f *fakeEnricher) Enrich(_ context.Context, leads []model.Lead) ([]model.Lead, error) {
	f.calls++
	out := make([]model.Lead, len(leads))
	copy(out, leads)
	for i := range out {
		if !out[i].Enriched() {
			if f.err != nil {
				out[i].BusinessInfo = enrich.FallbackSummary(out[i])
			} else {
				out[i].BusinessInfo = "summary for " + out[i].Name
			}
		}
	}
	return out, f.err
}

type fakeExporter struct {
	err   error
	calls int
	got   []model.Lead
}

func (f *fakeExporter) Export(_ context.Context, leads []model.Lead, destPath string) (string, error) {
	f.calls++
	f.got = leads
	if f.err != nil {
		return "", f.err
	}
	abs, _ := filepath.Abs(destPath)
	return abs, nil
}

func scrapedLeads() []model.Lead {
	return []model.Lead{
		{Name: "Sweet Crumb", Category: "Bakery", Location: "12 Main St", City: "Austin", State: "TX"},
		{Name: "Flour Power", Category: "Bakery", Location: "9 Oak Ave", City: "Austin", State: "TX"},
	}
}

type fixture struct {
	pipeline    *Pipeline
	scraper     *fakeScraper
	enricher    *fakeEnricher
	exporter    *fakeExporter
	checkpoints *checkpoint.Store
	dir         string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cps, err := checkpoint.NewStore(dir)
	require.NoError(t, err)

	f := &fixture{
		scraper:     &fakeScraper{leads: scrapedLeads()},
		enricher:    &fakeEnricher{},
		exporter:    &fakeExporter{},
		checkpoints: cps,
		dir:         dir,
	}
	f.pipeline = New(f.scraper, f.enricher, f.exporter, cps, nil, nil)
	return f
}

func params(dir string) model.RunParams {
	return model.RunParams{
		Queries:    []string{"Bakery"},
		Location:   "Austin, USA",
		MaxResults: 3,
		OutputPath: filepath.Join(dir, "leads.xlsx"),
	}
}

func TestRunHappyPath(t *testing.T) {
	f := newFixture(t)

	result, err := f.pipeline.Run(context.Background(), params(f.dir))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Len(t, result.Leads, 2)
	assert.True(t, filepath.IsAbs(result.OutputPath))
	for _, l := range result.Leads {
		assert.True(t, l.Enriched())
	}

	assert.Equal(t, 1, f.scraper.calls)
	assert.Equal(t, 1, f.enricher.calls)
	assert.Equal(t, 1, f.exporter.calls)

	// Checkpoints cleared after a successful export.
	assert.False(t, f.checkpoints.ExistsAny())
}

func TestRunInvalidParams(t *testing.T) {
	f := newFixture(t)

	p := params(f.dir)
	p.MaxResults = 0

	_, err := f.pipeline.Run(context.Background(), p)
	require.Error(t, err)
	assert.Zero(t, f.scraper.calls, "validation failures happen before any stage")
}

func TestRunNoLeadsFound(t *testing.T) {
	f := newFixture(t)
	f.scraper.leads = nil

	_, err := f.pipeline.Run(context.Background(), params(f.dir))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no leads found")
	assert.False(t, f.checkpoints.ExistsAny(), "empty scrape writes no checkpoint")
	assert.Zero(t, f.exporter.calls)
}

func TestRunScrapeFailure(t *testing.T) {
	f := newFixture(t)
	f.scraper.err = eris.New("actor run did not succeed")

	_, err := f.pipeline.Run(context.Background(), params(f.dir))
	require.Error(t, err)
	assert.Zero(t, f.enricher.calls)
	assert.Zero(t, f.exporter.calls)
	assert.False(t, f.checkpoints.ExistsAny())
}

func TestRunScrapedCheckpointSavedBeforeEnrich(t *testing.T) {
	f := newFixture(t)
	f.exporter.err = eris.New("disk full")

	_, err := f.pipeline.Run(context.Background(), params(f.dir))
	require.Error(t, err)

	// Both checkpoints survive an export failure.
	leads, meta := f.checkpoints.Load(checkpoint.SlotScraped)
	require.Len(t, leads, 2)
	require.NotNil(t, meta)
	assert.Equal(t, []string{"Bakery"}, meta.Queries)
	assert.Equal(t, "Austin, USA", meta.Location)

	enriched, _ := f.checkpoints.Load(checkpoint.SlotEnriched)
	require.Len(t, enriched, 2)
	assert.True(t, model.AnyEnriched(enriched))
}

func TestRunEnrichFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.enricher.err = eris.New("api down")

	result, err := f.pipeline.Run(context.Background(), params(f.dir))
	require.NoError(t, err)
	for _, l := range result.Leads {
		assert.True(t, l.Enriched(), "degraded enrichment still yields export-ready leads")
	}
	assert.Equal(t, 1, f.exporter.calls)
}

func TestRunSkipEnrich(t *testing.T) {
	f := newFixture(t)
	f.exporter.err = eris.New("keep checkpoints around")

	p := params(f.dir)
	p.SkipEnrich = true

	_, err := f.pipeline.Run(context.Background(), p)
	require.Error(t, err)
	assert.Zero(t, f.enricher.calls)
	assert.False(t, f.checkpoints.Exists(checkpoint.SlotEnriched),
		"skip-enrich does not write the enriched checkpoint")
}

func TestRunSkipEnrichSuccess(t *testing.T) {
	f := newFixture(t)

	p := params(f.dir)
	p.SkipEnrich = true

	result, err := f.pipeline.Run(context.Background(), p)
	require.NoError(t, err)
	for _, l := range result.Leads {
		assert.False(t, l.Enriched())
	}
	assert.False(t, f.checkpoints.ExistsAny())
}

func TestRunResumeFromScrapedCheckpoint(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.checkpoints.Save(checkpoint.SlotScraped, scrapedLeads(),
		&model.CheckpointMeta{Queries: []string{"Bakery"}, Location: "Austin, USA"}))

	p := params(f.dir)
	p.Resume = true

	result, err := f.pipeline.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Zero(t, f.scraper.calls, "scraped checkpoint skips the scrape stage")
	assert.Equal(t, 1, f.enricher.calls)
	assert.Len(t, result.Leads, 2)
}

func TestRunResumeFromEnrichedCheckpoint(t *testing.T) {
	f := newFixture(t)
	leads := scrapedLeads()
	for i := range leads {
		leads[i].BusinessInfo = "from checkpoint"
	}
	require.NoError(t, f.checkpoints.Save(checkpoint.SlotEnriched, leads, nil))

	p := params(f.dir)
	p.Resume = true

	result, err := f.pipeline.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Zero(t, f.scraper.calls)
	assert.Zero(t, f.enricher.calls, "enriched checkpoint skips both earlier stages")
	assert.Equal(t, "from checkpoint", result.Leads[0].BusinessInfo)
}

func TestRunResumeEnrichedCheckpointWithoutSummaries(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.checkpoints.Save(checkpoint.SlotEnriched, scrapedLeads(), nil))

	p := params(f.dir)
	p.Resume = true

	_, err := f.pipeline.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Zero(t, f.scraper.calls)
	assert.Equal(t, 1, f.enricher.calls, "checkpoint without summaries still enriches")
}

func TestRunResumeWithoutCheckpoints(t *testing.T) {
	f := newFixture(t)

	p := params(f.dir)
	p.Resume = true

	_, err := f.pipeline.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 1, f.scraper.calls, "no checkpoint falls through to a fresh scrape")
}

func TestRunResumeCorruptCheckpointFallsThrough(t *testing.T) {
	f := newFixture(t)
	writeCorrupt(t, f.dir, "checkpoint_enriched.json")
	writeCorrupt(t, f.dir, "checkpoint_scraped.json")

	p := params(f.dir)
	p.Resume = true

	_, err := f.pipeline.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 1, f.scraper.calls)
}

func TestRunIdempotentResume(t *testing.T) {
	// Interrupt after scrape, then resume: the export matches an
	// uninterrupted run with the same parameters.
	interrupted := newFixture(t)
	interrupted.exporter.err = eris.New("boom")
	p1 := params(interrupted.dir)
	_, err := interrupted.pipeline.Run(context.Background(), p1)
	require.Error(t, err)

	interrupted.exporter.err = nil
	p1.Resume = true
	resumed, err := interrupted.pipeline.Run(context.Background(), p1)
	require.NoError(t, err)

	clean := newFixture(t)
	full, err := clean.pipeline.Run(context.Background(), params(clean.dir))
	require.NoError(t, err)

	assert.Equal(t, full.Leads, resumed.Leads)
}

func TestRunFeedLines(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Run(context.Background(), params(f.dir))
	require.NoError(t, err)

	lines := f.pipeline.Feed().Drain()
	require.NotEmpty(t, lines)

	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "[STEP 1/3]")
	assert.Contains(t, joined, "[STEP 2/3]")
	assert.Contains(t, joined, "[STEP 3/3]")
	assert.Contains(t, lines[len(lines)-1], "Done.")
}

func TestRunRecordsHistory(t *testing.T) {
	f := newFixture(t)

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	f.pipeline = New(f.scraper, f.enricher, f.exporter, f.checkpoints, st, f.pipeline.Feed())

	_, err = f.pipeline.Run(context.Background(), params(f.dir))
	require.NoError(t, err)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
	require.NotNil(t, runs[0].Result)
	assert.Equal(t, 2, runs[0].Result.LeadCount)
}

func TestRunRecordsFailure(t *testing.T) {
	f := newFixture(t)
	f.scraper.leads = nil

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	f.pipeline = New(f.scraper, f.enricher, f.exporter, f.checkpoints, st, nil)

	_, err = f.pipeline.Run(context.Background(), params(f.dir))
	require.Error(t, err)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Result.Error, "no leads found")
}

func writeCorrupt(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{not json"), 0o644))
}
