// Package pipeline orchestrates the three-stage lead-generation run:
// scrape, enrich, export, with checkpoint persistence between stages.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/checkpoint"
	"github.com/sells-group/leadgen-cli/internal/enrich"
	"github.com/sells-group/leadgen-cli/internal/export"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/scrape"
	"github.com/sells-group/leadgen-cli/internal/store"
)

// Pipeline coordinates the stage collaborators. One invocation moves
// through SCRAPE, ENRICH, EXPORT sequentially; checkpoints let an
// interrupted run resume at the most advanced completed stage.
type Pipeline struct {
	scraper     scrape.Scraper
	enricher    enrich.Enricher
	exporter    export.Exporter
	checkpoints *checkpoint.Store
	history     store.Store
	feed        *Feed
}

// New creates a Pipeline. history may be nil when run-history recording is
// not wanted; recording failures are logged and never fail the run.
func New(
	scraper scrape.Scraper,
	enricher enrich.Enricher,
	exporter export.Exporter,
	checkpoints *checkpoint.Store,
	history store.Store,
	feed *Feed,
) *Pipeline {
	if feed == nil {
		feed = NewFeed()
	}
	return &Pipeline{
		scraper:     scraper,
		enricher:    enricher,
		exporter:    exporter,
		checkpoints: checkpoints,
		history:     history,
		feed:        feed,
	}
}

// Feed returns the progress feed adapters consume.
func (p *Pipeline) Feed() *Feed {
	return p.feed
}

// Run executes one pipeline invocation. Exactly one of the result or the
// error is non-nil. On success both checkpoint slots are cleared; on
// failure any checkpoints written so far are preserved for a later resume.
func (p *Pipeline) Run(ctx context.Context, params model.RunParams) (*model.PipelineResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("component", "pipeline"))
	log.Info("starting run",
		zap.Strings("queries", params.Queries),
		zap.String("location", params.Location),
		zap.Int("max_results", params.MaxResults),
		zap.Bool("resume", params.Resume),
		zap.Bool("skip_enrich", params.SkipEnrich),
	)

	runID := p.recordStart(ctx, params)

	result, err := p.run(ctx, runID, params, log)
	if err != nil {
		p.feed.Publishf("Pipeline failed: %s", err.Error())
		p.recordFinish(ctx, runID, model.RunStatusFailed, &model.RunResult{Error: err.Error()})
		return nil, err
	}

	p.feed.Publishf("Done. %d leads exported to %s", len(result.Leads), result.OutputPath)
	p.recordFinish(ctx, runID, model.RunStatusComplete, &model.RunResult{
		LeadCount:  len(result.Leads),
		OutputPath: result.OutputPath,
	})
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, runID string, params model.RunParams, log *zap.Logger) (*model.PipelineResult, error) {
	leads, enriched := p.resumePoint(params, log)

	if leads == nil {
		p.recordStatus(ctx, runID, model.RunStatusScraping)
		scraped, err := p.scrapeStage(ctx, params)
		if err != nil {
			return nil, err
		}
		leads = scraped
	} else {
		p.feed.Publishf("[STEP 1/3] Resumed %d leads from checkpoint", len(leads))
	}

	if !enriched {
		p.recordStatus(ctx, runID, model.RunStatusEnriching)
		leads = p.enrichStage(ctx, params, leads)
	} else {
		p.feed.Publish("[STEP 2/3] Enrichment already complete, skipping")
	}

	p.recordStatus(ctx, runID, model.RunStatusExporting)
	return p.exportStage(ctx, params, leads)
}

// resumePoint decides where a run starts. It returns the checkpointed
// leads (nil means a fresh scrape) and whether enrichment is already done.
func (p *Pipeline) resumePoint(params model.RunParams, log *zap.Logger) ([]model.Lead, bool) {
	if !params.Resume {
		return nil, false
	}

	if leads, _ := p.checkpoints.Load(checkpoint.SlotEnriched); len(leads) > 0 {
		log.Info("resuming from enriched checkpoint", zap.Int("leads", len(leads)))
		// A checkpoint where nothing actually got a summary still needs
		// the enrich stage.
		return leads, model.AnyEnriched(leads)
	}
	if leads, meta := p.checkpoints.Load(checkpoint.SlotScraped); len(leads) > 0 {
		log.Info("resuming from scraped checkpoint", zap.Int("leads", len(leads)))
		if meta != nil {
			log.Debug("checkpoint meta",
				zap.Strings("queries", meta.Queries),
				zap.String("location", meta.Location),
			)
		}
		return leads, false
	}

	log.Info("no checkpoint found, starting fresh")
	return nil, false
}

func (p *Pipeline) scrapeStage(ctx context.Context, params model.RunParams) ([]model.Lead, error) {
	p.feed.Publishf("[STEP 1/3] Scraping Google Maps: %v in %s", params.Queries, params.Location)

	leads, err := p.scraper.Scrape(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: scrape stage")
	}
	if len(leads) == 0 {
		return nil, eris.New("pipeline: no leads found, try different queries or location")
	}

	meta := &model.CheckpointMeta{Queries: params.Queries, Location: params.Location}
	if err := p.checkpoints.Save(checkpoint.SlotScraped, leads, meta); err != nil {
		return nil, eris.Wrap(err, "pipeline: save scraped checkpoint")
	}

	p.feed.Publishf("[STEP 1/3] Scraped %d leads", len(leads))
	return leads, nil
}

// enrichStage never fails the run: a degraded enrichment still yields an
// export-ready list. The enriched checkpoint is written only when the
// enricher actually ran, so a skip-enrich run resumed later can still
// choose to enrich.
func (p *Pipeline) enrichStage(ctx context.Context, params model.RunParams, leads []model.Lead) []model.Lead {
	if params.SkipEnrich {
		p.feed.Publish("[STEP 2/3] Enrichment skipped")
		return leads
	}

	p.feed.Publishf("[STEP 2/3] Enriching %d leads with AI summaries", len(leads))

	enriched, err := p.enricher.Enrich(ctx, leads)
	if err != nil {
		zap.L().Warn("pipeline: enrichment degraded, continuing with fallback summaries",
			zap.Error(err),
		)
		p.feed.Publish("[STEP 2/3] Enrichment degraded, continuing with fallback summaries")
	} else {
		p.feed.Publishf("[STEP 2/3] Enriched %d leads", len(enriched))
	}

	if err := p.checkpoints.Save(checkpoint.SlotEnriched, enriched, nil); err != nil {
		zap.L().Warn("pipeline: could not save enriched checkpoint", zap.Error(err))
	}
	return enriched
}

func (p *Pipeline) exportStage(ctx context.Context, params model.RunParams, leads []model.Lead) (*model.PipelineResult, error) {
	p.feed.Publishf("[STEP 3/3] Exporting %d leads to %s", len(leads), params.OutputPath)

	path, err := p.exporter.Export(ctx, leads, params.OutputPath)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: export stage")
	}

	if err := p.checkpoints.ClearAll(); err != nil {
		zap.L().Warn("pipeline: could not clear checkpoints after export", zap.Error(err))
	}

	return &model.PipelineResult{Leads: leads, OutputPath: path}, nil
}

// recordStart creates the run-history row. Returns "" when history is
// disabled or the insert fails.
func (p *Pipeline) recordStart(ctx context.Context, params model.RunParams) string {
	if p.history == nil {
		return ""
	}
	run, err := p.history.CreateRun(ctx, params)
	if err != nil {
		zap.L().Warn("pipeline: could not record run start", zap.Error(err))
		return ""
	}
	return run.ID
}

func (p *Pipeline) recordStatus(ctx context.Context, runID string, status model.RunStatus) {
	if p.history == nil || runID == "" {
		return
	}
	if err := p.history.UpdateRunStatus(ctx, runID, status); err != nil {
		zap.L().Warn("pipeline: could not record run status", zap.Error(err))
	}
}

func (p *Pipeline) recordFinish(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) {
	if p.history == nil || runID == "" {
		return
	}
	// Record even when ctx is cancelled.
	if err := p.history.FinishRun(context.WithoutCancel(ctx), runID, status, result); err != nil {
		zap.L().Warn("pipeline: could not record run finish", zap.Error(err))
	}
}
