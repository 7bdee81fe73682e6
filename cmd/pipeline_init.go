package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/checkpoint"
	"github.com/sells-group/leadgen-cli/internal/cost"
	"github.com/sells-group/leadgen-cli/internal/enrich"
	"github.com/sells-group/leadgen-cli/internal/export"
	"github.com/sells-group/leadgen-cli/internal/pipeline"
	"github.com/sells-group/leadgen-cli/internal/scrape"
	"github.com/sells-group/leadgen-cli/internal/store"
	"github.com/sells-group/leadgen-cli/pkg/apify"
	"github.com/sells-group/leadgen-cli/pkg/perplexity"
)

// pipelineEnv holds the initialized stores and stage collaborators needed
// by the run/serve commands.
type pipelineEnv struct {
	Store       store.Store
	Checkpoints *checkpoint.Store
	Pipeline    *pipeline.Pipeline

	scraper  scrape.Scraper
	enricher enrich.Enricher
	exporter export.Exporter
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// NewRunner builds a pipeline sharing this environment's stores and
// collaborators but carrying its own progress feed, so each run's log
// lines stay separate.
func (pe *pipelineEnv) NewRunner() *pipeline.Pipeline {
	return pipeline.New(pe.scraper, pe.enricher, pe.exporter, pe.Checkpoints, pe.Store, pipeline.NewFeed())
}

// initCheckpoints opens the checkpoint store from config.
func initCheckpoints() (*checkpoint.Store, error) {
	return checkpoint.NewStore(cfg.Checkpoint.Dir)
}

// initPipeline sets up the run-history store, the API clients, and the
// stage collaborators, and builds the Pipeline. Callers should defer
// env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if cfg.Apify.Token == "" {
		return nil, eris.New("apify token is not set (LEADGEN_APIFY_TOKEN or apify.token in config.yaml)")
	}

	cps, err := initCheckpoints()
	if err != nil {
		return nil, err
	}

	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	apifyClient := apify.NewClient(cfg.Apify.Token, apify.WithBaseURL(cfg.Apify.BaseURL))
	perplexityClient := perplexity.NewClient(cfg.Perplexity.Key,
		perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
		perplexity.WithModel(cfg.Perplexity.Model),
	)

	env := &pipelineEnv{
		Store:       st,
		Checkpoints: cps,
		scraper:     scrape.NewApifyScraper(apifyClient, cfg.Scrape, cfg.Apify.ActorID, cps.Dir()),
		enricher:    enrich.NewPerplexityEnricher(perplexityClient, cfg.Enrich, cost.NewCalculator(cfg.Costs)),
		exporter:    export.NewXLSXExporter(cfg.Export),
	}
	env.Pipeline = env.NewRunner()
	return env, nil
}
