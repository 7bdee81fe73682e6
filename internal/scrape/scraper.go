// Package scrape collects business leads from Google Maps through the
// Apify "compass/crawler-google-places" actor.
package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/pkg/apify"
)

// Scraper fetches leads for a set of search queries in a location.
type Scraper interface {
	Scrape(ctx context.Context, params model.RunParams) ([]model.Lead, error)
}

// ApifyScraper runs the Google Maps actor and extracts leads from its
// dataset output.
type ApifyScraper struct {
	client       apify.Client
	actorID      string
	workDir      string
	language     string
	skipClosed   bool
	contacts     bool
	pollInterval time.Duration
	maxWaitCap   time.Duration
}

// NewApifyScraper creates a scraper backed by the given Apify client.
// Raw dataset dumps are written to workDir for debugging.
func NewApifyScraper(client apify.Client, cfg config.ScrapeConfig, actorID, workDir string) *ApifyScraper {
	return &ApifyScraper{
		client:       client,
		actorID:      actorID,
		workDir:      workDir,
		language:     cfg.Language,
		skipClosed:   cfg.SkipClosed,
		contacts:     cfg.ScrapeContacts,
		pollInterval: time.Duration(cfg.PollIntervalSecs) * time.Second,
		maxWaitCap:   time.Duration(cfg.MaxWaitCapSecs) * time.Second,
	}
}

// actorInput is the run input for compass/crawler-google-places.
type actorInput struct {
	SearchStringsArray        []string `json:"searchStringsArray"`
	LocationQuery             string   `json:"locationQuery"`
	MaxCrawledPlacesPerSearch int      `json:"maxCrawledPlacesPerSearch"`
	Language                  string   `json:"language"`
	SkipClosedPlaces          bool     `json:"skipClosedPlaces"`
	ScrapeContacts            bool     `json:"scrapeContacts"`
	ScrapePlaceDetailPage     bool     `json:"scrapePlaceDetailPage"`
	MaxReviews                int      `json:"maxReviews"`
	MaxImages                 int      `json:"maxImages"`
}

// Scrape starts an actor run, waits for it to finish, and extracts the
// lead fields from the dataset. The wait deadline scales with the requested
// result count: at least 2 minutes, 30 seconds per result, capped. When
// ctx is cancelled mid-run the actor run is aborted so it stops consuming
// credits.
func (s *ApifyScraper) Scrape(ctx context.Context, params model.RunParams) ([]model.Lead, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	input := actorInput{
		SearchStringsArray:        params.Queries,
		LocationQuery:             params.Location,
		MaxCrawledPlacesPerSearch: params.MaxResults,
		Language:                  s.language,
		SkipClosedPlaces:          s.skipClosed,
		ScrapeContacts:            s.contacts,
		ScrapePlaceDetailPage:     true,
		MaxReviews:                0,
		MaxImages:                 0,
	}

	maxWait := s.maxWait(params.MaxResults)
	log := zap.L().With(zap.String("component", "scraper"))
	log.Info("starting actor run",
		zap.Strings("queries", params.Queries),
		zap.String("location", params.Location),
		zap.Int("max_results", params.MaxResults),
		zap.Duration("max_wait", maxWait),
	)

	run, err := s.client.StartActorRun(ctx, apifyActorPath(s.actorID), input)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: start actor run")
	}
	log.Info("actor run started", zap.String("run_id", run.ID))

	pollCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	final, err := apify.PollRun(pollCtx, s.client, run.ID, apify.WithPollInterval(s.pollInterval))
	if err != nil {
		if ctx.Err() != nil || pollCtx.Err() != nil {
			s.abort(run.ID, log)
		}
		return nil, eris.Wrap(err, "scrape: wait for actor run")
	}

	if final.Status != apify.RunStatusSucceeded {
		return nil, eris.Errorf("scrape: actor run %s did not succeed (status %s)", run.ID, final.Status)
	}
	if final.DefaultDatasetID == "" {
		return nil, eris.Errorf("scrape: actor run %s succeeded but returned no dataset id", run.ID)
	}

	items, err := s.client.ListDatasetItems(ctx, final.DefaultDatasetID)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: fetch dataset items")
	}
	log.Info("received raw results", zap.Int("count", len(items)))

	s.dumpRaw(items, log)

	leads := extractLeads(items)
	log.Info("extracted leads", zap.Int("count", len(leads)))
	return leads, nil
}

// maxWait scales the poll deadline with the requested result count.
func (s *ApifyScraper) maxWait(maxResults int) time.Duration {
	wait := time.Duration(maxResults) * 30 * time.Second
	if wait < 2*time.Minute {
		wait = 2 * time.Minute
	}
	if wait > s.maxWaitCap {
		wait = s.maxWaitCap
	}
	return wait
}

// abort best-effort aborts a running actor run. Uses a fresh context
// because the caller's context is already cancelled.
func (s *ApifyScraper) abort(runID string, log *zap.Logger) {
	abortCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, err := s.client.AbortRun(abortCtx, runID); err != nil {
		log.Warn("could not abort actor run, check the Apify console",
			zap.String("run_id", runID),
			zap.Error(err),
		)
		return
	}
	log.Info("actor run aborted", zap.String("run_id", runID))
}

// dumpRaw saves the raw dataset payload next to the checkpoints for
// debugging. Failures here never fail the scrape.
func (s *ApifyScraper) dumpRaw(items []json.RawMessage, log *zap.Logger) {
	if s.workDir == "" {
		return
	}
	if err := os.MkdirAll(s.workDir, 0o755); err != nil {
		log.Warn("could not create work dir for raw dump", zap.Error(err))
		return
	}

	path := filepath.Join(s.workDir, fmt.Sprintf("gmaps_raw_%s.json", time.Now().Format("20060102_150405")))
	buf, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		log.Warn("could not marshal raw dump", zap.Error(err))
		return
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		log.Warn("could not write raw dump", zap.String("path", path), zap.Error(err))
		return
	}
	log.Debug("raw data saved", zap.String("path", path))
}

// apifyActorPath converts a "user/actor" ID to the "user~actor" form the
// REST API expects in URL paths.
func apifyActorPath(actorID string) string {
	return strings.ReplaceAll(actorID, "/", "~")
}

// rawPlace covers the dataset fields the actor may populate. Email can
// land in several places depending on which enrichment options ran.
type rawPlace struct {
	Title        string   `json:"title"`
	CategoryName string   `json:"categoryName"`
	Address      string   `json:"address"`
	City         string   `json:"city"`
	State        string   `json:"state"`
	Phone        string   `json:"phone"`
	Website      string   `json:"website"`
	Email        string   `json:"email"`
	Emails       []string `json:"emails"`
	ContactInfo  struct {
		Email string `json:"email"`
	} `json:"contactInfo"`
}

// extractLeads pulls the eight lead fields from each raw dataset item.
// Items that fail to decode are skipped with a warning rather than
// failing the whole batch.
func extractLeads(items []json.RawMessage) []model.Lead {
	leads := make([]model.Lead, 0, len(items))
	for i, item := range items {
		var place rawPlace
		if err := json.Unmarshal(item, &place); err != nil {
			zap.L().Warn("skipping malformed dataset item",
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		leads = append(leads, model.Lead{
			Name:     place.Title,
			Category: place.CategoryName,
			Location: place.Address,
			City:     place.City,
			State:    place.State,
			Phone:    place.Phone,
			Website:  place.Website,
			Email:    bestEmail(place),
		})
	}
	return leads
}

// bestEmail picks the most direct email the actor reported.
func bestEmail(place rawPlace) string {
	if place.Email != "" {
		return place.Email
	}
	if len(place.Emails) > 0 {
		return place.Emails[0]
	}
	return place.ContactInfo.Email
}
