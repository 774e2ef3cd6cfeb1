package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"eventlog/api/internal/logger"
)

const idxEventLogs = "eventlogs"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	log     *logger.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the index. An
// unreachable server leaves it unhealthy; the health loop keeps probing.
func NewMeili(url, apiKey string, log *logger.Logger) *Meili {
	if log == nil {
		log = logger.Nop()
	}
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		log:    log.Component("search"),
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		m.log.Warn().Err(err).Str("url", url).Msg("meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxEventLogs,
		PrimaryKey: "id",
	}); err != nil {
		m.log.Debug().Err(err).Msg("create index (may already exist)")
	}

	index := m.client.Index(idxEventLogs)
	searchable := []string{"plainText"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.Warn().Err(err).Msg("update searchable attributes")
	}
	sortable := []string{"updatedAt"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		m.log.Warn().Err(err).Msg("update sortable attributes")
	}
}

const healthInterval = 10 * time.Second

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.probe()
		}
	}
}

// probe refreshes the health flag and reapplies index settings after an
// outage, since the server may have restarted empty.
func (m *Meili) probe() {
	_, err := m.client.Health()
	if was := m.healthy.Swap(err == nil); err == nil && !was {
		m.log.Info().Msg("meilisearch recovered")
		m.configureIndex()
	} else if err != nil && was {
		m.log.Warn().Err(err).Msg("meilisearch lost")
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID:              idxEventLogs,
			Query:                 q.Text,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"plainText"},
			AttributesToCrop:      []string{"plainText"},
			CropLength:            24,
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

// meiliHit is the stored document plus the highlighted copy Meilisearch
// returns under _formatted.
type meiliHit struct {
	ID        string `json:"id"`
	PlainText string `json:"plainText"`
	UpdatedAt int64  `json:"updatedAt"`
	Formatted struct {
		PlainText string `json:"plainText"`
	} `json:"_formatted"`
}

func hitToResult(hit meili.Hit) Result {
	raw, err := json.Marshal(hit)
	if err != nil {
		return Result{}
	}
	var doc meiliHit
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Result{}
	}
	snippet := strings.TrimSpace(doc.Formatted.PlainText)
	if snippet == "" {
		snippet = doc.PlainText
	}
	return Result{ID: doc.ID, Snippet: snippet, UpdatedAt: doc.UpdatedAt}
}

func (m *Meili) Index(records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxEventLogs).AddDocuments(records, nil)
	return err
}

func (m *Meili) Delete(id string) error {
	_, err := m.client.Index(idxEventLogs).DeleteDocument(id, nil)
	return err
}
