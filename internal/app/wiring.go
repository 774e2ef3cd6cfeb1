package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"eventlog/api/internal/archive"
	"eventlog/api/internal/config"
	"eventlog/api/internal/email"
	"eventlog/api/internal/export"
	"eventlog/api/internal/gitrepo"
	"eventlog/api/internal/logger"
	"eventlog/api/internal/metrics"
	"eventlog/api/internal/normalize"
	"eventlog/api/internal/search"
	"eventlog/api/internal/session"
	"eventlog/api/internal/store"
	"eventlog/api/internal/syncer"
)

// Components is the assembled process: every backend selected by the
// configuration, shared by the API server and the CLI.
type Components struct {
	Config     config.Config
	Log        *logger.Logger
	Metrics    *metrics.Metrics
	Store      *store.SQLStore
	Redis      *session.RedisStore
	Session    *session.SyncSession
	Normalizer *normalize.Normalizer
	History    *gitrepo.Service
	Meili      *search.Meili
	Search     *search.Service
	Archive    *archive.Store
	Export     *export.Service
	Transport  syncer.Transport
	Syncer     *syncer.Syncer
}

// Wire opens every configured backend. Optional backends (Redis,
// Meilisearch, S3, SMTP) are skipped when unset.
func Wire(ctx context.Context, cfg config.Config, log *logger.Logger) (*Components, error) {
	if log == nil {
		log = logger.Nop()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	c := &Components{Config: cfg, Log: log, Metrics: metrics.New()}

	c.Store, err = store.OpenSQLStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	sessOpts := session.Options{Location: loc}
	var baselines syncer.BaselineStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		c.Redis, err = session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			c.Close()
			return nil, err
		}
		sessOpts.Sequencer = c.Redis
		baselines = c.Redis
		log.Info().Msg("using redis for sync baselines")
	}
	c.Session = session.New(sessOpts)
	c.Normalizer = normalize.New(normalize.Config{
		Location:       loc,
		MinGap:         cfg.CompactGap,
		FuzzyThreshold: cfg.FuzzyThreshold,
	}, c.Session, normalize.WithLogger(log.Component("normalize").Zerolog()), normalize.WithRecorder(c.Metrics))

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		c.Close()
		return nil, fmt.Errorf("create repos dir: %w", err)
	}
	c.History = gitrepo.New(cfg.ReposDir)

	if strings.TrimSpace(cfg.MeiliURL) != "" {
		c.Meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
	}
	c.Search = search.NewService(c.Meili, search.NewStoreSearch(c.Store), log)

	var archiver export.Archiver
	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		c.Archive, err = archive.New(archive.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			c.Close()
			return nil, err
		}
		if err := c.Archive.EnsureBucket(ctx); err != nil {
			log.Warn().Err(err).Msg("export archive unavailable")
		}
		archiver = c.Archive
	}
	c.Export = export.NewService(c.Store, c.History, archiver, loc)

	c.Transport, err = transportFor(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Syncer, err = syncer.New(syncer.Options{
		Records:    c.Store,
		Session:    c.Session,
		Normalizer: c.Normalizer,
		Transport:  c.Transport,
		Baselines:  baselines,
		History:    c.History,
		Index:      c.Search,
		Recorder:   c.Metrics,
		Logger:     log,
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// transportFor mails outbound bodies when SMTP is configured and writes
// them to the outbox directory otherwise.
func transportFor(cfg config.Config) (syncer.Transport, error) {
	mail := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
		To:       cfg.SMTPTo,
	})
	if mail.IsConfigured() {
		return email.NewTransport(mail), nil
	}
	return syncer.NewDirTransport(cfg.OutboxDir)
}

// Service builds the HTTP-facing service over the components.
func (c *Components) Service() *Service {
	return New(c.Config, Deps{
		Records:    c.Store,
		Syncer:     c.Syncer,
		Normalizer: c.Normalizer,
		History:    c.History,
		Search:     c.Search,
		Export:     c.Export,
	})
}

// Reindex pushes up to limit stored records to Meilisearch.
func (c *Components) Reindex(ctx context.Context, limit int) error {
	if c.Meili == nil {
		return nil
	}
	summaries, err := c.Store.ListRecords(ctx, limit)
	if err != nil {
		return err
	}
	records := make([]search.Record, 0, len(summaries))
	for _, summary := range summaries {
		env, err := c.Store.GetRecord(ctx, summary.ID)
		if err != nil {
			return err
		}
		if env != nil {
			records = append(records, search.RecordFor(env.ID, env.Log))
		}
	}
	return c.Search.Reindex(records)
}

func (c *Components) Close() error {
	var errs []error
	if c.Meili != nil {
		c.Meili.Close()
	}
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	return errors.Join(errs...)
}
