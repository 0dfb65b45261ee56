// Package push orchestrates full-push runs: single-flight gating,
// adaptor-driven batching, per-batch retry, and journal status recording.
package push

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/docuhub/gsadapt/common"
	"github.com/docuhub/gsadapt/docid"
	"github.com/docuhub/gsadapt/feed"
	"github.com/docuhub/gsadapt/journal"
)

// ErrPushInProgress is returned by TriggerFullPush (after a warning log)
// when a full push is triggered while another is already running.
var ErrPushInProgress = errors.New("push: full push already in progress")

// ErrInterrupted signals that the context was canceled mid-push.
var ErrInterrupted = errors.New("push: interrupted")

// PushContext is handed to the adaptor's GetDocIds callback. The adaptor
// calls Send any number of times with batches of records it wants pushed;
// Send blocks until that batch (including its retries) has been attempted.
type PushContext interface {
	Send(ctx context.Context, records []feed.Record) error
}

// GetDocIdsErrorHandler decides whether to retry the full adaptor listing
// after an error other than interruption.
type GetDocIdsErrorHandler func(err error, attempt int) (retry bool)

// ErrorHandler decides whether to retry a single batch send after one of
// the feed package's three classified error kinds.
type ErrorHandler func(err error, attempt int) (retry bool)

// DefaultErrorHandler allows up to maxAttempts attempts in total: it
// returns false once attempt reaches maxAttempts. interval is not used by
// the handler; the linear `RetryInterval * attempt#` sleep between batch
// attempts is applied by the engine. The defaults are 12 attempts at
// 5000ms * attempt#.
func DefaultErrorHandler(maxAttempts int, interval time.Duration) ErrorHandler {
	return func(err error, attempt int) bool {
		return attempt < maxAttempts
	}
}

const (
	DefaultMaxAttempts = 12
	DefaultInterval    = 5 * time.Second
)

// Config bundles the engine's tunables.
type Config struct {
	MaxURLs           int // feed.maxUrls, default 5000
	DataSource        string
	ManifestCfg       feed.ManifestConfig
	MaxAttempts       int
	RetryInterval     time.Duration
	GetDocIdsHandler  GetDocIdsErrorHandler
	BatchHandler      ErrorHandler
}

// DefaultConfig applies the configuration-keys table's defaults.
func DefaultConfig(dataSource string) Config {
	return Config{
		MaxURLs:          5000,
		DataSource:       dataSource,
		ManifestCfg:      feed.DefaultManifestConfig(dataSource),
		MaxAttempts:      DefaultMaxAttempts,
		RetryInterval:    DefaultInterval,
		GetDocIdsHandler: GetDocIdsErrorHandler(DefaultErrorHandler(DefaultMaxAttempts, DefaultInterval)),
		BatchHandler:     ErrorHandler(DefaultErrorHandler(DefaultMaxAttempts, DefaultInterval)),
	}
}

// Adaptor is the subset of the adaptor contract the push engine drives.
type Adaptor interface {
	GetDocIds(ctx context.Context, pusher PushContext) error
}

// Sender submits one rendered manifest to the indexer. *feed.Sender
// satisfies this; tests substitute a fake to exercise retry/backoff
// without a live indexer.
type Sender interface {
	Send(ctx context.Context, dataSource, feedType string, manifest []byte) error
}

// URLResolver turns a docid into the public URL the manifest should
// advertise for it (normally docid.Codec.Encode, stringified).
type URLResolver func(id docid.DocID) (string, error)

// Engine runs full pushes, single-flight.
type Engine struct {
	cfg     Config
	adaptor Adaptor
	sender  Sender
	resolve URLResolver
	journal *journal.Journal
	running atomic.Bool
	logger  *common.ContextLogger
}

// NewEngine constructs a push Engine.
func NewEngine(cfg Config, adaptor Adaptor, sender Sender, resolve URLResolver, j *journal.Journal) *Engine {
	return &Engine{
		cfg:     cfg,
		adaptor: adaptor,
		sender:  sender,
		resolve: resolve,
		journal: j,
		logger:  common.ServiceLogger("push"),
	}
}

// TriggerFullPush runs a full push if none is in progress; a concurrent
// trigger is dropped with a warning log, matching the single-flight gate.
func (e *Engine) TriggerFullPush(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		e.logger.Warn("full push already in progress, dropping trigger")
		return ErrPushInProgress
	}
	defer e.running.Store(false)

	runID := e.journal.RecordFullPushStarted()
	ctx = common.WithPushID(ctx, runID)
	log := e.logger.WithContext(ctx)
	log.Info("full push started")

	pusher := &pushContextImpl{engine: e, ctx: ctx, log: log}

	getHandler := e.cfg.GetDocIdsHandler
	if getHandler == nil {
		getHandler = func(err error, attempt int) bool { return attempt < e.cfg.MaxAttempts }
	}

	attempt := 0
	for {
		attempt++
		err := common.LogOperation(log, "full_listing", func() error {
			return e.adaptor.GetDocIds(ctx, pusher)
		})
		if err == nil {
			e.journal.RecordFullPushResult(journal.PushSuccess)
			log.Info("full push completed: SUCCESS")
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, ErrInterrupted) {
			e.journal.RecordFullPushResult(journal.PushInterruption)
			log.Warn("full push interrupted")
			return ErrInterrupted
		}
		if pusher.failedRecord != nil {
			// A batch exhausted its own retries; that's a terminal
			// failure for this push, not something GetDocIdsHandler
			// gets a say over.
			e.journal.RecordFullPushResult(journal.PushFailure)
			log.WithError(err).Error("full push failed: batch retry exhausted")
			return err
		}
		if !getHandler(err, attempt) {
			e.journal.RecordFullPushResult(journal.PushFailure)
			log.WithError(err).Error("full push failed: listing retry exhausted")
			return err
		}
		log.WithError(err).Warnf("retrying full listing, attempt %d", attempt)
	}
}

// pushContextImpl is the PushContext implementation handed to the adaptor.
type pushContextImpl struct {
	engine       *Engine
	ctx          context.Context
	log          *common.ContextLogger
	failedRecord *feed.Record
}

// Send batches records at MaxURLs and sends each batch with per-batch
// retry. When a batch exhausts its retries, Send returns that batch's send
// error to the adaptor; the batch's first record is not returned, it is
// only remembered on the context so the engine's outer loop can
// distinguish the failure from a listing error.
func (p *pushContextImpl) Send(ctx context.Context, records []feed.Record) error {
	maxURLs := p.engine.cfg.MaxURLs
	if maxURLs <= 0 {
		maxURLs = 5000
	}

	for start := 0; start < len(records); start += maxURLs {
		end := start + maxURLs
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		if err := ctx.Err(); err != nil {
			return ErrInterrupted
		}

		if err := p.sendBatchWithRetry(ctx, batch); err != nil {
			p.failedRecord = &batch[0]
			return err
		}

		for _, r := range batch {
			p.engine.journal.RecordPushed(string(r.ID))
		}
	}
	return nil
}

func (p *pushContextImpl) sendBatchWithRetry(ctx context.Context, batch []feed.Record) error {
	handler := p.engine.cfg.BatchHandler
	if handler == nil {
		handler = func(err error, attempt int) bool { return attempt < p.engine.cfg.MaxAttempts }
	}
	interval := p.engine.cfg.RetryInterval
	if interval <= 0 {
		interval = DefaultInterval
	}

	manifest, err := feed.BuildManifest(p.engine.cfg.ManifestCfg, batch, func(r feed.Record) (string, error) {
		return p.engine.resolve(r.ID)
	})
	if err != nil {
		return fmt.Errorf("push: build manifest: %w", err)
	}

	attempt := 0
	for {
		attempt++
		sendErr := p.engine.sender.Send(ctx, p.engine.cfg.DataSource, "metadata-and-url", manifest)
		if sendErr == nil {
			return nil
		}
		if !handler(sendErr, attempt) {
			return sendErr
		}
		select {
		case <-ctx.Done():
			return ErrInterrupted
		case <-time.After(interval * time.Duration(attempt)):
		}
	}
}
