package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"smartdoor-relay/entities"
	"smartdoor-relay/metrics"
	"smartdoor-relay/repositories"
	"smartdoor-relay/storage"
)

const (
	uploadTimeout = 30 * time.Second
	// backlog per worker before new offloads are skipped and the entry
	// stays inline
	backlogPerWorker = 64
)

var ErrOffloadBacklog = errors.New("offload backlog full")

// OffloadPipeline moves inline images of stored log entries to object
// storage in the background and rewrites the entries to reference the key.
type OffloadPipeline struct {
	store   storage.ObjectStore
	logs    repositories.LogStore
	log     *zap.Logger
	sem     chan struct{}
	pending atomic.Int64
	limit   int64
	wg      sync.WaitGroup
}

// NewOffloadPipeline runs at most workers uploads at a time. A nil store
// disables offloading; entries then keep their inline media.
func NewOffloadPipeline(store storage.ObjectStore, logs repositories.LogStore, workers int, log *zap.Logger) *OffloadPipeline {
	if workers <= 0 {
		workers = 1
	}
	return &OffloadPipeline{
		store: store,
		logs:  logs,
		log:   log,
		sem:   make(chan struct{}, workers),
		limit: int64(workers * backlogPerWorker),
	}
}

// Offload starts the upload of entry's inline media and returns at once.
// The returned channel yields the outcome exactly once and may be ignored.
// Failed uploads are logged and never retried.
func (p *OffloadPipeline) Offload(entry entities.LogEntry) <-chan error {
	errc := make(chan error, 1)
	if entry.Media.Inline == "" {
		errc <- nil
		return errc
	}
	if p.store == nil {
		metrics.Offload(metrics.OffloadSkipped, 0)
		errc <- nil
		return errc
	}
	if p.pending.Add(1) > p.limit {
		p.pending.Add(-1)
		metrics.Offload(metrics.OffloadSkipped, 0)
		p.log.Warn("offload backlog full, keeping media inline", zap.Int64("log_id", entry.ID))
		errc <- ErrOffloadBacklog
		return errc
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.pending.Add(-1)
		errc <- p.run(entry)
	}()
	return errc
}

func (p *OffloadPipeline) run(entry entities.LogEntry) error {
	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	start := time.Now()
	data, contentType, err := DecodeDataURI(entry.Media.Inline)
	if err != nil {
		metrics.Offload(metrics.OffloadError, time.Since(start))
		p.log.Warn("offload decode failed", zap.Int64("log_id", entry.ID), zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()
	key, err := p.store.Put(ctx, data, contentType)
	if err != nil {
		metrics.Offload(metrics.OffloadError, time.Since(start))
		p.log.Error("offload upload failed, keeping media inline", zap.Int64("log_id", entry.ID), zap.Error(err))
		return err
	}
	metrics.Offload(metrics.OffloadSuccess, time.Since(start))

	if !p.logs.AttachStorageKey(entry.ID, key) {
		// evicted from the buffer while uploading
		p.log.Debug("offloaded entry no longer buffered", zap.Int64("log_id", entry.ID), zap.String("key", key))
		return nil
	}
	p.log.Debug("media offloaded", zap.Int64("log_id", entry.ID), zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// Wait blocks until every started upload has finished.
func (p *OffloadPipeline) Wait() {
	p.wg.Wait()
}

// DecodeDataURI decodes "data:<type>;base64,<payload>" or bare base64.
// Bare payloads are assumed to be JPEG.
func DecodeDataURI(s string) ([]byte, string, error) {
	contentType := "image/jpeg"
	payload := s
	if strings.HasPrefix(s, "data:") {
		idx := strings.Index(s, ",")
		if idx < 0 {
			return nil, "", fmt.Errorf("malformed data URI")
		}
		header := s[len("data:"):idx]
		payload = s[idx+1:]
		if mt, _, _ := strings.Cut(header, ";"); mt != "" {
			contentType = mt
		}
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, "", fmt.Errorf("decode base64: %w", err)
		}
	}
	return data, contentType, nil
}
