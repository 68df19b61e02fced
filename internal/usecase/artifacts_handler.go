package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"MarketEngine/internal/domain/models"
	domrepo "MarketEngine/internal/domain/repository"
	pkgkafka "MarketEngine/pkg/kafka"
	xlogger "MarketEngine/pkg/logger"
)

// ArtifactsHandler loads new artifacts whenever an aggregator announces
// them. Errors go back to the consumer, which retries and then dead-letters.
type ArtifactsHandler struct {
	topic    string
	platform string
	loader   *Loader
	metrics  domrepo.Metrics
	logger   *xlogger.Logger
}

func NewArtifactsHandler(topic, platform string, loader *Loader, metrics domrepo.Metrics, logger *xlogger.Logger) *ArtifactsHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ArtifactsHandler{
		topic:    topic,
		platform: platform,
		loader:   loader,
		metrics:  metrics,
		logger:   logger.With("component", "artifacts_handler"),
	}
}

func (h *ArtifactsHandler) Topic() string { return h.topic }

// incoming message schema: models.ArtifactsEvent
func (h *ArtifactsHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.ArtifactsEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode artifacts event: %w", err)
	}
	// other platforms write to their own artifact directory
	if ev.Platform != "" && !strings.EqualFold(ev.Platform, h.platform) {
		return nil
	}
	if !ev.At.IsZero() {
		h.metrics.RecordLatency("artifacts_event_lag", time.Since(ev.At).Seconds())
	}

	report, err := h.loader.Load(ctx, LoadOptions{})
	if err != nil {
		return err
	}
	h.logger.Info("loaded after artifacts event",
		xlogger.String("event_run_id", ev.RunID),
		xlogger.String("trace_id", pkgkafka.TraceID(ctx)),
		xlogger.String("source", ev.Source),
		xlogger.Int("dates", len(report.Dates)),
		xlogger.Int64("inserted", report.Inserted),
	)
	return nil
}

var _ pkgkafka.MessageHandler = (*ArtifactsHandler)(nil)
