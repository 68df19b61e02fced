package repository

import (
	"context"
	"strings"

	"MarketEngine/internal/domain/models"
	domrepo "MarketEngine/internal/domain/repository"
	pkgkafka "MarketEngine/pkg/kafka"
)

// Sender is the producer surface the event publisher needs.
type Sender interface {
	Send(ctx context.Context, msgs ...pkgkafka.Message) error
	Close() error
}

// KafkaEventPublisher announces artifacts and loads on Kafka. Artifact
// events are keyed by platform so one partition sees them in order. The run
// id travels as the trace_id header and shows up in the follower's logs.
type KafkaEventPublisher struct {
	producer       Sender
	artifactsTopic string
	loadedTopic    string
}

func NewKafkaEventPublisher(producer Sender, artifactsTopic, loadedTopic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, artifactsTopic: artifactsTopic, loadedTopic: loadedTopic}
}

func (p *KafkaEventPublisher) PublishArtifacts(ctx context.Context, ev models.ArtifactsEvent) error {
	if len(ev.Dates) == 0 {
		return nil
	}
	return p.producer.Send(ctx, pkgkafka.Message{
		Topic:   p.artifactsTopic,
		Key:     []byte(strings.ToLower(ev.Platform)),
		Value:   ev,
		Headers: map[string]string{"trace_id": ev.RunID, "source": ev.Source},
	})
}

func (p *KafkaEventPublisher) PublishLoaded(ctx context.Context, ev models.LoadedEvent) error {
	return p.producer.Send(ctx, pkgkafka.Message{
		Topic:   p.loadedTopic,
		Key:     []byte(ev.RunID),
		Value:   ev,
		Headers: map[string]string{"trace_id": ev.RunID},
	})
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopEventPublisher drops every event. It is used when Kafka is disabled.
type NopEventPublisher struct{}

func (NopEventPublisher) PublishArtifacts(context.Context, models.ArtifactsEvent) error { return nil }

func (NopEventPublisher) PublishLoaded(context.Context, models.LoadedEvent) error { return nil }

func (NopEventPublisher) Close() error { return nil }

var (
	_ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)
	_ domrepo.EventPublisher = NopEventPublisher{}
	_ Sender                 = (*pkgkafka.Producer)(nil)
)
