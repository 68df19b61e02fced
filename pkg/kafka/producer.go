package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Writer is the subset of *kafka.Writer the producer needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is one outgoing record. Value is sent as is when it is []byte or
// string and JSON encoded otherwise.
type Message struct {
	Topic   string
	Key     []byte
	Value   interface{}
	Headers map[string]string
}

// Producer publishes JSON events.
type Producer struct {
	writer Writer
	comp   string
}

// NewProducerWithWriter wraps an existing writer. Tests use it to capture
// messages without a broker.
func NewProducerWithWriter(w Writer, compression string) *Producer {
	initProducerMetricsOnce()
	return &Producer{writer: w, comp: compression}
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka producer: brokers are required")
	}

	var bal kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		bal = &kafka.Hash{}
	}
	return NewProducerWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     bal,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  parseCompression(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.Linger,
		Async:        cfg.Async,
	}, cfg.Compression), nil
}

// Send writes msgs in one call. Messages may target different topics; the
// metrics are attributed to the first one.
func (p *Producer) Send(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	start := time.Now()
	out := make([]kafka.Message, 0, len(msgs))
	var size int64
	for _, m := range msgs {
		km, err := m.encode(start)
		if err != nil {
			return err
		}
		size += int64(len(km.Value))
		out = append(out, km)
	}

	err := p.writer.WriteMessages(ctx, out...)
	observeProducerMetrics(msgs[0].Topic, p.comp, size, len(msgs), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", msgs[0].Topic, err)
	}
	return nil
}

// Publish sends one keyed value.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return p.Send(ctx, Message{Topic: topic, Key: key, Value: value})
}

// PublishMessage sends an unkeyed value. The log collector publishes
// through it.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Send(ctx, Message{Topic: topic, Value: payload})
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

func (m Message) encode(at time.Time) (kafka.Message, error) {
	km := kafka.Message{Topic: m.Topic, Key: m.Key, Time: at}
	switch v := m.Value.(type) {
	case []byte:
		km.Value = v
	case string:
		km.Value = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return km, fmt.Errorf("marshal %s value: %w", m.Topic, err)
		}
		km.Value = b
	}
	for k, v := range m.Headers {
		km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return km, nil
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "none":
		return 0
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}

var (
	producerMsgsTotal   *prometheus.CounterVec
	producerBytesTotal  *prometheus.CounterVec
	producerLatencyHist *prometheus.HistogramVec
	producerOnce        sync.Once
)

func initProducerMetricsOnce() {
	producerOnce.Do(func() {
		producerMsgsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketengine_kafka_producer_messages_total",
				Help: "Messages written to Kafka by result",
			},
			[]string{"topic", "compression", "result"},
		)
		producerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketengine_kafka_producer_bytes_total",
				Help: "Payload bytes written to Kafka",
			},
			[]string{"topic", "compression"},
		)
		producerLatencyHist = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketengine_kafka_producer_publish_seconds",
				Help:    "Latency of one WriteMessages call",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"topic"},
		)
	})
}

func observeProducerMetrics(topic, comp string, bytes int64, count int, dur time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	producerMsgsTotal.WithLabelValues(topic, comp, result).Add(float64(count))
	if err == nil {
		producerBytesTotal.WithLabelValues(topic, comp).Add(float64(bytes))
	}
	producerLatencyHist.WithLabelValues(topic).Observe(dur.Seconds())
}
