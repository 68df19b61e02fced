package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingPublisher struct {
	mu      sync.Mutex
	topics  []string
	batches [][]AggregatedLogEntry
}

func (p *recordingPublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (p *recordingPublisher) entries() []AggregatedLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []AggregatedLogEntry
	for _, b := range p.batches {
		out = append(out, b...)
	}
	return out
}

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "debug")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	l.With("component", "loader").Info("batch inserted",
		String("date", "2024-05-01"),
		Int64("rows", 42),
		Float64("seconds", 1.5),
	)

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not json: %q", buf.String())
	}
	if line["component"] != "loader" || line["date"] != "2024-05-01" || line["rows"] != float64(42) {
		t.Fatalf("unexpected fields: %v", line)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := NewWithWriter(&bytes.Buffer{}, "loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestCollectorAggregatesRepeats(t *testing.T) {
	pub := &recordingPublisher{}
	root, _ := NewWithWriter(&bytes.Buffer{}, "debug")
	// children made before the collector is attached still report to it
	l := root.With("component", "fetch")
	root.AddCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "marketengine.logs",
		Service:        "marketengine",
		Publisher:      pub,
	})

	for i := 0; i < 5; i++ {
		l.Error("item fetch failed", String("item", "volt_prime_set"), Error(errors.New("status 500")))
	}
	l.Warn("alias skipped", String("alias", "taserman"))
	l.Info("not collected")

	if got := root.sink.c.Load().Pending(); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}
	root.RemoveCollector()
	l.Error("after removal")

	entries := pub.entries()
	if len(entries) != 2 {
		t.Fatalf("published %d entries, want 2", len(entries))
	}
	if pub.topics[0] != "marketengine.logs" {
		t.Fatalf("topic = %q", pub.topics[0])
	}
	if entries[0].Count != 5 || entries[0].Level != "error" || entries[0].Service != "marketengine" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if !strings.HasSuffix(strings.Split(entries[0].Caller, ":")[0], "logger_test.go") {
		t.Fatalf("caller = %q", entries[0].Caller)
	}
}

func TestCollectorFlushesOnThreshold(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 3, Topic: "logs", Publisher: pub})

	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "b", nil, "x.go:2")
	c.AddLog("error", "c", nil, "x.go:3")
	c.Close()

	if n := len(pub.entries()); n != 3 {
		t.Fatalf("published %d entries, want 3", n)
	}
	if c.Pending() != 0 {
		t.Fatalf("collector not drained")
	}
}
