// Package redpanda carries asynchronous analysis jobs over Redpanda/Kafka.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
)

const jobTypeAnalyze = "analyze"

// recordProducer is the produce slice of *kgo.Client.
type recordProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Producer publishes analyze jobs and implements domain.Queue.
type Producer struct {
	client recordProducer
	topic  string
}

var _ domain.Queue = (*Producer)(nil)

func newKotel() (*kotel.Kotel, *kotel.Tracer) {
	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	return kotel.NewKotel(kotel.WithTracer(tracer)), tracer
}

// NewProducer connects to brokers and makes sure topic exists.
func NewProducer(ctx context.Context, brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=queue.new_producer: no seed brokers provided")
	}
	kot, _ := newKotel()
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
		kgo.WithHooks(kot.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=queue.new_producer: %w", err)
	}
	if err := ensureTopic(ctx, client, topic, 3, 1); err != nil {
		slog.Warn("topic bootstrap failed, assuming it exists", slog.String("topic", topic), slog.Any("error", err))
	}
	slog.Info("redpanda producer ready", slog.Any("brokers", brokers), slog.String("topic", topic))
	return &Producer{client: client, topic: topic}, nil
}

// EnqueueAnalyze publishes payload keyed by its job id and returns that id.
func (p *Producer) EnqueueAnalyze(ctx domain.Context, payload domain.AnalyzeJobPayload) (string, error) {
	if payload.JobID == "" {
		return "", fmt.Errorf("%w: op=queue.enqueue: job id required", domain.ErrInvalidArgument)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("op=queue.enqueue.marshal: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(payload.JobID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "job_id", Value: []byte(payload.JobID)},
			{Key: "batch_id", Value: []byte(payload.BatchID)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return "", fmt.Errorf("op=queue.enqueue: %w", err)
	}
	observability.EnqueueJob(jobTypeAnalyze)
	slog.Info("analyze job enqueued",
		slog.String("job_id", payload.JobID),
		slog.String("batch_id", payload.BatchID),
		slog.String("topic", p.topic))
	return payload.JobID, nil
}

// Close releases the client. Produce calls are synchronous so nothing is buffered.
func (p *Producer) Close() {
	if p.client != nil {
		p.client.Close()
	}
}
