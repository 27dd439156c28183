package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
	obsctx "github.com/fairyhunter13/ai-cv-analyzer/internal/observability"
)

// JobProcessor runs one analyze job. ProcessJob persists successes and
// returns failures untouched; FailJob persists a terminal failure.
type JobProcessor interface {
	ProcessJob(ctx domain.Context, payload domain.AnalyzeJobPayload) error
	FailJob(ctx domain.Context, payload domain.AnalyzeJobPayload, cause error) error
}

// RetryPolicy bounds the worker-side retry of provider failures.
type RetryPolicy struct {
	Initial     time.Duration
	MaxInterval time.Duration
	MaxElapsed  time.Duration
}

func (p RetryPolicy) backoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		bo.InitialInterval = p.Initial
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	bo.MaxElapsedTime = p.MaxElapsed
	return backoff.WithContext(bo, ctx)
}

// pollingClient is the consume slice of *kgo.Client.
type pollingClient interface {
	PollFetches(ctx context.Context) kgo.Fetches
	MarkCommitRecords(rs ...*kgo.Record)
	CommitMarkedOffsets(ctx context.Context) error
	AllowRebalance()
	Close()
}

// Consumer reads analyze jobs from a consumer group and settles each record
// before marking its offset.
type Consumer struct {
	client pollingClient
	tracer *kotel.Tracer
	proc   JobProcessor
	policy RetryPolicy
	topic  string
}

// NewConsumer joins groupID on topic, creating the topic when missing.
func NewConsumer(ctx context.Context, brokers []string, topic, groupID string, proc JobProcessor, policy RetryPolicy) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=queue.new_consumer: no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("op=queue.new_consumer: missing required group ID")
	}
	kot, tracer := newKotel()

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
		kgo.SessionTimeout(30*time.Second),
		kgo.FetchMaxWait(5*time.Second),
		kgo.WithHooks(kot.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=queue.new_consumer: %w", err)
	}
	if err := ensureTopic(ctx, client, topic, 3, 1); err != nil {
		slog.Warn("topic bootstrap failed, assuming it exists", slog.String("topic", topic), slog.Any("error", err))
	}
	slog.Info("redpanda consumer ready", slog.Any("brokers", brokers), slog.String("topic", topic), slog.String("group_id", groupID))
	return &Consumer{client: client, tracer: tracer, proc: proc, policy: policy, topic: topic}, nil
}

// Run polls until ctx is done or the client is closed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil || fetches.IsClientClosed() {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			slog.Error("fetch error", slog.String("topic", topic), slog.Int("partition", int(partition)), slog.Any("error", err))
		})

		fetches.EachRecord(func(rec *kgo.Record) {
			if ctx.Err() != nil {
				return
			}
			if c.handleRecord(ctx, rec) {
				c.client.MarkCommitRecords(rec)
			}
		})
		if err := c.client.CommitMarkedOffsets(ctx); err != nil && ctx.Err() == nil {
			slog.Error("offset commit failed", slog.Any("error", err))
		}
		c.client.AllowRebalance()
	}
}

// handleRecord processes one record and reports whether it is settled.
// An unsettled record is left uncommitted for redelivery.
func (c *Consumer) handleRecord(ctx context.Context, rec *kgo.Record) bool {
	if c.tracer != nil {
		// The span context derives from the record; keep ctx for cancellation.
		_, span := c.tracer.WithProcessSpan(rec)
		defer span.End()
		ctx = trace.ContextWithSpan(ctx, span)
	}

	var payload domain.AnalyzeJobPayload
	if err := json.Unmarshal(rec.Value, &payload); err != nil || payload.JobID == "" {
		slog.Error("dropping undecodable job record",
			slog.String("topic", rec.Topic),
			slog.Int64("offset", rec.Offset),
			slog.Any("error", err))
		return true
	}

	ctx = obsctx.WithLogAttrs(ctx, slog.String("job_id", payload.JobID), slog.String("batch_id", payload.BatchID))
	lg := obsctx.LoggerFromContext(ctx)
	observability.StartProcessingJob(jobTypeAnalyze)

	attempt := 0
	op := func() error {
		attempt++
		err := c.proc.ProcessJob(ctx, payload)
		if err == nil || Retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, next time.Duration) {
		lg.Warn("analyze job retrying", slog.Int("attempt", attempt), slog.Duration("next", next), slog.Any("error", err))
	}
	err := backoff.RetryNotify(op, c.policy.backoff(ctx), notify)
	switch {
	case err == nil:
		observability.CompleteJob(jobTypeAnalyze)
		lg.Info("analyze job completed", slog.Int("attempts", attempt))
		return true
	case ctx.Err() != nil:
		lg.Warn("analyze job interrupted by shutdown", slog.Int("attempts", attempt))
		return false
	}

	observability.FailJob(jobTypeAnalyze)
	lg.Error("analyze job failed", slog.Int("attempts", attempt), slog.Any("error", err))
	if ferr := c.proc.FailJob(ctx, payload, err); ferr != nil {
		lg.Error("persisting job failure", slog.Any("error", ferr))
	}
	return true
}

// Close leaves the group and releases the client.
func (c *Consumer) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Retryable reports whether err is a transient provider failure. Timeouts,
// transport errors, error payloads on a 2xx, 408, 429 and 5xx qualify; other
// 4xx statuses and reply-shape failures are terminal.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrUpstreamTimeout) {
		return true
	}
	var httpErr *domain.ProviderHTTPError
	if errors.As(err, &httpErr) {
		s := httpErr.StatusCode
		return s < 400 || s == http.StatusRequestTimeout || s == http.StatusTooManyRequests || s >= 500
	}
	return errors.Is(err, domain.ErrProvider)
}
