// Package redpanda provides the Redpanda/Kafka queue adapter.
//
// Jobs are published transactionally keyed by job id, and consumed by a
// worker group that commits offsets only after a job reaches a terminal
// state or the message is identified as poison. Delivery is at least once;
// the job store's state machine absorbs redelivery.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/ai-career-assist/internal/adapter/observability"
	"github.com/fairyhunter13/ai-career-assist/internal/domain"
	obsctx "github.com/fairyhunter13/ai-career-assist/internal/observability"
)

// TopicJobs is the Kafka topic carrying job task payloads.
const TopicJobs = "career-jobs"

// Producer wraps a transactional Kafka producer and implements domain.Queue.
type Producer struct {
	client *kgo.Client
	// Transactions on one client must not interleave; this channel
	// serializes them.
	transactionChan chan struct{}
}

// NewProducer constructs a Producer with exactly-once publish semantics.
func NewProducer(brokers []string) (*Producer, error) {
	return NewProducerWithTransactionalID(brokers, "ai-career-assist-producer")
}

// NewProducerWithTransactionalID constructs a Producer with a custom
// transactional id, mainly so tests can run several producers side by side.
func NewProducerWithTransactionalID(brokers []string, transactionalID string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	slog.Info("creating redpanda producer",
		slog.Any("brokers", brokers),
		slog.String("transactional_id", transactionalID))

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.TransactionalID(transactionalID),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("redpanda client: %w", err)
	}

	ctx := context.Background()
	if err := createTopicIfNotExists(ctx, client, TopicJobs, 1, 1); err != nil {
		slog.Warn("topic creation failed, it may already exist",
			slog.String("topic", TopicJobs),
			slog.Any("error", err))
	}

	return &Producer{
		client:          client,
		transactionChan: make(chan struct{}, 1),
	}, nil
}

// EnqueueJob publishes a job task to the jobs topic.
func (p *Producer) EnqueueJob(ctx domain.Context, payload domain.JobTaskPayload) (string, error) {
	return p.EnqueueJobToTopic(ctx, payload, TopicJobs)
}

// EnqueueJobToTopic publishes a job task to a specific topic. Tests use
// unique topics for isolation.
func (p *Producer) EnqueueJobToTopic(ctx domain.Context, payload domain.JobTaskPayload, topic string) (string, error) {
	lg := obsctx.LoggerFromContext(ctx).With(
		slog.String("job_id", payload.JobID),
		slog.String("kind", string(payload.Kind)),
		slog.String("topic", topic))

	select {
	case p.transactionChan <- struct{}{}:
		defer func() { <-p.transactionChan }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if err := p.client.BeginTransaction(); err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		if abortErr := p.client.EndTransaction(ctx, kgo.TryAbort); abortErr != nil {
			lg.Error("abort transaction failed", slog.Any("error", abortErr))
		}
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	record := &kgo.Record{
		Topic: topic,
		// Keying by job id keeps redeliveries of the same job ordered.
		Key:   []byte(payload.JobID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "job_id", Value: []byte(payload.JobID)},
			{Key: "kind", Value: []byte(payload.Kind)},
		},
	}

	e := kgo.AbortingFirstErrPromise(p.client)
	p.client.Produce(ctx, record, e.Promise())
	if err := e.Err(); err != nil {
		if abortErr := p.client.EndTransaction(ctx, kgo.TryAbort); abortErr != nil {
			lg.Error("abort transaction failed", slog.Any("error", abortErr))
		}
		return "", fmt.Errorf("produce: %w", err)
	}

	if err := p.client.EndTransaction(ctx, kgo.TryCommit); err != nil {
		return "", fmt.Errorf("commit transaction: %w", err)
	}

	observability.EnqueueJob(string(payload.Kind))
	lg.Info("job enqueued")
	return payload.JobID, nil
}

// Ping checks broker connectivity for readiness probes.
func (p *Producer) Ping(ctx context.Context) error {
	if p.client == nil {
		return fmt.Errorf("producer not connected")
	}
	return p.client.Ping(ctx)
}

// Close closes the producer client.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
