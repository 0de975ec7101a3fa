package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-career-assist/internal/domain"
	obsctx "github.com/fairyhunter13/ai-career-assist/internal/observability"
)

// JobProcessor drives one job from dequeue to a terminal state. A nil return
// means the job is settled and the message may be acknowledged. ErrNotFound
// marks the message as poison. Any other error leaves the offset unmarked so
// the message is redelivered.
type JobProcessor interface {
	ProcessJob(ctx domain.Context, payload domain.JobTaskPayload) error
}

// Consumer is a consumer-group worker over the jobs topic. Offsets are
// committed through marks, so an unmarked record survives a crash and is
// delivered again.
type Consumer struct {
	client    *kgo.Client
	processor JobProcessor

	groupID string
	topic   string

	minWorkers    int
	maxWorkers    int
	activeWorkers int
	workerMu      sync.RWMutex
	jobQueue      chan *kgo.Record

	adaptivePoller *AdaptivePoller
	shutdown       chan struct{}
}

// NewConsumer constructs a Consumer for the default jobs topic.
func NewConsumer(brokers []string, groupID string, processor JobProcessor, minWorkers, maxWorkers int) (*Consumer, error) {
	return NewConsumerWithTopic(brokers, groupID, processor, minWorkers, maxWorkers, TopicJobs)
}

// NewConsumerWithTopic constructs a Consumer for a specific topic. Tests use
// unique topics for isolation.
func NewConsumerWithTopic(brokers []string, groupID string, processor JobProcessor, minWorkers, maxWorkers int, topic string) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("missing required group ID")
	}
	if minWorkers < 1 {
		minWorkers = 1
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}

	ctx := context.Background()
	tempClient, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("temp client: %w", err)
	}
	defer tempClient.Close()
	if err := createTopicIfNotExists(ctx, tempClient, topic, 8, 1); err != nil {
		slog.Warn("topic creation failed, it may already exist",
			slog.String("topic", topic),
			slog.Any("error", err))
	}

	kotelTracer := kotel.NewTracer(
		kotel.TracerProvider(otel.GetTracerProvider()),
	)
	kotelService := kotel.NewKotel(
		kotel.WithTracer(kotelTracer),
	)

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.WithHooks(kotelService.Hooks()...),

		kgo.DialTimeout(10 * time.Second),
		kgo.SessionTimeout(30 * time.Second),
		kgo.HeartbeatInterval(3 * time.Second),
		kgo.RebalanceTimeout(10 * time.Second),

		kgo.FetchMaxBytes(10 * 1024 * 1024),
		kgo.FetchMaxWait(5 * time.Second),
		kgo.FetchMinBytes(512),

		// Only explicitly marked records are committed. Processing marks a
		// record after the job settles, so a crash mid-job redelivers it.
		kgo.AutoCommitMarks(),
		kgo.AutoCommitInterval(1 * time.Second),
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("redpanda consumer client: %w", err)
	}

	slog.Info("redpanda consumer created",
		slog.String("group_id", groupID),
		slog.String("topic", topic),
		slog.Int("min_workers", minWorkers),
		slog.Int("max_workers", maxWorkers))

	return &Consumer{
		client:         client,
		processor:      processor,
		groupID:        groupID,
		topic:          topic,
		minWorkers:     minWorkers,
		maxWorkers:     maxWorkers,
		activeWorkers:  minWorkers,
		jobQueue:       make(chan *kgo.Record, maxWorkers*2),
		shutdown:       make(chan struct{}),
		adaptivePoller: NewAdaptivePoller(100 * time.Millisecond),
	}, nil
}

// Start runs the fetch loop and worker pool until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	slog.Info("starting redpanda consumer",
		slog.String("group_id", c.groupID),
		slog.String("topic", c.topic))

	for i := 0; i < c.minWorkers; i++ {
		go c.worker(ctx, i)
	}
	go c.messageFetcher(ctx)
	go c.workerPoolManager(ctx)

	<-ctx.Done()
	slog.Info("redpanda consumer shutting down")
	close(c.shutdown)
	return ctx.Err()
}

// workerPoolManager periodically rescales the worker pool against queue depth.
func (c *Consumer) workerPoolManager(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.scaleWorkers(ctx)
		}
	}
}

func (c *Consumer) scaleWorkers(ctx context.Context) {
	queueLen := len(c.jobQueue)
	active := c.getActiveWorkers()

	if queueLen > 0 && active < c.maxWorkers {
		toAdd := minInt(queueLen, c.maxWorkers-active)
		for i := 0; i < toAdd; i++ {
			if c.getActiveWorkers() < c.maxWorkers {
				c.incrementActiveWorkers()
				go c.worker(ctx, c.getActiveWorkers())
			}
		}
		slog.Info("scaled up workers",
			slog.Int("added", toAdd),
			slog.Int("queue_length", queueLen),
			slog.Int("total_active", c.getActiveWorkers()))
	}

	if active > c.minWorkers && (queueLen == 0 || active > queueLen) {
		toRemove := active - c.minWorkers
		if queueLen > 0 && active > queueLen {
			toRemove = minInt(toRemove, active-queueLen)
		}
		for i := 0; i < toRemove; i++ {
			if c.getActiveWorkers() > c.minWorkers {
				// Workers observe the reduced count and exit on their own.
				c.decrementActiveWorkers()
			}
		}
	}
}

// messageFetcher polls the broker and feeds records to the worker pool.
func (c *Consumer) messageFetcher(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		default:
		}

		nextInterval := c.adaptivePoller.GetNextInterval()
		fetches := c.client.PollFetches(ctx)

		if errs := fetches.Errors(); len(errs) > 0 {
			fatal := false
			for _, ferr := range errs {
				slog.Error("fetch error",
					slog.String("topic", ferr.Topic),
					slog.Int("partition", int(ferr.Partition)),
					slog.Any("error", ferr.Err))
				if ferr.Err != nil && errors.Is(ferr.Err, context.Canceled) {
					fatal = true
				}
			}
			if fatal {
				return
			}
			c.adaptivePoller.RecordFailure()
			time.Sleep(nextInterval)
			continue
		}

		if fetches.NumRecords() == 0 {
			c.adaptivePoller.RecordSuccess()
			time.Sleep(nextInterval)
			continue
		}
		c.adaptivePoller.RecordSuccess()

		fetches.EachRecord(func(record *kgo.Record) {
			select {
			case c.jobQueue <- record:
			default:
				// Queue full; process inline rather than dropping the record.
				slog.Warn("job queue full, processing synchronously",
					slog.String("job_id", string(record.Key)),
					slog.Int64("offset", record.Offset))
				go func(rec *kgo.Record) { _ = c.processRecord(ctx, rec) }(record)
			}
		})
	}
}

// worker drains the job queue.
func (c *Consumer) worker(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case record := <-c.jobQueue:
			if record == nil {
				return
			}
			if err := c.processRecord(ctx, record); err != nil {
				slog.Error("record processing failed",
					slog.Int("worker_id", workerID),
					slog.Int64("offset", record.Offset),
					slog.Any("error", err))
			}
			active := c.getActiveWorkers()
			queueLen := len(c.jobQueue)
			if active > c.minWorkers && (queueLen == 0 || active > queueLen) {
				return
			}
		}
	}
}

func (c *Consumer) getActiveWorkers() int {
	c.workerMu.RLock()
	defer c.workerMu.RUnlock()
	return c.activeWorkers
}

func (c *Consumer) incrementActiveWorkers() {
	c.workerMu.Lock()
	defer c.workerMu.Unlock()
	c.activeWorkers++
}

func (c *Consumer) decrementActiveWorkers() {
	c.workerMu.Lock()
	defer c.workerMu.Unlock()
	if c.activeWorkers > 0 {
		c.activeWorkers--
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// processRecord decodes one record and drives the job through the
// orchestrator. Offsets are marked only when the job is settled or the
// message can never be processed; any other failure leaves the record for
// redelivery.
func (c *Consumer) processRecord(ctx context.Context, record *kgo.Record) error {
	tracer := otel.Tracer("queue.consumer")
	ctx, span := tracer.Start(ctx, "ProcessJobRecord")
	defer span.End()

	var payload domain.JobTaskPayload
	if err := json.Unmarshal(record.Value, &payload); err != nil {
		// Poison message: it can never succeed, so acknowledge and move on.
		slog.Error("unparseable job record, acknowledging as poison",
			slog.Int64("offset", record.Offset),
			slog.Int("partition", int(record.Partition)),
			slog.Any("error", err))
		c.client.MarkCommitRecords(record)
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	ctx = obsctx.ContextWithJobID(ctx, payload.JobID)
	lg := obsctx.LoggerFromContext(ctx).With(
		slog.String("job_id", payload.JobID),
		slog.String("kind", string(payload.Kind)))
	ctx = obsctx.ContextWithLogger(ctx, lg)

	lg.Info("processing job task",
		slog.Int64("offset", record.Offset),
		slog.Int("partition", int(record.Partition)))

	err := c.processor.ProcessJob(ctx, payload)
	switch {
	case err == nil:
		c.client.MarkCommitRecords(record)
		lg.Info("job task settled")
		return nil
	case errors.Is(err, domain.ErrNotFound):
		// The job record does not exist; redelivery cannot fix that.
		c.client.MarkCommitRecords(record)
		lg.Warn("job record missing, acknowledging as poison", slog.Any("error", err))
		return nil
	default:
		lg.Error("job task not settled, leaving for redelivery", slog.Any("error", err))
		return err
	}
}

// Close closes the consumer client and internal channels.
func (c *Consumer) Close() error {
	if c.client != nil {
		c.client.Close()
	}
	select {
	case <-c.shutdown:
	default:
		close(c.shutdown)
	}
	return nil
}

// IsHealthy reports whether recent polling has been succeeding.
func (c *Consumer) IsHealthy() bool { return c.adaptivePoller.IsHealthy() }
