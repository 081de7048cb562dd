package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/grocerybid-backend/pkg/config"
	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	"github.com/angelmondragon/grocerybid-backend/pkg/logger"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultIdle        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	ackTimeout         = 15 * time.Second
	maxErrorWait       = 10 * time.Second
	idleJitter         = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pinger interface {
	Ping(context.Context) error
}

type eventStore interface {
	Claim(ctx context.Context, tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, at time.Time) error
	RecordFailure(ctx context.Context, tx *gorm.DB, id uuid.UUID, cause error) error
	DeadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.DeadLetterReason, topic string, cause error, ceiling int, at time.Time) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.Resolved, error)
}

// ack settles once the broker confirms or rejects a message.
type ack interface {
	Get(ctx context.Context) (string, error)
}

// topicSink publishes to a single topic. Send returns without waiting for the
// broker so a batch goes out together.
type topicSink interface {
	Send(ctx context.Context, msg *gcppubsub.Message) ack
	Flush()
}

type sinkFactory func(topic string) (topicSink, error)

type RelayParams struct {
	Outbox config.OutboxConfig
	Logger *logger.Logger
	DB     txRunner
	Broker pinger
	Events eventStore
	Routes resolver
	Sinks  sinkFactory
}

// Relay moves committed outbox rows onto Pub/Sub. Delivery is at least once;
// consumers dedupe on the event_id attribute.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	broker      pinger
	events      eventStore
	routes      resolver
	openSink    sinkFactory
	sinks       map[string]topicSink
	batchSize   int
	maxAttempts int
	idle        time.Duration
	now         func() time.Time
}

type drainStats struct {
	claimed      int
	published    int
	retried      int
	deadLettered int
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Broker == nil:
		return nil, errors.New("pubsub client is required")
	case p.Events == nil:
		return nil, errors.New("outbox repository is required")
	case p.Routes == nil:
		return nil, errors.New("event registry is required")
	case p.Sinks == nil:
		return nil, errors.New("sink factory is required")
	}

	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		broker:      p.Broker,
		events:      p.Events,
		routes:      p.Routes,
		openSink:    p.Sinks,
		sinks:       map[string]topicSink{},
		batchSize:   p.Outbox.BatchSize,
		maxAttempts: p.Outbox.MaxAttempts,
		idle:        time.Duration(p.Outbox.PollIntervalMS) * time.Millisecond,
		now:         time.Now,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.idle <= 0 {
		r.idle = defaultIdle
	}
	return r, nil
}

// Run drains until ctx is done. A full batch is followed immediately by the
// next one; errors back off up to maxErrorWait.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := r.broker.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping: %w", err)
	}
	defer r.flush()

	wait := r.idle
	for {
		stats, err := r.drain(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			r.logg.Error(ctx, "outbox drain failed", err)
			wait = min(wait*2, maxErrorWait)
		case stats.claimed >= r.batchSize:
			wait = r.idle
			continue
		default:
			wait = r.idle
		}
		if err := pause(ctx, wait+rand.N(idleJitter)); err != nil {
			return err
		}
	}
}

type inflight struct {
	row      models.OutboxEvent
	resolved *registry.Resolved
	ack      ack
}

func (r *Relay) drain(ctx context.Context) (drainStats, error) {
	var stats drainStats
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		stats = drainStats{}
		rows, err := r.events.Claim(ctx, tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		stats.claimed = len(rows)

		sent := make([]inflight, 0, len(rows))
		for _, row := range rows {
			resolved, err := r.routes.Resolve(row)
			if err != nil {
				if err := r.bury(ctx, tx, row, enums.DeadLetterUnroutable, "", err); err != nil {
					return err
				}
				stats.deadLettered++
				continue
			}
			sink, err := r.sinkFor(resolved.Topic)
			if err != nil {
				if err := r.bury(ctx, tx, row, enums.DeadLetterUnroutable, resolved.Topic, err); err != nil {
					return err
				}
				stats.deadLettered++
				continue
			}
			sent = append(sent, inflight{row: row, resolved: resolved, ack: sink.Send(ctx, message(row, resolved))})
		}

		published := make([]uuid.UUID, 0, len(sent))
		for _, msg := range sent {
			err := awaitAck(ctx, msg.ack)
			if err == nil {
				published = append(published, msg.row.ID)
				continue
			}
			topic := msg.resolved.Topic
			if registry.IsPermanent(err) {
				if err := r.bury(ctx, tx, msg.row, enums.DeadLetterUnroutable, topic, err); err != nil {
					return err
				}
				stats.deadLettered++
				continue
			}
			if msg.row.AttemptCount+1 >= r.maxAttempts {
				cause := fmt.Errorf("gave up after %d attempts: %w", msg.row.AttemptCount+1, err)
				if err := r.bury(ctx, tx, msg.row, enums.DeadLetterExhausted, topic, cause); err != nil {
					return err
				}
				stats.deadLettered++
				continue
			}
			r.logg.Warn(r.logg.WithFields(ctx, rowFields(msg.row, topic, err)), "outbox publish will be retried")
			if err := r.events.RecordFailure(ctx, tx, msg.row.ID, err); err != nil {
				return fmt.Errorf("record failure %s: %w", msg.row.ID, err)
			}
			stats.retried++
		}

		if err := r.events.MarkPublished(ctx, tx, published, r.now().UTC()); err != nil {
			return fmt.Errorf("mark published: %w", err)
		}
		stats.published = len(published)
		return nil
	})
	if err == nil && stats.claimed > 0 {
		r.logg.Info(r.logg.WithFields(ctx, map[string]any{
			"claimed":       stats.claimed,
			"published":     stats.published,
			"retried":       stats.retried,
			"dead_lettered": stats.deadLettered,
		}), "outbox batch drained")
	}
	return stats, err
}

func (r *Relay) bury(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.DeadLetterReason, topic string, cause error) error {
	fields := rowFields(row, topic, cause)
	fields["reason"] = reason
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox event dead-lettered")
	if err := r.events.DeadLetter(ctx, tx, row, reason, topic, cause, r.maxAttempts, r.now().UTC()); err != nil {
		return fmt.Errorf("dead-letter %s: %w", row.ID, err)
	}
	return nil
}

func (r *Relay) sinkFor(topic string) (topicSink, error) {
	if sink, ok := r.sinks[topic]; ok {
		return sink, nil
	}
	sink, err := r.openSink(topic)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, fmt.Errorf("no publisher for topic %s", topic)
	}
	r.sinks[topic] = sink
	return sink, nil
}

func (r *Relay) flush() {
	for topic, sink := range r.sinks {
		sink.Flush()
		delete(r.sinks, topic)
	}
}

func message(row models.OutboxEvent, res *registry.Resolved) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: row.Payload,
		Attributes: map[string]string{
			"event_id":         res.Envelope.EventID,
			"event_type":       string(res.EventType),
			"stream":           string(res.Stream),
			"subject_id":       res.Subject.String(),
			"aggregate_type":   string(row.AggregateType),
			"aggregate_id":     row.AggregateID.String(),
			"occurred_at":      res.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
			"envelope_version": strconv.Itoa(res.Envelope.Version),
		},
	}
}

func awaitAck(ctx context.Context, a ack) error {
	if a == nil {
		return registry.Permanent(errors.New("publisher returned no result"))
	}
	ackCtx, cancel := context.WithTimeout(ctx, ackTimeout)
	defer cancel()
	_, err := a.Get(ackCtx)
	return err
}

func rowFields(row models.OutboxEvent, topic string, err error) map[string]any {
	fields := map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	return fields
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// pubsubSink adapts a Pub/Sub publisher. *PublishResult already satisfies ack.
type pubsubSink struct {
	p *gcppubsub.Publisher
}

func (s pubsubSink) Send(ctx context.Context, msg *gcppubsub.Message) ack {
	return s.p.Publish(ctx, msg)
}

func (s pubsubSink) Flush() {
	s.p.Stop()
}
