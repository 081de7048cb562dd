package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/grocerybid-backend/pkg/config"
	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	"github.com/angelmondragon/grocerybid-backend/pkg/logger"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox/registry"
)

const (
	marketplaceTopic = "grocery-marketplace"
	walletTopic      = "grocery-wallet"
)

type deadLetter struct {
	id     uuid.UUID
	reason enums.DeadLetterReason
	topic  string
}

type memoryStore struct {
	rows      []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	dead      []deadLetter
}

func (m *memoryStore) Claim(ctx context.Context, tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if len(m.rows) > limit {
		return m.rows[:limit], nil
	}
	return m.rows, nil
}

func (m *memoryStore) MarkPublished(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, at time.Time) error {
	m.published = append(m.published, ids...)
	return nil
}

func (m *memoryStore) RecordFailure(ctx context.Context, tx *gorm.DB, id uuid.UUID, cause error) error {
	m.failed = append(m.failed, id)
	return nil
}

func (m *memoryStore) DeadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.DeadLetterReason, topic string, cause error, ceiling int, at time.Time) error {
	m.dead = append(m.dead, deadLetter{id: row.ID, reason: reason, topic: topic})
	return nil
}

type inlineTx struct{}

func (inlineTx) Ping(context.Context) error { return nil }

func (inlineTx) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type okBroker struct{}

func (okBroker) Ping(context.Context) error { return nil }

type settledAck struct {
	err error
}

func (a settledAck) Get(context.Context) (string, error) {
	return "server-id", a.err
}

type recordingSink struct {
	topic   string
	sent    []*gcppubsub.Message
	fail    map[string]error
	nilAck  bool
	flushed bool
}

func (s *recordingSink) Send(_ context.Context, msg *gcppubsub.Message) ack {
	s.sent = append(s.sent, msg)
	if s.nilAck {
		return nil
	}
	return settledAck{err: s.fail[msg.Attributes["event_type"]]}
}

func (s *recordingSink) Flush() { s.flushed = true }

type sinkBank struct {
	sinks  map[string]*recordingSink
	opened map[string]int
	refuse map[string]bool
}

func newSinkBank() *sinkBank {
	return &sinkBank{sinks: map[string]*recordingSink{}, opened: map[string]int{}, refuse: map[string]bool{}}
}

func (b *sinkBank) open(topic string) (topicSink, error) {
	b.opened[topic]++
	if b.refuse[topic] {
		return nil, errors.New("topic not provisioned")
	}
	sink, ok := b.sinks[topic]
	if !ok {
		sink = &recordingSink{topic: topic, fail: map[string]error{}}
		b.sinks[topic] = sink
	}
	return sink, nil
}

func newTestRelay(t *testing.T, store *memoryStore, bank *sinkBank, maxAttempts int) *Relay {
	t.Helper()
	routes, err := registry.New(config.PubSubConfig{DomainTopic: marketplaceTopic, WalletTopic: walletTopic})
	require.NoError(t, err)
	relay, err := NewRelay(RelayParams{
		Outbox: config.OutboxConfig{BatchSize: 10, PollIntervalMS: 5, MaxAttempts: maxAttempts},
		Logger: logger.New(logger.Options{ServiceName: "outbox-relay-test", Output: io.Discard}),
		DB:     inlineTx{},
		Broker: okBroker{},
		Events: store,
		Routes: routes,
		Sinks:  bank.open,
	})
	require.NoError(t, err)
	return relay
}

func outboxRow(t *testing.T, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, data any) models.OutboxEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	env, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC),
		Data:       raw,
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   uuid.New(),
		Payload:       env,
	}
}

func listCreated(t *testing.T, listID uuid.UUID) models.OutboxEvent {
	return outboxRow(t, enums.EventListCreated, enums.AggregateGroceryList, payloads.ListCreatedEvent{ListID: listID, BuyerID: uuid.New(), Title: "Weekly", ItemCount: 3})
}

func walletRecharged(t *testing.T, userID uuid.UUID) models.OutboxEvent {
	return outboxRow(t, enums.EventWalletRecharged, enums.AggregateTransaction, payloads.WalletRechargedEvent{TransactionID: uuid.New(), UserID: userID, Amount: decimal.NewFromInt(500)})
}

func TestDrainRoutesEachEventToItsStream(t *testing.T) {
	listID, userID := uuid.New(), uuid.New()
	store := &memoryStore{rows: []models.OutboxEvent{listCreated(t, listID), walletRecharged(t, userID)}}
	bank := newSinkBank()
	relay := newTestRelay(t, store, bank, 5)

	stats, err := relay.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, drainStats{claimed: 2, published: 2}, stats)
	assert.ElementsMatch(t, []uuid.UUID{store.rows[0].ID, store.rows[1].ID}, store.published)

	require.Len(t, bank.sinks[marketplaceTopic].sent, 1)
	market := bank.sinks[marketplaceTopic].sent[0]
	assert.Equal(t, "list_created", market.Attributes["event_type"])
	assert.Equal(t, "marketplace", market.Attributes["stream"])
	assert.Equal(t, listID.String(), market.Attributes["subject_id"])
	assert.Equal(t, "1", market.Attributes["envelope_version"])
	assert.JSONEq(t, string(store.rows[0].Payload), string(market.Data))

	require.Len(t, bank.sinks[walletTopic].sent, 1)
	wallet := bank.sinks[walletTopic].sent[0]
	assert.Equal(t, "wallet", wallet.Attributes["stream"])
	assert.Equal(t, userID.String(), wallet.Attributes["subject_id"])
}

func TestDrainRetriesTransientFailureWithoutBlockingTheBatch(t *testing.T) {
	store := &memoryStore{rows: []models.OutboxEvent{walletRecharged(t, uuid.New()), listCreated(t, uuid.New())}}
	bank := newSinkBank()
	relay := newTestRelay(t, store, bank, 5)
	_, _ = bank.open(walletTopic)
	bank.sinks[walletTopic].fail["wallet_recharged"] = errors.New("deadline exceeded")

	stats, err := relay.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.retried)
	assert.Equal(t, []uuid.UUID{store.rows[0].ID}, store.failed)
	assert.Equal(t, []uuid.UUID{store.rows[1].ID}, store.published)
	assert.Empty(t, store.dead)
}

func TestDrainDeadLettersUnroutableRowsWithoutSending(t *testing.T) {
	orphan := outboxRow(t, enums.EventOrderPaid, enums.AggregateQuotation, payloads.OrderPaidEvent{OrderID: uuid.New()})
	store := &memoryStore{rows: []models.OutboxEvent{orphan}}
	bank := newSinkBank()
	relay := newTestRelay(t, store, bank, 5)

	stats, err := relay.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.deadLettered)
	require.Len(t, store.dead, 1)
	assert.Equal(t, deadLetter{id: orphan.ID, reason: enums.DeadLetterUnroutable}, store.dead[0])
	assert.Empty(t, bank.opened)
	assert.Empty(t, store.published)
}

func TestDrainDeadLettersOnLastAttempt(t *testing.T) {
	row := walletRecharged(t, uuid.New())
	row.AttemptCount = 2
	store := &memoryStore{rows: []models.OutboxEvent{row}}
	bank := newSinkBank()
	relay := newTestRelay(t, store, bank, 3)
	_, _ = bank.open(walletTopic)
	bank.sinks[walletTopic].fail["wallet_recharged"] = errors.New("unavailable")

	_, err := relay.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, store.dead, 1)
	assert.Equal(t, deadLetter{id: row.ID, reason: enums.DeadLetterExhausted, topic: walletTopic}, store.dead[0])
	assert.Empty(t, store.failed)
}

func TestDrainDeadLettersWhenTopicCannotOpen(t *testing.T) {
	store := &memoryStore{rows: []models.OutboxEvent{listCreated(t, uuid.New())}}
	bank := newSinkBank()
	bank.refuse[marketplaceTopic] = true
	relay := newTestRelay(t, store, bank, 5)

	_, err := relay.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, store.dead, 1)
	assert.Equal(t, enums.DeadLetterUnroutable, store.dead[0].reason)
	assert.Equal(t, marketplaceTopic, store.dead[0].topic)
}

func TestDrainTreatsMissingAckAsPermanent(t *testing.T) {
	store := &memoryStore{rows: []models.OutboxEvent{listCreated(t, uuid.New())}}
	bank := newSinkBank()
	relay := newTestRelay(t, store, bank, 5)
	_, _ = bank.open(marketplaceTopic)
	bank.sinks[marketplaceTopic].nilAck = true

	_, err := relay.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, store.dead, 1)
	assert.Equal(t, enums.DeadLetterUnroutable, store.dead[0].reason)
}

func TestSinksOpenOncePerTopicAndFlushOnStop(t *testing.T) {
	store := &memoryStore{rows: []models.OutboxEvent{listCreated(t, uuid.New()), listCreated(t, uuid.New())}}
	bank := newSinkBank()
	relay := newTestRelay(t, store, bank, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	err := relay.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, 1, bank.opened[marketplaceTopic])
	assert.GreaterOrEqual(t, len(bank.sinks[marketplaceTopic].sent), 2)
	assert.True(t, bank.sinks[marketplaceTopic].flushed)
	assert.Empty(t, relay.sinks)
}

func TestNewRelayValidatesDependencies(t *testing.T) {
	_, err := NewRelay(RelayParams{})
	assert.Error(t, err)

	relay := newTestRelay(t, &memoryStore{}, newSinkBank(), 0)
	assert.Equal(t, defaultMaxAttempts, relay.maxAttempts)
	assert.Equal(t, 10, relay.batchSize)
	assert.Equal(t, 5*time.Millisecond, relay.idle)
}
