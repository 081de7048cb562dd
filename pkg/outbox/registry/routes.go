package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/grocerybid-backend/pkg/config"
	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox/payloads"
)

// SupportedEnvelopeVersion is the newest envelope layout the relay can forward.
const SupportedEnvelopeVersion = 1

// Stream is the topic family an event belongs to. Bidding and fulfilment go to
// the marketplace stream; anything that moved a balance goes to the wallet stream.
type Stream string

const (
	StreamMarketplace Stream = "marketplace"
	StreamWallet      Stream = "wallet"
)

type decoder func(json.RawMessage) (any, uuid.UUID, error)

type route struct {
	aggregate enums.OutboxAggregateType
	stream    Stream
	decode    decoder
}

// subject picks the entity consumers partition on.
func subject[T any](pick func(*T) uuid.UUID) decoder {
	return func(raw json.RawMessage) (any, uuid.UUID, error) {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, uuid.Nil, err
		}
		return &v, pick(&v), nil
	}
}

var routes = map[enums.OutboxEventType]route{
	enums.EventListCreated: {
		aggregate: enums.AggregateGroceryList,
		stream:    StreamMarketplace,
		decode:    subject(func(e *payloads.ListCreatedEvent) uuid.UUID { return e.ListID }),
	},
	enums.EventQuotationSubmitted: {
		aggregate: enums.AggregateQuotation,
		stream:    StreamMarketplace,
		decode:    subject(func(e *payloads.QuotationSubmittedEvent) uuid.UUID { return e.ListID }),
	},
	enums.EventOrderCreated: {
		aggregate: enums.AggregateOrder,
		stream:    StreamMarketplace,
		decode:    subject(func(e *payloads.OrderCreatedEvent) uuid.UUID { return e.ListID }),
	},
	enums.EventDeliveryStatusMoved: {
		aggregate: enums.AggregateOrder,
		stream:    StreamMarketplace,
		decode:    subject(func(e *payloads.DeliveryStatusChangedEvent) uuid.UUID { return e.OrderID }),
	},
	enums.EventOrderPaid: {
		aggregate: enums.AggregateOrder,
		stream:    StreamWallet,
		decode:    subject(func(e *payloads.OrderPaidEvent) uuid.UUID { return e.OrderID }),
	},
	enums.EventWalletRecharged: {
		aggregate: enums.AggregateTransaction,
		stream:    StreamWallet,
		decode:    subject(func(e *payloads.WalletRechargedEvent) uuid.UUID { return e.UserID }),
	},
	enums.EventReferralRegistered: {
		aggregate: enums.AggregateUser,
		stream:    StreamWallet,
		decode:    subject(func(e *payloads.ReferralRegisteredEvent) uuid.UUID { return e.ReferrerID }),
	},
}

// PermanentError marks a row that can never be published as stored.
type PermanentError struct {
	Err error
}

func (e PermanentError) Error() string {
	if e.Err == nil {
		return "permanent publish failure"
	}
	return e.Err.Error()
}

func (e PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the relay dead-letters instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var perm PermanentError
	return errors.As(err, &perm)
}

// Resolved is a decoded outbox row ready to publish.
type Resolved struct {
	EventType enums.OutboxEventType
	Stream    Stream
	Topic     string
	Subject   uuid.UUID
	Envelope  outbox.PayloadEnvelope
	Payload   any
}

// Registry resolves outbox rows to their destination topic.
type Registry struct {
	topics map[Stream]string
}

// New binds each stream to its configured topic.
func New(cfg config.PubSubConfig) (*Registry, error) {
	marketplace := strings.TrimSpace(cfg.DomainTopic)
	wallet := strings.TrimSpace(cfg.WalletTopic)
	if marketplace == "" {
		return nil, errors.New("domain topic is required")
	}
	if wallet == "" {
		return nil, errors.New("wallet topic is required")
	}
	return &Registry{topics: map[Stream]string{
		StreamMarketplace: marketplace,
		StreamWallet:      wallet,
	}}, nil
}

// Topics lists the distinct topics in use.
func (r *Registry) Topics() []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(r.topics))
	for _, topic := range r.topics {
		if !seen[topic] {
			seen[topic] = true
			out = append(out, topic)
		}
	}
	sort.Strings(out)
	return out
}

// Resolve checks the row against its route and decodes the typed payload.
func (r *Registry) Resolve(row models.OutboxEvent) (*Resolved, error) {
	rt, ok := routes[row.EventType]
	if !ok {
		return nil, Permanent(fmt.Errorf("no route for event type %q", row.EventType))
	}
	if rt.aggregate != row.AggregateType {
		return nil, Permanent(fmt.Errorf("%s rows belong to %s aggregates, got %s", row.EventType, rt.aggregate, row.AggregateType))
	}
	if row.AggregateID == uuid.Nil {
		return nil, Permanent(errors.New("aggregate id is empty"))
	}

	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &env); err != nil {
		return nil, Permanent(fmt.Errorf("envelope: %w", err))
	}
	if env.Version < 1 || env.Version > SupportedEnvelopeVersion {
		return nil, Permanent(fmt.Errorf("envelope version %d not supported", env.Version))
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, Permanent(fmt.Errorf("%s envelope has no data", row.EventType))
	}

	payload, subjectID, err := rt.decode(data)
	if err != nil {
		return nil, Permanent(fmt.Errorf("%s data: %w", row.EventType, err))
	}
	if subjectID == uuid.Nil {
		return nil, Permanent(fmt.Errorf("%s data has no subject id", row.EventType))
	}

	return &Resolved{
		EventType: row.EventType,
		Stream:    rt.stream,
		Topic:     r.topics[rt.stream],
		Subject:   subjectID,
		Envelope:  env,
		Payload:   payload,
	}, nil
}
