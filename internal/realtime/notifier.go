package realtime

import (
	"context"
	"encoding/json"

	"github.com/angelmondragon/grocerybid-backend/internal/lists"
	"github.com/angelmondragon/grocerybid-backend/internal/quotations"
	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/google/uuid"
)

// Publisher delivers an envelope to connected clients, locally or through a relay.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Notifier turns committed domain changes into realtime events.
type Notifier struct {
	publisher Publisher
}

// NewNotifier wraps publisher.
func NewNotifier(publisher Publisher) *Notifier {
	return &Notifier{publisher: publisher}
}

// NewQuotePayload is the data of a new_quote event.
type NewQuotePayload struct {
	Quotation *quotations.QuotationDTO `json:"quotation"`
	ListID    uuid.UUID                `json:"listId"`
}

// NewList broadcasts a freshly created list to every client.
func (n *Notifier) NewList(ctx context.Context, list *models.GroceryList) error {
	return n.emit(ctx, EventNewList, "", lists.FromModel(list))
}

// NewQuote tells the list owner about a new bid.
func (n *Notifier) NewQuote(ctx context.Context, buyerID uuid.UUID, quotation *models.Quotation) error {
	return n.emit(ctx, EventNewQuote, buyerID.String(), NewQuotePayload{
		Quotation: quotations.FromModel(quotation),
		ListID:    quotation.ListID,
	})
}

func (n *Notifier) emit(ctx context.Context, event, room string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return n.publisher.Publish(ctx, Envelope{Event: event, Room: room, Data: raw})
}
