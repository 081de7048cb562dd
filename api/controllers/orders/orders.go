package orders

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/grocerybid-backend/api/middleware"
	"github.com/angelmondragon/grocerybid-backend/api/responses"
	"github.com/angelmondragon/grocerybid-backend/api/validators"
	internalorders "github.com/angelmondragon/grocerybid-backend/internal/orders"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/grocerybid-backend/pkg/errors"
	"github.com/angelmondragon/grocerybid-backend/pkg/logger"
	"github.com/angelmondragon/grocerybid-backend/pkg/pagination"
)

// caller is the authenticated user behind an order request.
type caller struct {
	id   uuid.UUID
	role enums.UserRole
}

// action runs one order operation; a nil error renders result with status.
type action func(r *http.Request, who caller) (result any, err error)

// handle resolves the caller, runs fn and renders the outcome. Every order
// endpoint shares the same failure path.
func handle(svc internalorders.Service, logg *logger.Logger, status int, fn action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fail := func(err error) { responses.WriteError(r.Context(), logg, w, err) }
		if svc == nil {
			fail(pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		id, role, err := middleware.Actor(r.Context())
		if err != nil {
			fail(err)
			return
		}
		result, err := fn(r, caller{id: id, role: role})
		if err != nil {
			fail(err)
			return
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

func orderID(r *http.Request) (uuid.UUID, error) {
	return validators.ParseUUIDParam(r, "orderId")
}

// Accept turns a pending quotation into an order and closes its list.
func Accept(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, http.StatusCreated, func(r *http.Request, who caller) (any, error) {
		var body internalorders.AcceptInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.AcceptQuotation(r.Context(), who.id, body)
	})
}

// MarkPaid settles a cash-on-delivery order for its buyer.
func MarkPaid(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, http.StatusOK, func(r *http.Request, who caller) (any, error) {
		id, err := orderID(r)
		if err != nil {
			return nil, err
		}
		return svc.MarkPaid(r.Context(), who.id, who.role, id)
	})
}

// UpdateStatus moves the delivery status of a vendor's order.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, http.StatusOK, func(r *http.Request, who caller) (any, error) {
		id, err := orderID(r)
		if err != nil {
			return nil, err
		}
		var body internalorders.DeliveryInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.UpdateDeliveryStatus(r.Context(), who.id, who.role, id, body)
	})
}

func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, http.StatusOK, func(r *http.Request, who caller) (any, error) {
		id, err := orderID(r)
		if err != nil {
			return nil, err
		}
		return svc.Get(r.Context(), who.id, who.role, id)
	})
}

// List pages orders from the buyer's or the vendor's side, by the caller's role.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, http.StatusOK, func(r *http.Request, who caller) (any, error) {
		params := internalorders.ListParams{Cursor: validators.ParseCursor(r)}
		var err error
		if params.Limit, err = validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit); err != nil {
			return nil, err
		}
		if params.PaymentStatus, err = validators.ParseOptionalEnumQuery(r, "paymentStatus", enums.ParsePaymentStatus); err != nil {
			return nil, err
		}
		if params.DeliveryStatus, err = validators.ParseOptionalEnumQuery(r, "deliveryStatus", enums.ParseDeliveryStatus); err != nil {
			return nil, err
		}
		return svc.List(r.Context(), who.id, who.role, params)
	})
}
