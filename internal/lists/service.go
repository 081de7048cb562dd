package lists

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/grocerybid-backend/pkg/errors"
	"github.com/angelmondragon/grocerybid-backend/pkg/logger"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/grocerybid-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Notifier is told about new lists once they are committed.
type Notifier interface {
	NewList(ctx context.Context, list *models.GroceryList) error
}

// Service manages the buyer side of grocery lists.
type Service interface {
	Create(ctx context.Context, buyerID uuid.UUID, input CreateListInput) (*ListDTO, error)
	AddItem(ctx context.Context, buyerID, listID uuid.UUID, input ItemInput) (*ListDTO, error)
	Delete(ctx context.Context, buyerID, listID uuid.UUID) error
	Get(ctx context.Context, userID uuid.UUID, role enums.UserRole, listID uuid.UUID) (*ListDTO, error)
	List(ctx context.Context, userID uuid.UUID, role enums.UserRole, params ListParams) (*ListPage, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	notifier Notifier
	logg     *logger.Logger
}

// NewService wires the lists service. notifier may be nil.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, notifier Notifier, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("lists repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, outbox: outbox, notifier: notifier, logg: logg}, nil
}

// NotFound is the 404 returned for missing or hidden lists.
func NotFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "list not found")
}

// Closed is the 400 returned when a closed list is asked to change.
func Closed() error {
	return pkgerrors.New(pkgerrors.CodeResourceClosed, "list already closed")
}

func (s *service) Create(ctx context.Context, buyerID uuid.UUID, input CreateListInput) (*ListDTO, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer id required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	list := &models.GroceryList{
		BuyerID:     buyerID,
		Title:       title,
		Description: input.Description,
		Status:      enums.ListStatusOpen,
	}
	for i, in := range input.Items {
		item, err := buildItem(in)
		if err != nil {
			return nil, err
		}
		item.Position = i
		list.Items = append(list.Items, *item)
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, list); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create list")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventListCreated,
			AggregateType: enums.AggregateGroceryList,
			AggregateID:   list.ID,
			Actor:         &outbox.ActorRef{UserID: buyerID, Role: string(enums.UserRoleBuyer)},
			Data: payloads.ListCreatedEvent{
				ListID:    list.ID,
				BuyerID:   buyerID,
				Title:     list.Title,
				ItemCount: len(list.Items),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.NewList(ctx, list); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithError(ctx, err), "new_list notification failed")
		}
	}
	return FromModel(list), nil
}

func (s *service) AddItem(ctx context.Context, buyerID, listID uuid.UUID, input ItemInput) (*ListDTO, error) {
	item, err := buildItem(input)
	if err != nil {
		return nil, err
	}
	item.ListID = listID

	var updated *models.GroceryList
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		list, err := s.loadOwned(ctx, repo, buyerID, listID)
		if err != nil {
			return err
		}
		if list.Status != enums.ListStatusOpen {
			return Closed()
		}
		if err := repo.AddItem(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add list item")
		}
		list.Items = append(list.Items, *item)
		updated = list
		return nil
	})
	if err != nil {
		return nil, err
	}
	return FromModel(updated), nil
}

// Delete closes the list. A closed list is never reopened.
func (s *service) Delete(ctx context.Context, buyerID, listID uuid.UUID) error {
	if _, err := s.loadOwned(ctx, s.repo, buyerID, listID); err != nil {
		return err
	}
	closed, err := s.repo.CloseIfOpen(ctx, listID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close list")
	}
	if !closed {
		return Closed()
	}
	return nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID, role enums.UserRole, listID uuid.UUID) (*ListDTO, error) {
	list, err := s.repo.FindByID(ctx, listID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load list")
	}
	if role == enums.UserRoleBuyer && list.BuyerID != userID {
		return nil, NotFound()
	}
	return FromModel(list), nil
}

// List scopes results by role: buyers see their own lists, vendors see open
// lists, admins see everything.
func (s *service) List(ctx context.Context, userID uuid.UUID, role enums.UserRole, params ListParams) (*ListPage, error) {
	query := ListQuery{Status: params.Status, Limit: params.Limit}
	switch role {
	case enums.UserRoleBuyer:
		query.BuyerID = &userID
	case enums.UserRoleVendor:
		open := enums.ListStatusOpen
		query.Status = &open
	case enums.UserRoleAdmin:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted")
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list grocery lists")
	}
	page, next := pagination.Page(rows, params.Limit, func(l models.GroceryList) pagination.Cursor {
		return pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})
	out := make([]ListDTO, 0, len(page))
	for i := range page {
		out = append(out, *FromModel(&page[i]))
	}
	return &ListPage{Lists: out, NextCursor: next}, nil
}

func (s *service) loadOwned(ctx context.Context, repo Repository, buyerID, listID uuid.UUID) (*models.GroceryList, error) {
	list, err := repo.FindByID(ctx, listID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load list")
	}
	if list.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "list belongs to another buyer")
	}
	return list, nil
}

func buildItem(in ItemInput) (*models.GroceryListItem, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item name is required")
	}
	unit := strings.TrimSpace(in.Unit)
	if unit == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item unit is required").
			WithDetails(map[string]any{"item": name})
	}
	if !in.Quantity.Valid || !in.Quantity.Value.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be a positive number").
			WithDetails(map[string]any{"item": name})
	}
	return &models.GroceryListItem{
		ProductID:     in.ProductID,
		Name:          name,
		Quantity:      in.Quantity.Value,
		Unit:          unit,
		Quality:       in.Quality,
		Brand:         in.Brand,
		Specification: in.Specification,
	}, nil
}
