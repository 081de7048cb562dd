package lists

import (
	"context"

	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	"github.com/angelmondragon/grocerybid-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists grocery lists and their line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, list *models.GroceryList) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.GroceryList, error)
	AddItem(ctx context.Context, item *models.GroceryListItem) error
	CloseIfOpen(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context, query ListQuery) ([]models.GroceryList, error)
}

// ListQuery narrows a list scan. Zero values mean no filter.
type ListQuery struct {
	BuyerID *uuid.UUID
	Status  *enums.ListStatus
	Limit   int
	Cursor  *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a lists repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, list *models.GroceryList) error {
	return r.db.WithContext(ctx).Create(list).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.GroceryList, error) {
	var list models.GroceryList
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id = ?", id).
		First(&list).Error
	if err != nil {
		return nil, err
	}
	return &list, nil
}

// AddItem appends item after the current last position of its list.
func (r *repository) AddItem(ctx context.Context, item *models.GroceryListItem) error {
	var maxPosition *int
	if err := r.db.WithContext(ctx).
		Model(&models.GroceryListItem{}).
		Where("list_id = ?", item.ListID).
		Select("MAX(position)").
		Scan(&maxPosition).Error; err != nil {
		return err
	}
	item.Position = 0
	if maxPosition != nil {
		item.Position = *maxPosition + 1
	}
	return r.db.WithContext(ctx).Create(item).Error
}

// CloseIfOpen is the only way a list leaves the open state. False means the
// list was already closed or does not exist.
func (r *repository) CloseIfOpen(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.GroceryList{}).
		Where("id = ? AND status = ?", id, enums.ListStatusOpen).
		Update("status", enums.ListStatusClosed)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) List(ctx context.Context, query ListQuery) ([]models.GroceryList, error) {
	q := r.db.WithContext(ctx).Model(&models.GroceryList{})
	if query.BuyerID != nil {
		q = q.Where("buyer_id = ?", *query.BuyerID)
	}
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}

	var rows []models.GroceryList
	err := q.
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Scopes(pagination.Keyset("", query.Cursor, query.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
