package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
)

// errors stored on rows and dead letters are capped
const maxErrorText = 1024

var errNoTx = errors.New("transaction required")

// Repository owns outbox_events and outbox_dead_letters.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Insert queues a row inside the producer's transaction.
func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Create(&event).Error
}

// Claim locks up to limit unpublished rows with attempts below maxAttempts,
// oldest first. Rows held by another relay are skipped.
func (r *Repository) Claim(ctx context.Context, tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	q := tx.WithContext(ctx).Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	var rows []models.OutboxEvent
	err := q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkPublished stamps every id in one statement.
func (r *Repository) MarkPublished(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, at time.Time) error {
	if tx == nil {
		return errNoTx
	}
	if len(ids) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"published_at": at, "last_error": nil}).Error
}

// RecordFailure bumps the attempt counter and keeps the latest error.
func (r *Repository) RecordFailure(ctx context.Context, tx *gorm.DB, id uuid.UUID, cause error) error {
	if tx == nil {
		return errNoTx
	}
	return tx.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"last_error":    errorText(cause),
		}).Error
}

// DeadLetter copies row into outbox_dead_letters and pins its attempt count at
// ceiling so Claim never returns it again. A row already dead-lettered is left
// as is.
func (r *Repository) DeadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.DeadLetterReason, topic string, cause error, ceiling int, at time.Time) error {
	if tx == nil {
		return errNoTx
	}
	entry := models.OutboxDeadLetter{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		Reason:        reason,
		Detail:        errorText(cause),
		Attempts:      row.AttemptCount,
		FailedAt:      at,
	}
	if topic != "" {
		entry.Topic = &topic
	}
	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&entry).Error; err != nil {
		return err
	}
	return tx.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{"attempt_count": ceiling, "last_error": errorText(cause)}).Error
}

// DeletePublishedBefore removes up to limit published rows older than cutoff,
// oldest first. A limit of zero or less removes every match.
func (r *Repository) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	conn := tx
	if conn == nil {
		conn = r.db
	}
	conn = conn.WithContext(ctx)
	expired := conn.Model(&models.OutboxEvent{}).
		Select("id").
		Where("published_at IS NOT NULL AND published_at < ?", cutoff).
		Order("published_at")
	if limit > 0 {
		expired = expired.Limit(limit)
	}
	res := conn.Where("id IN (?)", expired).Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func errorText(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > maxErrorText {
		msg = msg[:maxErrorText]
	}
	return &msg
}
