package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"blinkgate.backend/internal/domain/entities"
	domainerrors "blinkgate.backend/internal/domain/errors"
	domainRepos "blinkgate.backend/internal/domain/repositories"
)

// RunRepositoryImpl implements RunRepository using GORM.
type RunRepositoryImpl struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *gorm.DB) domainRepos.RunRepository {
	return &RunRepositoryImpl{db: db}
}

func (r *RunRepositoryImpl) CreateRun(ctx context.Context, offerID string, reference string, metadata map[string]interface{}) (*entities.Run, error) {
	offerUUID, err := uuid.Parse(offerID)
	if err != nil {
		return nil, domainerrors.ErrInvalidInput
	}

	run := &entities.Run{
		ID:        uuid.New(),
		OfferID:   offerUUID,
		Reference: reference,
		Status:    entities.RunStatusPending,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(entities.RunExpiry),
		Metadata:  metadata,
	}

	if err := GetDB(ctx, r.db).WithContext(ctx).Create(run).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domainerrors.ErrDuplicateReference
		}
		return nil, err
	}
	return run, nil
}

// GetByReference implements the read-failed-on-expiry invariant: a pending
// row past expires_at is atomically marked failed before being returned.
func (r *RunRepositoryImpl) GetByReference(ctx context.Context, reference string) (*entities.Run, error) {
	var run entities.Run
	db := GetDB(ctx, r.db).WithContext(ctx)
	if err := db.First(&run, "reference = ?", reference).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}

	if run.Expired(time.Now()) {
		if err := db.Model(&entities.Run{}).Where("id = ? AND status = ?", run.ID, entities.RunStatusPending).
			Update("status", entities.RunStatusFailed).Error; err != nil {
			return nil, err
		}
		run.Status = entities.RunStatusFailed
	}

	return &run, nil
}

func (r *RunRepositoryImpl) GetBySignature(ctx context.Context, signature string) (*entities.Run, error) {
	var run entities.Run
	if err := GetDB(ctx, r.db).WithContext(ctx).First(&run, "signature = ?", signature).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// UpdateRunPaymentAtomic transitions pending -> paid under a row-level lock
// (clause.Locking via the context-keyed UnitOfWork.WithLock). Callers must
// invoke this inside a UnitOfWork.Do transaction so the lock from the
// initial SELECT ... FOR UPDATE is held until the final conditional UPDATE
// commits. Fails if status != pending (checked both by the initial read and
// re-asserted in the UPDATE's WHERE clause, closing the race if the lock is
// ever bypassed), or if signature collides with a different reference.
func (r *RunRepositoryImpl) UpdateRunPaymentAtomic(ctx context.Context, reference, signature, payer string) (*entities.Run, error) {
	lockedCtx := context.WithValue(ctx, lockKey, true)

	var run entities.Run
	db := GetDB(lockedCtx, r.db).WithContext(ctx)
	if err := db.First(&run, "reference = ?", reference).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}

	if run.Status != entities.RunStatusPending {
		return &run, domainerrors.ErrInvalidInput
	}

	var collision entities.Run
	collisionErr := db.First(&collision, "signature = ? AND reference <> ?", signature, reference).Error
	if collisionErr == nil {
		return nil, domainerrors.ErrDuplicateSignature
	}
	if !errors.Is(collisionErr, gorm.ErrRecordNotFound) {
		return nil, collisionErr
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":   entities.RunStatusPaid,
		"payer":    payer,
		"paid_at":  now,
	}
	if signature != "" {
		updates["signature"] = signature
	}

	tx := db.Model(&entities.Run{}).
		Where("id = ? AND status = ?", run.ID, entities.RunStatusPending).
		Updates(updates)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrDuplicatedKey) {
			return nil, domainerrors.ErrDuplicateSignature
		}
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		return nil, domainerrors.ErrInvalidInput
	}

	run.Status = entities.RunStatusPaid
	run.Payer.SetValid(payer)
	if signature != "" {
		run.Signature.SetValid(signature)
	}
	run.PaidAt = &now
	return &run, nil
}

// MarkExecuted transitions paid -> executed, merging responseData into
// metadata without clobbering input parameters already present there.
func (r *RunRepositoryImpl) MarkExecuted(ctx context.Context, reference string, durationMs int64, responseData map[string]interface{}) (*entities.Run, error) {
	var run entities.Run
	db := GetDB(ctx, r.db).WithContext(ctx)
	if err := db.First(&run, "reference = ?", reference).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}

	merged := map[string]interface{}{}
	for k, v := range run.Metadata {
		merged[k] = v
	}
	for k, v := range responseData {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	merged["response"] = responseData

	now := time.Now()
	if err := db.Model(&entities.Run{}).Where("id = ?", run.ID).Updates(map[string]interface{}{
		"status":      entities.RunStatusExecuted,
		"executed_at": now,
		"duration_ms": durationMs,
		"metadata":    merged,
	}).Error; err != nil {
		return nil, err
	}

	run.Status = entities.RunStatusExecuted
	run.ExecutedAt = &now
	run.DurationMs = durationMs
	run.Metadata = merged
	return &run, nil
}

func (r *RunRepositoryImpl) MarkFailed(ctx context.Context, reference string) error {
	tx := GetDB(ctx, r.db).WithContext(ctx).Model(&entities.Run{}).
		Where("reference = ?", reference).
		Update("status", entities.RunStatusFailed)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (r *RunRepositoryImpl) GetExpiredPending(ctx context.Context, limit int) ([]*entities.Run, error) {
	var runs []*entities.Run
	err := GetDB(ctx, r.db).WithContext(ctx).
		Where("status = ? AND expires_at < ?", entities.RunStatusPending, time.Now()).
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

func (r *RunRepositoryImpl) ExpireRun(ctx context.Context, id string) error {
	return GetDB(ctx, r.db).WithContext(ctx).Model(&entities.Run{}).
		Where("id = ? AND status = ?", id, entities.RunStatusPending).
		Update("status", entities.RunStatusFailed).Error
}
