package dao

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"spreadflow/internal/model"
)

type DcaDao struct {
	db *gorm.DB
}

func NewDcaDao(db *gorm.DB) *DcaDao {
	return &DcaDao{db: db}
}

// GetBySymbol 不存在时返回nil而不是错误
func (d *DcaDao) GetBySymbol(ctx context.Context, symbol string) (*model.DCAPosition, error) {
	var pos model.DCAPosition
	err := d.db.WithContext(ctx).Where("symbol = ?", symbol).First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

func (d *DcaDao) Upsert(ctx context.Context, pos *model.DCAPosition) error {
	pos.UpdatedAt = time.Now()
	if pos.ID > 0 {
		return d.db.WithContext(ctx).Save(pos).Error
	}
	existing, err := d.GetBySymbol(ctx, pos.Symbol)
	if err != nil {
		return err
	}
	if existing != nil {
		pos.ID = existing.ID
		pos.CreatedAt = existing.CreatedAt
		return d.db.WithContext(ctx).Save(pos).Error
	}
	pos.CreatedAt = time.Now()
	return d.db.WithContext(ctx).Create(pos).Error
}

// AdvanceOrder 条件更新：只有current_order_index还停留在fromIndex时才推进
// 两个并发的EXECUTE只有一个能命中，另一个拿到false
func (d *DcaDao) AdvanceOrder(ctx context.Context, symbol string, fromIndex int, invested, sizeFactor, entryPrice float64) (bool, error) {
	result := d.db.WithContext(ctx).Model(&model.DCAPosition{}).
		Where("symbol = ?", symbol).
		Where("current_order_index = ?", fromIndex).
		Updates(map[string]interface{}{
			"current_order_index": fromIndex + 1,
			"total_invested":      invested,
			"size_factor":         sizeFactor,
			"last_entry_price":    entryPrice,
			"last_checked_at":     time.Now(),
			"updated_at":          time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListActive 所有开启中的定投仓位，给调度器轮询用
func (d *DcaDao) ListActive(ctx context.Context) ([]model.DCAPosition, error) {
	var positions []model.DCAPosition
	err := d.db.WithContext(ctx).Where("is_active = ?", true).Find(&positions).Error
	return positions, err
}
