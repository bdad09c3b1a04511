package dao

import (
	"context"
	"time"

	"gorm.io/gorm"

	"spreadflow/internal/model"
)

type SignalDao struct {
	db *gorm.DB
}

func NewSignalDao(db *gorm.DB) *SignalDao {
	return &SignalDao{db: db}
}

func (d *SignalDao) CreateSignalRecord(ctx context.Context, record *model.SignalRecord) error {
	return d.db.WithContext(ctx).Create(record).Error
}

func (d *SignalDao) UpdateSignalRecord(ctx context.Context, record *model.SignalRecord) error {
	record.UpdatedAt = time.Now()
	return d.db.WithContext(ctx).Model(&model.SignalRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"risk_result": record.RiskResult,
			"execution":   record.Execution,
			"status":      record.Status,
			"updated_at":  record.UpdatedAt,
		}).Error
}

// GetRecentSignals 按时间倒序取最近的信号记录
func (d *SignalDao) GetRecentSignals(ctx context.Context, symbol string, limit int) ([]model.SignalRecord, error) {
	var records []model.SignalRecord
	q := d.db.WithContext(ctx).Model(&model.SignalRecord{})
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	err := q.Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}

// CountSignalsSince 统计某币对一段时间内的信号数
func (d *SignalDao) CountSignalsSince(ctx context.Context, symbol string, since time.Time) (int64, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&model.SignalRecord{}).
		Where("symbol = ?", symbol).
		Where("created_at >= ?", since).
		Count(&count).Error
	return count, err
}
