package dao

import (
	"context"
	"time"

	"gorm.io/gorm"

	"spreadflow/internal/model"
)

type TradeDao struct {
	db *gorm.DB
}

func NewTradeDao(db *gorm.DB) *TradeDao {
	return &TradeDao{db: db}
}

// AppendTradeRecord 追加一条成交台账，台账不做更新
func (d *TradeDao) AppendTradeRecord(ctx context.Context, record *model.TradeRecord) error {
	return d.db.WithContext(ctx).Create(record).Error
}

// RealizedPnlSince 某时间点以来的已实现盈亏合计，供当日亏损风控用
func (d *TradeDao) RealizedPnlSince(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := d.db.WithContext(ctx).Model(&model.TradeRecord{}).
		Where("created_at >= ?", since).
		Select("COALESCE(SUM(profit), 0)").
		Scan(&total).Error
	return total, err
}

func (d *TradeDao) GetTradesBySymbol(ctx context.Context, symbol string, limit int) ([]model.TradeRecord, error) {
	var records []model.TradeRecord
	err := d.db.WithContext(ctx).Model(&model.TradeRecord{}).
		Where("symbol = ?", symbol).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// AppendArbitrageTrade 追加套利台账
func (d *TradeDao) AppendArbitrageTrade(ctx context.Context, trade *model.ArbitrageTrade) error {
	return d.db.WithContext(ctx).Create(trade).Error
}

func (d *TradeDao) GetArbitrageTrades(ctx context.Context, symbol string, limit int) ([]model.ArbitrageTrade, error) {
	var trades []model.ArbitrageTrade
	q := d.db.WithContext(ctx).Model(&model.ArbitrageTrade{})
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	err := q.Order("created_at DESC").Limit(limit).Find(&trades).Error
	return trades, err
}
