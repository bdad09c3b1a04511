package service

import (
	"context"
	"time"

	"spreadflow/internal/model"
	"spreadflow/pkg/kafka"
	"spreadflow/pkg/logger"
	"spreadflow/utils"
)

// 审计事件类型
const (
	EventArbitrageTrade = "arbitrage_trade"
	EventSignalRecord   = "signal_record"
)

type auditEvent struct {
	Type    string      `json:"type"`
	Time    string      `json:"time"`
	Payload interface{} `json:"payload"`
}

func newAuditEvent(eventType string, payload interface{}) auditEvent {
	return auditEvent{
		Type:    eventType,
		Time:    utils.Stamp2str(time.Now().Unix()),
		Payload: payload,
	}
}

// EventService 把执行结果推到kafka审计流
// 发布失败只记日志，绝不阻塞交易路径
type EventService struct {
	producer kafka.ProducerService
}

func NewEventService(producer kafka.ProducerService) *EventService {
	return &EventService{producer: producer}
}

func (s *EventService) PublishArbitrageTrade(ctx context.Context, trade *model.ArbitrageTrade) {
	if s == nil || s.producer == nil {
		return
	}
	event := newAuditEvent(EventArbitrageTrade, trade)
	if err := s.producer.Produce(ctx, []byte(trade.Symbol), event); err != nil {
		logger.Errorf("套利事件发布失败: %v", err)
	}
}

func (s *EventService) PublishSignal(ctx context.Context, record *model.SignalRecord) {
	if s == nil || s.producer == nil {
		return
	}
	event := newAuditEvent(EventSignalRecord, record)
	if err := s.producer.Produce(ctx, []byte(record.Symbol), event); err != nil {
		logger.Errorf("信号事件发布失败: %v", err)
	}
}

func (s *EventService) Close() {
	if s != nil && s.producer != nil {
		s.producer.Close()
	}
}
