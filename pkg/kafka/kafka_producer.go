package kafka

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"spreadflow/pkg/logger"
)

// Kafka 生产者服务
// 定义接口，方便测试和替换
type ProducerService interface {
	Produce(ctx context.Context, key []byte, payload interface{}) error
	Close()
}

type kafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer 审计事件流的生产者，消息体是JSON
func NewKafkaProducer(brokerURL, topic string) ProducerService {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerURL),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{}, // 保证写入负载均衡
		WriteTimeout: 5 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}
	return &kafkaProducer{writer: writer}
}

// Produce 序列化payload并写入审计主题
func (p *kafkaProducer) Produce(ctx context.Context, key []byte, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: data,
		Time:  time.Now(),
	})
}

func (p *kafkaProducer) Close() {
	if err := p.writer.Close(); err != nil {
		logger.Errorf("关闭kafka writer失败: %v", err)
	}
}
