package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xela07ax/cams-router/internal/domain"
)

// KafkaPublisher — реализация publish primitive поверх Kafka.
// Атрибуты envelope уходят заголовками, data — телом сообщения.
// Ключ партиционирования — адрес агента: сообщения одного агента
// попадают в одну партицию (без гарантии порядка между запросами).
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, writeTimeout time.Duration, logger *zap.Logger) *KafkaPublisher {
	if writeTimeout == 0 {
		writeTimeout = 10 * time.Second
	}

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Balancer: &kafka.Hash{},
			// At-least-once: ждем подтверждения всех реплик
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: writeTimeout,
		},
		logger: logger.Named("kafka-publisher"),
	}
}

// Publish отправляет envelope в топик и возвращает messageId из атрибутов.
// Любая ошибка брокера отдается вызывающему как есть — классификация
// (PUBLISH_ERROR) происходит в пайплайне.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, env domain.Envelope) (string, error) {
	headers := make([]kafka.Header, 0, len(env.Attributes))
	for k, v := range env.Attributes {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(env.Attributes["aiAgentAddress"]),
		Value:   []byte(env.Data),
		Headers: headers,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("kafka: publish to %s: %w", topic, err)
	}

	messageID := env.Attributes["messageId"]
	p.logger.Debug("message published",
		zap.String("topic", topic),
		zap.String("message_id", messageID))
	return messageID, nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
