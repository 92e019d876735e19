package router

/*
Файл pipeline.go — ядро роутера: конечный автомат обработки одного входящего
сообщения. Терминальные состояния — восемь кодов domain.OutcomeCode.

Порядок шагов фиксирован: валидация -> резолв адреса -> status gate ->
проверка destination -> трансформация -> публикация. Валидация стоит первой,
чтобы мусорный запрос не стоил ни одного похода в каталог.

Пайплайн stateless: между запросами нет разделяемого мутабельного состояния,
параллельные сообщения обрабатываются независимо и публикуются в любом
порядке (at-least-once, без per-address сериализации).
*/

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/cams-router/internal/domain"
	"github.com/xela07ax/cams-router/internal/metrics"
)

// Resolver — то, что пайплайну нужно от каталога: nil, nil = адрес не найден.
type Resolver interface {
	Resolve(ctx context.Context, address string) (*domain.AgentMapping, error)
}

// Publisher — publish primitive брокера. Ошибка классифицируется как
// PUBLISH_ERROR; внутренних ретраев публикации пайплайн не делает —
// переотправка на стороне вызывающего.
type Publisher interface {
	Publish(ctx context.Context, topic string, env domain.Envelope) (string, error)
}

// IngestionRequest — входящий запрос на доставку сообщения агенту.
type IngestionRequest struct {
	AIAgentAddress string          `json:"aiAgentAddress"`
	Payload        json.RawMessage `json:"payload"`
	SenderMetadata *SenderMetadata `json:"senderMetadata,omitempty"`
}

// SenderMetadata — опциональные атрибуты отправителя, прокидываются в envelope.
type SenderMetadata struct {
	ServiceName             string `json:"serviceName,omitempty"`
	CorrelationID           string `json:"correlationId,omitempty"`
	SenderProvidedMessageID string `json:"senderProvidedMessageId,omitempty"`
}

const (
	contentTypeJSON = "application/json"

	// Миллисекундная точность, UTC, суффикс Z — формат timestampPublished
	publishedTimeLayout = "2006-01-02T15:04:05.000Z"
)

type Pipeline struct {
	directory Resolver
	publisher Publisher
	metrics   *metrics.Sink
	logger    *zap.Logger
	now       func() time.Time
}

func NewPipeline(directory Resolver, publisher Publisher, sink *metrics.Sink, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		directory: directory,
		publisher: publisher,
		metrics:   sink,
		logger:    logger.Named("routing-pipeline"),
		now:       time.Now,
	}
}

// Ingest прогоняет сообщение через конечный автомат и возвращает терминальный
// исход. Метрики и лог пишутся на любом пути выхода.
func (p *Pipeline) Ingest(ctx context.Context, req IngestionRequest) domain.Outcome {
	start := p.now()
	messageID := uuid.New().String()

	out := p.ingest(ctx, messageID, req)

	p.metrics.IngestOutcomes.WithLabelValues(string(out.Code)).Inc()
	p.metrics.IngestDuration.WithLabelValues(string(out.Code)).Observe(time.Since(start).Seconds())

	if out.Code == domain.OutcomeAccepted {
		p.logger.Info("message accepted",
			zap.String("message_id", out.MessageID),
			zap.String("address", req.AIAgentAddress))
	} else {
		p.logger.Warn("message rejected",
			zap.String("message_id", messageID),
			zap.String("address", req.AIAgentAddress),
			zap.String("outcome", string(out.Code)),
			zap.String("detail", out.Detail))
	}

	return out
}

func (p *Pipeline) ingest(ctx context.Context, messageID string, req IngestionRequest) domain.Outcome {
	// 1. Валидация — до любого похода в каталог
	if strings.TrimSpace(req.AIAgentAddress) == "" {
		return reject(messageID, domain.OutcomeInvalidRequest,
			"aiAgentAddress is required and must be a non-empty string")
	}
	payload, detail := decodePayload(req.Payload)
	if detail != "" {
		return reject(messageID, domain.OutcomeInvalidRequest, detail)
	}

	// 2. Резолв адреса
	mapping, err := p.directory.Resolve(ctx, req.AIAgentAddress)
	if err != nil {
		// Каталог недоступен даже после ретраев; причину оставляем в логе,
		// наружу уходит только код
		p.logger.Error("directory resolution failed",
			zap.String("address", req.AIAgentAddress),
			zap.Error(err))
		return reject(messageID, domain.OutcomeInternalError, "directory lookup failed")
	}
	if mapping == nil {
		return reject(messageID, domain.OutcomeAgentNotFound,
			fmt.Sprintf("AI Agent Address '%s' not found", req.AIAgentAddress))
	}

	// 3. Status gate
	switch mapping.Status {
	case domain.StatusActive:
		// маршрутизируем
	case domain.StatusInactive:
		return reject(messageID, domain.OutcomeAgentInactive,
			fmt.Sprintf("AI Agent '%s' is currently inactive", req.AIAgentAddress))
	default:
		// Недостижимо при соблюдении инварианта хранилища
		p.logger.Error("agent has unknown status",
			zap.String("address", req.AIAgentAddress),
			zap.String("status", string(mapping.Status)))
		return reject(messageID, domain.OutcomeInternalError, "agent has unknown status")
	}

	// 4. Проверка destination: ACTIVE без inbox'а — дефект конфигурации
	if strings.TrimSpace(mapping.InboxName) == "" {
		p.logger.Error("active agent has no inbox configured",
			zap.String("address", req.AIAgentAddress))
		return reject(messageID, domain.OutcomeConfigError,
			"agent configuration error: inboxName missing")
	}

	// 5. Трансформация в envelope
	env, err := p.buildEnvelope(messageID, req, payload)
	if err != nil {
		p.logger.Error("message transformation failed",
			zap.String("message_id", messageID),
			zap.Error(err))
		return reject(messageID, domain.OutcomeTransformError,
			"failed to transform message for publishing")
	}

	// 6. Публикация. Подтвержденный брокером publish считается отправленным,
	// даже если вызывающий уже отвалился — "отменить" публикацию нельзя.
	if _, err := p.publisher.Publish(ctx, mapping.InboxName, env); err != nil {
		p.metrics.PublishErrors.WithLabelValues(mapping.InboxName).Inc()
		p.logger.Error("publish failed",
			zap.String("message_id", messageID),
			zap.String("topic", mapping.InboxName),
			zap.Error(err))
		return reject(messageID, domain.OutcomePublishError,
			"failed to publish message to broker")
	}

	return domain.Outcome{MessageID: messageID, Code: domain.OutcomeAccepted}
}

// decodePayload проверяет, что payload присутствует и является JSON-объектом.
// Пустой объект {} валиден.
func decodePayload(raw json.RawMessage) (map[string]interface{}, string) {
	trimmed := strings.TrimSpace(string(raw))
	if len(trimmed) == 0 || trimmed == "null" {
		return nil, "payload is required"
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, "payload must be a JSON object"
	}
	return payload, ""
}

// buildEnvelope кодирует payload в base64-over-JSON и собирает атрибуты.
func (p *Pipeline) buildEnvelope(messageID string, req IngestionRequest, payload map[string]interface{}) (domain.Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("serialize payload: %w", err)
	}

	attrs := map[string]string{
		"messageId":          messageID,
		"aiAgentAddress":     req.AIAgentAddress,
		"timestampPublished": p.now().UTC().Format(publishedTimeLayout),
		"contentType":        contentTypeJSON,
	}

	if meta := req.SenderMetadata; meta != nil {
		if meta.ServiceName != "" {
			attrs["senderId"] = meta.ServiceName
		}
		if meta.CorrelationID != "" {
			attrs["correlationId"] = meta.CorrelationID
		}
		if meta.SenderProvidedMessageID != "" {
			attrs["senderProvidedMessageId"] = meta.SenderProvidedMessageID
		}
	}

	return domain.Envelope{
		Data:       base64.StdEncoding.EncodeToString(data),
		Attributes: attrs,
	}, nil
}

func reject(messageID string, code domain.OutcomeCode, detail string) domain.Outcome {
	return domain.Outcome{MessageID: messageID, Code: code, Detail: detail}
}
