package domain

import "net/http"

// OutcomeCode — терминальная классификация одной попытки приема сообщения.
// Управляет и логированием, и HTTP-статусом ответа.
type OutcomeCode string

const (
	OutcomeAccepted       OutcomeCode = "ACCEPTED"
	OutcomeInvalidRequest OutcomeCode = "INVALID_REQUEST"
	OutcomeAgentNotFound  OutcomeCode = "AGENT_NOT_FOUND"
	OutcomeAgentInactive  OutcomeCode = "AGENT_INACTIVE"
	OutcomeConfigError    OutcomeCode = "CONFIG_ERROR"
	OutcomeTransformError OutcomeCode = "TRANSFORM_ERROR"
	OutcomePublishError   OutcomeCode = "PUBLISH_ERROR"
	OutcomeInternalError  OutcomeCode = "INTERNAL_ERROR"
)

// HTTPStatus — фиксированный маппинг исходов на статусы ответа.
// INACTIVE намеренно отдает 404, как и NOT_FOUND: для отправителя
// неактивный агент неотличим от отсутствующего.
func (c OutcomeCode) HTTPStatus() int {
	switch c {
	case OutcomeAccepted:
		return http.StatusAccepted
	case OutcomeInvalidRequest:
		return http.StatusBadRequest
	case OutcomeAgentNotFound, OutcomeAgentInactive:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Outcome — результат одного вызова пайплайна. Живет только в рамках запроса,
// никуда не персистится.
type Outcome struct {
	MessageID string
	Code      OutcomeCode
	Detail    string
}
