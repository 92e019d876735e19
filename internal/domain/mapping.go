package domain

import "time"

// MappingStatus — состояние маршрутизации агента в каталоге (CAMS).
type MappingStatus string

const (
	StatusActive   MappingStatus = "ACTIVE"   // Сообщения доставляются в inbox
	StatusInactive MappingStatus = "INACTIVE" // Маршрутизация выключена (health-демоция или оператор)
)

// Valid проверяет, что статус входит в закрытый набор значений.
// Любое другое значение отсекается на границе API, до записи в хранилище.
func (s MappingStatus) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// DestinationType — тип точки доставки, закрепленной за адресом.
type DestinationType string

const (
	DestKafkaTopic   DestinationType = "KAFKA_TOPIC"
	DestHTTPEndpoint DestinationType = "HTTP_ENDPOINT"
)

func (t DestinationType) Valid() bool {
	return t == DestKafkaTopic || t == DestHTTPEndpoint
}

// AgentMapping — запись каталога: адрес агента -> его inbox.
// Address уникален и неизменяем после регистрации (primary key в agent_inboxes).
type AgentMapping struct {
	Address           string          `json:"aiAgentAddress"`
	DestinationType   DestinationType `json:"inboxDestinationType"`
	InboxName         string          `json:"inboxName"`
	Status            MappingStatus   `json:"status"`
	Description       *string         `json:"description,omitempty"`
	OwnerTeam         *string         `json:"ownerTeam,omitempty"`
	RegisteredAt      time.Time       `json:"registrationTimestamp"`
	LastUpdatedAt     time.Time       `json:"lastUpdatedTimestamp"`
	LastHealthCheckAt *time.Time      `json:"lastHealthCheckTimestamp,omitempty"`
	UpdatedBy         string          `json:"updatedBy"`
}

// MappingPatch — типизированное частичное обновление записи.
// Только поля из этого набора могут быть изменены; nil означает "не трогать".
// registration_timestamp и сам адрес не патчатся никогда.
type MappingPatch struct {
	DestinationType   *DestinationType
	InboxName         *string
	Status            *MappingStatus
	Description       *string
	OwnerTeam         *string
	LastHealthCheckAt *time.Time
}

// IsZero — патч без единого поля (такой апдейт отклоняется до похода в БД).
func (p MappingPatch) IsZero() bool {
	return p.DestinationType == nil &&
		p.InboxName == nil &&
		p.Status == nil &&
		p.Description == nil &&
		p.OwnerTeam == nil &&
		p.LastHealthCheckAt == nil
}

// Validate отсекает значения вне закрытых enum-наборов.
func (p MappingPatch) Validate() error {
	if p.Status != nil && !p.Status.Valid() {
		return &ValidationError{Reason: "invalid status value, must be 'ACTIVE' or 'INACTIVE'"}
	}
	if p.DestinationType != nil && !p.DestinationType.Valid() {
		return &ValidationError{Reason: "invalid inboxDestinationType value"}
	}
	return nil
}

// MappingFilter — параметры выборки списка записей.
type MappingFilter struct {
	Status    *MappingStatus
	OwnerTeam *string
	Limit     int
	Offset    int
}
