package health

/*
Файл service.go — прием health-репортов от агентов и перевод их в переходы
статуса каталога.

Асимметрия намеренная: UNHEALTHY автоматически демотирует агента в INACTIVE
(fail closed — одного плохого сигнала достаточно), а HEALTHY статус НЕ
поднимает. Обратный перевод в ACTIVE делается только явным апдейтом через
management API.
*/

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/cams-router/internal/domain"
	"github.com/xela07ax/cams-router/internal/metrics"
)

// Directory — то, что сервису нужно от клиента каталога.
type Directory interface {
	Resolve(ctx context.Context, address string) (*domain.AgentMapping, error)
	Mutate(ctx context.Context, address string, patch domain.MappingPatch, updatedBy string) (*domain.AgentMapping, error)
}

const (
	StatusHealthy   = "HEALTHY"
	StatusUnhealthy = "UNHEALTHY"

	updatedByHealthCheck = "agent_health_check"
)

// Report — health-сигнал от агента.
type Report struct {
	AIAgentAddress string                 `json:"ai_agent_address"`
	Status         string                 `json:"status"`
	Details        map[string]interface{} `json:"details,omitempty"`
	Timestamp      *time.Time             `json:"timestamp,omitempty"`
}

type Service struct {
	directory Directory
	metrics   *metrics.Sink
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(directory Directory, sink *metrics.Sink, logger *zap.Logger) *Service {
	return &Service{
		directory: directory,
		metrics:   sink,
		logger:    logger.Named("agent-health"),
		now:       time.Now,
	}
}

// Record фиксирует health-репорт. Нераспознанный статус отклоняется ДО
// любого обращения к хранилищу.
func (s *Service) Record(ctx context.Context, rep Report) error {
	status := strings.ToUpper(strings.TrimSpace(rep.Status))
	if status != StatusHealthy && status != StatusUnhealthy {
		return &domain.ValidationError{Reason: "invalid health status, must be 'HEALTHY' or 'UNHEALTHY'"}
	}

	mapping, err := s.directory.Resolve(ctx, rep.AIAgentAddress)
	if err != nil {
		return err
	}
	if mapping == nil {
		return domain.ErrAgentNotFound
	}

	checkedAt := s.now().UTC()
	if rep.Timestamp != nil {
		checkedAt = rep.Timestamp.UTC()
	}

	patch := domain.MappingPatch{LastHealthCheckAt: &checkedAt}
	if status == StatusUnhealthy {
		inactive := domain.StatusInactive
		patch.Status = &inactive
		s.logger.Warn("agent reported UNHEALTHY, demoting to INACTIVE",
			zap.String("address", rep.AIAgentAddress))
	}

	if _, err := s.directory.Mutate(ctx, rep.AIAgentAddress, patch, updatedByHealthCheck); err != nil {
		return err
	}

	s.metrics.HealthReports.WithLabelValues(strings.ToLower(status)).Inc()
	s.logger.Info("health status recorded",
		zap.String("address", rep.AIAgentAddress),
		zap.String("health_status", status))
	return nil
}
