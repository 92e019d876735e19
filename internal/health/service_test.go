package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/cams-router/internal/domain"
	"github.com/xela07ax/cams-router/internal/metrics"
)

type spyDirectory struct {
	mapping *domain.AgentMapping

	resolveCalls int
	mutateCalls  int

	gotAddress   string
	gotPatch     domain.MappingPatch
	gotUpdatedBy string
}

func (s *spyDirectory) Resolve(_ context.Context, _ string) (*domain.AgentMapping, error) {
	s.resolveCalls++
	return s.mapping, nil
}

func (s *spyDirectory) Mutate(_ context.Context, address string, patch domain.MappingPatch, updatedBy string) (*domain.AgentMapping, error) {
	s.mutateCalls++
	s.gotAddress = address
	s.gotPatch = patch
	s.gotUpdatedBy = updatedBy
	return s.mapping, nil
}

func newTestService(dir *spyDirectory) *Service {
	s := NewService(dir, metrics.NewSink(nil), zap.NewNop())
	s.now = func() time.Time {
		return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	}
	return s
}

func TestRecordInvalidStatusRejectedBeforeStore(t *testing.T) {
	dir := &spyDirectory{}
	s := newTestService(dir)

	err := s.Record(context.Background(), Report{
		AIAgentAddress: "agent://x",
		Status:         "DEGRADED",
	})

	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Zero(t, dir.resolveCalls)
	assert.Zero(t, dir.mutateCalls)
}

func TestRecordUnknownAgent(t *testing.T) {
	dir := &spyDirectory{mapping: nil}
	s := newTestService(dir)

	err := s.Record(context.Background(), Report{
		AIAgentAddress: "agent://ghost",
		Status:         StatusHealthy,
	})

	assert.ErrorIs(t, err, domain.ErrAgentNotFound)
	assert.Zero(t, dir.mutateCalls)
}

func TestRecordUnhealthyDemotesToInactive(t *testing.T) {
	dir := &spyDirectory{mapping: &domain.AgentMapping{
		Address: "agent://x",
		Status:  domain.StatusActive,
	}}
	s := newTestService(dir)

	err := s.Record(context.Background(), Report{
		AIAgentAddress: "agent://x",
		Status:         StatusUnhealthy,
	})

	require.NoError(t, err)
	require.Equal(t, 1, dir.mutateCalls)
	assert.Equal(t, "agent://x", dir.gotAddress)
	assert.Equal(t, "agent_health_check", dir.gotUpdatedBy)

	require.NotNil(t, dir.gotPatch.Status)
	assert.Equal(t, domain.StatusInactive, *dir.gotPatch.Status)
	require.NotNil(t, dir.gotPatch.LastHealthCheckAt)
	assert.Equal(t, time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC), *dir.gotPatch.LastHealthCheckAt)
}

func TestRecordHealthyDoesNotPromote(t *testing.T) {
	dir := &spyDirectory{mapping: &domain.AgentMapping{
		Address: "agent://x",
		Status:  domain.StatusInactive,
	}}
	s := newTestService(dir)

	err := s.Record(context.Background(), Report{
		AIAgentAddress: "agent://x",
		Status:         StatusHealthy,
	})

	require.NoError(t, err)
	require.Equal(t, 1, dir.mutateCalls)
	// HEALTHY обновляет только last_health_check, статус не трогает
	assert.Nil(t, dir.gotPatch.Status)
	assert.NotNil(t, dir.gotPatch.LastHealthCheckAt)
}

func TestRecordStatusCaseInsensitive(t *testing.T) {
	dir := &spyDirectory{mapping: &domain.AgentMapping{Address: "agent://x"}}
	s := newTestService(dir)

	err := s.Record(context.Background(), Report{
		AIAgentAddress: "agent://x",
		Status:         "  unhealthy ",
	})

	require.NoError(t, err)
	require.NotNil(t, dir.gotPatch.Status)
	assert.Equal(t, domain.StatusInactive, *dir.gotPatch.Status)
}

func TestRecordUsesProvidedTimestamp(t *testing.T) {
	dir := &spyDirectory{mapping: &domain.AgentMapping{Address: "agent://x"}}
	s := newTestService(dir)

	reported := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := s.Record(context.Background(), Report{
		AIAgentAddress: "agent://x",
		Status:         StatusHealthy,
		Timestamp:      &reported,
	})

	require.NoError(t, err)
	require.NotNil(t, dir.gotPatch.LastHealthCheckAt)
	assert.Equal(t, reported, *dir.gotPatch.LastHealthCheckAt)
}
