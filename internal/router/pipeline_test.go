package router

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/cams-router/internal/domain"
	"github.com/xela07ax/cams-router/internal/metrics"
)

type fakeDirectory struct {
	mapping *domain.AgentMapping
	err     error
	calls   int
}

func (f *fakeDirectory) Resolve(_ context.Context, _ string) (*domain.AgentMapping, error) {
	f.calls++
	return f.mapping, f.err
}

type fakePublisher struct {
	err    error
	topic  string
	env    domain.Envelope
	called int
}

func (f *fakePublisher) Publish(_ context.Context, topic string, env domain.Envelope) (string, error) {
	f.called++
	f.topic = topic
	f.env = env
	if f.err != nil {
		return "", f.err
	}
	return env.Attributes["messageId"], nil
}

func newTestPipeline(dir *fakeDirectory, pub *fakePublisher) *Pipeline {
	p := NewPipeline(dir, pub, metrics.NewSink(nil), zap.NewNop())
	p.now = func() time.Time {
		return time.Date(2026, 3, 14, 15, 9, 26, 535_000_000, time.UTC)
	}
	return p
}

func activeMapping(inbox string) *domain.AgentMapping {
	return &domain.AgentMapping{
		Address:         "agent://billing/invoice-processor",
		DestinationType: domain.DestKafkaTopic,
		InboxName:       inbox,
		Status:          domain.StatusActive,
	}
}

func TestIngestAccepted(t *testing.T) {
	dir := &fakeDirectory{mapping: activeMapping("agent-inbox-abc")}
	pub := &fakePublisher{}
	p := newTestPipeline(dir, pub)

	out := p.Ingest(context.Background(), IngestionRequest{
		AIAgentAddress: "agent://billing/invoice-processor",
		Payload:        json.RawMessage(`{"task":"process","invoiceId":42}`),
		SenderMetadata: &SenderMetadata{
			ServiceName:             "billing-svc",
			CorrelationID:           "corr-1",
			SenderProvidedMessageID: "ext-9",
		},
	})

	require.Equal(t, domain.OutcomeAccepted, out.Code)
	require.NotEmpty(t, out.MessageID)
	require.Equal(t, 1, pub.called)
	assert.Equal(t, "agent-inbox-abc", pub.topic)

	// Envelope: payload кодируется base64-over-JSON
	raw, err := base64.StdEncoding.DecodeString(pub.env.Data)
	require.NoError(t, err)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "process", payload["task"])
	assert.Equal(t, float64(42), payload["invoiceId"])

	attrs := pub.env.Attributes
	assert.Equal(t, out.MessageID, attrs["messageId"])
	assert.Equal(t, "agent://billing/invoice-processor", attrs["aiAgentAddress"])
	assert.Equal(t, "application/json", attrs["contentType"])
	assert.Equal(t, "2026-03-14T15:09:26.535Z", attrs["timestampPublished"])
	assert.Equal(t, "billing-svc", attrs["senderId"])
	assert.Equal(t, "corr-1", attrs["correlationId"])
	assert.Equal(t, "ext-9", attrs["senderProvidedMessageId"])
}

func TestIngestNoSenderMetadata(t *testing.T) {
	dir := &fakeDirectory{mapping: activeMapping("agent-inbox-abc")}
	pub := &fakePublisher{}
	p := newTestPipeline(dir, pub)

	out := p.Ingest(context.Background(), IngestionRequest{
		AIAgentAddress: "agent://billing/invoice-processor",
		Payload:        json.RawMessage(`{}`),
	})

	require.Equal(t, domain.OutcomeAccepted, out.Code)
	attrs := pub.env.Attributes
	assert.NotContains(t, attrs, "senderId")
	assert.NotContains(t, attrs, "correlationId")
	assert.NotContains(t, attrs, "senderProvidedMessageId")
}

func TestIngestMissingAddress(t *testing.T) {
	dir := &fakeDirectory{}
	pub := &fakePublisher{}
	p := newTestPipeline(dir, pub)

	out := p.Ingest(context.Background(), IngestionRequest{
		AIAgentAddress: "   ",
		Payload:        json.RawMessage(`{"a":1}`),
	})

	require.Equal(t, domain.OutcomeInvalidRequest, out.Code)
	// Мусорный запрос не ходит ни в каталог, ни в брокер
	assert.Zero(t, dir.calls)
	assert.Zero(t, pub.called)
}

func TestIngestPayloadValidation(t *testing.T) {
	cases := []struct {
		name    string
		payload json.RawMessage
		detail  string
	}{
		{"missing", nil, "payload is required"},
		{"null", json.RawMessage(`null`), "payload is required"},
		{"array", json.RawMessage(`[1,2]`), "payload must be a JSON object"},
		{"string", json.RawMessage(`"hello"`), "payload must be a JSON object"},
		{"number", json.RawMessage(`7`), "payload must be a JSON object"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := &fakeDirectory{}
			p := newTestPipeline(dir, &fakePublisher{})

			out := p.Ingest(context.Background(), IngestionRequest{
				AIAgentAddress: "agent://x",
				Payload:        tc.payload,
			})

			require.Equal(t, domain.OutcomeInvalidRequest, out.Code)
			assert.Equal(t, tc.detail, out.Detail)
			assert.Zero(t, dir.calls)
		})
	}
}

func TestIngestEmptyObjectPayloadValid(t *testing.T) {
	dir := &fakeDirectory{mapping: activeMapping("agent-inbox-abc")}
	p := newTestPipeline(dir, &fakePublisher{})

	out := p.Ingest(context.Background(), IngestionRequest{
		AIAgentAddress: "agent://x",
		Payload:        json.RawMessage(`{}`),
	})

	assert.Equal(t, domain.OutcomeAccepted, out.Code)
}

func TestIngestAgentNotFound(t *testing.T) {
	dir := &fakeDirectory{mapping: nil}
	pub := &fakePublisher{}
	p := newTestPipeline(dir, pub)

	out := p.Ingest(context.Background(), IngestionRequest{
		AIAgentAddress: "agent://ghost",
		Payload:        json.RawMessage(`{"a":1}`),
	})

	require.Equal(t, domain.OutcomeAgentNotFound, out.Code)
	assert.Contains(t, out.Detail, "agent://ghost")
	assert.Zero(t, pub.called)
}

func TestIngestAgentInactive(t *testing.T) {
	m := activeMapping("agent-inbox-abc")
	m.Status = domain.StatusInactive
	dir := &fakeDirectory{mapping: m}
	pub := &fakePublisher{}
	p := newTestPipeline(dir, pub)

	out := p.Ingest(context.Background(), IngestionRequest{
		AIAgentAddress: "agent://billing/invoice-processor",
		Payload:        json.RawMessage(`{"a":1}`),
	})

	require.Equal(t, domain.OutcomeAgentInactive, out.Code)
	assert.Zero(t, pub.called)
}

func TestIngestUnknownStatus(t *testing.T) {
	m := activeMapping("agent-inbox-abc")
	m.Status = domain.MappingStatus("SUSPENDED")
	dir := &fakeDirectory{mapping: m}
	p := newTestPipeline(dir, &fakePublisher{})

	out := p.Ingest(context.Background(), IngestionRequest{
		AIAgentAddress: "agent://x",
		Payload:        json.RawMessage(`{"a":1}`),
	})

	assert.Equal(t, domain.OutcomeInternalError, out.Code)
}

func TestIngestConfigError(t *testing.T) {
	m := activeMapping("  ")
	dir := &fakeDirectory{mapping: m}
	pub := &fakePublisher{}
	p := newTestPipeline(dir, pub)

	out := p.Ingest(context.Background(), IngestionRequest{
		AIAgentAddress: "agent://x",
		Payload:        json.RawMessage(`{"a":1}`),
	})

	require.Equal(t, domain.OutcomeConfigError, out.Code)
	assert.Zero(t, pub.called)
}

func TestIngestPublishError(t *testing.T) {
	dir := &fakeDirectory{mapping: activeMapping("agent-inbox-abc")}
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	p := newTestPipeline(dir, pub)

	out := p.Ingest(context.Background(), IngestionRequest{
		AIAgentAddress: "agent://x",
		Payload:        json.RawMessage(`{"a":1}`),
	})

	require.Equal(t, domain.OutcomePublishError, out.Code)
	// Причина сбоя брокера не утекает наружу
	assert.NotContains(t, out.Detail, "broker unavailable")
}

func TestIngestDirectoryFailure(t *testing.T) {
	dir := &fakeDirectory{err: &domain.StoreError{Op: "get", Err: errors.New("conn refused")}}
	p := newTestPipeline(dir, &fakePublisher{})

	out := p.Ingest(context.Background(), IngestionRequest{
		AIAgentAddress: "agent://x",
		Payload:        json.RawMessage(`{"a":1}`),
	})

	require.Equal(t, domain.OutcomeInternalError, out.Code)
	assert.NotContains(t, out.Detail, "conn refused")
}

func TestOutcomeHTTPStatus(t *testing.T) {
	cases := map[domain.OutcomeCode]int{
		domain.OutcomeAccepted:       http.StatusAccepted,
		domain.OutcomeInvalidRequest: http.StatusBadRequest,
		domain.OutcomeAgentNotFound:  http.StatusNotFound,
		domain.OutcomeAgentInactive:  http.StatusNotFound,
		domain.OutcomeConfigError:    http.StatusInternalServerError,
		domain.OutcomeTransformError: http.StatusInternalServerError,
		domain.OutcomePublishError:   http.StatusInternalServerError,
		domain.OutcomeInternalError:  http.StatusInternalServerError,
	}

	for code, want := range cases {
		assert.Equal(t, want, code.HTTPStatus(), string(code))
	}
}

func TestIngestMessageIDsUnique(t *testing.T) {
	dir := &fakeDirectory{mapping: activeMapping("agent-inbox-abc")}
	p := newTestPipeline(dir, &fakePublisher{})

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		out := p.Ingest(context.Background(), IngestionRequest{
			AIAgentAddress: "agent://x",
			Payload:        json.RawMessage(`{"a":1}`),
		})
		require.Equal(t, domain.OutcomeAccepted, out.Code)
		require.False(t, seen[out.MessageID], "duplicate messageId %s", out.MessageID)
		seen[out.MessageID] = true
	}
}
