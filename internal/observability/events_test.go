package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildHeaders(t *testing.T) {
	headers := BuildHeaders("req-1", "trace-1")
	assert.Equal(t, map[string]string{"x-request-id": "req-1", "trace_id": "trace-1"}, headers)
}

func TestBuildHeadersOmitsEmptyValues(t *testing.T) {
	assert.Empty(t, BuildHeaders("", ""))
	assert.Equal(t, map[string]string{"x-request-id": "req-1"}, BuildHeaders("req-1", ""))
}

func TestPublishEventWithoutPublisher(t *testing.T) {
	SetPublisher(nil)
	err := PublishEvent(context.Background(), "key", EventEnvelope{EventType: "t", EventName: "n"}, nil)
	require.NoError(t, err)
}

type recordingPublisher struct {
	routingKey string
	headers    map[string]string
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	p.routingKey = routingKey
	p.headers = headers
	return nil
}

func TestPublishEventForwardsToPublisher(t *testing.T) {
	recorder := &recordingPublisher{}
	SetPublisher(recorder)
	defer SetPublisher(nil)

	err := PublishEvent(context.Background(), "chat_events.relay", EventEnvelope{EventName: "x"}, map[string]string{"trace_id": "abc"})
	require.NoError(t, err)
	assert.Equal(t, "chat_events.relay", recorder.routingKey)
	assert.Equal(t, "abc", recorder.headers["trace_id"])
}
