package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	registry := NewRegistry()

	adapter := NewLumaAdapter("https://example.test", "key", nil)
	registry.Register(adapter)

	got, err := registry.Get("luma")
	require.NoError(t, err)
	assert.Equal(t, adapter, got)

	_, err = registry.Get("midjourney")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	assert.Contains(t, registry.Names(), "luma")
}

func TestReplicateAdapter_ParseWebhook(t *testing.T) {
	adapter := NewReplicateAdapter("https://example.test", "key", nil)

	t.Run("succeeded with output array", func(t *testing.T) {
		update, err := adapter.ParseWebhook([]byte(`{"id":"pred-1","status":"succeeded","output":["https://cdn.test/a.png"]}`))
		require.NoError(t, err)
		assert.Equal(t, "pred-1", update.ExternalID)
		assert.Equal(t, StatusCompleted, update.Status)
		assert.Equal(t, "https://cdn.test/a.png", update.ResultURL)
	})

	t.Run("succeeded with scalar output", func(t *testing.T) {
		update, err := adapter.ParseWebhook([]byte(`{"id":"pred-2","status":"succeeded","output":"https://cdn.test/b.png"}`))
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.test/b.png", update.ResultURL)
	})

	t.Run("failed", func(t *testing.T) {
		update, err := adapter.ParseWebhook([]byte(`{"id":"pred-3","status":"failed","error":"NSFW content detected"}`))
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, update.Status)
		assert.Equal(t, "NSFW content detected", update.ErrorMessage)
	})

	t.Run("canceled maps to failed", func(t *testing.T) {
		update, err := adapter.ParseWebhook([]byte(`{"id":"pred-4","status":"canceled"}`))
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, update.Status)
	})

	t.Run("in flight", func(t *testing.T) {
		update, err := adapter.ParseWebhook([]byte(`{"id":"pred-5","status":"processing"}`))
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, update.Status)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := adapter.ParseWebhook([]byte(`{"status":"succeeded"}`))
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("unknown status", func(t *testing.T) {
		_, err := adapter.ParseWebhook([]byte(`{"id":"pred-6","status":"paused"}`))
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := adapter.ParseWebhook([]byte(`<xml/>`))
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})
}

func TestLumaAdapter_ParseWebhook(t *testing.T) {
	adapter := NewLumaAdapter("https://example.test", "key", nil)

	update, err := adapter.ParseWebhook([]byte(`{"task_id":"gen-1","status":"completed","assets":{"video":"https://cdn.test/v.mp4"}}`))
	require.NoError(t, err)
	assert.Equal(t, "gen-1", update.ExternalID)
	assert.Equal(t, StatusCompleted, update.Status)
	assert.Equal(t, "https://cdn.test/v.mp4", update.ResultURL)

	update, err = adapter.ParseWebhook([]byte(`{"task_id":"gen-2","status":"dreaming"}`))
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, update.Status)

	update, err = adapter.ParseWebhook([]byte(`{"task_id":"gen-3","status":"failed","failure_reason":"content policy"}`))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, update.Status)
	assert.Equal(t, "content policy", update.ErrorMessage)

	_, err = adapter.ParseWebhook([]byte(`{"status":"completed"}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestLumaAdapter_NoPolling(t *testing.T) {
	adapter := NewLumaAdapter("https://example.test", "key", nil)

	assert.False(t, adapter.SupportsPolling())
	_, err := adapter.PollStatus(context.Background(), "gen-1")
	assert.Error(t, err)
}

func TestStabilityAdapter_NoWebhooks(t *testing.T) {
	adapter := NewStabilityAdapter("https://example.test", "key", nil)

	assert.True(t, adapter.SupportsPolling())
	_, err := adapter.ParseWebhook([]byte(`{"request_id":"req-1","Status":"Succeeded"}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusProcessing.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
}
