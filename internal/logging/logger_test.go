package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithSessionTagsEntries(t *testing.T) {
	var buf bytes.Buffer
	l := New(Debug, JSON, &buf)
	tagged := WithSession(l, "sess-1")
	tagged.Info("window processed")

	var payload map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &payload))
	require.Equal(t, "sess-1", payload["session_id"])
}

func TestWithDeviceTagsEntries(t *testing.T) {
	var buf bytes.Buffer
	l := New(Debug, JSON, &buf)
	tagged := WithDevice(l, "cyton-1")
	tagged.Warn("health check failed")

	var payload map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &payload))
	require.Equal(t, "cyton-1", payload["device_id"])
}
