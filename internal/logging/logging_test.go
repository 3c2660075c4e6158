package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	loc := time.FixedZone("SHIP", 2*60*60)
	log := New(&buf, "debug", loc)

	Component(log, "assembler").WithField("draft_id", "d1").Debug("planned")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "planned", line["msg"])
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "assembler", line["component"])
	assert.Equal(t, "d1", line["draft_id"])

	ts, ok := line["ts"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(ts, "+02:00"), ts)
}

func TestNew_LevelFallback(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "chatty", nil)

	log.Debug("hidden")
	assert.Empty(t, buf.String())
	log.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing")
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := Component(New(&buf, "info", time.UTC), "drafts")

	tests := []struct {
		name   string
		ctx    context.Context
		wantID any
	}{
		{name: "request id is attached", ctx: WithRequestID(context.Background(), "rid-42"), wantID: "rid-42"},
		{name: "no request id", ctx: context.Background(), wantID: nil},
		{name: "empty id is ignored", ctx: WithRequestID(context.Background(), ""), wantID: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			FromContext(tt.ctx, base).Info("draft generated")

			var line map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
			assert.Equal(t, "drafts", line["component"])
			assert.Equal(t, tt.wantID, line["request_id"])
		})
	}
}

func TestRequestID_Nested(t *testing.T) {
	ctx := WithRequestID(context.Background(), "outer")
	ctx = WithRequestID(ctx, "inner")
	assert.Equal(t, "inner", RequestID(ctx))
	assert.Empty(t, RequestID(context.Background()))
}
