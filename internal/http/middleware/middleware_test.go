package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handover/internal/logging"
)

func TestRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())

	app.Get("/test", func(c *fiber.Ctx) error {
		rid, _ := c.Locals(RequestIDLocalKey).(string)
		return c.JSON(map[string]string{
			"local": rid,
			"ctx":   logging.RequestID(c.UserContext()),
		})
	})

	tests := []struct {
		name     string
		incoming string
		wantKept bool
	}{
		{name: "generates an id when none is sent"},
		{name: "keeps a well-formed incoming id", incoming: "test-id-123", wantKept: true},
		{name: "replaces an id with spaces", incoming: "drop table drafts"},
		{name: "replaces an id with a tab", incoming: "abc\tdef"},
		{name: "replaces an oversized id", incoming: strings.Repeat("a", 129)},
		{name: "keeps an id at the size limit", incoming: strings.Repeat("b", 128), wantKept: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)

			header := resp.Header.Get(RequestIDHeader)
			require.NotEmpty(t, header)
			if tt.wantKept {
				assert.Equal(t, tt.incoming, header)
			} else {
				assert.NotEqual(t, tt.incoming, header)
				_, err := uuid.Parse(header)
				assert.NoError(t, err, "a fresh uuid is minted")
			}

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, header, body["local"])
			assert.Equal(t, header, body["ctx"], "user context carries the same id")
		})
	}
}

func TestIdentity(t *testing.T) {
	app := fiber.New()
	app.Use(Identity())

	app.Get("/whoami", func(c *fiber.Ctx) error {
		actor, ok := ActorFromCtx(c)
		if !ok {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.JSON(actor)
	})

	t.Run("should expose identity headers as actor", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/whoami", nil)
		req.Header.Set(UserIDHeader, " alice ")
		req.Header.Set(UserRoleHeader, "chief_engineer")
		req.Header.Set(TenantIDHeader, "t1")
		resp, _ := app.Test(req)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		var got map[string]string
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, map[string]string{"user_id": "alice", "role": "chief_engineer", "tenant_id": "t1"}, got)
	})

	t.Run("should leave anonymous requests without actor", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/whoami", nil)
		resp, _ := app.Test(req)
		assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	})
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	loc := time.UTC

	// Logger usually depends on RequestID for request_id field
	app.Use(RequestID())
	app.Use(LoggerWithWriter(&buf, loc))

	app.Get("/test", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	// Verify log output
	var logData map[string]any
	err := json.Unmarshal(buf.Bytes(), &logData)
	assert.NoError(t, err)

	assert.NotEmpty(t, logData["request_id"])
	assert.Equal(t, "GET", logData["method"])
	assert.Equal(t, "/test", logData["path"])
	assert.Equal(t, float64(fiber.StatusAccepted), logData["status"])
	assert.NotNil(t, logData["latency"])
	assert.NotEmpty(t, logData["ts"])
	assert.Equal(t, "http", logData["component"])
}

func TestLogger_ErrorStatus(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	app.Use(RequestID())
	app.Use(Identity())
	app.Use(LoggerWithWriter(&buf, time.UTC))

	app.Get("/missing", func(c *fiber.Ctx) error {
		return fiber.ErrNotFound
	})

	req := httptest.NewRequest("GET", "/missing", nil)
	req.Header.Set(UserIDHeader, "bob")
	req.Header.Set(TenantIDHeader, "t1")
	resp, _ := app.Test(req)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var logData map[string]any
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &logData))
	assert.Equal(t, float64(fiber.StatusNotFound), logData["status"])
	assert.Equal(t, "bob", logData["user_id"])
	assert.Equal(t, "t1", logData["tenant_id"])
}
