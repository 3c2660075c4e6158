package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"handover/internal/http/middleware"
	"handover/internal/model"
	"handover/internal/service"
	serviceMocks "handover/internal/service/mocks"
	"handover/internal/workflow"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var alice = model.Actor{UserID: "alice", Role: "chief_engineer", TenantID: "t1"}

func newApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(middleware.RequestID())
	app.Use(middleware.Identity())
	return app
}

func jsonRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.UserIDHeader, alice.UserID)
	req.Header.Set(middleware.UserRoleHeader, alice.Role)
	req.Header.Set(middleware.TenantIDHeader, alice.TenantID)
	return req
}

func decodeError(t *testing.T, resp *http.Response) errorPayload {
	t.Helper()
	var body errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, resp).Error.Code)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubmitEntry(t *testing.T) {
	mockSvc := new(serviceMocks.MockEntryService)
	app := newApp()
	app.Post("/entries", SubmitEntry(mockSvc))

	t.Run("success", func(t *testing.T) {
		in := service.SubmitEntryInput{
			Department: "engineering",
			Narrative:  "Generator 2 tripped",
			EntityRefs: []model.EntityRef{{Kind: "generator", ID: "GEN-2"}},
			SourceRefs: []model.SourceRef{},
		}
		mockSvc.On("Submit", mock.Anything, alice, in).Return(&model.Entry{ID: "e1", Narrative: in.Narrative}, nil).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/entries", map[string]any{
			"department":  "engineering",
			"narrative":   "Generator 2 tripped",
			"entity_refs": []map[string]string{{"kind": "generator", "id": "GEN-2"}},
		}))

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		var e model.Entry
		json.NewDecoder(resp.Body).Decode(&e)
		assert.Equal(t, "e1", e.ID)
		mockSvc.AssertExpectations(t)
	})

	t.Run("validation error", func(t *testing.T) {
		resp, _ := app.Test(jsonRequest(http.MethodPost, "/entries", map[string]any{
			"department":  "engineering",
			"entity_refs": []map[string]string{{"kind": "generator"}},
		}))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
		assert.Contains(t, body.Error.Message, "narrative: required")
		assert.Contains(t, body.Error.Message, "entity_refs[0].id: required")
		assert.NotEmpty(t, body.RequestID)
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/entries", bytes.NewBufferString("{"))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_BODY", decodeError(t, resp).Error.Code)
	})

	t.Run("missing identity", func(t *testing.T) {
		mockSvc.On("Submit", mock.Anything, model.Actor{}, mock.Anything).Return(nil, service.ErrIdentityRequired).Once()

		req := httptest.NewRequest(http.MethodPost, "/entries", bytes.NewBufferString(`{"department":"deck","narrative":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "UNAUTHENTICATED", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})
}

func TestListCandidates(t *testing.T) {
	mockSvc := new(serviceMocks.MockEntryService)
	app := newApp()
	app.Get("/entries", ListCandidates(mockSvc))

	t.Run("success", func(t *testing.T) {
		start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
		q := service.CandidateQuery{Department: "deck", PeriodStart: start, PeriodEnd: start.Add(24 * time.Hour)}
		mockSvc.On("ListCandidates", mock.Anything, alice, q).Return([]model.Entry{{ID: "e1"}, {ID: "e2"}}, nil).Once()

		resp, _ := app.Test(jsonRequest(http.MethodGet, "/entries?department=deck&period_start=2026-10-01T00:00:00Z&period_end=2026-10-02T00:00:00Z", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body struct {
			Items []model.Entry `json:"items"`
			Total int           `json:"total"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, 2, body.Total)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid period", func(t *testing.T) {
		resp, _ := app.Test(jsonRequest(http.MethodGet, "/entries?period_start=yesterday", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_PERIOD", decodeError(t, resp).Error.Code)
	})
}

func TestGenerateDraft(t *testing.T) {
	mockSvc := new(serviceMocks.MockDraftService)
	app := newApp()
	app.Post("/drafts", GenerateDraft(mockSvc))

	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	body := map[string]any{"department": "engineering", "period_start": start, "period_end": start.Add(24 * time.Hour)}
	in := service.GenerateInput{Department: "engineering", PeriodStart: start, PeriodEnd: start.Add(24 * time.Hour)}

	tests := []struct {
		name       string
		setupMocks func(m *serviceMocks.MockDraftService)
		wantStatus int
		wantCode   string
		wantDraft  string
	}{
		{
			name: "success",
			setupMocks: func(m *serviceMocks.MockDraftService) {
				m.On("Generate", mock.Anything, alice, in).Return(&model.Draft{ID: "d1", State: model.StateDraft}, nil).Once()
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "active draft exists",
			setupMocks: func(m *serviceMocks.MockDraftService) {
				existing := &model.Draft{ID: "d0", State: model.StateInReview}
				m.On("Generate", mock.Anything, alice, in).
					Return(existing, &service.ConflictError{ExistingDraftID: "d0", State: model.StateInReview}).Once()
			},
			wantStatus: http.StatusConflict,
			wantCode:   "ACTIVE_DRAFT_EXISTS",
			wantDraft:  "d0",
		},
		{
			name: "nothing to draft",
			setupMocks: func(m *serviceMocks.MockDraftService) {
				m.On("Generate", mock.Anything, alice, in).Return(nil, service.ErrNothingToDraft).Once()
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "NOTHING_TO_DRAFT",
		},
		{
			name: "generation failed",
			setupMocks: func(m *serviceMocks.MockDraftService) {
				m.On("Generate", mock.Anything, alice, in).Return(nil, &service.GenerationError{Err: errors.New("pq: deadlock")}).Once()
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "GENERATION_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupMocks(mockSvc)

			resp, _ := app.Test(jsonRequest(http.MethodPost, "/drafts", body))

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantCode != "" {
				payload := decodeError(t, resp)
				assert.Equal(t, tt.wantCode, payload.Error.Code)
				assert.NotContains(t, payload.Error.Message, "deadlock")
				if tt.wantDraft != "" {
					require.NotNil(t, payload.Draft)
					assert.Equal(t, tt.wantDraft, payload.Draft.ID)
				}
			}
			mockSvc.AssertExpectations(t)
		})
	}

	t.Run("period end before start", func(t *testing.T) {
		resp, _ := app.Test(jsonRequest(http.MethodPost, "/drafts", map[string]any{
			"department": "engineering", "period_start": start, "period_end": start.Add(-time.Hour),
		}))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, decodeError(t, resp).Error.Message, "period_end: gtfield")
	})
}

func TestSignoffHandlers(t *testing.T) {
	mockSvc := new(serviceMocks.MockDraftService)
	app := newApp()
	app.Post("/drafts/:id/accept", AcceptDraft(mockSvc))
	app.Post("/drafts/:id/sign", SignDraft(mockSvc))
	app.Post("/drafts/:id/reject", RejectDraft(mockSvc))
	app.Patch("/drafts/:id/items/:itemId", EditItem(mockSvc))

	accepted := &model.Draft{ID: "d1", State: model.StateAccepted}

	t.Run("accept without confirmation", func(t *testing.T) {
		cur := &model.Draft{ID: "d1", State: model.StateInReview}
		mockSvc.On("Accept", mock.Anything, alice, "d1", false).Return(cur, &workflow.TransitionError{
			DraftID: "d1", Event: workflow.EventAccept, From: model.StateInReview, Err: workflow.ErrConfirmationRequired,
		}).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/drafts/d1/accept", map[string]any{}))

		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		payload := decodeError(t, resp)
		assert.Equal(t, "INVALID_TRANSITION", payload.Error.Code)
		assert.Equal(t, "confirmation is required", payload.Error.Message)
		require.NotNil(t, payload.Draft)
		assert.Equal(t, model.StateInReview, payload.Draft.State)
	})

	t.Run("self signoff", func(t *testing.T) {
		mockSvc.On("Sign", mock.Anything, alice, "d1", true).Return(accepted, &workflow.TransitionError{
			DraftID: "d1", Event: workflow.EventSign, From: model.StateAccepted, Err: workflow.ErrSelfSignoff,
		}).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/drafts/d1/sign", map[string]any{"confirmed": true}))

		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		payload := decodeError(t, resp)
		assert.Equal(t, workflow.ErrSelfSignoff.Error(), payload.Error.Message)
		assert.Equal(t, model.StateAccepted, payload.Draft.State)
	})

	t.Run("reject with reason", func(t *testing.T) {
		mockSvc.On("Reject", mock.Anything, alice, "d1", "missing fuel figures").
			Return(&model.Draft{ID: "d1", State: model.StateInReview}, nil).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/drafts/d1/reject", map[string]any{"reason": "missing fuel figures"}))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var d model.Draft
		json.NewDecoder(resp.Body).Decode(&d)
		assert.Equal(t, model.StateInReview, d.State)
	})

	t.Run("edit after freeze", func(t *testing.T) {
		mockSvc.On("EditItem", mock.Anything, alice, "d1", "i1", "new text").Return(accepted, &workflow.TransitionError{
			DraftID: "d1", Event: workflow.EventEdit, From: model.StateAccepted, Err: workflow.ErrEditAfterFreeze,
		}).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPatch, "/drafts/d1/items/i1", map[string]any{"text": "new text"}))

		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, "draft content is frozen", decodeError(t, resp).Error.Message)
	})

	t.Run("concurrent change", func(t *testing.T) {
		mockSvc.On("EditItem", mock.Anything, alice, "d1", "i1", "again").Return(accepted, service.ErrConcurrentChange).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPatch, "/drafts/d1/items/i1", map[string]any{"text": "again"}))

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "CONCURRENT_CHANGE", decodeError(t, resp).Error.Code)
	})

	mockSvc.AssertExpectations(t)
}

func TestExportDraft(t *testing.T) {
	signed := &model.Draft{ID: "d1", State: model.StateSigned}

	tests := []struct {
		name       string
		body       map[string]any
		setupMocks func(m *serviceMocks.MockExportService)
		wantStatus int
		wantCode   string
	}{
		{
			name: "success",
			body: map[string]any{"artifact_type": "document", "recipients": []string{"captain@yacht"}},
			setupMocks: func(m *serviceMocks.MockExportService) {
				m.On("Export", mock.Anything, alice, "d1", model.ArtifactDocument, []string{"captain@yacht"}).
					Return(&model.Export{ID: "x1"}, &model.Draft{ID: "d1", State: model.StateExported}, nil).Once()
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "unsigned draft",
			body: map[string]any{"artifact_type": "message"},
			setupMocks: func(m *serviceMocks.MockExportService) {
				m.On("Export", mock.Anything, alice, "d1", model.ArtifactMessage, []string(nil)).
					Return(nil, &model.Draft{ID: "d1", State: model.StateAccepted}, &workflow.TransitionError{
						DraftID: "d1", Event: workflow.EventExport, From: model.StateAccepted, Err: workflow.ErrCannotExport,
					}).Once()
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "INVALID_TRANSITION",
		},
		{
			name: "render failure is retryable",
			body: map[string]any{"artifact_type": "printable"},
			setupMocks: func(m *serviceMocks.MockExportService) {
				m.On("Export", mock.Anything, alice, "d1", model.ArtifactPrintable, []string(nil)).
					Return(nil, signed, errors.New("render printable: template exploded")).Once()
			},
			wantStatus: http.StatusBadGateway,
			wantCode:   "EXPORT_FAILED",
		},
		{
			name:       "unknown artifact type",
			body:       map[string]any{"artifact_type": "fax"},
			setupMocks: func(m *serviceMocks.MockExportService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(serviceMocks.MockExportService)
			tt.setupMocks(mockSvc)
			app := newApp()
			app.Post("/drafts/:id/exports", ExportDraft(mockSvc))

			resp, _ := app.Test(jsonRequest(http.MethodPost, "/drafts/d1/exports", tt.body))

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantCode != "" {
				payload := decodeError(t, resp)
				assert.Equal(t, tt.wantCode, payload.Error.Code)
				assert.NotContains(t, payload.Error.Message, "template exploded")
			} else {
				var res exportResponse
				json.NewDecoder(resp.Body).Decode(&res)
				assert.Equal(t, "x1", res.Export.ID)
				assert.Equal(t, model.StateExported, res.Draft.State)
			}
			mockSvc.AssertExpectations(t)
		})
	}
}

func TestExportLookups(t *testing.T) {
	mockSvc := new(serviceMocks.MockExportService)
	app := newApp()
	app.Get("/exports/:id/download", DownloadExport(mockSvc))
	app.Get("/exports/:id/verify", VerifyExport(mockSvc))

	t.Run("download url", func(t *testing.T) {
		mockSvc.On("DownloadURL", mock.Anything, alice, "x1").Return("https://minio/handover/x1?sig=abc", nil).Once()

		resp, _ := app.Test(jsonRequest(http.MethodGet, "/exports/x1/download", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "https://minio/handover/x1?sig=abc", body["url"])
	})

	t.Run("verify not found", func(t *testing.T) {
		mockSvc.On("Verify", mock.Anything, alice, "nope").Return(nil, service.ErrNotFound).Once()

		resp, _ := app.Test(jsonRequest(http.MethodGet, "/exports/nope/verify", nil))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
	})

	t.Run("verify", func(t *testing.T) {
		mockSvc.On("Verify", mock.Anything, alice, "x1").Return(&service.VerifyResult{ExportID: "x1", Valid: true}, nil).Once()

		resp, _ := app.Test(jsonRequest(http.MethodGet, "/exports/x1/verify", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var res service.VerifyResult
		json.NewDecoder(resp.Body).Decode(&res)
		assert.True(t, res.Valid)
	})

	mockSvc.AssertExpectations(t)
}

func TestRegisterRoutes(t *testing.T) {
	drafts := new(serviceMocks.MockDraftService)
	audit := new(serviceMocks.MockAuditService)
	app := newApp()
	RegisterRoutes(app, PingerFunc(func(context.Context) error { return nil }), Services{
		Entries: new(serviceMocks.MockEntryService),
		Drafts:  drafts,
		Exports: new(serviceMocks.MockExportService),
		Audit:   audit,
	})

	drafts.On("OpenReview", mock.Anything, alice, "d1").Return(&model.Draft{ID: "d1", State: model.StateInReview}, nil).Once()
	audit.On("DraftTrail", mock.Anything, alice, "d1").Return([]model.AuditEvent{{Kind: model.AuditTransition}}, nil).Once()

	resp, _ := app.Test(jsonRequest(http.MethodPost, "/drafts/d1/open-review", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = app.Test(jsonRequest(http.MethodGet, "/drafts/d1/audit", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)

	drafts.AssertExpectations(t)
	audit.AssertExpectations(t)
}
