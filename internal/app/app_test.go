package app

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handover/internal/config"
	"handover/internal/lock"
	"handover/internal/model"
	"handover/internal/service"
	"handover/internal/storage"
)

func memoryConfig() *config.AppConfig {
	return &config.AppConfig{
		StoreDriver: DriverMemory,
		Handover: config.HandoverConfig{
			MergeSimilarityThreshold: 0.3,
			HighRiskSeverity:         "SAFETY_CRITICAL",
			DraftArchiveAfterHours:   168,
			ReviewStaleAfterHours:    48,
			AcceptedStaleAfterHours:  24,
		},
	}
}

func TestNew_Memory(t *testing.T) {
	ctx := context.Background()
	log, hook := logtest.NewNullLogger()

	a, err := New(ctx, memoryConfig(), log, prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &storage.Memory{}, a.Objects)
	assert.IsType(t, &lock.Local{}, a.Locker)
	assert.NotNil(t, a.Metrics)
	assert.NoError(t, a.Ping(ctx))
	assert.Equal(t, "application wired", hook.LastEntry().Message)

	actor := model.Actor{UserID: "alice", TenantID: "t1"}
	e, err := a.Entries.Submit(ctx, actor, service.SubmitEntryInput{
		Department: "engineering",
		Narrative:  "Generator 2 tripped",
		EntityRefs: []model.EntityRef{{Kind: "generator", ID: "GEN-2"}},
	})
	require.NoError(t, err)

	d, err := a.Drafts.Generate(ctx, actor, service.GenerateInput{
		Department:  "engineering",
		PeriodStart: e.CreatedAt.Add(-time.Hour),
		PeriodEnd:   e.CreatedAt.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StateDraft, d.State)
}

func TestNew_Errors(t *testing.T) {
	log, _ := logtest.NewNullLogger()

	tests := []struct {
		name    string
		mutate  func(c *config.AppConfig)
		wantErr string
	}{
		{
			name:    "unknown driver",
			mutate:  func(c *config.AppConfig) { c.StoreDriver = "sqlite" },
			wantErr: `unknown store driver "sqlite"`,
		},
		{
			name:    "missing taxonomy file",
			mutate:  func(c *config.AppConfig) { c.Handover.TaxonomyPath = "/nonexistent/taxonomy.yaml" },
			wantErr: "load taxonomy",
		},
		{
			name:    "unknown high risk tag",
			mutate:  func(c *config.AppConfig) { c.Handover.HighRiskSeverity = "APOCALYPTIC" },
			wantErr: "configure assembler",
		},
		{
			name: "memory backends without metrics",
			mutate: func(c *config.AppConfig) {
				c.StoreDriver = DriverMemory
				c.MinIO.Bucket = "x"
				c.MinIO.Endpoint = ""
				c.Redis.Addr = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := memoryConfig()
			tt.mutate(cfg)
			a, err := New(context.Background(), cfg, log, nil)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Nil(t, a.Metrics)
				assert.NoError(t, a.Close())
				return
			}
			assert.Nil(t, a)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStaleConfig(t *testing.T) {
	got := StaleConfig(config.HandoverConfig{DraftArchiveAfterHours: 168, ReviewStaleAfterHours: 48, AcceptedStaleAfterHours: 24})
	assert.Equal(t, service.StaleConfig{
		ArchiveAfter:       7 * 24 * time.Hour,
		ReviewStaleAfter:   48 * time.Hour,
		AcceptedStaleAfter: 24 * time.Hour,
	}, got)
}
