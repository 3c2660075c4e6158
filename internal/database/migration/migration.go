package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type migrationStep struct {
	Name string
	SQL  string
}

// SentinelTable is checked to decide whether the schema exists.
const SentinelTable = "public.drafts"

var steps = []migrationStep{
	{
		Name: "create_extension_uuid_ossp",
		SQL:  `CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	},
	{
		Name: "create_function_reject_mutation",
		SQL: `CREATE OR REPLACE FUNCTION reject_mutation() RETURNS trigger AS $$
BEGIN
  RAISE EXCEPTION '% is append-only', TG_TABLE_NAME;
END;
$$ LANGUAGE plpgsql;`,
	},
	{
		Name: "create_table_entry_proposals",
		SQL: `CREATE TABLE IF NOT EXISTS entry_proposals (
  id          UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  tenant_id   TEXT        NOT NULL,
  department  TEXT        NOT NULL,
  proposed_by TEXT        NOT NULL,
  narrative   TEXT        NOT NULL,
  entity_refs JSONB       NOT NULL DEFAULT '[]',
  source_refs JSONB       NOT NULL DEFAULT '[]',
  status      TEXT        NOT NULL CHECK (status IN ('pending','accepted','dismissed')),
  entry_id    UUID,
  decided_by  TEXT,
  decided_at  TIMESTAMPTZ,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_entries",
		SQL: `CREATE TABLE IF NOT EXISTS entries (
  id                 UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  tenant_id          TEXT        NOT NULL,
  department         TEXT        NOT NULL,
  created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
  author_id          TEXT        NOT NULL,
  author_role        TEXT        NOT NULL,
  narrative          TEXT        NOT NULL,
  entity_refs        JSONB       NOT NULL DEFAULT '[]',
  source_refs        JSONB       NOT NULL DEFAULT '[]',
  status             TEXT        NOT NULL CHECK (status IN ('candidate','drafted','superseded')),
  superseded_by      UUID        REFERENCES entries(id),
  proposal_id        UUID        REFERENCES entry_proposals(id),
  primary_domain     TEXT        NOT NULL,
  secondary_domains  JSONB       NOT NULL DEFAULT '[]',
  bucket             TEXT        NOT NULL,
  owner_roles        JSONB       NOT NULL DEFAULT '[]',
  risk_tags          JSONB       NOT NULL DEFAULT '[]',
  primary_entity     JSONB,
  taxonomy_version   TEXT        NOT NULL,
  classification_gap BOOLEAN     NOT NULL DEFAULT false,
  unresolved_kinds   JSONB       NOT NULL DEFAULT '[]'
);`,
	},
	{
		Name: "create_index_entries_pool",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_entries_pool ON entries (tenant_id, department, status, created_at);`,
	},
	{
		Name: "create_trigger_entries_immutable",
		SQL: `CREATE OR REPLACE FUNCTION entries_guard() RETURNS trigger AS $$
BEGIN
  IF TG_OP = 'DELETE' THEN
    RAISE EXCEPTION 'entries are never deleted';
  END IF;
  IF NEW.narrative IS DISTINCT FROM OLD.narrative
     OR NEW.entity_refs IS DISTINCT FROM OLD.entity_refs
     OR NEW.primary_domain IS DISTINCT FROM OLD.primary_domain
     OR NEW.bucket IS DISTINCT FROM OLD.bucket
     OR NEW.secondary_domains IS DISTINCT FROM OLD.secondary_domains THEN
    RAISE EXCEPTION 'entry % content and classification are immutable', OLD.id;
  END IF;
  IF NOT (NEW.source_refs @> OLD.source_refs) THEN
    RAISE EXCEPTION 'entry % source references are append-only', OLD.id;
  END IF;
  RETURN NEW;
END;
$$ LANGUAGE plpgsql;
DROP TRIGGER IF EXISTS trg_entries_guard ON entries;
CREATE TRIGGER trg_entries_guard BEFORE UPDATE OR DELETE ON entries
  FOR EACH ROW EXECUTE FUNCTION entries_guard();`,
	},
	{
		Name: "create_table_correction_requests",
		SQL: `CREATE TABLE IF NOT EXISTS correction_requests (
  id               UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  tenant_id        TEXT        NOT NULL,
  entry_id         UUID        NOT NULL REFERENCES entries(id),
  requested_by     TEXT        NOT NULL,
  current_domain   TEXT        NOT NULL,
  suggested_domain TEXT        NOT NULL,
  note             TEXT        NOT NULL DEFAULT '',
  created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
DROP TRIGGER IF EXISTS trg_correction_requests_append_only ON correction_requests;
CREATE TRIGGER trg_correction_requests_append_only BEFORE UPDATE OR DELETE ON correction_requests
  FOR EACH ROW EXECUTE FUNCTION reject_mutation();`,
	},
	{
		Name: "create_table_classification_gaps",
		SQL: `CREATE TABLE IF NOT EXISTS classification_gaps (
  id               UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  tenant_id        TEXT        NOT NULL,
  entry_id         UUID        NOT NULL REFERENCES entries(id),
  unresolved_kinds JSONB       NOT NULL DEFAULT '[]',
  taxonomy_version TEXT        NOT NULL,
  created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
DROP TRIGGER IF EXISTS trg_classification_gaps_append_only ON classification_gaps;
CREATE TRIGGER trg_classification_gaps_append_only BEFORE UPDATE OR DELETE ON classification_gaps
  FOR EACH ROW EXECUTE FUNCTION reject_mutation();`,
	},
	{
		Name: "create_table_drafts",
		SQL: `CREATE TABLE IF NOT EXISTS drafts (
  id                 UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  tenant_id          TEXT        NOT NULL,
  department         TEXT        NOT NULL,
  period_start       TIMESTAMPTZ NOT NULL,
  period_end         TIMESTAMPTZ NOT NULL,
  state              TEXT        NOT NULL CHECK (state IN ('DRAFT','IN_REVIEW','ACCEPTED','SIGNED','EXPORTED')),
  generation_method  TEXT        NOT NULL CHECK (generation_method IN ('generated','imported')),
  outgoing_signer_id TEXT,
  outgoing_signed_at TIMESTAMPTZ,
  incoming_signer_id TEXT,
  incoming_signed_at TIMESTAMPTZ,
  content_hash       TEXT,
  entry_count        INTEGER     NOT NULL CHECK (entry_count >= 0),
  created_by         TEXT        NOT NULL,
  created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
  last_activity_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
  archived_at        TIMESTAMPTZ,
  CHECK (period_end > period_start),
  CHECK (incoming_signer_id IS NULL OR incoming_signer_id <> outgoing_signer_id)
);`,
	},
	{
		Name: "create_index_drafts_active_scope",
		SQL: `CREATE UNIQUE INDEX IF NOT EXISTS uq_drafts_active_scope
  ON drafts (tenant_id, department, period_start, period_end)
  WHERE state IN ('DRAFT','IN_REVIEW','ACCEPTED') AND archived_at IS NULL;`,
	},
	{
		Name: "create_trigger_drafts_guard",
		SQL: `CREATE OR REPLACE FUNCTION drafts_guard() RETURNS trigger AS $$
BEGIN
  IF TG_OP = 'DELETE' THEN
    RAISE EXCEPTION 'drafts are never deleted';
  END IF;
  IF OLD.content_hash IS NOT NULL AND NEW.content_hash IS DISTINCT FROM OLD.content_hash THEN
    RAISE EXCEPTION 'draft % content hash is immutable', OLD.id;
  END IF;
  RETURN NEW;
END;
$$ LANGUAGE plpgsql;
DROP TRIGGER IF EXISTS trg_drafts_guard ON drafts;
CREATE TRIGGER trg_drafts_guard BEFORE UPDATE OR DELETE ON drafts
  FOR EACH ROW EXECUTE FUNCTION drafts_guard();`,
	},
	{
		Name: "create_table_draft_sections",
		SQL: `CREATE TABLE IF NOT EXISTS draft_sections (
  id            UUID    PRIMARY KEY DEFAULT uuid_generate_v4(),
  draft_id      UUID    NOT NULL REFERENCES drafts(id),
  bucket        TEXT    NOT NULL,
  display_order INTEGER NOT NULL,
  UNIQUE (draft_id, bucket)
);`,
	},
	{
		Name: "create_table_draft_items",
		SQL: `CREATE TABLE IF NOT EXISTS draft_items (
  id               UUID    PRIMARY KEY DEFAULT uuid_generate_v4(),
  draft_id         UUID    NOT NULL REFERENCES drafts(id),
  section_id       UUID    NOT NULL REFERENCES draft_sections(id),
  text             TEXT    NOT NULL,
  domain_code      TEXT    NOT NULL,
  risk_tag         TEXT    NOT NULL DEFAULT '',
  critical         BOOLEAN NOT NULL DEFAULT false,
  kind             TEXT    NOT NULL CHECK (kind IN ('entry','command')),
  status           TEXT    NOT NULL CHECK (status IN ('active','superseded')),
  source_entry_ids JSONB   NOT NULL CHECK (jsonb_array_length(source_entry_ids) > 0),
  display_order    INTEGER NOT NULL,
  superseded_by    UUID    REFERENCES draft_items(id)
);
CREATE INDEX IF NOT EXISTS idx_draft_items_draft ON draft_items (draft_id, section_id, display_order);`,
	},
	{
		Name: "create_trigger_draft_items_guard",
		SQL: `CREATE OR REPLACE FUNCTION draft_items_guard() RETURNS trigger AS $$
BEGIN
  IF TG_OP = 'DELETE' THEN
    RAISE EXCEPTION 'draft items are never deleted';
  END IF;
  IF NEW.domain_code IS DISTINCT FROM OLD.domain_code
     OR NEW.section_id IS DISTINCT FROM OLD.section_id
     OR NEW.kind IS DISTINCT FROM OLD.kind THEN
    RAISE EXCEPTION 'draft item % classification is immutable', OLD.id;
  END IF;
  IF NOT (NEW.source_entry_ids @> OLD.source_entry_ids) THEN
    RAISE EXCEPTION 'draft item % source entries are append-only', OLD.id USING ERRCODE = 'HO409';
  END IF;
  RETURN NEW;
END;
$$ LANGUAGE plpgsql;
DROP TRIGGER IF EXISTS trg_draft_items_guard ON draft_items;
CREATE TRIGGER trg_draft_items_guard BEFORE UPDATE OR DELETE ON draft_items
  FOR EACH ROW EXECUTE FUNCTION draft_items_guard();`,
	},
	{
		Name: "create_table_merge_proposals",
		SQL: `CREATE TABLE IF NOT EXISTS merge_proposals (
  id               UUID             PRIMARY KEY DEFAULT uuid_generate_v4(),
  draft_id         UUID             NOT NULL REFERENCES drafts(id),
  survivor_item_id UUID             NOT NULL REFERENCES draft_items(id),
  merged_item_id   UUID             NOT NULL REFERENCES draft_items(id),
  similarity       DOUBLE PRECISION NOT NULL,
  reason           TEXT             NOT NULL,
  status           TEXT             NOT NULL CHECK (status IN ('pending','accepted','dismissed')),
  decided_by       TEXT,
  decided_at       TIMESTAMPTZ,
  created_at       TIMESTAMPTZ      NOT NULL DEFAULT now(),
  CHECK (survivor_item_id <> merged_item_id)
);`,
	},
	{
		Name: "create_table_draft_edits",
		SQL: `CREATE TABLE IF NOT EXISTS draft_edits (
  id                UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  draft_id          UUID        NOT NULL REFERENCES drafts(id),
  item_id           UUID        NOT NULL REFERENCES draft_items(id),
  kind              TEXT        NOT NULL,
  original_text     TEXT        NOT NULL,
  edited_text       TEXT        NOT NULL,
  editor_id         TEXT        NOT NULL,
  merge_proposal_id UUID        REFERENCES merge_proposals(id),
  created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_draft_edits_draft ON draft_edits (draft_id, created_at);
DROP TRIGGER IF EXISTS trg_draft_edits_append_only ON draft_edits;
CREATE TRIGGER trg_draft_edits_append_only BEFORE UPDATE OR DELETE ON draft_edits
  FOR EACH ROW EXECUTE FUNCTION reject_mutation();`,
	},
	{
		Name: "create_table_signoffs",
		SQL: `CREATE TABLE IF NOT EXISTS signoffs (
  id         UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  draft_id   UUID        NOT NULL REFERENCES drafts(id),
  role       TEXT        NOT NULL CHECK (role IN ('outgoing','incoming')),
  signer_id  TEXT        NOT NULL,
  confirmed  BOOLEAN     NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
DROP TRIGGER IF EXISTS trg_signoffs_append_only ON signoffs;
CREATE TRIGGER trg_signoffs_append_only BEFORE UPDATE OR DELETE ON signoffs
  FOR EACH ROW EXECUTE FUNCTION reject_mutation();`,
	},
	{
		Name: "create_table_draft_transitions",
		SQL: `CREATE TABLE IF NOT EXISTS draft_transitions (
  id         UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  draft_id   UUID        NOT NULL REFERENCES drafts(id),
  from_state TEXT        NOT NULL,
  to_state   TEXT        NOT NULL,
  event      TEXT        NOT NULL,
  actor_id   TEXT        NOT NULL,
  reason     TEXT        NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
DROP TRIGGER IF EXISTS trg_draft_transitions_append_only ON draft_transitions;
CREATE TRIGGER trg_draft_transitions_append_only BEFORE UPDATE OR DELETE ON draft_transitions
  FOR EACH ROW EXECUTE FUNCTION reject_mutation();`,
	},
	{
		Name: "create_table_section_views",
		SQL: `CREATE TABLE IF NOT EXISTS section_views (
  draft_id   UUID        NOT NULL REFERENCES drafts(id),
  section_id UUID        NOT NULL REFERENCES draft_sections(id),
  user_id    TEXT        NOT NULL,
  viewed_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (draft_id, section_id, user_id)
);`,
	},
	{
		Name: "create_table_exports",
		SQL: `CREATE TABLE IF NOT EXISTS exports (
  id                UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  draft_id          UUID        NOT NULL REFERENCES drafts(id),
  tenant_id         TEXT        NOT NULL,
  artifact_type     TEXT        NOT NULL CHECK (artifact_type IN ('document','printable','message')),
  storage_key       TEXT        NOT NULL UNIQUE,
  content_type      TEXT        NOT NULL,
  size              BIGINT      NOT NULL CHECK (size >= 0),
  content_hash      TEXT        NOT NULL,
  artifact_checksum TEXT        NOT NULL,
  exporter_id       TEXT        NOT NULL,
  recipients        JSONB       NOT NULL DEFAULT '[]',
  created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_exports_draft ON exports (draft_id, created_at);
DROP TRIGGER IF EXISTS trg_exports_append_only ON exports;
CREATE TRIGGER trg_exports_append_only BEFORE UPDATE OR DELETE ON exports
  FOR EACH ROW EXECUTE FUNCTION reject_mutation();`,
	},
}

// EnsureMigrated checks if the sentinel table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, log logrus.FieldLogger, dbHost string) error {
	start := time.Now()
	log = log.WithFields(logrus.Fields{"component": "database", "db_host": dbHost})

	log.WithFields(logrus.Fields{"event": "db_migration_check", "status": "starting"}).Info("checking schema")

	var exists bool
	err := db.QueryRowContext(ctx, "SELECT to_regclass($1) IS NOT NULL", SentinelTable).Scan(&exists)
	if err != nil {
		log.WithFields(logrus.Fields{
			"event":       "db_migration_failed",
			"status":      "error",
			"duration_ms": time.Since(start).Milliseconds(),
		}).WithError(err).Error("failed to check sentinel table")
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.WithFields(logrus.Fields{
			"event":       "db_migration_skip",
			"status":      "success",
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("schema already exists, skipping migration")
		return nil
	}

	log.WithFields(logrus.Fields{"event": "db_migration_start", "status": "in_progress"}).Info("applying schema")

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.WithFields(logrus.Fields{
				"event":            "db_migration_failed",
				"status":           "error",
				"migration_step":   step.Name,
				"duration_ms":      time.Since(start).Milliseconds(),
				"step_duration_ms": time.Since(stepStart).Milliseconds(),
			}).WithError(err).Error("migration step failed")
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.WithFields(logrus.Fields{
			"event":            "db_migration_step",
			"status":           "success",
			"migration_step":   step.Name,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		}).Debug("migration step applied")
	}

	log.WithFields(logrus.Fields{
		"event":       "db_migration_success",
		"status":      "success",
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("schema migrated")

	return nil
}

// StepNames lists the migration steps in order.
func StepNames() []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.Name)
	}
	return out
}
