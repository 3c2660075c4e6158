package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"handover/internal/database"
	"handover/internal/model"
	"handover/internal/repository"
)

const draftColumns = `id, tenant_id, department, period_start, period_end, state, generation_method,
		outgoing_signer_id, outgoing_signed_at, incoming_signer_id, incoming_signed_at, content_hash,
		entry_count, created_by, created_at, updated_at, last_activity_at, archived_at`

const itemColumns = `id, draft_id, section_id, text, domain_code, risk_tag, critical, kind, status,
		source_entry_ids, display_order, superseded_by`

const mergeColumns = `id, draft_id, survivor_item_id, merged_item_id, similarity, reason, status,
		decided_by, decided_at, created_at`

const exportColumns = `id, draft_id, tenant_id, artifact_type, storage_key, content_type, size,
		content_hash, artifact_checksum, exporter_id, recipients, created_at`

const activeStates = `('DRAFT','IN_REVIEW','ACCEPTED')`

func scanDraft(row rowScanner) (*model.Draft, error) {
	var d model.Draft
	var outSigner, inSigner, hash sql.NullString
	var outAt, inAt, archivedAt sql.NullTime
	if err := row.Scan(
		&d.ID, &d.TenantID, &d.Department, &d.PeriodStart, &d.PeriodEnd, &d.State, &d.GenerationMethod,
		&outSigner, &outAt, &inSigner, &inAt, &hash,
		&d.EntryCount, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt, &d.LastActivityAt, &archivedAt,
	); err != nil {
		return nil, err
	}
	d.OutgoingSignerID = nullString(outSigner)
	d.OutgoingSignedAt = nullTime(outAt)
	d.IncomingSignerID = nullString(inSigner)
	d.IncomingSignedAt = nullTime(inAt)
	d.ContentHash = nullString(hash)
	d.ArchivedAt = nullTime(archivedAt)
	return &d, nil
}

func scanItem(row rowScanner) (model.DraftItem, error) {
	var it model.DraftItem
	var sources []byte
	var supersededBy sql.NullString
	if err := row.Scan(
		&it.ID, &it.DraftID, &it.SectionID, &it.Text, &it.DomainCode, &it.RiskTag, &it.Critical, &it.Kind, &it.Status,
		&sources, &it.DisplayOrder, &supersededBy,
	); err != nil {
		return it, err
	}
	if err := decodeJSON(sources, &it.SourceEntryIDs); err != nil {
		return it, fmt.Errorf("decode item %s: %w", it.ID, err)
	}
	it.SupersededBy = nullString(supersededBy)
	return it, nil
}

func scanMerge(row rowScanner) (model.MergeProposal, error) {
	var m model.MergeProposal
	var decidedBy sql.NullString
	var decidedAt sql.NullTime
	if err := row.Scan(
		&m.ID, &m.DraftID, &m.SurvivorItemID, &m.MergedItemID, &m.Similarity, &m.Reason, &m.Status,
		&decidedBy, &decidedAt, &m.CreatedAt,
	); err != nil {
		return m, err
	}
	m.DecidedBy = nullString(decidedBy)
	m.DecidedAt = nullTime(decidedAt)
	return m, nil
}

func scanExport(row rowScanner) (*model.Export, error) {
	var x model.Export
	var recipients []byte
	if err := row.Scan(
		&x.ID, &x.DraftID, &x.TenantID, &x.ArtifactType, &x.StorageKey, &x.ContentType, &x.Size,
		&x.ContentHash, &x.ArtifactChecksum, &x.ExporterID, &recipients, &x.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := decodeJSON(recipients, &x.Recipients); err != nil {
		return nil, fmt.Errorf("decode export %s: %w", x.ID, err)
	}
	return &x, nil
}

func insertTransition(ctx context.Context, q querier, tr model.Transition) error {
	const stmt = `
		INSERT INTO draft_transitions (id, draft_id, from_state, to_state, event, actor_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := q.ExecContext(ctx, stmt, tr.ID, tr.DraftID, tr.From, tr.To, tr.Event, tr.ActorID, tr.Reason, tr.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

// FindActive returns the active, non-archived draft for the scope.
func (r *Store) FindActive(ctx context.Context, scope model.Scope) (*model.Draft, error) {
	q := `SELECT ` + draftColumns + ` FROM drafts
		WHERE tenant_id = $1 AND department = $2 AND period_start = $3 AND period_end = $4
		  AND state IN ` + activeStates + ` AND archived_at IS NULL
		LIMIT 1`
	d, err := scanDraft(r.db.QueryRowContext(ctx, q, scope.TenantID, scope.Department, scope.PeriodStart, scope.PeriodEnd))
	if err != nil {
		return nil, notFound(err, "active draft for", scope.TenantID+"/"+scope.Department)
	}
	return d, nil
}

// GetDraft loads the draft with its sections, items and merge proposals.
func (r *Store) GetDraft(ctx context.Context, id string) (*model.Draft, error) {
	d, err := scanDraft(r.db.QueryRowContext(ctx, `SELECT `+draftColumns+` FROM drafts WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "draft", id)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, draft_id, bucket, display_order FROM draft_sections WHERE draft_id = $1 ORDER BY display_order`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	index := map[string]int{}
	for rows.Next() {
		var s model.Section
		if err := rows.Scan(&s.ID, &s.DraftID, &s.Bucket, &s.DisplayOrder); err != nil {
			return nil, err
		}
		index[s.ID] = len(d.Sections)
		d.Sections = append(d.Sections, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemRows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM draft_items WHERE draft_id = $1 ORDER BY display_order, id`, id)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		it, err := scanItem(itemRows)
		if err != nil {
			return nil, err
		}
		i, ok := index[it.SectionID]
		if !ok {
			return nil, fmt.Errorf("item %s references unknown section %s", it.ID, it.SectionID)
		}
		d.Sections[i].Items = append(d.Sections[i].Items, it)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	mergeRows, err := r.db.QueryContext(ctx,
		`SELECT `+mergeColumns+` FROM merge_proposals WHERE draft_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		return nil, err
	}
	defer mergeRows.Close()
	for mergeRows.Next() {
		m, err := scanMerge(mergeRows)
		if err != nil {
			return nil, err
		}
		d.MergeProposals = append(d.MergeProposals, m)
	}
	if err := mergeRows.Err(); err != nil {
		return nil, err
	}
	return d, nil
}

// CreateDraft writes the draft, its sections, items and merge proposals, and moves the
// pooled entries to drafted, all in one transaction.
func (r *Store) CreateDraft(ctx context.Context, nd repository.NewDraft) error {
	d := nd.Draft
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		q := `INSERT INTO drafts (` + draftColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
		_, err := tx.ExecContext(ctx, q,
			d.ID, d.TenantID, d.Department, d.PeriodStart, d.PeriodEnd, d.State, d.GenerationMethod,
			strArg(d.OutgoingSignerID), timeArg(d.OutgoingSignedAt), strArg(d.IncomingSignerID), timeArg(d.IncomingSignedAt), strArg(d.ContentHash),
			d.EntryCount, d.CreatedBy, d.CreatedAt, d.UpdatedAt, d.LastActivityAt, timeArg(d.ArchivedAt),
		)
		if err != nil {
			if isUniqueViolation(err, activeScopeIndex) {
				return repository.ErrActiveScope
			}
			return fmt.Errorf("insert draft: %w", err)
		}

		for _, s := range d.Sections {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO draft_sections (id, draft_id, bucket, display_order) VALUES ($1, $2, $3, $4)`,
				s.ID, d.ID, s.Bucket, s.DisplayOrder)
			if err != nil {
				return fmt.Errorf("insert section %s: %w", s.Bucket, err)
			}
			for _, it := range s.Items {
				if err := insertItem(ctx, tx, it); err != nil {
					return err
				}
			}
		}

		for _, m := range nd.MergeProposals {
			q := `INSERT INTO merge_proposals (` + mergeColumns + `)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
			_, err := tx.ExecContext(ctx, q,
				m.ID, m.DraftID, m.SurvivorItemID, m.MergedItemID, m.Similarity, m.Reason, m.Status,
				strArg(m.DecidedBy), timeArg(m.DecidedAt), m.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert merge proposal: %w", err)
			}
		}

		if len(nd.EntryIDs) > 0 {
			var j jsonArgs
			ids := j.array(nd.EntryIDs)
			if j.err != nil {
				return j.err
			}
			res, err := tx.ExecContext(ctx, `
				UPDATE entries SET status = 'drafted'
				WHERE tenant_id = $1 AND status = 'candidate'
				  AND id IN (SELECT jsonb_array_elements_text($2::jsonb)::uuid)`,
				d.TenantID, ids)
			if err != nil {
				return fmt.Errorf("mark entries drafted: %w", err)
			}
			n, err := affected(res)
			if err != nil {
				return err
			}
			if n != int64(len(nd.EntryIDs)) {
				return fmt.Errorf("%w: %d of %d entries still candidates", repository.ErrEntriesChanged, n, len(nd.EntryIDs))
			}
		}

		return insertTransition(ctx, tx, nd.Transition)
	})
}

func insertItem(ctx context.Context, q querier, it model.DraftItem) error {
	const stmt = `INSERT INTO draft_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11, $12)`
	var j jsonArgs
	sources := j.array(it.SourceEntryIDs)
	if j.err != nil {
		return j.err
	}
	_, err := q.ExecContext(ctx, stmt,
		it.ID, it.DraftID, it.SectionID, it.Text, it.DomainCode, it.RiskTag, it.Critical, it.Kind, it.Status,
		sources, it.DisplayOrder, strArg(it.SupersededBy))
	if err != nil {
		return fmt.Errorf("insert item %s: %w", it.ID, err)
	}
	return nil
}

func lockDraft(ctx context.Context, tx *sql.Tx, id string) (model.DraftState, bool, error) {
	var state model.DraftState
	var archived bool
	err := tx.QueryRowContext(ctx,
		`SELECT state, archived_at IS NOT NULL FROM drafts WHERE id = $1 FOR UPDATE`, id).Scan(&state, &archived)
	if err != nil {
		return "", false, notFound(err, "draft", id)
	}
	return state, archived, nil
}

// ApplyReview writes item changes, edit history, a merge decision and superseded entries
// while holding the draft row lock.
func (r *Store) ApplyReview(ctx context.Context, ch repository.ReviewChange) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		state, archived, err := lockDraft(ctx, tx, ch.DraftID)
		if err != nil {
			return err
		}
		if archived || !state.Editable() {
			return repository.ErrStateChanged
		}

		for _, c := range ch.Items {
			if err := updateItem(ctx, tx, ch.DraftID, c); err != nil {
				return err
			}
		}

		if p := ch.Proposal; p != nil {
			res, err := tx.ExecContext(ctx, `
				UPDATE merge_proposals SET status = $3, decided_by = $4, decided_at = $5
				WHERE id = $1 AND draft_id = $2 AND status = 'pending'`,
				p.ID, ch.DraftID, p.Status, strArg(p.DecidedBy), timeArg(p.DecidedAt))
			if err != nil {
				return fmt.Errorf("decide merge proposal %s: %w", p.ID, err)
			}
			if n, err := affected(res); err != nil {
				return err
			} else if n == 0 {
				return repository.ErrProposalDecided
			}
		}

		superseded := make([]string, 0, len(ch.SupersededEntries))
		for id := range ch.SupersededEntries {
			superseded = append(superseded, id)
		}
		sort.Strings(superseded)
		for _, id := range superseded {
			_, err := tx.ExecContext(ctx,
				`UPDATE entries SET status = 'superseded', superseded_by = $2 WHERE id = $1`,
				id, ch.SupersededEntries[id])
			if err != nil {
				return fmt.Errorf("supersede entry %s: %w", id, err)
			}
		}

		for _, e := range ch.Edits {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO draft_edits (id, draft_id, item_id, kind, original_text, edited_text, editor_id, merge_proposal_id, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				e.ID, e.DraftID, e.ItemID, e.Kind, e.OriginalText, e.EditedText, e.EditorID, strArg(e.MergeProposalID), e.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert edit: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE drafts SET updated_at = $2, last_activity_at = $2 WHERE id = $1`, ch.DraftID, ch.At)
		if err != nil {
			return fmt.Errorf("touch draft: %w", err)
		}
		return nil
	})
}

// updateItem writes c.Next only while the row still holds c.Prior. Items are never
// deleted, so a miss means another review write got there first.
func updateItem(ctx context.Context, tx *sql.Tx, draftID string, c repository.ItemChange) error {
	var j jsonArgs
	next := j.array(c.Next.SourceEntryIDs)
	prior := j.array(c.Prior.SourceEntryIDs)
	if j.err != nil {
		return j.err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE draft_items
		SET text = $3, status = $4, source_entry_ids = $5::jsonb, superseded_by = $6
		WHERE id = $1 AND draft_id = $2
		  AND text = $7 AND status = $8 AND source_entry_ids = $9::jsonb
		  AND superseded_by IS NOT DISTINCT FROM $10`,
		c.Next.ID, draftID, c.Next.Text, c.Next.Status, next, strArg(c.Next.SupersededBy),
		c.Prior.Text, c.Prior.Status, prior, strArg(c.Prior.SupersededBy))
	if isItemGuardViolation(err) {
		return fmt.Errorf("%w: item %s", repository.ErrStateChanged, c.Next.ID)
	}
	if err != nil {
		return fmt.Errorf("update item %s: %w", c.Next.ID, err)
	}
	if n, err := affected(res); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("%w: item %s", repository.ErrStateChanged, c.Next.ID)
	}
	return nil
}

// ApplyTransition performs a guarded state change; zero matched rows means another
// writer got there first.
func (r *Store) ApplyTransition(ctx context.Context, ch repository.TransitionChange) error {
	tr := ch.Transition
	args := []any{tr.DraftID, tr.From, tr.To, tr.CreatedAt}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	sets := []string{"state = $3", "updated_at = $4", "last_activity_at = $4"}
	where := []string{"id = $1", "state = $2", "archived_at IS NULL"}
	if ch.SetOutgoing {
		sets = append(sets, "outgoing_signer_id = "+arg(tr.ActorID), "outgoing_signed_at = $4")
	}
	if ch.ClearOutgoing {
		sets = append(sets, "outgoing_signer_id = NULL", "outgoing_signed_at = NULL")
	}
	if ch.SetIncoming {
		p := arg(tr.ActorID)
		sets = append(sets, "incoming_signer_id = "+p, "incoming_signed_at = $4")
		where = append(where, "outgoing_signer_id IS DISTINCT FROM "+p)
	}
	if ch.ContentHash != nil {
		sets = append(sets, "content_hash = COALESCE(content_hash, "+arg(*ch.ContentHash)+")")
	}
	q := `UPDATE drafts SET ` + strings.Join(sets, ", ") + ` WHERE ` + strings.Join(where, " AND ")

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			if isUniqueViolation(err, activeScopeIndex) {
				return repository.ErrActiveScope
			}
			return fmt.Errorf("transition draft %s: %w", tr.DraftID, err)
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return repository.ErrStateChanged
		}
		if so := ch.Signoff; so != nil {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO signoffs (id, draft_id, role, signer_id, confirmed, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				so.ID, so.DraftID, so.Role, so.SignerID, so.Confirmed, so.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert signoff: %w", err)
			}
		}
		return insertTransition(ctx, tx, tr)
	})
}

// MarkSectionViewed records the first time a user viewed a section of the draft.
func (r *Store) MarkSectionViewed(ctx context.Context, v model.SectionView) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		// Reading counts as activity for the idle sweep.
		res, err := tx.ExecContext(ctx, `
			UPDATE drafts SET last_activity_at = GREATEST(last_activity_at, $3)
			WHERE id = $1 AND EXISTS (SELECT 1 FROM draft_sections WHERE id = $2 AND draft_id = $1)`,
			v.DraftID, v.SectionID, v.ViewedAt)
		if err != nil {
			return fmt.Errorf("touch draft: %w", err)
		}
		if n, err := affected(res); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("%w: section %s", repository.ErrNotFound, v.SectionID)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO section_views (draft_id, section_id, user_id, viewed_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (draft_id, section_id, user_id) DO NOTHING`,
			v.DraftID, v.SectionID, v.UserID, v.ViewedAt)
		if err != nil {
			return fmt.Errorf("record section view: %w", err)
		}
		return nil
	})
}

// ViewedSections returns the section IDs the user has viewed.
func (r *Store) ViewedSections(ctx context.Context, draftID, userID string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT section_id FROM section_views WHERE draft_id = $1 AND user_id = $2`, draftID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListActive returns active drafts, optionally for one tenant.
func (r *Store) ListActive(ctx context.Context, tenantID string) ([]model.Draft, error) {
	q := `SELECT ` + draftColumns + ` FROM drafts WHERE state IN ` + activeStates + ` AND archived_at IS NULL`
	var args []any
	if tenantID != "" {
		q += ` AND tenant_id = $1`
		args = append(args, tenantID)
	}
	q += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Draft, 0)
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Archive soft-archives an idle DRAFT and releases its entries back to the pool.
func (r *Store) Archive(ctx context.Context, draftID string, cutoff time.Time, tr model.Transition) (bool, error) {
	archived := false
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE drafts SET archived_at = $2, updated_at = $2
			WHERE id = $1 AND state = 'DRAFT' AND archived_at IS NULL AND last_activity_at <= $3`,
			draftID, tr.CreatedAt, cutoff)
		if err != nil {
			return fmt.Errorf("archive draft %s: %w", draftID, err)
		}
		n, err := affected(res)
		if err != nil || n == 0 {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE entries SET status = 'candidate'
			WHERE status = 'drafted'
			  AND id IN (SELECT jsonb_array_elements_text(i.source_entry_ids)::uuid FROM draft_items i WHERE i.draft_id = $1)`,
			draftID)
		if err != nil {
			return fmt.Errorf("release entries of draft %s: %w", draftID, err)
		}
		if err := insertTransition(ctx, tx, tr); err != nil {
			return err
		}
		archived = true
		return nil
	})
	return archived, err
}

// CreateExport records an export and advances a SIGNED draft to EXPORTED.
func (r *Store) CreateExport(ctx context.Context, ex *model.Export, tr model.Transition) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		state, _, err := lockDraft(ctx, tx, ex.DraftID)
		if err != nil {
			return err
		}
		if state != model.StateSigned && state != model.StateExported {
			return repository.ErrStateChanged
		}

		var j jsonArgs
		recipients := j.array(ex.Recipients)
		if j.err != nil {
			return j.err
		}
		q := `INSERT INTO exports (` + exportColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12)`
		_, err = tx.ExecContext(ctx, q,
			ex.ID, ex.DraftID, ex.TenantID, ex.ArtifactType, ex.StorageKey, ex.ContentType, ex.Size,
			ex.ContentHash, ex.ArtifactChecksum, ex.ExporterID, recipients, ex.CreatedAt)
		if err != nil {
			if isUniqueViolation(err, exportStorageKeyIdx) {
				return fmt.Errorf("export storage key %s already recorded: %w", ex.StorageKey, err)
			}
			return fmt.Errorf("insert export: %w", err)
		}

		if state != tr.From {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE drafts SET state = $2, updated_at = $3, last_activity_at = $3 WHERE id = $1`,
			ex.DraftID, tr.To, tr.CreatedAt)
		if err != nil {
			return fmt.Errorf("mark draft exported: %w", err)
		}
		return insertTransition(ctx, tx, tr)
	})
}

// GetExport fetches an export by its ID.
func (r *Store) GetExport(ctx context.Context, id string) (*model.Export, error) {
	x, err := scanExport(r.db.QueryRowContext(ctx, `SELECT `+exportColumns+` FROM exports WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "export", id)
	}
	return x, nil
}
