package postgres

import (
	"context"
	"database/sql"

	"handover/internal/model"
)

const editColumns = `id, draft_id, item_id, kind, original_text, edited_text, editor_id, merge_proposal_id, created_at`

func scanEdits(rows *sql.Rows) ([]model.DraftEdit, error) {
	defer rows.Close()
	out := make([]model.DraftEdit, 0)
	for rows.Next() {
		var e model.DraftEdit
		var proposal sql.NullString
		if err := rows.Scan(&e.ID, &e.DraftID, &e.ItemID, &e.Kind, &e.OriginalText, &e.EditedText, &e.EditorID, &proposal, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.MergeProposalID = nullString(proposal)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEdits returns a draft's edit history, oldest first.
func (r *Store) ListEdits(ctx context.Context, draftID string) ([]model.DraftEdit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+editColumns+` FROM draft_edits WHERE draft_id = $1 ORDER BY created_at, id`, draftID)
	if err != nil {
		return nil, err
	}
	return scanEdits(rows)
}

// ListEditsForEntry returns edits made to any item that carries the entry.
func (r *Store) ListEditsForEntry(ctx context.Context, entryID string) ([]model.DraftEdit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.draft_id, e.item_id, e.kind, e.original_text, e.edited_text, e.editor_id, e.merge_proposal_id, e.created_at
		FROM draft_edits e
		JOIN draft_items i ON i.id = e.item_id
		WHERE i.source_entry_ids @> jsonb_build_array($1::text)
		ORDER BY e.created_at, e.id`, entryID)
	if err != nil {
		return nil, err
	}
	return scanEdits(rows)
}

// ListTransitions returns a draft's state changes, oldest first.
func (r *Store) ListTransitions(ctx context.Context, draftID string) ([]model.Transition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, draft_id, from_state, to_state, event, actor_id, reason, created_at
		FROM draft_transitions WHERE draft_id = $1 ORDER BY created_at, id`, draftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Transition, 0)
	for rows.Next() {
		var t model.Transition
		if err := rows.Scan(&t.ID, &t.DraftID, &t.From, &t.To, &t.Event, &t.ActorID, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListSignoffs returns a draft's signoffs, oldest first.
func (r *Store) ListSignoffs(ctx context.Context, draftID string) ([]model.Signoff, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, draft_id, role, signer_id, confirmed, created_at
		FROM signoffs WHERE draft_id = $1 ORDER BY created_at, id`, draftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Signoff, 0)
	for rows.Next() {
		var s model.Signoff
		if err := rows.Scan(&s.ID, &s.DraftID, &s.Role, &s.SignerID, &s.Confirmed, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListExports returns a draft's exports, oldest first.
func (r *Store) ListExports(ctx context.Context, draftID string) ([]model.Export, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+exportColumns+` FROM exports WHERE draft_id = $1 ORDER BY created_at, id`, draftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Export, 0)
	for rows.Next() {
		x, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *x)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCorrections returns misclassification reports filed against an entry.
func (r *Store) ListCorrections(ctx context.Context, entryID string) ([]model.CorrectionRequest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, entry_id, requested_by, current_domain, suggested_domain, note, created_at
		FROM correction_requests WHERE entry_id = $1 ORDER BY created_at, id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.CorrectionRequest, 0)
	for rows.Next() {
		var c model.CorrectionRequest
		if err := rows.Scan(&c.ID, &c.TenantID, &c.EntryID, &c.RequestedBy, &c.CurrentDomain, &c.SuggestedDomain, &c.Note, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
