package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"handover/internal/database"
	"handover/internal/model"
	"handover/internal/repository"
)

const entryColumns = `id, tenant_id, department, created_at, author_id, author_role, narrative,
		entity_refs, source_refs, status, superseded_by, proposal_id,
		primary_domain, secondary_domains, bucket, owner_roles, risk_tags, primary_entity,
		taxonomy_version, classification_gap, unresolved_kinds`

const proposalColumns = `id, tenant_id, department, proposed_by, narrative, entity_refs, source_refs,
		status, entry_id, decided_by, decided_at, created_at`

func scanEntry(row rowScanner) (*model.Entry, error) {
	var e model.Entry
	var entityRefs, sourceRefs, secondary, owners, risks, primary, unresolved []byte
	var supersededBy, proposalID sql.NullString
	if err := row.Scan(
		&e.ID, &e.TenantID, &e.Department, &e.CreatedAt, &e.AuthorID, &e.AuthorRole, &e.Narrative,
		&entityRefs, &sourceRefs, &e.Status, &supersededBy, &proposalID,
		&e.PrimaryDomain, &secondary, &e.Bucket, &owners, &risks, &primary,
		&e.TaxonomyVersion, &e.Gap, &unresolved,
	); err != nil {
		return nil, err
	}
	e.SupersededBy = nullString(supersededBy)
	e.ProposalID = nullString(proposalID)
	for _, f := range []struct {
		b []byte
		v any
	}{
		{entityRefs, &e.EntityRefs},
		{sourceRefs, &e.SourceRefs},
		{secondary, &e.SecondaryDomains},
		{owners, &e.OwnerRoles},
		{risks, &e.RiskTags},
		{primary, &e.PrimaryEntity},
		{unresolved, &e.UnresolvedKinds},
	} {
		if err := decodeJSON(f.b, f.v); err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

func insertEntry(ctx context.Context, q querier, e *model.Entry) error {
	const stmt = `
		INSERT INTO entries (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb, $10, $11, $12,
			$13, $14::jsonb, $15, $16::jsonb, $17::jsonb, $18::jsonb, $19, $20, $21::jsonb)
	`
	var j jsonArgs
	args := []any{
		e.ID, e.TenantID, e.Department, e.CreatedAt, e.AuthorID, e.AuthorRole, e.Narrative,
		j.array(e.EntityRefs), j.array(e.SourceRefs), e.Status, strArg(e.SupersededBy), strArg(e.ProposalID),
		e.PrimaryDomain, j.array(e.SecondaryDomains), e.Bucket, j.array(e.OwnerRoles), j.array(e.RiskTags), j.object(e.PrimaryEntity),
		e.TaxonomyVersion, e.Gap, j.array(e.UnresolvedKinds),
	}
	if j.err != nil {
		return fmt.Errorf("encode entry %s: %w", e.ID, j.err)
	}
	if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert entry %s: %w", e.ID, err)
	}
	return nil
}

func insertGap(ctx context.Context, q querier, g *model.ClassificationGap) error {
	const stmt = `
		INSERT INTO classification_gaps (id, tenant_id, entry_id, unresolved_kinds, taxonomy_version, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6)
	`
	var j jsonArgs
	kinds := j.array(g.UnresolvedKinds)
	if j.err != nil {
		return j.err
	}
	if _, err := q.ExecContext(ctx, stmt, g.ID, g.TenantID, g.EntryID, kinds, g.TaxonomyVersion, g.CreatedAt); err != nil {
		return fmt.Errorf("insert classification gap: %w", err)
	}
	return nil
}

// CreateEntry inserts the entry and its optional classification gap in one transaction.
func (r *Store) CreateEntry(ctx context.Context, e *model.Entry, gap *model.ClassificationGap) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := insertEntry(ctx, tx, e); err != nil {
			return err
		}
		if gap != nil {
			return insertGap(ctx, tx, gap)
		}
		return nil
	})
}

// GetEntry fetches a single entry by its ID.
func (r *Store) GetEntry(ctx context.Context, id string) (*model.Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM entries WHERE id = $1`
	e, err := scanEntry(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, notFound(err, "entry", id)
	}
	return e, nil
}

// ListEntries returns entries matching the filter, oldest first.
func (r *Store) ListEntries(ctx context.Context, f repository.EntryFilter) ([]model.Entry, error) {
	where := []string{"tenant_id = $1"}
	args := []any{f.TenantID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Department != "" && f.Department != model.DepartmentAll {
		add("department = $%d", f.Department)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < $%d", f.To)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	q := `SELECT ` + entryColumns + ` FROM entries WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// AppendSourceRefs locks the entry, appends unseen references and returns the updated row.
func (r *Store) AppendSourceRefs(ctx context.Context, id string, refs []model.SourceRef) (*model.Entry, error) {
	var out *model.Entry
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		q := `SELECT ` + entryColumns + ` FROM entries WHERE id = $1 FOR UPDATE`
		e, err := scanEntry(tx.QueryRowContext(ctx, q, id))
		if err != nil {
			return notFound(err, "entry", id)
		}
		seen := make(map[string]bool, len(e.SourceRefs))
		for _, ref := range e.SourceRefs {
			seen[ref.Key()] = true
		}
		changed := false
		for _, ref := range refs {
			if seen[ref.Key()] {
				continue
			}
			seen[ref.Key()] = true
			e.SourceRefs = append(e.SourceRefs, ref)
			changed = true
		}
		out = e
		if !changed {
			return nil
		}
		var j jsonArgs
		payload := j.array(e.SourceRefs)
		if j.err != nil {
			return j.err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE entries SET source_refs = $2::jsonb WHERE id = $1`, id, payload); err != nil {
			return fmt.Errorf("append source refs to entry %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ResolvedEntryIDs reports which ids are the target of a "resolves" reference within the tenant.
func (r *Store) ResolvedEntryIDs(ctx context.Context, tenantID string, ids []string) (map[string]bool, error) {
	out := map[string]bool{}
	if len(ids) == 0 {
		return out, nil
	}
	const q = `
		SELECT DISTINCT ref->>'id'
		FROM entries e, jsonb_array_elements(e.source_refs) AS ref
		WHERE e.tenant_id = $1
		  AND ref->>'kind' = 'entry'
		  AND ref->>'relation' = 'resolves'
		  AND ref->>'id' IN (SELECT jsonb_array_elements_text($2::jsonb))
	`
	var j jsonArgs
	idList := j.array(ids)
	if j.err != nil {
		return nil, j.err
	}
	rows, err := r.db.QueryContext(ctx, q, tenantID, idList)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
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

// CreateCorrection records a misclassification report.
func (r *Store) CreateCorrection(ctx context.Context, c *model.CorrectionRequest) error {
	const q = `
		INSERT INTO correction_requests (id, tenant_id, entry_id, requested_by, current_domain, suggested_domain, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, q, c.ID, c.TenantID, c.EntryID, c.RequestedBy, c.CurrentDomain, c.SuggestedDomain, c.Note, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert correction request: %w", err)
	}
	return nil
}

func scanProposal(row rowScanner) (*model.EntryProposal, error) {
	var (
		p                   model.EntryProposal
		entityRefs, srcRefs []byte
		entryID, decidedBy  sql.NullString
		decidedAt           sql.NullTime
	)
	if err := row.Scan(
		&p.ID, &p.TenantID, &p.Department, &p.ProposedBy, &p.Narrative, &entityRefs, &srcRefs,
		&p.Status, &entryID, &decidedBy, &decidedAt, &p.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := decodeJSON(entityRefs, &p.EntityRefs); err != nil {
		return nil, fmt.Errorf("decode proposal %s: %w", p.ID, err)
	}
	if err := decodeJSON(srcRefs, &p.SourceRefs); err != nil {
		return nil, fmt.Errorf("decode proposal %s: %w", p.ID, err)
	}
	p.EntryID = nullString(entryID)
	p.DecidedBy = nullString(decidedBy)
	p.DecidedAt = nullTime(decidedAt)
	return &p, nil
}

// CreateProposal stores a pending system suggestion.
func (r *Store) CreateProposal(ctx context.Context, p *model.EntryProposal) error {
	const q = `
		INSERT INTO entry_proposals (` + proposalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $9, $10, $11, $12)
	`
	var j jsonArgs
	args := []any{
		p.ID, p.TenantID, p.Department, p.ProposedBy, p.Narrative, j.array(p.EntityRefs), j.array(p.SourceRefs),
		p.Status, strArg(p.EntryID), strArg(p.DecidedBy), timeArg(p.DecidedAt), p.CreatedAt,
	}
	if j.err != nil {
		return fmt.Errorf("encode proposal %s: %w", p.ID, j.err)
	}
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert proposal %s: %w", p.ID, err)
	}
	return nil
}

// GetProposal fetches a proposal by its ID.
func (r *Store) GetProposal(ctx context.Context, id string) (*model.EntryProposal, error) {
	q := `SELECT ` + proposalColumns + ` FROM entry_proposals WHERE id = $1`
	p, err := scanProposal(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, notFound(err, "proposal", id)
	}
	return p, nil
}

func decideProposal(ctx context.Context, tx *sql.Tx, p *model.EntryProposal) error {
	var status model.ProposalStatus
	err := tx.QueryRowContext(ctx, `SELECT status FROM entry_proposals WHERE id = $1 FOR UPDATE`, p.ID).Scan(&status)
	if err != nil {
		return notFound(err, "proposal", p.ID)
	}
	if status != model.ProposalPending {
		return repository.ErrProposalDecided
	}
	const q = `
		UPDATE entry_proposals
		SET status = $2, entry_id = $3, decided_by = $4, decided_at = $5
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, q, p.ID, p.Status, strArg(p.EntryID), strArg(p.DecidedBy), timeArg(p.DecidedAt)); err != nil {
		return fmt.Errorf("decide proposal %s: %w", p.ID, err)
	}
	return nil
}

// AcceptProposal marks the proposal accepted and inserts the entry it became.
func (r *Store) AcceptProposal(ctx context.Context, p *model.EntryProposal, e *model.Entry, gap *model.ClassificationGap) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := decideProposal(ctx, tx, p); err != nil {
			return err
		}
		if err := insertEntry(ctx, tx, e); err != nil {
			return err
		}
		if gap != nil {
			return insertGap(ctx, tx, gap)
		}
		return nil
	})
}

// DismissProposal marks the proposal dismissed; no entry is created.
func (r *Store) DismissProposal(ctx context.Context, p *model.EntryProposal) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return decideProposal(ctx, tx, p)
	})
}
