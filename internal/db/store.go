package db

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/microcosm-cc/bluemonday"
	"github.com/pgvector/pgvector-go"

	"github.com/openkala/callboard/internal/models"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// Store persists opportunities and scan runs.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ListParams filters and orders opportunity listings.
type ListParams struct {
	Query          string
	QueryEmbedding []float32
	Status         string // draft, published, rejected, removed, or "all"
	Type           string
	Scope          string
	ActiveOnly     bool   // published with a future or unknown deadline
	MaxDaysLeft    int    // 0 means no ceiling
	SortBy         string // "deadline", "newest", "confidence"; default is relevance
	Limit          int
	Offset         int
}

type ListResult struct {
	Opportunities []models.Opportunity `json:"opportunities"`
	Total         int                  `json:"total"`
	Limit         int                  `json:"limit"`
	Offset        int                  `json:"offset"`
}

const selectCols = `id, title, organizer, deadline, deadline_date, grant_or_prize,
	type, scope, description, eligibility, application_fee, website,
	status, tier, source_model, source_query, source_urls, discovered_at,
	confidence, reasoning, instagram_caption, created_at, updated_at`

// days_left is stored for external consumers but never trusted on reads;
// scanOpportunity recomputes it from deadline_date every time.
func scanOpportunity(scan func(dest ...any) error, now time.Time) (models.Opportunity, error) {
	var o models.Opportunity
	err := scan(
		&o.ID, &o.Title, &o.Organizer, &o.Deadline, &o.DeadlineDate, &o.GrantOrPrize,
		&o.Type, &o.Scope, &o.Description, &o.Eligibility, &o.ApplicationFee, &o.Website,
		&o.Status, &o.Tier, &o.SourceModel, &o.SourceQuery, &o.SourceURLs, &o.DiscoveredAt,
		&o.Confidence, &o.Reasoning, &o.InstagramCaption, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.RefreshDaysLeft(now)
	return o, nil
}

// A deadline later today still counts as active, matching models.DaysUntil
// rounding up to zero.
const activeClause = " AND status = 'published' AND (deadline_date IS NULL OR deadline_date >= date_trunc('day', NOW()))"

func buildListWhere(params ListParams) (string, []any) {
	where := "WHERE 1=1"
	var args []any
	argIdx := 1

	if params.ActiveOnly {
		where += activeClause
	} else if params.Status != "" && params.Status != "all" {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, params.Status)
		argIdx++
	}

	if params.Type != "" {
		where += fmt.Sprintf(" AND type = $%d", argIdx)
		args = append(args, params.Type)
		argIdx++
	}
	if params.Scope != "" {
		where += fmt.Sprintf(" AND scope = $%d", argIdx)
		args = append(args, params.Scope)
		argIdx++
	}
	if params.Query != "" {
		where += fmt.Sprintf(" AND (search_vector @@ plainto_tsquery('english', $%d) OR title ILIKE '%%' || $%d || '%%')", argIdx, argIdx)
		args = append(args, params.Query)
		argIdx++
	}
	if params.MaxDaysLeft > 0 {
		where += fmt.Sprintf(" AND deadline_date IS NOT NULL AND deadline_date <= NOW() + ($%d * INTERVAL '1 day')", argIdx)
		args = append(args, params.MaxDaysLeft)
		argIdx++
	}

	return where, args
}

func listOrderClause(params ListParams, argIdx int) (string, []any) {
	switch params.SortBy {
	case "deadline":
		return " ORDER BY deadline_date ASC NULLS LAST, created_at DESC", nil
	case "newest":
		return " ORDER BY created_at DESC", nil
	case "confidence":
		return " ORDER BY confidence DESC, created_at DESC", nil
	}

	if len(params.QueryEmbedding) > 0 {
		clause := fmt.Sprintf(`
			ORDER BY
				CASE WHEN embedding IS NULL THEN 1 ELSE 0 END ASC,
				COALESCE(1 - (embedding <=> $%d), -1) DESC,
				created_at DESC`, argIdx)
		return clause, []any{pgvector.NewVector(params.QueryEmbedding)}
	}
	if params.Query != "" {
		clause := fmt.Sprintf(" ORDER BY ts_rank(search_vector, plainto_tsquery('english', $%d)) DESC, created_at DESC", argIdx)
		return clause, []any{params.Query}
	}
	return " ORDER BY deadline_date ASC NULLS LAST, created_at DESC", nil
}

func (s *Store) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}

	where, args := buildListWhere(params)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM opportunities "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting opportunities: %w", err)
	}

	order, orderArgs := listOrderClause(params, len(args)+1)
	args = append(args, orderArgs...)

	sql := fmt.Sprintf("SELECT %s FROM opportunities %s%s LIMIT $%d OFFSET $%d",
		selectCols, where, order, len(args)+1, len(args)+2)
	args = append(args, params.Limit, params.Offset)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing opportunities: %w", err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	opps := []models.Opportunity{}
	for rows.Next() {
		o, err := scanOpportunity(rows.Scan, now)
		if err != nil {
			return nil, fmt.Errorf("scanning opportunity: %w", err)
		}
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating opportunities: %w", err)
	}

	return &ListResult{
		Opportunities: opps,
		Total:         total,
		Limit:         params.Limit,
		Offset:        params.Offset,
	}, nil
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*models.Opportunity, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM opportunities WHERE id = $1", selectCols), id)
	o, err := scanOpportunity(row.Scan, time.Now().UTC())
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading opportunity %s: %w", id, err)
	}
	return &o, nil
}

// Exists reports whether a record with the same title (case-insensitive) or
// the same website is already stored, in any status. Rejected records count
// too, so a rejected title cannot come back as a fresh draft. Blank
// arguments never match, so a URL-only lookup passes an empty title.
func (s *Store) Exists(ctx context.Context, title, website string) (bool, error) {
	var found bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM opportunities
			WHERE ($1 <> '' AND lower(title) = lower($1))
			   OR ($2 <> '' AND website = $2)
		)
	`, strings.TrimSpace(title), strings.TrimSpace(website)).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("checking for duplicate: %w", err)
	}
	return found, nil
}

// InsertDraft stores a freshly discovered record for operator review.
func (s *Store) InsertDraft(ctx context.Context, o *models.Opportunity) error {
	if o.Status == "" {
		o.Status = models.StatusDraft
	}
	if o.Tier == "" {
		o.Tier = models.TierAIDraft
	}
	return s.insert(ctx, o)
}

// InsertPublished stores an operator-authored record that skips review.
func (s *Store) InsertPublished(ctx context.Context, o *models.Opportunity) error {
	o.Status = models.StatusPublished
	if o.Tier == "" {
		o.Tier = models.TierPlatformVerified
	}
	return s.insert(ctx, o)
}

func (s *Store) insert(ctx context.Context, o *models.Opportunity) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Type == "" {
		o.Type = models.TypeGrant
	}
	if o.Scope == "" {
		o.Scope = models.ScopeInternational
	}
	sanitizeRecord(o)

	err := s.pool.QueryRow(ctx, `
		INSERT INTO opportunities (
			id, title, organizer, deadline, deadline_date, days_left,
			grant_or_prize, type, scope, description, eligibility, application_fee,
			website, status, tier, source_model, source_query, source_urls,
			discovered_at, confidence, reasoning, instagram_caption
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22
		)
		ON CONFLICT (lower(title)) DO NOTHING
		RETURNING created_at, updated_at
	`,
		o.ID, o.Title, o.Organizer, o.Deadline, o.DeadlineDate, o.DaysLeft,
		o.GrantOrPrize, o.Type, o.Scope, o.Description, o.Eligibility, o.ApplicationFee,
		o.Website, o.Status, o.Tier, o.SourceModel, o.SourceQuery, o.SourceURLs,
		o.DiscoveredAt, o.Confidence, o.Reasoning, o.InstagramCaption,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost a title race: an identical record landed first. Nothing to do.
		return nil
	}
	if err != nil {
		return fmt.Errorf("inserting %q: %w", o.Title, err)
	}
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	if !models.IsValidStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}
	tag, err := s.pool.Exec(ctx,
		"UPDATE opportunities SET status = $2, updated_at = NOW() WHERE id = $1", id, status)
	if err != nil {
		return fmt.Errorf("updating status of %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWhere removes records in the given status last touched before the
// cutoff and returns the count. Sweeping old rejected rows is deliberate
// forgetting; the duplicate guard only needs recent ones.
func (s *Store) DeleteWhere(ctx context.Context, status string, before time.Time) (int64, error) {
	if !models.IsValidStatus(status) {
		return 0, fmt.Errorf("invalid status %q", status)
	}
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM opportunities WHERE status = $1 AND updated_at < $2", status, before)
	if err != nil {
		return 0, fmt.Errorf("deleting %s records: %w", status, err)
	}
	return tag.RowsAffected(), nil
}

// MarkExpired flips published records whose deadline has passed to removed
// and returns the count.
func (s *Store) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE opportunities
		SET status = $1, updated_at = NOW()
		WHERE status = $2
		  AND deadline_date IS NOT NULL
		  AND deadline_date < date_trunc('day', $3::timestamptz)
	`, models.StatusRemoved, models.StatusPublished, now)
	if err != nil {
		return 0, fmt.Errorf("expiring opportunities: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) RecentRejectedTitles(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		"SELECT title FROM opportunities WHERE status = $1 ORDER BY updated_at DESC LIMIT $2",
		models.StatusRejected, limit)
	if err != nil {
		return nil, fmt.Errorf("loading rejected titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scanning rejected title: %w", err)
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

func (s *Store) UpdateEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE opportunities SET embedding = $2, updated_at = NOW() WHERE id = $1",
		id, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("storing embedding for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MissingEmbeddings returns records without an embedding, oldest first.
func (s *Store) MissingEmbeddings(ctx context.Context, limit int) ([]models.Opportunity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		"SELECT %s FROM opportunities WHERE embedding IS NULL AND status <> $1 ORDER BY created_at ASC LIMIT $2",
		selectCols), models.StatusRemoved, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unembedded opportunities: %w", err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	var opps []models.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows.Scan, now)
		if err != nil {
			return nil, fmt.Errorf("scanning opportunity: %w", err)
		}
		opps = append(opps, o)
	}
	return opps, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (map[string]any, error) {
	stats := make(map[string]any)

	byStatus := map[string]int{}
	rows, err := s.pool.Query(ctx, "SELECT status, COUNT(*) FROM opportunities GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("counting by status: %w", err)
	}
	for rows.Next() {
		var status string
		var count int
		if scanErr := rows.Scan(&status, &count); scanErr == nil {
			byStatus[status] = count
		}
	}
	rows.Close()
	stats["by_status"] = byStatus

	byType := map[string]int{}
	rows, err = s.pool.Query(ctx,
		"SELECT type, COUNT(*) FROM opportunities WHERE status = $1 GROUP BY type", models.StatusPublished)
	if err == nil {
		for rows.Next() {
			var typ string
			var count int
			if scanErr := rows.Scan(&typ, &count); scanErr == nil {
				byType[typ] = count
			}
		}
		rows.Close()
	}
	stats["published_by_type"] = byType

	var closingSoon int
	s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM opportunities
		WHERE status = 'published'
		  AND deadline_date BETWEEN NOW() AND NOW() + INTERVAL '7 days'
	`).Scan(&closingSoon)
	stats["closing_this_week"] = closingSoon

	var lastScan *time.Time
	s.pool.QueryRow(ctx, "SELECT MAX(started_at) FROM scan_runs").Scan(&lastScan)
	if lastScan != nil {
		stats["last_scan_at"] = lastScan.UTC()
	}

	return stats, nil
}

func (s *Store) CreateScanRun(ctx context.Context, run *models.ScanRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = models.RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		"INSERT INTO scan_runs (id, mode, status, started_at) VALUES ($1, $2, $3, $4)",
		run.ID, run.Mode, run.Status, run.StartedAt)
	if err != nil {
		return fmt.Errorf("creating scan run: %w", err)
	}
	return nil
}

func (s *Store) FinishScanRun(ctx context.Context, run *models.ScanRun) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scan_runs SET
			status = $2,
			keywords = $3,
			candidates = $4,
			fetched = $5,
			evaluated = $6,
			accepted = $7,
			duplicates = $8,
			rejected = $9,
			errors = $10,
			completed_at = $11
		WHERE id = $1
	`, run.ID, run.Status, run.Keywords, run.Candidates, run.Fetched,
		run.Evaluated, run.Accepted, run.Duplicates, run.Rejected, run.Errors,
		run.CompletedAt)
	if err != nil {
		return fmt.Errorf("closing scan run %s: %w", run.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const runCols = `id, mode, status, keywords, candidates, fetched, evaluated,
	accepted, duplicates, rejected, errors, started_at, completed_at`

func scanRun(scan func(dest ...any) error) (models.ScanRun, error) {
	var r models.ScanRun
	err := scan(
		&r.ID, &r.Mode, &r.Status, &r.Keywords, &r.Candidates, &r.Fetched, &r.Evaluated,
		&r.Accepted, &r.Duplicates, &r.Rejected, &r.Errors, &r.StartedAt, &r.CompletedAt,
	)
	return r, err
}

func (s *Store) ListScanRuns(ctx context.Context, limit int) ([]models.ScanRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		"SELECT %s FROM scan_runs ORDER BY started_at DESC LIMIT $1", runCols), limit)
	if err != nil {
		return nil, fmt.Errorf("listing scan runs: %w", err)
	}
	defer rows.Close()

	runs := []models.ScanRun{}
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *Store) GetScanRun(ctx context.Context, id uuid.UUID) (*models.ScanRun, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM scan_runs WHERE id = $1", runCols), id)
	r, err := scanRun(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading scan run %s: %w", id, err)
	}
	return &r, nil
}

var sanitizer = bluemonday.StrictPolicy()

// cleanField strips any markup that survived extraction, then restores the
// plain-text entities the sanitizer escaped.
func cleanField(s string) string {
	return strings.TrimSpace(html.UnescapeString(sanitizer.Sanitize(s)))
}

func sanitizeRecord(o *models.Opportunity) {
	o.Title = cleanField(o.Title)
	o.Organizer = cleanField(o.Organizer)
	o.GrantOrPrize = cleanField(o.GrantOrPrize)
	o.Description = cleanField(o.Description)
	o.InstagramCaption = cleanField(o.InstagramCaption)
	for i, e := range o.Eligibility {
		o.Eligibility[i] = cleanField(e)
	}
	if o.Eligibility == nil {
		o.Eligibility = []string{}
	}
	if o.SourceURLs == nil {
		o.SourceURLs = []string{}
	}
}
