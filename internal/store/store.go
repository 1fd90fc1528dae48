// Package store is the relational persistence layer: discovered
// opportunities, user accounts, and bookmarks.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store wraps the Postgres connection.
type Store struct {
	DB *sql.DB
}

// NewWithDSN connects and pings.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

// Opportunity is the persisted projection of an extracted card. Only the
// fields this subsystem consumes are modeled.
type Opportunity struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Organization    string     `json:"organization,omitempty"`
	Category        string     `json:"category,omitempty"`
	OpportunityType string     `json:"opportunityType,omitempty"`
	URL             string     `json:"url,omitempty"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	Summary         string     `json:"summary,omitempty"`
	LocationType    string     `json:"locationType,omitempty"`
	Confidence      float64    `json:"confidence,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// UpsertOpportunity inserts or refreshes a card by id and reports whether a
// new row was created.
func (s *Store) UpsertOpportunity(ctx context.Context, op Opportunity) (bool, error) {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	var inserted bool
	err := s.DB.QueryRowContext(ctx, `
        INSERT INTO opportunities (id, title, organization, category, opportunity_type, url, deadline, summary, location_type, confidence, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW())
        ON CONFLICT (id) DO UPDATE SET
            title = EXCLUDED.title,
            organization = EXCLUDED.organization,
            category = EXCLUDED.category,
            opportunity_type = EXCLUDED.opportunity_type,
            url = EXCLUDED.url,
            deadline = EXCLUDED.deadline,
            summary = EXCLUDED.summary,
            location_type = EXCLUDED.location_type,
            confidence = EXCLUDED.confidence,
            updated_at = NOW()
        RETURNING (xmax = 0)`,
		op.ID, op.Title, nullStr(op.Organization), nullStr(op.Category), nullStr(op.OpportunityType),
		nullStr(op.URL), op.Deadline, nullStr(op.Summary), nullStr(op.LocationType), op.Confidence,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert opportunity %s: %w", op.ID, err)
	}
	return inserted, nil
}

// ListOpportunities returns recent cards, optionally filtered by free text
// (title/organization/summary ILIKE) and category.
func (s *Store) ListOpportunities(ctx context.Context, q, category string, limit int) ([]Opportunity, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	query := `SELECT id, title, COALESCE(organization,''), COALESCE(category,''), COALESCE(opportunity_type,''),
                     COALESCE(url,''), deadline, COALESCE(summary,''), COALESCE(location_type,''), confidence, created_at, updated_at
              FROM opportunities WHERE 1=1`
	args := []interface{}{}
	if q != "" {
		args = append(args, "%"+q+"%")
		p := fmt.Sprintf("$%d", len(args))
		query += fmt.Sprintf(" AND (title ILIKE %s OR organization ILIKE %s OR summary ILIKE %s)", p, p, p)
	}
	if category != "" {
		args = append(args, category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY updated_at DESC LIMIT $%d", len(args))

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	defer rows.Close()
	var out []Opportunity
	for rows.Next() {
		var op Opportunity
		if err := rows.Scan(&op.ID, &op.Title, &op.Organization, &op.Category, &op.OpportunityType,
			&op.URL, &op.Deadline, &op.Summary, &op.LocationType, &op.Confidence, &op.CreatedAt, &op.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// GetOpportunitiesByIDs fetches cards preserving the order of ids.
func (s *Store) GetOpportunitiesByIDs(ctx context.Context, ids []string) ([]Opportunity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.DB.QueryContext(ctx, `
        SELECT id, title, COALESCE(organization,''), COALESCE(category,''), COALESCE(opportunity_type,''),
               COALESCE(url,''), deadline, COALESCE(summary,''), COALESCE(location_type,''), confidence, created_at, updated_at
        FROM opportunities WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get opportunities: %w", err)
	}
	defer rows.Close()
	byID := make(map[string]Opportunity, len(ids))
	for rows.Next() {
		var op Opportunity
		if err := rows.Scan(&op.ID, &op.Title, &op.Organization, &op.Category, &op.OpportunityType,
			&op.URL, &op.Deadline, &op.Summary, &op.LocationType, &op.Confidence, &op.CreatedAt, &op.UpdatedAt); err != nil {
			return nil, err
		}
		byID[op.ID] = op
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]Opportunity, 0, len(byID))
	for _, id := range ids {
		if op, ok := byID[id]; ok {
			out = append(out, op)
		}
	}
	return out, nil
}

// ListCategories returns the distinct categories currently stored.
func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT DISTINCT category FROM opportunities WHERE category IS NOT NULL AND category <> '' ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecentOpportunityURLs returns URLs of cards not refreshed since the cutoff,
// feeding the batch recheck queue.
func (s *Store) RecentOpportunityURLs(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT url FROM opportunities WHERE url IS NOT NULL AND url <> '' AND updated_at < $1 ORDER BY updated_at ASC LIMIT $2`,
		olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list recheck urls: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CreateUser registers an account.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, NOW())`,
		uuid.NewString(), email, passwordHash)
	return err
}

// GetUserByEmail returns id and password hash for login.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (string, string, error) {
	var id, hash string
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email = $1`, email).Scan(&id, &hash)
	if err != nil {
		return "", "", err
	}
	return id, hash, nil
}

// CreateBookmark saves an opportunity for a user; duplicates are no-ops.
func (s *Store) CreateBookmark(ctx context.Context, userID, opportunityID string) error {
	_, err := s.DB.ExecContext(ctx, `
        INSERT INTO bookmarks (user_id, opportunity_id, created_at) VALUES ($1, $2, NOW())
        ON CONFLICT (user_id, opportunity_id) DO NOTHING`, userID, opportunityID)
	if err != nil {
		return fmt.Errorf("create bookmark: %w", err)
	}
	return nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
