package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/woozymasta/mcwatch/internal/models"
)

// FindToken returns the token with the given secret, or nil when it does not exist.
func (r *Repository) FindToken(ctx context.Context, secret string) (*models.Token, error) {
	var t models.Token
	err := r.db.GetContext(ctx, &t, `SELECT id, token, name, created_at FROM tokens WHERE token = ?`, secret)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find token: %w", err)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

// CreateToken stores a new API token.
func (r *Repository) CreateToken(ctx context.Context, name, secret string, now time.Time) (*models.Token, error) {
	t := models.Token{CreatedAt: now.UTC(), Token: secret, Name: name}
	res, err := r.db.NamedExecContext(ctx,
		`INSERT INTO tokens (token, name, created_at) VALUES (:token, :name, :created_at)`, &t)
	if err != nil {
		return nil, fmt.Errorf("create token %q: %w", name, err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("create token %q: %w", name, err)
	}
	return &t, nil
}

// AppendCheck inserts c and sets its ID. Checks are never updated or deleted.
func (r *Repository) AppendCheck(ctx context.Context, c *models.Check) error {
	c.CheckedAt = c.CheckedAt.UTC()
	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO checks (server_id, online, players_online, source, client_ip, country_code, token_id, checked_at)
		VALUES (:server_id, :online, :players_online, :source, :client_ip, :country_code, :token_id, :checked_at)
	`, c)
	if err != nil {
		return fmt.Errorf("append check for server %d: %w", c.ServerID, err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("append check for server %d: %w", c.ServerID, err)
	}
	return nil
}

// RecentChecks returns checks of a server, newest first.
func (r *Repository) RecentChecks(ctx context.Context, serverID int64, limit, offset int) ([]models.Check, error) {
	checks := []models.Check{}
	err := r.db.SelectContext(ctx, &checks, `
		SELECT id, server_id, online, players_online, source, client_ip, country_code, token_id, checked_at
		FROM checks
		WHERE server_id = ?
		ORDER BY checked_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, serverID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("recent checks of server %d: %w", serverID, err)
	}
	for i := range checks {
		checks[i].CheckedAt = checks[i].CheckedAt.UTC()
	}
	return checks, nil
}

// CountChecks returns the number of checks across all servers.
func (r *Repository) CountChecks(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM checks`); err != nil {
		return 0, fmt.Errorf("count checks: %w", err)
	}
	return n, nil
}

// CountChecksSince counts checks of a server at or after since.
func (r *Repository) CountChecksSince(ctx context.Context, serverID int64, since time.Time) (int64, error) {
	return r.countRange(ctx, "checks", "checked_at", serverID, since, time.Time{})
}

// CountChecksBetween counts checks of a server in [from, to).
func (r *Repository) CountChecksBetween(ctx context.Context, serverID int64, from, to time.Time) (int64, error) {
	return r.countRange(ctx, "checks", "checked_at", serverID, from, to)
}

// AppendVote inserts v and sets its ID. Votes are never updated or deleted.
func (r *Repository) AppendVote(ctx context.Context, v *models.Vote) error {
	v.CreatedAt = v.CreatedAt.UTC()
	res, err := r.db.NamedExecContext(ctx,
		`INSERT INTO votes (server_id, user_id, created_at) VALUES (:server_id, :user_id, :created_at)`, v)
	if err != nil {
		return fmt.Errorf("append vote for server %d: %w", v.ServerID, err)
	}
	if v.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("append vote for server %d: %w", v.ServerID, err)
	}
	return nil
}

// CountVotesSince counts votes of a server at or after since.
func (r *Repository) CountVotesSince(ctx context.Context, serverID int64, since time.Time) (int64, error) {
	return r.countRange(ctx, "votes", "created_at", serverID, since, time.Time{})
}

// CountVotesBetween counts votes of a server in [from, to).
func (r *Repository) CountVotesBetween(ctx context.Context, serverID int64, from, to time.Time) (int64, error) {
	return r.countRange(ctx, "votes", "created_at", serverID, from, to)
}

// countRange counts rows of table for a server whose column falls in
// [from, to). A zero from or to leaves that side unbounded. table and column
// are never user input.
func (r *Repository) countRange(ctx context.Context, table, column string, serverID int64, from, to time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM ` + table + ` WHERE server_id = ?`
	args := []any{serverID}

	if !from.IsZero() {
		query += ` AND ` + column + ` >= ?`
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += ` AND ` + column + ` < ?`
		args = append(args, to.UTC())
	}

	var n int64
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count %s of server %d: %w", table, serverID, err)
	}
	return n, nil
}
