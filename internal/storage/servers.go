package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/woozymasta/mcwatch/internal/models"
)

// serverRow is the flat column layout of a server record. Variant fields are
// nullable and every upsert rewrites all of them.
type serverRow struct {
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
	Version        sql.NullString `db:"version"`
	Software       sql.NullString `db:"software"`
	Favicon        sql.NullString `db:"favicon"`
	Ping           sql.NullInt64  `db:"ping"`
	BedrockEdition sql.NullString `db:"bedrock_edition"`
	Gamemode       sql.NullString `db:"gamemode"`
	GUID           sql.NullString `db:"guid"`
	QueryIP        sql.NullString `db:"query_ip"`
	Plugins        sql.NullString `db:"plugins"`
	Map            sql.NullString `db:"map"`
	OwnerID        sql.NullInt64  `db:"owner_id"`
	Address        string         `db:"address"`
	Edition        string         `db:"edition"`
	MotdRaw        string         `db:"motd_raw"`
	MotdClean      string         `db:"motd_clean"`
	MotdHTML       string         `db:"motd_html"`
	Host           string         `db:"host"`
	ID             int64          `db:"id"`
	PlayersOnline  int            `db:"players_online"`
	PlayersMax     int            `db:"players_max"`
	Port           int            `db:"port"`
	Protocol       int            `db:"protocol"`
	Online         bool           `db:"online"`
}

const serverColumns = `id, address, edition, online, players_online, players_max,
	motd_raw, motd_clean, motd_html, version, host, port, protocol,
	software, favicon, ping, bedrock_edition, gamemode, guid,
	query_ip, plugins, map, owner_id, created_at, updated_at`

// FindServer returns the record stored under key, or nil when there is none.
func (r *Repository) FindServer(ctx context.Context, key models.Key) (*models.ServerRecord, error) {
	var row serverRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+serverColumns+` FROM servers WHERE address = ? AND edition = ?`,
		key.Address, string(key.Edition))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find server %s: %w", key, err)
	}

	return row.record()
}

// ServerByID returns the record with the given id, or nil when there is none.
func (r *Repository) ServerByID(ctx context.Context, id int64) (*models.ServerRecord, error) {
	var row serverRow
	err := r.db.GetContext(ctx, &row, `SELECT `+serverColumns+` FROM servers WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find server %d: %w", id, err)
	}

	return row.record()
}

// UpsertServer writes status as the current state of key in one statement.
// A new record gets now as both timestamps; an existing one keeps its id,
// created_at and owner and has every status column replaced.
func (r *Repository) UpsertServer(ctx context.Context, key models.Key, status models.Status, now time.Time) (*models.ServerRecord, error) {
	row, err := newServerRow(key, status, now.UTC())
	if err != nil {
		return nil, err
	}

	query, args, err := r.db.BindNamed(`
	INSERT INTO servers (
		address, edition, online, players_online, players_max,
		motd_raw, motd_clean, motd_html, version, host, port, protocol,
		software, favicon, ping, bedrock_edition, gamemode, guid,
		query_ip, plugins, map, created_at, updated_at
	)
	VALUES (
		:address, :edition, :online, :players_online, :players_max,
		:motd_raw, :motd_clean, :motd_html, :version, :host, :port, :protocol,
		:software, :favicon, :ping, :bedrock_edition, :gamemode, :guid,
		:query_ip, :plugins, :map, :created_at, :updated_at
	)
	ON CONFLICT(address, edition) DO UPDATE SET
		online          = excluded.online,
		players_online  = excluded.players_online,
		players_max     = excluded.players_max,
		motd_raw        = excluded.motd_raw,
		motd_clean      = excluded.motd_clean,
		motd_html       = excluded.motd_html,
		version         = excluded.version,
		host            = excluded.host,
		port            = excluded.port,
		protocol        = excluded.protocol,
		software        = excluded.software,
		favicon         = excluded.favicon,
		ping            = excluded.ping,
		bedrock_edition = excluded.bedrock_edition,
		gamemode        = excluded.gamemode,
		guid            = excluded.guid,
		query_ip        = excluded.query_ip,
		plugins         = excluded.plugins,
		map             = excluded.map,
		updated_at      = excluded.updated_at
	RETURNING id, created_at, owner_id
	`, row)
	if err != nil {
		return nil, fmt.Errorf("bind server upsert: %w", err)
	}

	var createdAt any
	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&row.ID, &createdAt, &row.OwnerID); err != nil {
		return nil, fmt.Errorf("upsert server %s: %w", key, err)
	}
	if row.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("upsert server %s: %w", key, err)
	}

	return row.record()
}

// ListServers returns a page of servers, most recently updated first.
func (r *Repository) ListServers(ctx context.Context, limit, offset int) ([]models.ServerSummary, error) {
	servers := []models.ServerSummary{}
	err := r.db.SelectContext(ctx, &servers, `
		SELECT id, address, edition, online, favicon
		FROM servers
		ORDER BY updated_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}

	return servers, nil
}

// CountServers returns the number of stored servers.
func (r *Repository) CountServers(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM servers`); err != nil {
		return 0, fmt.Errorf("count servers: %w", err)
	}
	return n, nil
}

// RefreshTargets returns every stored server with the mode it was last
// resolved in. Stored plugins mark a query-mode resolution.
func (r *Repository) RefreshTargets(ctx context.Context) ([]models.RefreshTarget, error) {
	var rows []struct {
		Address string `db:"address"`
		Edition string `db:"edition"`
		Query   bool   `db:"query"`
	}
	const q = `SELECT address, edition, plugins IS NOT NULL AS query FROM servers ORDER BY id`
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("list refresh targets: %w", err)
	}

	targets := make([]models.RefreshTarget, 0, len(rows))
	for _, row := range rows {
		targets = append(targets, models.RefreshTarget{
			Key:   models.Key{Address: row.Address, Edition: models.Edition(row.Edition)},
			Query: row.Query,
		})
	}
	return targets, nil
}

func newServerRow(key models.Key, status models.Status, now time.Time) (*serverRow, error) {
	row := &serverRow{
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       nullString(status.Version),
		Address:       key.Address,
		Edition:       string(key.Edition),
		MotdRaw:       status.Motd.Raw,
		MotdClean:     status.Motd.Clean,
		MotdHTML:      status.Motd.HTML,
		Host:          status.Host,
		PlayersOnline: status.Players.Online,
		PlayersMax:    status.Players.Max,
		Port:          status.Port,
		Protocol:      status.Protocol,
		Online:        status.Online,
	}

	if java := status.Java; java != nil {
		row.Software = nullString(java.Software)
		row.Favicon = nullString(java.Favicon)
		if java.Ping != nil {
			row.Ping = sql.NullInt64{Int64: *java.Ping, Valid: true}
		}
		if q := java.Query; q != nil {
			plugins := q.Plugins
			if plugins == nil {
				plugins = []string{}
			}
			data, err := json.Marshal(plugins)
			if err != nil {
				return nil, fmt.Errorf("encode plugins: %w", err)
			}
			row.QueryIP = sql.NullString{String: q.IP, Valid: true}
			row.Map = sql.NullString{String: q.Map, Valid: true}
			row.Plugins = sql.NullString{String: string(data), Valid: true}
		}
	}

	if bedrock := status.Bedrock; bedrock != nil {
		row.BedrockEdition = sql.NullString{String: bedrock.EditionName, Valid: true}
		row.Gamemode = sql.NullString{String: bedrock.Gamemode, Valid: true}
		row.GUID = sql.NullString{String: bedrock.GUID, Valid: true}
	}

	return row, nil
}

// record rebuilds the typed status from the flat columns.
func (row *serverRow) record() (*models.ServerRecord, error) {
	rec := &models.ServerRecord{
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
		Address:   row.Address,
		Edition:   models.Edition(row.Edition),
		ID:        row.ID,
		Status: models.Status{
			Version:  stringPtr(row.Version),
			Motd:     models.Motd{Raw: row.MotdRaw, Clean: row.MotdClean, HTML: row.MotdHTML},
			Host:     row.Host,
			Players:  models.Players{Online: row.PlayersOnline, Max: row.PlayersMax},
			Port:     row.Port,
			Protocol: row.Protocol,
			Online:   row.Online,
		},
	}
	if row.OwnerID.Valid {
		owner := row.OwnerID.Int64
		rec.OwnerID = &owner
	}

	switch rec.Edition {
	case models.EditionJava:
		java := &models.JavaFields{
			Software: stringPtr(row.Software),
			Favicon:  stringPtr(row.Favicon),
		}
		if row.Ping.Valid {
			ping := row.Ping.Int64
			java.Ping = &ping
		}
		if row.Plugins.Valid {
			q := &models.QueryFields{IP: row.QueryIP.String, Map: row.Map.String}
			if err := json.Unmarshal([]byte(row.Plugins.String), &q.Plugins); err != nil {
				return nil, fmt.Errorf("decode plugins of server %d: %w", row.ID, err)
			}
			if q.Plugins == nil {
				q.Plugins = []string{}
			}
			java.Query = q
		}
		rec.Java = java

	case models.EditionBedrock:
		rec.Bedrock = &models.BedrockFields{
			EditionName: row.BedrockEdition.String,
			Gamemode:    row.Gamemode.String,
			GUID:        row.GUID.String,
		}

	default:
		return nil, fmt.Errorf("server %d has unknown edition %q", row.ID, row.Edition)
	}

	return rec, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// sqliteTimeLayouts are the text layouts a timestamp may come back in when the
// driver cannot infer a DATETIME column type.
var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
}

func parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case []byte:
		return parseTime(string(t))
	case string:
		for _, layout := range sqliteTimeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", t)
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
	}
}
