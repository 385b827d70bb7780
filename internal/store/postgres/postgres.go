// Package postgres is the reference store.Store implementation:
// connection setup via database/sql + lib/pq, ExecContext/QueryContext
// throughout, wrapped errors, and schema managed by versioned
// migrations (internal/store/postgres/migrations, golang-migrate/v4)
// rather than an inline CREATE TABLE IF NOT EXISTS, since that approach
// has no down-migration story.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kairosodds/pulse/internal/pkg/models"
	"github.com/kairosodds/pulse/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store is the Postgres-backed implementation of store.Store.
type Store struct {
	db *sql.DB
}

// Open connects to dsn and verifies it with a ping. Schema is managed
// out of band by the migrations in this package's migrations/
// directory, not by this constructor.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) FetchTeams(ctx context.Context) ([]models.Team, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, standard_name, league_id FROM teams`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch teams: %w", err)
	}
	defer rows.Close()

	var out []models.Team
	for rows.Next() {
		var t models.Team
		if err := rows.Scan(&t.ID, &t.StandardName, &t.LeagueID); err != nil {
			return nil, fmt.Errorf("postgres: scan team: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) FetchAliases(ctx context.Context) ([]models.TeamAlias, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT team_id, alias_name, bookmaker_source FROM team_aliases`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch aliases: %w", err)
	}
	defer rows.Close()

	var out []models.TeamAlias
	for rows.Next() {
		var a models.TeamAlias
		if err := rows.Scan(&a.TeamID, &a.AliasName, &a.BookmakerSource); err != nil {
			return nil, fmt.Errorf("postgres: scan alias: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) FetchLeagues(ctx context.Context) ([]models.League, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, country, status FROM leagues`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch leagues: %w", err)
	}
	defer rows.Close()

	var out []models.League
	for rows.Next() {
		var l models.League
		if err := rows.Scan(&l.ID, &l.Name, &l.Country, &l.Status); err != nil {
			return nil, fmt.Errorf("postgres: scan league: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) FetchBookmakers(ctx context.Context) ([]models.Bookmaker, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, status FROM bookmakers`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch bookmakers: %w", err)
	}
	defer rows.Close()

	var out []models.Bookmaker
	for rows.Next() {
		var b models.Bookmaker
		if err := rows.Scan(&b.ID, &b.Name, &b.Status); err != nil {
			return nil, fmt.Errorf("postgres: scan bookmaker: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) CreateTeam(ctx context.Context, standardName, leagueID string) (models.Team, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO teams (id, standard_name, league_id) VALUES (gen_random_uuid(), $1, $2) RETURNING id`,
		standardName, leagueID,
	).Scan(&id)
	if isUniqueViolation(err) {
		return models.Team{}, store.ErrDuplicateTeam
	}
	if err != nil {
		return models.Team{}, fmt.Errorf("postgres: create team: %w", err)
	}
	return models.Team{ID: id, StandardName: standardName, LeagueID: leagueID}, nil
}

func (s *Store) CreateTeamAlias(ctx context.Context, teamID, aliasName, bookmakerSource string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO team_aliases (team_id, alias_name, bookmaker_source) VALUES ($1, $2, $3)
		 ON CONFLICT (alias_name, bookmaker_source) DO NOTHING`,
		teamID, aliasName, bookmakerSource,
	)
	if err != nil {
		return fmt.Errorf("postgres: create team alias: %w", err)
	}
	return nil
}

// upsertMatchesBatch implements the dynamic [min-1d, max+1d] window
// lookup against the named table, with an optional inverted-tuple
// fallback (basketball only), inside one transaction per batch.
func (s *Store) upsertMatchesBatch(ctx context.Context, table string, requests []store.MatchUpsertRequest, allowInversion bool) (map[store.MatchKey]store.MatchResult, error) {
	results := make(map[store.MatchKey]store.MatchResult, len(requests))
	if len(requests) == 0 {
		return results, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin upsert tx: %w", err)
	}
	defer tx.Rollback()

	minDate, maxDate := requests[0].MatchDate, requests[0].MatchDate
	for _, r := range requests[1:] {
		if r.MatchDate.Before(minDate) {
			minDate = r.MatchDate
		}
		if r.MatchDate.After(maxDate) {
			maxDate = r.MatchDate
		}
	}
	windowStart := minDate.Add(-24 * time.Hour)
	windowEnd := maxDate.Add(24 * time.Hour)

	findQuery := fmt.Sprintf(`SELECT id FROM %s WHERE league_id = $1 AND home_team_id = $2 AND away_team_id = $3
		AND match_date BETWEEN $4 AND $5 LIMIT 1`, table)
	insertQuery := fmt.Sprintf(`INSERT INTO %s (id, league_id, home_team_id, away_team_id, match_date, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, 'scheduled') RETURNING id`, table)

	for _, r := range requests {
		key := store.KeyFor(r)

		var id string
		inverted := false
		err := tx.QueryRowContext(ctx, findQuery, r.LeagueID, r.HomeTeamID, r.AwayTeamID, windowStart, windowEnd).Scan(&id)
		if err == sql.ErrNoRows && allowInversion {
			err = tx.QueryRowContext(ctx, findQuery, r.LeagueID, r.AwayTeamID, r.HomeTeamID, windowStart, windowEnd).Scan(&id)
			if err == nil {
				inverted = true
			}
		}
		if err == sql.ErrNoRows {
			if err := tx.QueryRowContext(ctx, insertQuery, r.LeagueID, r.HomeTeamID, r.AwayTeamID, r.MatchDate).Scan(&id); err != nil {
				return nil, fmt.Errorf("postgres: insert %s: %w", table, err)
			}
		} else if err != nil {
			return nil, fmt.Errorf("postgres: lookup %s: %w", table, err)
		}

		results[key] = store.MatchResult{MatchID: id, IsInverted: inverted}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("postgres: commit upsert tx: %w", err)
	}
	return results, nil
}

func (s *Store) UpsertFootballMatchesBatch(ctx context.Context, requests []store.MatchUpsertRequest) (map[store.MatchKey]store.MatchResult, error) {
	return s.upsertMatchesBatch(ctx, "football_matches", requests, false)
}

func (s *Store) UpsertBasketballMatchesBatch(ctx context.Context, requests []store.MatchUpsertRequest) (map[store.MatchKey]store.MatchResult, error) {
	return s.upsertMatchesBatch(ctx, "basketball_matches", requests, true)
}

func (s *Store) insertOddsBatch(ctx context.Context, table string, batch []models.OddsHistoryEntry) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin odds tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s
		(id, match_id, bookmaker_id, market_type, home_odd, draw_odd, away_odd, odds_type, scraped_at, extra_data)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9)`, table))
	if err != nil {
		return fmt.Errorf("postgres: prepare odds insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range batch {
		extra, err := marshalExtraData(o.ExtraData)
		if err != nil {
			return fmt.Errorf("postgres: marshal extra_data: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, o.MatchID, o.BookmakerID, o.MarketType, o.HomeOdd, o.DrawOdd, o.AwayOdd, o.OddsType, o.ScrapedAt, extra); err != nil {
			return fmt.Errorf("postgres: insert odds row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit odds tx: %w", err)
	}
	return nil
}

func (s *Store) InsertFootballOdds(ctx context.Context, batch []models.OddsHistoryEntry) error {
	return s.insertOddsBatch(ctx, "football_odds_history", batch)
}

func (s *Store) InsertBasketballOdds(ctx context.Context, batch []models.OddsHistoryEntry) error {
	return s.insertOddsBatch(ctx, "basketball_odds_history", batch)
}

func (s *Store) InsertAlertsBatch(ctx context.Context, batch []models.Alert) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin alerts tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO alerts (id, match_id, type, title, details, is_read, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, false, $5)`)
	if err != nil {
		return fmt.Errorf("postgres: prepare alerts insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range batch {
		details, err := marshalExtraData(models.ExtraData(a.Details))
		if err != nil {
			return fmt.Errorf("postgres: marshal alert details: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, a.MatchID, a.Type, a.Title, details, a.CreatedAt); err != nil {
			return fmt.Errorf("postgres: insert alert row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit alerts tx: %w", err)
	}
	return nil
}

func (s *Store) retireStarted(ctx context.Context, table string, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET status = 'started' WHERE status = 'scheduled' AND match_date < $1`, table), now)
	if err != nil {
		return 0, fmt.Errorf("postgres: retire %s: %w", table, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) RetireStartedFootballMatches(ctx context.Context, now time.Time) (int, error) {
	return s.retireStarted(ctx, "football_matches", now)
}

func (s *Store) RetireStartedBasketballMatches(ctx context.Context, now time.Time) (int, error) {
	return s.retireStarted(ctx, "basketball_matches", now)
}

func (s *Store) comparisonView(ctx context.Context, matchTable, oddsTable string, sport models.Sport, now time.Time) ([]store.ComparisonRow, error) {
	query := fmt.Sprintf(`
		SELECT m.id, l.name, l.country, ht.standard_name, at.standard_name, m.match_date, m.status,
			b.id, b.name, o.home_odd, o.draw_odd, o.away_odd, o.odds_type, o.scraped_at, o.extra_data
		FROM %s m
		JOIN %s o ON o.match_id = m.id
		JOIN leagues l ON l.id = m.league_id
		JOIN teams ht ON ht.id = m.home_team_id
		JOIN teams at ON at.id = m.away_team_id
		JOIN bookmakers b ON b.id = o.bookmaker_id
		ORDER BY m.match_date ASC
	`, matchTable, oddsTable)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: comparison view: %w", err)
	}
	defer rows.Close()

	var out []store.ComparisonRow
	for rows.Next() {
		var r store.ComparisonRow
		var scrapedAt time.Time
		var extraRaw []byte
		if err := rows.Scan(&r.MatchID, &r.LeagueName, &r.LeagueCountry, &r.HomeTeam, &r.AwayTeam,
			&r.MatchDate, &r.MatchStatus, &r.BookmakerID, &r.BookmakerName,
			&r.HomeOdd, &r.DrawOdd, &r.AwayOdd, &r.OddsType, &scrapedAt, &extraRaw); err != nil {
			return nil, fmt.Errorf("postgres: scan comparison row: %w", err)
		}
		extra, err := unmarshalExtraData(extraRaw)
		if err != nil {
			return nil, fmt.Errorf("postgres: unmarshal extra_data: %w", err)
		}
		r.Sport = sport
		r.ScrapedAt = scrapedAt
		r.DataAgeSeconds = int64(now.Sub(scrapedAt).Seconds())
		r.MarginPercent = margin(r)
		r.ExtraData = extra
		out = append(out, r)
	}
	return out, rows.Err()
}

func margin(r store.ComparisonRow) float64 {
	total := 1.0/r.HomeOdd + 1.0/r.AwayOdd
	if r.DrawOdd != nil {
		total += 1.0 / *r.DrawOdd
	}
	return (total - 1.0) * 100.0
}

func (s *Store) ReadFootballComparisonView(ctx context.Context, now time.Time) ([]store.ComparisonRow, error) {
	return s.comparisonView(ctx, "football_matches", "football_odds_history", models.SportFootball, now)
}

func (s *Store) ReadBasketballComparisonView(ctx context.Context, now time.Time) ([]store.ComparisonRow, error) {
	return s.comparisonView(ctx, "basketball_matches", "basketball_odds_history", models.SportBasketball, now)
}

func (s *Store) LogUnmatchedTeam(ctx context.Context, entry models.UnmatchedTeamLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO unmatched_team_log (raw_name, bookmaker, league_name, resolved, resolved_at, resolved_team_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		entry.RawName, entry.Bookmaker, entry.LeagueName, entry.Resolved, entry.ResolvedAt, entry.ResolvedTeamID,
	)
	if err != nil {
		return fmt.Errorf("postgres: log unmatched team: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is Postgres SQLSTATE 23505
// (unique_violation), the race CreateTeam maps to store.ErrDuplicateTeam.
func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}
