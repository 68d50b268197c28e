package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/kalambet/evlink/internal/nccd"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the process-lifetime record store. It holds adjustments, evidence
// items and evidence links in an in-memory SQLite database, preserving
// insertion order. Every operation is serialized by mu, so compound
// read-modify-write sequences are atomic with respect to each other.
type Store struct {
	mu         sync.Mutex
	db         *sqlx.DB
	lastUpdate time.Time
}

// Open creates an empty in-memory store and runs the embedded migrations.
// Each call returns an independent store.
func Open() (*Store, error) {
	db, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// An in-memory database lives and dies with its connection, so the pool
	// must hold exactly one and never recycle it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close releases the database. All records are lost.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.Get(&exists, "SELECT COUNT(*) FROM schema_version WHERE version = ?", version); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		err = withTx(context.Background(), s.db, func(tx *sqlx.Tx) error {
			if _, err := tx.Exec(string(content)); err != nil {
				return fmt.Errorf("applying migration %d: %w", version, err)
			}
			if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
				return fmt.Errorf("recording migration %d: %w", version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	var versions []int
	if err := s.db.Select(&versions, "SELECT version FROM schema_version ORDER BY version ASC"); err != nil {
		return nil, err
	}
	return versions, nil
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) touch(t time.Time) {
	if t.After(s.lastUpdate) {
		s.lastUpdate = t
	}
}

// --- Adjustments ---

// AppendAdjustments appends items in order. Duplicate ids are kept.
func (s *Store) AppendAdjustments(ctx context.Context, items []nccd.Adjustment) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]adjustmentRow, len(items))
	for i, a := range items {
		r, err := toAdjustmentRow(a)
		if err != nil {
			return err
		}
		rows[i] = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, r := range rows {
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO adjustments (id, description, category, success_criteria, implementation, responsible_staff, nccd_level, evidence_quotes, rationale, confidence, status, created_at)
				VALUES (:id, :description, :category, :success_criteria, :implementation, :responsible_staff, :nccd_level, :evidence_quotes, :rationale, :confidence, :status, :created_at)`, r); err != nil {
				return fmt.Errorf("inserting adjustment %s: %w", r.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, a := range items {
		s.touch(a.CreatedAt)
	}
	return nil
}

func (s *Store) listAdjustments(ctx context.Context) ([]nccd.Adjustment, error) {
	var rows []adjustmentRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, description, category, success_criteria, implementation, responsible_staff, nccd_level, evidence_quotes, rationale, confidence, status, created_at
		FROM adjustments ORDER BY seq ASC`); err != nil {
		return nil, fmt.Errorf("listing adjustments: %w", err)
	}
	out := make([]nccd.Adjustment, 0, len(rows))
	for _, r := range rows {
		a, err := r.record()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// --- Evidence ---

// AppendEvidence appends items in order. Duplicate ids are kept.
func (s *Store) AppendEvidence(ctx context.Context, items []nccd.Evidence) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]evidenceRow, len(items))
	for i, e := range items {
		r, err := toEvidenceRow(e)
		if err != nil {
			return err
		}
		rows[i] = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, r := range rows {
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO evidence (id, description, category, implementation, outcome, responsible_staff, timeline, quality_indicators, nccd_level, evidence_quotes, rationale, confidence, created_at)
				VALUES (:id, :description, :category, :implementation, :outcome, :responsible_staff, :timeline, :quality_indicators, :nccd_level, :evidence_quotes, :rationale, :confidence, :created_at)`, r); err != nil {
				return fmt.Errorf("inserting evidence %s: %w", r.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, e := range items {
		s.touch(e.CreatedAt)
	}
	return nil
}

func (s *Store) listEvidence(ctx context.Context) ([]nccd.Evidence, error) {
	var rows []evidenceRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, description, category, implementation, outcome, responsible_staff, timeline, quality_indicators, nccd_level, evidence_quotes, rationale, confidence, created_at
		FROM evidence ORDER BY seq ASC`); err != nil {
		return nil, fmt.Errorf("listing evidence: %w", err)
	}
	out := make([]nccd.Evidence, 0, len(rows))
	for _, r := range rows {
		e, err := r.record()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// --- Evidence links ---

const linkColumns = `link_id, adjustment_id, evidence_id, is_match, confidence, connections, evidence_quality, missing_elements, nccd_relevance, status, notes, reviewed_at, created_at`

// AppendLinks appends links in order. Either all links are stored or none.
func (s *Store) AppendLinks(ctx context.Context, links []nccd.EvidenceLink) error {
	if len(links) == 0 {
		return nil
	}
	rows := make([]linkRow, len(links))
	for i, l := range links {
		r, err := toLinkRow(l)
		if err != nil {
			return err
		}
		rows[i] = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, r := range rows {
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO evidence_links (`+linkColumns+`)
				VALUES (:link_id, :adjustment_id, :evidence_id, :is_match, :confidence, :connections, :evidence_quality, :missing_elements, :nccd_relevance, :status, :notes, :reviewed_at, :created_at)`, r); err != nil {
				return fmt.Errorf("inserting link %s: %w", r.LinkID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, l := range links {
		s.touch(l.CreatedAt)
	}
	return nil
}

func (s *Store) listLinks(ctx context.Context) ([]nccd.EvidenceLink, error) {
	var rows []linkRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+linkColumns+` FROM evidence_links ORDER BY seq ASC`); err != nil {
		return nil, fmt.Errorf("listing links: %w", err)
	}
	out := make([]nccd.EvidenceLink, 0, len(rows))
	for _, r := range rows {
		l, err := r.record()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// GetLink returns the first link (in insertion order) matching the pair.
func (s *Store) GetLink(ctx context.Context, adjustmentID, evidenceID string) (nccd.EvidenceLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r linkRow
	err := s.db.GetContext(ctx, &r, `SELECT `+linkColumns+` FROM evidence_links
		WHERE adjustment_id = ? AND evidence_id = ? ORDER BY seq ASC LIMIT 1`, adjustmentID, evidenceID)
	if err == sql.ErrNoRows {
		return nccd.EvidenceLink{}, ErrNotFound
	}
	if err != nil {
		return nccd.EvidenceLink{}, err
	}
	return r.record()
}

// LinkReview is a reviewer decision applied to a stored link.
type LinkReview struct {
	Status     nccd.Status
	Notes      string
	ReviewedAt time.Time
}

// UpdateLinkStatus overwrites the status of the first link matching the pair.
// It reports whether a link was found; a missing pair is not an error and
// leaves every stored link untouched.
func (s *Store) UpdateLinkStatus(ctx context.Context, adjustmentID, evidenceID string, review LinkReview) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE evidence_links SET status = ?, notes = ?, reviewed_at = ?
		WHERE seq = (
			SELECT seq FROM evidence_links
			WHERE adjustment_id = ? AND evidence_id = ?
			ORDER BY seq ASC LIMIT 1
		)`,
		string(review.Status), review.Notes, formatTime(review.ReviewedAt), adjustmentID, evidenceID,
	)
	if err != nil {
		return false, fmt.Errorf("updating link status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	s.touch(review.ReviewedAt)
	return true, nil
}

// --- Snapshot / reset ---

// Snapshot returns copies of all three collections in insertion order.
// Collections are never nil.
func (s *Store) Snapshot(ctx context.Context) (nccd.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	adjustments, err := s.listAdjustments(ctx)
	if err != nil {
		return nccd.Snapshot{}, err
	}
	evidence, err := s.listEvidence(ctx)
	if err != nil {
		return nccd.Snapshot{}, err
	}
	links, err := s.listLinks(ctx)
	if err != nil {
		return nccd.Snapshot{}, err
	}
	return nccd.Snapshot{Adjustments: adjustments, Evidence: evidence, Links: links}, nil
}

// LastUpdate returns the latest mutation timestamp, or the zero time for an
// empty or freshly reset store.
func (s *Store) LastUpdate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpdate
}

// Reset clears all three collections atomically.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, table := range []string{"evidence_links", "evidence", "adjustments"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.lastUpdate = time.Time{}
	return nil
}
