// Package sqlite provides the durable policy repository backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/agentvault/agentvault/internal/domain/policy"
)

const schema = `
CREATE TABLE IF NOT EXISTS policies (
	id         TEXT PRIMARY KEY,
	wallet_id  TEXT NOT NULL,
	name       TEXT NOT NULL,
	rules      TEXT NOT NULL,
	version    INTEGER NOT NULL,
	is_active  INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_policies_wallet ON policies (wallet_id);
`

// PolicyStore implements policy.Repository over a SQLite database.
// Rules are stored as an ordered JSON blob that preserves type discriminants
// and keeps monetary fields as decimal strings.
type PolicyStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the policy database at path.
// Use ":memory:" for an ephemeral database in tests.
func Open(path string) (*PolicyStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc.org/sqlite serializes writes itself; a single connection
	// avoids SQLITE_BUSY on concurrent mutations.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply policy schema: %w", err)
	}
	return &PolicyStore{db: db}, nil
}

// Close closes the underlying database.
func (s *PolicyStore) Close() error {
	return s.db.Close()
}

// Insert stores a new policy, assigning an ID when the caller left it empty.
func (s *PolicyStore) Insert(ctx context.Context, p *policy.Policy) (*policy.Policy, error) {
	stored := *p
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}

	rules, err := json.Marshal(stored.Rules)
	if err != nil {
		return nil, fmt.Errorf("encode rules: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO policies (id, wallet_id, name, rules, version, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.WalletID, stored.Name, string(rules), stored.Version,
		boolToInt(stored.IsActive),
		stored.CreatedAt.UTC().Format(time.RFC3339Nano),
		stored.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert policy: %w", err)
	}
	return &stored, nil
}

// FindByID returns the policy with the given id, or policy.ErrNotFound.
func (s *PolicyStore) FindByID(ctx context.Context, id string) (*policy.Policy, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, wallet_id, name, rules, version, is_active, created_at, updated_at
		 FROM policies WHERE id = ?`, id)

	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, policy.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find policy %s: %w", id, err)
	}
	return p, nil
}

// FindByWallet returns all policies for a wallet in insert order.
func (s *PolicyStore) FindByWallet(ctx context.Context, walletID string) ([]policy.Policy, error) {
	return s.queryPolicies(ctx,
		`SELECT id, wallet_id, name, rules, version, is_active, created_at, updated_at
		 FROM policies WHERE wallet_id = ? ORDER BY rowid`, walletID)
}

// FindActiveByWallet returns the active policies for a wallet in insert order.
func (s *PolicyStore) FindActiveByWallet(ctx context.Context, walletID string) ([]policy.Policy, error) {
	return s.queryPolicies(ctx,
		`SELECT id, wallet_id, name, rules, version, is_active, created_at, updated_at
		 FROM policies WHERE wallet_id = ? AND is_active = 1 ORDER BY rowid`, walletID)
}

// Update replaces the stored policy with the same ID, or policy.ErrNotFound.
// The wallet_id column is deliberately not part of the SET clause: the
// owning wallet never changes after creation.
func (s *PolicyStore) Update(ctx context.Context, p *policy.Policy) (*policy.Policy, error) {
	rules, err := json.Marshal(p.Rules)
	if err != nil {
		return nil, fmt.Errorf("encode rules: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE policies SET name = ?, rules = ?, version = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, string(rules), p.Version, boolToInt(p.IsActive),
		p.UpdatedAt.UTC().Format(time.RFC3339Nano), p.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update policy %s: %w", p.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update policy %s: %w", p.ID, err)
	}
	if affected == 0 {
		return nil, policy.ErrNotFound
	}
	return s.FindByID(ctx, p.ID)
}

func (s *PolicyStore) queryPolicies(ctx context.Context, query string, args ...any) ([]policy.Policy, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query policies: %w", err)
	}
	defer rows.Close()

	var result []policy.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policies: %w", err)
	}
	return result, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*policy.Policy, error) {
	var (
		p         policy.Policy
		rules     string
		isActive  int
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&p.ID, &p.WalletID, &p.Name, &rules, &p.Version,
		&isActive, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(rules), &p.Rules); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	p.IsActive = isActive != 0

	var err error
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Compile-time interface verification.
var _ policy.Repository = (*PolicyStore)(nil)
