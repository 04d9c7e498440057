/*
Package sqlite provides the SQLite-backed persistence for the bonus service.

PURPOSE:
  Stores the business model around the formula engine: roles, their KPIs,
  one formula per (role, KPI), users and their recorded actuals, staffed
  positions, and the history of forecast runs. The engine itself never
  touches the store; the API loads what it needs and hands plain values
  to the compensation package.

KEY TABLES:
  roles:          Salary and bonus target (decimals stored as TEXT)
  kpis:           Target, direction and weight inside a role
  formulas:       Stored formula JSON per (role, KPI), versioned on upsert
  users:          People assigned to a role
  actuals:        Latest actual per (user, KPI), upserted
  positions:      Role headcount used by forecasts
  forecast_runs:  Append-only record of scheduled and manual forecasts

DECIMALS:
  Money and percentages are stored as TEXT via decimal.String() so values
  round-trip exactly. SQLite REAL would reintroduce float drift.

NOT FOUND:
  Get* methods return (nil, nil) when the row does not exist. Callers map
  that to the matching bonus.Err*NotFound sentinel.

CREATE VS SAVE:
  Create* is a plain INSERT and returns bonus.ErrAlreadyExists when the ID
  is taken. Save* upserts and is used for updates and scenario seeding.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/bonus.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). FromDB skips migration and is meant
  for tests that drive a mocked *sql.DB.

SEE ALSO:
  - compensation/types.go: Domain types returned by this store
  - factory/formula.go: Parses FormulaRecord.ConfigJSON
  - api/handlers.go: Main consumer
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/kpi-bonus/bonus"
	"github.com/warp/kpi-bonus/compensation"
)

// Store implements persistence for every bonus service entity.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// FromDB wraps an existing connection without migrating it.
func FromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection. Used by /healthz.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS roles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		base_salary TEXT NOT NULL,
		bonus_percentage TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS kpis (
		id TEXT PRIMARY KEY,
		role_id TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL DEFAULT '',
		target TEXT NOT NULL,
		is_inverse BOOLEAN NOT NULL DEFAULT FALSE,
		weight TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_kpis_role
		ON kpis(role_id);

	-- One formula per (role, KPI); version bumps on every upsert
	CREATE TABLE IF NOT EXISTS formulas (
		role_id TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		kpi_id TEXT NOT NULL REFERENCES kpis(id) ON DELETE CASCADE,
		config_json TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (role_id, kpi_id)
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		role_id TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_role
		ON users(role_id);

	CREATE TABLE IF NOT EXISTS actuals (
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		kpi_id TEXT NOT NULL REFERENCES kpis(id) ON DELETE CASCADE,
		value TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		PRIMARY KEY (user_id, kpi_id)
	);

	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		role_id TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		headcount INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS forecast_runs (
		id TEXT PRIMARY KEY,
		triggered_by TEXT NOT NULL,
		status TEXT NOT NULL,
		multiplier TEXT NOT NULL,
		gross TEXT NOT NULL DEFAULT '0',
		total_payout TEXT NOT NULL DEFAULT '0',
		headcount INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_forecast_runs_started
		ON forecast_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ROLE STORE
// =============================================================================

const (
	roleInsert = `
		INSERT INTO roles (id, name, base_salary, bonus_percentage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	roleUpsert = `
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			base_salary = excluded.base_salary,
			bonus_percentage = excluded.bonus_percentage,
			updated_at = excluded.updated_at`
)

// CreateRole inserts a new role. A taken ID is bonus.ErrAlreadyExists.
func (s *Store) CreateRole(ctx context.Context, role compensation.Role) error {
	if err := s.writeRole(ctx, roleInsert, role); err != nil {
		return conflictOr(err, "role", role.ID)
	}
	return nil
}

// SaveRole inserts or updates a role.
func (s *Store) SaveRole(ctx context.Context, role compensation.Role) error {
	if err := s.writeRole(ctx, roleInsert+roleUpsert, role); err != nil {
		return fmt.Errorf("failed to save role: %w", err)
	}
	return nil
}

func (s *Store) writeRole(ctx context.Context, query string, role compensation.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowString()
	_, err := s.db.ExecContext(ctx, query,
		role.ID, role.Name, role.BaseSalary.String(), role.BonusPercentage.String(), now, now,
	)
	return err
}

// GetRole retrieves a role by ID.
func (s *Store) GetRole(ctx context.Context, id string) (*compensation.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r compensation.Role
	var salary, pct string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, base_salary, bonus_percentage FROM roles WHERE id = ?",
		id,
	).Scan(&r.ID, &r.Name, &salary, &pct)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if r.BaseSalary, err = parseDecimal("base_salary", salary); err != nil {
		return nil, err
	}
	if r.BonusPercentage, err = parseDecimal("bonus_percentage", pct); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRoles returns all roles ordered by name.
func (s *Store) ListRoles(ctx context.Context) ([]compensation.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, base_salary, bonus_percentage FROM roles ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []compensation.Role
	for rows.Next() {
		var r compensation.Role
		var salary, pct string
		if err := rows.Scan(&r.ID, &r.Name, &salary, &pct); err != nil {
			return nil, err
		}
		if r.BaseSalary, err = parseDecimal("base_salary", salary); err != nil {
			return nil, err
		}
		if r.BonusPercentage, err = parseDecimal("bonus_percentage", pct); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// DeleteRole removes a role. KPIs, formulas, users and positions of the
// role go with it.
func (s *Store) DeleteRole(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, "roles", id)
}

// =============================================================================
// KPI STORE
// =============================================================================

const (
	kpiInsert = `
		INSERT INTO kpis (id, role_id, name, description, unit, target, is_inverse, weight, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	// role_id is left alone: a KPI never moves between roles.
	kpiUpsert = `
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			unit = excluded.unit,
			target = excluded.target,
			is_inverse = excluded.is_inverse,
			weight = excluded.weight`
)

// CreateKPI inserts a new KPI. A taken ID is bonus.ErrAlreadyExists, even
// when it belongs to another role.
func (s *Store) CreateKPI(ctx context.Context, k compensation.KPI) error {
	if err := s.writeKPI(ctx, kpiInsert, k); err != nil {
		return conflictOr(err, "kpi", k.ID)
	}
	return nil
}

// SaveKPI inserts or updates a KPI.
func (s *Store) SaveKPI(ctx context.Context, k compensation.KPI) error {
	if err := s.writeKPI(ctx, kpiInsert+kpiUpsert, k); err != nil {
		return fmt.Errorf("failed to save kpi: %w", err)
	}
	return nil
}

func (s *Store) writeKPI(ctx context.Context, query string, k compensation.KPI) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, query,
		k.ID, k.RoleID, k.Name, k.Description, k.Unit,
		k.Target.String(), k.IsInverse, k.Weight.String(), nowString(),
	)
	return err
}

const kpiColumns = "id, role_id, name, description, unit, target, is_inverse, weight"

// GetKPI retrieves a KPI by ID.
func (s *Store) GetKPI(ctx context.Context, id string) (*compensation.KPI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+kpiColumns+" FROM kpis WHERE id = ?", id)
	k, err := scanKPI(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// ListKPIsByRole returns a role's KPIs in creation order.
func (s *Store) ListKPIsByRole(ctx context.Context, roleID string) ([]compensation.KPI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+kpiColumns+" FROM kpis WHERE role_id = ? ORDER BY rowid", roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var kpis []compensation.KPI
	for rows.Next() {
		k, err := scanKPI(rows)
		if err != nil {
			return nil, err
		}
		kpis = append(kpis, k)
	}
	return kpis, rows.Err()
}

// DeleteKPI removes a KPI together with its formula and actuals.
func (s *Store) DeleteKPI(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, "kpis", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKPI(row rowScanner) (compensation.KPI, error) {
	var k compensation.KPI
	var target, weight string
	if err := row.Scan(&k.ID, &k.RoleID, &k.Name, &k.Description, &k.Unit, &target, &k.IsInverse, &weight); err != nil {
		return k, err
	}

	var err error
	if k.Target, err = parseDecimal("target", target); err != nil {
		return k, err
	}
	if k.Weight, err = parseDecimal("weight", weight); err != nil {
		return k, err
	}
	return k, nil
}

// =============================================================================
// FORMULA STORE
// =============================================================================

// FormulaRecord is the stored formula for one (role, KPI).
type FormulaRecord struct {
	RoleID     string
	KPIID      string
	ConfigJSON string
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SaveFormula upserts the formula for (role, KPI) and returns the new version.
func (s *Store) SaveFormula(ctx context.Context, roleID, kpiID, configJSON string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO formulas (role_id, kpi_id, config_json, version, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(role_id, kpi_id) DO UPDATE SET
			config_json = excluded.config_json,
			version = formulas.version + 1,
			updated_at = excluded.updated_at
		RETURNING version
	`

	now := nowString()
	var version int
	err := s.db.QueryRowContext(ctx, query, roleID, kpiID, configJSON, now, now).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to save formula: %w", err)
	}
	return version, nil
}

// GetFormula retrieves the stored formula for (role, KPI).
func (s *Store) GetFormula(ctx context.Context, roleID, kpiID string) (*FormulaRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var f FormulaRecord
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT role_id, kpi_id, config_json, version, created_at, updated_at FROM formulas WHERE role_id = ? AND kpi_id = ?",
		roleID, kpiID,
	).Scan(&f.RoleID, &f.KPIID, &f.ConfigJSON, &f.Version, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	f.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	f.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &f, nil
}

// ListFormulasByRole returns every formula configured for a role.
func (s *Store) ListFormulasByRole(ctx context.Context, roleID string) ([]FormulaRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT role_id, kpi_id, config_json, version, created_at, updated_at FROM formulas WHERE role_id = ?",
		roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []FormulaRecord
	for rows.Next() {
		var f FormulaRecord
		var createdAt, updatedAt string
		if err := rows.Scan(&f.RoleID, &f.KPIID, &f.ConfigJSON, &f.Version, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		f.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		f.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		records = append(records, f)
	}
	return records, rows.Err()
}

// DeleteFormula removes the formula for (role, KPI). The KPI then falls
// back to the ratio bonus.
func (s *Store) DeleteFormula(ctx context.Context, roleID, kpiID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM formulas WHERE role_id = ? AND kpi_id = ?", roleID, kpiID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// =============================================================================
// USER STORE
// =============================================================================

// User is a person assigned to a role.
type User struct {
	ID        string
	Name      string
	Email     string
	RoleID    string
	CreatedAt time.Time
}

const (
	userInsert = `
		INSERT INTO users (id, name, email, role_id, created_at)
		VALUES (?, ?, ?, ?, ?)`
	userUpsert = `
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role_id = excluded.role_id`
)

// CreateUser inserts a new user. A taken ID is bonus.ErrAlreadyExists.
func (s *Store) CreateUser(ctx context.Context, u User) error {
	if err := s.writeUser(ctx, userInsert, u); err != nil {
		return conflictOr(err, "user", u.ID)
	}
	return nil
}

// SaveUser creates or updates a user.
func (s *Store) SaveUser(ctx context.Context, u User) error {
	if err := s.writeUser(ctx, userInsert+userUpsert, u); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *Store) writeUser(ctx context.Context, query string, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, query, u.ID, u.Name, nullString(u.Email), u.RoleID, nowString())
	return err
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u User
	var email sql.NullString
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, role_id, created_at FROM users WHERE id = ?",
		id,
	).Scan(&u.ID, &u.Name, &email, &u.RoleID, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	u.Email = email.String
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

// ListUsers returns all users ordered by name.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, email, role_id, created_at FROM users ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var email sql.NullString
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Name, &email, &u.RoleID, &createdAt); err != nil {
			return nil, err
		}
		u.Email = email.String
		u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		users = append(users, u)
	}
	return users, rows.Err()
}

// =============================================================================
// ACTUALS STORE
// =============================================================================

// SaveActuals upserts a user's actuals atomically.
func (s *Store) SaveActuals(ctx context.Context, userID string, actuals compensation.Actuals) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO actuals (user_id, kpi_id, value, recorded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, kpi_id) DO UPDATE SET
			value = excluded.value,
			recorded_at = excluded.recorded_at
	`

	now := nowString()
	for kpiID, value := range actuals {
		if _, err := tx.ExecContext(ctx, query, userID, kpiID, value.String(), now); err != nil {
			return fmt.Errorf("failed to save actual for kpi %s: %w", kpiID, err)
		}
	}

	return tx.Commit()
}

// GetActuals returns the latest recorded actual per KPI for a user.
func (s *Store) GetActuals(ctx context.Context, userID string) (compensation.Actuals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT kpi_id, value FROM actuals WHERE user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	actuals := make(compensation.Actuals)
	for rows.Next() {
		var kpiID, value string
		if err := rows.Scan(&kpiID, &value); err != nil {
			return nil, err
		}
		d, err := parseDecimal("value", value)
		if err != nil {
			return nil, err
		}
		actuals[kpiID] = d
	}
	return actuals, rows.Err()
}

// =============================================================================
// POSITION STORE
// =============================================================================

const (
	positionInsert = `
		INSERT INTO positions (id, role_id, title, headcount, created_at)
		VALUES (?, ?, ?, ?, ?)`
	positionUpsert = `
		ON CONFLICT(id) DO UPDATE SET
			role_id = excluded.role_id,
			title = excluded.title,
			headcount = excluded.headcount`
)

// CreatePosition inserts a new position. A taken ID is bonus.ErrAlreadyExists.
func (s *Store) CreatePosition(ctx context.Context, p compensation.Position) error {
	if err := s.writePosition(ctx, positionInsert, p); err != nil {
		return conflictOr(err, "position", p.ID)
	}
	return nil
}

// SavePosition creates or updates a position.
func (s *Store) SavePosition(ctx context.Context, p compensation.Position) error {
	if err := s.writePosition(ctx, positionInsert+positionUpsert, p); err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

func (s *Store) writePosition(ctx context.Context, query string, p compensation.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, query, p.ID, p.RoleID, p.Title, p.Headcount, nowString())
	return err
}

// ListPositions returns all positions.
func (s *Store) ListPositions(ctx context.Context) ([]compensation.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, role_id, title, headcount FROM positions ORDER BY rowid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []compensation.Position
	for rows.Next() {
		var p compensation.Position
		if err := rows.Scan(&p.ID, &p.RoleID, &p.Title, &p.Headcount); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// DeletePosition removes a position.
func (s *Store) DeletePosition(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, "positions", id)
}

// =============================================================================
// FORECAST RUNS STORE
// =============================================================================

// ForecastRun records one forecast execution.
type ForecastRun struct {
	ID          string
	Trigger     string // "scheduled" or "manual"
	Status      string // "completed" or "failed"
	Multiplier  decimal.Decimal
	Gross       decimal.Decimal
	TotalPayout decimal.Decimal
	Headcount   int
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
}

// SaveForecastRun appends a forecast run.
func (s *Store) SaveForecastRun(ctx context.Context, r ForecastRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO forecast_runs
		(id, triggered_by, status, multiplier, gross, total_payout, headcount, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Trigger, r.Status,
		r.Multiplier.String(), r.Gross.String(), r.TotalPayout.String(), r.Headcount,
		nullString(r.Error),
		r.StartedAt.UTC().Format(time.RFC3339Nano),
		r.CompletedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save forecast run: %w", err)
	}
	return nil
}

// ListForecastRuns returns the most recent runs first. limit <= 0 means 50.
func (s *Store) ListForecastRuns(ctx context.Context, limit int) ([]ForecastRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, triggered_by, status, multiplier, gross, total_payout, headcount, error, started_at, completed_at
		FROM forecast_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ForecastRun
	for rows.Next() {
		var r ForecastRun
		var multiplier, gross, payout, startedAt, completedAt string
		var errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.Trigger, &r.Status, &multiplier, &gross, &payout,
			&r.Headcount, &errMsg, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		if r.Multiplier, err = parseDecimal("multiplier", multiplier); err != nil {
			return nil, err
		}
		if r.Gross, err = parseDecimal("gross", gross); err != nil {
			return nil, err
		}
		if r.TotalPayout, err = parseDecimal("total_payout", payout); err != nil {
			return nil, err
		}
		r.Error = errMsg.String
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		r.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data. Used by demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// children first so foreign keys never block
	tables := []string{"actuals", "formulas", "users", "positions", "kpis", "roles", "forecast_runs"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) deleteByID(ctx context.Context, table, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseDecimal(column, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt %s value %q: %w", column, value, err)
	}
	return d, nil
}

// conflictOr maps a primary key violation to bonus.ErrAlreadyExists and
// wraps anything else as a create failure.
func conflictOr(err error, entity, id string) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique) {
		return fmt.Errorf("%s %s: %w", entity, id, bonus.ErrAlreadyExists)
	}
	return fmt.Errorf("failed to create %s: %w", entity, err)
}

// IsForeignKeyError reports whether err is a foreign key violation, e.g. a
// KPI created for a role that does not exist.
func IsForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
