// Copyright 2026 The StratumGate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package credential

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists credentials in a local SQLite database via the
// pure-Go driver. It satisfies the same Store interface as MemStore so the
// pool can be wired to either without caring which.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if absent) a SQLite-backed credential
// store at path, migrating the schema if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS credentials (
	id TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	display_name TEXT NOT NULL,
	access_token TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	expires_at INTEGER NOT NULL DEFAULT 0,
	auth_method TEXT NOT NULL DEFAULT '',
	region TEXT NOT NULL DEFAULT '',
	profile_id TEXT NOT NULL DEFAULT '',
	error_count INTEGER NOT NULL DEFAULT 0,
	last_error_reason TEXT NOT NULL DEFAULT '',
	active INTEGER NOT NULL DEFAULT 0,
	use_count INTEGER NOT NULL DEFAULT 0,
	quarantined INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_credentials_provider ON credentials(provider);
`
	_, err := s.db.Exec(ddl)
	return err
}

func scanCredential(row interface{ Scan(...any) error }) (Credential, error) {
	var c Credential
	var expiresAt, createdAt, updatedAt int64
	var active, quarantined int
	err := row.Scan(&c.ID, &c.Provider, &c.DisplayName, &c.AccessToken, &c.RefreshToken,
		&expiresAt, &c.AuthMethod, &c.Region, &c.ProfileID, &c.ErrorCount,
		&c.LastErrorReason, &active, &c.UseCount, &quarantined, &createdAt, &updatedAt)
	if err != nil {
		return Credential{}, err
	}
	c.Active = active != 0
	c.ExpiresAt = unixToTime(expiresAt)
	c.CreatedAt = unixToTime(createdAt)
	c.UpdatedAt = unixToTime(updatedAt)
	return c, nil
}

func unixToTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func timeToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

const selectColumns = `id, provider, display_name, access_token, refresh_token, expires_at,
	auth_method, region, profile_id, error_count, last_error_reason, active, use_count,
	quarantined, created_at, updated_at`

func (s *SQLiteStore) GetAll(provider string) ([]Credential, error) {
	query := "SELECT " + selectColumns + " FROM credentials WHERE quarantined = 0"
	args := []any{}
	if provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	var out []Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetByID(id string) (Credential, error) {
	row := s.db.QueryRow("SELECT "+selectColumns+" FROM credentials WHERE id = ?", id)
	c, err := scanCredential(row)
	if err != nil {
		return Credential{}, fmt.Errorf("credential %q: %w", id, err)
	}
	return c, nil
}

func (s *SQLiteStore) GetByName(provider, name string) (Credential, error) {
	row := s.db.QueryRow("SELECT "+selectColumns+" FROM credentials WHERE provider = ? AND display_name = ?", provider, name)
	c, err := scanCredential(row)
	if err != nil {
		return Credential{}, fmt.Errorf("credential %q/%q: %w", provider, name, err)
	}
	return c, nil
}

func (s *SQLiteStore) Add(c Credential) (Credential, error) {
	now := time.Now()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := s.db.Exec(`INSERT INTO credentials
		(id, provider, display_name, access_token, refresh_token, expires_at, auth_method,
		 region, profile_id, error_count, last_error_reason, active, use_count, quarantined,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		c.ID, c.Provider, c.DisplayName, c.AccessToken, c.RefreshToken, timeToUnix(c.ExpiresAt),
		c.AuthMethod, c.Region, c.ProfileID, c.ErrorCount, c.LastErrorReason, boolToInt(c.Active),
		c.UseCount, timeToUnix(c.CreatedAt), timeToUnix(c.UpdatedAt))
	if err != nil {
		return Credential{}, fmt.Errorf("insert credential: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) Update(c Credential) (Credential, error) {
	c.UpdatedAt = time.Now()
	res, err := s.db.Exec(`UPDATE credentials SET provider=?, display_name=?, access_token=?,
		refresh_token=?, expires_at=?, auth_method=?, region=?, profile_id=?, error_count=?,
		last_error_reason=?, active=?, use_count=?, updated_at=? WHERE id=?`,
		c.Provider, c.DisplayName, c.AccessToken, c.RefreshToken, timeToUnix(c.ExpiresAt),
		c.AuthMethod, c.Region, c.ProfileID, c.ErrorCount, c.LastErrorReason, boolToInt(c.Active),
		c.UseCount, timeToUnix(c.UpdatedAt), c.ID)
	if err != nil {
		return Credential{}, fmt.Errorf("update credential: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Credential{}, fmt.Errorf("credential %q not found", c.ID)
	}
	return c, nil
}

func (s *SQLiteStore) Delete(id string) error {
	_, err := s.db.Exec("DELETE FROM credentials WHERE id = ?", id)
	return err
}

func (s *SQLiteStore) SetActive(provider, id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE credentials SET active = 0 WHERE provider = ?", provider); err != nil {
		return fmt.Errorf("clear active flags: %w", err)
	}
	res, err := tx.Exec("UPDATE credentials SET active = 1, updated_at = ? WHERE id = ?", time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("set active flag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("credential %q not found", id)
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetActive(provider string) (Credential, bool, error) {
	row := s.db.QueryRow("SELECT "+selectColumns+" FROM credentials WHERE provider = ? AND active = 1 AND quarantined = 0 LIMIT 1", provider)
	c, err := scanCredential(row)
	if err == sql.ErrNoRows {
		return Credential{}, false, nil
	}
	if err != nil {
		return Credential{}, false, fmt.Errorf("query active credential: %w", err)
	}
	return c, true, nil
}

func (s *SQLiteStore) GetRandomActive(provider string) (Credential, bool, error) {
	row := s.db.QueryRow("SELECT "+selectColumns+" FROM credentials WHERE provider = ? AND active = 1 AND quarantined = 0 ORDER BY RANDOM() LIMIT 1", provider)
	c, err := scanCredential(row)
	if err == sql.ErrNoRows {
		return Credential{}, false, nil
	}
	if err != nil {
		return Credential{}, false, fmt.Errorf("query random active credential: %w", err)
	}
	return c, true, nil
}

func (s *SQLiteStore) IncrementErrorCount(id, reason string) (Credential, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Credential{}, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`UPDATE credentials SET error_count = error_count + 1, last_error_reason = ?,
		updated_at = ? WHERE id = ?`, reason, time.Now().Unix(), id)
	if err != nil {
		return Credential{}, fmt.Errorf("increment error count: %w", err)
	}

	row := tx.QueryRow("SELECT "+selectColumns+" FROM credentials WHERE id = ?", id)
	c, err := scanCredential(row)
	if err != nil {
		return Credential{}, fmt.Errorf("reload credential %q: %w", id, err)
	}

	if c.ErrorCount >= QuarantineThreshold {
		if _, err := tx.Exec("UPDATE credentials SET quarantined = 1, active = 0 WHERE id = ?", id); err != nil {
			return Credential{}, fmt.Errorf("quarantine credential: %w", err)
		}
		c.Active = false
	}

	return c, tx.Commit()
}

func (s *SQLiteStore) ResetErrorCount(id string) (Credential, error) {
	_, err := s.db.Exec("UPDATE credentials SET error_count = 0, last_error_reason = '', updated_at = ? WHERE id = ?",
		time.Now().Unix(), id)
	if err != nil {
		return Credential{}, fmt.Errorf("reset error count: %w", err)
	}
	return s.GetByID(id)
}

func (s *SQLiteStore) UpdateToken(id, accessToken string, expiresAt time.Time) (Credential, error) {
	_, err := s.db.Exec("UPDATE credentials SET access_token = ?, expires_at = ?, updated_at = ? WHERE id = ?",
		accessToken, timeToUnix(expiresAt), time.Now().Unix(), id)
	if err != nil {
		return Credential{}, fmt.Errorf("update token: %w", err)
	}
	return s.GetByID(id)
}

func (s *SQLiteStore) IncrementUseCount(id string) error {
	_, err := s.db.Exec("UPDATE credentials SET use_count = use_count + 1 WHERE id = ?", id)
	return err
}

func (s *SQLiteStore) GetAllErrors(provider string) ([]Credential, error) {
	query := "SELECT " + selectColumns + " FROM credentials WHERE quarantined = 1"
	args := []any{}
	if provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query quarantined credentials: %w", err)
	}
	defer rows.Close()

	var out []Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quarantined credential: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteError(id string) error {
	_, err := s.db.Exec("DELETE FROM credentials WHERE id = ? AND quarantined = 1", id)
	return err
}

func (s *SQLiteStore) RestoreFromError(id string, accessToken string, expiresAt time.Time) (Credential, error) {
	res, err := s.db.Exec(`UPDATE credentials SET quarantined = 0, error_count = 0, last_error_reason = '',
		access_token = ?, expires_at = ?, updated_at = ? WHERE id = ? AND quarantined = 1`,
		accessToken, timeToUnix(expiresAt), time.Now().Unix(), id)
	if err != nil {
		return Credential{}, fmt.Errorf("restore credential: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Credential{}, fmt.Errorf("credential %q not in error bucket", id)
	}
	return s.GetByID(id)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
