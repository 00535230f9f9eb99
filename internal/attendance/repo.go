package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChangeChannel is the Postgres NOTIFY channel carrying changed class ids.
const ChangeChannel = "class_changes"

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const profileColumns = `id, email, display_name, student_id, institution, role, created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (Profile, error) {
	var p Profile
	if err := row.Scan(&p.AccountID, &p.Email, &p.DisplayName, &p.StudentID, &p.Institution, &p.Role, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	if p.AccountID == "" {
		return Profile{}, fmt.Errorf("%w: account without id", ErrDecode)
	}
	return p, nil
}

// GetProfile returns the stored account profile.
func (r *Repository) GetProfile(ctx context.Context, accountID string) (Profile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM accounts WHERE id = $1`, accountID)
	return scanProfile(row)
}

// SyncProfile upserts the identity into accounts.
func (r *Repository) SyncProfile(ctx context.Context, who Identity) (Profile, error) {
	if who.AccountID == "" {
		return Profile{}, errors.New("account id required")
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO accounts (id, email, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), accounts.display_name),
			updated_at = NOW()
		RETURNING `+profileColumns, who.AccountID, who.Email, who.DisplayName)
	return scanProfile(row)
}

// UpdateProfile sets the editable profile fields.
func (r *Repository) UpdateProfile(ctx context.Context, accountID, name, studentID, institution string) (Profile, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE accounts
		SET display_name = $2, student_id = $3, institution = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+profileColumns, accountID, name, studentID, institution)
	return scanProfile(row)
}

// CreateClass inserts the class with its creator as first member.
func (r *Repository) CreateClass(ctx context.Context, c Class) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO classes (id, name, created_by, owner_email, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, c.ID, c.Name, c.CreatedBy, c.OwnerEmail, c.CreatedAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO class_members (class_id, account_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, c.ID, c.CreatedBy)
		return err
	})
}

const classColumns = `id, name, created_by, owner_email, created_at, last_checked_in`

func (r *Repository) scanClass(ctx context.Context, row interface{ Scan(...any) error }) (Class, error) {
	var (
		c    Class
		last sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.Name, &c.CreatedBy, &c.OwnerEmail, &c.CreatedAt, &last); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Class{}, ErrNotFound
		}
		return Class{}, err
	}
	if c.ID == "" || c.CreatedBy == "" {
		return Class{}, fmt.Errorf("%w: class without id or creator", ErrDecode)
	}
	if last.Valid {
		t := last.Time
		c.LastCheckedIn = &t
	}
	var err error
	if c.Members, err = r.strings(ctx, `SELECT account_id FROM class_members WHERE class_id = $1 ORDER BY account_id`, c.ID); err != nil {
		return Class{}, err
	}
	if c.CheckedInMembers, err = r.strings(ctx, `SELECT account_id FROM class_checked_in WHERE class_id = $1 ORDER BY first_at`, c.ID); err != nil {
		return Class{}, err
	}
	return c, nil
}

// GetClass returns the class with its member sets.
func (r *Repository) GetClass(ctx context.Context, classID string) (Class, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+classColumns+` FROM classes WHERE id = $1`, classID)
	return r.scanClass(ctx, row)
}

// DeleteClass removes a class and everything hanging off it.
func (r *Repository) DeleteClass(ctx context.Context, classID string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM checkin_events WHERE class_id = $1`,
			`DELETE FROM class_checked_in WHERE class_id = $1`,
			`DELETE FROM class_members WHERE class_id = $1`,
			`DELETE FROM roster_entries WHERE class_id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, q, classID); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, classID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return notify(ctx, tx, classID)
	})
}

// ListOwnedClasses returns classes created by the account, newest first.
func (r *Repository) ListOwnedClasses(ctx context.Context, accountID string) ([]Class, error) {
	return r.listClasses(ctx, `
		SELECT `+classColumns+` FROM classes
		WHERE created_by = $1
		ORDER BY created_at DESC
	`, accountID)
}

// ListJoinedClasses returns classes the account checked into without owning them.
func (r *Repository) ListJoinedClasses(ctx context.Context, accountID string) ([]Class, error) {
	return r.listClasses(ctx, `
		SELECT c.id, c.name, c.created_by, c.owner_email, c.created_at, c.last_checked_in
		FROM classes c
		JOIN class_checked_in ci ON ci.class_id = c.id
		WHERE ci.account_id = $1 AND c.created_by <> $1
		ORDER BY c.created_at DESC
	`, accountID)
}

func (r *Repository) listClasses(ctx context.Context, query string, args ...any) ([]Class, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var heads []Class
	for rows.Next() {
		var (
			c    Class
			last sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedBy, &c.OwnerEmail, &c.CreatedAt, &last); err != nil {
			rows.Close()
			return nil, err
		}
		if last.Valid {
			t := last.Time
			c.LastCheckedIn = &t
		}
		heads = append(heads, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range heads {
		if heads[i].Members, err = r.strings(ctx, `SELECT account_id FROM class_members WHERE class_id = $1 ORDER BY account_id`, heads[i].ID); err != nil {
			return nil, err
		}
		if heads[i].CheckedInMembers, err = r.strings(ctx, `SELECT account_id FROM class_checked_in WHERE class_id = $1 ORDER BY first_at`, heads[i].ID); err != nil {
			return nil, err
		}
	}
	return heads, nil
}

const rosterColumns = `id, class_id, student_id, name, status, prefix, first_name, last_name, nickname,
	email, phone, department, year, section, additional_data, created_at`

// ListRoster returns the class roster in import order.
func (r *Repository) ListRoster(ctx context.Context, classID string) ([]RosterEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+rosterColumns+` FROM roster_entries
		WHERE class_id = $1
		ORDER BY created_at, id
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []RosterEntry
	for rows.Next() {
		var (
			e     RosterEntry
			extra []byte
		)
		if err := rows.Scan(&e.ID, &e.ClassID, &e.StudentID, &e.Name, &e.Status, &e.Prefix, &e.FirstName, &e.LastName,
			&e.Nickname, &e.Email, &e.Phone, &e.Department, &e.Year, &e.Section, &extra, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.StudentID == "" {
			return nil, fmt.Errorf("%w: roster entry %s has no student id", ErrDecode, e.ID)
		}
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &e.AdditionalData); err != nil {
				return nil, fmt.Errorf("%w: roster entry %s additional data: %v", ErrDecode, e.ID, err)
			}
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// AddRosterEntry inserts one roster row.
func (r *Repository) AddRosterEntry(ctx context.Context, e RosterEntry) (RosterEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	extra, err := json.Marshal(e.AdditionalData)
	if err != nil {
		return RosterEntry{}, err
	}
	if e.AdditionalData == nil {
		extra = []byte("{}")
	}
	err = r.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO roster_entries (id, class_id, student_id, name, status, prefix, first_name, last_name,
				nickname, email, phone, department, year, section, additional_data)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			RETURNING created_at
		`, e.ID, e.ClassID, e.StudentID, e.Name, e.Status, e.Prefix, e.FirstName, e.LastName,
			e.Nickname, e.Email, e.Phone, e.Department, e.Year, e.Section, string(extra))
		if err := row.Scan(&e.CreatedAt); err != nil {
			return err
		}
		return notify(ctx, tx, e.ClassID)
	})
	if err != nil {
		return RosterEntry{}, err
	}
	return e, nil
}

// AppendCheckIn writes the event, joins the checked-in set and stamps the
// class in one transaction. Listeners are notified on commit.
func (r *Repository) AppendCheckIn(ctx context.Context, e CheckInEvent) error {
	if err := e.validate(); err != nil {
		return err
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO checkin_events (class_id, date_key, account_id, student_id, display_name, email, status, occurred_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (class_id, date_key, account_id) DO NOTHING
		`, e.ClassID, e.DateKey, e.AccountID, e.StudentID, e.DisplayName, e.Email, e.Status, e.Timestamp)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrAlreadyCheckedIn
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO class_checked_in (class_id, account_id, first_at)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, e.ClassID, e.AccountID, e.Timestamp); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE classes SET last_checked_in = GREATEST(COALESCE(last_checked_in, $2), $2)
			WHERE id = $1
		`, e.ClassID, e.Timestamp); err != nil {
			return err
		}
		return notify(ctx, tx, e.ClassID)
	})
}

const eventColumns = `class_id, date_key, account_id, student_id, display_name, email, status, occurred_at`

// DayEvents returns one day's events in time order.
func (r *Repository) DayEvents(ctx context.Context, classID, dateKey string) ([]CheckInEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM checkin_events
		WHERE class_id = $1 AND date_key = $2
		ORDER BY occurred_at, account_id
	`, classID, dateKey)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// Days returns every event of the class grouped by day.
func (r *Repository) Days(ctx context.Context, classID string) (Days, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM checkin_events
		WHERE class_id = $1
		ORDER BY date_key, occurred_at
	`, classID)
	if err != nil {
		return nil, err
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	days := make(Days)
	for _, e := range events {
		if !days.Add(e) {
			return nil, fmt.Errorf("%w: duplicate event %s/%s", ErrDecode, e.DateKey, e.AccountID)
		}
	}
	return days, nil
}

func scanEvents(rows *sql.Rows) ([]CheckInEvent, error) {
	defer rows.Close()
	var res []CheckInEvent
	for rows.Next() {
		var e CheckInEvent
		if err := rows.Scan(&e.ClassID, &e.DateKey, &e.AccountID, &e.StudentID, &e.DisplayName, &e.Email, &e.Status, &e.Timestamp); err != nil {
			return nil, err
		}
		if err := e.validate(); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r *Repository) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func notify(ctx context.Context, tx *sql.Tx, classID string) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, ChangeChannel, classID)
	return err
}
