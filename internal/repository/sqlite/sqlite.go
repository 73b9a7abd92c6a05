package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tegelkonst/cotizador/internal/domain"
	"github.com/tegelkonst/cotizador/internal/editor"
	"github.com/tegelkonst/cotizador/internal/questionnaire"
	"github.com/tegelkonst/cotizador/internal/session"
)

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// New creates a new SQLite repository.
func New(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return repo, nil
}

func (r *SQLiteRepository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		step INTEGER NOT NULL DEFAULT 1,
		prompt TEXT NOT NULL DEFAULT '',
		questions TEXT, -- JSON array or NULL
		form TEXT, -- JSON object or NULL
		response TEXT, -- JSON object or NULL
		editor TEXT, -- JSON object or NULL
		last_error TEXT NOT NULL DEFAULT '',
		busy INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);
	`

	_, err := r.db.Exec(schema)
	return err
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, s *session.Session) error {
	questions, form, response, ed, err := marshalParts(s)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, step, prompt, questions, form, response, editor, last_error, busy, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, int(s.Step), s.Prompt, questions, form, response, ed,
		s.LastError, boolToInt(s.Busy),
		s.CreatedAt.Format(time.RFC3339), s.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (*session.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, step, prompt, questions, form, response, editor, last_error, busy, created_at, updated_at
		 FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return s, err
}

func (r *SQLiteRepository) ListSessions(ctx context.Context) ([]*session.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, step, prompt, questions, form, response, editor, last_error, busy, created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *SQLiteRepository) UpdateSession(ctx context.Context, s *session.Session) error {
	questions, form, response, ed, err := marshalParts(s)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET step = ?, prompt = ?, questions = ?, form = ?, response = ?, editor = ?,
		 last_error = ?, busy = ?, updated_at = ? WHERE id = ?`,
		int(s.Step), s.Prompt, questions, form, response, ed,
		s.LastError, boolToInt(s.Busy), s.UpdatedAt.Format(time.RFC3339), s.ID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// marshalParts serializes the nullable JSON columns.
func marshalParts(s *session.Session) (questions, form, response, ed sql.NullString, err error) {
	if s.Questions != nil {
		questions, err = marshalNullable(s.Questions)
		if err != nil {
			return
		}
	}
	if s.Form != nil {
		form, err = marshalNullable(s.Form)
		if err != nil {
			return
		}
	}
	if s.Response != nil {
		response, err = marshalNullable(s.Response)
		if err != nil {
			return
		}
	}
	if s.Editor != nil {
		ed, err = marshalNullable(s.Editor)
	}
	return
}

func marshalNullable(v any) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal session field: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*session.Session, error) {
	var (
		s         session.Session
		step      int
		questions sql.NullString
		form      sql.NullString
		response  sql.NullString
		ed        sql.NullString
		busy      int
		createdAt string
		updatedAt string
	)
	err := row.Scan(&s.ID, &step, &s.Prompt, &questions, &form, &response, &ed,
		&s.LastError, &busy, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	s.Step = session.Step(step)
	s.Busy = busy != 0

	if questions.Valid {
		if err := json.Unmarshal([]byte(questions.String), &s.Questions); err != nil {
			return nil, fmt.Errorf("unmarshal questions: %w", err)
		}
	}
	if form.Valid {
		s.Form = &questionnaire.Form{}
		if err := json.Unmarshal([]byte(form.String), s.Form); err != nil {
			return nil, fmt.Errorf("unmarshal form: %w", err)
		}
	}
	if response.Valid {
		s.Response = &domain.ContractResponse{}
		if err := json.Unmarshal([]byte(response.String), s.Response); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
	}
	if ed.Valid {
		s.Editor = &editor.Editor{}
		if err := json.Unmarshal([]byte(ed.String), s.Editor); err != nil {
			return nil, fmt.Errorf("unmarshal editor: %w", err)
		}
	}

	if s.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if s.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
