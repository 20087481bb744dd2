package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/store/migrations"
	"github.com/pressly/goose/v3"
)

// DBTX is the subset of database/sql used by the repository.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresStore struct {
	db     DBTX
	closer func() error
}

// NewPostgresStore wraps an open handle. Callers own the handle's lifetime.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db, closer: func() error { return nil }}
}

// OpenPostgres connects through the pgx stdlib driver and brings the schema
// up to date before returning.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return &PostgresStore{db: db, closer: db.Close}, nil
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}

func (s *PostgresStore) Close() error {
	return s.closer()
}

const callColumns = `id, users, created_at`

func scanCall(row interface{ Scan(...any) error }) (*models.Call, error) {
	call := &models.Call{}
	if err := row.Scan(&call.ID, pgtype.NewMap().SQLScanner(&call.Users), &call.CreatedAt); err != nil {
		return nil, err
	}
	if call.Users == nil {
		call.Users = []string{}
	}
	return call, nil
}

func (s *PostgresStore) queryCall(ctx context.Context, query string, args ...any) (*models.Call, error) {
	call, err := scanCall(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return call, nil
}

func (s *PostgresStore) AppendMember(ctx context.Context, callID, userID string) (*models.Call, error) {
	query :=
		`UPDATE calls SET users = ARRAY_APPEND(users, $1), updated_at = current_timestamp
		 WHERE id = $2
		 RETURNING ` + callColumns

	return s.queryCall(ctx, query, userID, callID)
}

func (s *PostgresStore) RemoveMember(ctx context.Context, callID, userID string) (*models.Call, error) {
	query :=
		`UPDATE calls SET users = ARRAY_REMOVE(users, $1), updated_at = current_timestamp
		 WHERE id = $2
		 RETURNING ` + callColumns

	return s.queryCall(ctx, query, userID, callID)
}

func (s *PostgresStore) GetCall(ctx context.Context, callID string) (*models.Call, error) {
	query :=
		`SELECT ` + callColumns + ` FROM calls
		 WHERE id = $1`

	return s.queryCall(ctx, query, callID)
}

func (s *PostgresStore) RemoveMemberFromAllCalls(ctx context.Context, userID string) ([]models.Call, error) {
	query :=
		`UPDATE calls SET users = ARRAY_REMOVE(users, $1), updated_at = current_timestamp
		 WHERE $1 = ANY(users)
		 RETURNING ` + callColumns

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var calls []models.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		calls = append(calls, *call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return calls, nil
}

func (s *PostgresStore) GetUsers(ctx context.Context, ids []string) ([]models.User, error) {
	users := []models.User{}
	if len(ids) == 0 {
		return users, nil
	}

	query :=
		`SELECT id, name FROM users
		 WHERE id = ANY($1::text[]::uuid[])`

	rows, err := s.db.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return users, nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, text, userID, callID string) (*models.Message, error) {
	query :=
		`INSERT INTO messages (text, user_id, call_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, text, user_id, call_id, created_at`

	m := &models.Message{}
	err := s.db.QueryRowContext(ctx, query, text, userID, callID).
		Scan(&m.ID, &m.Text, &m.UserID, &m.CallID, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return m, nil
}

func (s *PostgresStore) GetMessages(ctx context.Context, callID string) ([]models.Message, error) {
	query :=
		`SELECT messages.id, messages.text, messages.user_id, messages.call_id, messages.created_at, users.name
		 FROM messages JOIN users ON messages.user_id = users.id
		 WHERE messages.call_id = $1
		 ORDER BY messages.created_at`

	rows, err := s.db.QueryContext(ctx, query, callID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.Text, &m.UserID, &m.CallID, &m.CreatedAt, &m.UserName); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return messages, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, name string) (*models.User, error) {
	query :=
		`INSERT INTO users (name)
		 VALUES ($1)
		 RETURNING id, name`

	u := &models.User{}
	if err := s.db.QueryRowContext(ctx, query, name).Scan(&u.ID, &u.Name); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	query :=
		`SELECT id, name FROM users
		 WHERE id = $1`

	u := &models.User{}
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return u, nil
}

func (s *PostgresStore) CreateToken(ctx context.Context, userID, token string) (*models.Token, error) {
	query :=
		`INSERT INTO tokens (user_id, token)
		 VALUES ($1, $2)
		 RETURNING id, user_id, token, created_at`

	t := &models.Token{}
	err := s.db.QueryRowContext(ctx, query, userID, token).Scan(&t.ID, &t.UserID, &t.Token, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return t, nil
}

func (s *PostgresStore) GetUserByToken(ctx context.Context, token string) (*models.User, error) {
	query :=
		`SELECT users.id, users.name
		 FROM tokens JOIN users ON tokens.user_id = users.id
		 WHERE tokens.token = $1`

	u := &models.User{}
	if err := s.db.QueryRowContext(ctx, query, token).Scan(&u.ID, &u.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return u, nil
}

func (s *PostgresStore) CreateCall(ctx context.Context) (*models.Call, error) {
	query :=
		`INSERT INTO calls (users)
		 VALUES (ARRAY[]::VARCHAR[])
		 RETURNING ` + callColumns

	return s.queryCall(ctx, query)
}
