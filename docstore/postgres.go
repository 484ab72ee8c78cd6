package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Postgres keeps documents in a JSONB table.
type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

// OpenPostgres connects with a lib/pq DSN and makes sure the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping document store: %w", err)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create document schema: %w", err)
	}
	return NewPostgres(db), nil
}

// NewPostgres wraps an already opened database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

func (p *Postgres) Put(ctx context.Context, doc Document) error {
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = p.now().UTC()
	}
	query := `
		INSERT INTO documents (collection, id, user_id, account_mode, body, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (collection, id) DO UPDATE
		SET account_mode = EXCLUDED.account_mode, body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
		WHERE documents.user_id = EXCLUDED.user_id`

	res, err := p.db.ExecContext(ctx, query,
		string(doc.Collection), doc.ID, doc.UserID, doc.Mode, []byte(doc.Body), doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", doc.Collection, doc.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", doc.Collection, doc.ID, err)
	}
	if n == 0 {
		// The id exists under another user.
		return fmt.Errorf("put %s/%s: %w", doc.Collection, doc.ID, ErrNotFound)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, c Collection, id, userID string) error {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2 AND user_id = $3`,
		string(c), id, userID)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", c, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", c, id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s/%s: %w", c, id, ErrNotFound)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, c Collection, id, userID string) (Document, error) {
	query := `
		SELECT collection, id, user_id, account_mode, body, updated_at
		FROM documents
		WHERE collection = $1 AND id = $2 AND user_id = $3`

	var (
		doc  Document
		coll string
		body []byte
	)
	err := p.db.QueryRowContext(ctx, query, string(c), id, userID).Scan(
		&coll, &doc.ID, &doc.UserID, &doc.Mode, &body, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	doc.Collection = Collection(coll)
	doc.Body = body
	return doc, nil
}

func (p *Postgres) List(ctx context.Context, c Collection, userID string) ([]Document, error) {
	query := `
		SELECT collection, id, user_id, account_mode, body, updated_at
		FROM documents
		WHERE collection = $1 AND user_id = $2
		ORDER BY id ASC`

	rows, err := p.db.QueryContext(ctx, query, string(c), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var (
			doc  Document
			coll string
			body []byte
		)
		if err := rows.Scan(&coll, &doc.ID, &doc.UserID, &doc.Mode, &body, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		doc.Collection = Collection(coll)
		doc.Body = body
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
