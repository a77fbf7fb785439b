package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image/png"
)

// SQLiteBackend keeps entries in a SQLite table. Images are stored as
// lossless PNG, so pixels survive the round trip unchanged.
type SQLiteBackend struct {
	DB *sql.DB
}

func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{DB: db}
}

// NewSQLite opens an in-memory database and returns a Store over it.
func NewSQLite() (*Store, *sql.DB, error) {
	db, err := OpenDB(MemoryDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	return New(NewSQLiteBackend(db)), db, nil
}

func (s *SQLiteBackend) Get(ctx context.Context, key string) (Value, bool, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT kind, content_type, source_format, payload
		 FROM entries WHERE key = ?`, key,
	)

	var kind, contentType, sourceFormat string
	var payload []byte
	if err := row.Scan(&kind, &contentType, &sourceFormat, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	switch Kind(kind) {
	case KindRaw:
		return Raw{ContentType: contentType, Data: payload}, true, nil
	case KindImage:
		// Decoded by Store after the read lock is released.
		return Image{SourceFormat: sourceFormat, encoded: payload}, true, nil
	}
	return nil, false, fmt.Errorf("unknown stored kind %q for key %q", kind, key)
}

type sqliteRow struct {
	kind         Kind
	contentType  string
	sourceFormat string
	payload      []byte
}

type sqliteRowBuilder struct {
	row sqliteRow
}

func (b *sqliteRowBuilder) VisitRaw(r Raw) error {
	b.row = sqliteRow{kind: KindRaw, contentType: r.ContentType, payload: r.Data}
	return nil
}

func (b *sqliteRowBuilder) VisitImage(i Image) error {
	if i.encoded == nil {
		return errors.New("image must be prepared before it is stored")
	}
	b.row = sqliteRow{kind: KindImage, sourceFormat: i.SourceFormat, payload: i.encoded}
	return nil
}

// prepare serializes images ahead of Put so the encode runs outside the
// exclusive lock.
func (s *SQLiteBackend) prepare(v Value) (Value, error) {
	img, ok := v.(Image)
	if !ok || img.encoded != nil {
		return v, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img.Bitmap); err != nil {
		return nil, fmt.Errorf("encode image for storage: %w", err)
	}
	img.encoded = buf.Bytes()
	return img, nil
}

func (s *SQLiteBackend) Put(ctx context.Context, key string, v Value) error {
	var b sqliteRowBuilder
	if err := v.Accept(&b); err != nil {
		return err
	}
	payload := b.row.payload
	if payload == nil {
		payload = []byte{}
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT OR REPLACE INTO entries (key, kind, content_type, source_format, payload)
		 VALUES (?, ?, ?, ?, ?)`,
		key, string(b.row.kind), b.row.contentType, b.row.sourceFormat, payload,
	)
	return err
}

func (s *SQLiteBackend) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteBackend) Clear(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM entries`)
	return err
}

func (s *SQLiteBackend) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT kind, COUNT(*) FROM entries GROUP BY kind`)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	var st Stats
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return Stats{}, err
		}
		switch Kind(kind) {
		case KindRaw:
			st.Raw = n
		case KindImage:
			st.Images = n
		}
	}
	return st, rows.Err()
}
