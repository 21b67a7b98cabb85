package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"payables/internal/domain"
	"payables/internal/port"
)

// Store implements port.RecordStore over a single jsonb records table, so
// the engine can run against Postgres instead of a hosted base.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a Postgres-backed record store.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type recordRow struct {
	ID          string    `db:"id"`
	Fields      []byte    `db:"fields"`
	CreatedTime time.Time `db:"created_time"`
}

func (r *recordRow) toPort() (*port.Record, error) {
	fields := map[string]any{}
	if len(r.Fields) > 0 {
		if err := json.Unmarshal(r.Fields, &fields); err != nil {
			return nil, fmt.Errorf("unmarshaling record fields: %w", err)
		}
	}
	return &port.Record{ID: r.ID, Fields: fields, CreatedTime: r.CreatedTime}, nil
}

// Get fetches a single record by id.
func (s *Store) Get(ctx context.Context, table, id string) (*port.Record, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, fields, created_time FROM records WHERE table_name = $1 AND id = $2`,
		table, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s/%s: %w", table, id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying record: %w", err)
	}
	return row.toPort()
}

// List fetches records matching the query.
func (s *Store) List(ctx context.Context, table string, q port.Query) ([]port.Record, error) {
	query := `SELECT id, fields, created_time FROM records WHERE table_name = $1`
	args := []any{table}

	where, whereArgs := compileWhere(q.Conditions, len(args))
	query += where
	args = append(args, whereArgs...)
	query += compileOrder(q.Sort)
	if q.MaxRecords > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.MaxRecords)
	}

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	out := make([]port.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toPort()
		if err != nil {
			return nil, err
		}
		if len(q.Fields) > 0 {
			rec.Fields = projectFields(rec.Fields, q.Fields)
		}
		out = append(out, *rec)
	}
	return out, nil
}

// Create inserts records, generating Airtable-shaped ids so the two
// backends are interchangeable on the wire.
func (s *Store) Create(ctx context.Context, table string, fields []map[string]any) ([]port.Record, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]port.Record, 0, len(fields))
	for _, f := range fields {
		encoded, err := json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("marshaling record fields: %w", err)
		}
		var row recordRow
		err = tx.GetContext(ctx, &row,
			`INSERT INTO records (id, table_name, fields) VALUES ($1, $2, $3)
			 RETURNING id, fields, created_time`,
			newRecordID(), table, encoded)
		if err != nil {
			return nil, fmt.Errorf("inserting record: %w", err)
		}
		rec, err := row.toPort()
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return out, nil
}

// Update merges each patch into the stored jsonb fields.
func (s *Store) Update(ctx context.Context, table string, patches []port.RecordPatch) ([]port.Record, error) {
	out := make([]port.Record, 0, len(patches))
	for _, p := range patches {
		encoded, err := json.Marshal(p.Fields)
		if err != nil {
			return out, fmt.Errorf("marshaling patch fields: %w", err)
		}
		var row recordRow
		err = s.db.GetContext(ctx, &row,
			`UPDATE records SET fields = fields || $1
			 WHERE table_name = $2 AND id = $3
			 RETURNING id, fields, created_time`,
			encoded, table, p.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return out, fmt.Errorf("record %s/%s: %w", table, p.ID, domain.ErrNotFound)
		}
		if err != nil {
			return out, fmt.Errorf("updating record: %w", err)
		}
		rec, err := row.toPort()
		if err != nil {
			return out, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func projectFields(fields map[string]any, keep []string) map[string]any {
	out := make(map[string]any, len(keep))
	for _, k := range keep {
		if v, ok := fields[k]; ok {
			out[k] = v
		}
	}
	return out
}

// newRecordID mimics Airtable's rec-prefixed id shape.
func newRecordID() string {
	return "rec" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}
