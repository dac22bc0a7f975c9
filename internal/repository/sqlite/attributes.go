package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"etlrepo/internal/domain"
)

// attributeTable describes one EAV table: its key column and the column
// holding the owner id.
type attributeTable struct {
	name        string
	idColumn    string
	ownerColumn string
}

var (
	transAttributes    = attributeTable{name: "r_trans_attribute", idColumn: "id_trans_attribute", ownerColumn: "id_transformation"}
	stepAttributes     = attributeTable{name: "r_step_attribute", idColumn: "id_step_attribute", ownerColumn: "id_step"}
	jobAttributes      = attributeTable{name: "r_job_attribute", idColumn: "id_job_attribute", ownerColumn: "id_job"}
	jobEntryAttributes = attributeTable{name: "r_jobentry_attribute", idColumn: "id_jobentry_attribute", ownerColumn: "id_jobentry"}
	databaseAttributes = attributeTable{name: "r_database_attribute", idColumn: "id_database_attribute", ownerColumn: "id_database"}
)

var attributeTables = []attributeTable{transAttributes, stepAttributes, jobAttributes, jobEntryAttributes, databaseAttributes}

func attributeTableFor(kind domain.Kind) (attributeTable, error) {
	switch kind {
	case domain.KindTransformation:
		return transAttributes, nil
	case domain.KindStep:
		return stepAttributes, nil
	case domain.KindJob:
		return jobAttributes, nil
	case domain.KindJobEntry:
		return jobEntryAttributes, nil
	case domain.KindDatabase:
		return databaseAttributes, nil
	}
	return attributeTable{}, fmt.Errorf("%s objects carry no attributes", kind)
}

type attributeRow struct {
	ID        int64           `db:"id"`
	Owner     int64           `db:"owner"`
	Nr        int             `db:"nr"`
	Code      string          `db:"code"`
	ValueType sql.NullString  `db:"value_type"`
	ValueInt  sql.NullInt64   `db:"value_int"`
	ValueNum  sql.NullFloat64 `db:"value_num"`
	ValueStr  sql.NullString  `db:"value_str"`
}

func (r *attributeRow) toDomain() domain.AttributeRecord {
	var v domain.AttributeValue
	switch domain.AttributeType(firstByte(r.ValueType.String)) {
	case domain.AttrBoolean:
		v = domain.BoolValue(r.ValueInt.Int64 != 0)
	case domain.AttrInteger:
		v = domain.IntValue(r.ValueInt.Int64)
	case domain.AttrReal:
		v = domain.RealValue(r.ValueNum.Float64)
	default:
		v = domain.StringValue(nullToString(r.ValueStr))
	}
	return domain.AttributeRecord{OwnerID: domain.ObjectID(r.Owner), Code: r.Code, Index: r.Nr, Value: v}
}

func firstByte(s string) byte {
	if s == "" {
		return byte(domain.AttrString)
	}
	return s[0]
}

// attributeColumns returns the typed column values of v
func attributeColumns(v domain.AttributeValue) (string, sql.NullInt64, sql.NullFloat64, sql.NullString) {
	var (
		vi sql.NullInt64
		vn sql.NullFloat64
		vs sql.NullString
	)
	switch v.Type() {
	case domain.AttrBoolean, domain.AttrInteger:
		vi = sql.NullInt64{Int64: v.Integer(), Valid: true}
	case domain.AttrReal:
		vn = sql.NullFloat64{Float64: v.Real(), Valid: true}
	}
	vs = sql.NullString{String: v.String(), Valid: true}
	return string(byte(v.Type())), vi, vn, vs
}

// AttributeStore reads and writes one attribute table
type AttributeStore struct {
	q     execer
	table attributeTable
}

func newAttributeStore(q execer, table attributeTable) *AttributeStore {
	return &AttributeStore{q: q, table: table}
}

// Attributes returns the attribute store of an owner kind (transformation,
// step, job, job entry or database connection).
func (r *Repository) Attributes(kind domain.Kind) (*AttributeStore, error) {
	table, err := attributeTableFor(kind)
	if err != nil {
		return nil, err
	}
	return newAttributeStore(r.db, table), nil
}

func (s *AttributeStore) selectSQL(where string) string {
	return fmt.Sprintf(`SELECT %s AS id, %s AS owner, nr, code, value_type, value_int, value_num, value_str
		FROM %s WHERE %s ORDER BY code, nr`, s.table.idColumn, s.table.ownerColumn, s.table.name, where)
}

// Get returns the stored value of (code, index)
func (s *AttributeStore) Get(ctx context.Context, owner domain.ObjectID, code string, index int) (domain.AttributeValue, bool, error) {
	var row attributeRow
	query := s.selectSQL(fmt.Sprintf("%s = ? AND code = ? AND nr = ?", s.table.ownerColumn))
	err := s.q.GetContext(ctx, &row, query, owner, code, index)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AttributeValue{}, false, nil
	}
	if err != nil {
		return domain.AttributeValue{}, false, domain.NewBackingStoreError("get attribute "+code, err)
	}
	return row.toDomain().Value, true, nil
}

// GetBoolean returns the boolean at (code, index) or the default
func (s *AttributeStore) GetBoolean(ctx context.Context, owner domain.ObjectID, code string, index int, def ...bool) (bool, error) {
	v, ok, err := s.Get(ctx, owner, code, index)
	if err != nil || !ok {
		return firstOr(def, false), err
	}
	return v.Boolean(), nil
}

// GetInteger returns the integer at (code, index) or the default
func (s *AttributeStore) GetInteger(ctx context.Context, owner domain.ObjectID, code string, index int, def ...int64) (int64, error) {
	v, ok, err := s.Get(ctx, owner, code, index)
	if err != nil || !ok {
		return firstOr(def, 0), err
	}
	return v.Integer(), nil
}

// GetDouble returns the real at (code, index) or the default
func (s *AttributeStore) GetDouble(ctx context.Context, owner domain.ObjectID, code string, index int, def ...float64) (float64, error) {
	v, ok, err := s.Get(ctx, owner, code, index)
	if err != nil || !ok {
		return firstOr(def, 0), err
	}
	return v.Real(), nil
}

// GetString returns the string at (code, index) or the default
func (s *AttributeStore) GetString(ctx context.Context, owner domain.ObjectID, code string, index int, def ...string) (string, error) {
	v, ok, err := s.Get(ctx, owner, code, index)
	if err != nil || !ok {
		return firstOr(def, ""), err
	}
	return v.String(), nil
}

func firstOr[T any](values []T, zero T) T {
	if len(values) > 0 {
		return values[0]
	}
	return zero
}

// Count returns the number of distinct indexes stored under code
func (s *AttributeStore) Count(ctx context.Context, owner domain.ObjectID, code string) (int, error) {
	var n int
	query := fmt.Sprintf("SELECT COUNT(DISTINCT nr) FROM %s WHERE %s = ? AND code = ?", s.table.name, s.table.ownerColumn)
	if err := s.q.GetContext(ctx, &n, query, owner, code); err != nil {
		return 0, domain.NewBackingStoreError("count attribute "+code, err)
	}
	return n, nil
}

// Load returns every record of owner ordered by code and index
func (s *AttributeStore) Load(ctx context.Context, owner domain.ObjectID) ([]domain.AttributeRecord, error) {
	var rows []attributeRow
	if err := s.q.SelectContext(ctx, &rows, s.selectSQL(s.table.ownerColumn+" = ?"), owner); err != nil {
		return nil, domain.NewBackingStoreError("load attributes", err)
	}
	records := make([]domain.AttributeRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toDomain())
	}
	return records, nil
}

// loadOwners returns the records of many owners grouped by owner id
func (s *AttributeStore) loadOwners(ctx context.Context, owners []domain.ObjectID) (map[domain.ObjectID][]domain.AttributeRecord, error) {
	out := make(map[domain.ObjectID][]domain.AttributeRecord)
	if len(owners) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(s.selectSQL(s.table.ownerColumn+" IN (?)"), owners)
	if err != nil {
		return nil, fmt.Errorf("build attribute query: %w", err)
	}
	var rows []attributeRow
	if err := s.q.SelectContext(ctx, &rows, s.q.Rebind(query), args...); err != nil {
		return nil, domain.NewBackingStoreError("load attributes", err)
	}
	for i := range rows {
		rec := rows[i].toDomain()
		out[rec.OwnerID] = append(out[rec.OwnerID], rec)
	}
	return out, nil
}

// ReplaceAll deletes every record of owner and inserts records. Outside a
// transaction it opens one so the replacement is atomic.
func (s *AttributeStore) ReplaceAll(ctx context.Context, owner domain.ObjectID, records []domain.AttributeRecord) error {
	if db, ok := s.q.(*sqlx.DB); ok {
		return transact(ctx, db, func(tx *sqlx.Tx) error {
			return newAttributeStore(tx, s.table).replaceAll(ctx, owner, records)
		})
	}
	return s.replaceAll(ctx, owner, records)
}

func (s *AttributeStore) replaceAll(ctx context.Context, owner domain.ObjectID, records []domain.AttributeRecord) error {
	if err := s.deleteOwners(ctx, []domain.ObjectID{owner}); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	id, err := nextID(ctx, s.q, s.table.name, s.table.idColumn)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s, %s, nr, code, value_type, value_int, value_num, value_str)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.table.name, s.table.idColumn, s.table.ownerColumn)
	for _, rec := range records {
		vt, vi, vn, vs := attributeColumns(rec.Value)
		if err := exec(ctx, s.q, "insert attribute "+rec.Code, query, id, owner, rec.Index, rec.Code, vt, vi, vn, vs); err != nil {
			return err
		}
		id++
	}
	return nil
}

func (s *AttributeStore) deleteOwners(ctx context.Context, owners []domain.ObjectID) error {
	return deleteIn(ctx, s.q, s.table.name, s.table.ownerColumn, owners)
}
