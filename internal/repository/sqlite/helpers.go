package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"etlrepo/internal/domain"
)

// ============================================================================
// Query Helpers
// ============================================================================

// execer is satisfied by both *sqlx.DB and *sqlx.Tx. Code running inside a
// transaction must only use the transaction: the pool has a single
// connection and would block.
type execer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// transact runs fn in a transaction, committing on success and rolling back
// on error or panic.
func transact(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.NewBackingStoreError("begin transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return domain.NewBackingStoreError("commit", err)
	}
	return nil
}

// nextID returns the next free id of a table. It must run inside the
// transaction that inserts the row.
func nextID(ctx context.Context, q execer, table, column string) (domain.ObjectID, error) {
	var id int64
	query := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) + 1 FROM %s", column, table)
	if err := q.QueryRowxContext(ctx, query).Scan(&id); err != nil {
		return 0, domain.NewBackingStoreError("next id for "+table, err)
	}
	return domain.ObjectID(id), nil
}

// exec runs a statement and classifies failures as backing store errors
func exec(ctx context.Context, q execer, op, query string, args ...interface{}) error {
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return domain.NewBackingStoreError(op, err)
	}
	return nil
}

// selectIDs runs a single-column id query
func selectIDs(ctx context.Context, q execer, query string, args ...interface{}) ([]domain.ObjectID, error) {
	var ids []domain.ObjectID
	if err := q.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, domain.NewBackingStoreError("select ids", err)
	}
	return ids, nil
}

// deleteIn deletes rows whose column is in ids
func deleteIn(ctx context.Context, q execer, table, column string, ids []domain.ObjectID) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(fmt.Sprintf("DELETE FROM %s WHERE %s IN (?)", table, column), ids)
	if err != nil {
		return fmt.Errorf("build delete on %s: %w", table, err)
	}
	return exec(ctx, q, "delete from "+table, q.Rebind(query), args...)
}

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullToTime returns the zero time for NULL
func nullToTime(nt sql.NullTime) time.Time {
	if nt.Valid {
		return nt.Time
	}
	return time.Time{}
}

// timeToNull stores the zero time as NULL
func timeToNull(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// nullToID maps NULL and 0 to the zero id
func nullToID(ni sql.NullInt64) domain.ObjectID {
	if ni.Valid {
		return domain.ObjectID(ni.Int64)
	}
	return 0
}

// idToNull stores the zero id as NULL
func idToNull(id domain.ObjectID) sql.NullInt64 {
	if id.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(id), Valid: true}
}

// ============================================================================
// Row Scanners
// ============================================================================
//
// Every row struct maps a fixed column list through sqlx `db` tags. When a
// column is added, update the struct, its column constant and toDomain
// together; sqlx fails on columns without a destination.

const directoryColumns = "id_directory, id_directory_parent, directory_name"

type directoryRow struct {
	ID       int64         `db:"id_directory"`
	ParentID sql.NullInt64 `db:"id_directory_parent"`
	Name     string        `db:"directory_name"`
}

const transformationColumns = `id_transformation, id_directory, name, description, extended_description,
	created_user, created_date, modified_user, modified_date`

type transformationRow struct {
	ID                  int64          `db:"id_transformation"`
	DirectoryID         int64          `db:"id_directory"`
	Name                string         `db:"name"`
	Description         sql.NullString `db:"description"`
	ExtendedDescription sql.NullString `db:"extended_description"`
	CreatedUser         sql.NullString `db:"created_user"`
	CreatedDate         sql.NullTime   `db:"created_date"`
	ModifiedUser        sql.NullString `db:"modified_user"`
	ModifiedDate        sql.NullTime   `db:"modified_date"`
}

func (r *transformationRow) toDomain(dirPath string) *domain.Transformation {
	t := domain.NewTransformation(r.Name, dirPath)
	t.ID = domain.ObjectID(r.ID)
	t.Description = nullToString(r.Description)
	t.ExtendedDescription = nullToString(r.ExtendedDescription)
	t.Audit = domain.Audit{
		CreatedUser:  nullToString(r.CreatedUser),
		CreatedDate:  nullToTime(r.CreatedDate),
		ModifiedUser: nullToString(r.ModifiedUser),
		ModifiedDate: nullToTime(r.ModifiedDate),
	}
	return t
}

const jobColumns = `id_job, id_directory, name, description, extended_description,
	created_user, created_date, modified_user, modified_date`

type jobRow struct {
	ID                  int64          `db:"id_job"`
	DirectoryID         int64          `db:"id_directory"`
	Name                string         `db:"name"`
	Description         sql.NullString `db:"description"`
	ExtendedDescription sql.NullString `db:"extended_description"`
	CreatedUser         sql.NullString `db:"created_user"`
	CreatedDate         sql.NullTime   `db:"created_date"`
	ModifiedUser        sql.NullString `db:"modified_user"`
	ModifiedDate        sql.NullTime   `db:"modified_date"`
}

func (r *jobRow) toDomain(dirPath string) *domain.Job {
	j := domain.NewJob(r.Name, dirPath)
	j.ID = domain.ObjectID(r.ID)
	j.Description = nullToString(r.Description)
	j.ExtendedDescription = nullToString(r.ExtendedDescription)
	j.Audit = domain.Audit{
		CreatedUser:  nullToString(r.CreatedUser),
		CreatedDate:  nullToTime(r.CreatedDate),
		ModifiedUser: nullToString(r.ModifiedUser),
		ModifiedDate: nullToTime(r.ModifiedDate),
	}
	return j
}

const stepColumns = `id_step, id_transformation, name, description, step_type, distribute, copies,
	gui_location_x, gui_location_y, gui_draw, id_cluster_schema, id_partition_schema`

type stepRow struct {
	ID                int64          `db:"id_step"`
	TransformationID  int64          `db:"id_transformation"`
	Name              string         `db:"name"`
	Description       sql.NullString `db:"description"`
	Type              string         `db:"step_type"`
	Distribute        bool           `db:"distribute"`
	Copies            int            `db:"copies"`
	X                 int            `db:"gui_location_x"`
	Y                 int            `db:"gui_location_y"`
	Draw              bool           `db:"gui_draw"`
	ClusterSchemaID   sql.NullInt64  `db:"id_cluster_schema"`
	PartitionSchemaID sql.NullInt64  `db:"id_partition_schema"`
}

func (r *stepRow) toDomain() *domain.Step {
	s := domain.NewStep(r.Name, r.Type)
	s.ID = domain.ObjectID(r.ID)
	s.Description = nullToString(r.Description)
	s.Distribute = r.Distribute
	s.Copies = r.Copies
	s.X, s.Y = r.X, r.Y
	s.Draw = r.Draw
	return s
}

const jobEntryColumns = "id_jobentry, id_job, name, description, jobentry_type, gui_location_x, gui_location_y"

type jobEntryRow struct {
	ID          int64          `db:"id_jobentry"`
	JobID       int64          `db:"id_job"`
	Name        string         `db:"name"`
	Description sql.NullString `db:"description"`
	Type        string         `db:"jobentry_type"`
	X           int            `db:"gui_location_x"`
	Y           int            `db:"gui_location_y"`
}

func (r *jobEntryRow) toDomain() *domain.JobEntry {
	e := domain.NewJobEntry(r.Name, r.Type)
	e.ID = domain.ObjectID(r.ID)
	e.Description = nullToString(r.Description)
	e.X, e.Y = r.X, r.Y
	return e
}

const noteColumns = "n.id_note, n.value_str, n.gui_location_x, n.gui_location_y, n.gui_location_width, n.gui_location_height"

type noteRow struct {
	ID     int64          `db:"id_note"`
	Text   sql.NullString `db:"value_str"`
	X      int            `db:"gui_location_x"`
	Y      int            `db:"gui_location_y"`
	Width  int            `db:"gui_location_width"`
	Height int            `db:"gui_location_height"`
}

func (r *noteRow) toDomain() *domain.Note {
	return &domain.Note{
		ID:     domain.ObjectID(r.ID),
		Text:   nullToString(r.Text),
		X:      r.X,
		Y:      r.Y,
		Width:  r.Width,
		Height: r.Height,
	}
}

const conditionColumns = `id_condition, id_condition_parent, negated, operator, left_name,
	condition_function, right_name, value_str`

type conditionRow struct {
	ID        int64          `db:"id_condition"`
	ParentID  sql.NullInt64  `db:"id_condition_parent"`
	Negated   bool           `db:"negated"`
	Operator  sql.NullString `db:"operator"`
	LeftName  sql.NullString `db:"left_name"`
	Function  sql.NullString `db:"condition_function"`
	RightName sql.NullString `db:"right_name"`
	ValueStr  sql.NullString `db:"value_str"`
}

func (r *conditionRow) toDomain() *domain.Condition {
	return &domain.Condition{
		ID:         domain.ObjectID(r.ID),
		Negate:     r.Negated,
		Operator:   nullToString(r.Operator),
		LeftField:  nullToString(r.LeftName),
		Function:   nullToString(r.Function),
		RightField: nullToString(r.RightName),
		Value:      nullToString(r.ValueStr),
	}
}

const databaseColumns = `id_database, name, database_type, access_type, host_name, database_name, port,
	username, password, servername, data_tbs, index_tbs`

type databaseRow struct {
	ID           int64          `db:"id_database"`
	Name         string         `db:"name"`
	Type         sql.NullString `db:"database_type"`
	Access       sql.NullString `db:"access_type"`
	Host         sql.NullString `db:"host_name"`
	DatabaseName sql.NullString `db:"database_name"`
	Port         sql.NullString `db:"port"`
	Username     sql.NullString `db:"username"`
	Password     sql.NullString `db:"password"`
	Servername   sql.NullString `db:"servername"`
	DataTBS      sql.NullString `db:"data_tbs"`
	IndexTBS     sql.NullString `db:"index_tbs"`
}

func (r *databaseRow) toDomain() *domain.DatabaseConnection {
	return &domain.DatabaseConnection{
		ID:           domain.ObjectID(r.ID),
		Name:         r.Name,
		Type:         nullToString(r.Type),
		Access:       nullToString(r.Access),
		Host:         nullToString(r.Host),
		DatabaseName: nullToString(r.DatabaseName),
		Port:         nullToString(r.Port),
		Username:     nullToString(r.Username),
		Password:     nullToString(r.Password),
		Servername:   nullToString(r.Servername),
		DataTBS:      nullToString(r.DataTBS),
		IndexTBS:     nullToString(r.IndexTBS),
		Attributes:   domain.NewAttributeSet(),
	}
}

const slaveColumns = `id_slave, name, host_name, port, web_app_name, username, password,
	proxy_host_name, proxy_port, non_proxy_hosts, master`

type slaveRow struct {
	ID            int64          `db:"id_slave"`
	Name          string         `db:"name"`
	Host          sql.NullString `db:"host_name"`
	Port          sql.NullString `db:"port"`
	WebAppName    sql.NullString `db:"web_app_name"`
	Username      sql.NullString `db:"username"`
	Password      sql.NullString `db:"password"`
	ProxyHost     sql.NullString `db:"proxy_host_name"`
	ProxyPort     sql.NullString `db:"proxy_port"`
	NonProxyHosts sql.NullString `db:"non_proxy_hosts"`
	Master        bool           `db:"master"`
}

func (r *slaveRow) toDomain() *domain.SlaveServer {
	return &domain.SlaveServer{
		ID:            domain.ObjectID(r.ID),
		Name:          r.Name,
		Host:          nullToString(r.Host),
		Port:          nullToString(r.Port),
		WebAppName:    nullToString(r.WebAppName),
		Username:      nullToString(r.Username),
		Password:      nullToString(r.Password),
		ProxyHost:     nullToString(r.ProxyHost),
		ProxyPort:     nullToString(r.ProxyPort),
		NonProxyHosts: nullToString(r.NonProxyHosts),
		Master:        r.Master,
	}
}

const clusterColumns = "id_cluster, name, base_port, sockets_buffer_size, sockets_flush_interval, sockets_compressed, dynamic_cluster"

type clusterRow struct {
	ID                   int64          `db:"id_cluster"`
	Name                 string         `db:"name"`
	BasePort             sql.NullString `db:"base_port"`
	SocketsBufferSize    sql.NullString `db:"sockets_buffer_size"`
	SocketsFlushInterval sql.NullString `db:"sockets_flush_interval"`
	SocketsCompressed    bool           `db:"sockets_compressed"`
	Dynamic              bool           `db:"dynamic_cluster"`
}

func (r *clusterRow) toDomain() *domain.ClusterSchema {
	return &domain.ClusterSchema{
		ID:                   domain.ObjectID(r.ID),
		Name:                 r.Name,
		BasePort:             nullToString(r.BasePort),
		SocketsBufferSize:    nullToString(r.SocketsBufferSize),
		SocketsFlushInterval: nullToString(r.SocketsFlushInterval),
		SocketsCompressed:    r.SocketsCompressed,
		Dynamic:              r.Dynamic,
	}
}

const partitionSchemaColumns = "id_partition_schema, name, dynamic_definition, partitions_per_slave"

type partitionSchemaRow struct {
	ID                 int64          `db:"id_partition_schema"`
	Name               string         `db:"name"`
	Dynamic            bool           `db:"dynamic_definition"`
	PartitionsPerSlave sql.NullString `db:"partitions_per_slave"`
}

func (r *partitionSchemaRow) toDomain() *domain.PartitionSchema {
	return &domain.PartitionSchema{
		ID:                 domain.ObjectID(r.ID),
		Name:               r.Name,
		Dynamic:            r.Dynamic,
		PartitionsPerSlave: nullToString(r.PartitionsPerSlave),
	}
}

const userColumns = "id_user, login, password, name, description, enabled"

type userRow struct {
	ID          int64          `db:"id_user"`
	Login       string         `db:"login"`
	Password    sql.NullString `db:"password"`
	Name        sql.NullString `db:"name"`
	Description sql.NullString `db:"description"`
	Enabled     bool           `db:"enabled"`
}

func (r *userRow) toDomain() *domain.User {
	return &domain.User{
		ID:           domain.ObjectID(r.ID),
		Login:        r.Login,
		PasswordHash: nullToString(r.Password),
		Name:         nullToString(r.Name),
		Description:  nullToString(r.Description),
		Enabled:      r.Enabled,
	}
}

const logColumns = "id_repository_log, rep_version, log_date, log_user, operation_desc"

type logRow struct {
	ID          int64          `db:"id_repository_log"`
	Version     sql.NullString `db:"rep_version"`
	Date        sql.NullTime   `db:"log_date"`
	User        sql.NullString `db:"log_user"`
	Description sql.NullString `db:"operation_desc"`
}

func (r *logRow) toDomain() domain.LogEntry {
	return domain.LogEntry{
		ID:          domain.ObjectID(r.ID),
		Version:     nullToString(r.Version),
		Date:        nullToTime(r.Date),
		User:        nullToString(r.User),
		Description: nullToString(r.Description),
	}
}

// notFoundOr maps sql.ErrNoRows to ErrNotFound and classifies every other
// failure as a backing store error.
func notFoundOr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return domain.NewBackingStoreError("load "+what, err)
}
