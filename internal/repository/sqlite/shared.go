package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"etlrepo/internal/domain"
)

// ============================================================================
// Save
// ============================================================================

// linkShared stores a shared object a transformation or job carries. When
// an object of that name is stored already, only its id is adopted: the row
// stays as it was committed, and a lock on it does not block the save.
func (s *saver) linkShared(ctx context.Context, obj domain.SharedObject) error {
	if s.seen[obj] {
		return nil
	}
	table, err := objectTableFor(obj.Kind())
	if err != nil {
		return err
	}
	id, err := lookupID(ctx, s.q, table, obj.ObjectName(), 0)
	if err != nil {
		return err
	}
	if id.IsZero() {
		return s.saveShared(ctx, obj)
	}
	s.seen[obj] = true
	field := sharedIDField(obj)
	if field == nil {
		return fmt.Errorf("save: %s is not a shared object", obj.Kind())
	}
	s.assign(field, id)
	return nil
}

func sharedIDField(obj domain.SharedObject) *domain.ObjectID {
	switch o := obj.(type) {
	case *domain.DatabaseConnection:
		return &o.ID
	case *domain.SlaveServer:
		return &o.ID
	case *domain.ClusterSchema:
		return &o.ID
	case *domain.PartitionSchema:
		return &o.ID
	}
	return nil
}

// saveShared upserts a shared object by name. A stored object with the same
// name is replaced and its id adopted, so an object is never duplicated.
// Only explicit saves of the object itself go through here.
func (s *saver) saveShared(ctx context.Context, obj domain.SharedObject) error {
	if s.seen[obj] {
		return nil
	}
	s.seen[obj] = true

	table, err := objectTableFor(obj.Kind())
	if err != nil {
		return err
	}
	id := obj.ObjectID()
	byName, err := lookupID(ctx, s.q, table, obj.ObjectName(), 0)
	if err != nil {
		return err
	}

	existing := false
	switch {
	case !byName.IsZero():
		id, existing = byName, true
	case !id.IsZero():
		if existing, err = rowExists(ctx, s.q, obj.Kind(), id); err != nil {
			return err
		}
	}
	if existing {
		if err := s.r.checkWritable(obj.Kind(), id); err != nil {
			return err
		}
		err := exec(ctx, s.q, "replace "+obj.Kind().String(),
			fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table.name, table.idColumn), id)
		if err != nil {
			return err
		}
	} else if id, err = nextID(ctx, s.q, table.name, table.idColumn); err != nil {
		return err
	}

	switch o := obj.(type) {
	case *domain.DatabaseConnection:
		s.assign(&o.ID, id)
		err = s.writeDatabase(ctx, o)
	case *domain.SlaveServer:
		s.assign(&o.ID, id)
		err = s.writeSlave(ctx, o)
	case *domain.ClusterSchema:
		s.assign(&o.ID, id)
		err = s.writeCluster(ctx, o)
	case *domain.PartitionSchema:
		s.assign(&o.ID, id)
		err = s.writePartitionSchema(ctx, o)
	default:
		err = fmt.Errorf("save: %s is not a shared object", obj.Kind())
	}
	if err != nil {
		return err
	}
	s.shared = append(s.shared, obj)
	return nil
}

func (s *saver) writeDatabase(ctx context.Context, d *domain.DatabaseConnection) error {
	err := exec(ctx, s.q, "insert database "+d.Name,
		"INSERT INTO r_database ("+databaseColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		d.ID, d.Name, stringToNull(d.Type), stringToNull(d.Access), stringToNull(d.Host), stringToNull(d.DatabaseName),
		stringToNull(d.Port), stringToNull(d.Username), stringToNull(d.Password), stringToNull(d.Servername),
		stringToNull(d.DataTBS), stringToNull(d.IndexTBS))
	if err != nil {
		return err
	}
	return newAttributeStore(s.q, databaseAttributes).replaceAll(ctx, d.ID, d.Attributes.Records(d.ID))
}

func (s *saver) writeSlave(ctx context.Context, sl *domain.SlaveServer) error {
	return exec(ctx, s.q, "insert slave server "+sl.Name,
		"INSERT INTO r_slave ("+slaveColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		sl.ID, sl.Name, stringToNull(sl.Host), stringToNull(sl.Port), stringToNull(sl.WebAppName),
		stringToNull(sl.Username), stringToNull(sl.Password), stringToNull(sl.ProxyHost), stringToNull(sl.ProxyPort),
		stringToNull(sl.NonProxyHosts), sl.Master)
}

func (s *saver) writeCluster(ctx context.Context, c *domain.ClusterSchema) error {
	err := exec(ctx, s.q, "insert cluster schema "+c.Name,
		"INSERT INTO r_cluster ("+clusterColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		c.ID, c.Name, stringToNull(c.BasePort), stringToNull(c.SocketsBufferSize), stringToNull(c.SocketsFlushInterval),
		c.SocketsCompressed, c.Dynamic)
	if err != nil {
		return err
	}
	if err := exec(ctx, s.q, "delete cluster slaves", "DELETE FROM r_cluster_slave WHERE id_cluster = ?", c.ID); err != nil {
		return err
	}
	for _, name := range c.SlaveServers {
		slaveID, err := s.sharedID(ctx, domain.KindSlaveServer, name)
		if err != nil {
			return fmt.Errorf("cluster schema %s: %w", c.Name, err)
		}
		if err := s.link(ctx, "r_cluster_slave", "id_cluster_slave", "id_cluster", "id_slave", c.ID, slaveID); err != nil {
			return err
		}
	}
	return nil
}

func (s *saver) writePartitionSchema(ctx context.Context, p *domain.PartitionSchema) error {
	err := exec(ctx, s.q, "insert partition schema "+p.Name,
		"INSERT INTO r_partition_schema ("+partitionSchemaColumns+") VALUES (?, ?, ?, ?)",
		p.ID, p.Name, p.Dynamic, stringToNull(p.PartitionsPerSlave))
	if err != nil {
		return err
	}
	if err := exec(ctx, s.q, "delete partitions", "DELETE FROM r_partition WHERE id_partition_schema = ?", p.ID); err != nil {
		return err
	}
	for _, partition := range p.Partitions {
		id, err := nextID(ctx, s.q, "r_partition", "id_partition")
		if err != nil {
			return err
		}
		err = exec(ctx, s.q, "insert partition",
			"INSERT INTO r_partition (id_partition, id_partition_schema, partition_id) VALUES (?, ?, ?)", id, p.ID, partition)
		if err != nil {
			return err
		}
	}
	return nil
}

// sharedID returns the id of the stored shared object of kind named name
func (s *saver) sharedID(ctx context.Context, kind domain.Kind, name string) (domain.ObjectID, error) {
	table, err := objectTableFor(kind)
	if err != nil {
		return 0, err
	}
	id, err := lookupID(ctx, s.q, table, name, 0)
	if err != nil {
		return 0, err
	}
	if id.IsZero() {
		return 0, fmt.Errorf("%s %q: %w", kind, name, domain.ErrNotFound)
	}
	return id, nil
}

// ============================================================================
// Delete
// ============================================================================

// usage is one way a shared object can be referenced: owners in ownerTable
// whose id appears in linkTable next to the shared object's id.
type usage struct {
	label       string
	ownerTable  string
	ownerColumn string
	linkTable   string
	linkColumn  string
}

var sharedUsages = map[domain.Kind][]usage{
	domain.KindDatabase: {
		{"transformation", "r_transformation", "id_transformation", "r_step_database", "id_database"},
		{"transformation", "r_transformation", "id_transformation", "r_dependency", "id_database"},
		{"job", "r_job", "id_job", "r_jobentry_database", "id_database"},
	},
	domain.KindSlaveServer: {
		{"cluster schema", "r_cluster", "id_cluster", "r_cluster_slave", "id_slave"},
		{"transformation", "r_transformation", "id_transformation", "r_trans_slave", "id_slave"},
		{"job", "r_job", "id_job", "r_job_slave", "id_slave"},
	},
	domain.KindClusterSchema: {
		{"transformation", "r_transformation", "id_transformation", "r_trans_cluster", "id_cluster"},
		{"transformation", "r_transformation", "id_transformation", "r_step", "id_cluster_schema"},
	},
	domain.KindPartitionSchema: {
		{"transformation", "r_transformation", "id_transformation", "r_trans_partition_schema", "id_partition_schema"},
		{"transformation", "r_transformation", "id_transformation", "r_step", "id_partition_schema"},
	},
}

// referencedBy lists the objects still referencing a shared object, as
// "kind name" labels.
func referencedBy(ctx context.Context, q execer, kind domain.Kind, id domain.ObjectID) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, u := range sharedUsages[kind] {
		var names []string
		query := fmt.Sprintf("SELECT name FROM %s WHERE %s IN (SELECT %s FROM %s WHERE %s = ?)",
			u.ownerTable, u.ownerColumn, u.ownerColumn, u.linkTable, u.linkColumn)
		if err := q.SelectContext(ctx, &names, query, id); err != nil {
			return nil, domain.NewBackingStoreError("check references", err)
		}
		for _, name := range names {
			label := u.label + " " + name
			if !seen[label] {
				seen[label] = true
				out = append(out, label)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// delShared deletes an unreferenced shared object and its owned rows
func delShared(ctx context.Context, q execer, kind domain.Kind, id domain.ObjectID, name string) error {
	users, err := referencedBy(ctx, q, kind, id)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return &domain.DependencyError{Kind: kind, Name: name, ReferencedBy: users}
	}

	switch kind {
	case domain.KindDatabase:
		if err := newAttributeStore(q, databaseAttributes).deleteOwners(ctx, []domain.ObjectID{id}); err != nil {
			return err
		}
		return exec(ctx, q, "delete database", "DELETE FROM r_database WHERE id_database = ?", id)
	case domain.KindSlaveServer:
		return exec(ctx, q, "delete slave server", "DELETE FROM r_slave WHERE id_slave = ?", id)
	case domain.KindClusterSchema:
		if err := exec(ctx, q, "delete cluster slaves", "DELETE FROM r_cluster_slave WHERE id_cluster = ?", id); err != nil {
			return err
		}
		return exec(ctx, q, "delete cluster schema", "DELETE FROM r_cluster WHERE id_cluster = ?", id)
	case domain.KindPartitionSchema:
		if err := exec(ctx, q, "delete partitions", "DELETE FROM r_partition WHERE id_partition_schema = ?", id); err != nil {
			return err
		}
		return exec(ctx, q, "delete partition schema", "DELETE FROM r_partition_schema WHERE id_partition_schema = ?", id)
	}
	return fmt.Errorf("delete: %s is not a shared object", kind)
}

// ============================================================================
// Load
// ============================================================================

func loadDatabase(ctx context.Context, q execer, id domain.ObjectID) (*domain.DatabaseConnection, error) {
	var row databaseRow
	if err := q.GetContext(ctx, &row, "SELECT "+databaseColumns+" FROM r_database WHERE id_database = ?", id); err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("database %d", id))
	}
	d := row.toDomain()
	records, err := newAttributeStore(q, databaseAttributes).Load(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Attributes = domain.AttributeSetFromRecords(records)
	return d, nil
}

func loadSlave(ctx context.Context, q execer, id domain.ObjectID) (*domain.SlaveServer, error) {
	var row slaveRow
	if err := q.GetContext(ctx, &row, "SELECT "+slaveColumns+" FROM r_slave WHERE id_slave = ?", id); err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("slave server %d", id))
	}
	return row.toDomain(), nil
}

func loadCluster(ctx context.Context, q execer, id domain.ObjectID) (*domain.ClusterSchema, error) {
	var row clusterRow
	if err := q.GetContext(ctx, &row, "SELECT "+clusterColumns+" FROM r_cluster WHERE id_cluster = ?", id); err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("cluster schema %d", id))
	}
	c := row.toDomain()
	err := q.SelectContext(ctx, &c.SlaveServers,
		`SELECT s.name FROM r_cluster_slave cs JOIN r_slave s ON s.id_slave = cs.id_slave
		WHERE cs.id_cluster = ? ORDER BY cs.id_cluster_slave`, id)
	if err != nil {
		return nil, domain.NewBackingStoreError("load cluster slaves", err)
	}
	return c, nil
}

func loadPartitionSchema(ctx context.Context, q execer, id domain.ObjectID) (*domain.PartitionSchema, error) {
	var row partitionSchemaRow
	if err := q.GetContext(ctx, &row, "SELECT "+partitionSchemaColumns+" FROM r_partition_schema WHERE id_partition_schema = ?", id); err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("partition schema %d", id))
	}
	p := row.toDomain()
	err := q.SelectContext(ctx, &p.Partitions,
		"SELECT partition_id FROM r_partition WHERE id_partition_schema = ? ORDER BY id_partition", id)
	if err != nil {
		return nil, domain.NewBackingStoreError("load partitions", err)
	}
	return p, nil
}

// sharedRefs loads the shared objects referenced by one transformation or
// job, each at most once, keeping first-reference order.
type sharedRefs struct {
	byKey map[domain.LockKey]domain.SharedObject

	databases  []*domain.DatabaseConnection
	slaves     []*domain.SlaveServer
	clusters   []*domain.ClusterSchema
	partitions []*domain.PartitionSchema
}

func newSharedRefs() *sharedRefs {
	return &sharedRefs{byKey: make(map[domain.LockKey]domain.SharedObject)}
}

func (s *sharedRefs) database(ctx context.Context, q execer, id domain.ObjectID) (*domain.DatabaseConnection, error) {
	key := domain.LockKey{Kind: domain.KindDatabase, ID: id}
	if obj, ok := s.byKey[key]; ok {
		return obj.(*domain.DatabaseConnection), nil
	}
	d, err := loadDatabase(ctx, q, id)
	if err != nil {
		return nil, err
	}
	s.byKey[key] = d
	s.databases = append(s.databases, d)
	return d, nil
}

func (s *sharedRefs) slave(ctx context.Context, q execer, id domain.ObjectID) (*domain.SlaveServer, error) {
	key := domain.LockKey{Kind: domain.KindSlaveServer, ID: id}
	if obj, ok := s.byKey[key]; ok {
		return obj.(*domain.SlaveServer), nil
	}
	sl, err := loadSlave(ctx, q, id)
	if err != nil {
		return nil, err
	}
	s.byKey[key] = sl
	s.slaves = append(s.slaves, sl)
	return sl, nil
}

func (s *sharedRefs) cluster(ctx context.Context, q execer, id domain.ObjectID) (*domain.ClusterSchema, error) {
	key := domain.LockKey{Kind: domain.KindClusterSchema, ID: id}
	if obj, ok := s.byKey[key]; ok {
		return obj.(*domain.ClusterSchema), nil
	}
	c, err := loadCluster(ctx, q, id)
	if err != nil {
		return nil, err
	}
	s.byKey[key] = c
	s.clusters = append(s.clusters, c)
	return c, nil
}

func (s *sharedRefs) partition(ctx context.Context, q execer, id domain.ObjectID) (*domain.PartitionSchema, error) {
	key := domain.LockKey{Kind: domain.KindPartitionSchema, ID: id}
	if obj, ok := s.byKey[key]; ok {
		return obj.(*domain.PartitionSchema), nil
	}
	p, err := loadPartitionSchema(ctx, q, id)
	if err != nil {
		return nil, err
	}
	s.byKey[key] = p
	s.partitions = append(s.partitions, p)
	return p, nil
}

// loadSharedObjects reads every shared object of the repository
func loadSharedObjects(ctx context.Context, q execer) (*domain.SharedObjectSet, error) {
	set := domain.NewSharedObjectSet()

	var dbRows []databaseRow
	if err := q.SelectContext(ctx, &dbRows, "SELECT "+databaseColumns+" FROM r_database ORDER BY id_database"); err != nil {
		return nil, domain.NewBackingStoreError("load databases", err)
	}
	ids := make([]domain.ObjectID, 0, len(dbRows))
	for _, row := range dbRows {
		ids = append(ids, domain.ObjectID(row.ID))
	}
	attrs, err := newAttributeStore(q, databaseAttributes).loadOwners(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range dbRows {
		d := dbRows[i].toDomain()
		d.Attributes = domain.AttributeSetFromRecords(attrs[d.ID])
		set.Put(d)
	}

	var slaveRows []slaveRow
	if err := q.SelectContext(ctx, &slaveRows, "SELECT "+slaveColumns+" FROM r_slave ORDER BY id_slave"); err != nil {
		return nil, domain.NewBackingStoreError("load slave servers", err)
	}
	for i := range slaveRows {
		set.Put(slaveRows[i].toDomain())
	}

	var clusterRows []clusterRow
	if err := q.SelectContext(ctx, &clusterRows, "SELECT "+clusterColumns+" FROM r_cluster ORDER BY id_cluster"); err != nil {
		return nil, domain.NewBackingStoreError("load cluster schemas", err)
	}
	var members []struct {
		ClusterID int64  `db:"id_cluster"`
		Slave     string `db:"name"`
	}
	err = q.SelectContext(ctx, &members,
		`SELECT cs.id_cluster, s.name FROM r_cluster_slave cs JOIN r_slave s ON s.id_slave = cs.id_slave
		ORDER BY cs.id_cluster_slave`)
	if err != nil {
		return nil, domain.NewBackingStoreError("load cluster slaves", err)
	}
	slavesOf := make(map[int64][]string)
	for _, m := range members {
		slavesOf[m.ClusterID] = append(slavesOf[m.ClusterID], m.Slave)
	}
	for i := range clusterRows {
		c := clusterRows[i].toDomain()
		c.SlaveServers = slavesOf[clusterRows[i].ID]
		set.Put(c)
	}

	var partitionRows []partitionSchemaRow
	if err := q.SelectContext(ctx, &partitionRows, "SELECT "+partitionSchemaColumns+" FROM r_partition_schema ORDER BY id_partition_schema"); err != nil {
		return nil, domain.NewBackingStoreError("load partition schemas", err)
	}
	var partitions []struct {
		SchemaID    int64  `db:"id_partition_schema"`
		PartitionID string `db:"partition_id"`
	}
	err = q.SelectContext(ctx, &partitions, "SELECT id_partition_schema, partition_id FROM r_partition ORDER BY id_partition")
	if err != nil {
		return nil, domain.NewBackingStoreError("load partitions", err)
	}
	partitionsOf := make(map[int64][]string)
	for _, p := range partitions {
		partitionsOf[p.SchemaID] = append(partitionsOf[p.SchemaID], p.PartitionID)
	}
	for i := range partitionRows {
		p := partitionRows[i].toDomain()
		p.Partitions = partitionsOf[partitionRows[i].ID]
		set.Put(p)
	}

	return set, nil
}

// sharedLabel formats a shared object for log lines
func sharedLabel(obj domain.SharedObject) string {
	return strings.ReplaceAll(obj.Kind().String(), "_", " ") + " " + obj.ObjectName()
}
