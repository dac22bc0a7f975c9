package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"etlrepo/internal/domain"
)

// Reserved step and job entry attribute codes holding object references.
// They are written next to the plugin attributes and stripped on load.
const (
	refKindCode      = "_ref_kind"
	refNameCode      = "_ref_name"
	refDirectoryCode = "_ref_directory"
)

// ownerAttributes returns the records to store for an owner: its plugin
// attributes followed by its references.
func ownerAttributes(owner domain.ObjectID, attrs *domain.AttributeSet, refs []domain.ObjectReference) []domain.AttributeRecord {
	var records []domain.AttributeRecord
	if attrs != nil {
		records = attrs.Records(owner)
	}
	for i, ref := range refs {
		records = append(records,
			domain.AttributeRecord{OwnerID: owner, Code: refKindCode, Index: i, Value: domain.StringValue(ref.Kind.String())},
			domain.AttributeRecord{OwnerID: owner, Code: refNameCode, Index: i, Value: domain.StringValue(ref.Name)},
			domain.AttributeRecord{OwnerID: owner, Code: refDirectoryCode, Index: i, Value: domain.StringValue(ref.Directory)},
		)
	}
	return records
}

// splitReferences removes the reserved reference codes from attrs and
// returns the references they described.
func splitReferences(attrs *domain.AttributeSet) []domain.ObjectReference {
	n := attrs.Count(refNameCode)
	if n == 0 {
		return nil
	}
	refs := make([]domain.ObjectReference, 0, n)
	for i := 0; i < n; i++ {
		kind, err := domain.ParseKind(attrs.String(refKindCode, i, ""))
		if err != nil {
			kind = domain.KindTransformation
		}
		refs = append(refs, domain.ObjectReference{
			Kind:      kind,
			Name:      attrs.String(refNameCode, i, ""),
			Directory: attrs.String(refDirectoryCode, i, domain.PathSeparator),
		})
	}
	attrs.Delete(refKindCode)
	attrs.Delete(refNameCode)
	attrs.Delete(refDirectoryCode)
	return refs
}

// ============================================================================
// Save
// ============================================================================

func (s *saver) saveTransformation(ctx context.Context, t *domain.Transformation) error {
	for _, obj := range t.SharedObjects() {
		if err := s.linkShared(ctx, obj); err != nil {
			return err
		}
	}

	dirID, existing, err := s.resolveTopLevel(ctx, t, &t.ID)
	if err != nil {
		return err
	}
	if existing {
		if err := deleteTransformationContent(ctx, s.q, t.ID); err != nil {
			return err
		}
		err = exec(ctx, s.q, "update transformation "+t.Name,
			`UPDATE r_transformation SET id_directory = ?, name = ?, description = ?, extended_description = ?,
			created_user = ?, created_date = ?, modified_user = ?, modified_date = ?
			WHERE id_transformation = ?`,
			dirID, t.Name, stringToNull(t.Description), stringToNull(t.ExtendedDescription),
			stringToNull(t.Audit.CreatedUser), timeToNull(t.Audit.CreatedDate),
			stringToNull(t.Audit.ModifiedUser), timeToNull(t.Audit.ModifiedDate), t.ID)
	} else {
		err = exec(ctx, s.q, "insert transformation "+t.Name,
			"INSERT INTO r_transformation ("+transformationColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			t.ID, dirID, t.Name, stringToNull(t.Description), stringToNull(t.ExtendedDescription),
			stringToNull(t.Audit.CreatedUser), timeToNull(t.Audit.CreatedDate),
			stringToNull(t.Audit.ModifiedUser), timeToNull(t.Audit.ModifiedDate))
	}
	if err != nil {
		return err
	}

	if err := newAttributeStore(s.q, transAttributes).replaceAll(ctx, t.ID, t.Attributes.Records(t.ID)); err != nil {
		return err
	}
	for _, n := range t.Notes {
		if err := s.saveNote(ctx, n, "r_trans_note", "id_transformation", t.ID); err != nil {
			return err
		}
	}

	stepIDs := make(map[string]domain.ObjectID, len(t.Steps))
	for _, step := range t.Steps {
		if err := s.saveStep(ctx, t, step); err != nil {
			return err
		}
		stepIDs[strings.ToLower(step.Name)] = step.ID
	}

	for _, hop := range t.Hops {
		from, ok := stepIDs[strings.ToLower(hop.From)]
		if !ok {
			return fmt.Errorf("hop from unknown step %q in %s", hop.From, t.Name)
		}
		to, ok := stepIDs[strings.ToLower(hop.To)]
		if !ok {
			return fmt.Errorf("hop to unknown step %q in %s", hop.To, t.Name)
		}
		id, err := nextID(ctx, s.q, "r_trans_hop", "id_trans_hop")
		if err != nil {
			return err
		}
		err = exec(ctx, s.q, "insert hop",
			"INSERT INTO r_trans_hop (id_trans_hop, id_transformation, id_step_from, id_step_to, enabled) VALUES (?, ?, ?, ?, ?)",
			id, t.ID, from, to, hop.Enabled)
		if err != nil {
			return err
		}
		s.assign(&hop.ID, id)
	}

	for _, dep := range t.Dependencies {
		dbID, err := s.sharedID(ctx, domain.KindDatabase, dep.Database)
		if err != nil {
			return fmt.Errorf("dependency of %s: %w", t.Name, err)
		}
		id, err := nextID(ctx, s.q, "r_dependency", "id_dependency")
		if err != nil {
			return err
		}
		err = exec(ctx, s.q, "insert dependency",
			"INSERT INTO r_dependency (id_dependency, id_transformation, id_database, table_name, field_name) VALUES (?, ?, ?, ?, ?)",
			id, t.ID, dbID, stringToNull(dep.Table), stringToNull(dep.Field))
		if err != nil {
			return err
		}
		s.assign(&dep.ID, id)
	}

	for _, c := range t.ClusterSchemas {
		if err := s.link(ctx, "r_trans_cluster", "id_trans_cluster", "id_transformation", "id_cluster", t.ID, c.ID); err != nil {
			return err
		}
	}
	for _, p := range t.PartitionSchemas {
		if err := s.link(ctx, "r_trans_partition_schema", "id_trans_partition_schema", "id_transformation", "id_partition_schema", t.ID, p.ID); err != nil {
			return err
		}
	}
	for _, sl := range t.SlaveServers {
		if err := s.link(ctx, "r_trans_slave", "id_trans_slave", "id_transformation", "id_slave", t.ID, sl.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *saver) saveStep(ctx context.Context, t *domain.Transformation, step *domain.Step) error {
	var clusterID, partitionID domain.ObjectID
	var err error
	if step.ClusterSchema != "" {
		if clusterID, err = s.sharedID(ctx, domain.KindClusterSchema, step.ClusterSchema); err != nil {
			return fmt.Errorf("step %s: %w", step.Name, err)
		}
	}
	if step.PartitionSchema != "" {
		if partitionID, err = s.sharedID(ctx, domain.KindPartitionSchema, step.PartitionSchema); err != nil {
			return fmt.Errorf("step %s: %w", step.Name, err)
		}
	}

	id, err := nextID(ctx, s.q, "r_step", "id_step")
	if err != nil {
		return err
	}
	err = exec(ctx, s.q, "insert step "+step.Name,
		"INSERT INTO r_step ("+stepColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		id, t.ID, step.Name, stringToNull(step.Description), step.Type, step.Distribute, step.Copies,
		step.X, step.Y, step.Draw, idToNull(clusterID), idToNull(partitionID))
	if err != nil {
		return err
	}
	s.assign(&step.ID, id)

	records := ownerAttributes(id, step.Attributes, step.References)
	if err := newAttributeStore(s.q, stepAttributes).replaceAll(ctx, id, records); err != nil {
		return err
	}

	for _, name := range step.Databases {
		dbID, err := s.sharedID(ctx, domain.KindDatabase, name)
		if err != nil {
			return fmt.Errorf("step %s: %w", step.Name, err)
		}
		err = exec(ctx, s.q, "insert step database",
			"INSERT INTO r_step_database (id_transformation, id_step, id_database) VALUES (?, ?, ?)", t.ID, id, dbID)
		if err != nil {
			return err
		}
	}

	if step.Condition != nil {
		if err := s.saveCondition(ctx, step.Condition, 0); err != nil {
			return err
		}
		err = exec(ctx, s.q, "insert step condition",
			"INSERT INTO r_trans_step_condition (id_transformation, id_step, id_condition) VALUES (?, ?, ?)",
			t.ID, id, step.Condition.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

// saveCondition inserts a condition tree, parents before children
func (s *saver) saveCondition(ctx context.Context, c *domain.Condition, parent domain.ObjectID) error {
	id, err := nextID(ctx, s.q, "r_condition", "id_condition")
	if err != nil {
		return err
	}
	err = exec(ctx, s.q, "insert condition",
		"INSERT INTO r_condition ("+conditionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		id, idToNull(parent), c.Negate, stringToNull(c.Operator), stringToNull(c.LeftField),
		stringToNull(c.Function), stringToNull(c.RightField), stringToNull(c.Value))
	if err != nil {
		return err
	}
	s.assign(&c.ID, id)
	for _, child := range c.Children {
		if err := s.saveCondition(ctx, child, id); err != nil {
			return err
		}
	}
	return nil
}

// saveNote inserts a note and links it to its owner through linkTable
func (s *saver) saveNote(ctx context.Context, n *domain.Note, linkTable, ownerColumn string, owner domain.ObjectID) error {
	id, err := nextID(ctx, s.q, "r_note", "id_note")
	if err != nil {
		return err
	}
	err = exec(ctx, s.q, "insert note",
		`INSERT INTO r_note (id_note, value_str, gui_location_x, gui_location_y, gui_location_width, gui_location_height)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, stringToNull(n.Text), n.X, n.Y, n.Width, n.Height)
	if err != nil {
		return err
	}
	s.assign(&n.ID, id)
	return exec(ctx, s.q, "link note",
		fmt.Sprintf("INSERT INTO %s (%s, id_note) VALUES (?, ?)", linkTable, ownerColumn), owner, id)
}

// link inserts one row of an owner-to-shared-object association table
func (s *saver) link(ctx context.Context, table, idColumn, ownerColumn, targetColumn string, owner, target domain.ObjectID) error {
	id, err := nextID(ctx, s.q, table, idColumn)
	if err != nil {
		return err
	}
	return exec(ctx, s.q, "insert "+table,
		fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (?, ?, ?)", table, idColumn, ownerColumn, targetColumn),
		id, owner, target)
}

// ============================================================================
// Load
// ============================================================================

func (r *Repository) loadTransformation(ctx context.Context, q execer, id domain.ObjectID) (*domain.Transformation, error) {
	var row transformationRow
	err := q.GetContext(ctx, &row, "SELECT "+transformationColumns+" FROM r_transformation WHERE id_transformation = ?", id)
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("transformation %d", id))
	}
	dirPath, err := r.directoryPath(domain.ObjectID(row.DirectoryID))
	if err != nil {
		return nil, err
	}
	t := row.toDomain(dirPath)

	records, err := newAttributeStore(q, transAttributes).Load(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Attributes = domain.AttributeSetFromRecords(records)

	if t.Notes, err = loadNotes(ctx, q, "r_trans_note", "id_transformation", id); err != nil {
		return nil, err
	}

	refs := newSharedRefs()

	var steps []stepRow
	if err := q.SelectContext(ctx, &steps, "SELECT "+stepColumns+" FROM r_step WHERE id_transformation = ? ORDER BY id_step", id); err != nil {
		return nil, domain.NewBackingStoreError("load steps", err)
	}
	stepIDs := make([]domain.ObjectID, 0, len(steps))
	for _, sr := range steps {
		stepIDs = append(stepIDs, domain.ObjectID(sr.ID))
	}
	stepAttrs, err := newAttributeStore(q, stepAttributes).loadOwners(ctx, stepIDs)
	if err != nil {
		return nil, err
	}

	byID := make(map[domain.ObjectID]*domain.Step, len(steps))
	for i := range steps {
		sr := &steps[i]
		step := sr.toDomain()
		step.Attributes = domain.AttributeSetFromRecords(stepAttrs[step.ID])
		step.References = splitReferences(step.Attributes)
		if sr.ClusterSchemaID.Valid {
			c, err := refs.cluster(ctx, q, nullToID(sr.ClusterSchemaID))
			if err != nil {
				return nil, err
			}
			step.ClusterSchema = c.Name
		}
		if sr.PartitionSchemaID.Valid {
			p, err := refs.partition(ctx, q, nullToID(sr.PartitionSchemaID))
			if err != nil {
				return nil, err
			}
			step.PartitionSchema = p.Name
		}
		byID[step.ID] = step
		t.Steps = append(t.Steps, step)
	}

	var stepDBs []struct {
		StepID     int64 `db:"id_step"`
		DatabaseID int64 `db:"id_database"`
	}
	if err := q.SelectContext(ctx, &stepDBs, "SELECT id_step, id_database FROM r_step_database WHERE id_transformation = ? ORDER BY id_step", id); err != nil {
		return nil, domain.NewBackingStoreError("load step databases", err)
	}
	for _, sd := range stepDBs {
		db, err := refs.database(ctx, q, domain.ObjectID(sd.DatabaseID))
		if err != nil {
			return nil, err
		}
		if step := byID[domain.ObjectID(sd.StepID)]; step != nil {
			step.Databases = append(step.Databases, db.Name)
		}
	}

	var stepConds []struct {
		StepID      int64 `db:"id_step"`
		ConditionID int64 `db:"id_condition"`
	}
	if err := q.SelectContext(ctx, &stepConds, "SELECT id_step, id_condition FROM r_trans_step_condition WHERE id_transformation = ?", id); err != nil {
		return nil, domain.NewBackingStoreError("load step conditions", err)
	}
	for _, sc := range stepConds {
		c, err := loadCondition(ctx, q, domain.ObjectID(sc.ConditionID))
		if err != nil {
			return nil, err
		}
		if step := byID[domain.ObjectID(sc.StepID)]; step != nil {
			step.Condition = c
		}
	}

	var hops []struct {
		ID      int64 `db:"id_trans_hop"`
		From    int64 `db:"id_step_from"`
		To      int64 `db:"id_step_to"`
		Enabled bool  `db:"enabled"`
	}
	if err := q.SelectContext(ctx, &hops, "SELECT id_trans_hop, id_step_from, id_step_to, enabled FROM r_trans_hop WHERE id_transformation = ? ORDER BY id_trans_hop", id); err != nil {
		return nil, domain.NewBackingStoreError("load hops", err)
	}
	for _, h := range hops {
		from, to := byID[domain.ObjectID(h.From)], byID[domain.ObjectID(h.To)]
		if from == nil || to == nil {
			r.logger.Warn("dropping hop with unknown step", zap.Int64("hop", h.ID))
			continue
		}
		t.Hops = append(t.Hops, &domain.TransHop{ID: domain.ObjectID(h.ID), From: from.Name, To: to.Name, Enabled: h.Enabled})
	}

	var deps []struct {
		ID         int64          `db:"id_dependency"`
		DatabaseID int64          `db:"id_database"`
		Table      sql.NullString `db:"table_name"`
		Field      sql.NullString `db:"field_name"`
	}
	if err := q.SelectContext(ctx, &deps, "SELECT id_dependency, id_database, table_name, field_name FROM r_dependency WHERE id_transformation = ? ORDER BY id_dependency", id); err != nil {
		return nil, domain.NewBackingStoreError("load dependencies", err)
	}
	for _, d := range deps {
		db, err := refs.database(ctx, q, domain.ObjectID(d.DatabaseID))
		if err != nil {
			return nil, err
		}
		t.Dependencies = append(t.Dependencies, &domain.Dependency{
			ID:       domain.ObjectID(d.ID),
			Database: db.Name,
			Table:    nullToString(d.Table),
			Field:    nullToString(d.Field),
		})
	}

	clusterIDs, err := selectIDs(ctx, q, "SELECT id_cluster FROM r_trans_cluster WHERE id_transformation = ? ORDER BY id_trans_cluster", id)
	if err != nil {
		return nil, err
	}
	for _, cid := range clusterIDs {
		if _, err := refs.cluster(ctx, q, cid); err != nil {
			return nil, err
		}
	}
	partitionIDs, err := selectIDs(ctx, q, "SELECT id_partition_schema FROM r_trans_partition_schema WHERE id_transformation = ? ORDER BY id_trans_partition_schema", id)
	if err != nil {
		return nil, err
	}
	for _, pid := range partitionIDs {
		if _, err := refs.partition(ctx, q, pid); err != nil {
			return nil, err
		}
	}
	slaveIDs, err := selectIDs(ctx, q, "SELECT id_slave FROM r_trans_slave WHERE id_transformation = ? ORDER BY id_trans_slave", id)
	if err != nil {
		return nil, err
	}
	for _, sid := range slaveIDs {
		if _, err := refs.slave(ctx, q, sid); err != nil {
			return nil, err
		}
	}

	t.Databases = refs.databases
	t.SlaveServers = refs.slaves
	t.ClusterSchemas = refs.clusters
	t.PartitionSchemas = refs.partitions
	return t, nil
}

// loadNotes reads the notes linked to owner through linkTable
func loadNotes(ctx context.Context, q execer, linkTable, ownerColumn string, owner domain.ObjectID) ([]*domain.Note, error) {
	var rows []noteRow
	query := fmt.Sprintf("SELECT %s FROM r_note n JOIN %s l ON l.id_note = n.id_note WHERE l.%s = ? ORDER BY n.id_note",
		noteColumns, linkTable, ownerColumn)
	if err := q.SelectContext(ctx, &rows, query, owner); err != nil {
		return nil, domain.NewBackingStoreError("load notes", err)
	}
	notes := make([]*domain.Note, 0, len(rows))
	for i := range rows {
		notes = append(notes, rows[i].toDomain())
	}
	return notes, nil
}

// loadCondition reads a condition and its sub-conditions
func loadCondition(ctx context.Context, q execer, id domain.ObjectID) (*domain.Condition, error) {
	var row conditionRow
	err := q.GetContext(ctx, &row, "SELECT "+conditionColumns+" FROM r_condition WHERE id_condition = ?", id)
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("condition %d", id))
	}
	c := row.toDomain()
	childIDs, err := selectIDs(ctx, q, "SELECT id_condition FROM r_condition WHERE id_condition_parent = ? ORDER BY id_condition", id)
	if err != nil {
		return nil, err
	}
	for _, childID := range childIDs {
		child, err := loadCondition(ctx, q, childID)
		if err != nil {
			return nil, err
		}
		c.Children = append(c.Children, child)
	}
	return c, nil
}

// ============================================================================
// Delete
// ============================================================================

// delAllTransformation removes a transformation and every row it owns
func delAllTransformation(ctx context.Context, q execer, id domain.ObjectID) error {
	if err := deleteTransformationContent(ctx, q, id); err != nil {
		return err
	}
	return exec(ctx, q, "delete transformation", "DELETE FROM r_transformation WHERE id_transformation = ?", id)
}

// deleteTransformationContent removes everything a transformation owns
// except its own row. The order is notes, attributes, steps, associations,
// dependencies; each stage may still look up ids through the next.
func deleteTransformationContent(ctx context.Context, q execer, id domain.ObjectID) error {
	conditionIDs, err := conditionTreeIDs(ctx, q,
		"SELECT id_condition FROM r_trans_step_condition WHERE id_transformation = ?", id)
	if err != nil {
		return err
	}

	stmts := []struct{ op, query string }{
		{"delete notes", "DELETE FROM r_note WHERE id_note IN (SELECT id_note FROM r_trans_note WHERE id_transformation = ?)"},
		{"delete note links", "DELETE FROM r_trans_note WHERE id_transformation = ?"},
		{"delete step attributes", "DELETE FROM r_step_attribute WHERE id_step IN (SELECT id_step FROM r_step WHERE id_transformation = ?)"},
		{"delete attributes", "DELETE FROM r_trans_attribute WHERE id_transformation = ?"},
		{"delete steps", "DELETE FROM r_step WHERE id_transformation = ?"},
		{"delete hops", "DELETE FROM r_trans_hop WHERE id_transformation = ?"},
		{"delete conditions", ""},
		{"delete step conditions", "DELETE FROM r_trans_step_condition WHERE id_transformation = ?"},
		{"delete step databases", "DELETE FROM r_step_database WHERE id_transformation = ?"},
		{"delete cluster links", "DELETE FROM r_trans_cluster WHERE id_transformation = ?"},
		{"delete partition links", "DELETE FROM r_trans_partition_schema WHERE id_transformation = ?"},
		{"delete slave links", "DELETE FROM r_trans_slave WHERE id_transformation = ?"},
		{"delete dependencies", "DELETE FROM r_dependency WHERE id_transformation = ?"},
	}
	for _, st := range stmts {
		var err error
		if st.query == "" {
			err = deleteIn(ctx, q, "r_condition", "id_condition", conditionIDs)
		} else {
			err = exec(ctx, q, st.op, st.query, id)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// conditionTreeIDs returns the ids of the condition trees whose roots are
// selected by rootQuery, roots first.
func conditionTreeIDs(ctx context.Context, q execer, rootQuery string, args ...interface{}) ([]domain.ObjectID, error) {
	level, err := selectIDs(ctx, q, rootQuery, args...)
	if err != nil {
		return nil, err
	}
	var all []domain.ObjectID
	for len(level) > 0 {
		all = append(all, level...)
		query, inArgs, err := sqlx.In("SELECT id_condition FROM r_condition WHERE id_condition_parent IN (?)", level)
		if err != nil {
			return nil, err
		}
		if level, err = selectIDs(ctx, q, q.Rebind(query), inArgs...); err != nil {
			return nil, err
		}
	}
	return all, nil
}
