package sqlite

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"etlrepo/internal/domain"
)

func (s *saver) saveJob(ctx context.Context, j *domain.Job) error {
	for _, obj := range j.SharedObjects() {
		if err := s.linkShared(ctx, obj); err != nil {
			return err
		}
	}

	dirID, existing, err := s.resolveTopLevel(ctx, j, &j.ID)
	if err != nil {
		return err
	}
	if existing {
		if err := deleteJobContent(ctx, s.q, j.ID); err != nil {
			return err
		}
		err = exec(ctx, s.q, "update job "+j.Name,
			`UPDATE r_job SET id_directory = ?, name = ?, description = ?, extended_description = ?,
			created_user = ?, created_date = ?, modified_user = ?, modified_date = ?
			WHERE id_job = ?`,
			dirID, j.Name, stringToNull(j.Description), stringToNull(j.ExtendedDescription),
			stringToNull(j.Audit.CreatedUser), timeToNull(j.Audit.CreatedDate),
			stringToNull(j.Audit.ModifiedUser), timeToNull(j.Audit.ModifiedDate), j.ID)
	} else {
		err = exec(ctx, s.q, "insert job "+j.Name,
			"INSERT INTO r_job ("+jobColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			j.ID, dirID, j.Name, stringToNull(j.Description), stringToNull(j.ExtendedDescription),
			stringToNull(j.Audit.CreatedUser), timeToNull(j.Audit.CreatedDate),
			stringToNull(j.Audit.ModifiedUser), timeToNull(j.Audit.ModifiedDate))
	}
	if err != nil {
		return err
	}

	if err := newAttributeStore(s.q, jobAttributes).replaceAll(ctx, j.ID, j.Attributes.Records(j.ID)); err != nil {
		return err
	}
	for _, n := range j.Notes {
		if err := s.saveNote(ctx, n, "r_job_note", "id_job", j.ID); err != nil {
			return err
		}
	}

	entryIDs := make(map[string]domain.ObjectID, len(j.Entries))
	for _, e := range j.Entries {
		if err := s.saveJobEntry(ctx, j, e); err != nil {
			return err
		}
		entryIDs[strings.ToLower(e.Name)] = e.ID
	}

	for _, hop := range j.Hops {
		from, ok := entryIDs[strings.ToLower(hop.From)]
		if !ok {
			return fmt.Errorf("hop from unknown entry %q in %s", hop.From, j.Name)
		}
		to, ok := entryIDs[strings.ToLower(hop.To)]
		if !ok {
			return fmt.Errorf("hop to unknown entry %q in %s", hop.To, j.Name)
		}
		id, err := nextID(ctx, s.q, "r_job_hop", "id_job_hop")
		if err != nil {
			return err
		}
		err = exec(ctx, s.q, "insert job hop",
			`INSERT INTO r_job_hop (id_job_hop, id_job, id_jobentry_from, id_jobentry_to, enabled, evaluation, unconditional)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, j.ID, from, to, hop.Enabled, hop.Evaluation, hop.Unconditional)
		if err != nil {
			return err
		}
		s.assign(&hop.ID, id)
	}

	for _, sl := range j.SlaveServers {
		if err := s.link(ctx, "r_job_slave", "id_job_slave", "id_job", "id_slave", j.ID, sl.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *saver) saveJobEntry(ctx context.Context, j *domain.Job, e *domain.JobEntry) error {
	id, err := nextID(ctx, s.q, "r_jobentry", "id_jobentry")
	if err != nil {
		return err
	}
	err = exec(ctx, s.q, "insert job entry "+e.Name,
		"INSERT INTO r_jobentry ("+jobEntryColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		id, j.ID, e.Name, stringToNull(e.Description), e.Type, e.X, e.Y)
	if err != nil {
		return err
	}
	s.assign(&e.ID, id)

	records := ownerAttributes(id, e.Attributes, e.References)
	if err := newAttributeStore(s.q, jobEntryAttributes).replaceAll(ctx, id, records); err != nil {
		return err
	}

	for _, name := range e.Databases {
		dbID, err := s.sharedID(ctx, domain.KindDatabase, name)
		if err != nil {
			return fmt.Errorf("job entry %s: %w", e.Name, err)
		}
		err = exec(ctx, s.q, "insert job entry database",
			"INSERT INTO r_jobentry_database (id_job, id_jobentry, id_database) VALUES (?, ?, ?)", j.ID, id, dbID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) loadJob(ctx context.Context, q execer, id domain.ObjectID) (*domain.Job, error) {
	var row jobRow
	if err := q.GetContext(ctx, &row, "SELECT "+jobColumns+" FROM r_job WHERE id_job = ?", id); err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("job %d", id))
	}
	dirPath, err := r.directoryPath(domain.ObjectID(row.DirectoryID))
	if err != nil {
		return nil, err
	}
	j := row.toDomain(dirPath)

	records, err := newAttributeStore(q, jobAttributes).Load(ctx, id)
	if err != nil {
		return nil, err
	}
	j.Attributes = domain.AttributeSetFromRecords(records)

	if j.Notes, err = loadNotes(ctx, q, "r_job_note", "id_job", id); err != nil {
		return nil, err
	}

	var entries []jobEntryRow
	if err := q.SelectContext(ctx, &entries, "SELECT "+jobEntryColumns+" FROM r_jobentry WHERE id_job = ? ORDER BY id_jobentry", id); err != nil {
		return nil, domain.NewBackingStoreError("load job entries", err)
	}
	entryIDs := make([]domain.ObjectID, 0, len(entries))
	for _, er := range entries {
		entryIDs = append(entryIDs, domain.ObjectID(er.ID))
	}
	entryAttrs, err := newAttributeStore(q, jobEntryAttributes).loadOwners(ctx, entryIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[domain.ObjectID]*domain.JobEntry, len(entries))
	for i := range entries {
		e := entries[i].toDomain()
		e.Attributes = domain.AttributeSetFromRecords(entryAttrs[e.ID])
		e.References = splitReferences(e.Attributes)
		byID[e.ID] = e
		j.Entries = append(j.Entries, e)
	}

	refs := newSharedRefs()
	var entryDBs []struct {
		EntryID    int64 `db:"id_jobentry"`
		DatabaseID int64 `db:"id_database"`
	}
	if err := q.SelectContext(ctx, &entryDBs, "SELECT id_jobentry, id_database FROM r_jobentry_database WHERE id_job = ? ORDER BY id_jobentry", id); err != nil {
		return nil, domain.NewBackingStoreError("load job entry databases", err)
	}
	for _, ed := range entryDBs {
		db, err := refs.database(ctx, q, domain.ObjectID(ed.DatabaseID))
		if err != nil {
			return nil, err
		}
		if e := byID[domain.ObjectID(ed.EntryID)]; e != nil {
			e.Databases = append(e.Databases, db.Name)
		}
	}

	var hops []struct {
		ID            int64 `db:"id_job_hop"`
		From          int64 `db:"id_jobentry_from"`
		To            int64 `db:"id_jobentry_to"`
		Enabled       bool  `db:"enabled"`
		Evaluation    bool  `db:"evaluation"`
		Unconditional bool  `db:"unconditional"`
	}
	err = q.SelectContext(ctx, &hops,
		`SELECT id_job_hop, id_jobentry_from, id_jobentry_to, enabled, evaluation, unconditional
		FROM r_job_hop WHERE id_job = ? ORDER BY id_job_hop`, id)
	if err != nil {
		return nil, domain.NewBackingStoreError("load job hops", err)
	}
	for _, h := range hops {
		from, to := byID[domain.ObjectID(h.From)], byID[domain.ObjectID(h.To)]
		if from == nil || to == nil {
			r.logger.Warn("dropping job hop with unknown entry", zap.Int64("hop", h.ID))
			continue
		}
		j.Hops = append(j.Hops, &domain.JobHop{
			ID:            domain.ObjectID(h.ID),
			From:          from.Name,
			To:            to.Name,
			Enabled:       h.Enabled,
			Evaluation:    h.Evaluation,
			Unconditional: h.Unconditional,
		})
	}

	slaveIDs, err := selectIDs(ctx, q, "SELECT id_slave FROM r_job_slave WHERE id_job = ? ORDER BY id_job_slave", id)
	if err != nil {
		return nil, err
	}
	for _, sid := range slaveIDs {
		if _, err := refs.slave(ctx, q, sid); err != nil {
			return nil, err
		}
	}

	j.Databases = refs.databases
	j.SlaveServers = refs.slaves
	return j, nil
}

// delAllJob removes a job and every row it owns
func delAllJob(ctx context.Context, q execer, id domain.ObjectID) error {
	if err := deleteJobContent(ctx, q, id); err != nil {
		return err
	}
	return exec(ctx, q, "delete job", "DELETE FROM r_job WHERE id_job = ?", id)
}

// deleteJobContent removes everything a job owns except its own row, in
// the order notes, attributes, entries, associations.
func deleteJobContent(ctx context.Context, q execer, id domain.ObjectID) error {
	stmts := []struct{ op, query string }{
		{"delete job notes", "DELETE FROM r_note WHERE id_note IN (SELECT id_note FROM r_job_note WHERE id_job = ?)"},
		{"delete job note links", "DELETE FROM r_job_note WHERE id_job = ?"},
		{"delete job entry attributes", "DELETE FROM r_jobentry_attribute WHERE id_jobentry IN (SELECT id_jobentry FROM r_jobentry WHERE id_job = ?)"},
		{"delete job attributes", "DELETE FROM r_job_attribute WHERE id_job = ?"},
		{"delete job entries", "DELETE FROM r_jobentry WHERE id_job = ?"},
		{"delete job hops", "DELETE FROM r_job_hop WHERE id_job = ?"},
		{"delete job entry databases", "DELETE FROM r_jobentry_database WHERE id_job = ?"},
		{"delete job slave links", "DELETE FROM r_job_slave WHERE id_job = ?"},
	}
	for _, st := range stmts {
		if err := exec(ctx, q, st.op, st.query, id); err != nil {
			return err
		}
	}
	return nil
}
