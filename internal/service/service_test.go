package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etlrepo/internal/domain"
	"etlrepo/internal/repository/sqlite"
)

func newTestRepo(t *testing.T, lockSource string) *sqlite.Repository {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	repo, err := store.Connect(ctx, lockSource, "")
	require.NoError(t, err)
	return repo
}

func newTestService(t *testing.T) (*RepositoryService, *EventBus) {
	t.Helper()
	bus := NewEventBus()
	return NewRepositoryService(newTestRepo(t, "tester"), bus, nil), bus
}

func testTransformation(name, dir string) *domain.Transformation {
	tr := domain.NewTransformation(name, dir)
	tr.Databases = []*domain.DatabaseConnection{{
		Name:       "ORA1",
		Type:       "ORACLE",
		Access:     "Native",
		Host:       "dev-db",
		Attributes: domain.NewAttributeSet(),
	}}

	read := domain.NewStep("read", "TableInput")
	read.Databases = []string{"ORA1"}
	read.Attributes.SetString("sql", 0, "SELECT * FROM orders")
	lookup := domain.NewStep("lookup", "Mapping")
	lookup.References = []domain.ObjectReference{{Kind: domain.KindTransformation, Name: "shared_lookup", Directory: "/etl/shared"}}

	tr.Steps = []*domain.Step{read, lookup}
	tr.Hops = []*domain.TransHop{{From: "read", To: "lookup", Enabled: true}}
	return tr
}

func testJob(name, dir string) *domain.Job {
	j := domain.NewJob(name, dir)
	start := domain.NewJobEntry("START", "SPECIAL")
	run := domain.NewJobEntry("run", "TRANS")
	run.References = []domain.ObjectReference{{Kind: domain.KindTransformation, Name: "load_orders", Directory: "/etl/daily"}}
	j.Entries = []*domain.JobEntry{start, run}
	j.Hops = []*domain.JobHop{{From: "START", To: "run", Enabled: true, Unconditional: true}}
	return j
}

func drain(ch chan Event) []EventType {
	var types []EventType
	for {
		select {
		case e := <-ch:
			types = append(types, e.Type)
		default:
			return types
		}
	}
}

func TestRepositoryServiceValidate(t *testing.T) {
	svc := &RepositoryService{}

	t.Run("valid transformation passes validation", func(t *testing.T) {
		assert.NoError(t, svc.validate(testTransformation("t", "/")))
	})

	t.Run("valid job passes validation", func(t *testing.T) {
		assert.NoError(t, svc.validate(testJob("j", "/")))
	})

	t.Run("empty name fails validation", func(t *testing.T) {
		assert.Error(t, svc.validate(testTransformation(" ", "/")))
	})

	t.Run("duplicate step fails validation", func(t *testing.T) {
		tr := testTransformation("t", "/")
		tr.Steps = append(tr.Steps, domain.NewStep("READ", "Dummy"))
		err := svc.validate(tr)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate step")
	})

	t.Run("step without copies fails validation", func(t *testing.T) {
		tr := testTransformation("t", "/")
		tr.Steps[0].Copies = 0
		assert.Error(t, svc.validate(tr))
	})

	t.Run("hop to unknown step fails validation", func(t *testing.T) {
		tr := testTransformation("t", "/")
		tr.Hops = append(tr.Hops, &domain.TransHop{From: "read", To: "nowhere"})
		assert.Error(t, svc.validate(tr))
	})

	t.Run("hop to itself fails validation", func(t *testing.T) {
		j := testJob("j", "/")
		j.Hops = append(j.Hops, &domain.JobHop{From: "run", To: "RUN"})
		err := svc.validate(j)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "to itself")
	})

	t.Run("shared objects only need a name", func(t *testing.T) {
		assert.NoError(t, svc.validate(&domain.SlaveServer{Name: "carte"}))
		assert.Error(t, svc.validate(&domain.SlaveServer{}))
	})
}

func TestRepositoryServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, bus := newTestService(t)
	events := make(chan Event, 32)
	bus.Subscribe(events)

	_, err := svc.CreateDirectory(ctx, "/etl/daily")
	require.NoError(t, err)

	id, err := svc.Save(ctx, testTransformation("load_orders", "/etl/daily"), "first version")
	require.NoError(t, err)
	assert.False(t, id.IsZero())
	_, err = svc.Save(ctx, testJob("nightly", "/etl"), "")
	require.NoError(t, err)

	obj, err := svc.Get(ctx, domain.KindTransformation, "load_orders", "/etl/daily")
	require.NoError(t, err)
	assert.Len(t, obj.(*domain.Transformation).Steps, 2)

	infos, err := svc.ListDirectory(ctx, "/etl/daily")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "load_orders", infos[0].Name)

	inv, err := svc.Inventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, inv.Count())

	dbs, err := svc.SharedObjects(domain.KindDatabase)
	require.NoError(t, err)
	require.Len(t, dbs, 1)
	_, err = svc.SharedObjects(domain.KindJob)
	assert.Error(t, err)

	lock, err := svc.Lock(ctx, domain.KindTransformation, "load_orders", "/etl/daily", "editing")
	require.NoError(t, err)
	assert.Equal(t, "tester", lock.Owner)
	assert.Len(t, svc.Locks(), 1)
	require.NoError(t, svc.Unlock(ctx, domain.KindTransformation, "load_orders", "/etl/daily"))
	assert.Empty(t, svc.Locks())

	require.NoError(t, svc.Rename(ctx, domain.KindTransformation, "load_orders", "/etl/daily", "load_all_orders", "/etl"))
	_, err = svc.Get(ctx, domain.KindTransformation, "load_all_orders", "/etl")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, domain.KindTransformation, "load_all_orders", "/etl"))
	_, err = svc.Get(ctx, domain.KindTransformation, "load_all_orders", "/etl")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	require.NoError(t, svc.RenameDirectory(ctx, "/etl/daily", "hourly"))
	require.NoError(t, svc.DeleteDirectory(ctx, "/etl/hourly", false))

	entries, err := svc.Log(ctx, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	assert.Equal(t, []EventType{
		EventDirectoryCreated,
		EventObjectSaved,
		EventObjectSaved,
		EventObjectLocked,
		EventObjectUnlocked,
		EventObjectRenamed,
		EventObjectDeleted,
		EventDirectoryRenamed,
		EventDirectoryDeleted,
	}, drain(events))
}

func TestRepositoryServiceRejectsInvalidSave(t *testing.T) {
	svc, bus := newTestService(t)
	events := make(chan Event, 4)
	bus.Subscribe(events)

	tr := testTransformation("bad", "/")
	tr.Hops = append(tr.Hops, &domain.TransHop{From: "ghost", To: "read"})
	_, err := svc.Save(context.Background(), tr, "")
	require.Error(t, err)
	assert.True(t, tr.ID.IsZero())
	assert.Empty(t, drain(events))
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	a := make(chan Event, 1)
	b := make(chan Event, 1)
	bus.Subscribe(a)
	bus.Subscribe(b)

	bus.Publish(Event{Type: EventObjectSaved})
	assert.Equal(t, EventObjectSaved, (<-a).Type)
	assert.Equal(t, EventObjectSaved, (<-b).Type)

	t.Run("slow subscribers are skipped", func(t *testing.T) {
		bus.Publish(Event{Type: EventObjectDeleted})
		bus.Publish(Event{Type: EventObjectRenamed})
		assert.Equal(t, EventObjectDeleted, (<-a).Type)
		assert.Empty(t, drain(a))
		drain(b)
	})

	t.Run("unsubscribed channels get nothing", func(t *testing.T) {
		bus.Unsubscribe(b)
		bus.Publish(Event{Type: EventUserSaved})
		assert.Equal(t, EventUserSaved, (<-a).Type)
		assert.Empty(t, drain(b))
	})

	t.Run("nil bus ignores publish", func(t *testing.T) {
		var nilBus *EventBus
		assert.NotPanics(t, func() { nilBus.Publish(Event{Type: EventObjectSaved}) })
	})
}

func TestUserService(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, "admin")
	users := NewUserService(repo, repo, NewEventBus(), nil)

	require.NoError(t, users.Save(ctx, &domain.User{Login: "etl", Password: "secret", Name: "ETL user", Enabled: true}))

	u, err := users.Authenticate(ctx, "ETL", "secret")
	require.NoError(t, err)
	assert.Equal(t, "ETL user", u.Name)

	_, err = users.Authenticate(ctx, "etl", "wrong")
	assert.True(t, errors.Is(err, sqlite.ErrInvalidCredentials))

	t.Run("update without password keeps the hash", func(t *testing.T) {
		require.NoError(t, users.Save(ctx, &domain.User{Login: "etl", Name: "renamed", Enabled: true}))
		u, err := users.Authenticate(ctx, "etl", "secret")
		require.NoError(t, err)
		assert.Equal(t, "renamed", u.Name)
	})

	t.Run("disabled users cannot log in", func(t *testing.T) {
		require.NoError(t, users.SetEnabled(ctx, "etl", false))
		_, err := users.Authenticate(ctx, "etl", "secret")
		assert.Error(t, err)
	})

	t.Run("new users need a password", func(t *testing.T) {
		assert.Error(t, users.Save(ctx, &domain.User{Login: "nopass"}))
		assert.Error(t, users.Save(ctx, &domain.User{Login: "has space", Password: "x"}))
	})

	t.Run("list and delete", func(t *testing.T) {
		list, err := users.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.NoError(t, users.Delete(ctx, "etl"))
		_, err = users.Get(ctx, "etl")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestLogFeedback(t *testing.T) {
	fb := NewLogFeedback(nil, true, false)
	overwrite, all := fb.AskOverwrite(domain.NewJob("j", "/"), false)
	assert.True(t, overwrite)
	assert.True(t, all)
	assert.False(t, fb.ContinueOnError(1, errors.New("boom")))
	fb.Log("line")
}

func TestResultSummaries(t *testing.T) {
	ir := &ImportResult{Saved: 2, Skipped: 1, Bytes: 2048, Duration: 1500 * time.Millisecond}
	assert.Equal(t, "2 saved, 1 skipped, 0 failed, 2.0 kB read in 1.5s", ir.Summary())

	er := &ExportResult{Transformations: 3, Jobs: 1, Bytes: 999}
	assert.Equal(t, "3 transformations, 1 jobs, 0 failed, 999 B written in 0s", er.Summary())
}
