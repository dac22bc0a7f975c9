package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etlrepo/internal/codec"
	"etlrepo/internal/domain"
	"etlrepo/internal/repository/sqlite"
)

// scriptedFeedback answers overwrite questions from a script and records
// everything it is told.
type scriptedFeedback struct {
	answers  [][2]bool
	defaults []bool
	cont     bool
	failures []int
	lines    []string
	onLog    func(line string)
}

func (f *scriptedFeedback) AskOverwrite(obj domain.DirectoryObject, def bool) (bool, bool) {
	f.defaults = append(f.defaults, def)
	if len(f.answers) == 0 {
		return def, false
	}
	a := f.answers[0]
	f.answers = f.answers[1:]
	return a[0], a[1]
}

func (f *scriptedFeedback) ContinueOnError(index int, err error) bool {
	f.failures = append(f.failures, index)
	return f.cont
}

func (f *scriptedFeedback) Log(line string) {
	f.lines = append(f.lines, line)
	if f.onLog != nil {
		f.onLog(line)
	}
}

func newTransfer(t *testing.T, lockSource string) (*sqlite.Repository, *TransferService) {
	t.Helper()
	repo := newTestRepo(t, lockSource)
	svc := NewTransferService(repo, NewEventBus())
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return repo, svc
}

// exportDocument builds an export document from objs
func exportDocument(t *testing.T, objs ...domain.DirectoryObject) string {
	t.Helper()
	var buf bytes.Buffer
	w := codec.NewRepositoryWriter(&buf)
	for _, obj := range objs {
		require.NoError(t, w.Write(obj))
	}
	require.NoError(t, w.Close())
	return buf.String()
}

// fragment encodes a single object the way it appears inside a document
func fragment(t *testing.T, obj domain.DirectoryObject) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, codec.NewXMLCodec().Encode(obj, &buf))
	return buf.String()
}

func wrapTransformations(fragments ...string) string {
	return codec.Header + "<repository>\n<transformations>\n" + strings.Join(fragments, "") + "</transformations>\n</repository>\n"
}

func loadTransformation(t *testing.T, repo *sqlite.Repository, name, dir string) *domain.Transformation {
	t.Helper()
	ctx := context.Background()
	id, err := repo.LookupID(ctx, domain.KindTransformation, name, dir)
	require.NoError(t, err)
	obj, err := repo.Load(ctx, domain.KindTransformation, id)
	require.NoError(t, err)
	return obj.(*domain.Transformation)
}

func loadJob(t *testing.T, repo *sqlite.Repository, name, dir string) *domain.Job {
	t.Helper()
	ctx := context.Background()
	id, err := repo.LookupID(ctx, domain.KindJob, name, dir)
	require.NoError(t, err)
	obj, err := repo.Load(ctx, domain.KindJob, id)
	require.NoError(t, err)
	return obj.(*domain.Job)
}

func seed(t *testing.T, repo *sqlite.Repository, objs ...domain.DirectoryObject) {
	t.Helper()
	ctx := context.Background()
	for _, obj := range objs {
		_, err := repo.CreateDirectory(ctx, repo.Root(), obj.Directory())
		require.NoError(t, err)
		_, err = repo.Save(ctx, obj, "")
		require.NoError(t, err)
	}
}

func TestParseOverwritePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    OverwritePolicy
		wantErr bool
	}{
		{"", OverwriteNever, false},
		{"always", OverwriteAlways, false},
		{" ASK ", OverwriteAsk, false},
		{"never", OverwriteNever, false},
		{"sometimes", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOverwritePolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, exporter := newTransfer(t, "exporter")
	seed(t, src, testTransformation("load_orders", "/etl/daily"), testJob("nightly", "/etl"))

	var buf bytes.Buffer
	exported, err := exporter.Export(ctx, &buf, "/")
	require.NoError(t, err)
	assert.Equal(t, 1, exported.Transformations)
	assert.Equal(t, 1, exported.Jobs)
	assert.Zero(t, exported.Failed)
	assert.Equal(t, int64(buf.Len()), exported.Bytes)

	doc := buf.String()
	assert.Less(t, strings.Index(doc, "<transformation>"), strings.Index(doc, "<job>"))

	dst, importer := newTransfer(t, "importer")
	imported, err := importer.Import(ctx, &buf, ImportOptions{}, &scriptedFeedback{})
	require.NoError(t, err)
	assert.Equal(t, 2, imported.Fragments)
	assert.Equal(t, 2, imported.Saved)
	assert.Zero(t, imported.Failed)
	assert.Equal(t, int64(len(doc)), imported.Bytes)

	tr := loadTransformation(t, dst, "load_orders", "/etl/daily")
	require.Len(t, tr.Steps, 2)
	read := tr.Step("read")
	require.NotNil(t, read)
	assert.Equal(t, []string{"ORA1"}, read.Databases)
	assert.Equal(t, "SELECT * FROM orders", read.Attributes.String("sql", 0, ""))
	require.Len(t, tr.Databases, 1)
	assert.Equal(t, "dev-db", tr.Databases[0].Host)
	require.Len(t, tr.Hops, 1)
	assert.Equal(t, "/etl/shared", tr.Step("lookup").References[0].Directory)

	// The audit recorded in the document survives the import.
	assert.Equal(t, "exporter", tr.Audit.CreatedUser)

	job := loadJob(t, dst, "nightly", "/etl")
	require.Len(t, job.Entries, 2)
	assert.True(t, job.Hops[0].Unconditional)
	assert.Equal(t, "/etl/daily", job.Entry("run").References[0].Directory)
}

func TestExportSubdirectory(t *testing.T) {
	src, exporter := newTransfer(t, "exporter")
	seed(t, src,
		testTransformation("load_orders", "/etl/daily"),
		testTransformation("other", "/misc"),
		testJob("nightly", "/etl"))

	var buf bytes.Buffer
	result, err := exporter.Export(context.Background(), &buf, "/etl/daily")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Transformations)
	assert.Zero(t, result.Jobs)
	assert.Contains(t, buf.String(), "load_orders")
	assert.NotContains(t, buf.String(), "other")

	_, err = exporter.Export(context.Background(), &buf, "/missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestExportCancelled(t *testing.T) {
	src, exporter := newTransfer(t, "exporter")
	seed(t, src, testTransformation("load_orders", "/etl"))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	tests := []struct {
		name string
		ctx  context.Context
		want error
	}{
		{"cancelled", cancelled, context.Canceled},
		{"deadline", expired, context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := exporter.Export(tt.ctx, &bytes.Buffer{}, "/")
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, errors.Is(err, domain.ErrBackingStore))
			require.NotNil(t, result)
			assert.True(t, result.Cancelled)
			assert.Zero(t, result.Transformations)
			assert.Contains(t, result.Log, "export cancelled")
		})
	}
}

func TestExportSkipsUnencodableObjects(t *testing.T) {
	src, exporter := newTransfer(t, "exporter")
	bad := testTransformation("broken", "/etl")
	bad.Description = "vertical\x0btab"
	seed(t, src, bad, testTransformation("load_orders", "/etl"))

	var buf bytes.Buffer
	result, err := exporter.Export(context.Background(), &buf, "/")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Transformations)
	assert.Contains(t, strings.Join(result.Log, "\n"), "failed to encode transformation /etl/broken")

	sc := codec.NewFragmentScanner(&buf)
	var names []string
	for sc.Next() {
		obj, err := codec.NewXMLCodec().Decode(sc.Fragment().Data)
		require.NoError(t, err)
		names = append(names, obj.ObjectName())
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{"load_orders"}, names)
}

func TestExportDeleteReimport(t *testing.T) {
	ctx := context.Background()
	repo, svc := newTransfer(t, "admin")
	tr := testTransformation("load_orders", "/etl/daily")
	tr.Attributes.SetInteger("batchSize", 0, 500)
	seed(t, repo, tr)

	var buf bytes.Buffer
	exported, err := svc.Export(ctx, &buf, "/")
	require.NoError(t, err)
	require.Equal(t, 1, exported.Transformations)

	require.NoError(t, repo.DelAll(ctx, domain.KindTransformation, tr.ID))
	_, err = repo.LookupID(ctx, domain.KindTransformation, "load_orders", "/etl/daily")
	require.ErrorIs(t, err, domain.ErrNotFound)

	imported, err := svc.Import(ctx, &buf, ImportOptions{Overwrite: OverwriteAlways}, &scriptedFeedback{})
	require.NoError(t, err)
	assert.Equal(t, 1, imported.Saved)
	assert.Zero(t, imported.Failed)

	got := loadTransformation(t, repo, "load_orders", "/etl/daily")
	assert.Equal(t, "/etl/daily", got.Directory())
	assert.Equal(t, int64(500), got.Attributes.Integer("batchSize", 0, 0))

	store, err := repo.Attributes(domain.KindTransformation)
	require.NoError(t, err)
	batch, err := store.GetInteger(ctx, got.ID, "batchSize", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(500), batch)
}

func TestTypedAttributesSurviveTransfer(t *testing.T) {
	ctx := context.Background()
	src, exporter := newTransfer(t, "exporter")
	tr := testTransformation("load_orders", "/etl")
	tr.Attributes.SetInteger("batchSize", 0, 500)
	tr.Attributes.SetBoolean("safeMode", 0, true)
	read := tr.Step("read")
	read.Attributes.SetInteger("copies", 0, 3)
	read.Attributes.SetBoolean("lazy", 0, false)
	read.Attributes.SetReal("ratio", 0, 0.25)
	seed(t, src, tr)

	var buf bytes.Buffer
	_, err := exporter.Export(ctx, &buf, "/")
	require.NoError(t, err)

	dst, importer := newTransfer(t, "importer")
	_, err = importer.Import(ctx, &buf, ImportOptions{}, &scriptedFeedback{})
	require.NoError(t, err)

	got := loadTransformation(t, dst, "load_orders", "/etl")
	tests := []struct {
		set  *domain.AttributeSet
		code string
		typ  domain.AttributeType
	}{
		{got.Attributes, "batchSize", domain.AttrInteger},
		{got.Attributes, "safeMode", domain.AttrBoolean},
		{got.Step("read").Attributes, "copies", domain.AttrInteger},
		{got.Step("read").Attributes, "lazy", domain.AttrBoolean},
		{got.Step("read").Attributes, "ratio", domain.AttrReal},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			v, ok := tt.set.Get(tt.code, 0)
			require.True(t, ok)
			assert.Equal(t, tt.typ, v.Type())
		})
	}
	assert.Equal(t, int64(500), got.Attributes.Integer("batchSize", 0, 0))
	assert.True(t, got.Attributes.Boolean("safeMode", 0, false))
	assert.Equal(t, int64(3), got.Step("read").Attributes.Integer("copies", 0, 0))
	assert.False(t, got.Step("read").Attributes.Boolean("lazy", 0, true))
	assert.Equal(t, 0.25, got.Step("read").Attributes.Real("ratio", 0, 0))

	store, err := dst.Attributes(domain.KindTransformation)
	require.NoError(t, err)
	safe, err := store.GetBoolean(ctx, got.ID, "safeMode", 0)
	require.NoError(t, err)
	assert.True(t, safe)
}

func TestImportReusesExistingSharedObjects(t *testing.T) {
	ctx := context.Background()
	dst, importer := newTransfer(t, "importer")

	existing := &domain.DatabaseConnection{Name: "ORA1", Type: "ORACLE", Access: "Native", Host: "prod-db", Attributes: domain.NewAttributeSet()}
	_, err := dst.Save(ctx, existing, "")
	require.NoError(t, err)
	require.NoError(t, dst.RefreshSharedObjects(ctx))
	existingID, err := dst.LookupID(ctx, domain.KindDatabase, "ORA1", "")
	require.NoError(t, err)

	doc := exportDocument(t, testTransformation("load_orders", "/etl/daily"))
	result, err := importer.Import(ctx, strings.NewReader(doc), ImportOptions{}, &scriptedFeedback{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Saved)

	dbs, err := dst.ListObjects(ctx, domain.KindDatabase, nil)
	require.NoError(t, err)
	assert.Len(t, dbs, 1)

	tr := loadTransformation(t, dst, "load_orders", "/etl/daily")
	require.Len(t, tr.Databases, 1)
	assert.Equal(t, existingID, tr.Databases[0].ID)
	assert.Equal(t, "prod-db", tr.Databases[0].Host)
}

func TestImportOverwritePolicies(t *testing.T) {
	ctx := context.Background()
	v1 := []domain.DirectoryObject{
		testTransformation("t1", "/etl"),
		testTransformation("t2", "/etl"),
		testTransformation("t3", "/etl"),
	}
	v2 := make([]domain.DirectoryObject, 0, len(v1))
	for _, name := range []string{"t1", "t2", "t3"} {
		tr := testTransformation(name, "/etl")
		tr.Description = "v2"
		v2 = append(v2, tr)
	}
	doc := exportDocument(t, v2...)

	descriptions := func(repo *sqlite.Repository) []string {
		var out []string
		for _, name := range []string{"t1", "t2", "t3"} {
			out = append(out, loadTransformation(t, repo, name, "/etl").Description)
		}
		return out
	}

	t.Run("never keeps existing objects", func(t *testing.T) {
		repo, svc := newTransfer(t, "importer")
		seed(t, repo, v1...)
		result, err := svc.Import(ctx, strings.NewReader(doc), ImportOptions{Overwrite: OverwriteNever}, &scriptedFeedback{})
		require.NoError(t, err)
		assert.Equal(t, 3, result.Skipped)
		assert.Equal(t, []string{"", "", ""}, descriptions(repo))
	})

	t.Run("always replaces existing objects", func(t *testing.T) {
		repo, svc := newTransfer(t, "importer")
		seed(t, repo, v1...)
		result, err := svc.Import(ctx, strings.NewReader(doc), ImportOptions{Overwrite: OverwriteAlways}, &scriptedFeedback{})
		require.NoError(t, err)
		assert.Equal(t, 3, result.Saved)
		assert.Equal(t, []string{"v2", "v2", "v2"}, descriptions(repo))
	})

	t.Run("ask remembers an answer applied to all", func(t *testing.T) {
		repo, svc := newTransfer(t, "importer")
		seed(t, repo, v1...)
		fb := &scriptedFeedback{answers: [][2]bool{{true, false}, {false, true}}}
		result, err := svc.Import(ctx, strings.NewReader(doc), ImportOptions{Overwrite: OverwriteAsk}, fb)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Saved)
		assert.Equal(t, 2, result.Skipped)
		// The previous answer is offered as the default.
		assert.Equal(t, []bool{false, true}, fb.defaults)
		assert.Equal(t, []string{"v2", "", ""}, descriptions(repo))
	})

	t.Run("new objects are never asked about", func(t *testing.T) {
		_, svc := newTransfer(t, "importer")
		fb := &scriptedFeedback{}
		result, err := svc.Import(ctx, strings.NewReader(doc), ImportOptions{Overwrite: OverwriteAsk}, fb)
		require.NoError(t, err)
		assert.Equal(t, 3, result.Saved)
		assert.Empty(t, fb.defaults)
	})

	t.Run("invalid policy", func(t *testing.T) {
		_, svc := newTransfer(t, "importer")
		_, err := svc.Import(ctx, strings.NewReader(doc), ImportOptions{Overwrite: "maybe"}, nil)
		assert.Error(t, err)
	})
}

func TestImportFragmentFailures(t *testing.T) {
	ctx := context.Background()
	badHop := testTransformation("bad_hop", "/etl")
	badHop.Hops = append(badHop.Hops, &domain.TransHop{From: "read", To: "ghost"})
	doc := wrapTransformations(
		fragment(t, testTransformation("first", "/etl")),
		"<transformation><info><name></name></info></transformation>\n",
		fragment(t, badHop),
		fragment(t, testTransformation("last", "/etl")),
	)

	t.Run("continue on error imports the rest", func(t *testing.T) {
		repo, svc := newTransfer(t, "importer")
		fb := &scriptedFeedback{}
		result, err := svc.Import(ctx, strings.NewReader(doc), ImportOptions{ContinueOnError: true}, fb)
		require.NoError(t, err)
		assert.Equal(t, 4, result.Fragments)
		assert.Equal(t, 2, result.Saved)
		assert.Equal(t, 2, result.Failed)
		assert.Empty(t, fb.failures)

		exists, err := repo.Exists(ctx, domain.KindTransformation, "bad_hop", "/etl")
		require.NoError(t, err)
		assert.False(t, exists)
		exists, err = repo.Exists(ctx, domain.KindTransformation, "last", "/etl")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("feedback may continue", func(t *testing.T) {
		_, svc := newTransfer(t, "importer")
		fb := &scriptedFeedback{cont: true}
		result, err := svc.Import(ctx, strings.NewReader(doc), ImportOptions{}, fb)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Saved)
		assert.Equal(t, []int{2, 3}, fb.failures)
	})

	t.Run("stopping keeps committed objects", func(t *testing.T) {
		repo, svc := newTransfer(t, "importer")
		fb := &scriptedFeedback{}
		result, err := svc.Import(ctx, strings.NewReader(doc), ImportOptions{}, fb)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrMalformedFragment))
		var mf *domain.MalformedFragmentError
		require.True(t, errors.As(err, &mf))
		assert.Equal(t, 2, mf.Index)
		assert.Equal(t, 1, result.Saved)
		assert.Equal(t, 1, result.Failed)

		exists, err := repo.Exists(ctx, domain.KindTransformation, "first", "/etl")
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestImportTruncatedDocument(t *testing.T) {
	ctx := context.Background()
	repo, svc := newTransfer(t, "importer")
	doc := codec.Header + "<repository>\n<transformations>\n" +
		fragment(t, testTransformation("first", "/etl")) +
		"<transformation><info><name>second</name>"

	result, err := svc.Import(ctx, strings.NewReader(doc), ImportOptions{ContinueOnError: true}, &scriptedFeedback{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMalformedFragment))
	assert.Equal(t, 1, result.Saved)

	exists, err := repo.Exists(ctx, domain.KindTransformation, "first", "/etl")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestImportCancellation(t *testing.T) {
	repo, svc := newTransfer(t, "importer")
	doc := exportDocument(t,
		testTransformation("t1", "/etl"),
		testTransformation("t2", "/etl"),
		testTransformation("t3", "/etl"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fb := &scriptedFeedback{onLog: func(line string) {
		if strings.HasPrefix(line, "saved") {
			cancel()
		}
	}}

	result, err := svc.Import(ctx, strings.NewReader(doc), ImportOptions{}, fb)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, result.Cancelled)
	assert.Equal(t, 1, result.Saved)

	infos, err := repo.ListObjects(context.Background(), domain.KindTransformation, nil)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "t1", infos[0].Name)
}

func TestImportDirectories(t *testing.T) {
	ctx := context.Background()
	doc := exportDocument(t,
		testTransformation("load_orders", "/etl/daily"),
		testTransformation("adhoc", "/scratch"),
		testJob("nightly", "/etl"))

	t.Run("limit dirs", func(t *testing.T) {
		repo, svc := newTransfer(t, "importer")
		result, err := svc.Import(ctx, strings.NewReader(doc), ImportOptions{LimitDirs: []string{"/etl"}}, &scriptedFeedback{})
		require.NoError(t, err)
		assert.Equal(t, 2, result.Saved)
		assert.Equal(t, 1, result.Skipped)

		exists, err := repo.Exists(ctx, domain.KindTransformation, "adhoc", "/scratch")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("base directory", func(t *testing.T) {
		repo, svc := newTransfer(t, "importer")
		result, err := svc.Import(ctx, strings.NewReader(doc), ImportOptions{BaseDirectory: "/imported"}, &scriptedFeedback{})
		require.NoError(t, err)
		assert.Equal(t, 3, result.Saved)

		tr := loadTransformation(t, repo, "load_orders", "/imported/etl/daily")
		assert.Equal(t, "/imported/etl/daily", tr.Directory())
		assert.Equal(t, "/imported/etl/shared", tr.Step("lookup").References[0].Directory)

		job := loadJob(t, repo, "nightly", "/imported/etl")
		assert.Equal(t, "/imported/etl/daily", job.Entry("run").References[0].Directory)
		assert.Contains(t, result.Log, "created directory /imported/etl/daily")
	})

	t.Run("directory overrides", func(t *testing.T) {
		repo, svc := newTransfer(t, "importer")
		opts := ImportOptions{BaseDirectory: "/imported", TransDirOverride: "/flat"}
		result, err := svc.Import(ctx, strings.NewReader(doc), opts, &scriptedFeedback{})
		require.NoError(t, err)
		assert.Equal(t, 3, result.Saved)

		tr := loadTransformation(t, repo, "load_orders", "/flat")
		assert.Equal(t, "/flat", tr.Step("lookup").References[0].Directory)
		loadTransformation(t, repo, "adhoc", "/flat")

		job := loadJob(t, repo, "nightly", "/imported/etl")
		assert.Equal(t, "/flat", job.Entry("run").References[0].Directory)
	})

	t.Run("limit dirs apply to the overridden directory", func(t *testing.T) {
		_, svc := newTransfer(t, "importer")
		opts := ImportOptions{TransDirOverride: "/flat", LimitDirs: []string{"/flat"}}
		result, err := svc.Import(ctx, strings.NewReader(doc), opts, &scriptedFeedback{})
		require.NoError(t, err)
		assert.Equal(t, 2, result.Saved)
		assert.Equal(t, 1, result.Skipped)
	})
}

func TestImportFillsMissingAudit(t *testing.T) {
	ctx := context.Background()
	repo, svc := newTransfer(t, "importer")

	anonymous := testTransformation("anonymous", "/etl")
	anonymous.Audit.CreatedUser = "-"
	doc := wrapTransformations(fragment(t, anonymous), fragment(t, testTransformation("blank", "/etl")))

	_, err := svc.Import(ctx, strings.NewReader(doc), ImportOptions{VersionComment: "initial import"}, &scriptedFeedback{})
	require.NoError(t, err)

	for _, name := range []string{"anonymous", "blank"} {
		tr := loadTransformation(t, repo, name, "/etl")
		assert.Equal(t, "importer", tr.Audit.CreatedUser, name)
		assert.Equal(t, "importer", tr.Audit.ModifiedUser, name)
	}

	entries, err := repo.ListLog(ctx, 0)
	require.NoError(t, err)
	var comments []string
	for _, e := range entries {
		comments = append(comments, e.Description)
	}
	assert.Contains(t, comments, "initial import")
}

func TestImportPublishesEvents(t *testing.T) {
	repo := newTestRepo(t, "importer")
	bus := NewEventBus()
	events := make(chan Event, 8)
	bus.Subscribe(events)
	svc := NewTransferService(repo, bus)

	doc := exportDocument(t, testTransformation("t1", "/etl"))
	_, err := svc.Import(context.Background(), strings.NewReader(doc), ImportOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventObjectSaved, EventImportFinished}, drain(events))
}

func TestTransferFiles(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/backup", 0o755))

	src := newTestRepo(t, "exporter")
	seed(t, src, testTransformation("load_orders", "/etl/daily"), testJob("nightly", "/etl"))
	exporter := NewTransferService(src, nil, WithFs(fs))

	exported, err := exporter.ExportFile(ctx, "/backup/repo.xml", "/")
	require.NoError(t, err)
	info, err := fs.Stat("/backup/repo.xml")
	require.NoError(t, err)
	assert.Equal(t, exported.Bytes, info.Size())

	dst := newTestRepo(t, "importer")
	importer := NewTransferService(dst, nil, WithFs(fs))
	imported, err := importer.ImportFile(ctx, "/backup/repo.xml", ImportOptions{Overwrite: OverwriteAlways}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, imported.Saved)
	assert.Equal(t, info.Size(), imported.Bytes)

	_, err = importer.ImportFile(ctx, "/backup/missing.xml", ImportOptions{}, nil)
	assert.Error(t, err)
}
