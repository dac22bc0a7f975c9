package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"etlrepo/internal/codec"
	"etlrepo/internal/domain"
	"etlrepo/internal/repository"
)

// OverwritePolicy decides what happens to an imported object that already
// exists in the target directory.
type OverwritePolicy string

const (
	OverwriteAlways OverwritePolicy = "always"
	OverwriteNever  OverwritePolicy = "never"
	OverwriteAsk    OverwritePolicy = "ask"
)

// ParseOverwritePolicy accepts always, never or ask. An empty string means
// never.
func ParseOverwritePolicy(s string) (OverwritePolicy, error) {
	switch p := OverwritePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case OverwriteAlways, OverwriteNever, OverwriteAsk:
		return p, nil
	case "":
		return OverwriteNever, nil
	}
	return "", fmt.Errorf("invalid overwrite policy %q, must be always, never or ask", s)
}

// ImportOptions configures one import session
type ImportOptions struct {
	// BaseDirectory is prefixed to the recorded directory of every object
	// and every repository reference.
	BaseDirectory string
	// TransDirOverride and JobDirOverride replace the recorded directory of
	// transformations and jobs, and the directory of references to them.
	TransDirOverride string
	JobDirOverride   string
	Overwrite        OverwritePolicy
	ContinueOnError  bool
	VersionComment   string
	// LimitDirs restricts the import to objects recorded below one of
	// these directories.
	LimitDirs []string
}

// ImportResult summarizes an import. Objects saved before a failure stay
// saved.
type ImportResult struct {
	Fragments int           `json:"fragments"`
	Saved     int           `json:"saved"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Cancelled bool          `json:"cancelled"`
	Bytes     int64         `json:"bytes"`
	Duration  time.Duration `json:"duration"`
	Log       []string      `json:"log"`
}

// Summary returns a one-line description of the result
func (r *ImportResult) Summary() string {
	return fmt.Sprintf("%d saved, %d skipped, %d failed, %s read in %s",
		r.Saved, r.Skipped, r.Failed, humanize.Bytes(uint64(r.Bytes)), r.Duration.Round(time.Millisecond))
}

// ExportResult summarizes an export
type ExportResult struct {
	Transformations int           `json:"transformations"`
	Jobs            int           `json:"jobs"`
	Failed          int           `json:"failed"`
	Cancelled       bool          `json:"cancelled"`
	Bytes           int64         `json:"bytes"`
	Duration        time.Duration `json:"duration"`
	Log             []string      `json:"log"`
}

// Summary returns a one-line description of the result
func (r *ExportResult) Summary() string {
	return fmt.Sprintf("%d transformations, %d jobs, %d failed, %s written in %s",
		r.Transformations, r.Jobs, r.Failed, humanize.Bytes(uint64(r.Bytes)), r.Duration.Round(time.Millisecond))
}

func (r *ExportResult) logf(format string, args ...any) {
	r.Log = append(r.Log, fmt.Sprintf(format, args...))
}

// cancel marks the export cancelled and returns the context error
func (r *ExportResult) cancel(ctxErr error) error {
	r.Cancelled = true
	r.logf("export cancelled")
	return ctxErr
}

// cancelOr reports err as a cancellation when ctx is done or err is a
// context error; otherwise err is returned as is.
func (r *ExportResult) cancelOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return r.cancel(ctxErr)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return r.cancel(err)
	}
	return err
}

// TransferService streams whole repositories to and from a single XML
// document.
type TransferService struct {
	repo     repository.Repository
	fs       afero.Fs
	codec    *codec.XMLCodec
	eventBus *EventBus
	logger   *zap.Logger
	now      func() time.Time
}

// TransferOption configures a TransferService
type TransferOption func(*TransferService)

// WithFs sets the file system used by ImportFile and ExportFile
func WithFs(fs afero.Fs) TransferOption {
	return func(s *TransferService) {
		s.fs = fs
	}
}

// WithTransferLogger sets the logger
func WithTransferLogger(logger *zap.Logger) TransferOption {
	return func(s *TransferService) {
		s.logger = logger
	}
}

// NewTransferService creates a new transfer service
func NewTransferService(repo repository.Repository, eventBus *EventBus, opts ...TransferOption) *TransferService {
	s := &TransferService{
		repo:     repo,
		fs:       afero.NewOsFs(),
		codec:    codec.NewXMLCodec(),
		eventBus: eventBus,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportFile writes the export document of directory to path
func (s *TransferService) ExportFile(ctx context.Context, path, directory string) (*ExportResult, error) {
	f, err := s.fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	result, err := s.Export(ctx, bw, directory)
	if err != nil {
		return result, err
	}
	if err := bw.Flush(); err != nil {
		return result, fmt.Errorf("failed to write export file: %w", err)
	}
	return result, f.Close()
}

// Export writes every transformation and then every job stored in
// directory and its subdirectories. Objects that fail to load or encode
// are logged and left out. Cancellation is checked between objects.
func (s *TransferService) Export(ctx context.Context, w io.Writer, directory string) (*ExportResult, error) {
	start := s.now()
	result := &ExportResult{}

	top, err := s.repo.FindDirectory(directory)
	if err != nil {
		return result, err
	}
	var dirs []*domain.DirectoryNode
	top.Walk(func(d *domain.DirectoryNode) bool {
		dirs = append(dirs, d)
		return true
	})

	rw := codec.NewRepositoryWriter(w)
	for _, kind := range []domain.Kind{domain.KindTransformation, domain.KindJob} {
		for _, dir := range dirs {
			if err := ctx.Err(); err != nil {
				return result, result.cancel(err)
			}
			infos, err := s.repo.ListObjects(ctx, kind, dir)
			if err != nil {
				return result, result.cancelOr(ctx, err)
			}
			for _, info := range infos {
				if err := ctx.Err(); err != nil {
					return result, result.cancel(err)
				}
				if err := s.exportObject(ctx, rw, info, result); err != nil {
					return result, result.cancelOr(ctx, err)
				}
			}
		}
	}
	if err := rw.Close(); err != nil {
		return result, err
	}

	result.Bytes = rw.Bytes()
	result.Duration = s.now().Sub(start)
	s.logger.Info("export finished",
		zap.String("directory", top.Path()),
		zap.Int("transformations", result.Transformations),
		zap.Int("jobs", result.Jobs),
		zap.Int("failed", result.Failed),
		zap.String("size", humanize.Bytes(uint64(result.Bytes))))

	s.eventBus.Publish(Event{
		Type:    EventExportFinished,
		Payload: result,
	})

	return result, nil
}

// exportObject writes one object. Only errors that make the rest of the
// export pointless are returned.
func (s *TransferService) exportObject(ctx context.Context, rw *codec.RepositoryWriter, info domain.ObjectInfo, result *ExportResult) error {
	label := fmt.Sprintf("%s %s/%s", info.Kind, strings.TrimSuffix(info.Directory, "/"), info.Name)

	obj, err := s.repo.Load(ctx, info.Kind, info.ID)
	if err != nil {
		if errors.Is(err, domain.ErrBackingStore) {
			return err
		}
		result.Failed++
		result.logf("failed to load %s: %v", label, err)
		return nil
	}

	dobj, ok := obj.(domain.DirectoryObject)
	if !ok {
		result.Failed++
		result.logf("skipped %s: not a directory object", label)
		return nil
	}
	if err := rw.Write(dobj); err != nil {
		var encErr *codec.EncodeError
		if !errors.As(err, &encErr) {
			return err
		}
		result.Failed++
		result.logf("failed to encode %s: %v", label, err)
		return nil
	}

	if info.Kind == domain.KindTransformation {
		result.Transformations++
	} else {
		result.Jobs++
	}
	result.logf("exported %s", label)
	return nil
}

// ImportFile imports the export document at path
func (s *TransferService) ImportFile(ctx context.Context, path string, opts ImportOptions, fb Feedback) (*ImportResult, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()
	return s.Import(ctx, bufio.NewReader(f), opts, fb)
}

// Import streams the export document from r into the repository, one
// fragment at a time. Every object is committed on its own: when the
// import stops early, objects saved so far remain. A nil fb logs to the
// service logger and answers with the options.
func (s *TransferService) Import(ctx context.Context, r io.Reader, opts ImportOptions, fb Feedback) (*ImportResult, error) {
	policy, err := ParseOverwritePolicy(string(opts.Overwrite))
	if err != nil {
		return nil, err
	}
	opts.Overwrite = policy
	if fb == nil {
		fb = NewLogFeedback(s.logger, policy == OverwriteAlways, opts.ContinueOnError)
	}

	sess := &importSession{
		svc:    s,
		opts:   opts,
		fb:     fb,
		start:  s.now(),
		result: &ImportResult{},
	}
	sc := codec.NewFragmentScanner(r, codec.WithScannerLogger(s.logger))

	for sc.Next() {
		if err := ctx.Err(); err != nil {
			sc.Abort()
			sess.result.Cancelled = true
			sess.logf("import cancelled after %d fragments", sess.result.Fragments)
			return sess.finish(sc), err
		}

		frag := sc.Fragment()
		sess.result.Fragments++
		if err := sess.importFragment(ctx, frag); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				sc.Abort()
				sess.result.Cancelled = true
				sess.logf("import cancelled during fragment %d", frag.Index)
				return sess.finish(sc), ctxErr
			}
			sess.result.Failed++
			sess.logf("fragment %d failed: %v", frag.Index, err)
			if opts.ContinueOnError || fb.ContinueOnError(frag.Index, err) {
				continue
			}
			sc.Abort()
			return sess.finish(sc), err
		}
	}
	if err := sc.Err(); err != nil {
		sess.logf("import aborted: %v", err)
		return sess.finish(sc), err
	}
	return sess.finish(sc), nil
}

// importSession holds the state of one running import
type importSession struct {
	svc    *TransferService
	opts   ImportOptions
	fb     Feedback
	start  time.Time
	result *ImportResult

	// ask mode: the last answer and whether it applies to all objects
	lastAnswer bool
	remembered bool
}

func (sess *importSession) logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	sess.result.Log = append(sess.result.Log, line)
	sess.fb.Log(line)
}

func (sess *importSession) finish(sc *codec.FragmentScanner) *ImportResult {
	s := sess.svc
	r := sess.result
	r.Bytes = sc.Offset()
	r.Duration = s.now().Sub(sess.start)
	s.logger.Info("import finished",
		zap.Int("saved", r.Saved),
		zap.Int("skipped", r.Skipped),
		zap.Int("failed", r.Failed),
		zap.Bool("cancelled", r.Cancelled),
		zap.String("size", humanize.Bytes(uint64(r.Bytes))))

	s.eventBus.Publish(Event{
		Type:    EventImportFinished,
		Payload: r,
	})
	return r
}

// importFragment decodes one fragment and saves it according to the
// session options. Skipped objects are not errors.
func (sess *importSession) importFragment(ctx context.Context, frag codec.Fragment) error {
	repo := sess.svc.repo
	obj, err := sess.svc.codec.Decode(frag.Data)
	if err != nil {
		return &domain.MalformedFragmentError{Index: frag.Index, Err: err}
	}
	kind, name := obj.Kind(), obj.ObjectName()

	recorded := obj.Directory()
	override := sess.override(kind)
	if override != "" {
		recorded = override
	}
	if !sess.inLimit(recorded) {
		sess.result.Skipped++
		sess.logf("skipped %s %s: %s is outside the import directories", kind, name, recorded)
		return nil
	}

	target := domain.ResolvePath(sess.opts.BaseDirectory, recorded)
	if override != "" {
		target = domain.CleanPath(override)
	}

	exists, err := repo.Exists(ctx, kind, name, target)
	if err != nil {
		return err
	}
	if exists && !sess.shouldOverwrite(obj) {
		sess.result.Skipped++
		sess.logf("skipped existing %s %s in %s", kind, name, target)
		return nil
	}

	if _, err := repo.FindDirectory(target); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if _, err := repo.CreateDirectory(ctx, repo.Root(), target); err != nil {
			return fmt.Errorf("create directory %s: %w", target, err)
		}
		sess.logf("created directory %s", target)
	}

	obj.SetDirectory(target)
	if n := useExistingShared(repo.SharedObjects(), obj); n > 0 {
		sess.svc.logger.Debug("reusing shared objects", zap.String("name", name), zap.Int("count", n))
	}
	sess.patchReferences(obj)
	sess.fillAudit(obj)

	if _, err := repo.Save(ctx, obj, sess.opts.VersionComment); err != nil {
		return fmt.Errorf("save %s %s: %w", kind, name, err)
	}
	sess.result.Saved++
	sess.logf("saved %s %s in %s", kind, name, target)

	sess.svc.eventBus.Publish(Event{
		Type:    EventObjectSaved,
		Payload: payloadOf(obj),
	})
	return nil
}

func (sess *importSession) override(kind domain.Kind) string {
	switch kind {
	case domain.KindTransformation:
		return sess.opts.TransDirOverride
	case domain.KindJob:
		return sess.opts.JobDirOverride
	}
	return ""
}

func (sess *importSession) inLimit(path string) bool {
	if len(sess.opts.LimitDirs) == 0 {
		return true
	}
	for _, limit := range sess.opts.LimitDirs {
		if domain.HasPathPrefix(path, limit) {
			return true
		}
	}
	return false
}

func (sess *importSession) shouldOverwrite(obj domain.DirectoryObject) bool {
	switch sess.opts.Overwrite {
	case OverwriteAlways:
		return true
	case OverwriteNever:
		return false
	}
	if sess.remembered {
		return sess.lastAnswer
	}
	answer, all := sess.fb.AskOverwrite(obj, sess.lastAnswer)
	sess.lastAnswer = answer
	sess.remembered = all
	return answer
}

type referencer interface {
	References() []*domain.ObjectReference
}

// patchReferences points repository references at the import location
func (sess *importSession) patchReferences(obj domain.DirectoryObject) {
	r, ok := obj.(referencer)
	if !ok {
		return
	}
	for _, ref := range r.References() {
		if override := sess.override(ref.Kind); override != "" {
			ref.Directory = domain.CleanPath(override)
			continue
		}
		ref.Directory = domain.ResolvePath(sess.opts.BaseDirectory, ref.Directory)
	}
}

// fillAudit records the importing user as creator when the document has
// none.
func (sess *importSession) fillAudit(obj domain.DirectoryObject) {
	audit := obj.AuditInfo()
	if audit.CreatedUser == "" || audit.CreatedUser == "-" {
		audit.CreatedUser = sess.svc.repo.UserLogin()
		audit.CreatedDate = sess.svc.now()
	}
}

// useExistingShared replaces the shared objects an imported object carries
// with the repository's objects of the same kind and name, so the import
// links to them instead of redefining them. It returns the number of
// replacements.
func useExistingShared(set *domain.SharedObjectSet, obj domain.DirectoryObject) int {
	n := 0
	switch o := obj.(type) {
	case *domain.Transformation:
		n += substituteShared(set, o.Databases)
		n += substituteShared(set, o.SlaveServers)
		n += substituteShared(set, o.ClusterSchemas)
		n += substituteShared(set, o.PartitionSchemas)
	case *domain.Job:
		n += substituteShared(set, o.Databases)
		n += substituteShared(set, o.SlaveServers)
	}
	return n
}

func substituteShared[T domain.SharedObject](set *domain.SharedObjectSet, objs []T) int {
	n := 0
	for i, obj := range objs {
		existing, ok := set.Get(obj.Kind(), obj.ObjectName())
		if !ok {
			continue
		}
		if e, ok := existing.(T); ok {
			objs[i] = e
			n++
		}
	}
	return n
}
