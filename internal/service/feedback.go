package service

import (
	"go.uber.org/zap"

	"etlrepo/internal/domain"
)

// Feedback is the caller side of a long-running import. It receives the
// per-object log and answers the questions an import cannot decide alone.
type Feedback interface {
	// AskOverwrite is called for an object that already exists when the
	// overwrite policy is ask. def is the previous answer. When applyToAll
	// is true the answer is used for the rest of the import.
	AskOverwrite(obj domain.DirectoryObject, def bool) (overwrite, applyToAll bool)

	// ContinueOnError reports a fragment that failed to decode or save and
	// returns whether the import should go on with the next one.
	ContinueOnError(index int, err error) bool

	// Log receives one human-readable outcome line
	Log(line string)
}

// LogFeedback is a non-interactive Feedback that writes to a logger and
// answers every question with fixed values.
type LogFeedback struct {
	logger    *zap.Logger
	overwrite bool
	cont      bool
}

// NewLogFeedback creates a feedback answering overwrite questions with
// overwrite and error questions with continueOnError.
func NewLogFeedback(logger *zap.Logger, overwrite, continueOnError bool) *LogFeedback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogFeedback{logger: logger, overwrite: overwrite, cont: continueOnError}
}

func (f *LogFeedback) AskOverwrite(obj domain.DirectoryObject, def bool) (bool, bool) {
	f.logger.Info("object already exists", zap.Stringer("kind", obj.Kind()),
		zap.String("name", obj.ObjectName()), zap.Bool("overwrite", f.overwrite))
	return f.overwrite, true
}

func (f *LogFeedback) ContinueOnError(index int, err error) bool {
	f.logger.Warn("import fragment failed", zap.Int("fragment", index), zap.Error(err), zap.Bool("continue", f.cont))
	return f.cont
}

func (f *LogFeedback) Log(line string) {
	f.logger.Info(line)
}
