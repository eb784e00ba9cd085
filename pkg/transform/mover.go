package transform

import (
	stderrors "errors"
	"io/fs"
	"syscall"

	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/logging"
	"github.com/arthur-debert/treetx/pkg/types"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// Mover carries out the renames of an apply. Every rename it performs can be
// undone by Rollback until ApplyDeletions commits the pending deletions.
type Mover interface {
	Rename(from, to string) error
	// PreDelete moves from out of the way to to, deleting it on ApplyDeletions.
	PreDelete(from, to string) error
	Rollback() error
	ApplyDeletions() error
}

// FileMover is the Mover used by default, working through a types.FS.
type FileMover struct {
	fs               types.FS
	pastRenames      [][2]string
	pendingDeletions []string
	logger           zerolog.Logger
}

var _ Mover = (*FileMover)(nil)

// NewFileMover returns a mover over fsys.
func NewFileMover(fsys types.FS) *FileMover {
	return &FileMover{fs: fsys, logger: logging.GetLogger("transform.mover")}
}

func (m *FileMover) Rename(from, to string) error {
	if err := m.fs.Rename(from, to); err != nil {
		if stderrors.Is(err, fs.ErrExist) || stderrors.Is(err, syscall.ENOTEMPTY) {
			return errors.Wrapf(err, errors.ErrFileExists, "cannot move %s: %s already exists", from, to).
				WithDetail("path", to)
		}
		return errors.Wrapf(err, errors.ErrRenameFailed, "failed to rename %s to %s", from, to).
			WithDetail("from", from).WithDetail("to", to)
	}
	m.pastRenames = append(m.pastRenames, [2]string{from, to})
	return nil
}

func (m *FileMover) PreDelete(from, to string) error {
	if err := m.Rename(from, to); err != nil {
		return err
	}
	m.pendingDeletions = append(m.pendingDeletions, to)
	return nil
}

// Rollback reverses every rename, newest first. It keeps going after a
// failure and reports all of them.
func (m *FileMover) Rollback() error {
	var result *multierror.Error
	for i := len(m.pastRenames) - 1; i >= 0; i-- {
		from, to := m.pastRenames[i][0], m.pastRenames[i][1]
		if err := m.fs.Rename(to, from); err != nil {
			m.logger.Error().Err(err).Str("from", to).Str("to", from).Msg("rollback rename failed")
			result = multierror.Append(result, errors.Wrapf(err, errors.ErrRenameFailed,
				"failed to restore %s from %s", from, to))
		}
	}
	m.logger.Warn().Int("renames", len(m.pastRenames)).Msg("apply rolled back")
	m.pastRenames = nil
	m.pendingDeletions = nil
	return result.ErrorOrNil()
}

// ApplyDeletions removes everything moved aside by PreDelete.
func (m *FileMover) ApplyDeletions() error {
	var result *multierror.Error
	for _, p := range m.pendingDeletions {
		if err := m.fs.RemoveAll(p); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, errors.ErrFileAccess, "failed to delete %s", p))
		}
	}
	m.pastRenames = nil
	m.pendingDeletions = nil
	return result.ErrorOrNil()
}
