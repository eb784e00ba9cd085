package treetx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/treetx/pkg/config"
	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/logging"
	"github.com/arthur-debert/treetx/pkg/output"
	"github.com/arthur-debert/treetx/pkg/transform"
	"github.com/arthur-debert/treetx/pkg/workingtree"
	"github.com/spf13/cobra"
)

// session is an opened tree plus what a command needs to report on it.
type session struct {
	opts     *globalOptions
	cfg      *config.Config
	wt       *workingtree.WorkingTree
	renderer *output.Renderer
}

func openSession(cmd *cobra.Command, opts *globalOptions) (*session, error) {
	root, err := workingtree.Find(opts.dir, config.Default())
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if opts.verbosity == 0 && cfg.Logging.Verbosity > 0 {
		logging.SetupLogger(cfg.Logging.Verbosity)
	}
	wt, err := workingtree.Open(root, cfg)
	if err != nil {
		return nil, err
	}
	renderer, err := newRenderer(cmd)
	if err != nil {
		return nil, err
	}
	return &session{opts: opts, cfg: cfg, wt: wt, renderer: renderer}, nil
}

func newRenderer(cmd *cobra.Command) (*output.Renderer, error) {
	w := cmd.OutOrStdout()
	return output.NewRenderer(w, !output.ColorEnabled(w))
}

// relPath maps a command line path, taken relative to the -C directory, to a
// tree path.
func (s *session) relPath(arg string) (string, error) {
	abs := arg
	if !filepath.IsAbs(abs) {
		base, err := filepath.Abs(s.opts.dir)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrInvalidInput, "invalid directory")
		}
		abs = filepath.Join(base, arg)
	}
	rel, err := filepath.Rel(s.wt.Root(), abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Newf(errors.ErrInvalidInput, MsgErrOutsideTree, arg, s.wt.Root())
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}

func (s *session) relPaths(args []string) ([]string, error) {
	paths := make([]string, len(args))
	for i, arg := range args {
		p, err := s.relPath(arg)
		if err != nil {
			return nil, err
		}
		paths[i] = p
	}
	return paths, nil
}

// stageFunc stages a command's changes on tt.
type stageFunc func(tt transform.Transform) error

// run stages changes and then, depending on the flags, previews them, saves
// them or applies them to the tree.
func (s *session) run(stage stageFunc) error {
	logger := logging.GetLogger("cmd.session")
	topts := transform.NewOptions(s.cfg)

	var tt transform.Transform
	var err error
	if s.opts.dryRun {
		tt, err = transform.NewPreview(s.wt, topts)
	} else {
		tt, err = transform.New(s.wt, topts)
	}
	if err != nil {
		return err
	}
	defer func() {
		if ferr := tt.Finalize(); ferr != nil {
			logger.Warn().Err(ferr).Msg("Failed to finalize transform")
		}
	}()

	if err := stage(tt); err != nil {
		return err
	}
	return s.commit(tt)
}

func (s *session) commit(tt transform.Transform) error {
	logger := logging.GetLogger("cmd.session")

	var resolutions []transform.Resolution
	if s.opts.resolve {
		resolved, err := transform.ResolveConflicts(tt)
		if err != nil {
			return err
		}
		resolutions = resolved.Applied
	}
	conflicts, err := tt.FindConflicts()
	if err != nil {
		return err
	}
	if err := s.renderer.RenderConflicts(resolutions, conflicts); err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return errors.Newf(errors.ErrMalformedTransform, MsgErrConflicts, len(conflicts)).
			WithDetail("conflicts", conflicts)
	}

	if s.opts.save != "" {
		return s.save(tt)
	}

	changes, err := tt.IterChanges()
	if err != nil {
		return err
	}
	if s.opts.dryRun {
		return s.renderer.RenderChanges(changes, true)
	}

	results, err := tt.Apply(transform.ApplyOptions{NoConflicts: true})
	if err != nil {
		return err
	}
	logger.Info().Int("changes", len(changes)).Int("installed", results.InstallCount).Msg("Applied transform")
	if err := s.renderer.RenderChanges(changes, false); err != nil {
		return err
	}
	return s.renderer.RenderResults(results)
}

func (s *session) save(tt transform.Transform) error {
	f, err := os.Create(s.opts.save)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to create %s", s.opts.save)
	}
	if err := tt.Serialize(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to write %s", s.opts.save)
	}
	return s.renderer.RenderMessage("Success", fmt.Sprintf(MsgSaved, s.opts.save))
}

// ExitCode maps an error to the process exit status: 2 for conflicts left
// in a transform, 3 for invalid input or API misuse and 1 for everything
// else.
func ExitCode(err error) int {
	switch errors.CategoryOf(err) {
	case errors.CategoryStructural:
		return 2
	case errors.CategoryProgramming:
		return 3
	}
	return 1
}
