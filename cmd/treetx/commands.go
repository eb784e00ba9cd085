package treetx

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/arthur-debert/treetx/pkg/config"
	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/logging"
	"github.com/arthur-debert/treetx/pkg/transform"
	"github.com/arthur-debert/treetx/pkg/types"
	"github.com/arthur-debert/treetx/pkg/workingtree"
	"github.com/spf13/cobra"
)

func newInitCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: MsgInitShort,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := opts.dir
			if len(args) == 1 {
				dir = args[0]
			}
			cfg, err := config.Load("")
			if err != nil {
				return err
			}
			wt, err := workingtree.Init(dir, cfg)
			if err != nil {
				return err
			}
			cfgPath := config.ConfigPath(wt.Root())
			if err := os.WriteFile(cfgPath, []byte(config.GenerateConfigContent()), 0644); err != nil {
				return errors.Wrapf(err, errors.ErrFileWrite, "failed to write %s", cfgPath)
			}
			renderer, err := newRenderer(cmd)
			if err != nil {
				return err
			}
			return renderer.RenderMessage("Success", fmt.Sprintf(MsgInitialized, wt.Root()))
		},
	}
}

func newAddCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <paths...>",
		Short: MsgAddShort,
		Long:  MsgAddLong,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			paths, err := s.relPaths(args)
			if err != nil {
				return err
			}
			return s.run(func(tt transform.Transform) error {
				a := &adder{s: s, tt: tt, seen: map[string]bool{}}
				for _, p := range paths {
					if err := a.add(p, true); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

// adder versions paths found on disk along with their unversioned parents.
type adder struct {
	s    *session
	tt   transform.Transform
	seen map[string]bool
}

func (a *adder) add(p string, explicit bool) error {
	logger := logging.GetLogger("cmd.add")
	wt := a.s.wt
	if a.seen[p] || wt.IsControlFilename(p) {
		return nil
	}
	a.seen[p] = true

	kind, err := wt.Kind(p)
	if err != nil {
		return err
	}
	switch kind {
	case types.KindNone:
		return errors.Newf(errors.ErrNotFound, "%s does not exist", p)
	case types.KindSpecial:
		logger.Warn().Str("path", p).Msg("Skipping special file")
		return nil
	}

	if p != "" {
		if wt.IsVersioned(p) {
			if explicit && kind != types.KindDirectory {
				return a.s.renderer.RenderMessage("Muted", fmt.Sprintf(MsgAlreadyVersion, p))
			}
		} else {
			if err := a.addParents(p); err != nil {
				return err
			}
			name := path.Base(p)
			if err := a.tt.VersionFile(a.tt.TransIDTreePath(p), transform.GenFileID(name)); err != nil {
				return err
			}
			logger.Debug().Str("path", p).Msg("Versioning")
		}
	}

	if kind != types.KindDirectory {
		return nil
	}
	names, err := wt.Children(p)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := a.add(joinTreePath(p, name), false); err != nil {
			return err
		}
	}
	return nil
}

func (a *adder) addParents(p string) error {
	parent := path.Dir(p)
	if parent == "." || a.s.wt.IsVersioned(parent) || a.seen[parent] {
		return nil
	}
	if err := a.addParents(parent); err != nil {
		return err
	}
	a.seen[parent] = true
	return a.tt.VersionFile(a.tt.TransIDTreePath(parent), transform.GenFileID(path.Base(parent)))
}

func joinTreePath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func splitTreePath(p string) (string, string) {
	dir, name := path.Split(p)
	return strings.TrimSuffix(dir, "/"), name
}

func newMkdirCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: MsgMkdirShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			p, err := s.relPath(args[0])
			if err != nil {
				return err
			}
			if p == "" {
				return errors.New(errors.ErrAlreadyExists, "the tree root already exists")
			}
			return s.run(func(tt transform.Transform) error {
				dir, name := splitTreePath(p)
				_, err := tt.NewDirectory(name, tt.TransIDTreePath(dir), transform.GenFileID(name))
				return err
			})
		},
	}
}

func newMvCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mv <from> <to>",
		Short: MsgMvShort,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			paths, err := s.relPaths(args)
			if err != nil {
				return err
			}
			from, to := paths[0], paths[1]
			if !s.wt.IsVersioned(from) {
				return errors.Newf(errors.ErrNotFound, "%s is not versioned", from)
			}
			return s.run(func(tt transform.Transform) error {
				dir, name := splitTreePath(to)
				if kind, _ := s.wt.Kind(to); kind == types.KindDirectory && s.wt.IsVersioned(to) {
					dir, name = to, path.Base(from)
				}
				return tt.AdjustPath(tt.TransIDTreePath(from), name, tt.TransIDTreePath(dir))
			})
		},
	}
}

func newRmCmd(opts *globalOptions) *cobra.Command {
	var keep bool
	cmd := &cobra.Command{
		Use:   "rm <paths...>",
		Short: MsgRmShort,
		Long:  MsgRmLong,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			paths, err := s.relPaths(args)
			if err != nil {
				return err
			}
			for _, p := range paths {
				if p == "" {
					return errors.New(errors.ErrInvalidInput, "cannot remove the tree root")
				}
				if !s.wt.IsVersioned(p) {
					return errors.Newf(errors.ErrNotFound, "%s is not versioned", p)
				}
			}
			entries, err := s.wt.Entries()
			if err != nil {
				return err
			}
			return s.run(func(tt transform.Transform) error {
				for _, e := range entries {
					if !underAny(e.Path, paths) {
						continue
					}
					t := tt.TransIDTreePath(e.Path)
					var err error
					if keep {
						err = tt.UnversionFile(t)
					} else {
						err = tt.DeleteVersioned(t)
					}
					if err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&keep, "keep", false, MsgFlagKeep)
	return cmd
}

// underAny reports whether p is one of roots or below one of them.
func underAny(p string, roots []string) bool {
	for _, root := range roots {
		if p == root || strings.HasPrefix(p, root+"/") {
			return true
		}
	}
	return false
}

type listEntry struct {
	Path       string       `yaml:"path"`
	FileID     types.FileID `yaml:"file_id"`
	Kind       types.Kind   `yaml:"kind"`
	Executable bool         `yaml:"executable,omitempty"`
}

func newLsCmd(opts *globalOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "ls",
		Short: MsgLsShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "yaml" {
				return errors.Newf(errors.ErrInvalidInput, MsgErrFormat, format)
			}
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			if err := s.wt.LockRead(); err != nil {
				return err
			}
			defer func() { _ = s.wt.Unlock() }()

			entries, err := s.wt.Entries()
			if err != nil {
				return err
			}
			if format == "text" {
				return s.renderer.RenderEntries(entries)
			}
			listing := make([]listEntry, 0, len(entries))
			for _, e := range entries {
				if e.Path == "" {
					continue
				}
				listing = append(listing, listEntry{
					Path:       e.Path,
					FileID:     e.Entry.FileID,
					Kind:       e.Entry.Kind,
					Executable: e.Entry.Executable,
				})
			}
			return s.renderer.WriteYAML(listing)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", MsgFlagFormat)
	return cmd
}

func newConfigCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: MsgConfigShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := workingtree.Find(opts.dir, config.Default())
			if err != nil {
				root = ""
			}
			cfg, err := config.Load(root)
			if err != nil {
				return err
			}
			content, err := config.Render(cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), content)
			return err
		},
	}
}

func newReplayCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <file>",
		Short: MsgReplayShort,
		Long:  MsgReplayLong,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrapf(err, errors.ErrFileAccess, "failed to open %s", args[0])
			}
			defer func() { _ = f.Close() }()
			return s.run(func(tt transform.Transform) error {
				return tt.Deserialize(f)
			})
		},
	}
}
