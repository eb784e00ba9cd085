package transform

import (
	"io"

	"github.com/arthur-debert/treetx/pkg/config"
	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/logging"
	"github.com/arthur-debert/treetx/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Transform stages a set of changes against a tree and then either applies
// them or is discarded. Implementations are not safe for concurrent use.
type Transform interface {
	Root() TransID

	TransIDTreePath(path string) TransID
	TransIDFileID(id types.FileID) (TransID, error)

	CreatePath(name string, parent TransID) (TransID, error)
	AdjustPath(t TransID, name string, parent TransID) error
	AdjustRootPath(name string, parent TransID) error
	FixupNewRoots() error
	DeleteContents(t TransID) error
	CancelDeletion(t TransID) error
	UnversionFile(t TransID) error
	DeleteVersioned(t TransID) error
	VersionFile(t TransID, id types.FileID) error
	CancelVersioning(t TransID) error
	SetExecutability(t TransID, executable bool) error
	ClearExecutability(t TransID) error

	CreateFile(t TransID, content []byte, opts ...CreateOption) error
	CreateDirectory(t TransID) error
	CreateSymlink(t TransID, target string) error
	CancelCreation(t TransID) error
	NewFile(name string, parent TransID, content []byte, id types.FileID, opts ...CreateOption) (TransID, error)
	NewDirectory(name string, parent TransID, id types.FileID) (TransID, error)
	NewSymlink(name string, parent TransID, target string, id types.FileID) (TransID, error)
	NewOrphan(t, parent TransID) error

	TreePath(t TransID) (string, bool)
	TreeKind(t TransID) types.Kind
	TreeFileID(t TransID) types.FileID
	FinalName(t TransID) (string, error)
	FinalParent(t TransID) (TransID, error)
	FinalKind(t TransID) types.Kind
	FinalFileID(t TransID) types.FileID
	FinalIsVersioned(t TransID) bool
	InactiveFileID(t TransID) types.FileID
	ByParent() map[TransID][]TransID
	NewPaths(filesystemOnly bool) ([]PathTransID, error)
	FinalPath(t TransID) (string, error)

	FindConflicts() ([]Conflict, error)
	IterChanges() ([]types.TreeChange, error)
	GetPreviewTree() (*PreviewTree, error)

	Serialize(w io.Writer) error
	Deserialize(r io.Reader) error

	Apply(opts ApplyOptions) (*Results, error)
	Finalize() error

	staged() *core
}

// Options tune transform behavior. NewOptions derives them from config.
type Options struct {
	// DirectPaths lets new entries be staged at their final name inside a
	// staged parent directory, saving a rename at apply time.
	DirectPaths bool
	// CaseSensitive applies to preview transforms; disk transforms ask the tree.
	CaseSensitive bool
	OrphanPolicy  string
	OrphanDir     string
}

// NewOptions returns the options configured in cfg, or the defaults if cfg is nil.
func NewOptions(cfg *config.Config) Options {
	if cfg == nil {
		cfg = config.Default()
	}
	return Options{
		DirectPaths:   cfg.Transform.DirectPaths,
		CaseSensitive: cfg.CaseSensitiveTarget(true),
		OrphanPolicy:  cfg.Transform.OrphanPolicy,
		OrphanDir:     cfg.Transform.OrphanDir,
	}
}

// GenFileID returns a new unique file id derived from name.
func GenFileID(name string) types.FileID {
	if name == "" {
		name = "root"
	}
	return types.FileID(name + "-" + uuid.NewString())
}

// backend supplies what differs between disk and preview transforms.
type backend interface {
	treeChildren(parent TransID) ([]TransID, error)
	setMode(modeID, t TransID) error
	supportsSymlinks() bool
}

// core holds the staged change set shared by every transform variant.
type core struct {
	tree    types.Tree
	backend backend
	opts    Options
	logger  zerolog.Logger

	idNumber         int
	newName          map[TransID]string
	newParent        map[TransID]TransID
	newContents      map[TransID]types.Kind
	newID            map[TransID]types.FileID
	rNewID           map[types.FileID]TransID
	newExecutability map[TransID]bool
	removedContents  idSet
	removedID        idSet
	nonPresentIDs    map[types.FileID]TransID
	treePathIDs      map[string]TransID
	treeIDPaths      map[TransID]string
	observedHashes   map[TransID]types.ObservedHash
	newRoot          TransID

	caseSensitive bool
	done          bool
	finalized     bool
	generation    uint64

	limbo *limbo
}

func newCore(tree types.Tree, opts Options, caseSensitive bool, component string) *core {
	c := &core{
		tree:          tree,
		opts:          opts,
		logger:        logging.GetLogger("transform." + component),
		caseSensitive: caseSensitive,
	}
	c.reset()
	return c
}

func (c *core) reset() {
	c.idNumber = 0
	c.newName = map[TransID]string{}
	c.newParent = map[TransID]TransID{}
	c.newContents = map[TransID]types.Kind{}
	c.newID = map[TransID]types.FileID{}
	c.rNewID = map[types.FileID]TransID{}
	c.newExecutability = map[TransID]bool{}
	c.removedContents = idSet{}
	c.removedID = idSet{}
	c.nonPresentIDs = map[types.FileID]TransID{}
	c.treePathIDs = map[string]TransID{}
	c.treeIDPaths = map[TransID]string{}
	c.observedHashes = map[TransID]types.ObservedHash{}
	c.newRoot = c.TransIDTreePath("")
}

// checkLive refuses work on a transform that was applied or finalized.
func (c *core) checkLive() error {
	if c.done || c.finalized {
		return errors.New(errors.ErrReusingTransform, "transform has already been applied or finalized")
	}
	return nil
}

// touch records a staging mutation, invalidating preview trees.
func (c *core) touch() {
	c.generation++
}

// Root returns the trans id of the final tree root.
func (c *core) Root() TransID {
	return c.newRoot
}

// isEmpty reports whether nothing beyond the root has been staged.
func (c *core) isEmpty() bool {
	return len(c.newName) == 0 && len(c.newParent) == 0 &&
		len(c.newContents) == 0 && len(c.newID) == 0 &&
		len(c.newExecutability) == 0 && len(c.removedContents) == 0 &&
		len(c.removedID) == 0 && len(c.nonPresentIDs) == 0
}
