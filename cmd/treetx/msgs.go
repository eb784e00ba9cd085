package treetx

import (
	_ "embed"
	"strings"
)

// Short messages (one-liners)
const (
	MsgRootShort    = "Transactional changes to versioned directory trees"
	MsgInitShort    = "Create a new tree"
	MsgAddShort     = "Version unversioned files"
	MsgMkdirShort   = "Create and version a directory"
	MsgMvShort      = "Move or rename a versioned entry"
	MsgRmShort      = "Remove versioned entries"
	MsgLsShort      = "List versioned entries"
	MsgConfigShort  = "Print the effective configuration"
	MsgReplayShort  = "Apply a saved transform"
	MsgVersionShort = "Print version information"

	MsgInitialized    = "Initialized tree at %s"
	MsgSaved          = "Saved transform to %s"
	MsgAlreadyVersion = "%s is already versioned"
	MsgVersionFormat  = "treetx version %s\n  commit: %s\n  built:  %s\n"

	MsgErrConflicts   = "%d conflict(s) left; rerun with --resolve to fix them automatically"
	MsgErrOutsideTree = "%s is outside the tree at %s"
	MsgErrFormat      = "unknown format %q (want text or yaml)"

	MsgFlagVerbose = "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)"
	MsgFlagDir     = "Run as if started in this directory"
	MsgFlagDryRun  = "Show the resulting changes without touching the tree"
	MsgFlagSave    = "Write the staged transform to this file instead of applying it"
	MsgFlagResolve = "Resolve conflicts automatically before applying"
	MsgFlagKeep    = "Keep the files on disk, only stop versioning them"
	MsgFlagFormat  = "Output format: text or yaml"
)

// Long messages from embedded files
var (
	//go:embed msgs/root-long.txt
	msgRootLongRaw string
	MsgRootLong    = strings.TrimSpace(msgRootLongRaw)

	//go:embed msgs/add-long.txt
	msgAddLongRaw string
	MsgAddLong    = strings.TrimSpace(msgAddLongRaw)

	//go:embed msgs/rm-long.txt
	msgRmLongRaw string
	MsgRmLong    = strings.TrimSpace(msgRmLongRaw)

	//go:embed msgs/replay-long.txt
	msgReplayLongRaw string
	MsgReplayLong    = strings.TrimSpace(msgReplayLongRaw)

	//go:embed msgs/usage-template.txt
	msgUsageTemplateRaw string
	MsgUsageTemplate    = strings.TrimSpace(msgUsageTemplateRaw)
)
