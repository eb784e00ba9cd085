package treetx

import (
	"fmt"

	"github.com/arthur-debert/treetx/internal/version"
	"github.com/arthur-debert/treetx/pkg/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	verbosity int
	dir       string
	dryRun    bool
	save      string
	resolve   bool
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	initTemplateFormatting()

	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:     "treetx",
		Short:   MsgRootShort,
		Long:    MsgRootLong,
		Version: version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(opts.verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return fmt.Errorf("no command specified")
		},
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.CountVarP(&opts.verbosity, "verbose", "v", MsgFlagVerbose)
	flags.StringVarP(&opts.dir, "directory", "C", ".", MsgFlagDir)
	flags.BoolVar(&opts.dryRun, "dry-run", false, MsgFlagDryRun)
	flags.StringVar(&opts.save, "save", "", MsgFlagSave)
	flags.BoolVar(&opts.resolve, "resolve", false, MsgFlagResolve)

	rootCmd.AddGroup(&cobra.Group{ID: "tree", Title: "COMMANDS:"})
	rootCmd.AddGroup(&cobra.Group{ID: "misc", Title: "MISC:"})
	rootCmd.SetUsageTemplate(MsgUsageTemplate)

	for _, cmd := range []*cobra.Command{
		newInitCmd(opts),
		newAddCmd(opts),
		newMkdirCmd(opts),
		newMvCmd(opts),
		newRmCmd(opts),
		newLsCmd(opts),
		newReplayCmd(opts),
	} {
		cmd.GroupID = "tree"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{newConfigCmd(opts), newVersionCmd()} {
		cmd.GroupID = "misc"
		rootCmd.AddCommand(cmd)
	}
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: MsgVersionShort,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), MsgVersionFormat, version.Version, version.Commit, version.Date)
		},
	}
}
