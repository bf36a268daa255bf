package commands

import (
	"github.com/spf13/cobra"

	"github.com/spherical/lecture-ingest/cmd/lecture-ingest/ui"
)

// Set at build time with -ldflags "-X .../commands.version=..."
var version = "dev"

var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "lecture-ingest",
	Short: "Turn lecture slide PDFs into page-aligned markdown documents",
	Long: `lecture-ingest renders every slide of a PDF to an image, sends the images
in small batches to a vision-capable model and writes one markdown document
per slide, tagged with the source file and 0-based page number.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.Init(noColor, verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
