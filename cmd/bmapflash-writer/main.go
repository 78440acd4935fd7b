// bmapflash-writer is the privileged half of an imaging session. It is
// launched with elevated rights by the bmapflash orchestrator (or by hand
// for debugging), writes the image's mapped ranges to the device, reports
// progress on the named pipe, and signals the outcome through its exit
// code: 0 on success, non-zero on any failure.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bmap-writer/internal/writer"
)

var (
	progressPipe string
	verify       bool
	strictBmap   bool
	bufferSize   int
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "bmapflash-writer <imagePath> <bmapPath> <devicePath>",
	Short: "Privileged bmap imaging writer",
	Long: `bmapflash-writer streams the mapped ranges of a (possibly
gzip-compressed) disk image onto a block device, as described by the
image's bmap file. Unmapped regions are skipped entirely.

It is normally spawned with elevated rights by bmapflash and reports
progress as "PROGRESS <percent>" lines on the named pipe given with
--progress-pipe. Diagnostics go to stderr.`,
	Args:          cobra.ExactArgs(3),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		if os.Geteuid() != 0 {
			log.Warn("not running as root; opening the device will likely fail")
		}

		return writer.Run(cmd.Context(), writer.Options{
			ImagePath:  args[0],
			BmapPath:   args[1],
			DevicePath: args[2],
			PipePath:   progressPipe,
			Verify:     verify,
			StrictBmap: strictBmap,
			BufferSize: bufferSize,
			Log:        log,
		})
	},
}

func init() {
	rootCmd.Flags().StringVar(&progressPipe, "progress-pipe", "", "named pipe for PROGRESS lines")
	rootCmd.Flags().BoolVar(&verify, "verify", false, "verify per-range checksums while copying")
	rootCmd.Flags().BoolVar(&strictBmap, "strict-bmap", false, "treat bmap leniencies as errors")
	rootCmd.Flags().IntVar(&bufferSize, "buffer-size", 0, "copy buffer size in bytes (0 = 1 MiB)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
