package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bmap-writer/internal/config"
	"github.com/deploymenttheory/go-bmap-writer/internal/orchestrate"
	"github.com/deploymenttheory/go-bmap-writer/pkg/app"
)

var (
	flashBmapPath string
	flashVerify   bool
)

var flashCmd = &cobra.Command{
	Use:   "flash <image> <device>",
	Short: "Write an image to a device",
	Long: `flash unmounts the target device and streams the image's mapped
blocks onto it through the privileged writer helper.

The bmap file is looked up next to the image (image.img -> image.bmap,
also for .img.gz) unless --bmap names it explicitly. Plain and
gzip-compressed images are handled identically.

Interrupting a running flash leaves the device in an indeterminate
state.

Examples:
  bmapflash flash raspios.img.gz /dev/disk4
  bmapflash flash custom.img /dev/disk4 --bmap maps/custom.bmap --verify`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFlash(args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(flashCmd)
	flashCmd.Flags().StringVar(&flashBmapPath, "bmap", "", "bmap file (default: derived from the image path)")
	flashCmd.Flags().BoolVar(&flashVerify, "verify", false, "verify per-range checksums while copying")
}

func runFlash(imagePath, devicePath string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	bmapPath := flashBmapPath
	if bmapPath == "" {
		bmapPath = deriveBmapPath(imagePath)
	}
	if _, err := os.Stat(bmapPath); err != nil {
		return fmt.Errorf("bmap file not found at %s (use --bmap): %w", bmapPath, err)
	}

	// Ctrl-C kills the writer; the device is left indeterminate and the
	// terminal event says so.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	actx := app.NewContext(ctx)
	actx.Verbose = verbose
	actx.Quiet = quiet

	var bar *progressbar.ProgressBar
	if !quiet {
		bar = progressbar.NewOptions(100,
			progressbar.OptionSetDescription("flashing"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		actx.ProgressCallback = func(percent int) { bar.Set(percent) }
	}

	actx.Log(fmt.Sprintf("image:  %s", imagePath))
	actx.Log(fmt.Sprintf("bmap:   %s", bmapPath))
	actx.Log(fmt.Sprintf("device: %s", devicePath))

	events := orchestrate.Run(ctx, orchestrate.Options{
		ImagePath:  imagePath,
		BmapPath:   bmapPath,
		DevicePath: devicePath,
		WriterPath: cfg.Writer.Path,
		PipeDir:    cfg.Pipe.Dir,
		Verify:     flashVerify || cfg.Verify,
		StrictBmap: cfg.Bmap.Strict,
		BufferSize: cfg.Copy.BufferSize,
	})

	for ev := range events {
		switch ev.Kind {
		case orchestrate.EventProgress:
			actx.Progress(ev.Percent)
		case orchestrate.EventLog:
			actx.Log(ev.Line)
		case orchestrate.EventTerminal:
			if bar != nil {
				bar.Finish()
			}
			if ev.Err != nil {
				if ev.ExitCode > 0 {
					return fmt.Errorf("flashing failed (writer exit code %d): %w", ev.ExitCode, ev.Err)
				}
				return fmt.Errorf("flashing failed: %w", ev.Err)
			}
			if !quiet {
				fmt.Printf("Flashed %s to %s\n", imagePath, devicePath)
			}
		}
	}
	return nil
}

// deriveBmapPath maps image.img and image.img.gz to image.bmap.
func deriveBmapPath(imagePath string) string {
	path := imagePath
	for _, ext := range []string{".gz", ".img", ".wic"} {
		if len(path) > len(ext) && path[len(path)-len(ext):] == ext {
			path = path[:len(path)-len(ext)]
		}
	}
	return path + ".bmap"
}
