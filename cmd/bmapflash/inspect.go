package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bmap-writer/internal/bmap"
	"github.com/deploymenttheory/go-bmap-writer/internal/config"
)

var inspectStrict bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <bmap>",
	Short: "Summarize a bmap file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		parser := &bmap.Parser{
			Strict: inspectStrict || cfg.Bmap.Strict,
			Log:    slog.New(slog.NewTextHandler(os.Stderr, nil)),
		}
		bm, err := parser.Parse(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Image size:     %s (%d bytes)\n", formatBytes(bm.ImageSize), bm.ImageSize)
		fmt.Printf("Block size:     %d\n", bm.BlockSize)
		fmt.Printf("Blocks:         %d total, %d mapped\n", bm.BlocksCount, bm.MappedBlocksCount)
		fmt.Printf("Checksum type:  %s\n", bm.ChecksumType)
		fmt.Printf("Ranges:         %d\n", len(bm.Ranges))
		if bm.BlocksCount > 0 {
			fmt.Printf("Mapped:         %.1f%% of the image\n",
				float64(bm.MappedBlocksCount)*100/float64(bm.BlocksCount))
		}

		if verbose {
			for _, r := range bm.Ranges {
				if r.Start == r.End {
					fmt.Printf("  block %d\n", r.Start)
				} else {
					fmt.Printf("  blocks %d-%d\n", r.Start, r.End)
				}
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().BoolVar(&inspectStrict, "strict", false, "treat bmap leniencies as errors")
}
