// bmapflash is the unprivileged imaging controller: it enumerates disks
// that are safe to flash, and drives imaging sessions by spawning the
// privileged bmapflash-writer with a progress pipe.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global output flags only
	verbose bool
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "bmapflash",
	Short: "Flash sparse disk images to removable media",
	Long: `bmapflash writes disk images to removable media using the image's
bmap file, copying only the blocks that actually contain data. The raw
device write runs in a separate, minimally-privileged helper process
(bmapflash-writer); this controller stays unprivileged and relays the
helper's progress and diagnostics.

Commands:
  devices     List disks that are safe to flash
  flash       Write an image to a device
  inspect     Summarize a bmap file`,
	Version: "0.1.0-dev",
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output except errors")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
