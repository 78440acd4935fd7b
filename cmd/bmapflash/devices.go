package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bmap-writer/internal/device"
)

var showAllDevices bool

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List disks that are safe to flash",
	Long: `devices enumerates the host's disks and applies the eligibility
rules: the boot disk, disks carrying system partitions, system-vendor
media, disks over 256 GiB and non-removable internal disks are excluded.
Results are never cached; run it again after inserting or ejecting
media.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		disks, err := device.Probe()
		if err != nil {
			return err
		}
		if !showAllDevices {
			bootDisk, err := device.BootDisk()
			if err != nil {
				return err
			}
			disks = device.Eligible(disks, bootDisk)
		}

		if len(disks) == 0 {
			fmt.Println("No eligible devices found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DEVICE\tMEDIA\tPROTOCOL\tSIZE")
		for _, d := range disks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				d.Identifier, d.MediaName, d.ProtocolType, formatBytes(d.SizeBytes))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.Flags().BoolVar(&showAllDevices, "all", false, "list every disk, including ineligible ones")
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
