//go:build darwin

package device

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/sys/unix"
)

// Probe enumerates the host's whole disks through diskutil. Results are
// produced fresh on every call; nothing is cached across refreshes because
// topology changes between them (insert/eject).
func Probe() ([]Candidate, error) {
	listOut, err := exec.Command("diskutil", "list").Output()
	if err != nil {
		return nil, fmt.Errorf("device: diskutil list: %w", err)
	}

	byDisk := parseDiskutilList(string(listOut))
	candidates := make([]Candidate, 0, len(byDisk))
	for disk, partitions := range byDisk {
		infoOut, err := exec.Command("diskutil", "info", disk).Output()
		if err != nil {
			continue // disk ejected mid-enumeration, skip it
		}
		info := parseDiskutilInfo(string(infoOut))

		c := Candidate{
			Identifier:   disk,
			MediaName:    info.MediaName,
			ProtocolType: info.Protocol,
			SizeBytes:    info.SizeBytes,
			Removable:    info.Removable,
			External:     !info.Internal,
			Virtual:      info.Virtual,
		}
		for _, ptype := range partitions {
			if IsSystemPartition(ptype) {
				c.HasSystemPartitions = true
				break
			}
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

var partitionSuffix = regexp.MustCompile(`s\d+$`)

// BootDisk returns the whole-disk identifier hosting the root filesystem.
func BootDisk() (string, error) {
	n, err := unix.Getfsstat(nil, unix.MNT_NOWAIT)
	if err != nil {
		return "", fmt.Errorf("device: getfsstat: %w", err)
	}
	if n <= 0 {
		return "", fmt.Errorf("device: getfsstat returned no mounts")
	}
	stats := make([]unix.Statfs_t, n)
	if _, err := unix.Getfsstat(stats, unix.MNT_NOWAIT); err != nil {
		return "", fmt.Errorf("device: getfsstat: %w", err)
	}
	for _, st := range stats {
		if cString(st.Mntonname[:]) != "/" {
			continue
		}
		dev := cString(st.Mntfromname[:])
		// /dev/disk3s1s1 -> /dev/disk3
		for partitionSuffix.MatchString(dev) {
			dev = partitionSuffix.ReplaceAllString(dev, "")
		}
		return filepath.Clean(dev), nil
	}
	return "", fmt.Errorf("device: root filesystem not found")
}

// Unmount unmounts every volume of the disk so it can be opened for
// exclusive writing.
func Unmount(devicePath string) error {
	out, err := exec.Command("diskutil", "unmountDisk", devicePath).CombinedOutput()
	if err != nil {
		return fmt.Errorf("device: unmount %s: %s: %w",
			devicePath, strings.TrimSpace(string(out)), err)
	}
	return nil
}

func cString(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
