//go:build linux

package device

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/jaypipes/ghw"
)

// Probe enumerates the host's block devices through ghw. Results are
// produced fresh on every call; nothing is cached across refreshes.
func Probe() ([]Candidate, error) {
	info, err := ghw.Block()
	if err != nil {
		return nil, fmt.Errorf("device: block enumeration: %w", err)
	}

	candidates := make([]Candidate, 0, len(info.Disks))
	for _, d := range info.Disks {
		c := Candidate{
			Identifier:   "/dev/" + d.Name,
			MediaName:    strings.TrimSpace(d.Vendor + " " + d.Model),
			ProtocolType: d.StorageController.String(),
			SizeBytes:    d.SizeBytes,
			Removable:    d.IsRemovable,
			External:     strings.Contains(d.BusPath, "usb"),
			Virtual:      isVirtualDisk(d.StorageController.String(), d.Model),
		}
		for _, p := range d.Partitions {
			if IsSystemPartition(p.Label) || p.Type == "swap" || strings.EqualFold(p.Label, "EFI") {
				c.HasSystemPartitions = true
				break
			}
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func isVirtualDisk(controller, model string) bool {
	if strings.EqualFold(controller, "virtio") {
		return true
	}
	model = strings.ToLower(model)
	return strings.Contains(model, "qemu") || strings.Contains(model, "virtual")
}

var trailingPartition = regexp.MustCompile(`(p?\d+)$`)

// BootDisk returns the disk hosting the root filesystem.
func BootDisk() (string, error) {
	dev, err := rootDevice()
	if err != nil {
		return "", err
	}
	// /dev/sda2 -> /dev/sda, /dev/nvme0n1p2 -> /dev/nvme0n1
	base := dev
	if m := trailingPartition.FindString(dev); m != "" {
		if strings.HasPrefix(m, "p") {
			base = strings.TrimSuffix(dev, m)
		} else if !strings.ContainsAny(strings.TrimSuffix(dev, m), "0123456789") {
			base = strings.TrimSuffix(dev, m)
		}
	}
	return base, nil
}

func rootDevice() (string, error) {
	f, err := os.Open("/proc/self/mounts")
	if err != nil {
		return "", fmt.Errorf("device: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) >= 2 && fields[1] == "/" && strings.HasPrefix(fields[0], "/dev/") {
			return fields[0], nil
		}
	}
	return "", fmt.Errorf("device: root filesystem not found")
}

// Unmount unmounts every mounted partition of the disk so it can be
// opened for exclusive writing.
func Unmount(devicePath string) error {
	f, err := os.Open("/proc/self/mounts")
	if err != nil {
		return fmt.Errorf("device: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 || !strings.HasPrefix(fields[0], devicePath) {
			continue
		}
		if out, err := exec.Command("umount", fields[1]).CombinedOutput(); err != nil {
			return fmt.Errorf("device: unmount %s: %s: %w",
				fields[1], strings.TrimSpace(string(out)), err)
		}
	}
	return nil
}
