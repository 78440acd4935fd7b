package device

import "strings"

// MaxTargetBytes is the capacity ceiling for eligible targets. Disks above
// it are almost certainly bulk or backup volumes, not flashing media.
const MaxTargetBytes = 256 << 30 // 256 GiB

// systemPartitionTypes is the fixed set of partition type names that mark a
// disk as carrying an operating system installation.
var systemPartitionTypes = map[string]struct{}{
	"EFI":                  {},
	"Apple_APFS":           {},
	"Apple_Boot":           {},
	"Apple_CoreStorage":    {},
	"Apple_KernelCoreDump": {},
	"BIOS Boot":            {},
	"Linux swap":           {},
	"Windows Recovery":     {},
}

// systemVendorBrands are media-name substrings identifying built-in system
// storage, matched case-insensitively.
var systemVendorBrands = []string{"apple"}

// IsSystemPartition reports whether a partition type name belongs to the
// recognized system-reserved set. Probers use it to populate
// Candidate.HasSystemPartitions.
func IsSystemPartition(typeName string) bool {
	_, ok := systemPartitionTypes[typeName]
	return ok
}

// Eligible filters one enumeration pass down to the disks that are safe to
// offer as write targets. bootDisk is the identifier of the disk hosting
// the running system and is excluded no matter what else is true of it.
//
// The exclusion rules are sequential hard stops with no override:
// virtual disks, the boot disk, disks carrying system partitions, disks
// whose media name carries a system-vendor brand, disks above the capacity
// ceiling, and finally anything that is neither removable nor external.
func Eligible(disks []Candidate, bootDisk string) []Candidate {
	eligible := make([]Candidate, 0, len(disks))
	for _, d := range disks {
		if d.Virtual {
			continue
		}
		if d.Identifier == bootDisk {
			continue
		}
		if d.HasSystemPartitions {
			continue
		}
		if hasVendorBrand(d.MediaName) {
			continue
		}
		if d.SizeBytes > MaxTargetBytes {
			continue
		}
		if !d.Removable && !d.External {
			continue
		}
		eligible = append(eligible, d)
	}
	return eligible
}

func hasVendorBrand(mediaName string) bool {
	name := strings.ToLower(mediaName)
	for _, brand := range systemVendorBrands {
		if strings.Contains(name, brand) {
			return true
		}
	}
	return false
}
