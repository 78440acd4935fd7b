package device

import (
	"bufio"
	"strconv"
	"strings"
)

// diskutil output parsing, kept free of platform dependencies so it stays
// testable everywhere. The darwin prober feeds it the output of
// `diskutil list` and `diskutil info <disk>`.

// diskutilInfo is the subset of `diskutil info` fields the prober needs.
type diskutilInfo struct {
	MediaName string
	Protocol  string
	SizeBytes uint64
	Removable bool
	Internal  bool
	Virtual   bool
}

// parseDiskutilInfo parses the "Key: Value" lines of `diskutil info`.
func parseDiskutilInfo(out string) diskutilInfo {
	var info diskutilInfo
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "Device / Media Name":
			info.MediaName = value
		case "Protocol":
			info.Protocol = value
		case "Disk Size", "Total Size":
			info.SizeBytes = parseDiskutilSize(value)
		case "Removable Media":
			info.Removable = value == "Removable" || value == "Yes"
		case "Internal":
			info.Internal = value == "Yes"
		case "Virtual":
			info.Virtual = value == "Yes"
		}
	}
	return info
}

// parseDiskutilSize extracts the exact byte count from a size value like
// "500.3 GB (500277792768 Bytes) (exactly 977105064 512-Byte-Units)".
func parseDiskutilSize(value string) uint64 {
	open := strings.Index(value, "(")
	if open < 0 {
		return 0
	}
	rest := value[open+1:]
	end := strings.Index(rest, " Bytes")
	if end < 0 {
		return 0
	}
	n, err := strconv.ParseUint(strings.TrimSpace(rest[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseDiskutilList extracts whole-disk identifiers and their partition
// type names from `diskutil list` output, e.g.
//
//	/dev/disk0 (internal, physical):
//	   #:                       TYPE NAME                    SIZE       IDENTIFIER
//	   0:      GUID_partition_scheme                        *500.3 GB   disk0
//	   1:                        EFI EFI                     314.6 MB   disk0s1
//	   2:                 Apple_APFS Container disk1         500.0 GB   disk0s2
func parseDiskutilList(out string) map[string][]string {
	disks := make(map[string][]string)
	var current string
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "/dev/disk") {
			current = strings.TrimSuffix(strings.Fields(line)[0], ":")
			disks[current] = nil
			continue
		}
		if current == "" {
			continue
		}
		fields := strings.Fields(line)
		// Partition rows are "N: TYPE [NAME...] SIZE IDENTIFIER".
		if len(fields) < 4 || !strings.HasSuffix(fields[0], ":") {
			continue
		}
		if fields[0] == "#:" || fields[0] == "0:" {
			continue // header and partition-scheme rows, not partitions
		}
		ptype := fields[1]
		// Multi-word types like "BIOS Boot" or "Linux swap".
		if len(fields) >= 5 && IsSystemPartition(fields[1]+" "+fields[2]) {
			ptype = fields[1] + " " + fields[2]
		}
		disks[current] = append(disks[current], ptype)
	}
	return disks
}
