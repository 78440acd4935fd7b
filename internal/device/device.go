// Package device enumerates the host's disks and decides which of them are
// legal targets for imaging. Enumeration is re-run on every refresh; a
// Candidate has no identity beyond the enumeration pass that produced it
// and must never be trusted for a write decision without re-validation.
package device

import "fmt"

// Candidate describes one physical disk as observed during a single
// enumeration pass.
type Candidate struct {
	// Identifier is the device path, e.g. /dev/disk2 or /dev/sdb.
	Identifier string

	// MediaName is the human-readable media/model string.
	MediaName string

	// ProtocolType names the attachment protocol (USB, SATA, ...).
	ProtocolType string

	SizeBytes uint64

	Removable bool
	External  bool
	Virtual   bool

	// HasSystemPartitions is true when the disk's partition table contains
	// a recognized system-reserved partition type.
	HasSystemPartitions bool
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s (%s, %s, %d bytes)",
		c.Identifier, c.MediaName, c.ProtocolType, c.SizeBytes)
}
