// Package rtplossdetector counts gaps in a sequence of accepted RTP packets.
package rtplossdetector

// LossDetector detects lost packets.
type LossDetector struct {
	initialized    bool
	expectedSeqNum uint16
}

// Process processes the sequence number of an accepted packet.
// It returns the number of packets that are missing before it.
func (d *LossDetector) Process(seqNum uint16) uint64 {
	if !d.initialized {
		d.initialized = true
		d.expectedSeqNum = seqNum + 1
		return 0
	}

	diff := seqNum - d.expectedSeqNum
	d.expectedSeqNum = seqNum + 1
	return uint64(diff)
}
