// Package protocol implements the framed command protocol spoken between
// softtimer-host and the firmware: VLQ-encoded integers inside CRC16
// protected frames.
package protocol

// Version is the protocol revision reported by the firmware
const Version = "0.1.0"

// MessageMax is the size of a ScratchOutput, large enough for several
// back-to-back frames
const MessageMax = 512
