package serialization

import (
	"time"
)

// Format constants.
const (
	MagicBytes         = "BORN"
	FormatVersion      = 2    // With SHA-256 checksum
	HeaderAlignment    = 64   // Align tensor data to 64 bytes
	FixedHeaderSize    = 64   // Fixed header size (0x40 bytes)
	ChecksumSize       = 32   // SHA-256 checksum size (32 bytes)
	ChecksumOffset     = 0x20 // Checksum offset in the fixed header
	legacyVersion      = 1    // Checksum-less files are rejected
	dataSizeOffset     = 0x18
	headerSizeOffset   = 0x10
	flagsOffset        = 0x08
	versionFieldOffset = 0x04
)

// Flags for the .born format.
const (
	FlagHasTrainingState uint32 = 1 << 1 // bit 1: optimizer/scheduler records included
	FlagHasMetadata      uint32 = 1 << 2 // bit 2: custom metadata included
	FlagHasMetrics       uint32 = 1 << 3 // bit 3: metric series included
)

// Header represents the JSON header in a .born file.
type Header struct {
	FormatVersion int               `json:"format_version"`     // Version of the .born format
	CreatedBy     string            `json:"created_by"`         // Program version that wrote the file
	Kind          string            `json:"kind"`               // Artifact kind (e.g., "checkpoint", "model")
	CreatedAt     time.Time         `json:"created_at"`         // When the file was created
	Step          int64             `json:"step"`               // Completed training steps
	Records       []RecordMeta      `json:"records"`            // Versioned sub-records
	Series        []string          `json:"series,omitempty"`   // Metric series names, in tensor index order
	Tensors       []TensorMeta      `json:"tensors"`            // Tensor metadata
	Metadata      map[string]string `json:"metadata,omitempty"` // Custom metadata
}

// RecordMeta names a sub-record. Its tensors are stored as "<name>.<key>".
type RecordMeta struct {
	Name    string `json:"name"`    // Record name (e.g., "model", "optimizer")
	Version int    `json:"version"` // Record schema version
}

// TensorMeta describes a tensor in the .born file.
type TensorMeta struct {
	Name   string `json:"name"`   // Tensor name (e.g., "model.bigram.weight")
	DType  string `json:"dtype"`  // Data type (e.g., "float32", "int64")
	Shape  []int  `json:"shape"`  // Tensor shape
	Offset int64  `json:"offset"` // Offset in the data section (bytes from start of tensor data)
	Size   int64  `json:"size"`   // Size in bytes
}

// HasRecord reports whether the header lists the named record.
func (h *Header) HasRecord(name string) bool {
	for _, r := range h.Records {
		if r.Name == name {
			return true
		}
	}
	return false
}

func alignedDataOffset(headerSize int64) int64 {
	pos := int64(FixedHeaderSize) + headerSize
	return pos + (HeaderAlignment-(pos%HeaderAlignment))%HeaderAlignment
}
