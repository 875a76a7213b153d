package serialization

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/born-ml/pretrain/internal/tensor"
)

// Write writes header and tensors to w in .born v2 format.
//
// Tensors are stored sorted by name, so the same state always produces the
// same data section. header.Tensors and header.FormatVersion are filled in
// by Write; flags are derived from the header contents.
func Write(w io.Writer, header Header, tensors map[string]*tensor.RawTensor) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	if len(names) > MaxTensorCount {
		return ErrTooManyTensors
	}
	slices.Sort(names)

	header.FormatVersion = FormatVersion
	header.Tensors = make([]TensorMeta, 0, len(names))
	hash := sha256.New()
	var offset int64
	for _, name := range names {
		raw := tensors[name]
		size := int64(raw.ByteSize())
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  raw.DType().String(),
			Shape:  []int(raw.Shape()),
			Offset: offset,
			Size:   size,
		})
		hash.Write(raw.Data())
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	fixedHeader := make([]byte, FixedHeaderSize)
	copy(fixedHeader[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixedHeader[versionFieldOffset:], FormatVersion)
	binary.LittleEndian.PutUint32(fixedHeader[flagsOffset:], headerFlags(&header))
	binary.LittleEndian.PutUint64(fixedHeader[headerSizeOffset:], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixedHeader[dataSizeOffset:], uint64(offset)) //nolint:gosec // G115: offset is a sum of sizes
	copy(fixedHeader[ChecksumOffset:ChecksumOffset+ChecksumSize], hash.Sum(nil))

	if _, err := w.Write(fixedHeader); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header JSON: %w", err)
	}

	headerSize := int64(len(headerJSON))
	padding := alignedDataOffset(headerSize) - FixedHeaderSize - headerSize
	if padding > 0 {
		if _, err := w.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}

	for _, name := range names {
		if _, err := w.Write(tensors[name].Data()); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}
	return nil
}

func headerFlags(h *Header) uint32 {
	var flags uint32
	if len(h.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if h.HasRecord("optimizer") {
		flags |= FlagHasTrainingState
	}
	if len(h.Series) > 0 {
		flags |= FlagHasMetrics
	}
	return flags
}
