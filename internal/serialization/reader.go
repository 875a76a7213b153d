package serialization

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/born-ml/pretrain/internal/tensor"
)

// ReaderOptions configures Read.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip checksum validation (faster but less safe)
	ValidationLevel        ValidationLevel // Validation strictness level
}

// Read parses a .born v2 stream and returns its header and tensors.
//
// Every structural problem (bad magic, unsupported version, truncated data,
// checksum mismatch, invalid tensor table) is reported as an error wrapping
// one of this package's sentinel errors or a *ValidationError.
//
//nolint:gocyclo,cyclop // Binary format parsing is a linear sequence of checks
func Read(r io.Reader, opts ReaderOptions) (Header, map[string]*tensor.RawTensor, error) {
	fixedHeader := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r, fixedHeader); err != nil {
		return Header{}, nil, truncated("fixed header", err)
	}
	if string(fixedHeader[0:4]) != MagicBytes {
		return Header{}, nil, ErrInvalidMagic
	}
	version := binary.LittleEndian.Uint32(fixedHeader[versionFieldOffset:])
	if version != FormatVersion {
		if version == legacyVersion {
			return Header{}, nil, fmt.Errorf("%w: version %d files carry no checksum", ErrUnsupportedVersion, version)
		}
		return Header{}, nil, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersion)
	}

	headerSize := binary.LittleEndian.Uint64(fixedHeader[headerSizeOffset:])
	dataSize := binary.LittleEndian.Uint64(fixedHeader[dataSizeOffset:])
	var checksum [ChecksumSize]byte
	copy(checksum[:], fixedHeader[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return Header{}, nil, ErrHeaderTooLarge
	}
	if dataSize > 1<<62 {
		return Header{}, nil, ErrOutOfBounds
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return Header{}, nil, truncated("header JSON", err)
	}
	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return Header{}, nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}

	//nolint:gosec // G115: headerSize bounded by MaxHeaderSize
	padding := alignedDataOffset(int64(headerSize)) - FixedHeaderSize - int64(headerSize)
	if _, err := io.CopyN(io.Discard, r, padding); err != nil {
		return Header{}, nil, truncated("padding", err)
	}

	//nolint:gosec // G115: dataSize bounded above
	if err := ValidateHeader(&header, int64(dataSize), opts.ValidationLevel); err != nil {
		return Header{}, nil, err
	}

	data := make([]byte, dataSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return Header{}, nil, truncated("tensor data", err)
	}
	if !opts.SkipChecksumValidation {
		if err := ValidateChecksum(ComputeChecksum(data), checksum); err != nil {
			return Header{}, nil, err
		}
	}

	tensors := make(map[string]*tensor.RawTensor, len(header.Tensors))
	for _, meta := range header.Tensors {
		raw, err := decodeTensor(meta, data)
		if err != nil {
			return Header{}, nil, err
		}
		if _, dup := tensors[meta.Name]; dup {
			return Header{}, nil, &ValidationError{Type: "duplicate_name", Tensor: meta.Name, Details: "tensor listed twice"}
		}
		tensors[meta.Name] = raw
	}
	return header, tensors, nil
}

func decodeTensor(meta TensorMeta, data []byte) (*tensor.RawTensor, error) {
	dtype, ok := tensor.ParseDataType(meta.DType)
	if !ok {
		return nil, &ValidationError{Type: "unsupported_dtype", Tensor: meta.Name, Details: meta.DType}
	}
	shape := tensor.Shape(meta.Shape)
	raw, err := tensor.NewRaw(shape, dtype)
	if err != nil {
		return nil, &ValidationError{Type: "invalid_shape", Tensor: meta.Name, Details: err.Error()}
	}
	if int64(raw.ByteSize()) != meta.Size {
		return nil, &ValidationError{
			Type:    "size_mismatch",
			Tensor:  meta.Name,
			Details: fmt.Sprintf("%s%v needs %d bytes, header says %d", meta.DType, meta.Shape, raw.ByteSize(), meta.Size),
		}
	}
	if meta.Offset < 0 || meta.Offset+meta.Size > int64(len(data)) {
		return nil, &ValidationError{Type: "out_of_bounds", Tensor: meta.Name, Details: "outside data section"}
	}
	copy(raw.Data(), data[meta.Offset:meta.Offset+meta.Size])
	return raw, nil
}

func truncated(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: reading %s", ErrTruncated, what)
	}
	return fmt.Errorf("failed to read %s: %w", what, err)
}
