// Package serialization implements the .born container used for training
// checkpoints and final model files.
//
//	Format Structure (v2):
//	  0x00 [4 bytes: Magic "BORN"]
//	  0x04 [4 bytes: Version = 2 (uint32 LE)]
//	  0x08 [4 bytes: Flags (uint32 LE)]
//	  0x0C [4 bytes: Reserved]
//	  0x10 [8 bytes: JSON header size (uint64 LE)]
//	  0x18 [8 bytes: Data section size (uint64 LE)]
//	  0x20 [32 bytes: SHA-256 of the data section]
//	  0x40 [JSON header]
//	       [zero padding to a 64-byte boundary]
//	       [Tensor data: raw little-endian bytes, sorted by tensor name]
//
// The JSON header carries the artifact kind, the training step, the list of
// versioned sub-records and the metric series names alongside the tensor
// table. A file is either read completely and verified or rejected.
//
// Example usage:
//
//	var buf bytes.Buffer
//	err := serialization.Write(&buf, serialization.Header{Kind: "model"}, tensors)
//
//	header, tensors, err := serialization.Read(&buf, serialization.ReaderOptions{})
package serialization
