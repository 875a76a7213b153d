package nn

import (
	"math/rand/v2"

	"github.com/born-ml/pretrain/internal/tensor"
)

// Normal returns a float32 tensor with values drawn from N(0, std²).
//
// The generator is seeded explicitly so that every replica of a run starts
// from the same weights.
func Normal(shape tensor.Shape, std float64, seed uint64) *tensor.RawTensor {
	t, err := tensor.NewRaw(shape, tensor.Float32)
	if err != nil {
		panic(err)
	}

	//nolint:gosec // Using math/rand for weight initialization (not security-critical)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	data := t.AsFloat32()
	for i := range data {
		data[i] = float32(rng.NormFloat64() * std)
	}
	return t
}
