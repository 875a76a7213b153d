package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// fileRoot is the layout of a configuration file:
//
//	corpus {
//	  train   = "data/train.txt"
//	  eval    = "data/eval.txt"
//	  vocab   = "data/vocab.txt"
//	  seq_len = 64
//	}
//	model {
//	  layers = 12
//	}
//	optimizer {
//	  base_lr = 1e-4
//	}
//	run {
//	  iterations = 100000
//	  devices    = [0, 1]
//	}
//
// Every block and attribute is optional; unknown ones are an error.
type fileRoot struct {
	Corpus    *corpusBlock    `hcl:"corpus,block"`
	Model     *modelBlock     `hcl:"model,block"`
	Optimizer *optimizerBlock `hcl:"optimizer,block"`
	Run       *runBlock       `hcl:"run,block"`
}

type corpusBlock struct {
	Train  *string `hcl:"train,optional"`
	Eval   *string `hcl:"eval,optional"`
	Vocab  *string `hcl:"vocab,optional"`
	SeqLen *int    `hcl:"seq_len,optional"`
}

type modelBlock struct {
	Layers  *int     `hcl:"layers,optional"`
	Heads   *int     `hcl:"heads,optional"`
	Dims    *int     `hcl:"dims,optional"`
	Rate    *int     `hcl:"rate,optional"`
	Dropout *float64 `hcl:"dropout,optional"`
	Seed    *int64   `hcl:"seed,optional"`
}

type optimizerBlock struct {
	BaseLR      *float64 `hcl:"base_lr,optional"`
	WeightDecay *float64 `hcl:"weight_decay,optional"`
}

type runBlock struct {
	BatchTrain *int    `hcl:"batch_train,optional"`
	BatchEval  *int    `hcl:"batch_eval,optional"`
	Iterations *int64  `hcl:"iterations,optional"`
	EvalIters  *int64  `hcl:"eval_iters,optional"`
	SaveIters  *int64  `hcl:"save_iters,optional"`
	Checkpoint *string `hcl:"checkpoint,optional"`
	ModelOut   *string `hcl:"model_out,optional"`
	InitFrom   *string `hcl:"init_from,optional"`
	Resume     *bool   `hcl:"resume,optional"`
	Devices    []int   `hcl:"devices,optional"`
	UseAMP     *bool   `hcl:"use_amp,optional"`
	LogLevel   *string `hcl:"log_level,optional"`
	LogFormat  *string `hcl:"log_format,optional"`
}

// LoadFile applies the settings in the HCL file at path to c.
func (c *Config) LoadFile(path string) error {
	file, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	return c.decode(path, file.Body)
}

// LoadBytes applies HCL source to c. filename is used in diagnostics.
func (c *Config) LoadBytes(src []byte, filename string) error {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	return c.decode(filename, file.Body)
}

func (c *Config) decode(path string, body hcl.Body) error {
	var root fileRoot
	if diags := gohcl.DecodeBody(body, nil, &root); diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	if b := root.Corpus; b != nil {
		set(&c.TrainCorpus, b.Train)
		set(&c.EvalCorpus, b.Eval)
		set(&c.Vocab, b.Vocab)
		set(&c.SeqLen, b.SeqLen)
	}
	if b := root.Model; b != nil {
		set(&c.Layers, b.Layers)
		set(&c.Heads, b.Heads)
		set(&c.Dims, b.Dims)
		set(&c.Rate, b.Rate)
		set(&c.Dropout, b.Dropout)
		if b.Seed != nil {
			if *b.Seed < 0 {
				return fmt.Errorf("%s: seed must not be negative", path)
			}
			c.Seed = uint64(*b.Seed)
		}
	}
	if b := root.Optimizer; b != nil {
		set(&c.BaseLR, b.BaseLR)
		set(&c.WeightDecay, b.WeightDecay)
	}
	if b := root.Run; b != nil {
		set(&c.BatchTrain, b.BatchTrain)
		set(&c.BatchEval, b.BatchEval)
		set(&c.Iterations, b.Iterations)
		set(&c.EvalIters, b.EvalIters)
		set(&c.SaveIters, b.SaveIters)
		set(&c.Checkpoint, b.Checkpoint)
		set(&c.ModelOut, b.ModelOut)
		set(&c.InitFrom, b.InitFrom)
		set(&c.Resume, b.Resume)
		set(&c.UseAMP, b.UseAMP)
		set(&c.LogLevel, b.LogLevel)
		set(&c.LogFormat, b.LogFormat)
		if b.Devices != nil {
			c.Devices = b.Devices
		}
	}
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
