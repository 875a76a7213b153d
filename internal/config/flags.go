package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// Flags binds the training settings to a flag set. Flag defaults are the
// built-in defaults, but only flags set on the command line override a
// configuration file.
type Flags struct {
	fs     *flag.FlagSet
	file   string
	values Config
	apply  map[string]func(dst *Config)
}

// BindFlags registers the training flags on fs.
func BindFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs, values: Default(), apply: make(map[string]func(*Config))}
	fs.StringVar(&f.file, "config", "", "HCL configuration file; flags override its values")

	bind(f, fs.StringVar, "train_corpus", func(c *Config) *string { return &c.TrainCorpus }, "corpus file for training")
	bind(f, fs.StringVar, "eval_corpus", func(c *Config) *string { return &c.EvalCorpus }, "corpus file for evaluation")
	bind(f, fs.StringVar, "vocab", func(c *Config) *string { return &c.Vocab }, "vocabulary file path")
	bind(f, fs.IntVar, "seq_len", func(c *Config) *int { return &c.SeqLen }, "maximum length of sequences")

	bind(f, fs.IntVar, "layers", func(c *Config) *int { return &c.Layers }, "number of decoder layers")
	bind(f, fs.IntVar, "heads", func(c *Config) *int { return &c.Heads }, "number of attention heads")
	bind(f, fs.IntVar, "dims", func(c *Config) *int { return &c.Dims }, "dimension of representation in each layer")
	bind(f, fs.IntVar, "rate", func(c *Config) *int { return &c.Rate }, "increase rate of dimensionality in bottleneck")
	bind(f, fs.Float64Var, "dropout", func(c *Config) *float64 { return &c.Dropout }, "dropout rate")
	bind(f, fs.Uint64Var, "seed", func(c *Config) *uint64 { return &c.Seed }, "weight initialization seed")

	bind(f, fs.IntVar, "batch_train", func(c *Config) *int { return &c.BatchTrain }, "batch size for training")
	bind(f, fs.IntVar, "batch_eval", func(c *Config) *int { return &c.BatchEval }, "batch size for evaluation")
	bind(f, fs.Float64Var, "base_lr", func(c *Config) *float64 { return &c.BaseLR }, "maximum learning rate")
	bind(f, fs.Float64Var, "wd_rate", func(c *Config) *float64 { return &c.WeightDecay }, "weight decay rate")
	bind(f, fs.Int64Var, "iterations", func(c *Config) *int64 { return &c.Iterations }, "number of training iterations")
	bind(f, fs.Int64Var, "eval_iters", func(c *Config) *int64 { return &c.EvalIters }, "period to evaluate")
	bind(f, fs.Int64Var, "save_iters", func(c *Config) *int64 { return &c.SaveIters }, "period to save training state")

	bind(f, fs.StringVar, "checkpoint", func(c *Config) *string { return &c.Checkpoint }, "checkpoint file path")
	bind(f, fs.StringVar, "model_out", func(c *Config) *string { return &c.ModelOut }, "output path of the trained model")
	bind(f, fs.StringVar, "init_from", func(c *Config) *string { return &c.InitFrom }, "initialize weights from trained model")
	bind(f, fs.BoolVar, "resume", func(c *Config) *bool { return &c.Resume }, "resume training from the checkpoint file")
	bind(f, fs.BoolVar, "use_amp", func(c *Config) *bool { return &c.UseAMP }, "use mixed precision in training")

	fs.Func("devices", "comma-separated device ids, one replica each (default: 0)", func(s string) error {
		devices, err := ParseDevices(s)
		if err != nil {
			return err
		}
		f.values.Devices = devices
		return nil
	})
	f.apply["devices"] = func(dst *Config) { dst.Devices = f.values.Devices }

	bind(f, fs.StringVar, "log-level", func(c *Config) *string { return &c.LogLevel }, "logging level: 'debug', 'info', 'warn' or 'error'")
	bind(f, fs.StringVar, "log-format", func(c *Config) *string { return &c.LogFormat }, "log output format: 'text' or 'json'")
	return f
}

func bind[T any](f *Flags, register func(*T, string, T, string), name string, field func(*Config) *T, usage string) {
	p := field(&f.values)
	register(p, name, *p, usage)
	f.apply[name] = func(dst *Config) { *field(dst) = *p }
}

// Resolve builds the configuration from the defaults, the -config file and
// the flags that were set, and validates it. The flag set must be parsed.
func (f *Flags) Resolve() (Config, error) {
	c := Default()
	if f.file != "" {
		if err := c.LoadFile(f.file); err != nil {
			return Config{}, err
		}
	}
	f.fs.Visit(func(fl *flag.Flag) {
		if apply, ok := f.apply[fl.Name]; ok {
			apply(&c)
		}
	})
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// ParseDevices parses a comma-separated list of device ids.
func ParseDevices(s string) ([]int, error) {
	var devices []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid device id %q", field)
		}
		devices = append(devices, id)
	}
	return devices, nil
}
