package classifier

import (
	"fmt"
	"time"
)

const (
	BackendHTTP = "http"
	BackendONNX = "onnx"
)

type Options struct {
	Backend     string        `yaml:"backend" env:"CLASSIFIER_BACKEND"`
	Endpoint    string        `yaml:"endpoint" env:"CLASSIFIER_ENDPOINT"`
	Model       string        `yaml:"model" env:"CLASSIFIER_MODEL"`
	ModelDir    string        `yaml:"model_dir" env:"CLASSIFIER_MODEL_DIR"`
	LibraryPath string        `yaml:"onnx_library" env:"ONNXRUNTIME_LIB"`
	InputSize   int           `yaml:"input_size" env:"CLASSIFIER_INPUT_SIZE"`
	InputName   string        `yaml:"input_name" env:"CLASSIFIER_INPUT_NAME"`
	OutputName  string        `yaml:"output_name" env:"CLASSIFIER_OUTPUT_NAME"`
	TopK        int           `yaml:"top_k" env:"CLASSIFIER_TOP_K"`
	Threshold   float64       `yaml:"score_threshold" env:"CLASSIFIER_SCORE_THRESHOLD"`
	Timeout     time.Duration `yaml:"timeout" env:"CLASSIFIER_TIMEOUT"`
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.Threshold <= 0 {
		o.Threshold = DefaultScoreThreshold
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.InputName == "" {
		o.InputName = "input"
	}
	if o.OutputName == "" {
		o.OutputName = "output"
	}
	return o
}

// Load builds the classifier selected by opts.Backend. Every failure
// wraps ErrUnavailable.
func Load(opts Options) (Classifier, error) {
	opts = opts.withDefaults()

	switch opts.Backend {
	case BackendHTTP:
		if opts.Endpoint == "" {
			return nil, fmt.Errorf("%w: http backend needs an endpoint", ErrUnavailable)
		}
		return NewHTTP(opts.Endpoint, opts.Model, opts.TopK, opts.Threshold, opts.Timeout), nil
	case BackendONNX:
		c, err := NewONNX(ONNXOptions{
			ModelDir:    opts.ModelDir,
			LibraryPath: opts.LibraryPath,
			InputSize:   opts.InputSize,
			InputName:   opts.InputName,
			OutputName:  opts.OutputName,
			TopK:        opts.TopK,
			Threshold:   opts.Threshold,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %w %q", ErrUnavailable, ErrUnknownBackend, opts.Backend)
	}
}
