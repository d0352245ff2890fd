package classifier

import (
	"context"
	"fmt"
	"image"
	"math"
	"path/filepath"
	"sync"

	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	modelFile  = "model.onnx"
	labelsFile = "labels.txt"

	inputMean = 127.5
	inputStd  = 127.5
)

type ONNXOptions struct {
	ModelDir    string
	LibraryPath string
	InputSize   int
	InputName   string
	OutputName  string
	TopK        int
	Threshold   float64
}

// ONNX runs an image classification model through onnxruntime. The
// session tensors are preallocated, so Predict runs one crop at a time.
type ONNX struct {
	opts    ONNXOptions
	labels  []string
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	mu      sync.Mutex
}

func NewONNX(opts ONNXOptions) (*ONNX, error) {
	labels, err := LoadLabels(filepath.Join(opts.ModelDir, labelsFile))
	if err != nil {
		return nil, err
	}
	if opts.InputSize <= 0 {
		opts.InputSize = 224
	}

	if !ort.IsInitialized() {
		if opts.LibraryPath != "" {
			ort.SetSharedLibraryPath(opts.LibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("error initializing ORT environment: %w", err)
		}
	}

	size := int64(opts.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(labels))))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("error creating ORT session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		filepath.Join(opts.ModelDir, modelFile),
		[]string{opts.InputName},
		[]string{opts.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("error creating ORT session: %w", err)
	}

	return &ONNX{opts: opts, labels: labels, session: session, input: input, output: output}, nil
}

func (o *ONNX) Predict(ctx context.Context, images []image.Image) ([]Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	results := make([]Result, 0, len(images))
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fillInput(img, o.input.GetData(), o.opts.InputSize)
		if err := o.session.Run(); err != nil {
			return nil, fmt.Errorf("%w: run session: %v", ErrUnavailable, err)
		}
		scores := softmaxIfNeeded(o.output.GetData())
		results = append(results, Postprocess(scores, o.labels, o.opts.TopK, o.opts.Threshold))
	}
	return results, nil
}

func (o *ONNX) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	err := o.session.Destroy()
	o.input.Destroy()
	o.output.Destroy()
	return err
}

// fillInput resizes img and writes it as normalized CHW floats into dst.
func fillInput(img image.Image, dst []float32, size int) {
	img = resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	b := img.Bounds()
	plane := size * size
	red, green, blue := dst[0:plane], dst[plane:2*plane], dst[2*plane:3*plane]

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			red[i] = (float32(r>>8) - inputMean) / inputStd
			green[i] = (float32(g>>8) - inputMean) / inputStd
			blue[i] = (float32(bl>>8) - inputMean) / inputStd
			i++
		}
	}
}

// softmaxIfNeeded returns probabilities. Outputs that already sum to one
// are copied unchanged.
func softmaxIfNeeded(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}
	var sum float64
	inRange := true
	for _, v := range logits {
		sum += float64(v)
		if v < 0 || v > 1 {
			inRange = false
		}
	}
	if inRange && math.Abs(sum-1) < 1e-3 {
		copy(out, logits)
		return out
	}

	maxV := logits[0]
	for _, v := range logits[1:] {
		maxV = max(maxV, v)
	}
	var total float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxV))
		out[i] = float32(e)
		total += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / total)
	}
	return out
}
