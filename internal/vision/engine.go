package vision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrInvalidImage  = errors.New("invalid image")
	ErrImageTooLarge = errors.New("image dimensions too large")
	ErrLabelMismatch = errors.New("label count does not match model output")
	ErrInputShape    = errors.New("unsupported model input shape")
	ErrInference     = errors.New("inference failed")
	ErrTimeout       = errors.New("inference timed out")
)

type Options struct {
	ImageSize     int
	Layout        Layout
	Normalization Normalization
	// ApplySoftmax converts raw logits into probabilities.
	ApplySoftmax bool
	// MaxPixels bounds the declared size of an upload; 0 uses DefaultMaxPixels.
	MaxPixels int64
}

// Fingerprint identifies the settings that affect prediction output.
func (o Options) Fingerprint() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s|%t", o.ImageSize, o.Layout, o.Normalization, o.ApplySoftmax)))
	return hex.EncodeToString(sum[:4])
}

// Result is the outcome of one prediction.
type Result struct {
	Prediction string             `json:"prediction"`
	Confidence float64            `json:"confidence"`
	Details    map[string]float64 `json:"details"`
}

// LabelScore holds a class label and its probability.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Top returns the k highest-scoring labels, best first. k <= 0 returns all.
func (r *Result) Top(k int) []LabelScore {
	scores := make([]LabelScore, 0, len(r.Details))
	for label, score := range r.Details {
		scores = append(scores, LabelScore{Label: label, Score: score})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Label < scores[j].Label
	})
	if k > 0 && k < len(scores) {
		scores = scores[:k]
	}
	return scores
}

// Engine owns the immutable label list and model runner. It is safe for
// concurrent use; concurrency is bounded by the runner.
type Engine struct {
	labels []string
	runner Runner
	opts   Options
}

// NewEngine checks the label list against the model output and resolves the
// input layout from the model's input shape.
func NewEngine(labels []string, runner Runner, opts Options) (*Engine, error) {
	if len(labels) == 0 {
		return nil, ErrNoLabels
	}
	if n := runner.OutputSize(); n != len(labels) {
		return nil, fmt.Errorf("%w: %d labels, model outputs %d", ErrLabelMismatch, len(labels), n)
	}
	if opts.Normalization == "" {
		opts.Normalization = NormalizeNone
	}

	shape := runner.InputShape()
	if len(shape) != 4 {
		return nil, fmt.Errorf("%w: %v", ErrInputShape, shape)
	}
	layout, err := resolveLayout(opts.Layout, shape)
	if err != nil {
		return nil, err
	}
	opts.Layout = layout

	// a concrete model input wins over the configured size
	height := shape[1]
	if layout == LayoutNCHW {
		height = shape[2]
	}
	if height > 0 {
		opts.ImageSize = int(height)
	}
	if opts.ImageSize <= 0 {
		opts.ImageSize = DefaultImageSize
	}

	return &Engine{
		labels: append([]string(nil), labels...),
		runner: runner,
		opts:   opts,
	}, nil
}

func resolveLayout(layout Layout, shape []int64) (Layout, error) {
	switch layout {
	case LayoutNHWC:
		if shape[3] != 3 {
			return "", fmt.Errorf("%w: nhwc needs 3 channels last, got %v", ErrInputShape, shape)
		}
		return LayoutNHWC, nil
	case LayoutNCHW:
		if shape[1] != 3 {
			return "", fmt.Errorf("%w: nchw needs 3 channels first, got %v", ErrInputShape, shape)
		}
		return LayoutNCHW, nil
	case LayoutAuto, "":
		if shape[3] == 3 {
			return LayoutNHWC, nil
		}
		if shape[1] == 3 {
			return LayoutNCHW, nil
		}
		return "", fmt.Errorf("%w: no 3-channel axis in %v", ErrInputShape, shape)
	default:
		return "", fmt.Errorf("%w: unknown layout %q", ErrInputShape, layout)
	}
}

// Load reads the label list, opens the ONNX model and builds an engine.
// Every error here is fatal for the process.
func Load(labelsPath string, onnxOpts ONNXOptions, opts Options) (*Engine, error) {
	labels, err := LoadLabels(labelsPath)
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}
	if onnxOpts.ImageSize <= 0 {
		onnxOpts.ImageSize = opts.ImageSize
	}
	runner, err := NewONNXRunner(onnxOpts)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	engine, err := NewEngine(labels, runner, opts)
	if err != nil {
		_ = runner.Close()
		return nil, err
	}
	return engine, nil
}

func (e *Engine) Labels() []string {
	return append([]string(nil), e.labels...)
}

func (e *Engine) InputShape() []int64 {
	return e.runner.InputShape()
}

func (e *Engine) Options() Options {
	return e.opts
}

func (e *Engine) Close() error {
	return e.runner.Close()
}

// Preprocess converts image bytes into this engine's input tensor.
func (e *Engine) Preprocess(data []byte) ([]float32, error) {
	return Preprocess(data, e.opts)
}

type runOutcome struct {
	scores []float32
	err    error
}

// Predict preprocesses data, runs a forward pass and maps the output onto the labels.
func (e *Engine) Predict(ctx context.Context, data []byte) (*Result, error) {
	input, err := e.Preprocess(data)
	if err != nil {
		return nil, err
	}

	// the runner call may block in native code; leave it behind on ctx expiry
	done := make(chan runOutcome, 1)
	go func() {
		scores, err := e.runner.Run(ctx, input)
		done <- runOutcome{scores: scores, err: err}
	}()

	var out runOutcome
	select {
	case out = <-done:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
	if out.err != nil {
		if errors.Is(out.err, context.DeadlineExceeded) || errors.Is(out.err, context.Canceled) {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, out.err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInference, out.err)
	}
	if len(out.scores) != len(e.labels) {
		return nil, fmt.Errorf("%w: got %d scores for %d labels", ErrInference, len(out.scores), len(e.labels))
	}

	probs := make([]float64, len(out.scores))
	for i, s := range out.scores {
		probs[i] = float64(s)
	}
	if e.opts.ApplySoftmax {
		probs = softmax(probs)
	}

	best := argmax(probs)
	details := make(map[string]float64, len(e.labels))
	for i, label := range e.labels {
		details[label] = probs[i]
	}
	return &Result{
		Prediction: e.labels[best],
		Confidence: math.Round(probs[best]*100*100) / 100,
		Details:    details,
	}, nil
}

// argmax returns the first index of the maximum value.
func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

func softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxVal := logits[argmax(logits)]
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(v - maxVal)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
