package vision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Runner executes a forward pass for one preprocessed batch.
type Runner interface {
	InputShape() []int64
	OutputSize() int
	Run(ctx context.Context, input []float32) ([]float32, error)
	Close() error
}

type ONNXOptions struct {
	ModelPath     string
	SharedLibPath string
	// Sessions is the number of pooled sessions, and so the inference concurrency.
	Sessions       int
	IntraOpThreads int
	// ImageSize fills symbolic spatial dimensions of the model input.
	ImageSize int
}

type sessionSlot struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func (s *sessionSlot) destroy() {
	if s.session != nil {
		s.session.Destroy()
	}
	if s.output != nil {
		s.output.Destroy()
	}
	if s.input != nil {
		s.input.Destroy()
	}
}

// ONNXRunner runs an ONNX model through a fixed pool of sessions, each
// owning its input and output tensors.
type ONNXRunner struct {
	slots      chan *sessionSlot
	all        []*sessionSlot
	inputShape []int64
	outputSize int
	closeOnce  sync.Once
}

var (
	envOnce sync.Once
	envErr  error
)

// initEnvironment loads the ONNX shared library and environment once per process.
func initEnvironment(libPath string) error {
	envOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = fmt.Errorf("onnx init environment: %w", err)
		}
	})
	return envErr
}

func NewONNXRunner(opts ONNXOptions) (*ONNXRunner, error) {
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}
	if opts.Sessions <= 0 {
		opts.Sessions = 1
	}
	if opts.ImageSize <= 0 {
		opts.ImageSize = DefaultImageSize
	}
	if err := initEnvironment(opts.SharedLibPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx get input/output info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, errors.New("onnx model has no inputs or outputs")
	}
	inputShape := concreteShape(inputs[0].Dimensions, int64(opts.ImageSize))
	if len(inputShape) != 4 {
		return nil, fmt.Errorf("onnx model input must be rank 4, got %v", inputs[0].Dimensions)
	}
	outputShape := concreteShape(outputs[0].Dimensions, 1)

	var sessionOpts *ort.SessionOptions
	if opts.IntraOpThreads > 0 {
		sessionOpts, err = ort.NewSessionOptions()
		if err != nil {
			return nil, fmt.Errorf("onnx session options: %w", err)
		}
		defer sessionOpts.Destroy()
		if err := sessionOpts.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("onnx set intra-op threads: %w", err)
		}
	}

	r := &ONNXRunner{
		slots:      make(chan *sessionSlot, opts.Sessions),
		inputShape: inputShape,
		outputSize: int(outputShape.FlattenedSize() / outputShape[0]),
	}
	for i := 0; i < opts.Sessions; i++ {
		slot, err := newSessionSlot(opts.ModelPath, inputs[0].Name, outputs[0].Name, inputShape, outputShape, sessionOpts)
		if err != nil {
			_ = r.Close()
			return nil, err
		}
		r.all = append(r.all, slot)
		r.slots <- slot
	}
	return r, nil
}

func newSessionSlot(modelPath, inputName, outputName string, inputShape, outputShape ort.Shape, opts *ort.SessionOptions) (*sessionSlot, error) {
	slot := &sessionSlot{}
	var err error
	slot.input, err = ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("onnx new input tensor: %w", err)
	}
	slot.output, err = ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		slot.destroy()
		return nil, fmt.Errorf("onnx new output tensor: %w", err)
	}
	slot.session, err = ort.NewAdvancedSession(modelPath,
		[]string{inputName}, []string{outputName},
		[]ort.Value{slot.input}, []ort.Value{slot.output}, opts)
	if err != nil {
		slot.destroy()
		return nil, fmt.Errorf("onnx new session: %w", err)
	}
	return slot, nil
}

// concreteShape replaces a symbolic batch dimension with 1 and any other
// symbolic dimension with fill.
func concreteShape(dims ort.Shape, fill int64) ort.Shape {
	out := make(ort.Shape, len(dims))
	for i, d := range dims {
		switch {
		case d > 0:
			out[i] = d
		case i == 0:
			out[i] = 1
		default:
			out[i] = fill
		}
	}
	return out
}

func (r *ONNXRunner) InputShape() []int64 {
	return append([]int64(nil), r.inputShape...)
}

func (r *ONNXRunner) OutputSize() int {
	return r.outputSize
}

func (r *ONNXRunner) Run(ctx context.Context, input []float32) ([]float32, error) {
	var slot *sessionSlot
	select {
	case slot = <-r.slots:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { r.slots <- slot }()

	inData := slot.input.GetData()
	if len(inData) != len(input) {
		return nil, fmt.Errorf("input tensor size %d != preprocessed %d", len(inData), len(input))
	}
	copy(inData, input)
	if err := slot.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	outData := slot.output.GetData()
	out := make([]float32, len(outData))
	copy(out, outData)
	return out, nil
}

func (r *ONNXRunner) Close() error {
	r.closeOnce.Do(func() {
		for _, slot := range r.all {
			slot.destroy()
		}
	})
	return nil
}
