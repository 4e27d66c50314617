package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/cyclopcam/logs"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-nnaccel/common/orderedlist"
	"github.com/nvr-ai/go-nnaccel/compute"
	"github.com/nvr-ai/go-nnaccel/config"
	"github.com/nvr-ai/go-nnaccel/images"
	"github.com/nvr-ai/go-nnaccel/kernels"
	"github.com/nvr-ai/go-nnaccel/models/model/preprocess"
	"github.com/nvr-ai/go-nnaccel/models/postprocess"
	"github.com/nvr-ai/go-nnaccel/util"
)

// preprocessSummary is what the preprocess command prints.
type preprocessSummary struct {
	Input          string                   `json:"input"`
	OriginalWidth  int                      `json:"originalWidth"`
	OriginalHeight int                      `json:"originalHeight"`
	Shape          []int                    `json:"shape"`
	ScaleX         float32                  `json:"scaleX"`
	ScaleY         float32                  `json:"scaleY"`
	PadLeft        int                      `json:"padLeft"`
	PadTop         int                      `json:"padTop"`
	Correct        postprocess.CorrectParam `json:"correct"`
	Output         string                   `json:"output,omitempty"`
}

func runPreprocess(log logs.Log, cfg *config.Config, pool *compute.Pool, input, output string, stdout io.Writer) error {
	info, err := os.Stat(input)
	if err != nil {
		return errors.Wrapf(err, "read %s", input)
	}
	pre, err := cfg.NewPreprocessor(pool, log)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")

	if !info.IsDir() {
		data, err := os.ReadFile(input)
		if err != nil {
			return errors.Wrapf(err, "read %s", input)
		}
		result, err := pre.Preprocess(&preprocess.Image{Format: util.FormatFromPath(input), Data: data})
		if err != nil {
			return errors.WithMessagef(err, "preprocess %s", input)
		}
		summary, err := writeTensor(log, input, output, result)
		if err != nil {
			return err
		}
		return enc.Encode(summary)
	}

	// A directory of frames goes through the batch path, one tensor file per frame.
	files, err := util.LoadDirectoryImageFiles(input)
	if err != nil {
		return err
	}
	imgs := make([]*preprocess.Image, len(files))
	for i, f := range files {
		imgs[i] = f.Image()
	}
	results, err := pre.BatchPreprocess(imgs, pool.Threads())
	if err != nil {
		return errors.WithMessagef(err, "preprocess %s", input)
	}
	if output != "" {
		if err := os.MkdirAll(output, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", output)
		}
	}
	summaries := make([]preprocessSummary, len(results))
	for i, result := range results {
		out := ""
		if output != "" {
			base := filepath.Base(files[i].Path)
			out = filepath.Join(output, strings.TrimSuffix(base, filepath.Ext(base))+".bin")
		}
		if summaries[i], err = writeTensor(log, files[i].Path, out, result); err != nil {
			return err
		}
	}
	log.Infof("Preprocessed %d frames from %v", len(results), input)
	return enc.Encode(summaries)
}

func writeTensor(log logs.Log, input, output string, result *preprocess.PreprocessingResult) (preprocessSummary, error) {
	if output != "" {
		if err := writeFloats(output, result.Data()); err != nil {
			return preprocessSummary{}, err
		}
		log.Infof("Wrote %v tensor to %v", result.Shape, output)
	}
	return preprocessSummary{
		Input:          input,
		OriginalWidth:  result.OriginalWidth,
		OriginalHeight: result.OriginalHeight,
		Shape:          result.Shape,
		ScaleX:         result.ScaleX,
		ScaleY:         result.ScaleY,
		PadLeft:        result.PadLeft,
		PadTop:         result.PadTop,
		Correct:        result.Correct,
		Output:         output,
	}, nil
}

type decodeOptions struct {
	Width     int
	Height    int
	Threshold float32
	Stretch   bool
}

// detection is one decoded box as printed by the decode command.
type detection struct {
	postprocess.Result
	Label string `json:"label,omitempty"`
}

func runDecode(log logs.Log, cfg *config.Config, input string, opts decodeOptions, stdout io.Writer) error {
	output, err := readFloats(input)
	if err != nil {
		return err
	}
	layer, err := cfg.Detector.Layer(output)
	if err != nil {
		return errors.WithMessagef(err, "decode %s", input)
	}

	var param postprocess.CorrectParam
	if opts.Stretch {
		param, err = postprocess.StretchCorrectParam(opts.Width, opts.Height)
	} else {
		param, err = postprocess.NewCorrectParam(opts.Width, opts.Height, cfg.Detector.InputWidth, cfg.Detector.InputHeight)
	}
	if err != nil {
		return err
	}

	thresh := cfg.Detector.ConfidenceThreshold
	if opts.Threshold > 0 {
		thresh = opts.Threshold
	}

	// Suppression runs afterwards so the configured strategy applies.
	list := orderedlist.NewSafe[postprocess.ObjectBox](postprocess.CompareProb)
	if err := postprocess.ParseObjectBoxes(layer, param, thresh, 0, list); err != nil {
		return err
	}
	candidates := list.Len()
	list.Do(cfg.Detector.NMS.Apply)

	results := postprocess.ToResults(list.Values(), opts.Width, opts.Height)
	log.Infof("%v: %d candidates above %.2f, %d after suppression", input, candidates, thresh, len(results))

	detections := make([]detection, len(results))
	for i, r := range results {
		detections[i] = detection{Result: r, Label: cfg.Detector.ClassName(r.Class)}
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(detections)
}

// runBench times every kernel kind on random data of one feature map size
// and logs the profiler report.
func runBench(log logs.Log, cfg *config.Config, pool *compute.Pool, iterations, size int) error {
	if iterations < 1 || size < 4 {
		return errors.Errorf("bench needs at least 1 iteration and size 4, got %d and %d", iterations, size)
	}
	prof := cfg.NewProfiler(log)
	rng := rand.New(rand.NewSource(1))

	convs := []struct {
		name                               string
		inCh, outCh, k, pad, stride, group int
		backend                            kernels.Backend
	}{
		{"depthwise3x3", 32, 32, 3, 1, 1, 32, nil},
		{"conv3x3", 16, 16, 3, 1, 1, 1, nil},
		{"conv1x1", 32, 64, 1, 0, 1, 1, nil},
		{"generic-tensor", 16, 32, 3, 1, 2, 1, kernels.TensorBackend{}},
		{"generic-graph", 16, 32, 3, 1, 2, 1, kernels.GraphBackend{}},
	}
	for _, c := range convs {
		p := &kernels.ConvParams{
			Size: c.k, Pad: c.pad, Stride: c.stride, Groups: c.group,
			W: size, H: size, InCh: c.inCh, OutCh: c.outCh,
			OutW: kernels.OutputSize(size, c.k, c.pad, c.stride),
			OutH: kernels.OutputSize(size, c.k, c.pad, c.stride),
		}
		p.Input = randomFloats(rng, c.inCh*size*size)
		p.Weights = randomFloats(rng, c.outCh*(c.inCh/c.group)*c.k*c.k)
		p.Output = make([]float32, c.outCh*p.OutW*p.OutH)
		p.Workspace = make([]float32, p.WorkspaceSize(1))

		name := c.name + "/" + kernels.ClassifyConv(*p).String()
		for i := 0; i < iterations; i++ {
			done := prof.StartOperation(name)
			err := kernels.DispatchConv(pool, p, 1, c.backend)
			done()
			if err != nil {
				return errors.WithMessage(err, name)
			}
		}
	}

	for _, k := range []struct{ size, stride, pad int }{{2, 2, 0}, {3, 1, 1}} {
		p := &kernels.MaxPoolParams{
			Size: k.size, Stride: k.stride, Pad: k.pad,
			W: size, H: size, Channels: 32,
		}
		p.OutW = kernels.OutputSize(size, k.size, p.Pad, k.stride)
		p.OutH = p.OutW
		p.Input = randomFloats(rng, p.Channels*size*size)
		p.Output = make([]float32, p.Channels*p.OutW*p.OutH)

		name := kernels.ClassifyMaxPool(*p).String()
		for i := 0; i < iterations; i++ {
			done := prof.StartOperation(name)
			err := kernels.DispatchMaxPool(pool, p, 1)
			done()
			if err != nil {
				return errors.WithMessage(err, name)
			}
		}
	}

	norm := &kernels.NormalizeParams{
		X:       randomFloats(rng, 64*size*size),
		A:       randomFloats(rng, 64),
		B:       randomFloats(rng, 64),
		Spatial: size * size,
	}
	for i := 0; i < iterations; i++ {
		done := prof.StartOperation("normalize-leaky")
		err := kernels.NormalizeActivate(pool, norm, 1, 64)
		done()
		if err != nil {
			return err
		}
	}

	pre, err := cfg.NewPreprocessor(pool, log)
	if err != nil {
		return err
	}
	frame := make([]byte, 1280*720*3)
	rng.Read(frame)
	for i := 0; i < iterations; i++ {
		done := prof.StartOperation("preprocess-720p")
		_, err := pre.PreprocessFrame(images.FormatBGR, frame, 1280, 720)
		done()
		if err != nil {
			return err
		}
	}

	log.Infof("%d iterations, %dx%d feature maps, %d threads", iterations, size, size, pool.Threads())
	prof.Report()
	return nil
}

func randomFloats(rng *rand.Rand, n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}

func writeFloats(path string, values []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := binary.Write(f, binary.LittleEndian, values); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}

func readFloats(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	if len(data)%4 != 0 {
		return nil, errors.Errorf("%s: %d bytes is not a whole number of float32 values", path, len(data))
	}
	values := make([]float32, len(data)/4)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, values); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return values, nil
}
