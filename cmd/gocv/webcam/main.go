package main

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-nnaccel/config"
	"github.com/nvr-ai/go-nnaccel/images"
	"github.com/nvr-ai/go-nnaccel/profiler"
)

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func main() {
	parser := argparse.NewParser("webcam", "Feed camera frames through the preprocessor and log per stage timings")
	deviceID := parser.Int("d", "device", &argparse.Options{Help: "Video capture device", Default: 0})
	configFile := parser.String("c", "config", &argparse.Options{Help: "YAML config file", Default: ""})
	maxFrames := parser.Int("n", "frames", &argparse.Options{Help: "Stop after this many frames (0 = run until the camera closes)", Default: 0})
	showWindow := parser.Flag("w", "window", &argparse.Options{Help: "Show the camera feed in a window", Default: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)
	defer logger.Close()
	log := profiler.NewPrefixLogger(logger, "webcam:")

	cfg := config.Default()
	if *configFile != "" {
		cfg, err = config.Load(*configFile)
		check(err)
	}

	pool := cfg.NewPool()
	defer pool.Close()
	pre, err := cfg.NewPreprocessor(pool, logger)
	check(err)
	prof := cfg.NewProfiler(logger)
	prof.Start()
	defer prof.Stop()

	// open webcam
	webcam, err := gocv.OpenVideoCapture(*deviceID)
	check(err)
	defer webcam.Close()

	var window *gocv.Window
	if *showWindow {
		window = gocv.NewWindow("nnaccel")
		defer window.Close()
	}

	// prepare image matrix
	img := gocv.NewMat()
	defer img.Close()

	white := color.RGBA{255, 255, 255, 0}

	// FPS tracking variables
	fps := 0.0
	frameCount := 0
	total := 0
	lastTime := time.Now()

	log.Infof("Reading camera device %v", *deviceID)
	for *maxFrames == 0 || total < *maxFrames {
		prof.Begin("capture")
		ok := webcam.Read(&img)
		if _, err := prof.End("capture"); err != nil {
			log.Warnf("Capture timing: %v", err)
		}
		if !ok {
			log.Warnf("Cannot read device %v", *deviceID)
			return
		}
		if img.Empty() {
			continue
		}
		if img.Type() != gocv.MatTypeCV8UC3 {
			log.Errorf("Unsupported frame type %v", img.Type())
			return
		}

		done := prof.StartOperation("preprocess")
		result, err := pre.PreprocessFrame(images.FormatBGR, img.ToBytes(), img.Cols(), img.Rows())
		done()
		if err != nil {
			log.Errorf("Preprocess %vx%v frame: %v", img.Cols(), img.Rows(), err)
			return
		}

		frameCount++
		total++
		if elapsed := time.Since(lastTime).Seconds(); elapsed >= 1.0 {
			fps = float64(frameCount) / elapsed
			frameCount = 0
			lastTime = time.Now()
		}

		if window != nil {
			// Outline the area that lands on the network input.
			w := int(float32(result.Tensor.Width-2*result.PadLeft) / result.ScaleX)
			h := int(float32(result.Tensor.Height-2*result.PadTop) / result.ScaleY)
			gocv.Rectangle(&img, image.Rect(0, 0, w, h), white, 1)
			gocv.PutText(&img, fmt.Sprintf("FPS: %.1f", fps), image.Pt(10, 30), gocv.FontHersheyPlain, 1.2, white, 2)
			window.IMShow(img)
			if window.WaitKey(1) == 27 {
				break
			}
		}
	}
	prof.Report()
}
