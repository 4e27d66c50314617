package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"

	"github.com/nvr-ai/go-nnaccel/config"
)

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func main() {
	parser := argparse.NewParser("nnaccel", "Preprocess frames, decode region layer output and time the CPU kernels")
	configFile := parser.String("c", "config", &argparse.Options{Help: "YAML config file (defaults to tiny YOLOv2 VOC at 416x416)", Default: ""})
	debug := parser.Flag("d", "debug", &argparse.Options{Help: "Log per frame debug output", Default: false})
	threads := parser.Int("t", "threads", &argparse.Options{Help: "Worker threads, overrides the config (0 = one per CPU, -1 = serial)", Default: -2})

	preprocessCmd := parser.NewCommand("preprocess", "Convert a JPEG or PNG image, or a directory of them, into network input tensors")
	ppInput := preprocessCmd.String("i", "input", &argparse.Options{Help: "Input image or frame directory", Required: true})
	ppOutput := preprocessCmd.String("o", "output", &argparse.Options{Help: "Write the tensor here as little endian float32 (a directory for frame input)", Default: ""})

	decodeCmd := parser.NewCommand("decode", "Decode raw region layer output into detections")
	decInput := decodeCmd.String("i", "input", &argparse.Options{Help: "Region layer output, little endian float32", Required: true})
	decWidth := decodeCmd.Int("", "width", &argparse.Options{Help: "Width of the original frame", Required: true})
	decHeight := decodeCmd.Int("", "height", &argparse.Options{Help: "Height of the original frame", Required: true})
	decThreshold := decodeCmd.Float("", "threshold", &argparse.Options{Help: "Confidence threshold, overrides the config", Default: 0.0})
	decStretch := decodeCmd.Flag("", "stretch", &argparse.Options{Help: "The frame was stretched to the network input instead of letterboxed", Default: false})

	benchCmd := parser.NewCommand("bench", "Time the conv, pool, activation and preprocessing kernels")
	benchIterations := benchCmd.Int("n", "iterations", &argparse.Options{Help: "Runs per kernel", Default: 20})
	benchSize := benchCmd.Int("s", "size", &argparse.Options{Help: "Feature map width and height", Default: 104})

	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)
	defer logger.Close()

	cfg := config.Default()
	if *configFile != "" {
		cfg, err = config.Load(*configFile)
		check(err)
	}
	cfg.Debug = cfg.Debug || *debug
	if *threads != -2 {
		cfg.Threads = *threads
	}

	pool := cfg.NewPool()
	defer pool.Close()

	switch {
	case preprocessCmd.Happened():
		err = runPreprocess(logger, cfg, pool, *ppInput, *ppOutput, os.Stdout)
	case decodeCmd.Happened():
		err = runDecode(logger, cfg, *decInput, decodeOptions{
			Width:     *decWidth,
			Height:    *decHeight,
			Threshold: float32(*decThreshold),
			Stretch:   *decStretch,
		}, os.Stdout)
	case benchCmd.Happened():
		err = runBench(logger, cfg, pool, *benchIterations, *benchSize)
	default:
		fmt.Print(parser.Usage(nil))
	}
	check(err)
}
