// Command detect runs still images through the detector and prints what it finds.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"

	"github.com/lawinko/vision-detector/internal/config"
	"github.com/lawinko/vision-detector/internal/detection"
	"github.com/lawinko/vision-detector/internal/logger"
	"github.com/lawinko/vision-detector/internal/service/inference"
	"github.com/lawinko/vision-detector/internal/service/overlay"
	"github.com/lawinko/vision-detector/internal/service/preprocess"
)

const (
	flagBackend   = "backend"
	flagModel     = "model"
	flagGraph     = "graph"
	flagLabels    = "labels"
	flagThreshold = "threshold"
	flagWidth     = "width"
	flagHeight    = "height"
	flagAnnotate  = "annotate"
)

func main() {
	app := &cli.App{
		Name:      "detect",
		Usage:     "run object detection on still images",
		ArgsUsage: "IMAGE [IMAGE...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagBackend, Usage: "tflite, onnx or opencv (default MODEL_BACKEND)"},
			&cli.StringFlag{Name: flagModel, Aliases: []string{"m"}, Usage: "model `FILE` (default MODEL_PATH)"},
			&cli.StringFlag{Name: flagGraph, Usage: "graph description `FILE` for the opencv backend"},
			&cli.StringFlag{Name: flagLabels, Aliases: []string{"l"}, Usage: "labels `FILE` (default LABELS_PATH)"},
			&cli.Float64Flag{Name: flagThreshold, Aliases: []string{"t"}, Value: -1, Usage: "minimum confidence (default CONFIDENCE_THRESHOLD)"},
			&cli.IntFlag{Name: flagWidth, Usage: "report boxes for this render width instead of the image width"},
			&cli.IntFlag{Name: flagHeight, Usage: "report boxes for this render height instead of the image height"},
			&cli.StringFlag{Name: flagAnnotate, Aliases: []string{"a"}, Usage: "write annotated JPEGs to `DIR`"},
		},
		Action: detect,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func detect(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("at least one image is required", 1)
	}

	cfg := config.Load()
	if v := c.String(flagBackend); v != "" {
		cfg.ModelBackend = strings.ToLower(v)
	}
	if v := c.String(flagModel); v != "" {
		cfg.ModelPath = v
	}
	if v := c.String(flagGraph); v != "" {
		cfg.ModelConfigPath = v
	}
	if v := c.String(flagLabels); v != "" {
		cfg.LabelsPath = v
	}
	threshold := cfg.ConfidenceThreshold
	if v := c.Float64(flagThreshold); v >= 0 {
		threshold = v
	}
	threshold = cfg.ClampThreshold(threshold)

	log := logger.NewLogger(cfg)
	defer log.Close()

	labels, err := detection.LoadLabels(cfg.LabelsPath)
	if err != nil {
		log.Warning("Could not load labels from %s, using class numbers: %v", cfg.LabelsPath, err)
		labels = detection.NewLabelTable(nil)
	}

	model, err := inference.New(cfg, log)
	if err != nil {
		return err
	}
	defer model.Close()

	annotateDir := c.String(flagAnnotate)
	if annotateDir != "" {
		if err := os.MkdirAll(annotateDir, 0755); err != nil {
			return err
		}
	}

	decoder := detection.NewDecoder(labels)
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Image", "#", "Label", "Confidence", "X", "Y", "Width", "Height"})

	var pixels []byte
	for _, path := range c.Args().Slice() {
		img, err := imaging.Open(path, imaging.AutoOrientation(true))
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}

		pixels = preprocess.RGBInto(pixels, img, model.InputSize())
		tensors, err := model.Infer(pixels)
		if err != nil {
			return fmt.Errorf("detect %s: %w", path, err)
		}

		target := detection.Resolution{Width: c.Int(flagWidth), Height: c.Int(flagHeight)}
		if target.Width <= 0 || target.Height <= 0 {
			target = detection.Resolution{Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}
		}
		detections := decoder.Decode(tensors, target, threshold)

		name := filepath.Base(path)
		if len(detections) == 0 {
			t.AppendRow(table.Row{name, "-", "", "", "", "", "", ""})
		}
		for i, d := range detections {
			t.AppendRow(table.Row{
				name, i + 1, d.Label,
				fmt.Sprintf("%.0f%%", d.Confidence*100),
				fmt.Sprintf("%.0f", d.Box.X), fmt.Sprintf("%.0f", d.Box.Y),
				fmt.Sprintf("%.0f", d.Box.Width), fmt.Sprintf("%.0f", d.Box.Height),
			})
		}
		t.AppendSeparator()

		if annotateDir != "" {
			jpeg, err := overlay.Render(img, detections, target)
			if err != nil {
				return fmt.Errorf("annotate %s: %w", path, err)
			}
			out := filepath.Join(annotateDir, strings.TrimSuffix(name, filepath.Ext(name))+"_detections.jpg")
			if err := os.WriteFile(out, jpeg, 0644); err != nil {
				return err
			}
		}
	}

	t.SetCaption("threshold %.2f, backend %s", threshold, cfg.ModelBackend)
	t.Render()
	return nil
}
