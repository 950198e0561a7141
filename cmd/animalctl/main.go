package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	cli "github.com/urfave/cli/v2"

	"animalfaces-api/internal/bootstrap"
	"animalfaces-api/internal/config"
	"animalfaces-api/internal/logger"
	"animalfaces-api/internal/pkg/jwtutil"
	"animalfaces-api/internal/vision"
)

func main() {
	newApp().RunAndExitOnError()
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "animalctl"
	app.Usage = "offline tools for the animal faces classifier"

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Value:   "configs/config.toml",
			EnvVars: []string{"CONFIG_FILE"},
		},
	}
	app.Commands = []*cli.Command{
		predictCmd,
		tokenCmd,
		labelsCmd,
	}
	return app
}

var predictCmd = &cli.Command{
	Name:      "predict",
	Usage:     "classify local image files",
	ArgsUsage: "FILE...",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "top",
			Value: 3,
			Usage: "number of ranked labels to print per file",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() == 0 {
			return cli.Exit("at least one file is required", 2)
		}
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		engine, err := bootstrap.LoadEngine(cfg)
		if err != nil {
			return err
		}
		defer engine.Close()

		enc := json.NewEncoder(cctx.App.Writer)
		enc.SetIndent("", "  ")

		var failed int
		for _, path := range cctx.Args().Slice() {
			out := predictFile(cctx.Context, engine, path, cctx.Int("top"))
			if out.Error != "" {
				failed++
			}
			if err := enc.Encode(out); err != nil {
				return err
			}
		}
		if failed > 0 {
			return cli.Exit(fmt.Sprintf("%d of %d files failed", failed, cctx.NArg()), 1)
		}
		return nil
	},
}

type filePrediction struct {
	Filename   string              `json:"filename"`
	Prediction string              `json:"prediction,omitempty"`
	Confidence float64             `json:"confidence,omitempty"`
	Top        []vision.LabelScore `json:"top,omitempty"`
	Error      string              `json:"error,omitempty"`
}

func predictFile(ctx context.Context, engine *vision.Engine, path string, top int) filePrediction {
	out := filePrediction{Filename: filepath.Base(path)}
	data, err := os.ReadFile(path)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	result, err := engine.Predict(ctx, data)
	if err != nil {
		switch {
		case errors.Is(err, vision.ErrImageTooLarge):
			out.Error = "image too large"
		case errors.Is(err, vision.ErrInvalidImage):
			out.Error = "invalid image"
		default:
			out.Error = err.Error()
		}
		log.Debug().Err(err).Str("file", path).Msg("predict failed")
		return out
	}
	out.Prediction = result.Prediction
	out.Confidence = result.Confidence
	out.Top = result.Top(top)
	return out
}

var tokenCmd = &cli.Command{
	Name:  "token",
	Usage: "mint a bearer token for the prediction history API",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "subject",
			Required: true,
		},
		&cli.DurationFlag{
			Name:  "ttl",
			Usage: "token lifetime, defaults to auth.jwt_expire_minute",
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		ttl := cctx.Duration("ttl")
		if ttl <= 0 {
			ttl = time.Duration(cfg.Auth.JWTExpireMinute) * time.Minute
		}
		token, err := jwtutil.GenerateToken(cfg.Auth.JWTSecret, ttl, cctx.String("subject"))
		if err != nil {
			return err
		}
		fmt.Fprintln(cctx.App.Writer, token)
		return nil
	},
}

var labelsCmd = &cli.Command{
	Name:  "labels",
	Usage: "print the class labels in model output order",
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		labels, err := vision.LoadLabels(cfg.Model.LabelsPath)
		if err != nil {
			return err
		}
		for i, label := range labels {
			fmt.Fprintf(cctx.App.Writer, "%d\t%s\n", i, label)
		}
		return nil
	},
}

func loadConfig(cctx *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadFile(cctx.String("config"))
	if err != nil {
		return nil, err
	}
	cfg.Log.File = ""
	if !strings.EqualFold(cfg.Log.Level, "debug") {
		cfg.Log.Level = "warn"
	}
	if err := logger.Init(cctx.App.Name, cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}
