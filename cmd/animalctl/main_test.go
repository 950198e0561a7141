package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animalfaces-api/internal/pkg/jwtutil"
	"animalfaces-api/internal/vision"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	os.Exit(m.Run())
}

// constRunner always returns the same probabilities.
type constRunner struct {
	probs []float32
}

func (r constRunner) InputShape() []int64 { return []int64{1, 224, 224, 3} }
func (r constRunner) OutputSize() int { return len(r.probs) }
func (r constRunner) Close() error { return nil }

func (r constRunner) Run(context.Context, []float32) ([]float32, error) {
	return append([]float32(nil), r.probs...), nil
}

func newTestEngine(t *testing.T, maxPixels int64) *vision.Engine {
	t.Helper()
	engine, err := vision.NewEngine(
		[]string{"Cat", "Dog", "Wild"},
		constRunner{probs: []float32{0.25, 0.15, 0.6}},
		vision.Options{MaxPixels: maxPixels},
	)
	require.NoError(t, err)
	return engine
}

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.RGBA{R: 10, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestPredictFile(t *testing.T) {
	dir := t.TempDir()
	engine := newTestEngine(t, 0)

	out := predictFile(context.Background(), engine, writePNG(t, dir, "wolf.png", 40, 30), 2)
	assert.Empty(t, out.Error)
	assert.Equal(t, "wolf.png", out.Filename)
	assert.Equal(t, "Wild", out.Prediction)
	assert.InDelta(t, 60.0, out.Confidence, 0.01)
	require.Len(t, out.Top, 2)
	assert.Equal(t, "Wild", out.Top[0].Label)
	assert.Equal(t, "Cat", out.Top[1].Label)

	assert.Len(t, predictFile(context.Background(), engine, writePNG(t, dir, "a.png", 4, 4), 0).Top, 3)
}

func TestPredictFile_Errors(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "notes.png")
	require.NoError(t, os.WriteFile(garbage, []byte("plain text"), 0o600))
	out := predictFile(context.Background(), newTestEngine(t, 0), garbage, 3)
	assert.Equal(t, "invalid image", out.Error)
	assert.Empty(t, out.Prediction)
	assert.Empty(t, out.Top)

	out = predictFile(context.Background(), newTestEngine(t, 100), writePNG(t, dir, "big.png", 20, 20), 3)
	assert.Equal(t, "image too large", out.Error)

	out = predictFile(context.Background(), newTestEngine(t, 0), filepath.Join(dir, "missing.png"), 3)
	assert.NotEmpty(t, out.Error)
	assert.Equal(t, "missing.png", out.Filename)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLabelsCommand(t *testing.T) {
	labels := filepath.Join(t.TempDir(), "class_names.txt")
	require.NoError(t, os.WriteFile(labels, []byte("Cat\nDog\n\nWild\n"), 0o600))
	cfg := writeConfig(t, "[model]\nlabels_path = \""+filepath.ToSlash(labels)+"\"\n")

	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf
	require.NoError(t, app.Run([]string{"animalctl", "--config", cfg, "labels"}))
	assert.Equal(t, "0\tCat\n1\tDog\n2\tWild\n", buf.String())
}

func TestTokenCommand(t *testing.T) {
	cfg := writeConfig(t, "[auth]\njwt_secret = \"cli-secret\"\n")

	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf
	require.NoError(t, app.Run([]string{"animalctl", "--config", cfg, "token", "--subject", "ops", "--ttl", "5m"}))

	claims, err := jwtutil.ParseToken("cli-secret", strings.TrimSpace(buf.String()))
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
}

func TestTokenCommand_RequiresSecret(t *testing.T) {
	cfg := writeConfig(t, "[auth]\njwt_secret = \"\"\n")

	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run([]string{"animalctl", "--config", cfg, "token", "--subject", "ops"})
	assert.Error(t, err)
}
