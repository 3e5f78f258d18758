package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/omr-reader/internal/config"
	"github.com/ironsheep/omr-reader/internal/detection"
	"github.com/ironsheep/omr-reader/internal/geometry"
	"github.com/ironsheep/omr-reader/internal/imaging"
	"github.com/ironsheep/omr-reader/internal/omr"
	"github.com/ironsheep/omr-reader/internal/pipeline"
	"github.com/ironsheep/omr-reader/internal/sheettest"
)

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv(config.EnvLogLevel, "")
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func writeFixture(t *testing.T, marked ...string) (photoPath, templatePath string) {
	t.Helper()
	dir := t.TempDir()
	doc := sheettest.Document()
	templatePath = filepath.Join(dir, "template.json")
	require.NoError(t, os.WriteFile(templatePath, sheettest.Encode(t, doc), 0o644))

	tpl := sheettest.Template(t, doc)
	sheet := sheettest.Sheet(t, tpl, sheettest.PxPerMM, marked...)
	photo := sheettest.Photo(t, sheet, geometry.Quad{
		{X: 150, Y: 120}, {X: 1250, Y: 180}, {X: 1300, Y: 1480}, {X: 90, Y: 1430},
	}, 1400, 1600)
	data, err := imaging.EncodePNG(photo)
	require.NoError(t, err)
	photoPath = filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(photoPath, data, 0o644))
	return photoPath, templatePath
}

func TestRun_Version(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "omr-reader dev")
}

func TestRun_Help(t *testing.T) {
	code, out, _ := runCLI(t, "--help")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "Usage: omr-reader")
}

func TestRun_UnknownCommand(t *testing.T) {
	code, _, errOut := runCLI(t, "grade")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, `unknown command "grade"`)
}

func TestRun_BadConfig(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv(config.EnvLogLevel, "verbose")
	var out, errOut bytes.Buffer
	assert.Equal(t, exitUsage, run([]string{"validate", "x.json"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "log_level")
}

func TestRun_Read(t *testing.T) {
	photo, tpl := writeFixture(t, "q1_b", "q2_a", "student_id_02_00", "student_id_01_01")

	code, out, errOut := runCLI(t, "read", "-template", tpl, photo)
	require.Equal(t, exitOK, code, errOut)

	var report pipeline.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Questions, 2)
	assert.Equal(t, []string{"B"}, report.Questions[0].MarkedOptions)
	assert.Equal(t, []string{"A"}, report.Questions[1].MarkedOptions)
}

func TestRun_ReadStrict(t *testing.T) {
	photo, tpl := writeFixture(t, "q1_a", "q1_b")

	code, _, _ := runCLI(t, "read", "-strict", "-template", tpl, photo)
	assert.Equal(t, exitReview, code)
}

func TestRun_ReadErrors(t *testing.T) {
	photo, tpl := writeFixture(t)
	dir := t.TempDir()
	junk := filepath.Join(dir, "junk.jpg")
	require.NoError(t, os.WriteFile(junk, []byte("nope"), 0o644))

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"no photo", []string{"read", "-template", tpl}, exitUsage},
		{"no template", []string{"read", photo}, 3},
		{"undecodable photo", []string{"read", "-template", tpl, junk}, 4},
		{"inverted thresholds", []string{"read", "-template", tpl, "-marked", "0.1", "-unmarked", "0.3", photo}, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := runCLI(t, tt.args...)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestRun_AlignAndAnnotate(t *testing.T) {
	photo, tpl := writeFixture(t, "q2_b")
	dir := t.TempDir()

	aligned := filepath.Join(dir, "aligned.png")
	code, out, errOut := runCLI(t, "align", "-template", tpl, "-px-per-mm", "4", "-out", aligned, photo)
	require.Equal(t, exitOK, code, errOut)
	var summary alignSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 400, summary.OutputWidthPx)
	assert.FileExists(t, aligned)

	annotated := filepath.Join(dir, "annotated.png")
	code, _, errOut = runCLI(t, "annotate", "-template", tpl, "-out", annotated, photo)
	require.Equal(t, exitOK, code, errOut)
	data, err := os.ReadFile(annotated)
	require.NoError(t, err)
	info, err := imaging.Inspect(data)
	require.NoError(t, err)
	assert.Equal(t, 1000, info.Width)
}

func TestRun_MarkerAndDetect(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m2.png")

	code, _, errOut := runCLI(t, "marker", "-id", "2", "-side", "120", "-out", path)
	require.Equal(t, exitOK, code, errOut)

	// Pad the marker with a white quiet zone so it does not touch the edge.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	marker, err := imaging.Decode(data)
	require.NoError(t, err)
	sheet := image.NewRGBA(image.Rect(0, 0, 320, 320))
	draw.Draw(sheet, sheet.Rect, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(sheet, image.Rect(100, 100, 220, 220), marker, image.Point{}, draw.Src)
	padded, err := imaging.EncodePNG(sheet)
	require.NoError(t, err)
	photo := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(photo, padded, 0o644))

	code, out, errOut := runCLI(t, "detect", photo)
	require.Equal(t, exitOK, code, errOut)
	var markers []detection.Marker
	require.NoError(t, json.Unmarshal([]byte(out), &markers))
	require.Len(t, markers, 1)
	assert.Equal(t, 2, markers[0].ID)

	code, _, _ = runCLI(t, "marker", "-id", "99", "-out", path)
	assert.Equal(t, 9, code)
}

func TestRun_Validate(t *testing.T) {
	_, tpl := writeFixture(t)
	code, out, _ := runCLI(t, "validate", tpl)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "2 questions, 4 options, 1 auxiliary blocks")

	code, _, _ = runCLI(t, "validate", filepath.Join(t.TempDir(), "missing.json"))
	assert.Equal(t, 3, code)
}

func TestRun_ValidateUndecodableMarkers(t *testing.T) {
	if _, ok := detection.New(detection.Options{}).(*detection.ContourDetector); !ok {
		t.Skip("builtin code table applies to the contour detector only")
	}
	doc := sheettest.Document()
	for i, m := range doc["markers"].([]any) {
		m.(map[string]any)["marker_id"] = 20 + i
	}
	highIDs := filepath.Join(t.TempDir(), "high_ids.json")
	require.NoError(t, os.WriteFile(highIDs, sheettest.Encode(t, doc), 0o644))
	code, _, errOut := runCLI(t, "validate", highIDs)
	assert.Equal(t, 3, code)
	assert.Contains(t, errOut, "marker id 20 cannot be decoded")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{errors.New("boom"), exitFailure},
		{omr.InvalidMetadataf("x"), 3},
		{omr.CaptureQualityf("x"), 6},
		{omr.Preconditionf("x"), 9},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err))
	}
}
