package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatset/beatset/internal/config"
)

const osu = `osu file format v14

[General]
AudioFilename: audio.mp3

[Metadata]
Title:Cli
Version:Easy

[Difficulty]
CircleSize:4

[TimingPoints]
0,500,4,1,0,100,1,0

[HitObjects]
256,192,1000,1,0,0:0:0:0:
`

func TestMain_Version(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Main("beatset", "", []string{"-version"}, &out, &errOut)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "beatset version dev")
}

func TestMain_BadFlag(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 2, Main("beatset-encode", config.ModeEncode, []string{"-partition", "1"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "-partition")
}

func TestMain_InvalidConfig(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Main("beatset", "", []string{
		"-env-file", filepath.Join(t.TempDir(), "none.env"),
		"-data-dir", t.TempDir(),
		"-mode", "compact",
		"-log.path", "/dev/null",
	}, &out, &errOut)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "invalid mode")
}

func TestMain_EncodeThenReconstruct(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "input")
	require.NoError(t, os.MkdirAll(filepath.Join(input, "42"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(input, "42", "easy.osu"), []byte(osu), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(input, "42", "audio.mp3"), []byte("mp3"), 0644))

	common := []string{
		"-env-file", filepath.Join(root, "none.env"),
		"-data-dir", filepath.Join(root, "data"),
		"-log.path", filepath.Join(root, "beatset.log"),
		"-log.level", "debug",
	}

	var out, errOut bytes.Buffer
	code := Main("beatset-encode", config.ModeEncode, append(common, "-input", input, "-batch-size", "10"), &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "1 succeeded")

	out.Reset()
	output := filepath.Join(root, "out")
	code = Main("beatset-reconstruct", config.ModeReconstruct, append(common, "-output", output, "-concurrency", "2"), &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.FileExists(t, filepath.Join(output, "42", "easy.osu"))
	assert.FileExists(t, filepath.Join(output, "42", "audio.mp3"))

	out.Reset()
	code = Main("beatset", "", append(common, "-mode", "partitions"), &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.True(t, strings.HasPrefix(out.String(), "42\t"), out.String())

	logData, err := os.ReadFile(filepath.Join(root, "beatset.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logData), `"msg":"encode finished"`)
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "beatset.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("data_dir: /from/file\nencode:\n  input_dir: /in/file\n  batch_size: 7\n"), 0644))
	t.Setenv("BEATSET_INPUT_DIR", "/in/env")

	opts := &options{configFile: cfgFile, envFile: filepath.Join(dir, "none.env"), dataDir: "/from/flag"}
	cfg, err := loadConfig(opts, map[string]bool{"data-dir": true}, config.ModeReconstruct)
	require.NoError(t, err)
	assert.Equal(t, config.ModeReconstruct, cfg.Mode)
	assert.Equal(t, "/from/flag", cfg.DataDir)
	assert.Equal(t, "/in/env", cfg.Encode.InputDir)
	assert.Equal(t, 7, cfg.Encode.BatchSize)
}
