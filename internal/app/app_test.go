package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/juju/fslock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatset/beatset/internal/catalog"
	"github.com/beatset/beatset/internal/config"
	"github.com/beatset/beatset/internal/errors"
	"github.com/beatset/beatset/internal/ledger"
	"github.com/beatset/beatset/internal/osutext"
	"github.com/beatset/beatset/internal/reader"
	"github.com/beatset/beatset/internal/storage"
	"github.com/beatset/beatset/pkg/types"
)

func osuText(title string) string {
	return fmt.Sprintf(`osu file format v14

[General]
AudioFilename: audio.mp3

[Metadata]
Title:%s
Version:Normal

[Events]
0,0,"bg.jpg",0,0

[TimingPoints]
0,500,4,1,0,100,1,0

[HitObjects]
256,192,1000,1,0,0:0:0:0:
100,100,1500,1,2,0:0:0:0:
`, title)
}

type testEnv struct {
	root string
	cfg  *config.Config
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(root, "data")
	cfg.Encode.InputDir = filepath.Join(root, "input")
	cfg.Encode.BatchSize = 2
	cfg.Reconstruct.OutputDir = filepath.Join(root, "out")
	require.NoError(t, os.MkdirAll(cfg.Encode.InputDir, 0755))
	return &testEnv{root: root, cfg: cfg}
}

// folder writes a song folder with one beatmap, its audio and background.
func (e *testEnv) folder(t *testing.T, id string, extra map[string]string) {
	t.Helper()
	files := map[string]string{
		"map.osu":   osuText("Song " + id),
		"audio.mp3": "mp3-" + id,
		"bg.jpg":    "jpg-" + id,
	}
	for k, v := range extra {
		files[k] = v
	}
	e.files(t, id, files)
}

func (e *testEnv) files(t *testing.T, id string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(e.cfg.Encode.InputDir, id, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func (e *testEnv) app(t *testing.T, mode config.Mode, opts ...Option) *App {
	t.Helper()
	cfg := *e.cfg
	cfg.Mode = mode
	a, err := New(context.Background(), &cfg, opts...)
	require.NoError(t, err)
	return a
}

func (e *testEnv) encode(t *testing.T) *EncodeSummary {
	t.Helper()
	sum, err := e.app(t, config.ModeEncode).Encode(context.Background())
	require.NoError(t, err)
	return sum
}

func (e *testEnv) partitionIDs(t *testing.T) []string {
	t.Helper()
	ids, err := reader.New(e.cfg.DataDir).PartitionIDs(context.Background())
	require.NoError(t, err)
	return ids
}

func TestEncodeThenReconstruct(t *testing.T) {
	env := newEnv(t)
	env.folder(t, "100", nil)
	env.folder(t, "200", nil)
	env.files(t, "300", map[string]string{"readme.txt": "no beatmaps here"})

	sum := env.encode(t)
	assert.Equal(t, 3, sum.Folders)
	assert.Equal(t, 3, sum.Candidates)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)
	assert.False(t, sum.Interrupted)
	assert.Equal(t, 4, sum.AssetFiles)
	assert.Equal(t, 0, sum.AssetErrors)
	assert.Positive(t, sum.Rows)
	assert.Equal(t, []string{"100", "200"}, env.partitionIDs(t))
	require.Len(t, sum.Errors, 1)
	assert.Equal(t, "PARSE/NO_BEATMAP_FILES", sum.Errors[0].Key())
	assert.Equal(t, map[string]int{"folder": 1}, sum.Errors[0].Stages)

	led, err := ledger.Open(env.cfg.LedgerPath())
	require.NoError(t, err)
	defer led.Close()
	assert.Equal(t, []string{"300"}, led.IDs())

	rec := env.app(t, config.ModeReconstruct)
	rsum, err := rec.Reconstruct(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rsum.Partitions)
	assert.Equal(t, 2, rsum.Succeeded)
	assert.Equal(t, 0, rsum.Failed)
	assert.Equal(t, 2, rsum.Files)
	assert.Equal(t, 4, rsum.Assets)

	f, err := os.Open(filepath.Join(env.cfg.Reconstruct.OutputDir, "100", "map.osu"))
	require.NoError(t, err)
	defer f.Close()
	bm, err := osutext.NewParser(nil).ParseBeatmap(f)
	require.NoError(t, err)
	assert.Equal(t, "Song 100", bm.Title)
	assert.Len(t, bm.HitObjects, 2)

	data, err := os.ReadFile(filepath.Join(env.cfg.Reconstruct.OutputDir, "200", "audio.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "mp3-200", string(data))

	cat, err := catalog.Open(env.cfg.CatalogPath())
	require.NoError(t, err)
	defer cat.Close()
	runs, err := cat.Runs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, string(config.ModeReconstruct), runs[0].Mode)
	assert.Equal(t, catalog.RunCompleted, runs[1].Status)
	counts, err := cat.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{catalog.PartitionEncoded: 2, catalog.PartitionFailed: 1}, counts)
}

func TestEncode_SkipsExistingAndLedgered(t *testing.T) {
	env := newEnv(t)
	env.folder(t, "100", nil)
	env.files(t, "300", map[string]string{"readme.txt": "x"})
	env.encode(t)

	sum := env.encode(t)
	assert.Equal(t, 1, sum.Existing)
	assert.Equal(t, 1, sum.Ledgered)
	assert.Equal(t, 0, sum.Candidates)
	assert.Equal(t, 0, sum.Succeeded)
	assert.Positive(t, sum.CarriedRows)
	assert.Equal(t, []string{"100"}, env.partitionIDs(t))
}

func TestEncode_MergesNewPartitions(t *testing.T) {
	env := newEnv(t)
	env.folder(t, "100", nil)
	first := env.encode(t)

	env.folder(t, "200", nil)
	second := env.encode(t)
	assert.Equal(t, 1, second.Existing)
	assert.Equal(t, 1, second.Succeeded)
	assert.Equal(t, first.Rows, second.CarriedRows)
	assert.Equal(t, []string{"100", "200"}, env.partitionIDs(t))

	rows, err := reader.New(env.cfg.DataDir).LoadPartition(context.Background(), "100")
	require.NoError(t, err)
	assert.Len(t, rows.Beatmaps, 1)
	assert.Len(t, rows.HitObjects, 2)
}

func TestEncode_ForceRebuilds(t *testing.T) {
	env := newEnv(t)
	env.folder(t, "100", nil)
	env.files(t, "300", map[string]string{"readme.txt": "x"})
	env.encode(t)

	env.cfg.Encode.Force = true
	sum := env.encode(t)
	assert.Equal(t, 0, sum.Existing)
	assert.Equal(t, 0, sum.Ledgered)
	assert.Equal(t, 2, sum.Candidates)
	assert.Equal(t, 0, sum.CarriedRows)

	rows, err := reader.New(env.cfg.DataDir).LoadPartition(context.Background(), "100")
	require.NoError(t, err)
	assert.Len(t, rows.Beatmaps, 1)
}

func TestEncode_Sample(t *testing.T) {
	env := newEnv(t)
	for _, id := range []string{"1", "2", "3", "4"} {
		env.folder(t, id, nil)
	}
	env.cfg.Encode.Sample = 2
	env.cfg.Encode.SampleSeed = 7

	sum := env.encode(t)
	assert.Equal(t, 4, sum.Folders)
	assert.Equal(t, 2, sum.Candidates)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Len(t, env.partitionIDs(t), 2)
}

func TestSample(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e"}
	assert.Equal(t, names, sample(names, 0, 1))
	assert.Equal(t, names, sample(names, 9, 1))

	picked := sample(names, 3, 42)
	assert.Len(t, picked, 3)
	assert.IsIncreasing(t, picked)
	assert.Equal(t, picked, sample(names, 3, 42))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, names)
}

func TestEncode_AssetModes(t *testing.T) {
	extra := map[string]string{"notes.txt": "unreferenced"}

	t.Run("all", func(t *testing.T) {
		env := newEnv(t)
		env.folder(t, "100", extra)
		env.cfg.Encode.Assets = config.AssetsAll
		sum := env.encode(t)
		assert.Equal(t, 3, sum.AssetFiles)

		store, err := storage.NewLocalStorage(env.cfg.DataDir)
		require.NoError(t, err)
		objects, err := store.ListObjects(context.Background(), "assets/100/")
		require.NoError(t, err)
		assert.Equal(t, []string{"assets/100/audio.mp3", "assets/100/bg.jpg", "assets/100/notes.txt"}, objects)
	})

	t.Run("none", func(t *testing.T) {
		env := newEnv(t)
		env.folder(t, "100", extra)
		env.cfg.Encode.Assets = config.AssetsNone
		sum := env.encode(t)
		assert.Equal(t, 0, sum.AssetFiles)
		assert.NoDirExists(t, filepath.Join(env.cfg.DataDir, "assets", "100"))
	})

	t.Run("referenced with missing file", func(t *testing.T) {
		env := newEnv(t)
		env.files(t, "100", map[string]string{"map.osu": osuText("x"), "audio.mp3": "mp3"})
		sum := env.encode(t)
		assert.Equal(t, 1, sum.AssetFiles)
		assert.Equal(t, 1, sum.AssetErrors)
		assert.Equal(t, 1, sum.Succeeded)
		require.Len(t, sum.Errors, 1)
		assert.Equal(t, "ASSET/ASSET_MISSING", sum.Errors[0].Key())
	})
}

func TestEncode_Cancelled(t *testing.T) {
	env := newEnv(t)
	env.folder(t, "100", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := env.app(t, config.ModeEncode).Encode(ctx)
	require.NoError(t, err)
	assert.True(t, sum.Interrupted)
	assert.Equal(t, 0, sum.Succeeded)
	assert.FileExists(t, filepath.Join(env.cfg.DataDir, types.TableBeatmaps.FileName()))
	assert.Empty(t, env.partitionIDs(t))

	cat, err := catalog.Open(env.cfg.CatalogPath())
	require.NoError(t, err)
	defer cat.Close()
	runs, err := cat.Runs(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, catalog.RunInterrupted, runs[0].Status)

	// the interrupted folder is picked up by the next run
	assert.Equal(t, 1, env.encode(t).Succeeded)
}

// cancellingStore cancels the run on its first upload.
type cancellingStore struct {
	*storage.LocalStorage
	cancel context.CancelFunc
}

func (s *cancellingStore) Upload(ctx context.Context, localPath, objectPath string) error {
	s.cancel()
	return s.LocalStorage.Upload(ctx, localPath, objectPath)
}

func TestEncode_CancelDuringAssetsKeepsPartitionWhole(t *testing.T) {
	env := newEnv(t)
	env.folder(t, "100", nil)
	store, err := storage.NewLocalStorage(env.cfg.DataDir)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := env.app(t, config.ModeEncode, WithStorage(&cancellingStore{LocalStorage: store, cancel: cancel}))
	sum, err := a.Encode(ctx)
	require.NoError(t, err)
	assert.True(t, sum.Interrupted)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 2, sum.AssetFiles)
	assert.Zero(t, sum.AssetErrors)
	assert.Equal(t, []string{"100"}, env.partitionIDs(t))

	objects, err := store.ListObjects(context.Background(), "assets/100/")
	require.NoError(t, err)
	assert.Equal(t, []string{"assets/100/audio.mp3", "assets/100/bg.jpg"}, objects)
}

func TestEncode_Locked(t *testing.T) {
	env := newEnv(t)
	env.folder(t, "100", nil)
	a := env.app(t, config.ModeEncode)

	lock := fslock.New(env.cfg.LockPath())
	require.NoError(t, lock.TryLock())
	defer lock.Unlock()

	_, err := a.Encode(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeLocked, errors.GetCode(err))
}

func TestEncode_MissingInputDir(t *testing.T) {
	env := newEnv(t)
	env.cfg.Encode.InputDir = filepath.Join(env.root, "missing")
	_, err := env.app(t, config.ModeEncode).Encode(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.ErrCategoryConfig))
}

func TestReconstruct_SelectsPartitions(t *testing.T) {
	env := newEnv(t)
	for _, id := range []string{"1", "2", "3"} {
		env.folder(t, id, nil)
	}
	env.encode(t)

	t.Run("limit", func(t *testing.T) {
		env.cfg.Reconstruct.OutputDir = filepath.Join(env.root, "limit")
		env.cfg.Reconstruct.Limit = 2
		sum, err := env.app(t, config.ModeReconstruct).Reconstruct(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, sum.Succeeded)
		assert.DirExists(t, filepath.Join(env.cfg.Reconstruct.OutputDir, "2"))
		assert.NoDirExists(t, filepath.Join(env.cfg.Reconstruct.OutputDir, "3"))
	})

	t.Run("single", func(t *testing.T) {
		env.cfg.Reconstruct.OutputDir = filepath.Join(env.root, "single")
		env.cfg.Reconstruct.Limit = 0
		env.cfg.Reconstruct.PartitionID = "3"
		sum, err := env.app(t, config.ModeReconstruct).Reconstruct(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Partitions)
		assert.FileExists(t, filepath.Join(env.cfg.Reconstruct.OutputDir, "3", "map.osu"))
	})

	t.Run("unknown", func(t *testing.T) {
		env.cfg.Reconstruct.PartitionID = "404"
		sum, err := env.app(t, config.ModeReconstruct).Reconstruct(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Failed)
		require.Contains(t, sum.Failures, "404")
		assert.Equal(t, errors.CodeNoBeatmapFiles, errors.GetCode(sum.Failures["404"]))

		var out bytes.Buffer
		sum.Print(&out)
		assert.Contains(t, out.String(), "404:")
	})
}

func TestRemoteDataset(t *testing.T) {
	env := newEnv(t)
	env.folder(t, "100", nil)
	env.cfg.Storage.Type = "s3"
	env.cfg.Storage.S3.Bucket = "test"
	store, err := storage.NewLocalStorage(filepath.Join(env.root, "bucket"))
	require.NoError(t, err)

	sum, err := env.app(t, config.ModeEncode, WithStorage(store)).Encode(context.Background())
	require.NoError(t, err)
	assert.Positive(t, sum.TablesPushed)
	ok, err := store.Exists(context.Background(), "dataset/"+types.TableBeatmaps.FileName())
	require.NoError(t, err)
	assert.True(t, ok)

	// a fresh data dir pulls the remote tables before skipping existing folders
	env.cfg.DataDir = filepath.Join(env.root, "data2")
	env.cfg.Reconstruct.CacheDir = ""
	again, err := env.app(t, config.ModeEncode, WithStorage(store)).Encode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, again.Existing)

	rsum, err := env.app(t, config.ModeReconstruct, WithStorage(store)).Reconstruct(context.Background())
	require.NoError(t, err)
	assert.Positive(t, rsum.TablesPulled)
	assert.Equal(t, 1, rsum.Succeeded)
	assert.Equal(t, 2, rsum.Assets)
}

func TestRun_Partitions(t *testing.T) {
	env := newEnv(t)
	env.folder(t, "100", nil)
	env.files(t, "300", map[string]string{"readme.txt": "x"})
	env.encode(t)

	var out bytes.Buffer
	require.NoError(t, env.app(t, config.ModePartitions).Run(context.Background(), &out))
	lines := strings.Split(out.String(), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "100\t"), lines[0])
	assert.Contains(t, out.String(), "1 partitions, 1 ledgered failures")
	assert.Contains(t, out.String(), "catalog failed: 1")
}

func TestRun_EncodePrintsSummary(t *testing.T) {
	env := newEnv(t)
	env.folder(t, "100", nil)

	var out, progress bytes.Buffer
	a := env.app(t, config.ModeEncode, WithProgress(&progress))
	require.NoError(t, a.Run(context.Background(), &out))
	assert.Contains(t, out.String(), "1 succeeded")
	assert.Contains(t, progress.String(), "1/1 folders")
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Reconstruct.Concurrency = 0
	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.ErrCategoryConfig))
}
