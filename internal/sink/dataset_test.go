package sink

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatset/beatset/internal/reader"
	"github.com/beatset/beatset/internal/zonemap"
	"github.com/beatset/beatset/pkg/types"
)

func partitionRows(folder string) *types.RowSet {
	return &types.RowSet{
		Beatmaps: []types.BeatmapRow{{FolderID: folder, OsuFile: folder + ".osu", Version: "Hard"}},
		HitObjects: []types.HitObjectRow{
			{FolderID: folder, OsuFile: folder + ".osu", Index: 0, ObjectType: "circle"},
			{FolderID: folder, OsuFile: folder + ".osu", Index: 1, ObjectType: "circle"},
		},
		Breaks: breakRows(folder, 1),
	}
}

func encode(t *testing.T, dir string, force bool, parts ...string) Stats {
	t.Helper()
	ds, err := OpenDataset(context.Background(), DatasetOptions{Dir: dir, Force: force, BatchSize: 1})
	require.NoError(t, err)
	for _, p := range parts {
		require.NoError(t, ds.Emit(partitionRows(p)))
	}
	stats, err := ds.Close()
	require.NoError(t, err)
	require.NoError(t, ds.Commit())
	return stats
}

func TestDataset_MergeKeepsExistingPartitions(t *testing.T) {
	dir := t.TempDir()
	encode(t, dir, false, "A")
	stats := encode(t, dir, false, "B")

	assert.Equal(t, 1, stats.Carried[types.TableBeatmaps])
	assert.Equal(t, 2, stats.Written[types.TableBeatmaps])

	ids, err := reader.New(dir).PartitionIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids)

	rs, err := reader.New(dir).LoadPartition(context.Background(), "A")
	require.NoError(t, err)
	assert.Len(t, rs.Beatmaps, 1, "no duplicate beatmap rows after merge")
	assert.Len(t, rs.HitObjects, 2)
}

func TestDataset_ForceDropsExistingPartitions(t *testing.T) {
	dir := t.TempDir()
	encode(t, dir, false, "A")
	stats := encode(t, dir, true, "B")

	assert.Zero(t, stats.Carried[types.TableBeatmaps])
	ids, err := reader.New(dir).PartitionIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, ids)
}

func TestDataset_CommitWritesSidecars(t *testing.T) {
	dir := t.TempDir()
	encode(t, dir, false, "A", "B")

	for _, tb := range types.Tables {
		_, err := os.Stat(filepath.Join(dir, tb.FileName()))
		assert.NoError(t, err, "table %s", tb)
	}
	zm, err := zonemap.Read(filepath.Join(dir, types.TableHitObjects.FileName()))
	require.NoError(t, err)
	require.NotNil(t, zm)
	assert.Len(t, zm.RowGroups, 4)

	entries, err := os.ReadDir(filepath.Join(dir, ".staging"))
	require.NoError(t, err)
	assert.Empty(t, entries, "staging directory is removed after commit")
}

func TestDataset_AbortLeavesDatasetUntouched(t *testing.T) {
	dir := t.TempDir()
	encode(t, dir, false, "A")

	ds, err := OpenDataset(context.Background(), DatasetOptions{Dir: dir, Force: true})
	require.NoError(t, err)
	require.NoError(t, ds.Emit(partitionRows("B")))
	_, err = ds.Close()
	require.NoError(t, err)
	require.NoError(t, ds.Abort())

	_, err = os.Stat(ds.StagingDir())
	assert.True(t, os.IsNotExist(err))
	ids, err := reader.New(dir).PartitionIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids)
}

func TestDataset_CommitRequiresClose(t *testing.T) {
	ds, err := OpenDataset(context.Background(), DatasetOptions{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.Error(t, ds.Commit())
	_, err = ds.Close()
	require.NoError(t, err)
	assert.NoError(t, ds.Commit())
}

func TestDataset_EmitAfterCloseFails(t *testing.T) {
	ds, err := OpenDataset(context.Background(), DatasetOptions{Dir: t.TempDir()})
	require.NoError(t, err)
	_, err = ds.Close()
	require.NoError(t, err)
	assert.Error(t, ds.Emit(partitionRows("A")))
	require.NoError(t, ds.Abort())
}

func TestCommitTable_SidecarNeverOutlivesItsTable(t *testing.T) {
	write := func(p, content string) {
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	read := func(p string) string {
		b, err := os.ReadFile(p)
		require.NoError(t, err)
		return string(b)
	}
	staging, dir := t.TempDir(), t.TempDir()
	src := filepath.Join(staging, "t.parquet")
	dst := filepath.Join(dir, "t.parquet")

	// new table without a sidecar drops the old sidecar
	write(dst, "old")
	write(dst+zonemap.Suffix, "old-zm")
	write(src, "new")
	require.NoError(t, commitTable(src, dst))
	assert.Equal(t, "new", read(dst))
	assert.NoFileExists(t, dst+zonemap.Suffix)

	// new table with a sidecar brings it along
	write(dst+zonemap.Suffix, "stale-zm")
	write(src, "newer")
	write(src+zonemap.Suffix, "newer-zm")
	require.NoError(t, commitTable(src, dst))
	assert.Equal(t, "newer", read(dst))
	assert.Equal(t, "newer-zm", read(dst+zonemap.Suffix))
	assert.NoFileExists(t, src+zonemap.Suffix)

	// a failed table rename leaves the old table without its old sidecar
	require.Error(t, commitTable(filepath.Join(staging, "missing.parquet"), dst))
	assert.Equal(t, "newer", read(dst))
	assert.NoFileExists(t, dst+zonemap.Suffix)
}
