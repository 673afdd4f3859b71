package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	opts := Default(t.TempDir())
	assert.NoError(t, opts.Validate())
}

func TestDefaultTranslatesToDatastoreConfig(t *testing.T) {
	dir := t.TempDir()
	opts := Default(dir)
	cfg, err := opts.DatastoreConfig()
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Dir)
	assert.Equal(t, opts.CommitLog.MaxRecordsInCommit, cfg.Writer.MaxRecordsInCommit)
	assert.Equal(t, opts.CommitLog.MaxSegmentSize, cfg.Writer.MaxSegmentSize)
	assert.Equal(t, opts.CommitLog.OffsetIndexStride, cfg.Writer.OffsetIndexStride)
	assert.Equal(t, opts.Durability.QueueCapacity, cfg.Durability.QueueCapacity)
	assert.False(t, cfg.SynchronousCommits)
}

func TestLoadParsesYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ridge.yaml")
	contents := `
data_dir: /var/lib/ridge
blob_threshold: 1024
page_size: 65536
synchronous_commits: true
commit_log:
  max_records_in_commit: 256
  max_segment_size: 67108864
  preallocate_segments: false
  offset_index_stride: 256
durability:
  max_commit_interval: 50ms
  queue_capacity: 1024
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	opts, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/ridge", opts.DataDir)
	assert.True(t, opts.SynchronousCommits)
	assert.Equal(t, 256, opts.CommitLog.MaxRecordsInCommit)
	assert.Equal(t, "50ms", opts.Durability.MaxCommitInterval)
	require.NoError(t, opts.Validate())
}

func TestValidateRejectsMismatchedBuildConstants(t *testing.T) {
	opts := Default(t.TempDir())
	opts.PageSize = 4096
	assert.Error(t, opts.Validate())
}

func TestValidateRejectsUnparsableDuration(t *testing.T) {
	opts := Default(t.TempDir())
	opts.Durability.MaxCommitInterval = "not-a-duration"
	assert.Error(t, opts.Validate())
}

func TestValidateRejectsMissingDataDir(t *testing.T) {
	opts := Default(t.TempDir())
	opts.DataDir = ""
	assert.Error(t, opts.Validate())
}
