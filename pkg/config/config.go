// Package config loads the YAML file a deployment uses to tune the
// datastore: data directory, commit log segment sizing, and durability
// flush behavior. It mirrors the teacher's pattern of a single options
// struct fed into package constructors (log.Init(Config), the catalog's
// and datastore's own Config structs) rather than scattering flags across
// packages.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ridgedb/ridge/pkg/blob"
	"github.com/ridgedb/ridge/pkg/commitlog"
	"github.com/ridgedb/ridge/pkg/datastore"
	"github.com/ridgedb/ridge/pkg/durability"
	"github.com/ridgedb/ridge/pkg/page"
)

// Options is the on-disk shape of a ridge config file.
type Options struct {
	// DataDir is where the catalog's metadata store and the commit log
	// segments live.
	DataDir string `yaml:"data_dir"`

	// BlobThreshold is the byte length above which a variable-length
	// value spills to the blob store instead of an inline granule chain.
	// Validated against blob.Threshold rather than wired through: the
	// blob/page layout is fixed at build time (spec-mandated constants),
	// so a config file that disagrees is a deployment error, not a knob.
	BlobThreshold int `yaml:"blob_threshold"`

	// PageSize is the fixed page size, validated against page.Size for
	// the same reason as BlobThreshold.
	PageSize int `yaml:"page_size"`

	// SynchronousCommits, when true, makes Commit block until the commit
	// log durably contains the transaction (spec §4.7's synchronous mode).
	// Defaults to false: asynchronous commits favor throughput.
	SynchronousCommits bool `yaml:"synchronous_commits"`

	CommitLog  CommitLogOptions  `yaml:"commit_log"`
	Durability DurabilityOptions `yaml:"durability"`
}

// CommitLogOptions mirrors commitlog.WriterConfig field for field; the
// datastore copies each field across when it builds a WriterConfig.
type CommitLogOptions struct {
	MaxRecordsInCommit  int   `yaml:"max_records_in_commit"`
	MaxSegmentSize      int64 `yaml:"max_segment_size"`
	PreallocateSegments bool  `yaml:"preallocate_segments"`
	OffsetIndexStride   int   `yaml:"offset_index_stride"`
}

// DurabilityOptions mirrors durability.Config, with MaxCommitInterval
// spelled as a YAML duration string ("50ms") rather than a raw integer.
type DurabilityOptions struct {
	MaxCommitInterval string `yaml:"max_commit_interval"`
	QueueCapacity     int    `yaml:"queue_capacity"`
}

// Default returns the options a fresh deployment should start from: spec
// defaults for blob threshold, page size, and offset-index stride, and
// asynchronous commits.
func Default(dataDir string) Options {
	writer := commitlog.DefaultWriterConfig()
	dur := durability.DefaultConfig()
	return Options{
		DataDir:            dataDir,
		BlobThreshold:      blob.Threshold,
		PageSize:           page.Size,
		SynchronousCommits: false,
		CommitLog: CommitLogOptions{
			MaxRecordsInCommit:  writer.MaxRecordsInCommit,
			MaxSegmentSize:      writer.MaxSegmentSize,
			PreallocateSegments: writer.PreallocateSegments,
			OffsetIndexStride:   writer.OffsetIndexStride,
		},
		Durability: DurabilityOptions{
			MaxCommitInterval: dur.MaxCommitInterval.String(),
			QueueCapacity:     dur.QueueCapacity,
		},
	}
}

// Load reads and parses a YAML config file from path.
func Load(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("config: load: %w", err)
	}
	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("config: load: %w", err)
	}
	return opts, nil
}

// Validate checks the options for internal consistency and rejects values
// that disagree with build-time constants.
func (o Options) Validate() error {
	if o.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	if o.BlobThreshold != blob.Threshold {
		return fmt.Errorf("config: blob_threshold %d does not match build constant %d", o.BlobThreshold, blob.Threshold)
	}
	if o.PageSize != page.Size {
		return fmt.Errorf("config: page_size %d does not match build constant %d", o.PageSize, page.Size)
	}
	if o.CommitLog.MaxRecordsInCommit <= 0 {
		return fmt.Errorf("config: commit_log.max_records_in_commit must be positive")
	}
	if o.CommitLog.MaxSegmentSize <= 0 {
		return fmt.Errorf("config: commit_log.max_segment_size must be positive")
	}
	if o.CommitLog.OffsetIndexStride <= 0 {
		return fmt.Errorf("config: commit_log.offset_index_stride must be positive")
	}
	if o.Durability.QueueCapacity <= 0 {
		return fmt.Errorf("config: durability.queue_capacity must be positive")
	}
	if _, err := time.ParseDuration(o.Durability.MaxCommitInterval); err != nil {
		return fmt.Errorf("config: durability.max_commit_interval: %w", err)
	}
	return nil
}

// DatastoreConfig translates the parsed options into a datastore.Config,
// the shape Open actually consumes.
func (o Options) DatastoreConfig() (datastore.Config, error) {
	if err := o.Validate(); err != nil {
		return datastore.Config{}, err
	}
	interval, err := time.ParseDuration(o.Durability.MaxCommitInterval)
	if err != nil {
		return datastore.Config{}, fmt.Errorf("config: durability.max_commit_interval: %w", err)
	}
	return datastore.Config{
		Dir: o.DataDir,
		Writer: commitlog.WriterConfig{
			MaxRecordsInCommit:  o.CommitLog.MaxRecordsInCommit,
			MaxSegmentSize:      o.CommitLog.MaxSegmentSize,
			PreallocateSegments: o.CommitLog.PreallocateSegments,
			OffsetIndexStride:   o.CommitLog.OffsetIndexStride,
		},
		Durability: durability.Config{
			MaxCommitInterval: interval,
			QueueCapacity:     o.Durability.QueueCapacity,
		},
		SynchronousCommits: o.SynchronousCommits,
	}, nil
}
