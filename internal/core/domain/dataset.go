// Package domain holds the core Orange Book entities and the contracts the
// pipeline stages share. It depends on nothing outside the standard library
// and small utility packages.
package domain

import "fmt"

// Dataset names one of the three Orange Book source files.
type Dataset string

const (
	DatasetProducts    Dataset = "products"
	DatasetPatents     Dataset = "patents"
	DatasetExclusivity Dataset = "exclusivity"
)

// AllDatasets lists datasets in dependency order: patents and exclusivity
// rows reference product application numbers, so products loads first.
var AllDatasets = []Dataset{DatasetProducts, DatasetPatents, DatasetExclusivity}

// Encoding is how the upstream payload wraps the flat file.
type Encoding string

const (
	// EncodingText means the payload is the flat file itself.
	EncodingText Encoding = "text"
	// EncodingZip means the flat file is a member of a ZIP archive.
	EncodingZip Encoding = "zip"
)

// DatasetSpec configures the source and safety thresholds for one dataset.
type DatasetSpec struct {
	Dataset Dataset

	// URL is the upstream download location.
	URL string

	// Encoding selects text or zip payload handling.
	Encoding Encoding

	// ArchiveMember is the flat file's name inside the archive,
	// matched case-insensitively on the base name. Required for zip.
	ArchiveMember string

	// Delimiter separates fields within a row.
	Delimiter string

	// RequiredColumns must all appear in the header row; a missing
	// column is schema drift and fails the whole batch.
	RequiredColumns []string

	// MinRows is the smallest plausible complete batch. A batch below
	// it is treated as truncated and produces no deletions.
	MinRows int

	// MaxRejectRate bounds the tolerated fraction of rejected rows
	// before the batch fails outright.
	MaxRejectRate float64

	// MaxDeleteRate bounds the fraction of the baseline a single run
	// may delete. A spike above it aborts before the load.
	MaxDeleteRate float64
}

// Validate checks the spec for configuration mistakes. It runs at config
// load and again before each run.
func (s DatasetSpec) Validate() error {
	switch s.Dataset {
	case DatasetProducts, DatasetPatents, DatasetExclusivity:
	default:
		return fmt.Errorf("%w: unknown dataset %q", ErrInvalidConfig, s.Dataset)
	}
	if s.URL == "" {
		return fmt.Errorf("%w: dataset %s has no URL", ErrInvalidConfig, s.Dataset)
	}
	switch s.Encoding {
	case EncodingText:
	case EncodingZip:
		if s.ArchiveMember == "" {
			return fmt.Errorf("%w: dataset %s is zip-encoded but names no archive member", ErrInvalidConfig, s.Dataset)
		}
	default:
		return fmt.Errorf("%w: dataset %s has unknown encoding %q", ErrInvalidConfig, s.Dataset, s.Encoding)
	}
	if s.Delimiter == "" {
		return fmt.Errorf("%w: dataset %s has no delimiter", ErrInvalidConfig, s.Dataset)
	}
	if len(s.RequiredColumns) == 0 {
		return fmt.Errorf("%w: dataset %s lists no required columns", ErrInvalidConfig, s.Dataset)
	}
	if s.MinRows < 0 {
		return fmt.Errorf("%w: dataset %s has negative min_rows", ErrInvalidConfig, s.Dataset)
	}
	if s.MaxRejectRate < 0 || s.MaxRejectRate > 1 {
		return fmt.Errorf("%w: dataset %s max_reject_rate %v outside [0,1]", ErrInvalidConfig, s.Dataset, s.MaxRejectRate)
	}
	if s.MaxDeleteRate < 0 || s.MaxDeleteRate > 1 {
		return fmt.Errorf("%w: dataset %s max_delete_rate %v outside [0,1]", ErrInvalidConfig, s.Dataset, s.MaxDeleteRate)
	}
	return nil
}
