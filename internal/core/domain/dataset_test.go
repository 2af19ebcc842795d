package domain

import (
	"errors"
	"testing"
)

func validSpec() DatasetSpec {
	return DatasetSpec{
		Dataset:         DatasetProducts,
		URL:             "https://example.com/products.zip",
		Encoding:        EncodingZip,
		ArchiveMember:   "products.txt",
		Delimiter:       "~",
		RequiredColumns: []string{"Appl_No", "Product_No"},
		MinRows:         10000,
		MaxRejectRate:   0.01,
		MaxDeleteRate:   0.10,
	}
}

func TestDatasetSpecValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DatasetSpec)
		wantOK bool
	}{
		{"valid zip spec", func(s *DatasetSpec) {}, true},
		{"valid text spec", func(s *DatasetSpec) { s.Encoding = EncodingText; s.ArchiveMember = "" }, true},
		{"unknown dataset", func(s *DatasetSpec) { s.Dataset = "labels" }, false},
		{"missing url", func(s *DatasetSpec) { s.URL = "" }, false},
		{"unknown encoding", func(s *DatasetSpec) { s.Encoding = "gzip" }, false},
		{"zip without member", func(s *DatasetSpec) { s.ArchiveMember = "" }, false},
		{"missing delimiter", func(s *DatasetSpec) { s.Delimiter = "" }, false},
		{"no required columns", func(s *DatasetSpec) { s.RequiredColumns = nil }, false},
		{"negative min rows", func(s *DatasetSpec) { s.MinRows = -1 }, false},
		{"reject rate above one", func(s *DatasetSpec) { s.MaxRejectRate = 1.5 }, false},
		{"negative delete rate", func(s *DatasetSpec) { s.MaxDeleteRate = -0.1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(&spec)
			err := spec.Validate()
			if tt.wantOK && err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
			if !tt.wantOK && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
