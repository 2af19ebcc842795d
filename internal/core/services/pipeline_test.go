package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/datacove/orangebook-etl/internal/core/domain"
	"github.com/datacove/orangebook-etl/internal/core/ports/driven/mocks"
)

const testProductsHeader = "Ingredient~DF;Route~Trade_Name~Applicant~Strength~Appl_Type~Appl_No~Product_No~TE_Code~Approval_Date~RLD~RS~Type"

const testPatentsHeader = "Appl_Type~Appl_No~Product_No~Patent_No~Patent_Expire_Date_Text~Drug_Substance_Flag~Drug_Product_Flag~Patent_Use_Code~Delist_Flag~Submission_Date"

const testExclusivityHeader = "Appl_Type~Appl_No~Product_No~Exclusivity_Code~Exclusivity_Date"

func productRow(applNo, tradeName string) string {
	return fmt.Sprintf("INGREDIENT~TABLET;ORAL~%s~ACME~10MG~N~%s~001~~Jan 1, 2020~No~No~RX", tradeName, applNo)
}

func productsContent(rows ...string) []byte {
	return []byte(strings.Join(append([]string{testProductsHeader}, rows...), "\n"))
}

func testSpec(dataset domain.Dataset, header string, minRows int) domain.DatasetSpec {
	cols := []string{"Appl_No", "Product_No"}
	return domain.DatasetSpec{
		Dataset:         dataset,
		URL:             "https://example.com/" + string(dataset) + ".txt",
		Encoding:        domain.EncodingText,
		Delimiter:       "~",
		RequiredColumns: cols,
		MinRows:         minRows,
		MaxRejectRate:   0.5,
		MaxDeleteRate:   0.5,
	}
}

type pipelineFixture struct {
	fetcher *mocks.MockFetcher
	states  *mocks.MockLoadStateStore
	runs    *mocks.MockLoadRunStore
	loader  *mocks.MockLoader
	lock    *mocks.MockDatasetLock
}

func newTestPipeline(specs ...domain.DatasetSpec) (*Pipeline, *pipelineFixture) {
	f := &pipelineFixture{
		fetcher: mocks.NewMockFetcher(),
		states:  mocks.NewMockLoadStateStore(),
		runs:    mocks.NewMockLoadRunStore(),
		lock:    mocks.NewMockDatasetLock(),
	}
	f.loader = mocks.NewMockLoader(f.states, f.runs)

	p := NewPipeline(PipelineConfig{
		Fetcher:    f.fetcher,
		Loader:     f.loader,
		StateStore: f.states,
		RunStore:   f.runs,
		Lock:       f.lock,
		Specs:      specs,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Retry:      domain.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})
	return p, f
}

func TestRunDataset_FirstRunInsertsEverything(t *testing.T) {
	p, f := newTestPipeline(testSpec(domain.DatasetProducts, testProductsHeader, 2))
	f.fetcher.SetDocument(domain.DatasetProducts, productsContent(
		productRow("100001", "ALPHA"),
		productRow("100002", "BETA"),
	))

	result := p.RunDataset(context.Background(), domain.DatasetProducts)
	if result.Err != nil {
		t.Fatalf("RunDataset() error = %v", result.Err)
	}
	if result.Outcome != domain.OutcomeSuccess {
		t.Errorf("Outcome = %s, want success", result.Outcome)
	}
	if result.Counts.Inserted != 2 || result.Counts.Deleted != 0 {
		t.Errorf("Counts = %+v", result.Counts)
	}

	calls := f.loader.Calls()
	if len(calls) != 1 {
		t.Fatalf("loader calls = %d, want 1", len(calls))
	}
	if got := f.states.Count(domain.DatasetProducts); got != 2 {
		t.Errorf("baseline keys = %d, want 2", got)
	}

	runs := f.runs.All()
	if len(runs) != 1 {
		t.Fatalf("run rows = %d, want 1", len(runs))
	}
	if runs[0].Outcome != domain.OutcomeSuccess || runs[0].SourceChecksum == "" {
		t.Errorf("run = %+v", runs[0])
	}
}

func TestRunDataset_FullReleaseCycle(t *testing.T) {
	p, f := newTestPipeline(testSpec(domain.DatasetProducts, testProductsHeader, 50))

	rows := make([]string, 100)
	for i := range rows {
		rows[i] = productRow(fmt.Sprintf("%06d", 100001+i), fmt.Sprintf("TRADE%03d", i))
	}
	f.fetcher.SetDocument(domain.DatasetProducts, productsContent(rows...))

	first := p.RunDataset(context.Background(), domain.DatasetProducts)
	if first.Err != nil {
		t.Fatalf("first run error = %v", first.Err)
	}
	if first.Counts.Inserted != 100 || first.Counts.Updated != 0 || first.Counts.Unchanged != 0 {
		t.Errorf("first run counts = %+v, want 100 inserts", first.Counts)
	}
	if got := f.states.Count(domain.DatasetProducts); got != 100 {
		t.Errorf("baseline keys = %d, want 100", got)
	}

	// Next release changes a single row; everything else is untouched.
	rows[42] = productRow("100043", "TRADE042 RENAMED")
	f.fetcher.SetDocument(domain.DatasetProducts, productsContent(rows...))

	second := p.RunDataset(context.Background(), domain.DatasetProducts)
	if second.Err != nil {
		t.Fatalf("second run error = %v", second.Err)
	}
	if second.Counts.Inserted != 0 || second.Counts.Updated != 1 || second.Counts.Unchanged != 99 {
		t.Errorf("second run counts = %+v, want 1 update and 99 unchanged", second.Counts)
	}
	if second.Counts.Deleted != 0 {
		t.Errorf("Deleted = %d, want 0", second.Counts.Deleted)
	}
}

func TestRunDataset_UnchangedSourceSkipsLoad(t *testing.T) {
	p, f := newTestPipeline(testSpec(domain.DatasetProducts, testProductsHeader, 1))
	f.fetcher.SetDocument(domain.DatasetProducts, productsContent(productRow("100001", "ALPHA")))

	first := p.RunDataset(context.Background(), domain.DatasetProducts)
	if first.Err != nil {
		t.Fatalf("first run error = %v", first.Err)
	}

	second := p.RunDataset(context.Background(), domain.DatasetProducts)
	if second.Err != nil {
		t.Fatalf("second run error = %v", second.Err)
	}
	if !second.Unchanged || second.Outcome != domain.OutcomeSuccess {
		t.Errorf("second run = %+v, want unchanged success", second)
	}

	// No second load transaction and no second audit row: the prior
	// run's checksum stays the change-detection reference.
	if calls := f.loader.Calls(); len(calls) != 1 {
		t.Errorf("loader calls = %d, want 1", len(calls))
	}
	if runs := f.runs.All(); len(runs) != 1 {
		t.Errorf("run rows = %d, want 1", len(runs))
	}
}

func TestRunDataset_ChangedSourceUpdatesAndDeletes(t *testing.T) {
	p, f := newTestPipeline(testSpec(domain.DatasetProducts, testProductsHeader, 1))
	f.fetcher.SetDocument(domain.DatasetProducts, productsContent(
		productRow("100001", "ALPHA"),
		productRow("100002", "BETA"),
	))
	if res := p.RunDataset(context.Background(), domain.DatasetProducts); res.Err != nil {
		t.Fatalf("seed run error = %v", res.Err)
	}

	// New release: ALPHA renamed, BETA gone.
	f.fetcher.SetDocument(domain.DatasetProducts, productsContent(
		productRow("100001", "ALPHA XR"),
	))

	result := p.RunDataset(context.Background(), domain.DatasetProducts)
	if result.Err != nil {
		t.Fatalf("RunDataset() error = %v", result.Err)
	}
	if result.Counts.Updated != 1 || result.Counts.Deleted != 1 || result.Counts.Inserted != 0 {
		t.Errorf("Counts = %+v, want 1 update and 1 deletion", result.Counts)
	}

	calls := f.loader.Calls()
	if len(calls) != 2 {
		t.Fatalf("loader calls = %d, want 2", len(calls))
	}
	if got := calls[1].Delta.Deletions; len(got) != 1 || got[0] != "100002|001" {
		t.Errorf("Deletions = %v", got)
	}
	if got := f.states.Count(domain.DatasetProducts); got != 1 {
		t.Errorf("baseline keys after deletion = %d, want 1", got)
	}
}

func TestRunDataset_TruncatedBatchKeepsBaseline(t *testing.T) {
	p, f := newTestPipeline(testSpec(domain.DatasetProducts, testProductsHeader, 2))
	f.fetcher.SetDocument(domain.DatasetProducts, productsContent(
		productRow("100001", "ALPHA"),
		productRow("100002", "BETA"),
	))
	if res := p.RunDataset(context.Background(), domain.DatasetProducts); res.Err != nil {
		t.Fatalf("seed run error = %v", res.Err)
	}

	// Single row against MinRows of 2: treated as truncated.
	f.fetcher.SetDocument(domain.DatasetProducts, productsContent(productRow("100001", "ALPHA")))

	result := p.RunDataset(context.Background(), domain.DatasetProducts)
	if result.Err != nil {
		t.Fatalf("RunDataset() error = %v", result.Err)
	}
	if result.Counts.Deleted != 0 {
		t.Errorf("Deleted = %d, want 0 for a truncated batch", result.Counts.Deleted)
	}
	if got := f.states.Count(domain.DatasetProducts); got != 2 {
		t.Errorf("baseline keys = %d, want 2 (missing key kept)", got)
	}
}

func TestRunDataset_RejectionsUnderThresholdArePartial(t *testing.T) {
	p, f := newTestPipeline(testSpec(domain.DatasetProducts, testProductsHeader, 1))
	f.fetcher.SetDocument(domain.DatasetProducts, productsContent(
		productRow("100001", "ALPHA"),
		"INGREDIENT~TABLET;ORAL~BAD~ACME~10MG~N~100002~001~~garbage date~No~No~RX",
	))

	result := p.RunDataset(context.Background(), domain.DatasetProducts)
	if result.Err != nil {
		t.Fatalf("RunDataset() error = %v", result.Err)
	}
	if result.Outcome != domain.OutcomePartial {
		t.Errorf("Outcome = %s, want partial", result.Outcome)
	}
	if result.Counts.Rejected != 1 || result.Counts.Inserted != 1 {
		t.Errorf("Counts = %+v", result.Counts)
	}
}

func TestRunDataset_RejectionRateExceededFails(t *testing.T) {
	spec := testSpec(domain.DatasetProducts, testProductsHeader, 1)
	spec.MaxRejectRate = 0.1
	p, f := newTestPipeline(spec)
	f.fetcher.SetDocument(domain.DatasetProducts, productsContent(
		productRow("100001", "ALPHA"),
		"INGREDIENT~TABLET;ORAL~BAD~ACME~10MG~N~100002~001~~garbage date~No~No~RX",
	))

	result := p.RunDataset(context.Background(), domain.DatasetProducts)
	if !errors.Is(result.Err, domain.ErrRejectionRate) {
		t.Fatalf("Err = %v, want ErrRejectionRate", result.Err)
	}
	if calls := f.loader.Calls(); len(calls) != 0 {
		t.Errorf("loader calls = %d, want 0 (nothing commits)", len(calls))
	}
}

func TestRunDataset_FailureRecordsFailedRun(t *testing.T) {
	p, f := newTestPipeline(testSpec(domain.DatasetProducts, testProductsHeader, 1))
	f.fetcher.Err = fmt.Errorf("%w: status 403", domain.ErrFetchRejected)

	result := p.RunDataset(context.Background(), domain.DatasetProducts)
	if !errors.Is(result.Err, domain.ErrFetchRejected) {
		t.Fatalf("Err = %v, want ErrFetchRejected", result.Err)
	}
	if result.Outcome != domain.OutcomeFailed {
		t.Errorf("Outcome = %s, want failed", result.Outcome)
	}

	runs := f.runs.All()
	if len(runs) != 1 {
		t.Fatalf("run rows = %d, want 1 failed audit row", len(runs))
	}
	if runs[0].Outcome != domain.OutcomeFailed || runs[0].Error == "" {
		t.Errorf("run = %+v, want failed with error text", runs[0])
	}

	// A failed run must not seed change detection: LastSuccessful
	// still reports nothing.
	if _, err := f.runs.LastSuccessful(context.Background(), domain.DatasetProducts); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("LastSuccessful error = %v, want ErrNotFound", err)
	}
}

func TestRunDataset_LoaderFailureLeavesBaselineUntouched(t *testing.T) {
	p, f := newTestPipeline(testSpec(domain.DatasetProducts, testProductsHeader, 1))
	f.fetcher.SetDocument(domain.DatasetProducts, productsContent(productRow("100001", "ALPHA")))
	if res := p.RunDataset(context.Background(), domain.DatasetProducts); res.Err != nil {
		t.Fatalf("seed run error = %v", res.Err)
	}
	before := f.states.Snapshot(domain.DatasetProducts)

	f.fetcher.SetDocument(domain.DatasetProducts, productsContent(productRow("100001", "ALPHA XR")))
	f.loader.Err = errors.New("destination write failed")

	result := p.RunDataset(context.Background(), domain.DatasetProducts)
	if result.Err == nil {
		t.Fatal("RunDataset() succeeded, want load failure")
	}
	if result.Outcome != domain.OutcomeFailed {
		t.Errorf("Outcome = %s, want failed", result.Outcome)
	}

	after := f.states.Snapshot(domain.DatasetProducts)
	if len(after) != len(before) {
		t.Fatalf("baseline size changed: %d -> %d", len(before), len(after))
	}
	for key, entry := range before {
		if after[key].ContentHash != entry.ContentHash {
			t.Errorf("baseline hash for %s changed despite rollback", key)
		}
	}

	runs := f.runs.All()
	if len(runs) != 2 || runs[1].Outcome != domain.OutcomeFailed {
		t.Errorf("runs = %d, last outcome = %s; want a failed audit row", len(runs), runs[len(runs)-1].Outcome)
	}
}

func TestRunDataset_RetriesTransientFetch(t *testing.T) {
	p, f := newTestPipeline(testSpec(domain.DatasetProducts, testProductsHeader, 1))

	content := productsContent(productRow("100001", "ALPHA"))
	attempts := 0
	f.fetcher.FetchFn = func(spec domain.DatasetSpec, lastChecksum string) (*domain.SourceDocument, error) {
		attempts++
		if attempts == 1 {
			return nil, domain.Transient(errors.New("connection reset"))
		}
		return &domain.SourceDocument{
			Dataset:  spec.Dataset,
			Content:  content,
			Checksum: domain.Checksum(content),
		}, nil
	}

	result := p.RunDataset(context.Background(), domain.DatasetProducts)
	if result.Err != nil {
		t.Fatalf("RunDataset() error = %v", result.Err)
	}
	if attempts != 2 {
		t.Errorf("fetch attempts = %d, want 2", attempts)
	}
	if result.Counts.Inserted != 1 {
		t.Errorf("Counts = %+v", result.Counts)
	}
}

func TestRunDataset_LockContention(t *testing.T) {
	p, f := newTestPipeline(testSpec(domain.DatasetProducts, testProductsHeader, 1))
	f.lock.Hold(string(domain.DatasetProducts))

	result := p.RunDataset(context.Background(), domain.DatasetProducts)
	if !errors.Is(result.Err, domain.ErrRunInProgress) {
		t.Fatalf("Err = %v, want ErrRunInProgress", result.Err)
	}
	if calls := f.fetcher.Calls(); len(calls) != 0 {
		t.Errorf("fetch calls = %d, want 0 while contended", len(calls))
	}
}

func TestRunDataset_ReleasesLockAfterRun(t *testing.T) {
	p, f := newTestPipeline(testSpec(domain.DatasetProducts, testProductsHeader, 1))
	f.fetcher.SetDocument(domain.DatasetProducts, productsContent(productRow("100001", "ALPHA")))

	if res := p.RunDataset(context.Background(), domain.DatasetProducts); res.Err != nil {
		t.Fatalf("RunDataset() error = %v", res.Err)
	}
	released := f.lock.Released()
	if len(released) != 1 || released[0] != string(domain.DatasetProducts) {
		t.Errorf("released locks = %v", released)
	}

	// Lock is free again for the next run.
	if res := p.RunDataset(context.Background(), domain.DatasetProducts); res.Err != nil {
		t.Errorf("rerun after release error = %v", res.Err)
	}
}

func TestRunDataset_UnconfiguredDataset(t *testing.T) {
	p, _ := newTestPipeline(testSpec(domain.DatasetProducts, testProductsHeader, 1))

	result := p.RunDataset(context.Background(), domain.DatasetPatents)
	if !errors.Is(result.Err, domain.ErrInvalidConfig) {
		t.Fatalf("Err = %v, want ErrInvalidConfig", result.Err)
	}
}

func TestRunAll_ProductsRunFirst(t *testing.T) {
	p, f := newTestPipeline(
		testSpec(domain.DatasetProducts, testProductsHeader, 1),
		testSpec(domain.DatasetPatents, testPatentsHeader, 1),
		testSpec(domain.DatasetExclusivity, testExclusivityHeader, 1),
	)
	f.fetcher.SetDocument(domain.DatasetProducts, productsContent(productRow("100001", "ALPHA")))
	f.fetcher.SetDocument(domain.DatasetPatents, []byte(strings.Join([]string{
		testPatentsHeader,
		"N~100001~001~7668730~Jan 2, 2033~Y~~U-1~~Feb 23, 2016",
	}, "\n")))
	f.fetcher.SetDocument(domain.DatasetExclusivity, []byte(strings.Join([]string{
		testExclusivityHeader,
		"N~100001~001~NCE~Aug 19, 2026",
	}, "\n")))

	results := p.RunAll(context.Background())
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for _, res := range results {
		if res.Err != nil {
			t.Errorf("%s run error = %v", res.Dataset, res.Err)
		}
	}

	// Results come back in dependency order regardless of which
	// dependent finished first.
	if results[0].Dataset != domain.DatasetProducts {
		t.Errorf("results[0] = %s, want products", results[0].Dataset)
	}

	calls := f.fetcher.Calls()
	if len(calls) != 3 || calls[0] != domain.DatasetProducts {
		t.Errorf("fetch order = %v, want products first", calls)
	}
}

func TestRunAll_ProductsFailureDoesNotStopDependents(t *testing.T) {
	p, f := newTestPipeline(
		testSpec(domain.DatasetProducts, testProductsHeader, 1),
		testSpec(domain.DatasetPatents, testPatentsHeader, 1),
	)
	// Products has no document registered, so its fetch fails; patents
	// still runs and succeeds.
	f.fetcher.Docs[domain.DatasetPatents] = &domain.SourceDocument{
		Dataset: domain.DatasetPatents,
		Content: []byte(strings.Join([]string{
			testPatentsHeader,
			"N~100001~001~7668730~Jan 2, 2033~Y~~U-1~~Feb 23, 2016",
		}, "\n")),
	}
	f.fetcher.Docs[domain.DatasetPatents].Checksum = domain.Checksum(f.fetcher.Docs[domain.DatasetPatents].Content)

	results := p.RunAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Outcome != domain.OutcomeFailed {
		t.Errorf("products outcome = %s, want failed", results[0].Outcome)
	}
	if results[1].Dataset != domain.DatasetPatents || results[1].Err != nil {
		t.Errorf("patents result = %+v, want success", results[1])
	}
}
