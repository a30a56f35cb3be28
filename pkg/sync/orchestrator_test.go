package sync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casesync/pkg/catalog"
	"casesync/pkg/config"
	errs "casesync/pkg/errors"
	"casesync/pkg/logger"
	"casesync/pkg/models"
	"casesync/pkg/store"
)

// fakeCatalog is an in-memory CatalogAPI for engine tests
type fakeCatalog struct {
	mu sync.Mutex

	procedures  []models.Procedure
	taxonomyErr error

	// listings maps procedure id to pages of case ids
	listings   map[string][][]string
	listingErr map[string]error

	detailErr   map[string]error
	detailCalls map[string]int

	// onDetail runs after every detail fetch, used to trip the stop flag
	onDetail func(caseID string)
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		listings:    make(map[string][][]string),
		listingErr:  make(map[string]error),
		detailErr:   make(map[string]error),
		detailCalls: make(map[string]int),
	}
}

func (f *fakeCatalog) FetchTaxonomy(ctx context.Context) ([]models.Procedure, error) {
	if f.taxonomyErr != nil {
		return nil, f.taxonomyErr
	}
	return f.procedures, nil
}

func (f *fakeCatalog) FetchCaseListing(ctx context.Context, procedureID string, page int) (catalog.ListingPage, error) {
	if err := f.listingErr[procedureID]; err != nil {
		return catalog.ListingPage{}, err
	}
	pages := f.listings[procedureID]
	if page > len(pages) {
		return catalog.ListingPage{}, nil
	}
	return catalog.ListingPage{
		CaseIDs: pages[page-1],
		HasMore: page < len(pages),
	}, nil
}

func (f *fakeCatalog) FetchCaseDetail(ctx context.Context, caseID string, procedureIDs []string) (models.Case, error) {
	f.mu.Lock()
	f.detailCalls[caseID]++
	f.mu.Unlock()

	if f.onDetail != nil {
		f.onDetail(caseID)
	}
	if err := f.detailErr[caseID]; err != nil {
		return models.Case{}, err
	}
	return models.Case{
		ExternalID:   caseID,
		ProcedureIDs: procedureIDs,
		Title:        "Case " + caseID,
		UpdatedAt:    time.Unix(0, 0).UTC(),
	}, nil
}

func (f *fakeCatalog) Stats() map[string]catalog.EndpointStats {
	return nil
}

func (f *fakeCatalog) totalDetailCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.detailCalls {
		n += c
	}
	return n
}

func testSyncConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Sync.BatchSize = 50
	cfg.Sync.SoftTimeLimit = 0
	cfg.Sync.SoftMemoryLimit = 0
	return cfg
}

func newTestEngine(cfg *config.Config, fake *fakeCatalog) (*Engine, store.KV) {
	kv := store.NewMemoryStore()
	return NewEngine(cfg, fake, kv, logger.NewTestLogger()), kv
}

func twoProcedureFake() *fakeCatalog {
	fake := newFakeCatalog()
	fake.procedures = []models.Procedure{
		{ExternalID: "p1", Name: "Rhinoplasty", Slug: "rhinoplasty", CaseCount: 3},
		{ExternalID: "p2", Name: "Liposuction", Slug: "liposuction", CaseCount: 2},
	}
	fake.listings["p1"] = [][]string{{"a", "b", "c"}}
	fake.listings["p2"] = [][]string{{"b", "d"}}
	return fake
}

func TestRunFullSyncCompletes(t *testing.T) {
	fake := twoProcedureFake()
	engine, _ := newTestEngine(testSyncConfig(), fake)

	report, err := engine.RunFullSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, report.Status)
	assert.Equal(t, 2, report.Procedures.Created)
	assert.Equal(t, 0, report.Procedures.Updated)
	assert.Equal(t, 4, report.Cases.Created)
	assert.Equal(t, 4, report.Cases.Attempted)
	assert.Equal(t, 0, report.Cases.Failed)
	assert.Equal(t, 1, report.Duplicates.Unique)
	assert.Equal(t, 1, report.Duplicates.Occurrences)

	// Each unique case fetched exactly once despite b appearing under both procedures
	for _, id := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, 1, fake.detailCalls[id], "case %s", id)
	}
}

func TestRunFullSyncSharedCaseKeepsBothProcedures(t *testing.T) {
	fake := twoProcedureFake()
	engine, kv := newTestEngine(testSyncConfig(), fake)

	_, err := engine.RunFullSync(context.Background())
	require.NoError(t, err)

	var c models.Case
	require.NoError(t, store.GetJSON(context.Background(), kv, store.CaseKey("b"), &c))
	assert.ElementsMatch(t, []string{"p1", "p2"}, c.ProcedureIDs)
}

func TestSecondRunIsNoChange(t *testing.T) {
	fake := twoProcedureFake()
	engine, _ := newTestEngine(testSyncConfig(), fake)

	_, err := engine.RunFullSync(context.Background())
	require.NoError(t, err)

	report, err := engine.RunFullSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, report.Status)
	assert.Equal(t, 0, report.Procedures.Created)
	assert.Equal(t, 0, report.Procedures.Updated)
	assert.Equal(t, 0, report.Cases.Created)
	assert.Equal(t, 0, report.Cases.Updated)
	assert.Equal(t, 4, report.Cases.Attempted)
}

func TestProcedureUpdateDetected(t *testing.T) {
	fake := twoProcedureFake()
	engine, _ := newTestEngine(testSyncConfig(), fake)

	_, err := engine.RunFullSync(context.Background())
	require.NoError(t, err)

	fake.procedures[0].Name = "Rhinoplasty Revised"

	report, err := engine.RunFullSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Procedures.Created)
	assert.Equal(t, 1, report.Procedures.Updated)
}

func TestTaxonomyFailureFailsRun(t *testing.T) {
	fake := twoProcedureFake()
	fake.taxonomyErr = errs.Transport("taxonomy", "connection refused")
	engine, kv := newTestEngine(testSyncConfig(), fake)

	_, err := engine.RunFullSync(context.Background())
	require.Error(t, err)

	runID, err := (&runStore{kv: kv}).CurrentRunID(context.Background())
	require.NoError(t, err)

	info, err := engine.Status(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, info.Status)
	assert.Equal(t, models.StageProcedures, info.Stage)

	// No listing or detail traffic after a taxonomy failure
	assert.Equal(t, 0, fake.totalDetailCalls())
}

func TestEmptyManifestFailsRun(t *testing.T) {
	fake := newFakeCatalog()
	fake.procedures = []models.Procedure{
		{ExternalID: "p1", Name: "Rhinoplasty", Slug: "rhinoplasty"},
	}
	fake.listingErr["p1"] = errs.Transport("case_listing", "upstream down")
	engine, kv := newTestEngine(testSyncConfig(), fake)

	_, err := engine.RunFullSync(context.Background())
	require.Error(t, err)

	rs := &runStore{kv: kv}
	runID, err := rs.CurrentRunID(context.Background())
	require.NoError(t, err)
	run, err := rs.LoadRun(context.Background(), runID)
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailed, run.Status)
	assert.Equal(t, models.StageManifest, run.FailureStage)
	// Partial progress from the completed stage survives on the record
	assert.Equal(t, 1, run.Procedures.Created)
}

func TestListingFailureSkipsProcedureWithWarning(t *testing.T) {
	fake := twoProcedureFake()
	fake.listingErr["p1"] = errs.Transport("case_listing", "timeout")
	engine, _ := newTestEngine(testSyncConfig(), fake)

	report, err := engine.RunFullSync(context.Background())
	require.NoError(t, err)

	// Completed with warnings is distinct from failed
	assert.Equal(t, models.StatusCompleted, report.Status)
	require.NotEmpty(t, report.Warnings)
	assert.Contains(t, report.Warnings[0], "p1")
	assert.Equal(t, 2, report.Cases.Attempted)
	assert.Equal(t, 0, fake.detailCalls["a"])
	assert.Equal(t, 1, fake.detailCalls["b"])
}

func TestCaseFailureSkipsItem(t *testing.T) {
	fake := twoProcedureFake()
	fake.detailErr["b"] = errs.Application("case_detail", "500 from upstream", 500)
	engine, kv := newTestEngine(testSyncConfig(), fake)

	report, err := engine.RunFullSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, report.Status)
	assert.Equal(t, 3, report.Cases.Created)
	assert.Equal(t, 1, report.Cases.Failed)
	assert.Equal(t, 4, report.Cases.Attempted)

	// The failed case was skipped, not stored
	var c models.Case
	err = store.GetJSON(context.Background(), kv, store.CaseKey("b"), &c)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStopFlagPausesRun(t *testing.T) {
	cfg := testSyncConfig()
	cfg.Sync.BatchSize = 2

	fake := newFakeCatalog()
	fake.procedures = []models.Procedure{{ExternalID: "p1", Name: "Facelift", Slug: "facelift"}}
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("case-%02d", i)
	}
	fake.listings["p1"] = [][]string{ids}

	engine, kv := newTestEngine(cfg, fake)
	fake.onDetail = func(caseID string) {
		if caseID == "case-02" {
			engine.RequestStop()
		}
	}

	report, err := engine.RunFullSync(context.Background())
	require.NoError(t, err)

	// A stop is a clean pause, never a failure
	assert.Equal(t, models.StatusPaused, report.Status)
	assert.Equal(t, 4, report.Cases.Attempted)

	cp, err := (&runStore{kv: kv}).LoadCheckpoint(context.Background(), report.RunID)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 4, cp.Cursor)
}

func TestResumeAfterStopProcessesRemainderOnce(t *testing.T) {
	cfg := testSyncConfig()
	cfg.Sync.BatchSize = 2

	fake := newFakeCatalog()
	fake.procedures = []models.Procedure{{ExternalID: "p1", Name: "Facelift", Slug: "facelift"}}
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("case-%02d", i)
	}
	fake.listings["p1"] = [][]string{ids}

	engine, _ := newTestEngine(cfg, fake)
	fake.onDetail = func(caseID string) {
		if caseID == "case-02" {
			engine.RequestStop()
		}
	}

	report, err := engine.RunFullSync(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.StatusPaused, report.Status)

	fake.onDetail = nil
	resumed, err := engine.Resume(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, resumed.Status)
	assert.Equal(t, report.RunID, resumed.RunID)
	assert.Equal(t, 10, resumed.Cases.Attempted)
	assert.Equal(t, 10, resumed.Cases.Created)

	// Every case fetched exactly once across both invocations
	for _, id := range ids {
		assert.Equal(t, 1, fake.detailCalls[id], "case %s", id)
	}
}

func TestResumeWithoutRun(t *testing.T) {
	engine, _ := newTestEngine(testSyncConfig(), newFakeCatalog())

	_, err := engine.Resume(context.Background())
	assert.ErrorIs(t, err, ErrNoCurrentRun)
}

func TestResumeRejectsTerminalRun(t *testing.T) {
	fake := twoProcedureFake()
	engine, _ := newTestEngine(testSyncConfig(), fake)

	_, err := engine.RunFullSync(context.Background())
	require.NoError(t, err)

	_, err = engine.Resume(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to resume")
}

func TestConcurrentRunRejected(t *testing.T) {
	engine, _ := newTestEngine(testSyncConfig(), newFakeCatalog())

	require.NoError(t, engine.acquire())
	defer engine.release()

	_, err := engine.RunFullSync(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestStatusProgress(t *testing.T) {
	fake := twoProcedureFake()
	engine, _ := newTestEngine(testSyncConfig(), fake)

	report, err := engine.RunFullSync(context.Background())
	require.NoError(t, err)

	info, err := engine.Status(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, info.Status)
	assert.Equal(t, float64(100), info.OverallPercentage)
	assert.Equal(t, report.Cases, info.Counts)
}
