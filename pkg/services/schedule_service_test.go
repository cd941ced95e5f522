package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nemaec/nemaec-engine/pkg/apperrors"
	"github.com/nemaec/nemaec-engine/pkg/budget"
	"github.com/nemaec/nemaec-engine/pkg/models"
	"github.com/nemaec/nemaec-engine/pkg/repositories"
	"github.com/nemaec/nemaec-engine/pkg/spreadsheet"
)

// ============================================================================
// Fixtures
// ============================================================================

const sheetHeader = "Nro,Item,Partida,Codigo,Descripcion,Und,Metrado,Precio,Parcial,Dias,Inicio,Fin"

// sheetRow lays a row out in the default template's columns.
func sheetRow(code, description, qty, price, start, end string) string {
	return fmt.Sprintf(",P-%s,,%s,%s,UND,%s,%s,,,%s,%s", code, code, description, qty, price, start, end)
}

func sheet(rows ...string) []byte {
	return []byte(sheetHeader + "\n" + strings.Join(rows, "\n") + "\n")
}

// threeRowSheet has leaves 01.01 (100) and 01.02 (200) under 01.
func threeRowSheet() []byte {
	return sheet(
		sheetRow("01", "Obras provisionales", "", "", "2024-01-15", "2024-03-15"),
		sheetRow("01.01", "Cerco perimetrico", "2", "50", "2024-01-15", "2024-02-15"),
		sheetRow("01.02", "Caseta de guardiania", "4", "50", "2024-02-01", "2024-03-15"),
	)
}

type recordingNotifier struct {
	mu       sync.Mutex
	kinds    []NotificationKind
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, kind NotificationKind, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
	n.messages = append(n.messages, message)
}

func (n *recordingNotifier) last() (NotificationKind, string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.kinds) == 0 {
		return "", ""
	}
	return n.kinds[len(n.kinds)-1], n.messages[len(n.messages)-1]
}

// failingScheduleRepo wraps a real repository and fails selected calls.
type failingScheduleRepo struct {
	repositories.ScheduleRepository
	saveErr error
	findErr error
}

func (r *failingScheduleRepo) Save(ctx context.Context, s *models.Schedule) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	return r.ScheduleRepository.Save(ctx, s)
}

func (r *failingScheduleRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Schedule, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.ScheduleRepository.FindByID(ctx, id)
}

type scheduleTestEnv struct {
	svc       *scheduleService
	store     *repositories.Store
	schedules *failingScheduleRepo
	notifier  *recordingNotifier
	facility  *models.Facility
}

func newScheduleTestEnv(t *testing.T) *scheduleTestEnv {
	t.Helper()
	store := repositories.NewStore()
	facility := &models.Facility{
		Code:   "COM-001",
		Name:   "Comisaria Miraflores",
		Type:   models.FacilityTypeComisaria,
		Status: models.FacilityStatusPendiente,
		Location: models.Location{
			Department: "Lima", Province: "Lima", District: "Miraflores", Address: "Av. Larco 123",
		},
	}
	require.NoError(t, store.Facilities().Create(context.Background(), facility))

	schedules := &failingScheduleRepo{ScheduleRepository: store.Schedules()}
	notifier := &recordingNotifier{}
	svc := NewScheduleService(
		schedules,
		store.Facilities(),
		spreadsheet.NewIngester(spreadsheet.DefaultColumnMapping(), 0),
		budget.NewCalculator(0),
		budget.NewDiffer(decimal.Zero),
		NewMemoryImportLocker(),
		notifier,
		ImportOptions{},
		zap.NewNop(),
	).(*scheduleService)

	return &scheduleTestEnv{
		svc:       svc,
		store:     store,
		schedules: schedules,
		notifier:  notifier,
		facility:  facility,
	}
}

func (e *scheduleTestEnv) importAt(t *testing.T, at time.Time, data []byte) *models.Schedule {
	t.Helper()
	e.svc.now = func() time.Time { return at }
	s, err := e.svc.ImportSchedule(context.Background(), e.facility.ID, "cronograma.csv", data, "")
	require.NoError(t, err)
	return s
}

func (e *scheduleTestEnv) storedCount(t *testing.T) int {
	t.Helper()
	n, err := e.store.Schedules().CountByFacility(context.Background(), e.facility.ID)
	require.NoError(t, err)
	return n
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ============================================================================
// Import
// ============================================================================

func TestImportSchedule_StoresVersion(t *testing.T) {
	env := newScheduleTestEnv(t)

	s, err := env.svc.ImportSchedule(context.Background(), env.facility.ID, "uploads/cronograma-v1.csv", threeRowSheet(), "")
	require.NoError(t, err)

	assert.Equal(t, 1, s.Version)
	assert.Equal(t, "cronograma-v1", s.Name)
	assert.Equal(t, "cronograma-v1.csv", s.SourceFileName)
	assert.Equal(t, 3, s.TotalLineCount)
	assert.True(t, dec("300").Equal(s.TotalBudget), "total budget is the leaf sum, got %s", s.TotalBudget)
	require.NotNil(t, s.ProjectStartDate)
	require.NotNil(t, s.ProjectEndDate)
	assert.Equal(t, "2024-01-15", s.ProjectStartDate.Format("2006-01-02"))
	assert.Equal(t, "2024-03-15", s.ProjectEndDate.Format("2006-01-02"))

	stored, err := env.svc.GetSchedule(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 3)
	for _, line := range stored.Lines {
		assert.True(t, line.TotalPrice.Equal(line.Quantity.Mul(line.UnitPrice)), "line %s", line.HierarchicalCode)
	}

	kind, msg := env.notifier.last()
	assert.Equal(t, NotifySuccess, kind)
	assert.Contains(t, msg, "COM-001")
	assert.Contains(t, msg, "version 1")
}

func TestImportSchedule_ExplicitName(t *testing.T) {
	env := newScheduleTestEnv(t)

	s, err := env.svc.ImportSchedule(context.Background(), env.facility.ID, "x.csv", threeRowSheet(), "  Adicional 01  ")
	require.NoError(t, err)
	assert.Equal(t, "Adicional 01", s.Name)
}

func TestImportSchedule_RollsUpParents(t *testing.T) {
	env := newScheduleTestEnv(t)
	s := env.importAt(t, time.Now(), threeRowSheet())

	tree, err := env.svc.GetTree(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, tree, 3)
	assert.Equal(t, "01", tree[0].HierarchicalCode)
	assert.True(t, tree[0].HasChildren)
	assert.True(t, dec("300").Equal(tree[0].DisplayTotal))
}

func TestImportSchedule_MissingDescriptionRejected(t *testing.T) {
	env := newScheduleTestEnv(t)

	data := sheet(sheetRow("01.01", "", "2", "50", "2024-01-15", "2024-02-15"))
	_, err := env.svc.ImportSchedule(context.Background(), env.facility.ID, "cronograma.csv", data, "")

	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Messages, 1)
	assert.Equal(t, "row 2: description is required", verr.Messages[0])
	assert.Zero(t, env.storedCount(t))

	kind, _ := env.notifier.last()
	assert.Equal(t, NotifyError, kind)
}

func TestImportSchedule_AllOrNothing(t *testing.T) {
	env := newScheduleTestEnv(t)

	data := sheet(
		sheetRow("01", "Obras", "", "", "2024-01-15", "2024-03-15"),
		sheetRow("01.01", "Cerco", "2", "50", "2024-01-15", "2024-02-15"),
		sheetRow("01.02", "Caseta", "abc", "50", "2024-02-01", "2024-03-15"),
		sheetRow("01.03", "Muro", "1", "10", "", "2024-03-15"),
	)
	_, err := env.svc.ImportSchedule(context.Background(), env.facility.ID, "cronograma.csv", data, "")

	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Messages, 2, "every bad row is reported: %v", verr.Messages)
	assert.Zero(t, env.storedCount(t))
}

func TestImportSchedule_UnknownFacility(t *testing.T) {
	env := newScheduleTestEnv(t)

	_, err := env.svc.ImportSchedule(context.Background(), uuid.New(), "cronograma.csv", threeRowSheet(), "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestImportSchedule_RejectsFiles(t *testing.T) {
	env := newScheduleTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.ImportSchedule(ctx, env.facility.ID, "cronograma.pdf", threeRowSheet(), "")
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedFile)

	_, err = env.svc.ImportSchedule(ctx, env.facility.ID, "cronograma.xlsx", []byte("not a zip"), "")
	var malformed *apperrors.MalformedInputError
	assert.ErrorAs(t, err, &malformed)

	_, err = env.svc.ImportSchedule(ctx, env.facility.ID, "cronograma.csv", []byte("a,b\n1,2\n"), "")
	assert.ErrorAs(t, err, &malformed, "header narrower than the template")

	assert.Zero(t, env.storedCount(t))
}

func TestImportSchedule_CanceledBeforePersistence(t *testing.T) {
	env := newScheduleTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.svc.ImportSchedule(ctx, env.facility.ID, "cronograma.csv", threeRowSheet(), "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, env.storedCount(t))
}

func TestImportSchedule_PersistenceFailure(t *testing.T) {
	env := newScheduleTestEnv(t)
	env.schedules.saveErr = errors.New("connection reset by peer")

	_, err := env.svc.ImportSchedule(context.Background(), env.facility.ID, "cronograma.csv", threeRowSheet(), "")

	var perr *apperrors.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "save schedule", perr.Op)
	assert.EqualError(t, perr.Err, "connection reset by peer")

	kind, _ := env.notifier.last()
	assert.Equal(t, NotifyError, kind)
}

func TestImportSchedule_ConcurrentImportsGetDistinctVersions(t *testing.T) {
	env := newScheduleTestEnv(t)

	const imports = 8
	var wg sync.WaitGroup
	versions := make(chan int, imports)
	for i := 0; i < imports; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := env.svc.ImportSchedule(context.Background(), env.facility.ID, "cronograma.csv", threeRowSheet(), "")
			if assert.NoError(t, err) {
				versions <- s.Version
			}
		}()
	}
	wg.Wait()
	close(versions)

	seen := make(map[int]bool)
	for v := range versions {
		assert.False(t, seen[v], "version %d assigned twice", v)
		seen[v] = true
	}
	assert.Len(t, seen, imports)
}

// ============================================================================
// Versions
// ============================================================================

func TestGetCurrentSchedule_LatestImport(t *testing.T) {
	env := newScheduleTestEnv(t)
	ctx := context.Background()

	current, err := env.svc.GetCurrentSchedule(ctx, env.facility.ID)
	require.NoError(t, err)
	assert.Nil(t, current, "no schedule imported yet")

	t1 := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	first := env.importAt(t, t1, threeRowSheet())
	second := env.importAt(t, t1.Add(time.Hour), threeRowSheet())

	current, err = env.svc.GetCurrentSchedule(ctx, env.facility.ID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, second.ID, current.ID)
	assert.Len(t, current.Lines, 3)

	versions, err := env.svc.ListVersions(ctx, env.facility.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, second.ID, versions[0].ID)
	assert.Equal(t, models.VersionStateCurrent, versions[0].State)
	assert.Equal(t, first.ID, versions[1].ID)
	assert.Equal(t, models.VersionStateSuperseded, versions[1].State)
}

func TestGetCurrentSchedule_SameInstantUsesVersion(t *testing.T) {
	env := newScheduleTestEnv(t)

	at := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	env.importAt(t, at, threeRowSheet())
	second := env.importAt(t, at, threeRowSheet())

	current, err := env.svc.GetCurrentSchedule(context.Background(), env.facility.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)
	assert.Equal(t, 2, current.Version)
}

func TestArchiveSchedule_FallsBackToPreviousVersion(t *testing.T) {
	env := newScheduleTestEnv(t)
	ctx := context.Background()

	at := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	first := env.importAt(t, at, threeRowSheet())
	second := env.importAt(t, at.Add(time.Minute), threeRowSheet())

	archived, err := env.svc.ArchiveSchedule(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, archived.IsArchived())
	require.NotNil(t, archived.ArchivedAt)

	again, err := env.svc.ArchiveSchedule(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, archived.ArchivedAt.Equal(*again.ArchivedAt), "archiving twice keeps the first timestamp")

	current, err := env.svc.GetCurrentSchedule(ctx, env.facility.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, current.ID)

	versions, err := env.svc.ListVersions(ctx, env.facility.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, models.VersionStateArchived, versions[0].State)
	assert.Equal(t, models.VersionStateCurrent, versions[1].State)

	next := env.importAt(t, at.Add(time.Hour), threeRowSheet())
	assert.Equal(t, 3, next.Version, "archived versions keep their number")
}

func TestPurgeSchedule(t *testing.T) {
	env := newScheduleTestEnv(t)
	ctx := context.Background()

	s := env.importAt(t, time.Now(), threeRowSheet())
	require.NoError(t, env.svc.PurgeSchedule(ctx, s.ID))

	_, err := env.svc.GetSchedule(ctx, s.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, env.svc.PurgeSchedule(ctx, s.ID), apperrors.ErrNotFound)
	_, err = env.svc.ArchiveSchedule(ctx, s.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListVersions_UnknownFacility(t *testing.T) {
	env := newScheduleTestEnv(t)

	_, err := env.svc.ListVersions(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGetSchedule_StorageFailure(t *testing.T) {
	env := newScheduleTestEnv(t)
	env.schedules.findErr = errors.New("too many connections")

	_, err := env.svc.GetSchedule(context.Background(), uuid.New())
	var perr *apperrors.PersistenceError
	assert.ErrorAs(t, err, &perr)
}

// ============================================================================
// Stats, search and comparison
// ============================================================================

func TestGetStats(t *testing.T) {
	env := newScheduleTestEnv(t)

	data := sheet(
		sheetRow("01", "Obras", "", "", "2024-01-01", "2024-01-11"),
		sheetRow("01.01", "Cerco", "2", "100", "2024-01-01", "2024-01-05"),
		sheetRow("01.02", "Caseta", "1", "200", "2024-01-01", "2024-01-05"),
		sheetRow("01.02.01", "Techo", "1", "50", "2024-01-02", "2024-01-10"),
	)
	s := env.importAt(t, time.Now(), data)

	stats, err := env.svc.GetStats(context.Background(), s.ID)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.TotalLineCount)
	assert.Equal(t, map[int]int{1: 1, 2: 2, 3: 1}, stats.CountsByDepth)
	assert.Equal(t, 10, stats.DurationDays)
	require.NotNil(t, stats.MostExpensiveLine)
	assert.Equal(t, "01.01", stats.MostExpensiveLine.HierarchicalCode, "first of equal totals wins")
	require.NotNil(t, stats.LongestDurationLine)
	assert.Equal(t, "01", stats.LongestDurationLine.HierarchicalCode)
}

func TestCeilDays(t *testing.T) {
	assert.Equal(t, 0, ceilDays(0))
	assert.Equal(t, 0, ceilDays(-time.Hour))
	assert.Equal(t, 1, ceilDays(time.Hour))
	assert.Equal(t, 1, ceilDays(24*time.Hour))
	assert.Equal(t, 2, ceilDays(25*time.Hour))
}

func fourLevelSheet() []byte {
	return sheet(
		sheetRow("01", "Estructuras", "", "", "2024-01-01", "2024-03-31"),
		sheetRow("01.01", "Concreto simple", "", "", "2024-01-01", "2024-01-31"),
		sheetRow("01.01.01", "Cimientos", "", "", "2024-01-01", "2024-01-15"),
		sheetRow("01.01.01.01", "Concreto cimiento corrido", "10", "25", "2024-01-01", "2024-01-10"),
		sheetRow("01.01.01.02", "Encofrado", "5", "10", "2024-01-05", "2024-01-15"),
		sheetRow("02", "Arquitectura", "", "", "2024-02-01", "2024-03-31"),
		sheetRow("02.10", "Pintura en muros", "100", "3", "2024-03-01", "2024-03-31"),
	)
}

func TestSearchLines_DepthFilter(t *testing.T) {
	env := newScheduleTestEnv(t)
	s := env.importAt(t, time.Now(), fourLevelSheet())

	lines, err := env.svc.SearchLines(context.Background(), s.ID, models.LineFilter{Depth: 2})
	require.NoError(t, err)

	var codes []string
	for _, l := range lines {
		codes = append(codes, l.HierarchicalCode)
	}
	assert.Equal(t, []string{"01.01", "02.10"}, codes)
}

func TestSearchLines_Filters(t *testing.T) {
	env := newScheduleTestEnv(t)
	s := env.importAt(t, time.Now(), fourLevelSheet())
	ctx := context.Background()

	codesOf := func(filter models.LineFilter) []string {
		t.Helper()
		lines, err := env.svc.SearchLines(ctx, s.ID, filter)
		require.NoError(t, err)
		codes := []string{}
		for _, l := range lines {
			codes = append(codes, l.HierarchicalCode)
		}
		return codes
	}

	assert.Equal(t, []string{"01.01.01.01", "01.01.01.02"}, codesOf(models.LineFilter{Code: "01.01.01."}))
	assert.Equal(t, []string{"01.01", "01.01.01.01"}, codesOf(models.LineFilter{Description: "CONCRETO"}))

	from := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"01", "02", "02.10"}, codesOf(models.LineFilter{From: &from}))

	to := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"01", "01.01", "01.01.01", "01.01.01.01"}, codesOf(models.LineFilter{To: &to}))

	// Parents match on their rolled-up total: 01 = 250 + 50 = 300.
	minCost := dec("290")
	assert.Equal(t, []string{"01", "01.01", "01.01.01", "02", "02.10"}, codesOf(models.LineFilter{MinCost: &minCost}))

	maxCost := dec("60")
	assert.Equal(t, []string{"01.01.01.02"}, codesOf(models.LineFilter{MaxCost: &maxCost}))

	assert.Equal(t, []string{"01.01.01.01"}, codesOf(models.LineFilter{Depth: 4, Description: "concreto", To: &to}))
	assert.Empty(t, codesOf(models.LineFilter{Depth: 4, Code: "02.1"}))
}

func TestCompareVersions(t *testing.T) {
	env := newScheduleTestEnv(t)
	ctx := context.Background()

	old := env.importAt(t, time.Now(), threeRowSheet())
	newer := env.importAt(t, time.Now(), sheet(
		sheetRow("01", "Obras provisionales", "", "", "2024-01-15", "2024-03-15"),
		sheetRow("01.01", "Cerco perimetrico", "3", "50", "2024-01-15", "2024-02-15"),
		sheetRow("01.02", "Caseta de guardiania", "3", "50", "2024-02-01", "2024-03-15"),
	))

	diff, err := env.svc.CompareVersions(ctx, old.ID, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, old.ID, *diff.OldScheduleID)
	assert.Equal(t, newer.ID, *diff.NewScheduleID)
	assert.Empty(t, diff.Added)
	assert.Empty(t, diff.Removed)
	require.Len(t, diff.Modified, 2)
	assert.True(t, diff.Balance.IsZero())
	assert.True(t, diff.IsBalanced)

	_, err = env.svc.CompareVersions(ctx, old.ID, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = env.svc.CompareVersions(ctx, uuid.New(), newer.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPreviewChanges(t *testing.T) {
	env := newScheduleTestEnv(t)
	ctx := context.Background()

	preview, err := env.svc.PreviewChanges(ctx, env.facility.ID, "cronograma.csv", threeRowSheet())
	require.NoError(t, err)
	assert.Nil(t, preview.BaseScheduleID)
	assert.Len(t, preview.Diff.Added, 3)
	assert.True(t, dec("300").Equal(preview.Diff.Balance))
	assert.False(t, preview.Diff.IsBalanced)

	base := env.importAt(t, time.Now(), threeRowSheet())
	upload := sheet(
		sheetRow("01", "Obras provisionales", "", "", "", ""),
		sheetRow("01.01", "Cerco perimetrico", "2", "50", "", ""),
		sheetRow("01.03", "Letrero de obra", "1", "200", "", ""),
	)
	preview, err = env.svc.PreviewChanges(ctx, env.facility.ID, "cronograma.csv", upload)
	require.NoError(t, err)
	require.NotNil(t, preview.BaseScheduleID)
	assert.Equal(t, base.ID, *preview.BaseScheduleID)
	assert.Equal(t, 1, preview.BaseVersion)
	require.Len(t, preview.Diff.Added, 1)
	require.Len(t, preview.Diff.Removed, 1)
	assert.Empty(t, preview.Diff.Modified, "dates are not compared")
	assert.True(t, preview.Diff.IsBalanced)
	assert.NotEmpty(t, preview.Warnings, "missing dates are warnings when previewing")

	assert.Equal(t, 1, env.storedCount(t), "previewing stores nothing")
}

// reapportionedSheet moves 150 from 01.02 into 01.01 (+50) and a new 01.03 (+100).
func reapportionedSheet() []byte {
	return sheet(
		sheetRow("01", "Obras provisionales", "", "", "2024-01-15", "2024-03-15"),
		sheetRow("01.01", "Cerco perimetrico", "3", "50", "2024-01-15", "2024-02-15"),
		sheetRow("01.02", "Caseta de guardiania", "1", "50", "2024-02-01", "2024-03-15"),
		sheetRow("01.03", "Letrero de obra", "1", "100", "2024-02-01", "2024-03-15"),
	)
}

func confirmAll(monitor string) VersionConfirmation {
	return VersionConfirmation{
		Monitor: monitor,
		Changes: []models.ChangeConfirmation{
			{HierarchicalCode: "01.01", Type: models.ModificationBindingDeductive, Justification: "cerco ampliado", Confirmed: true},
			{HierarchicalCode: "01.02", Type: models.ModificationBindingDeductive, Justification: "caseta reducida", Confirmed: true},
			{HierarchicalCode: "01.03", Type: models.ModificationIndependentAddition, Justification: "exigido por la municipalidad", Confirmed: true},
		},
	}
}

func TestConfirmVersion_StoresJustifiedChanges(t *testing.T) {
	env := newScheduleTestEnv(t)
	ctx := context.Background()
	base := env.importAt(t, time.Now(), threeRowSheet())

	at := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	env.svc.now = func() time.Time { return at }
	s, err := env.svc.ConfirmVersion(ctx, env.facility.ID, "v2.csv", reapportionedSheet(), "", confirmAll("  Ing. Rojas "))
	require.NoError(t, err)

	assert.Equal(t, 2, s.Version)
	assert.Equal(t, "Ing. Rojas", s.Monitor)
	assert.Equal(t, "3 validated changes against version 1", s.ChangeDescription)
	require.Len(t, s.Changes, 3)
	first := s.Changes[0]
	assert.Equal(t, "01.01", first.HierarchicalCode)
	assert.Equal(t, models.ModificationBindingDeductive, first.Type)
	assert.True(t, dec("100").Equal(first.TotalBefore))
	assert.True(t, dec("150").Equal(first.TotalAfter))
	assert.True(t, dec("50").Equal(first.Impact))
	assert.Equal(t, "cerco ampliado", first.Justification)
	assert.Equal(t, "Ing. Rojas", first.Monitor)
	assert.True(t, at.Equal(first.ConfirmedAt))
	assert.Equal(t, models.ModificationIndependentAddition, s.Changes[2].Type)

	stored, err := env.svc.GetSchedule(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Changes, 3)

	current, err := env.svc.GetCurrentSchedule(ctx, env.facility.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, current.ID)
	assert.True(t, base.TotalBudget.Equal(current.TotalBudget), "a balanced version keeps the budget")

	kind, msg := env.notifier.last()
	assert.Equal(t, NotifySuccess, kind)
	assert.Contains(t, msg, "confirmed by Ing. Rojas")
}

func TestConfirmVersion_RejectsUnbalancedSet(t *testing.T) {
	env := newScheduleTestEnv(t)
	ctx := context.Background()
	env.importAt(t, time.Now(), threeRowSheet())

	// Only 01.01 grows; nothing offsets it.
	upload := sheet(
		sheetRow("01", "Obras provisionales", "", "", "2024-01-15", "2024-03-15"),
		sheetRow("01.01", "Cerco perimetrico", "3", "50", "2024-01-15", "2024-02-15"),
		sheetRow("01.02", "Caseta de guardiania", "4", "50", "2024-02-01", "2024-03-15"),
	)
	confirmation := VersionConfirmation{
		Monitor: "Ing. Rojas",
		Changes: []models.ChangeConfirmation{
			{HierarchicalCode: "01.01", Type: models.ModificationBindingDeductive, Justification: "cerco ampliado", Confirmed: true},
		},
	}

	_, err := env.svc.ConfirmVersion(ctx, env.facility.ID, "v2.csv", upload, "", confirmation)
	var unbalanced *apperrors.UnbalancedChangesError
	require.ErrorAs(t, err, &unbalanced)
	assert.True(t, dec("50").Equal(unbalanced.Balance))
	assert.Equal(t, "overrun of S/ 50.00", unbalanced.Alerts[0])
	assert.Equal(t, 1, env.storedCount(t), "nothing is stored")

	kind, _ := env.notifier.last()
	assert.Equal(t, NotifyError, kind)
}

func TestConfirmVersion_EveryChangeNeedsAConfirmation(t *testing.T) {
	env := newScheduleTestEnv(t)
	ctx := context.Background()
	env.importAt(t, time.Now(), threeRowSheet())

	confirmation := confirmAll("Ing. Rojas")
	confirmation.Changes[1].Confirmed = false
	confirmation.Changes = append(confirmation.Changes[:2], models.ChangeConfirmation{
		HierarchicalCode: "02.01", Type: models.ModificationReduction, Justification: "no aplica", Confirmed: true,
	})

	_, err := env.svc.ConfirmVersion(ctx, env.facility.ID, "v2.csv", reapportionedSheet(), "", confirmation)
	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{
		"change 01.02 (deductivo_vinculante) was rejected; upload a file without it",
		"change 01.03 (adicional_independiente) has no confirmation",
		"change 02.01 (reduccion_prestaciones) is not in the upload",
	}, verr.Messages)
	assert.Equal(t, 1, env.storedCount(t))
}

func TestConfirmVersion_ValidatesConfirmations(t *testing.T) {
	env := newScheduleTestEnv(t)
	ctx := context.Background()
	env.importAt(t, time.Now(), threeRowSheet())

	confirmation := confirmAll(" ")
	confirmation.Changes[0].Justification = "  "
	confirmation.Changes[2].Type = "adicional"

	_, err := env.svc.ConfirmVersion(ctx, env.facility.ID, "v2.csv", reapportionedSheet(), "", confirmation)
	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Messages, "monitor is required")
	assert.Contains(t, verr.Messages, "changes[0].justification is required")
	assert.Contains(t, verr.Messages,
		"changes[2].type must be one of: deductivo_vinculante reduccion_prestaciones adicional_independiente")

	// A rejected change needs no justification.
	confirmation = confirmAll("Ing. Rojas")
	confirmation.Changes[1].Justification = ""
	confirmation.Changes[1].Confirmed = false
	_, err = env.svc.ConfirmVersion(ctx, env.facility.ID, "v2.csv", reapportionedSheet(), "", confirmation)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"change 01.02 (deductivo_vinculante) was rejected; upload a file without it"}, verr.Messages)
}

func TestConfirmVersion_NeedsABaseVersion(t *testing.T) {
	env := newScheduleTestEnv(t)

	_, err := env.svc.ConfirmVersion(context.Background(), env.facility.ID, "v1.csv", threeRowSheet(), "", confirmAll("Ing. Rojas"))
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Zero(t, env.storedCount(t))
}

func TestConfirmVersion_UnchangedUpload(t *testing.T) {
	env := newScheduleTestEnv(t)
	env.importAt(t, time.Now(), threeRowSheet())

	_, err := env.svc.ConfirmVersion(context.Background(), env.facility.ID, "v2.csv", threeRowSheet(), "",
		VersionConfirmation{Monitor: "Ing. Rojas"})
	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"upload makes no changes to the current version"}, verr.Messages)
}

func TestValidateFile(t *testing.T) {
	env := newScheduleTestEnv(t)

	report, err := env.svc.ValidateFile(context.Background(), "cronograma.csv", threeRowSheet())
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Len(t, report.Preview, 3)
	assert.Equal(t, 3, report.Stats.ValidRows)
	assert.Empty(t, report.DisplayErrors)

	var rows []string
	for i := 1; i <= 12; i++ {
		rows = append(rows, sheetRow(fmt.Sprintf("%02d", i), "", "1", "1", "", ""))
	}
	report, err = env.svc.ValidateFile(context.Background(), "cronograma.csv", sheet(rows...))
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Len(t, report.Errors, 12)
	assert.Len(t, report.DisplayErrors, 10)
	assert.Equal(t, 2, report.HiddenErrorCount)
	assert.Zero(t, env.storedCount(t))
}

// ============================================================================
// Import lock
// ============================================================================

func TestMemoryImportLocker(t *testing.T) {
	locker := NewMemoryImportLocker()
	facilityID := uuid.New()

	_, unlock, err := locker.Lock(context.Background(), facilityID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = locker.Lock(ctx, facilityID)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "second import waits for the first")

	_, unlockOther, err := locker.Lock(context.Background(), uuid.New())
	require.NoError(t, err, "other facilities are not blocked")
	unlockOther()

	unlock()
	unlock()

	_, unlock, err = locker.Lock(context.Background(), facilityID)
	require.NoError(t, err)
	unlock()

	assert.Empty(t, locker.(*memoryImportLocker).locks, "released locks are forgotten")
}
