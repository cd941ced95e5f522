package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nemaec/nemaec-engine/pkg/apperrors"
	"github.com/nemaec/nemaec-engine/pkg/budget"
	"github.com/nemaec/nemaec-engine/pkg/metrics"
	"github.com/nemaec/nemaec-engine/pkg/models"
	"github.com/nemaec/nemaec-engine/pkg/repositories"
	"github.com/nemaec/nemaec-engine/pkg/spreadsheet"
)

// ScheduleService orchestrates schedule import, versioning and analysis.
type ScheduleService interface {
	// ImportSchedule ingests a spreadsheet and stores it as the facility's
	// next version. Any row error rejects the whole file with a
	// *apperrors.ValidationError and nothing is stored.
	ImportSchedule(ctx context.Context, facilityID uuid.UUID, fileName string, data []byte, name string) (*models.Schedule, error)

	// ConfirmVersion stores an upload as the next version after checking
	// the monitor's confirmations against its diff with the current version.
	// Missing, rejected or unknown confirmations fail with a
	// *apperrors.ValidationError; a confirmed set that does not net to zero
	// fails with a *apperrors.UnbalancedChangesError. Nothing is stored on
	// failure.
	ConfirmVersion(ctx context.Context, facilityID uuid.UUID, fileName string, data []byte, name string, confirmation VersionConfirmation) (*models.Schedule, error)

	// ValidateFile ingests in preview mode without storing anything.
	ValidateFile(ctx context.Context, fileName string, data []byte) (*ValidationReport, error)

	// GetSchedule returns a schedule with its lines.
	GetSchedule(ctx context.Context, scheduleID uuid.UUID) (*models.Schedule, error)

	// GetCurrentSchedule returns the newest non-archived version with its
	// lines, or nil when the facility has none.
	GetCurrentSchedule(ctx context.Context, facilityID uuid.UUID) (*models.Schedule, error)

	// ListVersions returns every version of a facility, newest first.
	ListVersions(ctx context.Context, facilityID uuid.UUID) ([]*models.ScheduleVersion, error)

	GetStats(ctx context.Context, scheduleID uuid.UUID) (*models.ScheduleStats, error)
	CompareVersions(ctx context.Context, oldScheduleID, newScheduleID uuid.UUID) (*models.DiffResult, error)

	// PreviewChanges diffs an upload against the facility's current version
	// without storing it.
	PreviewChanges(ctx context.Context, facilityID uuid.UUID, fileName string, data []byte) (*ChangePreview, error)

	SearchLines(ctx context.Context, scheduleID uuid.UUID, filter models.LineFilter) ([]*models.LineItem, error)
	GetTree(ctx context.Context, scheduleID uuid.UUID) ([]models.TreeNode, error)

	// ArchiveSchedule hides a version from "current" but keeps its history.
	ArchiveSchedule(ctx context.Context, scheduleID uuid.UUID) (*models.Schedule, error)

	// PurgeSchedule permanently deletes a version and its lines.
	PurgeSchedule(ctx context.Context, scheduleID uuid.UUID) error
}

// ValidationReport is the outcome of checking a file without importing it.
type ValidationReport struct {
	Valid bool              `json:"valid"`
	Stats spreadsheet.Stats `json:"stats"`
	// Preview holds the first valid rows of the sheet.
	Preview []*models.LineItem `json:"preview"`
	// DisplayErrors is the capped list shown to users; Errors is complete.
	DisplayErrors    []string `json:"display_errors"`
	HiddenErrorCount int      `json:"hidden_error_count"`
	Errors           []string `json:"errors"`
	Warnings         []string `json:"warnings"`
}

// ChangePreview is the diff of an uploaded file against the current version.
type ChangePreview struct {
	BaseScheduleID *uuid.UUID         `json:"base_schedule_id,omitempty"`
	BaseVersion    int                `json:"base_version"`
	Diff           *models.DiffResult `json:"diff"`
	Stats          spreadsheet.Stats  `json:"stats"`
	Warnings       []string           `json:"warnings"`
}

// VersionConfirmation is a monitor's sign-off on the changes an upload makes
// to the facility's current version.
type VersionConfirmation struct {
	Monitor string                      `json:"monitor" validate:"required,max=255"`
	Changes []models.ChangeConfirmation `json:"changes" validate:"dive"`
}

// ImportOptions tunes what the service reports back to callers.
type ImportOptions struct {
	PreviewRows       int
	ErrorDisplayLimit int
}

type scheduleService struct {
	schedules  repositories.ScheduleRepository
	facilities repositories.FacilityRepository
	ingester   *spreadsheet.Ingester
	calculator *budget.Calculator
	differ     *budget.Differ
	locker     ImportLocker
	notifier   Notifier
	validate   *validator.Validate
	opts       ImportOptions
	now        func() time.Time
	logger     *zap.Logger
}

// NewScheduleService creates a new ScheduleService.
func NewScheduleService(
	schedules repositories.ScheduleRepository,
	facilities repositories.FacilityRepository,
	ingester *spreadsheet.Ingester,
	calculator *budget.Calculator,
	differ *budget.Differ,
	locker ImportLocker,
	notifier Notifier,
	opts ImportOptions,
	logger *zap.Logger,
) ScheduleService {
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = 10
	}
	if opts.ErrorDisplayLimit <= 0 {
		opts.ErrorDisplayLimit = apperrors.DefaultDisplayLimit
	}
	return &scheduleService{
		schedules:  schedules,
		facilities: facilities,
		ingester:   ingester,
		calculator: calculator,
		differ:     differ,
		locker:     locker,
		notifier:   notifier,
		validate:   newJSONValidator(),
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.Named("schedule-service"),
	}
}

var _ ScheduleService = (*scheduleService)(nil)

// ============================================================================
// Import
// ============================================================================

func (s *scheduleService) ImportSchedule(ctx context.Context, facilityID uuid.UUID, fileName string, data []byte, name string) (*models.Schedule, error) {
	return s.storeVersion(ctx, facilityID, fileName, data, name, nil)
}

// ConfirmVersion stores an upload only when the monitor has confirmed and
// justified every change it makes to the current version, and the confirmed
// impacts net to zero. The diff runs under the facility lock so the base
// cannot move between the check and the save.
func (s *scheduleService) ConfirmVersion(ctx context.Context, facilityID uuid.UUID, fileName string, data []byte, name string, confirmation VersionConfirmation) (*models.Schedule, error) {
	confirmation.Monitor = strings.TrimSpace(confirmation.Monitor)
	for i := range confirmation.Changes {
		confirmation.Changes[i].Justification = strings.TrimSpace(confirmation.Changes[i].Justification)
	}
	if err := validateStruct(s.validate, "confirmation", confirmation); err != nil {
		return nil, err
	}

	return s.storeVersion(ctx, facilityID, fileName, data, name, func(lockedCtx context.Context, schedule *models.Schedule) error {
		current, err := s.GetCurrentSchedule(lockedCtx, facilityID)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("facility has no version to confirm changes against: %w", apperrors.ErrConflict)
		}

		diff := s.differ.Diff(current.Lines, schedule.Lines)
		metrics.DiffsTotal.WithLabelValues(strconv.FormatBool(diff.IsBalanced)).Inc()

		changes, err := confirmChanges(diff, confirmation, s.now())
		if err != nil {
			return err
		}
		if balance, ok, alerts := s.differ.ConfirmedBalance(changes); !ok {
			return &apperrors.UnbalancedChangesError{Balance: balance, Alerts: alerts}
		}

		schedule.Monitor = confirmation.Monitor
		schedule.ChangeDescription = fmt.Sprintf("%d validated changes against version %d", len(changes), current.Version)
		schedule.Changes = changes
		return nil
	})
}

// confirmChanges pairs each detected change with the monitor's answer by
// code and modification type. Every detected change must be confirmed, and
// every confirmation must name a detected change.
func confirmChanges(diff *models.DiffResult, confirmation VersionConfirmation, at time.Time) ([]models.ConfirmedChange, error) {
	type key struct{ code, typ string }
	answers := make(map[key]models.ChangeConfirmation, len(confirmation.Changes))
	for _, c := range confirmation.Changes {
		answers[key{c.HierarchicalCode, c.Type}] = c
	}

	var messages []string
	detected := diff.All()
	changes := make([]models.ConfirmedChange, 0, len(detected))
	for _, rec := range detected {
		k := key{rec.HierarchicalCode, rec.Type}
		answer, ok := answers[k]
		delete(answers, k)
		switch {
		case !ok:
			messages = append(messages, fmt.Sprintf("change %s (%s) has no confirmation", rec.HierarchicalCode, rec.Type))
		case !answer.Confirmed:
			messages = append(messages, fmt.Sprintf("change %s (%s) was rejected; upload a file without it", rec.HierarchicalCode, rec.Type))
		default:
			changes = append(changes, models.NewConfirmedChange(rec, answer.Justification, confirmation.Monitor, at))
		}
	}
	for _, c := range confirmation.Changes {
		k := key{c.HierarchicalCode, c.Type}
		if _, stale := answers[k]; stale {
			messages = append(messages, fmt.Sprintf("change %s (%s) is not in the upload", c.HierarchicalCode, c.Type))
			delete(answers, k)
		}
	}
	if len(changes) == 0 && len(messages) == 0 {
		messages = append(messages, "upload makes no changes to the current version")
	}

	if len(messages) > 0 {
		return nil, apperrors.NewValidationError(messages)
	}
	return changes, nil
}

// storeVersion ingests an upload and saves it as the facility's next version.
// prepare, when set, runs under the facility lock before the save and can
// annotate or reject the schedule.
func (s *scheduleService) storeVersion(
	ctx context.Context,
	facilityID uuid.UUID,
	fileName string,
	data []byte,
	name string,
	prepare func(ctx context.Context, schedule *models.Schedule) error,
) (*models.Schedule, error) {
	facility, err := s.facilities.GetByID(ctx, facilityID)
	if err != nil {
		return nil, wrapPersistence("get facility", err)
	}

	result, err := s.ingest(fileName, data, spreadsheet.ModeFull)
	if err != nil {
		s.recordImportFailure(ctx, metrics.ImportResultMalformed, fileName, err)
		return nil, err
	}
	if verr := result.Err(s.opts.ErrorDisplayLimit); verr != nil {
		s.recordImportFailure(ctx, metrics.ImportResultInvalid, fileName,
			fmt.Errorf("%d rows rejected", len(result.Errors)))
		return nil, verr
	}

	lockedCtx, unlock, err := s.locker.Lock(ctx, facilityID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, s.cancelImport(fileName, ctx.Err())
		}
		s.recordImportFailure(ctx, metrics.ImportResultError, fileName, err)
		return nil, &apperrors.PersistenceError{Op: "lock facility", Err: err}
	}
	defer unlock()

	version, err := s.schedules.NextVersion(lockedCtx, facilityID)
	if err != nil {
		s.recordImportFailure(ctx, metrics.ImportResultError, fileName, err)
		return nil, wrapPersistence("next version", err)
	}

	schedule := s.newSchedule(facilityID, version, fileName, name, result)

	if prepare != nil {
		if err := prepare(lockedCtx, schedule); err != nil {
			if ctx.Err() != nil {
				return nil, s.cancelImport(fileName, ctx.Err())
			}
			s.recordImportFailure(ctx, importResultFor(err), fileName, err)
			return nil, err
		}
	}

	// Nothing has been written yet, so an abandoned upload leaves no trace.
	if err := ctx.Err(); err != nil {
		return nil, s.cancelImport(fileName, err)
	}

	if err := s.schedules.Save(lockedCtx, schedule); err != nil {
		s.recordImportFailure(ctx, metrics.ImportResultError, fileName, err)
		return nil, wrapPersistence("save schedule", err)
	}

	metrics.ImportsTotal.WithLabelValues(metrics.ImportResultSuccess).Inc()
	s.logger.Info("Imported schedule",
		zap.String("facility_id", facilityID.String()),
		zap.String("schedule_id", schedule.ID.String()),
		zap.Int("version", schedule.Version),
		zap.Int("lines", schedule.TotalLineCount),
		zap.Int("confirmed_changes", len(schedule.Changes)),
		zap.String("total_budget", schedule.TotalBudget.StringFixed(2)),
		zap.Int("warnings", len(result.Warnings)))

	message := fmt.Sprintf("Schedule %q imported for %s as version %d: %s",
		schedule.Name, facility.Code, schedule.Version, result.Stats.Summary())
	if schedule.Monitor != "" {
		message += fmt.Sprintf(" (%s, confirmed by %s)", schedule.ChangeDescription, schedule.Monitor)
	}
	s.notifier.Notify(ctx, NotifySuccess, message)

	return schedule, nil
}

// importResultFor labels a rejected confirmation for the imports metric.
func importResultFor(err error) string {
	var (
		validationErr *apperrors.ValidationError
		unbalancedErr *apperrors.UnbalancedChangesError
	)
	if errors.As(err, &validationErr) || errors.As(err, &unbalancedErr) || errors.Is(err, apperrors.ErrConflict) {
		return metrics.ImportResultInvalid
	}
	return metrics.ImportResultError
}

func (s *scheduleService) ingest(fileName string, data []byte, mode spreadsheet.Mode) (*spreadsheet.Result, error) {
	result, err := s.ingester.Ingest(fileName, data, mode)
	if err != nil {
		return nil, err
	}
	modeLabel := "full"
	if mode == spreadsheet.ModePreview {
		modeLabel = "preview"
	}
	metrics.RowsIngested.WithLabelValues(modeLabel).Observe(float64(result.Stats.TotalRows))
	return result, nil
}

func (s *scheduleService) newSchedule(facilityID uuid.UUID, version int, fileName, name string, result *spreadsheet.Result) *models.Schedule {
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	}

	schedule := &models.Schedule{
		ID:             uuid.New(),
		FacilityID:     facilityID,
		Version:        version,
		Name:           name,
		SourceFileName: filepath.Base(fileName),
		ImportedAt:     s.now(),
		TotalBudget:    result.Stats.TotalBudget,
		TotalLineCount: len(result.Items),
		Status:         models.ScheduleStatusActive,
		Lines:          result.Items,
	}
	for _, line := range result.Items {
		if line.StartDate != nil && (schedule.ProjectStartDate == nil || line.StartDate.Before(*schedule.ProjectStartDate)) {
			schedule.ProjectStartDate = line.StartDate
		}
		if line.EndDate != nil && (schedule.ProjectEndDate == nil || line.EndDate.After(*schedule.ProjectEndDate)) {
			schedule.ProjectEndDate = line.EndDate
		}
	}
	return schedule
}

func (s *scheduleService) cancelImport(fileName string, err error) error {
	metrics.ImportsTotal.WithLabelValues(metrics.ImportResultCanceled).Inc()
	s.logger.Info("Import canceled before persistence", zap.String("file", fileName), zap.Error(err))
	return err
}

func (s *scheduleService) recordImportFailure(ctx context.Context, result, fileName string, err error) {
	metrics.ImportsTotal.WithLabelValues(result).Inc()
	s.logger.Warn("Schedule import failed",
		zap.String("file", fileName),
		zap.String("result", result),
		zap.Error(err))
	s.notifier.Notify(ctx, NotifyError, fmt.Sprintf("Import of %s failed: %v", filepath.Base(fileName), err))
}

func (s *scheduleService) ValidateFile(ctx context.Context, fileName string, data []byte) (*ValidationReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := s.ingest(fileName, data, spreadsheet.ModePreview)
	if err != nil {
		return nil, err
	}

	report := &ValidationReport{
		Valid:         result.IsValid(),
		Stats:         result.Stats,
		Preview:       result.Preview(s.opts.PreviewRows),
		DisplayErrors: []string{},
		Errors:        result.Errors,
		Warnings:      result.Warnings,
	}
	if verr, ok := result.Err(s.opts.ErrorDisplayLimit).(*apperrors.ValidationError); ok {
		report.DisplayErrors, report.HiddenErrorCount = verr.Display()
	}
	return report, nil
}

func (s *scheduleService) PreviewChanges(ctx context.Context, facilityID uuid.UUID, fileName string, data []byte) (*ChangePreview, error) {
	current, err := s.GetCurrentSchedule(ctx, facilityID)
	if err != nil {
		return nil, err
	}

	result, err := s.ingest(fileName, data, spreadsheet.ModePreview)
	if err != nil {
		return nil, err
	}
	if verr := result.Err(s.opts.ErrorDisplayLimit); verr != nil {
		return nil, verr
	}

	preview := &ChangePreview{
		Stats:    result.Stats,
		Warnings: result.Warnings,
	}
	var base []*models.LineItem
	if current != nil {
		base = current.Lines
		preview.BaseScheduleID = &current.ID
		preview.BaseVersion = current.Version
	}
	preview.Diff = s.differ.Diff(base, result.Items)
	preview.Diff.OldScheduleID = preview.BaseScheduleID
	metrics.DiffsTotal.WithLabelValues(strconv.FormatBool(preview.Diff.IsBalanced)).Inc()

	return preview, nil
}

// ============================================================================
// Queries
// ============================================================================

func (s *scheduleService) GetSchedule(ctx context.Context, scheduleID uuid.UUID) (*models.Schedule, error) {
	schedule, err := s.schedules.FindByID(ctx, scheduleID)
	if err != nil {
		return nil, wrapPersistence("get schedule", err)
	}
	return schedule, nil
}

func (s *scheduleService) GetCurrentSchedule(ctx context.Context, facilityID uuid.UUID) (*models.Schedule, error) {
	versions, err := s.facilityVersions(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if !v.IsArchived() {
			return s.GetSchedule(ctx, v.ID)
		}
	}
	return nil, nil
}

func (s *scheduleService) ListVersions(ctx context.Context, facilityID uuid.UUID) ([]*models.ScheduleVersion, error) {
	schedules, err := s.facilityVersions(ctx, facilityID)
	if err != nil {
		return nil, err
	}

	versions := make([]*models.ScheduleVersion, 0, len(schedules))
	seenCurrent := false
	for _, sch := range schedules {
		state := models.VersionStateSuperseded
		switch {
		case sch.IsArchived():
			state = models.VersionStateArchived
		case !seenCurrent:
			state = models.VersionStateCurrent
			seenCurrent = true
		}
		versions = append(versions, &models.ScheduleVersion{Schedule: sch, State: state})
	}
	return versions, nil
}

// facilityVersions checks the facility exists and returns its schedules,
// newest version first.
func (s *scheduleService) facilityVersions(ctx context.Context, facilityID uuid.UUID) ([]*models.Schedule, error) {
	if _, err := s.facilities.GetByID(ctx, facilityID); err != nil {
		return nil, wrapPersistence("get facility", err)
	}
	schedules, err := s.schedules.FindByFacility(ctx, facilityID)
	if err != nil {
		return nil, wrapPersistence("list schedules", err)
	}
	return schedules, nil
}

func (s *scheduleService) GetStats(ctx context.Context, scheduleID uuid.UUID) (*models.ScheduleStats, error) {
	schedule, err := s.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	stats := &models.ScheduleStats{
		ScheduleID:     schedule.ID,
		TotalBudget:    schedule.TotalBudget,
		TotalLineCount: len(schedule.Lines),
		CountsByDepth:  make(map[int]int),
	}
	if schedule.ProjectStartDate != nil && schedule.ProjectEndDate != nil {
		stats.DurationDays = ceilDays(schedule.ProjectEndDate.Sub(*schedule.ProjectStartDate))
	}

	var longest time.Duration
	for _, line := range schedule.Lines {
		stats.CountsByDepth[line.Depth]++
		if stats.MostExpensiveLine == nil || line.TotalPrice.GreaterThan(stats.MostExpensiveLine.TotalPrice) {
			stats.MostExpensiveLine = line
		}
		if line.IsScheduled() && (stats.LongestDurationLine == nil || line.Duration() > longest) {
			stats.LongestDurationLine = line
			longest = line.Duration()
		}
	}
	return stats, nil
}

// ceilDays rounds a duration up to whole days.
func ceilDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

func (s *scheduleService) CompareVersions(ctx context.Context, oldScheduleID, newScheduleID uuid.UUID) (*models.DiffResult, error) {
	oldSchedule, err := s.GetSchedule(ctx, oldScheduleID)
	if err != nil {
		return nil, fmt.Errorf("old schedule %s: %w", oldScheduleID, err)
	}
	newSchedule, err := s.GetSchedule(ctx, newScheduleID)
	if err != nil {
		return nil, fmt.Errorf("new schedule %s: %w", newScheduleID, err)
	}

	diff := s.differ.Diff(oldSchedule.Lines, newSchedule.Lines)
	diff.OldScheduleID = &oldSchedule.ID
	diff.NewScheduleID = &newSchedule.ID
	metrics.DiffsTotal.WithLabelValues(strconv.FormatBool(diff.IsBalanced)).Inc()

	s.logger.Debug("Compared schedule versions",
		zap.String("old", oldScheduleID.String()),
		zap.String("new", newScheduleID.String()),
		zap.Int("changes", diff.ChangeCount()),
		zap.Bool("balanced", diff.IsBalanced))
	return diff, nil
}

func (s *scheduleService) SearchLines(ctx context.Context, scheduleID uuid.UUID, filter models.LineFilter) ([]*models.LineItem, error) {
	schedule, err := s.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	code := strings.ToLower(filter.Code)
	description := strings.ToLower(filter.Description)
	filterCost := filter.MinCost != nil || filter.MaxCost != nil

	matches := make([]*models.LineItem, 0)
	for _, node := range s.calculator.Tree(schedule.Lines) {
		line := node.LineItem
		if code != "" && !strings.Contains(strings.ToLower(line.HierarchicalCode), code) {
			continue
		}
		if description != "" && !strings.Contains(strings.ToLower(line.Description), description) {
			continue
		}
		if filter.Depth > 0 && line.Depth != filter.Depth {
			continue
		}
		if !overlapsDates(line, filter.From, filter.To) {
			continue
		}
		if filterCost {
			if filter.MinCost != nil && node.DisplayTotal.LessThan(*filter.MinCost) {
				continue
			}
			if filter.MaxCost != nil && node.DisplayTotal.GreaterThan(*filter.MaxCost) {
				continue
			}
		}
		matches = append(matches, line)
	}
	return matches, nil
}

// overlapsDates reports whether the line's [start, end] touches [from, to].
// Either bound may be open. Lines without dates never match a date filter.
func overlapsDates(line *models.LineItem, from, to *time.Time) bool {
	if from == nil && to == nil {
		return true
	}
	if !line.IsScheduled() {
		return false
	}
	if from != nil && line.EndDate.Before(*from) {
		return false
	}
	if to != nil && line.StartDate.After(*to) {
		return false
	}
	return true
}

func (s *scheduleService) GetTree(ctx context.Context, scheduleID uuid.UUID) ([]models.TreeNode, error) {
	schedule, err := s.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	return s.calculator.Tree(schedule.Lines), nil
}

// ============================================================================
// Lifecycle
// ============================================================================

func (s *scheduleService) ArchiveSchedule(ctx context.Context, scheduleID uuid.UUID) (*models.Schedule, error) {
	schedule, err := s.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if schedule.IsArchived() {
		return schedule, nil
	}

	at := s.now()
	if err := s.schedules.Archive(ctx, scheduleID, at); err != nil {
		return nil, wrapPersistence("archive schedule", err)
	}
	schedule.Status = models.ScheduleStatusArchived
	schedule.ArchivedAt = &at

	s.logger.Info("Archived schedule",
		zap.String("schedule_id", scheduleID.String()),
		zap.Int("version", schedule.Version))
	s.notifier.Notify(ctx, NotifySuccess, fmt.Sprintf("Schedule version %d archived", schedule.Version))
	return schedule, nil
}

func (s *scheduleService) PurgeSchedule(ctx context.Context, scheduleID uuid.UUID) error {
	if err := s.schedules.Delete(ctx, scheduleID); err != nil {
		return wrapPersistence("delete schedule", err)
	}
	s.logger.Info("Purged schedule", zap.String("schedule_id", scheduleID.String()))
	s.notifier.Notify(ctx, NotifySuccess, "Schedule deleted permanently")
	return nil
}

// wrapPersistence passes domain errors through and marks everything else as
// a storage failure. Storage failures are not retried here.
func wrapPersistence(op string, err error) error {
	if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrConflict) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &apperrors.PersistenceError{Op: op, Err: err}
}
