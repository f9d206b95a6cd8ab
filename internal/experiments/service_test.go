package experiments

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aprovia/aprovia-backend/pkg/db/models"
	"github.com/aprovia/aprovia-backend/pkg/enums"
	pkgerrors "github.com/aprovia/aprovia-backend/pkg/errors"
	"github.com/aprovia/aprovia-backend/pkg/logger"
)

type stubExperimentRepo struct {
	experiments map[string]*models.Experiment
	assignments map[string]*models.ExperimentAssignment
	metrics     []*models.ExperimentMetric

	findErr         error
	createAssignErr error
	assignCreates   int
}

func newStubExperimentRepo() *stubExperimentRepo {
	return &stubExperimentRepo{
		experiments: map[string]*models.Experiment{},
		assignments: map[string]*models.ExperimentAssignment{},
	}
}

func assignmentKey(experimentID, userID uuid.UUID) string {
	return experimentID.String() + "/" + userID.String()
}

func (s *stubExperimentRepo) FindExperimentByName(_ context.Context, name string) (*models.Experiment, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.experiments[name], nil
}

func (s *stubExperimentRepo) ListExperiments(_ context.Context) ([]models.Experiment, error) {
	out := make([]models.Experiment, 0, len(s.experiments))
	for _, e := range s.experiments {
		out = append(out, *e)
	}
	return out, nil
}

func (s *stubExperimentRepo) CreateExperiment(_ context.Context, experiment *models.Experiment) error {
	if experiment.ID == uuid.Nil {
		experiment.ID = uuid.New()
	}
	s.experiments[experiment.Name] = experiment
	return nil
}

func (s *stubExperimentRepo) UpdateExperiment(_ context.Context, experiment *models.Experiment) error {
	s.experiments[experiment.Name] = experiment
	return nil
}

func (s *stubExperimentRepo) FindAssignment(_ context.Context, experimentID, userID uuid.UUID) (*models.ExperimentAssignment, error) {
	return s.assignments[assignmentKey(experimentID, userID)], nil
}

func (s *stubExperimentRepo) CreateAssignment(_ context.Context, assignment *models.ExperimentAssignment) error {
	if s.createAssignErr != nil {
		return s.createAssignErr
	}
	key := assignmentKey(assignment.ExperimentID, assignment.UserID)
	if _, ok := s.assignments[key]; ok {
		return errors.New(`duplicate key value violates unique constraint "idx_assignment_experiment_user"`)
	}
	s.assignments[key] = assignment
	s.assignCreates++
	return nil
}

func (s *stubExperimentRepo) CreateMetric(_ context.Context, metric *models.ExperimentMetric) error {
	s.metrics = append(s.metrics, metric)
	return nil
}

func hashExperiment(name string, controlPct int) *models.Experiment {
	return &models.Experiment{
		ID:                 uuid.New(),
		Name:               name,
		Enabled:            true,
		ControlPercentage:  controlPct,
		VariantPercentage:  100 - controlPct,
		AssignmentStrategy: enums.AssignmentStrategyHashModulo,
	}
}

func newExperimentService(t *testing.T, repo Repository, randInt func(int) int) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:    repo,
		Clock:   func() time.Time { return time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC) },
		RandInt: randInt,
		Log:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return svc
}

// userWithBucket fabricates a uuid whose leading four bytes land in the given
// hash bucket.
func userWithBucket(bucket int) uuid.UUID {
	var id uuid.UUID = uuid.New()
	binary.BigEndian.PutUint32(id[:4], uint32(bucket))
	return id
}

func TestAssignHashModuloIsDeterministic(t *testing.T) {
	repo := newStubExperimentRepo()
	repo.experiments["daily_session_limit"] = hashExperiment("daily_session_limit", 50)
	svc := newExperimentService(t, repo, nil)
	ctx := context.Background()

	control := userWithBucket(10)
	variant := userWithBucket(73)

	a, err := svc.Assign(ctx, "daily_session_limit", control)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Group != enums.ExperimentGroupControl || !a.IsNew {
		t.Fatalf("expected new control assignment, got %+v", a)
	}

	b, err := svc.Assign(ctx, "daily_session_limit", variant)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Group != enums.ExperimentGroupVariant {
		t.Fatalf("expected variant assignment, got %+v", b)
	}
}

func TestAssignIsSticky(t *testing.T) {
	repo := newStubExperimentRepo()
	experiment := hashExperiment("daily_session_limit", 100)
	repo.experiments["daily_session_limit"] = experiment
	svc := newExperimentService(t, repo, nil)
	ctx := context.Background()
	userID := userWithBucket(40)

	first, err := svc.Assign(ctx, "daily_session_limit", userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Group != enums.ExperimentGroupControl || !first.IsNew {
		t.Fatalf("expected new control assignment, got %+v", first)
	}

	// Flip the split completely; the persisted row must still win.
	experiment.ControlPercentage = 0
	experiment.VariantPercentage = 100

	second, err := svc.Assign(ctx, "daily_session_limit", userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Group != enums.ExperimentGroupControl || second.IsNew {
		t.Fatalf("expected sticky control assignment, got %+v", second)
	}
	if repo.assignCreates != 1 {
		t.Fatalf("expected exactly one assignment row, got %d", repo.assignCreates)
	}
}

func TestAssignMissingOrStoppedExperimentDegrades(t *testing.T) {
	repo := newStubExperimentRepo()
	disabled := hashExperiment("old_test", 50)
	disabled.Enabled = false
	repo.experiments["old_test"] = disabled

	ended := hashExperiment("ended_test", 50)
	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ended.EndsAt = &past
	repo.experiments["ended_test"] = ended

	svc := newExperimentService(t, repo, nil)
	ctx := context.Background()

	for _, name := range []string{"never_created", "old_test", "ended_test"} {
		a, err := svc.Assign(ctx, name, uuid.New())
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if a.Assigned() {
			t.Fatalf("%s: expected no group, got %+v", name, a)
		}
	}
}

func TestAssignRandomUsesDraw(t *testing.T) {
	repo := newStubExperimentRepo()
	experiment := hashExperiment("random_test", 30)
	experiment.AssignmentStrategy = enums.AssignmentStrategyRandom
	repo.experiments["random_test"] = experiment

	draw := 29
	svc := newExperimentService(t, repo, func(int) int { return draw })
	ctx := context.Background()

	a, err := svc.Assign(ctx, "random_test", uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Group != enums.ExperimentGroupControl {
		t.Fatalf("expected draw 29 < 30 to land in control, got %+v", a)
	}

	draw = 30
	b, err := svc.Assign(ctx, "random_test", uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Group != enums.ExperimentGroupVariant {
		t.Fatalf("expected draw 30 to land in variant, got %+v", b)
	}
}

func TestAssignManualDefaultsToControl(t *testing.T) {
	repo := newStubExperimentRepo()
	experiment := hashExperiment("manual_test", 50)
	experiment.AssignmentStrategy = enums.AssignmentStrategyManual
	repo.experiments["manual_test"] = experiment
	svc := newExperimentService(t, repo, nil)

	a, err := svc.Assign(context.Background(), "manual_test", uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Group != enums.ExperimentGroupControl {
		t.Fatalf("expected control, got %+v", a)
	}
}

func TestAssignLosesRaceGracefully(t *testing.T) {
	repo := newStubExperimentRepo()
	experiment := hashExperiment("raced_test", 50)
	repo.experiments["raced_test"] = experiment
	userID := userWithBucket(80)

	// The concurrent winner's row is already present, and our own insert
	// reports the unique violation.
	repo.assignments[assignmentKey(experiment.ID, userID)] = &models.ExperimentAssignment{
		ExperimentID: experiment.ID,
		UserID:       userID,
		Group:        enums.ExperimentGroupControl,
	}

	// First lookup misses, insert collides, re-fetch finds the winner.
	svc := newExperimentService(t, &racingRepo{stubExperimentRepo: repo}, nil)

	a, err := svc.Assign(context.Background(), "raced_test", userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Group != enums.ExperimentGroupControl || a.IsNew {
		t.Fatalf("expected the winner's control row, got %+v", a)
	}
}

// racingRepo misses the first assignment lookup to force the insert path.
type racingRepo struct {
	*stubExperimentRepo
	lookups int
}

func (r *racingRepo) FindAssignment(ctx context.Context, experimentID, userID uuid.UUID) (*models.ExperimentAssignment, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, nil
	}
	return r.stubExperimentRepo.FindAssignment(ctx, experimentID, userID)
}

func TestGetConfigReturnsGroupAndMetadata(t *testing.T) {
	repo := newStubExperimentRepo()
	experiment := hashExperiment("daily_session_limit", 100)
	experiment.Metadata = json.RawMessage(`{"variant": {"sessions_per_day": 4}}`)
	repo.experiments["daily_session_limit"] = experiment
	svc := newExperimentService(t, repo, nil)

	cfg, err := svc.GetConfig(context.Background(), "daily_session_limit", uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Group != enums.ExperimentGroupControl {
		t.Fatalf("expected control, got %+v", cfg)
	}
	if string(cfg.Metadata) != string(experiment.Metadata) {
		t.Fatalf("expected full metadata blob, got %s", cfg.Metadata)
	}
}

func TestSessionLimitOverride(t *testing.T) {
	repo := newStubExperimentRepo()
	experiment := hashExperiment("daily_session_limit", 0) // everyone lands in variant
	experiment.Metadata = json.RawMessage(`{"variant": {"sessions_per_day": 4}}`)
	repo.experiments["daily_session_limit"] = experiment
	svc := newExperimentService(t, repo, nil)

	limit, ok, err := svc.SessionLimitOverride(context.Background(), "daily_session_limit", uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || limit != 4 {
		t.Fatalf("expected override 4, got ok=%v limit=%d", ok, limit)
	}
}

func TestSessionLimitOverrideAbsentForControl(t *testing.T) {
	repo := newStubExperimentRepo()
	experiment := hashExperiment("daily_session_limit", 100) // everyone lands in control
	experiment.Metadata = json.RawMessage(`{"variant": {"sessions_per_day": 4}}`)
	repo.experiments["daily_session_limit"] = experiment
	svc := newExperimentService(t, repo, nil)

	_, ok, err := svc.SessionLimitOverride(context.Background(), "daily_session_limit", uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no override for control")
	}
}

func TestSessionLimitOverrideStoppedExperiment(t *testing.T) {
	repo := newStubExperimentRepo()
	svc := newExperimentService(t, repo, nil)

	_, ok, err := svc.SessionLimitOverride(context.Background(), "daily_session_limit", uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no override for a missing experiment")
	}
}

func TestRecordMetricRequiresAssignment(t *testing.T) {
	repo := newStubExperimentRepo()
	experiment := hashExperiment("checkout_test", 50)
	repo.experiments["checkout_test"] = experiment
	svc := newExperimentService(t, repo, nil)
	ctx := context.Background()
	userID := uuid.New()

	ok, err := svc.RecordMetric(ctx, "checkout_test", userID, "sessions_started", 1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no-op for unassigned user")
	}
	if len(repo.metrics) != 0 {
		t.Fatal("expected no metric row")
	}

	if _, err := svc.Assign(ctx, "checkout_test", userID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, err = svc.RecordMetric(ctx, "checkout_test", userID, "sessions_started", 1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || len(repo.metrics) != 1 {
		t.Fatalf("expected one metric row, got ok=%v count=%d", ok, len(repo.metrics))
	}
	if repo.metrics[0].Group == "" {
		t.Fatal("expected metric tagged with the user's group")
	}
}

func TestRecordMetricMissingExperimentDegrades(t *testing.T) {
	svc := newExperimentService(t, newStubExperimentRepo(), nil)
	ok, err := svc.RecordMetric(context.Background(), "never_created", uuid.New(), "anything", 1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected false for a missing experiment")
	}
}

func TestCreateValidates(t *testing.T) {
	svc := newExperimentService(t, newStubExperimentRepo(), nil)
	ctx := context.Background()

	cases := []*models.Experiment{
		nil,
		{Name: "", AssignmentStrategy: enums.AssignmentStrategyHashModulo},
		{Name: "x", AssignmentStrategy: enums.AssignmentStrategy("bogus"), ControlPercentage: 50, VariantPercentage: 50},
		{Name: "x", AssignmentStrategy: enums.AssignmentStrategyHashModulo, ControlPercentage: 60, VariantPercentage: 60},
	}
	for _, experiment := range cases {
		err := svc.Create(ctx, experiment)
		var appErr *pkgerrors.Error
		if !errors.As(err, &appErr) || appErr.Code() != pkgerrors.CodeValidation {
			t.Fatalf("expected validation error for %+v, got %v", experiment, err)
		}
	}
}

func TestCreateRejectsDuplicate(t *testing.T) {
	repo := newStubExperimentRepo()
	repo.experiments["daily_session_limit"] = hashExperiment("daily_session_limit", 50)
	svc := newExperimentService(t, repo, nil)

	err := svc.Create(context.Background(), hashExperiment("daily_session_limit", 50))
	var appErr *pkgerrors.Error
	if !errors.As(err, &appErr) || appErr.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict error, got %v", err)
	}
}
