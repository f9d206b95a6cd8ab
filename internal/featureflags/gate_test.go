package featureflags

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aprovia/aprovia-backend/pkg/db/models"
	pkgerrors "github.com/aprovia/aprovia-backend/pkg/errors"
	"github.com/aprovia/aprovia-backend/pkg/logger"
)

type stubFlagRepo struct {
	flags map[string]*models.FeatureFlag
	err   error

	upserted *models.FeatureFlag
	deleted  string
}

func (s *stubFlagRepo) FindFlag(_ context.Context, name string) (*models.FeatureFlag, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.flags[name], nil
}

func (s *stubFlagRepo) ListFlags(_ context.Context) ([]models.FeatureFlag, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.FeatureFlag, 0, len(s.flags))
	for _, f := range s.flags {
		out = append(out, *f)
	}
	return out, nil
}

func (s *stubFlagRepo) UpsertFlag(_ context.Context, flag *models.FeatureFlag) error {
	if s.err != nil {
		return s.err
	}
	s.upserted = flag
	return nil
}

func (s *stubFlagRepo) DeleteFlag(_ context.Context, name string) error {
	if s.err != nil {
		return s.err
	}
	s.deleted = name
	return nil
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newFlagService(t *testing.T, repo *stubFlagRepo) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Repo: repo, Log: quietLogger()})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return svc
}

func TestEnabledReadsFlag(t *testing.T) {
	repo := &stubFlagRepo{flags: map[string]*models.FeatureFlag{
		"heavy_user_escape_valve": {Name: "heavy_user_escape_valve", Enabled: true},
		"continuous_mode":         {Name: "continuous_mode", Enabled: false},
	}}
	svc := newFlagService(t, repo)
	ctx := context.Background()

	if !svc.Enabled(ctx, "heavy_user_escape_valve") {
		t.Fatal("expected enabled flag to read true")
	}
	if svc.Enabled(ctx, "continuous_mode") {
		t.Fatal("expected disabled flag to read false")
	}
}

func TestEnabledMissingFlagReadsFalse(t *testing.T) {
	svc := newFlagService(t, &stubFlagRepo{flags: map[string]*models.FeatureFlag{}})
	if svc.Enabled(context.Background(), "never_created") {
		t.Fatal("expected missing flag to read false")
	}
}

func TestEnabledFailsClosedOnStorageError(t *testing.T) {
	svc := newFlagService(t, &stubFlagRepo{err: errors.New("connection refused")})
	if svc.Enabled(context.Background(), "heavy_user_escape_valve") {
		t.Fatal("expected storage error to read false")
	}
}

func TestSetValidatesName(t *testing.T) {
	svc := newFlagService(t, &stubFlagRepo{})
	err := svc.Set(context.Background(), &models.FeatureFlag{})
	var appErr *pkgerrors.Error
	if !errors.As(err, &appErr) || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSetUpserts(t *testing.T) {
	repo := &stubFlagRepo{}
	svc := newFlagService(t, repo)
	flag := &models.FeatureFlag{Name: "continuous_mode", Enabled: true}

	if err := svc.Set(context.Background(), flag); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.upserted != flag {
		t.Fatal("expected flag to reach the repository")
	}
}

func TestDeleteForwardsName(t *testing.T) {
	repo := &stubFlagRepo{}
	svc := newFlagService(t, repo)

	if err := svc.Delete(context.Background(), "continuous_mode"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.deleted != "continuous_mode" {
		t.Fatalf("expected delete of continuous_mode, got %q", repo.deleted)
	}
}
