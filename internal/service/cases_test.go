package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxr-assist-server/internal/domain"
	"github.com/cxr-assist-server/internal/review"
)

// memoryRepo is an in-memory CaseRepository for service tests.
type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	cases  map[int64]*domain.Case
	audit  []domain.AuditEntry
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{cases: map[int64]*domain.Case{}}
}

func (r *memoryRepo) CreateCase(ctx context.Context, c *domain.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c.ID = r.nextID
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	copied := *c
	r.cases[c.ID] = &copied
	return nil
}

func (r *memoryRepo) GetCase(ctx context.Context, id int64) (*domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[id]
	if !ok {
		return nil, domain.ErrCaseNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *memoryRepo) ListCases(ctx context.Context, filter domain.CaseFilter) ([]*domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Case
	for _, c := range r.cases {
		if filter.ClinicianID != "" && c.ClinicianID != filter.ClinicianID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memoryRepo) UpdateCase(ctx context.Context, id int64, update domain.CaseUpdate) (*domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[id]
	if !ok {
		return nil, domain.ErrCaseNotFound
	}
	update.Apply(c)
	copied := *c
	return &copied, nil
}

func (r *memoryRepo) DeleteCase(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cases[id]; !ok {
		return domain.ErrCaseNotFound
	}
	delete(r.cases, id)
	return nil
}

func (r *memoryRepo) CountCases(ctx context.Context, clinicianID string, monthStart time.Time) (*domain.CaseCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := &domain.CaseCounts{ByStatus: map[domain.CaseStatus]int64{}}
	for _, c := range r.cases {
		if clinicianID != "" && c.ClinicianID != clinicianID {
			continue
		}
		counts.Total++
		counts.ByStatus[c.Status]++
		if c.Status == domain.CaseActive {
			counts.Active++
		}
		if !c.CreatedAt.Before(monthStart) {
			counts.ThisMonth++
		}
	}
	return counts, nil
}

func (r *memoryRepo) LogAction(ctx context.Context, entry *domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = int64(len(r.audit) + 1)
	r.audit = append(r.audit, *entry)
	return nil
}

func (r *memoryRepo) RecentActivity(ctx context.Context, clinicianID string, limit int) ([]domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditEntry
	for i := len(r.audit) - 1; i >= 0 && len(out) < limit; i-- {
		if clinicianID == "" || r.audit[i].ClinicianID == clinicianID {
			out = append(out, r.audit[i])
		}
	}
	return out, nil
}

func (r *memoryRepo) Ping(ctx context.Context) error { return nil }
func (r *memoryRepo) Close() error                   { return nil }

func (r *memoryRepo) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.audit))
	for i, e := range r.audit {
		out[i] = e.Action
	}
	return out
}

type memoryReviews struct {
	reviews map[int64]*review.Review
}

func (m *memoryReviews) Save(ctx context.Context, r *review.Review) error {
	if m.reviews == nil {
		m.reviews = map[int64]*review.Review{}
	}
	r.ID = r.CaseID
	copied := *r
	m.reviews[r.CaseID] = &copied
	return nil
}

func (m *memoryReviews) Get(ctx context.Context, caseID int64) (*review.Review, error) {
	r, ok := m.reviews[caseID]
	if !ok {
		return nil, nil
	}
	return r, nil
}

type recordingPublisher struct {
	events []Event
}

func (p *recordingPublisher) Publish(e Event) { p.events = append(p.events, e) }

type stubReporter struct{}

func (stubReporter) GenerateReport(ctx context.Context, c *domain.Case) (string, error) {
	return "REPORT: " + c.PrimaryDiagnosis(), nil
}

func newTestCaseService(t *testing.T, opts ...CaseServiceOption) (*CaseService, *memoryRepo) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	repo := newMemoryRepo()
	return NewCaseService(repo, newTestScorer(t), logger, opts...), repo
}

func TestCaseService_CreateAndGet(t *testing.T) {
	pub := &recordingPublisher{}
	svc, repo := newTestCaseService(t, WithEventPublisher(pub))
	ctx := context.Background()

	c, err := svc.Create(ctx, CaseDraft{
		ClinicianID: "dr-a",
		PatientID:   "p1",
		Image:       imageAnalysisFixture(t),
	})
	require.NoError(t, err)
	assert.NotZero(t, c.ID)
	require.NotNil(t, c.Risk)
	assert.Equal(t, domain.RiskBandModerate, c.Risk.Band)

	got, err := svc.Get(ctx, c.ID, "dr-a")
	require.NoError(t, err)
	assert.Equal(t, "Right lower lobe pneumonia", got.PrimaryDiagnosis())

	_, err = svc.Get(ctx, c.ID, "dr-b")
	assert.ErrorIs(t, err, domain.ErrCaseNotFound, "other clinicians cannot see the case")

	assert.Equal(t, []string{domain.ActionCreateCase}, repo.actions())
	require.Len(t, pub.events, 1)
	assert.Equal(t, EventCaseCreated, pub.events[0].Type)
}

func TestCaseService_EventsCarryCaseOwner(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newTestCaseService(t, WithEventPublisher(pub))
	ctx := context.Background()

	c, err := svc.Create(ctx, CaseDraft{ClinicianID: "dr-a", PatientID: "p1"})
	require.NoError(t, err)

	title := "Follow-up film"
	_, err = svc.Update(ctx, c.ID, "", domain.CaseUpdate{Title: &title})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, c.ID, ""))

	require.Len(t, pub.events, 3)
	for _, e := range pub.events {
		assert.Equal(t, "dr-a", e.ClinicianID, e.Type)
	}
}

func TestCaseService_Update(t *testing.T) {
	svc, repo := newTestCaseService(t)
	ctx := context.Background()
	c, err := svc.Create(ctx, CaseDraft{ClinicianID: "dr-a"})
	require.NoError(t, err)

	title := "Follow-up film"
	closed := domain.CaseClosed
	updated, err := svc.Update(ctx, c.ID, "dr-a", domain.CaseUpdate{Title: &title, Status: &closed})
	require.NoError(t, err)
	assert.Equal(t, "Follow-up film", updated.Title)
	assert.Equal(t, domain.CaseClosed, updated.Status)

	_, err = svc.Update(ctx, c.ID, "dr-a", domain.CaseUpdate{})
	assert.ErrorIs(t, err, domain.ErrEmptyUpdate)

	bogus := domain.CaseStatus("deleted")
	_, err = svc.Update(ctx, c.ID, "dr-a", domain.CaseUpdate{Status: &bogus})
	assert.True(t, domain.IsValidationError(err))

	assert.Equal(t, []string{domain.ActionCreateCase, domain.ActionUpdateCase}, repo.actions())
}

func TestCaseService_Delete(t *testing.T) {
	svc, _ := newTestCaseService(t)
	ctx := context.Background()
	c, err := svc.Create(ctx, CaseDraft{ClinicianID: "dr-a"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, c.ID, "dr-b"), domain.ErrCaseNotFound)
	require.NoError(t, svc.Delete(ctx, c.ID, "dr-a"))

	_, err = svc.Get(ctx, c.ID, "")
	assert.ErrorIs(t, err, domain.ErrCaseNotFound)
}

func TestCaseService_SummaryAndExport(t *testing.T) {
	svc, repo := newTestCaseService(t)
	ctx := context.Background()
	c, err := svc.Create(ctx, CaseDraft{PatientID: "p5", Symptoms: domain.Symptoms{"cough"}})
	require.NoError(t, err)

	summary, err := svc.Summary(ctx, c.ID, "")
	require.NoError(t, err)
	assert.Contains(t, summary, "Patient ID: p5 | Symptoms: cough | Created: ")

	out, err := svc.Export(ctx, c.ID, "", ExportCSV)
	require.NoError(t, err)
	assert.Equal(t, "csv", out.Extension)

	all, err := svc.ExportAll(ctx, domain.CaseFilter{}, ExportJSON)
	require.NoError(t, err)
	assert.Contains(t, string(all.Data), `"patient_id": "p5"`)

	assert.Equal(t, []string{domain.ActionCreateCase, domain.ActionExportCase, domain.ActionExportCase}, repo.actions())
}

func TestCaseService_List_RejectsUnknownStatus(t *testing.T) {
	svc, _ := newTestCaseService(t)

	_, err := svc.List(context.Background(), domain.CaseFilter{Status: "pending"})
	assert.True(t, domain.IsValidationError(err))
}

func TestCaseService_Statistics(t *testing.T) {
	svc, _ := newTestCaseService(t)
	ctx := context.Background()

	for _, dx := range []string{"Pneumonia", "Pneumonia", "Effusion", "Pneumonia", "Effusion", "Edema"} {
		image := imageAnalysisFixture(t)
		image.OverallAssessment.PrimaryDiagnosis = dx
		_, err := svc.Create(ctx, CaseDraft{ClinicianID: "dr-a", Image: image})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, CaseDraft{ClinicianID: "dr-b"})
	require.NoError(t, err)

	stats, err := svc.Statistics(ctx, "dr-a")
	require.NoError(t, err)

	assert.Equal(t, int64(6), stats.Total)
	assert.Equal(t, int64(6), stats.Active)
	assert.Equal(t, int64(6), stats.ThisMonth)
	assert.Equal(t, []domain.DiagnosisCount{
		{Diagnosis: "Pneumonia", Count: 3},
		{Diagnosis: "Effusion", Count: 2},
		{Diagnosis: "Edema", Count: 1},
	}, stats.TopDiagnoses)
	assert.Len(t, stats.RecentActivity, 6)
}

func TestCaseService_Reviews(t *testing.T) {
	pub := &recordingPublisher{}
	svc, repo := newTestCaseService(t, WithReviewStore(&memoryReviews{}), WithEventPublisher(pub))
	ctx := context.Background()
	c, err := svc.Create(ctx, CaseDraft{ClinicianID: "dr-a", Image: imageAnalysisFixture(t)})
	require.NoError(t, err)

	_, err = svc.GetReview(ctx, c.ID, "dr-a")
	assert.ErrorIs(t, err, domain.ErrReviewNotFound)

	_, err = svc.SaveReview(ctx, c.ID, "dr-a", &review.Review{Verdict: "maybe"})
	assert.True(t, domain.IsValidationError(err))

	saved, err := svc.SaveReview(ctx, c.ID, "dr-a", &review.Review{Verdict: review.VerdictAgree})
	require.NoError(t, err)
	assert.Equal(t, "Right lower lobe pneumonia", saved.AIDiagnosis)
	assert.Equal(t, "dr-a", saved.ClinicianID)

	got, err := svc.GetReview(ctx, c.ID, "dr-a")
	require.NoError(t, err)
	assert.Equal(t, review.VerdictAgree, got.Verdict)

	reloaded, err := svc.Get(ctx, c.ID, "dr-a")
	require.NoError(t, err)
	assert.Equal(t, domain.CaseReviewed, reloaded.Status)

	assert.Contains(t, repo.actions(), domain.ActionReviewCase)
	assert.Equal(t, EventCaseReviewed, pub.events[len(pub.events)-1].Type)
}

func TestCaseService_Report(t *testing.T) {
	svc, _ := newTestCaseService(t)
	ctx := context.Background()
	c, err := svc.Create(ctx, CaseDraft{Image: imageAnalysisFixture(t)})
	require.NoError(t, err)

	_, err = svc.Report(ctx, c.ID, "")
	assert.True(t, errors.Is(err, domain.ErrAnalyzerUnavailable))

	withReporter, repo := newTestCaseService(t, WithReportGenerator(stubReporter{}))
	c2, err := withReporter.Create(ctx, CaseDraft{Image: imageAnalysisFixture(t)})
	require.NoError(t, err)
	require.NotNil(t, repo)

	report, err := withReporter.Report(ctx, c2.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "REPORT: Right lower lobe pneumonia", report)
}

func TestTopDiagnoses_Limit(t *testing.T) {
	var cases []*domain.Case
	for _, dx := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		cases = append(cases, &domain.Case{AIDiagnosis: &domain.Diagnosis{
			IntegratedDiagnosis: &domain.IntegratedDiagnosis{PrimaryDiagnosis: dx},
		}})
	}
	cases = append(cases, &domain.Case{})

	got := topDiagnoses(cases, 5)

	require.Len(t, got, 5)
	assert.Equal(t, "a", got[0].Diagnosis)
}
