package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusops/registrar-api/internal/models"
	appErrors "github.com/campusops/registrar-api/pkg/errors"
)

type gradeRepoStub struct {
	enrollments map[string]*models.Enrollment
	completed   []models.CompletedCourse
	grades      []string
	raceLost    bool
	finalized   []string
}

func (m *gradeRepoStub) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		found := *e
		return &found, nil
	}
	return nil, sql.ErrNoRows
}

func (m *gradeRepoStub) FinalizeGrade(ctx context.Context, id, grade, gradedBy string, gradedAt time.Time) error {
	if m.raceLost {
		return sql.ErrNoRows
	}
	e, ok := m.enrollments[id]
	if !ok || e.Status != models.EnrollmentStatusEnrolled {
		return sql.ErrNoRows
	}
	e.Status = models.EnrollmentStatusCompleted
	e.Grade = &grade
	e.GradedBy = &gradedBy
	e.GradedAt = &gradedAt
	m.finalized = append(m.finalized, id)
	return nil
}

func (m *gradeRepoStub) ListCompleted(ctx context.Context, studentID string) ([]models.CompletedCourse, error) {
	return m.completed, nil
}

func (m *gradeRepoStub) SectionGrades(ctx context.Context, sectionID string) ([]string, error) {
	return m.grades, nil
}

type gradeTransferStub struct {
	approved []models.TransferCredit
}

func (m *gradeTransferStub) ListApproved(ctx context.Context, studentID string) ([]models.TransferCredit, error) {
	return m.approved, nil
}

type trailStub struct {
	logs []*models.AuditLog
}

func (m *trailStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func newGradeServiceForTest(repo *gradeRepoStub, transfers *gradeTransferStub, trail *trailStub) *GradeService {
	sections := &mockSectionRepo{sections: map[string]*models.SectionDetail{
		"sec1": {
			CourseSection: models.CourseSection{ID: "sec1", CourseID: "crs-algo", TermID: "t1"},
			SubjectCode:   "CS",
			CourseNumber:  2500,
			CourseTitle:   "Algorithms and Data Structures",
			CreditHours:   4,
		},
	}}
	students := &mockStudentReader{students: map[string]*models.Student{
		"s1": {ID: "s1", StudentNumber: "U100200", FullName: "Dana Okafor", Active: true},
	}}
	return NewGradeService(repo, sections, students, transfers, trail, nil, nil, validator.New(), zap.NewNop())
}

func TestGradeServiceFinalize(t *testing.T) {
	repo := &gradeRepoStub{enrollments: map[string]*models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", SectionID: "sec1", Status: models.EnrollmentStatusEnrolled},
	}}
	trail := &trailStub{}
	svc := newGradeServiceForTest(repo, &gradeTransferStub{}, trail)

	finalized, err := svc.Finalize(context.Background(), FinalizeGradeRequest{EnrollmentID: "e1", Grade: "A-", GradedBy: "prof-1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, finalized.Status)
	require.NotNil(t, finalized.Grade)
	assert.Equal(t, "A-", *finalized.Grade)
	assert.NotNil(t, finalized.GradedAt)
	assert.Contains(t, repo.finalized, "e1")

	require.Len(t, trail.logs, 1)
	assert.Equal(t, models.AuditActionGradeFinalize, trail.logs[0].Action)
}

func TestGradeServiceFinalizeTwice(t *testing.T) {
	repo := &gradeRepoStub{enrollments: map[string]*models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", SectionID: "sec1", Status: models.EnrollmentStatusCompleted},
	}}
	svc := newGradeServiceForTest(repo, &gradeTransferStub{}, &trailStub{})

	_, err := svc.Finalize(context.Background(), FinalizeGradeRequest{EnrollmentID: "e1", Grade: "B", GradedBy: "prof-1"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrGradeFinalized.Code, appErr.Code)
}

func TestGradeServiceFinalizeDropped(t *testing.T) {
	repo := &gradeRepoStub{enrollments: map[string]*models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", SectionID: "sec1", Status: models.EnrollmentStatusDropped},
	}}
	svc := newGradeServiceForTest(repo, &gradeTransferStub{}, &trailStub{})

	_, err := svc.Finalize(context.Background(), FinalizeGradeRequest{EnrollmentID: "e1", Grade: "B", GradedBy: "prof-1"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestGradeServiceFinalizeUnknownLabel(t *testing.T) {
	repo := &gradeRepoStub{enrollments: map[string]*models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", SectionID: "sec1", Status: models.EnrollmentStatusEnrolled},
	}}
	svc := newGradeServiceForTest(repo, &gradeTransferStub{}, &trailStub{})

	_, err := svc.Finalize(context.Background(), FinalizeGradeRequest{EnrollmentID: "e1", Grade: "Z", GradedBy: "prof-1"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestGradeServiceFinalizeLostRace(t *testing.T) {
	repo := &gradeRepoStub{
		enrollments: map[string]*models.Enrollment{
			"e1": {ID: "e1", StudentID: "s1", SectionID: "sec1", Status: models.EnrollmentStatusEnrolled},
		},
		raceLost: true,
	}
	svc := newGradeServiceForTest(repo, &gradeTransferStub{}, &trailStub{})

	_, err := svc.Finalize(context.Background(), FinalizeGradeRequest{EnrollmentID: "e1", Grade: "B", GradedBy: "prof-1"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrGradeFinalized.Code, appErr.Code)
}

func TestGradeServiceTranscript(t *testing.T) {
	repo := &gradeRepoStub{completed: []models.CompletedCourse{
		{CourseID: "c1", SubjectCode: "CS", Number: 1100, Title: "Intro to CS", CreditHours: 4, Grade: "A", TermID: "t1", TermCode: "FA24"},
		{CourseID: "c2", SubjectCode: "MATH", Number: 1200, Title: "Calculus I", CreditHours: 4, Grade: "B+", TermID: "t1", TermCode: "FA24"},
		{CourseID: "c3", SubjectCode: "CS", Number: 2500, Title: "Algorithms", CreditHours: 4, Grade: "W", TermID: "t2", TermCode: "SP25"},
	}}
	transfers := &gradeTransferStub{approved: []models.TransferCredit{
		{ID: "tc1", StudentID: "s1", CreditHours: 3, Status: models.TransferStatusApproved},
	}}
	svc := newGradeServiceForTest(repo, transfers, &trailStub{})

	transcript, err := svc.Transcript(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, transcript.Terms, 2)
	assert.Equal(t, "FA24", transcript.Terms[0].TermCode)
	assert.Len(t, transcript.Terms[0].Rows, 2)
	assert.Equal(t, 3.65, transcript.Terms[0].TermGPA)
	assert.Equal(t, "SP25", transcript.Terms[1].TermCode)

	// Withdrawals count toward neither attempted credits nor GPA.
	assert.Equal(t, 8.0, transcript.CreditsAttempted)
	assert.Equal(t, 8.0, transcript.CreditsEarned)
	assert.Equal(t, 3.65, transcript.CumulativeGPA)
	assert.Equal(t, 3.0, transcript.TransferCredits)
	assert.InDelta(t, 29.2, transcript.QualityPoints, 0.001)
}

func TestGradeServiceTranscriptStudentNotFound(t *testing.T) {
	svc := newGradeServiceForTest(&gradeRepoStub{}, &gradeTransferStub{}, &trailStub{})

	_, err := svc.Transcript(context.Background(), "ghost")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestGradeServiceSectionDistribution(t *testing.T) {
	repo := &gradeRepoStub{grades: []string{"A", "A", "B+", "C", "F", "W"}}
	svc := newGradeServiceForTest(repo, &gradeTransferStub{}, &trailStub{})

	dist, err := svc.SectionDistribution(context.Background(), "sec1")
	require.NoError(t, err)
	assert.Equal(t, "CS 2500", dist.CourseCode)
	assert.Equal(t, 2, dist.Counts["A"])
	assert.Equal(t, 1, dist.Counts["W"])
	assert.Equal(t, 6, dist.GradedCount)
	// W carries no grade points, so five grades average out.
	assert.Equal(t, 2.66, dist.AverageGPA)
}
