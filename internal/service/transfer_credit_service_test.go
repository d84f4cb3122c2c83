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

type transferRepoStub struct {
	credits  map[string]*models.TransferCredit
	list     []models.TransferCredit
	created  *models.TransferCredit
	decided  map[string]string
	raceLost bool
}

func newTransferRepoStub() *transferRepoStub {
	return &transferRepoStub{
		credits: make(map[string]*models.TransferCredit),
		decided: make(map[string]string),
	}
}

func (m *transferRepoStub) List(ctx context.Context, studentID, status string) ([]models.TransferCredit, error) {
	return m.list, nil
}

func (m *transferRepoStub) FindByID(ctx context.Context, id string) (*models.TransferCredit, error) {
	if credit, ok := m.credits[id]; ok {
		return credit, nil
	}
	return nil, sql.ErrNoRows
}

func (m *transferRepoStub) Create(ctx context.Context, credit *models.TransferCredit) error {
	credit.ID = "tc-1"
	m.created = credit
	m.credits[credit.ID] = credit
	return nil
}

func (m *transferRepoStub) Decide(ctx context.Context, id, status, note, decidedBy string, equivalentCourseID *string, decidedAt time.Time) error {
	if m.raceLost {
		return sql.ErrNoRows
	}
	m.decided[id] = status
	return nil
}

type transferFixture struct {
	repo     *transferRepoStub
	students *mockStudentReader
	courses  *courseGraphStub
	trail    *trailStub
}

func newTransferFixture() *transferFixture {
	return &transferFixture{
		repo: newTransferRepoStub(),
		students: &mockStudentReader{students: map[string]*models.Student{
			"s1": {ID: "s1", FullName: "Dana Okafor", DegreeCode: "BSCS", Active: true},
			"s2": {ID: "s2", FullName: "Leo Grant", DegreeCode: "BSBA", Active: false},
		}},
		courses: &courseGraphStub{courses: []models.Course{
			{ID: "c1", SubjectCode: "CS", Number: 1100, Title: "Intro to CS", CreditHours: 4, Active: true},
			{ID: "c2", SubjectCode: "CS", Number: 2500, Title: "Algorithms", CreditHours: 4, Active: true},
		}},
		trail: &trailStub{},
	}
}

func (f *transferFixture) service() *TransferCreditService {
	return NewTransferCreditService(f.repo, f.students, f.courses, f.trail, nil, nil, validator.New(), zap.NewNop())
}

func (f *transferFixture) pendingCredit(id string) *models.TransferCredit {
	credit := &models.TransferCredit{
		ID:                 id,
		StudentID:          "s1",
		Institution:        "Lakeside CC",
		ExternalCourseCode: "CSC 101",
		ExternalTitle:      "Programming Fundamentals",
		CreditHours:        3,
		GradeLabel:         "A",
		Status:             models.TransferStatusPending,
	}
	f.repo.credits[id] = credit
	return credit
}

func TestTransferCreditServiceSubmit(t *testing.T) {
	f := newTransferFixture()

	credit, err := f.service().Submit(context.Background(), SubmitTransferRequest{
		StudentID:          "s1",
		Institution:        "Lakeside CC",
		ExternalCourseCode: "CSC 101",
		ExternalTitle:      "Programming Fundamentals",
		CreditHours:        3,
		GradeLabel:         "A",
	})
	require.NoError(t, err)
	assert.Equal(t, "tc-1", credit.ID)
	assert.Equal(t, models.TransferStatusPending, credit.Status)
	assert.Nil(t, credit.EquivalentCourseID)
	require.NotNil(t, f.repo.created)
}

func TestTransferCreditServiceSubmitWithEquivalent(t *testing.T) {
	f := newTransferFixture()

	credit, err := f.service().Submit(context.Background(), SubmitTransferRequest{
		StudentID:          "s1",
		Institution:        "Lakeside CC",
		ExternalCourseCode: "CSC 101",
		ExternalTitle:      "Programming Fundamentals",
		CreditHours:        3,
		EquivalentCourseID: "c1",
	})
	require.NoError(t, err)
	require.NotNil(t, credit.EquivalentCourseID)
	assert.Equal(t, "c1", *credit.EquivalentCourseID)
}

func TestTransferCreditServiceSubmitUnknownEquivalent(t *testing.T) {
	f := newTransferFixture()

	_, err := f.service().Submit(context.Background(), SubmitTransferRequest{
		StudentID:          "s1",
		Institution:        "Lakeside CC",
		ExternalCourseCode: "CSC 101",
		ExternalTitle:      "Programming Fundamentals",
		CreditHours:        3,
		EquivalentCourseID: "ghost",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Nil(t, f.repo.created)
}

func TestTransferCreditServiceSubmitInactiveStudent(t *testing.T) {
	f := newTransferFixture()

	_, err := f.service().Submit(context.Background(), SubmitTransferRequest{
		StudentID:          "s2",
		Institution:        "Lakeside CC",
		ExternalCourseCode: "CSC 101",
		ExternalTitle:      "Programming Fundamentals",
		CreditHours:        3,
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestTransferCreditServiceSubmitInvalidPayload(t *testing.T) {
	f := newTransferFixture()

	_, err := f.service().Submit(context.Background(), SubmitTransferRequest{StudentID: "s1"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestTransferCreditServiceDecideApprove(t *testing.T) {
	f := newTransferFixture()
	f.pendingCredit("tc-9")

	decided, err := f.service().Decide(context.Background(), DecideTransferRequest{
		TransferID: "tc-9",
		Approve:    true,
		Note:       "syllabus matches",
		DecidedBy:  "u-registrar",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusApproved, decided.Status)
	assert.Equal(t, "syllabus matches", decided.DecisionNote)
	require.NotNil(t, decided.DecidedBy)
	assert.Equal(t, "u-registrar", *decided.DecidedBy)
	assert.NotNil(t, decided.DecidedAt)
	assert.Equal(t, models.TransferStatusApproved, f.repo.decided["tc-9"])

	require.Len(t, f.trail.logs, 1)
	assert.Equal(t, models.AuditActionTransferDecide, f.trail.logs[0].Action)
}

func TestTransferCreditServiceDecideReject(t *testing.T) {
	f := newTransferFixture()
	f.pendingCredit("tc-9")

	decided, err := f.service().Decide(context.Background(), DecideTransferRequest{
		TransferID: "tc-9",
		Approve:    false,
		Note:       "no syllabus provided",
		DecidedBy:  "u-registrar",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusRejected, decided.Status)
	assert.Equal(t, models.TransferStatusRejected, f.repo.decided["tc-9"])
}

func TestTransferCreditServiceDecideOverridesEquivalent(t *testing.T) {
	f := newTransferFixture()
	f.pendingCredit("tc-9")

	decided, err := f.service().Decide(context.Background(), DecideTransferRequest{
		TransferID:         "tc-9",
		Approve:            true,
		DecidedBy:          "u-registrar",
		EquivalentCourseID: "c2",
	})
	require.NoError(t, err)
	require.NotNil(t, decided.EquivalentCourseID)
	assert.Equal(t, "c2", *decided.EquivalentCourseID)
}

func TestTransferCreditServiceDecideTwice(t *testing.T) {
	f := newTransferFixture()
	credit := f.pendingCredit("tc-9")
	credit.Status = models.TransferStatusApproved

	_, err := f.service().Decide(context.Background(), DecideTransferRequest{
		TransferID: "tc-9",
		Approve:    false,
		DecidedBy:  "u-registrar",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestTransferCreditServiceDecideLostRace(t *testing.T) {
	f := newTransferFixture()
	f.pendingCredit("tc-9")
	f.repo.raceLost = true

	_, err := f.service().Decide(context.Background(), DecideTransferRequest{
		TransferID: "tc-9",
		Approve:    true,
		DecidedBy:  "u-registrar",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestTransferCreditServiceDecideNotFound(t *testing.T) {
	f := newTransferFixture()

	_, err := f.service().Decide(context.Background(), DecideTransferRequest{
		TransferID: "ghost",
		Approve:    true,
		DecidedBy:  "u-registrar",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestTransferCreditServiceList(t *testing.T) {
	f := newTransferFixture()
	f.repo.list = []models.TransferCredit{{ID: "tc-1"}, {ID: "tc-2"}}
	svc := f.service()

	credits, err := svc.List(context.Background(), "s1", models.TransferStatusPending)
	require.NoError(t, err)
	assert.Len(t, credits, 2)

	_, err = svc.List(context.Background(), "s1", "MAYBE")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
