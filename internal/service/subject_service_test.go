package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusops/registrar-api/internal/models"
	appErrors "github.com/campusops/registrar-api/pkg/errors"
)

type subjectRepoStub struct {
	subjects []models.Subject
	created  *models.Subject
}

func (m *subjectRepoStub) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	return m.subjects, nil
}

func (m *subjectRepoStub) CreateSubject(ctx context.Context, subject *models.Subject) error {
	subject.ID = "subj-new"
	m.created = subject
	return nil
}

func newSubjectServiceForTest(repo *subjectRepoStub) *SubjectService {
	return NewSubjectService(repo, validator.New(), zap.NewNop())
}

func TestSubjectServiceList(t *testing.T) {
	repo := &subjectRepoStub{subjects: []models.Subject{
		{ID: "subj-1", Code: "CS", Name: "Computer Science"},
		{ID: "subj-2", Code: "MATH", Name: "Mathematics"},
	}}
	svc := newSubjectServiceForTest(repo)

	subjects, err := svc.List(context.Background())

	require.NoError(t, err)
	require.Len(t, subjects, 2)
	assert.Equal(t, "CS", subjects[0].Code)
}

func TestSubjectServiceCreate(t *testing.T) {
	repo := &subjectRepoStub{}
	svc := newSubjectServiceForTest(repo)

	subject, err := svc.Create(context.Background(), CreateSubjectRequest{Code: " bio ", Name: "Biology"})

	require.NoError(t, err)
	assert.Equal(t, "subj-new", subject.ID)
	assert.Equal(t, "BIO", subject.Code)
	assert.Equal(t, "Biology", subject.Name)
	assert.Same(t, subject, repo.created)
}

func TestSubjectServiceCreateDuplicateCode(t *testing.T) {
	repo := &subjectRepoStub{subjects: []models.Subject{{ID: "subj-1", Code: "CS", Name: "Computer Science"}}}
	svc := newSubjectServiceForTest(repo)

	_, err := svc.Create(context.Background(), CreateSubjectRequest{Code: "cs", Name: "Computing"})

	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Nil(t, repo.created)
}

func TestSubjectServiceCreateInvalidPayload(t *testing.T) {
	svc := newSubjectServiceForTest(&subjectRepoStub{})

	_, err := svc.Create(context.Background(), CreateSubjectRequest{Code: "HIST"})

	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
