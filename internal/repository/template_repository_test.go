package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusops/registrar-api/internal/models"
)

func newTemplateMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTemplateRepositoryFindDetailAssemblesTree(t *testing.T) {
	db, mock, cleanup := newTemplateMock(t)
	defer cleanup()
	repo := NewTemplateRepository(db)

	now := time.Now()
	mock.ExpectQuery("FROM degree_templates WHERE id").
		WithArgs("template-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "degree_code", "name", "catalog_year", "total_credits", "required_gpa", "effective_date", "expiration_date", "created_at", "updated_at"}).
			AddRow("template-1", "BSCS", "BS Computer Science", 2025, 120, 2.0, now, nil, now, now))
	mock.ExpectQuery("FROM requirement_categories WHERE template_id").
		WithArgs("template-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "template_id", "name", "credits_required", "position"}).
			AddRow("category-1", "template-1", "Core", 30, 1).
			AddRow("category-2", "template-1", "Electives", 12, 2))
	mock.ExpectQuery("FROM degree_requirements r").
		WithArgs("template-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "category_id", "type", "description", "credits_required", "course_ids", "subject_codes", "min_level", "max_level", "position"}).
			AddRow("req-1", "category-1", models.RequirementSpecificCourses, "Core sequence", 0, pq.StringArray{"course-1", "course-2"}, pq.StringArray{}, 0, 0, 1).
			AddRow("req-2", "category-2", models.RequirementConditional, "Focus area", 0, pq.StringArray{}, pq.StringArray{}, 0, 0, 1))
	mock.ExpectQuery("FROM requirement_alternatives a").
		WithArgs("template-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "requirement_id", "description", "course_ids", "subject_codes", "min_level", "max_level", "credits_required", "courses_required", "min_gpa", "position"}).
			AddRow("alt-1", "req-2", "Systems", pq.StringArray{"course-9"}, pq.StringArray{"CS"}, 300, 400, 9, 3, 2.5, 1))
	mock.ExpectQuery("FROM requirement_sequences s").
		WithArgs("template-1").
		WillReturnRows(sqlmock.NewRows([]string{"requirement_id", "course_id", "prereq_course_id", "position"}))

	detail, err := repo.FindDetail(context.Background(), "template-1")
	require.NoError(t, err)
	require.Len(t, detail.Categories, 2)
	assert.Equal(t, "Core", detail.Categories[0].Name)
	require.Len(t, detail.Categories[0].Requirements, 1)
	assert.Equal(t, models.RequirementSpecificCourses, detail.Categories[0].Requirements[0].Type)
	require.Len(t, detail.Categories[1].Requirements, 1)
	require.Len(t, detail.Categories[1].Requirements[0].Alternatives, 1)
	assert.Equal(t, "Systems", detail.Categories[1].Requirements[0].Alternatives[0].Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepositoryCreateInsertsTree(t *testing.T) {
	db, mock, cleanup := newTemplateMock(t)
	defer cleanup()
	repo := NewTemplateRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO degree_templates").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO requirement_categories").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO degree_requirements").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO requirement_sequences").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	detail := &models.TemplateDetail{
		DegreeTemplate: models.DegreeTemplate{DegreeCode: "BSCS", Name: "BS Computer Science", CatalogYear: 2025, TotalCredits: 120, RequiredGPA: 2.0, EffectiveDate: time.Now()},
		Categories: []models.CategoryDetail{
			{
				RequirementCategory: models.RequirementCategory{Name: "Core", CreditsRequired: 30},
				Requirements: []models.RequirementDetail{
					{
						DegreeRequirement: models.DegreeRequirement{Type: models.RequirementSequenced, Description: "Calculus chain"},
						Sequence: []models.SequenceLink{
							{CourseID: "course-2", PrereqCourseID: "course-1"},
						},
					},
				},
			},
		},
	}
	err := repo.Create(context.Background(), detail)
	require.NoError(t, err)
	assert.NotEmpty(t, detail.ID)
	assert.Equal(t, detail.ID, detail.Categories[0].TemplateID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepositoryFindActiveWindow(t *testing.T) {
	db, mock, cleanup := newTemplateMock(t)
	defer cleanup()
	repo := NewTemplateRepository(db)

	now := time.Now()
	mock.ExpectQuery("FROM degree_templates").
		WithArgs("BSCS", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "degree_code", "name", "catalog_year", "total_credits", "required_gpa", "effective_date", "expiration_date", "created_at", "updated_at"}).
			AddRow("template-1", "BSCS", "BS Computer Science", 2025, 120, 2.0, now.AddDate(-1, 0, 0), nil, now, now))

	template, err := repo.FindActive(context.Background(), "BSCS", now)
	require.NoError(t, err)
	assert.Equal(t, "template-1", template.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
