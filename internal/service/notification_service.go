package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusops/registrar-api/internal/degree"
	"github.com/campusops/registrar-api/internal/models"
	"github.com/campusops/registrar-api/pkg/jobs"
	"github.com/campusops/registrar-api/pkg/mailer"
)

const (
	jobTypeMail = "mail.send"

	enrollmentConfirmedTmpl = `<p>Hi {{.Name}},</p>
<p>Your enrollment in <strong>{{.CourseCode}}: {{.Title}}</strong> is confirmed.</p>
<p>Credit hours: {{.CreditHours}}</p>`

	waitlistPromotedTmpl = `<p>Hi {{.Name}},</p>
<p>A seat opened up in <strong>{{.CourseCode}}: {{.Title}}</strong> and you have been enrolled from the waitlist.</p>`

	auditCompletedTmpl = `<p>Hi {{.Name}},</p>
<p>Your degree audit for <strong>{{.DegreeCode}}</strong> is ready: {{.Completion}}% complete.</p>
{{if .Eligible}}<p>You meet every requirement for graduation.</p>{{end}}`
)

// NotificationService renders and delivers student email through the
// background mail queue. Every method is fire and forget; a render or
// enqueue failure is logged and never reaches the calling workflow.
type NotificationService struct {
	mail   *mailer.Mailer
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService constructs NotificationService with its own
// delivery queue. Call Start before enqueueing and Stop on shutdown. A
// nil mailer disables delivery while keeping callers wired.
func NewNotificationService(mail *mailer.Mailer, cfg jobs.QueueConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	s := &NotificationService{mail: mail, logger: logger}
	s.queue = jobs.NewQueue("mail", s.deliver, cfg)
	return s
}

// Start begins queue consumption.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Pending reports queued mail awaiting a worker.
func (s *NotificationService) Pending() int {
	return s.queue.Pending()
}

// EnrollmentConfirmed mails the student their enrollment confirmation.
func (s *NotificationService) EnrollmentConfirmed(student *models.Student, section *models.SectionDetail) {
	s.enqueue(student, "Enrollment confirmed", enrollmentConfirmedTmpl, map[string]interface{}{
		"Name":        student.FullName,
		"CourseCode":  fmt.Sprintf("%s %d", section.SubjectCode, section.CourseNumber),
		"Title":       section.CourseTitle,
		"CreditHours": section.CreditHours,
	})
}

// WaitlistPromoted mails the student that their waitlist spot turned
// into a seat.
func (s *NotificationService) WaitlistPromoted(student *models.Student, section *models.SectionDetail) {
	s.enqueue(student, "You are off the waitlist", waitlistPromotedTmpl, map[string]interface{}{
		"Name":       student.FullName,
		"CourseCode": fmt.Sprintf("%s %d", section.SubjectCode, section.CourseNumber),
		"Title":      section.CourseTitle,
	})
}

// AuditCompleted mails the student a summary of a fresh degree audit.
func (s *NotificationService) AuditCompleted(student *models.Student, result *degree.AuditResult) {
	s.enqueue(student, "Your degree audit is ready", auditCompletedTmpl, map[string]interface{}{
		"Name":       student.FullName,
		"DegreeCode": result.DegreeCode,
		"Completion": result.CompletionPercentage,
		"Eligible":   result.EligibleForGraduation,
	})
}

func (s *NotificationService) enqueue(student *models.Student, subject, tmpl string, data map[string]interface{}) {
	if s == nil || s.mail == nil {
		return
	}
	if student == nil || student.Email == "" {
		return
	}

	body, err := mailer.Render(tmpl, data)
	if err != nil {
		s.logger.Warn("render mail failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	job := jobs.Job{
		ID:   uuid.NewString(),
		Type: jobTypeMail,
		Payload: mailer.Message{
			To:      student.Email,
			Subject: subject,
			Body:    body,
		},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("enqueue mail failed", zap.String("subject", subject), zap.String("to", student.Email), zap.Error(err))
	}
}

func (s *NotificationService) deliver(_ context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(mailer.Message)
	if !ok {
		s.logger.Error("mail job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.mail.Send(msg)
}
