package course

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/nerrad567/academia-core/internal/auth"
	"github.com/nerrad567/academia-core/internal/storage"
)

// Event channels published to the Notifier.
const (
	ChannelCourseEvents     = "course.events"
	ChannelEnrollmentEvents = "enrollment.events"
)

// Event types.
const (
	EventCourseCreated       = "course.created"
	EventCourseUpdated       = "course.updated"
	EventEnrollmentRequested = "enrollment.requested"
	EventEnrollmentDropped   = "enrollment.dropped"
	EventEnrollmentApproved  = "enrollment.approved"
	EventEnrollmentRejected  = "enrollment.rejected"
)

// Event describes a catalogue or enrollment change.
type Event struct {
	Type       string      `json:"type"`
	Course     *Course     `json:"course,omitempty"`
	Enrollment *Enrollment `json:"enrollment,omitempty"`
}

// Notifier receives events after they are committed. Publish must not block.
type Notifier interface {
	Publish(channel string, event Event)
}

// syllabusTypes maps allowed extensions to their accepted content types.
var syllabusTypes = map[string][]string{
	".txt":  {"text/plain"},
	".pdf":  {"application/pdf"},
	".doc":  {"application/msword"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
}

// Logger defines the logging interface used by the Service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Service implements the course and enrollment operations. Role checks
// happen before these methods are called; ownership checks happen here.
type Service struct {
	repo     Repository
	store    storage.Store
	notifier Notifier
	logger   Logger
}

// NewService creates a Service. notifier may be nil.
func NewService(repo Repository, store storage.Store, notifier Notifier) *Service {
	return &Service{repo: repo, store: store, notifier: notifier, logger: noopLogger{}}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// SetNotifier replaces the event sink. It must be called before the
// service handles requests.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Create stores the syllabus and inserts a course owned by lecturerID. The
// stored file is removed again if the insert fails.
func (s *Service) Create(ctx context.Context, lecturerID int64, in Input, syllabus *Syllabus) (*Course, error) {
	if err := validateInput(in, true); err != nil {
		return nil, err
	}
	if syllabus == nil {
		return nil, ErrSyllabusRequired
	}

	key, err := s.saveSyllabus(ctx, syllabus)
	if err != nil {
		return nil, err
	}

	c := &Course{
		Title:       strings.TrimSpace(in.Title),
		Credits:     in.Credits,
		Description: in.Description,
		Semester:    in.Semester,
		Year:        in.Year,
		Syllabus:    s.store.URL(key),
		LecturerID:  lecturerID,
		IsActive:    true,
	}
	if err := s.repo.CreateCourse(ctx, c); err != nil {
		s.deleteSyllabus(ctx, key)
		return nil, err
	}

	s.publish(ChannelCourseEvents, Event{Type: EventCourseCreated, Course: c})
	return c, nil
}

// Update changes a course owned by lecturerID. A course that does not exist
// or belongs to another lecturer is ErrCourseNotFound. When a new syllabus
// is supplied the previous file is deleted after the update commits.
func (s *Service) Update(ctx context.Context, lecturerID, courseID int64, in Input, syllabus *Syllabus) (*Course, error) {
	if err := validateInput(in, false); err != nil {
		return nil, err
	}

	c, err := s.repo.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if c.LecturerID != lecturerID {
		return nil, ErrCourseNotFound
	}

	if t := strings.TrimSpace(in.Title); t != "" {
		c.Title = t
	}
	if in.Credits > 0 {
		c.Credits = in.Credits
	}
	if in.Description != "" {
		c.Description = in.Description
	}
	if in.Semester != "" {
		c.Semester = in.Semester
	}
	if in.Year > 0 {
		c.Year = in.Year
	}

	oldSyllabus := c.Syllabus
	var newKey string
	if syllabus != nil {
		newKey, err = s.saveSyllabus(ctx, syllabus)
		if err != nil {
			return nil, err
		}
		c.Syllabus = s.store.URL(newKey)
	}

	if err := s.repo.UpdateCourse(ctx, c); err != nil {
		if newKey != "" {
			s.deleteSyllabus(ctx, newKey)
		}
		return nil, err
	}
	if newKey != "" {
		if oldKey := keyFromURL(oldSyllabus); oldKey != "" {
			s.deleteSyllabus(ctx, oldKey)
		}
	}

	s.publish(ChannelCourseEvents, Event{Type: EventCourseUpdated, Course: c})
	return c, nil
}

// Browse lists all courses.
func (s *Service) Browse(ctx context.Context, p Page) ([]Course, Pagination, error) {
	p = p.normalise()
	courses, total, err := s.repo.ListCourses(ctx, p.PageSize, p.offset())
	if err != nil {
		return nil, Pagination{}, err
	}
	return courses, paginate(p, total), nil
}

// Enrolled lists studentID's enrollments with their courses.
func (s *Service) Enrolled(ctx context.Context, studentID int64, p Page) ([]Enrollment, Pagination, error) {
	p = p.normalise()
	enrollments, total, err := s.repo.ListEnrollments(ctx, studentID, p.PageSize, p.offset())
	if err != nil {
		return nil, Pagination{}, err
	}
	return enrollments, paginate(p, total), nil
}

// Enroll creates a PENDING enrollment for studentID in courseID.
func (s *Service) Enroll(ctx context.Context, studentID, courseID int64) (*Enrollment, error) {
	c, err := s.repo.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	e := &Enrollment{CourseID: c.ID, StudentID: studentID, Status: StatusPending}
	if err := s.repo.CreateEnrollment(ctx, e); err != nil {
		return nil, err
	}

	s.publish(ChannelEnrollmentEvents, Event{Type: EventEnrollmentRequested, Enrollment: e})
	return e, nil
}

// Drop removes studentID's enrollment in courseID.
func (s *Service) Drop(ctx context.Context, studentID, courseID int64) error {
	c, err := s.repo.GetCourse(ctx, courseID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteEnrollment(ctx, c.ID, studentID); err != nil {
		return err
	}

	s.publish(ChannelEnrollmentEvents, Event{
		Type:       EventEnrollmentDropped,
		Enrollment: &Enrollment{CourseID: c.ID, StudentID: studentID},
	})
	return nil
}

// Approve marks an enrollment APPROVED.
func (s *Service) Approve(ctx context.Context, enrollmentID int64) (*Enrollment, error) {
	return s.decide(ctx, enrollmentID, StatusApproved, EventEnrollmentApproved)
}

// Reject marks an enrollment REJECTED.
func (s *Service) Reject(ctx context.Context, enrollmentID int64) (*Enrollment, error) {
	return s.decide(ctx, enrollmentID, StatusRejected, EventEnrollmentRejected)
}

func (s *Service) decide(ctx context.Context, enrollmentID int64, status Status, eventType string) (*Enrollment, error) {
	e, err := s.repo.SetEnrollmentStatus(ctx, enrollmentID, status)
	if err != nil {
		return nil, err
	}
	s.publish(ChannelEnrollmentEvents, Event{Type: eventType, Enrollment: e})
	return e, nil
}

// Stats summarises the catalogue.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.repo.Stats(ctx)
}

func (s *Service) publish(channel string, e Event) {
	if s.notifier != nil {
		s.notifier.Publish(channel, e)
	}
}

// ValidateSyllabus checks the size, extension and content type of an upload.
func ValidateSyllabus(sy *Syllabus) error {
	if sy.Size > MaxSyllabusSize {
		return ErrSyllabusTooLarge
	}
	allowed, ok := syllabusTypes[strings.ToLower(filepath.Ext(sy.Name))]
	if !ok {
		return ErrSyllabusType
	}
	mediaType, _, err := mime.ParseMediaType(sy.ContentType)
	if err != nil {
		return ErrSyllabusType
	}
	for _, t := range allowed {
		if mediaType == t {
			return nil
		}
	}
	return ErrSyllabusType
}

func (s *Service) saveSyllabus(ctx context.Context, sy *Syllabus) (string, error) {
	if err := ValidateSyllabus(sy); err != nil {
		return "", err
	}
	key, err := s.store.Save(ctx, sy.Name, sy.Body, sy.Size, sy.ContentType)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return "", ErrSyllabusTooLarge
		}
		return "", fmt.Errorf("storing syllabus: %w", err)
	}
	return key, nil
}

// deleteSyllabus removes a stored file. Failures are logged, not returned:
// the database is already consistent and an orphaned file is harmless.
func (s *Service) deleteSyllabus(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete syllabus", "key", key, "error", err)
	}
}

// keyFromURL recovers the storage key from a syllabus URL.
func keyFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	key := path.Base(p)
	if key == "." || key == "/" {
		return ""
	}
	return key
}

func validateInput(in Input, create bool) error {
	title := strings.TrimSpace(in.Title)
	switch {
	case create && title == "":
		return auth.ClientErrorf(auth.ErrInvalidInput, "title is required")
	case len(title) > maxTitleLength:
		return auth.ClientErrorf(auth.ErrInvalidInput, "title must be at most %d characters", maxTitleLength)
	case create && in.Credits <= 0, in.Credits < 0:
		return auth.ClientErrorf(auth.ErrInvalidInput, "credits must be a positive number")
	case in.Year < 0:
		return auth.ClientErrorf(auth.ErrInvalidInput, "year must be a positive number")
	}
	return nil
}
