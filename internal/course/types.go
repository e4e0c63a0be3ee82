// Package course implements the course catalogue and the enrollment
// workflow: lecturers publish courses, students request enrollment, and
// admins approve or reject requests.
package course

import (
	"io"
	"time"

	"github.com/nerrad567/academia-core/internal/auth"
)

// Status is the state of an enrollment request.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Course is a catalogue entry owned by one lecturer.
type Course struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Credits     int       `json:"credits"`
	Description string    `json:"description,omitempty"`
	Semester    string    `json:"semester,omitempty"`
	Year        int       `json:"year,omitempty"`
	Syllabus    string    `json:"syllabus"`
	LecturerID  int64     `json:"lecturerId"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Enrollment links a student to a course.
type Enrollment struct {
	ID        int64     `json:"id"`
	CourseID  int64     `json:"courseId"`
	StudentID int64     `json:"studentId"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Course    *Course   `json:"course,omitempty"`
}

// Input carries the editable fields of a course. On update, zero values
// leave the stored field unchanged.
type Input struct {
	Title       string `json:"title"`
	Credits     int    `json:"credits"`
	Description string `json:"description,omitempty"`
	Semester    string `json:"semester,omitempty"`
	Year        int    `json:"year,omitempty"`
}

// Syllabus is an uploaded syllabus document.
type Syllabus struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Page selects one page of a listing.
type Page struct {
	Page     int
	PageSize int
}

// Paging defaults.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// normalise applies defaults and bounds.
func (p Page) normalise() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

func (p Page) offset() int {
	return (p.Page - 1) * p.PageSize
}

// Pagination describes where a page sits in the full listing.
type Pagination struct {
	HasNextPage bool `json:"next"`
	HasPrevPage bool `json:"prev"`
	Total       int  `json:"total"`
}

func paginate(p Page, total int) Pagination {
	return Pagination{
		HasNextPage: total > p.Page*p.PageSize,
		HasPrevPage: p.Page > 1,
		Total:       total,
	}
}

// Stats summarises the catalogue.
type Stats struct {
	Courses       int            `json:"courses"`
	ActiveCourses int            `json:"activeCourses"`
	Enrollments   map[Status]int `json:"enrollments"`
}

// Field limits.
const (
	maxTitleLength  = 255
	MaxSyllabusSize = 5 << 20
)

// Errors returned by the course service. Each wraps an auth error class so
// transports map them the same way as auth failures.
var (
	ErrCourseNotFound     = auth.ClientErrorf(auth.ErrNotFound, "Course not found")
	ErrEnrollmentNotFound = auth.ClientErrorf(auth.ErrNotFound, "Enrolment not found")
	ErrAlreadyEnrolled    = auth.ClientErrorf(auth.ErrConflict, "User already enrolled in this course")
	ErrSyllabusRequired   = auth.ClientErrorf(auth.ErrInvalidInput, "Syllabus is required")
	ErrSyllabusType       = auth.ClientErrorf(auth.ErrInvalidInput, "Only txt, pdf, doc and docx files are allowed")
	ErrSyllabusTooLarge   = auth.ClientErrorf(auth.ErrInvalidInput, "Syllabus must be at most 5 MiB")
)
