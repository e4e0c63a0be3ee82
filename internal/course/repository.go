package course

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/academia-core/internal/infrastructure/database"
)

// Repository persists courses and enrollments.
type Repository interface {
	CreateCourse(ctx context.Context, c *Course) error
	UpdateCourse(ctx context.Context, c *Course) error
	GetCourse(ctx context.Context, id int64) (*Course, error)
	ListCourses(ctx context.Context, limit, offset int) ([]Course, int, error)
	CountCourses(ctx context.Context) (int, error)

	CreateEnrollment(ctx context.Context, e *Enrollment) error
	DeleteEnrollment(ctx context.Context, courseID, studentID int64) error
	SetEnrollmentStatus(ctx context.Context, id int64, status Status) (*Enrollment, error)
	ListEnrollments(ctx context.Context, studentID int64, limit, offset int) ([]Enrollment, int, error)

	Stats(ctx context.Context) (*Stats, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new course repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const courseColumns = "id, title, credits, description, semester, year, syllabus, lecturer_id, is_active, created_at, updated_at"

func stamp() (time.Time, string) {
	now := time.Now().UTC().Truncate(time.Second)
	return now, now.Format(time.RFC3339)
}

// CreateCourse inserts c and fills in its ID and timestamps.
func (r *SQLiteRepository) CreateCourse(ctx context.Context, c *Course) error {
	now, ts := stamp()
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO courses (title, credits, description, semester, year, syllabus, lecturer_id, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Title, c.Credits, nullString(c.Description), nullString(c.Semester), nullInt(c.Year),
		c.Syllabus, c.LecturerID, c.IsActive, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("creating course: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading course id: %w", err)
	}
	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

// UpdateCourse overwrites the editable fields of c.
func (r *SQLiteRepository) UpdateCourse(ctx context.Context, c *Course) error {
	now, ts := stamp()
	result, err := r.db.ExecContext(ctx,
		`UPDATE courses SET title = ?, credits = ?, description = ?, semester = ?, year = ?,
		 syllabus = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		c.Title, c.Credits, nullString(c.Description), nullString(c.Semester), nullInt(c.Year),
		c.Syllabus, c.IsActive, ts, c.ID,
	)
	if err != nil {
		return fmt.Errorf("updating course: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // sqlite3 always reports rows affected
		return ErrCourseNotFound
	}
	c.UpdatedAt = now
	return nil
}

// GetCourse retrieves a course by ID.
func (r *SQLiteRepository) GetCourse(ctx context.Context, id int64) (*Course, error) {
	c, err := scanCourse(r.db.QueryRowContext(ctx,
		"SELECT "+courseColumns+" FROM courses WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCourseNotFound
	}
	return c, err
}

// ListCourses returns one page of courses ordered by ID and the total count.
func (r *SQLiteRepository) ListCourses(ctx context.Context, limit, offset int) ([]Course, int, error) {
	total, err := r.CountCourses(ctx)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+courseColumns+" FROM courses ORDER BY id LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("querying courses: %w", err)
	}
	defer rows.Close()

	courses := []Course{}
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, 0, err
		}
		courses = append(courses, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating courses: %w", err)
	}
	return courses, total, nil
}

// CountCourses returns the number of courses.
func (r *SQLiteRepository) CountCourses(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM courses").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting courses: %w", err)
	}
	return n, nil
}

// CreateEnrollment inserts a PENDING enrollment. A second enrollment of the
// same student in the same course returns ErrAlreadyEnrolled.
func (r *SQLiteRepository) CreateEnrollment(ctx context.Context, e *Enrollment) error {
	now, ts := stamp()
	if e.Status == "" {
		e.Status = StatusPending
	}
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO enrollments (course_id, student_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.CourseID, e.StudentID, string(e.Status), ts, ts,
	)
	if err != nil {
		switch {
		case database.IsUniqueViolation(err):
			return ErrAlreadyEnrolled
		case database.IsForeignKeyViolation(err):
			return ErrCourseNotFound
		}
		return fmt.Errorf("creating enrollment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading enrollment id: %w", err)
	}
	e.ID = id
	e.CreatedAt = now
	e.UpdatedAt = now
	return nil
}

// DeleteEnrollment removes a student's enrollment in a course.
func (r *SQLiteRepository) DeleteEnrollment(ctx context.Context, courseID, studentID int64) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM enrollments WHERE course_id = ? AND student_id = ?", courseID, studentID)
	if err != nil {
		return fmt.Errorf("deleting enrollment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // sqlite3 always reports rows affected
		return ErrEnrollmentNotFound
	}
	return nil
}

// SetEnrollmentStatus changes an enrollment's status and returns the result.
func (r *SQLiteRepository) SetEnrollmentStatus(ctx context.Context, id int64, status Status) (*Enrollment, error) {
	_, ts := stamp()
	result, err := r.db.ExecContext(ctx,
		"UPDATE enrollments SET status = ?, updated_at = ? WHERE id = ?", string(status), ts, id)
	if err != nil {
		return nil, fmt.Errorf("updating enrollment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // sqlite3 always reports rows affected
		return nil, ErrEnrollmentNotFound
	}

	var e Enrollment
	var st, createdAt, updatedAt string
	err = r.db.QueryRowContext(ctx,
		"SELECT id, course_id, student_id, status, created_at, updated_at FROM enrollments WHERE id = ?", id,
	).Scan(&e.ID, &e.CourseID, &e.StudentID, &st, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("reading enrollment: %w", err)
	}
	e.Status = Status(st)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

// ListEnrollments returns one page of a student's enrollments with their
// courses, newest first, and the student's total enrollment count.
func (r *SQLiteRepository) ListEnrollments(ctx context.Context, studentID int64, limit, offset int) ([]Enrollment, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM enrollments WHERE student_id = ?", studentID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting enrollments: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.course_id, e.student_id, e.status, e.created_at, e.updated_at,
		        c.id, c.title, c.credits, c.description, c.semester, c.year, c.syllabus,
		        c.lecturer_id, c.is_active, c.created_at, c.updated_at
		 FROM enrollments e JOIN courses c ON c.id = e.course_id
		 WHERE e.student_id = ?
		 ORDER BY e.id DESC LIMIT ? OFFSET ?`, studentID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("querying enrollments: %w", err)
	}
	defer rows.Close()

	enrollments := []Enrollment{}
	for rows.Next() {
		var e Enrollment
		var c Course
		var st, eCreated, eUpdated, cCreated, cUpdated string
		var description, semester sql.NullString
		var year sql.NullInt64

		if err := rows.Scan(&e.ID, &e.CourseID, &e.StudentID, &st, &eCreated, &eUpdated,
			&c.ID, &c.Title, &c.Credits, &description, &semester, &year, &c.Syllabus,
			&c.LecturerID, &c.IsActive, &cCreated, &cUpdated); err != nil {
			return nil, 0, fmt.Errorf("scanning enrollment: %w", err)
		}
		e.Status = Status(st)
		e.CreatedAt = parseTime(eCreated)
		e.UpdatedAt = parseTime(eUpdated)
		c.Description = description.String
		c.Semester = semester.String
		c.Year = int(year.Int64)
		c.CreatedAt = parseTime(cCreated)
		c.UpdatedAt = parseTime(cUpdated)
		e.Course = &c
		enrollments = append(enrollments, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating enrollments: %w", err)
	}
	return enrollments, total, nil
}

// Stats counts courses and enrollments by status.
func (r *SQLiteRepository) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Enrollments: map[Status]int{
		StatusPending:  0,
		StatusApproved: 0,
		StatusRejected: 0,
	}}

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(is_active), 0) FROM courses",
	).Scan(&stats.Courses, &stats.ActiveCourses)
	if err != nil {
		return nil, fmt.Errorf("counting courses: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM enrollments GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("counting enrollments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scanning enrollment count: %w", err)
		}
		stats.Enrollments[Status(st)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating enrollment counts: %w", err)
	}
	return stats, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCourse(row rowScanner) (*Course, error) {
	var c Course
	var description, semester sql.NullString
	var year sql.NullInt64
	var createdAt, updatedAt string

	err := row.Scan(&c.ID, &c.Title, &c.Credits, &description, &semester, &year,
		&c.Syllabus, &c.LecturerID, &c.IsActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning course: %w", err)
	}
	c.Description = description.String
	c.Semester = semester.String
	c.Year = int(year.Int64)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s) //nolint:errcheck // written by this repository
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}
