package api

import (
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/academia-core/internal/audit"
	"github.com/nerrad567/academia-core/internal/auth"
	"github.com/nerrad567/academia-core/internal/course"
)

// multipartMemory is how much of a multipart form is buffered in memory
// before spilling to temporary files.
const multipartMemory = 8 << 20

// syllabusField is the multipart field carrying the syllabus document.
const syllabusField = "syllabus"

// handleCreateCourse creates a course from a multipart form with a
// required syllabus file.
func (s *Server) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	in, syllabus, cleanup, ok := s.parseCourseForm(w, r)
	if !ok {
		return
	}
	defer cleanup()

	id := auth.ActiveUser(r.Context())
	c, err := s.courses.Create(r.Context(), id.UserID, in, syllabus)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.logger.Info("course created", "course_id", c.ID, "lecturer_id", id.UserID)
	writeData(w, http.StatusCreated, msgSuccessful, c)
}

// handleUpdateCourse updates a course the caller owns. It accepts JSON or
// a multipart form with an optional replacement syllabus.
func (s *Server) handleUpdateCourse(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var in course.Input
	var syllabus *course.Syllabus
	if isMultipart(r) {
		var cleanup func()
		in, syllabus, cleanup, ok = s.parseCourseForm(w, r)
		if !ok {
			return
		}
		defer cleanup()
	} else if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeBadRequest(w, msgInvalidJSON)
		return
	}

	id := auth.ActiveUser(r.Context())
	c, err := s.courses.Update(r.Context(), id.UserID, courseID, in, syllabus)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, msgSuccessful, c)
}

// handleBrowseCourses lists all courses, paginated.
func (s *Server) handleBrowseCourses(w http.ResponseWriter, r *http.Request) {
	courses, pg, err := s.courses.Browse(r.Context(), pageFromQuery(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: msgSuccessful, Data: courses, Pagination: &pg})
}

// handleEnrolledCourses lists the calling student's enrollments.
func (s *Server) handleEnrolledCourses(w http.ResponseWriter, r *http.Request) {
	id := auth.ActiveUser(r.Context())
	enrollments, pg, err := s.courses.Enrolled(r.Context(), id.UserID, pageFromQuery(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: msgSuccessful, Data: enrollments, Pagination: &pg})
}

// handleEnroll requests enrollment in a course for the calling student.
func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	id := auth.ActiveUser(r.Context())
	e, err := s.courses.Enroll(r.Context(), id.UserID, courseID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, msgSuccessful, e)
}

// handleDrop removes the calling student's enrollment in a course.
func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	id := auth.ActiveUser(r.Context())
	if err := s.courses.Drop(r.Context(), id.UserID, courseID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, msgSuccessful, nil)
}

// handleApproveEnrollment marks an enrollment APPROVED.
func (s *Server) handleApproveEnrollment(w http.ResponseWriter, r *http.Request) {
	s.decideEnrollment(w, r, s.courses.Approve, audit.ActionApprove)
}

// handleRejectEnrollment marks an enrollment REJECTED.
func (s *Server) handleRejectEnrollment(w http.ResponseWriter, r *http.Request) {
	s.decideEnrollment(w, r, s.courses.Reject, audit.ActionReject)
}

func (s *Server) decideEnrollment(w http.ResponseWriter, r *http.Request,
	decide func(context.Context, int64) (*course.Enrollment, error), action string,
) {
	enrollmentID, ok := pathID(w, r, "enrollmentId")
	if !ok {
		return
	}
	e, err := decide(r.Context(), enrollmentID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	id := auth.ActiveUser(r.Context())
	s.auditLog(action, "enrollment", strconv.FormatInt(e.ID, 10), id.UserID, audit.SourceAPI,
		map[string]any{"course_id": e.CourseID, "student_id": e.StudentID})
	writeData(w, http.StatusOK, msgSuccessful, e)
}

// parseCourseForm reads the course fields and optional syllabus from a
// multipart form. On failure it writes the response and returns ok=false.
// cleanup removes any temporary files the form created.
func (s *Server) parseCourseForm(w http.ResponseWriter, r *http.Request) (course.Input, *course.Syllabus, func(), bool) {
	noop := func() {}
	if !isMultipart(r) {
		writeBadRequest(w, "Request must be multipart/form-data")
		return course.Input{}, nil, noop, false
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Syllabus must be at most 5 MiB")
		} else {
			writeBadRequest(w, "Invalid multipart form")
		}
		return course.Input{}, nil, noop, false
	}
	cleanup := func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.logger.Debug("removing multipart temp files failed", "error", err)
		}
	}

	in := course.Input{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Semester:    r.FormValue("semester"),
	}
	var bad []string
	if v := r.FormValue("credits"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			bad = append(bad, "credits must be a positive number")
		}
		in.Credits = n
	}
	if v := r.FormValue("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			bad = append(bad, "year must be a positive number")
		}
		in.Year = n
	}
	if len(bad) > 0 {
		writeError(w, http.StatusBadRequest, bad[0], bad...)
		cleanup()
		return course.Input{}, nil, noop, false
	}

	var syllabus *course.Syllabus
	if file, header, err := r.FormFile(syllabusField); err == nil {
		syllabus = syllabusFromPart(file, header)
		removeAll := cleanup
		cleanup = func() {
			file.Close() //nolint:errcheck,gosec // read-only temp file
			removeAll()
		}
	}
	return in, syllabus, cleanup, true
}

func syllabusFromPart(file multipart.File, header *multipart.FileHeader) *course.Syllabus {
	return &course.Syllabus{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// pathID parses a numeric URL parameter, writing a 400 when it is not one.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, msgNumericID)
		return 0, false
	}
	return id, true
}

// pageFromQuery reads page and pageSize. Invalid values fall back to the
// service defaults.
func pageFromQuery(r *http.Request) course.Page {
	q := r.URL.Query()
	var p course.Page
	p.Page, _ = strconv.Atoi(q.Get("page"))         //nolint:errcheck // zero means default
	p.PageSize, _ = strconv.Atoi(q.Get("pageSize")) //nolint:errcheck // zero means default
	return p
}
