package course

import (
	"context"
	"fmt"

	"github.com/nerrad567/academia-core/internal/auth"
)

// DefaultSeedCourses is the number of courses created by SeedCourses.
const DefaultSeedCourses = 30

var seedSubjects = []string{
	"Algorithms", "Compilers", "Databases", "Distributed Systems", "Linear Algebra",
	"Networks", "Operating Systems", "Probability", "Cryptography", "Machine Learning",
}

var seedSemesters = []string{"Fall", "Spring", "Summer"}

// SeedCourses creates n courses spread round-robin across the LECTURER
// accounts in users. It does nothing when any course already exists.
func SeedCourses(ctx context.Context, repo Repository, users []*auth.User, n int, logger Logger) ([]*Course, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	count, err := repo.CountCourses(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking course count: %w", err)
	}
	if count > 0 {
		logger.Info("courses exist, skipping course seed", "count", count)
		return nil, nil
	}

	var lecturers []*auth.User
	for _, u := range users {
		if u.Role == auth.RoleLecturer {
			lecturers = append(lecturers, u)
		}
	}
	if len(lecturers) == 0 {
		return nil, auth.ClientErrorf(auth.ErrInvalidInput, "no lecturers to own seeded courses")
	}

	created := make([]*Course, 0, n)
	for i := range n {
		subject := seedSubjects[i%len(seedSubjects)]
		c := &Course{
			Title:       fmt.Sprintf("%s %d", subject, 100+i),
			Credits:     1 + i%6,
			Description: "An introduction to " + subject + ".",
			Semester:    seedSemesters[i%len(seedSemesters)],
			Year:        2025 + i%2,
			Syllabus:    fmt.Sprintf("/uploads/seed-syllabus-%03d.pdf", i+1),
			LecturerID:  lecturers[i%len(lecturers)].ID,
			IsActive:    true,
		}
		if err := repo.CreateCourse(ctx, c); err != nil {
			return created, fmt.Errorf("creating seed course %q: %w", c.Title, err)
		}
		created = append(created, c)
	}

	logger.Info("seeded courses", "count", n, "lecturers", len(lecturers))
	return created, nil
}
