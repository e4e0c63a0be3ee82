package auth

import (
	"context"
	"fmt"
	"log/slog"
)

// SeedPassword is the shared password of every seeded account.
const SeedPassword = "123456789"

// SeedPlan is the number of accounts to create per role.
type SeedPlan struct {
	Lecturers int
	Admins    int
	Students  int
}

// DefaultSeedPlan creates 20 lecturers, 10 admins and 70 students.
var DefaultSeedPlan = SeedPlan{Lecturers: 20, Admins: 10, Students: 70}

var (
	seedFirstNames = []string{"Ada", "Alan", "Barbara", "Claude", "Donald", "Edsger", "Frances", "Grace", "John", "Katherine", "Leslie", "Margaret", "Niklaus", "Radia", "Shafi", "Tim"}
	seedLastNames  = []string{"Lovelace", "Turing", "Liskov", "Shannon", "Knuth", "Dijkstra", "Allen", "Hopper", "Backus", "Johnson", "Lamport", "Hamilton", "Wirth", "Perlman", "Goldwasser", "Berners-Lee"}
)

// SeedUsers populates an empty users table according to plan. It does
// nothing when any user already exists. The password is hashed once and
// shared by all seeded accounts.
func SeedUsers(ctx context.Context, users UserRepository, hasher *Hasher, plan SeedPlan, logger *slog.Logger) ([]*User, error) {
	count, err := users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		logger.Info("users exist, skipping user seed", "count", count)
		return nil, nil
	}

	hash, err := hasher.Hash(SeedPassword)
	if err != nil {
		return nil, fmt.Errorf("hashing seed password: %w", err)
	}

	groups := []struct {
		role   Role
		prefix string
		n      int
	}{
		{RoleLecturer, "lecturer", plan.Lecturers},
		{RoleAdmin, "admin", plan.Admins},
		{RoleStudent, "student", plan.Students},
	}

	var created []*User
	for _, g := range groups {
		for i := 1; i <= g.n; i++ {
			seq := len(created)
			u := &User{
				Email:        fmt.Sprintf("%s%03d@academia.test", g.prefix, i),
				PasswordHash: hash,
				Role:         g.role,
				FirstName:    seedFirstNames[seq%len(seedFirstNames)],
				LastName:     seedLastNames[(seq/len(seedFirstNames)+seq)%len(seedLastNames)],
			}
			if err := users.Create(ctx, u); err != nil {
				return created, fmt.Errorf("creating seed user %s: %w", u.Email, err)
			}
			created = append(created, u)
		}
	}

	logger.Info("seeded users",
		"lecturers", plan.Lecturers,
		"admins", plan.Admins,
		"students", plan.Students,
	)
	return created, nil
}
