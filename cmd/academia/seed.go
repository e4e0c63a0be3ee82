package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/academia-core/internal/auth"
	"github.com/nerrad567/academia-core/internal/course"
)

func seedCmd(configPath *string) *cobra.Command {
	var courses int

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate an empty database with demo accounts and courses",
		Long: `Create 20 lecturers, 10 admins and 70 students sharing the password
"` + auth.SeedPassword + `", then courses spread across the lecturers.
Tables that already hold rows are left untouched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, log, db, err := bootstrap(ctx, *configPath)
			if err != nil {
				return err
			}
			defer closeDB(log, db)

			if _, err := db.Migrate(ctx); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}

			users, err := auth.SeedUsers(ctx, auth.NewUserRepository(db.DB),
				auth.NewHasher(cfg.Security.Password.BcryptCost), auth.DefaultSeedPlan, log.Logger)
			if err != nil {
				return fmt.Errorf("seeding users: %w", err)
			}
			if len(users) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "users already present, nothing seeded")
				return nil
			}

			created, err := course.SeedCourses(ctx, course.NewSQLiteRepository(db.DB), users, courses, log.Logger)
			if err != nil {
				return fmt.Errorf("seeding courses: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users and %d courses\n", len(users), len(created))
			return nil
		},
	}

	cmd.Flags().IntVar(&courses, "courses", course.DefaultSeedCourses, "number of courses to create")
	return cmd
}
