package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-slot-ledger/internal/config"
	"github.com/hackgods/clinic-slot-ledger/internal/db"
)

var qualifications = []string{
	"MBBS",
	"MBBS, MD (General Medicine)",
	"MBBS, MS (Orthopaedics)",
	"MBBS, MD (Paediatrics)",
	"MBBS, DNB (Cardiology)",
	"BDS",
	"MBBS, MD (Dermatology)",
	"MBBS, DLO (ENT)",
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the doctor and patient directory with fake data",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctors, _ := cmd.Flags().GetInt("doctors")
			patients, _ := cmd.Flags().GetInt("patients")
			migrate, _ := cmd.Flags().GetBool("migrate")
			return run(logger, doctors, patients, migrate)
		},
	}
	cmd.Flags().Int("doctors", 20, "Number of doctors to create")
	cmd.Flags().Int("patients", 2000, "Number of patients to create")
	cmd.Flags().Bool("migrate", true, "Apply pending migrations first")

	if err := cmd.Execute(); err != nil {
		logger.Error().Err(err).Msg("seed failed")
		os.Exit(1)
	}
}

func run(logger zerolog.Logger, doctors, patients int, migrate bool) error {
	logger.Info().Msg("seed starting")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, logger, 0)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if migrate {
		if _, err := db.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	if err := seedDoctors(ctx, logger, pool, faker, doctors); err != nil {
		return fmt.Errorf("seed doctors: %w", err)
	}
	if err := seedPatients(ctx, logger, pool, faker, patients); err != nil {
		return fmt.Errorf("seed patients: %w", err)
	}

	logger.Info().Msg("seed complete")
	return nil
}

func seedDoctors(ctx context.Context, logger zerolog.Logger, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) error {
	logger.Info().Int("count", count).Msg("seeding doctors")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		name := "Dr. " + faker.Name()
		qualification := qualifications[faker.Number(0, len(qualifications)-1)]
		// Fees are whole multiples of 50 between 300 and 1500.
		fee := float64(faker.Number(6, 30) * 50)

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (name, qualification, default_fee, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, name, qualification, fee)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Msg("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, logger zerolog.Logger, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (name, email, created_at, updated_at)
				VALUES ($1, $2, now(), now())
			`, faker.Name(), faker.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info().Int("done", end).Int("total", count).Msg("patients batch committed")
	}

	return nil
}
