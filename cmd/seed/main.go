package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinic-queueing/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(context.Background(), pool, 40)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	patientIDs, err := seedPatients(context.Background(), pool, 2000)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, doctorIDs, patientIDs); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		specialty := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := pool.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, available, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, "Dr. "+gofakeit.Name(), specialty, gofakeit.Number(0, 9) > 0)
		if err != nil {
			return nil, err
		}

		// Weekday clinic hours, a late start or early finish here and there.
		startMin := 8*60 + gofakeit.Number(0, 2)*30
		endMin := 16*60 + gofakeit.Number(0, 4)*30
		for weekday := 1; weekday <= 5; weekday++ {
			_, err := pool.Exec(ctx, `
				INSERT INTO working_hours (doctor_id, weekday, start_minute, end_minute)
				VALUES ($1, $2, $3, $4)
			`, id, weekday, startMin, endMin)
			if err != nil {
				return nil, err
			}
		}

		ids = append(ids, id)
	}
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		_, err := pool.Exec(ctx, `
			INSERT INTO patients (id, name, phone, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, gofakeit.Name(), gofakeit.Phone())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// seedAppointments books a handful of half-hour appointments per doctor for
// today so slot listings have gaps to work around.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, doctorIDs, patientIDs []uuid.UUID) error {
	log.Printf("seeding appointments for %d doctors", len(doctorIDs))

	now := time.Now()
	day := now.Format("2006-01-02")
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	statuses := []string{"pending", "confirmed", "confirmed", "confirmed", "cancelled"}

	for _, doctorID := range doctorIDs {
		for i := 0; i < gofakeit.Number(2, 6); i++ {
			startMin := 9*60 + gofakeit.Number(0, 13)*30
			start := midnight.Add(time.Duration(startMin) * time.Minute)
			patientID := patientIDs[gofakeit.Number(0, len(patientIDs)-1)]

			_, err := pool.Exec(ctx, `
				INSERT INTO appointments (id, doctor_id, patient_id, day, start_time, end_time, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
			`, uuid.New(), doctorID, patientID, day, start, start.Add(30*time.Minute),
				statuses[gofakeit.Number(0, len(statuses)-1)])
			if err != nil {
				return err
			}
		}
	}
	return nil
}
