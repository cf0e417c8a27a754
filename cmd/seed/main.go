package main

import (
	"context"
	"log"
	"os"
	"time"

	gofakeit "github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/cabinet-scheduling/internal/db"
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

	seedCtx := context.Background()

	cabinets, err := seedCabinets(seedCtx, pool, 5)
	if err != nil {
		log.Fatalf("seed cabinets: %v", err)
	}
	practitioners, err := seedPractitioners(seedCtx, pool, cabinets, 8)
	if err != nil {
		log.Fatalf("seed practitioners: %v", err)
	}
	patients, err := seedPatients(seedCtx, pool, cabinets, 400)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedAppointments(seedCtx, pool, practitioners, patients, 12); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedCabinets(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d cabinets", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Company() + " Clinic"

		_, err := tx.Exec(ctx, `
			INSERT INTO cabinets (id, name, timezone, reminders_enabled, created_at, updated_at)
			VALUES ($1, $2, 'UTC', TRUE, now(), now())
		`, id, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("cabinets seeded")
	return ids, nil
}

type seededPractitioner struct {
	ID        uuid.UUID
	CabinetID uuid.UUID
}

func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, cabinets []uuid.UUID, perCabinet int) ([]seededPractitioner, error) {
	log.Printf("seeding %d practitioners per cabinet", perCabinet)

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

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var out []seededPractitioner
	for _, cabinetID := range cabinets {
		for i := 0; i < perCabinet; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			spec := specialties[gofakeit.Number(0, len(specialties)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO practitioners (id, cabinet_id, name, specialty, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, cabinetID, name, spec)
			if err != nil {
				return nil, err
			}
			out = append(out, seededPractitioner{ID: id, CabinetID: cabinetID})
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("practitioners seeded")
	return out, nil
}

type seededPatient struct {
	ID        uuid.UUID
	CabinetID uuid.UUID
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, cabinets []uuid.UUID, perCabinet int) ([]seededPatient, error) {
	log.Printf("seeding %d patients per cabinet", perCabinet)

	const batchSize = 200

	var out []seededPatient
	for _, cabinetID := range cabinets {
		for offset := 0; offset < perCabinet; offset += batchSize {
			end := offset + batchSize
			if end > perCabinet {
				end = perCabinet
			}

			tx, err := pool.Begin(ctx)
			if err != nil {
				return nil, err
			}

			for i := offset; i < end; i++ {
				id := uuid.New()
				name := gofakeit.Name()
				email := gofakeit.Email()
				phone := gofakeit.Phone()

				_, err := tx.Exec(ctx, `
					INSERT INTO patients (id, cabinet_id, name, email, phone, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, now(), now())
				`, id, cabinetID, name, email, phone)
				if err != nil {
					_ = tx.Rollback(ctx)
					return nil, err
				}
				out = append(out, seededPatient{ID: id, CabinetID: cabinetID})
			}

			if err := tx.Commit(ctx); err != nil {
				return nil, err
			}
		}
	}

	log.Println("patients seeded")
	return out, nil
}

// seedAppointments books each practitioner a run of back-to-back slots over
// the coming days. Sequential windows per practitioner keep the exclusion
// constraint happy without retry loops.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, practitioners []seededPractitioner, patients []seededPatient, perPractitioner int) error {
	log.Printf("seeding %d appointments per practitioner", perPractitioner)

	services := []string{"Consultation", "Follow-up", "Checkup", "Procedure", "Vaccination"}
	durations := []int{15, 30, 45, 60}

	patientsByCabinet := make(map[uuid.UUID][]seededPatient)
	for _, p := range patients {
		patientsByCabinet[p.CabinetID] = append(patientsByCabinet[p.CabinetID], p)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, pract := range practitioners {
		pool := patientsByCabinet[pract.CabinetID]
		if len(pool) == 0 {
			continue
		}

		start := time.Now().UTC().Truncate(time.Hour).Add(time.Duration(gofakeit.Number(1, 48)) * time.Hour)
		for i := 0; i < perPractitioner; i++ {
			patient := pool[gofakeit.Number(0, len(pool)-1)]
			duration := durations[gofakeit.Number(0, len(durations)-1)]
			service := services[gofakeit.Number(0, len(services)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO appointments (id, cabinet_id, patient_id, practitioner_id, scheduled_at, duration_minutes, status, title, service_type, notes, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, 'scheduled', $7, $8, '', now(), now())
			`, uuid.New(), pract.CabinetID, patient.ID, pract.ID, start, duration, service+" - "+gofakeit.Name(), service)
			if err != nil {
				return err
			}

			// Leave a gap so some slots stay free for booking demos.
			start = start.Add(time.Duration(duration+gofakeit.Number(0, 30)) * time.Minute)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("appointments seeded")
	return nil
}
