package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinic-queueing/internal/db"
)

// Load driver for the queue engine: workers join random patients into random
// doctors' queues, call the next patient, and walk called entries through to
// completion, then the run is verified against the ledger.

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	JoinRatio   float64
	CallRatio   float64
	Doctors     int
	Patients    int
	PostgresDSN string
}

func loadSimConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_URL", "http://127.0.0.1:8080"),
		Duration:    getDurationEnv("SIM_DURATION", 30*time.Second),
		Workers:     getIntEnv("SIM_WORKERS", 16),
		JoinRatio:   getFloatEnv("SIM_JOIN_RATIO", 0.5),
		CallRatio:   getFloatEnv("SIM_CALL_RATIO", 0.3),
		Doctors:     getIntEnv("SIM_DOCTORS", 5),
		Patients:    getIntEnv("SIM_PATIENTS", 500),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
	return cfg
}

type DataPool struct {
	Doctors  []uuid.UUID
	Patients []uuid.UUID

	mu     sync.RWMutex
	called []uuid.UUID // queue IDs in status called/in_consultation
}

func (dp *DataPool) AddCalled(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.called = append(dp.called, id)
}

func (dp *DataPool) TakeRandomCalled() (uuid.UUID, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.called) == 0 {
		return uuid.Nil, false
	}
	idx := rand.Intn(len(dp.called))
	id := dp.called[idx]
	dp.called = append(dp.called[:idx], dp.called[idx+1:]...)
	return id, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	Latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict || status == http.StatusNotFound:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))

	idx := func(pct int) int {
		i := len(latencies) * pct / 100
		if i >= len(latencies) {
			i = len(latencies) - 1
		}
		return i
	}
	return avg, latencies[idx(50)], latencies[idx(95)]
}

type Metrics struct {
	Join     OperationMetrics
	CallNext OperationMetrics
	Complete OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cfg := loadSimConfig()
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required (data pool + verification)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration+time.Minute)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	pool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("data pool: %d doctors, %d patients", len(pool.Doctors), len(pool.Patients))

	sim := &Simulator{
		config: cfg,
		pool:   pool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	log.Printf("running %d workers for %s against %s", cfg.Workers, cfg.Duration, cfg.APIBaseURL)
	sim.run(ctx)

	sim.report()

	if err := verifyLedger(ctx, pgPool); err != nil {
		log.Fatalf("VERIFICATION FAILED: %v", err)
	}
	log.Println("verification passed: queue numbers unique and positive per doctor-day")
}

func loadDataPool(ctx context.Context, pgPool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	pool := &DataPool{}

	rows, err := pgPool.Query(ctx, `SELECT id FROM doctors WHERE available ORDER BY created_at LIMIT $1`, cfg.Doctors)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		pool.Doctors = append(pool.Doctors, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := pgPool.Query(ctx, `SELECT id FROM patients ORDER BY created_at LIMIT $1`, cfg.Patients)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var id uuid.UUID
		if err := prows.Scan(&id); err != nil {
			return nil, err
		}
		pool.Patients = append(pool.Patients, id)
	}
	if err := prows.Err(); err != nil {
		return nil, err
	}

	if len(pool.Doctors) == 0 || len(pool.Patients) == 0 {
		return nil, fmt.Errorf("no doctors or patients seeded, run cmd/seed first")
	}
	return pool, nil
}

func (s *Simulator) run(ctx context.Context) {
	deadline := time.Now().Add(s.config.Duration)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) && ctx.Err() == nil {
				s.step(ctx)
			}
		}()
	}
	wg.Wait()
}

func (s *Simulator) step(ctx context.Context) {
	r := rand.Float64()
	switch {
	case r < s.config.JoinRatio:
		s.doJoin(ctx)
	case r < s.config.JoinRatio+s.config.CallRatio:
		s.doCallNext(ctx)
	default:
		if !s.doComplete(ctx) {
			s.doJoin(ctx)
		}
	}
}

func (s *Simulator) doJoin(ctx context.Context) {
	doctorID := s.pool.Doctors[rand.Intn(len(s.pool.Doctors))]
	patientID := s.pool.Patients[rand.Intn(len(s.pool.Patients))]

	body, _ := json.Marshal(map[string]any{
		"doctor_id":      doctorID.String(),
		"patient_id":     patientID.String(),
		"priority_level": 1 + rand.Intn(3),
	})

	status, _, latency := s.post(ctx, "/queue", body)
	s.metrics.Join.Record(latency, status)
}

func (s *Simulator) doCallNext(ctx context.Context) {
	doctorID := s.pool.Doctors[rand.Intn(len(s.pool.Doctors))]

	status, resp, latency := s.post(ctx, "/doctors/"+doctorID.String()+"/queue/call-next", nil)
	s.metrics.CallNext.Record(latency, status)

	if status == http.StatusOK {
		var entry struct {
			ID uuid.UUID `json:"id"`
		}
		if err := json.Unmarshal(resp, &entry); err == nil {
			s.pool.AddCalled(entry.ID)
		}
	}
}

// doComplete walks a called entry through in_consultation to completed.
func (s *Simulator) doComplete(ctx context.Context) bool {
	queueID, ok := s.pool.TakeRandomCalled()
	if !ok {
		return false
	}

	for _, next := range []string{"in_consultation", "completed"} {
		body, _ := json.Marshal(map[string]any{"status": next})
		status, _, latency := s.patch(ctx, "/queue/"+queueID.String()+"/status", body)
		s.metrics.Complete.Record(latency, status)
		if status != http.StatusOK {
			return true
		}
	}
	return true
}

func (s *Simulator) post(ctx context.Context, path string, body []byte) (int, []byte, time.Duration) {
	return s.do(ctx, http.MethodPost, path, body)
}

func (s *Simulator) patch(ctx context.Context, path string, body []byte) (int, []byte, time.Duration) {
	return s.do(ctx, http.MethodPatch, path, body)
}

func (s *Simulator) do(ctx context.Context, method, path string, body []byte) (int, []byte, time.Duration) {
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, 0
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, nil, latency
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data, latency
}

func (s *Simulator) report() {
	print := func(name string, om *OperationMetrics) {
		avg, p50, p95 := om.Stats()
		log.Printf("%-10s total=%d success=%d conflict=%d error=%d avg=%s p50=%s p95=%s",
			name, om.Total, om.Success, om.Conflict, om.Error, avg, p50, p95)
	}
	print("join", &s.metrics.Join)
	print("call-next", &s.metrics.CallNext)
	print("complete", &s.metrics.Complete)
}

// verifyLedger checks the core ticketing invariant directly in the store:
// within any doctor-day, live and archived queue numbers are distinct.
func verifyLedger(ctx context.Context, pgPool *pgxpool.Pool) error {
	var duplicates int
	err := pgPool.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT doctor_id, day, queue_number
			FROM (
				SELECT doctor_id, day, queue_number FROM queue_entries
				UNION ALL
				SELECT doctor_id, day, queue_number FROM queue_archive
			) all_tickets
			GROUP BY doctor_id, day, queue_number
			HAVING COUNT(*) > 1
		) dup
	`).Scan(&duplicates)
	if err != nil {
		return fmt.Errorf("query duplicates: %w", err)
	}
	if duplicates > 0 {
		return fmt.Errorf("%d duplicated (doctor, day, queue_number) tickets", duplicates)
	}

	var nonPositive int
	err = pgPool.QueryRow(ctx, `
		SELECT COUNT(*) FROM queue_entries WHERE queue_number < 1
	`).Scan(&nonPositive)
	if err != nil {
		return fmt.Errorf("query non-positive numbers: %w", err)
	}
	if nonPositive > 0 {
		return fmt.Errorf("%d entries with non-positive queue numbers", nonPositive)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
