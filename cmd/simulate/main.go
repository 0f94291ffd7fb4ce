package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-ledger/internal/appointment"
	"github.com/hackgods/clinic-slot-ledger/internal/config"
	"github.com/hackgods/clinic-slot-ledger/internal/db"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	Days          int
	BookRatio     float64
	ApproveRatio  float64
	CancelRatio   float64
	CompleteRatio float64
	ReadRatio     float64
	PatientLimit  int
	PostgresDSN   string
}

// DataPool holds directory ids and the appointments this run created.
type DataPool struct {
	Doctors  []int64
	Patients []int64
	Dates    []string

	mu           sync.Mutex
	appointments []int64
}

func (dp *DataPool) AddAppointment(id int64) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

// TakeAppointment removes and returns a random appointment id.
func (dp *DataPool) TakeAppointment(rng *rand.Rand) (int64, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.appointments) == 0 {
		return 0, false
	}
	idx := rng.Intn(len(dp.appointments))
	id := dp.appointments[idx]
	dp.appointments[idx] = dp.appointments[len(dp.appointments)-1]
	dp.appointments = dp.appointments[:len(dp.appointments)-1]
	return id, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, pct int) int {
	idx := n * pct / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Book       OperationMetrics
	Approve    OperationMetrics
	Cancel     OperationMetrics
	Complete   OperationMetrics
	QuerySlots OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	log     zerolog.Logger
	metrics Metrics
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	logger.Info().Msg("simulator starting")

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Int("days", cfg.Days).
		Msg("simulation config")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, logger, 0)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}

	logger.Info().Int("doctors", len(dataPool.Doctors)).Int("patients", len(dataPool.Patients)).Strs("dates", dataPool.Dates).Msg("data loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() (SimConfig, error) {
	baseCfg, err := config.Load()
	if err != nil {
		return SimConfig{}, fmt.Errorf("load base config: %w", err)
	}

	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		Days:          getInt("SIM_DAYS", 3),
		BookRatio:     getFloat("SIM_BOOK_RATIO", 0.45),
		ApproveRatio:  getFloat("SIM_APPROVE_RATIO", 0.2),
		CancelRatio:   getFloat("SIM_CANCEL_RATIO", 0.1),
		CompleteRatio: getFloat("SIM_COMPLETE_RATIO", 0.05),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.2),
		PatientLimit:  getInt("SIM_PATIENT_LIMIT", 2000),
		PostgresDSN:   baseCfg.PostgresDSN,
	}

	total := cfg.BookRatio + cfg.ApproveRatio + cfg.CancelRatio + cfg.CompleteRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookRatio /= total
		cfg.ApproveRatio /= total
		cfg.CancelRatio /= total
		cfg.CompleteRatio /= total
		cfg.ReadRatio /= total
	}

	if cfg.Workers <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_DAYS must be > 0")
	}
	return cfg, nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM doctors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Doctors = append(dataPool.Doctors, id)
	}
	rows.Close()

	rows, err = pool.Query(ctx, `SELECT id FROM patients ORDER BY id LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()

	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors loaded, run cmd/seed first")
	}
	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run cmd/seed first")
	}

	// Start two days out so patient cancellations stay outside the window.
	today := time.Now()
	for i := 0; i < cfg.Days; i++ {
		dataPool.Dates = append(dataPool.Dates, today.AddDate(0, 0, 2+i).Format("2006-01-02"))
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < c.BookRatio:
			s.doBook(ctx, rng)
		case r < c.BookRatio+c.ApproveRatio:
			s.doApprove(ctx, rng)
		case r < c.BookRatio+c.ApproveRatio+c.CancelRatio:
			s.doCancel(ctx, rng)
		case r < c.BookRatio+c.ApproveRatio+c.CancelRatio+c.CompleteRatio:
			s.doComplete(ctx, rng)
		default:
			s.doQuerySlots(ctx, rng)
		}
	}
}

func (s *Simulator) randomDoctor(rng *rand.Rand) int64 {
	return s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
}

func (s *Simulator) randomDate(rng *rand.Rand) string {
	return s.pool.Dates[rng.Intn(len(s.pool.Dates))]
}

// call sends one request and reports latency, status and body.
func (s *Simulator) call(ctx context.Context, method, path string, body any) (time.Duration, int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, 0, nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return latency, 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	return latency, resp.StatusCode, data, err
}

func (s *Simulator) doBook(ctx context.Context, rng *rand.Rand) {
	slots := appointment.SlotTimes()

	latency, status, body, err := s.call(ctx, http.MethodPost, "/appointments", map[string]any{
		"patient_id": s.pool.Patients[rng.Intn(len(s.pool.Patients))],
		"doctor_id":  s.randomDoctor(rng),
		"date":       s.randomDate(rng),
		"time":       slots[rng.Intn(len(slots))],
		"symptoms":   "simulated visit",
	})
	if err != nil && ctx.Err() != nil {
		return
	}

	success := err == nil && status == http.StatusCreated
	if success {
		var resp struct {
			ID int64 `json:"id"`
		}
		if json.Unmarshal(body, &resp) == nil && resp.ID > 0 {
			s.pool.AddAppointment(resp.ID)
		}
	}

	s.metrics.Book.Record(latency, success, status == http.StatusConflict)
}

func (s *Simulator) doApprove(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.TakeAppointment(rng)
	if !ok {
		return
	}

	latency, status, _, err := s.call(ctx, http.MethodPost, fmt.Sprintf("/appointments/%d/approve", id), nil)
	if err != nil && ctx.Err() != nil {
		return
	}

	success := err == nil && status == http.StatusOK
	if success {
		s.pool.AddAppointment(id)
	}
	s.metrics.Approve.Record(latency, success, status == http.StatusConflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.TakeAppointment(rng)
	if !ok {
		return
	}

	latency, status, _, err := s.call(ctx, http.MethodPost, fmt.Sprintf("/appointments/%d/cancel", id), map[string]any{
		"actor":  "admin",
		"reason": "simulated cancellation",
	})
	if err != nil && ctx.Err() != nil {
		return
	}

	success := err == nil && status == http.StatusOK
	s.metrics.Cancel.Record(latency, success, status == http.StatusConflict)
}

func (s *Simulator) doComplete(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.TakeAppointment(rng)
	if !ok {
		return
	}

	latency, status, _, err := s.call(ctx, http.MethodPost, fmt.Sprintf("/appointments/%d/complete", id), map[string]any{
		"diagnosis": "Simulated diagnosis",
		"notes":     "Follow up in two weeks",
	})
	if err != nil && ctx.Err() != nil {
		return
	}

	success := err == nil && status == http.StatusOK
	conflict := status == http.StatusConflict
	if conflict {
		// Still PENDING; keep it around for a later approve.
		s.pool.AddAppointment(id)
	}
	s.metrics.Complete.Record(latency, success, conflict)
}

func (s *Simulator) doQuerySlots(ctx context.Context, rng *rand.Rand) {
	path := fmt.Sprintf("/doctors/%d/slots?date=%s", s.randomDoctor(rng), s.randomDate(rng))

	latency, status, _, err := s.call(ctx, http.MethodGet, path, nil)
	if err != nil && ctx.Err() != nil {
		return
	}

	s.metrics.QuerySlots.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Dates: %s\n", strings.Join(s.pool.Dates, ", "))
	fmt.Println()

	printOperationReport("Book", &s.metrics.Book)
	printOperationReport("Approve", &s.metrics.Approve)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Complete", &s.metrics.Complete)
	printOperationReport("Query slots", &s.metrics.QuerySlots)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
