package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/hackgods/medbook/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ReadRatio    float64
	Days         int // bookings target the next Days days
	Hotspot      float64
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

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
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
	lo = latencies[0]
	hi = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, lo, hi, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking      OperationMetrics
	Availability OperationMetrics
}

type doctorRef struct {
	ID    uuid.UUID
	Types []string
}

// Simulator drives the public API. Admitted bookings are tracked per slot so
// the report can show whether any slot was admitted twice.
type Simulator struct {
	config  SimConfig
	log     zerolog.Logger
	client  *http.Client
	doctors []doctorRef
	slots   []string
	metrics Metrics

	mu       sync.Mutex
	admitted map[string]int
}

func main() {
	_ = godotenv.Load()
	log := logging.New(getEnv("APP_ENV", "dev"), getEnv("LOG_LEVEL", "info"), "simulate")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("read", cfg.ReadRatio).
		Float64("hotspot", cfg.Hotspot).
		Msg("simulator starting")

	sim := &Simulator{
		config:   cfg,
		log:      log,
		client:   &http.Client{Timeout: 10 * time.Second},
		slots:    splitSlots(getEnv("SLOT_TIMES", "09:00,10:00,11:00,12:00,13:00,14:00,15:00,16:00,17:00")),
		admitted: make(map[string]int),
	}
	if len(sim.slots) == 0 {
		log.Fatal().Msg("SLOT_TIMES is empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err := sim.loadDoctors(ctx)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("load doctors")
	}
	log.Info().Int("doctors", len(sim.doctors)).Msg("loaded doctors")

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.6),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.4),
		Days:         getInt("SIM_DAYS", 7),
		Hotspot:      getFloat("SIM_HOTSPOT", 0.3),
	}

	total := cfg.BookingRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

func (s *Simulator) loadDoctors(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+"/api/doctors", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET /api/doctors: %s", resp.Status)
	}

	var doctors []struct {
		ID                uuid.UUID `json:"id"`
		ConsultationTypes []string  `json:"consultationTypes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doctors); err != nil {
		return fmt.Errorf("decode doctors: %w", err)
	}
	for _, d := range doctors {
		s.doctors = append(s.doctors, doctorRef{ID: d.ID, Types: d.ConsultationTypes})
	}
	if len(s.doctors) == 0 {
		return fmt.Errorf("no doctors; run medbookctl seed first")
	}
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

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

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if rng.Float64() < s.config.BookingRatio {
				s.doBooking(ctx, rng)
			} else {
				s.doAvailability(ctx, rng)
			}
		}
	}
}

// pick chooses a target slot. With probability Hotspot every worker aims at
// the first doctor's first slot tomorrow, which forces contention.
func (s *Simulator) pick(rng *rand.Rand) (doctorRef, string, string) {
	tomorrow := time.Now().UTC().AddDate(0, 0, 1)
	if rng.Float64() < s.config.Hotspot {
		return s.doctors[0], tomorrow.Format("2006-01-02"), s.slots[0]
	}
	d := s.doctors[rng.Intn(len(s.doctors))]
	day := tomorrow.AddDate(0, 0, rng.Intn(s.config.Days))
	return d, day.Format("2006-01-02"), s.slots[rng.Intn(len(s.slots))]
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	d, date, slot := s.pick(rng)
	ct := "clinic"
	if len(d.Types) > 0 {
		ct = d.Types[rng.Intn(len(d.Types))]
	}

	body, _ := json.Marshal(map[string]string{
		"doctorId":         d.ID.String(),
		"patientName":      fmt.Sprintf("Sim Patient %d", rng.Intn(100000)),
		"date":             date,
		"time":             slot,
		"consultationType": ct,
	})

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/api/bookings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false
	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			s.mu.Lock()
			s.admitted[d.ID.String()+"|"+date+"|"+slot]++
			s.mu.Unlock()
		case http.StatusConflict:
			conflict = true
		}
	} else if ctx.Err() != nil {
		return
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	d, date, _ := s.pick(rng)

	q := url.Values{}
	q.Set("doctorId", d.ID.String())
	q.Set("date", date)

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+"/api/availability?"+q.Encode(), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	} else if ctx.Err() != nil {
		return
	}

	s.metrics.Availability.Record(latency, success, false)
}

// DoubleBooked returns the slots admitted more than once during the run.
func (s *Simulator) DoubleBooked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for key, n := range s.admitted {
		if n > 1 {
			out = append(out, fmt.Sprintf("%s (%d)", key, n))
		}
	}
	sort.Strings(out)
	return out
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Availability", &s.metrics.Availability)

	if dup := s.DoubleBooked(); len(dup) > 0 {
		fmt.Printf("DOUBLE BOOKED SLOTS: %d\n", len(dup))
		for _, k := range dup {
			fmt.Printf("  %s\n", k)
		}
		return
	}
	fmt.Println("No slot was admitted twice.")
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

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
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func splitSlots(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
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
