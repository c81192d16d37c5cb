// Package loadtest drives realistic traffic at a running job board server:
// browsing the job list, posting jobs and applying to them.
package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type LoadProfile string

const (
	ProfileLight  LoadProfile = "light"  // 5 req/s, 1 minute
	ProfileMedium LoadProfile = "medium" // 20 req/s, 2 minutes
	ProfileHeavy  LoadProfile = "heavy"  // 50 req/s, 5 minutes
	ProfileStress LoadProfile = "stress" // 100 req/s, 10 minutes
)

type ProfileConfig struct {
	RequestsPerSecond int
	Duration          time.Duration
	RampUpTime        time.Duration
	RampDownTime      time.Duration
	// ReadWriteRatio is the share of requests that only list jobs.
	ReadWriteRatio float64
}

var LoadProfiles = map[LoadProfile]ProfileConfig{
	ProfileLight: {
		RequestsPerSecond: 5,
		Duration:          time.Minute,
		RampUpTime:        10 * time.Second,
		RampDownTime:      10 * time.Second,
		ReadWriteRatio:    0.8,
	},
	ProfileMedium: {
		RequestsPerSecond: 20,
		Duration:          2 * time.Minute,
		RampUpTime:        20 * time.Second,
		RampDownTime:      20 * time.Second,
		ReadWriteRatio:    0.8,
	},
	ProfileHeavy: {
		RequestsPerSecond: 50,
		Duration:          5 * time.Minute,
		RampUpTime:        30 * time.Second,
		RampDownTime:      30 * time.Second,
		ReadWriteRatio:    0.7,
	},
	ProfileStress: {
		RequestsPerSecond: 100,
		Duration:          10 * time.Minute,
		RampUpTime:        time.Minute,
		RampDownTime:      time.Minute,
		ReadWriteRatio:    0.6,
	},
}

// LoadTester registers its own account before the run and uses the token
// for every write.
type LoadTester struct {
	baseURL    string
	httpClient *http.Client
	rng        *rand.Rand
	rngMu      sync.Mutex

	token string
	jobID string
	stats *Statistics
}

func NewLoadTester(baseURL string) *LoadTester {
	return &LoadTester{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (lt *LoadTester) Run(ctx context.Context, profile LoadProfile) (*Statistics, error) {
	cfg, ok := LoadProfiles[profile]
	if !ok {
		return nil, fmt.Errorf("unknown profile: %s", profile)
	}
	return lt.RunCustom(ctx, cfg)
}

func (lt *LoadTester) RunCustom(ctx context.Context, cfg ProfileConfig) (*Statistics, error) {
	if cfg.RequestsPerSecond <= 0 {
		return nil, errors.New("requests per second must be positive")
	}
	if err := lt.setup(ctx); err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}

	lt.stats = newStatistics()

	workers := cfg.RequestsPerSecond * 2
	if workers < 10 {
		workers = 10
	}

	work := make(chan workItem, workers*2)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lt.worker(ctx, work)
		}()
	}

	go func() {
		defer close(work)
		lt.generateWork(ctx, cfg, work)
	}()

	wg.Wait()
	lt.stats.endTime = time.Now()
	return lt.stats, nil
}

// setup creates the account and the job that writes apply to.
func (lt *LoadTester) setup(ctx context.Context) error {
	creds := map[string]string{
		"email":    "loadtest-" + uuid.NewString() + "@example.com",
		"password": uuid.NewString(),
	}
	if _, err := lt.call(ctx, http.MethodPost, "/register", creds, http.StatusCreated); err != nil {
		return err
	}

	var login struct {
		Token string `json:"token"`
	}
	body, err := lt.call(ctx, http.MethodPost, "/login", creds, http.StatusOK)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, &login); err != nil || login.Token == "" {
		return fmt.Errorf("login returned no token")
	}
	lt.token = login.Token

	var created struct {
		ID string `json:"id"`
	}
	body, err = lt.call(ctx, http.MethodPost, "/jobs", map[string]string{
		"title":       "Load test position",
		"description": "Created by the load tester",
	}, http.StatusCreated)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, &created); err != nil || created.ID == "" {
		return fmt.Errorf("job creation returned no id")
	}
	lt.jobID = created.ID
	return nil
}

func (lt *LoadTester) call(ctx context.Context, method, path string, payload any, want int) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, lt.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if lt.token != "" {
		req.Header.Set("Authorization", "Bearer "+lt.token)
	}

	resp, err := lt.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

type workItem struct {
	method   string
	path     string
	body     any
	endpoint string
}

func (lt *LoadTester) generateWork(ctx context.Context, cfg ProfileConfig, work chan<- workItem) {
	start := time.Now()
	total := cfg.RampUpTime + cfg.Duration + cfg.RampDownTime

	rps := calculateCurrentRPS(0, cfg)
	ticker := time.NewTicker(time.Second / time.Duration(rps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			elapsed := time.Since(start)
			if elapsed > total {
				return
			}
			if next := calculateCurrentRPS(elapsed, cfg); next != rps {
				rps = next
				ticker.Reset(time.Second / time.Duration(rps))
			}

			item := lt.writeRequest()
			if lt.randFloat() < cfg.ReadWriteRatio {
				item = workItem{method: http.MethodGet, path: "/jobs", endpoint: "list_jobs"}
			}
			select {
			case work <- item:
			case <-ctx.Done():
				return
			}
		}
	}
}

// calculateCurrentRPS ramps linearly up and down around the steady phase,
// never going below one request per second.
func calculateCurrentRPS(elapsed time.Duration, cfg ProfileConfig) int {
	target := cfg.RequestsPerSecond

	scaled := func(progress float64) int {
		if rps := int(float64(target) * progress); rps >= 1 {
			return rps
		}
		return 1
	}

	if elapsed < cfg.RampUpTime {
		return scaled(float64(elapsed) / float64(cfg.RampUpTime))
	}
	steadyEnd := cfg.RampUpTime + cfg.Duration
	if elapsed < steadyEnd {
		return target
	}
	if down := elapsed - steadyEnd; down < cfg.RampDownTime {
		return scaled(1 - float64(down)/float64(cfg.RampDownTime))
	}
	return 1
}

func (lt *LoadTester) writeRequest() workItem {
	if lt.randFloat() < 0.5 {
		return workItem{
			method:   http.MethodPost,
			path:     "/jobs/" + lt.jobID + "/apply",
			endpoint: "apply",
		}
	}
	return workItem{
		method: http.MethodPost,
		path:   "/jobs",
		body: map[string]string{
			"title":       "Load test position " + uuid.NewString()[:8],
			"description": "Created by the load tester",
		},
		endpoint: "create_job",
	}
}

func (lt *LoadTester) randFloat() float64 {
	lt.rngMu.Lock()
	defer lt.rngMu.Unlock()
	return lt.rng.Float64()
}

func (lt *LoadTester) worker(ctx context.Context, work <-chan workItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-work:
			if !ok {
				return
			}
			lt.execute(ctx, item)
		}
	}
}

func (lt *LoadTester) execute(ctx context.Context, item workItem) {
	var body io.Reader
	if item.body != nil {
		data, err := json.Marshal(item.body)
		if err != nil {
			lt.stats.recordError(item.endpoint)
			return
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, item.method, lt.baseURL+item.path, body)
	if err != nil {
		lt.stats.recordError(item.endpoint)
		return
	}
	if item.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if item.method != http.MethodGet {
		req.Header.Set("Authorization", "Bearer "+lt.token)
	}

	start := time.Now()
	resp, err := lt.httpClient.Do(req)
	if err != nil {
		lt.stats.recordError(item.endpoint)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	lt.stats.recordResponse(resp.StatusCode, time.Since(start), item.endpoint)
}

// Statistics collects per-request outcomes. Rate limited responses are
// counted apart from failures.
type Statistics struct {
	mu sync.Mutex

	total       int64
	success     int64
	failed      int64
	rateLimited int64

	responseTimes []time.Duration
	statusCodes   map[int]int64
	endpoints     map[string]*EndpointStats

	startTime time.Time
	endTime   time.Time
}

type EndpointStats struct {
	count  int64
	errors int64
	times  []time.Duration
}

func newStatistics() *Statistics {
	return &Statistics{
		statusCodes: make(map[int]int64),
		endpoints:   make(map[string]*EndpointStats),
		startTime:   time.Now(),
	}
}

func (s *Statistics) endpoint(name string) *EndpointStats {
	ep, ok := s.endpoints[name]
	if !ok {
		ep = &EndpointStats{}
		s.endpoints[name] = ep
	}
	return ep
}

func (s *Statistics) recordResponse(status int, took time.Duration, endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.responseTimes = append(s.responseTimes, took)
	ep := s.endpoint(endpoint)
	ep.count++
	ep.times = append(ep.times, took)

	switch {
	case status >= 200 && status < 300:
		s.success++
	case status == http.StatusTooManyRequests:
		s.rateLimited++
		s.statusCodes[status]++
	default:
		s.failed++
		s.statusCodes[status]++
		ep.errors++
	}
}

// recordError counts a request that never produced a response.
func (s *Statistics) recordError(endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.failed++
	s.endpoint(endpoint).errors++
}

// Counts returns the totals recorded so far.
func (s *Statistics) Counts() (total, success, failed, rateLimited int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total, s.success, s.failed, s.rateLimited
}

func (s *Statistics) Report() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	duration := s.endTime.Sub(s.startTime)
	pct := func(n int64) float64 {
		if s.total == 0 {
			return 0
		}
		return float64(n) / float64(s.total) * 100
	}

	var b strings.Builder
	b.WriteString("\nLOAD TEST RESULTS\n\n")
	fmt.Fprintf(&b, "Duration:        %s\n", duration.Round(time.Second))
	fmt.Fprintf(&b, "Total Requests:  %d\n", s.total)
	fmt.Fprintf(&b, "Successful:      %d (%.1f%%)\n", s.success, pct(s.success))
	fmt.Fprintf(&b, "Rate limited:    %d (%.1f%%)\n", s.rateLimited, pct(s.rateLimited))
	fmt.Fprintf(&b, "Failed:          %d (%.1f%%)\n", s.failed, pct(s.failed))
	if secs := duration.Seconds(); secs > 0 {
		fmt.Fprintf(&b, "Requests/sec:    %.2f\n", float64(s.total)/secs)
	}

	if len(s.responseTimes) > 0 {
		b.WriteString("\nResponse Times:\n")
		fmt.Fprintf(&b, "  p50:      %s\n", percentile(s.responseTimes, 0.50))
		fmt.Fprintf(&b, "  p95:      %s\n", percentile(s.responseTimes, 0.95))
		fmt.Fprintf(&b, "  p99:      %s\n", percentile(s.responseTimes, 0.99))
	}

	if len(s.statusCodes) > 0 {
		codes := make([]int, 0, len(s.statusCodes))
		for code := range s.statusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		b.WriteString("\nNon-2xx by Status Code:\n")
		for _, code := range codes {
			fmt.Fprintf(&b, "  %d: %d\n", code, s.statusCodes[code])
		}
	}

	if len(s.endpoints) > 0 {
		names := make([]string, 0, len(s.endpoints))
		for name := range s.endpoints {
			names = append(names, name)
		}
		sort.Strings(names)

		b.WriteString("\nPer-Endpoint Statistics:\n")
		fmt.Fprintf(&b, "%-12s %8s %8s %12s\n", "Endpoint", "Count", "Errors", "p95")
		for _, name := range names {
			ep := s.endpoints[name]
			fmt.Fprintf(&b, "%-12s %8d %8d %12s\n", name, ep.count, ep.errors, percentile(ep.times, 0.95))
		}
	}
	return b.String()
}

func percentile(times []time.Duration, p float64) time.Duration {
	if len(times) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
