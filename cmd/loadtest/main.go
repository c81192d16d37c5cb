package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jobboard/server/internal/loadtest"
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:3000", "base URL of the server to test")
		profile   = flag.String("profile", "light", "load profile: light, medium, heavy, stress")
		rps       = flag.Int("rps", 0, "custom requests per second (overrides profile)")
		duration  = flag.Duration("duration", 0, "custom steady-state duration (overrides profile)")
		readRatio = flag.Float64("read-ratio", 0, "share of requests that list jobs, 0.0-1.0 (overrides profile)")
		noRamp    = flag.Bool("no-ramp", false, "disable ramp-up and ramp-down")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, ok := loadtest.LoadProfiles[loadtest.LoadProfile(*profile)]
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown profile %q\n", *profile)
		os.Exit(2)
	}
	if *rps > 0 {
		cfg.RequestsPerSecond = *rps
	}
	if *duration > 0 {
		cfg.Duration = *duration
	}
	if *readRatio > 0 {
		cfg.ReadWriteRatio = *readRatio
	}
	if *noRamp {
		cfg.RampUpTime = 0
		cfg.RampDownTime = 0
	}

	fmt.Printf("Load testing %s: %d req/s for %s (ramp %s/%s), %.0f%% reads\n",
		*baseURL, cfg.RequestsPerSecond, cfg.Duration, cfg.RampUpTime, cfg.RampDownTime, cfg.ReadWriteRatio*100)

	stats, err := loadtest.NewLoadTester(*baseURL).RunCustom(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(stats.Report())
}
