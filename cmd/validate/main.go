// Command validate checks an agent data directory before it is replayed: the
// sensor files must load the way the agent loads them, values must be in
// physical range, and optional files must line up with the accelerometer
// trace. It replays the trace through the real classifier and reports the
// resulting state breakdown.
//
// Usage:
//
//	go run ./cmd/validate -data-dir data
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/road-telemetry-service/internal/agent"
	"github.com/couchcryptid/road-telemetry-service/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dataDir := flag.String("data-dir", "data", "directory containing the agent CSV files")
	windowSize := flag.Int("window", domain.DefaultWindowSize, "classifier window size")
	threshold := flag.Float64("threshold", domain.DefaultAnomalyThreshold, "classifier threshold")
	flag.Parse()

	if code := run(*dataDir, *windowSize, *threshold); code != 0 {
		os.Exit(code)
	}
}

func run(dataDir string, windowSize int, threshold float64) int {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	fmt.Println("=== Agent Data Validation ===")
	fmt.Println()

	ds, err := agent.LoadFiles(os.DirFS(dataDir), 1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load data files: %v\n", err)
		return 1
	}
	samples := make([]domain.AggregatedData, ds.Len())
	for i := range samples {
		samples[i] = ds.Read()
	}

	phases := []*phase{
		validateAlignment(dataDir, len(samples)),
		validateRanges(samples),
	}
	road, rain, replayPhase := replay(samples, windowSize, threshold)
	phases = append(phases, replayPhase)

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Samples: %d\n", len(samples))
	fmt.Printf("Road states: %v\n", road)
	fmt.Printf("Rain states: %v\n", rain)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// validateAlignment flags optional files with more rows than the
// accelerometer file; the agent silently ignores the surplus.
func validateAlignment(dataDir string, accelRows int) *phase {
	p := &phase{name: "Row alignment with accelerometer trace"}
	for _, name := range []string{agent.GPSFile, agent.ParkingFile, agent.RainFile, agent.TemperatureFile} {
		n, err := countRows(filepath.Join(dataDir, name))
		if os.IsNotExist(err) {
			fmt.Printf("  note: %s absent, defaults apply\n", name)
			continue
		}
		if err != nil {
			p.errorf("%s: %v", name, err)
			continue
		}
		if n > accelRows {
			p.errorf("%s has %d rows, accelerometer has %d; %d rows would never be sent", name, n, accelRows, n-accelRows)
		}
	}
	return p
}

func validateRanges(samples []domain.AggregatedData) *phase {
	p := &phase{name: "Sensor values in physical range"}
	for i, s := range samples {
		row := i + 2
		if s.GPS.Latitude < -90 || s.GPS.Latitude > 90 {
			p.errorf("row %d: latitude %v out of range", row, s.GPS.Latitude)
		}
		if s.GPS.Longitude < -180 || s.GPS.Longitude > 180 {
			p.errorf("row %d: longitude %v out of range", row, s.GPS.Longitude)
		}
		if domain.BucketRain(s.Rain.Intensity) == domain.RainInvalid {
			p.errorf("row %d: rain intensity %v outside [0, 1]", row, s.Rain.Intensity)
		}
		if s.Temperature < -60 || s.Temperature > 70 {
			p.errorf("row %d: temperature %v implausible", row, s.Temperature)
		}
		if s.Parking != nil && s.Parking.EmptyCount < 0 {
			p.errorf("row %d: negative parking count %d", row, s.Parking.EmptyCount)
		}
	}
	return p
}

// replay classifies the trace the way one edge session would.
func replay(samples []domain.AggregatedData, windowSize int, threshold float64) (map[domain.RoadState]int, map[domain.RainState]int, *phase) {
	p := &phase{name: "Classifier replay"}
	road := map[domain.RoadState]int{}
	rain := map[domain.RainState]int{}

	w := domain.NewWindow(windowSize, threshold)
	for i, s := range samples {
		state := w.Push(s.Accelerometer)
		if i >= windowSize-1 && state == domain.RoadInsufficientData {
			p.errorf("row %d: window full but classified %q", i+2, state)
		}
		road[state]++
		rain[domain.BucketRain(s.Rain.Intensity)]++
	}
	if len(samples) < 2 {
		p.errorf("trace has %d samples; at least 2 are needed to classify anything", len(samples))
	}
	return road, rain, p
}

func countRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	all, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return 0, err
	}
	if len(all) == 0 {
		return 0, fmt.Errorf("missing header")
	}
	return len(all) - 1, nil
}
