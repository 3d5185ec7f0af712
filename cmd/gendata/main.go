// Command gendata writes synthetic agent sensor CSV files and reports how the
// edge classifier would label them. It runs the real domain classifier over
// the generated trace so the printed breakdown matches pipeline behavior.
//
// Usage:
//
//	go run ./cmd/gendata -out data -rows 150 -seed 7
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/couchcryptid/road-telemetry-service/internal/agent"
	"github.com/couchcryptid/road-telemetry-service/internal/domain"
)

const (
	baseZ        = 16500
	baseLat      = 50.4501
	baseLon      = 30.5234
	anomalyEvery = 12 // one bump or pit roughly every N rows
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data", "output directory for the CSV files")
	rows := flag.Int("rows", 150, "number of rows per sensor file")
	seed := flag.Uint64("seed", 1, "random seed")
	window := flag.Int("window", domain.DefaultWindowSize, "classifier window size for the report")
	threshold := flag.Float64("threshold", domain.DefaultAnomalyThreshold, "classifier threshold for the report")
	flag.Parse()

	if *rows < 1 {
		flag.Usage()
		return fmt.Errorf("-rows must be positive")
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	accel := genAccelerometer(rng, *rows)
	rain := genRain(rng, *rows)

	files := []struct {
		name   string
		header []string
		rows   [][]string
	}{
		{agent.AccelerometerFile, []string{"x", "y", "z"}, accelRows(accel)},
		{agent.GPSFile, []string{"latitude", "longitude"}, genGPS(*rows)},
		{agent.ParkingFile, []string{"empty_count", "latitude", "longitude"}, genParking(rng, *rows/3)},
		{agent.RainFile, []string{"intensity"}, floatRows(rain, 4)},
		{agent.TemperatureFile, []string{"temperature"}, floatRows(genTemperature(rng, *rows), 2)},
	}
	for _, f := range files {
		path := filepath.Join(*out, f.name)
		if err := writeCSV(path, f.header, f.rows); err != nil {
			return fmt.Errorf("writing %s: %w", f.name, err)
		}
		log.Printf("wrote %s: %d rows", path, len(f.rows))
	}

	printStats(accel, rain, *window, *threshold)
	return nil
}

// genAccelerometer produces a flat z trace with small noise and occasional
// short bumps (z up) and pits (z down).
func genAccelerometer(rng *rand.Rand, n int) []domain.Accelerometer {
	out := make([]domain.Accelerometer, n)
	for i := range out {
		z := baseZ + rng.IntN(61) - 30
		if i > 0 && i%anomalyEvery == 0 {
			delta := 400 + rng.IntN(600)
			if rng.IntN(2) == 0 {
				delta = -delta
			}
			z += delta
		}
		out[i] = domain.Accelerometer{
			X: rng.IntN(201) - 100,
			Y: rng.IntN(201) - 100,
			Z: z,
		}
	}
	return out
}

// genRain follows one sine period across the trace, clipped to [0, 1].
func genRain(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		x := -2.2*math.Pi + 3.2*math.Pi*float64(i)/float64(max(n-1, 1))
		v := math.Sin(x) + rng.NormFloat64()*0.02
		out[i] = math.Min(1, math.Max(0, v))
	}
	return out
}

// genTemperature is uniform in [23, 27].
func genTemperature(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Round((23+4*rng.Float64())*100) / 100
	}
	return out
}

func genGPS(n int) [][]string {
	out := make([][]string, n)
	for i := range out {
		out[i] = []string{
			strconv.FormatFloat(baseLat+float64(i)*0.0001, 'f', 6, 64),
			strconv.FormatFloat(baseLon+float64(i)*0.00015, 'f', 6, 64),
		}
	}
	return out
}

func genParking(rng *rand.Rand, n int) [][]string {
	out := make([][]string, n)
	for i := range out {
		out[i] = []string{
			strconv.Itoa(rng.IntN(21)),
			strconv.FormatFloat(baseLat+float64(i)*0.0003, 'f', 6, 64),
			strconv.FormatFloat(baseLon+float64(i)*0.00045, 'f', 6, 64),
		}
	}
	return out
}

func accelRows(accel []domain.Accelerometer) [][]string {
	out := make([][]string, len(accel))
	for i, a := range accel {
		out[i] = []string{strconv.Itoa(a.X), strconv.Itoa(a.Y), strconv.Itoa(a.Z)}
	}
	return out
}

func floatRows(vals []float64, prec int) [][]string {
	out := make([][]string, len(vals))
	for i, v := range vals {
		out[i] = []string{strconv.FormatFloat(v, 'f', prec, 64)}
	}
	return out
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return f.Close()
}

type stateCount struct {
	state string
	count int
}

func printStats(accel []domain.Accelerometer, rain []float64, windowSize int, threshold float64) {
	road := map[string]int{}
	w := domain.NewWindow(windowSize, threshold)
	for _, a := range accel {
		road[string(w.Push(a))]++
	}

	rainCounts := map[string]int{}
	for _, r := range rain {
		rainCounts[string(domain.BucketRain(r))]++
	}

	fmt.Printf("\n=== Generated Data Stats ===\n")
	fmt.Printf("Rows: %d (window %d, threshold %g)\n", len(accel), windowSize, threshold)
	fmt.Printf("\nRoad states:\n")
	for _, sc := range sorted(road) {
		fmt.Printf("  %-16s %d\n", sc.state, sc.count)
	}
	fmt.Printf("\nRain states:\n")
	for _, sc := range sorted(rainCounts) {
		fmt.Printf("  %-16s %d\n", sc.state, sc.count)
	}
}

func sorted(m map[string]int) []stateCount {
	out := make([]stateCount, 0, len(m))
	for k, v := range m {
		out = append(out, stateCount{k, v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].state < out[j].state
	})
	return out
}
