// Package agent replays recorded sensor data as live agent samples.
package agent

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"sync"

	"github.com/couchcryptid/road-telemetry-service/internal/domain"
)

// Data file names inside the data directory. Only the accelerometer file is
// required; the others may be missing or shorter.
const (
	AccelerometerFile = "accelerometer.csv"
	GPSFile           = "gps.csv"
	ParkingFile       = "parking.csv"
	RainFile          = "rain.csv"
	TemperatureFile   = "temp.csv"
)

// FileDatasource zips the per-sensor CSV files row by row. Sensors with fewer
// rows than the accelerometer default to zero values (and no parking) for
// the remaining rows. Reads cycle through the rows indefinitely.
type FileDatasource struct {
	mu   sync.Mutex
	rows []domain.AggregatedData
	next int
}

// LoadFiles reads all sensor files from fsys.
func LoadFiles(fsys fs.FS, userID int) (*FileDatasource, error) {
	accel, err := readColumns(fsys, AccelerometerFile, true, "x", "y", "z")
	if err != nil {
		return nil, err
	}
	if len(accel) == 0 {
		return nil, fmt.Errorf("%s: no rows", AccelerometerFile)
	}
	gps, err := readColumns(fsys, GPSFile, false, "latitude", "longitude")
	if err != nil {
		return nil, err
	}
	parking, err := readColumns(fsys, ParkingFile, false, "empty_count", "latitude", "longitude")
	if err != nil {
		return nil, err
	}
	rain, err := readColumns(fsys, RainFile, false, "intensity")
	if err != nil {
		return nil, err
	}
	temp, err := readColumns(fsys, TemperatureFile, false, "temperature")
	if err != nil {
		return nil, err
	}

	rows := make([]domain.AggregatedData, len(accel))
	for i, a := range accel {
		row := &rows[i]
		row.UserID = userID
		if row.Accelerometer, err = parseAccelerometer(a); err != nil {
			return nil, fmt.Errorf("%s row %d: %w", AccelerometerFile, i+1, err)
		}
		if i < len(gps) {
			if row.GPS, err = parseGPS(gps[i][0], gps[i][1]); err != nil {
				return nil, fmt.Errorf("%s row %d: %w", GPSFile, i+1, err)
			}
		}
		if i < len(parking) {
			p, err := parseParking(parking[i])
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %w", ParkingFile, i+1, err)
			}
			row.Parking = &p
		}
		if i < len(rain) {
			if row.Rain.Intensity, err = strconv.ParseFloat(rain[i][0], 64); err != nil {
				return nil, fmt.Errorf("%s row %d: %w", RainFile, i+1, err)
			}
		}
		if i < len(temp) {
			if row.Temperature, err = strconv.ParseFloat(temp[i][0], 64); err != nil {
				return nil, fmt.Errorf("%s row %d: %w", TemperatureFile, i+1, err)
			}
		}
	}

	return &FileDatasource{rows: rows}, nil
}

// Len returns the number of distinct rows before the sequence repeats.
func (d *FileDatasource) Len() int {
	return len(d.rows)
}

// Read returns the next row stamped with the current time.
func (d *FileDatasource) Read() domain.AggregatedData {
	d.mu.Lock()
	row := d.rows[d.next]
	d.next = (d.next + 1) % len(d.rows)
	d.mu.Unlock()

	if row.Parking != nil {
		p := *row.Parking
		row.Parking = &p
	}
	row.Timestamp = domain.Now()
	return row
}

// readColumns returns the named columns of every data row, in the order
// requested. A missing optional file yields no rows.
func readColumns(fsys fs.FS, name string, required bool, columns ...string) ([][]string, error) {
	f, err := fsys.Open(name)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: missing header", name)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	idx := make([]int, len(columns))
	for i, col := range columns {
		idx[i] = -1
		for j, h := range header {
			if h == col {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil, fmt.Errorf("%s: missing column %q", name, col)
		}
	}

	var out [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		vals := make([]string, len(idx))
		for i, j := range idx {
			vals[i] = rec[j]
		}
		out = append(out, vals)
	}
}

func parseAccelerometer(v []string) (domain.Accelerometer, error) {
	var a domain.Accelerometer
	var err error
	if a.X, err = strconv.Atoi(v[0]); err != nil {
		return a, err
	}
	if a.Y, err = strconv.Atoi(v[1]); err != nil {
		return a, err
	}
	a.Z, err = strconv.Atoi(v[2])
	return a, err
}

func parseGPS(lat, lon string) (domain.GPS, error) {
	var g domain.GPS
	var err error
	if g.Latitude, err = strconv.ParseFloat(lat, 64); err != nil {
		return g, err
	}
	g.Longitude, err = strconv.ParseFloat(lon, 64)
	return g, err
}

func parseParking(v []string) (domain.Parking, error) {
	var p domain.Parking
	var err error
	if p.EmptyCount, err = strconv.Atoi(v[0]); err != nil {
		return p, err
	}
	p.GPS, err = parseGPS(v[1], v[2])
	return p, err
}
