// Package source loads station catalogs and per-day trip histories.
package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"BikeRebalancer/internal/model"
)

// DayLayout is the layout of day identifiers such as "2022-05-05".
const DayLayout = "2006-01-02"

// TripSource yields the historical trips of one day, ordered by start time.
type TripSource interface {
	Trips(day string) ([]model.TripRecord, error)
}

// StationCatalog yields the static station list.
type StationCatalog interface {
	Stations() ([]model.StationInfo, error)
}

// ErrUnknownDay is returned when a source has no data for a day.
var ErrUnknownDay = errors.New("no trips configured for day")

// DayStart parses a day identifier to midnight UTC.
func DayStart(day string) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, day, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", day, err)
	}
	return t, nil
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// readTable reads a headed CSV file and returns its rows keyed by column name.
func readTable(path string, required ...string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, col)
		}
	}

	var rows []map[string]string
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		row := make(map[string]string, len(idx))
		for name, i := range idx {
			if i < len(rec) {
				row[name] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// CSVCatalog reads stations from station_id,station_name,lat,lon[,initial_bikes].
type CSVCatalog struct {
	Path string
}

func (c CSVCatalog) Stations() ([]model.StationInfo, error) {
	rows, err := readTable(c.Path, "station_id")
	if err != nil {
		return nil, err
	}
	out := make([]model.StationInfo, 0, len(rows))
	for i, row := range rows {
		id := row["station_id"]
		if id == "" {
			return nil, fmt.Errorf("%s row %d: empty station_id", c.Path, i+1)
		}
		st := model.StationInfo{ID: id, Name: row["station_name"]}
		st.Lat, _ = strconv.ParseFloat(row["lat"], 64)
		st.Lon, _ = strconv.ParseFloat(row["lon"], 64)
		if v := row["initial_bikes"]; v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%s row %d: bad initial_bikes %q", c.Path, i+1, v)
			}
			st.InitialBikes = &n
		}
		out = append(out, st)
	}
	return out, nil
}

// CSVTrips reads one file per day with columns
// trip_id,start_time,end_time,start_station_id,end_station_id.
type CSVTrips struct {
	Files map[string]string
}

func (c CSVTrips) Trips(day string) ([]model.TripRecord, error) {
	path, ok := c.Files[day]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDay, day)
	}
	rows, err := readTable(path, "start_time", "end_time", "start_station_id", "end_station_id")
	if err != nil {
		return nil, err
	}
	trips := make([]model.TripRecord, 0, len(rows))
	for i, row := range rows {
		start, err := parseTime(row["start_time"])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: start_time: %w", path, i+1, err)
		}
		end, err := parseTime(row["end_time"])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: end_time: %w", path, i+1, err)
		}
		id := row["trip_id"]
		if id == "" {
			id = fmt.Sprintf("%s-%d", day, i+1)
		}
		trips = append(trips, model.TripRecord{
			ID:          id,
			Start:       start,
			End:         end,
			Origin:      row["start_station_id"],
			Destination: row["end_station_id"],
		})
	}
	SortTrips(trips)
	return trips, nil
}

// SortTrips orders trips by start time, ties by id.
func SortTrips(trips []model.TripRecord) {
	sort.SliceStable(trips, func(i, j int) bool {
		if trips[i].Start.Equal(trips[j].Start) {
			return trips[i].ID < trips[j].ID
		}
		return trips[i].Start.Before(trips[j].Start)
	})
}
