package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/cohort.report/internal/habitat"
	"github.com/banshee-data/cohort.report/internal/monitoring"
)

// detectionTimeLayout accepts millisecond precision; ParseInLocation also
// accepts the same string without the fractional part.
const detectionTimeLayout = "2006-01-02 15:04:05.000"

// LoadResult carries the parsed detections plus skip counters for the log.
type LoadResult struct {
	Detections     []habitat.Detection
	SkippedLines   int
	UnknownAnimals int
}

// readDetections parses a tab-separated detection table: one detection per
// line, columns timestamp, antenna, animal id. Lines starting with '#' and a
// leading header line are skipped. Malformed lines and detections for
// animals outside the cohort are counted and dropped rather than failing the
// run.
func readDetections(r io.Reader, loc *time.Location, cohort map[string]bool) (*LoadResult, error) {
	logf := monitoring.Stage("loader")
	res := &LoadResult{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		det, err := parseDetectionLine(line, loc)
		if err != nil {
			if lineNo == 1 {
				// Header line.
				continue
			}
			res.SkippedLines++
			logf("line %d: %v", lineNo, err)
			continue
		}

		if !cohort[det.AnimalID] {
			res.UnknownAnimals++
			continue
		}
		res.Detections = append(res.Detections, det)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read detections: %w", err)
	}
	return res, nil
}

func parseDetectionLine(line string, loc *time.Location) (habitat.Detection, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 3 {
		return habitat.Detection{}, fmt.Errorf("expected 3 tab-separated fields, got %d", len(fields))
	}

	at, err := time.ParseInLocation(detectionTimeLayout, fields[0], loc)
	if err != nil {
		at, err = time.ParseInLocation("2006-01-02 15:04:05", fields[0], loc)
		if err != nil {
			return habitat.Detection{}, fmt.Errorf("bad timestamp %q", fields[0])
		}
	}

	antenna, err := strconv.Atoi(fields[1])
	if err != nil {
		return habitat.Detection{}, fmt.Errorf("bad antenna %q", fields[1])
	}

	animal := strings.TrimSpace(fields[2])
	if animal == "" {
		return habitat.Detection{}, fmt.Errorf("empty animal id")
	}

	return habitat.Detection{AnimalID: animal, Antenna: antenna, At: at}, nil
}

// loadDetectionFile opens and parses one detection table.
func loadDetectionFile(path string, loc *time.Location, cohort map[string]bool) (*LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open detection file: %w", err)
	}
	defer f.Close()
	return readDetections(f, loc, cohort)
}
