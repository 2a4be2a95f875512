package tle

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ParseEntry reads a single satellite's element set from r in the NORAD
// 2- or 3-line format (optional name line followed by lines "1 ..." and
// "2 ...") and returns it with the catalog id and epoch extracted.
func ParseEntry(r io.Reader) (Elements, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return Elements{}, fmt.Errorf("reading TLE data: %w", err)
	}

	// Locate the "1 "/"2 " pair; anything before it is the name line.
	for i := 0; i+1 < len(lines); i++ {
		if !strings.HasPrefix(lines[i], "1 ") || !strings.HasPrefix(lines[i+1], "2 ") {
			continue
		}
		line1, line2 := lines[i], lines[i+1]

		var name string
		if i > 0 {
			name = strings.TrimSpace(strings.TrimPrefix(lines[i-1], "0 "))
		}

		if len(line1) < 32 {
			return Elements{}, fmt.Errorf("line1 too short: %d chars", len(line1))
		}

		// Catalog number: line1 cols 3-7 (0-indexed 2..7).
		catStr := strings.TrimSpace(line1[2:7])
		catalogID, err := strconv.Atoi(catStr)
		if err != nil {
			return Elements{}, fmt.Errorf("invalid catalog number %q: %w", catStr, err)
		}

		// Epoch: line1 cols 19-32 (0-indexed 18..32).
		epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
		if err != nil {
			return Elements{}, fmt.Errorf("invalid epoch: %w", err)
		}

		return Elements{
			CatalogID: catalogID,
			Name:      name,
			Epoch:     epoch,
			Line1:     line1,
			Line2:     line2,
		}, nil
	}

	return Elements{}, fmt.Errorf("no TLE line pair found in %d lines", len(lines))
}

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}

	// Day-of-year is 1-based: day 1 = Jan 1.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}
