package engine

import (
	"strings"
	"testing"
	"time"
)

func TestSeriesValidateRejectsUnordered(t *testing.T) {
	s := flatSeries(5, 100)
	s[3].Timestamp = s[1].Timestamp
	if err := s.Validate(); err == nil {
		t.Fatal("expected ordering error")
	}
}

func TestSeriesSlice(t *testing.T) {
	s := flatSeries(10, 100)
	got := s.Slice(s[2].Timestamp, s[7].Timestamp)
	if len(got) != 5 {
		t.Fatalf("expected 5 candles [2,7), got %d", len(got))
	}
	if !got[0].Timestamp.Equal(s[2].Timestamp) {
		t.Fatal("slice start mismatch")
	}
}

func TestBarsPerYearHourly(t *testing.T) {
	s := flatSeries(100, 100)
	got := s.BarsPerYear()
	if got != 24*252 {
		t.Fatalf("hourly bars per year = %v, want %v", got, 24*252)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	s := flatSeries(25, 100)
	s[3].High = 101.5
	s[3].Volume = 1234.5

	var buf strings.Builder
	if err := WriteCSV(&buf, s); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadCSV(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != len(s) {
		t.Fatalf("round trip length %d, want %d", len(got), len(s))
	}
	if got[3].High != 101.5 || got[3].Volume != 1234.5 {
		t.Fatalf("round trip values diverged: %+v", got[3])
	}
}

func TestReadCSVUnixMillis(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	in := "timestamp,open,high,low,close,volume\n" +
		"1717243200000,100,101,99,100.5,500\n"
	got, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(got))
	}
	if !got[0].Timestamp.Equal(ts) {
		t.Fatalf("timestamp %v, want %v", got[0].Timestamp, ts)
	}
}

func TestReadCSVRejectsShortRow(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("2024-01-01,100,101,99\n")); err == nil {
		t.Fatal("expected column count error")
	}
}
