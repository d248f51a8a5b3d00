package engine

import (
	"fmt"
	"sort"
	"time"
)

// Candle is a single OHLCV bar.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Series is an ordered candle list for one symbol/timeframe.
// Timestamps must be strictly increasing.
type Series []Candle

// Validate checks the strictly-increasing timestamp invariant.
func (s Series) Validate() error {
	for i := 1; i < len(s); i++ {
		if !s[i].Timestamp.After(s[i-1].Timestamp) {
			return fmt.Errorf("series not strictly increasing at index %d (%s >= %s)",
				i, s[i-1].Timestamp.Format(time.RFC3339), s[i].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

// Slice returns the sub-series with start <= ts < end.
func (s Series) Slice(start, end time.Time) Series {
	lo := sort.Search(len(s), func(i int) bool { return !s[i].Timestamp.Before(start) })
	hi := sort.Search(len(s), func(i int) bool { return !s[i].Timestamp.Before(end) })
	return s[lo:hi]
}

// Start returns the first candle timestamp, or the zero time for an empty series.
func (s Series) Start() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[0].Timestamp
}

// End returns the last candle timestamp, or the zero time for an empty series.
func (s Series) End() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[len(s)-1].Timestamp
}

// BarInterval estimates the bar spacing from the median gap between candles.
func (s Series) BarInterval() time.Duration {
	if len(s) < 2 {
		return 0
	}
	gaps := make([]time.Duration, 0, len(s)-1)
	for i := 1; i < len(s); i++ {
		gaps = append(gaps, s[i].Timestamp.Sub(s[i-1].Timestamp))
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	return gaps[len(gaps)/2]
}

// BarsPerYear converts the series bar spacing into an annualization factor.
// Falls back to daily bars when the spacing cannot be inferred.
func (s Series) BarsPerYear() float64 {
	iv := s.BarInterval()
	if iv <= 0 {
		return 252
	}
	perDay := float64(24*time.Hour) / float64(iv)
	if perDay < 1 {
		perDay = 1
	}
	return perDay * 252
}
