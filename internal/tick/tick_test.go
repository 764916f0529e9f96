package tick

import (
	"math"
	"testing"
)

func TestRoundTripSecondsTicks(t *testing.T) {
	cases := []float64{0, 1, 1.5, 3.333333, 123456.789, -2.5}
	for _, seconds := range cases {
		ticks, err := FromSeconds(seconds)
		if err != nil {
			t.Fatalf("FromSeconds(%v): %v", seconds, err)
		}
		got := ToSeconds(ticks)
		if math.Abs(got-seconds) > 1.0/float64(Rate) {
			t.Errorf("round trip mismatch: seconds=%v ticks=%v back=%v", seconds, ticks, got)
		}
	}
}

func TestSamplesExactForSupportedRates(t *testing.T) {
	rates := []int{8000, 11025, 16000, 22050, 32000, 44100, 48000, 88200, 96000, 176400, 192000}
	oneSecond, err := FromSeconds(1.0)
	if err != nil {
		t.Fatal(err)
	}
	for _, rate := range rates {
		samples := Samples(oneSecond, rate)
		if samples != int64(rate) {
			t.Errorf("rate %d: expected %d samples per second, got %d", rate, rate, samples)
		}
		back := FromSamples(samples, rate)
		if back != oneSecond {
			t.Errorf("rate %d: sample round trip mismatch: %v != %v", rate, back, oneSecond)
		}
	}
}

func TestFromSecondsOverflow(t *testing.T) {
	_, err := FromSeconds(1e20)
	if err != ErrOverflow {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestMillisRoundTrip(t *testing.T) {
	ticks, err := FromMillis(1500)
	if err != nil {
		t.Fatal(err)
	}
	if ToMillis(ticks) != 1500 {
		t.Errorf("expected 1500ms, got %d", ToMillis(ticks))
	}
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	if roundHalfAwayFromZero(0.5) != 1 {
		t.Error("0.5 should round to 1")
	}
	if roundHalfAwayFromZero(-0.5) != -1 {
		t.Error("-0.5 should round to -1")
	}
}
