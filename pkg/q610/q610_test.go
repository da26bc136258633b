package q610

import (
	"errors"
	"math"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	values := []float64{0, 1, -1, 0.1, 0.2, -0.3, 0.05, 31.5, -31.999, Min, Max, 1.0 / 3.0, -7.77}
	for _, v := range values {
		got := Decode(Encode(v))
		want := math.RoundToEven(v*Scale) / Scale
		if got != want {
			t.Errorf("round trip %v: got %v want %v", v, got, want)
		}
		if math.Abs(got-v) > Step/2 {
			t.Errorf("round trip %v drifted by %v", v, got-v)
		}
	}
}

func TestEncodeSaturates(t *testing.T) {
	t.Parallel()

	if got := Encode(100); got != math.MaxInt16 {
		t.Fatalf("Encode(100) = %d, want %d", got, math.MaxInt16)
	}
	if got := Encode(-100); got != math.MinInt16 {
		t.Fatalf("Encode(-100) = %d, want %d", got, math.MinInt16)
	}
	if got := Encode(math.Inf(1)); got != math.MaxInt16 {
		t.Fatalf("Encode(+Inf) = %d", got)
	}
	if got := Encode(math.Inf(-1)); got != math.MinInt16 {
		t.Fatalf("Encode(-Inf) = %d", got)
	}
}

func TestEncodeNaNIsZero(t *testing.T) {
	t.Parallel()

	if got := Encode(math.NaN()); got != 0 {
		t.Fatalf("Encode(NaN) = %d, want 0", got)
	}
	q, err := EncodeStrict(math.NaN())
	if err != nil || q != 0 {
		t.Fatalf("EncodeStrict(NaN) = %d, %v", q, err)
	}
}

func TestEncodeRoundsHalfToEven(t *testing.T) {
	t.Parallel()

	// 0.5 and 1.5 steps sit exactly between two lanes.
	if got := Encode(0.5 / Scale); got != 0 {
		t.Fatalf("half step rounded to %d, want 0", got)
	}
	if got := Encode(1.5 / Scale); got != 2 {
		t.Fatalf("one and a half steps rounded to %d, want 2", got)
	}
}

func TestEncodeStrict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      float64
		wantErr bool
	}{
		{0, false},
		{Min, false},
		{Max, false},
		{Max + Step, true},
		{32, true},
		{-32.001, true},
		{math.Inf(1), true},
	}
	for _, tc := range tests {
		_, err := EncodeStrict(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("EncodeStrict(%v): err=%v wantErr=%v", tc.in, err, tc.wantErr)
		}
		if err != nil && !errors.Is(err, ErrOutOfRange) {
			t.Errorf("EncodeStrict(%v): error %v does not wrap ErrOutOfRange", tc.in, err)
		}
		// A single value has no index to report.
		var rerr *RangeError
		if errors.As(err, &rerr) {
			t.Errorf("EncodeStrict(%v): got *RangeError with index %d", tc.in, rerr.Index)
		}
		if InRange(tc.in) == tc.wantErr {
			t.Errorf("InRange(%v) = %v", tc.in, !tc.wantErr)
		}
	}
}

func TestEncodeSliceStrictReportsIndex(t *testing.T) {
	t.Parallel()

	src := []float64{0, 1, 2, 40, -50}
	dst := make([]byte, len(src)*LaneSize)
	err := EncodeSlice(dst, src, true)
	var rerr *RangeError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *RangeError, got %v", err)
	}
	if rerr.Index != 3 || rerr.Value != 40 {
		t.Fatalf("unexpected range error: %+v", rerr)
	}

	if err := EncodeSlice(dst, src, false); err != nil {
		t.Fatalf("saturating encode failed: %v", err)
	}
	if Lane(dst[3*LaneSize:]) != math.MaxInt16 {
		t.Fatalf("lane 3 not saturated")
	}
}

func TestEncodeSliceShortDst(t *testing.T) {
	t.Parallel()

	if err := EncodeSlice(make([]byte, 3), []float64{1, 2}, false); err == nil {
		t.Fatal("expected error for short dst")
	}
}

func TestLaneBigEndian(t *testing.T) {
	t.Parallel()

	b := make([]byte, 2)
	PutLane(b, Encode(-1))
	if b[0] != 0xFC || b[1] != 0x00 {
		t.Fatalf("Encode(-1) bytes = % X, want FC 00", b)
	}
	if Decode(Lane([]byte{0x06, 0x1D})) != float64(0x061D)/Scale {
		t.Fatalf("unexpected decode of 061D")
	}
	if Decode(Lane([]byte{0xF5, 0xBE})) >= 0 {
		t.Fatalf("F5BE must decode negative")
	}
}

func TestCheckRange(t *testing.T) {
	t.Parallel()

	if err := CheckRange([]float64{-32, 0, Max}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := CheckRange([]float64{0, 0, 33})
	var rerr *RangeError
	if !errors.As(err, &rerr) || rerr.Index != 2 {
		t.Fatalf("expected index 2 range error, got %v", err)
	}
}
