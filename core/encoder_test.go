package core

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jaypierce/moos-ivp-agent/bridge"
	"github.com/jaypierce/moos-ivp-agent/field"
)

func TestStateEncoder(t *testing.T) {
	d := rectangle(t)
	encoder, err := NewStateEncoder(d, "evan")
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}
	radix := d.SpaceSize()
	if encoder.Size() != radix*radix {
		t.Fatalf("Size() = %d, want %d", encoder.Size(), radix*radix)
	}

	own := d.ToDiscreteIndex(10, 30)
	other := d.ToDiscreteIndex(70, 50)
	s := snap(10, 30, 0, "")
	s.NodeReports["evan"] = bridge.NodeReport{"NAV_X": 70, "NAV_Y": 50}

	t.Run("tracked vehicle present", func(t *testing.T) {
		state := encoder.Encode(s)
		if state != own+other*radix {
			t.Fatalf("Encode() = %d, want %d", state, own+other*radix)
		}
		cells, err := encoder.Decode(state)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		want := []field.Cell{field.InBounds(own), field.InBounds(other)}
		if diff := cmp.Diff(want, cells, cmp.Comparer(func(a, b field.Cell) bool { return a == b })); diff != "" {
			t.Fatalf("cells mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("tracked vehicle missing", func(t *testing.T) {
		missing := snap(10, 30, 0, "")
		if got := encoder.Encode(missing); got != own {
			t.Fatalf("Encode() = %d, want %d", got, own)
		}
		cells := encoder.Cells(missing)
		if cells[1] != field.OutOfBounds {
			t.Fatalf("missing vehicle located at %s", cells[1])
		}
	})

	t.Run("own vehicle off the field", func(t *testing.T) {
		off := snap(-50, 30, 0, "")
		off.NodeReports["evan"] = bridge.NodeReport{"NAV_X": 70, "NAV_Y": 50}
		if got := encoder.Encode(off); got != other*radix {
			t.Fatalf("Encode() = %d, want %d", got, other*radix)
		}
	})

	t.Run("decode range", func(t *testing.T) {
		if _, err := encoder.Decode(encoder.Size()); !errors.Is(err, field.ErrRange) {
			t.Fatalf("expected ErrRange, got %v", err)
		}
		if _, err := encoder.Decode(-1); !errors.Is(err, field.ErrRange) {
			t.Fatalf("expected ErrRange, got %v", err)
		}
	})
}

func TestStateEncoderOwnOnly(t *testing.T) {
	d := rectangle(t)
	encoder, err := NewStateEncoder(d)
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}
	if encoder.Size() != d.SpaceSize() {
		t.Fatalf("Size() = %d, want %d", encoder.Size(), d.SpaceSize())
	}
	if got, want := encoder.Encode(snap(4, 56, 0, "")), d.ToDiscreteIndex(4, 56); got != want {
		t.Fatalf("Encode() = %d, want %d", got, want)
	}
}

func TestStateEncoderTooLarge(t *testing.T) {
	d := rectangle(t)
	tracked := make([]string, 8)
	for i := range tracked {
		tracked[i] = string(rune('a' + i))
	}
	if _, err := NewStateEncoder(d, tracked...); !errors.Is(err, ErrStateSpace) {
		t.Fatalf("expected ErrStateSpace, got %v", err)
	}
}

func TestEpisodeContext(t *testing.T) {
	e := NewEpisodeContext()
	if e.MeanLoopTime() != 0 {
		t.Fatalf("MeanLoopTime() = %v on an empty episode", e.MeanLoopTime())
	}
	for _, helm := range []float64{10, 10.5, 11.5, 12} {
		e.ObserveHelmTime(helm)
	}
	if diff := cmp.Diff([]float64{0.5, 1, 0.5}, e.LoopTimes); diff != "" {
		t.Fatalf("loop times mismatch (-want +got):\n%s", diff)
	}
	if got := e.MeanLoopTime(); got < 0.6666 || got > 0.6667 {
		t.Fatalf("MeanLoopTime() = %v", got)
	}

	e.ObserveDistance(12)
	e.ObserveDistance(7)
	e.ObserveDistance(9)
	if e.MinDistance != 7 {
		t.Fatalf("MinDistance = %v", e.MinDistance)
	}

	e.MarkEpisode(3)
	e.EpisodeCount = 2
	e.Reset()
	if e.EpisodeCount != 2 || e.LastEpisodeNum != 3 || !e.KnowsEpisode() {
		t.Fatal("Reset cleared the episode counters")
	}
	if len(e.LoopTimes) != 0 || e.Trace.Len() != 0 {
		t.Fatal("Reset kept per-episode state")
	}
	// the first HELM_TIME after a reset has no delta
	e.ObserveHelmTime(20)
	if len(e.LoopTimes) != 0 {
		t.Fatalf("loop times = %v", e.LoopTimes)
	}
	if e.IsNewEpisode(3) || !e.IsNewEpisode(4) {
		t.Fatal("IsNewEpisode disagrees with the marked episode")
	}
}
