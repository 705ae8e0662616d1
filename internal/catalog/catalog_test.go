package catalog

import (
	"errors"
	"testing"
	"time"
)

// A real, well-formed ISS element set. The name line is free-form, so the
// multi-satellite fixtures below reuse the same element lines under
// different names.
const issTLE = `ISS (ZARYA)
1 25544U 98067A   25138.37048074  .00007749  00000+0  14567-3 0  9994
2 25544  51.6369  94.7823 0002558 120.7586  15.7840 15.49587957510533`

const twoSatDump = `SAT-B
1 25544U 98067A   25138.37048074  .00007749  00000+0  14567-3 0  9994
2 25544  51.6369  94.7823 0002558 120.7586  15.7840 15.49587957510533
SAT-A
1 25544U 98067A   25138.37048074  .00007749  00000+0  14567-3 0  9994
2 25544  51.6369  94.7823 0002558 120.7586  15.7840 15.49587957510533`

func TestParse_BulkDump(t *testing.T) {
	snap, err := Parse(twoSatDump, time.Now(), 14*24*time.Hour)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if snap.Len() != 2 {
		t.Fatalf("Len = %d, want 2", snap.Len())
	}
	ids := snap.IDs()
	if ids[0] != "SAT-A" || ids[1] != "SAT-B" {
		t.Errorf("IDs = %v, want sorted [SAT-A SAT-B]", ids)
	}
	if !snap.Contains("SAT-A") {
		t.Error("Contains(SAT-A) = false")
	}
	if norad, ok := snap.NoradID("SAT-B"); !ok || norad != 25544 {
		t.Errorf("NoradID(SAT-B) = %d,%v, want 25544,true", norad, ok)
	}
}

func TestParse_ResyncsOnGarbage(t *testing.T) {
	dump := "-- bulletin header --\nsecond junk line\n" + issTLE + "\ntrailing junk"
	snap, err := Parse(dump, time.Now(), 14*24*time.Hour)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if snap.Len() != 1 {
		t.Fatalf("Len = %d, want 1", snap.Len())
	}
	if !snap.Contains("ISS (ZARYA)") {
		t.Errorf("missing ISS entry, IDs = %v", snap.IDs())
	}
}

func TestParse_NoElements(t *testing.T) {
	if _, err := Parse("nothing\nto see\nhere at all", time.Now(), time.Hour); err == nil {
		t.Fatal("expected error for input with no element sets")
	}
}

func TestPropagate_UnknownSatellite(t *testing.T) {
	snap, err := Parse(issTLE, time.Now(), 14*24*time.Hour)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, err = snap.Propagate("STARLINK-9999", time.Now())
	if !errors.Is(err, ErrUnknownSatellite) {
		t.Errorf("err = %v, want ErrUnknownSatellite", err)
	}
}

func TestPropagate_NearEpoch(t *testing.T) {
	snap, err := Parse(issTLE, time.Now(), 14*24*time.Hour)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	epoch, ok := snap.Epoch("ISS (ZARYA)")
	if !ok {
		t.Fatal("no epoch for ISS")
	}

	sv, err := snap.Propagate("ISS (ZARYA)", epoch.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	if sv.ID != "ISS (ZARYA)" {
		t.Errorf("ID = %q", sv.ID)
	}

	// LEO geocentric radius: Earth radius plus a few hundred km.
	r := sv.Pos.Norm()
	if r < 6500 || r > 7100 {
		t.Errorf("geocentric radius = %.1f km, want ~6700-6800", r)
	}

	// Orbital speed should be near 7.7 km/s for the ISS.
	v := sv.Vel.Norm()
	if v < 6.5 || v > 8.5 {
		t.Errorf("speed = %.2f km/s, want ~7.7", v)
	}
}

func TestPropagate_StaleEpoch(t *testing.T) {
	snap, err := Parse(issTLE, time.Now(), 14*24*time.Hour)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	epoch, _ := snap.Epoch("ISS (ZARYA)")

	_, err = snap.Propagate("ISS (ZARYA)", epoch.Add(100*24*time.Hour))
	var perr *PropagationError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *PropagationError", err)
	}
	if perr.ID != "ISS (ZARYA)" {
		t.Errorf("PropagationError.ID = %q", perr.ID)
	}
}

func TestPropagate_Deterministic(t *testing.T) {
	snap, err := Parse(issTLE, time.Now(), 14*24*time.Hour)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	epoch, _ := snap.Epoch("ISS (ZARYA)")
	at := epoch.Add(42 * time.Minute)

	a, err := snap.Propagate("ISS (ZARYA)", at)
	if err != nil {
		t.Fatal(err)
	}
	b, err := snap.Propagate("ISS (ZARYA)", at)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("repeated propagation differs:\n%+v\n%+v", a, b)
	}
}
