package sky

import (
	"math"
	"testing"
	"time"

	"github.com/large-farva/skylock/internal/catalog"
)

func near(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %v, want %v (tol %v)", name, got, want, tol)
	}
}

func TestJulianDate_J2000(t *testing.T) {
	jd := JulianDate(time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC))
	near(t, "JD(J2000)", jd, 2451545.0, 1e-9)
}

func TestGMST_J2000(t *testing.T) {
	// At the J2000 epoch GMST is 280.46062 degrees (Vallado).
	g := GMST(time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC))
	near(t, "GMST(J2000) deg", g*rad2deg, 280.46062, 1e-4)
}

func TestRotateToECEF_QuarterTurn(t *testing.T) {
	out := RotateToECEF(catalog.Vector{X: 1}, math.Pi/2)
	near(t, "X", out.X, 0, 1e-12)
	near(t, "Y", out.Y, -1, 1e-12)
	near(t, "Z", out.Z, 0, 1e-12)
}

func TestLookAngles_RoundTrip(t *testing.T) {
	obs := NewObserver(47.6062, -122.3321, 56)
	at := time.Date(2025, 5, 18, 9, 30, 0, 0, time.UTC)

	cases := []Topo{
		{AzimuthDeg: 0, ElevationDeg: 90, RangeKm: 550},
		{AzimuthDeg: 123.4, ElevationDeg: 37.9, RangeKm: 912},
		{AzimuthDeg: 359.5, ElevationDeg: 12.0, RangeKm: 1800},
		{AzimuthDeg: 210.0, ElevationDeg: 65.0, RangeKm: 600},
	}
	for _, want := range cases {
		sv := obs.StateFromLookAngles("X", want, at)
		got := obs.LookAngles(sv)

		near(t, "el", got.ElevationDeg, want.ElevationDeg, 1e-6)
		near(t, "range", got.RangeKm, want.RangeKm, 1e-6)
		if want.ElevationDeg < 89.99 { // azimuth is degenerate at zenith
			azDiff := math.Abs(got.AzimuthDeg - want.AzimuthDeg)
			if azDiff > 180 {
				azDiff = 360 - azDiff
			}
			near(t, "az", azDiff, 0, 1e-6)
		}
	}
}

func TestLookAngles_SouthernObserver(t *testing.T) {
	obs := NewObserver(-33.8688, 151.2093, 20)
	at := time.Date(2025, 5, 18, 21, 0, 0, 0, time.UTC)

	want := Topo{AzimuthDeg: 45, ElevationDeg: 30, RangeKm: 1000}
	got := obs.LookAngles(obs.StateFromLookAngles("X", want, at))
	near(t, "el", got.ElevationDeg, 30, 1e-6)
	near(t, "az", got.AzimuthDeg, 45, 1e-6)
}

func TestLookAngles_RealElementSet(t *testing.T) {
	const issTLE = `ISS (ZARYA)
1 25544U 98067A   25138.37048074  .00007749  00000+0  14567-3 0  9994
2 25544  51.6369  94.7823 0002558 120.7586  15.7840 15.49587957510533`

	snap, err := catalog.Parse(issTLE, time.Now(), 14*24*time.Hour)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	epoch, _ := snap.Epoch("ISS (ZARYA)")
	sv, err := snap.Propagate("ISS (ZARYA)", epoch.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}

	topo := NewObserver(47.6062, -122.3321, 56).LookAngles(sv)
	if topo.AzimuthDeg < 0 || topo.AzimuthDeg >= 360 {
		t.Errorf("azimuth = %v, want [0,360)", topo.AzimuthDeg)
	}
	if topo.ElevationDeg < -90 || topo.ElevationDeg > 90 {
		t.Errorf("elevation = %v, want [-90,90]", topo.ElevationDeg)
	}
	// The ISS orbits at ~420 km; it can never be nearer than that, nor
	// farther than roughly an Earth diameter plus the orbit.
	if topo.RangeKm < 400 || topo.RangeKm > 14000 {
		t.Errorf("range = %v km, implausible", topo.RangeKm)
	}
}

func TestAngularSeparation(t *testing.T) {
	near(t, "same point", AngularSeparation(45, 120, 45, 120), 0, 1e-9)
	near(t, "horizon quarter", AngularSeparation(0, 0, 0, 90), 90, 1e-9)
	near(t, "zenith to horizon", AngularSeparation(90, 0, 0, 210), 90, 1e-9)
	near(t, "az wrap", AngularSeparation(0, 359, 0, 1), 2, 1e-9)
	near(t, "opposite azimuths", AngularSeparation(45, 10, 45, 190), 90, 1e-9)
}
