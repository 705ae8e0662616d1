// Package sky converts satellite state vectors into the terminal's local
// view: azimuth/elevation/range look angles and obstruction-grid pixel
// coordinates. Everything here is pure math; the same inputs always give
// the same outputs.
//
// Frame chain: SGP4 emits TEME (inertial). A Z-rotation by GMST gives
// ECEF, then an SEZ rotation at the observer gives topocentric look
// angles. Polar motion is ignored (~50 m error, irrelevant at grid-cell
// resolution).
package sky

import (
	"math"
	"time"

	"github.com/large-farva/skylock/internal/catalog"
)

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378.137              // semi-major axis (km)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

const (
	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi
)

// j2000 is the Julian Date of the J2000.0 epoch.
const j2000 = 2451545.0

// Observer is a ground position with its ECEF coordinates precomputed,
// so one observer can be reused across many satellite projections.
type Observer struct {
	LatDeg, LonDeg float64
	AltM           float64

	latRad, lonRad      float64
	ecefX, ecefY, ecefZ float64 // km
}

// NewObserver builds an Observer from geodetic coordinates: latitude and
// longitude in degrees, altitude in meters above the WGS-84 ellipsoid.
func NewObserver(latDeg, lonDeg, altM float64) Observer {
	lat := latDeg * deg2rad
	lon := lonDeg * deg2rad

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	// Radius of curvature in the prime vertical.
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	altKm := altM / 1000.0

	return Observer{
		LatDeg: latDeg,
		LonDeg: lonDeg,
		AltM:   altM,
		latRad: lat,
		lonRad: lon,
		ecefX:  (n + altKm) * cosLat * math.Cos(lon),
		ecefY:  (n + altKm) * cosLat * math.Sin(lon),
		ecefZ:  (n*(1-wgs84E2) + altKm) * sinLat,
	}
}

// Topo holds look angles from an observer to a satellite.
type Topo struct {
	AzimuthDeg   float64 // 0 = North, clockwise
	ElevationDeg float64 // 0 = horizon, 90 = zenith
	RangeKm      float64
}

// LookAngles projects a satellite state vector into the observer's local
// frame. The GMST rotation is derived from the state vector's own
// validity time.
func (o Observer) LookAngles(sv catalog.StateVector) Topo {
	return o.lookAnglesGMST(sv.Pos, GMST(sv.At))
}

// LookAnglesAt is LookAngles with a precomputed GMST angle, for callers
// projecting many satellites to the same instant.
func (o Observer) LookAnglesAt(sv catalog.StateVector, gmstRad float64) Topo {
	return o.lookAnglesGMST(sv.Pos, gmstRad)
}

func (o Observer) lookAnglesGMST(pos catalog.Vector, gmstRad float64) Topo {
	ecef := RotateToECEF(pos, gmstRad)

	rx := ecef.X - o.ecefX
	ry := ecef.Y - o.ecefY
	rz := ecef.Z - o.ecefZ

	sinLat := math.Sin(o.latRad)
	cosLat := math.Cos(o.latRad)
	sinLon := math.Sin(o.lonRad)
	cosLon := math.Cos(o.lonRad)

	// Rotate the ECEF range vector into SEZ (South, East, Zenith).
	south := sinLat*cosLon*rx + sinLat*sinLon*ry - cosLat*rz
	east := -sinLon*rx + cosLon*ry
	zenith := cosLat*cosLon*rx + cosLat*sinLon*ry + sinLat*rz

	rng := math.Sqrt(south*south + east*east + zenith*zenith)

	el := math.Asin(zenith / rng)

	// North is -South in SEZ, so azimuth = atan2(east, -south).
	az := math.Atan2(east, -south)
	if az < 0 {
		az += 2 * math.Pi
	}

	return Topo{
		AzimuthDeg:   az * rad2deg,
		ElevationDeg: el * rad2deg,
		RangeKm:      rng,
	}
}

// StateFromLookAngles is the inverse of LookAngles: it places a point in
// inertial (TEME) space that the observer would see at the given look
// angles at time t. Velocity is left zero; callers fabricating moving
// objects difference successive positions instead.
func (o Observer) StateFromLookAngles(id string, topo Topo, t time.Time) catalog.StateVector {
	el := topo.ElevationDeg * deg2rad
	az := topo.AzimuthDeg * deg2rad

	// Look angles back to SEZ.
	south := -topo.RangeKm * math.Cos(el) * math.Cos(az)
	east := topo.RangeKm * math.Cos(el) * math.Sin(az)
	zenith := topo.RangeKm * math.Sin(el)

	sinLat := math.Sin(o.latRad)
	cosLat := math.Cos(o.latRad)
	sinLon := math.Sin(o.lonRad)
	cosLon := math.Cos(o.lonRad)

	// Transpose of the ECEF->SEZ rotation.
	rx := sinLat*cosLon*south - sinLon*east + cosLat*cosLon*zenith
	ry := sinLat*sinLon*south + cosLon*east + cosLat*sinLon*zenith
	rz := -cosLat*south + sinLat*zenith

	ecef := catalog.Vector{X: rx + o.ecefX, Y: ry + o.ecefY, Z: rz + o.ecefZ}

	// Undo the GMST rotation to land back in TEME.
	g := GMST(t)
	cosG := math.Cos(g)
	sinG := math.Sin(g)
	return catalog.StateVector{
		ID: id,
		At: t,
		Pos: catalog.Vector{
			X: ecef.X*cosG - ecef.Y*sinG,
			Y: ecef.X*sinG + ecef.Y*cosG,
			Z: ecef.Z,
		},
	}
}

// RotateToECEF rotates an inertial (TEME) position into ECEF by the
// given GMST angle in radians.
func RotateToECEF(pos catalog.Vector, gmstRad float64) catalog.Vector {
	cosG := math.Cos(gmstRad)
	sinG := math.Sin(gmstRad)
	return catalog.Vector{
		X: pos.X*cosG + pos.Y*sinG,
		Y: -pos.X*sinG + pos.Y*cosG,
		Z: pos.Z,
	}
}

// JulianDate converts a UTC time to Julian Date.
func JulianDate(t time.Time) float64 {
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())
	h := float64(t.Hour())
	min := float64(t.Minute())
	s := float64(t.Second()) + float64(t.Nanosecond())/1e9

	// Treat Jan/Feb as months 13/14 of the previous year.
	if m <= 2 {
		y -= 1
		m += 12
	}

	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	jd := math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + b - 1524.5
	jd += (h + min/60.0 + s/3600.0) / 24.0
	return jd
}

// GMST returns Greenwich Mean Sidereal Time in radians for a UTC time,
// per the IAU-82 model (Vallado Eq 3-47).
func GMST(t time.Time) float64 {
	jd := JulianDate(t.UTC())
	tUT1 := (jd - j2000) / 36525.0

	gmstSec := 67310.54841 +
		(3155760000.0+8640184.812866)*tUT1 +
		0.093104*tUT1*tUT1 -
		6.2e-6*tUT1*tUT1*tUT1

	gmstSec = math.Mod(gmstSec, 86400.0)
	if gmstSec < 0 {
		gmstSec += 86400.0
	}
	return gmstSec / 86400.0 * 2.0 * math.Pi
}

// AngularSeparation returns the great-circle angle in degrees between
// two sky directions given as (elevation, azimuth) in degrees.
func AngularSeparation(el1, az1, el2, az2 float64) float64 {
	azDiff := math.Abs(math.Mod(az1+360, 360) - math.Mod(az2+360, 360))
	if azDiff > 180 {
		azDiff = 360 - azDiff
	}

	e1 := el1 * deg2rad
	e2 := el2 * deg2rad
	cosSep := math.Sin(e1)*math.Sin(e2) + math.Cos(e1)*math.Cos(e2)*math.Cos(azDiff*deg2rad)

	// Guard acos against rounding outside [-1, 1].
	if cosSep > 1 {
		cosSep = 1
	} else if cosSep < -1 {
		cosSep = -1
	}
	return math.Acos(cosSep) * rad2deg
}
