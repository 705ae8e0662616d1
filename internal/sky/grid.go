package sky

import (
	"fmt"
	"math"
)

// Frame identifies the reference frame an obstruction grid is expressed
// in. The terminal reports maps either earth-fixed, with grid-up aligned
// to geographic north, or terminal-fixed, with the axes following the
// dish attitude.
type Frame int

const (
	FrameUnknown Frame = iota
	// FrameEarth: grid-up is geographic north and the observer sits at
	// the configured center pixel.
	FrameEarth
	// FrameTerminal: the observer pixel shifts with the dish tilt and
	// azimuths rotate by the boresight azimuth.
	FrameTerminal
)

func (f Frame) String() string {
	switch f {
	case FrameEarth:
		return "earth"
	case FrameTerminal:
		return "terminal"
	}
	return "unknown"
}

// ParseFrame maps a frame name to a Frame. It accepts both the config
// spelling and the wire spelling the terminal reports.
func ParseFrame(s string) (Frame, error) {
	switch s {
	case "earth", "FRAME_EARTH":
		return FrameEarth, nil
	case "terminal", "FRAME_UT":
		return FrameTerminal, nil
	}
	return FrameUnknown, fmt.Errorf("unknown grid frame %q", s)
}

// GridSpec is the geometry of the terminal's obstruction map: a square
// bitmap with the observer near the center pixel and zenith distance
// growing linearly with pixel radius, SpanDeg over CenterX pixels.
type GridSpec struct {
	Size    int
	CenterX int
	CenterY int
	SpanDeg float64
}

// PixelDeg returns the angular size of one pixel in degrees.
func (g GridSpec) PixelDeg() float64 {
	return g.SpanDeg / float64(g.CenterX)
}

// Cells returns the number of cells in the bitmap.
func (g GridSpec) Cells() int { return g.Size * g.Size }

// Contains reports whether the cell lies inside the bitmap.
func (g GridSpec) Contains(c Cell) bool {
	return c.X >= 0 && c.X < g.Size && c.Y >= 0 && c.Y < g.Size
}

// Cell is one obstruction-map pixel. X is the column and Y the row,
// zero-based from the top-left corner as the terminal reports them.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Projection converts between grid cells and sky directions for one
// frame and terminal attitude. TiltDeg and BoresightAzDeg are consulted
// only in the terminal frame. A nonzero MinElDeg masks grazing
// directions out of ToCell.
type Projection struct {
	Spec           GridSpec
	Frame          Frame
	TiltDeg        float64
	BoresightAzDeg float64
	MinElDeg       float64
}

// ToSky converts a grid cell into an (elevation, azimuth) direction in
// degrees. Pixel radius from the observer maps linearly to zenith
// distance, so elevation = 90 - radius*PixelDeg.
func (p Projection) ToSky(c Cell) (elDeg, azDeg float64) {
	pd := p.Spec.PixelDeg()

	var dx, dy, rot float64
	switch p.Frame {
	case FrameTerminal:
		// Tilting the dish slides the observer pixel up the map.
		oy := float64(p.Spec.CenterY) - p.TiltDeg/pd
		dx = float64(c.X - p.Spec.CenterX)
		dy = float64(c.Y) - oy
		rot = p.BoresightAzDeg
	default:
		dx = float64(c.X - p.Spec.CenterX)
		dy = float64(p.Spec.Size-c.Y) - float64(p.Spec.CenterY)
	}

	radius := math.Hypot(dx, dy) * pd
	az := math.Atan2(dx, dy)*rad2deg + rot
	az = math.Mod(az+360, 360)

	return 90 - radius, az
}

// ToCell projects a sky direction onto the grid, the inverse of ToSky.
// ok is false when the direction falls off the bitmap or below the
// elevation mask.
func (p Projection) ToCell(elDeg, azDeg float64) (c Cell, ok bool) {
	if elDeg < p.MinElDeg {
		return Cell{}, false
	}
	pd := p.Spec.PixelDeg()
	radius := (90 - elDeg) / pd // pixels from the observer

	var rot float64
	if p.Frame == FrameTerminal {
		rot = p.BoresightAzDeg
	}
	azRad := (azDeg - rot) * deg2rad
	dx := radius * math.Sin(azRad)
	dy := radius * math.Cos(azRad)

	x := float64(p.Spec.CenterX) + dx
	var y float64
	if p.Frame == FrameTerminal {
		y = float64(p.Spec.CenterY) - p.TiltDeg/pd + dy
	} else {
		y = float64(p.Spec.Size) - (dy + float64(p.Spec.CenterY))
	}

	c = Cell{X: int(math.Round(x)), Y: int(math.Round(y))}
	if !p.Spec.Contains(c) {
		return Cell{}, false
	}
	return c, true
}
