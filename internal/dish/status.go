// Package dish collects telemetry from the terminal's local gRPC
// endpoint: obstruction map snapshots, alignment status, and location.
// Polling shells out to grpcurl rather than carrying generated protobuf
// stubs; the terminal exposes reflection and its debug tooling uses the
// same path.
package dish

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/large-farva/skylock/internal/sky"
)

// TerminalPose is the terminal's position and attitude at one instant:
// where it is and where the antenna points.
type TerminalPose struct {
	At        time.Time `json:"at"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	AltitudeM float64   `json:"altitude_m"`
	GPSValid  bool      `json:"gps_valid"`

	TiltDeg        float64 `json:"tilt_deg"`
	BoresightAzDeg float64 `json:"boresight_az_deg"`
	BoresightElDeg float64 `json:"boresight_el_deg"`
	DesiredAzDeg   float64 `json:"desired_az_deg"`
	DesiredElDeg   float64 `json:"desired_el_deg"`

	AttitudeState          string  `json:"attitude_state,omitempty"`
	AttitudeUncertaintyDeg float64 `json:"attitude_uncertainty_deg,omitempty"`
}

// Status is one decoded get_status reply: link quality plus the raw
// alignment block the pose is derived from.
type Status struct {
	At               time.Time  `json:"at"`
	HardwareVersion  string     `json:"hardware_version"`
	SNR              float64    `json:"snr"`
	PopPingLatencyMs float64    `json:"pop_ping_latency_ms"`
	DownlinkBps      float64    `json:"downlink_bps"`
	UplinkBps        float64    `json:"uplink_bps"`
	GPSValid         bool       `json:"gps_valid"`
	GPSSats          int        `json:"gps_sats"`
	Tilt             float64    `json:"tilt_deg"`
	BoresightAz      float64    `json:"boresight_az_deg"`
	BoresightEl      float64    `json:"boresight_el_deg"`
	DesiredAz        float64    `json:"desired_az_deg"`
	DesiredEl        float64    `json:"desired_el_deg"`
	AttitudeState    string     `json:"attitude_state"`
	AttitudeUncert   float64    `json:"attitude_uncertainty_deg"`
	Quaternion       [4]float64 `json:"ned2dish_quaternion"`
}

// Frame is one obstruction map snapshot converted to booleans.
type Frame struct {
	At         time.Time
	Frame      sky.Frame
	Rows, Cols int
	Cells      []bool
	Obstructed int
}

type statusReply struct {
	DishGetStatus *struct {
		DeviceInfo struct {
			HardwareVersion string `json:"hardwareVersion"`
		} `json:"deviceInfo"`
		PhyRxBeamSnrAvg       float64 `json:"phyRxBeamSnrAvg"`
		PopPingLatencyMs      float64 `json:"popPingLatencyMs"`
		DownlinkThroughputBps float64 `json:"downlinkThroughputBps"`
		UplinkThroughputBps   float64 `json:"uplinkThroughputBps"`
		GPSStats              struct {
			GPSValid bool `json:"gpsValid"`
			GPSSats  int  `json:"gpsSats"`
		} `json:"gpsStats"`
		AlignmentStats *struct {
			TiltAngleDeg                 float64 `json:"tiltAngleDeg"`
			BoresightAzimuthDeg          float64 `json:"boresightAzimuthDeg"`
			BoresightElevationDeg        float64 `json:"boresightElevationDeg"`
			AttitudeEstimationState      string  `json:"attitudeEstimationState"`
			AttitudeUncertaintyDeg       float64 `json:"attitudeUncertaintyDeg"`
			DesiredBoresightAzimuthDeg   float64 `json:"desiredBoresightAzimuthDeg"`
			DesiredBoresightElevationDeg float64 `json:"desiredBoresightElevationDeg"`
		} `json:"alignmentStats"`
		Ned2DishQuaternion struct {
			QScalar float64 `json:"qScalar"`
			QX      float64 `json:"qX"`
			QY      float64 `json:"qY"`
			QZ      float64 `json:"qZ"`
		} `json:"ned2dishQuaternion"`
	} `json:"dishGetStatus"`
}

// ParseStatus decodes a get_status reply. A reply without the
// dishGetStatus or alignmentStats blocks is rejected; everything the
// pose needs lives there.
func ParseStatus(at time.Time, raw []byte) (Status, error) {
	var reply statusReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return Status{}, fmt.Errorf("decode status: %w", err)
	}
	st := reply.DishGetStatus
	if st == nil {
		return Status{}, fmt.Errorf("status reply missing dishGetStatus")
	}
	if st.AlignmentStats == nil {
		return Status{}, fmt.Errorf("status reply missing alignmentStats")
	}

	a := st.AlignmentStats
	return Status{
		At:               at,
		HardwareVersion:  st.DeviceInfo.HardwareVersion,
		SNR:              st.PhyRxBeamSnrAvg,
		PopPingLatencyMs: st.PopPingLatencyMs,
		DownlinkBps:      st.DownlinkThroughputBps,
		UplinkBps:        st.UplinkThroughputBps,
		GPSValid:         st.GPSStats.GPSValid,
		GPSSats:          st.GPSStats.GPSSats,
		Tilt:             a.TiltAngleDeg,
		BoresightAz:      a.BoresightAzimuthDeg,
		BoresightEl:      a.BoresightElevationDeg,
		DesiredAz:        a.DesiredBoresightAzimuthDeg,
		DesiredEl:        a.DesiredBoresightElevationDeg,
		AttitudeState:    a.AttitudeEstimationState,
		AttitudeUncert:   a.AttitudeUncertaintyDeg,
		Quaternion: [4]float64{
			st.Ned2DishQuaternion.QScalar,
			st.Ned2DishQuaternion.QX,
			st.Ned2DishQuaternion.QY,
			st.Ned2DishQuaternion.QZ,
		},
	}, nil
}

type obstructionReply struct {
	DishGetObstructionMap *struct {
		NumRows           int       `json:"numRows"`
		NumCols           int       `json:"numCols"`
		SNR               []float64 `json:"snr"`
		MapReferenceFrame string    `json:"mapReferenceFrame"`
	} `json:"dishGetObstructionMap"`
}

// ParseObstructionMap decodes a dish_get_obstruction_map reply into a
// boolean Frame. The terminal reports a float per cell: 1 obstructed,
// 0 clear, -1 never observed; unknowns count as clear.
func ParseObstructionMap(at time.Time, raw []byte) (Frame, error) {
	var reply obstructionReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return Frame{}, fmt.Errorf("decode obstruction map: %w", err)
	}
	m := reply.DishGetObstructionMap
	if m == nil {
		return Frame{}, fmt.Errorf("reply missing dishGetObstructionMap")
	}
	if len(m.SNR) != m.NumRows*m.NumCols {
		return Frame{}, fmt.Errorf("obstruction map has %d cells, header says %dx%d",
			len(m.SNR), m.NumRows, m.NumCols)
	}

	frame, err := sky.ParseFrame(m.MapReferenceFrame)
	if err != nil {
		frame = sky.FrameUnknown
	}

	f := Frame{
		At:    at,
		Frame: frame,
		Rows:  m.NumRows,
		Cols:  m.NumCols,
		Cells: make([]bool, len(m.SNR)),
	}
	for i, v := range m.SNR {
		if v >= 1.0 {
			f.Cells[i] = true
			f.Obstructed++
		}
	}
	return f, nil
}

type locationReply struct {
	GetLocation *struct {
		LLA struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
			Alt float64 `json:"alt"`
		} `json:"lla"`
	} `json:"getLocation"`
}

// ParseLocation decodes a get_location reply. The terminal refuses this
// RPC unless location access is enabled, so a missing block is an error
// the caller downgrades to a warning.
func ParseLocation(raw []byte) (Location, error) {
	var reply locationReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return Location{}, fmt.Errorf("decode location: %w", err)
	}
	if reply.GetLocation == nil {
		return Location{}, fmt.Errorf("reply missing getLocation")
	}
	lla := reply.GetLocation.LLA
	return Location{Lat: lla.Lat, Lon: lla.Lon, Alt: lla.Alt}, nil
}
