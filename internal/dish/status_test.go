package dish

import (
	"strings"
	"testing"
	"time"

	"github.com/large-farva/skylock/internal/sky"
)

const statusFixture = `{
  "dishGetStatus": {
    "deviceInfo": {"hardwareVersion": "rev3_proto2"},
    "phyRxBeamSnrAvg": 5.25,
    "popPingLatencyMs": 31.5,
    "downlinkThroughputBps": 182000000,
    "uplinkThroughputBps": 14500000,
    "gpsStats": {"gpsValid": true, "gpsSats": 13},
    "alignmentStats": {
      "tiltAngleDeg": 20.5,
      "boresightAzimuthDeg": 174.2,
      "boresightElevationDeg": 68.9,
      "attitudeEstimationState": "FILTER_CONVERGED",
      "attitudeUncertaintyDeg": 0.6,
      "desiredBoresightAzimuthDeg": 175.0,
      "desiredBoresightElevationDeg": 69.5
    },
    "ned2dishQuaternion": {"qScalar": 0.97, "qX": 0.02, "qY": -0.17, "qZ": 0.15}
  }
}`

func TestParseStatus_FullReply(t *testing.T) {
	at := time.Date(2025, 5, 18, 10, 0, 12, 0, time.UTC)

	st, err := ParseStatus(at, []byte(statusFixture))
	if err != nil {
		t.Fatalf("ParseStatus: %v", err)
	}

	if !st.At.Equal(at) {
		t.Errorf("At = %v, want %v", st.At, at)
	}
	if st.HardwareVersion != "rev3_proto2" {
		t.Errorf("HardwareVersion = %q", st.HardwareVersion)
	}
	if st.SNR != 5.25 {
		t.Errorf("SNR = %v, want 5.25", st.SNR)
	}
	if st.PopPingLatencyMs != 31.5 {
		t.Errorf("PopPingLatencyMs = %v, want 31.5", st.PopPingLatencyMs)
	}
	if !st.GPSValid || st.GPSSats != 13 {
		t.Errorf("gps = (%v, %d), want (true, 13)", st.GPSValid, st.GPSSats)
	}
	if st.Tilt != 20.5 || st.BoresightAz != 174.2 || st.BoresightEl != 68.9 {
		t.Errorf("alignment = (%v, %v, %v)", st.Tilt, st.BoresightAz, st.BoresightEl)
	}
	if st.DesiredAz != 175.0 || st.DesiredEl != 69.5 {
		t.Errorf("desired = (%v, %v)", st.DesiredAz, st.DesiredEl)
	}
	if st.AttitudeState != "FILTER_CONVERGED" || st.AttitudeUncert != 0.6 {
		t.Errorf("attitude = (%q, %v)", st.AttitudeState, st.AttitudeUncert)
	}
	want := [4]float64{0.97, 0.02, -0.17, 0.15}
	if st.Quaternion != want {
		t.Errorf("Quaternion = %v, want %v", st.Quaternion, want)
	}
}

func TestParseStatus_RejectsIncompleteReplies(t *testing.T) {
	at := time.Now()

	if _, err := ParseStatus(at, []byte(`{"apiVersion": 17}`)); err == nil {
		t.Error("reply without dishGetStatus accepted")
	}
	if _, err := ParseStatus(at, []byte(`{"dishGetStatus": {"gpsStats": {}}}`)); err == nil {
		t.Error("reply without alignmentStats accepted")
	}
	if _, err := ParseStatus(at, []byte(`not json`)); err == nil {
		t.Error("garbage accepted")
	}
}

func TestParseObstructionMap_CellSemantics(t *testing.T) {
	at := time.Date(2025, 5, 18, 10, 0, 13, 0, time.UTC)
	// 1 obstructed, 0 clear, -1 never observed. Unknowns count clear.
	raw := `{
  "dishGetObstructionMap": {
    "numRows": 2,
    "numCols": 3,
    "snr": [0, 1, -1, 1, 0, -1],
    "mapReferenceFrame": "FRAME_EARTH"
  }
}`

	f, err := ParseObstructionMap(at, []byte(raw))
	if err != nil {
		t.Fatalf("ParseObstructionMap: %v", err)
	}
	if f.Rows != 2 || f.Cols != 3 {
		t.Fatalf("dims = %dx%d, want 2x3", f.Rows, f.Cols)
	}
	if f.Frame != sky.FrameEarth {
		t.Errorf("Frame = %v, want earth", f.Frame)
	}
	wantCells := []bool{false, true, false, true, false, false}
	for i, want := range wantCells {
		if f.Cells[i] != want {
			t.Errorf("cell %d = %v, want %v", i, f.Cells[i], want)
		}
	}
	if f.Obstructed != 2 {
		t.Errorf("Obstructed = %d, want 2", f.Obstructed)
	}
}

func TestParseObstructionMap_TerminalFrame(t *testing.T) {
	raw := `{"dishGetObstructionMap": {"numRows": 1, "numCols": 1, "snr": [0], "mapReferenceFrame": "FRAME_UT"}}`

	f, err := ParseObstructionMap(time.Now(), []byte(raw))
	if err != nil {
		t.Fatalf("ParseObstructionMap: %v", err)
	}
	if f.Frame != sky.FrameTerminal {
		t.Errorf("Frame = %v, want terminal", f.Frame)
	}
}

func TestParseObstructionMap_UnknownFrameTolerated(t *testing.T) {
	raw := `{"dishGetObstructionMap": {"numRows": 1, "numCols": 1, "snr": [1], "mapReferenceFrame": "FRAME_FUTURE"}}`

	f, err := ParseObstructionMap(time.Now(), []byte(raw))
	if err != nil {
		t.Fatalf("unrecognized frame should not fail decode: %v", err)
	}
	if f.Frame != sky.FrameUnknown {
		t.Errorf("Frame = %v, want unknown", f.Frame)
	}
	if f.Obstructed != 1 {
		t.Errorf("Obstructed = %d, want 1", f.Obstructed)
	}
}

func TestParseObstructionMap_SizeMismatch(t *testing.T) {
	raw := `{"dishGetObstructionMap": {"numRows": 2, "numCols": 3, "snr": [0, 1], "mapReferenceFrame": "FRAME_EARTH"}}`

	_, err := ParseObstructionMap(time.Now(), []byte(raw))
	if err == nil {
		t.Fatal("short snr array accepted")
	}
	if !strings.Contains(err.Error(), "2x3") {
		t.Errorf("error %q does not name the expected dimensions", err)
	}
}

func TestParseLocation(t *testing.T) {
	raw := `{"getLocation": {"lla": {"lat": 47.6062, "lon": -122.3321, "alt": 56.2}}}`

	loc, err := ParseLocation([]byte(raw))
	if err != nil {
		t.Fatalf("ParseLocation: %v", err)
	}
	if loc.Lat != 47.6062 || loc.Lon != -122.3321 || loc.Alt != 56.2 {
		t.Errorf("loc = %+v", loc)
	}

	if _, err := ParseLocation([]byte(`{"status": "PERMISSION_DENIED"}`)); err == nil {
		t.Error("reply without getLocation accepted")
	}
}
