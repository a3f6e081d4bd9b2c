// Package testutil provides shared test helpers and perception fixtures.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/banshee-data/lanepilot/internal/lane"
)

// Fixture frame size.
const (
	FrameWidth  = 640
	FrameHeight = 480
)

// Lane lines that meet the lookahead level (y=288) at x=250 and x=390, so a
// frame holding both is centred.
var (
	LeftLine  = lane.Segment{X1: 100, Y1: 480, X2: 250, Y2: 288}
	RightLine = lane.Segment{X1: 540, Y1: 480, X2: 390, Y2: 288}
)

// CenteredLane returns both lane lines of a centred frame.
func CenteredLane() []lane.Segment {
	return []lane.Segment{LeftLine, RightLine}
}

// ShiftedLane returns both lane lines moved dx pixels sideways. Positive dx
// puts the lane centre to the right, which steers right.
func ShiftedLane(dx float64) []lane.Segment {
	out := CenteredLane()
	for i := range out {
		out[i].X1 += dx
		out[i].X2 += dx
	}
	return out
}

// TempDBPath returns a database path inside a per-test directory.
func TempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "lanepilot.db")
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// LoopbackRequest creates a test request from 127.0.0.1. tsweb debug routes
// refuse anything else.
func LoopbackRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}
