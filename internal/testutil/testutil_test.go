package testutil

import (
	"net/http"
	"strings"
	"testing"
)

func TestShiftedLane(t *testing.T) {
	t.Parallel()

	got := ShiftedLane(64)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].X2 != LeftLine.X2+64 || got[1].X1 != RightLine.X1+64 {
		t.Errorf("lines not shifted: %+v", got)
	}
	if got[0].Y1 != LeftLine.Y1 {
		t.Errorf("y changed: %+v", got[0])
	}
	if CenteredLane()[0] != LeftLine {
		t.Error("ShiftedLane modified the shared fixture")
	}
}

func TestTempDBPath(t *testing.T) {
	t.Parallel()

	p := TempDBPath(t)
	if !strings.HasSuffix(p, "lanepilot.db") {
		t.Errorf("path = %s", p)
	}
}

func TestRequests(t *testing.T) {
	t.Parallel()

	req := NewTestRequest(http.MethodGet, "/api/decision")
	if req.Method != http.MethodGet || req.URL.Path != "/api/decision" {
		t.Errorf("request = %s %s", req.Method, req.URL.Path)
	}

	lb := LoopbackRequest(http.MethodPost, "/debug/send-command-api")
	if !strings.HasPrefix(lb.RemoteAddr, "127.0.0.1:") {
		t.Errorf("RemoteAddr = %s", lb.RemoteAddr)
	}

	w := NewTestRecorder()
	AssertStatusCode(t, w.Code, http.StatusOK)
}
