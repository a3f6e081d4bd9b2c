package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/lanepilot/internal/decision"
	"github.com/banshee-data/lanepilot/internal/steering"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// signedStrength folds direction into the strength so left and right plot on
// opposite sides of zero.
func signedStrength(d decision.Decision) int {
	return steering.Signed(d.Direction, d.Strength)
}

// handleSteeringChart renders the recent steering angles and strengths as an
// HTML line chart. Query params:
//   - points (optional; default all held records) limits the window
func (s *Server) handleSteeringChart(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if p := r.URL.Query().Get("points"); p != "" {
		v, err := strconv.Atoi(p)
		if err != nil || v < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'points' parameter")
			return
		}
		limit = v
	}

	recent := s.history.Recent(limit)
	x := make([]string, 0, len(recent))
	angles := make([]opts.LineData, 0, len(recent))
	raw := make([]opts.LineData, 0, len(recent))
	strengths := make([]opts.LineData, 0, len(recent))
	stops := make([]opts.LineData, 0, len(recent))
	for _, rec := range recent {
		x = append(x, strconv.FormatUint(rec.Seq, 10))
		angles = append(angles, opts.LineData{Value: rec.Decision.SteeringAngle})
		raw = append(raw, opts.LineData{Value: rec.RawAngle})
		strengths = append(strengths, opts.LineData{Value: signedStrength(rec.Decision)})
		stop := 0
		if rec.Decision.Action == decision.Stop {
			stop = 1
		}
		stops = append(stops, opts.LineData{Value: stop * 100})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Steering", Width: "100%", Height: "720px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Steering", Subtitle: fmt.Sprintf("records=%d", len(recent))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -100, Max: 100}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x).
		AddSeries("angle (deg)", angles).
		AddSeries("raw angle (deg)", raw).
		AddSeries("strength (%)", strengths).
		AddSeries("stop", stops).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
