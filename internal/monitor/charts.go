package monitor

import (
	"bytes"
	"fmt"
	"image/color"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/linkclear/linkclear/internal/board"
	"github.com/linkclear/linkclear/internal/httputil"
	"github.com/linkclear/linkclear/internal/monitoring"
)

// echartsAssetsPrefix is where rendered chart pages load the echarts
// javascript from.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridisPalette maps low values to dark purple and high values to
// yellow.
var viridisPalette = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// handleBoardChart renders the current board as a colored-scatter
// heatmap (one symbol per cell, colored by tile id), followed by the
// classifier confidence map in the same layout. This is a
// debugging-only endpoint to eyeball the board model without attaching
// a client to the JSON API.
func (ws *WebServer) handleBoardChart(w http.ResponseWriter, r *http.Request) {
	if ws.source == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no bot attached to the monitor")
		return
	}

	st := ws.source.Status()
	if st.Board == nil {
		httputil.NotFound(w, "no board captured yet")
		return
	}

	b := st.Board
	rows, cols := b.Rows(), b.Cols()

	cells := make([]opts.ScatterData, 0, rows*cols)
	minVal, maxVal := 0.0, 0.0
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			v := float64(b.At(row, col))
			if v > maxVal {
				maxVal = v
			}
			if v < minVal {
				minVal = v
			}
			// Row 0 is drawn at the top, matching screen orientation.
			cells = append(cells, opts.ScatterData{Value: []interface{}{col, rows - 1 - row, v}})
		}
	}
	if maxVal == 0 {
		maxVal = 1
	}

	subtitle := fmt.Sprintf("run=%s move=%d remaining=%d", st.RunID, st.State.MoveCount, b.CountPositive())

	boardChart := charts.NewScatter()
	boardChart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Board", Theme: "dark", Width: "900px", Height: "700px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Board tiles", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -0.5, Max: float64(cols) - 0.5, Name: "Col", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -0.5, Max: float64(rows) - 0.5, Name: "Row", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minVal),
			Max:        float32(maxVal),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisPalette},
		}),
	)
	boardChart.AddSeries("tiles", cells, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 18}))

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(boardChart)
	if st.Confidence != nil && !st.Confidence.Empty() {
		page.AddCharts(confidenceScatter(st.Confidence))
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render board chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// confidenceScatter builds the per-cell confidence chart shown under
// the board heatmap.
func confidenceScatter(conf *board.ConfidenceMap) *charts.Scatter {
	rows, cols := conf.Rows(), conf.Cols()
	pts := make([]opts.ScatterData, 0, rows*cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			pts = append(pts, opts.ScatterData{Value: []interface{}{col, rows - 1 - row, conf.At(row, col)}})
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "700px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Classifier confidence", Subtitle: fmt.Sprintf("mean=%.3f min=%.3f", conf.Mean(), conf.Min())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -0.5, Max: float64(cols) - 0.5, Name: "Col", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -0.5, Max: float64(rows) - 0.5, Name: "Row", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisPalette},
		}),
	)
	scatter.AddSeries("confidence", pts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 18}))
	return scatter
}

// handleConfidencePNG renders mean and minimum classifier confidence
// over moves as a PNG line chart.
// Query params:
//
//	run_id (optional; defaults to the live run)
func (ws *WebServer) handleConfidencePNG(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}

	runID := r.URL.Query().Get("run_id")
	if runID == "" && ws.source != nil {
		runID = ws.source.Status().RunID
	}
	if runID == "" {
		httputil.BadRequest(w, "missing 'run_id' parameter")
		return
	}

	series, err := ws.db.ConfidenceSeries(runID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("confidence series: %v", err))
		return
	}
	if len(series) == 0 {
		httputil.NotFound(w, "no confidence samples recorded for run")
		return
	}

	meanPts := make(plotter.XYs, 0, len(series))
	minPts := make(plotter.XYs, 0, len(series))
	for _, s := range series {
		meanPts = append(meanPts, plotter.XY{X: float64(s.Move), Y: s.Mean})
		minPts = append(minPts, plotter.XY{X: float64(s.Move), Y: s.Min})
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Classifier confidence, run %s", runID)
	p.X.Label.Text = "Move"
	p.Y.Label.Text = "Confidence"
	p.Y.Min = 0
	p.Y.Max = 1

	meanLine, err := plotter.NewLine(meanPts)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("mean line: %v", err))
		return
	}
	meanLine.Color = color.RGBA{R: 0x1f, G: 0x9e, B: 0x89, A: 255}
	meanLine.Width = vg.Points(1)
	p.Add(meanLine)
	p.Legend.Add("mean", meanLine)

	minLine, err := plotter.NewLine(minPts)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("min line: %v", err))
		return
	}
	minLine.Color = color.RGBA{R: 0x44, G: 0x01, B: 0x54, A: 255}
	minLine.Width = vg.Points(1)
	p.Add(minLine)
	p.Legend.Add("min", minLine)

	p.Legend.Top = true
	p.Legend.Left = false

	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render confidence plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		monitoring.Logf("monitor: failed to stream confidence plot: %v", err)
	}
}
