package sim

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// palette holds the line colors cycled over state indices
var palette = []color.RGBA{
	{R: 255, B: 128, A: 255},
	{G: 155, A: 255},
	{B: 255, A: 255},
	{R: 169, G: 169, B: 169, A: 255},
}

// NewTrajectoryPlot creates a plot of the estimated state probabilities of
// batch element b over time: one line per discrete state.
// It returns error if est is empty, b is out of range or the plot fails to
// be created.
func NewTrajectoryPlot(est []*mat.Dense, b int) (*plot.Plot, error) {
	if len(est) == 0 {
		return nil, fmt.Errorf("invalid trajectory supplied")
	}

	batch, d := est[0].Dims()
	if b < 0 || b >= batch {
		return nil, fmt.Errorf("invalid batch element: %d", b)
	}

	p := plot.New()

	p.Title.Text = "Estimated state trajectory"
	p.X.Label.Text = "step"
	p.Y.Label.Text = "probability"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	p.Y.Min, p.Y.Max = 0, 1

	for j := 0; j < d; j++ {
		pts := make(plotter.XYs, len(est))
		for t := range est {
			pts[t].X = float64(t)
			pts[t].Y = est[t].At(b, j)
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create line: %v", err)
		}
		line.LineStyle.Width = vg.Points(1)
		line.LineStyle.Color = palette[j%len(palette)]
		if j/len(palette) > 0 {
			line.LineStyle.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
		}

		p.Add(line)
		p.Legend.Add(fmt.Sprintf("state %d", j), line)
	}

	return p, nil
}

// NewStatePlot creates a scatter plot of the true state path of batch
// element b, useful next to NewTrajectoryPlot output.
// It returns error if states is empty or b is out of range.
func NewStatePlot(states [][]int, b int) (*plot.Plot, error) {
	if len(states) == 0 {
		return nil, fmt.Errorf("invalid state path supplied")
	}

	if b < 0 || b >= len(states[0]) {
		return nil, fmt.Errorf("invalid batch element: %d", b)
	}

	p := plot.New()

	p.Title.Text = "True state path"
	p.X.Label.Text = "step"
	p.Y.Label.Text = "state"

	pts := make(plotter.XYs, len(states))
	for t := range states {
		pts[t].X = float64(t)
		pts[t].Y = float64(states[t][b])
	}

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to create scatter: %v", err)
	}
	scatter.GlyphStyle.Color = color.RGBA{R: 255, B: 128, A: 255}
	scatter.Shape = draw.PyramidGlyph{}
	scatter.GlyphStyle.Radius = vg.Points(3)

	p.Add(scatter)

	return p, nil
}
