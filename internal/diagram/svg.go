package diagram

import (
	"bufio"
	"io"
	"math"

	svg "github.com/ajstarks/svgo"
)

const (
	svgMargin     = 20
	arrowMarkerID = "arrowhead"

	shapeStyle = "fill:#ffffff;stroke:#333333;stroke-width:2"
	lineStyle  = "stroke:#333333;stroke-width:2;marker-end:url(#" + arrowMarkerID + ")"
	textStyle  = "font-family:sans-serif;font-size:14px;text-anchor:middle;dominant-baseline:middle;fill:#333333"
	edgeStyle  = "font-family:sans-serif;font-size:12px;text-anchor:start;fill:#555555"
)

// WriteSVG draws the drawables as a standalone SVG document.
// Lines are drawn first so that shapes sit on top of the arrow shafts.
func WriteSVG(w io.Writer, d *Drawables) error {
	bw := bufio.NewWriter(w)
	b := d.Bounds()
	width := px(b.X+b.Width) + svgMargin
	height := px(b.Y+b.Height) + svgMargin

	canvas := svg.New(bw)
	canvas.Start(max(width, 1), max(height, 1))

	canvas.Def()
	canvas.Marker(arrowMarkerID, 10, 5, 10, 10, `orient="auto"`)
	canvas.Path("M0,0 L10,5 L0,10 z", "fill:#333333")
	canvas.MarkerEnd()
	canvas.DefEnd()

	for _, l := range d.Lines {
		canvas.Line(px(l.From.X), px(l.From.Y), px(l.To.X), px(l.To.Y), lineStyle)
		if l.Label != "" {
			midX := (px(l.From.X) + px(l.To.X)) / 2
			midY := (px(l.From.Y) + px(l.To.Y)) / 2
			canvas.Text(midX+5, midY, l.Label, edgeStyle)
		}
	}

	for _, s := range d.Shapes {
		switch s.Kind {
		case ShapeEllipse:
			canvas.Ellipse(px(s.Center.X), px(s.Center.Y), px(s.RX), px(s.RY), shapeStyle)
		case ShapeDiamond:
			xs := make([]int, len(s.Points))
			ys := make([]int, len(s.Points))
			for i, p := range s.Points {
				xs[i], ys[i] = px(p.X), px(p.Y)
			}
			canvas.Polygon(xs, ys, shapeStyle)
		default:
			r := px(s.CornerRadius)
			canvas.Roundrect(px(s.Box.X), px(s.Box.Y), px(s.Box.Width), px(s.Box.Height), r, r, shapeStyle)
		}
		canvas.Text(px(s.Label.At.X), px(s.Label.At.Y), s.Label.Text, textStyle)
	}

	canvas.End()
	return bw.Flush()
}

// px rounds a drawing coordinate to the integer grid svgo works on.
func px(v float64) int {
	return int(math.Round(v))
}
