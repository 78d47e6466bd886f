// Package export renders stored trajectories as standalone SVG plots.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/san-kum/rigidsim/internal/storage"
)

var ErrNoSamples = errors.New("export: no samples to plot")

var palette = []string{"#00ff9f", "#ff00ff", "#00b8ff", "#ffd700", "#ff6b6b", "#a78bfa"}

// SVGOptions picks what TrajectorySVG draws.
type SVGOptions struct {
	// Plane names the two position axes plotted horizontally and
	// vertically, such as "xz".
	Plane         string
	Width, Height int
	// Model and Link filter the samples. Empty matches every one.
	Model, Link string
}

type point struct{ X, Y float64 }

type series struct {
	key    string
	points []point
}

func axisIndex(c byte) (int, error) {
	switch c {
	case 'x':
		return 0, nil
	case 'y':
		return 1, nil
	case 'z':
		return 2, nil
	}
	return 0, fmt.Errorf("export: unknown axis %q", string(c))
}

func planeAxes(plane string) (int, int, error) {
	if plane == "" {
		plane = "xz"
	}
	if len(plane) != 2 || plane[0] == plane[1] {
		return 0, 0, fmt.Errorf("export: plane must name two axes, got %q", plane)
	}
	h, err := axisIndex(plane[0])
	if err != nil {
		return 0, 0, err
	}
	v, err := axisIndex(plane[1])
	return h, v, err
}

// collect splits samples into one path per link, in first-seen order.
func collect(samples []storage.Sample, opts SVGOptions, h, v int) []series {
	var out []series
	index := map[string]int{}
	for _, s := range samples {
		if (opts.Model != "" && s.Model != opts.Model) || (opts.Link != "" && s.Link != opts.Link) {
			continue
		}
		key := s.Model + "/" + s.Link
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, series{key: key})
		}
		out[i].points = append(out[i].points, point{s.Pose.Pos[h], s.Pose.Pos[v]})
	}
	return out
}

// TrajectorySVG plots the link positions of a stored run projected on a
// plane. Every link gets its own coloured path and a legend entry. All
// paths share one scale so their relative motion is preserved.
func TrajectorySVG(w io.Writer, samples []storage.Sample, opts SVGOptions) error {
	h, v, err := planeAxes(opts.Plane)
	if err != nil {
		return err
	}
	if opts.Width <= 0 {
		opts.Width = 640
	}
	if opts.Height <= 0 {
		opts.Height = 480
	}
	paths := collect(samples, opts, h, v)
	if len(paths) == 0 {
		return ErrNoSamples
	}

	minX, maxX := paths[0].points[0].X, paths[0].points[0].X
	minY, maxY := paths[0].points[0].Y, paths[0].points[0].Y
	for _, s := range paths {
		for _, p := range s.points {
			minX, maxX = min(minX, p.X), max(maxX, p.X)
			minY, maxY = min(minY, p.Y), max(maxY, p.Y)
		}
	}

	// Equal scale on both axes, padded by a tenth of the span.
	span := max(maxX-minX, maxY-minY)
	if span == 0 {
		span = 1
	}
	pad := span * 0.1
	cx, cy := (minX+maxX)/2, (minY+maxY)/2
	scale := float64(min(opts.Width, opts.Height)) / (span + 2*pad)
	toX := func(x float64) float64 { return float64(opts.Width)/2 + (x-cx)*scale }
	toY := func(y float64) float64 { return float64(opts.Height)/2 - (y-cy)*scale }

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, opts.Width, opts.Height, opts.Width, opts.Height)

	for i, s := range paths {
		color := palette[i%len(palette)]
		sb.WriteString(`<path fill="none" stroke="` + color + `" stroke-width="1.5" d="`)
		for j, p := range s.points {
			cmd := " L"
			if j == 0 {
				cmd = "M"
			}
			fmt.Fprintf(&sb, "%s%.1f,%.1f", cmd, toX(p.X), toY(p.Y))
		}
		sb.WriteString("\"/>\n")
		last := s.points[len(s.points)-1]
		fmt.Fprintf(&sb, `<circle cx="%.1f" cy="%.1f" r="3" fill="%s"/>
<text x="8" y="%d" fill="%s" font-family="monospace" font-size="12">%s</text>
`, toX(last.X), toY(last.Y), color, 18+14*i, color, s.key)
	}
	fmt.Fprintf(&sb, `<text x="%d" y="%d" fill="#666666" font-family="monospace" font-size="12" text-anchor="end">%c-%c</text>
</svg>
`, opts.Width-8, opts.Height-8, "xyz"[h], "xyz"[v])

	_, err = io.WriteString(w, sb.String())
	return err
}
