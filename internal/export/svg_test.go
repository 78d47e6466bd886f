package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/storage"
)

func samples() []storage.Sample {
	var out []storage.Sample
	for i := 0; i < 3; i++ {
		t := float64(i) * 0.1
		out = append(out,
			storage.Sample{Time: t, Model: "pendulum", Link: "bob", Pose: geom.NewPose(float64(i), 0, -1, 0, 0, 0)},
			storage.Sample{Time: t, Model: "cart", Link: "body", Pose: geom.NewPose(0, 0, float64(i), 0, 0, 0)},
		)
	}
	return out
}

func TestTrajectorySVG(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, TrajectorySVG(&sb, samples(), SVGOptions{Width: 200, Height: 100}))
	out := sb.String()

	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.Equal(t, 2, strings.Count(out, "<path"))
	assert.Contains(t, out, "pendulum/bob")
	assert.Contains(t, out, "cart/body")
	assert.Contains(t, out, "x-z")
	assert.True(t, strings.HasSuffix(out, "</svg>\n"))
}

func TestTrajectorySVGFilter(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, TrajectorySVG(&sb, samples(), SVGOptions{Plane: "xy", Model: "cart"}))
	out := sb.String()
	assert.Equal(t, 1, strings.Count(out, "<path"))
	assert.NotContains(t, out, "pendulum/bob")
	// A link that never moves in the plane still draws at the centre.
	assert.Contains(t, out, `d="M320.0,240.0 L320.0,240.0 L320.0,240.0"`)
}

func TestTrajectorySVGErrors(t *testing.T) {
	var sb strings.Builder
	assert.ErrorIs(t, TrajectorySVG(&sb, nil, SVGOptions{}), ErrNoSamples)
	assert.ErrorIs(t, TrajectorySVG(&sb, samples(), SVGOptions{Link: "arm"}), ErrNoSamples)
	assert.Error(t, TrajectorySVG(&sb, samples(), SVGOptions{Plane: "xx"}))
	assert.Error(t, TrajectorySVG(&sb, samples(), SVGOptions{Plane: "xw"}))
	assert.Empty(t, sb.String())
}
