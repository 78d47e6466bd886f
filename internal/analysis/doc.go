// Package analysis inspects recorded trajectories in the frequency domain.
//
// A stored link series can be reduced to its dominant oscillation:
//
//	z := make([]float64, len(series))
//	for i, s := range series {
//	    z[i] = s.Pose.Pos[2]
//	}
//	hz, err := analysis.DominantFrequency(z, dt)
package analysis
