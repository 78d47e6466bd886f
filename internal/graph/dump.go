package graph

import (
	"fmt"
	"io"
)

// Dump writes a human readable listing of the graph.
func (g *Graph) Dump(w io.Writer) error {
	name := "<nil>"
	if g.Model != nil {
		name = g.Model.Name
	}
	if _, err := fmt.Fprintf(w, "model %s: %d mobilizers, %d loop joints, %d rejected\n",
		name, len(g.Mobilizers), len(g.LoopJoints), len(g.Rejected)); err != nil {
		return err
	}
	if g.Static {
		_, err := fmt.Fprintln(w, "  static: collisions attach to ground")
		return err
	}

	for i, m := range g.Mobilizers {
		in := "world"
		if m.Inboard != nil {
			in = m.Inboard.Name
		}
		joint := "(added base)"
		if m.Joint != nil {
			joint = m.Joint.Name
		}
		var flags string
		if m.Reversed {
			flags += " reversed"
		}
		if m.Slave {
			flags += fmt.Sprintf(" slave#%d", m.SlaveIndex)
		}
		if m.Fragments > 1 {
			flags += fmt.Sprintf(" mass/%d", m.Fragments)
		}
		if _, err := fmt.Fprintf(w, "  %2d L%d %-10s %s -> %s [%s]%s\n", i, m.Level, m.Kind, in, m.Outboard.Name, joint, flags); err != nil {
			return err
		}
	}
	for _, lc := range g.Loops {
		if _, err := fmt.Fprintf(w, "  loop %s %s\n", lc.Kind, lc.Joint.Name); err != nil {
			return err
		}
	}
	for _, j := range g.Rejected {
		if _, err := fmt.Fprintf(w, "  rejected %s\n", j.Name); err != nil {
			return err
		}
	}
	return nil
}
