package viz

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/logging"
	"github.com/san-kum/rigidsim/internal/sceneio"
	"github.com/san-kum/rigidsim/internal/storage"
)

const (
	stateList = iota
	stateReplay
)

// replayFrame holds every link pose stored at one time.
type replayFrame struct {
	time  float64
	poses map[string]geom.Pose
}

func linkKey(model, link string) string { return model + "/" + link }

// groupFrames splits a trajectory into frames. Samples of one frame are
// contiguous in a stored run.
func groupFrames(samples []storage.Sample) ([]replayFrame, []string) {
	frames := make([]replayFrame, 0)
	var keys []string
	seen := map[string]bool{}
	for _, s := range samples {
		if n := len(frames); n == 0 || frames[n-1].time != s.Time {
			frames = append(frames, replayFrame{time: s.Time, poses: map[string]geom.Pose{}})
		}
		k := linkKey(s.Model, s.Link)
		frames[len(frames)-1].poses[k] = s.Pose
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return frames, keys
}

// sceneWires outlines the links of the scene file a run came from. Links
// missing from the scene are drawn as axes.
func sceneWires(path string, keys []string) map[string]*Wireframe {
	wires := make(map[string]*Wireframe, len(keys))
	if path != "" {
		if sc, err := sceneio.Load(path, logging.Nop()); err == nil {
			for _, m := range sc.Models {
				for _, l := range m.Links {
					wires[linkKey(m.Name, l.Name)] = LinkWireframe(l)
				}
			}
		}
	}
	for _, k := range keys {
		if _, ok := wires[k]; !ok {
			wires[k] = CreateAxesWireframe(0.2)
		}
	}
	return wires
}

// Browser lists stored runs and replays their trajectories.
type Browser struct {
	store  *storage.Store
	state  int
	runs   []storage.RunMetadata
	cursor int
	err    string

	run      storage.RunMetadata
	frames   []replayFrame
	keys     []string
	wires    map[string]*Wireframe
	head     int
	speed    int
	playing  bool
	selected int

	canvas *Canvas
	camera *Camera
}

func NewBrowser(store *storage.Store) *Browser {
	b := &Browser{store: store, canvas: NewCanvas(width, height), camera: NewCamera(), speed: 1}
	b.refresh()
	return b
}

// RunBrowser starts the run browser in the alternate screen.
func RunBrowser(store *storage.Store) error {
	_, err := tea.NewProgram(NewBrowser(store), tea.WithAltScreen()).Run()
	return err
}

func (b *Browser) refresh() {
	runs, err := b.store.List()
	if err != nil {
		b.err = err.Error()
		return
	}
	b.runs, b.err = runs, ""
	b.cursor = max(0, min(b.cursor, len(runs)-1))
}

func (b *Browser) Init() tea.Cmd { return tick() }

func (b *Browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return b, tea.Quit
		}
		if b.state == stateList {
			return b, b.listKey(msg)
		}
		b.replayKey(msg)
	case TickMsg:
		if b.state == stateReplay && b.playing {
			b.head += b.speed
			if b.head >= len(b.frames)-1 {
				b.head = len(b.frames) - 1
				b.playing = false
			}
		}
		return b, tick()
	}
	return b, nil
}

func (b *Browser) listKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q", "esc":
		return tea.Quit
	case "up", "k":
		b.cursor = max(0, b.cursor-1)
	case "down", "j":
		b.cursor = min(len(b.runs)-1, b.cursor+1)
	case "r":
		b.refresh()
	case "enter":
		if len(b.runs) > 0 {
			b.open(b.runs[b.cursor])
		}
	}
	return nil
}

func (b *Browser) open(run storage.RunMetadata) {
	samples, err := b.store.LoadTrajectory(run.ID)
	if err != nil {
		b.err = err.Error()
		return
	}
	if len(samples) == 0 {
		b.err = fmt.Sprintf("run %s has no stored frames", run.ID)
		return
	}
	b.run = run
	b.frames, b.keys = groupFrames(samples)
	b.wires = sceneWires(run.Scene, b.keys)
	b.head, b.selected, b.playing, b.err = 0, 0, true, ""
	b.state = stateReplay

	var sum mgl64.Vec3
	first := b.frames[0].poses
	for _, p := range first {
		sum = sum.Add(p.Pos)
	}
	b.camera.Target = sum.Mul(1 / float64(len(first)))
}

func (b *Browser) replayKey(msg tea.KeyMsg) {
	switch msg.String() {
	case "q", "esc":
		b.state = stateList
	case " ":
		if b.head >= len(b.frames)-1 {
			b.head = 0
		}
		b.playing = !b.playing
	case "left":
		b.playing = false
		b.head = max(0, b.head-1)
	case "right":
		b.playing = false
		b.head = min(len(b.frames)-1, b.head+1)
	case "home":
		b.head = 0
	case "[":
		b.speed = max(1, b.speed/2)
	case "]":
		b.speed = min(64, b.speed*2)
	case "tab":
		b.selected = (b.selected + 1) % len(b.keys)
	case "x":
		b.camera.Orbit(0.1, 0)
	case "X":
		b.camera.Orbit(-0.1, 0)
	case "y":
		b.camera.Orbit(0, 0.1)
	case "Y":
		b.camera.Orbit(0, -0.1)
	case "+", "=":
		b.camera.ZoomIn()
	case "-", "_":
		b.camera.ZoomOut()
	}
}

func (b *Browser) View() string {
	if b.state == stateReplay {
		return b.viewReplay()
	}
	return b.viewList()
}

func (b *Browser) viewList() string {
	var s strings.Builder
	s.WriteString(titleStyle().Render("STORED RUNS") + "\n")
	if len(b.runs) == 0 {
		s.WriteString(fg(CurrentTheme.Muted).Render("  no runs recorded yet") + "\n")
	}
	for i, r := range b.runs {
		line := fmt.Sprintf("%-8s  %-16s %-7s %6d steps  %7.2fs  drift %.2e  %s",
			shortID(r.ID), r.Name, r.Backend, r.Steps, r.End-r.Start, r.EnergyDrift, r.Timestamp.Format(time.DateTime))
		if i == b.cursor {
			s.WriteString(activeStyle().Render("> "+line) + "\n")
		} else {
			s.WriteString("  " + valueStyle().Render(line) + "\n")
		}
	}
	if b.err != "" {
		s.WriteString("\n" + fg(CurrentTheme.Error).Render(b.err) + "\n")
	}
	s.WriteString(helpStyle().Render("↑↓ select • enter replay • r refresh • q quit"))
	return lipgloss.NewStyle().Padding(1, 2).Render(s.String())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (b *Browser) viewReplay() string {
	f := b.frames[b.head]
	b.canvas.Clear()
	w := NewWireframe()
	w.Append(CreateAxesWireframe(0.5), geom.Identity())
	for _, k := range b.keys {
		if p, ok := f.poses[k]; ok {
			w.Append(b.wires[k], p)
		}
	}
	Render3D(b.canvas, w, b.camera)

	var s strings.Builder
	s.WriteString(titleStyle().Render(strings.ToUpper(b.run.Name)) + "\n")
	status := "PAUSED"
	if b.playing {
		status = fmt.Sprintf("PLAYING x%d", b.speed)
	}
	s.WriteString(statusStyle(b.playing).Render(status) + "\n\n")
	s.WriteString(labelStyle().Render("Time") + valueStyle().Render(fmt.Sprintf("%.3fs", f.time)) + "\n")
	s.WriteString(labelStyle().Render("Frame") + valueStyle().Render(fmt.Sprintf("%d/%d", b.head+1, len(b.frames))) + "\n")
	s.WriteString(ProgressBar(float64(b.head)/float64(max(1, len(b.frames)-1)), 30) + "\n")

	key := b.keys[b.selected]
	s.WriteString("\n" + activeStyle().Render("> "+key) + "\n")
	if p, ok := f.poses[key]; ok {
		s.WriteString(labelStyle().Render("Position") + valueStyle().Render(fmt.Sprintf("%.3f %.3f %.3f", p.Pos[0], p.Pos[1], p.Pos[2])) + "\n")
	}
	heights := make([]float64, 0, b.head+1)
	for _, fr := range b.frames[:b.head+1] {
		if p, ok := fr.poses[key]; ok {
			heights = append(heights, p.Pos[2])
		}
	}
	s.WriteString(labelStyle().Render("Height") + SparklineChart(heights, 30) + "\n")
	s.WriteString(helpStyle().Render(Separator(30) + "\nSP:Play ←→:Step [ ]:Speed\nTab:Link x/y:Orbit Esc:Back"))

	canvasView := lipgloss.NewStyle().Padding(1, 2).Render(b.canvas.String())
	return lipgloss.JoinHorizontal(lipgloss.Top, canvasView, panelStyle().Render(s.String()))
}
