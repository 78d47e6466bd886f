package viz

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/physics"
	"github.com/san-kum/rigidsim/internal/sim"
)

const (
	width           = 80
	height          = 24
	historyCapacity = 600
	framesPerSecond = 60
)

type TickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second/framesPerSecond, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// Options configures the live viewer.
type Options struct {
	Title string
	// Observers receive a frame after every rendered step.
	Observers []sim.Observer
	// GIFPath is where the g key saves its recording.
	GIFPath string
}

type linkRef struct {
	id          uuid.UUID
	model, link string
}

// Model is the bubbletea model of the live viewer. It owns the stepping
// goroutine of eng: every tick advances the engine by one frame of
// simulated time scaled by the real time factor.
type Model struct {
	ctx  context.Context
	eng  *physics.Engine
	opts Options

	canvas *Canvas
	camera *Camera
	wires  map[uuid.UUID]*Wireframe
	poses  map[uuid.UUID]geom.Pose
	links  []linkRef

	selected int
	running  bool
	showHelp bool
	status   string

	trace  []float64
	energy []float64

	recording bool
	frames    []*image.Paletted
}

func NewModel(ctx context.Context, eng *physics.Engine, opts Options) *Model {
	if opts.GIFPath == "" {
		opts.GIFPath = "simulation.gif"
	}
	m := &Model{
		ctx:     ctx,
		eng:     eng,
		opts:    opts,
		canvas:  NewCanvas(width, height),
		camera:  NewCamera(),
		wires:   make(map[uuid.UUID]*Wireframe),
		poses:   make(map[uuid.UUID]geom.Pose),
		running: true,
		trace:   make([]float64, 0, historyCapacity),
		energy:  make([]float64, 0, historyCapacity),
	}
	m.syncLinks()
	m.fitCamera()
	return m
}

// Run starts the viewer in the alternate screen and blocks until it quits.
func Run(ctx context.Context, eng *physics.Engine, opts Options) error {
	_, err := tea.NewProgram(NewModel(ctx, eng, opts), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m *Model) Init() tea.Cmd { return tick() }

// Update handles input events and steps the simulation.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case TickMsg:
		if m.running {
			m.step()
		}
		m.draw()
		if m.recording {
			m.captureFrame()
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q", "ctrl+c":
		return tea.Quit
	case " ":
		m.running = !m.running
	case "r":
		m.reset()
	case "tab":
		if len(m.links) > 0 {
			m.selected = (m.selected + 1) % len(m.links)
			m.trace = m.trace[:0]
		}
	case "e":
		on := !m.eng.Info().EnablePhysics
		m.send(physics.PhysicsMsg{EnablePhysics: &on})
	case "[":
		m.scaleRTF(0.5)
	case "]":
		m.scaleRTF(2)
	case "g":
		if m.recording {
			m.status = m.saveGIF()
			m.recording = false
			m.frames = nil
		} else {
			m.recording = true
			m.frames = make([]*image.Paletted, 0)
		}
	case "t":
		NextTheme()
	case "?":
		m.showHelp = !m.showHelp
	case "left", "h":
		m.camera.Orbit(-0.1, 0)
	case "right", "l":
		m.camera.Orbit(0.1, 0)
	case "up", "k":
		m.camera.Orbit(0, 0.1)
	case "down", "j":
		m.camera.Orbit(0, -0.1)
	case "+", "=":
		m.camera.ZoomIn()
	case "-", "_":
		m.camera.ZoomOut()
	case "c":
		m.fitCamera()
	}
	return nil
}

func (m *Model) send(msg physics.PhysicsMsg) {
	if err := m.eng.HandlePhysicsMsg(m.ctx, msg); err != nil {
		m.status = err.Error()
	}
}

func (m *Model) scaleRTF(f float64) {
	rtf := m.eng.Info().RealTimeFactor
	if rtf <= 0 {
		rtf = 1
	}
	rtf = max(1.0/64, min(64, rtf*f))
	m.send(physics.PhysicsMsg{RealTimeFactor: &rtf})
}

// frameStep is the simulated time covered by one rendered frame. An
// unthrottled engine is shown at real time.
func (m *Model) frameStep() float64 {
	rtf := m.eng.Info().RealTimeFactor
	if rtf <= 0 {
		rtf = 1
	}
	return rtf / framesPerSecond
}

// step advances the engine one frame and folds the moved links into the
// pose cache.
func (m *Model) step() {
	err := m.eng.Step(m.ctx, m.eng.Time()+m.frameStep())
	var te *physics.TickError
	switch {
	case errors.As(err, &te):
		m.status = te.Error()
	case err != nil:
		m.status = err.Error()
		m.running = false
		return
	default:
		m.status = ""
	}
	for _, d := range m.eng.DrainDirtyPoses() {
		m.poses[d.LinkID] = d.Pose
	}
	m.syncLinks()

	f := sim.Capture(m.eng)
	for _, o := range m.opts.Observers {
		o.OnStep(f)
	}
	m.energy = appendCapped(m.energy, f.Energy())
	if ref, ok := m.current(); ok {
		if s, ok := f.Link(ref.model, ref.link); ok {
			m.trace = appendCapped(m.trace, s.Pose.Pos[2])
		}
	}
}

func appendCapped(h []float64, v float64) []float64 {
	h = append(h, v)
	if len(h) > historyCapacity {
		h = h[1:]
	}
	return h
}

// syncLinks tracks the links of the loaded models. New links get a
// wireframe and their current pose; links of removed models are dropped.
func (m *Model) syncLinks() {
	seen := make(map[uuid.UUID]bool, len(m.wires))
	links := m.links[:0]
	for _, mdl := range m.eng.Models() {
		for _, l := range mdl.Links {
			seen[l.ID] = true
			if _, ok := m.wires[l.ID]; !ok {
				m.wires[l.ID] = LinkWireframe(l)
				m.poses[l.ID] = l.WorldPose()
			}
			links = append(links, linkRef{id: l.ID, model: mdl.Name, link: l.Name})
		}
	}
	for id := range m.wires {
		if !seen[id] {
			delete(m.wires, id)
			delete(m.poses, id)
		}
	}
	m.links = links
	if m.selected >= len(m.links) {
		m.selected = 0
	}
}

func (m *Model) current() (linkRef, bool) {
	if len(m.links) == 0 {
		return linkRef{}, false
	}
	return m.links[m.selected], true
}

// fitCamera aims the camera at the centroid of the dynamic links.
func (m *Model) fitCamera() {
	var sum mgl64.Vec3
	n := 0
	for _, mdl := range m.eng.Models() {
		if mdl.Static {
			continue
		}
		for _, l := range mdl.Links {
			sum = sum.Add(m.poses[l.ID].Pos)
			n++
		}
	}
	if n > 0 {
		m.camera.Target = sum.Mul(1 / float64(n))
	}
}

// reset rewinds the engine to time zero and clears the histories.
func (m *Model) reset() {
	if err := m.eng.Reset(m.ctx); err != nil {
		m.status = err.Error()
		return
	}
	m.eng.DrainDirtyPoses()
	for _, mdl := range m.eng.Models() {
		for _, l := range mdl.Links {
			m.poses[l.ID] = l.WorldPose()
		}
	}
	m.trace = m.trace[:0]
	m.energy = m.energy[:0]
	m.status = ""
}

func (m *Model) draw() {
	m.canvas.Clear()
	w := NewWireframe()
	w.Append(CreateAxesWireframe(0.5), geom.Identity())
	for _, ref := range m.links {
		w.Append(m.wires[ref.id], m.poses[ref.id])
	}
	Render3D(m.canvas, w, m.camera)
}

// View renders the TUI interface.
func (m *Model) View() string {
	info := m.eng.Info()
	var s strings.Builder

	title := m.opts.Title
	if title == "" {
		title = "rigidsim"
	}
	s.WriteString(titleStyle().Render(strings.ToUpper(title)) + "\n")

	status := "RUNNING"
	switch {
	case !m.running:
		status = "PAUSED"
	case !info.EnablePhysics:
		status = "FROZEN"
	}
	if m.recording {
		status += " ● REC"
	}
	s.WriteString(statusStyle(m.running).Render(status) + "\n\n")

	row := func(label, value string) {
		s.WriteString(labelStyle().Render(label) + valueStyle().Render(value) + "\n")
	}
	row("Time", fmt.Sprintf("%.3fs", info.Time))
	row("Backend", info.Backend+"/"+info.IntegratorType)
	row("RTF", fmt.Sprintf("%.3gx", info.RealTimeFactor))
	row("Gravity", fmt.Sprintf("%.2f %.2f %.2f", info.Gravity[0], info.Gravity[1], info.Gravity[2]))
	row("Models", fmt.Sprintf("%d (%d links)", info.Models, len(m.links)))
	if n := len(m.energy); n > 0 {
		row("Energy", fmt.Sprintf("%.4g J", m.energy[n-1]))
		s.WriteString(labelStyle().Render("") + SparklineChart(m.energy, 30) + "\n")
	}

	if ref, ok := m.current(); ok {
		s.WriteString("\n" + activeStyle().Render("> "+ref.model+"/"+ref.link) + "\n")
		p := m.poses[ref.id].Pos
		row("Position", fmt.Sprintf("%.3f %.3f %.3f", p[0], p[1], p[2]))
		if len(m.trace) > 1 {
			chart := asciigraph.Plot(m.trace, asciigraph.Height(5), asciigraph.Width(30), asciigraph.Caption("height (m)"))
			s.WriteString(graphStyle().Render(chart) + "\n")
		}
	}
	if m.status != "" {
		s.WriteString("\n" + fg(CurrentTheme.Error).Render(m.status) + "\n")
	}
	s.WriteString(helpStyle().Render(Separator(30) + "\nSP:Pause R:Reset Q:Quit\nTab:Link [ ]:RTF ?:Help"))

	canvasView := lipgloss.NewStyle().Padding(1, 2).Render(m.canvas.String())
	main := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, panelStyle().Render(s.String()))
	if m.showHelp {
		return helpText + "\n" + main
	}
	return main
}

const helpText = `
╔══════════════════════════════════════╗
║          KEYBOARD SHORTCUTS          ║
╠══════════════════════════════════════╣
║  Space    - Pause/Resume stepping    ║
║  R        - Reset to time zero       ║
║  Q        - Quit                     ║
║  Tab      - Select next link         ║
║  E        - Toggle physics           ║
║  [ ]      - Halve/double RTF         ║
║  Arrows   - Orbit camera             ║
║  + -      - Zoom                     ║
║  C        - Recentre camera          ║
║  G        - Toggle GIF recording     ║
║  T        - Cycle themes             ║
║  ?        - Toggle this help         ║
╚══════════════════════════════════════╝`

// captureFrame rasterises the braille canvas into a GIF frame.
func (m *Model) captureFrame() {
	const charW, charH = 8, 16
	const dotW, dotH = charW / 2, charH / 4
	img := image.NewPaletted(image.Rect(0, 0, m.canvas.Width*charW, m.canvas.Height*charH), color.Palette{color.Black, color.White})
	for row := 0; row < m.canvas.Height; row++ {
		for col := 0; col < m.canvas.Width; col++ {
			pattern := int(m.canvas.Grid[row][col] - blank)
			if pattern <= 0 {
				continue
			}
			for dy := 0; dy < 4; dy++ {
				for dx := 0; dx < 2; dx++ {
					if pattern&pixelMap[dy][dx] == 0 {
						continue
					}
					x0, y0 := col*charW+dx*dotW, row*charH+dy*dotH
					for py := 0; py < dotH; py++ {
						for px := 0; px < dotW; px++ {
							img.SetColorIndex(x0+px, y0+py, 1)
						}
					}
				}
			}
		}
	}
	m.frames = append(m.frames, img)
}

// saveGIF writes the recorded frames and returns a status line.
func (m *Model) saveGIF() string {
	if len(m.frames) == 0 {
		return "nothing recorded"
	}
	anim := gif.GIF{}
	for _, frame := range m.frames {
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 100/framesPerSecond)
	}
	f, err := os.Create(m.opts.GIFPath)
	if err != nil {
		return err.Error()
	}
	defer f.Close()
	if err := gif.EncodeAll(f, &anim); err != nil {
		return err.Error()
	}
	return fmt.Sprintf("saved %d frames to %s", len(m.frames), m.opts.GIFPath)
}
