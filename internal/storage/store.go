package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/sim"
)

const (
	metadataFile = "metadata.json"
	posesFile    = "poses.csv"
)

var ErrNoRun = errors.New("storage: no such run")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Scene      string             `json:"scene,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
	Backend    string             `json:"backend"`
	Solver     string             `json:"solver"`
	Integrator string             `json:"integrator"`
	Dt         float64            `json:"dt"`
	Duration   float64            `json:"duration"`
	Start      float64            `json:"start"`
	End        float64            `json:"end"`
	Steps      int                `json:"steps"`
	Failures   int                `json:"failures"`
	Gravity    [3]float64         `json:"gravity"`
	Models     []string           `json:"models"`
	Metrics    map[string]float64 `json:"metrics"`
	// EnergyDrift is relative, over the moving links.
	EnergyDrift float64 `json:"energy_drift"`
}

// Sample is one row of a stored trajectory.
type Sample struct {
	Time     float64
	Model    string
	Link     string
	Pose     geom.Pose
	Velocity geom.Velocity
}

var header = []string{
	"time", "model", "link",
	"x", "y", "z", "qw", "qx", "qy", "qz",
	"vx", "vy", "vz", "wx", "wy", "wz",
}

// Save stores a finished run whose frames were recorded. meta.ID is
// assigned when empty.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	rec, err := s.Create(meta)
	if err != nil {
		return "", err
	}
	for _, f := range result.Frames {
		rec.OnStep(f)
	}
	return rec.Finish(result)
}

// Recorder streams frames of a run into its trajectory file. It is a
// sim.Observer; Finish writes the metadata.
type Recorder struct {
	meta RunMetadata
	dir  string
	file *os.File
	w    *csv.Writer
	err  error
}

// Create starts a run directory and returns its recorder.
func (s *Store) Create(meta RunMetadata) (*Recorder, error) {
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	dir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	f, err := os.Create(filepath.Join(dir, posesFile))
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	return &Recorder{meta: meta, dir: dir, file: f, w: w}, nil
}

func (r *Recorder) ID() string { return r.meta.ID }

func (r *Recorder) OnStep(f sim.Frame) {
	if r.err != nil {
		return
	}
	t := formatFloat(f.Time)
	for _, l := range f.Links {
		p, v := l.Pose, l.Velocity
		row := []string{t, l.Model, l.Link}
		for _, x := range []float64{
			p.Pos[0], p.Pos[1], p.Pos[2], p.Rot.W, p.Rot.V[0], p.Rot.V[1], p.Rot.V[2],
			v.Linear[0], v.Linear[1], v.Linear[2], v.Angular[0], v.Angular[1], v.Angular[2],
		} {
			row = append(row, formatFloat(x))
		}
		if err := r.w.Write(row); err != nil {
			r.err = err
			return
		}
	}
}

// Finish flushes the trajectory and writes the metadata, filling the run
// summary from result when it is not nil.
func (r *Recorder) Finish(result *sim.Result) (string, error) {
	r.w.Flush()
	if err := r.w.Error(); err != nil && r.err == nil {
		r.err = err
	}
	if err := r.file.Close(); err != nil && r.err == nil {
		r.err = err
	}
	if r.err != nil {
		return "", r.err
	}

	meta := r.meta
	if result != nil {
		meta.Start = result.Start
		meta.End = result.End
		meta.Steps = result.StepsTaken
		meta.Failures = len(result.Errors)
		meta.Metrics = result.Metrics
		meta.EnergyDrift = result.EnergyDrift
	}
	if meta.Metrics == nil {
		meta.Metrics = map[string]float64{}
	}

	f, err := os.Create(filepath.Join(r.dir, metadataFile))
	if err != nil {
		return "", err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}
	return meta.ID, nil
}

// List returns the stored runs, newest first. Directories without readable
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}

		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoRun, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// LoadTrajectory reads every stored sample of a run in file order.
func (s *Store) LoadTrajectory(runID string) ([]Sample, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, posesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoRun, runID)
		}
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(header)

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []Sample{}, nil
	}

	samples := make([]Sample, 0, len(records)-1)
	for i, record := range records[1:] {
		var vals [13]float64
		for j := range vals {
			v, err := strconv.ParseFloat(record[3+j], 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %w", posesFile, i+2, err)
			}
			vals[j] = v
		}
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", posesFile, i+2, err)
		}
		samples = append(samples, Sample{
			Time:  t,
			Model: record[1],
			Link:  record[2],
			Pose: geom.Pose{
				Pos: mgl64.Vec3{vals[0], vals[1], vals[2]},
				Rot: mgl64.Quat{W: vals[3], V: mgl64.Vec3{vals[4], vals[5], vals[6]}},
			},
			Velocity: geom.Velocity{
				Linear:  mgl64.Vec3{vals[7], vals[8], vals[9]},
				Angular: mgl64.Vec3{vals[10], vals[11], vals[12]},
			},
		})
	}
	return samples, nil
}

// Series picks one link out of a trajectory.
func Series(samples []Sample, model, link string) []Sample {
	out := make([]Sample, 0)
	for _, s := range samples {
		if s.Model == model && s.Link == link {
			out = append(out, s)
		}
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
