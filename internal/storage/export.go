package storage

import (
	"encoding/json"
	"io"
	"os"
)

type ExportLink struct {
	Model    string     `json:"model"`
	Link     string     `json:"link"`
	Position [3]float64 `json:"position"`
	// Quaternion is w, x, y, z.
	Quaternion [4]float64 `json:"quaternion"`
	Linear     [3]float64 `json:"linear_velocity"`
	Angular    [3]float64 `json:"angular_velocity"`
}

type ExportFrame struct {
	Time  float64      `json:"time"`
	Links []ExportLink `json:"links"`
}

type ExportData struct {
	RunMetadata
	Frames []ExportFrame `json:"frames"`
}

// Export groups the samples of a run by time.
func Export(meta RunMetadata, samples []Sample) ExportData {
	data := ExportData{RunMetadata: meta, Frames: make([]ExportFrame, 0)}
	for _, s := range samples {
		n := len(data.Frames)
		if n == 0 || data.Frames[n-1].Time != s.Time {
			data.Frames = append(data.Frames, ExportFrame{Time: s.Time})
			n++
		}
		p, v := s.Pose, s.Velocity
		data.Frames[n-1].Links = append(data.Frames[n-1].Links, ExportLink{
			Model:      s.Model,
			Link:       s.Link,
			Position:   [3]float64(p.Pos),
			Quaternion: [4]float64{p.Rot.W, p.Rot.V[0], p.Rot.V[1], p.Rot.V[2]},
			Linear:     [3]float64(v.Linear),
			Angular:    [3]float64(v.Angular),
		})
	}
	return data
}

// ExportJSON writes a stored run as one indented JSON document.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	samples, err := s.LoadTrajectory(runID)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(Export(*meta, samples))
}

func (s *Store) ExportJSONFile(path, runID string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return s.ExportJSON(file, runID)
}
