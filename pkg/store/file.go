// Package store persists calibration results as YAML. The file doubles as
// the calibration cache: a readable file with a camera matrix and distortion
// coefficients is a hit.
package store

import (
	"bytes"
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/charlie0129/markercam/pkg/calibration"
	"github.com/charlie0129/markercam/pkg/geometry"
)

// ErrIncomplete is returned by Load when the file lacks a usable camera
// matrix or distortion coefficients.
var ErrIncomplete = pkgerrors.New("calibration file is incomplete")

// Options selects the optional sections written by Save.
type Options struct {
	PerViewErrors bool
	Extrinsics    bool
	ImagePoints   bool
	GridPoints    bool
}

// matrix mirrors OpenCV's FileStorage matrix node.
type matrix struct {
	Rows int       `yaml:"rows"`
	Cols int       `yaml:"cols"`
	Dt   string    `yaml:"dt"`
	Data []float64 `yaml:"data,flow"`
}

type resultFile struct {
	CalibrationTime time.Time `yaml:"calibration_time"`
	NrOfFrames      int       `yaml:"nr_of_frames,omitempty"`
	ImageWidth      int       `yaml:"image_width"`
	ImageHeight     int       `yaml:"image_height"`
	BoardWidth      int       `yaml:"board_width"`
	BoardHeight     int       `yaml:"board_height"`
	SquareSize      float64   `yaml:"square_size"`
	MarkerSize      float64   `yaml:"marker_size"`
	FixAspectRatio  float64   `yaml:"fix_aspect_ratio,omitempty"`
	Flags           int       `yaml:"flags"`
	FisheyeModel    bool      `yaml:"fisheye_model"`

	CameraMatrix           *matrix `yaml:"camera_matrix"`
	DistortionCoefficients *matrix `yaml:"distortion_coefficients"`
	AvgReprojectionError   float64 `yaml:"avg_reprojection_error"`

	PerViewReprojectionErrors *matrix `yaml:"per_view_reprojection_errors,omitempty"`
	ExtrinsicParameters       *matrix `yaml:"extrinsic_parameters,omitempty"`
	ImagePoints               *matrix `yaml:"image_points,omitempty"`
	GridPoints                *matrix `yaml:"grid_points,omitempty"`
}

// Save writes r to path atomically.
func Save(path string, r *calibration.Result, opts Options) error {
	f := resultFile{
		CalibrationTime:        r.CalibrationTime,
		NrOfFrames:             r.NrOfFrames,
		ImageWidth:             r.ImageSize.Width,
		ImageHeight:            r.ImageSize.Height,
		BoardWidth:             r.BoardSize.Width,
		BoardHeight:            r.BoardSize.Height,
		SquareSize:             r.SquareSize,
		MarkerSize:             r.MarkerSize,
		Flags:                  int(r.Flags),
		FisheyeModel:           r.Fisheye,
		CameraMatrix:           &matrix{Rows: 3, Cols: 3, Dt: "d", Data: r.CameraMatrix},
		DistortionCoefficients: &matrix{Rows: len(r.Distortion), Cols: 1, Dt: "d", Data: r.Distortion},
		AvgReprojectionError:   r.AvgReprojectionError,
	}
	if !r.Fisheye && r.Flags.Has(calibration.FlagFixAspectRatio) {
		f.FixAspectRatio = r.AspectRatio
	}
	if opts.PerViewErrors && len(r.PerViewErrors) > 0 {
		f.PerViewReprojectionErrors = &matrix{Rows: len(r.PerViewErrors), Cols: 1, Dt: "f", Data: r.PerViewErrors}
	}
	if opts.Extrinsics && len(r.Extrinsics) > 0 {
		data := make([]float64, 0, 6*len(r.Extrinsics))
		for _, e := range r.Extrinsics {
			data = append(data, e[:]...)
		}
		f.ExtrinsicParameters = &matrix{Rows: len(r.Extrinsics), Cols: 6, Dt: "d", Data: data}
	}
	if opts.ImagePoints && len(r.ImagePoints) > 0 {
		cols := len(r.ImagePoints[0])
		data := make([]float64, 0, 2*cols*len(r.ImagePoints))
		for _, view := range r.ImagePoints {
			for _, p := range view {
				data = append(data, p.X, p.Y)
			}
		}
		f.ImagePoints = &matrix{Rows: len(r.ImagePoints), Cols: cols, Dt: "2f", Data: data}
	}
	if opts.GridPoints && len(r.GridPoints) > 0 {
		data := make([]float64, 0, 3*len(r.GridPoints))
		for _, p := range r.GridPoints {
			data = append(data, p[:]...)
		}
		f.GridPoints = &matrix{Rows: len(r.GridPoints), Cols: 1, Dt: "3f", Data: data}
	}

	var doc yaml.Node
	if err := doc.Encode(&f); err != nil {
		return pkgerrors.Wrapf(err, "failed to encode calibration result")
	}
	comments := map[string]string{
		"extrinsic_parameters": "a set of 6-tuples (rotation vector + translation vector) for each view",
	}
	if r.Flags != 0 {
		comments["flags"] = r.Flags.Comment(r.Fisheye)
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if c, ok := comments[doc.Content[i].Value]; ok {
			doc.Content[i].HeadComment = c
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return pkgerrors.Wrapf(err, "failed to encode calibration result")
	}
	if err := enc.Close(); err != nil {
		return pkgerrors.Wrapf(err, "failed to encode calibration result")
	}

	if err := writeFile(path, buf.Bytes(), 0o644); err != nil {
		return pkgerrors.Wrapf(err, "failed to write calibration file %s", path)
	}
	return nil
}

// Load reads a calibration result. A missing file yields os.ErrNotExist; a
// file without a 3x3 camera matrix or without distortion coefficients yields
// ErrIncomplete.
func Load(path string) (*calibration.Result, error) {
	b, err := readFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read calibration file %s", path)
	}
	if b == nil {
		return nil, os.ErrNotExist
	}

	var f resultFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to parse calibration file %s", path)
	}
	if f.CameraMatrix == nil || f.CameraMatrix.Rows != 3 || f.CameraMatrix.Cols != 3 || len(f.CameraMatrix.Data) != 9 {
		return nil, ErrIncomplete
	}
	if f.DistortionCoefficients == nil || len(f.DistortionCoefficients.Data) == 0 {
		return nil, ErrIncomplete
	}

	r := &calibration.Result{
		CalibrationTime:      f.CalibrationTime,
		NrOfFrames:           f.NrOfFrames,
		ImageSize:            geometry.Size{Width: f.ImageWidth, Height: f.ImageHeight},
		BoardSize:            geometry.Size{Width: f.BoardWidth, Height: f.BoardHeight},
		SquareSize:           f.SquareSize,
		MarkerSize:           f.MarkerSize,
		AspectRatio:          f.FixAspectRatio,
		Flags:                calibration.Flags(f.Flags),
		Fisheye:              f.FisheyeModel,
		CameraMatrix:         f.CameraMatrix.Data,
		Distortion:           f.DistortionCoefficients.Data,
		AvgReprojectionError: f.AvgReprojectionError,
	}
	if m := f.PerViewReprojectionErrors; m != nil {
		r.PerViewErrors = m.Data
	}
	if m := f.ExtrinsicParameters; m != nil && m.Cols == 6 && len(m.Data) == 6*m.Rows {
		r.Extrinsics = make([][6]float64, m.Rows)
		for i := range r.Extrinsics {
			copy(r.Extrinsics[i][:], m.Data[6*i:])
		}
	}
	if m := f.ImagePoints; m != nil && len(m.Data) == 2*m.Rows*m.Cols {
		r.ImagePoints = make([][]geometry.Point2, m.Rows)
		for i := range r.ImagePoints {
			view := make([]geometry.Point2, m.Cols)
			for j := range view {
				k := 2 * (i*m.Cols + j)
				view[j] = geometry.Point2{X: m.Data[k], Y: m.Data[k+1]}
			}
			r.ImagePoints[i] = view
		}
	}
	if m := f.GridPoints; m != nil && len(m.Data)%3 == 0 {
		r.GridPoints = make([][3]float64, len(m.Data)/3)
		for i := range r.GridPoints {
			copy(r.GridPoints[i][:], m.Data[3*i:])
		}
	}
	return r, nil
}

// Remove deletes the calibration file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return pkgerrors.Wrapf(err, "failed to remove calibration file %s", path)
	}
	return nil
}
