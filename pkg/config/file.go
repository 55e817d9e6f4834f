package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/charlie0129/markercam/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		BoardWidth:         ptr.To(9),
		BoardHeight:        ptr.To(6),
		CalibrationPattern: ptr.To("CHESSBOARD"),
		SquareSize:         ptr.To(25.0),
		MarkerSize:         ptr.To(15.0),
		PoseMarkerSize:     ptr.To(50.0),
		WindowSize:         ptr.To(11),
		ArucoDictName:      ptr.To("DICT_4X4_50"),
		NrFrames:           ptr.To(25),
		FixAspectRatio:     ptr.To(1.0),
		ZeroTangentDist:    ptr.To(true),
		FixPrincipalPoint:  ptr.To(true),
		WritePoints:        ptr.To(false),
		WriteExtrinsics:    ptr.To(true),
		WriteGrid:          ptr.To(false),
		WritePerViewErrors: ptr.To(true),
		OutputFileName:     ptr.To("camera_calibration.yaml"),
		ShowUndistorted:    ptr.To(true),
		Input:              ptr.To("0"),
		InputDelay:         ptr.To(100),
	}
)

// RawFileConfig is the on-disk calibration profile. Unset fields fall back to
// the defaults.
type RawFileConfig struct {
	BoardWidth         *int     `json:"board_width,omitempty" yaml:"board_width,omitempty"`
	BoardHeight        *int     `json:"board_height,omitempty" yaml:"board_height,omitempty"`
	CalibrationPattern *string  `json:"calibration_pattern,omitempty" yaml:"calibration_pattern,omitempty"`
	SquareSize         *float64 `json:"calibration_square_size,omitempty" yaml:"calibration_square_size,omitempty"`
	MarkerSize         *float64 `json:"calibration_marker_size,omitempty" yaml:"calibration_marker_size,omitempty"`
	PoseMarkerSize     *float64 `json:"pose_marker_size,omitempty" yaml:"pose_marker_size,omitempty"`
	WindowSize         *int     `json:"window_size,omitempty" yaml:"window_size,omitempty"`
	ArucoDictName      *string  `json:"aruco_dict_name,omitempty" yaml:"aruco_dict_name,omitempty"`
	NrFrames           *int     `json:"nr_frames,omitempty" yaml:"nr_frames,omitempty"`

	FixAspectRatio    *float64 `json:"fix_aspect_ratio,omitempty" yaml:"fix_aspect_ratio,omitempty"`
	ZeroTangentDist   *bool    `json:"assume_zero_tangential_distortion,omitempty" yaml:"assume_zero_tangential_distortion,omitempty"`
	FixPrincipalPoint *bool    `json:"fix_principal_point_at_center,omitempty" yaml:"fix_principal_point_at_center,omitempty"`
	FixK1             *bool    `json:"fix_k1,omitempty" yaml:"fix_k1,omitempty"`
	FixK2             *bool    `json:"fix_k2,omitempty" yaml:"fix_k2,omitempty"`
	FixK3             *bool    `json:"fix_k3,omitempty" yaml:"fix_k3,omitempty"`
	FixK4             *bool    `json:"fix_k4,omitempty" yaml:"fix_k4,omitempty"`
	FixK5             *bool    `json:"fix_k5,omitempty" yaml:"fix_k5,omitempty"`
	UseFisheyeModel   *bool    `json:"use_fisheye_model,omitempty" yaml:"use_fisheye_model,omitempty"`

	WritePoints        *bool   `json:"write_detected_feature_points,omitempty" yaml:"write_detected_feature_points,omitempty"`
	WriteExtrinsics    *bool   `json:"write_extrinsic_parameters,omitempty" yaml:"write_extrinsic_parameters,omitempty"`
	WriteGrid          *bool   `json:"write_grid_points,omitempty" yaml:"write_grid_points,omitempty"`
	WritePerViewErrors *bool   `json:"write_per_view_errors,omitempty" yaml:"write_per_view_errors,omitempty"`
	OutputFileName     *string `json:"output_file_name,omitempty" yaml:"output_file_name,omitempty"`
	ShowUndistorted    *bool   `json:"show_undistorted,omitempty" yaml:"show_undistorted,omitempty"`

	Input        *string `json:"input,omitempty" yaml:"input,omitempty"`
	InputDelay   *int    `json:"input_delay,omitempty" yaml:"input_delay,omitempty"`
	FlipVertical *bool   `json:"flip_around_horizontal_axis,omitempty" yaml:"flip_around_horizontal_axis,omitempty"`
}

// withDefaults returns a copy of c where every unset field holds its default.
func (c *RawFileConfig) withDefaults() RawFileConfig {
	out := *c
	d := defaultFileConfig
	fill(&out.BoardWidth, d.BoardWidth)
	fill(&out.BoardHeight, d.BoardHeight)
	fill(&out.CalibrationPattern, d.CalibrationPattern)
	fill(&out.SquareSize, d.SquareSize)
	fill(&out.MarkerSize, d.MarkerSize)
	fill(&out.PoseMarkerSize, d.PoseMarkerSize)
	fill(&out.WindowSize, d.WindowSize)
	fill(&out.ArucoDictName, d.ArucoDictName)
	fill(&out.NrFrames, d.NrFrames)
	fill(&out.FixAspectRatio, d.FixAspectRatio)
	fill(&out.ZeroTangentDist, d.ZeroTangentDist)
	fill(&out.FixPrincipalPoint, d.FixPrincipalPoint)
	fill(&out.WritePoints, d.WritePoints)
	fill(&out.WriteExtrinsics, d.WriteExtrinsics)
	fill(&out.WriteGrid, d.WriteGrid)
	fill(&out.WritePerViewErrors, d.WritePerViewErrors)
	fill(&out.OutputFileName, d.OutputFileName)
	fill(&out.ShowUndistorted, d.ShowUndistorted)
	fill(&out.Input, d.Input)
	fill(&out.InputDelay, d.InputDelay)
	return out
}

func fill[T any](dst **T, def *T) {
	if *dst == nil && def != nil {
		*dst = ptr.To(*def)
	}
}

// File is a calibration profile backed by a YAML or JSON file. The format is
// chosen by extension: .json is JSON, anything else is YAML.
type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = defaultFileConfig
	}

	return &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}
}

func (f *File) isJSON() bool {
	return strings.EqualFold(filepath.Ext(f.filepath), ".json")
}

// Raw returns the file content merged with defaults.
func (f *File) Raw() RawFileConfig {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.c.withDefaults()
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// A missing profile means all defaults.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	if f.isJSON() {
		err = json.Unmarshal(b, &conf)
	} else {
		err = yaml.Unmarshal(b, &conf)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	if f.isJSON() {
		enc := json.NewEncoder(fp)
		enc.SetIndent("", "  ")
		err = enc.Encode(f.c)
	} else {
		enc := yaml.NewEncoder(fp)
		enc.SetIndent(2)
		err = enc.Encode(f.c)
		if err == nil {
			err = enc.Close()
		}
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}
