package config

import (
	"bytes"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// IsListOfImages reports whether an input path names an image-list file.
// Like the OpenCV sample it mirrors, it looks for the extension anywhere in
// the path.
func IsListOfImages(path string) bool {
	return strings.Contains(path, ".xml") ||
		strings.Contains(path, ".yaml") ||
		strings.Contains(path, ".yml")
}

// ReadImageList reads the first top-level sequence of a YAML, JSON or
// OpenCV XML storage file as a list of image paths.
func ReadImageList(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read image list %s", path)
	}

	var list []string
	if strings.EqualFold(filepath.Ext(path), ".xml") || bytes.HasPrefix(bytes.TrimSpace(b), []byte("<")) {
		list, err = parseXMLList(b)
	} else {
		list, err = parseYAMLList(b)
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to parse image list %s", path)
	}
	return list, nil
}

type opencvStorage struct {
	XMLName xml.Name `xml:"opencv_storage"`
	Nodes   []struct {
		XMLName xml.Name
		Items   []string `xml:"_"`
		Content string   `xml:",chardata"`
	} `xml:",any"`
}

func parseXMLList(b []byte) ([]string, error) {
	var s opencvStorage
	if err := xml.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	if len(s.Nodes) == 0 {
		return nil, pkgerrors.New("no top-level node")
	}
	fields := s.Nodes[0].Items
	if len(fields) == 0 {
		fields = strings.Fields(s.Nodes[0].Content)
	}
	if len(fields) == 0 {
		return nil, pkgerrors.Errorf("node %s is not a sequence", s.Nodes[0].XMLName.Local)
	}
	list := make([]string, len(fields))
	for i, f := range fields {
		list[i] = strings.Trim(strings.TrimSpace(f), `"`)
	}
	return list, nil
}

func parseYAMLList(b []byte) ([]string, error) {
	// OpenCV writes a "%YAML:1.0" directive that is not valid YAML 1.2.
	if bytes.HasPrefix(b, []byte("%YAML:")) {
		if i := bytes.IndexByte(b, '\n'); i >= 0 {
			b = b[i+1:]
		} else {
			b = nil
		}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, pkgerrors.New("empty document")
	}

	seq := doc.Content[0]
	if seq.Kind == yaml.MappingNode {
		if len(seq.Content) < 2 {
			return nil, pkgerrors.New("no top-level node")
		}
		seq = seq.Content[1]
	}
	if seq.Kind != yaml.SequenceNode {
		return nil, pkgerrors.New("first top-level node is not a sequence")
	}

	var list []string
	if err := seq.Decode(&list); err != nil {
		return nil, err
	}
	return list, nil
}
