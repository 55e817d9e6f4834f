package vision

import "fmt"

// Dictionary identifies a predefined ArUco dictionary. Values match OpenCV's
// PredefinedDictionaryType.
type Dictionary int

const (
	Dict4x4_50 Dictionary = iota
	Dict4x4_100
	Dict4x4_250
	Dict4x4_1000
	Dict5x5_50
	Dict5x5_100
	Dict5x5_250
	Dict5x5_1000
	Dict6x6_50
	Dict6x6_100
	Dict6x6_250
	Dict6x6_1000
	Dict7x7_50
	Dict7x7_100
	Dict7x7_250
	Dict7x7_1000
	DictArucoOriginal
	DictAprilTag16h5
	DictAprilTag25h9
	DictAprilTag36h10
	DictAprilTag36h11
)

var dictionaryNames = []string{
	"DICT_4X4_50", "DICT_4X4_100", "DICT_4X4_250", "DICT_4X4_1000",
	"DICT_5X5_50", "DICT_5X5_100", "DICT_5X5_250", "DICT_5X5_1000",
	"DICT_6X6_50", "DICT_6X6_100", "DICT_6X6_250", "DICT_6X6_1000",
	"DICT_7X7_50", "DICT_7X7_100", "DICT_7X7_250", "DICT_7X7_1000",
	"DICT_ARUCO_ORIGINAL",
	"DICT_APRILTAG_16h5", "DICT_APRILTAG_25h9", "DICT_APRILTAG_36h10", "DICT_APRILTAG_36h11",
}

func (d Dictionary) String() string {
	if d >= 0 && int(d) < len(dictionaryNames) {
		return dictionaryNames[d]
	}
	return fmt.Sprintf("Dictionary(%d)", int(d))
}

// ParseDictionary resolves a dictionary name. An empty name selects
// DICT_4X4_50.
func ParseDictionary(name string) (Dictionary, error) {
	if name == "" {
		return Dict4x4_50, nil
	}
	for i, n := range dictionaryNames {
		if n == name {
			return Dictionary(i), nil
		}
	}
	return 0, fmt.Errorf("unknown aruco dictionary %q", name)
}
