package calibration

import "strings"

// Flags is the solver option bitmask. Pinhole and fisheye calibrations use
// different vocabularies over the same integer, matching OpenCV so persisted
// files stay interchangeable.
type Flags int

// Pinhole flags.
const (
	FlagUseIntrinsicGuess Flags = 1 << 0
	FlagFixAspectRatio    Flags = 1 << 1
	FlagFixPrincipalPoint Flags = 1 << 2
	FlagZeroTangentDist   Flags = 1 << 3
	FlagFixK1             Flags = 1 << 5
	FlagFixK2             Flags = 1 << 6
	FlagFixK3             Flags = 1 << 7
	FlagFixK4             Flags = 1 << 11
	FlagFixK5             Flags = 1 << 12
	FlagUseLU             Flags = 1 << 17
)

// Fisheye flags.
const (
	FisheyeUseIntrinsicGuess  Flags = 1 << 0
	FisheyeRecomputeExtrinsic Flags = 1 << 1
	FisheyeCheckCond          Flags = 1 << 2
	FisheyeFixSkew            Flags = 1 << 3
	FisheyeFixK1              Flags = 1 << 4
	FisheyeFixK2              Flags = 1 << 5
	FisheyeFixK3              Flags = 1 << 6
	FisheyeFixK4              Flags = 1 << 7
	FisheyeFixPrincipalPoint  Flags = 1 << 9
)

type flagName struct {
	flag Flags
	name string
}

var pinholeNames = []flagName{
	{FlagUseIntrinsicGuess, "use_intrinsic_guess"},
	{FlagFixAspectRatio, "fix_aspectRatio"},
	{FlagFixPrincipalPoint, "fix_principal_point"},
	{FlagZeroTangentDist, "zero_tangent_dist"},
	{FlagFixK1, "fix_k1"},
	{FlagFixK2, "fix_k2"},
	{FlagFixK3, "fix_k3"},
	{FlagFixK4, "fix_k4"},
	{FlagFixK5, "fix_k5"},
}

var fisheyeNames = []flagName{
	{FisheyeFixSkew, "fix_skew"},
	{FisheyeFixK1, "fix_k1"},
	{FisheyeFixK2, "fix_k2"},
	{FisheyeFixK3, "fix_k3"},
	{FisheyeFixK4, "fix_k4"},
	{FisheyeRecomputeExtrinsic, "recompute_extrinsic"},
}

// Has reports whether every bit of f2 is set.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// Comment renders the human-readable flag list written above the flags key,
// e.g. "flags: +fix_principal_point +zero_tangent_dist".
func (f Flags) Comment(fisheye bool) string {
	names := pinholeNames
	if fisheye {
		names = fisheyeNames
	}
	var sb strings.Builder
	sb.WriteString("flags:")
	for _, n := range names {
		if f.Has(n.flag) {
			sb.WriteString(" +")
			sb.WriteString(n.name)
		}
	}
	return sb.String()
}
