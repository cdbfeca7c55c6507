package source

import (
	"context"

	"github.com/elonfeng/stuffplus/pkg/pitch"
)

// Source is the interface every pitch record reader implements.
type Source interface {
	Name() string
	Collect(ctx context.Context) ([]pitch.Record, error)
}

// Required TrackMan columns.
const (
	ColDate               = "Date"
	ColPitcher            = "Pitcher"
	ColTeam               = "PitcherTeam"
	ColThrows             = "PitcherThrows"
	ColPitchType          = "TaggedPitchType"
	ColPitchCall          = "PitchCall"
	ColPlayResult         = "PlayResult"
	ColRelSpeed           = "RelSpeed"
	ColRelHeight          = "RelHeight"
	ColRelSide            = "RelSide"
	ColExtension          = "Extension"
	ColIVB                = "InducedVertBreak"
	ColHB                 = "HorzBreak"
	ColPlateHeight        = "PlateLocHeight"
	ColPlateSide          = "PlateLocSide"
	ColVAA                = "VertApprAngle"
	ColHAA                = "HorzApprAngle"
	ColLevel              = "Level"
	ColReleaseConfidence  = "PitchReleaseConfidence"
	ColLocationConfidence = "PitchLocationConfidence"
	ColMovementConfidence = "PitchMovementConfidence"
)

// RequiredColumns returns every column a TrackMan upload must carry.
func RequiredColumns() []string {
	return []string{
		ColDate, ColPitcher, ColTeam, ColThrows, ColPitchType, ColPitchCall, ColPlayResult,
		ColRelSpeed, ColRelHeight, ColRelSide, ColExtension, ColIVB, ColHB,
		ColPlateHeight, ColPlateSide, ColVAA, ColHAA,
		ColLevel, ColReleaseConfidence, ColLocationConfidence, ColMovementConfidence,
	}
}
