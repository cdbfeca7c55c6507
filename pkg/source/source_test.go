package source

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/stuffplus/pkg/pitch"
)

const header = "Date,Pitcher,PitcherTeam,PitcherThrows,TaggedPitchType,PitchCall,PlayResult," +
	"RelSpeed,RelHeight,RelSide,Extension,InducedVertBreak,HorzBreak,PlateLocHeight,PlateLocSide," +
	"VertApprAngle,HorzApprAngle,Level,PitchReleaseConfidence,PitchLocationConfidence,PitchMovementConfidence\n"

func TestReadTrackMan(t *testing.T) {
	body := header +
		"2024-03-01,\"Doe, John\",TEAM_A,Right,FourSeamFastBall,StrikeSwinging,Undefined,93.1,6.0,-2.0,6.2,16.1,14.2,2.6,0.1,-5.0,1.0,D1,High,High,High\n" +
		"2024-03-01,\"Doe, John\",TEAM_A,Right,Slider,BallCalled,Undefined,,5.9,-2.1,6.1,1.0,-4.0,1.9,-0.5,-7.0,0.5,D1,High,High,High\n"

	recs, err := ReadTrackMan(context.Background(), strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "Doe, John", recs[0].Pitcher)
	assert.Equal(t, pitch.Right, recs[0].Throws)
	assert.Equal(t, "FourSeamFastBall", recs[0].TaggedType)
	assert.Equal(t, 93.1, recs[0].RelSpeed)
	assert.True(t, recs[0].Whiff())
	assert.True(t, math.IsNaN(recs[1].RelSpeed), "blank RelSpeed is NaN")
	assert.Equal(t, -7.0, recs[1].VAA)
}

func TestReadTrackManMissingColumn(t *testing.T) {
	body := strings.Replace(header, "RelSpeed,", "", 1) + "\n"
	_, err := ReadTrackMan(context.Background(), strings.NewReader(body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RelSpeed")
}

func TestTrackManFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.csv")
	require.NoError(t, os.WriteFile(path, []byte(header+
		"2024-03-02,\"Roe, Rick\",TEAM_B,Left,ChangeUp,InPlay,Out,82,6.1,1.9,6.3,8,12,2.0,0.4,-6.5,-1.5,D1,High,High,High\n"), 0o644))

	src := NewTrackManFile(path)
	assert.Equal(t, "game.csv", src.Name())
	recs, err := src.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, pitch.Left, recs[0].Throws)

	_, err = NewTrackManFile(filepath.Join(t.TempDir(), "none.csv")).Collect(context.Background())
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte(header))
	assert.Len(t, a, 64)
	assert.Equal(t, a, Fingerprint([]byte(header)))
	assert.NotEqual(t, a, Fingerprint([]byte(header+"2024-03-01\n")))
}

func TestFilter(t *testing.T) {
	ok := pitch.Record{
		Throws: pitch.Right, TaggedType: "TwoSeamFastBall", Level: "D1",
		ReleaseConfidence: "High", LocationConfidence: "High", MovementConfidence: "High",
	}

	tests := []struct {
		name   string
		mutate func(r *pitch.Record)
		want   bool
	}{
		{"qualifies", func(r *pitch.Record) {}, true},
		{"lower level", func(r *pitch.Record) { r.Level = "D2" }, false},
		{"medium release confidence", func(r *pitch.Record) { r.ReleaseConfidence = "Medium" }, false},
		{"low location confidence", func(r *pitch.Record) { r.LocationConfidence = "Low" }, false},
		{"blank movement confidence", func(r *pitch.Record) { r.MovementConfidence = "" }, false},
		{"other pitch", func(r *pitch.Record) { r.TaggedType = "Other" }, false},
		{"undefined pitch", func(r *pitch.Record) { r.TaggedType = "Undefined" }, false},
		{"unknown hand", func(r *pitch.Record) { r.Throws = "" }, false},
	}

	f := NewFilter("", "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ok
			tt.mutate(&r)
			assert.Equal(t, tt.want, f.Qualifies(&r))
		})
	}

	bad := ok
	bad.TaggedType = "Other"
	kept := f.Apply([]pitch.Record{ok, bad})
	require.Len(t, kept, 1)
	assert.Equal(t, pitch.Sinker, kept[0].Type)
	assert.Equal(t, "TwoSeamFastBall", kept[0].TaggedType)
}
