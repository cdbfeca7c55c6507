package source

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/elonfeng/stuffplus/pkg/pitch"
)

// TrackMan reads pitch records from a TrackMan CSV export.
type TrackMan struct {
	name string
	open func() (io.ReadCloser, error)
}

// NewTrackManFile creates a source backed by a CSV file on disk.
func NewTrackManFile(path string) *TrackMan {
	return &TrackMan{
		name: filepath.Base(path),
		open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// NewTrackManReader creates a source backed by an uploaded body. The reader
// is consumed by the first Collect.
func NewTrackManReader(name string, r io.Reader) *TrackMan {
	return &TrackMan{
		name: name,
		open: func() (io.ReadCloser, error) { return io.NopCloser(r), nil },
	}
}

func (t *TrackMan) Name() string { return t.name }

// Fingerprint identifies an export by content, so a re-exported file under an
// old name is scored again.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (t *TrackMan) Collect(ctx context.Context) ([]pitch.Record, error) {
	rc, err := t.open()
	if err != nil {
		return nil, fmt.Errorf("open trackman %s: %w", t.name, err)
	}
	defer rc.Close()

	records, err := ReadTrackMan(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("read trackman %s: %w", t.name, err)
	}
	return records, nil
}

// ReadTrackMan parses a TrackMan CSV. Every required column must be present in
// the header; blank or non-numeric measurements become NaN and unknown
// handedness is left empty so the filter can drop the row.
func ReadTrackMan(ctx context.Context, r io.Reader) ([]pitch.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	var missing []string
	for _, c := range RequiredColumns() {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}

	var records []pitch.Record
	for line := 2; ; line++ {
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		str := func(col string) string {
			i := cols[col]
			if i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		num := func(col string) float64 {
			v, err := strconv.ParseFloat(str(col), 64)
			if err != nil {
				return math.NaN()
			}
			return v
		}

		throws, _ := pitch.ParseHandedness(str(ColThrows))
		records = append(records, pitch.Record{
			Date:               str(ColDate),
			Pitcher:            str(ColPitcher),
			Team:               str(ColTeam),
			Throws:             throws,
			TaggedType:         str(ColPitchType),
			PitchCall:          str(ColPitchCall),
			PlayResult:         str(ColPlayResult),
			RelSpeed:           num(ColRelSpeed),
			RelHeight:          num(ColRelHeight),
			RelSide:            num(ColRelSide),
			Extension:          num(ColExtension),
			IVB:                num(ColIVB),
			HB:                 num(ColHB),
			PlateHeight:        num(ColPlateHeight),
			PlateSide:          num(ColPlateSide),
			VAA:                num(ColVAA),
			HAA:                num(ColHAA),
			Level:              str(ColLevel),
			ReleaseConfidence:  str(ColReleaseConfidence),
			LocationConfidence: str(ColLocationConfidence),
			MovementConfidence: str(ColMovementConfidence),
		})
	}
	return records, nil
}
