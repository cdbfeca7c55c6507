package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/elonfeng/stuffplus/pkg/pitch"
	"github.com/elonfeng/stuffplus/pkg/stuff"
)

// Columns of a rollup CSV, in output order.
var Columns = []string{
	"Pitcher", "PitcherTeam", "TaggedPitchType", "Category", "Pitches",
	"RelSpeed", "RelHeight", "RelSide", "Extension", "InducedVertBreak", "HorzBreak",
	"VertApprAngle", "HorzApprAngle", "AdjustedVAA", "AdjustedHAA", "WhiffRate", "StuffPlus",
}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
	for _, r := range rows {
		rec := []string{
			r.Pitcher, r.Team, string(r.PitchType), string(r.Category), strconv.Itoa(r.Pitches),
			f(r.Velocity), f(r.RelHeight), f(r.RelSide), f(r.Extension), f(r.IVB), f(r.HB),
			f(r.VAA), f(r.HAA), f(r.AdjVAA), f(r.AdjHAA), strconv.FormatFloat(r.WhiffRate, 'f', 3, 64),
			strconv.Itoa(r.StuffPlus),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a rollup CSV such as the precomputed Stuff+ tables. Only
// Pitcher, PitcherTeam, TaggedPitchType and StuffPlus (or "Stuff+") are
// required; missing measurement columns read as zero. When the file has no
// Category column every row gets cat.
func ReadCSV(r io.Reader, cat stuff.Category) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	if i, ok := cols["Stuff+"]; ok {
		cols["StuffPlus"] = i
	}
	for _, c := range []string{"Pitcher", "PitcherTeam", "TaggedPitchType", "StuffPlus"} {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("missing column %s", c)
		}
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		str := func(col string) string {
			i, ok := cols[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		num := func(col string) float64 {
			v, err := strconv.ParseFloat(str(col), 64)
			if err != nil {
				return 0
			}
			return v
		}

		pt, ok := pitch.NormalizeType(str("TaggedPitchType"))
		if !ok {
			return nil, fmt.Errorf("line %d: unknown pitch type %q", line, str("TaggedPitchType"))
		}
		sp, err := strconv.ParseFloat(str("StuffPlus"), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: stuff plus: %w", line, err)
		}
		rowCat := cat
		if c := str("Category"); c != "" {
			if rowCat, err = stuff.ParseCategory(c); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		if rowCat == "" {
			return nil, fmt.Errorf("line %d: no category", line)
		}

		rows = append(rows, Row{
			Pitcher:   str("Pitcher"),
			Team:      str("PitcherTeam"),
			PitchType: pt,
			Category:  rowCat,
			Pitches:   int(num("Pitches")),
			Velocity:  num("RelSpeed"),
			RelHeight: num("RelHeight"),
			RelSide:   num("RelSide"),
			Extension: num("Extension"),
			IVB:       num("InducedVertBreak"),
			HB:        num("HorzBreak"),
			VAA:       num("VertApprAngle"),
			HAA:       num("HorzApprAngle"),
			AdjVAA:    num("AdjustedVAA"),
			AdjHAA:    num("AdjustedHAA"),
			WhiffRate: num("WhiffRate"),
			StuffPlus: int(math.Trunc(sp)),
		})
	}
	return rows, nil
}
