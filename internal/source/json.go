package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Detectors report NaN for missing measurements. JSON has no literal for
// non-finite numbers, so they are written as the strings "NaN", "Infinity"
// and "-Infinity".
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Infinity"`), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func (f *jsonFloat) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = jsonFloat(math.NaN())
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch s {
		case "NaN":
			*f = jsonFloat(math.NaN())
		case "Infinity":
			*f = jsonFloat(math.Inf(1))
		case "-Infinity":
			*f = jsonFloat(math.Inf(-1))
		default:
			return fmt.Errorf("invalid number %q", s)
		}
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid number %s: %w", data, err)
	}
	*f = jsonFloat(v)
	return nil
}

type pupilJSON struct {
	Timestamp  jsonFloat    `json:"timestamp"`
	Confidence jsonFloat    `json:"confidence"`
	ID         int          `json:"id"`
	NormPos    [2]jsonFloat `json:"norm_pos"`
	Diameter   jsonFloat    `json:"diameter"`
}

func (p PupilDatum) MarshalJSON() ([]byte, error) {
	return json.Marshal(pupilJSON{
		Timestamp:  jsonFloat(p.Timestamp),
		Confidence: jsonFloat(p.Confidence),
		ID:         p.ID,
		NormPos:    [2]jsonFloat{jsonFloat(p.NormPos[0]), jsonFloat(p.NormPos[1])},
		Diameter:   jsonFloat(p.Diameter),
	})
}

func (p *PupilDatum) UnmarshalJSON(data []byte) error {
	var j pupilJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*p = PupilDatum{
		Timestamp:  float64(j.Timestamp),
		Confidence: float64(j.Confidence),
		ID:         j.ID,
		NormPos:    [2]float64{float64(j.NormPos[0]), float64(j.NormPos[1])},
		Diameter:   float64(j.Diameter),
	}
	return nil
}

type gazeJSON struct {
	Timestamp  jsonFloat    `json:"timestamp"`
	Confidence jsonFloat    `json:"confidence"`
	NormPos    [2]jsonFloat `json:"norm_pos"`
}

func (g GazeDatum) MarshalJSON() ([]byte, error) {
	return json.Marshal(gazeJSON{
		Timestamp:  jsonFloat(g.Timestamp),
		Confidence: jsonFloat(g.Confidence),
		NormPos:    [2]jsonFloat{jsonFloat(g.NormPos[0]), jsonFloat(g.NormPos[1])},
	})
}

func (g *GazeDatum) UnmarshalJSON(data []byte) error {
	var j gazeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*g = GazeDatum{
		Timestamp:  float64(j.Timestamp),
		Confidence: float64(j.Confidence),
		NormPos:    [2]float64{float64(j.NormPos[0]), float64(j.NormPos[1])},
	}
	return nil
}
