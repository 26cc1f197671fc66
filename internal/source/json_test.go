package source

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func sameFloat(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func TestPupilDatum_NonFiniteJSON(t *testing.T) {
	in := PupilDatum{
		Timestamp:  12.5,
		Confidence: 0,
		ID:         1,
		NormPos:    [2]float64{math.Inf(1), 0.25},
		Diameter:   math.NaN(),
	}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, want := range []string{`"diameter":"NaN"`, `"norm_pos":["Infinity",0.25]`, `"timestamp":12.5`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("expected %s in %s", want, data)
		}
	}

	var out PupilDatum
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if out.ID != in.ID || !sameFloat(out.Diameter, in.Diameter) || !sameFloat(out.NormPos[0], in.NormPos[0]) ||
		out.NormPos[1] != in.NormPos[1] || out.Timestamp != in.Timestamp {
		t.Errorf("decoded %+v, want %+v", out, in)
	}
}

func TestGazeDatum_DecodeVariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    GazeDatum
		wantErr bool
	}{
		{"plain numbers", `{"timestamp":1,"confidence":0.5,"norm_pos":[0.1,0.2]}`, GazeDatum{1, 0.5, [2]float64{0.1, 0.2}}, false},
		{"null is missing", `{"timestamp":1,"confidence":null,"norm_pos":[0.1,0.2]}`, GazeDatum{1, math.NaN(), [2]float64{0.1, 0.2}}, false},
		{"negative infinity", `{"timestamp":"-Infinity","confidence":1,"norm_pos":[0,0]}`, GazeDatum{math.Inf(-1), 1, [2]float64{}}, false},
		{"unknown word", `{"timestamp":"soon","confidence":1,"norm_pos":[0,0]}`, GazeDatum{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got GazeDatum
			err := json.Unmarshal([]byte(tt.input), &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !sameFloat(got.Timestamp, tt.want.Timestamp) || !sameFloat(got.Confidence, tt.want.Confidence) ||
				got.NormPos != tt.want.NormPos {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
