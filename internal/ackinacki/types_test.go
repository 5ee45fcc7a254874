package ackinacki

import (
	"encoding/json"
	"testing"
	"time"
)

func TestIDAcceptsNumberAndString(t *testing.T) {
	var v struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":123,"b":"abc-9","c":null}`), &v); err != nil {
		t.Fatal(err)
	}
	if v.A != "123" || v.B != "abc-9" || v.C != "" {
		t.Errorf("got %q %q %q", v.A, v.B, v.C)
	}

	out, err := json.Marshal(map[string]ID{"task_id": "77"})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"task_id":77}` {
		t.Errorf("Marshal: got %s; want numeric id", out)
	}
}

func TestTimestampZoneless(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`"2024-11-20T12:30:00.123"`), &ts); err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 11, 20, 12, 30, 0, 123000000, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("got %v; want %v", ts.Time, want)
	}

	if err := json.Unmarshal([]byte(`"2024-11-20T12:30:00+02:00"`), &ts); err != nil {
		t.Fatal(err)
	}
	if !ts.Equal(time.Date(2024, 11, 20, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("zoned: got %v", ts.Time)
	}

	if err := json.Unmarshal([]byte(`"tomorrow"`), &ts); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func TestFarmReward(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantErr   bool
		wantNil   bool
		wantStart bool
	}{
		{"null reward", `{"id":1,"reward":null}`, false, true, false},
		{"missing reward", `{"id":1}`, true, false, false},
		{"claim only", `{"id":1,"reward":{"reward":5,"claim_at":"2024-11-20T14:00:00Z"}}`, false, false, false},
		{"with start_at", `{"id":1,"reward":{"reward":5,"metadata":{"start_at":"2024-11-20T14:00:00Z"}}}`, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Farm
			err := json.Unmarshal([]byte(tt.body), &f)
			if tt.wantErr {
				if err == nil {
					t.Error("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if (f.Reward == nil) != tt.wantNil {
				t.Errorf("Reward nil: got %v; want %v", f.Reward == nil, tt.wantNil)
			}
			if (f.Reward.StartAt() != nil) != tt.wantStart {
				t.Errorf("StartAt present: got %v; want %v", f.Reward.StartAt() != nil, tt.wantStart)
			}
			if f.ID != "1" {
				t.Errorf("ID: got %q", f.ID)
			}
		})
	}
}

func TestProfile(t *testing.T) {
	var p Profile
	if err := json.Unmarshal([]byte(`{"user":{"is_adult":null},"queue":{"boost":7.5}}`), &p); err != nil {
		t.Fatal(err)
	}
	if !p.NeedsAgeConfirmation() {
		t.Error("NeedsAgeConfirmation: got false for null is_adult")
	}
	if p.Boost() != 7.5 {
		t.Errorf("Boost: got %v; want 7.5", p.Boost())
	}

	var empty Profile
	if empty.Boost() != 0 {
		t.Error("Boost without queue should be 0")
	}
}

func TestNeedsAgeConfirmation(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{`{"user":{"is_adult":null}}`, true},
		{`{"user":{"is_adult":true}}`, false},
		{`{"user":{"is_adult":false}}`, false},
		{`{"user":{}}`, false},
		{`{}`, false},
	}
	for _, tt := range tests {
		var p Profile
		if err := json.Unmarshal([]byte(tt.body), &p); err != nil {
			t.Fatalf("%s: %v", tt.body, err)
		}
		if got := p.NeedsAgeConfirmation(); got != tt.want {
			t.Errorf("NeedsAgeConfirmation(%s) = %v; want %v", tt.body, got, tt.want)
		}
	}
}

func TestIDMarshalKeepsNonCanonicalStrings(t *testing.T) {
	tests := []struct {
		id   ID
		want string
	}{
		{"77", `77`},
		{"-3", `-3`},
		{"007", `"007"`},
		{"+5", `"+5"`},
		{"abc", `"abc"`},
		{"", `""`},
	}
	for _, tt := range tests {
		out, err := json.Marshal(map[string]ID{"task_id": tt.id})
		if err != nil {
			t.Errorf("Marshal(%q): %v", tt.id, err)
			continue
		}
		if want := `{"task_id":` + tt.want + `}`; string(out) != want {
			t.Errorf("Marshal(%q) = %s; want %s", tt.id, out, want)
		}
	}
}
