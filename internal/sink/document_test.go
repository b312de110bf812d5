package sink

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestWhToKWh(t *testing.T) {
	tests := []struct {
		wh   int
		want string
	}{
		{12345678, "12345.678"},
		{1000, "1"},
		{1, "0.001"},
		{0, "0"},
	}
	for _, tt := range tests {
		if got := WhToKWh(tt.wh).String(); got != tt.want {
			t.Errorf("WhToKWh(%d) = %s, want %s", tt.wh, got, tt.want)
		}
	}
}

func TestNewDocument(t *testing.T) {
	frame := sampleFrame()
	doc := NewDocument(frame)

	if doc.PrimaryIndex != 12345678 || doc.PrimaryIndexKWh.String() != "12345.678" {
		t.Fatalf("primary index = %d / %s", doc.PrimaryIndex, doc.PrimaryIndexKWh)
	}
	if doc.SubscribedCurrent != nil || doc.MaxCurrent != nil {
		t.Fatalf("absent fields should be omitted")
	}
	if doc.IndexesKWh["BASE"].String() != "12345.678" {
		t.Fatalf("IndexesKWh = %v", doc.IndexesKWh)
	}

	doc.Values["PAPP"] = "changed"
	if frame.Values["PAPP"] != "00750" {
		t.Fatalf("document shares the frame value map")
	}

	other := NewDocument(frame)
	if other.ID == doc.ID {
		t.Fatalf("documents must get distinct ids")
	}
}

func TestDocumentJSON(t *testing.T) {
	frame := sampleFrame()
	frame.SubscribedCurrent = 30

	body, err := json.Marshal(NewDocument(frame))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out := string(body)
	for _, want := range []string{
		`"@timestamp":"2024-03-01T12:00:00Z"`,
		`"primary_index_kwh":"12345.678"`,
		`"subscribed_current":30`,
		`"meter_address":"031762120345"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("document JSON missing %s: %s", want, out)
		}
	}
	if strings.Contains(out, "max_current") {
		t.Errorf("absent max_current should be omitted: %s", out)
	}
}
