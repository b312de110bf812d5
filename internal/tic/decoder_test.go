package tic

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"linky-gateway/internal/model"
)

var fixedClock = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

func dataLine(tag, value string) string {
	body := tag + " " + value
	return "\n" + body + " " + string(Checksum([]byte(body))) + "\r"
}

func frameBuffer(lines ...string) []byte {
	raw := strings.Join(lines, "")
	// the assembler strips the byte before ETX
	return []byte(strings.TrimSuffix(raw, "\r"))
}

func baseFrame() []byte {
	return frameBuffer(
		dataLine("ADCO", "031762120345"),
		dataLine("OPTARIF", "BASE"),
		dataLine("ISOUSC", "30"),
		dataLine("BASE", "012345678"),
		dataLine("PTEC", "TH.."),
		dataLine("IINST", "003"),
		dataLine("IMAX", "090"),
		dataLine("PAPP", "00750"),
	)
}

func TestDecodeKnownLine(t *testing.T) {
	d := &Decoder{Now: fixedClock}
	f := d.Decode([]byte("\nIINST 003 Z"))
	if f.InstantaneousCurrent != 3 {
		t.Fatalf("InstantaneousCurrent = %d, want 3", f.InstantaneousCurrent)
	}
	if f.IsEmpty() {
		t.Fatalf("frame should not be empty")
	}
	if f.IsValid() {
		t.Fatalf("frame without power and index should not be valid")
	}
}

func TestDecodeFullFrame(t *testing.T) {
	d := &Decoder{Now: fixedClock}
	f := d.Decode(baseFrame())

	if !f.IsValid() {
		t.Fatalf("expected valid frame, got %s", f)
	}
	if !f.CapturedAt.Equal(fixedClock()) {
		t.Errorf("CapturedAt = %v", f.CapturedAt)
	}
	if f.MeterAddress != "031762120345" {
		t.Errorf("MeterAddress = %q", f.MeterAddress)
	}
	if f.Contract != "BASE" {
		t.Errorf("Contract = %q", f.Contract)
	}
	if f.TariffPeriod != "TH" {
		t.Errorf("TariffPeriod = %q, want trailing dots trimmed", f.TariffPeriod)
	}
	if f.ApparentPower != 750 || f.InstantaneousCurrent != 3 || f.PrimaryIndex != 12345678 {
		t.Errorf("derived = papp %d iinst %d index %d", f.ApparentPower, f.InstantaneousCurrent, f.PrimaryIndex)
	}
	if f.SubscribedCurrent != 30 || f.MaxCurrent != 90 {
		t.Errorf("ISOUSC/IMAX = %d/%d", f.SubscribedCurrent, f.MaxCurrent)
	}
	if want := map[string]int{"BASE": 12345678}; !reflect.DeepEqual(f.Indexes, want) {
		t.Errorf("Indexes = %v, want %v", f.Indexes, want)
	}
	if len(f.InvalidTags()) != 0 {
		t.Errorf("unexpected invalid tags %v", f.InvalidTags())
	}
}

func TestDecodeDuplicateTagFirstWins(t *testing.T) {
	d := &Decoder{Now: fixedClock}
	f := d.Decode(frameBuffer(dataLine("IINST", "003"), dataLine("IINST", "009")))
	if f.InstantaneousCurrent != 3 {
		t.Fatalf("InstantaneousCurrent = %d, want first occurrence 3", f.InstantaneousCurrent)
	}
	if len(f.Values) != 1 {
		t.Fatalf("Values = %v, want a single entry", f.Values)
	}
}

func TestDecodeChecksumMismatchIsKeptAsInvalid(t *testing.T) {
	d := &Decoder{Now: fixedClock}
	f := d.Decode([]byte("\nPAPP 00750 !"))

	if f.IsEmpty() {
		t.Fatalf("corrupted frame must not be reported empty")
	}
	if f.IsValid() {
		t.Fatalf("corrupted frame must not be valid")
	}
	if f.ApparentPower != model.Absent {
		t.Fatalf("ApparentPower = %d, want absent", f.ApparentPower)
	}
	if v, ok := f.Value(model.InvalidTagPrefix + "PAPP"); !ok || v != "00750" {
		t.Fatalf("invalid value not retained: %v", f.Values)
	}
	if got := f.InvalidTags(); !reflect.DeepEqual(got, []string{"PAPP"}) {
		t.Fatalf("InvalidTags = %v", got)
	}
}

func TestDecodeCorruptedLineDoesNotShadowValidOne(t *testing.T) {
	d := &Decoder{Now: fixedClock}
	f := d.Decode(frameBuffer("\nIINST 008 Z\r", dataLine("IINST", "003")))
	if f.InstantaneousCurrent != 3 {
		t.Fatalf("InstantaneousCurrent = %d, want 3", f.InstantaneousCurrent)
	}
	if _, ok := f.Value(model.InvalidTagPrefix + "IINST"); !ok {
		t.Fatalf("corrupted occurrence should be retained as invalid")
	}
}

func TestDecodeIgnoresShortLines(t *testing.T) {
	d := &Decoder{Now: fixedClock}
	f := d.Decode([]byte("\nMOTDETAT\r\nGARBAGE 1\r\n\r"))
	if !f.IsEmpty() {
		t.Fatalf("expected empty frame, got %v", f.Values)
	}
}

func TestDecodeEmptyBuffer(t *testing.T) {
	d := &Decoder{Now: fixedClock}
	f := d.Decode(nil)
	if !f.IsEmpty() || f.IsValid() {
		t.Fatalf("empty buffer should give an empty, invalid frame")
	}
	if f.InstantaneousCurrent != model.Absent || f.ApparentPower != model.Absent || f.PrimaryIndex != model.Absent {
		t.Fatalf("derived fields should stay absent")
	}
}

func TestDecodeChecksumThatIsASpace(t *testing.T) {
	body := "AB 000"
	for Checksum([]byte(body)) != ' ' {
		body += "1"
	}
	d := &Decoder{Now: fixedClock}
	f := d.Decode([]byte("\n" + body + "  "))
	if _, ok := f.Value("AB"); !ok {
		t.Fatalf("line with a space check character should verify: %v", f.Values)
	}
}

func TestDecodeMultiRateIndexes(t *testing.T) {
	d := &Decoder{PrimaryIndexTag: "HCHP", Now: fixedClock}
	f := d.Decode(frameBuffer(
		dataLine("OPTARIF", "HC.."),
		dataLine("HCHC", "001000000"),
		dataLine("HCHP", "002000000"),
		dataLine("PTEC", "HP.."),
		dataLine("IINST", "010"),
		dataLine("PAPP", "02300"),
	))
	if !f.IsValid() {
		t.Fatalf("expected valid frame")
	}
	if f.PrimaryIndex != 2000000 {
		t.Errorf("PrimaryIndex = %d, want HCHP", f.PrimaryIndex)
	}
	if want := map[string]int{"HCHC": 1000000, "HCHP": 2000000}; !reflect.DeepEqual(f.Indexes, want) {
		t.Errorf("Indexes = %v", f.Indexes)
	}
	if f.Contract != "HC" || f.TariffPeriod != "HP" {
		t.Errorf("Contract/TariffPeriod = %q/%q", f.Contract, f.TariffPeriod)
	}
}

func TestDecodeIsPure(t *testing.T) {
	d := &Decoder{Now: fixedClock}
	first := d.Decode(baseFrame())
	d.Decode([]byte("\nPAPP 99999 !\r\nIINST 050 Z"))
	second := d.Decode(baseFrame())
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("decoding the same bytes twice differs:\n%s\n%s", first, second)
	}
}

func TestDecodeNonNumericValueStaysAbsent(t *testing.T) {
	d := &Decoder{Now: fixedClock}
	f := d.Decode(frameBuffer(dataLine("PAPP", "0x750")))
	if f.ApparentPower != model.Absent {
		t.Fatalf("ApparentPower = %d, want absent", f.ApparentPower)
	}
}
