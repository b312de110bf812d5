// internal/model/frame.go
package model

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// Absent is the sentinel for derived integer fields that could not be parsed
const Absent = -1

// InvalidTagPrefix marks values whose line failed checksum verification
const InvalidTagPrefix = "INVALID_"

// Tags carried by historic-mode TIC frames
const (
	TagMeterAddress         = "ADCO"
	TagContract             = "OPTARIF"
	TagSubscribedCurrent    = "ISOUSC"
	TagTariffPeriod         = "PTEC"
	TagInstantaneousCurrent = "IINST"
	TagMaxCurrent           = "IMAX"
	TagApparentPower        = "PAPP"
	TagBaseIndex            = "BASE"
)

// IndexTags lists the tags that carry an energy index (Wh)
var IndexTags = []string{
	"BASE",
	"HCHC", "HCHP",
	"EJPHN", "EJPHPM",
	"BBRHCJB", "BBRHPJB",
	"BBRHCJW", "BBRHPJW",
	"BBRHCJR", "BBRHPJR",
}

// Frame is one decoded reading window. It is not modified after decoding.
type Frame struct {
	CapturedAt time.Time         `json:"captured_at"`
	Values     map[string]string `json:"values"`

	MeterAddress         string         `json:"meter_address,omitempty"`
	InstantaneousCurrent int            `json:"instantaneous_current"`
	MaxCurrent           int            `json:"max_current"`
	SubscribedCurrent    int            `json:"subscribed_current"`
	ApparentPower        int            `json:"apparent_power"`
	PrimaryIndex         int            `json:"primary_index"`
	Indexes              map[string]int `json:"indexes,omitempty"`
	Contract             string         `json:"contract,omitempty"`
	TariffPeriod         string         `json:"tariff_period,omitempty"`
}

// NewFrame returns a frame with every derived field set to its absent value
func NewFrame(capturedAt time.Time) *Frame {
	return &Frame{
		CapturedAt:           capturedAt,
		Values:               make(map[string]string),
		InstantaneousCurrent: Absent,
		MaxCurrent:           Absent,
		SubscribedCurrent:    Absent,
		ApparentPower:        Absent,
		PrimaryIndex:         Absent,
		Indexes:              make(map[string]int),
	}
}

// IsEmpty reports whether no line at all was kept, valid or not
func (f *Frame) IsEmpty() bool {
	return len(f.Values) == 0
}

// IsValid reports whether the frame carries the fields required downstream
func (f *Frame) IsValid() bool {
	return !f.IsEmpty() &&
		f.ApparentPower >= 0 &&
		f.InstantaneousCurrent >= 0 &&
		f.PrimaryIndex >= 0
}

// Value returns the raw value stored for tag
func (f *Frame) Value(tag string) (string, bool) {
	v, ok := f.Values[tag]
	return v, ok
}

// InvalidTags returns the tags (without prefix) whose checksum did not match, sorted
func (f *Frame) InvalidTags() []string {
	var tags []string
	for key := range f.Values {
		if strings.HasPrefix(key, InvalidTagPrefix) {
			tags = append(tags, strings.TrimPrefix(key, InvalidTagPrefix))
		}
	}
	sort.Strings(tags)
	return tags
}

// String renders the known fields followed by the raw tag map
func (f *Frame) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "captured_at=%s", f.CapturedAt.Format(time.RFC3339))
	if f.MeterAddress != "" {
		fmt.Fprintf(&b, " meter=%s", f.MeterAddress)
	}
	fmt.Fprintf(&b, " iinst=%d papp=%d index=%d", f.InstantaneousCurrent, f.ApparentPower, f.PrimaryIndex)
	if f.Contract != "" {
		fmt.Fprintf(&b, " contract=%s", f.Contract)
	}
	if f.TariffPeriod != "" {
		fmt.Fprintf(&b, " period=%s", f.TariffPeriod)
	}
	for _, tag := range sortedKeys(f.Indexes) {
		fmt.Fprintf(&b, " %s=%d", tag, f.Indexes[tag])
	}
	b.WriteString(" values={")
	for i, tag := range sortedKeys(f.Values) {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s:%s", tag, f.Values[tag])
	}
	b.WriteByte('}')
	return b.String()
}

// MarshalLogObject implements zapcore.ObjectMarshaler
func (f *Frame) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddTime("captured_at", f.CapturedAt)
	enc.AddBool("valid", f.IsValid())
	if f.MeterAddress != "" {
		enc.AddString("meter_address", f.MeterAddress)
	}
	enc.AddInt("instantaneous_current", f.InstantaneousCurrent)
	enc.AddInt("apparent_power", f.ApparentPower)
	enc.AddInt("primary_index", f.PrimaryIndex)
	if f.Contract != "" {
		enc.AddString("contract", f.Contract)
	}
	if f.TariffPeriod != "" {
		enc.AddString("tariff_period", f.TariffPeriod)
	}
	if err := enc.AddObject("indexes", zapcore.ObjectMarshalerFunc(func(oe zapcore.ObjectEncoder) error {
		for _, tag := range sortedKeys(f.Indexes) {
			oe.AddInt(tag, f.Indexes[tag])
		}
		return nil
	})); err != nil {
		return err
	}
	return enc.AddObject("values", zapcore.ObjectMarshalerFunc(func(oe zapcore.ObjectEncoder) error {
		for _, tag := range sortedKeys(f.Values) {
			oe.AddString(tag, f.Values[tag])
		}
		return nil
	}))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
