// internal/tic/decoder.go
package tic

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"linky-gateway/internal/model"
)

// trailing filler used by the meter on fixed-width string values
const stringFiller = "."

// Decoder turns closed frame buffers into frames. The zero value is usable.
type Decoder struct {
	// PrimaryIndexTag selects the index reported as Frame.PrimaryIndex; empty means BASE
	PrimaryIndexTag string
	// Now stamps decoded frames; nil means time.Now
	Now func() time.Time
}

// Decode parses one frame buffer. The result depends only on raw and the clock.
func (d *Decoder) Decode(raw []byte) *model.Frame {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	frame := model.NewFrame(now())

	for _, line := range splitLines(raw) {
		tokens := bytes.Split(line, []byte{' '})
		if len(tokens) < 3 {
			continue
		}
		tag := string(tokens[0])
		value := string(tokens[1])

		key := tag
		if !VerifyLine(line) {
			key = model.InvalidTagPrefix + tag
		}
		if _, dup := frame.Values[key]; dup {
			continue
		}
		frame.Values[key] = value
	}

	d.derive(frame)
	return frame
}

func (d *Decoder) derive(f *model.Frame) {
	f.MeterAddress = f.Values[model.TagMeterAddress]
	f.Contract = strings.TrimRight(f.Values[model.TagContract], stringFiller)
	f.TariffPeriod = strings.TrimRight(f.Values[model.TagTariffPeriod], stringFiller)
	f.InstantaneousCurrent = intValue(f, model.TagInstantaneousCurrent)
	f.MaxCurrent = intValue(f, model.TagMaxCurrent)
	f.SubscribedCurrent = intValue(f, model.TagSubscribedCurrent)
	f.ApparentPower = intValue(f, model.TagApparentPower)

	for _, tag := range model.IndexTags {
		if v := intValue(f, tag); v != model.Absent {
			f.Indexes[tag] = v
		}
	}

	primary := d.PrimaryIndexTag
	if primary == "" {
		primary = model.TagBaseIndex
	}
	if v, ok := f.Indexes[primary]; ok {
		f.PrimaryIndex = v
	} else {
		f.PrimaryIndex = intValue(f, primary)
	}
}

func intValue(f *model.Frame, tag string) int {
	raw, ok := f.Value(tag)
	if !ok {
		return model.Absent
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return model.Absent
	}
	return v
}

// splitLines cuts on LF and CR; the check character may be a space, so lines are not trimmed otherwise
func splitLines(raw []byte) [][]byte {
	return bytes.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == '\r'
	})
}
