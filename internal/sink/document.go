// internal/sink/document.go
package sink

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"linky-gateway/internal/model"
)

// Document is the record shape shared by every sink
type Document struct {
	ID                   uuid.UUID                  `json:"id"`
	Timestamp            time.Time                  `json:"@timestamp"`
	MeterAddress         string                     `json:"meter_address,omitempty"`
	Contract             string                     `json:"contract,omitempty"`
	TariffPeriod         string                     `json:"tariff_period,omitempty"`
	InstantaneousCurrent int                        `json:"instantaneous_current"`
	ApparentPower        int                        `json:"apparent_power"`
	SubscribedCurrent    *int                       `json:"subscribed_current,omitempty"`
	MaxCurrent           *int                       `json:"max_current,omitempty"`
	PrimaryIndex         int                        `json:"primary_index"`
	PrimaryIndexKWh      decimal.Decimal            `json:"primary_index_kwh"`
	Indexes              map[string]int             `json:"indexes,omitempty"`
	IndexesKWh           map[string]decimal.Decimal `json:"indexes_kwh,omitempty"`
	Values               map[string]string          `json:"values"`
}

// NewDocument converts a valid frame. Indexes are kept in Wh and also given in kWh.
func NewDocument(frame *model.Frame) *Document {
	doc := &Document{
		ID:                   uuid.New(),
		Timestamp:            frame.CapturedAt,
		MeterAddress:         frame.MeterAddress,
		Contract:             frame.Contract,
		TariffPeriod:         frame.TariffPeriod,
		InstantaneousCurrent: frame.InstantaneousCurrent,
		ApparentPower:        frame.ApparentPower,
		SubscribedCurrent:    present(frame.SubscribedCurrent),
		MaxCurrent:           present(frame.MaxCurrent),
		PrimaryIndex:         frame.PrimaryIndex,
		PrimaryIndexKWh:      WhToKWh(frame.PrimaryIndex),
		Values:               make(map[string]string, len(frame.Values)),
	}

	for tag, value := range frame.Values {
		doc.Values[tag] = value
	}
	if len(frame.Indexes) > 0 {
		doc.Indexes = make(map[string]int, len(frame.Indexes))
		doc.IndexesKWh = make(map[string]decimal.Decimal, len(frame.Indexes))
		for tag, wh := range frame.Indexes {
			doc.Indexes[tag] = wh
			doc.IndexesKWh[tag] = WhToKWh(wh)
		}
	}
	return doc
}

// WhToKWh converts an exact watt-hour count
func WhToKWh(wh int) decimal.Decimal {
	return decimal.New(int64(wh), -3)
}

func present(v int) *int {
	if v == model.Absent {
		return nil
	}
	return &v
}
