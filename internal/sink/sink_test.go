package sink

import (
	"time"

	"linky-gateway/internal/model"
)

func sampleFrame() *model.Frame {
	f := model.NewFrame(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	f.Values = map[string]string{
		"ADCO":    "031762120345",
		"OPTARIF": "BASE",
		"BASE":    "012345678",
		"PTEC":    "TH..",
		"IINST":   "003",
		"PAPP":    "00750",
	}
	f.MeterAddress = "031762120345"
	f.Contract = "BASE"
	f.TariffPeriod = "TH"
	f.InstantaneousCurrent = 3
	f.ApparentPower = 750
	f.PrimaryIndex = 12345678
	f.Indexes = map[string]int{"BASE": 12345678}
	return f
}
