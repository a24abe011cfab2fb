package testsupport

import (
	"time"

	"allenpipe/internal/nwb"
)

// NewSessionData returns a two-probe dynamic-gating session with three units
// and two optotagging trials.
func NewSessionData() nwb.SessionData {
	donor := int64(1234)
	age := int64(120)
	return nwb.SessionData{
		EcephysSessionID: 1051155866,
		SessionStartTime: time.Date(2020, time.August, 19, 14, 23, 11, 0, time.UTC),
		StimulusName:     "dynamic_gating",
		Subject: nwb.Subject{
			SpecimenName: "Sst-IRES-Cre;Ai32-524760",
			DonorID:      &donor,
			AgeInDays:    &age,
			FullGenotype: "Sst-IRES-Cre/wt;Ai32(RCL-ChR2(H134R)_EYFP)/wt",
			Sex:          "F",
		},
		Behavior: &nwb.BehaviorRef{BehaviorSessionID: 1051249611, ForagingID: "f00d"},
		Probes: []nwb.Probe{
			{
				ID:              1,
				Name:            "probeA",
				SamplingRate:    30000,
				LFPSamplingRate: 2500,
				Channels: []nwb.Channel{
					{ID: 10, ProbeChannelNumber: 0, LocalIndex: 0, ProbeVerticalPosition: 20, ProbeHorizontalPosition: 43, StructureAcronym: "VISp", ValidData: true},
					{ID: 11, ProbeChannelNumber: 1, LocalIndex: 1, ProbeVerticalPosition: 40, ProbeHorizontalPosition: 11, StructureAcronym: "VISp", ValidData: false},
				},
				Units: []nwb.Unit{
					{ID: 100, PeakChannelID: 10, LocalIndex: 0, Quality: "good", FiringRate: 2.5, SpikeTimes: []float64{0.1, 0.2, 0.35}, SpikeAmplitudes: []float64{1, 2, 3}},
					{ID: 101, PeakChannelID: 11, LocalIndex: 1, Quality: "noise", FiringRate: 0.5, SpikeTimes: []float64{1.5}},
				},
			},
			{
				ID:              2,
				Name:            "probeB",
				SamplingRate:    30000,
				LFPSamplingRate: 2500,
				Channels: []nwb.Channel{
					{ID: 20, ProbeChannelNumber: 0, LocalIndex: 0, ProbeVerticalPosition: 20, ProbeHorizontalPosition: 43, StructureAcronym: "CA1", ValidData: true},
				},
				Units: []nwb.Unit{
					{ID: 200, PeakChannelID: 20, LocalIndex: 0, Quality: "good", FiringRate: 7, SpikeTimes: []float64{0.05, 0.9}},
				},
			},
		},
		Optotagging: []nwb.OptoTrial{
			{StartTime: 10, Duration: 0.01, Condition: "a single square pulse", Level: 1.2, StimulusName: "pulse"},
			{StartTime: 12, Duration: 1, Condition: "raised cosine", Level: 0.8, StimulusName: "raised_cosine"},
		},
	}
}

// NewNWBInput returns a valid writer input targeting outputPath.
func NewNWBInput(outputPath string) nwb.Input {
	return nwb.Input{
		OutputPath:  outputPath,
		SessionData: NewSessionData(),
		SkipProbes:  []string{},
	}
}
