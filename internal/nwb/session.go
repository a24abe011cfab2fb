package nwb

import (
	"fmt"
	"strings"
	"time"
)

// SessionData is the serializable content of one dynamic-gating ecephys
// session.
type SessionData struct {
	EcephysSessionID   int64        `json:"ecephys_session_id"`
	SessionStartTime   time.Time    `json:"session_start_time"`
	SessionDescription string       `json:"session_description,omitempty"`
	StimulusName       string       `json:"stimulus_name,omitempty"`
	Subject            Subject      `json:"subject"`
	Probes             []Probe      `json:"probes"`
	Optotagging        []OptoTrial  `json:"optotagging_table,omitempty"`
	Behavior           *BehaviorRef `json:"behavior,omitempty"`
}

// BehaviorRef links the ecephys session to its behavior session.
type BehaviorRef struct {
	BehaviorSessionID int64  `json:"behavior_session_id"`
	ForagingID        string `json:"foraging_id,omitempty"`
}

// Subject describes the animal.
type Subject struct {
	SpecimenName string `json:"specimen_name"`
	DonorID      *int64 `json:"donor_id,omitempty"`
	AgeInDays    *int64 `json:"age_in_days,omitempty"`
	FullGenotype string `json:"full_genotype,omitempty"`
	Strain       string `json:"strain,omitempty"`
	Sex          string `json:"sex,omitempty"`
	Species      string `json:"species,omitempty"`
}

// Probe is one Neuropixels probe with its channels and sorted units.
type Probe struct {
	ID                        int64     `json:"id"`
	Name                      string    `json:"name"`
	SamplingRate              float64   `json:"sampling_rate"`
	LFPSamplingRate           float64   `json:"lfp_sampling_rate"`
	TemporalSubsamplingFactor float64   `json:"temporal_subsampling_factor,omitempty"`
	Channels                  []Channel `json:"channels"`
	Units                     []Unit    `json:"units"`
}

// Channel is one recording site.
type Channel struct {
	ID                      int64   `json:"id"`
	ProbeChannelNumber      int64   `json:"probe_channel_number"`
	LocalIndex              int64   `json:"local_index"`
	ProbeVerticalPosition   float64 `json:"probe_vertical_position"`
	ProbeHorizontalPosition float64 `json:"probe_horizontal_position"`
	StructureAcronym        string  `json:"structure_acronym,omitempty"`
	ValidData               bool    `json:"valid_data"`
}

// Unit is one sorted unit.
type Unit struct {
	ID              int64     `json:"id"`
	PeakChannelID   int64     `json:"peak_channel_id"`
	LocalIndex      int64     `json:"local_index"`
	Quality         string    `json:"quality,omitempty"`
	FiringRate      float64   `json:"firing_rate"`
	SpikeTimes      []float64 `json:"spike_times"`
	SpikeAmplitudes []float64 `json:"spike_amplitudes,omitempty"`
}

// OptoTrial is one row of the optotagging stimulus table.
type OptoTrial struct {
	StartTime    float64 `json:"start_time"`
	Duration     float64 `json:"duration"`
	Condition    string  `json:"condition"`
	Level        float64 `json:"level"`
	StimulusName string  `json:"stimulus_name,omitempty"`
}

// reservedProbeNames are groups that share a parent with the per-probe
// electrode groups.
var reservedProbeNames = map[string]bool{"electrodes": true}

// Validate reports every structural problem in the session data. Field
// names are prefixed with prefix.
func (s SessionData) Validate(prefix string) []FieldError {
	var errs []FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: prefix + field, Message: fmt.Sprintf(format, args...)})
	}
	if s.EcephysSessionID <= 0 {
		add("ecephys_session_id", "must be a positive integer")
	}
	if s.SessionStartTime.IsZero() {
		add("session_start_time", "missing data for required field")
	}
	if s.Subject.SpecimenName == "" {
		add("subject.specimen_name", "missing data for required field")
	}

	names := make(map[string]bool, len(s.Probes))
	for i, p := range s.Probes {
		field := fmt.Sprintf("probes.%d", i)
		switch {
		case p.Name == "":
			add(field+".name", "missing data for required field")
		case strings.Contains(p.Name, "/") || p.Name == "." || p.Name == "..":
			add(field+".name", "probe name %q is not a valid group name", p.Name)
		case reservedProbeNames[p.Name]:
			add(field+".name", "probe name %q collides with the %s table", p.Name, p.Name)
		case names[p.Name]:
			add(field+".name", "duplicate probe name %q", p.Name)
		}
		names[p.Name] = true
		if p.SamplingRate <= 0 {
			add(field+".sampling_rate", "must be positive")
		}
		channels := make(map[int64]bool, len(p.Channels))
		for _, ch := range p.Channels {
			channels[ch.ID] = true
		}
		for j, u := range p.Units {
			unitField := fmt.Sprintf("%s.units.%d", field, j)
			if !channels[u.PeakChannelID] {
				add(unitField+".peak_channel_id", "channel %d is not on probe %q", u.PeakChannelID, p.Name)
			}
			if len(u.SpikeAmplitudes) > 0 && len(u.SpikeAmplitudes) != len(u.SpikeTimes) {
				add(unitField+".spike_amplitudes", "length %d does not match %d spike times", len(u.SpikeAmplitudes), len(u.SpikeTimes))
			}
		}
	}
	for i, trial := range s.Optotagging {
		if trial.Duration < 0 {
			add(fmt.Sprintf("optotagging_table.%d.duration", i), "must not be negative")
		}
	}
	return errs
}
