package nwb

import (
	"fmt"
	"strconv"
	"time"
)

// Serializer turns session data into a container.
type Serializer interface {
	Serialize(data SessionData, skipProbes []string) (*Container, error)
}

// DynamicGatingSerializer lays out a dynamic-gating ecephys session: subject,
// one device and electrode group per probe, a shared electrode table, the
// units table, and optotagging intervals.
type DynamicGatingSerializer struct{}

// Serialize builds the container. Probes named in skipProbes are omitted
// together with their channels and units; unknown names are ignored.
func (DynamicGatingSerializer) Serialize(data SessionData, skipProbes []string) (*Container, error) {
	skip := make(map[string]bool, len(skipProbes))
	for _, name := range skipProbes {
		skip[name] = true
	}

	description := data.SessionDescription
	if description == "" {
		description = "Data and metadata for an Ecephys session"
	}
	c := NewContainer(strconv.FormatInt(data.EcephysSessionID, 10), description)
	c.Root.SetAttr("session_start_time", data.SessionStartTime.UTC().Format(time.RFC3339Nano))
	if data.StimulusName != "" {
		c.Root.SetAttr("stimulus_name", data.StimulusName)
	}

	general := c.Root.Child("general")
	writeSubject(general.Child("subject"), data.Subject)
	if data.Behavior != nil {
		meta := general.Child("metadata")
		meta.SetAttr("behavior_session_id", data.Behavior.BehaviorSessionID)
		if data.Behavior.ForagingID != "" {
			meta.SetAttr("foraging_id", data.Behavior.ForagingID)
		}
	}

	var probes []Probe
	for _, p := range data.Probes {
		if !skip[p.Name] {
			probes = append(probes, p)
		}
	}

	devices := general.Child("devices")
	ephys := general.Child("extracellular_ephys")
	for _, p := range probes {
		device := devices.Child(p.Name)
		device.SetAttr("neurodata_type", "EcephysProbe")
		device.SetAttr("probe_id", p.ID)
		device.SetAttr("sampling_rate", p.SamplingRate)
		device.SetAttr("lfp_sampling_rate", p.LFPSamplingRate)
		if p.TemporalSubsamplingFactor > 0 {
			device.SetAttr("temporal_subsampling_factor", p.TemporalSubsamplingFactor)
		}

		group := ephys.Child(p.Name)
		group.SetAttr("neurodata_type", "EcephysElectrodeGroup")
		group.SetAttr("description", "Ecephys Electrode Group")
		group.SetAttr("location", "See electrode locations")
		group.SetAttr("device", "/general/devices/"+p.Name)
	}

	if err := writeElectrodes(ephys.Child("electrodes"), probes); err != nil {
		return nil, err
	}
	if err := writeUnits(c.Root.Child("units"), probes); err != nil {
		return nil, err
	}
	if len(data.Optotagging) > 0 {
		if err := writeOptotagging(c.Root.Child("intervals").Child("optotagging"), data.Optotagging); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func writeSubject(g *Group, s Subject) {
	g.SetAttr("neurodata_type", "EcephysSpecimen")
	g.SetAttr("subject_id", s.SpecimenName)
	species := s.Species
	if species == "" {
		species = "Mus musculus"
	}
	g.SetAttr("species", species)
	if s.DonorID != nil {
		g.SetAttr("donor_id", *s.DonorID)
	}
	if s.AgeInDays != nil {
		g.SetAttr("age", fmt.Sprintf("P%dD", *s.AgeInDays))
		g.SetAttr("age_in_days", *s.AgeInDays)
	}
	if s.FullGenotype != "" {
		g.SetAttr("genotype", s.FullGenotype)
	}
	if s.Strain != "" {
		g.SetAttr("strain", s.Strain)
	}
	if s.Sex != "" {
		g.SetAttr("sex", s.Sex)
	}
}

type datasetSpec struct {
	name string
	data any
}

func addDatasets(g *Group, specs ...datasetSpec) error {
	for _, spec := range specs {
		if _, err := g.AddDataset(spec.name, spec.data); err != nil {
			return err
		}
	}
	return nil
}

func writeElectrodes(g *Group, probes []Probe) error {
	g.SetAttr("neurodata_type", "DynamicTable")
	g.SetAttr("description", "metadata about extracellular electrodes")

	var (
		ids        = []int64{}
		probeIDs   = []int64{}
		groupNames = []string{}
		locations  = []string{}
		vertical   = []float64{}
		horizontal = []float64{}
		channelNum = []int64{}
		localIndex = []int64{}
		validData  = []bool{}
	)
	for _, p := range probes {
		for _, ch := range p.Channels {
			ids = append(ids, ch.ID)
			probeIDs = append(probeIDs, p.ID)
			groupNames = append(groupNames, p.Name)
			locations = append(locations, ch.StructureAcronym)
			vertical = append(vertical, ch.ProbeVerticalPosition)
			horizontal = append(horizontal, ch.ProbeHorizontalPosition)
			channelNum = append(channelNum, ch.ProbeChannelNumber)
			localIndex = append(localIndex, ch.LocalIndex)
			validData = append(validData, ch.ValidData)
		}
	}
	return addDatasets(g,
		datasetSpec{"id", ids},
		datasetSpec{"probe_id", probeIDs},
		datasetSpec{"group_name", groupNames},
		datasetSpec{"location", locations},
		datasetSpec{"probe_vertical_position", vertical},
		datasetSpec{"probe_horizontal_position", horizontal},
		datasetSpec{"probe_channel_number", channelNum},
		datasetSpec{"local_index", localIndex},
		datasetSpec{"valid_data", validData},
	)
}

// writeUnits stores a ragged spike_times column as flat data plus a
// cumulative spike_times_index, the layout NWB uses for vector columns.
func writeUnits(g *Group, probes []Probe) error {
	g.SetAttr("neurodata_type", "Units")
	g.SetAttr("description", "Units sorted from Neuropixels probes")

	var (
		ids         = []int64{}
		peakChannel = []int64{}
		localIndex  = []int64{}
		quality     = []string{}
		firingRate  = []float64{}
		spikeTimes  = []float64{}
		spikeIndex  = []int64{}
		amplitudes  = []float64{}
	)
	for _, p := range probes {
		for _, u := range p.Units {
			ids = append(ids, u.ID)
			peakChannel = append(peakChannel, u.PeakChannelID)
			localIndex = append(localIndex, u.LocalIndex)
			quality = append(quality, u.Quality)
			firingRate = append(firingRate, u.FiringRate)
			spikeTimes = append(spikeTimes, u.SpikeTimes...)
			spikeIndex = append(spikeIndex, int64(len(spikeTimes)))
			if len(u.SpikeAmplitudes) > 0 {
				amplitudes = append(amplitudes, u.SpikeAmplitudes...)
			} else {
				for range u.SpikeTimes {
					amplitudes = append(amplitudes, 0)
				}
			}
		}
	}
	return addDatasets(g,
		datasetSpec{"id", ids},
		datasetSpec{"peak_channel_id", peakChannel},
		datasetSpec{"local_index", localIndex},
		datasetSpec{"quality", quality},
		datasetSpec{"firing_rate", firingRate},
		datasetSpec{"spike_times", spikeTimes},
		datasetSpec{"spike_times_index", spikeIndex},
		datasetSpec{"spike_amplitudes", amplitudes},
	)
}

func writeOptotagging(g *Group, trials []OptoTrial) error {
	g.SetAttr("neurodata_type", "TimeIntervals")
	g.SetAttr("description", "optogenetic stimulations")

	var (
		start     = make([]float64, 0, len(trials))
		stop      = make([]float64, 0, len(trials))
		condition = make([]string, 0, len(trials))
		level     = make([]float64, 0, len(trials))
		stimulus  = make([]string, 0, len(trials))
	)
	for _, trial := range trials {
		start = append(start, trial.StartTime)
		stop = append(stop, trial.StartTime+trial.Duration)
		condition = append(condition, trial.Condition)
		level = append(level, trial.Level)
		stimulus = append(stimulus, trial.StimulusName)
	}
	return addDatasets(g,
		datasetSpec{"start_time", start},
		datasetSpec{"stop_time", stop},
		datasetSpec{"condition", condition},
		datasetSpec{"level", level},
		datasetSpec{"stimulus_name", stimulus},
	)
}
