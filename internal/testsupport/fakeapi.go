package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"allenpipe/internal/metadata"
	"allenpipe/internal/services"
)

// FakeAPI serves a Fixture from memory and records how often each table was
// fetched.
type FakeAPI struct {
	Fixture Fixture
	// Err, when set, is returned by every method.
	Err error

	BehaviorCalls   int
	SessionCalls    int
	ExperimentCalls int
	StageCalls      int
	StageRequests   [][]string
}

// NewFakeAPI wraps the deterministic fixture.
func NewFakeAPI() *FakeAPI {
	return &FakeAPI{Fixture: NewFixture()}
}

func (f *FakeAPI) BehaviorSessionTable(context.Context) ([]metadata.BehaviorSession, error) {
	f.BehaviorCalls++
	if f.Err != nil {
		return nil, f.Err
	}
	return slices.Clone(f.Fixture.Behavior), nil
}

func (f *FakeAPI) OphysSessionTable(context.Context) ([]metadata.OphysSession, error) {
	f.SessionCalls++
	if f.Err != nil {
		return nil, f.Err
	}
	return slices.Clone(f.Fixture.Sessions), nil
}

func (f *FakeAPI) OphysExperimentTable(context.Context) ([]metadata.OphysExperiment, error) {
	f.ExperimentCalls++
	if f.Err != nil {
		return nil, f.Err
	}
	return slices.Clone(f.Fixture.Experiments), nil
}

func (f *FakeAPI) SessionData(_ context.Context, id int64) (json.RawMessage, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	doc, ok := f.Fixture.SessionData[id]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "fake", "session data", fmt.Sprintf("session %d", id), nil)
	}
	return doc, nil
}

func (f *FakeAPI) BehaviorStageParameters(_ context.Context, foragingIDs []string) (map[string]metadata.StageParameters, error) {
	f.StageCalls++
	f.StageRequests = append(f.StageRequests, slices.Clone(foragingIDs))
	if f.Err != nil {
		return nil, f.Err
	}
	out := make(map[string]metadata.StageParameters, len(foragingIDs))
	for _, id := range foragingIDs {
		params, ok := f.Fixture.StageParameters[id]
		if !ok {
			params = metadata.StageParameters{}
		}
		out[id] = params
	}
	return out, nil
}

// TotalTableCalls sums the table fetches so far.
func (f *FakeAPI) TotalTableCalls() int {
	return f.BehaviorCalls + f.SessionCalls + f.ExperimentCalls
}
