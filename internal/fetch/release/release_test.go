package release_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"allenpipe/internal/fetch/release"
	"allenpipe/internal/logging"
	"allenpipe/internal/services"
	"allenpipe/internal/testsupport"
)

func TestDirSourceRoundTripsFixture(t *testing.T) {
	root := t.TempDir()
	fx := testsupport.NewFixture()
	testsupport.WriteRelease(t, root, fx)

	src := release.New(release.NewDirBucket(root), logging.NewNop())
	assertSourceMatchesFixture(t, src, fx)
}

func TestDirSourceMissingTableIsNotFound(t *testing.T) {
	src := release.New(release.NewDirBucket(t.TempDir()), logging.NewNop())
	_, err := src.BehaviorSessionTable(context.Background())
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDirSourceRejectsDuplicateSessions(t *testing.T) {
	root := t.TempDir()
	fx := testsupport.NewFixture()
	fx.Behavior = append(fx.Behavior, fx.Behavior[0])
	testsupport.WriteRelease(t, root, fx)

	src := release.New(release.NewDirBucket(root), logging.NewNop())
	if _, err := src.BehaviorSessionTable(context.Background()); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDirSourceMalformedTableIsFetchError(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, filepath.FromSlash(release.OphysExperimentsKey))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"not": "a table"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	src := release.New(release.NewDirBucket(root), logging.NewNop())
	if _, err := src.OphysExperimentTable(context.Background()); !errors.Is(err, services.ErrFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestStageParametersDefaultToEmpty(t *testing.T) {
	src := release.New(release.NewDirBucket(t.TempDir()), logging.NewNop())
	params, err := src.BehaviorStageParameters(context.Background(), []string{"1", "2"})
	if err != nil {
		t.Fatalf("BehaviorStageParameters: %v", err)
	}
	if len(params) != 2 || len(params["1"]) != 0 {
		t.Fatalf("expected empty parameter sets, got %v", params)
	}
}

// objectServer answers path-style S3 GetObject requests from memory.
type objectServer struct {
	bucket  string
	objects map[string][]byte
	paths   []string
}

func (s *objectServer) RoundTrip(req *http.Request) (*http.Response, error) {
	s.paths = append(s.paths, req.URL.Path)
	key := strings.TrimPrefix(req.URL.Path, "/"+s.bucket+"/")
	body, ok := s.objects[key]
	if req.Method != http.MethodGet || !ok {
		payload := `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Header:     http.Header{"Content-Type": []string{"application/xml"}},
			Body:       io.NopCloser(strings.NewReader(payload)),
			Request:    req,
		}, nil
	}
	return &http.Response{
		StatusCode:    http.StatusOK,
		Header:        http.Header{"Content-Type": []string{"application/json"}},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}

func TestS3SourceRoundTripsFixture(t *testing.T) {
	fx := testsupport.NewFixture()
	server := &objectServer{bucket: "vbo", objects: map[string][]byte{}}
	put := func(key string, value any) {
		data, err := json.Marshal(value)
		if err != nil {
			t.Fatalf("marshal %s: %v", key, err)
		}
		server.objects["release/"+key] = data
	}
	put(release.BehaviorSessionsKey, fx.Behavior)
	put(release.OphysSessionsKey, fx.Sessions)
	put(release.OphysExperimentsKey, fx.Experiments)
	put(release.StageParametersKey, fx.StageParameters)
	for id, doc := range fx.SessionData {
		put(release.SessionDataKey(id), doc)
	}

	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "missing-config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "missing-credentials"))
	bucket, err := release.NewS3Bucket(context.Background(), release.S3Options{
		Bucket:          "vbo",
		Prefix:          "/release/",
		Region:          "us-west-2",
		Endpoint:        "https://mock.s3.local",
		PathStyle:       true,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		HTTPClient:      &http.Client{Transport: server},
	})
	if err != nil {
		t.Fatalf("NewS3Bucket: %v", err)
	}
	if got := bucket.Location(); got != "s3://vbo/release" {
		t.Fatalf("unexpected location %q", got)
	}

	src := release.New(bucket, logging.NewNop())
	assertSourceMatchesFixture(t, src, fx)

	if _, err := src.SessionData(context.Background(), 12345); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown session, got %v", err)
	}
	if len(server.paths) == 0 || !strings.HasPrefix(server.paths[0], "/vbo/release/") {
		t.Fatalf("expected path-style requests under the prefix, got %v", server.paths)
	}
}

func TestNewS3BucketRequiresBucket(t *testing.T) {
	if _, err := release.NewS3Bucket(context.Background(), release.S3Options{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func assertSourceMatchesFixture(t *testing.T, src *release.Source, fx testsupport.Fixture) {
	t.Helper()
	ctx := context.Background()

	behavior, err := src.BehaviorSessionTable(ctx)
	if err != nil {
		t.Fatalf("BehaviorSessionTable: %v", err)
	}
	if !reflect.DeepEqual(normalize(t, behavior), normalize(t, fx.Behavior)) {
		t.Fatal("behavior table does not round-trip")
	}

	sessions, err := src.OphysSessionTable(ctx)
	if err != nil {
		t.Fatalf("OphysSessionTable: %v", err)
	}
	if !reflect.DeepEqual(normalize(t, sessions), normalize(t, fx.Sessions)) {
		t.Fatal("ophys session table does not round-trip")
	}

	experiments, err := src.OphysExperimentTable(ctx)
	if err != nil {
		t.Fatalf("OphysExperimentTable: %v", err)
	}
	if !reflect.DeepEqual(normalize(t, experiments), normalize(t, fx.Experiments)) {
		t.Fatal("ophys experiment table does not round-trip")
	}

	params, err := src.BehaviorStageParameters(ctx, []string{testsupport.HabituationForagingID, "999"})
	if err != nil {
		t.Fatalf("BehaviorStageParameters: %v", err)
	}
	if p, ok := params[testsupport.HabituationForagingID].FlashOmitProbability(); !ok || p != 0.05 {
		t.Fatalf("unexpected habituation parameters: %v", params)
	}
	if len(params["999"]) != 0 {
		t.Fatalf("expected empty parameters for unknown id, got %v", params["999"])
	}

	doc, err := src.SessionData(ctx, 88)
	if err != nil {
		t.Fatalf("SessionData: %v", err)
	}
	var parsed struct {
		OphysSessionID int64 `json:"ophys_session_id"`
	}
	if err := json.Unmarshal(doc, &parsed); err != nil || parsed.OphysSessionID != 88 {
		t.Fatalf("unexpected session data %s (%v)", doc, err)
	}
}

// normalize compares tables through their JSON form so time zones and nil
// versus empty slices do not matter.
func normalize(t *testing.T, value any) any {
	t.Helper()
	data, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}
