package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/browserflow/interpret"
	"github.com/BaSui01/browserflow/storage"
	"github.com/BaSui01/browserflow/types"
	"github.com/BaSui01/browserflow/workflow"
)

// --- test doubles (function callback pattern) ---

type fakeRunner struct {
	runFn func(ctx context.Context, name string, opts interpret.Options) (storage.Run, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, opts interpret.Options) (storage.Run, error) {
	return f.runFn(ctx, name, opts)
}

type recordingAPI struct {
	mux        *http.ServeMux
	recordings *storage.RecordingRepository
	runs       *storage.RunRepository
	lastOpts   interpret.Options
}

func newRecordingAPI(t *testing.T, withRunner bool) *recordingAPI {
	t.Helper()
	store := storage.NewMemoryStore()
	api := &recordingAPI{
		mux:        http.NewServeMux(),
		recordings: storage.NewRecordingRepository(store),
		runs:       storage.NewRunRepository(store),
	}

	var runner RecordingRunner
	if withRunner {
		runner = &fakeRunner{runFn: func(ctx context.Context, name string, opts interpret.Options) (storage.Run, error) {
			api.lastOpts = opts
			if _, err := api.recordings.Get(ctx, name); err != nil {
				return storage.Run{}, err
			}
			run := storage.NewRun(name, "run-browser", opts)
			run.Status = storage.RunStatusSuccess
			return run, api.runs.Save(ctx, run)
		}}
	}

	h := NewRecordingHandler(api.recordings, api.runs, runner, interpret.Options{MaxRepeats: 5, MaxConcurrency: 1}, nil)
	h.Routes(api.mux)

	for _, name := range []string{"beta", "alpha"} {
		_, err := api.recordings.Save(context.Background(), workflow.Recording{
			Meta: workflow.RecordingMeta{Name: name},
			Recording: workflow.RecordingBody{Workflow: workflow.Workflow{
				{What: []workflow.Action{{Action: workflow.ActionGoto, Args: []any{"https://example.com/" + name}}}},
			}},
		})
		require.NoError(t, err)
	}
	return api
}

func (a *recordingAPI) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	r := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.mux.ServeHTTP(w, r)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func TestRecordingHandler_ListGetDelete(t *testing.T) {
	api := newRecordingAPI(t, false)

	w, resp := api.do(t, http.MethodGet, "/api/v1/recordings", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeData[map[string][]workflow.RecordingMeta](t, resp)
	require.Len(t, list["recordings"], 2)
	assert.Equal(t, "alpha", list["recordings"][0].Name)
	assert.Equal(t, 1, list["recordings"][0].Pairs)

	w, resp = api.do(t, http.MethodGet, "/api/v1/recordings/beta", "")
	require.Equal(t, http.StatusOK, w.Code)
	rec := decodeData[workflow.Recording](t, resp)
	assert.Equal(t, "beta", rec.Meta.Name)

	w, _ = api.do(t, http.MethodDelete, "/api/v1/recordings/beta", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = api.do(t, http.MethodGet, "/api/v1/recordings/beta", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(types.ErrNotFound), resp.Error.Code)

	w, _ = api.do(t, http.MethodDelete, "/api/v1/recordings/beta", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecordingHandler_InvalidName(t *testing.T) {
	api := newRecordingAPI(t, false)

	w, resp := api.do(t, http.MethodGet, "/api/v1/recordings/.hidden", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(types.ErrInvalidRequest), resp.Error.Code)
}

func TestRecordingHandler_RunAndListRuns(t *testing.T) {
	api := newRecordingAPI(t, true)

	w, resp := api.do(t, http.MethodPost, "/api/v1/recordings/alpha/runs", `{"maxRepeats":2,"params":{"q":"go"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	run := decodeData[storage.Run](t, resp)
	assert.Equal(t, storage.RunStatusSuccess, run.Status)
	assert.Equal(t, 2, api.lastOpts.MaxRepeats)
	assert.Equal(t, 1, api.lastOpts.MaxConcurrency, "unset fields keep service defaults")
	assert.Equal(t, "go", api.lastOpts.Params["q"])

	w, resp = api.do(t, http.MethodGet, "/api/v1/recordings/alpha/runs", "")
	require.Equal(t, http.StatusOK, w.Code)
	runs := decodeData[map[string][]storage.Run](t, resp)
	require.Len(t, runs["runs"], 1)
	assert.Equal(t, run.RunID, runs["runs"][0].RunID)

	w, resp = api.do(t, http.MethodGet, "/api/v1/recordings/alpha/runs/"+run.RunID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, run.RunID, decodeData[storage.Run](t, resp).RunID)

	w, _ = api.do(t, http.MethodPost, "/api/v1/recordings/missing/runs", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecordingHandler_RunWithoutBodyUsesDefaults(t *testing.T) {
	api := newRecordingAPI(t, true)

	w, _ := api.do(t, http.MethodPost, "/api/v1/recordings/beta/runs", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 5, api.lastOpts.MaxRepeats)
}

func TestRecordingHandler_RunWithoutRunner(t *testing.T) {
	api := newRecordingAPI(t, false)

	w, _ := api.do(t, http.MethodPost, "/api/v1/recordings/alpha/runs", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
