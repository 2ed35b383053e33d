package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/entities"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/tasks"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/usecases"
)

type fakeQuery struct {
	question string
	hints    []string
}

func (f *fakeQuery) Answer(ctx context.Context, question string, hints []string) (*entities.AnswerResult, error) {
	f.question, f.hints = question, hints
	return &entities.AnswerResult{Answer: "42", Answered: true, PrimaryTable: "acme_2024", Iterations: 2}, nil
}

type fakeCleanup struct {
	assumeYes, dryRun bool
}

func (f *fakeCleanup) Plan(targets []string) *entities.CleanupPlan {
	return &entities.CleanupPlan{Targets: targets}
}

func (f *fakeCleanup) Execute(ctx context.Context, plan *entities.CleanupPlan, assumeYes, dryRun bool) entities.CleanupOutcome {
	f.assumeYes, f.dryRun = assumeYes, dryRun
	return entities.CleanupOutcome{ExitCode: entities.CleanupOK, DryRun: dryRun}
}

type fakeData struct {
	saved   map[string]string
	imports int
}

func (f *fakeData) Import(ctx context.Context) (*usecases.ImportReport, error) {
	f.imports++
	return &usecases.ImportReport{Tables: 2}, nil
}

func (f *fakeData) SaveUpload(filename string, r io.Reader) (string, error) {
	if strings.HasSuffix(filename, ".pdf") {
		return "", errors.New("unsupported file type \".pdf\"")
	}
	data, _ := io.ReadAll(r)
	f.saved[filename] = string(data)
	return "/data/excel/" + filename, nil
}

type fakeIndex struct {
	policy usecases.BuildPolicy
}

func (f *fakeIndex) Build(ctx context.Context, policy usecases.BuildPolicy) (*usecases.BuildReport, error) {
	f.policy = policy
	return &usecases.BuildReport{Policy: policy, Built: true}, nil
}

type fakeTables struct{}

func (fakeTables) List(includeMeta bool) []entities.TableInfo {
	info := entities.TableInfo{ID: "acme_2024", Aliases: []string{"acme_2024"}}
	if includeMeta {
		info.OriginalFilename = "Acme 2024.xlsx"
	}
	return []entities.TableInfo{info}
}

type testEnv struct {
	srv     *httptest.Server
	manager *tasks.Manager
	query   *fakeQuery
	cleanup *fakeCleanup
	data    *fakeData
	index   *fakeIndex
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		manager: tasks.NewManager(nil, nil),
		query:   &fakeQuery{},
		cleanup: &fakeCleanup{},
		data:    &fakeData{saved: map[string]string{}},
		index:   &fakeIndex{},
	}
	s := NewServer(Services{
		Query:   env.query,
		Tasks:   env.manager,
		Cleanup: env.cleanup,
		Data:    env.data,
		Index:   env.index,
		Tables:  fakeTables{},
	}, ":0", nil)
	env.srv = httptest.NewServer(s.Handler())
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) postJSON(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(e.srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

// awaitTask waits for the background job and returns its record as JSON.
func (e *testEnv) awaitTask(t *testing.T, id string) map[string]any {
	t.Helper()
	e.manager.Wait()
	resp, err := http.Get(e.srv.URL + "/api/tasks/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode(t, resp)
}

func TestServer_Ask(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/chat/ask", `{"question":"revenue?","table_id":"Acme 2024"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "42", body["answer"])
	assert.Equal(t, true, body["answered"])
	assert.Equal(t, []string{"Acme 2024"}, env.query.hints)

	env.postJSON(t, "/api/chat/ask", `{"question":"q","table_id":"auto","tables":["a","b"]}`)
	assert.Equal(t, []string{"a", "b"}, env.query.hints, "tables wins over table_id")
}

func TestServer_AskValidation(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusBadRequest, env.postJSON(t, "/api/chat/ask", `{"question":""}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, env.postJSON(t, "/api/chat/ask", `not json`).StatusCode)
}

func TestServer_CleanupRunsInBackground(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/cleanup", `{"targets":["Acme_2024"],"dry_run":true}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "queued", body["status"])

	rec := env.awaitTask(t, body["task_id"].(string))
	assert.Equal(t, "succeeded", rec["status"])
	assert.Equal(t, "cleanup", rec["kind"])
	result := rec["result"].(map[string]any)
	assert.EqualValues(t, 0, result["exit_code"])
	assert.True(t, env.cleanup.assumeYes, "HTTP cleanup never prompts")
	assert.True(t, env.cleanup.dryRun)
}

func TestServer_ImportAndBuild(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/data/import", `{}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	rec := env.awaitTask(t, decode(t, resp)["task_id"].(string))
	assert.Equal(t, "succeeded", rec["status"])
	assert.Equal(t, 1, env.data.imports)

	resp = env.postJSON(t, "/api/embeddings/build", `{"policy":"rebuild"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	env.awaitTask(t, decode(t, resp)["task_id"].(string))
	assert.Equal(t, usecases.PolicyRebuild, env.index.policy)

	resp = env.postJSON(t, "/api/embeddings/build", `{"policy":"whenever"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_BuildWithoutBody(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.srv.URL+"/api/embeddings/build", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	env.manager.Wait()
	assert.Equal(t, usecases.PolicyDefault, env.index.policy)
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestServer_Upload(t *testing.T) {
	env := newTestEnv(t)

	body, ctype := multipartBody(t, map[string]string{"a.xlsx": "A", "b.csv": "B"})
	resp, err := http.Post(env.srv.URL+"/api/data/upload", ctype, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	out := decode(t, resp)
	assert.Len(t, out["saved_paths"], 2)
	assert.Equal(t, map[string]string{"a.xlsx": "A", "b.csv": "B"}, env.data.saved)

	env.awaitTask(t, out["task_id"].(string))
	assert.Equal(t, 1, env.data.imports)
}

func TestServer_UploadRejectsUnsupported(t *testing.T) {
	env := newTestEnv(t)

	body, ctype := multipartBody(t, map[string]string{"report.pdf": "%PDF"})
	resp, err := http.Post(env.srv.URL+"/api/data/upload", ctype, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode(t, resp)["error"], "unsupported")
	assert.Zero(t, env.data.imports)
}

func TestServer_UnknownTask(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/api/tasks/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Tables(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/api/tables?include_meta=true")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Tables []entities.TableInfo `json:"tables"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Tables, 1)
	assert.Equal(t, "Acme 2024.xlsx", body.Tables[0].OriginalFilename)
}

func TestServer_HealthAndCORS(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "ok", decode(t, resp)["status"])

	req, _ := http.NewRequest(http.MethodOptions, env.srv.URL+"/api/chat/ask", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type fakeHealth bool

func (f fakeHealth) Healthy(ctx context.Context) bool { return bool(f) }

func TestServer_HealthReportsIngestion(t *testing.T) {
	for _, tc := range []struct {
		up   bool
		want string
	}{{true, "ok"}, {false, "unavailable"}} {
		s := NewServer(Services{Tasks: tasks.NewManager(nil, nil), Ingestion: fakeHealth(tc.up)}, ":0", nil)
		srv := httptest.NewServer(s.Handler())

		resp, err := http.Get(srv.URL + "/api/health")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode(t, resp)
		resp.Body.Close()
		srv.Close()

		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, tc.want, body["ingestion"])
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/api/chat/ask")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
