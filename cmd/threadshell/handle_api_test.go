package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spamprx/threadshell"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	scheduler, err := threadshell.New(2, 2, nil)
	require.NoError(t, err)
	scheduler.Start()
	t.Cleanup(scheduler.Stop)

	mux := http.NewServeMux()
	h := &apiHandler{scheduler: scheduler}
	h.register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestAPISubmitAndStats(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/submit", `{"command": "echo hi", "priority": "HIGH"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var j struct {
		ID       int
		Priority string
		Status   string
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&j))
	require.Equal(t, 1, j.ID)
	require.Equal(t, "HIGH", j.Priority)

	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/api/stats")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var st struct{ Completed int }
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			return false
		}
		return st.Completed == 1
	}, 10*time.Second, 50*time.Millisecond)

	resp2, err := http.Get(srv.URL + "/api/jobs")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var jobs []struct{ Status string }
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&jobs))
	require.Len(t, jobs, 1)
	require.Equal(t, "COMPLETED", jobs[0].Status)
}

func TestAPISubmitArray(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/submit", `{"command": "echo $ARRAY_ID", "count": 3}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var jobs []struct{ Command string }
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jobs))
	require.Len(t, jobs, 3)
	require.Equal(t, "echo 0", jobs[0].Command)
}

func TestAPISubmitErrors(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/submit", `{"command": ""}`)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/submit", `{"command": "echo hi", "priority": "URGENT"}`)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	getResp, err := http.Get(srv.URL + "/api/submit")
	require.NoError(t, err)
	getResp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, getResp.StatusCode)
}

func TestAPIKillConflict(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/kill", `{"id": 42}`)
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPIPolicyAndQueue(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/policy", `{"policy": "shortest-first"}`)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/policy", `{"policy": "lottery"}`)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	qresp, err := http.Get(srv.URL + "/api/queue")
	require.NoError(t, err)
	defer qresp.Body.Close()
	var q struct{ Length int }
	require.NoError(t, json.NewDecoder(qresp.Body).Decode(&q))
	require.Zero(t, q.Length)
}
