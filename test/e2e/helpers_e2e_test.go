//go:build e2e

package e2e_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// baseURL points at a running server, e.g. from docker compose.
var baseURL = strings.TrimRight(getenv("E2E_BASE_URL", "http://localhost:8080"), "/")

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// requireApp skips the test when the server is not reachable.
func requireApp(t *testing.T, client *http.Client) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping E2E tests in short mode")
	}
	resp, err := client.Get(baseURL + "/healthz")
	if err != nil {
		t.Skipf("app not available at %s: %v", baseURL, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Skipf("app not healthy at %s: %d", baseURL, resp.StatusCode)
	}
}

type upload struct {
	field, name string
	data        []byte
}

func postAnalyze(t *testing.T, client *http.Client, path string, fields map[string]string, files ...upload) (int, map[string]any) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		w, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = w.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, baseURL+path, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := client.Do(req)
	require.NoError(t, err)
	return decode(t, resp)
}

func getJSON(t *testing.T, client *http.Client, path string) (int, map[string]any) {
	t.Helper()
	resp, err := client.Get(baseURL + path)
	require.NoError(t, err)
	return decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) (int, map[string]any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	}
	return resp.StatusCode, out
}

// waitForTerminal polls an analysis until it leaves queued/processing.
func waitForTerminal(t *testing.T, client *http.Client, id string, timeout time.Duration) map[string]any {
	t.Helper()
	var last map[string]any
	require.Eventually(t, func() bool {
		code, body := getJSON(t, client, "/v1/analyses/"+id)
		if code != http.StatusOK {
			return false
		}
		last = body
		st, _ := body["status"].(string)
		return st == "completed" || st == "failed"
	}, timeout, time.Second, "analysis %s never reached a terminal state", id)
	return last
}

const sampleCV = `Jane Doe
jane.doe@example.com | +1 555 0100
Senior backend engineer with 7 years of experience building Python and Go
services on AWS. Docker, Kubernetes, PostgreSQL, Redis.
Education: BSc Computer Science, University of Somewhere.`

var validFields = map[string]string{"required_skills": "python, aws, kubernetes", "role_level": "senior"}
