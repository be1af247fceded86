package secure

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDigest = "sha256:0f3e1c1ad4b0a6c5f3fcbcf1b9b5fd2bd2c4b1bd4c2b7e3c5d8a9e0f1a2b3c4d"

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger, _ := logtest.NewNullLogger()
	opts = append([]Option{WithLogger(logger), WithRateLimit(1000, 1000)}, opts...)
	// Trailing slashes must not produce double slashes in request paths.
	client, err := New("foo-token", server.URL+"//", opts...)
	require.NoError(t, err)
	return client
}

func TestNew(t *testing.T) {
	_, err := New("", "https://secure.sysdig.com")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = New("foo-token", "secure.sysdig.com")
	assert.Error(t, err)

	c, err := New("foo-token", "https://secure.sysdig.com///")
	require.NoError(t, err)
	assert.Equal(t, "https://secure.sysdig.com", c.baseURL)
}

func TestSubmitImage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/scanning/v1/anchore/images", r.URL.Path)
		assert.Equal(t, "Bearer foo-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "foo:latest", body["tag"])
		assert.Equal(t, "FROM alpine", body["dockerfile"])
		assert.Equal(t, map[string]interface{}{"added-by": "cicd-inline-scan"}, body["annotations"])

		_, _ = io.WriteString(w, `[{"imageDigest":"`+testDigest+`"}]`)
	})

	digest, err := client.SubmitImage(context.Background(), "foo:latest", "FROM alpine",
		map[string]string{"added-by": "cicd-inline-scan"})
	require.NoError(t, err)
	assert.Equal(t, testDigest, digest)
}

func TestSubmitImageOmitsEmptyFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]interface{}{"tag": "foo:latest"}, body)
		_, _ = io.WriteString(w, `[{"imageDigest":"`+testDigest+`"}]`)
	})

	_, err := client.SubmitImage(context.Background(), "foo:latest", "", nil)
	require.NoError(t, err)
}

func TestSubmitImageValidation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.SubmitImage(context.Background(), "", "", nil)
	assert.Error(t, err)
}

func TestRetrieveVulnerabilities(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/scanning/v1/anchore/images/"+testDigest+"/vuln/all", r.URL.Path)
		_, _ = io.WriteString(w, `{"imageDigest":"`+testDigest+`","vulnerabilities":[{"vuln":"CVE-2024-0001"}]}`)
	})

	report, err := client.RetrieveVulnerabilities(context.Background(), testDigest)
	require.NoError(t, err)
	assert.Equal(t, testDigest, report["imageDigest"])
	assert.Len(t, report["vulnerabilities"], 1)
}

func TestRetrieveCheckResults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/scanning/v1/anchore/images/"+testDigest+"/check", r.URL.Path)
		assert.Equal(t, "foo:latest", r.URL.Query().Get("tag"))
		assert.Equal(t, "true", r.URL.Query().Get("detail"))
		_, _ = io.WriteString(w, `[{"`+testDigest+`":{"foo:latest":[{"status":"pass"}]}}]`)
	})

	results, err := client.RetrieveCheckResults(context.Background(), "foo:latest", testDigest)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRetrieveRejectsBadDigest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.RetrieveVulnerabilities(context.Background(), "../../admin")
	assert.Error(t, err)
	_, err = client.RetrieveCheckResults(context.Background(), "foo:latest", "latest")
	assert.Error(t, err)
}

func TestNonOKStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"Unauthorized"}`)
	})

	_, err := client.SubmitImage(context.Background(), "foo:latest", "", nil)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Equal(t, `{"message":"Unauthorized"}`, httpErr.Body)
	assert.Equal(t, `Submit image - HTTP 401: {"message":"Unauthorized"}`, err.Error())
}

func TestCancelAbortsRequest(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := client.RetrieveVulnerabilities(ctx, testDigest)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRateLimitHonoursContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}, WithRateLimit(0.001, 1))

	_, err := client.RetrieveVulnerabilities(context.Background(), testDigest)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.RetrieveVulnerabilities(ctx, testDigest)
	assert.Error(t, err)
}

func TestTLSVerification(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	t.Cleanup(server.Close)
	logger, _ := logtest.NewNullLogger()

	strict, err := New("foo-token", server.URL, WithLogger(logger))
	require.NoError(t, err)
	_, err = strict.RetrieveVulnerabilities(context.Background(), testDigest)
	assert.Error(t, err, "self-signed certificate must be rejected")

	insecure, err := New("foo-token", server.URL, WithLogger(logger), WithTLSVerify(false))
	require.NoError(t, err)
	_, err = insecure.RetrieveVulnerabilities(context.Background(), testDigest)
	assert.NoError(t, err)
}
