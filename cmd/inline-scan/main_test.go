package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/threatflux/inlineScanRunnerGo/internal/config"
)

const testDigest = "sha256:0f3e1c1ad4b0a6c5f3fcbcf1b9b5fd2bd2c4b1bd4c2b7e3c5d8a9e0f1a2b3c4d"

// execute runs the root command and returns stdout
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	var stdout, stderr bytes.Buffer
	root := newRootCommand()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func backend(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	t.Setenv("ISCAN_SYSDIG_TOKEN", "foo-token")
	t.Setenv("ISCAN_SYSDIG_URL", server.URL)
	t.Setenv("ISCAN_LOGGING_LEVEL", "error")
}

func TestEncryptToken(t *testing.T) {
	out, err := execute(t, "", "encrypt-token", "foo-token", "--key", "passphrase")
	require.NoError(t, err)

	encrypted := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(encrypted, "enc:"))

	plain, err := config.DecryptValue(encrypted, "passphrase")
	require.NoError(t, err)
	assert.Equal(t, "foo-token", plain)
}

func TestEncryptTokenFromStdin(t *testing.T) {
	t.Setenv("ISCAN_SECURITY_ENCRYPTION_KEY", "passphrase")

	out, err := execute(t, "foo-token\n", "encrypt-token")
	require.NoError(t, err)

	plain, err := config.DecryptValue(strings.TrimSpace(out), "passphrase")
	require.NoError(t, err)
	assert.Equal(t, "foo-token", plain)
}

func TestEncryptTokenErrors(t *testing.T) {
	t.Setenv("ISCAN_SECURITY_ENCRYPTION_KEY", "")

	_, err := execute(t, "", "encrypt-token", "foo-token")
	assert.ErrorIs(t, err, config.ErrEnvVarEmpty)

	_, err = execute(t, "", "encrypt-token", "--key", "passphrase")
	assert.Error(t, err)
}

func TestReport(t *testing.T) {
	backend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/scanning/v1/anchore/images/"+testDigest+"/check", r.URL.Path)
		assert.Equal(t, "foo:latest", r.URL.Query().Get("tag"))
		assert.Equal(t, "Bearer foo-token", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `[{"status":"pass"}]`)
	})

	out, err := execute(t, "", "report", "foo:latest", testDigest)
	require.NoError(t, err)

	var results []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.Equal(t, "pass", results[0]["status"])
}

func TestReportVulnerabilities(t *testing.T) {
	backend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/scanning/v1/anchore/images/"+testDigest+"/vuln/all", r.URL.Path)
		_, _ = io.WriteString(w, `{"vulnerabilities":[]}`)
	})

	out, err := execute(t, "", "report", "--vulnerabilities", "foo:latest", testDigest)
	require.NoError(t, err)
	assert.JSONEq(t, `{"vulnerabilities":[]}`, out)
}

func TestReportBackendError(t *testing.T) {
	backend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "image not found")
	})

	_, err := execute(t, "", "report", "foo:latest", testDigest)
	assert.EqualError(t, err, "Retrieve check results - HTTP 404: image not found")
}

func TestSubmit(t *testing.T) {
	dockerfile := filepath.Join(t.TempDir(), "Dockerfile")
	require.NoError(t, os.WriteFile(dockerfile, []byte("FROM alpine\n"), 0o600))

	backend(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "foo:latest", body["tag"])
		assert.Equal(t, "FROM alpine\n", body["dockerfile"])
		assert.Equal(t, map[string]interface{}{"added-by": "cicd-inline-scan"}, body["annotations"])
		_, _ = io.WriteString(w, `[{"imageDigest":"`+testDigest+`"}]`)
	})

	out, err := execute(t, "", "submit", "foo:latest", "--dockerfile", dockerfile)
	require.NoError(t, err)
	assert.Equal(t, testDigest+"\n", out)
}

func TestMissingTokenFailsConfig(t *testing.T) {
	t.Setenv("ISCAN_SYSDIG_TOKEN", "")

	_, err := execute(t, "", "report", "foo:latest", testDigest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestScanArguments(t *testing.T) {
	_, err := execute(t, "", "scan")
	assert.Error(t, err)

	_, err = execute(t, "", "scan", "foo:latest", "--dockerfile", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read Dockerfile")

	_, err = execute(t, "", "scan", "foo:latest", "--dockerfile", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")
}

func TestScanDockerfileFromEnvironment(t *testing.T) {
	t.Setenv("ISCAN_DOCKERFILE", filepath.Join(t.TempDir(), "missing"))

	_, err := execute(t, "", "scan", "foo:latest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read Dockerfile")
}

func TestResolveDockerfile(t *testing.T) {
	path, err := resolveDockerfile("")
	require.NoError(t, err)
	assert.Empty(t, path)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM alpine\n"), 0o600))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	path, err = resolveDockerfile("Dockerfile")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, "Dockerfile", filepath.Base(path))
}
