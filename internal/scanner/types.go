// Package scanner runs the inline image scan inside an ephemeral helper
// container and returns the scan script's JSON result.
package scanner

const (
	// DefaultScanImage is the helper image carrying the inline scan script
	DefaultScanImage = "quay.io/sysdig/secure-inline-scan:2"

	// DefaultEngineURL is the hosted scanning backend
	DefaultEngineURL = "https://secure.sysdig.com"

	// ScanScript is the entrypoint of the scan inside the helper image
	ScanScript = "/sysdig-inline-scan.sh"

	// DockerfileMountPath is where a supplied Dockerfile is bind-mounted
	DockerfileMountPath = "/tmp/Dockerfile"

	// DockerSocketMount exposes the host engine to the scan container
	DockerSocketMount = "/var/run/docker.sock:/var/run/docker.sock"

	// LogDirectory holds the scan script's progress log
	LogDirectory = "/tmp/sysdig-inline-scan/logs"

	// LogFile is tailed while the scan runs
	LogFile = LogDirectory + "/info.log"

	// AddedBy identifies scans started by this tool
	AddedBy = "cicd-inline-scan"

	idleEntrypoint = "cat"
)

// BuildConfig exposes the scan settings read by the executor.
type BuildConfig interface {
	Token() string
	EngineURL() string
	EngineTLSVerify() bool
	Debug() bool
}

// ScanRequest describes one scan. DockerfilePath is empty when no Dockerfile
// accompanies the image.
type ScanRequest struct {
	ImageTag       string
	DockerfilePath string
	Config         BuildConfig
	Environment    map[string]string
}

// Logger receives scan progress. Implementations must be safe for concurrent
// use; tail output arrives from a background goroutine.
type Logger interface {
	LogDebug(msg string)
	LogInfo(msg string)
	LogWarn(msg string)
	LogError(msg string)
}

type nopLogger struct{}

func (nopLogger) LogDebug(string) {}
func (nopLogger) LogInfo(string)  {}
func (nopLogger) LogWarn(string)  {}
func (nopLogger) LogError(string) {}
