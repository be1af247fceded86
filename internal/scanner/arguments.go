package scanner

// BuildArguments returns the scan script arguments for imageTag. Optional
// flags appear only when their setting differs from the default, and the
// image tag is always last.
func BuildArguments(cfg BuildConfig, imageTag, dockerfilePath string) []string {
	args := []string{"--format=JSON"}

	if url := cfg.EngineURL(); url != "" && url != DefaultEngineURL {
		args = append(args, "--sysdig-url="+url, "--on-prem")
	}
	if cfg.Debug() {
		args = append(args, "--verbose")
	}
	if dockerfilePath != "" {
		args = append(args, "--dockerfile="+DockerfileMountPath)
	}
	if !cfg.EngineTLSVerify() {
		args = append(args, "--sysdig-skip-tls")
	}

	return append(args, imageTag)
}

// BuildMounts returns the bind mounts of the scan container.
func BuildMounts(dockerfilePath string) []string {
	mounts := []string{DockerSocketMount}
	if dockerfilePath != "" {
		mounts = append(mounts, dockerfilePath+":"+DockerfileMountPath)
	}
	return mounts
}
