package buildinfo

import "time"

// Set via -ldflags at build time
var (
	BuildTime  string // when the binary was compiled
	CommitHash string // short git commit hash
)

// StartTime is recorded when the process starts
var StartTime = time.Now().UTC().Format(time.RFC3339)

// Info describes the running binary for the health endpoint
func Info() map[string]string {
	info := map[string]string{
		"started": StartTime,
		"commit":  "dev",
	}
	if CommitHash != "" {
		info["commit"] = CommitHash
	}
	if BuildTime != "" {
		info["built"] = BuildTime
	}
	return info
}
