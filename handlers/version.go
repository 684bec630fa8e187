package handlers

import (
	"net/http"
	"os"
	"strings"
	"sync"
)

// Version may be set at build time with -ldflags "-X marquee/handlers.Version=...".
var Version string

var (
	resolvedVersion string
	versionOnce     sync.Once
)

type VersionResponse struct {
	Version string `json:"version"`
}

// CurrentVersion returns the build version, falling back to version.txt and
// then "unknown". The result is cached.
func CurrentVersion() string {
	versionOnce.Do(func() {
		if v := strings.TrimSpace(Version); v != "" {
			resolvedVersion = v
			return
		}
		for _, path := range []string{"version.txt", "/app/version.txt"} {
			if data, err := os.ReadFile(path); err == nil {
				resolvedVersion = strings.TrimSpace(string(data))
				return
			}
		}
		resolvedVersion = "unknown"
	})
	return resolvedVersion
}

func GetVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: CurrentVersion()})
}
