// Package buildinfo carries version data stamped by the linker:
//
//	go build -ldflags "-X github.com/m3rciful/exchangebot/core/buildinfo.Version=v0.3.0 \
//	  -X github.com/m3rciful/exchangebot/core/buildinfo.Commit=$(git rev-parse --short HEAD)"
package buildinfo

import "runtime/debug"

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Revision returns Commit, or the VCS revision embedded by the go tool
// when the linker flag was not set.
func Revision() string {
	if Commit != "" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "local"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return s.Value[:7]
		}
	}
	return "local"
}
