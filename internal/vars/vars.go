// Package vars exposes build metadata injected with -ldflags, falling back to
// the VCS stamp the Go toolchain embeds.
package vars

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"strconv"
	"text/tabwriter"
	"time"
)

// License of the project
const License = "AGPL-3.0"

var (
	// Name of the project
	Name = "mcwatch"

	// Version is the git tag, e.g. v1.2.3
	Version = "dev"

	// Commit is the full or short git SHA
	Commit = "unknown"

	// Revision is the commit count
	Revision = 0

	// BuildTime in UTC
	BuildTime = time.Unix(0, 0).UTC()

	// URL of the repository
	URL = "https://github.com/woozymasta/mcwatch"

	// StartedAt is when the process loaded this package.
	StartedAt = time.Now().UTC()

	_revision  string
	_buildTime string
)

// BuildInfo is the payload of the version endpoint.
type BuildInfo struct {
	// betteralign:ignore

	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Commit      string    `json:"commit"`
	CommitShort string    `json:"commit_short,omitempty"`
	Revision    int       `json:"revision,omitempty"`
	BuildTime   time.Time `json:"build_time,omitempty"`
	GoVersion   string    `json:"go_version"`
	Uptime      string    `json:"uptime"`
	URL         string    `json:"url,omitempty"`
	License     string    `json:"license,omitempty"`
}

func init() {
	if n, err := strconv.Atoi(_revision); err == nil {
		Revision = n
	}

	if _buildTime != "" {
		if t, err := time.Parse(time.RFC3339, _buildTime); err == nil {
			BuildTime = t.UTC()
		}
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		fromBuildSettings(info.Settings)
	}
}

// fromBuildSettings fills Commit and BuildTime from the toolchain VCS stamp
// when the linker did not set them.
func fromBuildSettings(settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if Commit == "unknown" && s.Value != "" {
				Commit = s.Value
			}
		case "vcs.time":
			if _buildTime != "" {
				continue
			}
			if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
				BuildTime = t.UTC()
			}
		}
	}
}

// Print writes the build information to w.
func Print(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	_, _ = fmt.Fprintf(tw, "name:\t%s\n", Name)
	_, _ = fmt.Fprintf(tw, "url:\t%s\n", URL)
	_, _ = fmt.Fprintf(tw, "file:\t%s\n", os.Args[0])
	_, _ = fmt.Fprintf(tw, "version:\t%s\n", Version)
	_, _ = fmt.Fprintf(tw, "commit:\t%s\n", Commit)
	_, _ = fmt.Fprintf(tw, "revision:\t%d\n", Revision)
	_, _ = fmt.Fprintf(tw, "built:\t%s\n", BuildTime.Format(time.RFC3339))
	_, _ = fmt.Fprintf(tw, "go:\t%s\n", runtime.Version())
	_, _ = fmt.Fprintf(tw, "license:\t%s\n", License)
	_ = tw.Flush()
}

// Info returns the current build metadata and process uptime.
func Info() BuildInfo {
	return BuildInfo{
		Name:        Name,
		Version:     Version,
		Commit:      Commit,
		CommitShort: CommitShort(),
		Revision:    Revision,
		BuildTime:   BuildTime,
		GoVersion:   runtime.Version(),
		Uptime:      time.Since(StartedAt).Truncate(time.Second).String(),
		URL:         URL,
		License:     License,
	}
}

// UserAgent identifies the service to the upstream status provider.
func UserAgent() string {
	return fmt.Sprintf("%s/%s (+%s)", Name, Version, URL)
}

// CommitShort returns the first 7 characters of the git commit hash.
func CommitShort() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}

	return Commit
}
