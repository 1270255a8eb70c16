// Package normalizer maps raw upstream snapshots onto the canonical server status.
package normalizer

import (
	"github.com/woozymasta/mcwatch/internal/errs"
	"github.com/woozymasta/mcwatch/internal/models"
)

// Normalize converts a snapshot into a Status for the given edition and query
// mode. The result is always built from scratch, so fields that belong to
// another edition or mode are nil rather than carried over.
func Normalize(snap *models.Snapshot, edition models.Edition, query bool) (models.Status, error) {
	if !edition.Valid() {
		return models.Status{}, errs.New(errs.CodeInvalidRequest, "unknown edition "+string(edition))
	}
	if query && edition == models.EditionBedrock {
		return models.Status{}, errs.New(errs.CodeInvalidRequest, "query mode is not available for bedrock servers")
	}
	if snap == nil {
		return models.Status{}, errs.New(errs.CodeMalformedSnapshot, "empty snapshot")
	}
	if snap.Online == nil {
		return models.Status{}, errs.New(errs.CodeMalformedSnapshot, "snapshot is missing online")
	}
	if snap.Players == nil || snap.Players.Online == nil || snap.Players.Max == nil {
		return models.Status{}, errs.New(errs.CodeMalformedSnapshot, "snapshot is missing players")
	}

	status := models.Status{
		Online:   *snap.Online,
		Players:  models.Players{Online: *snap.Players.Online, Max: *snap.Players.Max},
		Version:  cloneString(snap.Version),
		Host:     snap.Host,
		Port:     snap.Port.IPv4,
		Protocol: snap.Protocol,
	}
	if snap.Motd != nil {
		status.Motd = *snap.Motd
	}

	switch edition {
	case models.EditionJava:
		java := &models.JavaFields{
			Software: cloneString(snap.Software),
			Favicon:  cloneString(snap.Favicon),
			Ping:     cloneInt64(snap.Ping),
		}
		if query {
			java.Query = &models.QueryFields{
				IP:      deref(snap.IP),
				Map:     deref(snap.Map),
				Plugins: clonePlugins(snap.Plugins),
			}
		}
		status.Java = java

	case models.EditionBedrock:
		status.Bedrock = &models.BedrockFields{
			EditionName: deref(snap.Edition),
			Gamemode:    deref(snap.Gamemode),
			GUID:        deref(snap.GUID),
		}
	}

	return status, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt64(n *int64) *int64 {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}

// clonePlugins never returns nil so that query mode always serializes a list.
func clonePlugins(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
