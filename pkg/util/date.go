package util

import (
	"sort"
	"strings"
	"time"
)

const (
	artifactPrefix = "price_history_"
	artifactSuffix = ".json"
	dateLayout     = "2006-01-02"
)

// ArtifactName returns the file name of the per-date artifact.
func ArtifactName(date string) string {
	return artifactPrefix + date + artifactSuffix
}

// DateFromArtifact extracts YYYY-MM-DD from an artifact file name or URL
// path. Returns false for anything else.
func DateFromArtifact(name string) (string, bool) {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if !strings.HasPrefix(name, artifactPrefix) || !strings.HasSuffix(name, artifactSuffix) {
		return "", false
	}
	date := strings.TrimSuffix(strings.TrimPrefix(name, artifactPrefix), artifactSuffix)
	if _, err := time.Parse(dateLayout, date); err != nil {
		return "", false
	}
	return date, true
}

// DatesAfter returns the sorted, de-duplicated dates strictly after since.
// An empty since keeps every date.
func DatesAfter(dates []string, since string) []string {
	seen := make(map[string]struct{}, len(dates))
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		if since == "" || d > since {
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}
