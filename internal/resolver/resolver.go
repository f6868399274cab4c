package resolver

import (
	"fmt"
	"strings"

	"github.com/tyemirov/kiln/internal/targets"
)

const (
	destinationSeparatorConstant            = "/"
	maximumSeparatorCountConstant           = 2
	matchListEntryTemplateConstant          = "    %s\n"
	ambiguousDestinationTemplateConstant    = "%s matches more than one Kiln repository:\n\n%s"
	nearMissDestinationTemplateConstant     = "%s did not exactly match any part of the repository slug:\n\n%s"
	projectGroupJoinWidthConstant           = 2
	projectGroupRepositoryJoinWidthConstant = 3
)

// ResolutionKind classifies the outcome of an alias resolution attempt.
type ResolutionKind string

// Resolution outcome kinds.
const (
	ResolutionResolved  ResolutionKind = "resolved"
	ResolutionAmbiguous ResolutionKind = "ambiguous"
	ResolutionNearMiss  ResolutionKind = "near_miss"
	ResolutionNoMatch   ResolutionKind = "no_match"
)

// Resolution captures the outcome of resolving a destination against a target catalog.
type Resolution struct {
	Kind    ResolutionKind
	URL     string
	Matches []string
}

// AmbiguousDestinationError indicates more than one target matched exactly.
type AmbiguousDestinationError struct {
	Destination string
	Matches     []string
}

// Error enumerates every matching URL.
func (ambiguousError AmbiguousDestinationError) Error() string {
	return fmt.Sprintf(ambiguousDestinationTemplateConstant, ambiguousError.Destination, formatMatchList(ambiguousError.Matches))
}

// NearMissDestinationError indicates prefix matches existed without any exact match.
type NearMissDestinationError struct {
	Destination string
	Matches     []string
}

// Error enumerates the near-miss URLs.
func (nearMissError NearMissDestinationError) Error() string {
	return fmt.Sprintf(nearMissDestinationTemplateConstant, nearMissError.Destination, formatMatchList(nearMissError.Matches))
}

// Resolve classifies the destination against the catalog using exact-then-prefix matching.
//
// Exact matching is gated by the destination's separator count: a bare name is
// compared against each individual slug and the alias list, one separator
// against the project/group and group/repo joins, two separators against the
// full join. Prefix matching is collected for every destination regardless of
// separator count and only consulted when the exact set is empty.
func Resolve(destination string, catalog []targets.Target) Resolution {
	normalizedDestination := targets.Normalize(destination)
	separatorCount := strings.Count(normalizedDestination, destinationSeparatorConstant)

	exactMatches := make([]string, 0)
	prefixMatches := make([]string, 0)

	for _, target := range catalog {
		targetURL := target.URL()
		normalizedSlugs := []string{
			targets.Normalize(target.ProjectSlug),
			targets.Normalize(target.GroupSlug),
			targets.Normalize(target.RepositorySlug),
		}
		projectGroupJoin := strings.Join(normalizedSlugs[:projectGroupJoinWidthConstant], destinationSeparatorConstant)
		groupRepositoryJoin := strings.Join(normalizedSlugs[1:projectGroupRepositoryJoinWidthConstant], destinationSeparatorConstant)
		fullJoin := strings.Join(normalizedSlugs, destinationSeparatorConstant)

		if matchesExactly(normalizedDestination, separatorCount, normalizedSlugs, projectGroupJoin, groupRepositoryJoin, fullJoin, target.Aliases) {
			exactMatches = append(exactMatches, targetURL)
		}

		prefixCandidates := []string{
			normalizedSlugs[0],
			normalizedSlugs[1],
			normalizedSlugs[2],
			projectGroupJoin,
			groupRepositoryJoin,
			fullJoin,
		}
		for _, prefixCandidate := range prefixCandidates {
			if strings.HasPrefix(prefixCandidate, normalizedDestination) {
				prefixMatches = append(prefixMatches, targetURL)
				break
			}
		}
	}

	switch {
	case len(exactMatches) == 1:
		return Resolution{Kind: ResolutionResolved, URL: exactMatches[0], Matches: exactMatches}
	case len(exactMatches) > 1:
		return Resolution{Kind: ResolutionAmbiguous, Matches: exactMatches}
	case len(prefixMatches) > 0:
		return Resolution{Kind: ResolutionNearMiss, Matches: prefixMatches}
	default:
		return Resolution{Kind: ResolutionNoMatch}
	}
}

func matchesExactly(normalizedDestination string, separatorCount int, normalizedSlugs []string, projectGroupJoin string, groupRepositoryJoin string, fullJoin string, aliases []string) bool {
	switch separatorCount {
	case 0:
		for _, normalizedSlug := range normalizedSlugs {
			if normalizedSlug == normalizedDestination {
				return true
			}
		}
		for _, alias := range aliases {
			if targets.Normalize(alias) == normalizedDestination {
				return true
			}
		}
		return false
	case 1:
		return projectGroupJoin == normalizedDestination || groupRepositoryJoin == normalizedDestination
	case maximumSeparatorCountConstant:
		return fullJoin == normalizedDestination
	default:
		return false
	}
}

func formatMatchList(matches []string) string {
	formattedList := strings.Builder{}
	for _, match := range matches {
		formattedList.WriteString(fmt.Sprintf(matchListEntryTemplateConstant, match))
	}
	return formattedList.String()
}
