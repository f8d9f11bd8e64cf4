package packager

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// numberTokenPattern matches $Number$ and its width-specifier form,
// $Number%0Nd$, per spec.md §6's segment-template token rules.
var numberTokenPattern = regexp.MustCompile(`\$Number(%0(\d+)d)?\$`)

// ValidateSegmentTemplate checks tmpl against spec.md §6's rules: it must
// contain at least one of $Number$ or $Time$ but not both; $RepresentationID$
// is forwarded verbatim (no validation beyond presence); a $Number%0Nd$
// width specifier's N must parse as a positive integer.
func ValidateSegmentTemplate(tmpl string) error {
	hasTime := strings.Contains(tmpl, "$Time$")
	numberMatches := numberTokenPattern.FindAllStringSubmatch(tmpl, -1)
	hasNumber := len(numberMatches) > 0

	if !hasNumber && !hasTime {
		return fmt.Errorf("packager: segment_template %q must contain $Number$ or $Time$", tmpl)
	}
	if hasNumber && hasTime {
		return fmt.Errorf("packager: segment_template %q must not contain both $Number$ and $Time$", tmpl)
	}

	for _, m := range numberMatches {
		width := m[2]
		if width == "" {
			continue
		}
		n, err := strconv.Atoi(width)
		if err != nil || n <= 0 {
			return fmt.Errorf("packager: segment_template %q has invalid $Number%%0Nd$ width %q: must be a positive integer", tmpl, width)
		}
	}

	return nil
}

// ExpandSegmentNumber substitutes $Number$/$Number%0Nd$ in tmpl with
// segmentNumber, honoring the width specifier when present.
func ExpandSegmentNumber(tmpl string, segmentNumber uint32) string {
	return numberTokenPattern.ReplaceAllStringFunc(tmpl, func(tok string) string {
		m := numberTokenPattern.FindStringSubmatch(tok)
		width := m[2]
		if width == "" {
			return strconv.FormatUint(uint64(segmentNumber), 10)
		}
		n, _ := strconv.Atoi(width)
		return fmt.Sprintf("%0*d", n, segmentNumber)
	})
}

// ExpandSegmentTime substitutes $Time$ in tmpl with startTime (the
// segment's start time in the track's time-scale units, per spec.md §6).
func ExpandSegmentTime(tmpl string, startTime uint64) string {
	return strings.ReplaceAll(tmpl, "$Time$", strconv.FormatUint(startTime, 10))
}
