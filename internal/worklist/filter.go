// Package worklist implements the DICOM Modality Worklist SCP: association
// negotiation, C-ECHO/C-FIND handling, and the query filter the bridge
// applies against cached orders (§4.6).
package worklist

import (
	"strings"

	"github.com/healthbridge/ormworklist/internal/dcm"
)

// Matches reports whether candidate satisfies the C-FIND request dataset.
//
// Matching rules: sequence-valued request tags are ignored entirely (the
// bridge does not support nested-sequence matching); an empty request
// value for a tag is a universal match and does not constrain the result;
// any value containing "*" matches by substring once every "*" is
// stripped, regardless of where it appears in the pattern; anything else
// requires an exact match. A tag absent from candidate never excludes a
// match — only a present, non-matching value does.
func Matches(request, candidate *dcm.DataSet) bool {
	for _, tag := range request.Tags() {
		if request.IsSequence(tag) {
			continue
		}
		want, _ := request.Get(tag)
		if want == "" {
			continue
		}

		have, present := candidate.Get(tag)
		if !present {
			continue
		}

		if !matchesValue(want, have) {
			return false
		}
	}
	return true
}

func matchesValue(want, have string) bool {
	if !strings.Contains(want, "*") {
		return want == have
	}

	stripped := strings.ReplaceAll(want, "*", "")
	if stripped == "" {
		return true
	}
	return strings.Contains(have, stripped)
}
