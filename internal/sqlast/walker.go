// SPDX-License-Identifier: Apache-2.0

package sqlast

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opral/lix-sub005/pkg/lixerrors"
)

// ValidateWalkersAgree re-runs relation discovery with both independent
// traversal strategies and errors if they disagree (spec §4.5 Analyze
// phase invariant: "two independent walkers must agree on the set of
// relations a query touches"). The Analyze phase calls this once per
// statement before proceeding to Canonicalize.
func ValidateWalkersAgree(s *Statement) ([]RelationRef, error) {
	a := CollectRelations(s.node)
	b := CollectRelationsWalker(s.node)

	if !relationSetsEqual(a, b) {
		return nil, lixerrors.PlanInvariantError{
			Reason: fmt.Sprintf("relation walkers disagree: select-visitor found %s, stack-walker found %s",
				formatRelations(a), formatRelations(b)),
		}
	}
	return a, nil
}

func relationSetsEqual(a, b []RelationRef) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func formatRelations(rs []RelationRef) string {
	names := make([]string, len(rs))
	for i, r := range rs {
		if r.Alias != "" {
			names[i] = r.Name + " AS " + r.Alias
		} else {
			names[i] = r.Name
		}
	}
	sort.Strings(names)
	return "[" + strings.Join(names, ", ") + "]"
}
