// SPDX-License-Identifier: Apache-2.0

package readplan

import (
	"fmt"

	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/opral/lix-sub005/internal/sqlast"
	"github.com/opral/lix-sub005/pkg/lixerrors"
)

// maxPassesPerPhase bounds the fixed-point loop each phase runs to
// (spec §4.5, §8 "Rewrite termination").
const maxPassesPerPhase = 32

// Plan is the result of running a SELECT/EXPLAIN statement through all
// four read-pipeline phases: the rewritten statement and the relations
// the Analyze phase discovered (for logging/debugging).
type Plan struct {
	Statement *sqlast.Statement
	Relations []sqlast.RelationRef
}

// Run executes Analyze, Canonicalize, Optimize, and Lower in sequence,
// each iterated to a fixed point, and validates the result before
// returning it (spec §4.5 "Validator").
func Run(stmt *sqlast.Statement, catalog SchemaCatalog) (*Plan, error) {
	relations, err := sqlast.ValidateWalkersAgree(stmt)
	if err != nil {
		return nil, err
	}

	selNode, ok := stmt.Node().GetNode().(*pgq.Node_SelectStmt)
	if !ok {
		// EXPLAIN and other read-adjacent statements are delegated to the
		// write pipeline's classification; Run only rewrites SELECTs.
		return &Plan{Statement: stmt, Relations: relations}, nil
	}
	sel := selNode.SelectStmt

	if err := iterateToFixedPoint("canonicalize", func() (bool, error) {
		return canonicalizeSelect(sel, catalog)
	}); err != nil {
		return nil, err
	}

	if err := iterateToFixedPoint("optimize", func() (bool, error) {
		return optimizeSelect(sel)
	}); err != nil {
		return nil, err
	}

	if err := iterateToFixedPoint("lower", func() (bool, error) {
		return lowerSelect(sel, catalog)
	}); err != nil {
		return nil, err
	}

	if containsLogicalView(stmt.Node()) {
		return nil, lixerrors.PlanInvariantError{Reason: "logical view identifier survived the Lower phase"}
	}

	if _, err := sqlast.ValidateWalkersAgree(stmt); err != nil {
		return nil, err
	}

	return &Plan{Statement: stmt, Relations: relations}, nil
}

func iterateToFixedPoint(phase string, step func() (bool, error)) error {
	for pass := 0; pass < maxPassesPerPhase; pass++ {
		changed, err := step()
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
	}
	return lixerrors.PlanInvariantError{Reason: fmt.Sprintf("%s phase did not converge within %d passes", phase, maxPassesPerPhase)}
}
