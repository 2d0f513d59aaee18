// SPDX-License-Identifier: Apache-2.0

// Package readplan implements the read-side SQL rewrite pipeline (spec
// §4.5): Analyze, Canonicalize, Optimize, and Lower, run to a fixed
// point over a parsed statement. Each phase rewrites the statement's AST
// in place and reports whether it changed anything; the pipeline itself
// only sequences them
// and enforces the convergence and no-logical-leakage invariants.
package readplan
