// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/opral/lix-sub005/pkg/lixerrors"
)

// Binder normalizes mixed placeholder syntax (`?`, `?N`, `$N`) into a
// dense, dialect-specific parameter list (spec §4.1).
//
// Binding the same (sql, params) state twice must yield the same dense
// parameter list and lowered SQL (spec §8 "Placeholder round-trip").
type Binder struct {
	dialect Dialect
}

func NewBinder(dialect Dialect) *Binder {
	return &Binder{dialect: dialect}
}

// BoundStatement is the output of normalizing placeholders: the rewritten
// SQL text plus the dense parameter list in source-binding order.
type BoundStatement struct {
	SQL    string
	Params []Value
}

// Bind rewrites `sql`'s placeholders into the Binder's dialect form,
// coalescing duplicate source indices (e.g. repeated `?1` or `$1`) into a
// single dense parameter.
func (b *Binder) Bind(sql string, params []Value) (BoundStatement, error) {
	var out strings.Builder
	out.Grow(len(sql))

	// sourceIndex -> dense position (1-based) in the output parameter list.
	seen := make(map[int]int)
	var dense []Value
	autoNext := 1

	runes := []rune(sql)
	inSingleQuote := false
	for i := 0; i < len(runes); i++ {
		c := runes[i]

		if c == '\'' && !inSingleQuote {
			inSingleQuote = true
			out.WriteRune(c)
			continue
		}
		if c == '\'' && inSingleQuote {
			inSingleQuote = false
			out.WriteRune(c)
			continue
		}
		if inSingleQuote {
			out.WriteRune(c)
			continue
		}

		if c == '?' || c == '$' {
			j := i + 1
			for j < len(runes) && runes[j] >= '0' && runes[j] <= '9' {
				j++
			}
			hasDigits := j > i+1

			var sourceIdx int
			if hasDigits {
				n, err := strconv.Atoi(string(runes[i+1 : j]))
				if err != nil {
					return BoundStatement{}, lixerrors.InvalidArgumentError{Reason: "malformed placeholder index"}
				}
				sourceIdx = n
			} else if c == '?' {
				sourceIdx = autoNext
				autoNext++
			} else {
				return BoundStatement{}, lixerrors.InvalidArgumentError{Reason: "unsupported placeholder format: bare '$'"}
			}

			if sourceIdx < 1 || sourceIdx > len(params) {
				return BoundStatement{}, lixerrors.InvalidArgumentError{
					Reason: fmt.Sprintf("placeholder index %d out of range for %d params", sourceIdx, len(params)),
				}
			}

			denseIdx, ok := seen[sourceIdx]
			if !ok {
				dense = append(dense, params[sourceIdx-1])
				denseIdx = len(dense)
				seen[sourceIdx] = denseIdx
			}

			out.WriteString(b.placeholder(denseIdx))
			i = j - 1
			continue
		}

		out.WriteRune(c)
	}

	if len(sql) > 0 && strings.TrimSpace(sql) == "" {
		return BoundStatement{}, lixerrors.InvalidArgumentError{Reason: "empty SQL placeholder"}
	}

	return BoundStatement{SQL: out.String(), Params: dense}, nil
}

func (b *Binder) placeholder(denseIdx int) string {
	switch b.dialect {
	case Postgres:
		return "$" + strconv.Itoa(denseIdx)
	default:
		return "?" + strconv.Itoa(denseIdx)
	}
}
