// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opral/lix-sub005/cmd/flags"
	"github.com/opral/lix-sub005/internal/backend"
	"github.com/opral/lix-sub005/pkg/engine"
)

func sqlCmd() *cobra.Command {
	sqlCmd := &cobra.Command{
		Use:   "sql",
		Short: "Run SQL statements against a lix database",
	}

	sqlCmd.AddCommand(sqlExecuteCmd())

	return sqlCmd
}

func sqlExecuteCmd() *cobra.Command {
	executeCmd := &cobra.Command{
		Use:   "execute <sql|->",
		Short: "Execute a single SQL statement and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sqlText, err := readStatement(args[0])
			if err != nil {
				return fmt.Errorf("reading statement: %w", err)
			}

			ctx := cmd.Context()
			e, err := NewEngine(ctx)
			if err != nil {
				return fmt.Errorf("opening engine: %w", err)
			}
			defer e.Close()

			result, err := e.Execute(ctx, sqlText, nil, engine.ExecuteOptions{})
			if err != nil {
				return fmt.Errorf("executing statement: %w", err)
			}

			return printResult(cmd.OutOrStdout(), result, flags.Format())
		},
	}

	return executeCmd
}

// readStatement reads the SQL text from arg, which is either the literal
// statement or "-" to read it from stdin (spec §6 "CLI boundary").
func readStatement(arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	b, err := io.ReadAll(bufio.NewReader(os.Stdin))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func printResult(w io.Writer, result *engine.QueryResult, format string) error {
	if format == "json" {
		return printResultJSON(w, result)
	}
	return printResultTable(w, result)
}

func printResultJSON(w io.Writer, result *engine.QueryResult) error {
	rows := make([]map[string]any, 0, len(result.Rows))
	for _, row := range result.Rows {
		record := make(map[string]any, len(result.Columns))
		for i, col := range result.Columns {
			record[col] = valueToAny(row[i])
		}
		rows = append(rows, record)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func printResultTable(w io.Writer, result *engine.QueryResult) error {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	defer tw.Flush()

	if len(result.Columns) == 0 {
		fmt.Fprintln(tw, "OK")
		return nil
	}

	fmt.Fprintln(tw, strings.Join(result.Columns, "\t"))
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = valueToString(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return nil
}

func valueToAny(v backend.Value) any {
	switch v.Kind {
	case backend.KindNull:
		return nil
	case backend.KindInteger:
		return v.Integer
	case backend.KindReal:
		return v.Real
	case backend.KindBoolean:
		return v.Boolean
	case backend.KindBlob:
		return v.Blob
	default:
		return v.Text
	}
}

func valueToString(v backend.Value) string {
	if v.IsNull() {
		return "NULL"
	}
	switch v.Kind {
	case backend.KindInteger:
		return fmt.Sprintf("%d", v.Integer)
	case backend.KindReal:
		return fmt.Sprintf("%v", v.Real)
	case backend.KindBoolean:
		return fmt.Sprintf("%t", v.Boolean)
	case backend.KindBlob:
		return fmt.Sprintf("<%d bytes>", len(v.Blob))
	default:
		return v.Text
	}
}
