package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

// stdout and stdin are swapped in tests.
var (
	stdout io.Writer = os.Stdout
	stdin  io.Reader = os.Stdin
)

// jsonOutput reports whether the command should print JSON instead of narration.
func jsonOutput(c *cli.Context) bool {
	return c.Bool("json") || len(c.StringSlice("jq")) > 0
}

// newLogger logs to stderr, at debug level with --verbose and errors only otherwise.
func newLogger(c *cli.Context) *slog.Logger {
	level := slog.LevelError
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// outputJSON prints v as indented JSON after running it through every --jq filter.
func outputJSON(c *cli.Context, v interface{}) error {
	filters := c.StringSlice("jq")
	if len(filters) == 0 {
		return writeJSON(stdout, v)
	}

	codes, err := compileJQ(filters)
	if err != nil {
		return err
	}

	// gojq works on plain JSON values, not Go structs.
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode output: %w", err)
	}

	results, err := runJQ(codes, doc)
	if err != nil {
		return err
	}
	for _, r := range results {
		if s, ok := r.(string); ok {
			fmt.Fprintln(stdout, s)
			continue
		}
		if err := writeJSON(stdout, r); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func compileJQ(filters []string) ([]*gojq.Code, error) {
	codes := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		codes[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return codes, nil
}

// runJQ pipes doc through each filter in turn. Every result of one filter is
// fed to the next, like chained jq invocations.
func runJQ(codes []*gojq.Code, doc interface{}) ([]interface{}, error) {
	values := []interface{}{doc}
	for _, code := range codes {
		var next []interface{}
		for _, in := range values {
			iter := code.Run(in)
			for {
				v, ok := iter.Next()
				if !ok {
					break
				}
				if err, isErr := v.(error); isErr {
					return nil, fmt.Errorf("jq filter failed: %w", err)
				}
				next = append(next, v)
			}
		}
		values = next
	}
	return values, nil
}

// matchesJQ reports whether every filter yields a truthy first result for doc.
func matchesJQ(codes []*gojq.Code, doc interface{}) bool {
	for _, code := range codes {
		iter := code.Run(doc)
		v, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := v.(error); isErr {
			return false
		}
		if !isTruthy(v) {
			return false
		}
	}
	return true
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

func printf(format string, args ...interface{}) {
	fmt.Fprintf(stdout, format, args...)
}
