// Command perfgate runs the buffer benchmarks and fails when ns/op or
// allocs/op regress past a recorded baseline.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

type benchmarkBaseline struct {
	NSOp     float64 `toml:"ns_op"`
	AllocsOp float64 `toml:"allocs_op"`
}

type baselineFile struct {
	Package    string                       `toml:"package"`
	Benchmarks map[string]benchmarkBaseline `toml:"benchmarks"`
}

type benchmarkResult struct {
	NSOp     float64
	AllocsOp float64
}

func main() {
	if err := newRootCommand(os.Stdout, runBenchmarks).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "perf gate:", err)
		os.Exit(2)
	}
}

// benchRunner runs the benchmarks matching pattern in pkg and returns the raw
// go test output.
type benchRunner func(pkg, pattern, benchtime string) (string, error)

func runBenchmarks(pkg, pattern, benchtime string) (string, error) {
	command := exec.Command("go", "test", pkg, "-run", "^$", "-bench", pattern, "-benchmem", "-count=1", "-benchtime="+benchtime) // #nosec G204 -- arguments are passed without shell expansion
	output, err := command.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("benchmark command failed: %w", err)
	}
	return string(output), nil
}

func newRootCommand(out io.Writer, runner benchRunner) *cobra.Command {
	var (
		baselinePath  string
		packagePath   string
		benchtime     string
		maxRegression float64
	)

	cmd := &cobra.Command{
		Use:           "perfgate",
		Short:         "Compare benchmark results against a TOML baseline",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			baseline, err := loadBaseline(baselinePath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("package") && baseline.Package != "" {
				packagePath = baseline.Package
			}

			output, err := runner(packagePath, benchPattern(baseline), benchtime)
			fmt.Fprint(out, output)
			if err != nil {
				return err
			}

			failures := compare(baseline, parseBenchOutput(output), maxRegression)
			if len(failures) == 0 {
				fmt.Fprintln(out, "perf gate: PASS")
				return nil
			}
			fmt.Fprintln(out, "perf gate: FAIL")
			for _, failure := range failures {
				fmt.Fprintf(out, "- %s\n", failure)
			}
			return fmt.Errorf("%d benchmark(s) regressed", len(failures))
		},
	}

	cmd.Flags().StringVar(&baselinePath, "baseline", "tools/perf_baseline.toml", "path to benchmark baseline TOML")
	cmd.Flags().StringVar(&packagePath, "package", "./stomp", "package path for benchmarks")
	cmd.Flags().StringVar(&benchtime, "benchtime", "1s", "go test benchmark duration")
	cmd.Flags().Float64Var(&maxRegression, "max-regression", 10.0, "max allowed regression percentage")
	return cmd
}

func loadBaseline(path string) (baselineFile, error) {
	baseline := baselineFile{}
	data, err := os.ReadFile(path) // #nosec G304 -- path is provided by the CI operator
	if err != nil {
		return baseline, fmt.Errorf("read baseline: %w", err)
	}
	if err := toml.Unmarshal(data, &baseline); err != nil {
		return baseline, fmt.Errorf("parse baseline: %w", err)
	}
	if len(baseline.Benchmarks) == 0 {
		return baseline, fmt.Errorf("baseline %s has no benchmarks", path)
	}
	return baseline, nil
}

func benchPattern(baseline baselineFile) string {
	names := make([]string, 0, len(baseline.Benchmarks))
	for name := range baseline.Benchmarks {
		names = append(names, regexp.QuoteMeta(name))
	}
	sort.Strings(names)
	return "^(" + strings.Join(names, "|") + ")$"
}

// parseBenchOutput reads lines of the form
// BenchmarkName-8  N  ns/op  B/op  allocs/op.
func parseBenchOutput(output string) map[string]benchmarkResult {
	results := map[string]benchmarkResult{}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 || !strings.HasPrefix(fields[0], "Benchmark") {
			continue
		}
		name := fields[0]
		if dash := strings.LastIndex(name, "-"); dash > 0 {
			if _, err := strconv.Atoi(name[dash+1:]); err == nil {
				name = name[:dash]
			}
		}

		var result benchmarkResult
		hasNSOp, hasAllocsOp := false, false
		for i := 0; i < len(fields)-1; i++ {
			parsed, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			switch fields[i+1] {
			case "ns/op":
				result.NSOp, hasNSOp = parsed, true
			case "allocs/op":
				result.AllocsOp, hasAllocsOp = parsed, true
			}
		}
		if hasNSOp && hasAllocsOp && result.NSOp > 0 {
			results[name] = result
		}
	}
	return results
}

func compare(baseline baselineFile, results map[string]benchmarkResult, maxRegression float64) []string {
	factor := 1.0 + maxRegression/100.0
	failures := []string{}
	for name, expected := range baseline.Benchmarks {
		actual, ok := results[name]
		if !ok {
			failures = append(failures, fmt.Sprintf("missing benchmark result: %s", name))
			continue
		}

		maxNS := expected.NSOp * factor
		if actual.NSOp > maxNS {
			failures = append(failures, fmt.Sprintf("%s ns/op regression: baseline %.2f, actual %.2f, max %.2f", name, expected.NSOp, actual.NSOp, maxNS))
		}
		maxAllocs := expected.AllocsOp * factor
		if actual.AllocsOp > maxAllocs {
			failures = append(failures, fmt.Sprintf("%s allocs/op regression: baseline %.2f, actual %.2f, max %.2f", name, expected.AllocsOp, actual.AllocsOp, maxAllocs))
		}
	}
	sort.Strings(failures)
	return failures
}
