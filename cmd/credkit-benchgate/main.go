// Command credkit-benchgate compares two `go test -bench` outputs and fails
// when a tracked hot-path benchmark regresses past a threshold.
//
//	go test -run '^$' -bench . -count 6 . > new.txt
//	credkit-benchgate -baseline old.txt -candidate new.txt
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

const defaultThreshold = 0.30

// defaultTracked are the per-request credential checks plus the two-factor
// round trip.
var defaultTracked = map[string][]string{
	"BenchmarkAuthenticateAPIKey":     {"ns/op", "allocs/op"},
	"BenchmarkTouchSession":           {"ns/op", "allocs/op"},
	"BenchmarkSendAndVerifyTwoFactor": {"ns/op"},
}

// samples maps benchmark name -> unit -> observed values.
type samples map[string]map[string][]float64

type comparison struct {
	Benchmark string
	Unit      string
	Baseline  float64
	Candidate float64
}

func (c comparison) delta() float64 {
	return (c.Candidate - c.Baseline) / c.Baseline
}

func main() {
	var (
		baselinePath  string
		candidatePath string
		threshold     float64
	)
	flag.StringVar(&baselinePath, "baseline", "", "benchmark output of the reference build")
	flag.StringVar(&candidatePath, "candidate", "", "benchmark output of the build under test")
	flag.Float64Var(&threshold, "threshold", defaultThreshold, "allowed regression ratio (0.30 = +30%)")
	flag.Parse()

	if baselinePath == "" || candidatePath == "" {
		fmt.Fprintln(os.Stderr, "-baseline and -candidate are required")
		os.Exit(2)
	}
	if threshold < 0 {
		fmt.Fprintln(os.Stderr, "-threshold must be >= 0")
		os.Exit(2)
	}

	baseline, err := readFile(baselinePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "baseline: %v\n", err)
		os.Exit(1)
	}
	candidate, err := readFile(candidatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "candidate: %v\n", err)
		os.Exit(1)
	}

	results, problems := compare(defaultTracked, baseline, candidate)
	fmt.Println("benchmark unit baseline candidate delta")
	for _, r := range results {
		fmt.Printf("%s %s %.3f %.3f %+0.2f%%\n", r.Benchmark, r.Unit, r.Baseline, r.Candidate, r.delta()*100)
		if r.delta() > threshold {
			problems = append(problems, fmt.Sprintf("%s %s regressed by %+0.2f%% (limit %+0.2f%%)",
				r.Benchmark, r.Unit, r.delta()*100, threshold*100))
		}
	}

	if len(problems) > 0 {
		fmt.Fprintln(os.Stderr, "benchmark gate failed:")
		for _, p := range problems {
			fmt.Fprintf(os.Stderr, "  - %s\n", p)
		}
		os.Exit(1)
	}
}

// compare pairs the median of every tracked metric. Missing or zero
// baselines are reported as problems instead of comparisons.
func compare(tracked map[string][]string, baseline, candidate samples) ([]comparison, []string) {
	names := make([]string, 0, len(tracked))
	for name := range tracked {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		out      []comparison
		problems []string
	)
	for _, name := range names {
		for _, unit := range tracked[name] {
			b, c := baseline[name][unit], candidate[name][unit]
			if len(b) == 0 || len(c) == 0 {
				problems = append(problems, fmt.Sprintf("no samples for %s %s", name, unit))
				continue
			}
			bm := median(b)
			if bm <= 0 {
				problems = append(problems, fmt.Sprintf("zero baseline for %s %s", name, unit))
				continue
			}
			out = append(out, comparison{Benchmark: name, Unit: unit, Baseline: bm, Candidate: median(c)})
		}
	}
	return out, problems
}

func readFile(path string) (samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f)
}

// parse reads standard benchmark lines:
//
//	BenchmarkTouchSession-8   50000   23110 ns/op   1840 B/op   31 allocs/op
func parse(r io.Reader) (samples, error) {
	out := samples{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
			continue
		}
		name := trimProcs(fields[0])
		units, ok := out[name]
		if !ok {
			units = map[string][]float64{}
			out[name] = units
		}
		for i := 2; i+1 < len(fields); i += 2 {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			units[fields[i+1]] = append(units[fields[i+1]], v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("no benchmark lines found")
	}
	return out, nil
}

// trimProcs drops the -GOMAXPROCS suffix the testing package appends.
func trimProcs(name string) string {
	if i := strings.LastIndexByte(name, '-'); i > 0 {
		if _, err := strconv.Atoi(name[i+1:]); err == nil {
			return name[:i]
		}
	}
	return name
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
