// spmvbench calibrates machine performance models, predicts the minimum time
// of a distributed sparse matrix-vector multiply on a 1D-partitioned
// tridiagonal test matrix, then measures the registered SpMV backends against
// that prediction.
//
// The process group runs in-process: every rank is a goroutine over a
// comm/local group, so a multi-rank run needs no launcher.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/spmvbench/spmvbench/backends"
	_ "github.com/spmvbench/spmvbench/backends/native"
	_ "github.com/spmvbench/spmvbench/backends/parallel"
	_ "github.com/spmvbench/spmvbench/backends/vendorlibs"
	"github.com/spmvbench/spmvbench/comm"
	"github.com/spmvbench/spmvbench/comm/local"
	"github.com/spmvbench/spmvbench/costmodel"
	"github.com/spmvbench/spmvbench/harness"
	"github.com/spmvbench/spmvbench/perfmodel"
	"github.com/spmvbench/spmvbench/report"
	"github.com/spmvbench/spmvbench/sparse"
)

var (
	flagRows    = flag.Int64("rows", 1_000_000, "global rows of the tridiagonal test matrix")
	flagRanks   = flag.Int("ranks", 4, "size of the in-process rank group")
	flagNRepeat = flag.Int("nrepeat", 100, "repetitions per calibration measurement")
	flagMaxLog2 = flag.Int("maxlog2", 30,
		"cap on the largest calibration bucket, as log2(bytes); table sizes are derived from the matrix")
	flagTrials  = flag.Int("trials", 100, "timed trials per backend")
	flagBackends = flag.String("backends", "native,parallel",
		"comma-separated backends to benchmark; unavailable ones are skipped with a warning")
	flagReference = flag.String("reference", "native",
		"backend whose output is the correctness baseline")
	flagCheckNorms = flag.Bool("report_error_norms", true,
		"compare every trial's output against the reference baseline")
	flagTolerance = flag.Float64("tolerance", 0,
		"relative error-norm tolerance; 0 selects the default")
	flagSeed = flag.Int64("seed", 0,
		"seed for the trial-order shuffle; 0 seeds from the clock")
	flagVerboseModel = flag.Bool("verbosemodel", false,
		"dump the raw calibration tables")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagRanks < 1 {
		klog.Exitf("-ranks must be at least 1, got %d", *flagRanks)
	}

	group := local.NewGroup(*flagRanks)
	errs := make([]error, *flagRanks)
	var wg sync.WaitGroup
	for rank, endpoint := range group {
		wg.Add(1)
		go func(rank int, c *local.Endpoint) {
			defer wg.Done()
			errs[rank] = run(c)
		}(rank, endpoint)
	}
	wg.Wait()
	for rank, err := range errs {
		if err != nil {
			klog.Exitf("rank %d: %+v", rank, err)
		}
	}
}

// run is one rank's whole benchmark: calibrate, predict, measure, and (on
// rank 0) report.
func run(c comm.Comm) error {
	a, err := sparse.Tridiagonal[float64](c, *flagRows)
	if err != nil {
		return err
	}

	models, err := calibrate(c, a)
	if err != nil {
		return err
	}

	breakdown, err := costmodel.Estimate(c, models, a)
	if err != nil {
		return errors.WithMessage(err, "cost estimate")
	}

	x := make(sparse.View[float64], a.Local.NumCols)
	for i := 0; i < a.Local.NumRows; i++ {
		x[i] = math.Sin(float64(a.RowOffset + int64(i)))
	}
	y := make(sparse.View[float64], a.Local.NumRows)
	prob := backends.Problem{Comm: c, A: a, X: x, Y: y}

	timers := harness.NewTimerRegistry()
	h := harness.New(prob, timers, harness.Config{
		CheckNorms: *flagCheckNorms,
		Tolerance:  *flagTolerance,
		Seed:       *flagSeed,
	})
	defer h.Finalize()

	for _, name := range strings.Split(*flagBackends, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		err := h.Add(name)
		if errors.Is(err, backends.ErrNotAvailable) {
			if c.Rank() == 0 {
				klog.Warningf("skipping backend %s: %s", name, backends.UnavailableReason(name))
			}
			continue
		}
		if err != nil {
			return errors.WithMessagef(err, "constructing backend %s", name)
		}
	}

	if *flagCheckNorms {
		if err := h.ComputeBaseline(*flagReference); err != nil {
			return err
		}
	}
	if err := h.RunTrials(*flagTrials); err != nil {
		return err
	}

	if c.Rank() == 0 {
		printReport(timers, breakdown, models, h.Divergences())
	}
	c.Barrier()
	return nil
}

// calibrate builds the performance model tables: stream and launch latency
// always, ping-pong and halo exchange only when there is more than one rank.
// Table sizes come from the matrix itself (group-max reduced, so all ranks
// build the same buckets), with -maxlog2 as a cap.
func calibrate(c comm.Comm, a *sparse.Matrix[float64]) (*perfmodel.Models, error) {
	streamLog2, msgLog2 := costmodel.CalibrationBuckets(c, a)
	streamLog2 = min(streamLog2, *flagMaxLog2)
	msgLog2 = min(msgLog2, *flagMaxLog2)

	models := perfmodel.New(c)
	if c.Rank() == 0 {
		models.Progress = newProgressReporter()
	}
	if err := models.StreamVectorMakeTable(*flagNRepeat, streamLog2); err != nil {
		return nil, errors.WithMessage(err, "stream calibration")
	}
	if c.Size() > 1 {
		if err := models.PingpongMakeTable(*flagNRepeat, msgLog2); err != nil {
			return nil, errors.WithMessage(err, "pingpong calibration")
		}
	}
	if a.Plan != nil {
		if err := models.HalopongMakeTable(*flagNRepeat, msgLog2, a.Plan); err != nil {
			return nil, errors.WithMessage(err, "halo calibration")
		}
	}
	return models, nil
}

// newProgressReporter adapts the per-bucket calibration callback to one
// progress bar per table.
func newProgressReporter() func(label string, bucket, total int) {
	bars := make(map[string]*progressbar.ProgressBar)
	return func(label string, bucket, total int) {
		bar, found := bars[label]
		if !found {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription(label),
				progressbar.OptionClearOnFinish(),
				progressbar.OptionSetWriter(os.Stderr),
			)
			bars[label] = bar
		}
		must.M(bar.Set(bucket))
	}
}

func printReport(timers *harness.TimerRegistry, breakdown *costmodel.Breakdown,
	models *perfmodel.Models, divs []harness.Divergence) {
	fmt.Println()
	fmt.Println("Measured backend timings:")
	report.WriteTimings(os.Stdout, timers)
	fmt.Println("Modeled per-array streaming costs:")
	report.WriteArrayCosts(os.Stdout, breakdown)
	fmt.Println("Predicted scenario times and backend efficiency:")
	report.WriteEfficiency(os.Stdout, timers, breakdown)
	if *flagCheckNorms {
		report.WriteDivergences(os.Stdout, divs)
	}
	if *flagVerboseModel {
		fmt.Println()
		report.WriteModels(os.Stdout, models)
	}
}
