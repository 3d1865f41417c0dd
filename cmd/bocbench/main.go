// Command bocbench runs micro benchmarks of the boc runtime and
// reports scheduler statistics. It doubles as a smoke test for
// embedders: each benchmark exercises a different shape of behaviour
// graph.
//
// Usage:
//
//	bocbench [-config boc.yaml] [-bench all|fib|philosophers|fanin] [-cores N] [-debug]
package main

import (
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/kestrelrt/boc"
)

// counts formats benchmark figures with digit grouping, so a million
// work items reads as one at a glance.
var counts = message.NewPrinter(language.English)

func main() {
	var (
		configPath = flag.String("config", "", "YAML pool configuration")
		bench      = flag.String("bench", "all", "benchmark to run: all, fib, philosophers, fanin")
		cores      = flag.Int("cores", 0, "override the number of cores")
		debug      = flag.Bool("debug", false, "enable runtime debug logging")
	)
	flag.Parse()

	cfg := boc.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = boc.LoadConfig(*configPath)
		if err != nil {
			pterm.Error.Printfln("loading config: %v", err)
			os.Exit(1)
		}
	}
	if *cores > 0 {
		cfg.Cores = *cores
	}

	if *debug {
		logger, err := zap.NewDevelopment()
		if err != nil {
			pterm.Error.Printfln("building logger: %v", err)
			os.Exit(1)
		}
		boc.SetLogger(logger)
		defer logger.Sync()
	}

	benches := map[string]func(boc.Config) string{
		"fib":          benchFib,
		"philosophers": benchPhilosophers,
		"fanin":        benchFanIn,
	}
	order := []string{"fib", "philosophers", "fanin"}

	pterm.DefaultSection.Printfln("bocbench on %d cores", cfg.Cores)

	rows := pterm.TableData{{"benchmark", "result", "elapsed", "run id"}}
	for _, name := range order {
		if *bench != "all" && *bench != name {
			continue
		}
		run, ok := benches[name]
		if !ok {
			pterm.Error.Printfln("unknown benchmark %q", *bench)
			os.Exit(1)
		}
		start := time.Now()
		result := run(cfg)
		rows = append(rows, []string{name, result, time.Since(start).Round(time.Microsecond).String(), boc.Scheduler().RunID()})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	stats := boc.Scheduler().Stats()
	pterm.Info.Printfln("steals=%d pauses=%d unpauses=%d lifo=%d cowns=%d",
		stats.Steals, stats.Pauses, stats.Unpauses, stats.Lifos, stats.Cowns)
}

// benchFib floods the pool with a fibonacci cascade of plain closures,
// measuring raw scheduling and stealing throughput.
func benchFib(cfg boc.Config) string {
	var executed atomic.Int64
	var run func(i int)
	run = func(i int) {
		if i <= 0 {
			return
		}
		w := boc.NewClosure(func(*boc.Work) bool {
			executed.Add(1)
			run(i - 1)
			run(i - 2)
			return true
		})
		boc.Scheduler().Schedule(w)
	}

	s := boc.Scheduler()
	s.InitWithConfig(cfg)
	run(24)
	s.Run()
	return counts.Sprintf("%d work items", executed.Load())
}

// benchPhilosophers runs the dining philosophers as behaviours: each
// meal is a behaviour writing both fork cowns, so the runtime's sorted
// acquisition replaces any locking discipline.
func benchPhilosophers(cfg boc.Config) string {
	const philosophers = 20
	const meals = 200

	forks := make([]boc.CownPtr[int], philosophers)
	for i := range forks {
		forks[i] = boc.NewCownPtr(0)
	}

	s := boc.Scheduler()
	s.InitWithConfig(cfg)
	for p := 0; p < philosophers; p++ {
		left := forks[p]
		right := forks[(p+1)%philosophers]
		for m := 0; m < meals; m++ {
			boc.When(func() {
				*left.Get()++
				*right.Get()++
			}, left.Write(), right.Write())
		}
	}
	s.Run()

	total := 0
	for i := range forks {
		total += *forks[i].Get()
	}
	if total != philosophers*meals*2 {
		return counts.Sprintf("MISCOUNT: %d fork uses", total)
	}
	return counts.Sprintf("%d meals", philosophers*meals)
}

// benchFanIn alternates large reader fronts with single writers on one
// cown, stressing the read reference count and the next-writer
// handoff.
func benchFanIn(cfg boc.Config) string {
	const rounds = 50
	const readers = 100

	c := boc.NewCownPtr(0)
	var reads atomic.Int64

	s := boc.Scheduler()
	s.InitWithConfig(cfg)
	for r := 0; r < rounds; r++ {
		for i := 0; i < readers; i++ {
			boc.When(func() {
				_ = *c.Get()
				reads.Add(1)
			}, c.Read())
		}
		boc.When(func() { *c.Get()++ }, c.Write())
	}
	s.Run()

	if *c.Get() != rounds || reads.Load() != rounds*readers {
		return counts.Sprintf("MISCOUNT: writes=%d reads=%d", *c.Get(), reads.Load())
	}
	return counts.Sprintf("%d reads, %d writes", reads.Load(), *c.Get())
}
