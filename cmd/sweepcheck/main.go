package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	appcfg "github.com/park285/cheese-challenge/internal/config"
	"github.com/park285/cheese-challenge/internal/enginebuilder"
	"github.com/park285/cheese-challenge/internal/obslog"
)

var errSweepFailed = errors.New("sweep finished with errors")

// sweepcheck runs the daily jobs once against the configured stores and
// prints what they did.
func main() {
	job := flag.String("job", "all", "challenge | mission | all")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline")
	journal := flag.Int64("journal", 0, "print the newest N ledger journal entries afterwards")
	flag.Parse()
	if *job != "challenge" && *job != "mission" && *job != "all" {
		log.Fatalf("unknown -job %q", *job)
	}

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	engine, err := enginebuilder.New(ctx, cfg)
	if err != nil {
		cancel()
		log.Fatalf("engine init error: %v", err)
	}

	err = run(ctx, engine, *job, *journal, os.Stdout)
	cancel()
	obslog.Sync()
	if err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

// run executes the selected jobs and always closes the engine before
// returning, so pending side effects are drained on failure too.
func run(ctx context.Context, engine *enginebuilder.Engine, job string, journal int64, out io.Writer) (err error) {
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if cerr := engine.Close(cctx); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close engine: %w", cerr))
		}
	}()

	failed := false
	if job == "challenge" || job == "all" {
		rep, err := engine.Challenges.DailySweep(ctx)
		if err != nil {
			log.Printf("challenge sweep error: %v", err)
			failed = true
		}
		if rep.Failed > 0 {
			failed = true
		}
		fmt.Fprintf(out, "challenge sweep: started=%d finished=%d failed=%d paid=%d\n", rep.Started, rep.Finished, rep.Failed, rep.Paid)
	}
	if job == "mission" || job == "all" {
		rep, err := engine.Missions.DailySettlement(ctx)
		if err != nil {
			log.Printf("mission settlement error: %v", err)
			failed = true
		}
		if rep.Failed > 0 {
			failed = true
		}
		fmt.Fprintf(out, "mission settlement: settled=%d failed=%d paid=%d\n", rep.Settled, rep.Failed, rep.Paid)
	}
	engine.Dispatcher.Wait()
	if journal > 0 {
		entries, err := engine.Ledger.Journal(ctx, journal)
		if err != nil {
			log.Printf("journal error: %v", err)
		}
		for _, e := range entries {
			fmt.Fprintf(out, "%s %s %+d %s %s\n", e.At.Format(time.RFC3339), e.UserID, e.Delta, e.Reason, e.Ref)
		}
	}
	if failed {
		return errSweepFailed
	}
	return nil
}
