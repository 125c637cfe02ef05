// Command stagecheck loads a stage file headlessly, reports its entities,
// phases and coordination rules, and optionally plays it for a while to
// surface runtime rejections and failed transitions.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/milk9111/stagesync/catalogs"
	"github.com/milk9111/stagesync/config"
	"github.com/milk9111/stagesync/phase"
	"github.com/milk9111/stagesync/stage"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("stagecheck: ")

	configPath := flag.String("config", "config.yaml", "path to the config file")
	catalogName := flag.String("catalog", "", "stage file to check (defaults to the configured catalog)")
	run := flag.Duration("run", 0, "play the stage headlessly for this long")
	cycle := flag.Bool("cycle", false, "while running, request every phase of every entity on successive beats")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *catalogName != "" {
		cfg.Catalog = *catalogName
	}

	data, err := catalogs.Load(cfg.Catalog)
	if err != nil {
		log.Fatalf("%s: %v", cfg.Catalog, err)
	}
	sf, err := phase.ParseStageFile(data)
	if err != nil {
		log.Fatalf("%s: %v", cfg.Catalog, err)
	}

	st, err := stage.New(sf, stage.Options{
		Width:           cfg.StageWidth,
		Height:          cfg.StageHeight,
		BPM:             cfg.BPM,
		BeatsPerMeasure: cfg.BeatsPerMeasure,
		SyncTolerance:   cfg.SyncTolerance,
		LoadScript:      catalogs.LoadScript,
	})
	if err != nil {
		log.Fatalf("%s: %v", cfg.Catalog, err)
	}
	defer st.Close()

	report(st)

	if *run <= 0 {
		return
	}
	if failures := play(st, *run, time.Second/time.Duration(cfg.TPS), *cycle); failures > 0 {
		log.Printf("%d failures", failures)
		os.Exit(1)
	}
}

func report(st *stage.Stage) {
	cat := st.Catalog()
	for _, id := range cat.Entities() {
		kind, _ := cat.Kind(id)
		active, _ := st.ActivePhase(id)
		var ids []string
		for _, p := range cat.Phases(id) {
			ids = append(ids, p.ID)
		}
		fmt.Printf("%-12s %-10s %s (active %s)\n", id, kind, strings.Join(ids, ","), active)
	}
	for _, r := range st.Rules() {
		fmt.Printf("rule %s: %s -> %s [%s/%s]\n", r.ID, r.From, strings.Join(r.To, ","), r.Mode, r.Mapping)
	}
}

// play ticks the stage at the frame rate for d of performance time and
// returns the number of rejected requests and failed transitions.
func play(st *stage.Stage, d, dt time.Duration, cycle bool) int {
	var targets []phase.ChangeRequest
	if cycle {
		cat := st.Catalog()
		for _, id := range cat.Entities() {
			for _, p := range cat.Phases(id) {
				targets = append(targets, phase.ChangeRequest{EntityID: id, ToPhaseID: p.ID, Timing: phase.TimingNextBeat})
			}
		}
	}

	st.Play()
	failures := 0
	next := 0
	for st.Time() < d {
		st.Tick(dt)
		for _, ev := range st.Events() {
			switch ev.Kind {
			case stage.EventTransitionFailed, stage.EventRequestRejected:
				failures++
				log.Printf("%s: %v", ev, ev.Err)
			case stage.EventPhaseChanged:
				fmt.Println(ev)
			}
		}
		// Issue the next request once the previous one has executed.
		if next < len(targets) && len(st.Pending()) == 0 {
			if err := st.RequestPhase(targets[next]); err != nil {
				failures++
				log.Printf("request %s: %v", targets[next], err)
			}
			next++
		}
	}
	st.Stop()
	st.Wait()
	return failures
}
