package main

import (
	"flag"
	"log"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/milk9111/stagesync/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "settings file (missing is fine)")
	catalogName := flag.String("catalog", "", "stage file under catalogs/ or an absolute path")
	debug := flag.Bool("debug", false, "show the debug overlay and log stage events")
	watch := flag.Bool("watch", false, "reload the stage file when catalogs/ changes")
	baseMonitor := flag.Bool("m", false, "use base monitor instead of primary (for multi-monitor setups)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *catalogName != "" {
		cfg.Catalog = *catalogName
	}
	cfg.Debug = cfg.Debug || *debug
	cfg.Watch = cfg.Watch || *watch

	if *baseMonitor {
		ebiten.SetMonitor(ebiten.AppendMonitors(nil)[0])
	}

	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(int(cfg.StageWidth), int(cfg.StageHeight))
	ebiten.SetWindowTitle("stagesync")
	ebiten.SetTPS(cfg.TPS)

	game, err := NewGame(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer game.Close()

	if err := ebiten.RunGame(game); err != nil && err != ebiten.Termination {
		log.Fatal(err)
	}
}
