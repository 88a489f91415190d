// Command speckleconv converts a Speckle object dump into a binary glTF
// scene.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/chazu/speckleconv/pkg/config"
	"github.com/chazu/speckleconv/pkg/export"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		outPath    = flag.String("out", "", "output .glb path (default: input name with .glb)")
		rootID     = flag.String("root", "", "id of the root object (default: first record)")
		progress   = flag.Bool("progress", false, "show a progress bar")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] objects.json\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*configPath, flag.Arg(0), *outPath, *rootID, *progress); err != nil {
		fmt.Fprintln(os.Stderr, "speckleconv:", err)
		os.Exit(1)
	}
}

func run(configPath, in, out, rootID string, progress bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if out == "" {
		out = strings.TrimSuffix(in, ".json") + ".glb"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := NewApp(cfg, nil)
	if progress {
		var bar *progressbar.ProgressBar
		app.OnProgress = func(done, total int) {
			if bar == nil {
				bar = progressbar.Default(int64(total), "converting")
			}
			_ = bar.Set(done)
		}
		defer func() {
			if bar != nil {
				_ = bar.Close()
			}
		}()
	}

	res, err := app.Convert(ctx, in, rootID)
	if err != nil {
		return err
	}
	if err := export.SaveGLB(res.Views, out); err != nil {
		return err
	}
	fmt.Printf("wrote %s: %s\n", out, res.Summary())
	return nil
}
