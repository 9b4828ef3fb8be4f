package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/jessevdk/go-flags"
	"github.com/milk9111/sfmmaps/config"
	"github.com/milk9111/sfmmaps/prefabs"
	log "github.com/sirupsen/logrus"
)

var opts struct {
	Config  string `short:"c" long:"config" env:"SFMMAPS_CONFIG" description:"YAML config file"`
	Verbose bool   `short:"v" long:"verbose" description:"Log debug output"`
}

var (
	cfg = config.Default()
	ctx = context.Background()
)

var stdout io.Writer = os.Stdout

func init() {
	f := &log.TextFormatter{
		FullTimestamp: true,
	}
	log.SetFormatter(f)
}

func newParser() *flags.Parser {
	p := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	p.CommandHandler = func(cmd flags.Commander, args []string) error {
		if err := setup(); err != nil {
			return err
		}
		return cmd.Execute(args)
	}

	add := func(name, short string, data any) {
		if _, err := p.AddCommand(name, short, "", data); err != nil {
			panic(err)
		}
	}
	add("check", "Decode level files and report their contents", &checkCmd{})
	add("fmt", "Rewrite a level file in canonical form", &fmtCmd{})
	add("new", "Write the generic one-map level", &newCmd{})
	add("convert", "Convert between XML and YAML/JSON specs", &convertCmd{})
	add("pack", "Write a compressed snapshot of a level", &packCmd{})
	add("unpack", "Turn a snapshot back into XML", &unpackCmd{})
	add("fingerprint", "Print content fingerprints", &fingerprintCmd{})
	add("preview", "Render a map to PNG", &previewCmd{})
	add("index", "Add levels to the search catalog", &indexCmd{})
	add("find", "Search the catalog for object placements", &findCmd{})
	add("generate", "Populate a map from a tengo script", &generateCmd{})
	return p
}

func setup() error {
	if opts.Verbose {
		log.SetLevel(log.DebugLevel)
	}
	var err error
	if opts.Config != "" {
		cfg, err = config.LoadFile(opts.Config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	prefabs.Dir = cfg.PrefabDir
	log.WithField("prefabs", cfg.PrefabDir).Debug("config loaded")
	return nil
}

func main() {
	var cancel context.CancelFunc
	ctx, cancel = signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if _, err := newParser().Parse(); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) {
			if ferr.Type == flags.ErrHelp {
				fmt.Fprintln(os.Stdout, ferr.Message)
				return
			}
			fmt.Fprintln(os.Stderr, ferr.Message)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
