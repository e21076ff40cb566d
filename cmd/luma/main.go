// luma runs scripts, evaluates statements and hosts the interactive
// interpreter.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/luma"
	"github.com/chazu/luma/config"
	"github.com/chazu/luma/vm"
)

var log = commonlog.GetLogger("luma.cli")

// stringList collects a repeatable string flag.
type stringList []string

func (l *stringList) String() string     { return strings.Join(*l, "; ") }
func (l *stringList) Set(v string) error { *l = append(*l, v); return nil }

func main() {
	var stats stringList
	flag.Var(&stats, "e", "Execute statement (may be repeated)")
	interactive := flag.Bool("i", false, "Enter interactive mode after running the script")
	compileOut := flag.String("c", "", "Compile the script into a binary chunk at this path")
	strip := flag.Bool("s", false, "Strip debug information from compiled chunks (with -c)")
	configPath := flag.String("config", "", "Configuration file (default: nearest "+config.FileName+")")
	verbose := flag.Bool("v", false, "Verbose logging")
	jobs := flag.Int("j", 0, "Run every argument as a script, N at a time, one runtime each")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: luma [options] [script [args...]]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a luma script, or starts the interactive interpreter when no script is given.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  luma                        # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  luma main.luma a b          # Run main.luma with arg = {a, b}\n")
		fmt.Fprintf(os.Stderr, "  luma -e 'print(1 + 1)'      # Run a statement\n")
		fmt.Fprintf(os.Stderr, "  luma -c main.lc main.luma   # Precompile to a binary chunk\n")
		fmt.Fprintf(os.Stderr, "  luma -j 4 t1.luma t2.luma   # Run scripts in parallel\n")
	}
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	extra := 0
	if *verbose {
		extra = 1
	}
	cfg.ConfigureLogging(extra)
	if cfg.Path != "" {
		log.Infof("using configuration %s", cfg.Path)
	}

	args := flag.Args()
	switch {
	case *compileOut != "":
		if len(args) != 1 {
			fatal(errors.New("-c needs exactly one script"))
		}
		err = compileFile(args[0], *compileOut, *strip)
	case *jobs > 0:
		err = runParallel(context.Background(), cfg, args, *jobs)
	default:
		err = run(cfg, stats, args, *interactive)
	}
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "luma: %v\n", err)
	os.Exit(1)
}

// loadConfig reads the file given with -config, or the nearest luma.toml
// above the working directory, falling back to the defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return config.Default(), nil
	}
	cfg, err := config.FindAndLoad(wd)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

func newRuntime(cfg *config.Config) *luma.Runtime {
	rt := luma.New(vm.WithOptions(cfg.Options()))
	rt.Traceback = true
	return rt
}

// run executes the -e statements, then the script, then the REPL when
// asked for or when there was nothing else to do.
func run(cfg *config.Config, stats, args []string, interactive bool) error {
	rt := newRuntime(cfg)
	defer rt.Close()

	setArgs(rt.MainThread(), args)
	for _, s := range stats {
		if err := rt.DoChunk(s, "=(command line)"); err != nil {
			return err
		}
	}
	if len(args) > 0 {
		if err := runScript(rt, args[0], args[1:]); err != nil {
			return err
		}
	}
	if interactive || (len(args) == 0 && len(stats) == 0) {
		return runREPL(rt)
	}
	return nil
}

// runScript loads the script at path and calls it with args as its
// vararg values.
func runScript(rt *luma.Runtime, path string, args []string) error {
	if err := rt.LoadFile(path); err != nil {
		return err
	}
	th := rt.MainThread()
	for _, a := range args {
		th.PushString(a)
	}
	return rt.Call(len(args), 0)
}

// setArgs installs the global arg table: the script name at index 0 and
// its arguments from 1.
func setArgs(th *vm.Thread, args []string) {
	th.CreateTable(len(args), 1)
	for i, a := range args {
		th.PushString(a)
		th.SetI(-2, int64(i))
	}
	th.SetGlobal("arg")
}

// runParallel runs every script in its own runtime, at most jobs at once.
// The first failure cancels the scripts not yet started.
func runParallel(ctx context.Context, cfg *config.Config, scripts []string, jobs int) error {
	if len(scripts) == 0 {
		return errors.New("-j needs at least one script")
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for _, path := range scripts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rt := newRuntime(cfg)
			defer rt.Close()
			setArgs(rt.MainThread(), []string{path})
			log.Debugf("running %s", path)
			if err := runScript(rt, path, nil); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// compileFile writes the binary chunk for the script at src to out.
func compileFile(src, out string, strip bool) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	p, err := luma.Compile(data, "@"+src)
	if err != nil {
		return err
	}

	rt := vm.NewRuntime()
	defer rt.Close()
	th := rt.MainThread()
	if err := th.LoadPrototype(p); err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := th.Dump(f, strip); err != nil {
		f.Close()
		return err
	}
	log.Infof("wrote %s", out)
	return f.Close()
}
