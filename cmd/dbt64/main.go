// Command dbt64 is the host-visible entry point (spec.md §6): it takes a
// path to a guest x86_64 ELF plus guest argv/envp, wires the execution
// engine together, and exits with the guest process's exit status.
//
// Grounded on the teacher's cobra-based command structure in
// cmd/wallet-demo/main.go (a root command, global flags, log.InitLogger +
// log.EnableModule at startup) — narrowed from a multi-subcommand demo
// tool to a single-binary loader, since spec.md §6 names only one
// external surface: "a path to a guest ELF plus guest argv/envp".
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coldforge/dbt64/arena"
	"github.com/coldforge/dbt64/config"
	"github.com/coldforge/dbt64/cpu"
	"github.com/coldforge/dbt64/dispatcher"
	"github.com/coldforge/dbt64/log"
	"github.com/coldforge/dbt64/perf"
	"github.com/coldforge/dbt64/sharedctx"
	"github.com/coldforge/dbt64/smc"
	"github.com/coldforge/dbt64/trace"
	"github.com/coldforge/dbt64/translator"
)

var (
	Version = "dev"
	Commit  = "none"
)

func main() {
	var debugModules string
	var guestArgv []string

	rootCmd := &cobra.Command{
		Use:   "dbt64 <guest-elf> [guest-args...]",
		Short: "Dynamic binary translator: runs an x86_64 Linux ELF on this host",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromEnv()

			level := "info"
			if cfg.Verbose {
				level = "debug"
			}
			log.InitLogger(level)
			if debugModules != "" {
				for _, m := range strings.Split(debugModules, ",") {
					log.EnableModule(strings.TrimSpace(m))
				}
			}

			guestArgv = append([]string{args[0]}, args[1:]...)
			code, err := run(args[0], guestArgv, cfg)
			os.Exit(code)
			_ = err
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Flags().StringVar(&debugModules, "debug-modules", "", "comma-separated list of log modules to enable at debug level")
	rootCmd.Version = fmt.Sprintf("%s (%s)", Version, Commit)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run wires the engine's components together and drives the guest's main
// thread to completion, returning the guest's exit status (spec.md §6).
func run(guestPath string, argv []string, cfg *config.Config) (int, error) {
	loaded, err := loadELF(guestPath)
	if err != nil {
		return 127, fmt.Errorf("load %s: %w", guestPath, err)
	}

	a := arena.New()

	missStubAsm := newMissStubAssembler()
	missStub, err := a.Alloc(len(missStubAsm))
	if err != nil {
		return 1, err
	}
	copy(missStub.Code, missStubAsm)
	arena.FlushInstructionCache(missStub.Code)
	if err := a.Finalize(missStub); err != nil {
		return 1, err
	}

	shared := sharedctx.New(missStub.Base)
	cache := shared.Cache
	shared.RegisterELF(&sharedctx.ELFImage{
		Path:        guestPath,
		LoadBase:    loaded.LoadBase,
		LoadExtent:  loaded.LoadExtent,
		TLSTemplate: loaded.TLSImage,
	})
	shared.SetTLSTemplate(loaded.TLSImage, len(loaded.TLSImage))

	counters := &perf.Counters{}
	detector := smc.New(cache, counters)
	tr := translator.New(a, cache, cfg, counters)

	var tracer *trace.JSONLTraceWriter
	if cfg.DumpBlocks {
		if cfg.DumpBlocksPath == "" {
			tracer = trace.NewJSONLTraceWriterStdout()
		} else {
			tracer, err = trace.NewJSONLTraceWriterFile(cfg.DumpBlocksPath)
			if err != nil {
				return 1, err
			}
		}
		defer tracer.Close()
		tr.Tracer = tracer
	}

	guestCpu := cpu.New(shared, loaded.EntryPoint)

	d := &dispatcher.Dispatcher{
		Cpu:        guestCpu,
		Cache:      cache,
		Translator: tr,
		SMC:        detector,
		Reader:     loaded,
		Counters:   counters,
	}

	d.Run()

	return int(guestCpu.GPR[cpu.RDI] & 0xFF), nil
}
