package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"

	"github.com/mattn/go-isatty"

	"noxy-vm/internal/chunk"
	"noxy-vm/internal/natives"
	"noxy-vm/internal/value"
	"noxy-vm/internal/vm"
)

const Version = "v1.0.0"

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintln(os.Stderr, "Recovered from panic:", r)
			debug.PrintStack()
			os.Exit(70)
		}
	}()

	showDisassembly := flag.Bool("disassembly", false, "Show bytecode disassembly before running")
	showVersion := flag.Bool("version", false, "Show version information")
	showHelp := flag.Bool("help", false, "Show help message")
	quiet := flag.Bool("quiet", false, "Suppress the REPL banner and prompts")
	verbose := flag.Bool("verbose", false, "Emit structured compiler/VM diagnostics to stderr")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lumen [options] [script]\n\nOptions:\n")
		flag.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(os.Stderr, "  --%s\n\t%s\n", f.Name, f.Usage)
		})
	}
	flag.Parse()

	if *showHelp {
		flag.Usage()
		return
	}
	if *showVersion {
		fmt.Printf("lumen %s\n", Version)
		return
	}

	logger := slog.Default()
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	cfg := vm.Config{Stdout: os.Stdout, Stderr: os.Stderr, Logger: logger, Verbose: *verbose}

	args := flag.Args()
	if len(args) < 1 {
		runREPL(cfg, *quiet, *showDisassembly)
		return
	}

	runFile(cfg, args[0], *showDisassembly)
}

func runFile(cfg vm.Config, path string, showDisasm bool) {
	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %s\n", err)
		os.Exit(70)
	}

	heap := value.NewHeap()
	machine := vm.New(heap, cfg)
	registry := natives.Install(machine, heap)
	defer registry.Close()

	fn, err := machine.Compile(string(content))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(65)
	}
	if showDisasm {
		fn.Chunk.(*chunk.Chunk).DisassembleAll(os.Stdout, fn.String())
	}

	switch machine.RunFunction(fn) {
	case vm.ResultRuntimeError:
		os.Exit(70)
	}
}

// runREPL reads and interprets one line of input at a time, sharing one
// VM across the whole session so globals persist between entries. Each
// line is compiled on its own; a statement split across lines is not
// joined.
func runREPL(cfg vm.Config, quiet, showDisasm bool) {
	heap := value.NewHeap()
	machine := vm.New(heap, cfg)
	registry := natives.Install(machine, heap)
	defer registry.Close()

	prompt := ">>> "
	if !quiet {
		fmt.Printf("lumen %s\n", Version)
		fmt.Println("Type 'exit' to quit.")
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		prompt = ""
	}

	reader := bufio.NewScanner(os.Stdin)
	for {
		if !quiet && prompt != "" {
			fmt.Print(prompt)
		}
		if !reader.Scan() {
			return
		}
		line := reader.Text()
		if strings.TrimSpace(line) == "exit" {
			return
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		if showDisasm {
			if fn, err := machine.Compile(line); err == nil {
				fn.Chunk.(*chunk.Chunk).DisassembleAll(os.Stdout, "REPL")
			}
		}
		machine.Interpret(line)
	}
}
