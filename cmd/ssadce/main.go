// Command ssadce removes dead code from a program in SSA form.
//
// It reads one whole IL program on standard input, runs dead code
// elimination on every function, and writes the functions to standard output
// in the same syntax. Data and type declarations are read but not written.
//
// USAGE:
//
//	ssadce < in.ssa > out.ssa
//
// There are no flags; see package config for the environment variables.
// Diagnostics go to standard error, and the exit status is 1 on the first
// malformed input.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Swordelf2/compprac2/internal/config"
	"github.com/Swordelf2/compprac2/internal/ir"
	"github.com/Swordelf2/compprac2/internal/optimizer"
	"github.com/Swordelf2/compprac2/internal/parser"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ssadce: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(context.Background(), cfg, logger, os.Stdin, os.Stdout); err != nil {
		logger.Error("ssadce failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// run filters one program from in to out.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger, in io.Reader, out io.Writer) error {
	opt := optimizer.NewOptimizer(logger)
	opt.SetVerbose(cfg.Verbose)
	opt.SetDumpAnalysis(cfg.DumpAnalysis)

	w := bufio.NewWriter(out)
	h := &driver{ctx: ctx, opt: opt, out: w}

	err := parser.Parse(in, "<stdin>", h)
	// Functions finished before a failure stay in the output.
	if flushErr := w.Flush(); err == nil {
		err = flushErr
	}
	if err != nil {
		return err
	}

	logger.Debug("done", slog.Any("stats", opt.Stats()))
	return nil
}

// driver is the parser.Handler of the command: it optimizes and prints every
// function as soon as it has been read.
type driver struct {
	ctx context.Context
	opt *optimizer.Optimizer
	out *bufio.Writer

	functions int
}

// Data drops declarations.
func (d *driver) Data(*ir.Decl) error {
	return nil
}

func (d *driver) Func(fn *ir.Function) error {
	ir.FillRPO(fn)
	ir.FillUses(fn)
	if errs := fn.Verify(); len(errs) > 0 {
		return errors.Join(errs...)
	}

	if err := d.opt.OptimizeFunction(d.ctx, fn); err != nil {
		return fmt.Errorf("function $%s: %w", fn.Name, err)
	}

	if d.functions > 0 {
		if _, err := d.out.WriteString("\n"); err != nil {
			return err
		}
	}
	d.functions++
	return fn.Write(d.out)
}
