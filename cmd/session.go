package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/jaypierce/moos-ivp-agent/analysis"
	"github.com/jaypierce/moos-ivp-agent/bridge"
	"github.com/jaypierce/moos-ivp-agent/config"
	"github.com/jaypierce/moos-ivp-agent/core"
	"github.com/jaypierce/moos-ivp-agent/util"
)

// signalContext returns a context cancelled on interrupt. The returned
// function releases the signal handler once the command is done.
func signalContext() (context.Context, func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt) // channel for interrupts from os

	doneCh := make(chan struct{}) // channel for done signal from application

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-sigCh:
			logger.Warn("interrupted, closing the bridge")
		case <-doneCh:
		}
		signal.Stop(sigCh)
		cancel()
	}()
	return ctx, func() { close(doneCh) }
}

// console is where episode lines go. On a terminal a progress line is kept
// at the bottom while episode lines scroll above it.
type console struct {
	out     io.Writer
	status  analysis.Status
	printer *util.TerminalPrinter
}

func newConsole(ctx context.Context) *console {
	fd := os.Stdout.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return &console{out: os.Stdout}
	}
	printer := util.NewTerminalPrinter(os.Stdout, 500*time.Millisecond)
	status := printer.NewOutput()
	printer.Start(ctx)
	return &console{
		out:     printer.Log(),
		status:  status,
		printer: printer,
	}
}

func (c *console) Stop() {
	if c.printer != nil {
		c.printer.Stop()
	}
}

func newAnalyzers(c *config.Config, encoder *core.StateEncoder, con *console) ([]core.Analyzer, error) {
	dir := c.RunDir()
	analyzers := []core.Analyzer{
		analysis.NewConsoleAnalyzer(con.out, con.status, c.Episodes),
		analysis.NewCoverageAnalyzer(dir),
		analysis.NewGlitchAnalyzer(dir, c.ViabilityThreshold),
	}
	if c.Workbook {
		w, err := analysis.NewWorkbookAnalyzer(path.Join(dir, "episodes.xlsx"))
		if err != nil {
			return nil, fmt.Errorf("creating workbook: %w", err)
		}
		analyzers = append(analyzers, w)
	}
	if c.TraceThreshold >= 0 {
		t, err := analysis.NewTraceAnalyzer(dir, c.TraceThreshold, encoder, c.Actions)
		if err != nil {
			return nil, fmt.Errorf("creating trace directory: %w", err)
		}
		analyzers = append(analyzers, t)
	}
	return analyzers, nil
}

// serve waits for the simulator and runs the synchronizer over the
// connection until it finishes.
func serve(ctx context.Context, c *config.Config, encoder *core.StateEncoder, learner core.Learner, evaluate bool) (*core.RunResult, error) {
	con := newConsole(ctx)
	defer con.Stop()

	server := bridge.NewServer(c.Bridge(), bridge.WithLogger(logger.WithPrefix("bridge")))
	if err := server.Listen(); err != nil {
		return nil, err
	}
	logger.Info("waiting for the simulator", "addr", server.Addr(), "transport", c.Transport)
	if err := server.Accept(ctx); err != nil {
		return nil, err
	}

	analyzers, err := newAnalyzers(c, encoder, con)
	if err != nil {
		server.Close()
		return nil, err
	}
	sync, err := core.NewSynchronizer(c.Sync(evaluate), server, encoder, learner,
		core.WithAnalyzers(analyzers...),
		core.WithSyncLogger(logger.WithPrefix("sync")),
	)
	if err != nil {
		server.Close()
		return nil, err
	}

	result, err := sync.Run(ctx)
	sent, received := server.Stats()
	logger.Info("bridge closed", "sent", sent, "received", received, "posts", server.Queue().Delivered())
	return result, err
}

func logResult(result *core.RunResult) {
	if result == nil {
		return
	}
	logger.Info("run finished",
		"episodes", result.Episodes,
		"discarded", result.StaleEpisodes,
		"ticks", result.Ticks,
		"epsilon", result.Epsilon,
		"cancelled", result.Cancelled,
	)
}
