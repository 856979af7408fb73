package archiver

import (
	"context"
	"fmt"
	"time"

	"github.com/webkeep/webkeep/internal/archival/command"
)

// Monolith runs the monolith CLI against the URL, producing a single self-contained
// HTML file with all subresources inlined as data URIs. The page is fetched by monolith
// itself; no browser-rendered DOM is passed to it.
type Monolith struct {
	Base
	Runner  *command.Runner
	Bin     string
	Timeout time.Duration
}

var _ Archiver = (*Monolith)(nil)

func (m *Monolith) Name() string            { return "monolith" }
func (m *Monolith) OutputExtension() string { return "html" }

func (m *Monolith) Archive(ctx context.Context, url, itemID string) (Result, error) {
	if existing, ok := m.HasExistingOutput(itemID, m.Name(), m.OutputExtension()); ok {
		return Result{Success: true, ExitCode: exitCode(0), SavedPath: existing}, nil
	}

	outputPath, err := m.OutputPath(itemID, m.Name(), m.OutputExtension())
	if err != nil {
		return Result{}, err
	}

	res, err := m.Runner.Execute(ctx, command.Request{
		Command:  fmt.Sprintf("%s %q -o %q", m.Bin, url, outputPath),
		Timeout:  m.Timeout,
		Archiver: m.Name(),
	})
	if err != nil {
		return Result{}, err
	}

	exit := 1
	if res.ExitCode != nil {
		exit = *res.ExitCode
	}
	success := !res.TimedOut && m.ValidateOutput(outputPath, exit, 1)
	return Result{Success: success, ExitCode: &exit, SavedPath: outputPath}, nil
}
