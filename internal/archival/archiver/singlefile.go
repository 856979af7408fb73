package archiver

import (
	"context"
	"fmt"
	"time"

	"github.com/webkeep/webkeep/internal/archival/command"
)

// SingleFile invokes the single-file CLI (the same self-contained-HTML strategy as
// Monolith, through a different external tool) — kept as a distinct archiver so an
// operator can compare or fall back between the two.
type SingleFile struct {
	Base
	Runner  *command.Runner
	Bin     string
	Timeout time.Duration
}

var _ Archiver = (*SingleFile)(nil)

func (s *SingleFile) Name() string            { return "singlefile" }
func (s *SingleFile) OutputExtension() string { return "html" }

func (s *SingleFile) Archive(ctx context.Context, url, itemID string) (Result, error) {
	if existing, ok := s.HasExistingOutput(itemID, s.Name(), s.OutputExtension()); ok {
		return Result{Success: true, ExitCode: exitCode(0), SavedPath: existing}, nil
	}

	outputPath, err := s.OutputPath(itemID, s.Name(), s.OutputExtension())
	if err != nil {
		return Result{}, err
	}

	res, err := s.Runner.Execute(ctx, command.Request{
		Command:  fmt.Sprintf("%s %q %q", s.Bin, url, outputPath),
		Timeout:  s.Timeout,
		Archiver: s.Name(),
	})
	if err != nil {
		return Result{}, err
	}

	exit := 1
	if res.ExitCode != nil {
		exit = *res.ExitCode
	}
	success := !res.TimedOut && s.ValidateOutput(outputPath, exit, 1)
	return Result{Success: success, ExitCode: &exit, SavedPath: outputPath}, nil
}
