// Package presenter provides consistent CLI output for user-facing messages:
// command results on stdout, status and errors on stderr, with color support.
package presenter

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/jingkaihe/skillkit/pkg/skillerr"
)

// Presenter defines the interface for consistent CLI output
type Presenter interface {
	Error(err error, context string)
	Success(message string)
	Warning(message string)
	Info(message string)
}

// TerminalPresenter implements Presenter for terminal output
type TerminalPresenter struct {
	output      io.Writer
	errorOutput io.Writer
	colorMode   ColorMode
}

// ColorMode represents different color output modes
type ColorMode int

const (
	// ColorAuto automatically detects whether to use colored output based on terminal capabilities
	ColorAuto ColorMode = iota
	// ColorAlways forces colored output regardless of terminal capabilities
	ColorAlways
	// ColorNever disables colored output regardless of terminal capabilities
	ColorNever
)

// NewForStreams creates a TerminalPresenter for the given streams with the
// color mode taken from the environment.
func NewForStreams(output, errorOutput io.Writer) *TerminalPresenter {
	return NewWithOptions(output, errorOutput, detectColorMode())
}

// NewWithOptions creates a TerminalPresenter with custom settings
func NewWithOptions(output, errorOutput io.Writer, colorMode ColorMode) *TerminalPresenter {
	switch colorMode {
	case ColorAlways:
		color.NoColor = false
	case ColorNever:
		color.NoColor = true
	case ColorAuto:
		// Let color package auto-detect
	}

	return &TerminalPresenter{
		output:      output,
		errorOutput: errorOutput,
		colorMode:   colorMode,
	}
}

// detectColorMode determines the appropriate color mode based on environment
func detectColorMode() ColorMode {
	if os.Getenv("NO_COLOR") != "" {
		return ColorNever
	}

	switch os.Getenv("SKILLKIT_COLOR") {
	case "always", "force":
		return ColorAlways
	case "never", "off":
		return ColorNever
	default:
		return ColorAuto
	}
}

// Error writes err as a single line to stderr.
func (p *TerminalPresenter) Error(err error, context string) {
	if err == nil {
		return
	}

	errorColor := color.New(color.FgRed, color.Bold)
	msg := skillerr.OneLine(err)
	if context != "" {
		errorColor.Fprintf(p.errorOutput, "[ERROR] %s: %s\n", context, msg)
	} else {
		errorColor.Fprintf(p.errorOutput, "[ERROR] %s\n", msg)
	}
}

// Success displays a success message
func (p *TerminalPresenter) Success(message string) {
	successColor := color.New(color.FgGreen, color.Bold)
	successColor.Fprintf(p.output, "✓ %s\n", message)
}

// Warning displays a warning message on stderr so it never mixes with
// machine readable output.
func (p *TerminalPresenter) Warning(message string) {
	warningColor := color.New(color.FgYellow, color.Bold)
	warningColor.Fprintf(p.errorOutput, "⚠ %s\n", message)
}

// Info displays an informational message
func (p *TerminalPresenter) Info(message string) {
	fmt.Fprintf(p.output, "%s\n", message)
}
