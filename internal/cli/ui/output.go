// Package ui formats command output for the terminal
package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	titleColor   = color.New(color.FgCyan, color.Bold)
	valueColor   = color.New(color.FgWhite)
)

// Success prints a completed step
func Success(w io.Writer, format string, args ...interface{}) {
	successColor.Fprintf(w, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Info prints progress
func Info(w io.Writer, format string, args ...interface{}) {
	infoColor.Fprintf(w, "%s\n", fmt.Sprintf(format, args...))
}

// Warn prints something the operator should look at
func Warn(w io.Writer, format string, args ...interface{}) {
	warnColor.Fprintf(w, "! %s\n", fmt.Sprintf(format, args...))
}

// Error prints a failure
func Error(w io.Writer, format string, args ...interface{}) {
	errorColor.Fprintf(w, "Error: %s\n", fmt.Sprintf(format, args...))
}

// Field prints a "label: value" line
func Field(w io.Writer, label string, value interface{}) {
	titleColor.Fprintf(w, "%s: ", label)
	valueColor.Fprintln(w, value)
}
