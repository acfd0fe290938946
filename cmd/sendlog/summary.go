// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/sendlog/recording"
	"github.com/bureau-foundation/sendlog/session"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	finishedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// writeSummary prints one row per session. Colors are dropped when
// output is not a terminal.
func writeSummary(output io.Writer, reports []session.Report) {
	rows := [][]string{{"SESSION", "SERVER", "STATE", "ELAPSED", "COMMITTED", "LOG ID", "ERROR"}}
	for _, report := range reports {
		rows = append(rows, []string{
			strconv.Itoa(report.Index),
			report.Server,
			stateLabel(report),
			report.Checkpoint.Elapsed.String(),
			report.Checkpoint.Committed.String(),
			report.LogID,
			describeError(report.Err),
		})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for column, cell := range row {
			widths[column] = max(widths[column], lipgloss.Width(cell))
		}
	}

	renderer := lipgloss.NewRenderer(output)
	for index, row := range rows {
		cells := make([]string, len(row))
		for column, cell := range row {
			style := renderer.NewStyle().Width(widths[column] + 2)
			switch {
			case index == 0:
				style = style.Inherit(headerStyle)
			case column == 2 && reports[index-1].Succeeded():
				style = style.Inherit(finishedStyle)
			case column == 2:
				style = style.Inherit(failedStyle)
			}
			cells[column] = style.Render(cell)
		}
		fmt.Fprintln(output, strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, cells...), " "))
	}
}

func stateLabel(report session.Report) string {
	if report.Succeeded() && report.Stopped {
		return "stopped"
	}
	return report.State.String()
}

// describeError renders err for the summary. A missing resume point gets
// a fixed message scripts can match.
func describeError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, recording.ErrResumePointNotFound):
		return "unable to find resume point"
	default:
		return err.Error()
	}
}
