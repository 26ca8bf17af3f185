package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"uplink-monitor/pkg/model"
)

var (
	green  = lipgloss.Color("76")
	red    = lipgloss.Color("204")
	yellow = lipgloss.Color("214")
	dim    = lipgloss.Color("243")

	okStyle    = lipgloss.NewStyle().Foreground(green).Bold(true)
	downStyle  = lipgloss.NewStyle().Foreground(red).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(yellow)
	mutedStyle = lipgloss.NewStyle().Foreground(dim)
)

func stateStyle(s model.HealthState) lipgloss.Style {
	switch s {
	case model.StateOK:
		return okStyle
	case model.StateDown:
		return downStyle
	case model.StateDegraded:
		return warnStyle
	default:
		return mutedStyle
	}
}

func renderState(s model.HealthState) string {
	return stateStyle(s).Render(s.Label())
}

func renderEntry(e model.HistoryEntry) string {
	latency := "-"
	if e.Probe.LatencyMs != nil {
		latency = fmt.Sprintf("%dms", *e.Probe.LatencyMs)
	}
	wan := "?"
	if e.WanUp != nil {
		wan = fmt.Sprint(*e.WanUp)
	}
	line := fmt.Sprintf("%s  %-18s %-16s wan=%-5s probe=%s",
		mutedStyle.Render(e.Timestamp.Local().Format("15:04:05")),
		renderState(e.State), e.Reason, wan, latency)
	if e.ControllerError != "" {
		line += " " + warnStyle.Render("controller: "+e.ControllerError)
	}
	return line
}
