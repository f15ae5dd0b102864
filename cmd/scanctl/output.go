package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/huangang/scanboard/internal/models"
	"github.com/huangang/scanboard/internal/services"
	"github.com/huangang/scanboard/internal/vocab"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

var (
	goodColor    = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	badColor     = color.New(color.FgRed, color.Bold)
	neutralColor = color.New(color.FgHiBlack)
)

func gradeColor(g vocab.Grade) *color.Color {
	switch g {
	case vocab.GradeA, vocab.GradeB:
		return goodColor
	case vocab.GradeC:
		return warnColor
	case "":
		return neutralColor
	default:
		return badColor
	}
}

func statusColor(s vocab.ScanStatus) *color.Color {
	switch s {
	case vocab.ScanActive:
		return goodColor
	case vocab.ScanScanning:
		return warnColor
	case vocab.ScanError:
		return badColor
	default:
		return neutralColor
	}
}

func gateLabel(raw string) string {
	if raw == "" {
		return neutralColor.Sprint("-")
	}
	if vocab.NormalizeQualityOutcome(raw) == vocab.Passed {
		return goodColor.Sprint(raw)
	}
	return badColor.Sprint(raw)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// printScanTable renders one row per scan, newest first as given.
func printScanTable(w io.Writer, rows []scanRow) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Scan", "Project", "Branch", "Status", "Gate", "Grade", "Bugs", "Vulns", "Smells", "Coverage", "Finished"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	var data [][]string
	for _, r := range rows {
		grade := vocab.Grade("")
		if r.Record.QualityGate != nil {
			grade = *r.Record.QualityGate
		}
		gradeText := string(grade)
		if gradeText == "" {
			gradeText = "-"
		}
		data = append(data, []string{
			r.Record.ScanID,
			r.ProjectKey,
			r.Record.Branch,
			statusColor(r.Record.Status).Sprint(string(r.Record.Status)),
			gateLabel(r.Record.GateStatus),
			gradeColor(grade).Sprint(gradeText),
			fmt.Sprintf("%d", r.Record.Bugs),
			fmt.Sprintf("%d", r.Record.Vulnerabilities),
			fmt.Sprintf("%d", r.Record.CodeSmells),
			fmt.Sprintf("%.1f%%", r.Record.Coverage),
			formatTime(r.Record.CompletedAt),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func printSummary(w io.Writer, snap services.DashboardSnapshot) error {
	grade := gradeColor(snap.Grade).SprintFunc()
	fmt.Fprintf(w, "Projects: %d\n", snap.ProjectCount)
	fmt.Fprintf(w, "Passed:   %s\n", goodColor.Sprint(snap.PassedCount))
	fmt.Fprintf(w, "Failed:   %s\n", badColor.Sprint(snap.FailedCount))
	fmt.Fprintf(w, "Grade:    %s (%d%%)\n\n", grade(string(snap.Grade)), snap.GradePercent)

	if len(snap.ProjectDistribution) == 0 {
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Type", "Projects", "Share"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	var data [][]string
	for _, d := range snap.ProjectDistribution {
		data = append(data, []string{d.Type, fmt.Sprintf("%d", d.Count), fmt.Sprintf("%d%%", d.Percent)})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

type scanRow struct {
	ProjectKey string
	Record     models.ScanRecord
}
