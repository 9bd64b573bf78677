package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/benbjohnson/pathgen"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// WriteReport writes a coverage table with one row per search result.
func WriteReport(w io.Writer, results []*pathgen.Result, colored bool) error {
	good, partial, bad := color.New(color.FgGreen), color.New(color.FgYellow), color.New(color.FgRed)
	for _, c := range []*color.Color{good, partial, bad} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	header := []string{"Function", "Paths", "Covered", "Coverage", "Iterations"}
	for _, o := range pathgen.Outcomes() {
		header = append(header, o.String())
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	for _, r := range results {
		c := partial
		switch r.Coverage() {
		case 1:
			c = good
		case 0:
			c = bad
		}

		coverage := fmt.Sprintf("%.0f%%", r.Coverage()*100)
		if r.Incomplete {
			coverage += "*"
		}

		row := []string{
			r.Func.Name,
			strconv.Itoa(r.Paths.Len()),
			strconv.Itoa(r.Paths.Covered()),
			c.Sprint(coverage),
			strconv.Itoa(r.Used()),
		}
		for _, o := range pathgen.Outcomes() {
			row = append(row, strconv.Itoa(r.Count(o)))
		}
		table.Append(row)
	}
	table.Render()
	return nil
}
