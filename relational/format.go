package relational

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// relationString renders the compact colored form used in logs:
// Relation([a b c], N rows).
func relationString(rel Relation) string {
	names := make([]string, 0, len(rel.Scheme()))
	for _, a := range rel.Scheme().Sorted() {
		names = append(names, a.String())
	}

	rows, err := AllRows(rel)
	if err != nil {
		return fmt.Sprintf("%s%s%s%s",
			color.BlueString("Relation(["),
			color.CyanString(strings.Join(names, " ")),
			color.BlueString("], "),
			color.RedString("error)"))
	}

	count := len(rows)
	var countStr string
	switch {
	case count == 0:
		countStr = color.RedString("%d", count)
	case count < 100:
		countStr = color.GreenString("%d", count)
	case count < 10000:
		countStr = color.YellowString("%d", count)
	default:
		countStr = color.RedString("%d", count)
	}

	return fmt.Sprintf("%s%s%s%s %s%s",
		color.BlueString("Relation(["),
		color.CyanString(strings.Join(names, " ")),
		color.BlueString("], "),
		countStr,
		"rows",
		color.BlueString(")"))
}

// TableFormatter provides utilities for formatting relations as tables.
type TableFormatter struct {
	// MaxWidth is the maximum width for a column
	MaxWidth int
	// TruncateString is the string to append when truncating
	TruncateString string
}

// NewTableFormatter creates a table formatter with default settings.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{
		MaxWidth:       50,
		TruncateString: "...",
	}
}

// FormatRelation formats a relation as a markdown table. Attributes
// appear in name order; row errors render as a trailing note.
func (tf *TableFormatter) FormatRelation(rel Relation) string {
	attrs := rel.Scheme().Sorted()

	var rows []Row
	var rowErrs []error
	it := rel.Rows()
	defer it.Close()
	for it.Next() {
		row, err := it.Row()
		if err != nil {
			rowErrs = append(rowErrs, err)
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 && len(rowErrs) == 0 {
		return "_Empty relation_"
	}

	tableString := &strings.Builder{}

	alignment := make([]tw.Align, len(attrs))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(tableString,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)

	headers := make([]string, len(attrs))
	for i, a := range attrs {
		headers[i] = a.String()
	}
	table.Header(headers)

	for _, row := range rows {
		cells := make([]string, len(attrs))
		for j, a := range attrs {
			cells[j] = tf.truncate(FormatValue(row.Get(a)))
		}
		table.Append(cells)
	}

	table.Render()

	tableString.WriteString(fmt.Sprintf("\n_%d rows_\n", len(rows)))
	for _, err := range rowErrs {
		tableString.WriteString(fmt.Sprintf("_row error: %v_\n", err))
	}

	return tableString.String()
}

func (tf *TableFormatter) truncate(s string) string {
	if tf.MaxWidth <= 0 || len(s) <= tf.MaxWidth {
		return s
	}
	return s[:tf.MaxWidth] + tf.TruncateString
}

// FormatRelationTable renders a relation with the default formatter.
func FormatRelationTable(rel Relation) string {
	return NewTableFormatter().FormatRelation(rel)
}

// PrintRelation prints a relation to stdout.
func PrintRelation(rel Relation) {
	fmt.Println(FormatRelationTable(rel))
}
