package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"
)

// outputWriter is the writer used for report output (can be replaced for testing)
var outputWriter io.Writer = os.Stdout

// inputReader is where confirmation answers are read from
var inputReader io.Reader = os.Stdin

// setOutputWriter sets the output writer (for testing)
func setOutputWriter(w io.Writer) {
	outputWriter = w
}

// resetOutputWriter resets output to stdout
func resetOutputWriter() {
	outputWriter = os.Stdout
}

// printHeader prints a formatted header
func printHeader(format string, args ...interface{}) {
	text := fmt.Sprintf(format, args...)
	line := strings.Repeat("=", len(text)+4)
	fmt.Fprintf(outputWriter, "\n%s\n  %s\n%s\n\n", line, text, line)
}

// printSection prints a section header
func printSection(title string) {
	fmt.Fprintf(outputWriter, "[%s]\n", title)
	fmt.Fprintf(outputWriter, "%s\n", strings.Repeat("-", len(title)+2))
}

func printf(format string, args ...interface{}) {
	fmt.Fprintf(outputWriter, format, args...)
}

func good(s string) string    { return color.Green.Sprint(s) }
func caution(s string) string { return color.Yellow.Sprint(s) }
func bad(s string) string     { return color.Red.Sprint(s) }

// printTable prints rows under headers with columns padded to their widest
// cell. Widths are measured in terminal cells so CJK category names line up.
func printTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = cellWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				if w := cellWidth(cell); w > widths[i] {
					widths[i] = w
				}
			}
		}
	}

	writeRow := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			if i == len(cells)-1 {
				parts[i] = cell
				continue
			}
			parts[i] = cell + strings.Repeat(" ", widths[i]-cellWidth(cell))
		}
		fmt.Fprintf(outputWriter, "  %s\n", strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	writeRow(headers)
	rule := make([]string, len(headers))
	for i, w := range widths {
		rule[i] = strings.Repeat("-", w)
	}
	writeRow(rule)
	for _, row := range rows {
		writeRow(row)
	}
}

// cellWidth is the terminal width of s without color codes.
func cellWidth(s string) int {
	return runewidth.StringWidth(color.ClearCode(s))
}

// confirm asks a yes/no question on outputWriter and reads the answer from
// inputReader. Anything other than y or yes is a no.
func confirm(question string) bool {
	fmt.Fprintf(outputWriter, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(inputReader).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// formatIDs joins ids for display.
func formatIDs(ids []int) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}

// percent returns n as a percentage of total.
func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}
