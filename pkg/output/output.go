package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/agora-social/agora-cli/pkg/config"
	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatTable OutputFormat = "table"
	FormatText  OutputFormat = "text"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	mu     sync.Mutex
	writer io.Writer = color.Output
)

// SetWriter redirects all output, e.g. to a buffer in tests. Passing nil
// restores the colored stdout writer.
func SetWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = color.Output
	}
	writer = w
}

func out() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return writer
}

// GetOutputFormat returns the configured output format
func GetOutputFormat() OutputFormat {
	switch config.GetString("output.format") {
	case "json":
		return FormatJSON
	case "table":
		return FormatTable
	default:
		return FormatText
	}
}

// ValidateOutputFormat checks if format is valid
func ValidateOutputFormat(format string) bool {
	return format == "json" || format == "table" || format == "text"
}

// Print outputs a single value. Text and table formats share the pretty
// JSON rendering.
func Print(title string, data interface{}) error {
	if GetOutputFormat() == FormatJSON {
		return encode(data)
	}
	s, err := FormatAsPrettyJSON(data)
	if err != nil {
		return err
	}
	w := out()
	if title != "" {
		fmt.Fprintf(w, "%s:\n", title)
	}
	fmt.Fprintln(w, s)
	return nil
}

// PrintList outputs rows under headers. In JSON mode raw is encoded
// instead, so scripts get the structured value.
func PrintList(headers []string, rows [][]string, raw interface{}) error {
	if GetOutputFormat() == FormatJSON {
		return encode(raw)
	}
	printTable(headers, rows)
	return nil
}

// PrintRecord outputs one record with keys in the given order.
func PrintRecord(title string, keys []string, record map[string]interface{}) error {
	switch GetOutputFormat() {
	case FormatJSON:
		return encode(record)
	case FormatTable:
		rows := make([][]string, 0, len(keys))
		for _, k := range keys {
			rows = append(rows, []string{k, fmt.Sprintf("%v", record[k])})
		}
		printTable([]string{"Field", "Value"}, rows)
		return nil
	}

	w := out()
	if title != "" {
		fmt.Fprintf(w, "%s:\n", title)
	}
	bold := color.New(color.Bold)
	for _, k := range keys {
		bold.Fprint(w, k+": ")
		fmt.Fprintf(w, "%v\n", record[k])
	}
	return nil
}

// Line writes one unformatted line. Streams such as chat and the
// notification watcher use it so they stay readable in every format.
func Line(format string, args ...interface{}) {
	fmt.Fprintf(out(), format+"\n", args...)
}

// PrintSuccess prints a success message
func PrintSuccess(msg string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(out(), msg+"\n", args...)
}

// PrintError prints an error message
func PrintError(msg string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(out(), "Error: "+msg+"\n", args...)
}

// PrintInfo prints an info message
func PrintInfo(msg string, args ...interface{}) {
	color.New(color.FgCyan).Fprintf(out(), msg+"\n", args...)
}

// PrintWarning prints a warning message
func PrintWarning(msg string, args ...interface{}) {
	color.New(color.FgYellow).Fprintf(out(), "Warning: "+msg+"\n", args...)
}

func encode(data interface{}) error {
	s, err := FormatAsPrettyJSON(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out(), s)
	return err
}

func printTable(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(out(), 0, 0, 2, ' ', 0)
	bold := color.New(color.Bold)

	bold.Fprint(w, strings.Join(headers, "\t"))
	fmt.Fprintln(w)
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}

// FormatAsJSON converts data to a compact JSON string
func FormatAsJSON(data interface{}) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FormatAsPrettyJSON converts data to an indented JSON string
func FormatAsPrettyJSON(data interface{}) (string, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
