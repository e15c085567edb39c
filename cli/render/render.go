// Package render writes command results as json, yaml or an aligned table.
//
// Without --format, a terminal gets a table and anything else gets json.
// --no-color only affects tables.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// Format is an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format name. The empty string is returned as-is so
// the caller can pick a default.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "table":
		return FormatTable, nil
	case "yaml":
		return FormatYAML, nil
	case "":
		return "", nil
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Renderer writes values in one format.
type Renderer struct {
	format Format
	styles styles
	out    io.Writer
}

// NewRenderer creates a renderer from the --format and --no-color flags.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stdout
	if c.App != nil && c.App.Writer != nil {
		out = c.App.Writer
	}
	tty := isTTY(out)
	if format == "" {
		if tty {
			format = FormatTable
		} else {
			format = FormatJSON
		}
	}

	return &Renderer{
		format: format,
		styles: newStyles(!tty || c.Bool("no-color")),
		out:    out,
	}, nil
}

// NewRendererWithWriter creates a renderer over out (for testing).
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{format: format, styles: newStyles(noColor), out: out}
}

// Render writes data.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		return enc.Encode(data)
	case FormatTable:
		v := reflect.ValueOf(data)
		if v.Kind() == reflect.Slice {
			return r.renderRows(v)
		}
		return r.renderFields(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// renderRows writes one line per element under a header row.
func (r *Renderer) renderRows(v reflect.Value) error {
	if v.Len() == 0 {
		fmt.Fprintln(r.out, r.styles.muted("(no results)"))
		return nil
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	headers := fieldNames(indirect(v.Index(0)))
	styled := make([]string, len(headers))
	for i, h := range headers {
		styled[i] = r.styles.key(strings.ToUpper(h))
	}
	fmt.Fprintln(w, strings.Join(styled, "\t"))

	for i := 0; i < v.Len(); i++ {
		row := indirect(v.Index(i))
		values := make([]string, 0, len(headers))
		if row.Kind() == reflect.Struct {
			for j := 0; j < row.NumField(); j++ {
				if !row.Type().Field(j).IsExported() {
					continue
				}
				values = append(values, r.value(headers[len(values)], row.Field(j)))
			}
		}
		fmt.Fprintln(w, strings.Join(values, "\t"))
	}
	return nil
}

// renderFields writes "key: value" lines for a struct or map.
func (r *Renderer) renderFields(data any) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	v := indirect(reflect.ValueOf(data))
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			name := fieldName(t.Field(i))
			fmt.Fprintf(w, "%s\t%s\n", r.styles.key(name+":"), r.value(name, v.Field(i)))
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			name := fmt.Sprintf("%v", iter.Key().Interface())
			fmt.Fprintf(w, "%s\t%s\n", r.styles.key(name+":"), r.value(name, iter.Value()))
		}
	default:
		fmt.Fprintf(w, "%v\n", data)
	}
	return nil
}

// value formats v, coloring job states.
func (r *Renderer) value(name string, v reflect.Value) string {
	s := formatValue(v)
	if name == "state" || name == "status" {
		return r.styles.state(s)
	}
	return s
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func fieldNames(v reflect.Value) []string {
	if v.Kind() != reflect.Struct {
		return nil
	}
	var names []string
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).IsExported() {
			names = append(names, fieldName(t.Field(i)))
		}
	}
	return names
}

// fieldName prefers the json tag.
func fieldName(f reflect.StructField) string {
	if tag := f.Tag.Get("json"); tag != "" {
		name, _, _ := strings.Cut(tag, ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return strings.ToLower(f.Name)
}

func formatValue(v reflect.Value) string {
	v = indirect(v)
	if !v.IsValid() {
		return ""
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		if t, ok := v.Interface().(time.Time); ok {
			if t.IsZero() {
				return ""
			}
			return t.Format(time.RFC3339)
		}
		return "{...}"
	case reflect.String:
		return truncate(v.String(), 80)
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// truncate shortens long single-line values such as extracted text.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
