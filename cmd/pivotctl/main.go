// Command pivotctl pivots a JSON or CSV file and queries or prints the tree.
//
//	pivotctl -i people.csv --tree
//	pivotctl -i people.json -H eyes,hair -q blue/dark -f average
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/pivoter/pivoter/internal/pivot"
	"github.com/pivoter/pivoter/pkg/logger"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	input     string
	format    string
	hierarchy string
	query     string
	function  string
	tree      bool
	asJSON    bool
	functions bool
	logLevel  string
}

// queryOutput is printed with --json.
type queryOutput struct {
	Labels    []string `json:"labels"`
	Function  string   `json:"function"`
	Hierarchy []string `json:"hierarchy"`
	Result    *float64 `json:"result"`
	Found     bool     `json:"found"`
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var opts options
	fs := pflag.NewFlagSet("pivotctl", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.input, "input", "i", "-", "rows file, - for standard input")
	fs.StringVar(&opts.format, "format", "auto", "input format: json, csv or auto (by extension)")
	fs.StringVarP(&opts.hierarchy, "hierarchy", "H", "", "comma separated label order (default: sorted label names)")
	fs.StringVarP(&opts.query, "query", "q", "", "slash separated label values to aggregate, empty for the root; a//b matches an empty value")
	fs.StringVarP(&opts.function, "func", "f", "sum", "aggregation function")
	fs.BoolVar(&opts.tree, "tree", false, "print the pivot tree")
	fs.BoolVar(&opts.asJSON, "json", false, "print the query result as JSON")
	fs.BoolVar(&opts.functions, "list-functions", false, "list aggregation functions and exit")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level for diagnostics on stderr")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if opts.functions {
		for _, name := range pivot.Names() {
			fmt.Fprintln(stdout, name)
		}
		return nil
	}

	log := logger.New(stderr, opts.logLevel).With("cmd", "pivotctl")

	fn, err := pivot.Lookup(opts.function)
	if err != nil {
		return err
	}

	rows, err := loadRows(opts, stdin)
	if err != nil {
		return err
	}
	log.Debug("rows loaded", "rows", len(rows), "input", opts.input)

	var hierarchy []string
	if opts.hierarchy != "" {
		hierarchy = splitList(opts.hierarchy, ",")
	}

	p := pivot.New()
	tree, err := p.PivotWithHierarchy(rows, hierarchy)
	if err != nil {
		return err
	}
	log.Debug("tree built", "hierarchy", p.Hierarchy(), "depth", tree.Depth())

	if opts.tree {
		fmt.Fprint(stdout, tree.String())
	}
	if opts.tree && !fs.Changed("query") {
		return nil
	}

	labels := splitPath(opts.query)
	result, err := p.Query(labels, fn)
	if err != nil {
		return err
	}
	_, found := tree.Lookup(labels)
	if !found {
		log.Warn("no rows match query", "labels", labels)
	}

	if opts.asJSON {
		out := queryOutput{
			Labels:    labels,
			Function:  strings.ToLower(opts.function),
			Hierarchy: p.Hierarchy(),
			Found:     found,
		}
		if !math.IsNaN(result) && !math.IsInf(result, 0) {
			out.Result = &result
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	fmt.Fprintln(stdout, strconv.FormatFloat(result, 'f', -1, 64))
	return nil
}

func loadRows(opts options, stdin io.Reader) ([]pivot.DataRow, error) {
	format, err := detectFormat(opts.format, opts.input)
	if err != nil {
		return nil, err
	}
	if opts.input == "-" || opts.input == "" {
		return readRows(stdin, format)
	}

	f, err := os.Open(opts.input)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readRows(f, format)
}
