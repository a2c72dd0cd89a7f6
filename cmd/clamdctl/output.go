package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gookit/color"
	"gopkg.in/yaml.v2"

	"github.com/DevHatRo/clamd-go"
)

// report is one printed scan verdict.
type report struct {
	Target  string   `json:"target" yaml:"target"`
	Status  string   `json:"status" yaml:"status"`
	Viruses []string `json:"viruses,omitempty" yaml:"viruses,omitempty"`
	Error   string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func newReport(target string, res clamd.ScanResult, err error) report {
	if err != nil {
		return report{Target: target, Status: "ERROR", Error: err.Error()}
	}
	return report{Target: target, Status: res.Status(), Viruses: res.Fail}
}

type printer struct {
	w      io.Writer
	format string
}

// value prints v as JSON or YAML, or calls text for the text format.
func (p *printer) value(v interface{}, text func(io.Writer)) error {
	switch p.format {
	case "json":
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		out, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = p.w.Write(out)
		return err
	default:
		text(p.w)
		return nil
	}
}

func (p *printer) reports(rs []report) error {
	return p.value(rs, func(w io.Writer) {
		for _, r := range rs {
			fmt.Fprintln(w, r.line())
		}
	})
}

// line renders a report the way clamdscan does: "target: verdict".
func (r report) line() string {
	switch r.Status {
	case "FOUND":
		return r.Target + ": " + color.FgLightRed.Render(strings.Join(r.Viruses, ", ")+" FOUND")
	case "OK":
		return r.Target + ": " + color.FgLightGreen.Render("OK")
	default:
		return r.Target + ": " + color.FgYellow.Render(r.Error+" ERROR")
	}
}

// exitCode returns the clamdscan status for a set of reports.
func exitCode(rs []report) int {
	code := exitClean
	for _, r := range rs {
		switch r.Status {
		case "ERROR":
			return exitFailure
		case "FOUND":
			code = exitInfected
		}
	}
	return code
}
