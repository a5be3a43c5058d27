// Package report provides the write_report tool, which saves an HTML report
// produced by the agent to disk.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/germanamz/tabletalk/pkg/tools/toolbox"
)

// Writer writes HTML reports. Relative file names resolve against Dir; an
// empty Dir means the process working directory. Parent directories are
// never created.
type Writer struct {
	Dir string
	// Confine rejects names that escape Dir (absolute paths or "..").
	Confine bool
}

// New creates a Writer rooted at dir.
func New(dir string, confine bool) *Writer {
	return &Writer{Dir: dir, Confine: confine}
}

// Tools returns a ToolBox containing write_report.
func (w *Writer) Tools() *toolbox.ToolBox {
	return toolbox.New().MustRegister(w.writeReportTool())
}

func (w *Writer) writeReportTool() toolbox.Tool {
	return toolbox.Tool{
		Name:        "write_report",
		Description: "Write an HTML report to a file. Any existing file with that name is fully overwritten.",
		Schema: toolbox.Schema{
			{Name: "filename", Type: toolbox.TypeString, Required: true, Description: "Name of the file to write"},
			{Name: "html", Type: toolbox.TypeString, Required: true, Description: "Complete HTML document"},
		},
		Handler: func(_ context.Context, args toolbox.Args) (any, error) {
			return nil, w.Write(args.String("filename"), args.String("html"))
		},
	}
}

// Write replaces the content of filename with html.
func (w *Writer) Write(filename, html string) error {
	path, err := w.resolve(filename)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644) //nolint:gosec // path is confined by resolve when configured
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if _, err := f.WriteString(html); err != nil {
		_ = f.Close()
		return fmt.Errorf("write report: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return nil
}

func (w *Writer) resolve(filename string) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", fmt.Errorf("write report: filename is empty")
	}

	if w.Confine {
		if filepath.IsAbs(filename) || !filepath.IsLocal(filename) {
			return "", fmt.Errorf("write report: %q is outside the report directory", filename)
		}
	}

	if filepath.IsAbs(filename) || w.Dir == "" {
		return filename, nil
	}

	return filepath.Join(w.Dir, filename), nil
}
