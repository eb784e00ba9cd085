package output

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/template"

	"github.com/arthur-debert/treetx/pkg/logging"
	"github.com/arthur-debert/treetx/pkg/output/styles"
	"github.com/arthur-debert/treetx/pkg/transform"
	"github.com/arthur-debert/treetx/pkg/types"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Renderer writes change lists, conflicts and tree listings. Templates
// produce text marked up with style tags; the tags become lipgloss styling
// or are stripped when color is off.
type Renderer struct {
	templates *template.Template
	writer    io.Writer
	noColor   bool
	lip       *lipgloss.Renderer
}

// NewRenderer creates a Renderer writing to w. Color is used only when
// noColor is false.
func NewRenderer(w io.Writer, noColor bool) (*Renderer, error) {
	log := logging.GetLogger("output.Renderer")

	r := &Renderer{writer: w, noColor: noColor}
	if !noColor {
		r.lip = lipgloss.NewRenderer(w)
		log.Debug().Str("colorProfile", fmt.Sprintf("%v", r.lip.ColorProfile())).Msg("Lipgloss renderer created")
	}

	tmpl, err := template.New("output").Funcs(template.FuncMap{
		"style": func(name, text string) string {
			return "<" + name + ">" + text + "</" + name + ">"
		},
		"indent": func(depth int) string {
			return strings.Repeat("  ", depth)
		},
	}).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	r.templates = tmpl
	return r, nil
}

// ColorEnabled reports whether output to w should be styled: w must be a
// terminal and NO_COLOR must be unset.
func ColorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (r *Renderer) render(name string, data interface{}) error {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return r.write(strings.Trim(buf.String(), "\n"))
}

func (r *Renderer) write(marked string) error {
	var out string
	if r.noColor {
		out = StripTags(marked)
	} else {
		out = ExpandTags(marked, styles.StyleRegistry, r.lip)
	}
	_, err := fmt.Fprintln(r.writer, out)
	return err
}

// ChangeView is one printable change line.
type ChangeView struct {
	Label string `yaml:"change"`
	Style string `yaml:"-"`
	Path  string `yaml:"path"`
	Kind  string `yaml:"kind,omitempty"`
}

// DescribeChange classifies a tree change for display.
func DescribeChange(c types.TreeChange) ChangeView {
	view := ChangeView{Path: c.NewPath(), Kind: string(c.Kind[1])}
	switch {
	case !c.Versioned[0]:
		view.Label, view.Style = "added", "Added"
	case !c.Versioned[1]:
		view.Label, view.Style = "removed", "Removed"
		view.Path, view.Kind = c.OldPath(), string(c.Kind[0])
	case c.OldPath() != c.NewPath():
		view.Label, view.Style = "renamed", "Renamed"
		view.Path = c.OldPath() + " => " + c.NewPath()
	case c.ChangedContent || c.Kind[0] != c.Kind[1]:
		view.Label, view.Style = "modified", "Modified"
	default:
		view.Label, view.Style = "mode", "Mode"
	}
	return view
}

// RenderChanges prints one line per change.
func (r *Renderer) RenderChanges(changes []types.TreeChange, dryRun bool) error {
	views := make([]ChangeView, len(changes))
	for i, c := range changes {
		views[i] = DescribeChange(c)
	}
	return r.render("changes.tmpl", struct {
		DryRun  bool
		Changes []ChangeView
	}{dryRun, views})
}

type conflictView struct {
	Type    transform.ConflictType
	Subject string
}

// RenderConflicts prints applied resolutions followed by the conflicts that
// remain. Nothing is printed when both are empty.
func (r *Renderer) RenderConflicts(resolutions []transform.Resolution, conflicts []transform.Conflict) error {
	if len(resolutions) == 0 && len(conflicts) == 0 {
		return nil
	}
	views := make([]conflictView, len(conflicts))
	for i, c := range conflicts {
		views[i] = conflictView{
			Type:    c.Type,
			Subject: strings.TrimPrefix(c.String(), string(c.Type)+": "),
		}
	}
	return r.render("conflicts.tmpl", struct {
		Resolutions []transform.Resolution
		Conflicts   []conflictView
	}{resolutions, views})
}

type entryView struct {
	Path       string
	Name       string
	Depth      int
	Kind       types.Kind
	Executable bool
	FileID     types.FileID
}

// RenderEntries prints versioned entries as an indented tree, each
// directory followed by its contents.
func (r *Renderer) RenderEntries(entries []types.PathEntry) error {
	sorted := append([]types.PathEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return lessSegments(strings.Split(sorted[i].Path, "/"), strings.Split(sorted[j].Path, "/"))
	})
	views := make([]entryView, 0, len(sorted))
	for _, e := range sorted {
		views = append(views, entryView{
			Path:       e.Path,
			Name:       e.Entry.Name,
			Depth:      strings.Count(e.Path, "/"),
			Kind:       e.Entry.Kind,
			Executable: e.Entry.Executable,
			FileID:     e.Entry.FileID,
		})
	}
	return r.render("entries.tmpl", views)
}

func lessSegments(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// RenderResults prints the summary of an applied transform.
func (r *Renderer) RenderResults(results *transform.Results) error {
	return r.render("results.tmpl", results)
}

// RenderError renders an error message with appropriate styling
func (r *Renderer) RenderError(err error) error {
	return r.write("<Error>Error:</Error> " + err.Error())
}

// RenderMessage renders a simple message with optional styling
func (r *Renderer) RenderMessage(style, message string) error {
	if style == "" {
		return r.write(message)
	}
	return r.write("<" + style + ">" + message + "</" + style + ">")
}

// WriteYAML writes v as a YAML document.
func (r *Renderer) WriteYAML(v interface{}) error {
	enc := yaml.NewEncoder(r.writer)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}
