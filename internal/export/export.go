// Package export renders chat transcripts and analyses for download.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

// Format is an export file format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatYAML     Format = "yaml"
)

// ParseFormat maps "md"/"markdown"/"yaml"/"yml" to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported export format: %s", s)
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string {
	if f == FormatYAML {
		return ".yaml"
	}
	return ".md"
}

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	if f == FormatYAML {
		return "application/yaml; charset=utf-8"
	}
	return "text/markdown; charset=utf-8"
}

const (
	defaultTitle = "Gemini Foundry Analysis"
	footer       = "\n---\n\n*Exported from Gemini Foundry - AI Co-Founder*"
	dateLayout   = "January 2, 2006 at 3:04 PM"
)

// Transcript is one chat session with its messages.
type Transcript struct {
	Session     types.Session   `yaml:"session"`
	Persona     string          `yaml:"persona"`
	GeneratedAt time.Time       `yaml:"generated_at"`
	Messages    []types.Message `yaml:"messages"`
}

// Markdown renders the transcript with user and persona sections.
func (t Transcript) Markdown() string {
	title := t.Session.Title
	if title == "" {
		title = defaultTitle
	}
	persona := t.Persona
	if persona == "" {
		persona = "Gemini VC"
	}

	b := &strings.Builder{}
	fmt.Fprintf(b, "# %s\n\n", title)
	fmt.Fprintf(b, "**Generated:** %s\n\n", t.GeneratedAt.Format(dateLayout))
	b.WriteString("---\n\n")
	for i, msg := range t.Messages {
		if msg.Role == types.RoleUser {
			fmt.Fprintf(b, "## 💬 User\n\n%s\n\n", msg.Content)
		} else {
			fmt.Fprintf(b, "## 🤖 %s\n\n%s\n\n", persona, msg.Content)
		}
		if i < len(t.Messages)-1 {
			b.WriteString("---\n\n")
		}
	}
	b.WriteString(footer)
	return b.String()
}

// YAML renders the transcript as a YAML document.
func (t Transcript) YAML() ([]byte, error) {
	return yaml.Marshal(t)
}

// Write renders t in format f to w.
func (t Transcript) Write(w io.Writer, f Format) error {
	switch f {
	case FormatYAML:
		data, err := t.YAML()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case FormatMarkdown:
		_, err := io.WriteString(w, t.Markdown())
		return err
	default:
		return fmt.Errorf("unsupported export format: %s", f)
	}
}

// Filename is the suggested download name, e.g. "my-idea_2024-05-01.md".
func (t Transcript) Filename(f Format) string {
	return slug(t.Session.Title) + "_" + t.GeneratedAt.Format("2006-01-02") + f.Extension()
}

// WriteFile renders t into dir and returns the written path.
func (t Transcript) WriteFile(dir string, f Format) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, t.Filename(f))
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := t.Write(file, f); err != nil {
		file.Close()
		return "", err
	}
	return path, file.Close()
}

var analysisTitles = map[types.Kind]string{
	types.KindInvestor:  "💰 Investor Analysis",
	types.KindMarket:    "📊 Market Analysis Report",
	types.KindMVP:       "🔧 MVP Blueprint",
	types.KindPivot:     "🔄 Pivot Strategies",
	types.KindFinancial: "📈 Financial Outlook",
}

// AnalysisMarkdown renders a single structured analysis as a report.
func AnalysisMarkdown(a types.Analysis, now time.Time) (string, error) {
	if a == nil {
		return "", fmt.Errorf("analysis is nil")
	}
	body, err := analysisYAML(a)
	if err != nil {
		return "", err
	}
	b := &strings.Builder{}
	fmt.Fprintf(b, "# %s\n\n", analysisTitles[a.Kind()])
	fmt.Fprintf(b, "**Generated:** %s\n\n", now.Format(dateLayout))
	b.WriteString("---\n\n")
	b.WriteString("```yaml\n")
	b.Write(body)
	b.WriteString("```")
	b.WriteString("\n")
	b.WriteString(footer)
	return b.String(), nil
}

// analysisYAML goes through JSON so the YAML keys match the wire names.
func analysisYAML(a types.Analysis) ([]byte, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return yaml.Marshal(generic)
}

func slug(title string) string {
	if title == "" {
		return "gemini-foundry"
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r > 127:
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	s := strings.TrimRight(b.String(), "-")
	if s == "" {
		return "gemini-foundry"
	}
	return s
}
