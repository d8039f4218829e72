// Package manifest renders the text summary of an episode and writes it next
// to the episode's audio file.
package manifest

import (
	"fmt"
	"path/filepath"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"github.com/google/renameio/v2"

	"github.com/tmshv/podmirror/internal"
)

const dateLayout = "2006-01-02 15:04"

var nbsp = strings.NewReplacer("&nbsp;", " ", "\u00a0", " ")

// Writer writes one summary file per episode into Dir.
type Writer struct {
	Dir       string
	converter *md.Converter
}

func NewWriter(dir string) *Writer {
	conv := md.NewConverter("", true, nil)
	conv.AddRules(embedRule)

	return &Writer{
		Dir:       dir,
		converter: conv,
	}
}

// embedRule turns players embedded in show notes into plain links; the
// default rules drop them.
var embedRule = md.Rule{
	Filter: []string{"iframe", "audio", "video"},
	Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
		src, ok := selec.Attr("src")
		if !ok || src == "" {
			src, ok = selec.Find("source[src]").First().Attr("src")
		}
		if !ok || strings.TrimSpace(src) == "" {
			return md.String("")
		}
		label := goquery.NodeName(selec)
		if title, ok := selec.Attr("title"); ok && title != "" {
			label = title
		}
		return md.String(fmt.Sprintf("\n\n[%s](%s)\n\n", label, src))
	},
}

// Render returns the summary: title, publish date and duration, then the
// description as markdown.
func (w *Writer) Render(ep internal.Episode) (string, error) {
	description, err := w.converter.ConvertString(ep.DescriptionHTML)
	if err != nil {
		return "", errors.Wrapf(err, "convert description of %s", ep.Identifier())
	}
	description = nbsp.Replace(description)

	var b strings.Builder
	b.WriteString(ep.Title)
	b.WriteString("\n\n")
	b.WriteString(ep.PublishedAt.Format(dateLayout))
	b.WriteString(" - ")
	b.WriteString(ep.Duration)
	b.WriteString("\n\n")
	b.WriteString(description)
	b.WriteString("\n")
	return b.String(), nil
}

// Write renders ep and replaces Dir/<text filename> with it. The content is
// synced to a temp file and renamed into place, so a crash never leaves a
// half-written summary. Filesystem failures are marked with
// internal.ErrFilesystem.
func (w *Writer) Write(ep internal.Episode) (string, error) {
	content, err := w.Render(ep)
	if err != nil {
		return "", err
	}

	target := filepath.Join(w.Dir, ep.TextFilename())
	if err := renameio.WriteFile(target, []byte(content), 0o644); err != nil {
		return "", errors.Mark(errors.Wrapf(err, "write %s", target), internal.ErrFilesystem)
	}
	return target, nil
}
