package transform

import (
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/use-agent/provas/models"
)

var imgWithSrc = cascadia.MustCompile("img[src]")

// ServePath maps a local file to its path under the local-serving prefix.
// Both Windows and POSIX separators are accepted in localPath.
func ServePath(prefix, localPath string) string {
	base := path.Base(strings.ReplaceAll(localPath, `\`, "/"))
	return strings.TrimRight(prefix, "/") + "/" + base
}

// InsertStatementImages appends one <img> per local path to statement,
// captioned "Imagem da questão N" with N counting from 1.
func InsertStatementImages(statement string, localPaths []string, prefix string) string {
	if len(localPaths) == 0 {
		return statement
	}
	var b strings.Builder
	b.WriteString(statement)
	for i, p := range localPaths {
		caption := fmt.Sprintf("Imagem da questão %d", i+1)
		fmt.Fprintf(&b, `<p><img src="%s" alt="%s" title="%s"></p>`,
			html.EscapeString(ServePath(prefix, p)),
			html.EscapeString(caption),
			html.EscapeString(caption),
		)
	}
	return b.String()
}

// ImageURLs lists every remote image a question references: the statement
// image, the explanation image and any <img src> embedded in the statement.
// URLs are returned once each, in first-seen order. Data URIs are skipped.
func ImageURLs(q models.CapturedQuestion) []string {
	seen := make(map[string]struct{})
	var urls []string
	add := func(u string) {
		u = strings.TrimSpace(u)
		if !isRemote(u) {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	add(q.Image)
	if q.Explanation != nil {
		add(q.Explanation.Image)
	}
	for _, src := range embeddedSources(q.Statement) {
		add(src)
	}
	return urls
}

// CollectImageURLs unions ImageURLs over qs.
func CollectImageURLs(qs []models.CapturedQuestion) []string {
	seen := make(map[string]struct{})
	var urls []string
	for _, q := range qs {
		for _, u := range ImageURLs(q) {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
		}
	}
	return urls
}

// RewriteStatementImages replaces embedded <img src> values found in local
// (remote URL to local file path) with their serving path. The statement is
// returned untouched when nothing matches.
func RewriteStatementImages(statement string, local map[string]string, prefix string) string {
	if len(local) == 0 || !strings.Contains(statement, "<img") {
		return statement
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(statement))
	if err != nil {
		return statement
	}

	changed := false
	doc.FindMatcher(imgWithSrc).Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if p, ok := local[strings.TrimSpace(src)]; ok {
			s.SetAttr("src", ServePath(prefix, p))
			changed = true
		}
	})
	if !changed {
		return statement
	}

	out, err := doc.Find("body").Html()
	if err != nil {
		return statement
	}
	return out
}

// Localize applies downloaded images to a transformed question: embedded
// statement images are rewritten, the statement image is appended, and
// the explanation image points at its local copy. local maps remote URL
// to local file path and holds only successful downloads.
func Localize(t *models.TransformedQuestion, q models.CapturedQuestion, local map[string]string, prefix string) {
	t.Statement = RewriteStatementImages(t.Statement, local, prefix)

	var appended []string
	if p, ok := local[strings.TrimSpace(q.Image)]; ok {
		appended = append(appended, p)
	}
	t.Statement = InsertStatementImages(t.Statement, appended, prefix)

	t.Images = t.Images[:0]
	for _, u := range ImageURLs(q) {
		if p, ok := local[u]; ok {
			t.Images = append(t.Images, ServePath(prefix, p))
		}
	}
	if len(t.Images) == 0 {
		t.Images = nil
	}

	if q.Explanation != nil {
		if p, ok := local[strings.TrimSpace(q.Explanation.Image)]; ok {
			t.ExplanationImage = ServePath(prefix, p)
		}
	}
}

func embeddedSources(statement string) []string {
	if !strings.Contains(statement, "<img") {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(statement))
	if err != nil {
		return nil
	}
	var srcs []string
	doc.FindMatcher(imgWithSrc).Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			srcs = append(srcs, src)
		}
	})
	return srcs
}

func isRemote(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}
