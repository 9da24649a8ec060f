package sandbox

import (
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// bridgeAttr marks the script element carrying the SDK bootstrap
const bridgeAttr = "data-openldr-bridge"

// Script is one inline script of an iframe document, in document order.
type Script struct {
	Name   string
	Source string
}

// Document is a parsed iframe payload. The bootstrap is injected as the
// first child of head so it precedes every extension script.
type Document struct {
	mu  sync.Mutex
	doc *goquery.Document
}

// ParseDocument parses an iframe payload, strips the bridge marker and
// injects the bootstrap script.
func ParseDocument(payload []byte) (*Document, error) {
	src := strings.ReplaceAll(string(payload), BridgeMarker, "")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	head := doc.Find("head").First()
	if head.Length() == 0 {
		return nil, fmt.Errorf("parse document: no head element")
	}
	head.PrependHtml(fmt.Sprintf("<script %s></script>", bridgeAttr))
	head.Find("script[" + bridgeAttr + "]").First().SetText(bootstrapSource)

	return &Document{doc: doc}, nil
}

// Scripts returns the inline scripts to run after the bootstrap. External
// scripts are skipped; payloads are self-contained.
func (d *Document) Scripts() []Script {
	d.mu.Lock()
	defer d.mu.Unlock()

	var scripts []Script
	d.doc.Find("script").Each(func(i int, s *goquery.Selection) {
		if _, ok := s.Attr(bridgeAttr); ok {
			return
		}
		if _, ok := s.Attr("src"); ok {
			return
		}
		if t, ok := s.Attr("type"); ok && !isJavaScriptType(t) {
			return
		}
		scripts = append(scripts, Script{
			Name:   fmt.Sprintf("inline-%d.js", len(scripts)+1),
			Source: s.Text(),
		})
	})
	return scripts
}

func isJavaScriptType(t string) bool {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "", "text/javascript", "application/javascript", "module":
		return true
	}
	return false
}

// Render serializes the current document.
func (d *Document) Render() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	html, err := d.doc.Html()
	if err != nil {
		return ""
	}
	return html
}

// Query returns the outer HTML of every element matching selector.
func (d *Document) Query(selector string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []string
	d.doc.Find(selector).Each(func(i int, s *goquery.Selection) {
		if h, err := goquery.OuterHtml(s); err == nil {
			out = append(out, h)
		}
	})
	return out
}

// HasBridgeFirst reports whether the bootstrap is the first element in head.
func (d *Document) HasBridgeFirst() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.doc.Find("head").Children().First().Attr(bridgeAttr)
	return ok
}

func (d *Document) lock() func() {
	d.mu.Lock()
	return d.mu.Unlock
}

