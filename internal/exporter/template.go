package exporter

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// tokenKind discriminates a parsed template token.
type tokenKind int

const (
	tokenLiteral tokenKind = iota
	tokenOrig
	tokenSeq
	tokenDate
)

type token struct {
	kind    tokenKind
	literal string
	width   int // for tokenSeq
}

// Template is a parsed filename template (spec.md §4.10): tokens
// `{orig}`, `{seq:N}`, `{date}` interleaved with literal text. Parsing
// a template with an unrecognized `{...}` token fails immediately
// rather than at render time.
type Template struct {
	tokens []token
}

// RenderContext supplies the per-asset values a Template substitutes.
type RenderContext struct {
	OrigStem    string // original filename without extension
	Seq         int    // 1-based export sequence number
	CaptureDate *time.Time
}

// ParseTemplate hand-tokenizes s, splitting on `{` / `}` pairs — no
// regex is needed for a token set this small (spec.md's own wording).
func ParseTemplate(s string) (Template, error) {
	var tmpl Template
	i := 0
	for i < len(s) {
		open := strings.IndexByte(s[i:], '{')
		if open < 0 {
			tmpl.tokens = append(tmpl.tokens, token{kind: tokenLiteral, literal: s[i:]})
			break
		}
		open += i
		if open > i {
			tmpl.tokens = append(tmpl.tokens, token{kind: tokenLiteral, literal: s[i:open]})
		}
		close := strings.IndexByte(s[open:], '}')
		if close < 0 {
			return Template{}, fmt.Errorf("exporter: unterminated token starting at %q", s[open:])
		}
		close += open
		name := s[open+1 : close]
		tok, err := parseToken(name)
		if err != nil {
			return Template{}, err
		}
		tmpl.tokens = append(tmpl.tokens, tok)
		i = close + 1
	}
	return tmpl, nil
}

func parseToken(name string) (token, error) {
	switch {
	case name == "orig":
		return token{kind: tokenOrig}, nil
	case name == "date":
		return token{kind: tokenDate}, nil
	case strings.HasPrefix(name, "seq:"):
		widthStr := strings.TrimPrefix(name, "seq:")
		width, err := strconv.Atoi(widthStr)
		if err != nil || width <= 0 {
			return token{}, fmt.Errorf("exporter: invalid {seq:N} width %q", widthStr)
		}
		return token{kind: tokenSeq, width: width}, nil
	default:
		return token{}, fmt.Errorf("exporter: unknown filename template token {%s}", name)
	}
}

// Render substitutes ctx's values into t.
func (t Template) Render(ctx RenderContext) string {
	var b strings.Builder
	for _, tok := range t.tokens {
		switch tok.kind {
		case tokenLiteral:
			b.WriteString(tok.literal)
		case tokenOrig:
			b.WriteString(ctx.OrigStem)
		case tokenSeq:
			b.WriteString(fmt.Sprintf("%0*d", tok.width, ctx.Seq))
		case tokenDate:
			if ctx.CaptureDate != nil {
				b.WriteString(ctx.CaptureDate.Format("2006-01-02"))
			}
		}
	}
	return b.String()
}
