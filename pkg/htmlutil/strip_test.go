package htmlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"plain text", "Hello world", "Hello world"},
		{"multiple paragraphs", "<p>First paragraph</p><p>Second paragraph</p>", "First paragraph\nSecond paragraph"},
		{"nested inline tags", "<p><strong>Bold</strong> and <em>italic</em></p>", "Bold and italic"},
		{"br variants", "Line one<br>Line two<br/>Line three<br />Line four", "Line one\nLine two\nLine three\nLine four"},
		{"attributes", `<p style="font-weight: 600">Styled text</p>`, "Styled text"},
		{"named entities", "Tom &amp; Jerry &mdash; the classic", "Tom & Jerry — the classic"},
		{"numeric entities", "&#60;tag&#62; &#8220;quoted&#8221;", "<tag> “quoted”"},
		{"nbsp", "Hello&nbsp;world", "Hello world"},
		{"collapses spaces", "Too    many    spaces", "Too many spaces"},
		{"list items", "<ul><li>Item one</li><li>Item two</li></ul>", "Item one\nItem two"},
		{"headings", "<h1>Title</h1><p>Content</p>", "Title\nContent"},
		{"self-closing", "Text <img src='test.jpg'/> more text", "Text more text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, StripTags(tt.input))
		})
	}
}

func TestExtractTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		doc      string
		expected string
	}{
		{
			name:     "title element",
			doc:      `<?xml version="1.0"?><html xmlns="http://www.w3.org/1999/xhtml"><head><title> The  Beginning </title></head><body><h1>Ignored</h1></body></html>`,
			expected: "The Beginning",
		},
		{
			name:     "empty title falls back to heading",
			doc:      `<html><head><title> </title></head><body><h2>Part <em>One</em></h2></body></html>`,
			expected: "Part One",
		},
		{
			name:     "nothing usable",
			doc:      `<html><body><p>Just text</p></body></html>`,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, ExtractTitle([]byte(tt.doc)))
		})
	}
}
