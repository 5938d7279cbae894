package post

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf16"
)

const (
	// MaxTextLength bounds the characters of post text kept for hashing and display.
	MaxTextLength = 1000

	// FingerprintPrefixLength is how many UTF-16 code units of text take part
	// in a fingerprint. Keys written by the browser extension count the same way.
	FingerprintPrefixLength = 100

	fingerprintHexLength = 16
	maxGroupKeyLength    = 50
)

// Post is a single group post as scraped from the page or read off a screenshot.
type Post struct {
	Author    string `json:"author"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`

	// Set only when the post comes from DOM extraction.
	Likes    string `json:"likes,omitempty"`
	Comments string `json:"comments,omitempty"`
	Index    int    `json:"index,omitempty"`
}

// Fingerprint returns a short, stable content hash of the post. Posts with the
// same author and the same first 100 characters of text share a fingerprint.
func Fingerprint(p Post) string {
	content := p.Author + ":" + prefixUTF16(p.Text, FingerprintPrefixLength)
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:fingerprintHexLength]
}

// GroupKey normalizes a human readable group name into a storage-safe
// partition key: lowercase, [a-z0-9] only, at most 50 characters. Every other
// UTF-16 code unit becomes '_', so a character outside the BMP turns into "__".
func GroupKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if b.Len() == maxGroupKeyLength {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		n := utf16.RuneLen(r)
		if n < 1 {
			n = 1
		}
		for ; n > 0 && b.Len() < maxGroupKeyLength; n-- {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Normalize trims post text, drops posts with no text and truncates the rest
// to MaxTextLength characters. Order is preserved.
func Normalize(posts []Post) []Post {
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		p.Text = strings.TrimSpace(p.Text)
		if p.Text == "" {
			continue
		}
		p.Text = prefix(p.Text, MaxTextLength)
		p.Author = strings.TrimSpace(p.Author)
		p.Timestamp = strings.TrimSpace(p.Timestamp)
		out = append(out, p)
	}
	return out
}

// Dedupe keeps the first post for every fingerprint, preserving the order of
// first occurrence.
func Dedupe(posts []Post) []Post {
	seen := make(map[string]struct{}, len(posts))
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		fp := Fingerprint(p)
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, p)
	}
	return out
}

// FormatBlock renders posts into the text block handed to a summarizer.
//
//	[Post 1]
//	Author: Jane
//	Time: 2h
//	Text: ...
//	---
//	[Post 2]
//	...
func FormatBlock(posts []Post) string {
	var sb strings.Builder
	for i, p := range posts {
		if i > 0 {
			sb.WriteString("---\n")
		}
		sb.WriteString(fmt.Sprintf("[Post %d]\n", i+1))
		sb.WriteString(fmt.Sprintf("Author: %s\n", p.Author))
		sb.WriteString(fmt.Sprintf("Time: %s\n", p.Timestamp))
		sb.WriteString(fmt.Sprintf("Text: %s\n", p.Text))
	}
	return sb.String()
}

// prefix returns at most n runes of s.
// prefixUTF16 returns the first n UTF-16 code units of s. A surrogate pair cut
// in half leaves a lone surrogate, which encodes as U+FFFD.
func prefixUTF16(s string, n int) string {
	units := 0
	for i, r := range s {
		size := utf16.RuneLen(r)
		if size < 1 {
			size = 1
		}
		if units+size > n {
			if units < n {
				return s[:i] + "\uFFFD"
			}
			return s[:i]
		}
		units += size
	}
	return s
}

func prefix(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
