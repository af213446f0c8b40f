package fetch

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// challengeTitles are page titles served by anti-bot interstitials.
var challengeTitles = []string{
	"just a moment",
	"attention required",
	"please wait",
}

// challengeSelectors match markup present only on interstitial pages.
const challengeSelectors = "#challenge-form, #cf-challenge-running, #challenge-stage, .cf-browser-verification, #cf-wrapper"

// IsChallengePage reports whether body is an anti-bot interstitial rather than real content.
// Only HTML bodies are inspected; JSON and images never match.
func IsChallengePage(contentType string, body []byte) bool {
	if !looksLikeHTML(contentType, body) {
		return false
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}

	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	for _, t := range challengeTitles {
		if strings.HasPrefix(title, t) {
			return true
		}
	}

	return doc.Find(challengeSelectors).Length() > 0
}

func looksLikeHTML(contentType string, body []byte) bool {
	if contentType != "" {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	head := bytes.ToLower(bytes.TrimSpace(body))
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}
