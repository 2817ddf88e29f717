package main

import "strings"

// PageState categorizes a captured page into a known failure or success mode.
type PageState string

const (
	StateLoginPage     PageState = "LOGIN_PAGE"
	StateCheckpoint    PageState = "CHECKPOINT"
	StateChallenge     PageState = "CHALLENGE"
	StateCaptcha       PageState = "CAPTCHA"
	StateAuthenticated PageState = "AUTHENTICATED"
	StateUnknown       PageState = "UNKNOWN"
)

// ClassificationResult is the outcome of classifying a captured page.
type ClassificationResult struct {
	State    PageState
	Evidence string // short excerpt around the matched marker
}

// classifyRule is one entry in the ordered rule table. Rules are evaluated
// top-down; the first matching marker wins.
type classifyRule struct {
	state   PageState
	markers []string
}

const evidenceLen = 120

// Classify maps captured page content plus its URL to a page state. It is
// deterministic and side-effect free. The rule table is ordered
// most-specific-first: CAPTCHA, CHALLENGE and CHECKPOINT are tested before
// the generic LOGIN_PAGE marker so a challenge page is never reported as an
// ordinary login prompt. The authenticated marker short-circuits everything.
func Classify(p *Platform, content, url string) ClassificationResult {
	haystack := content + "\n" + url

	if p.AuthMarker != "" {
		if ev, ok := findMarker(haystack, p.AuthMarker); ok {
			return ClassificationResult{State: StateAuthenticated, Evidence: ev}
		}
	}

	rules := []classifyRule{
		{StateCaptcha, p.CaptchaMarkers},
		{StateChallenge, p.ChallengeMarkers},
		{StateCheckpoint, p.CheckpointMarkers},
		{StateLoginPage, p.LoginMarkers},
	}

	for _, rule := range rules {
		for _, marker := range rule.markers {
			if ev, ok := findMarker(haystack, marker); ok {
				return ClassificationResult{State: rule.state, Evidence: ev}
			}
		}
	}

	return ClassificationResult{State: StateUnknown, Evidence: excerpt(content, 0)}
}

// findMarker reports whether marker occurs in haystack (case-insensitive)
// and returns a bounded excerpt around the first occurrence.
func findMarker(haystack, marker string) (string, bool) {
	idx := strings.Index(strings.ToLower(haystack), strings.ToLower(marker))
	if idx < 0 {
		return "", false
	}
	return excerpt(haystack, idx), true
}

// excerpt returns up to evidenceLen characters starting near idx, with
// newlines collapsed so the result fits on one step-log line.
func excerpt(s string, idx int) string {
	if len(s) == 0 {
		return ""
	}
	end := idx + evidenceLen
	if end > len(s) {
		end = len(s)
	}
	out := s[idx:end]
	out = strings.ReplaceAll(out, "\n", " ")
	out = strings.ReplaceAll(out, "\r", " ")
	return strings.TrimSpace(out)
}
