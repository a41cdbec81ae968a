package portal

import (
	"html"
	"net/url"
	"regexp"
)

// Extractor pulls the few values the client needs out of portal pages. The
// page markup is otherwise treated as opaque; deployments facing a
// different portal skin swap this implementation.
type Extractor interface {
	// LoginToken returns the CSRF token embedded in the login form.
	LoginToken(page []byte) (string, bool)
	// SubmissionLink returns the self-marking link on a lesson page.
	SubmissionLink(page []byte) (string, bool)
	// SubmissionForm returns the attendance form action, its hidden
	// fields, and the field/value pair meaning "present".
	SubmissionForm(page []byte) (action string, fields url.Values, ok bool)
	// AlreadyMarked reports whether the page says attendance was
	// already recorded for this session.
	AlreadyMarked(page []byte) bool
}

var (
	loginTokenRe = regexp.MustCompile(`name="logintoken"\s+value="([^"]+)"|value="([^"]+)"\s+name="logintoken"`)
	submitLinkRe = regexp.MustCompile(`href="([^"]*mod/attendance[^"]*(?:sessid|sesskey)[^"]*)"`)
	formActionRe = regexp.MustCompile(`<form[^>]+action="([^"]*attendance[^"]*)"`)
	hiddenRe     = regexp.MustCompile(`<input[^>]+type="hidden"[^>]+name="([^"]+)"[^>]+value="([^"]*)"`)
	presentRe    = regexp.MustCompile(`<input[^>]+type="radio"[^>]+name="(status[^"]*)"[^>]+value="(\d+)"`)
	recordedRe   = regexp.MustCompile(`(?i)already (been )?(recorded|submitted)|attendance of this student has been recorded|ви вже відмітил`)
)

// RegexExtractor is the default page extractor. It understands the stock
// Moodle attendance module markup and nothing more.
type RegexExtractor struct{}

// LoginToken implements Extractor.
func (RegexExtractor) LoginToken(page []byte) (string, bool) {
	m := loginTokenRe.FindSubmatch(page)
	if m == nil {
		return "", false
	}
	if len(m[1]) > 0 {
		return string(m[1]), true
	}
	return string(m[2]), true
}

// SubmissionLink implements Extractor.
func (RegexExtractor) SubmissionLink(page []byte) (string, bool) {
	m := submitLinkRe.FindSubmatch(page)
	if m == nil {
		return "", false
	}
	return html.UnescapeString(string(m[1])), true
}

// SubmissionForm implements Extractor.
func (RegexExtractor) SubmissionForm(page []byte) (string, url.Values, bool) {
	action := formActionRe.FindSubmatch(page)
	if action == nil {
		return "", nil, false
	}

	fields := url.Values{}
	for _, m := range hiddenRe.FindAllSubmatch(page, -1) {
		fields.Set(string(m[1]), string(m[2]))
	}

	present := presentRe.FindSubmatch(page)
	if present == nil {
		return "", nil, false
	}
	fields.Set(string(present[1]), string(present[2]))

	return html.UnescapeString(string(action[1])), fields, true
}

// AlreadyMarked implements Extractor.
func (RegexExtractor) AlreadyMarked(page []byte) bool {
	return recordedRe.Match(page)
}
