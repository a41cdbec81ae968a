package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nickaq/tg-bot-schedule/internal/vault"
	"github.com/nickaq/tg-bot-schedule/pkg/config"
)

// Outcome enumerates the portal-visible results of one marking attempt.
type Outcome string

const (
	OutcomeMarked        Outcome = "marked"
	OutcomeAlreadyMarked Outcome = "already_marked"
	OutcomeAuthFailed    Outcome = "auth_failed"
	OutcomeNotFound      Outcome = "not_found"
	OutcomeTransient     Outcome = "transient_error"
)

const loginPath = "/login/index.php"

// Client drives authenticated Moodle sessions. Every attempt gets its own
// cookie jar, so concurrent attempts for different users never share state.
type Client struct {
	baseURL   string
	timeout   time.Duration
	extractor Extractor
	transport http.RoundTripper
	logger    *zap.Logger
}

// Option customises the client.
type Option func(*Client)

// WithExtractor replaces the default page extractor.
func WithExtractor(e Extractor) Option {
	return func(c *Client) { c.extractor = e }
}

// WithTransport replaces the HTTP transport, used by tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.transport = rt }
}

// New builds a portal client.
func New(cfg config.PortalConfig, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		timeout:   cfg.Timeout,
		extractor: RegexExtractor{},
		logger:    logger,
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newSession returns a cookie-scoped HTTP client for one attempt.
func (c *Client) newSession() (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Jar:       jar,
		Timeout:   c.timeout,
		Transport: c.transport,
	}, nil
}

// Validate logs in with the given credentials and reports whether the
// portal accepted them.
func (c *Client) Validate(ctx context.Context, creds *vault.Credentials) (bool, error) {
	session, err := c.newSession()
	if err != nil {
		return false, err
	}
	err = c.login(ctx, session, creds)
	if err == errAuthRejected {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

var errAuthRejected = fmt.Errorf("portal rejected credentials")

// login performs the two-step Moodle form login: fetch the login page for
// its CSRF token, then post the credentials.
func (c *Client) login(ctx context.Context, session *http.Client, creds *vault.Credentials) error {
	loginURL := c.baseURL + loginPath

	page, _, err := c.get(ctx, session, loginURL)
	if err != nil {
		return err
	}

	token, ok := c.extractor.LoginToken(page)
	if !ok {
		return fmt.Errorf("login page: no login token found")
	}

	form := url.Values{
		"username":   {creds.Username},
		"password":   {string(creds.Password)},
		"logintoken": {token},
		"anchor":     {""},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := session.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// a failed login lands back on the login page with an error marker
	final := resp.Request.URL.String()
	if strings.Contains(final, "loginerrors") || strings.Contains(final, loginPath) {
		return errAuthRejected
	}
	return nil
}

// MarkAttendance authenticates, locates the self-marking action on the
// lesson page, and submits it as "present".
func (c *Client) MarkAttendance(ctx context.Context, creds *vault.Credentials, lessonURL string) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	session, err := c.newSession()
	if err != nil {
		return OutcomeTransient, err
	}

	if err := c.login(ctx, session, creds); err != nil {
		if err == errAuthRejected {
			return OutcomeAuthFailed, err
		}
		return OutcomeTransient, err
	}

	page, status, err := c.get(ctx, session, lessonURL)
	if err != nil {
		return OutcomeTransient, err
	}
	if status == http.StatusNotFound {
		return OutcomeNotFound, nil
	}
	if status != http.StatusOK {
		return OutcomeTransient, fmt.Errorf("lesson page: unexpected status %d", status)
	}

	if c.extractor.AlreadyMarked(page) {
		return OutcomeAlreadyMarked, nil
	}

	link, ok := c.extractor.SubmissionLink(page)
	if !ok {
		// no open self-marking session on this page: the window is
		// closed or was never opened
		return OutcomeNotFound, nil
	}

	formPage, status, err := c.get(ctx, session, c.absoluteURL(lessonURL, link))
	if err != nil {
		return OutcomeTransient, err
	}
	if status != http.StatusOK {
		return OutcomeTransient, fmt.Errorf("attendance form: unexpected status %d", status)
	}

	if c.extractor.AlreadyMarked(formPage) {
		return OutcomeAlreadyMarked, nil
	}

	action, fields, ok := c.extractor.SubmissionForm(formPage)
	if !ok {
		return OutcomeNotFound, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.absoluteURL(lessonURL, action), strings.NewReader(fields.Encode()))
	if err != nil {
		return OutcomeTransient, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := session.Do(req)
	if err != nil {
		return OutcomeTransient, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return OutcomeTransient, fmt.Errorf("attendance submit: unexpected status %d", resp.StatusCode)
	}
	return OutcomeMarked, nil
}

func (c *Client) get(ctx context.Context, session *http.Client, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := session.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// absoluteURL resolves a page-relative link against the lesson URL.
func (c *Client) absoluteURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
