package utils

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)
	slackTokenRe  = regexp.MustCompile(`\bxox[abposr]-[A-Za-z0-9-]+`)
	webhookPathRe = regexp.MustCompile(`(hooks\.slack\.com/services/)[^\s"']+`)
	passwordKVRe  = regexp.MustCompile(`(?i)\b(password|passwd|pwd)\s*=\s*[^\s"']+`)
)

// RedactSecrets removes obvious secret-bearing substrings from error and log
// strings: bearer tokens, Slack tokens, webhook paths, DSN passwords and
// URL userinfo passwords.
func RedactSecrets(s string) string {
	if s == "" {
		return ""
	}
	out := bearerTokenRe.ReplaceAllString(s, "Bearer <redacted>")
	out = slackTokenRe.ReplaceAllString(out, "<redacted-token>")
	out = webhookPathRe.ReplaceAllString(out, "${1}<redacted>")
	out = passwordKVRe.ReplaceAllString(out, "${1}=<redacted>")
	return strings.TrimSpace(out)
}

// RedactURL hides the password component of a connection URL. Strings that
// do not parse as URLs fall back to RedactSecrets.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return RedactSecrets(raw)
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "redacted")
		}
	}
	return RedactSecrets(u.String())
}
