// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger for the API. It
// scrubs personal data from request metadata before emitting logs and attaches
// a request-scoped logger that handlers retrieve with LoggerFrom.
//
// Partner discovery takes the caller's position as lat/lon query parameters,
// so coordinates are redacted along with emails and phone numbers. Bodies
// (message text) are never logged.
package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
type RedactOptions struct {
	// MaskHeaders lists extra header names whose values are replaced with
	// "[REDACTED]". Authorization, Cookie and Set-Cookie are always masked.
	MaskHeaders []string
	// MaskParams lists extra query parameters whose values are replaced.
	// lat and lon are always masked.
	MaskParams []string
}

var (
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
	// Candidate UUIDs; matches are confirmed with uuid.Parse before being
	// exempted from phone scrubbing.
	uuidRE = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)
)

// redactText replaces emails and phone numbers in s. UUIDs (user and
// request ids) are kept verbatim: their digit groups look like phone numbers.
func redactText(s string) string {
	if s == "" {
		return s
	}
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")

	var b strings.Builder
	last := 0
	for _, loc := range uuidRE.FindAllStringIndex(s, -1) {
		if _, err := uuid.Parse(s[loc[0]:loc[1]]); err != nil {
			continue
		}
		b.WriteString(phoneRE.ReplaceAllString(s[last:loc[0]], "[REDACTED:phone]"))
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(phoneRE.ReplaceAllString(s[last:], "[REDACTED:phone]"))
	return b.String()
}

// redactQuery masks the listed parameters and scrubs the rest. Unparseable
// queries are scrubbed as plain text.
func redactQuery(raw string, masked map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		return redactText(raw)
	}
	for k, vs := range q {
		if _, ok := masked[strings.ToLower(k)]; ok {
			q[k] = []string{"[REDACTED:geo]"}
			continue
		}
		for i := range vs {
			vs[i] = redactText(vs[i])
		}
	}
	// Encode escapes the brackets; readability wins for logs.
	out, _ := url.QueryUnescape(q.Encode())
	return out
}

// RedactingLogger returns a Gin middleware that logs each request with
// sensitive values scrubbed. 5xx responses log at error, 4xx at warn and the
// rest at info.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}
	maskParams := map[string]struct{}{"lat": {}, "lon": {}}
	for _, p := range opts.MaskParams {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			maskParams[p] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := truncate(redactQuery(c.Request.URL.RawQuery, maskParams), maxQueryLogLength)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redactText(strings.Join(vv, ", "))
		}

		rid, _ := c.Get(requestIDKey)
		l := log.With().
			Str("request_id", asString(rid)).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set(loggerKey, &l)

		c.Next()

		status := c.Writer.Status()
		ev := l.Info()
		switch {
		case len(c.Errors) > 0 || status >= 500:
			ev = l.Error()
		case status >= 400:
			ev = l.Warn()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}

		ev.
			Str("user_id", UserID(c)).
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
