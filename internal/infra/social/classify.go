package social

import "strings"

// Per-provider error classification. "Recoverable" tells the external
// scheduler it may retry the same logical operation; classification errs
// toward recoverable so transient platform hiccups are not treated as
// permanent, while content-policy violations (duplicates, length,
// permission) are fatal to avoid retry storms against a request that is
// guaranteed to fail again.

// Bluesky error kinds that stay recoverable regardless of status code.
var blueskyRecoverableKinds = map[string]bool{
	"ExpiredToken":    true,
	"UpstreamFailure": true,
	"UpstreamTimeout": true,
}

func blueskyRecoverable(err error) bool {
	pErr, ok := asPlatformError(err)
	if !ok {
		// Transport and crawl failures are transient by default.
		return true
	}
	if pErr.StatusCode == 200 {
		return true
	}
	return blueskyRecoverableKinds[pErr.Kind]
}

// Twitter codes that are fatal: 186 tweet too long, 187 duplicate status,
// 261 application write-disabled, 326 account temporarily locked.
var twitterFatalCodes = map[int]bool{
	186: true,
	187: true,
	261: true,
	326: true,
}

func twitterRecoverable(err error) bool {
	return !twitterFatalCodes[errorCode(err, false)]
}

func linkedinRecoverable(err error) bool {
	pErr, ok := asPlatformError(err)
	if !ok {
		return true
	}
	// 409 signals duplicate content.
	if errorCode(err, true) == 409 {
		return false
	}
	// Query-parse rejections never succeed on retry.
	if pErr.Kind == "CANNOT_PARSE_QUERY" || strings.Contains(strings.ToLower(pErr.Message), "parse") {
		return false
	}
	return true
}

// Facebook codes that are fatal: 1 unknown error, 506 duplicate post,
// 200 permission error, 368 temporarily blocked, 100 invalid URL/parameter,
// 500 generic server error.
var facebookFatalCodes = map[int]bool{
	1:   true,
	506: true,
	200: true,
	368: true,
	100: true,
	500: true,
}

func facebookRecoverable(err error) bool {
	// With no platform code the HTTP status (>= 400) stands in as the code.
	return !facebookFatalCodes[errorCode(err, true)]
}
