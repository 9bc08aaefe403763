package meta

import "regexp"

// secretPatterns is the fixed set of regexes used to flag files that look
// like they carry live credentials. No third-party secret-scanning
// library appears anywhere in the reference corpus, so this is plain
// regexp over file content -- a narrow floor, not a ceiling.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b[A-Za-z0-9_-]*api[_-]?key\b\s*[:=]\s*['"][A-Za-z0-9_\-\.]{16,}['"]`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`), // AWS access key ID
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
	regexp.MustCompile(`(?i)\b(password|passwd|pwd|token|secret)\b\s*[:=]\s*['"][^'"]{8,}['"]`),
}

// allowListedPlaceholders marks values that look like secrets syntactically
// but are placeholders, not live credentials.
var allowListedPlaceholders = []string{"YOUR_", "EXAMPLE", "CHANGEME"}

// ContainsSecrets reports whether content matches any secret pattern and
// is not fully explained by the placeholder allow-list. A match is
// ignored only when the matched text itself contains an allow-listed
// placeholder substring.
func ContainsSecrets(content string) bool {
	for _, pat := range secretPatterns {
		for _, match := range pat.FindAllString(content, -1) {
			if !isPlaceholder(match) {
				return true
			}
		}
	}
	return false
}

func isPlaceholder(match string) bool {
	for _, ph := range allowListedPlaceholders {
		if containsFold(match, ph) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(substr)).MatchString(s)
}
