package util

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// htmlTagPattern matches HTML tags like <span>, </span>, <div>, </div>, etc.
	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
	// multiSpacePattern matches multiple consecutive whitespace characters
	multiSpacePattern = regexp.MustCompile(`\s+`)
	// countrySuffixPattern matches a trailing ", USA" / ", United States".
	countrySuffixPattern = regexp.MustCompile(`(?i),?\s*(USA|United States)\s*$`)
)

// CleanAddress removes HTML remnants and normalizes an address string coming from the
// search backend or the places API.
func CleanAddress(s string) string {
	if s == "" {
		return ""
	}

	// 1. Fix escaped HTML closing tags and forward slashes
	s = strings.ReplaceAll(s, `<\/`, `</`)
	s = strings.ReplaceAll(s, `\/`, `/`)

	// 2. Remove HTML tags
	s = htmlTagPattern.ReplaceAllString(s, "")

	// 3. Decode common HTML entities
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")
	s = strings.ReplaceAll(s, "&nbsp;", " ")

	// 4. Normalize whitespace, then drop the country suffix
	s = multiSpacePattern.ReplaceAllString(s, " ")
	s = countrySuffixPattern.ReplaceAllString(strings.TrimSpace(s), "")

	return strings.TrimSpace(s)
}

// CleanAddressPtr applies CleanAddress to an optional address, returning nil when the
// cleaned value is empty.
func CleanAddressPtr(s *string) *string {
	if s == nil {
		return nil
	}
	cleaned := CleanAddress(*s)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

// DescribeLocation returns the cleaned address if known, else the raw "lat, lng" pair.
func DescribeLocation(address *string, lat, lng float64) string {
	if a := CleanAddressPtr(address); a != nil {
		return *a
	}
	return fmt.Sprintf("%v, %v", lat, lng)
}
