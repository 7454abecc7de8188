package tagger

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	gaText      = regexp.MustCompile(`=\s*(\d+)\s*W\s*([0-7])\s*D`)
	depthText   = regexp.MustCompile(`^\s*(\d+(?:\.\d*)?)\s*CM`)
	obesityText = regexp.MustCompile(`D\s*(\d+(?:\.\d*)?)\s*CM`)
)

// ParseGA converts gestational age text such as "GA=12W3D" to days.
func ParseGA(s string) (float64, error) {
	m := gaText.FindStringSubmatch(strings.ToUpper(s))
	if m == nil {
		return 0, fmt.Errorf("not a gestational age: %q", s)
	}
	weeks, _ := strconv.Atoi(m[1])
	days, _ := strconv.Atoi(m[2])
	return float64(weeks*7 + days), nil
}

// ParseDepth converts depth text such as "14.5cm" to centimetres.
func ParseDepth(s string) (float64, error) {
	return parseCM(depthText, s, "depth")
}

// ParseObesity converts an obesity marker such as "D 3.2CM" to centimetres.
func ParseObesity(s string) (float64, error) {
	return parseCM(obesityText, s, "obesity marker")
}

func parseCM(re *regexp.Regexp, s, what string) (float64, error) {
	m := re.FindStringSubmatch(strings.ToUpper(s))
	if m == nil {
		return 0, fmt.Errorf("not a %s: %q", what, s)
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(m[1], "."), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", what, s, err)
	}
	return v, nil
}

// ParseNumber parses a plain signed decimal such as a gain reading.
func ParseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "."), 64)
}

// Parser returns the named field parser: "ga", "depth", "obesity" or
// "number". The empty name means no parser.
func Parser(name string) (func(string) (float64, error), error) {
	switch strings.ToLower(name) {
	case "":
		return nil, nil
	case "ga":
		return ParseGA, nil
	case "depth":
		return ParseDepth, nil
	case "obesity":
		return ParseObesity, nil
	case "number":
		return ParseNumber, nil
	default:
		return nil, fmt.Errorf("unknown field parser %q", name)
	}
}
