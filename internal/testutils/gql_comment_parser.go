package testutils

import (
	"fmt"
	"regexp"
)

// FindOptionString reads a `# option:<name>: <value>` directive from a GraphQL fixture.
func FindOptionString(t TestingT, optionName, source string) string {
	t.Helper()

	pattern := fmt.Sprintf("(?m)^# option:%s:\\s*([^\\s]+)$", regexp.QuoteMeta(optionName))
	re, err := regexp.Compile(pattern)
	if err != nil {
		t.Fatal(err)
	}

	ss := re.FindStringSubmatch(source)
	if len(ss) != 2 {
		t.Logf("option %s value is not found", optionName)
		return ""
	}

	return ss[1]
}

func FindOptionBool(t TestingT, optionName, source string) bool {
	t.Helper()

	return FindOptionString(t, optionName, source) == "true"
}
