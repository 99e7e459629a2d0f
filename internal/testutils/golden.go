package testutils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pmezard/go-difflib/difflib"
)

// UpdateGoldenEnv forces golden files to be rewritten when set to "1".
const UpdateGoldenEnv = "WALLETOP_UPDATE_GOLDEN"

// CheckGoldenFile compares actual with the file at expectFilePath.
// The file is rewritten from actual only when UpdateGoldenEnv is set.
func CheckGoldenFile(t TestingT, actual []byte, expectFilePath string) {
	t.Helper()

	if os.Getenv(UpdateGoldenEnv) == "1" {
		writeGoldenFile(t, actual, expectFilePath)
		return
	}

	expect, err := os.ReadFile(expectFilePath)
	if os.IsNotExist(err) {
		t.Error(fmt.Sprintf("golden file %s is missing, run with %s=1 to create it", expectFilePath, UpdateGoldenEnv))
		return
	} else if err != nil {
		t.Error(err)
		return
	}

	if string(expect) != string(actual) {
		diff := difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(expect)),
			B:        difflib.SplitLines(string(actual)),
			FromFile: expectFilePath,
			ToFile:   "actual",
			Context:  5,
		}
		d, err := difflib.GetUnifiedDiffString(diff)
		if err != nil {
			t.Fatal(err)
		}
		t.Error(d)
	}
}

func writeGoldenFile(t TestingT, actual []byte, expectFilePath string) {
	t.Helper()

	err := os.MkdirAll(filepath.Dir(expectFilePath), 0755)
	if err != nil {
		t.Fatal(err)
	}
	err = os.WriteFile(expectFilePath, actual, 0644)
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("golden file %s is written", expectFilePath)
}
