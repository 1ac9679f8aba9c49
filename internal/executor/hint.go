package executor

import "strings"

var hints = []struct {
	markers []string
	hint    string
}{
	{[]string{"missing script"}, "the npm script is missing: add it to package.json or change the rule's commands"},
	{[]string{"cannot find module"}, "a module could not be resolved: run npm install"},
	{[]string{"not found", "enoent", "no such file"}, "the program was not found: install it or check PATH"},
	{[]string{"permission denied", "eacces", "eperm"}, "permission denied: check file modes and ownership"},
	{[]string{"timed out"}, "the command timed out: raise scheduler.command_timeout or narrow the rule's patterns"},
	{[]string{"no space left", "enospc"}, "the disk is full: free space and retry"},
}

// Hint returns advisory remediation text for a failed result, if any marker matches.
func Hint(res Result) (string, bool) {
	if res.Success {
		return "", false
	}
	text := strings.ToLower(res.Error + "\n" + res.Output)
	for _, h := range hints {
		for _, m := range h.markers {
			if strings.Contains(text, m) {
				return h.hint, true
			}
		}
	}
	return "", false
}
