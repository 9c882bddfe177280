package session

import "strings"

// normalizePath joins a possibly-relative input path onto cwd (always
// absolute) and collapses `.` and `..` segments lexically — there are no
// symlinks in the virtual store, so this is a pure string operation.
func normalizePath(cwd, input string) string {
	if input == "" {
		return cwd
	}

	var base string
	if strings.HasPrefix(input, "/") {
		base = input
	} else {
		base = cwd + "/" + input
	}

	segments := strings.Split(base, "/")
	var stack []string
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, seg)
		}
	}

	if len(stack) == 0 {
		return "/"
	}
	return "/" + strings.Join(stack, "/")
}
