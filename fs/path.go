package fs

import "strings"

// Path_parse splits off the leftmost component of pathname: leading and
// repeated '/' collapse, the component lands in the first return value and
// the unconsumed tail (starting at its separator) in the second. An empty
// tail means the walk is done.
func Path_parse(pathname string) (string, string) {
	i := 0
	for i < len(pathname) && pathname[i] == '/' {
		i++
	}
	j := i
	for j < len(pathname) && pathname[j] != '/' {
		j++
	}
	return pathname[i:j], pathname[j:]
}

/// Path_depth_cnt counts the components of a path: "/a/b/c" has depth 3.
func Path_depth_cnt(pathname string) int {
	depth := 0
	name, rest := Path_parse(pathname)
	for name != "" {
		depth++
		name, rest = Path_parse(rest)
	}
	return depth
}

// convert_path collapses '.' and '..' in an absolute path: "/a/b/../c"
// becomes "/a/c" and excess '..' stops at the root.
func convert_path(old_abs string) string {
	if old_abs == "" || old_abs[0] != '/' {
		panic("convert_path of relative path")
	}
	newp := "/"
	name, rest := Path_parse(old_abs)
	for name != "" {
		switch name {
		case "..":
			slash := strings.LastIndexByte(newp, '/')
			if slash > 0 {
				newp = newp[:slash]
			} else {
				newp = "/"
			}
		case ".":
			// nothing
		default:
			if newp != "/" {
				newp += "/"
			}
			newp += name
		}
		name, rest = Path_parse(rest)
	}
	return newp
}

// Make_clear_abs_path turns path into a canonical absolute path, prefixing
// the task's working directory when it is relative.
func Make_clear_abs_path(path string) string {
	abs := path
	if len(path) == 0 || path[0] != '/' {
		cwd := Sys_getcwd()
		if cwd == "/" {
			abs = "/" + path
		} else {
			abs = cwd + "/" + path
		}
	}
	return convert_path(abs)
}
