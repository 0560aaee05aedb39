package collector

import (
	"os"
	"strings"
)

// pathMacros maps the recognised %MACRO% names to their environment variables
var pathMacros = map[string]string{
	"APPDATA":                 "APPDATA",
	"ALLUSERSPROFILE":         "ALLUSERSPROFILE",
	"COMMONPROGRAMFILES":      "CommonProgramFiles",
	"COMMONPROGRAMFILES(X86)": "CommonProgramFiles(x86)",
	"LOCALAPPDATA":            "LOCALAPPDATA",
	"PROGRAMFILES":            "ProgramFiles",
	"PROGRAMFILES(X86)":       "ProgramFiles(x86)",
	"PROGRAMDATA":             "ProgramData",
	"PUBLIC":                  "PUBLIC",
	"HOMEDRIVE":               "HOMEDRIVE",
	"SYSTEMDRIVE":             "SystemDrive",
	"SYSTEMROOT":              "SystemRoot",
	"WINDIR":                  "windir",
	"USERPROFILE":             "USERPROFILE",
	"TEMP":                    "TEMP",
	"TMP":                     "TMP",
}

// DirResolver expands %MACRO% directory tokens in IOC paths
type DirResolver struct {
	lookup func(string) (string, bool)
}

// NewDirResolver uses lookup for variable values, or the process environment when nil
func NewDirResolver(lookup func(string) (string, bool)) *DirResolver {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &DirResolver{lookup: lookup}
}

// Resolve replaces known macros. Unknown or unset macros are left in place.
func (r *DirResolver) Resolve(path string) string {
	if !strings.Contains(path, "%") {
		return path
	}

	var b strings.Builder
	rest := path
	for {
		start := strings.IndexByte(rest, '%')
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[start+1:], '%')
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += start + 1

		name := rest[start+1 : end]
		if value, ok := r.value(name); ok {
			b.WriteString(rest[:start])
			b.WriteString(value)
			rest = rest[end+1:]
			continue
		}
		// keep the closing % as a possible opener of the next macro
		b.WriteString(rest[:end])
		rest = rest[end:]
	}
	return b.String()
}

func (r *DirResolver) value(name string) (string, bool) {
	upper := strings.ToUpper(name)
	env, known := pathMacros[upper]
	if !known {
		return "", false
	}
	for _, candidate := range []string{env, upper, name} {
		if v, ok := r.lookup(candidate); ok && v != "" {
			return v, true
		}
	}
	return "", false
}
