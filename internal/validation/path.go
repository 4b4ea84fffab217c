// Package validation checks user-supplied paths and template names before
// they reach the file system.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

var restrictedPaths = []string{
	"/etc/",
	"/proc/",
	"/sys/",
	"/dev/",
	"/boot/",
}

var dangerousChars = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}

// ValidatePath rejects empty paths, directory traversal, system
// directories and shell metacharacters.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path traversal detected: %s", path)
	}

	lower := strings.ToLower(filepath.ToSlash(cleanPath))
	for _, restricted := range restrictedPaths {
		if strings.HasPrefix(lower+"/", restricted) {
			return fmt.Errorf("access to restricted path denied: %s", path)
		}
	}

	for _, char := range dangerousChars {
		if strings.Contains(path, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}
	return nil
}

// ValidateTemplateName checks a slash-separated template name such as
// "blog/post". Segments may not be empty, relative, or hidden.
func ValidateTemplateName(name string) error {
	if name == "" {
		return fmt.Errorf("template name cannot be empty")
	}
	for _, segment := range strings.Split(name, "/") {
		switch {
		case segment == "":
			return fmt.Errorf("template name %q has an empty segment", name)
		case segment == "." || segment == "..":
			return fmt.Errorf("template name %q is relative", name)
		case strings.HasPrefix(segment, "."):
			return fmt.Errorf("template name %q names a hidden file", name)
		case strings.ContainsAny(segment, `\`+strings.Join(dangerousChars, "")):
			return fmt.Errorf("template name %q contains a dangerous character", name)
		}
	}
	return nil
}

// ValidateFileExtension checks that filename has one of the allowed
// extensions, compared case-insensitively.
func ValidateFileExtension(filename string, allowed []string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return fmt.Errorf("file %s has no extension", filename)
	}
	for _, a := range allowed {
		if ext == strings.ToLower(a) {
			return nil
		}
	}
	return fmt.Errorf("extension %s not allowed (allowed: %s)", ext, strings.Join(allowed, ", "))
}
