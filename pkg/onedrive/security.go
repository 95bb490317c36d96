package onedrive

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Path validation errors. All of them match ErrInvalidArgument.
var (
	ErrPathTraversal = fmt.Errorf("%w: path traversal", ErrInvalidArgument)
	ErrInvalidPath   = fmt.Errorf("%w: invalid path", ErrInvalidArgument)
	ErrFileExists    = fmt.Errorf("%w: file already exists", ErrInvalidArgument)
)

const (
	maxPathLength = 400
	maxNameLength = 255
)

// invalidNameChars cannot appear in OneDrive item names.
const invalidNameChars = `<>:"/\|?*`

// DrivePath turns a slash-separated path relative to the drive root into the
// reference GetDriveItem expects: "/" becomes "root" and "/Documents/a.txt"
// becomes "root:/Documents/a.txt". Every segment is checked with
// ValidateFileName.
func DrivePath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("%w: NUL byte in path", ErrInvalidPath)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrPathTraversal, p)
		}
	}

	cleaned := path.Clean("/" + p)
	if cleaned == "/" {
		return "root", nil
	}
	if len(cleaned) > maxPathLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidPath, maxPathLength)
	}
	for _, seg := range strings.Split(strings.TrimPrefix(cleaned, "/"), "/") {
		if err := ValidateFileName(seg); err != nil {
			return "", err
		}
	}
	return "root:" + cleaned, nil
}

// ValidateFileName checks a single item name against OneDrive's rules.
func ValidateFileName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPath)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name longer than %d bytes", ErrInvalidPath, maxNameLength)
	}
	if i := strings.IndexAny(name, invalidNameChars); i >= 0 {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidPath, name, name[i])
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrPathTraversal, name)
	}
	if strings.HasSuffix(name, " ") || strings.HasSuffix(name, ".") {
		return fmt.Errorf("%w: %q ends with a space or period", ErrInvalidPath, name)
	}

	base, _, _ := strings.Cut(strings.ToUpper(name), ".")
	switch base {
	case "CON", "PRN", "AUX", "NUL",
		"COM0", "COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9",
		"LPT0", "LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9":
		return fmt.Errorf("%w: %q is a reserved name", ErrInvalidPath, name)
	}
	return nil
}

// SanitizeLocalPath cleans a local path and makes it absolute. Paths that
// climb out of their starting directory with ".." are rejected.
func SanitizeLocalPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("%w: NUL byte in path", ErrInvalidPath)
	}
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrPathTraversal, p)
		}
	}

	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("%w: resolving %q: %w", ErrInvalidPath, p, err)
	}
	return abs, nil
}

// SecureCreateFile creates localPath for a download. Missing parent
// directories are created. Unless overwrite is set an existing file is an
// ErrFileExists error.
func SecureCreateFile(localPath string, overwrite bool) (*os.File, error) {
	clean, err := SanitizeLocalPath(localPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(clean), 0o755); err != nil {
		return nil, fmt.Errorf("creating parent directory of %q: %w", clean, err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(clean, flags, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileExists, clean)
		}
		return nil, fmt.Errorf("creating %q: %w", clean, err)
	}
	return f, nil
}
