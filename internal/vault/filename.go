package vault

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// illegalChars are the characters notes apps reject in file names.
var illegalChars = strings.NewReplacer(
	`\`, "_",
	"/", "_",
	":", "_",
	`"`, "_",
	"*", "_",
	"?", "_",
	"<", "_",
	">", "_",
	"|", "_",
)

// CleanFilename replaces every character that is illegal in a file name
// with an underscore, one for one.
func CleanFilename(name string) string {
	return illegalChars.Replace(name)
}

// Allocate cleans name and returns a path inside folder that does not exist
// in s yet. Collisions are resolved by appending " 1", " 2", ... to the
// stem, keeping the extension.
func Allocate(ctx context.Context, s Store, name, folder string) (string, error) {
	name = CleanFilename(name)
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := path.Join(folder, name)
	for i := 1; ; i++ {
		taken, err := s.Exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("allocating %s: %w", name, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = path.Join(folder, fmt.Sprintf("%s %d%s", stem, i, ext))
	}
}

// EnsureFolder creates folder unless it already exists.
func EnsureFolder(ctx context.Context, s Store, folder string) error {
	if folder == "" {
		return nil
	}
	ok, err := s.Exists(ctx, folder)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return s.CreateFolder(ctx, folder)
}
