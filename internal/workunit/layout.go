package workunit

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MarkerName is the file the analysis tool writes last into an output
// directory. Its presence is the only proof of completion.
const MarkerName = "finished"

// OutputDir derives root/divided/<id[1:3]>/<id>. Identifiers that could
// name a path outside that tree are rejected.
func OutputDir(root, identifier string) (string, error) {
	if len(identifier) < 3 {
		return "", fmt.Errorf("%w: %q is shorter than 3 characters", ErrInvalidIdentifier, identifier)
	}
	if strings.ContainsAny(identifier, `/\`) || strings.ContainsRune(identifier, filepath.Separator) {
		return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidIdentifier, identifier)
	}
	if strings.Contains(identifier, "..") {
		return "", fmt.Errorf("%w: %q contains '..'", ErrInvalidIdentifier, identifier)
	}
	return filepath.Join(root, "divided", identifier[1:3], identifier), nil
}

// LogPath is the default log location inside an output directory.
func LogPath(outputDir, identifier string) string {
	return filepath.Join(outputDir, identifier+".out")
}
