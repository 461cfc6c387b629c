package export

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/browser"
)

var (
	defaultOpenURL  = browser.OpenURL
	defaultOpenFile = browser.OpenFile

	openURL  = defaultOpenURL
	openFile = defaultOpenFile
)

// Open hands target to the system browser or default player. Local paths
// are opened as files.
func Open(target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return fmt.Errorf("export: nothing to open")
	}
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		if err := openURL(target); err != nil {
			return fmt.Errorf("export: couldn't open %s: %w", target, err)
		}
		return nil
	}
	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("export: couldn't open %s: %w", target, err)
	}
	if err := openFile(target); err != nil {
		return fmt.Errorf("export: couldn't open %s: %w", target, err)
	}
	return nil
}
