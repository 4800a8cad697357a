package browser

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// FindChromium resolves the browser binary. customPath wins when set;
// otherwise the usual install locations for this OS are searched, then PATH.
func FindChromium(customPath string) (string, error) {
	if customPath != "" {
		info, err := os.Stat(customPath)
		if err != nil {
			return "", fmt.Errorf("chromium binary not found at path: %s", customPath)
		}
		if info.IsDir() || !isExecutable(info) {
			return "", fmt.Errorf("chromium binary found but not executable: %s", customPath)
		}
		return customPath, nil
	}

	for _, path := range chromiumPaths(runtime.GOOS) {
		if info, err := os.Stat(path); err == nil && !info.IsDir() && isExecutable(info) {
			return path, nil
		}
	}

	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("chromium not found in common paths for %s, set CHROMIUM_PATH", runtime.GOOS)
}

func isExecutable(info os.FileInfo) bool {
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0o111 != 0
}

// chromiumPaths returns common Chromium installation paths based on OS
func chromiumPaths(goos string) []string {
	switch goos {
	case "darwin":
		return []string{
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		}
	case "linux":
		return []string{
			"/usr/bin/chromium-browser",
			"/usr/bin/chromium",
			"/snap/bin/chromium",
			"/usr/bin/google-chrome",
		}
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	}
	return nil
}
