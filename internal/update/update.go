// Package update checks GitHub releases for new versions and swaps the
// running binary in place.
package update

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/asheshgoplani/mission-deck/internal/config"
)

const (
	// GitHubRepo is the repository checked for releases
	GitHubRepo = "asheshgoplani/mission-deck"

	// CacheFileName stores the last check result under the state dir
	CacheFileName = "update-cache.json"

	// DefaultCheckInterval is how long a check result stays fresh
	DefaultCheckInterval = 24 * time.Hour
)

var checkInterval = DefaultCheckInterval

// SetCheckInterval overrides the cache freshness window from config.
func SetCheckInterval(hours int) {
	if hours > 0 {
		checkInterval = time.Duration(hours) * time.Hour
	}
}

// Release is the subset of the GitHub release payload we consume.
type Release struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	PublishedAt time.Time `json:"published_at"`
	HTMLURL     string    `json:"html_url"`
	Assets      []Asset   `json:"assets"`
}

// Asset is a downloadable artifact attached to a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// UpdateCache persists the last check so startup notices cost no network.
type UpdateCache struct {
	CheckedAt      time.Time `json:"checked_at"`
	LatestVersion  string    `json:"latest_version"`
	CurrentVersion string    `json:"current_version"`
	DownloadURL    string    `json:"download_url"`
	ReleaseURL     string    `json:"release_url"`
}

// UpdateInfo is the outcome of a version check.
type UpdateInfo struct {
	Available      bool
	CurrentVersion string
	LatestVersion  string
	DownloadURL    string
	ReleaseURL     string
}

func cachePath() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, CacheFileName), nil
}

func loadCache() (*UpdateCache, error) {
	path, err := cachePath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cache UpdateCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

func saveCache(cache *UpdateCache) error {
	path, err := cachePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func fetchLatestRelease() (*Release, error) {
	url := fmt.Sprintf("https://api.github.com/repos/%s/releases/latest", GitHubRepo)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to parse release: %w", err)
	}
	return &release, nil
}

// getAssetURL picks the artifact matching the running platform, or ""
// when the release carries none.
func getAssetURL(release *Release) string {
	version := strings.TrimPrefix(release.TagName, "v")
	want := fmt.Sprintf("mission-deck_%s_%s_%s.tar.gz", version, runtime.GOOS, runtime.GOARCH)
	for _, asset := range release.Assets {
		if asset.Name == want {
			return asset.BrowserDownloadURL
		}
	}
	return ""
}

// CompareVersions orders two dotted versions, tolerating a "v" prefix and
// short forms like "1.0". Returns -1, 0, or 1.
func CompareVersions(v1, v2 string) int {
	a := versionParts(v1)
	b := versionParts(v2)
	for i := 0; i < 3; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func versionParts(v string) [3]int {
	var out [3]int
	fields := strings.Split(strings.TrimPrefix(v, "v"), ".")
	for i := 0; i < 3 && i < len(fields); i++ {
		n, err := strconv.Atoi(strings.TrimSpace(fields[i]))
		if err != nil {
			// Tolerate suffixes like "3-rc1"
			fmt.Sscanf(fields[i], "%d", &n)
		}
		out[i] = n
	}
	return out
}

// CheckForUpdate reports whether a newer release exists. Fresh cache
// entries answer without touching GitHub; forceCheck bypasses the cache.
func CheckForUpdate(currentVersion string, forceCheck bool) (*UpdateInfo, error) {
	info := &UpdateInfo{CurrentVersion: currentVersion}

	if !forceCheck {
		if cache, err := loadCache(); err == nil && time.Since(cache.CheckedAt) < checkInterval {
			info.LatestVersion = cache.LatestVersion
			info.DownloadURL = cache.DownloadURL
			info.ReleaseURL = cache.ReleaseURL
			info.Available = CompareVersions(currentVersion, cache.LatestVersion) < 0
			return info, nil
		}
	}

	release, err := fetchLatestRelease()
	if err != nil {
		return info, err
	}

	info.LatestVersion = strings.TrimPrefix(release.TagName, "v")
	info.DownloadURL = getAssetURL(release)
	info.ReleaseURL = release.HTMLURL
	info.Available = CompareVersions(currentVersion, info.LatestVersion) < 0

	// Cache write failures only cost an extra API call next time
	_ = saveCache(&UpdateCache{
		CheckedAt:      time.Now(),
		LatestVersion:  info.LatestVersion,
		CurrentVersion: currentVersion,
		DownloadURL:    info.DownloadURL,
		ReleaseURL:     info.ReleaseURL,
	})

	return info, nil
}

// PerformUpdate downloads the release artifact and replaces the current
// executable, keeping the old binary until the swap succeeds.
func PerformUpdate(downloadURL string) error {
	if downloadURL == "" {
		return fmt.Errorf("no download URL available for %s/%s", runtime.GOOS, runtime.GOARCH)
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return fmt.Errorf("failed to resolve symlinks: %w", err)
	}

	fmt.Printf("Downloading from %s...\n", downloadURL)
	binaryData, err := downloadAndExtract(downloadURL)
	if err != nil {
		return err
	}

	// Stage next to the target so the final rename stays on one filesystem
	newPath := execPath + ".new"
	if err := os.WriteFile(newPath, binaryData, 0o755); err != nil {
		return fmt.Errorf("failed to write new binary: %w", err)
	}

	oldPath := execPath + ".old"
	if err := os.Rename(execPath, oldPath); err != nil {
		os.Remove(newPath)
		return fmt.Errorf("failed to back up old binary: %w", err)
	}
	if err := os.Rename(newPath, execPath); err != nil {
		_ = os.Rename(oldPath, execPath)
		return fmt.Errorf("failed to install new binary: %w", err)
	}
	os.Remove(oldPath)

	fmt.Println("✓ Update complete!")
	return nil
}

func downloadAndExtract(url string) ([]byte, error) {
	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	tmpFile, err := os.CreateTemp("", "mission-deck-update-*.tar.gz")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	_, err = io.Copy(tmpFile, resp.Body)
	tmpFile.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to save download: %w", err)
	}

	fmt.Println("Extracting...")
	data, err := extractBinaryFromTarGz(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to extract: %w", err)
	}
	return data, nil
}

// extractBinaryFromTarGz pulls the mission-deck entry out of a release
// tarball.
func extractBinaryFromTarGz(tarPath string) ([]byte, error) {
	file, err := os.Open(tarPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if header.Typeflag == tar.TypeReg && header.Name == "mission-deck" {
			return io.ReadAll(tr)
		}
	}
	return nil, fmt.Errorf("mission-deck binary not found in archive")
}

// ChangelogEntry holds one version's section of CHANGELOG.md.
type ChangelogEntry struct {
	Version string
	Date    string
	Content string
}

// FetchChangelog downloads CHANGELOG.md from the repository's main branch.
func FetchChangelog() (string, error) {
	url := fmt.Sprintf("https://raw.githubusercontent.com/%s/main/CHANGELOG.md", GitHubRepo)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to fetch changelog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch changelog: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read changelog: %w", err)
	}
	return string(data), nil
}

// ParseChangelog splits Keep-a-Changelog markdown into per-version
// entries. Headers look like "## [0.6.1] - 2025-12-24".
func ParseChangelog(content string) []ChangelogEntry {
	var entries []ChangelogEntry
	var current *ChangelogEntry
	var body strings.Builder

	finish := func() {
		if current != nil {
			current.Content = strings.TrimSpace(body.String())
			entries = append(entries, *current)
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if !strings.HasPrefix(line, "## [") {
			if current != nil {
				body.WriteString(line)
				body.WriteString("\n")
			}
			continue
		}

		finish()
		body.Reset()

		rest := strings.TrimPrefix(line, "## [")
		version, tail, ok := strings.Cut(rest, "]")
		if !ok {
			current = nil
			continue
		}
		date := ""
		if _, after, found := strings.Cut(tail, " - "); found {
			date = strings.TrimSpace(after)
		}
		current = &ChangelogEntry{Version: version, Date: date}
	}
	finish()

	return entries
}

// GetChangesBetweenVersions keeps the entries newer than current, up to
// and including latest.
func GetChangesBetweenVersions(entries []ChangelogEntry, currentVersion, latestVersion string) []ChangelogEntry {
	var result []ChangelogEntry
	for _, entry := range entries {
		if CompareVersions(entry.Version, currentVersion) > 0 &&
			CompareVersions(entry.Version, latestVersion) <= 0 {
			result = append(result, entry)
		}
	}
	return result
}

// FormatChangelogForDisplay renders entries for the terminal.
func FormatChangelogForDisplay(entries []ChangelogEntry) string {
	if len(entries) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n━━━ What's New ━━━\n")

	for _, entry := range entries {
		sb.WriteString(fmt.Sprintf("\n📦 v%s", entry.Version))
		if entry.Date != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", entry.Date))
		}
		sb.WriteString("\n")

		for _, line := range strings.Split(entry.Content, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if section, ok := strings.CutPrefix(line, "### "); ok {
				sb.WriteString(fmt.Sprintf("\n  [%s]\n", section))
				continue
			}
			sb.WriteString("  " + line + "\n")
		}
	}

	sb.WriteString("\n━━━━━━━━━━━━━━━━━━\n")
	return sb.String()
}
