package geonames

import (
	"archive/zip"
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/philtim/figured/cards"
)

const (
	// GeoNamesURL is the download URL for cities with 15000+ population
	GeoNamesURL = "http://download.geonames.org/export/dump/cities15000.zip"
	// CacheFileName is the name of the cached cities file
	CacheFileName = "cities15000.txt"
)

var (
	// ErrReferenceDataUnavailable is returned by lookups while no reference
	// table has been loaded.
	ErrReferenceDataUnavailable = errors.New("reference data unavailable")

	// ErrLocationNotFound is returned when a query matches no city.
	ErrLocationNotFound = errors.New("location not found")
)

//go:embed locations.json
var builtinLocations []byte

// Database holds the reference cities
type Database struct {
	cities []cards.Location
	seen   map[cards.Location]struct{}
	ready  bool
	err    error
	mu     sync.RWMutex
}

// NewDatabase creates a new, empty reference database
func NewDatabase() *Database {
	return &Database{
		cities: []cards.Location{},
		seen:   make(map[cards.Location]struct{}),
	}
}

// LoadBuiltin loads the city table shipped with the binary
func (db *Database) LoadBuiltin() error {
	cities, err := parseJSON(builtinLocations)
	if err != nil {
		return fmt.Errorf("failed to parse built-in locations: %w", err)
	}
	db.add(cities)
	return nil
}

// LoadFile loads a reference table from disk. Files ending in .json use the
// locations.json layout, anything else is read as a GeoNames dump.
func (db *Database) LoadFile(path string) error {
	var (
		cities []cards.Location
		err    error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		var data []byte
		data, err = os.ReadFile(path)
		if err == nil {
			cities, err = parseJSON(data)
		}
	} else {
		cities, err = parseFile(path)
	}
	if err != nil {
		db.fail(err)
		return fmt.Errorf("failed to load reference data from %s: %w", path, err)
	}
	db.add(cities)
	return nil
}

// LoadAsync downloads and loads the GeoNames database in the background.
// The returned channel receives the result once and is then closed.
func (db *Database) LoadAsync(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		err := db.LoadGeoNames(ctx)
		if err != nil {
			db.fail(err)
		}
		done <- err
	}()
	return done
}

// LoadGeoNames downloads (if needed) and loads the GeoNames database
func (db *Database) LoadGeoNames(ctx context.Context) error {
	cachePath, err := getCachePath()
	if err != nil {
		return fmt.Errorf("failed to get cache path: %w", err)
	}

	// Check if cache file exists
	if _, err := os.Stat(cachePath); os.IsNotExist(err) {
		if err := downloadAndExtract(ctx, GeoNamesURL, cachePath); err != nil {
			return fmt.Errorf("failed to download GeoNames data: %w", err)
		}
	}

	cities, err := parseFile(cachePath)
	if err != nil {
		return fmt.Errorf("failed to parse GeoNames data: %w", err)
	}

	db.add(cities)
	return nil
}

func (db *Database) add(cities []cards.Location) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, c := range cities {
		if _, dup := db.seen[c]; dup {
			continue
		}
		db.seen[c] = struct{}{}
		db.cities = append(db.cities, c)
	}
	db.ready = len(db.cities) > 0
}

func (db *Database) fail(err error) {
	db.mu.Lock()
	db.err = err
	db.mu.Unlock()
}

// IsReady returns whether any reference table is loaded
func (db *Database) IsReady() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.ready
}

// GetError returns the last error that occurred during loading
func (db *Database) GetError() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.err
}

// Len returns the number of reference cities
func (db *Database) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.cities)
}

// getCachePath returns the path to the cache file
func getCachePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	cacheDir := filepath.Join(homeDir, ".cache", "figured")
	return filepath.Join(cacheDir, CacheFileName), nil
}

// downloadAndExtract downloads the GeoNames zip file and extracts it. The
// archive is a temp file that is always removed, and targetPath only appears
// once the extracted table is complete.
func downloadAndExtract(ctx context.Context, url, targetPath string) error {
	cacheDir := filepath.Dir(targetPath)
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tempZip, err := os.CreateTemp(cacheDir, "cities15000-*.zip.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tempZip.Name())

	err = downloadFile(ctx, url, tempZip)
	if cerr := tempZip.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}

	if err := extractFile(tempZip.Name(), CacheFileName, targetPath); err != nil {
		return fmt.Errorf("failed to extract file: %w", err)
	}

	return nil
}

// downloadFile downloads a file from URL into out
func downloadFile(ctx context.Context, url string, out io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	_, err = io.Copy(out, resp.Body)
	return err
}

// extractFile extracts a specific file from a zip archive, writing it to a
// temp file next to targetPath and renaming it into place.
func extractFile(zipPath, fileName, targetPath string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != fileName {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}
		defer rc.Close()

		tempFile, err := os.CreateTemp(filepath.Dir(targetPath), fileName+"-*.tmp")
		if err != nil {
			return fmt.Errorf("failed to create temp file: %w", err)
		}
		tempPath := tempFile.Name()

		if _, err := io.Copy(tempFile, rc); err != nil {
			tempFile.Close()
			os.Remove(tempPath)
			return err
		}

		if err := tempFile.Close(); err != nil {
			os.Remove(tempPath)
			return err
		}

		if err := os.Rename(tempPath, targetPath); err != nil {
			os.Remove(tempPath)
			return err
		}
		return nil
	}

	return fmt.Errorf("file %s not found in zip archive", fileName)
}

// parseJSON reads the locations.json layout: an array of
// {iana, city, countryName, countryCode} objects.
func parseJSON(data []byte) ([]cards.Location, error) {
	var raw []cards.Location
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	cities := make([]cards.Location, 0, len(raw))
	for _, loc := range raw {
		loc.IANA = strings.TrimSpace(loc.IANA)
		loc.City = strings.TrimSpace(loc.City)
		if loc.IANA == "" || loc.City == "" {
			continue
		}
		if loc.CountryName == "" {
			loc.CountryName = countryName(loc.CountryCode)
		}
		cities = append(cities, loc)
	}
	return cities, nil
}

// parseFile parses a GeoNames cities dump such as cities15000.txt
func parseFile(path string) ([]cards.Location, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return parseTSV(file)
}

func parseTSV(r io.Reader) ([]cards.Location, error) {
	var cities []cards.Location
	names := make(map[string]string)
	scanner := bufio.NewScanner(r)

	// Increase buffer size for long lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")

		// We need at least 18 fields (timezone is at index 17)
		if len(fields) < 18 {
			continue
		}

		name := fields[1]        // City name
		countryCode := fields[8] // Country code
		timezone := fields[17]   // Timezone

		if timezone == "" || name == "" {
			continue
		}

		country, ok := names[countryCode]
		if !ok {
			country = countryName(countryCode)
			names[countryCode] = country
		}

		cities = append(cities, cards.Location{
			IANA:        timezone,
			City:        name,
			CountryName: country,
			CountryCode: countryCode,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return cities, nil
}

// countryName returns the English name of an ISO 3166 country code, or the
// code itself when it is not a known region.
func countryName(code string) string {
	region, err := language.ParseRegion(code)
	if err != nil {
		return code
	}
	if name := display.English.Regions().Name(region); name != "" {
		return name
	}
	return code
}
