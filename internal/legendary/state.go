package legendary

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// State files the tool maintains under its config directory. They are only
// ever read here.
const (
	installedFile = "installed.json"
	userFile      = "user.json"
	aliasesFile   = "aliases.json"
	metadataDir   = "metadata"
)

// ErrNotInstalled is returned for queries about a game with no entry in
// installed.json.
var ErrNotInstalled = errors.New("game is not installed")

// ErrSignedOut is returned when user.json is missing or empty.
var ErrSignedOut = errors.New("not signed in")

// ErrInvalidAppName is returned for app names that cannot name a state file.
var ErrInvalidAppName = errors.New("invalid app name")

// InstalledGame is one entry of installed.json.
type InstalledGame struct {
	AppName     string   `json:"app_name"`
	Title       string   `json:"title"`
	Version     string   `json:"version"`
	Platform    Platform `json:"platform"`
	InstallPath string   `json:"install_path"`
	InstallSize int64    `json:"install_size"`
	InstallTags []string `json:"install_tags"`
	IsDLC       bool     `json:"is_dlc"`
	NeedsVerify bool     `json:"needs_verification"`
}

// User is the signed-in account from user.json.
type User struct {
	DisplayName string `json:"displayName"`
	AccountID   string `json:"account_id"`
}

// Metadata is the subset of metadata/<app>.json this launcher reads.
type Metadata struct {
	AppName    string             `json:"app_name"`
	AppTitle   string             `json:"app_title"`
	AssetInfos map[Platform]Asset `json:"asset_infos"`
}

// Asset is one platform's build of a catalog entry.
type Asset struct {
	AppName      string `json:"app_name"`
	BuildVersion string `json:"build_version"`
}

// StateStore reads the tool's JSON state. Every call reads from disk so the
// answers follow whatever the tool last wrote.
type StateStore struct {
	dir string
}

// NewStateStore returns a store over the config directory dir.
func NewStateStore(dir string) *StateStore {
	return &StateStore{dir: dir}
}

// Dir returns the config directory.
func (s *StateStore) Dir() string {
	return s.dir
}

func (s *StateStore) readJSON(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}

// Installed returns every installed game keyed by app name. A missing
// installed.json means nothing is installed.
func (s *StateStore) Installed() (map[string]InstalledGame, error) {
	games := make(map[string]InstalledGame)
	err := s.readJSON(installedFile, &games)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]InstalledGame{}, nil
	}
	if err != nil {
		return nil, err
	}
	return games, nil
}

// InstalledGames returns installed games sorted by title.
func (s *StateStore) InstalledGames() ([]InstalledGame, error) {
	games, err := s.Installed()
	if err != nil {
		return nil, err
	}
	out := make([]InstalledGame, 0, len(games))
	for _, g := range games {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].AppName < out[j].AppName
	})
	return out, nil
}

// Game returns the installed entry for app, resolving aliases.
func (s *StateStore) Game(app string) (InstalledGame, error) {
	games, err := s.Installed()
	if err != nil {
		return InstalledGame{}, err
	}
	if g, ok := games[app]; ok {
		return g, nil
	}
	if resolved, err := s.ResolveAlias(app); err == nil {
		if g, ok := games[resolved]; ok {
			return g, nil
		}
	}
	return InstalledGame{}, fmt.Errorf("%s: %w", app, ErrNotInstalled)
}

// IsInstalled reports whether app has an installed entry.
func (s *StateStore) IsInstalled(app string) (bool, error) {
	_, err := s.Game(app)
	if errors.Is(err, ErrNotInstalled) {
		return false, nil
	}
	return err == nil, err
}

// InstallPath returns where app is installed.
func (s *StateStore) InstallPath(app string) (string, error) {
	g, err := s.Game(app)
	if err != nil {
		return "", err
	}
	return g.InstallPath, nil
}

// GamePlatform returns the platform app was installed for.
func (s *StateStore) GamePlatform(app string) (Platform, error) {
	g, err := s.Game(app)
	if err != nil {
		return "", err
	}
	return g.Platform, nil
}

// User returns the signed-in account.
func (s *StateStore) User() (User, error) {
	var u User
	err := s.readJSON(userFile, &u)
	if errors.Is(err, os.ErrNotExist) || (err == nil && u.DisplayName == "") {
		return User{}, ErrSignedOut
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// SignedIn reports whether user.json holds an account.
func (s *StateStore) SignedIn() bool {
	_, err := s.User()
	return err == nil
}

// ResolveAlias maps an alias to its app name. app names resolve to
// themselves when they appear as keys.
func (s *StateStore) ResolveAlias(alias string) (string, error) {
	aliases := make(map[string][]string)
	if err := s.readJSON(aliasesFile, &aliases); err != nil {
		return "", err
	}
	if _, ok := aliases[alias]; ok {
		return alias, nil
	}
	apps := make([]string, 0, len(aliases))
	for app := range aliases {
		apps = append(apps, app)
	}
	sort.Strings(apps)
	for _, app := range apps {
		for _, a := range aliases[app] {
			if a == alias {
				return app, nil
			}
		}
	}
	return "", fmt.Errorf("unknown alias %q", alias)
}

// Metadata returns metadata/<app>.json. App names that are not a single
// path element are rejected.
func (s *StateStore) Metadata(app string) (Metadata, error) {
	if app == "" || app == "." || app == ".." || strings.ContainsAny(app, `/\`) {
		return Metadata{}, fmt.Errorf("%w: %q", ErrInvalidAppName, app)
	}
	var m Metadata
	if err := s.readJSON(filepath.Join(metadataDir, app+".json"), &m); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

// LatestVersion returns the catalog build version of app for platform.
func (s *StateStore) LatestVersion(app string, platform Platform) (string, error) {
	m, err := s.Metadata(app)
	if err != nil {
		return "", err
	}
	asset, ok := m.AssetInfos[platform]
	if !ok {
		return "", fmt.Errorf("%s has no %s build", app, platform)
	}
	return asset.BuildVersion, nil
}

// NeedsUpdate reports whether the installed version of app differs from the
// catalog version for its platform.
func (s *StateStore) NeedsUpdate(app string) (bool, error) {
	g, err := s.Game(app)
	if err != nil {
		return false, err
	}
	latest, err := s.LatestVersion(g.AppName, g.Platform)
	if err != nil {
		return false, err
	}
	return latest != "" && latest != g.Version, nil
}
