package legendary

// Argument builders for the subset of the tool's grammar this launcher
// drives. Each returns the argument vector only; Client supplies the binary.

// Platform is a build platform as the tool names it.
type Platform string

const (
	PlatformWindows Platform = "Windows"
	PlatformMac     Platform = "Mac"
)

// Valid reports whether p is a platform the tool accepts.
func (p Platform) Valid() bool {
	return p == PlatformWindows || p == PlatformMac
}

// InstallKind selects between a fresh install, an update and a repair.
type InstallKind int

const (
	KindInstall InstallKind = iota
	KindUpdate
	KindRepair
)

func (k InstallKind) String() string {
	switch k {
	case KindInstall:
		return "install"
	case KindUpdate:
		return "update"
	case KindRepair:
		return "repair"
	default:
		return "unknown"
	}
}

// InstallOptions are the arguments of an install, update or repair.
type InstallOptions struct {
	Game       string
	Kind       InstallKind
	Platform   Platform
	BaseDir    string
	GameFolder string

	// Packs are optional install tags. They are passed as --install-tag
	// flags and also offered at the "Additional packs" prompt.
	Packs []string
}

// InstallArgs builds
// install <id> [--platform P] [--base-path DIR] [--game-folder DIR] [--repair|--update-only].
func InstallArgs(o InstallOptions) []string {
	args := []string{"install", o.Game}
	if o.Platform != "" {
		args = append(args, "--platform", string(o.Platform))
	}
	if o.BaseDir != "" {
		args = append(args, "--base-path", o.BaseDir)
	}
	if o.GameFolder != "" {
		args = append(args, "--game-folder", o.GameFolder)
	}
	switch o.Kind {
	case KindRepair:
		args = append(args, "--repair")
	case KindUpdate:
		args = append(args, "--update-only")
	}
	for _, p := range o.Packs {
		args = append(args, "--install-tag", p)
	}
	return args
}

// UninstallOptions are the arguments of an uninstall.
type UninstallOptions struct {
	Game            string
	KeepFiles       bool
	SkipUninstaller bool
}

// UninstallArgs builds -y uninstall [--keep-files] [--skip-uninstaller] <id>.
func UninstallArgs(o UninstallOptions) []string {
	args := []string{"-y", "uninstall"}
	if o.KeepFiles {
		args = append(args, "--keep-files")
	}
	if o.SkipUninstaller {
		args = append(args, "--skip-uninstaller")
	}
	return append(args, o.Game)
}

// LoginArgs builds auth --code <key>.
func LoginArgs(code string) []string {
	return []string{"auth", "--code", code}
}

// LogoutArgs builds auth --delete.
func LogoutArgs() []string {
	return []string{"auth", "--delete"}
}

// ListArgs builds list --platform P --third-party --json.
func ListArgs(platform Platform) []string {
	return []string{"list", "--platform", string(platform), "--third-party", "--json"}
}

// StatusArgs builds status --json --offline.
func StatusArgs() []string {
	return []string{"status", "--json", "--offline"}
}

// MoveArgs builds -y move <id> <new base path> --skip-move. The files are
// expected to have been moved already.
func MoveArgs(game, newBase string) []string {
	return []string{"-y", "move", game, newBase, "--skip-move"}
}
