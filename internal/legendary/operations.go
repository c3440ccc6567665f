package legendary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MythicApp/Mythic-sub001/internal/parser"
	"github.com/MythicApp/Mythic-sub001/internal/process"
)

// InstallID is the registry identifier of an install, update or repair of
// game. At most one such run per game is registered at a time.
func InstallID(game string) string {
	return "install:" + game
}

// Install runs an install, update or repair and answers its prompts.
// Progress is written to status when non-nil.
func (c *Client) Install(ctx context.Context, o InstallOptions, status *parser.Status, onLine func(parser.Line)) (*process.Result, error) {
	if o.Game == "" {
		return nil, fmt.Errorf("install: game is required")
	}
	if o.Platform != "" && !o.Platform.Valid() {
		return nil, fmt.Errorf("install: unsupported platform %q", o.Platform)
	}
	responder := InstallResponder()
	return c.Run(ctx, Invocation{
		ID:       InstallID(o.Game),
		Args:     InstallArgs(o),
		Reply:    responder.Reply,
		Mutating: true,
		Status:   status,
		OnLine:   onLine,
	})
}

// Uninstall removes game.
func (c *Client) Uninstall(ctx context.Context, o UninstallOptions) error {
	responder := NewPromptResponder(PromptConfirmUninstall)
	_, err := c.Run(ctx, Invocation{
		ID:       "uninstall:" + o.Game,
		Args:     UninstallArgs(o),
		Reply:    responder.Reply,
		Mutating: true,
	})
	return err
}

// Login exchanges an authorization code for a session.
func (c *Client) Login(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("login: authorization code is required")
	}
	_, err := c.Run(ctx, Invocation{
		ID:   "auth",
		Args: LoginArgs(code),
	})
	return err
}

// Logout deletes the stored session.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.Run(ctx, Invocation{
		ID:   "auth",
		Args: LogoutArgs(),
	})
	return err
}

// Move records that game now lives under newBase.
func (c *Client) Move(ctx context.Context, game, newBase string) error {
	_, err := c.Run(ctx, Invocation{
		ID:       "move:" + game,
		Args:     MoveArgs(game, newBase),
		Mutating: true,
	})
	return err
}

// LibraryGame is one entry of the account's library.
type LibraryGame struct {
	AppName string `json:"app_name"`
	Title   string `json:"app_title"`
}

// Library lists the games the account owns for platform. With cached set it
// may return the previous listing while a fresh one is fetched.
func (c *Client) Library(ctx context.Context, platform Platform, cached bool) ([]LibraryGame, error) {
	res, err := c.Run(ctx, Invocation{
		Args:     ListArgs(platform),
		UseCache: cached,
	})
	if err != nil {
		return nil, err
	}
	var games []LibraryGame
	if err := json.Unmarshal([]byte(res.Stdout), &games); err != nil {
		return nil, fmt.Errorf("parsing library listing: %w", err)
	}
	return games, nil
}

// AccountStatus is the output of status --json.
type AccountStatus struct {
	Account         string `json:"account"`
	GamesAvailable  int    `json:"games_available"`
	GamesInstalled  int    `json:"games_installed"`
	ConfigDirectory string `json:"config_directory"`
}

// Status queries the tool's account summary. It is short and low-output, so
// it goes through the blocking path.
func (c *Client) Status(ctx context.Context) (AccountStatus, error) {
	res, err := c.Run(ctx, Invocation{Args: StatusArgs()})
	if err != nil {
		return AccountStatus{}, err
	}
	var s AccountStatus
	if err := json.Unmarshal([]byte(res.Stdout), &s); err != nil {
		return AccountStatus{}, fmt.Errorf("parsing status: %w", err)
	}
	return s, nil
}
