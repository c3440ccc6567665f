package coordinator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/MythicApp/Mythic-sub001/internal/legendary"
)

// Request is one install, update or repair to run. Two requests are
// duplicates when every field is equal; pack order matters.
type Request struct {
	Game       string
	Kind       legendary.InstallKind
	Platform   legendary.Platform
	Packs      []string
	BaseDir    string
	GameFolder string
}

// Key encodes every field of r. Equal requests have equal keys.
func (r Request) Key() string {
	var b strings.Builder
	for _, f := range []string{
		r.Game,
		strconv.Itoa(int(r.Kind)),
		string(r.Platform),
		r.BaseDir,
		r.GameFolder,
	} {
		b.WriteString(strconv.Quote(f))
		b.WriteByte('|')
	}
	for _, p := range r.Packs {
		b.WriteString(strconv.Quote(p))
		b.WriteByte(',')
	}
	return b.String()
}

// Equal reports whether r and o are the same request.
func (r Request) Equal(o Request) bool {
	return r.Key() == o.Key()
}

// String returns "<kind> <game>" for logs.
func (r Request) String() string {
	return fmt.Sprintf("%s %s", r.Kind, r.Game)
}

// InstallOptions converts r into the tool's install options.
func (r Request) InstallOptions() legendary.InstallOptions {
	return legendary.InstallOptions{
		Game:       r.Game,
		Kind:       r.Kind,
		Platform:   r.Platform,
		BaseDir:    r.BaseDir,
		GameFolder: r.GameFolder,
		Packs:      r.Packs,
	}
}
