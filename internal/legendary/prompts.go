package legendary

import (
	"strings"
	"sync"

	"github.com/MythicApp/Mythic-sub001/internal/stream"
)

// Prompt is an interactive question the tool may print, and the answer to
// write back when it does.
type Prompt struct {
	Text   string
	Answer string
}

// Prompts the tool prints during install. Pack selection is already passed
// as --install-tag flags, so the pack prompt is only confirmed.
var (
	PromptConfirmInstall   = Prompt{Text: "Do you wish to install", Answer: "y\n"}
	PromptAdditionalPacks  = Prompt{Text: "Additional packs [Enter to confirm]:", Answer: "\n"}
	PromptConfirmUninstall = Prompt{Text: "Do you wish to uninstall", Answer: "y\n"}
)

// PromptResponder answers prompts chunk by chunk. Prompt text split across
// chunks is still recognised, and each occurrence is answered exactly once.
type PromptResponder struct {
	prompts []Prompt
	keep    int

	mu       sync.Mutex
	tails    [2]string
	answered int
}

// NewPromptResponder returns a responder for prompts.
func NewPromptResponder(prompts ...Prompt) *PromptResponder {
	keep := 0
	for _, p := range prompts {
		if n := len(p.Text) - 1; n > keep {
			keep = n
		}
	}
	return &PromptResponder{prompts: prompts, keep: keep}
}

// Reply implements stream.ReplyFunc.
func (r *PromptResponder) Reply(c stream.Chunk) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	window := r.tails[c.Origin] + c.Text
	var reply strings.Builder
	consumed := 0
	for {
		idx, p := r.next(window[consumed:])
		if idx < 0 {
			break
		}
		reply.WriteString(p.Answer)
		r.answered++
		consumed += idx + len(p.Text)
	}

	rest := window[consumed:]
	if len(rest) > r.keep {
		rest = rest[len(rest)-r.keep:]
	}
	r.tails[c.Origin] = rest

	if reply.Len() == 0 {
		return "", false
	}
	return reply.String(), true
}

// next finds the earliest prompt in s.
func (r *PromptResponder) next(s string) (int, Prompt) {
	best, bestIdx := Prompt{}, -1
	for _, p := range r.prompts {
		if i := strings.Index(s, p.Text); i >= 0 && (bestIdx < 0 || i < bestIdx) {
			best, bestIdx = p, i
		}
	}
	return bestIdx, best
}

// Answered returns how many prompts have been answered.
func (r *PromptResponder) Answered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.answered
}

// InstallResponder returns a responder for the install confirmation and
// pack selection prompts.
func InstallResponder() *PromptResponder {
	return NewPromptResponder(PromptConfirmInstall, PromptAdditionalPacks)
}
