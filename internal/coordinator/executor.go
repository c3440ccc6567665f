package coordinator

import (
	"context"

	"github.com/MythicApp/Mythic-sub001/internal/legendary"
	"github.com/MythicApp/Mythic-sub001/internal/parser"
)

// LegendaryExecutor runs operations through a legendary client. The running
// command is registered under legendary.InstallID, which is how Cancel finds
// it in the registry.
type LegendaryExecutor struct {
	Client *legendary.Client
}

// Execute implements Executor.
func (e LegendaryExecutor) Execute(ctx context.Context, req Request, status *parser.Status, onLine func(parser.Line)) error {
	_, err := e.Client.Install(ctx, req.InstallOptions(), status, onLine)
	return err
}

// Cancel implements Executor.
func (e LegendaryExecutor) Cancel(req Request) error {
	return e.Client.Stop(legendary.InstallID(req.Game))
}
