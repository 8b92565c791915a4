package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"steamwatch/internal/match"
	kit "steamwatch/internal/transport"
	"steamwatch/internal/watch"
	logx "steamwatch/pkg/logx"
)

const platformName = "telegram"

func botCommands() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "track", Description: "Watch a game's price (name or appid)"},
		{Command: "untrack", Description: "Stop watching a game"},
		{Command: "list", Description: "Show your watched games"},
		{Command: "check", Description: "Run a price check now"},
		{Command: "help", Description: "Show help"},
	}
}

const helpText = `Steam price watch:
/track <name|appid> - watch a game, get a message when its price changes
/untrack <name|appid> - stop watching
/list - your watched games
/check - run a price check now
/listall - every subscription (owner only)`

func (a *App) commandLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case up := <-a.updates:
			if up.Message == nil {
				continue
			}
			m := up.Message
			// Handlers may block on the catalog gate; keep the loop free.
			go a.handleMessage(ctx, m)
		}
	}
}

// addressFor derives the subscriber address of an incoming message: group
// chats subscribe the (user, group) pair so the user gets mentioned, direct
// chats subscribe the user alone.
func addressFor(m *kit.Message) watch.Address {
	user := strconv.FormatInt(m.FromID, 10)
	if m.IsGroup {
		return watch.NewGroup(platformName, user, strconv.FormatInt(m.ChatID, 10))
	}
	return watch.NewDirect(platformName, user)
}

func (a *App) handleMessage(ctx context.Context, m *kit.Message) {
	text := strings.TrimSpace(m.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0][1:])
	// Group chats address commands as /track@BotName.
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	args := fields[1:]
	addr := addressFor(m)

	switch cmd {
	case "track":
		a.cmdTrack(ctx, m, addr, args)
	case "untrack":
		a.cmdUntrack(ctx, m, addr, args)
	case "list":
		a.cmdList(ctx, m, addr)
	case "check":
		a.cmdCheck(ctx, m)
	case "listall":
		a.cmdListAll(ctx, m)
	case "help", "start":
		a.reply(ctx, m, helpText)
	}
}

func (a *App) reply(ctx context.Context, m *kit.Message, text string) {
	err := a.adapter.SendText(ctx, kit.ChatTarget{ChatID: m.ChatID}, text, &kit.SendOptions{DisablePreview: true})
	if err != nil {
		a.log.Warn("reply failed", logx.Int64("chat", m.ChatID), logx.Err(err))
	}
}

// resolveCatalog turns a command argument list into a catalog entry: a
// single numeric argument is an appid, anything else is a fuzzy name query
// against the given universe.
func (a *App) resolveCatalog(args []string, universe map[string]int64) (appID int64, name string, ok bool) {
	if len(args) == 1 && isDecimal(args[0]) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return 0, "", false
		}
		// Validate against the full catalog so typo'd ids don't get watched.
		n, found := a.cat.Name(id)
		if !found {
			return 0, "", false
		}
		return id, n, true
	}
	res, found := match.Resolve(strings.Join(args, " "), universe)
	if !found {
		return 0, "", false
	}
	return res.AppID, res.Name, true
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (a *App) awaitCatalog(ctx context.Context, m *kit.Message) bool {
	if err := a.cat.AwaitReady(ctx); err != nil {
		return false
	}
	if a.cat.Len() == 0 {
		a.reply(ctx, m, "The game catalog could not be loaded yet, please try again later.")
		return false
	}
	return true
}

func (a *App) cmdTrack(ctx context.Context, m *kit.Message, addr watch.Address, args []string) {
	if len(args) == 0 {
		a.reply(ctx, m, "Usage: /track <name|appid>, e.g. /track Cyberpunk 2077")
		return
	}
	if !a.awaitCatalog(ctx, m) {
		return
	}

	query := strings.Join(args, " ")
	appID, name, ok := a.resolveCatalog(args, a.cat.Universe())
	if !ok {
		a.reply(ctx, m, fmt.Sprintf("No game found for %q. Check the spelling or use the appid.", query))
		return
	}

	region := a.cfgMgr.Get().Tracker.Region
	id := strconv.FormatInt(appID, 10)
	already, err := a.watch.Subscribe(ctx, id, name, region, addr)
	if err != nil {
		a.log.Error("subscribe failed", logx.String("appid", id), logx.Err(err))
		a.reply(ctx, m, "Could not save the subscription, please try again.")
		return
	}
	if already {
		a.reply(ctx, m, fmt.Sprintf("You are already watching %s here.", name))
		return
	}
	a.reply(ctx, m, fmt.Sprintf("Now watching %s (appid %s). You'll hear from me when its price changes.", name, id))

	// Record the baseline promptly instead of waiting a full interval.
	go a.runRound(a.runCtx)
}

func (a *App) cmdUntrack(ctx context.Context, m *kit.Message, addr watch.Address, args []string) {
	if len(args) == 0 {
		a.reply(ctx, m, "Usage: /untrack <name|appid>")
		return
	}
	if !a.awaitCatalog(ctx, m) {
		return
	}

	// Name queries resolve against the caller's own subscriptions only.
	query := strings.Join(args, " ")
	appID, name, ok := a.resolveCatalog(args, a.watch.Universe(addr))
	if !ok {
		a.reply(ctx, m, fmt.Sprintf("%q doesn't match anything you're watching.", query))
		return
	}

	id := strconv.FormatInt(appID, 10)
	removed, err := a.watch.Unsubscribe(ctx, id, addr)
	if err != nil {
		a.log.Error("unsubscribe failed", logx.String("appid", id), logx.Err(err))
		a.reply(ctx, m, "Could not update the subscription, please try again.")
		return
	}
	if !removed {
		a.reply(ctx, m, fmt.Sprintf("You are not watching %s here.", name))
		return
	}
	a.reply(ctx, m, fmt.Sprintf("Stopped watching %s.", name))
}

func (a *App) cmdList(ctx context.Context, m *kit.Message, addr watch.Address) {
	items := a.watch.ListByAddress(addr)
	if len(items) == 0 {
		a.reply(ctx, m, "You are not watching any games here. Use /track to add one.")
		return
	}
	var b strings.Builder
	b.WriteString("Your watched games:\n")
	for i, it := range items {
		b.WriteString(watch.FormatItem(i+1, it))
		b.WriteString("\n")
	}
	a.reply(ctx, m, b.String())
}

func (a *App) cmdCheck(ctx context.Context, m *kit.Message) {
	a.reply(ctx, m, "Checking prices now...")
	go a.runRound(a.runCtx)
}

func (a *App) cmdListAll(ctx context.Context, m *kit.Message) {
	if !a.isOwner(m.FromID) {
		a.reply(ctx, m, "This command is owner-only.")
		return
	}
	items := a.watch.ListAll()
	if len(items) == 0 {
		a.reply(ctx, m, "Nothing is being watched.")
		return
	}
	var b strings.Builder
	b.WriteString("All subscriptions:\n")
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s (appid %s)\n", i+1, it.Name, it.AppID)
		for _, raw := range it.Subscribers {
			sub := watch.ParseAddress(raw)
			switch sub.Kind {
			case watch.KindDirect:
				fmt.Fprintf(&b, "   - user %s\n", sub.UserID)
			case watch.KindGroup:
				if sub.UserID != "" {
					fmt.Fprintf(&b, "   - group %s (user %s)\n", sub.GroupID, sub.UserID)
				} else {
					fmt.Fprintf(&b, "   - group %s\n", sub.GroupID)
				}
			default:
				fmt.Fprintf(&b, "   - %s\n", raw)
			}
		}
	}
	a.reply(ctx, m, b.String())
}

func (a *App) isOwner(userID int64) bool {
	for _, id := range a.cfgMgr.Get().Telegram.OwnerUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
