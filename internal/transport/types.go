package transport

import "context"

type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type ChatTarget struct {
	ChatID int64
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

const ParseModeHTML = "HTML"

// Adapter is a chat platform connection: it feeds incoming messages into
// out and delivers outgoing text.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface adapters can implement to
// update platform-specific command menus.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
