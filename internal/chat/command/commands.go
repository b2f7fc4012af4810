// Package command provides the chat command table, the line parser, and a
// name/alias registry.
package command

// Prefix marks a line as a command.
const Prefix = "!"

// Categories for organizing commands.
const (
	CategoryInfo       = "info"
	CategoryIdentity   = "identity"
	CategoryChat       = "chat"
	CategoryGame       = "game"
	CategoryModeration = "moderation"
)

// Handler identifiers mapping commands to dispatcher handlers.
const (
	HandlerAbout    = "about"
	HandlerCommands = "commands"
	HandlerTime     = "time"
	HandlerUsername = "username"
	HandlerRename   = "user"
	HandlerCancel   = "cancel"
	HandlerWho      = "who"
	HandlerWhisper  = "whisper"
	HandlerGlobal   = "global"
	HandlerExit     = "exit"
	HandlerJoin     = "join"
	HandlerLeave    = "leave"
	HandlerKick     = "kick"
	HandlerMod      = "mod"
	HandlerMods     = "mods"
)

// Command defines a client-invocable command.
type Command struct {
	// Name is the canonical command name, without the prefix.
	Name string
	// Aliases are alternate names for this command.
	Aliases []string
	// Usage describes the argument, e.g. "[username]".
	Usage string
	// Help is the short help text shown by !commands.
	Help string
	// Category groups the command.
	Category string
	// Handler maps to the dispatcher handler.
	Handler string
	// Operator marks commands reserved for the privileged operator channel.
	Operator bool
}

// BuiltinCommands returns every command the server understands.
func BuiltinCommands() []Command {
	return []Command{
		{Name: "about", Help: "Get information about this app", Category: CategoryInfo, Handler: HandlerAbout},
		{Name: "commands", Aliases: []string{"help"}, Help: "Show this list", Category: CategoryInfo, Handler: HandlerCommands},
		{Name: "time", Help: "Show the current time", Category: CategoryInfo, Handler: HandlerTime},

		{Name: "username", Usage: "[your_username]", Help: "Login/Register", Category: CategoryIdentity, Handler: HandlerUsername},
		{Name: "user", Usage: "[new_username]", Help: "Change your username", Category: CategoryIdentity, Handler: HandlerRename},
		{Name: "cancel", Help: "Abandon a login or registration", Category: CategoryIdentity, Handler: HandlerCancel},
		{Name: "exit", Aliases: []string{"logout"}, Help: "Log out from the chat", Category: CategoryIdentity, Handler: HandlerExit},

		{Name: "who", Help: "List currently online users", Category: CategoryChat, Handler: HandlerWho},
		{Name: "whisper", Aliases: []string{"w"}, Usage: "[username]", Help: "Start a private chat", Category: CategoryChat, Handler: HandlerWhisper},
		{Name: "global", Help: "Return to global chat from a private conversation", Category: CategoryChat, Handler: HandlerGlobal},

		{Name: "join", Help: "Play Tic-tac-toe with other player", Category: CategoryGame, Handler: HandlerJoin},
		{Name: "leave", Help: "Give up your seat (forfeits a running game)", Category: CategoryGame, Handler: HandlerLeave},

		{Name: "kick", Usage: "[username]", Help: "Kick a user from the chat (Moderators only)", Category: CategoryModeration, Handler: HandlerKick},
		{Name: "mod", Usage: "[username]", Help: "Toggle moderator status", Category: CategoryModeration, Handler: HandlerMod, Operator: true},
		{Name: "mods", Help: "List moderators", Category: CategoryModeration, Handler: HandlerMods, Operator: true},
	}
}
