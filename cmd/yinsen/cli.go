package main

import "github.com/alecthomas/kong"

// Globals are flags shared by every command.
type Globals struct {
	Config string `short:"c" type:"path" default:"config.yaml" env:"YINSEN_CONFIG" help:"Config file path"`
	Plain  bool   `help:"Line-mode console instead of the full-screen chat"`
	Agent  string `help:"Agent type that takes the first turn (overrides agents.initial)"`
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Run     RunCmd     `cmd:"" default:"1" help:"Chat in the console, with the gateway when enabled"`
	Serve   ServeCmd   `cmd:"" help:"Serve the HTTP gateway only"`
	Ask     AskCmd     `cmd:"" help:"Run a single turn and print the result"`
	Logs    LogsCmd    `cmd:"" help:"Print the notification or calendar log"`
	Encrypt EncryptCmd `cmd:"" help:"Encrypt a secret for use as an enc: config value"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// RunCmd is the interactive console chat.
type RunCmd struct {
	Gateway bool `help:"Also start the HTTP gateway (overrides gateway.enabled)"`
}

// ServeCmd runs the gateway without a console.
type ServeCmd struct {
	Addr string `help:"Listen address (overrides gateway.addr)"`
}

// AskCmd submits one utterance.
type AskCmd struct {
	Text   []string `arg:"" help:"What to say"`
	Format string   `short:"f" enum:"text,html" default:"text" help:"Response format (text or html)"`
	JSON   bool     `help:"Print the whole turn result as JSON"`
}

// LogsCmd prints one of the log files.
type LogsCmd struct {
	Kind string `arg:"" enum:"notifications,calendar" help:"Which log: notifications or calendar"`
}

// EncryptCmd encrypts a value with the config passphrase.
type EncryptCmd struct {
	Value      string `arg:"" help:"Plaintext to encrypt"`
	Passphrase string `env:"YINSEN_CONFIG_KEY" help:"Passphrase (defaults to $YINSEN_CONFIG_KEY)"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
