package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/wardrobe/internal/errors"
	"github.com/hpungsan/wardrobe/internal/host"
	"github.com/hpungsan/wardrobe/internal/ops"
	"github.com/hpungsan/wardrobe/internal/web"
)

// stdout is where command results go; tests replace it.
var stdout io.Writer = os.Stdout

// newCLIApp creates the CLI application with all commands. deps may be nil
// when only help or version output is needed.
func newCLIApp(deps *ops.Deps) *cli.App {
	app := &cli.App{
		Name:    "wardrobe",
		Usage:   "Outfit and location tracker for roleplay chats",
		Version: Version,
		Commands: []*cli.Command{
			showCmd(deps),
			extractCmd(deps),
			applyCmd(deps),
			resetCharacterCmd(deps),
			onChatCmd(deps),
			promptCmd(deps),
			settingsCmd(deps),
			fieldsCmd(deps),
			exportCmd(deps),
			importCmd(deps),
			serveCmd(deps),
		},
	}
	// Values given to --set may contain commas.
	app.DisableSliceFlagSeparator = true
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// sessionFlags describe where the conversation comes from.
func sessionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "chat", Usage: "SillyTavern chat export (.jsonl)"},
		&cli.StringFlag{Name: "card", Usage: "Character card (.json, V1 or V2)"},
		&cli.StringFlag{Name: "character-id", Aliases: []string{"c"}, Usage: "Character id (defaults to the card file name)"},
		&cli.StringFlag{Name: "user-name", Usage: "User display name (defaults to the chat metadata)"},
	}
}

// ownerFlags add the owner selector to sessionFlags.
func ownerFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{Name: "owner", Aliases: []string{"o"}, Value: "user", Usage: "Owner: user|char"},
	}, sessionFlags()...)
}

// showCmd creates the show command.
func showCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Show an owner's outfit and location",
		Flags: ownerFlags(),
		Action: func(c *cli.Context) error {
			session, err := loadSession(c)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Get(c.Context, deps, ops.GetInput{Owner: ownerInput(c, session), Session: session})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// extractCmd creates the extract command.
func extractCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "extract",
		Usage: "Ask the text-generation backend for outfit updates",
		Flags: append(ownerFlags(),
			&cli.BoolFlag{Name: "apply", Usage: "Apply the suggestion immediately"},
		),
		Action: func(c *cli.Context) error {
			session, err := loadSession(c)
			if err != nil {
				return outputError(err)
			}
			owner := ownerInput(c, session)

			output, err := ops.Extract(c.Context, deps, ops.ExtractInput{Owner: owner, Session: session})
			if err != nil {
				return outputError(err)
			}
			if !c.Bool("apply") {
				return outputJSON(output)
			}

			applied, err := ops.Apply(c.Context, deps, ops.ApplyInput{Owner: owner, Session: session, UsePending: true})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"extract": output, "applied": applied})
		},
	}
}

// applyCmd creates the apply command.
func applyCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "apply",
		Usage: "Set outfit fields and location",
		Flags: append(ownerFlags(),
			&cli.StringSliceFlag{Name: "set", Aliases: []string{"s"}, Usage: "Manual value as key=value (key or label), repeatable"},
			&cli.StringSliceFlag{Name: "suggest", Usage: "Suggested value as key=value; wins over --set"},
			&cli.StringFlag{Name: "location", Aliases: []string{"l"}, Usage: "New location (empty clears it)"},
		),
		Action: func(c *cli.Context) error {
			session, err := loadSession(c)
			if err != nil {
				return outputError(err)
			}
			manual, err := parseAssignments(c.StringSlice("set"))
			if err != nil {
				return outputError(err)
			}
			suggestions, err := parseAssignments(c.StringSlice("suggest"))
			if err != nil {
				return outputError(err)
			}

			input := ops.ApplyInput{
				Owner:       ownerInput(c, session),
				Session:     session,
				Manual:      manual,
				Suggestions: suggestions,
			}
			if c.IsSet("location") {
				loc := c.String("location")
				input.ManualLocation = &loc
			}

			output, err := ops.Apply(c.Context, deps, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// resetCharacterCmd creates the reset-character command.
func resetCharacterCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:      "reset-character",
		Usage:     "Reset a character's outfit and location to defaults",
		ArgsUsage: "[character-id]",
		Flags:     sessionFlags(),
		Action: func(c *cli.Context) error {
			session, err := loadSession(c)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.ResetCharacter(c.Context, deps, ops.ResetCharacterInput{
				CharacterID: c.Args().First(),
				Session:     session,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// onChatCmd creates the on-chat command.
func onChatCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "on-chat",
		Usage: "Run automatic extraction for a chat update (requires auto-update)",
		Flags: sessionFlags(),
		Action: func(c *cli.Context) error {
			session, err := loadSession(c)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.OnChat(c.Context, deps, ops.OnChatInput{Session: session})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// promptCmd creates the prompt command.
func promptCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "prompt",
		Usage: "Print the extraction prompt without calling the backend",
		Flags: append(ownerFlags(),
			&cli.BoolFlag{Name: "raw", Usage: "Print the prompt text instead of JSON"},
		),
		Action: func(c *cli.Context) error {
			session, err := loadSession(c)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Preview(c.Context, deps, ops.PreviewInput{Owner: ownerInput(c, session), Session: session})
			if err != nil {
				return outputError(err)
			}
			if c.Bool("raw") {
				_, err := fmt.Fprintln(stdout, output.Prompt)
				return err
			}
			return outputJSON(output)
		},
	}
}

// settingsCmd creates the settings command and its subcommands.
func settingsCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Show or change settings",
		Action: func(c *cli.Context) error {
			output, err := ops.GetSettings(c.Context, deps)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
		Subcommands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Change settings",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "custom-fields", Usage: "Comma-separated custom field names (replaces the list)"},
					&cli.BoolFlag{Name: "auto-update", Usage: "Extract automatically on chat updates"},
					&cli.StringFlag{Name: "prompt-template", Usage: "Prompt template file; empty restores the default"},
				},
				Action: func(c *cli.Context) error {
					var input ops.UpdateSettingsInput
					if c.IsSet("custom-fields") {
						csv := c.String("custom-fields")
						input.CustomFieldsCSV = &csv
					}
					if c.IsSet("auto-update") {
						auto := c.Bool("auto-update")
						input.AutoUpdate = &auto
					}
					if c.IsSet("prompt-template") {
						tpl := ""
						if path := c.String("prompt-template"); path != "" {
							data, err := os.ReadFile(path)
							if err != nil {
								return outputError(readError(path, err))
							}
							tpl = string(data)
						}
						input.PromptTemplate = &tpl
					}

					output, err := ops.UpdateSettings(c.Context, deps, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "reset",
				Usage: "Restore default settings",
				Action: func(c *cli.Context) error {
					output, err := ops.ResetSettings(c.Context, deps)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// fieldsCmd creates the fields command and its subcommands.
func fieldsCmd(deps *ops.Deps) *cli.Command {
	fieldAction := func(op func(*cli.Context, string) (*ops.Settings, error)) cli.ActionFunc {
		return func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("exactly one field name is required"))
			}
			output, err := op(c, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		}
	}

	return &cli.Command{
		Name:  "fields",
		Usage: "Add or remove custom outfit fields",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a custom field",
				ArgsUsage: "<name>",
				Action: fieldAction(func(c *cli.Context, name string) (*ops.Settings, error) {
					return ops.AddField(c.Context, deps, name)
				}),
			},
			{
				Name:      "remove",
				Usage:     "Remove a custom field from every owner",
				ArgsUsage: "<name>",
				Action: fieldAction(func(c *cli.Context, name string) (*ops.Settings, error) {
					return ops.RemoveField(c.Context, deps, name)
				}),
			},
		},
	}
}

// exportCmd creates the export command.
func exportCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export settings and outfits to JSONL",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output path (default: ~/.wardrobe/exports/wardrobe-<timestamp>.jsonl)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, deps, ops.ExportInput{Path: c.String("path")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Replace all settings and outfits from a JSONL export",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Import(c.Context, deps, ops.ImportInput{Path: c.String("path")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(deps *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP panel UI and JSON API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Bind address (default from config)"},
			&cli.IntFlag{Name: "port", Usage: "Port (default from config)"},
		},
		Action: func(c *cli.Context) error {
			bind, port := deps.Config.Web.Bind, deps.Config.Web.Port
			if c.IsSet("bind") {
				bind = c.String("bind")
			}
			if c.IsSet("port") {
				port = c.Int("port")
			}

			hub := web.NewHub(deps.Logger)
			deps.Notifier = hub
			srv, err := web.NewServer(deps, hub, Version, bind, port)
			if err != nil {
				return outputError(err)
			}
			if err := web.Run(c.Context, srv, hub, deps.Logger); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var tErr *errors.TrackerError
	if stderrors.As(err, &tErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", tErr.Code, tErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// ownerInput reads --owner and --character-id. For characters without an
// explicit id the session's active character is used.
func ownerInput(c *cli.Context, session host.Session) ops.OwnerInput {
	return ops.OwnerInput{Kind: c.String("owner"), CharacterID: session.CharacterID}
}

// loadSession builds a session from --chat, --card, --character-id and
// --user-name. Chat metadata supplies names the flags leave unset.
func loadSession(c *cli.Context) (host.Session, error) {
	session := host.Session{
		UserName:    c.String("user-name"),
		CharacterID: strings.TrimSpace(c.String("character-id")),
	}

	var chatCharacter string
	if path := c.String("chat"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return host.Session{}, readError(path, err)
		}
		defer f.Close()

		chat, err := host.ReadChat(f)
		if err != nil {
			return host.Session{}, errors.NewInvalidRequest(fmt.Sprintf("%s: %v", path, err))
		}
		session.Chat = chat.Messages
		if session.UserName == "" {
			session.UserName = chat.UserName
		}
		chatCharacter = chat.CharacterName
	}

	if path := c.String("card"); path != "" {
		if session.CharacterID == "" {
			session.CharacterID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		f, err := os.Open(path)
		if err != nil {
			return host.Session{}, readError(path, err)
		}
		defer f.Close()

		card, err := host.ReadCharacterCard(f, session.CharacterID)
		if err != nil {
			return host.Session{}, errors.NewInvalidRequest(fmt.Sprintf("%s: %v", path, err))
		}
		session.Character = card
	} else if chatCharacter != "" {
		// Without a card the chat still names the character; the id may be empty.
		session.Character = &host.Character{ID: session.CharacterID, Name: chatCharacter}
	}

	return session, nil
}

// parseAssignments parses key=value pairs. Keys are trimmed; values are kept
// as given.
func parseAssignments(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("expected key=value, got %q", p))
		}
		out[k] = v
	}
	return out, nil
}

func readError(path string, err error) error {
	if stderrors.Is(err, os.ErrNotExist) {
		return errors.NewFileNotFound(path)
	}
	return errors.NewInternal(err)
}
