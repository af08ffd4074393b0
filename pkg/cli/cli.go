package cli

import (
	"context"
	"flag"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/igolaizola/loopgen/pkg/cmd/analyze"
	"github.com/igolaizola/loopgen/pkg/cmd/draft"
	"github.com/igolaizola/loopgen/pkg/cmd/export"
	"github.com/igolaizola/loopgen/pkg/cmd/generate"
	"github.com/igolaizola/loopgen/pkg/cmd/lock"
	"github.com/igolaizola/loopgen/pkg/cmd/migrate"
	"github.com/igolaizola/loopgen/pkg/cmd/regenerate"
	"github.com/igolaizola/loopgen/pkg/cmd/sessions"
	"github.com/igolaizola/loopgen/pkg/cmd/status"
	"github.com/peterbourgon/ff/ffyaml"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
)

func New(version, commit, date string) *ffcli.Command {
	fs := flag.NewFlagSet("loopgen", flag.ExitOnError)

	return &ffcli.Command{
		ShortUsage: "loopgen [flags] <subcommand>",
		FlagSet:    fs,
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
		Subcommands: []*ffcli.Command{
			newVersionCommand(version, commit, date),
			newMigrateCommand(),
			newGenerateCommand(),
			newRegenerateCommand(),
			newLockCommand(),
			newExportCommand(),
			newStatusCommand(),
			newSessionsCommand(),
			newDraftCommand(),
			newAnalyzeCommand(),
		},
	}
}

func newVersionCommand(version, commit, date string) *ffcli.Command {
	return &ffcli.Command{
		Name:       "version",
		ShortUsage: "loopgen version",
		ShortHelp:  "print version",
		Exec: func(ctx context.Context, args []string) error {
			v := version
			if v == "" {
				if buildInfo, ok := debug.ReadBuildInfo(); ok {
					v = buildInfo.Main.Version
				}
			}
			if v == "" {
				v = "dev"
			}
			versionFields := []string{v}
			if commit != "" {
				versionFields = append(versionFields, commit)
			}
			if date != "" {
				versionFields = append(versionFields, date)
			}
			fmt.Println(strings.Join(versionFields, " "))
			return nil
		},
	}
}

func options() []ff.Option {
	return []ff.Option{
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ffyaml.Parser),
		ff.WithEnvVarPrefix("LOOPGEN"),
	}
}

func newMigrateCommand() *ffcli.Command {
	cmd := "migrate"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &migrate.Config{}

	fs.StringVar(&cfg.DBType, "db-type", "", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("loopgen %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "create or update the database schema",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return migrate.Run(ctx, cfg)
		},
	}
}

func newGenerateCommand() *ffcli.Command {
	cmd := "generate"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &generate.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")
	fs.StringVar(&cfg.FSType, "fs-type", "", "fs type (local, s3)")
	fs.StringVar(&cfg.FSConn, "fs-conn", "", "path for local, key:secret@bucket.region for s3")
	fs.StringVar(&cfg.Proxy, "proxy", "", "proxy to use")

	fs.StringVar(&cfg.Session, "session", "", "session name")
	fs.StringVar(&cfg.Prompt, "prompt", "", "request prompt, defaults to the stored session request or a draft")
	fs.StringVar(&cfg.Part, "part", "", "generate a single part (rhythm, bass, harmony, lead)")
	fs.StringVar(&cfg.Type, "type", "", "draft type to pick prompts from")

	fs.DurationVar(&cfg.Duration, "duration", 0, "target loop duration")
	fs.DurationVar(&cfg.Fragment, "fragment", 0, "raw fragment duration requested from the generator")
	fs.Float64Var(&cfg.Threshold, "threshold", 0, "loop boundary similarity threshold")
	fs.DurationVar(&cfg.Crossfade, "crossfade", 0, "loop seam crossfade length")
	fs.IntVar(&cfg.Variation, "variation", 0, "insert a variant unit every nth repetition (0 disables)")
	fs.StringVar(&cfg.Lexicon, "lexicon", "", "yaml file with custom prompt phrase tables")

	fs.StringVar(&cfg.Host, "host", "", "musicgen server host")
	fs.StringVar(&cfg.Token, "token", "", "musicgen server token")
	fs.StringVar(&cfg.Model, "model", "", "musicgen model name")
	fs.DurationVar(&cfg.Wait, "wait", 0, "wait time between requests")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("loopgen %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "generate all parts of a session",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return generate.Run(ctx, cfg)
		},
	}
}

func newRegenerateCommand() *ffcli.Command {
	cmd := "regenerate"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &regenerate.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")
	fs.StringVar(&cfg.FSType, "fs-type", "", "fs type (local, s3)")
	fs.StringVar(&cfg.FSConn, "fs-conn", "", "path for local, key:secret@bucket.region for s3")

	fs.StringVar(&cfg.Session, "session", "", "session name")
	fs.StringVar(&cfg.Part, "part", "", "part to regenerate (rhythm, bass, harmony, lead)")
	fs.StringVar(&cfg.Prompt, "prompt", "", "request prompt, defaults to the stored session request")

	fs.DurationVar(&cfg.Duration, "duration", 0, "target loop duration")
	fs.DurationVar(&cfg.Fragment, "fragment", 0, "raw fragment duration requested from the generator")
	fs.Float64Var(&cfg.Threshold, "threshold", 0, "loop boundary similarity threshold")
	fs.DurationVar(&cfg.Crossfade, "crossfade", 0, "loop seam crossfade length")
	fs.IntVar(&cfg.Variation, "variation", 0, "insert a variant unit every nth repetition (0 disables)")

	fs.StringVar(&cfg.Host, "host", "", "musicgen server host")
	fs.StringVar(&cfg.Token, "token", "", "musicgen server token")
	fs.StringVar(&cfg.Model, "model", "", "musicgen model name")
	fs.DurationVar(&cfg.Wait, "wait", 0, "wait time between requests")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("loopgen %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "regenerate a single part keeping locked parts",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return regenerate.Run(ctx, cfg)
		},
	}
}

func newLockCommand() *ffcli.Command {
	cmd := "lock"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &lock.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")
	fs.StringVar(&cfg.FSType, "fs-type", "", "fs type (local, s3)")
	fs.StringVar(&cfg.FSConn, "fs-conn", "", "path for local, key:secret@bucket.region for s3")

	fs.StringVar(&cfg.Session, "session", "", "session name")
	fs.StringVar(&cfg.Part, "part", "", "part to lock (rhythm, bass, harmony, lead)")
	fs.BoolVar(&cfg.Unlock, "unlock", false, "unlock instead of lock")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("loopgen %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "lock or unlock a part",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return lock.Run(ctx, cfg)
		},
	}
}

func newExportCommand() *ffcli.Command {
	cmd := "export"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &export.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")
	fs.StringVar(&cfg.FSType, "fs-type", "", "fs type (local, s3)")
	fs.StringVar(&cfg.FSConn, "fs-conn", "", "path for local, key:secret@bucket.region for s3")

	fs.StringVar(&cfg.Session, "session", "", "session name")
	fs.StringVar(&cfg.Output, "output", "", "output folder")
	fs.BoolVar(&cfg.Stems, "stems", false, "write one stem per part next to the mix")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("loopgen %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "export the session mix and stems as wav files",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return export.Run(ctx, cfg)
		},
	}
}

func newStatusCommand() *ffcli.Command {
	cmd := "status"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &status.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")
	fs.StringVar(&cfg.Session, "session", "", "session name, defaults to the last generated one")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("loopgen %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "print the state of a session",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return status.Run(ctx, cfg)
		},
	}
}

func newSessionsCommand() *ffcli.Command {
	cmd := "sessions"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &sessions.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")
	fs.IntVar(&cfg.Page, "page", 1, "page number")
	fs.IntVar(&cfg.Size, "size", 20, "page size")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("loopgen %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "list stored sessions",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return sessions.Run(ctx, cfg)
		},
	}
}

func newDraftCommand() *ffcli.Command {
	cmd := "draft"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &draft.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")
	fs.IntVar(&cfg.Limit, "limit", 0, "limit the number of drafts (0 means no limit)")
	fs.StringVar(&cfg.Input, "input", "", "csv or json with request prompts (fields: type,prompt,weight)")
	fs.StringVar(&cfg.Type, "type", "", "type assigned to drafts without one")
	fs.IntVar(&cfg.Count, "count", 0, "generate this many drafts with a language model")
	fs.StringVar(&cfg.Key, "key", "", "openai api key")
	fs.StringVar(&cfg.Model, "model", "", "openai model name")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("loopgen %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "load request drafts into the database",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return draft.Run(ctx, cfg)
		},
	}
}

func newAnalyzeCommand() *ffcli.Command {
	cmd := "analyze"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &analyze.Config{}
	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.Input, "input", "", "input file (wav or mp3)")
	fs.StringVar(&cfg.Output, "output", "", "output folder for plots")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("loopgen %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "analyze an audio file and print its features",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return analyze.Run(ctx, cfg)
		},
	}
}
