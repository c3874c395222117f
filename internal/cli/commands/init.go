package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AlecAivazis/survey/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/assetforge/internal/cli/ui"
	"github.com/conduit-lang/assetforge/internal/config"
)

// projectFile is the layout of a generated assetforge.yaml
type projectFile struct {
	ContentRoot  string `yaml:"content_root"`
	CompiledRoot string `yaml:"compiled_root"`
	Database     struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Cache struct {
		Backend string `yaml:"backend"`
		Redis   *struct {
			Addr string `yaml:"addr"`
		} `yaml:"redis,omitempty"`
	} `yaml:"cache"`
	HTTP struct {
		Listen      string `yaml:"listen"`
		TokenSecret string `yaml:"token_secret,omitempty"`
	} `yaml:"http"`
}

type initAnswers struct {
	ContentRoot string
	Driver      string
	DSN         string
	Cache       string
	RedisAddr   string
	Protect     bool
}

// NewInitCommand creates the init command
func NewInitCommand(global *globalOptions) *cobra.Command {
	var (
		yes   bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an assetforge.yaml in the project directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.Exists(global.dir) && !force {
				return fmt.Errorf("%s already has a configuration file; use --force to overwrite", global.dir)
			}

			defaults := config.Default()
			answers := initAnswers{
				ContentRoot: defaults.ContentRoot,
				Driver:      defaults.Database.Driver,
				DSN:         defaults.Database.DSN,
				Cache:       defaults.Cache.Backend,
				RedisAddr:   defaults.Cache.Redis.Addr,
			}
			if !yes {
				if err := askInit(&answers); err != nil {
					return err
				}
			}

			var file projectFile
			file.ContentRoot = answers.ContentRoot
			file.CompiledRoot = defaults.CompiledRoot
			file.Database.Driver = answers.Driver
			file.Database.DSN = answers.DSN
			file.Cache.Backend = answers.Cache
			if answers.Cache == "redis" {
				file.Cache.Redis = &struct {
					Addr string `yaml:"addr"`
				}{Addr: answers.RedisAddr}
			}
			file.HTTP.Listen = defaults.HTTP.Listen
			if answers.Protect {
				file.HTTP.TokenSecret = uuid.NewString()
			}

			data, err := yaml.Marshal(&file)
			if err != nil {
				return fmt.Errorf("failed to encode configuration: %w", err)
			}
			if err := os.MkdirAll(global.dir, 0755); err != nil {
				return err
			}
			target := filepath.Join(global.dir, config.FileName+".yaml")
			if err := os.WriteFile(target, data, 0644); err != nil {
				return fmt.Errorf("failed to write configuration: %w", err)
			}

			cfg, err := config.LoadFrom(global.dir)
			if err != nil {
				return &reportedError{msg: ui.ConfigError(err, global.noColor)}
			}
			if err := os.MkdirAll(cfg.ContentRoot, 0755); err != nil {
				return fmt.Errorf("failed to create content root: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.Success("wrote "+target, global.noColor))
			kv := ui.NewKeyValueTable(out, global.noColor)
			kv.AddRow("Content root", cfg.ContentRoot)
			kv.AddRow("Database", cfg.Database.Driver)
			kv.AddRow("Cache", cfg.Cache.Backend)
			if answers.Protect {
				kv.AddRow("HTTP auth", "bearer token (assetforge token)")
			}
			kv.Render()
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Accept all defaults without prompting")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")

	return cmd
}

func askInit(a *initAnswers) error {
	questions := []*survey.Question{
		{
			Name:     "ContentRoot",
			Prompt:   &survey.Input{Message: "Content root:", Default: a.ContentRoot},
			Validate: survey.Required,
		},
		{
			Name:   "Driver",
			Prompt: &survey.Select{Message: "Database driver:", Options: []string{"sqlite3", "pgx"}, Default: a.Driver},
		},
	}
	if err := survey.Ask(questions, a); err != nil {
		return err
	}

	dsnDefault := a.DSN
	if a.Driver == "pgx" {
		dsnDefault = "postgres://localhost:5432/assetforge"
	}
	if err := survey.AskOne(&survey.Input{Message: "Database DSN:", Default: dsnDefault}, &a.DSN, survey.WithValidator(survey.Required)); err != nil {
		return err
	}

	if err := survey.AskOne(&survey.Select{Message: "Resident cache:", Options: []string{"memory", "redis"}, Default: a.Cache}, &a.Cache); err != nil {
		return err
	}
	if a.Cache == "redis" {
		if err := survey.AskOne(&survey.Input{Message: "Redis address:", Default: a.RedisAddr}, &a.RedisAddr, survey.WithValidator(survey.Required)); err != nil {
			return err
		}
	}

	return survey.AskOne(&survey.Confirm{Message: "Require a bearer token for the HTTP API?", Default: false}, &a.Protect)
}
