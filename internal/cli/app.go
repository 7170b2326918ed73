package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/playbook/internal/config"
	"github.com/shaiso/playbook/internal/domain"
	"github.com/shaiso/playbook/internal/engine"
)

// App — общее состояние команд: глобальные флаги и логгер.
type App struct {
	SettingsPath string
	Document     string
	UserID       string
	Backend      string
	JSON         bool

	Logger *slog.Logger

	// Stdout и Stderr подменяют потоки вывода (default: os.Stdout, os.Stderr).
	Stdout io.Writer
	Stderr io.Writer
}

// RegisterFlags добавляет глобальные флаги в корневую команду.
func (a *App) RegisterFlags(root *cobra.Command) {
	flags := root.PersistentFlags()
	flags.StringVar(&a.SettingsPath, "settings", "", "Settings file (YAML or TOML)")
	flags.StringVar(&a.Document, "config", "", "Playbook document (overrides PLAYBOOK_CONFIG)")
	flags.StringVar(&a.UserID, "user-id", "", "User id (overrides PLAYBOOK_USER_ID)")
	flags.StringVar(&a.Backend, "backend", "", "Coordination backend: service or local")
	flags.BoolVar(&a.JSON, "json", false, "Output in JSON format")
}

// Settings загружает настройки и применяет явно заданные флаги.
func (a *App) Settings(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(a.SettingsPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("config") {
		cfg.Document = a.Document
	}
	if flags.Changed("user-id") {
		cfg.UserID = a.UserID
	}
	if flags.Changed("backend") {
		cfg.Backend = a.Backend
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Output создаёт Output в режиме из флага --json.
func (a *App) Output() *Output {
	return NewOutput(a.JSON, a.Stdout, a.Stderr)
}

func (a *App) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// LoadProtocols читает и проверяет playbook-документ.
func LoadProtocols(path string) ([]domain.ProtocolSpec, error) {
	protocols, err := engine.ParseFile(path)
	if err != nil {
		return nil, err
	}
	if len(protocols) == 0 {
		return nil, fmt.Errorf("%w: %s defines no protocols", engine.ErrConfig, path)
	}
	return protocols, nil
}

// ParseParticipants разбирает значения вида USER:ROLE.
func ParseParticipants(values []string) ([]domain.Participant, error) {
	participants := make([]domain.Participant, 0, len(values))
	for _, v := range values {
		user, role, ok := strings.Cut(v, ":")
		if !ok || user == "" || role == "" {
			return nil, fmt.Errorf("invalid participant %q, expected USER:ROLE", v)
		}
		participants = append(participants, domain.Participant{UserID: user, Role: role})
	}
	return participants, nil
}

// ReadParam возвращает параметры task из строки или файла.
func ReadParam(param, paramFile string) ([]byte, error) {
	if paramFile == "" {
		return []byte(param), nil
	}
	if param != "" {
		return nil, fmt.Errorf("--param and --param-file are mutually exclusive")
	}
	data, err := os.ReadFile(paramFile)
	if err != nil {
		return nil, fmt.Errorf("read param file: %w", err)
	}
	return data, nil
}

// taskFlags — флаги описания task.
type taskFlags struct {
	taskID       string
	param        string
	paramFile    string
	participants []string
}

func (f *taskFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.taskID, "task-id", "", "Task id (generated if empty)")
	cmd.Flags().StringVar(&f.param, "param", "", "Task parameters")
	cmd.Flags().StringVar(&f.paramFile, "param-file", "", "Read task parameters from file")
	cmd.Flags().StringArrayVar(&f.participants, "participant", nil, "Participant as USER:ROLE (repeatable, order matters)")
}

// assignment собирает назначение task из флагов.
func (f *taskFlags) assignment(protocol string) (domain.Assignment, error) {
	participants, err := ParseParticipants(f.participants)
	if err != nil {
		return domain.Assignment{}, err
	}
	param, err := ReadParam(f.param, f.paramFile)
	if err != nil {
		return domain.Assignment{}, err
	}
	return domain.Assignment{
		TaskID:       f.taskID,
		Protocol:     protocol,
		Param:        param,
		Participants: participants,
	}, nil
}

