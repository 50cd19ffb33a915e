// Package app wires configuration, storage and services into one App shared
// by the HTTP server and tests.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/mfdesk/internal/clients/gemini"
	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/interfaces"
	"github.com/bobmcallan/mfdesk/internal/services/auth"
	"github.com/bobmcallan/mfdesk/internal/services/chat"
	"github.com/bobmcallan/mfdesk/internal/services/optimizer"
	"github.com/bobmcallan/mfdesk/internal/services/portfolio"
	"github.com/bobmcallan/mfdesk/internal/services/procpool"
	"github.com/bobmcallan/mfdesk/internal/storage"
)

// App holds all initialized services and clients.
type App struct {
	Config           *common.Config
	Logger           *common.Logger
	Storage          interfaces.StorageManager
	GeminiClient     interfaces.GeminiClient
	AuthService      interfaces.AuthService
	PortfolioService interfaces.PortfolioService
	OptimizerService interfaces.OptimizerService
	ChatService      interfaces.ChatService
	OptimizerPool    *procpool.Pool
	ChatPool         *procpool.Pool
	StartupTime      time.Time

	sweeper       *auth.Service
	sweeperCancel context.CancelFunc
	sweeperDone   chan struct{}
}

// Option configures NewAppWithConfig
type Option func(*appOptions)

type appOptions struct {
	logger *common.Logger
	seed   bool
	now    func() time.Time
}

// WithLogger replaces the logger built from config.
func WithLogger(logger *common.Logger) Option {
	return func(o *appOptions) {
		o.logger = logger
	}
}

// WithoutSeed skips loading the demo fixtures.
func WithoutSeed() Option {
	return func(o *appOptions) {
		o.seed = false
	}
}

// WithClock fixes the clock used for seeding and valuations.
func WithClock(now func() time.Time) Option {
	return func(o *appOptions) {
		o.now = now
	}
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// ResolveConfigPath returns configPath if set, else MFDESK_CONFIG, else
// mfdesk.toml beside the binary, else config/mfdesk.toml.
func ResolveConfigPath(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if env := os.Getenv("MFDESK_CONFIG"); env != "" {
		return env
	}
	beside := filepath.Join(getBinaryDir(), "mfdesk.toml")
	if _, err := os.Stat(beside); err == nil {
		return beside
	}
	return "config/mfdesk.toml"
}

// NewApp loads configuration and initializes the App.
// configPath may be empty, in which case ResolveConfigPath decides.
func NewApp(ctx context.Context, configPath string) (*App, error) {
	config, err := common.LoadConfig(ResolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewAppWithConfig(ctx, config)
}

// NewAppWithConfig initializes storage, clients and services from config.
func NewAppWithConfig(ctx context.Context, config *common.Config, opts ...Option) (*App, error) {
	startupStart := time.Now()

	o := appOptions{seed: true, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = common.NewLoggerFromConfig(config.Logging)
	}

	if problems := config.Validate(); len(problems) > 0 {
		for _, p := range problems {
			logger.Error().Str("problem", p).Msg("Invalid configuration")
		}
		return nil, fmt.Errorf("invalid configuration: %s", problems[0])
	}

	storageManager, err := storage.NewStorageManager(ctx, logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if o.seed {
		if err := Seed(ctx, storageManager, logger, o.now()); err != nil {
			storageManager.Close()
			return nil, fmt.Errorf("failed to seed storage: %w", err)
		}
	}

	var geminiClient *gemini.Client
	if config.Chat.Gemini.APIKey != "" {
		geminiClient, err = gemini.NewClient(ctx, config.Chat.Gemini.APIKey,
			gemini.WithLogger(logger),
			gemini.WithModel(config.Chat.Gemini.Model),
		)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize Gemini client")
			geminiClient = nil
		}
	}

	authService := auth.NewService(storageManager, config.Auth.SessionSecret,
		auth.WithLogger(logger),
		auth.WithSessionTTL(config.Auth.GetSessionTTL()),
		auth.WithClock(o.now),
	)

	optimizerPool := procpool.New("optimizer", config.Optimizer, procpool.WithLogger(logger))
	optimizerService := optimizer.NewService(optimizerPool, config.Optimizer.Command, logger)

	portfolioService := portfolio.NewService(storageManager, optimizerService, logger, portfolio.WithClock(o.now))

	kb, err := chat.LoadKnowledgeBase(config.Chat.KnowledgeDir, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Knowledge base unavailable")
		kb = &chat.KnowledgeBase{}
	}

	chatOpts := []chat.Option{chat.WithLogger(logger), chat.WithKnowledgeBase(kb)}
	var chatPool *procpool.Pool
	if config.Chat.Provider == chat.ProviderProcess {
		chatPool = procpool.New("chat", config.Chat.Process, procpool.WithLogger(logger))
		chatOpts = append(chatOpts, chat.WithProcess(chatPool, config.Chat.Process.Command))
	}
	if geminiClient != nil {
		chatOpts = append(chatOpts, chat.WithGemini(geminiClient))
	}
	chatService, err := chat.NewService(config.Chat.Provider, chatOpts...)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize chat: %w", err)
	}

	a := &App{
		Config:           config,
		Logger:           logger,
		Storage:          storageManager,
		AuthService:      authService,
		PortfolioService: portfolioService,
		OptimizerService: optimizerService,
		ChatService:      chatService,
		OptimizerPool:    optimizerPool,
		ChatPool:         chatPool,
		StartupTime:      startupStart,
		sweeper:          authService,
	}
	if geminiClient != nil {
		a.GeminiClient = geminiClient
	}

	logger.Info().
		Str("storage", config.Storage.Backend).
		Str("chat_provider", chatService.Provider()).
		Int("knowledge_chunks", kb.Len()).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return a, nil
}

// StartSessionSweeper removes expired sessions every auth.session_sweep until Close.
func (a *App) StartSessionSweeper() {
	if a.sweeperCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.sweeperCancel = cancel
	a.sweeperDone = make(chan struct{})
	go func() {
		defer close(a.sweeperDone)
		startSessionSweeper(ctx, a.sweeper, a.Logger, a.Config.Auth.GetSessionSweep())
	}()
}

// Close releases all resources held by the App.
// Shutdown order: stop the sweeper, close storage.
func (a *App) Close() {
	if a.sweeperCancel != nil {
		a.sweeperCancel()
		<-a.sweeperDone
		a.sweeperCancel = nil
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
		a.Storage = nil
	}
}
