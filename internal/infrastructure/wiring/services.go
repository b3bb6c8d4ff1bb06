package wiring

import (
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/edimap/internal/infrastructure/config"
	"github.com/felixgeelhaar/edimap/internal/infrastructure/webhook"
	"github.com/felixgeelhaar/edimap/pkg/application"
	"github.com/felixgeelhaar/edimap/pkg/sdk"
	"github.com/felixgeelhaar/edimap/pkg/storage"
)

// AppServices exposes the application layer services wired together with a workspace.
type AppServices struct {
	Workspace *Workspace
	Config    *config.Config
	Client    *sdk.Client
	Session   *application.SessionService
	Chat      *application.ChatService
	// Notifier is nil when no webhooks are configured.
	Notifier *webhook.Notifier
	Logger   *slog.Logger
}

// Flush waits for background cell persistence and webhook deliveries.
func (a *AppServices) Flush() {
	a.Session.Wait()
	if a.Notifier != nil {
		a.Notifier.Wait()
	}
}

// BuildAppServices loads the workspace configuration and constructs the
// session and chat services against the configured mapping service.
func BuildAppServices(root string, logger *slog.Logger) (*AppServices, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return BuildAppServicesWithConfig(root, cfg, logger)
}

// BuildAppServicesWithConfig is BuildAppServices with an explicit configuration.
func BuildAppServicesWithConfig(root string, cfg *config.Config, logger *slog.Logger) (*AppServices, error) {
	if logger == nil {
		logger = slog.Default()
	}
	workspace, err := NewWorkspace(root)
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}

	client := sdk.NewClient(cfg.BaseURL,
		sdk.WithTimeout(cfg.RequestTimeout),
		sdk.WithRetry(cfg.FetchAttempts, 0),
		sdk.WithLogger(logger.With("component", "sdk")),
	)

	sessionSvc := application.NewSessionService(client,
		application.WithSessionRepository(workspace.Repo),
		application.WithJournal(workspace.Journal),
		application.WithSessionLogger(logger.With("component", "session")),
	)
	chatSvc := application.NewChatService(client, sessionSvc, sessionSvc, logger.With("component", "chat"))
	chatSvc.ClearOnReset(sessionSvc.Events())

	notifier, err := buildNotifier(workspace.Repo, cfg.Webhooks, logger)
	if err != nil {
		return nil, err
	}
	if notifier != nil {
		sessionSvc.Events().RegisterWildcard("webhook", notifier.Handler())
	}

	return &AppServices{
		Workspace: workspace,
		Config:    cfg,
		Client:    client,
		Session:   sessionSvc,
		Chat:      chatSvc,
		Notifier:  notifier,
		Logger:    logger,
	}, nil
}

func buildNotifier(repo *storage.FilesystemRepository, hooks []config.Webhook, logger *slog.Logger) (*webhook.Notifier, error) {
	if len(hooks) == 0 {
		return nil, nil
	}
	path, err := repo.ResolvePath(storage.DeadLetterFile)
	if err != nil {
		return nil, fmt.Errorf("resolve dead letter file: %w", err)
	}
	endpoints := make([]webhook.Endpoint, len(hooks))
	for i, h := range hooks {
		endpoints[i] = webhook.Endpoint{
			Name:       h.Name,
			URL:        h.URL,
			Secret:     h.Secret,
			Events:     h.Events,
			MaxRetries: h.MaxRetries,
			RetryDelay: h.RetryDelay,
		}
	}
	return webhook.NewNotifier(endpoints, webhook.NewDeadLetterStore(path), logger.With("component", "webhook")), nil
}
