package cli

import (
	"context"

	"github.com/felixgeelhaar/edimap/internal/infrastructure/wiring"
)

// openSession loads services and resumes the workspace's stored session.
func openSession(ctx context.Context, console bool) (*wiring.AppServices, func(), error) {
	services, closeLog, err := loadServicesForCurrentDir(console)
	if err != nil {
		return nil, nil, err
	}
	if _, err := services.Session.ResumeStored(ctx); err != nil {
		closeLog()
		return nil, nil, MapError(err)
	}
	return services, closeLog, nil
}
