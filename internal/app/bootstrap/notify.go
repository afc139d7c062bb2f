package bootstrap

import (
	"fmt"
	"strings"

	appconfig "github.com/wolfman30/medicare-assistant/internal/config"
	"github.com/wolfman30/medicare-assistant/internal/notify"
	"github.com/wolfman30/medicare-assistant/pkg/logging"
)

// BuildEmailSender creates the sender named by EMAIL_PROVIDER.
// sesClient is only consulted for the "ses" provider.
func BuildEmailSender(cfg *appconfig.Config, sesClient notify.SESAPI, logger *logging.Logger) (notify.EmailSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.EmailProvider {
	case "", "stub":
		logger.Info("email notifications logged only", "provider", "stub")
		return notify.NewStubEmailSender(logger), nil
	case "sendgrid":
		if strings.TrimSpace(cfg.SendGridAPIKey) == "" {
			return nil, fmt.Errorf("bootstrap: SENDGRID_API_KEY required for sendgrid provider")
		}
		logger.Info("email notifications enabled", "provider", "sendgrid", "from", cfg.EmailFromAddress)
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger), nil
	case "ses":
		if sesClient == nil {
			return nil, fmt.Errorf("bootstrap: ses provider requires an AWS client")
		}
		logger.Info("email notifications enabled", "provider", "ses", "from", cfg.EmailFromAddress)
		return notify.NewSESSender(sesClient, notify.SESConfig{
			FromEmail:        cfg.EmailFromAddress,
			FromName:         cfg.EmailFromName,
			ConfigurationSet: cfg.SESConfigurationSet,
		}, logger), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown email provider %q", cfg.EmailProvider)
	}
}
