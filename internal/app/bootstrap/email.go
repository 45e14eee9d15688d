package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/notify"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// BuildEmailSender picks the outbound email provider named by EMAIL_PROVIDER.
// Missing credentials fall back to the logging stub so bookings never depend on email.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("sendgrid selected without SENDGRID_API_KEY, using stub sender")
	case "ses":
		if awsCfg != nil && cfg.EmailFrom != "" {
			return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
				FromEmail:        cfg.EmailFrom,
				FromName:         cfg.EmailFromName,
				ConfigurationSet: cfg.SESConfigurationSet,
			}, logger)
		}
		logger.Warn("ses selected without aws config or EMAIL_FROM, using stub sender")
	case "", "stub":
	default:
		logger.Warn("unknown email provider, using stub sender", "provider", cfg.EmailProvider)
	}
	return notify.NewStubEmailSender(logger)
}
