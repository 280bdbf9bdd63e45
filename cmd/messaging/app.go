package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"

	messaging "github.com/goliatone/go-messaging"
	"github.com/goliatone/go-messaging/adapters/gologger"
	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/providers/mailgun"
	"github.com/goliatone/go-messaging/providers/sendgrid"
	"github.com/goliatone/go-messaging/providers/telnyx"
	"github.com/goliatone/go-messaging/providers/twilio"
	"github.com/goliatone/go-messaging/security"
	sqlstore "github.com/goliatone/go-messaging/store/sql"
	"github.com/goliatone/go-messaging/webhooks"
)

type app struct {
	cfg      FileConfig
	logger   *gologger.CharmLogger
	secrets  security.SecretProvider
	client   *persistence.Client
	stores   *sqlstore.RepositoryFactory
	service  *core.Service
	verifier *webhooks.CarrierVerifier
}

func newLogger(cfg LogConfig) *gologger.CharmLogger {
	return gologger.NewCharmLogger(gologger.CharmOptions{
		Level:     cfg.Level,
		Format:    cfg.Format,
		Timestamp: cfg.Timestamp,
	})
}

func newSecretProvider(appKey string) (security.SecretProvider, error) {
	if strings.TrimSpace(appKey) == "" {
		return nil, nil
	}
	return security.NewAppKeySecretProviderFromString(appKey)
}

// openApp connects to the database and builds the service over the SQL
// stores. Providers are only built when withProviders is set.
func openApp(ctx context.Context, cfg FileConfig, logger *gologger.CharmLogger, withProviders bool) (*app, error) {
	secrets, err := newSecretProvider(cfg.AppKey)
	if err != nil {
		return nil, err
	}
	client, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, secrets: secrets, client: client}

	a.stores, err = sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	cacheConfig := repositorycache.DefaultConfig()
	if cfg.Cache.TTL > 0 {
		cacheConfig.TTL = cfg.Cache.TTL
	}
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("cache: %w", err)
	}
	throttle, err := a.stores.CachedThrottleStateStore(cacheService)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	factory := messaging.NewDefaultComponentFactory()
	factory.ThrottleStore = throttle
	factory.MetricsRecorder = core.NewMemoryMetricsRecorder()
	if withProviders {
		if err := a.addProviders(ctx, factory); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	a.service, err = messaging.Setup(messaging.DefaultConfig(),
		messaging.WithLogger(logger),
		messaging.WithLoggerProvider(gologger.NewCharmProvider(logger)),
		messaging.WithPersistenceClient(client),
		messaging.WithRepositoryFactory(a.stores),
		messaging.WithComponentFactory(factory),
		messaging.WithConfigProvider(core.NewCfgxConfigProvider(core.StaticRawConfigLoader{Values: cfg.Messaging})),
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) addProviders(ctx context.Context, factory *messaging.DefaultComponentFactory) error {
	var errs []error
	add := func(channel core.Channel, name string, route RouteConfig, provider core.Provider, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("provider %s: %w", name, err))
			return
		}
		factory.AddProvider(channel, core.ProviderEntry{
			Name:     name,
			Priority: route.Priority,
			Tags:     route.Tags,
			Domains:  route.Domains,
			Provider: provider,
		})
		a.logger.Info("provider configured", "channel", string(channel), "provider", name, "priority", route.Priority)
	}

	providers := a.cfg.Providers
	if cfg := providers.Twilio; cfg != nil {
		token, err := a.open(ctx, "providers.twilio.auth_token", cfg.AuthToken)
		if err == nil {
			var provider core.Provider
			provider, err = messaging.TwilioProvider(twilio.Config{
				AccountSID:     cfg.AccountSID,
				AuthToken:      token,
				From:           cfg.From,
				StatusCallback: cfg.StatusCallback,
				Timeout:        cfg.Timeout,
			})
			add(core.ChannelSMS, twilio.ProviderName, cfg.RouteConfig, provider, err)
		} else {
			errs = append(errs, err)
		}
	}
	if cfg := providers.Telnyx; cfg != nil {
		key, err := a.open(ctx, "providers.telnyx.api_key", cfg.APIKey)
		if err == nil {
			var provider core.Provider
			provider, err = messaging.TelnyxProvider(telnyx.Config{
				APIKey:             key,
				From:               cfg.From,
				MessagingProfileID: cfg.MessagingProfileID,
				Timeout:            cfg.Timeout,
			})
			add(core.ChannelSMS, telnyx.ProviderName, cfg.RouteConfig, provider, err)
		} else {
			errs = append(errs, err)
		}
	}
	if cfg := providers.Mailgun; cfg != nil {
		key, err := a.open(ctx, "providers.mailgun.api_key", cfg.APIKey)
		if err == nil {
			var provider core.Provider
			provider, err = messaging.MailgunProvider(mailgun.Config{
				APIKey:   key,
				Domain:   cfg.Domain,
				BaseURL:  cfg.BaseURL,
				From:     cfg.From,
				Tracking: cfg.Tracking,
				Timeout:  cfg.Timeout,
			})
			add(core.ChannelEmail, mailgun.ProviderName, cfg.RouteConfig, provider, err)
		} else {
			errs = append(errs, err)
		}
	}
	if cfg := providers.SendGrid; cfg != nil {
		key, err := a.open(ctx, "providers.sendgrid.api_key", cfg.APIKey)
		if err == nil {
			var provider core.Provider
			provider, err = messaging.SendGridProvider(sendgrid.Config{
				APIKey:  key,
				From:    cfg.From,
				Timeout: cfg.Timeout,
			})
			add(core.ChannelEmail, sendgrid.ProviderName, cfg.RouteConfig, provider, err)
		} else {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// webhookVerifier opens any sealed webhook secrets and builds the per
// carrier verifier.
func (a *app) webhookVerifier(ctx context.Context) (*webhooks.CarrierVerifier, error) {
	secrets := a.cfg.Webhooks
	values := map[string]string{
		"webhooks.twilio_auth_token":   secrets.TwilioAuthToken,
		"webhooks.telnyx_public_key":   secrets.TelnyxPublicKey,
		"webhooks.mailgun_signing_key": secrets.MailgunSigningKey,
		"webhooks.sendgrid_token":      secrets.SendGridToken,
	}
	if err := security.ResolveAll(ctx, a.secrets, values); err != nil {
		return nil, err
	}
	secrets.TwilioAuthToken = values["webhooks.twilio_auth_token"]
	secrets.TelnyxPublicKey = values["webhooks.telnyx_public_key"]
	secrets.MailgunSigningKey = values["webhooks.mailgun_signing_key"]
	secrets.SendGridToken = values["webhooks.sendgrid_token"]

	verifier := webhooks.NewCarrierVerifierFromSecrets(secrets)
	if secrets.AllowUnsignedHooks {
		a.logger.Warn("unsigned webhooks are accepted for carriers without a verifier")
	}
	return verifier, nil
}

func (a *app) open(ctx context.Context, key string, value string) (string, error) {
	opened, err := security.Resolve(ctx, a.secrets, value)
	if err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	return opened, nil
}

func (a *app) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.Close()
}
