package config

// applyLegacyNotifications translates the legacy single-Discord-webhook
// config key into the canonical notifications.urls list, so that core
// types never have to know the legacy shape existed (spec.md §9).
func applyLegacyNotifications(cfg *Config) {
	if cfg.Notifications.Legacy.WebhookURL == "" {
		return
	}
	for _, u := range cfg.Notifications.URLs {
		if u == cfg.Notifications.Legacy.WebhookURL {
			return
		}
	}
	cfg.Notifications.URLs = append(cfg.Notifications.URLs, cfg.Notifications.Legacy.WebhookURL)
}
