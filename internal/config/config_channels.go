package config

// ChannelsConfig contains per-channel configuration.
type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
}

type WhatsAppConfig struct {
	Enabled     bool                `json:"enabled"`
	BridgeURL   string              `json:"bridge_url"`
	AllowFrom   FlexibleStringSlice `json:"allow_from"`
	DMPolicy    string              `json:"dm_policy,omitempty"`    // "open" (default), "allowlist", "disabled"
	GroupPolicy string              `json:"group_policy,omitempty"` // "disabled" (default), "open", "allowlist"
}

// GatewayConfig controls the health HTTP listener.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"` // 0 disables the listener
}
