package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Security   SecurityConfig   `mapstructure:"security"`
	Journal    JournalConfig    `mapstructure:"journal"`
	Bot        BotConfig        `mapstructure:"bot"`
	Features   FeaturesConfig   `mapstructure:"features"`
	Combat     CombatConfig     `mapstructure:"combat"`
	Explosive  ExplosiveConfig  `mapstructure:"explosive_avoidance"`
	Food       FoodConfig       `mapstructure:"food"`
	Stash      StashConfig      `mapstructure:"stash"`
	AFK        AFKConfig        `mapstructure:"afk"`
	Hazard     HazardConfig     `mapstructure:"hazard"`
	Reconnect  ReconnectConfig  `mapstructure:"reconnect"`
	Entry      EntryConfig      `mapstructure:"entry_settings"`
	AuthPrompt AuthPromptConfig `mapstructure:"auth_settings"`
}

type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	Debug     bool   `mapstructure:"debug"`
	AdminKey  string `mapstructure:"admin_key"`
	PublicDir string `mapstructure:"public_dir"` // dashboard static files (served at /)
	// AdminIPs restricts the admin API to these client IPs. Empty allows all.
	AdminIPs []string `mapstructure:"admin_ips"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTTTLH   time.Duration `mapstructure:"jwt_ttl_h"`
	// PasswordHash is the bcrypt hash of the dashboard password.
	// Empty disables dashboard authentication.
	PasswordHash   string  `mapstructure:"password_hash"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the WebSocket/SSE origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type JournalConfig struct {
	MaxEntries int  `mapstructure:"max_entries"`
	Persist    bool `mapstructure:"persist"`
}

type BotConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Auth      string `mapstructure:"auth"`      // offline | microsoft
	Version   string `mapstructure:"version"`   // "" or "false" = auto-detect
	Transport string `mapstructure:"transport"` // sim
	// UnreliableHosts are host substrings pinned to the minimum view distance.
	UnreliableHosts []string `mapstructure:"unreliable_hosts"`
}

type FeaturesConfig struct {
	AutoReconnect      bool `mapstructure:"auto_reconnect"`
	CombatSelfDefense  bool `mapstructure:"combat_self_defense"`
	ExplosiveAvoidance bool `mapstructure:"explosive_avoidance"`
	AutoFoodSource     bool `mapstructure:"auto_food_source"`
	AutoStash          bool `mapstructure:"auto_stash"`
	AutoSleep          bool `mapstructure:"auto_sleep"`
	AutoEquip          bool `mapstructure:"auto_equip"`
	AcceptResourcePack bool `mapstructure:"accept_resource_pack"`
	SolveMathCaptcha   bool `mapstructure:"solve_math_captcha"`
}

type CombatConfig struct {
	FleeHealth      float64       `mapstructure:"flee_health"`
	ScanRange       float64       `mapstructure:"scan_range"`
	AttackRange     float64       `mapstructure:"attack_range"`
	DisengageRange  float64       `mapstructure:"disengage_range"`
	FleeDistance    float64       `mapstructure:"flee_distance"`
	ScanInterval    time.Duration `mapstructure:"scan_interval"`
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	AttackerExpiry  time.Duration `mapstructure:"attacker_expiry"`
	AttributeRadius float64       `mapstructure:"attribute_radius"`
	SwingRadius     float64       `mapstructure:"swing_radius"`
	SwingWindow     time.Duration `mapstructure:"swing_window"`
}

type ExplosiveConfig struct {
	FleeRadius float64       `mapstructure:"flee_radius"`
	SafeRadius float64       `mapstructure:"safe_radius"`
	ArmedRange float64       `mapstructure:"armed_range"` // creepers only count inside this range
	Cooldown   time.Duration `mapstructure:"cooldown"`
}

type FoodConfig struct {
	HungerThreshold   float64       `mapstructure:"hunger_threshold"`
	MinFoodSlots      int           `mapstructure:"min_food_slots"`
	ChestSearchRadius float64       `mapstructure:"chest_search_radius"`
	HuntRadius        float64       `mapstructure:"hunt_radius"`
	MaxWithdraw       int           `mapstructure:"max_withdraw"`
	Interval          time.Duration `mapstructure:"interval"`
	HuntTimeout       time.Duration `mapstructure:"hunt_timeout"`
	HuntMaxHits       int           `mapstructure:"hunt_max_hits"`
	HuntTickInterval  time.Duration `mapstructure:"hunt_tick_interval"`
}

type StashConfig struct {
	SearchRadius float64       `mapstructure:"search_radius"`
	Interval     time.Duration `mapstructure:"interval"`
	KeepFood     bool          `mapstructure:"keep_food"`
	KeepTools    bool          `mapstructure:"keep_tools"`
	KeepArmor    bool          `mapstructure:"keep_armor"`
}

type AFKConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	WanderRadius   float64       `mapstructure:"wander_radius"`
	DriftMargin    float64       `mapstructure:"drift_margin"`
	BedSearchRange float64       `mapstructure:"bed_search_range"`
	WanderCooldown time.Duration `mapstructure:"wander_cooldown"`
	LookCooldown   time.Duration `mapstructure:"look_cooldown"`
	// Weights of the idle repertoire, in roll order. Missing mass is "do nothing".
	Weights IdleWeights `mapstructure:"weights"`
}

type IdleWeights struct {
	Wander float64 `mapstructure:"wander"`
	Look   float64 `mapstructure:"look"`
	Jump   float64 `mapstructure:"jump"`
	Sneak  float64 `mapstructure:"sneak"`
	Swing  float64 `mapstructure:"swing"`
	Sprint float64 `mapstructure:"sprint"`
}

type HazardConfig struct {
	MaxDrop       int     `mapstructure:"max_drop"`
	ScanDepth     int     `mapstructure:"scan_depth"`
	SafeSpotTries int     `mapstructure:"safe_spot_tries"`
	MinWander     float64 `mapstructure:"min_wander"`
	EscapeRadius  float64 `mapstructure:"escape_radius"`
}

type ReconnectConfig struct {
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	Multiplier        float64       `mapstructure:"multiplier"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	TransientDelay    time.Duration `mapstructure:"transient_delay"`
	TransientMaxDelay time.Duration `mapstructure:"transient_max_delay"`
	ProbeTimeout      time.Duration `mapstructure:"probe_timeout"`
	StableAfter       time.Duration `mapstructure:"stable_after"`
	LowLatency        time.Duration `mapstructure:"low_latency"`
}

type EntryConfig struct {
	MoveForwardSeconds float64 `mapstructure:"move_forward_seconds"`
	FirstTimeMessage   string  `mapstructure:"first_time_message"`
	ChatDelaySeconds   float64 `mapstructure:"chat_delay_seconds"`
}

type AuthPromptConfig struct {
	RegisterCmd string `mapstructure:"register_cmd"`
	LoginCmd    string `mapstructure:"login_cmd"`
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("AFK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the engines cannot run with: non-positive ticker
// intervals, a disengage range inside the attack range, and an idle
// repertoire whose weights exceed a probability of one.
func (c *Config) Validate() error {
	intervals := []struct {
		key string
		d   time.Duration
	}{
		{"combat.scan_interval", c.Combat.ScanInterval},
		{"combat.tick_interval", c.Combat.TickInterval},
		{"food.hunt_tick_interval", c.Food.HuntTickInterval},
		{"afk.interval", c.AFK.Interval},
		{"reconnect.base_delay", c.Reconnect.BaseDelay},
	}
	for _, iv := range intervals {
		if iv.d <= 0 {
			return fmt.Errorf("config: %s must be positive, got %s", iv.key, iv.d)
		}
	}
	if c.Combat.AttackRange <= 0 {
		return fmt.Errorf("config: combat.attack_range must be positive, got %g", c.Combat.AttackRange)
	}
	if c.Combat.DisengageRange <= c.Combat.AttackRange {
		return fmt.Errorf("config: combat.disengage_range (%g) must exceed combat.attack_range (%g)",
			c.Combat.DisengageRange, c.Combat.AttackRange)
	}
	if c.Reconnect.Multiplier < 1 {
		return fmt.Errorf("config: reconnect.multiplier must be at least 1, got %g", c.Reconnect.Multiplier)
	}

	w := c.AFK.Weights
	sum := 0.0
	for _, x := range []float64{w.Wander, w.Look, w.Jump, w.Sneak, w.Swing, w.Sprint} {
		if x < 0 {
			return fmt.Errorf("config: afk.weights must not be negative, got %g", x)
		}
		sum += x
	}
	if sum > 1+1e-9 {
		return fmt.Errorf("config: afk.weights sum to %g, must not exceed 1", sum)
	}
	return nil
}

// Default returns the configuration produced by the defaults alone.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8999)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.public_dir", "./public")
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/afkagent.db")
	v.SetDefault("database.mysql_max_open", 10)
	v.SetDefault("database.mysql_max_idle", 2)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 20)
	v.SetDefault("security.rate_limit_burst", 40)
	v.SetDefault("journal.max_entries", 500)
	v.SetDefault("journal.persist", true)

	v.SetDefault("bot.host", "localhost")
	v.SetDefault("bot.port", 25565)
	v.SetDefault("bot.username", "AFK_Bot")
	v.SetDefault("bot.auth", "offline")
	v.SetDefault("bot.transport", "sim")
	v.SetDefault("bot.unreliable_hosts", []string{"aternos.me"})

	v.SetDefault("features.auto_reconnect", true)
	v.SetDefault("features.combat_self_defense", true)
	v.SetDefault("features.explosive_avoidance", true)
	v.SetDefault("features.auto_food_source", true)
	v.SetDefault("features.auto_stash", false)
	v.SetDefault("features.auto_sleep", true)
	v.SetDefault("features.auto_equip", true)
	v.SetDefault("features.accept_resource_pack", true)
	v.SetDefault("features.solve_math_captcha", true)

	v.SetDefault("combat.flee_health", 6)
	v.SetDefault("combat.scan_range", 6)
	v.SetDefault("combat.attack_range", 3.5)
	v.SetDefault("combat.disengage_range", 8)
	v.SetDefault("combat.flee_distance", 10)
	v.SetDefault("combat.scan_interval", "500ms")
	v.SetDefault("combat.tick_interval", "250ms")
	v.SetDefault("combat.attacker_expiry", "30s")
	v.SetDefault("combat.attribute_radius", 5)
	v.SetDefault("combat.swing_radius", 4)
	v.SetDefault("combat.swing_window", "500ms")

	v.SetDefault("explosive_avoidance.flee_radius", 8)
	v.SetDefault("explosive_avoidance.safe_radius", 16)
	v.SetDefault("explosive_avoidance.armed_range", 4)
	v.SetDefault("explosive_avoidance.cooldown", "3s")

	v.SetDefault("food.hunger_threshold", 14)
	v.SetDefault("food.min_food_slots", 4)
	v.SetDefault("food.chest_search_radius", 16)
	v.SetDefault("food.hunt_radius", 16)
	v.SetDefault("food.max_withdraw", 32)
	v.SetDefault("food.interval", "30s")
	v.SetDefault("food.hunt_timeout", "15s")
	v.SetDefault("food.hunt_max_hits", 30)
	v.SetDefault("food.hunt_tick_interval", "250ms")

	v.SetDefault("stash.search_radius", 16)
	v.SetDefault("stash.interval", "60s")
	v.SetDefault("stash.keep_food", true)
	v.SetDefault("stash.keep_tools", true)
	v.SetDefault("stash.keep_armor", true)

	v.SetDefault("afk.interval", "15s")
	v.SetDefault("afk.wander_radius", 32)
	v.SetDefault("afk.drift_margin", 5)
	v.SetDefault("afk.bed_search_range", 32)
	v.SetDefault("afk.wander_cooldown", "20s")
	v.SetDefault("afk.look_cooldown", "5s")
	v.SetDefault("afk.weights.wander", 0.40)
	v.SetDefault("afk.weights.look", 0.15)
	v.SetDefault("afk.weights.jump", 0.10)
	v.SetDefault("afk.weights.sneak", 0.08)
	v.SetDefault("afk.weights.swing", 0.07)
	v.SetDefault("afk.weights.sprint", 0.05)

	v.SetDefault("hazard.max_drop", 5)
	v.SetDefault("hazard.scan_depth", 8)
	v.SetDefault("hazard.safe_spot_tries", 10)
	v.SetDefault("hazard.min_wander", 6)
	v.SetDefault("hazard.escape_radius", 10)

	v.SetDefault("reconnect.base_delay", "15s")
	v.SetDefault("reconnect.multiplier", 2)
	v.SetDefault("reconnect.max_delay", "5m")
	v.SetDefault("reconnect.transient_delay", "5s")
	v.SetDefault("reconnect.transient_max_delay", "60s")
	v.SetDefault("reconnect.probe_timeout", "5s")
	v.SetDefault("reconnect.stable_after", "5m")
	v.SetDefault("reconnect.low_latency", "100ms")

	v.SetDefault("entry_settings.move_forward_seconds", 1)
	v.SetDefault("entry_settings.chat_delay_seconds", 2)
	v.SetDefault("auth_settings.register_cmd", "/register {pass} {pass}")
	v.SetDefault("auth_settings.login_cmd", "/login {pass}")
}
