package portal

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/df-mc/portalguard/portal/cooldown"
	"github.com/df-mc/portalguard/portal/cooldown/cooldowndb"
	"github.com/df-mc/portalguard/portal/message"
	"github.com/df-mc/portalguard/portal/security"
	"github.com/pelletier/go-toml"
)

// EnvPrefix is the prefix of environment variables overriding values of a UserConfig.
const EnvPrefix = "PORTALGUARD_"

// UserConfig is the user configuration of portal restrictions. It may be serialised and can be converted
// to Rules by calling UserConfig.Rules. Every value may be overridden by an environment variable prefixed
// with EnvPrefix, such as PORTALGUARD_PORTALS_ENABLED.
type UserConfig struct {
	Portals struct {
		// Enabled controls if portal restrictions are applied at all.
		Enabled bool `env:"ENABLED"`
		// Debug logs every decision at info level.
		Debug bool `env:"DEBUG"`
		// Language is the language of messages sent to players, such as "en" or "pl".
		Language string `env:"LANGUAGE"`
		// BlockNether makes nether portals require the nether permission.
		BlockNether bool `env:"BLOCK_NETHER"`
		// BlockEnd makes end portals and gateways require the end permission.
		BlockEnd bool `env:"BLOCK_END"`
		// BlockCustom makes all other portals require the custom permission.
		BlockCustom bool `env:"BLOCK_CUSTOM"`
	} `envPrefix:"PORTALS_"`
	Cooldown struct {
		// Enabled controls if players denied a portal are put on cooldown.
		Enabled bool `env:"ENABLED"`
		// Seconds is the length of a player cooldown.
		Seconds int `env:"SECONDS"`
		// ShowMessage controls if players on cooldown are told how long they must wait.
		ShowMessage bool `env:"SHOW_MESSAGE"`
	} `envPrefix:"COOLDOWN_"`
	Knockback struct {
		// Enabled controls if players denied a portal are pushed away from it.
		Enabled bool `env:"ENABLED"`
		// Strength is the horizontal strength of the push.
		Strength float64 `env:"STRENGTH"`
		// Height is the vertical strength of the push.
		Height float64 `env:"HEIGHT"`
	} `envPrefix:"KNOCKBACK_"`
	Sound struct {
		// Play controls if a sound is played to players denied a portal.
		Play bool `env:"PLAY"`
		// Type is the name of the sound.
		Type string `env:"TYPE"`
		// Volume is clamped to [0, 1].
		Volume float64 `env:"VOLUME"`
		// Pitch is clamped to [0, 2].
		Pitch float64 `env:"PITCH"`
	} `envPrefix:"SOUND_"`
	Security struct {
		// MaxStaySeconds is how long a subject may stay in a portal before its teleport is cancelled.
		MaxStaySeconds int `env:"MAX_STAY_SECONDS"`
		// ProximityRadius is the radius searched around a subject for portal blocks.
		ProximityRadius int `env:"PROXIMITY_RADIUS"`
		// CooldownTicks is the cooldown applied when a bypass attempt is detected.
		CooldownTicks int `env:"COOLDOWN_TICKS"`
		// MovementThreshold is the distance in blocks a single move near a portal may cover.
		MovementThreshold float64 `env:"MOVEMENT_THRESHOLD"`
		// VelocityThreshold is the velocity a subject near a portal may be given.
		VelocityThreshold float64 `env:"VELOCITY_THRESHOLD"`
	} `envPrefix:"SECURITY_"`
	Storage struct {
		// SaveCooldowns controls if player cooldowns are kept across restarts, in a database opened by
		// UserConfig.CooldownProvider.
		SaveCooldowns bool `env:"SAVE_COOLDOWNS"`
		// Folder is the folder the cooldown database is stored in.
		Folder string `env:"FOLDER"`
	} `envPrefix:"STORAGE_"`
	// Permissions maps permission keys to permission nodes. Keys are "nether", "end", "custom" and
	// "bypass".
	Permissions map[string]string
	// Messages maps languages to message keys to messages. Messages missing here fall back to the
	// built-in ones.
	Messages map[string]map[string]string
}

// DefaultConfig returns a configuration with the default values filled out.
func DefaultConfig() UserConfig {
	c := UserConfig{}
	c.Portals.Enabled = true
	c.Portals.Language = message.BaseLanguage
	c.Portals.BlockNether = true
	c.Portals.BlockEnd = true
	c.Cooldown.Enabled = true
	c.Cooldown.Seconds = 5
	c.Cooldown.ShowMessage = true
	c.Knockback.Enabled = true
	c.Knockback.Strength = 1.5
	c.Knockback.Height = 0.8
	c.Sound.Play = true
	c.Sound.Type = "note.bass"
	c.Sound.Volume = 0.7
	c.Sound.Pitch = 1.0

	sec := security.DefaultSettings()
	c.Security.MaxStaySeconds = int(sec.MaxStay / time.Second)
	c.Security.ProximityRadius = sec.ProximityRadius
	c.Security.CooldownTicks = int(sec.CooldownTicks)
	c.Security.MovementThreshold = sec.MovementThreshold
	c.Security.VelocityThreshold = sec.VelocityThreshold

	c.Storage.Folder = "cooldowns"
	c.Permissions = map[string]string{
		"nether": "portals.nether",
		"end":    "portals.end",
		"custom": "portals.custom",
		"bypass": "portals.bypass",
	}
	c.Messages = message.DefaultMessages()
	return c
}

// LoadUserConfig reads the configuration stored in the TOML file at the path passed. Values missing from
// the file keep their defaults. If the file does not exist yet, it is created with the default
// configuration. Environment variables are applied last.
func LoadUserConfig(path string) (UserConfig, error) {
	c := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return c, errors.New("config path must not be empty")
	}
	contents, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := WriteUserConfig(path, c); err != nil {
			return c, err
		}
	case err != nil:
		return c, fmt.Errorf("read config: %w", err)
	case len(contents) != 0:
		if err := toml.Unmarshal(contents, &c); err != nil {
			return c, fmt.Errorf("decode config: %w", err)
		}
	}
	if err := c.ApplyEnv(); err != nil {
		return c, err
	}
	return c, nil
}

// WriteUserConfig writes the configuration passed to the TOML file at the path passed, creating its
// directory if needed.
func WriteUserConfig(path string, c UserConfig) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	encoded, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// StorageDir returns the folder saved cooldowns are kept in. A relative Storage.Folder is resolved against
// base, usually the directory of the configuration file.
func (uc UserConfig) StorageDir(base string) string {
	folder := strings.TrimSpace(uc.Storage.Folder)
	if folder == "" {
		folder = "cooldowns"
	}
	if filepath.IsAbs(folder) {
		return folder
	}
	return filepath.Join(base, folder)
}

// CooldownProvider returns the Provider player cooldowns are persisted with. If Storage.SaveCooldowns is
// set, a LevelDB database in StorageDir(base) is opened. Otherwise cooldown.NopProvider is returned.
func (uc UserConfig) CooldownProvider(base string, log *slog.Logger) (cooldown.Provider, error) {
	if !uc.Storage.SaveCooldowns {
		return cooldown.NopProvider{}, nil
	}
	db, err := cooldowndb.Config{Log: log}.Open(uc.StorageDir(base))
	if err != nil {
		return nil, err
	}
	return db, nil
}

// ApplyEnv overrides values of the configuration with environment variables prefixed with EnvPrefix.
func (uc *UserConfig) ApplyEnv() error {
	if err := env.ParseWithOptions(uc, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Rules converts the UserConfig to Rules. An error wrapping ErrInvalidConfig is returned if a value is out
// of range or the messages cannot be loaded.
func (uc UserConfig) Rules() (*Rules, error) {
	if uc.Cooldown.Seconds < 0 {
		return nil, fmt.Errorf("%w: cooldown seconds must not be negative, got %d", ErrInvalidConfig, uc.Cooldown.Seconds)
	}
	if uc.Security.MaxStaySeconds <= 0 {
		return nil, fmt.Errorf("%w: max stay seconds must be positive, got %d", ErrInvalidConfig, uc.Security.MaxStaySeconds)
	}
	if uc.Security.ProximityRadius < 0 || uc.Security.ProximityRadius > 8 {
		return nil, fmt.Errorf("%w: proximity radius must be in [0, 8], got %d", ErrInvalidConfig, uc.Security.ProximityRadius)
	}
	if uc.Security.CooldownTicks < 0 {
		return nil, fmt.Errorf("%w: cooldown ticks must not be negative, got %d", ErrInvalidConfig, uc.Security.CooldownTicks)
	}

	messages := message.DefaultMessages()
	for lang, msgs := range uc.Messages {
		if messages[lang] == nil {
			messages[lang] = make(map[string]string, len(msgs))
		}
		for key, msg := range msgs {
			messages[lang][key] = msg
		}
	}
	catalogue, err := message.NewCatalogue(messages)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	lang := strings.TrimSpace(uc.Portals.Language)
	if lang == "" {
		lang = message.BaseLanguage
	}

	sec := security.DefaultSettings()
	sec.MaxStay = time.Duration(uc.Security.MaxStaySeconds) * time.Second
	sec.ProximityRadius = uc.Security.ProximityRadius
	sec.CooldownTicks = int64(uc.Security.CooldownTicks)
	sec.MovementThreshold = finiteOr(uc.Security.MovementThreshold, sec.MovementThreshold)
	sec.VelocityThreshold = finiteOr(uc.Security.VelocityThreshold, sec.VelocityThreshold)

	permissions := make(map[string]string, len(uc.Permissions))
	for key, node := range uc.Permissions {
		permissions[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(node)
	}

	return &Rules{
		Enabled:     uc.Portals.Enabled,
		Debug:       uc.Portals.Debug,
		Language:    lang,
		BlockNether: uc.Portals.BlockNether,
		BlockEnd:    uc.Portals.BlockEnd,
		BlockCustom: uc.Portals.BlockCustom,
		Cooldown: CooldownRules{
			Enabled:     uc.Cooldown.Enabled,
			Duration:    time.Duration(uc.Cooldown.Seconds) * time.Second,
			ShowMessage: uc.Cooldown.ShowMessage,
		},
		Knockback: KnockbackRules{
			Enabled:  uc.Knockback.Enabled,
			Strength: uc.Knockback.Strength,
			Height:   uc.Knockback.Height,
		},
		Sound: SoundRules{
			Play:   uc.Sound.Play,
			Type:   strings.TrimSpace(uc.Sound.Type),
			Volume: clamp(uc.Sound.Volume, 0, 1, 0.7),
			Pitch:  clamp(uc.Sound.Pitch, 0, 2, 1),
		},
		Security:    sec,
		Permissions: permissions,
		Messages:    catalogue,
	}, nil
}

// clamp clamps f to [lo, hi]. Non-finite values are replaced by def.
func clamp(f, lo, hi, def float64) float64 {
	return math.Min(math.Max(finiteOr(f, def), lo), hi)
}

func finiteOr(f, def float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}
