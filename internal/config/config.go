// Package config carrega a configuração do admission-gateway: arquivo YAML
// opcional, .env e variáveis de ambiente ADMISSION_*.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "ADMISSION"
	fileName  = "admission-gateway"
)

type Config struct {
	Server     ServerConfig            `mapstructure:"server" yaml:"server"`
	Log        LogConfig               `mapstructure:"log" yaml:"log"`
	Store      StoreConfig             `mapstructure:"store" yaml:"store"`
	Identity   IdentityConfig          `mapstructure:"identity" yaml:"identity"`
	Monitoring MonitoringConfig        `mapstructure:"monitoring" yaml:"monitoring"`
	Tracing    TracingConfig           `mapstructure:"tracing" yaml:"tracing"`
	Routes     map[string]string       `mapstructure:"routes" yaml:"routes" validate:"dive,keys,startswith=/,endkeys,required"`
	Policies   map[string]PolicyConfig `mapstructure:"policies" yaml:"policies" validate:"required,min=1,dive"`
}

type ServerConfig struct {
	ListenAddr   string        `mapstructure:"listen_addr" yaml:"listen_addr" validate:"required"`
	UpstreamURL  string        `mapstructure:"upstream_url" yaml:"upstream_url" validate:"omitempty,url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json text"`
}

type StoreConfig struct {
	Driver        string        `mapstructure:"driver" yaml:"driver" validate:"oneof=memory redis"`
	RedisAddr     string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password" yaml:"-"`
	RedisDB       int           `mapstructure:"redis_db" yaml:"redis_db" validate:"gte=0"`
	KeyPrefix     string        `mapstructure:"key_prefix" yaml:"key_prefix"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	TTLFactor     int           `mapstructure:"ttl_factor" yaml:"ttl_factor" validate:"gte=1"`
	JanitorEvery  time.Duration `mapstructure:"janitor_every" yaml:"janitor_every" validate:"gte=0"`
}

type IdentityConfig struct {
	KeyHeader string `mapstructure:"key_header" yaml:"key_header"`
	TrustXFF  bool   `mapstructure:"trust_xff" yaml:"trust_xff"`
}

type MonitoringConfig struct {
	Resolution time.Duration `mapstructure:"resolution" yaml:"resolution" validate:"gt=0"`
	Retention  time.Duration `mapstructure:"retention" yaml:"retention" validate:"gtefield=Resolution"`
	MaxClasses int           `mapstructure:"max_classes" yaml:"max_classes" validate:"gte=1"`

	RedisEnabled bool          `mapstructure:"redis_enabled" yaml:"redis_enabled"`
	RedisPrefix  string        `mapstructure:"redis_prefix" yaml:"redis_prefix"`
	RedisTTL     time.Duration `mapstructure:"redis_ttl" yaml:"redis_ttl" validate:"gte=0"`
	TrackClasses bool          `mapstructure:"track_classes" yaml:"track_classes"`
	QueueSize    int           `mapstructure:"queue_size" yaml:"queue_size" validate:"gte=1"`
}

type TracingConfig struct {
	Stdout bool `mapstructure:"stdout" yaml:"stdout"`
}

type PolicyConfig struct {
	Window      time.Duration `mapstructure:"window" yaml:"window" validate:"gt=0"`
	MaxRequests int64         `mapstructure:"max_requests" yaml:"max_requests" validate:"gte=1"`
	Burst       int64         `mapstructure:"burst" yaml:"burst" validate:"gte=0"`
	FailureMode string        `mapstructure:"failure_mode" yaml:"failure_mode" validate:"omitempty,oneof=open closed"`
}

// DefaultPolicies é a tabela usada quando nenhuma política é configurada.
// Categorias de autenticação falham fechadas; conteúdo público falha aberto.
func DefaultPolicies() map[string]PolicyConfig {
	return map[string]PolicyConfig{
		string(domain.CategoryAuthLogin):         {Window: time.Minute, MaxRequests: 5, FailureMode: "closed"},
		string(domain.CategoryAuthSignup):        {Window: time.Hour, MaxRequests: 3, FailureMode: "closed"},
		string(domain.CategoryAuthPasswordReset): {Window: time.Hour, MaxRequests: 3, FailureMode: "closed"},
		string(domain.CategoryDirectorySearch):   {Window: time.Minute, MaxRequests: 30, Burst: 10, FailureMode: "closed"},
		string(domain.CategoryMessagingSend):     {Window: time.Minute, MaxRequests: 20, FailureMode: "closed"},
		string(domain.CategoryPublicContent):     {Window: time.Minute, MaxRequests: 120, Burst: 30, FailureMode: "open"},
	}
}

func DefaultRoutes() map[string]string {
	return map[string]string{
		"/auth/login":          string(domain.CategoryAuthLogin),
		"/auth/signup":         string(domain.CategoryAuthSignup),
		"/auth/password-reset": string(domain.CategoryAuthPasswordReset),
		"/search":              string(domain.CategoryDirectorySearch),
		"/messages":            string(domain.CategoryMessagingSend),
		"/":                    string(domain.CategoryPublicContent),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.upstream_url", "")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.redis_addr", "")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.key_prefix", "")
	v.SetDefault("store.timeout", 250*time.Millisecond)
	v.SetDefault("store.ttl_factor", 2)
	v.SetDefault("store.janitor_every", time.Minute)

	v.SetDefault("identity.key_header", "")
	v.SetDefault("identity.trust_xff", false)

	v.SetDefault("monitoring.resolution", time.Minute)
	v.SetDefault("monitoring.retention", time.Hour)
	v.SetDefault("monitoring.max_classes", 1024)
	v.SetDefault("monitoring.redis_enabled", false)
	v.SetDefault("monitoring.redis_prefix", "admission:stats")
	v.SetDefault("monitoring.redis_ttl", 24*time.Hour)
	v.SetDefault("monitoring.track_classes", false)
	v.SetDefault("monitoring.queue_size", 1024)

	v.SetDefault("tracing.stdout", false)
}

// New cria um viper com defaults, arquivo e env (ADMISSION_SERVER_LISTEN_ADDR
// sobrescreve server.listen_addr). configFile vazio procura
// admission-gateway.yaml/.yml em "." e /etc/admission-gateway.
func New(configFile string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	if configFile == "" {
		configFile = findConfigFile([]string{".", "/etc/admission-gateway"})
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// Unmarshal só enxerga env de chaves conhecidas
	for _, k := range v.AllKeys() {
		_ = v.BindEnv(k)
	}
	return v
}

func findConfigFile(dirs []string) string {
	for _, dir := range dirs {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, fileName+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// LoadDotEnv carrega .env para o ambiente do processo; arquivo ausente não é erro.
// Variáveis já definidas não são sobrescritas.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load lê, aplica defaults e valida. Sem arquivo, vale só env + defaults.
func Load(v *viper.Viper) (*Config, error) {
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// SetDefaults preenche o que não tem default no viper (mapas).
func (c *Config) SetDefaults() {
	if len(c.Policies) == 0 {
		c.Policies = DefaultPolicies()
	}
	if c.Routes == nil {
		c.Routes = DefaultRoutes()
	}
	for name, p := range c.Policies {
		if p.FailureMode == "" {
			p.FailureMode = string(domain.FailClosed)
			c.Policies[name] = p
		}
	}
}

// Registry converte a tabela de políticas validada no registro imutável.
func (c *Config) Registry() (*domain.Registry, error) {
	policies := make([]domain.Policy, 0, len(c.Policies))
	for name, p := range c.Policies {
		cat, err := domain.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		mode, err := domain.ParseFailureMode(p.FailureMode)
		if err != nil {
			return nil, err
		}
		policies = append(policies, domain.Policy{
			Category:    cat,
			Window:      p.Window,
			MaxRequests: p.MaxRequests,
			Burst:       p.Burst,
			FailureMode: mode,
		})
	}
	return domain.NewRegistry(policies...)
}

// RouteTable devolve prefixo -> categoria, pronto para admission.PrefixCategoryFunc.
func (c *Config) RouteTable() (map[string]domain.Category, error) {
	out := make(map[string]domain.Category, len(c.Routes))
	for prefix, name := range c.Routes {
		cat, err := domain.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", prefix, err)
		}
		out[prefix] = cat
	}
	return out, nil
}
