package config

import (
	"fmt"
	"io/ioutil"
	"strings"

	"signup-middleware/models"

	"github.com/FusionAuth/go-client/pkg/fusionauth"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v2"
)

const DefaultConfigFile = "config.yml"

type PostgresConfig struct {
	User    string `yaml:"user"`
	Pass    string `yaml:"pass"`
	Host    string `yaml:"host"`
	Port    string `yaml:"port"`
	DBName  string `yaml:"dbName"`
	Options string `yaml:"options"`
}

type RedisConfig struct {
	Addr              string `yaml:"addr"`
	Password          string `yaml:"password"`
	DB                int    `yaml:"db"`
	SessionTTLSeconds int    `yaml:"sessionTtlSeconds"`
}

type JWTConfig struct {
	CookieName          string `yaml:"cookieName"`
	CookieDomain        string `yaml:"cookieDomain"`
	CookieMaxAgeSeconds int    `yaml:"cookieMaxAgeSeconds"`
	CookieSetSecure     bool   `yaml:"cookieSetSecure"`
}

type StripeProduct struct {
	ProductID string   `yaml:"productId"`
	PriceIDs  []string `yaml:"priceIds"`
}

type GlobalConfig struct {
	BindAddr string         `yaml:"bindAddr"`
	BindPort string         `yaml:"bindPort"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`

	// client-side deadlines for each outbound boundary
	AuthTimeoutSeconds      int `yaml:"authTimeoutSeconds"`      // default 10
	BackendFnTimeoutSeconds int `yaml:"backendFnTimeoutSeconds"` // default 15
	ERPTimeoutSeconds       int `yaml:"erpTimeoutSeconds"`       // default 30

	// verification-code request limiting, per email
	VerificationRatePerMin int `yaml:"verificationRatePerMin"` // default 5
	VerificationBurst      int `yaml:"verificationBurst"`      // default 3
}

// App is the per-frontend configuration. One middleware instance can serve
// several frontend origins (e.g. staging and production), each with its own
// FusionAuth application and Stripe account.
type App struct {
	Name          string `yaml:"name"`
	FullDomainURL string `yaml:"fullDomainUrl"` // frontend origin, used for CORS
	MiddlewareURL string `yaml:"middlewareUrl"` // this service's public URL

	FusionAuthHost              string `yaml:"fusionAuthHost"`
	FusionAuthPublicHost        string `yaml:"fusionAuthPublicHost"`
	FusionAuthAPIKey            string `yaml:"fusionAuthApiKey"`
	FusionAuthAppID             string `yaml:"fusionAuthAppId"`
	FusionAuthTenantID          string `yaml:"fusionAuthTenantId"`
	FusionAuthOauthClientID     string `yaml:"fusionAuthOauthClientId"`
	FusionAuthOauthClientSecret string `yaml:"fusionAuthOauthClientSecret"`
	AuthCallbackRedirectURL     string `yaml:"authCallbackRedirectUrl"`

	JWT JWTConfig `yaml:"jwt"`

	StripeSecretKey         string          `yaml:"stripeSecretKey"`
	StripeProducts          []StripeProduct `yaml:"stripeProducts"`
	StripePaymentSuccessURL string          `yaml:"stripePaymentSuccessUrl"`
	StripePaymentCancelURL  string          `yaml:"stripePaymentCancelUrl"`

	ERPBaseURL       string `yaml:"erpBaseUrl"`
	ERPAPIKey        string `yaml:"erpApiKey"`
	BackendFnBaseURL string `yaml:"backendFnBaseUrl"`

	MutationKey   string               `yaml:"mutationKey"`
	MutableFields models.MutableFields `yaml:"mutableFields"`

	// populated at startup, not from yaml
	OauthStr         string                       `yaml:"-"`
	CodeVerif        string                       `yaml:"-"`
	CodeChallenge    string                       `yaml:"-"`
	FusionAuthClient *fusionauth.FusionAuthClient `yaml:"-"`
	OauthConfig      *oauth2.Config               `yaml:"-"`
	AuthCodeURL      string                       `yaml:"-"`
}

type Config struct {
	Global       GlobalConfig `yaml:"global"`
	Applications []App        `yaml:"applications"`
}

// LoadConfigYaml reads the config file directly with the yaml parser.
func LoadConfigYaml() (Config, error) {
	return LoadConfigYamlFile(DefaultConfigFile)
}

func LoadConfigYamlFile(path string) (conf Config, err error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return conf, fmt.Errorf("failed to read config file %v: %v", path, err.Error())
	}
	err = yaml.Unmarshal(b, &conf)
	if err != nil {
		return conf, fmt.Errorf("failed to parse config file %v: %v", path, err.Error())
	}
	conf.applyDefaults()
	return conf, nil
}

// LoadConfig reads the config via viper instead, for setups that want env
// var overrides on top of the file.
func LoadConfig() (conf Config, err error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	err = v.ReadInConfig()
	if err != nil {
		return conf, fmt.Errorf("failed to read config: %v", err.Error())
	}
	err = v.Unmarshal(&conf)
	if err != nil {
		return conf, fmt.Errorf("failed to unmarshal config: %v", err.Error())
	}
	conf.applyDefaults()
	return conf, nil
}

func (conf *Config) applyDefaults() {
	if conf.Global.AuthTimeoutSeconds == 0 {
		conf.Global.AuthTimeoutSeconds = 10
	}
	if conf.Global.BackendFnTimeoutSeconds == 0 {
		conf.Global.BackendFnTimeoutSeconds = 15
	}
	if conf.Global.ERPTimeoutSeconds == 0 {
		conf.Global.ERPTimeoutSeconds = 30
	}
	if conf.Global.VerificationRatePerMin == 0 {
		conf.Global.VerificationRatePerMin = 5
	}
	if conf.Global.VerificationBurst == 0 {
		conf.Global.VerificationBurst = 3
	}
	if conf.Global.Redis.SessionTTLSeconds == 0 {
		conf.Global.Redis.SessionTTLSeconds = 86400
	}
}

// GetAppByOrigin matches a request origin host against the configured
// frontend domains.
func (conf Config) GetAppByOrigin(origin string) (App, bool) {
	for _, app := range conf.Applications {
		if strings.Contains(app.FullDomainURL, origin) {
			return app, true
		}
	}
	return App{}, false
}

func (conf Config) GetConfigForAppID(appID string) (App, bool) {
	for _, app := range conf.Applications {
		if app.FusionAuthAppID == appID {
			return app, true
		}
	}
	return App{}, false
}
