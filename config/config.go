package config

import (
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "QFORMS"

type Config struct {
	Addr           string
	DBDriver       string
	DBUrl          string
	TokenSecret    string
	TokenTTL       time.Duration
	Debug          bool
	AllowedOrigins []string
}

// BindFlags registers the server flags on fs and binds them into v, so that
// each one can also come from QFORMS_* environment variables or the config file.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	fs.String("host", "0.0.0.0", "listen host name")
	fs.Uint("port", 80, "listen port number")
	fs.String("db-driver", "sqlite3", "database driver (sqlite3 or postgres)")
	fs.String("db-url", "qforms.sqlite", "path to SQLite3 DB file or PostgreSQL URL")
	fs.String("token-secret", "", "secret key for token encryption and decryption")
	fs.Duration("token-ttl", 2*time.Minute, "access token TTL")
	fs.Bool("debug", false, "log at DEBUG level")
	fs.StringSlice("allowed-origins", []string{"http://localhost:3000"}, "CORS allowed origins")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v.BindPFlags(fs)
}

// Load reads the configuration file when one exists. A missing file is not an error.
func Load(v *viper.Viper, file string) (cfg Config, err error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("quick-forms")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	return FromViper(v)
}

func FromViper(v *viper.Viper) (cfg Config, err error) {
	cfg.Addr = net.JoinHostPort(v.GetString("host"), strconv.Itoa(int(v.GetUint("port"))))
	cfg.DBDriver = v.GetString("db-driver")
	cfg.DBUrl = v.GetString("db-url")
	cfg.TokenSecret = v.GetString("token-secret")
	cfg.TokenTTL = v.GetDuration("token-ttl")
	cfg.Debug = v.GetBool("debug")
	cfg.AllowedOrigins = v.GetStringSlice("allowed-origins")

	switch {
	case cfg.TokenSecret == "":
		err = errors.New("missing parameter -token-secret")
	case cfg.DBDriver != "sqlite3" && cfg.DBDriver != "postgres":
		err = errors.New("unsupported db driver " + cfg.DBDriver)
	case cfg.TokenTTL <= 0:
		err = errors.New("token-ttl must be positive")
	}
	return
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}
