package dbclient

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/jingkaihe/skillkit/pkg/db"
	"github.com/jingkaihe/skillkit/pkg/skillerr"
	"github.com/jingkaihe/skillkit/pkg/utils"
)

// Dialect is the SQL flavour of a connection.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// Default connection parameters used when only individual variables are set.
const (
	DefaultHost    = "localhost"
	DefaultPort    = "5432"
	DefaultSSLMode = "disable"
)

// MissingParamsMessage is returned when neither a URL nor the individual
// database, user and password parameters are configured.
const MissingParamsMessage = "Missing required environment variables. Set POSTGRES_URL or (POSTGRES_DB, POSTGRES_USER, POSTGRES_PASSWORD)"

// Params are the connection settings, normally read from POSTGRES_* variables.
type Params struct {
	URL      string
	Host     string
	Port     string
	Database string
	User     string
	Password string
	SSLMode  string
}

// Target is a resolved connection: the driver to load and its DSN.
type Target struct {
	Dialect Dialect
	Driver  string
	DSN     string
	// Display is the DSN with credentials removed, safe to log.
	Display string
	// SQLitePath is set for sqlite targets, which are opened through pkg/db.
	SQLitePath string
}

// Resolve picks the driver and builds the DSN. A URL wins over the
// individual parameters; its scheme selects the driver.
func (p Params) Resolve() (*Target, error) {
	if p.URL != "" {
		return resolveURL(p.URL)
	}

	if p.Database == "" || p.User == "" || p.Password == "" {
		return nil, skillerr.Configuration(MissingParamsMessage)
	}
	host := firstNonEmpty(p.Host, DefaultHost)
	port := firstNonEmpty(p.Port, DefaultPort)
	sslMode := firstNonEmpty(p.SSLMode, DefaultSSLMode)

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		quoteKV(host), quoteKV(port), quoteKV(p.User), quoteKV(p.Password), quoteKV(p.Database), quoteKV(sslMode))
	return &Target{
		Dialect: DialectPostgres,
		Driver:  "postgres",
		DSN:     dsn,
		Display: fmt.Sprintf("postgres://%s@%s/%s", p.User, net.JoinHostPort(host, port), p.Database),
	}, nil
}

func resolveURL(raw string) (*Target, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return nil, skillerr.Configuration("invalid connection URL %q", utils.RedactSecrets(raw))
	}

	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return &Target{Dialect: DialectPostgres, Driver: "postgres", DSN: raw, Display: utils.RedactURL(raw)}, nil
	case "mysql":
		cfg := mysql.NewConfig()
		cfg.Net = "tcp"
		cfg.Addr = mysqlAddr(u)
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
		cfg.ParseTime = true
		if u.User != nil {
			cfg.User = u.User.Username()
			cfg.Passwd, _ = u.User.Password()
		}
		for k, vs := range u.Query() {
			if len(vs) == 0 {
				continue
			}
			if cfg.Params == nil {
				cfg.Params = map[string]string{}
			}
			cfg.Params[k] = vs[len(vs)-1]
		}
		return &Target{Dialect: DialectMySQL, Driver: "mysql", DSN: cfg.FormatDSN(), Display: utils.RedactURL(raw)}, nil
	case "sqlite", "sqlite3", "file":
		path := u.Path
		if u.Opaque != "" {
			path = u.Opaque
		}
		if u.Host != "" {
			path = u.Host + path
		}
		if path == "" {
			return nil, skillerr.Configuration("sqlite URL %q has no file path", raw)
		}
		return &Target{
			Dialect:    DialectSQLite,
			Driver:     db.DriverName,
			DSN:        db.DSN(path, db.Options{ReadOnly: true}),
			Display:    raw,
			SQLitePath: path,
		}, nil
	default:
		return nil, skillerr.Configuration("unsupported connection URL scheme %q (use postgres, mysql or sqlite)", u.Scheme)
	}
}

func mysqlAddr(u *url.URL) string {
	host := firstNonEmpty(u.Hostname(), "127.0.0.1")
	port := firstNonEmpty(u.Port(), "3306")
	return net.JoinHostPort(host, port)
}

// quoteKV quotes a value for a libpq key/value connection string.
func quoteKV(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
