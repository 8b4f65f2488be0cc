// Package database provides relational database configuration options.
package database

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
)

// Supported drivers.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Options defines configuration options for the document metadata database.
type Options struct {
	// Driver selects the database driver (mysql or sqlite).
	Driver string `json:"driver" mapstructure:"driver"`

	// Path is the SQLite database file path (sqlite driver only).
	Path string `json:"path" mapstructure:"path"`

	Host                  string        `json:"host" mapstructure:"host"`
	Port                  int           `json:"port" mapstructure:"port"`
	Username              string        `json:"username" mapstructure:"username"`
	Password              string        `json:"-" mapstructure:"password"`
	Database              string        `json:"database" mapstructure:"database"`
	MaxIdleConnections    int           `json:"max-idle-connections" mapstructure:"max-idle-connections"`
	MaxOpenConnections    int           `json:"max-open-connections" mapstructure:"max-open-connections"`
	MaxConnectionLifeTime time.Duration `json:"max-connection-life-time" mapstructure:"max-connection-life-time"`
	LogLevel              int           `json:"log-level" mapstructure:"log-level"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Driver:                DriverSQLite,
		Path:                  "_output/ragserver.db",
		Host:                  "127.0.0.1",
		Port:                  3306,
		Username:              "root",
		MaxIdleConnections:    10,
		MaxOpenConnections:    100,
		MaxConnectionLifeTime: 10 * time.Second,
		LogLevel:              1, // Silent
	}
}

// DSN returns the MySQL data source name.
func (o *Options) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=Local",
		o.Username, o.Password, o.Host, o.Port, o.Database)
}

// Validate checks if the options are valid.
func (o *Options) Validate() error {
	if o.Driver != DriverMySQL && o.Driver != DriverSQLite {
		return fmt.Errorf("db.driver must be 'mysql' or 'sqlite'")
	}
	if o.Driver == DriverSQLite && o.Path == "" {
		return fmt.Errorf("db.path is required for sqlite driver")
	}
	if o.Driver == DriverMySQL {
		// 如果 CLI 参数为空，从环境变量读取
		if o.Password == "" {
			o.Password = os.Getenv("MYSQL_PASSWORD")
		}
		if o.Database == "" {
			return fmt.Errorf("db.database is required for mysql driver")
		}
	}
	return nil
}

// AddFlags adds flags for database options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Driver, "db.driver", o.Driver, "Database driver (mysql, sqlite)")
	fs.StringVar(&o.Path, "db.path", o.Path, "SQLite database file path")
	fs.StringVar(&o.Host, "db.host", o.Host, "MySQL host")
	fs.IntVar(&o.Port, "db.port", o.Port, "MySQL port")
	fs.StringVar(&o.Username, "db.username", o.Username, "MySQL username")
	fs.StringVar(&o.Password, "db.password", o.Password, "MySQL password (DEPRECATED: use MYSQL_PASSWORD env var instead)")
	fs.StringVar(&o.Database, "db.database", o.Database, "MySQL database")
	fs.IntVar(&o.MaxIdleConnections, "db.max-idle-connections", o.MaxIdleConnections, "Max idle connections")
	fs.IntVar(&o.MaxOpenConnections, "db.max-open-connections", o.MaxOpenConnections, "Max open connections")
	fs.DurationVar(&o.MaxConnectionLifeTime, "db.max-connection-life-time", o.MaxConnectionLifeTime, "Max connection life time")
	fs.IntVar(&o.LogLevel, "db.log-level", o.LogLevel, "GORM log level")
}
