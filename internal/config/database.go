package config

import "github.com/breatheroute/cleanroute/internal/database"

// Pool converts the section into a database connection config.
func (d DatabaseConfig) Pool() database.Config {
	return database.Config{
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		Database:        d.Name,
		SSLMode:         d.SSLMode,
		MaxConns:        d.MaxConns,
		MinConns:        d.MinConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
	}
}
