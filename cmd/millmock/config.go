package main

import (
	"time"

	"gopkg.in/ini.v1"
)

// config holds the server's bindable settings, overridable by an ini
// file via -config. This repurposes the teacher's EDS-via-ini.v1 pattern
// for a plain settings file rather than an object dictionary.
type config struct {
	Host        string
	Port        int
	Verbose     bool
	IdleTimeout time.Duration
	CatalogPath string
	FilesPath   string
}

// loadConfigFile overlays ini-file values from path onto cfg, leaving
// any value absent from the file untouched.
func loadConfigFile(cfg *config, path string) error {
	f, err := ini.Load(path)
	if err != nil {
		return err
	}
	section := f.Section("server")

	if section.HasKey("host") {
		cfg.Host = section.Key("host").String()
	}
	if section.HasKey("port") {
		if v, err := section.Key("port").Int(); err == nil {
			cfg.Port = v
		}
	}
	if section.HasKey("idle_timeout_seconds") {
		if v, err := section.Key("idle_timeout_seconds").Int(); err == nil {
			cfg.IdleTimeout = time.Duration(v) * time.Second
		}
	}
	if section.HasKey("catalog_path") {
		cfg.CatalogPath = section.Key("catalog_path").String()
	}
	if section.HasKey("files_path") {
		cfg.FilesPath = section.Key("files_path").String()
	}
	return nil
}
