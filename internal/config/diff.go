package config

import (
	"reflect"
)

// Section names used in reload summaries.
const (
	SectionLogging = "logging"
	SectionStorage = "storage"
	SectionCache   = "cache"
	SectionNotify  = "notify"
	SectionChannel = "channel"
	SectionServer  = "server"
	SectionIngest  = "ingest"
	SectionSummary = "summary"
	SectionTracing = "tracing"
)

// ChangedSections lists the top-level sections that differ between two
// configs, in file order. A nil config compares as empty.
func ChangedSections(oldCfg, newCfg *Config) []string {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	pairs := []struct {
		name     string
		old, new any
	}{
		{SectionLogging, oldCfg.Logging, newCfg.Logging},
		{SectionStorage, oldCfg.Storage, newCfg.Storage},
		{SectionCache, oldCfg.Cache, newCfg.Cache},
		{SectionNotify, oldCfg.Notify, newCfg.Notify},
		{SectionChannel, oldCfg.Channel, newCfg.Channel},
		{SectionServer, oldCfg.Server, newCfg.Server},
		{SectionIngest, oldCfg.Ingest, newCfg.Ingest},
		{SectionSummary, oldCfg.Summary, newCfg.Summary},
		{SectionTracing, oldCfg.Tracing, newCfg.Tracing},
	}
	var changed []string
	for _, p := range pairs {
		if !reflect.DeepEqual(p.old, p.new) {
			changed = append(changed, p.name)
		}
	}
	return changed
}

// RestartRequired filters sections that are only read at startup. Logging is
// the one section applied live.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if s != SectionLogging {
			out = append(out, s)
		}
	}
	return out
}
