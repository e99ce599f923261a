package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch re-reads the config file whenever it changes on disk and passes the newly
// validated configuration to onChange. Invalid edits are logged and ignored. Only
// settings read at call sites (such as the log level) take effect; listeners, pools
// and schedules are fixed at startup.
//
// Watch is a no-op when the configuration did not come from a file.
func (c *Config) Watch(onChange func(*Config)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(c.v)
		if err != nil {
			slog.Warn("ignoring config change", "file", e.Name, "error", err)
			return
		}
		slog.Info("config file changed", "file", e.Name)
		onChange(next)
	})
	c.v.WatchConfig()
}
