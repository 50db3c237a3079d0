package config

import (
	"errors"
	"fmt"
)

// Validate checks required values and cross references. Every problem is reported,
// joined into one error.
func (c *Config) Validate() error {
	var errs []error
	missing := func(path string) {
		errs = append(errs, fmt.Errorf("missing required config: %s", path))
	}
	badDuration := func(path string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid duration for %s: %w", path, err))
		}
	}

	if c.Database.ConnectionString == "" {
		missing("database.connection_string")
	}
	switch c.Database.Driver {
	case "sqlserver", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("unsupported database.driver: %s", c.Database.Driver))
	}
	_, err := c.Database.GetConnMaxIdle()
	badDuration("database.conn_max_idle", err)

	if c.Lock != nil {
		if c.Lock.Type == "" {
			missing("lock.type")
		}
		if c.Lock.ConnectionString == "" {
			missing("lock.connection_string")
		}
		if c.Lock.ContainerName == "" {
			missing("lock.container_name")
		}
	}

	if p := c.Publisher; p != nil {
		switch p.Type {
		case "stdout":
		case "nats":
			if p.URL == "" {
				missing("publisher.url")
			}
		case "servicebus":
			if p.ConnectionString == "" {
				missing("publisher.connection_string")
			}
			if p.Queue == "" {
				missing("publisher.queue")
			}
		default:
			errs = append(errs, fmt.Errorf("unsupported publisher.type: %s", p.Type))
		}
	}

	if n := c.Notifier; n != nil {
		switch n.Type {
		case "log":
		case "nats":
			if n.URL == "" {
				missing("notifier.url")
			}
		case "servicebus":
			if n.ConnectionString == "" {
				missing("notifier.connection_string")
			}
			if n.Queue == "" {
				missing("notifier.queue")
			}
		default:
			errs = append(errs, fmt.Errorf("unsupported notifier.type: %s", n.Type))
		}
		_, err := n.GetDelay()
		badDuration("notifier.delay", err)
	}

	refs := map[string]bool{}
	for _, r := range c.References {
		if refs[r.Name] {
			errs = append(errs, fmt.Errorf("duplicate reference %q", r.Name))
		}
		refs[r.Name] = true
		if r.Query == "" {
			missing(fmt.Sprintf("reference.%s.query", r.Name))
		}
		_, err := r.GetTTL()
		badDuration(fmt.Sprintf("reference.%s.ttl", r.Name), err)
	}

	if len(c.Watchers) == 0 {
		missing("watcher")
	}
	seen := map[string]bool{}
	for _, w := range c.Watchers {
		path := "watcher." + w.Name
		if seen[w.Name] {
			errs = append(errs, fmt.Errorf("duplicate watcher %q", w.Name))
		}
		seen[w.Name] = true

		if w.Query == "" && w.Table == "" {
			missing(path + ".query")
		}
		if w.Query != "" && w.Table != "" {
			errs = append(errs, fmt.Errorf("%s: query and table are mutually exclusive", path))
		}
		if w.IDField == "" {
			missing(path + ".id_field")
		}
		d, err := w.GetPollInterval()
		badDuration(path+".poll_interval", err)
		if err == nil && d <= 0 {
			errs = append(errs, fmt.Errorf("%s.poll_interval must be positive", path))
		}
		_, err = w.GetMaxPollInterval()
		badDuration(path+".max_poll_interval", err)

		for _, n := range w.Notify {
			npath := fmt.Sprintf("%s.notify.%s", path, n.On)
			switch n.On {
			case "new", "update", "delete":
			default:
				errs = append(errs, fmt.Errorf("%s: unknown change class %q", path, n.On))
			}
			if c.Notifier == nil {
				errs = append(errs, fmt.Errorf("%s requires a notifier block", npath))
			}
			if n.Reference != "" && !refs[n.Reference] {
				errs = append(errs, fmt.Errorf("%s: unknown reference %q", npath, n.Reference))
			}
		}
	}

	return errors.Join(errs...)
}
