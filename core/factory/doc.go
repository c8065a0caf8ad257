// Package factory provides a small generic registry used to instantiate modules
// from configuration. Backends such as schedule stores and metrics sinks are defined by a type string and a map of raw
// settings. Factories decode the settings into typed structs and return the
// concrete implementation.
//
// Example usage:
//
//	reg := factory.NewRegistry[schedule.Store]()
//	reg.Register("json", func(conf map[string]any) (schedule.Store, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return store.NewJSONFileStore(c.Path)
//	})
//	st, err := reg.Create(factory.ModuleConfig{Type: "json", Conf: map[string]any{"path": "schedules.json"}})
package factory
