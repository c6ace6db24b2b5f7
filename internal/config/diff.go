package config

// ConfigDiff describes what changed between two configs. Only settings that
// can be applied without a restart are tracked.
type ConfigDiff struct {
	PersonasChanged bool
	PersonaChanges  []PersonaDiff

	ActiveBackendChanged bool
	NewActiveBackend     string

	LogLevelChanged bool
	NewLogLevel     LogLevel

	ReportsChanged bool

	HistoryThresholdChanged bool
	NewHistoryThreshold     int
}

// PersonaDiff describes what changed for one persona.
type PersonaDiff struct {
	Name     string
	Changed  bool // settings other than the name changed
	Added    bool
	Removed  bool
	Disabled bool // the persona is present but no longer enabled
}

// Diff compares old and new and returns the hot-reloadable changes.
// Persona changes are reported in the order of new, followed by removals in
// the order of old.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Reports != new.Reports {
		d.ReportsChanged = true
	}
	if old.Narration.HistoryThreshold != new.Narration.HistoryThreshold {
		d.HistoryThresholdChanged = true
		d.NewHistoryThreshold = new.Narration.HistoryThreshold
	}

	oldActive, newActive := "", ""
	if b := old.ActiveBackend(); b != nil {
		oldActive = b.Name
	}
	if b := new.ActiveBackend(); b != nil {
		newActive = b.Name
	}
	if oldActive != newActive {
		d.ActiveBackendChanged = true
		d.NewActiveBackend = newActive
	}

	oldPersonas := make(map[string]*PersonaConfig, len(old.Personas))
	for i := range old.Personas {
		oldPersonas[old.Personas[i].Name] = &old.Personas[i]
	}
	newNames := make(map[string]bool, len(new.Personas))
	for i := range new.Personas {
		np := &new.Personas[i]
		newNames[np.Name] = true
		op, ok := oldPersonas[np.Name]
		if !ok {
			d.PersonaChanges = append(d.PersonaChanges, PersonaDiff{Name: np.Name, Added: true})
			continue
		}
		if pd := diffPersona(op, np); pd.Changed {
			d.PersonaChanges = append(d.PersonaChanges, pd)
		}
	}
	for _, op := range old.Personas {
		if !newNames[op.Name] {
			d.PersonaChanges = append(d.PersonaChanges, PersonaDiff{Name: op.Name, Removed: true})
		}
	}
	d.PersonasChanged = len(d.PersonaChanges) > 0
	return d
}

func diffPersona(old, new *PersonaConfig) PersonaDiff {
	pd := PersonaDiff{Name: new.Name}
	if old.Personality != new.Personality ||
		old.Chronicler != new.Chronicler ||
		old.PhraseMaxWords != new.PhraseMaxWords ||
		old.HistoryMaxWords != new.HistoryMaxWords ||
		old.SpeakInterval != new.SpeakInterval ||
		old.IsEnabled() != new.IsEnabled() {
		pd.Changed = true
	}
	pd.Disabled = old.IsEnabled() && !new.IsEnabled()
	return pd
}
