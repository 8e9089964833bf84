package server

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"

	"clickguard/internal/config"
)

func getGlobalSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, config.GetConfig())
}

// saveSettings accepts a full or partial configuration; omitted fields keep
// their current values.
func saveSettings(w http.ResponseWriter, r *http.Request) {
	newConfig, err := copyCurrentConfig()
	if err != nil {
		log.Error("Failed to copy current configuration", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		writeError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := newConfig.Validate(); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := config.SetConfig(newConfig); err != nil {
		writeError(w, "Configuration applied but could not be persisted", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Configuration updated successfully",
		"settings": config.GetConfig(),
	})
}

// copyCurrentConfig detaches the slices of the live configuration so decoding
// into the copy cannot alias it.
func copyCurrentConfig() (config.Config, error) {
	data, err := json.Marshal(config.GetConfig())
	if err != nil {
		return config.Config{}, err
	}
	var cfg config.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
