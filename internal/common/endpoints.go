package common

import (
	"fmt"
	"os"
	"path/filepath"

	"wallet-sync-go/internal/models"

	"gopkg.in/yaml.v2"
)

type EndpointsConfig struct {
	Endpoints models.Endpoints `yaml:"endpoints"`
}

// LoadEndpoints reads the endpoint manifest. Entries missing from the file
// keep their built-in defaults; an empty path returns the defaults.
func LoadEndpoints(endpointsFile string) (models.Endpoints, error) {
	defaults := models.DefaultEndpoints()
	if endpointsFile == "" {
		return defaults, nil
	}

	var endpointsPath string
	if filepath.IsAbs(endpointsFile) {
		endpointsPath = endpointsFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return defaults, fmt.Errorf("failed to get working directory: %w", err)
		}
		endpointsPath = filepath.Join(wd, endpointsFile)
	}

	data, err := os.ReadFile(endpointsPath)
	if err != nil {
		return defaults, fmt.Errorf("unable to read %s: %w", endpointsFile, err)
	}

	config := EndpointsConfig{Endpoints: defaults}
	if err := yaml.UnmarshalStrict(data, &config); err != nil {
		return defaults, fmt.Errorf("unable to parse %s: %w", endpointsFile, err)
	}

	for name, path := range endpointPaths(config.Endpoints) {
		if path == "" {
			return defaults, fmt.Errorf("endpoint %s is empty", name)
		}
		if path[0] != '/' {
			return defaults, fmt.Errorf("endpoint %s must start with /: %q", name, path)
		}
	}

	return config.Endpoints, nil
}

func endpointPaths(e models.Endpoints) map[string]string {
	return map[string]string{
		"wallets":              e.Wallets,
		"transactions":         e.Transactions,
		"interactions":         e.Interactions,
		"deleted_interactions": e.DeletedInteractions,
		"messages":             e.Messages,
		"timeline":             e.Timeline,
		"kyc":                  e.Kyc,
		"pools":                e.Pools,
		"pool_enrollments":     e.PoolEnrollments,
		"send_money":           e.SendMoney,
		"set_primary_wallet":   e.SetPrimaryWallet,
		"health":               e.Health,
	}
}
