package director

import (
	"os"

	"gopkg.in/yaml.v3"
)

// WriteScenario dumps a planned scenario (without per-frame records) to YAML
func WriteScenario(scenario *Scenario, path string) error {
	data, err := yaml.Marshal(scenario)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ReadScenario reads a scenario dump back and rebuilds its frames
func ReadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Scenes) > 0 && scenario.Theme.NumFrames > 0 && scenario.Theme.FPS > 0 {
		scenario.Frames = buildFrames(scenario.Scenes, scenario.Theme)
	}

	return &scenario, nil
}
