package config

import (
	"io/ioutil"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Path is the location of updater.yaml, set from the -config flag at
// process startup before the first call to Get.
var Path = "updater.yaml"

var instance *UpdaterConfig
var singletonLock = &sync.Once{}
var mu sync.RWMutex

func reloadConfig() (*UpdaterConfig, error) {
	c := NewDefaultConfig()

	if _, err := os.Stat(Path); os.IsNotExist(err) {
		logrus.Info("Generating new configuration: ", Path)
		configBytes, err := yaml.Marshal(c)
		if err != nil {
			return nil, err
		}
		if err := ioutil.WriteFile(Path, configBytes, 0644); err != nil {
			return nil, err
		}
		return c, nil
	} else if err != nil {
		return nil, err
	}

	buffer, err := ioutil.ReadFile(Path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(buffer, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the process-wide configuration singleton, loading and
// defaulting it (and writing a fresh file) on first call.
func Get() *UpdaterConfig {
	singletonLock.Do(func() {
		c, err := reloadConfig()
		if err != nil {
			logrus.Fatal("config: ", err)
		}
		mu.Lock()
		instance = c
		mu.Unlock()
	})
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// set swaps the singleton, used by Reload after a file-change debounce.
func set(c *UpdaterConfig) {
	mu.Lock()
	instance = c
	mu.Unlock()
}
