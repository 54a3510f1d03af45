package keyValStore

import (
	"fmt"
	"os"
)

func (c *StoreConfig) checkConfig() error {
	if len(c.Paths) == 0 {
		return fmt.Errorf("no storage path provided")
	}

	for _, path := range c.Paths {
		if err := os.MkdirAll(path, 0o700); err != nil {
			return fmt.Errorf("error creating directory %s: %w", path, err)
		}
	}

	if c.SkipSpaceCheck {
		return nil
	}

	return checkFreeSpace(c.Paths, c.MinimumFreeGB)
}
