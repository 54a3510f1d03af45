package keyValStore

import (
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

// ErrInsufficientSpace is returned when a storage path has less free space
// than the configured minimum.
var ErrInsufficientSpace = errors.New("insufficient free disk space")

// checkFreeSpace logs the disk usage of every storage path and fails when
// one of them falls below minimumFreeGB.
func checkFreeSpace(paths []string, minimumFreeGB int) error {
	for _, path := range paths {
		usage, err := disk.Usage(path)
		if err != nil {
			log.WithFields(logrus.Fields{
				"path": path,
			}).Errorf("Error retrieving disk usage stats: %v", err)
			return fmt.Errorf("disk usage for %s: %w", path, err)
		}

		freeGB := float64(usage.Free) / 1e9
		totalGB := float64(usage.Total) / 1e9

		log.WithFields(logrus.Fields{
			"Path":       path,
			"Total (GB)": fmt.Sprintf("%.2f", totalGB),
			"Free (GB)":  fmt.Sprintf("%.2f", freeGB),
			"Used (%)":   fmt.Sprintf("%.2f", usage.UsedPercent),
		}).Info("Disk Usage")

		if freeGB < float64(minimumFreeGB) {
			return fmt.Errorf("path %s has %.2f GB free, need %d GB: %w",
				path, freeGB, minimumFreeGB, ErrInsufficientSpace)
		}
	}

	return nil
}
