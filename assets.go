package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (cfg apiConfig) ensureAssetsDir() error {
	if _, err := os.Stat(cfg.assetsRoot); os.IsNotExist(err) {
		return os.Mkdir(cfg.assetsRoot, 0755)
	}
	return nil
}

// randomAssetName returns a filesystem-safe unique name: 32 random bytes,
// hex-encoded, with the extension derived from the media type.
func randomAssetName(mediaType string) (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("couldn't generate random name: %w", err)
	}
	return hex.EncodeToString(key) + mediaTypeToExt(mediaType), nil
}

func mediaTypeToExt(mediaType string) string {
	parts := strings.Split(mediaType, "/")
	if len(parts) != 2 {
		return ".bin"
	}
	return "." + parts[1]
}

func (cfg apiConfig) getAssetDiskPath(assetName string) string {
	return filepath.Join(cfg.assetsRoot, assetName)
}

func (cfg apiConfig) getAssetURL(assetName string) string {
	return fmt.Sprintf("http://localhost:%s/assets/%s", cfg.port, assetName)
}
