package crawler

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Config controls the crawl loop. Zero values mean "unbounded" for the limits.
type Config struct {
	// CrossOriginAssets lets images, stylesheets and scripts be fetched from
	// any host. Pages are always restricted to the target host.
	CrossOriginAssets bool
	// MaxItems caps the size of the Visited Set.
	MaxItems int
	// MaxDepth caps link hops from the snapshot page.
	MaxDepth int
	// ManifestPath, when set, is the store path of the JSON run manifest. It
	// must not name the snapshot page, and it is not written when a mirrored
	// file already took the same path.
	ManifestPath string
}

// Validate rejects negative limits.
func (c Config) Validate() error {
	if c.MaxItems < 0 {
		return errors.New("max items must be >= 0")
	}
	if c.MaxDepth < 0 {
		return errors.New("max depth must be >= 0")
	}
	if c.ManifestPath != "" {
		switch cleanStorePath(c.ManifestPath) {
		case "":
			return fmt.Errorf("manifest path %q does not name a file", c.ManifestPath)
		case RootDocument:
			return fmt.Errorf("manifest path %q would overwrite the snapshot page", c.ManifestPath)
		}
	}
	return nil
}

// cleanStorePath reduces p to the slash-separated form MapPath produces.
func cleanStorePath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}
