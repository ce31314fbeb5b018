package monitoring

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path"
	"runtime"
	"strings"
)

//go:embed web/*
var webAssets embed.FS

const devModeEnv = "CACHESIM_MONITOR_DEV"

// webPages returns the monitoring page. With CACHESIM_MONITOR_DEV set, the
// page is read from the source tree on every request, so it can be edited
// without rebuilding.
func (m *Monitor) webPages() http.FileSystem {
	if inDevMode() {
		_, file, _, ok := runtime.Caller(0)
		if ok {
			dir := path.Join(path.Dir(file), "web")
			m.logger.WithField("path", dir).Debug("Serving monitoring page from disk")

			return http.Dir(dir)
		}
	}

	pages, err := fs.Sub(webAssets, "web")
	if err != nil {
		panic(err)
	}

	return http.FS(pages)
}

func inDevMode() bool {
	v := strings.ToLower(os.Getenv(devModeEnv))
	return v == "true" || v == "1"
}
